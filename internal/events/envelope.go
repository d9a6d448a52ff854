package events

import (
	"encoding/json"
	"time"
)

// Type names an engine event on the wire. The prefix groups events by the
// component that emits them.
type Type string

const (
	TypeMinted        Type = "token.minted"
	TypeBurned        Type = "token.burned"
	TypeTransferred   Type = "token.transferred"
	TypePaused        Type = "token.paused"
	TypeUnpaused      Type = "token.unpaused"
	TypeMinterUpdated Type = "token.minter_updated"

	TypeListingCreated   Type = "market.listing_created"
	TypeListingUpdated   Type = "market.listing_updated"
	TypeListingCancelled Type = "market.listing_cancelled"
	TypeOrderCreated     Type = "market.order_created"
	TypeOrderCompleted   Type = "market.order_completed"
	TypeFeeUpdated       Type = "market.fee_updated"
	TypeFeesWithdrawn    Type = "market.fees_withdrawn"
)

// Envelope is the stable structure every sink receives. It is built only
// after the corresponding state mutation has been applied.
type Envelope struct {
	EventID    string          `json:"eventId"`
	Type       Type            `json:"eventType"`
	Version    int             `json:"version"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}
