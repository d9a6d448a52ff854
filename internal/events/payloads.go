package events

// Payloads carry addresses as plain strings and amounts in base units so any
// subscriber can decode them without importing engine types.

type MintedPayload struct {
	To          string `json:"to"`
	Amount      uint64 `json:"amount"`
	TotalSupply uint64 `json:"totalSupply"`
}

type BurnedPayload struct {
	From        string `json:"from"`
	Amount      uint64 `json:"amount"`
	TotalSupply uint64 `json:"totalSupply"`
}

type TransferredPayload struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type PausedPayload struct {
	By string `json:"by"`
}

type UnpausedPayload struct {
	By string `json:"by"`
}

type MinterUpdatedPayload struct {
	Minter  string `json:"minter"`
	Enabled bool   `json:"enabled"`
}

type ListingCreatedPayload struct {
	ListingID uint64 `json:"listingId"`
	Seller    string `json:"seller"`
	Price     uint64 `json:"price"`
	Metadata  string `json:"metadata,omitempty"`
}

type ListingUpdatedPayload struct {
	ListingID uint64 `json:"listingId"`
	Seller    string `json:"seller"`
	OldPrice  uint64 `json:"oldPrice"`
	NewPrice  uint64 `json:"newPrice"`
}

type ListingCancelledPayload struct {
	ListingID uint64 `json:"listingId"`
	Seller    string `json:"seller"`
}

type OrderCreatedPayload struct {
	OrderID   uint64 `json:"orderId"`
	ListingID uint64 `json:"listingId"`
	Buyer     string `json:"buyer"`
	Seller    string `json:"seller"`
	Price     uint64 `json:"price"`
}

type OrderCompletedPayload struct {
	OrderID      uint64 `json:"orderId"`
	Seller       string `json:"seller"`
	SellerAmount uint64 `json:"sellerAmount"`
	PlatformFee  uint64 `json:"platformFee"`
}

type FeeUpdatedPayload struct {
	OldBps uint32 `json:"oldBps"`
	NewBps uint32 `json:"newBps"`
}

type FeesWithdrawnPayload struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}
