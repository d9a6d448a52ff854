package archive

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EngineEvent is one archived engine event. The table is append-only; rows
// are never updated or deleted.
type EngineEvent struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	EventType  string          `gorm:"column:event_type;not null;index"`
	Version    int             `gorm:"column:version;not null"`
	OccurredAt time.Time       `gorm:"column:occurred_at;not null"`
	Payload    json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the table the migrations create.
func (EngineEvent) TableName() string {
	return "engine_events"
}
