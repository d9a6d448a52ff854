package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/calderahq/tradewind-backend/pkg/logger"
)

// Sink receives every published envelope. Delivery is synchronous and happens
// strictly after the engine mutation; a sink must never call back into the
// engine from Deliver.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, env Envelope) error
}

// Bus fans envelopes out to the subscribed sinks. Sink failures never fail
// the engine operation that produced the event.
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink
	logg  *logger.Logger
}

func NewBus(logg *logger.Logger) *Bus {
	return &Bus{logg: logg}
}

func (b *Bus) Subscribe(sink Sink) {
	if sink == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Publish builds an envelope around payload and delivers it to every sink.
// The returned error aggregates sink failures; callers log it and move on.
func (b *Bus) Publish(ctx context.Context, eventType Type, version int, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := Envelope{
		EventID:    uuid.NewString(),
		Type:       eventType,
		Version:    version,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}

	b.mu.RLock()
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.RUnlock()

	var combined error
	for _, sink := range sinks {
		if err := sink.Deliver(ctx, env); err != nil {
			combined = multierr.Append(combined, err)
			if b.logg != nil {
				fields := map[string]any{
					"event_id":   env.EventID,
					"event_type": env.Type,
					"sink":       sink.Name(),
				}
				b.logg.Error(b.logg.WithFields(ctx, fields), "event sink delivery failed", err)
			}
		}
	}
	return combined
}
