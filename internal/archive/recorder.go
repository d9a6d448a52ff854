package archive

import (
	"context"

	"github.com/google/uuid"

	"github.com/calderahq/tradewind-backend/internal/events"
	pkgerrors "github.com/calderahq/tradewind-backend/pkg/errors"
	"github.com/calderahq/tradewind-backend/pkg/logger"
)

// Recorder is the events.Sink that writes every envelope to the archive
// table. Failures surface to the bus, which logs them; the engine operation
// that produced the event is never rolled back.
type Recorder struct {
	repo Repository
	logg *logger.Logger
}

// NewRecorder wires an archive recorder with the provided repository.
func NewRecorder(repo Repository, logg *logger.Logger) (*Recorder, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "archive repository required")
	}
	return &Recorder{repo: repo, logg: logg}, nil
}

func (r *Recorder) Name() string { return "archive" }

func (r *Recorder) Deliver(ctx context.Context, env events.Envelope) error {
	id, err := uuid.Parse(env.EventID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInvalidArgument, err, "malformed event id")
	}
	row := &EngineEvent{
		ID:         id,
		EventType:  string(env.Type),
		Version:    env.Version,
		OccurredAt: env.OccurredAt,
		Payload:    env.Payload,
	}
	if err := r.repo.Insert(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "archiving engine event")
	}
	return nil
}
