package archive

import (
	"context"

	"gorm.io/gorm"
)

// Repository persists archived engine events.
type Repository interface {
	Insert(ctx context.Context, event *EngineEvent) error
	ListByType(ctx context.Context, eventType string, limit int) ([]EngineEvent, error)
	ListRecent(ctx context.Context, limit int) ([]EngineEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an archive repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, event *EngineEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListByType(ctx context.Context, eventType string, limit int) ([]EngineEvent, error) {
	var rows []EngineEvent
	query := r.db.WithContext(ctx).
		Where("event_type = ?", eventType).
		Order("occurred_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListRecent(ctx context.Context, limit int) ([]EngineEvent, error) {
	var rows []EngineEvent
	query := r.db.WithContext(ctx).Order("occurred_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
