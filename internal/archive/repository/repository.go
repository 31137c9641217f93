package repository

import (
	"context"
	"time"

	"koursa/client/internal/archive/domain"
	fichedomain "koursa/client/internal/fiche/domain"
)

// Repository persists fiche snapshots and answers monthly hours queries.
type Repository interface {
	// StartRun records a new synchronization run.
	StartRun(ctx context.Context, run *domain.Run) error
	// FinishRun stamps the run's end time and fiche count.
	FinishRun(ctx context.Context, run *domain.Run) error
	// Upsert inserts or replaces the snapshot of f for run.
	Upsert(ctx context.Context, f *fichedomain.Fiche, runID string, syncedAt time.Time) error
	// GetByID returns the archived fiche, or nil if it was never archived.
	GetByID(ctx context.Context, id int64) (*domain.Record, error)
	// HoursByUnit sums validated hours per unit for lessons held in [from, to).
	HoursByUnit(ctx context.Context, from, to time.Time) ([]domain.UnitHours, error)
}
