package repository

import (
	"context"

	"koursa/client/internal/fiche/domain"
)

// Repository is the remote fiche API.
type Repository interface {
	// List returns the fiches visible to the current user.
	List(ctx context.Context) ([]domain.Fiche, error)
	// ListPending returns fiches awaiting the current instructor's decision.
	ListPending(ctx context.Context) ([]domain.Fiche, error)
	GetByID(ctx context.Context, id int64) (*domain.Fiche, error)
	Create(ctx context.Context, req domain.CreateRequest) (*domain.Fiche, error)
	// Validate applies SUBMITTED → VALIDATED using a one-time validation token.
	Validate(ctx context.Context, id int64, validationToken string) (*domain.Fiche, error)
	// Refuse applies SUBMITTED → REFUSED with a reason.
	Refuse(ctx context.Context, id int64, reason string) (*domain.Fiche, error)
}
