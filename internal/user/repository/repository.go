package repository

import (
	"context"

	"koursa/client/internal/user/domain"
)

// Repository is the remote user-account API.
type Repository interface {
	// Create registers a new account. The returned Registration carries tokens only if the backend issued them.
	Create(ctx context.Context, req domain.RegisterRequest) (*domain.Registration, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	// Update applies a partial profile update and returns the stored profile.
	Update(ctx context.Context, id int64, patch domain.ProfilePatch) (*domain.User, error)
	// ChangePassword changes the current user's password.
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error

	// List returns the accounts visible to an administrator, narrowed to status when it is set.
	List(ctx context.Context, status domain.AccountStatus) ([]domain.User, error)
	// SetStatus changes another account's status.
	SetStatus(ctx context.Context, id int64, status domain.AccountStatus) (*domain.User, error)
	// Approve activates a pending representative account.
	Approve(ctx context.Context, id int64) error
}
