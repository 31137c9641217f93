package repository

import (
	"context"

	"koursa/client/internal/teaching/domain"
	userdomain "koursa/client/internal/user/domain"
)

// Repository is the remote reference-data API.
type Repository interface {
	ListUnits(ctx context.Context) ([]domain.Unit, error)
	Stats(ctx context.Context) (*domain.Stats, error)
	// ListRoles and ListLevels feed the registration form; they are public.
	ListRoles(ctx context.Context) ([]userdomain.Role, error)
	ListLevels(ctx context.Context) ([]domain.Level, error)

	ListFaculties(ctx context.Context) ([]domain.Faculty, error)
	ListDepartments(ctx context.Context) ([]domain.Department, error)
	ListTracks(ctx context.Context) ([]domain.Track, error)
}
