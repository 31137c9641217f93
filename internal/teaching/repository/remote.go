package repository

import (
	"context"

	"koursa/client/internal/gateway"
	"koursa/client/internal/teaching/domain"
	userdomain "koursa/client/internal/user/domain"
)

const (
	pathUnits  = "/teaching/unites-enseignement/"
	pathStats  = "/dashboard/stats/"
	pathRoles  = "/users/roles/"
	pathLevels = "/academic/niveaux/"

	pathFaculties   = "/academic/facultes/"
	pathDepartments = "/academic/departements/"
	pathTracks      = "/academic/filieres/"
)

// RemoteRepository implements Repository over the API gateway.
type RemoteRepository struct {
	api *gateway.Client
}

// NewRemoteRepository returns a reference-data repository backed by api.
func NewRemoteRepository(api *gateway.Client) *RemoteRepository {
	return &RemoteRepository{api: api}
}

func (r *RemoteRepository) ListUnits(ctx context.Context) ([]domain.Unit, error) {
	return gateway.GetList[domain.Unit](ctx, r.api, pathUnits)
}

func (r *RemoteRepository) Stats(ctx context.Context) (*domain.Stats, error) {
	var s domain.Stats
	if err := r.api.Get(ctx, pathStats, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RemoteRepository) ListRoles(ctx context.Context) ([]userdomain.Role, error) {
	return gateway.GetList[userdomain.Role](ctx, r.api, pathRoles, gateway.Public())
}

func (r *RemoteRepository) ListLevels(ctx context.Context) ([]domain.Level, error) {
	return gateway.GetList[domain.Level](ctx, r.api, pathLevels, gateway.Public())
}

func (r *RemoteRepository) ListFaculties(ctx context.Context) ([]domain.Faculty, error) {
	return gateway.GetList[domain.Faculty](ctx, r.api, pathFaculties)
}

func (r *RemoteRepository) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	return gateway.GetList[domain.Department](ctx, r.api, pathDepartments)
}

func (r *RemoteRepository) ListTracks(ctx context.Context) ([]domain.Track, error) {
	return gateway.GetList[domain.Track](ctx, r.api, pathTracks)
}
