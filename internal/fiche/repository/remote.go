package repository

import (
	"context"
	"fmt"

	"koursa/client/internal/fiche/domain"
	"koursa/client/internal/gateway"
)

const pathFiches = "/teaching/fiches-suivi/"

// RemoteRepository implements Repository over the API gateway.
type RemoteRepository struct {
	api *gateway.Client
}

// NewRemoteRepository returns a fiche repository backed by api.
func NewRemoteRepository(api *gateway.Client) *RemoteRepository {
	return &RemoteRepository{api: api}
}

func (r *RemoteRepository) List(ctx context.Context) ([]domain.Fiche, error) {
	return r.list(ctx, pathFiches)
}

func (r *RemoteRepository) ListPending(ctx context.Context) ([]domain.Fiche, error) {
	return r.list(ctx, pathFiches+"en-attente/")
}

func (r *RemoteRepository) GetByID(ctx context.Context, id int64) (*domain.Fiche, error) {
	var f domain.Fiche
	if err := r.api.Get(ctx, fichePath(id, ""), &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *RemoteRepository) Create(ctx context.Context, req domain.CreateRequest) (*domain.Fiche, error) {
	var f domain.Fiche
	if err := r.api.Post(ctx, pathFiches, req, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *RemoteRepository) Validate(ctx context.Context, id int64, validationToken string) (*domain.Fiche, error) {
	var f domain.Fiche
	body := map[string]string{"validation_token": validationToken}
	if err := r.api.Post(ctx, fichePath(id, "valider/"), body, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *RemoteRepository) Refuse(ctx context.Context, id int64, reason string) (*domain.Fiche, error) {
	var f domain.Fiche
	body := map[string]string{"motif_refus": reason}
	if err := r.api.Post(ctx, fichePath(id, "refuser/"), body, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *RemoteRepository) list(ctx context.Context, path string) ([]domain.Fiche, error) {
	return gateway.GetList[domain.Fiche](ctx, r.api, path)
}

func fichePath(id int64, action string) string {
	return fmt.Sprintf("%s%d/%s", pathFiches, id, action)
}
