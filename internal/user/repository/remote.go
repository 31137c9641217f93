package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"koursa/client/internal/apperror"
	"koursa/client/internal/gateway"
	"koursa/client/internal/user/domain"
)

const (
	pathUsers          = "/users/utilisateurs/"
	pathChangePassword = "/users/utilisateurs/change-password/"
	approveSuffix      = "approuver-delegue/"
)

// RemoteRepository implements Repository over the API gateway.
type RemoteRepository struct {
	api *gateway.Client
}

// NewRemoteRepository returns a user repository backed by api.
func NewRemoteRepository(api *gateway.Client) *RemoteRepository {
	return &RemoteRepository{api: api}
}

// registrationBody accepts both shapes the backend may answer with: the bare user, or
// {"user": {...}, "access": "...", "refresh": "..."}.
type registrationBody struct {
	domain.User
	Nested  *domain.User `json:"user"`
	Access  string       `json:"access"`
	Refresh string       `json:"refresh"`
}

// Create posts the registration. It is a public request.
func (r *RemoteRepository) Create(ctx context.Context, req domain.RegisterRequest) (*domain.Registration, error) {
	var raw json.RawMessage
	if err := r.api.Post(ctx, pathUsers, req, &raw, gateway.Public()); err != nil {
		return nil, err
	}
	var body registrationBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, &apperror.Error{Kind: apperror.KindServer, Message: apperror.MsgUnexpected, Err: err}
	}
	u := body.Nested
	if u == nil {
		flat := body.User
		u = &flat
	}
	return &domain.Registration{User: u, Access: body.Access, Refresh: body.Refresh}, nil
}

// GetByID fetches /users/utilisateurs/{id}/.
func (r *RemoteRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	if err := r.api.Get(ctx, userPath(id), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Update PATCHes /users/utilisateurs/{id}/.
func (r *RemoteRepository) Update(ctx context.Context, id int64, patch domain.ProfilePatch) (*domain.User, error) {
	var u domain.User
	if err := r.api.Patch(ctx, userPath(id), patch, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ChangePassword posts {old_password, new_password}.
func (r *RemoteRepository) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	body := map[string]string{"old_password": oldPassword, "new_password": newPassword}
	return r.api.Post(ctx, pathChangePassword, body, nil)
}

// List fetches /users/utilisateurs/, with ?statut= when status is set.
func (r *RemoteRepository) List(ctx context.Context, status domain.AccountStatus) ([]domain.User, error) {
	var opts []gateway.RequestOption
	if status != "" {
		opts = append(opts, gateway.Query(url.Values{"statut": {string(status)}}))
	}
	return gateway.GetList[domain.User](ctx, r.api, pathUsers, opts...)
}

// SetStatus PATCHes {statut} on /users/utilisateurs/{id}/.
func (r *RemoteRepository) SetStatus(ctx context.Context, id int64, status domain.AccountStatus) (*domain.User, error) {
	var u domain.User
	body := map[string]domain.AccountStatus{"statut": status}
	if err := r.api.Patch(ctx, userPath(id), body, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Approve posts to /users/utilisateurs/{id}/approuver-delegue/.
func (r *RemoteRepository) Approve(ctx context.Context, id int64) error {
	return r.api.Post(ctx, userPath(id)+approveSuffix, nil, nil)
}

func userPath(id int64) string {
	return fmt.Sprintf("%s%d/", pathUsers, id)
}
