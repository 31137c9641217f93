package repository

import (
	"context"
	"errors"
	"fmt"

	"koursa/client/internal/apperror"
	"koursa/client/internal/gateway"
	"koursa/client/internal/identity/domain"
)

const (
	pathToken           = "/auth/token/"
	pathTokenRefresh    = "/auth/token/refresh/"
	pathConfirmPassword = "/users/utilisateurs/confirm-password/"
	pathPushToken       = "/users/utilisateurs/register-fcm-token/"
)

// errIncompleteResponse marks a 2xx response missing a required field.
var errIncompleteResponse = errors.New("incomplete auth response")

// RemoteRepository implements Repository over the API gateway.
type RemoteRepository struct {
	api *gateway.Client
}

// NewRemoteRepository returns an auth repository backed by api.
func NewRemoteRepository(api *gateway.Client) *RemoteRepository {
	return &RemoteRepository{api: api}
}

// ObtainToken posts credentials to /auth/token/. A 401 is reported with the invalid-credentials message.
func (r *RemoteRepository) ObtainToken(ctx context.Context, creds domain.Credentials) (*domain.TokenPair, error) {
	var pair domain.TokenPair
	if err := r.api.Post(ctx, pathToken, creds, &pair, gateway.Public()); err != nil {
		var ae *apperror.Error
		if errors.As(err, &ae) && ae.Kind == apperror.KindAuthentication {
			ae.Message = apperror.MsgInvalidCredentials
		}
		return nil, err
	}
	if pair.Access == "" || pair.User == nil {
		return nil, incomplete("login")
	}
	return &pair, nil
}

// RefreshToken posts the refresh token to /auth/token/refresh/.
func (r *RemoteRepository) RefreshToken(ctx context.Context, refreshToken string) (*domain.RefreshResponse, error) {
	var resp domain.RefreshResponse
	if err := r.api.Post(ctx, pathTokenRefresh, domain.RefreshRequest{Refresh: refreshToken}, &resp, gateway.Public()); err != nil {
		return nil, err
	}
	if resp.Access == "" {
		return nil, incomplete("refresh")
	}
	return &resp, nil
}

// ConfirmPassword posts the current password and returns the validation token.
func (r *RemoteRepository) ConfirmPassword(ctx context.Context, password string) (string, error) {
	var grant domain.ValidationGrant
	if err := r.api.Post(ctx, pathConfirmPassword, map[string]string{"password": password}, &grant); err != nil {
		return "", err
	}
	if grant.Token == "" {
		return "", incomplete("confirm-password")
	}
	return grant.Token, nil
}

// RegisterPushToken posts the FCM token.
func (r *RemoteRepository) RegisterPushToken(ctx context.Context, token string) error {
	return r.api.Post(ctx, pathPushToken, map[string]string{"fcm_token": token}, nil)
}

func incomplete(op string) error {
	return &apperror.Error{Kind: apperror.KindServer, Message: apperror.MsgUnexpected, Err: fmt.Errorf("%s: %w", op, errIncompleteResponse)}
}
