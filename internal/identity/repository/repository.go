package repository

import (
	"context"

	"koursa/client/internal/identity/domain"
)

// Repository is the remote authentication API.
type Repository interface {
	// ObtainToken exchanges credentials for a token pair and the user profile.
	ObtainToken(ctx context.Context, creds domain.Credentials) (*domain.TokenPair, error)
	// RefreshToken exchanges a refresh token for a new access token.
	RefreshToken(ctx context.Context, refreshToken string) (*domain.RefreshResponse, error)
	// ConfirmPassword re-authenticates the current user and returns a one-time validation token.
	ConfirmPassword(ctx context.Context, password string) (string, error)
	// RegisterPushToken records the device push-notification token for the current user.
	RegisterPushToken(ctx context.Context, token string) error
}
