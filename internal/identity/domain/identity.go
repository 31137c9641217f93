// Package domain holds the authentication payloads exchanged with the Koursa auth endpoints.
package domain

import (
	userdomain "koursa/client/internal/user/domain"
)

// Credentials is the body of POST /auth/token/.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenPair is the response of a successful login: both tokens and the user profile.
type TokenPair struct {
	Access  string           `json:"access"`
	Refresh string           `json:"refresh"`
	User    *userdomain.User `json:"user"`
}

// RefreshRequest is the body of POST /auth/token/refresh/.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// RefreshResponse carries the new access token. Refresh is set only when the backend rotates refresh tokens.
type RefreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// ValidationGrant is the short-lived one-time token returned by confirm-password, required to validate a fiche.
type ValidationGrant struct {
	Token string `json:"validation_token"`
}
