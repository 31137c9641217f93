// Package domain defines the client session snapshot shared with the rest of the application.
package domain

import (
	userdomain "koursa/client/internal/user/domain"
)

// Session is an immutable snapshot of the authenticated identity. A new value is published on
// every change; holders never see partial updates.
type Session struct {
	User         *userdomain.User
	AccessToken  string
	RefreshToken string
	// Loading is true only until the first Restore completes.
	Loading bool
}

// IsAuthenticated is true iff both a user and an access token are present.
func (s Session) IsAuthenticated() bool {
	return s.User != nil && s.AccessToken != ""
}

// UserID returns the current user's id, or 0 when anonymous.
func (s Session) UserID() int64 {
	if s.User == nil {
		return 0
	}
	return s.User.ID
}

// Empty is the signed-out session.
func Empty() Session { return Session{} }
