// Package storage provides the persisted key-value store that holds the session
// credentials across process restarts.
package storage

import "context"

// Persisted session keys.
const (
	KeyAuthToken    = "authToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
)

// SessionKeys lists every key owned by the session manager.
var SessionKeys = []string{KeyAuthToken, KeyRefreshToken, KeyUser}

// Store is a string key-value store. Only the session manager writes to it;
// the gateway reads the access token and deletes on 401.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key.
	Set(ctx context.Context, key, value string) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}
