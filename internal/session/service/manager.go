// Package service implements the session manager: the only owner and mutator of the client's
// authenticated identity and of the persisted credentials.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"koursa/client/internal/apperror"
	identitydomain "koursa/client/internal/identity/domain"
	"koursa/client/internal/security"
	"koursa/client/internal/session/domain"
	"koursa/client/internal/storage"
	"koursa/client/internal/telemetry"
	userdomain "koursa/client/internal/user/domain"
	"koursa/client/internal/validation"
)

// Sentinel errors. They are wrapped in *apperror.Error where they reach callers.
var (
	// ErrNoRefreshToken is returned by RefreshAccessToken when there is nothing to refresh with.
	ErrNoRefreshToken = errors.New("no refresh token")
	// ErrNotAuthenticated is returned by operations that need a signed-in user.
	ErrNotAuthenticated = errors.New("not authenticated")
)

const (
	eventSource = "session"
	// MsgEmailInUse replaces the backend's email field error on registration.
	MsgEmailInUse = "this email is already in use"
)

// AuthAPI is the subset of the auth repository used by the manager.
type AuthAPI interface {
	ObtainToken(ctx context.Context, creds identitydomain.Credentials) (*identitydomain.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*identitydomain.RefreshResponse, error)
	RegisterPushToken(ctx context.Context, token string) error
}

// UserAPI is the subset of the user repository used by the manager.
type UserAPI interface {
	Create(ctx context.Context, req userdomain.RegisterRequest) (*userdomain.Registration, error)
	Update(ctx context.Context, id int64, patch userdomain.ProfilePatch) (*userdomain.User, error)
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
}

// RegisterResult reports the created account and whether a session was opened for it.
type RegisterResult struct {
	User          *userdomain.User
	Authenticated bool
}

// Manager owns the Session. Mutations (Restore, Login, Register, Logout, RefreshAccessToken,
// UpdateUser) are serialized by mu, held across the network call, so at most one is in flight.
// Snapshot never blocks.
type Manager struct {
	mu     sync.Mutex
	auth   AuthAPI
	users  UserAPI
	store  storage.Store
	events telemetry.EventEmitter
	now    func() time.Time

	current atomic.Pointer[domain.Session]

	subsMu  sync.Mutex
	subs    map[int]func(domain.Session)
	nextSub int
}

// NewManager returns a Manager in the loading state. Call Restore once at startup.
// events may be nil.
func NewManager(auth AuthAPI, users UserAPI, store storage.Store, events telemetry.EventEmitter) *Manager {
	m := &Manager{
		auth:   auth,
		users:  users,
		store:  store,
		events: events,
		now:    time.Now,
		subs:   make(map[int]func(domain.Session)),
	}
	m.current.Store(&domain.Session{Loading: true})
	return m
}

// Snapshot returns the current session value.
func (m *Manager) Snapshot() domain.Session {
	return *m.current.Load()
}

// Subscribe registers fn to receive every new session snapshot, in order. fn runs while the
// mutation that produced the snapshot still holds the session lock, so it must not call Manager
// mutators. It may call the returned unsubscribe func.
func (m *Manager) Subscribe(fn func(domain.Session)) (unsubscribe func()) {
	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subsMu.Unlock()
	return func() {
		m.subsMu.Lock()
		delete(m.subs, id)
		m.subsMu.Unlock()
	}
}

func (m *Manager) publish(s domain.Session) {
	m.current.Store(&s)
	m.subsMu.Lock()
	fns := make([]func(domain.Session), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subsMu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// Restore loads persisted credentials. The session is authenticated only when an access token
// and a decodable user are both stored; otherwise it stays empty, refresh token included. Storage errors degrade to the empty session. Loading
// becomes false and never returns to true. No network call is made.
func (m *Manager) Restore(ctx context.Context) domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := domain.Session{}
	token, tokOK, err := m.store.Get(ctx, storage.KeyAuthToken)
	if err != nil {
		log.Printf("session: restore: read access token: %v", err)
	}
	refresh, _, err := m.store.Get(ctx, storage.KeyRefreshToken)
	if err != nil {
		log.Printf("session: restore: read refresh token: %v", err)
	}
	rawUser, userOK, err := m.store.Get(ctx, storage.KeyUser)
	if err != nil {
		log.Printf("session: restore: read user: %v", err)
	}
	if tokOK && token != "" && userOK {
		var u userdomain.User
		if err := json.Unmarshal([]byte(rawUser), &u); err != nil {
			log.Printf("session: restore: stored user is not valid JSON: %v", err)
		} else if err := u.Validate(); err != nil {
			log.Printf("session: restore: stored user rejected: %v", err)
		} else {
			next.User = &u
			next.AccessToken = token
			next.RefreshToken = refresh
		}
	}
	m.publish(next)
	return next
}

// Login exchanges credentials for tokens, persists them with the user, and opens the session.
// Blank input fails locally. On failure the session is left unchanged.
func (m *Manager) Login(ctx context.Context, email, password string) (*userdomain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperror.Validation("email", "email is required")
	}
	if strings.TrimSpace(password) == "" {
		return nil, apperror.Validation("password", "password is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pair, err := m.auth.ObtainToken(ctx, identitydomain.Credentials{Email: email, Password: password})
	if err == nil {
		err = pair.User.Validate()
		if err != nil {
			err = &apperror.Error{Kind: apperror.KindServer, Message: apperror.MsgUnexpected, Err: err}
		}
	}
	if err != nil {
		m.emit(ctx, telemetry.NewEvent(telemetry.EventLoginFailure, eventSource, 0,
			map[string]string{"kind": apperror.KindOf(err).String()}))
		return nil, err
	}
	if err := m.openSession(ctx, pair.User, pair.Access, pair.Refresh); err != nil {
		return nil, err
	}
	m.emit(ctx, telemetry.NewEvent(telemetry.EventLoginSuccess, eventSource, pair.User.ID, nil))
	return pair.User, nil
}

// Register validates the form locally, creates the account, and opens a session only when the
// backend returned tokens for an ACTIVE account. Pending accounts are returned unauthenticated.
func (m *Manager) Register(ctx context.Context, form userdomain.RegisterForm) (*RegisterResult, error) {
	form.Email = strings.TrimSpace(form.Email)
	if err := validation.Struct(form); err != nil {
		return nil, err
	}
	if form.Role.ID <= 0 {
		return nil, apperror.Validation("role", "role is required")
	}
	if form.NeedsLevel() && form.RepresentedLevel <= 0 {
		return nil, apperror.Validation("niveau_represente", "a representative must select the level they represent")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	reg, err := m.users.Create(ctx, form.Request())
	if err != nil {
		var ae *apperror.Error
		if errors.As(err, &ae) && ae.Kind == apperror.KindConflict && ae.Field == "email" {
			ae.Message = MsgEmailInUse
		}
		return nil, err
	}
	res := &RegisterResult{User: reg.User}
	if reg.Access == "" || !reg.User.IsActive() || reg.User.Validate() != nil {
		return res, nil
	}
	if err := m.openSession(ctx, reg.User, reg.Access, reg.Refresh); err != nil {
		return nil, err
	}
	res.Authenticated = true
	m.emit(ctx, telemetry.NewEvent(telemetry.EventLoginSuccess, eventSource, reg.User.ID,
		map[string]string{"via": "register"}))
	return res, nil
}

// Logout clears the persisted credentials and resets the session. It cannot fail: storage errors
// are logged and the in-memory session is reset regardless.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logoutLocked(ctx, "user")
}

func (m *Manager) logoutLocked(ctx context.Context, reason string) {
	userID := m.Snapshot().UserID()
	if err := m.store.Delete(context.WithoutCancel(ctx), storage.SessionKeys...); err != nil {
		log.Printf("session: logout: clear store: %v", err)
	}
	m.publish(domain.Empty())
	m.emit(ctx, telemetry.NewEvent(telemetry.EventLogout, eventSource, userID, map[string]string{"reason": reason}))
}

// RefreshAccessToken exchanges the refresh token for a new access token and replaces only the
// access token. Without a refresh token it returns ErrNoRefreshToken and changes nothing. Any
// other failure logs the user out before the classified error is returned.
func (m *Manager) RefreshAccessToken(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx)
}

func (m *Manager) refreshLocked(ctx context.Context) error {
	cur := m.Snapshot()
	refresh := cur.RefreshToken
	if refresh == "" {
		stored, ok, err := m.store.Get(ctx, storage.KeyRefreshToken)
		if err != nil {
			log.Printf("session: refresh: read refresh token: %v", err)
		}
		if ok {
			refresh = stored
		}
	}
	if refresh == "" {
		return ErrNoRefreshToken
	}

	resp, err := m.auth.RefreshToken(ctx, refresh)
	if err == nil {
		err = m.store.Set(ctx, storage.KeyAuthToken, resp.Access)
		if err == nil && resp.Refresh != "" {
			err = m.store.Set(ctx, storage.KeyRefreshToken, resp.Refresh)
		}
		if err == nil && cur.User != nil {
			// A 401 seen by the gateway may have removed the stored user.
			err = m.persistUser(ctx, cur.User)
		}
		if err != nil {
			err = &apperror.Error{Kind: apperror.KindServer, Message: apperror.MsgUnexpected, Err: fmt.Errorf("persist refreshed token: %w", err)}
		}
	}
	if err != nil {
		log.Printf("session: refresh failed, logging out: %v", err)
		m.emit(ctx, telemetry.NewEvent(telemetry.EventTokenRefreshFailed, eventSource, cur.UserID(),
			map[string]string{"kind": apperror.KindOf(err).String()}))
		m.logoutLocked(ctx, "refresh_failed")
		return err
	}

	next := cur
	next.AccessToken = resp.Access
	next.RefreshToken = refresh
	if resp.Refresh != "" {
		next.RefreshToken = resp.Refresh
	}
	next.Loading = false
	m.publish(next)
	m.emit(ctx, telemetry.NewEvent(telemetry.EventTokenRefreshed, eventSource, cur.UserID(), nil))
	return nil
}

// EnsureFreshToken refreshes the access token when its exp claim falls within skew of now.
// Tokens that are not JWTs, or carry no exp, are left alone.
func (m *Manager) EnsureFreshToken(ctx context.Context, skew time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.Snapshot()
	if cur.AccessToken == "" {
		return notAuthenticated()
	}
	exp, ok := security.TokenExpiry(cur.AccessToken)
	if !ok || exp.Sub(m.now()) > skew {
		return nil
	}
	return m.refreshLocked(ctx)
}

// UpdateUser replaces the profile in memory and in the store. Tokens are untouched.
func (m *Manager) UpdateUser(ctx context.Context, u *userdomain.User) error {
	if err := u.Validate(); err != nil {
		return apperror.Validation("user", err.Error())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateUserLocked(ctx, u)
}

func (m *Manager) updateUserLocked(ctx context.Context, u *userdomain.User) error {
	if err := m.persistUser(ctx, u); err != nil {
		return &apperror.Error{Kind: apperror.KindServer, Message: apperror.MsgUnexpected, Err: err}
	}
	next := m.Snapshot()
	cp := *u
	next.User = &cp
	m.publish(next)
	return nil
}

// UpdateProfile sends a partial profile update for the current user, then stores the result.
func (m *Manager) UpdateProfile(ctx context.Context, patch userdomain.ProfilePatch) (*userdomain.User, error) {
	if patch.Empty() {
		return nil, apperror.Validation("", "nothing to update")
	}
	if err := validation.Struct(patch); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.Snapshot()
	if !cur.IsAuthenticated() {
		return nil, notAuthenticated()
	}
	u, err := m.users.Update(ctx, cur.User.ID, patch)
	if err != nil {
		return nil, err
	}
	if err := m.updateUserLocked(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ChangePassword checks the form locally then asks the backend to change the password.
// The session is unaffected.
func (m *Manager) ChangePassword(ctx context.Context, change userdomain.PasswordChange) error {
	if err := validation.Struct(change); err != nil {
		return err
	}
	if !m.Snapshot().IsAuthenticated() {
		return notAuthenticated()
	}
	return m.users.ChangePassword(ctx, change.OldPassword, change.NewPassword)
}

// RegisterPushToken records the device push token for the signed-in user.
func (m *Manager) RegisterPushToken(ctx context.Context, token string) error {
	if err := validation.Required("fcm_token", token); err != nil {
		return err
	}
	if !m.Snapshot().IsAuthenticated() {
		return notAuthenticated()
	}
	return m.auth.RegisterPushToken(ctx, strings.TrimSpace(token))
}

// openSession persists all three keys and publishes the authenticated session. On a storage
// failure the partial write is rolled back and the session is left unchanged.
func (m *Manager) openSession(ctx context.Context, u *userdomain.User, access, refresh string) error {
	err := m.store.Set(ctx, storage.KeyAuthToken, access)
	if err == nil {
		if refresh != "" {
			err = m.store.Set(ctx, storage.KeyRefreshToken, refresh)
		} else {
			err = m.store.Delete(ctx, storage.KeyRefreshToken)
		}
	}
	if err == nil {
		err = m.persistUser(ctx, u)
	}
	if err != nil {
		if derr := m.store.Delete(context.WithoutCancel(ctx), storage.SessionKeys...); derr != nil {
			log.Printf("session: roll back partial session write: %v", derr)
		}
		return &apperror.Error{Kind: apperror.KindServer, Message: apperror.MsgUnexpected, Err: fmt.Errorf("persist session: %w", err)}
	}
	cp := *u
	m.publish(domain.Session{User: &cp, AccessToken: access, RefreshToken: refresh})
	return nil
}

func (m *Manager) persistUser(ctx context.Context, u *userdomain.User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, storage.KeyUser, string(b))
}

func (m *Manager) emit(ctx context.Context, ev *telemetry.Event) {
	if m.events == nil {
		return
	}
	telemetry.EmitAsync(m.events, ctx, ev)
}

func notAuthenticated() error {
	return &apperror.Error{Kind: apperror.KindAuthentication, Message: apperror.MsgSessionExpired, Err: ErrNotAuthenticated}
}
