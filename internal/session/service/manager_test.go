package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"koursa/client/internal/apperror"
	identitydomain "koursa/client/internal/identity/domain"
	"koursa/client/internal/security"
	"koursa/client/internal/session/domain"
	"koursa/client/internal/storage"
	userdomain "koursa/client/internal/user/domain"
)

// memAuth is a scripted AuthAPI.
type memAuth struct {
	mu         sync.Mutex
	pair       *identitydomain.TokenPair
	loginErr   error
	refresh    *identitydomain.RefreshResponse
	refreshErr error
	pushErr    error

	loginCalls, refreshCalls, pushCalls int
	inFlight, maxInFlight               int32
	delay                               time.Duration
	lastRefresh                         string
}

func (a *memAuth) enter() func() {
	n := atomic.AddInt32(&a.inFlight, 1)
	for {
		m := atomic.LoadInt32(&a.maxInFlight)
		if n <= m || atomic.CompareAndSwapInt32(&a.maxInFlight, m, n) {
			break
		}
	}
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	return func() { atomic.AddInt32(&a.inFlight, -1) }
}

func (a *memAuth) ObtainToken(ctx context.Context, creds identitydomain.Credentials) (*identitydomain.TokenPair, error) {
	defer a.enter()()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loginCalls++
	if a.loginErr != nil {
		return nil, a.loginErr
	}
	return a.pair, nil
}

func (a *memAuth) RefreshToken(ctx context.Context, refreshToken string) (*identitydomain.RefreshResponse, error) {
	defer a.enter()()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshCalls++
	a.lastRefresh = refreshToken
	if a.refreshErr != nil {
		return nil, a.refreshErr
	}
	return a.refresh, nil
}

func (a *memAuth) RegisterPushToken(ctx context.Context, token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pushCalls++
	return a.pushErr
}

// memUsers is a scripted UserAPI.
type memUsers struct {
	reg         *userdomain.Registration
	createErr   error
	createCalls int
	lastCreate  userdomain.RegisterRequest
	updated     *userdomain.User
	pwCalls     int
}

func (u *memUsers) Create(ctx context.Context, req userdomain.RegisterRequest) (*userdomain.Registration, error) {
	u.createCalls++
	u.lastCreate = req
	if u.createErr != nil {
		return nil, u.createErr
	}
	return u.reg, nil
}

func (u *memUsers) Update(ctx context.Context, id int64, patch userdomain.ProfilePatch) (*userdomain.User, error) {
	out := *u.updated
	out.ID = id
	return &out, nil
}

func (u *memUsers) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	u.pwCalls++
	return nil
}

// brokenStore fails every operation.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("store unavailable")
}
func (brokenStore) Set(context.Context, string, string) error { return errors.New("store unavailable") }
func (brokenStore) Delete(context.Context, ...string) error   { return errors.New("store unavailable") }

func instructor() *userdomain.User {
	return &userdomain.User{
		ID: 9, Email: "prof@koursa.cm", FirstName: "Ada", LastName: "N.",
		Status: userdomain.AccountStatusActive,
		Roles:  []userdomain.Role{{ID: 2, Name: userdomain.RoleInstructor}},
	}
}

func loggedIn(t *testing.T, auth *memAuth, store storage.Store) *Manager {
	t.Helper()
	if auth.pair == nil {
		auth.pair = &identitydomain.TokenPair{Access: "acc-1", Refresh: "ref-1", User: instructor()}
	}
	m := NewManager(auth, &memUsers{}, store, nil)
	m.Restore(context.Background())
	if _, err := m.Login(context.Background(), "prof@koursa.cm", "secret123"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	return m
}

func storedKeys(t *testing.T, s storage.Store) map[string]string {
	t.Helper()
	out := map[string]string{}
	for _, k := range storage.SessionKeys {
		v, ok, err := s.Get(context.Background(), k)
		if err != nil {
			t.Fatalf("Get %s: %v", k, err)
		}
		if ok {
			out[k] = v
		}
	}
	return out
}

func TestNewManager_StartsLoading(t *testing.T) {
	m := NewManager(&memAuth{}, &memUsers{}, storage.NewMemoryStore(), nil)
	if !m.Snapshot().Loading {
		t.Fatal("session should be loading before Restore")
	}
	if m.Snapshot().IsAuthenticated() {
		t.Fatal("fresh session must not be authenticated")
	}
}

func TestRestore_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	raw, _ := json.Marshal(instructor())
	_ = store.Set(ctx, storage.KeyAuthToken, "acc-1")
	_ = store.Set(ctx, storage.KeyRefreshToken, "ref-1")
	_ = store.Set(ctx, storage.KeyUser, string(raw))

	m := NewManager(&memAuth{}, &memUsers{}, store, nil)
	first := m.Restore(ctx)
	second := m.Restore(ctx)

	if !first.IsAuthenticated() || first.Loading {
		t.Fatalf("first restore = %+v", first)
	}
	if first.AccessToken != second.AccessToken || first.RefreshToken != second.RefreshToken ||
		first.User.ID != second.User.ID || second.Loading {
		t.Errorf("restore not idempotent: %+v vs %+v", first, second)
	}
}

func TestRestore_Incomplete(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		token string
		user  string
	}{
		{"nothing stored", "", ""},
		{"token without user", "acc-1", ""},
		{"user without token", "", `{"id":9,"email":"prof@koursa.cm"}`},
		{"corrupt user", "acc-1", `{"id":`},
		{"user without id", "acc-1", `{"email":"x@y.z"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			if tt.token != "" {
				_ = store.Set(ctx, storage.KeyAuthToken, tt.token)
			}
			if tt.user != "" {
				_ = store.Set(ctx, storage.KeyUser, tt.user)
			}
			s := NewManager(&memAuth{}, &memUsers{}, store, nil).Restore(ctx)
			if s.IsAuthenticated() || s.Loading {
				t.Errorf("session = %+v, want unauthenticated and loaded", s)
			}
		})
	}
}

func TestRestore_UnauthenticatedKeepsSessionEmpty(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_ = store.Set(ctx, storage.KeyRefreshToken, "ref-orphan")
	auth := &memAuth{refresh: &identitydomain.RefreshResponse{Access: "acc-9"}}
	m := NewManager(auth, &memUsers{}, store, nil)

	s := m.Restore(ctx)
	if s != (domain.Session{}) {
		t.Fatalf("session = %+v, want empty", s)
	}
	// The stored refresh token is still usable.
	if err := m.RefreshAccessToken(ctx); err != nil {
		t.Fatalf("RefreshAccessToken: %v", err)
	}
	if auth.lastRefresh != "ref-orphan" {
		t.Errorf("refreshed with %q, want the stored token", auth.lastRefresh)
	}
}

func TestRestore_StoreFailure(t *testing.T) {
	s := NewManager(&memAuth{}, &memUsers{}, brokenStore{}, nil).Restore(context.Background())
	if s.IsAuthenticated() || s.Loading {
		t.Errorf("session = %+v, want empty", s)
	}
}

func TestLogin_RoundTripThroughRestore(t *testing.T) {
	store := storage.NewMemoryStore()
	m := loggedIn(t, &memAuth{}, store)

	s := m.Snapshot()
	if !s.IsAuthenticated() || s.AccessToken != "acc-1" || s.RefreshToken != "ref-1" {
		t.Fatalf("after login = %+v", s)
	}
	keys := storedKeys(t, store)
	if keys[storage.KeyAuthToken] != "acc-1" || keys[storage.KeyRefreshToken] != "ref-1" || keys[storage.KeyUser] == "" {
		t.Fatalf("persisted = %v", keys)
	}

	restored := NewManager(&memAuth{}, &memUsers{}, store, nil).Restore(context.Background())
	if !restored.IsAuthenticated() || restored.User.ID != 9 || restored.AccessToken != "acc-1" {
		t.Errorf("restored = %+v", restored)
	}
	if !restored.User.HasRole(userdomain.RoleInstructor) {
		t.Error("roles should survive the round trip")
	}
}

func TestLogin_BlankInputSkipsNetwork(t *testing.T) {
	auth := &memAuth{}
	m := NewManager(auth, &memUsers{}, storage.NewMemoryStore(), nil)
	for _, tc := range []struct{ email, password, field string }{
		{"", "secret", "email"},
		{"   ", "secret", "email"},
		{"a@b.c", "", "password"},
		{"a@b.c", "  ", "password"},
	} {
		_, err := m.Login(context.Background(), tc.email, tc.password)
		var ae *apperror.Error
		if !errors.As(err, &ae) || ae.Kind != apperror.KindValidation || ae.Field != tc.field {
			t.Errorf("Login(%q, %q) = %v, want validation on %s", tc.email, tc.password, err, tc.field)
		}
	}
	if auth.loginCalls != 0 {
		t.Errorf("network called %d times", auth.loginCalls)
	}
}

func TestLogin_FailureLeavesSessionUnchanged(t *testing.T) {
	store := storage.NewMemoryStore()
	auth := &memAuth{loginErr: &apperror.Error{Kind: apperror.KindAuthentication, Message: apperror.MsgInvalidCredentials}}
	m := NewManager(auth, &memUsers{}, store, nil)
	m.Restore(context.Background())

	_, err := m.Login(context.Background(), "prof@koursa.cm", "bad")
	if !apperror.IsKind(err, apperror.KindAuthentication) || apperror.Message(err) != apperror.MsgInvalidCredentials {
		t.Fatalf("err = %v", err)
	}
	if m.Snapshot().IsAuthenticated() || len(storedKeys(t, store)) != 0 {
		t.Error("failed login must not open a session")
	}
}

func TestLogin_StoreFailureRollsBack(t *testing.T) {
	auth := &memAuth{pair: &identitydomain.TokenPair{Access: "a", Refresh: "r", User: instructor()}}
	m := NewManager(auth, &memUsers{}, brokenStore{}, nil)
	m.Restore(context.Background())
	if _, err := m.Login(context.Background(), "prof@koursa.cm", "secret123"); err == nil {
		t.Fatal("Login should fail when the session cannot be persisted")
	}
	if m.Snapshot().IsAuthenticated() {
		t.Error("session must stay unauthenticated")
	}
}

func TestLogout_Total(t *testing.T) {
	store := storage.NewMemoryStore()
	m := loggedIn(t, &memAuth{}, store)
	m.Logout(context.Background())
	if m.Snapshot().IsAuthenticated() || m.Snapshot().RefreshToken != "" {
		t.Errorf("after logout = %+v", m.Snapshot())
	}
	if keys := storedKeys(t, store); len(keys) != 0 {
		t.Errorf("store after logout = %v", keys)
	}
}

type switchableStore struct {
	storage.Store
	broken atomic.Bool
}

func (s *switchableStore) Delete(ctx context.Context, keys ...string) error {
	if s.broken.Load() {
		return errors.New("disk full")
	}
	return s.Store.Delete(ctx, keys...)
}

func TestLogout_StoreFailureStillResetsMemory(t *testing.T) {
	store := &switchableStore{Store: storage.NewMemoryStore()}
	m := loggedIn(t, &memAuth{}, store)
	store.broken.Store(true)

	m.Logout(context.Background())
	if m.Snapshot().IsAuthenticated() || m.Snapshot().User != nil {
		t.Errorf("in-memory session must be reset even when the store fails: %+v", m.Snapshot())
	}
}

func TestRefresh_ReplacesOnlyAccessToken(t *testing.T) {
	store := storage.NewMemoryStore()
	auth := &memAuth{refresh: &identitydomain.RefreshResponse{Access: "acc-2"}}
	m := loggedIn(t, auth, store)
	before := m.Snapshot()

	if err := m.RefreshAccessToken(context.Background()); err != nil {
		t.Fatalf("RefreshAccessToken: %v", err)
	}
	after := m.Snapshot()
	if after.AccessToken != "acc-2" || after.RefreshToken != before.RefreshToken || after.User.ID != before.User.ID {
		t.Errorf("after refresh = %+v", after)
	}
	if auth.lastRefresh != "ref-1" {
		t.Errorf("refresh sent %q", auth.lastRefresh)
	}
	keys := storedKeys(t, store)
	if keys[storage.KeyAuthToken] != "acc-2" || keys[storage.KeyRefreshToken] != "ref-1" {
		t.Errorf("persisted = %v", keys)
	}
}

func TestRefresh_RotatedRefreshToken(t *testing.T) {
	store := storage.NewMemoryStore()
	auth := &memAuth{refresh: &identitydomain.RefreshResponse{Access: "acc-2", Refresh: "ref-2"}}
	m := loggedIn(t, auth, store)
	if err := m.RefreshAccessToken(context.Background()); err != nil {
		t.Fatalf("RefreshAccessToken: %v", err)
	}
	if m.Snapshot().RefreshToken != "ref-2" || storedKeys(t, store)[storage.KeyRefreshToken] != "ref-2" {
		t.Error("rotated refresh token should be kept")
	}
}

func TestRefresh_NoRefreshToken(t *testing.T) {
	store := storage.NewMemoryStore()
	auth := &memAuth{pair: &identitydomain.TokenPair{Access: "acc-1", User: instructor()}}
	m := loggedIn(t, auth, store)
	before := m.Snapshot()

	err := m.RefreshAccessToken(context.Background())
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("err = %v, want ErrNoRefreshToken", err)
	}
	if auth.refreshCalls != 0 {
		t.Error("no network call expected")
	}
	if m.Snapshot().AccessToken != before.AccessToken || !m.Snapshot().IsAuthenticated() {
		t.Error("session must be untouched")
	}
}

func TestRefresh_FailureCascadesToLogout(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
	}{
		{"rejected", &apperror.Error{Kind: apperror.KindAuthentication, Message: "Token is invalid or expired"}},
		{"network", apperror.Network(errors.New("connection refused"))},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			auth := &memAuth{refreshErr: tc.err}
			m := loggedIn(t, auth, store)

			err := m.RefreshAccessToken(context.Background())
			if apperror.KindOf(err) != apperror.KindOf(tc.err) {
				t.Fatalf("err = %v, want %v", err, tc.err)
			}
			if m.Snapshot().IsAuthenticated() {
				t.Error("failed refresh must log out")
			}
			if keys := storedKeys(t, store); len(keys) != 0 {
				t.Errorf("store after failed refresh = %v", keys)
			}
		})
	}
}

func TestRefresh_UsesStoredTokenAfterGateway401(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_ = store.Set(ctx, storage.KeyRefreshToken, "ref-stored")
	auth := &memAuth{refresh: &identitydomain.RefreshResponse{Access: "acc-new"}}
	m := NewManager(auth, &memUsers{}, store, nil)
	m.current.Store(&domain.Session{User: instructor(), AccessToken: "acc-old"})

	if err := m.RefreshAccessToken(ctx); err != nil {
		t.Fatalf("RefreshAccessToken: %v", err)
	}
	if auth.lastRefresh != "ref-stored" {
		t.Errorf("refresh sent %q", auth.lastRefresh)
	}
	keys := storedKeys(t, store)
	if keys[storage.KeyUser] == "" {
		t.Error("user should be re-persisted after a successful refresh")
	}
}

func TestEnsureFreshToken(t *testing.T) {
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatal(err)
	}
	fresh, _, _ := tokens.IssueAccess(9, nil)

	tests := []struct {
		name        string
		access      string
		skew        time.Duration
		wantRefresh bool
	}{
		{"far from expiry", fresh, 30 * time.Second, false},
		{"inside skew", fresh, time.Hour, true},
		{"opaque token", "opaque-token", time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &memAuth{
				pair:    &identitydomain.TokenPair{Access: tt.access, Refresh: "ref-1", User: instructor()},
				refresh: &identitydomain.RefreshResponse{Access: "acc-2"},
			}
			m := loggedIn(t, auth, storage.NewMemoryStore())
			if err := m.EnsureFreshToken(context.Background(), tt.skew); err != nil {
				t.Fatalf("EnsureFreshToken: %v", err)
			}
			if got := auth.refreshCalls == 1; got != tt.wantRefresh {
				t.Errorf("refreshed = %v, want %v", got, tt.wantRefresh)
			}
		})
	}

	m := NewManager(&memAuth{}, &memUsers{}, storage.NewMemoryStore(), nil)
	m.Restore(context.Background())
	if err := m.EnsureFreshToken(context.Background(), time.Minute); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("anonymous EnsureFreshToken = %v", err)
	}
}

func registerForm() userdomain.RegisterForm {
	return userdomain.RegisterForm{
		Email: "rep@koursa.cm", Password: "longenough", PasswordConfirm: "longenough",
		FirstName: "Joe", LastName: "B", Role: userdomain.Role{ID: 1, Name: userdomain.RoleRepresentative},
		RepresentedLevel: 3,
	}
}

func TestRegister_LocalValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*userdomain.RegisterForm)
		field  string
	}{
		{"bad email", func(f *userdomain.RegisterForm) { f.Email = "nope" }, "email"},
		{"short password", func(f *userdomain.RegisterForm) { f.Password, f.PasswordConfirm = "short", "short" }, "password"},
		{"mismatch", func(f *userdomain.RegisterForm) { f.PasswordConfirm = "different1" }, "password_confirm"},
		{"blank first name", func(f *userdomain.RegisterForm) { f.FirstName = " " }, "first_name"},
		{"no role", func(f *userdomain.RegisterForm) { f.Role = userdomain.Role{} }, "role"},
		{"representative without level", func(f *userdomain.RegisterForm) { f.RepresentedLevel = 0 }, "niveau_represente"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &memUsers{}
			m := NewManager(&memAuth{}, users, storage.NewMemoryStore(), nil)
			form := registerForm()
			tt.mutate(&form)
			_, err := m.Register(context.Background(), form)
			var ae *apperror.Error
			if !errors.As(err, &ae) || ae.Kind != apperror.KindValidation || ae.Field != tt.field {
				t.Fatalf("err = %v, want validation on %s", err, tt.field)
			}
			if users.createCalls != 0 {
				t.Error("validation failure must not reach the network")
			}
		})
	}
}

func TestRegister_PendingAccountNotAuthenticated(t *testing.T) {
	pending := &userdomain.User{ID: 4, Email: "rep@koursa.cm", Status: userdomain.AccountStatusPending}
	users := &memUsers{reg: &userdomain.Registration{User: pending, Access: "acc", Refresh: "ref"}}
	store := storage.NewMemoryStore()
	m := NewManager(&memAuth{}, users, store, nil)
	m.Restore(context.Background())

	res, err := m.Register(context.Background(), registerForm())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Authenticated || m.Snapshot().IsAuthenticated() || len(storedKeys(t, store)) != 0 {
		t.Error("pending account must not open a session")
	}
	if users.lastCreate.RepresentedLevel == nil || *users.lastCreate.RepresentedLevel != 3 {
		t.Error("representative level should be sent")
	}
	if len(users.lastCreate.RoleIDs) != 1 || users.lastCreate.RoleIDs[0] != 1 {
		t.Errorf("roles_ids = %v", users.lastCreate.RoleIDs)
	}
}

func TestRegister_ActiveWithTokensAuthenticates(t *testing.T) {
	active := &userdomain.User{ID: 4, Email: "rep@koursa.cm", Status: userdomain.AccountStatusActive}
	users := &memUsers{reg: &userdomain.Registration{User: active, Access: "acc", Refresh: "ref"}}
	m := NewManager(&memAuth{}, users, storage.NewMemoryStore(), nil)
	m.Restore(context.Background())

	res, err := m.Register(context.Background(), registerForm())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !res.Authenticated || m.Snapshot().UserID() != 4 {
		t.Errorf("res = %+v, session = %+v", res, m.Snapshot())
	}
}

func TestRegister_EmailConflict(t *testing.T) {
	users := &memUsers{createErr: &apperror.Error{Kind: apperror.KindConflict, Field: "email", Message: "email: exists"}}
	m := NewManager(&memAuth{}, users, storage.NewMemoryStore(), nil)
	_, err := m.Register(context.Background(), registerForm())
	if !apperror.IsKind(err, apperror.KindConflict) || apperror.Message(err) != MsgEmailInUse {
		t.Errorf("err = %v", err)
	}
}

func TestUpdateUser_KeepsTokens(t *testing.T) {
	store := storage.NewMemoryStore()
	m := loggedIn(t, &memAuth{}, store)
	u := instructor()
	u.FirstName = "Grace"
	if err := m.UpdateUser(context.Background(), u); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	s := m.Snapshot()
	if s.User.FirstName != "Grace" || s.AccessToken != "acc-1" || s.RefreshToken != "ref-1" {
		t.Errorf("after UpdateUser = %+v", s)
	}
	u.FirstName = "mutated"
	if m.Snapshot().User.FirstName != "Grace" {
		t.Error("session must not alias the caller's user")
	}
	var stored userdomain.User
	_ = json.Unmarshal([]byte(storedKeys(t, store)[storage.KeyUser]), &stored)
	if stored.FirstName != "Grace" {
		t.Errorf("stored user = %+v", stored)
	}
	if err := m.UpdateUser(context.Background(), nil); !apperror.IsKind(err, apperror.KindValidation) {
		t.Errorf("UpdateUser(nil) = %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	name := "Grace"
	updated := instructor()
	updated.FirstName = name
	users := &memUsers{updated: updated}
	auth := &memAuth{pair: &identitydomain.TokenPair{Access: "acc-1", Refresh: "ref-1", User: instructor()}}
	m := NewManager(auth, users, storage.NewMemoryStore(), nil)
	m.Restore(context.Background())

	if _, err := m.UpdateProfile(context.Background(), userdomain.ProfilePatch{FirstName: &name}); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("anonymous UpdateProfile = %v", err)
	}
	if _, err := m.Login(context.Background(), "prof@koursa.cm", "secret123"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.UpdateProfile(context.Background(), userdomain.ProfilePatch{}); !apperror.IsKind(err, apperror.KindValidation) {
		t.Errorf("empty patch = %v", err)
	}
	bad := "not-an-email"
	if _, err := m.UpdateProfile(context.Background(), userdomain.ProfilePatch{Email: &bad}); !apperror.IsKind(err, apperror.KindValidation) {
		t.Errorf("bad email patch = %v", err)
	}
	u, err := m.UpdateProfile(context.Background(), userdomain.ProfilePatch{FirstName: &name})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if u.FirstName != name || m.Snapshot().User.FirstName != name {
		t.Error("profile update should reach the session")
	}
}

func TestChangePassword(t *testing.T) {
	users := &memUsers{}
	auth := &memAuth{pair: &identitydomain.TokenPair{Access: "acc-1", Refresh: "ref-1", User: instructor()}}
	m := NewManager(auth, users, storage.NewMemoryStore(), nil)
	m.Restore(context.Background())
	_, _ = m.Login(context.Background(), "prof@koursa.cm", "secret123")

	bad := []userdomain.PasswordChange{
		{OldPassword: "", NewPassword: "newsecret1", Confirm: "newsecret1"},
		{OldPassword: "old", NewPassword: "short", Confirm: "short"},
		{OldPassword: "old", NewPassword: "newsecret1", Confirm: "newsecret2"},
	}
	for _, c := range bad {
		if err := m.ChangePassword(context.Background(), c); !apperror.IsKind(err, apperror.KindValidation) {
			t.Errorf("ChangePassword(%+v) = %v", c, err)
		}
	}
	if users.pwCalls != 0 {
		t.Fatal("invalid changes must not reach the network")
	}
	if err := m.ChangePassword(context.Background(), userdomain.PasswordChange{OldPassword: "old", NewPassword: "newsecret1", Confirm: "newsecret1"}); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if users.pwCalls != 1 {
		t.Errorf("pwCalls = %d", users.pwCalls)
	}
}

func TestRegisterPushToken(t *testing.T) {
	auth := &memAuth{}
	m := NewManager(auth, &memUsers{}, storage.NewMemoryStore(), nil)
	m.Restore(context.Background())
	if err := m.RegisterPushToken(context.Background(), "fcm-1"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("anonymous = %v", err)
	}
	m = loggedIn(t, auth, storage.NewMemoryStore())
	if err := m.RegisterPushToken(context.Background(), " "); !apperror.IsKind(err, apperror.KindValidation) {
		t.Errorf("blank token = %v", err)
	}
	if err := m.RegisterPushToken(context.Background(), "fcm-1"); err != nil || auth.pushCalls != 1 {
		t.Errorf("RegisterPushToken = %v, calls %d", err, auth.pushCalls)
	}
}

func TestMutationsAreSerialized(t *testing.T) {
	auth := &memAuth{
		pair:    &identitydomain.TokenPair{Access: "acc-1", Refresh: "ref-1", User: instructor()},
		refresh: &identitydomain.RefreshResponse{Access: "acc-2"},
		delay:   20 * time.Millisecond,
	}
	m := NewManager(auth, &memUsers{}, storage.NewMemoryStore(), nil)
	m.Restore(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = m.Login(context.Background(), "prof@koursa.cm", "secret123")
		}()
		go func() {
			defer wg.Done()
			_ = m.RefreshAccessToken(context.Background())
		}()
	}
	wg.Wait()
	if got := atomic.LoadInt32(&auth.maxInFlight); got != 1 {
		t.Errorf("max concurrent backend calls = %d, want 1", got)
	}
}

func TestSubscribe(t *testing.T) {
	auth := &memAuth{pair: &identitydomain.TokenPair{Access: "acc-1", Refresh: "ref-1", User: instructor()}}
	m := NewManager(auth, &memUsers{}, storage.NewMemoryStore(), nil)

	var got []domain.Session
	unsubscribe := m.Subscribe(func(s domain.Session) { got = append(got, s) })
	m.Restore(context.Background())
	_, _ = m.Login(context.Background(), "prof@koursa.cm", "secret123")
	m.Logout(context.Background())
	unsubscribe()
	_, _ = m.Login(context.Background(), "prof@koursa.cm", "secret123")

	if len(got) != 3 {
		t.Fatalf("received %d snapshots, want 3", len(got))
	}
	if got[0].Loading || got[0].IsAuthenticated() {
		t.Errorf("restore snapshot = %+v", got[0])
	}
	if !got[1].IsAuthenticated() || got[2].IsAuthenticated() {
		t.Errorf("login/logout snapshots = %+v / %+v", got[1], got[2])
	}
}

func TestSubscribe_UnsubscribeFromCallback(t *testing.T) {
	auth := &memAuth{pair: &identitydomain.TokenPair{Access: "acc-1", Refresh: "ref-1", User: instructor()}}
	m := NewManager(auth, &memUsers{}, storage.NewMemoryStore(), nil)

	calls := 0
	var unsubscribe func()
	unsubscribe = m.Subscribe(func(domain.Session) {
		calls++
		unsubscribe()
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.Login(context.Background(), "prof@koursa.cm", "secret123")
		m.Logout(context.Background())
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("login blocked on a subscriber that unsubscribed itself")
	}
	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
}
