package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"koursa/client/internal/apperror"
	"koursa/client/internal/storage"
)

type seen struct {
	auth, requestID, contentType, query string
	body                                map[string]any
}

func newServer(t *testing.T, status int, respBody string, got *seen) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.auth = r.Header.Get("Authorization")
		got.requestID = r.Header.Get("X-Request-ID")
		got.contentType = r.Header.Get("Content-Type")
		got.query = r.URL.RawQuery
		got.body = nil
		_ = json.NewDecoder(r.Body).Decode(&got.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func seededStore(t *testing.T) *storage.MemoryStore {
	t.Helper()
	s := storage.NewMemoryStore()
	ctx := context.Background()
	_ = s.Set(ctx, storage.KeyAuthToken, "acc-1")
	_ = s.Set(ctx, storage.KeyRefreshToken, "ref-1")
	_ = s.Set(ctx, storage.KeyUser, `{"id":1}`)
	return s
}

func TestDo_AttachesBearerAndDecodes(t *testing.T) {
	var got seen
	srv := newServer(t, http.StatusOK, `{"id":7,"nom_ue":"Algo"}`, &got)
	c := New(srv.URL+"/", time.Second, seededStore(t))

	var out struct {
		ID   int64  `json:"id"`
		Name string `json:"nom_ue"`
	}
	err := c.Post(context.Background(), "/teaching/fiches-suivi/", map[string]any{"salle": "A1"}, &out,
		Query(url.Values{"statut": {"SOUMISE"}}))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if out.ID != 7 || out.Name != "Algo" {
		t.Errorf("decoded = %+v", out)
	}
	if got.auth != "Bearer acc-1" {
		t.Errorf("Authorization = %q", got.auth)
	}
	if got.requestID == "" {
		t.Error("X-Request-ID missing")
	}
	if got.contentType != "application/json" {
		t.Errorf("Content-Type = %q", got.contentType)
	}
	if got.query != "statut=SOUMISE" {
		t.Errorf("query = %q", got.query)
	}
	if got.body["salle"] != "A1" {
		t.Errorf("body = %v", got.body)
	}
}

func TestDo_PublicOmitsAuthorization(t *testing.T) {
	var got seen
	srv := newServer(t, http.StatusOK, `{}`, &got)
	c := New(srv.URL, time.Second, seededStore(t))

	if err := c.Post(context.Background(), "auth/token/", map[string]string{"email": "a@b.c"}, nil, Public()); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if got.auth != "" {
		t.Errorf("public request sent Authorization %q", got.auth)
	}
}

func TestDo_RequestIDUniquePerCall(t *testing.T) {
	var got seen
	srv := newServer(t, http.StatusOK, `{}`, &got)
	c := New(srv.URL, time.Second, storage.NewMemoryStore())

	_ = c.Get(context.Background(), "/dashboard/stats/", nil)
	first := got.requestID
	_ = c.Get(context.Background(), "/dashboard/stats/", nil)
	if first == "" || first == got.requestID {
		t.Errorf("request ids %q / %q should differ", first, got.requestID)
	}
}

func TestDo_401ClearsAccessTokenAndUserOnly(t *testing.T) {
	var got seen
	srv := newServer(t, http.StatusUnauthorized, `{"detail":"Given token not valid for any token type"}`, &got)
	store := seededStore(t)
	c := New(srv.URL, time.Second, store)

	err := c.Get(context.Background(), "/teaching/fiches-suivi/", nil)
	if !apperror.IsKind(err, apperror.KindAuthentication) {
		t.Fatalf("err = %v, want authentication", err)
	}
	ctx := context.Background()
	if _, ok, _ := store.Get(ctx, storage.KeyAuthToken); ok {
		t.Error("authToken should be deleted")
	}
	if _, ok, _ := store.Get(ctx, storage.KeyUser); ok {
		t.Error("user should be deleted")
	}
	if v, ok, _ := store.Get(ctx, storage.KeyRefreshToken); !ok || v != "ref-1" {
		t.Error("refreshToken must survive a 401")
	}
}

func TestDo_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   apperror.Kind
	}{
		{"forbidden", http.StatusForbidden, `{"detail":"Vous n'êtes pas l'enseignant"}`, apperror.KindAuthorization},
		{"bad request", http.StatusBadRequest, `{"email":["exists"]}`, apperror.KindConflict},
		{"server", http.StatusBadGateway, `oops`, apperror.KindServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got seen
			srv := newServer(t, tt.status, tt.body, &got)
			store := seededStore(t)
			err := New(srv.URL, time.Second, store).Get(context.Background(), "/x/", nil)
			if !apperror.IsKind(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if _, ok, _ := store.Get(context.Background(), storage.KeyAuthToken); !ok {
				t.Error("non-401 errors must not clear credentials")
			}
		})
	}
}

func TestDo_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	err := New(addr, time.Second, storage.NewMemoryStore()).Get(context.Background(), "/users/utilisateurs/1/", nil)
	if !apperror.IsKind(err, apperror.KindNetwork) {
		t.Fatalf("err = %v, want network", err)
	}
	if apperror.Message(err) != apperror.MsgNetwork {
		t.Errorf("Message = %q", apperror.Message(err))
	}
}

func TestDo_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	err := New(srv.URL, 50*time.Millisecond, storage.NewMemoryStore()).Get(context.Background(), "/slow/", nil)
	if !apperror.IsKind(err, apperror.KindNetwork) {
		t.Fatalf("err = %v, want network on timeout", err)
	}
}

func TestDo_MalformedSuccessBody(t *testing.T) {
	var got seen
	srv := newServer(t, http.StatusOK, `{"id":`, &got)
	var out map[string]any
	err := New(srv.URL, time.Second, storage.NewMemoryStore()).Get(context.Background(), "/x/", &out)
	if !apperror.IsKind(err, apperror.KindServer) {
		t.Fatalf("err = %v, want server", err)
	}
}

type failingStore struct{ storage.Store }

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk gone")
}

func TestDo_StoreReadFailureSendsUnauthenticated(t *testing.T) {
	var got seen
	srv := newServer(t, http.StatusOK, `{}`, &got)
	c := New(srv.URL, time.Second, failingStore{storage.NewMemoryStore()})
	if err := c.Get(context.Background(), "/x/", nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.auth != "" {
		t.Errorf("Authorization = %q, want none", got.auth)
	}
}
