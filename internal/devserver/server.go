// Package devserver is an in-memory stand-in for the Koursa REST backend. It serves the same
// endpoints and error shapes the client consumes and is used for local development and
// end-to-end tests.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"koursa/client/internal/security"
)

// Options configures a Server. Tokens and Hasher are required.
type Options struct {
	Tokens        *security.TokenProvider
	Hasher        *security.Hasher
	Grants        GrantStore
	ValidationTTL time.Duration
	Now           func() time.Time
}

// Server is the fake backend.
type Server struct {
	tokens        *security.TokenProvider
	hasher        *security.Hasher
	grants        GrantStore
	validationTTL time.Duration
	now           func() time.Time
	data          *data
}

// NewServer returns a seeded Server.
func NewServer(opts Options) (*Server, error) {
	if opts.Tokens == nil || opts.Hasher == nil {
		return nil, errors.New("devserver: token provider and hasher are required")
	}
	s := &Server{
		tokens:        opts.Tokens,
		hasher:        opts.Hasher,
		grants:        opts.Grants,
		validationTTL: opts.ValidationTTL,
		now:           opts.Now,
		data:          newData(),
	}
	if s.grants == nil {
		s.grants = NewMemoryGrantStore()
	}
	if s.validationTTL <= 0 {
		s.validationTTL = 5 * time.Minute
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if err := s.data.seed(s.hasher); err != nil {
		return nil, err
	}
	return s, nil
}

// Router returns the HTTP handler. API routes live under /api, matching the client's default
// base URL.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/token/", s.handleObtainToken)
		r.Post("/auth/token/refresh/", s.handleRefreshToken)

		r.Get("/users/roles/", s.handleListRoles)
		r.Get("/academic/niveaux/", s.handleListLevels)
		r.With(s.authMiddleware).Get("/academic/facultes/", s.handleListFaculties)
		r.With(s.authMiddleware).Get("/academic/departements/", s.handleListDepartments)
		r.With(s.authMiddleware).Get("/academic/filieres/", s.handleListTracks)

		r.Route("/users/utilisateurs", func(r chi.Router) {
			r.Post("/", s.handleRegister)
			r.With(s.authMiddleware).Get("/", s.handleListUsers)
			r.With(s.authMiddleware).Post("/confirm-password/", s.handleConfirmPassword)
			r.With(s.authMiddleware).Post("/change-password/", s.handleChangePassword)
			r.With(s.authMiddleware).Post("/register-fcm-token/", s.handleRegisterPushToken)
			r.With(s.authMiddleware).Get("/{userID}/", s.handleGetUser)
			r.With(s.authMiddleware).Patch("/{userID}/", s.handleUpdateUser)
			r.With(s.authMiddleware).Post("/{userID}/approuver-delegue/", s.handleApproveAccount)
		})

		r.With(s.authMiddleware).Get("/teaching/unites-enseignement/", s.handleListUnits)

		r.Route("/teaching/fiches-suivi", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.handleListFiches)
			r.Post("/", s.handleCreateFiche)
			r.Get("/en-attente/", s.handlePendingFiches)
			r.Get("/{ficheID}/", s.handleGetFiche)
			r.Post("/{ficheID}/valider/", s.handleValidateFiche)
			r.Post("/{ficheID}/refuser/", s.handleRefuseFiche)
		})

		r.With(s.authMiddleware).Get("/dashboard/stats/", s.handleStats)
	})
	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		claims, err := s.tokens.ValidateAccess(token)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Given token not valid for any token type")
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Given token not valid for any token type")
			return
		}
		s.data.mu.Lock()
		_, ok := s.data.accounts[userID]
		s.data.mu.Unlock()
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "User not found")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type userIDKey struct{}

func userIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey{}).(int64)
	return id
}

// current returns the signed-in account. The caller must hold data.mu.
func (s *Server) current(r *http.Request) *account {
	return s.data.accounts[userIDFromContext(r.Context())]
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeFieldError writes a 400 in the backend's {"field": ["message"]} shape.
func writeFieldError(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string][]string{field: {msg}})
}
