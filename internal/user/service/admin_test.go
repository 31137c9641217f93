package service

import (
	"context"
	"errors"
	"testing"

	"koursa/client/internal/apperror"
	"koursa/client/internal/policy/engine"
	sessiondomain "koursa/client/internal/session/domain"
	"koursa/client/internal/user/domain"
)

// memUsers is an in-memory UserAPI that records which endpoints were hit.
type memUsers struct {
	users    map[int64]domain.User
	calls    []string
	err      error
	lieAbout int64 // SetStatus answers with the old status for this id
}

func newMemUsers(list ...domain.User) *memUsers {
	m := &memUsers{users: map[int64]domain.User{}}
	for _, u := range list {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUsers) List(ctx context.Context, status domain.AccountStatus) ([]domain.User, error) {
	m.calls = append(m.calls, "list")
	if m.err != nil {
		return nil, m.err
	}
	// Ignores status, like a backend without server-side filtering.
	out := make([]domain.User, 0, len(m.users))
	for id := int64(1); id <= 10; id++ {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memUsers) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	m.calls = append(m.calls, "get")
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, &apperror.Error{Kind: apperror.KindServer, Message: apperror.MsgUnexpected, StatusCode: 404}
	}
	return &u, nil
}

func (m *memUsers) SetStatus(ctx context.Context, id int64, status domain.AccountStatus) (*domain.User, error) {
	m.calls = append(m.calls, "patch")
	if m.err != nil {
		return nil, m.err
	}
	u := m.users[id]
	if id == m.lieAbout {
		return &u, nil
	}
	u.Status = status
	m.users[id] = u
	return &u, nil
}

func (m *memUsers) Approve(ctx context.Context, id int64) error {
	m.calls = append(m.calls, "approve")
	if m.err != nil {
		return m.err
	}
	u := m.users[id]
	u.Status = domain.AccountStatusActive
	m.users[id] = u
	return nil
}

type staticSession struct{ s sessiondomain.Session }

func (s staticSession) Snapshot() sessiondomain.Session { return s.s }

func signedIn(id int64, status domain.AccountStatus, role string) staticSession {
	return staticSession{sessiondomain.Session{
		AccessToken: "acc",
		User: &domain.User{ID: id, Email: "admin@koursa.cm", Status: status,
			Roles: []domain.Role{{ID: 4, Name: role}}},
	}}
}

func account(id int64, status domain.AccountStatus) domain.User {
	return domain.User{ID: id, Email: "user@koursa.cm", Status: status, Roles: []domain.Role{{ID: 1, Name: "Delegue"}}}
}

func seeded() *memUsers {
	return newMemUsers(
		account(1, domain.AccountStatusActive),
		account(2, domain.AccountStatusPending),
		account(3, domain.AccountStatusInactive),
		account(9, domain.AccountStatusActive),
	)
}

func TestList_FiltersByStatus(t *testing.T) {
	svc := NewAdminService(seeded(), signedIn(9, domain.AccountStatusActive, "Administrateur"), nil, nil)

	all, err := svc.List(context.Background(), "")
	if err != nil || len(all) != 4 {
		t.Fatalf("List all = %d, %v", len(all), err)
	}
	active, err := svc.List(context.Background(), domain.AccountStatusActive)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 || active[0].ID != 1 || active[1].ID != 9 {
		t.Errorf("List active = %+v", active)
	}
}

func TestAdmin_Gating(t *testing.T) {
	tests := []struct {
		name    string
		session staticSession
		kind    apperror.Kind
	}{
		{"anonymous", staticSession{}, apperror.KindAuthentication},
		{"instructor", signedIn(9, domain.AccountStatusActive, "Enseignant"), apperror.KindAuthorization},
		{"inactive administrator", signedIn(9, domain.AccountStatusInactive, "Administrateur"), apperror.KindAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := seeded()
			svc := NewAdminService(api, tt.session, nil, nil)
			if _, err := svc.List(context.Background(), ""); !apperror.IsKind(err, tt.kind) {
				t.Errorf("List err = %v, want %v", err, tt.kind)
			}
			if _, err := svc.Activate(context.Background(), 3); !apperror.IsKind(err, tt.kind) {
				t.Errorf("Activate err = %v, want %v", err, tt.kind)
			}
			if len(api.calls) != 0 {
				t.Errorf("backend was called: %v", api.calls)
			}
		})
	}
}

func TestAdmin_DepartmentHeadMayManage(t *testing.T) {
	svc := NewAdminService(seeded(), signedIn(9, domain.AccountStatusActive, "Chef de Département"), nil, nil)
	if _, err := svc.List(context.Background(), ""); err != nil {
		t.Fatalf("List: %v", err)
	}
}

func TestActivate(t *testing.T) {
	tests := []struct {
		name  string
		id    int64
		calls []string
		kind  apperror.Kind
	}{
		{"pending goes through approval", 2, []string{"get", "approve", "get"}, 0},
		{"inactive is patched", 3, []string{"get", "patch"}, 0},
		{"already active", 1, []string{"get"}, apperror.KindValidation},
		{"bad id", 0, nil, apperror.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := seeded()
			svc := NewAdminService(api, signedIn(9, domain.AccountStatusActive, "Administrateur"), nil, nil)
			u, err := svc.Activate(context.Background(), tt.id)
			if tt.kind != 0 {
				if !apperror.IsKind(err, tt.kind) {
					t.Fatalf("err = %v, want %v", err, tt.kind)
				}
			} else if err != nil || u.Status != domain.AccountStatusActive {
				t.Fatalf("Activate = %+v, %v", u, err)
			}
			if len(api.calls) != len(tt.calls) {
				t.Fatalf("calls = %v, want %v", api.calls, tt.calls)
			}
			for i := range tt.calls {
				if api.calls[i] != tt.calls[i] {
					t.Errorf("calls = %v, want %v", api.calls, tt.calls)
					break
				}
			}
		})
	}
}

func TestDeactivate(t *testing.T) {
	ctx := context.Background()
	api := seeded()
	svc := NewAdminService(api, signedIn(9, domain.AccountStatusActive, "Administrateur"), nil, nil)

	u, err := svc.Deactivate(ctx, 1)
	if err != nil || u.Status != domain.AccountStatusInactive {
		t.Fatalf("Deactivate = %+v, %v", u, err)
	}
	if _, err := svc.Deactivate(ctx, 2); !apperror.IsKind(err, apperror.KindValidation) {
		t.Errorf("Deactivate pending = %v, want validation", err)
	}
	if _, err := svc.Deactivate(ctx, 9); !apperror.IsKind(err, apperror.KindAuthorization) {
		t.Errorf("Deactivate self = %v, want authorization", err)
	}
	if api.users[9].Status != domain.AccountStatusActive {
		t.Error("own account must stay active")
	}
}

func TestSetStatus_InconsistentResponse(t *testing.T) {
	api := seeded()
	api.lieAbout = 3
	svc := NewAdminService(api, signedIn(9, domain.AccountStatusActive, "Administrateur"), nil, nil)
	if _, err := svc.Activate(context.Background(), 3); !apperror.IsKind(err, apperror.KindServer) {
		t.Errorf("err = %v, want server", err)
	}
}

func TestAdmin_BackendErrorPassesThrough(t *testing.T) {
	api := seeded()
	api.err = apperror.Network(errors.New("offline"))
	svc := NewAdminService(api, signedIn(9, domain.AccountStatusActive, "Administrateur"), nil, nil)
	if _, err := svc.Deactivate(context.Background(), 1); !apperror.IsKind(err, apperror.KindNetwork) {
		t.Errorf("err = %v, want network", err)
	}
}

// denyAll is a policy that grants nothing.
type denyAll struct{}

func (denyAll) Decide(context.Context, engine.Input) (engine.Decision, error) {
	return engine.Decision{}, nil
}

func TestAdmin_UsesPolicy(t *testing.T) {
	svc := NewAdminService(seeded(), signedIn(9, domain.AccountStatusActive, "Administrateur"), denyAll{}, nil)
	if _, err := svc.List(context.Background(), ""); !apperror.IsKind(err, apperror.KindAuthorization) {
		t.Errorf("err = %v, want authorization", err)
	}
}
