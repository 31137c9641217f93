// Package service implements account administration: administrators and department heads list
// Koursa accounts and move them between pending, active and inactive.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"koursa/client/internal/apperror"
	"koursa/client/internal/policy/engine"
	sessiondomain "koursa/client/internal/session/domain"
	"koursa/client/internal/telemetry"
	"koursa/client/internal/user/domain"
)

const eventSource = "users"

// ErrNotAuthenticated is wrapped by the error returned when no user is signed in.
var ErrNotAuthenticated = errors.New("not authenticated")

// UserAPI is the subset of the user repository used for administration.
type UserAPI interface {
	List(ctx context.Context, status domain.AccountStatus) ([]domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	SetStatus(ctx context.Context, id int64, status domain.AccountStatus) (*domain.User, error)
	Approve(ctx context.Context, id int64) error
}

// SessionSource exposes the current session.
type SessionSource interface {
	Snapshot() sessiondomain.Session
}

// AdminService gates and performs account administration.
type AdminService struct {
	users   UserAPI
	session SessionSource
	policy  engine.Evaluator
	events  telemetry.EventEmitter
}

// NewAdminService returns an AdminService. policy defaults to engine.RulesEvaluator and events may
// be nil.
func NewAdminService(users UserAPI, session SessionSource, policy engine.Evaluator, events telemetry.EventEmitter) *AdminService {
	if policy == nil {
		policy = engine.RulesEvaluator{}
	}
	return &AdminService{users: users, session: session, policy: policy, events: events}
}

// List returns the accounts, only those in status when it is set.
func (s *AdminService) List(ctx context.Context, status domain.AccountStatus) ([]domain.User, error) {
	if _, err := s.authorize(ctx); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx, status)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return users, nil
	}
	out := users[:0]
	for _, u := range users {
		if u.Status == status {
			out = append(out, u)
		}
	}
	return out, nil
}

// Activate makes account id active. Pending representatives go through the approval endpoint;
// inactive accounts are reactivated.
func (s *AdminService) Activate(ctx context.Context, id int64) (*domain.User, error) {
	me, target, err := s.prepare(ctx, id)
	if err != nil {
		return nil, err
	}
	var u *domain.User
	switch target.Status {
	case domain.AccountStatusActive:
		return nil, apperror.Validation("statut", "this account is already active")
	case domain.AccountStatusPending:
		if err := s.users.Approve(ctx, id); err != nil {
			return nil, err
		}
		u, err = s.users.GetByID(ctx, id)
	default:
		u, err = s.users.SetStatus(ctx, id, domain.AccountStatusActive)
	}
	if err != nil {
		return nil, err
	}
	return s.confirmed(ctx, me, target, u, domain.AccountStatusActive)
}

// Deactivate makes the active account id inactive. Nobody may deactivate their own account.
func (s *AdminService) Deactivate(ctx context.Context, id int64) (*domain.User, error) {
	me, target, err := s.prepare(ctx, id)
	if err != nil {
		return nil, err
	}
	if target.ID == me.ID {
		return nil, forbidden("you cannot deactivate your own account")
	}
	if target.Status != domain.AccountStatusActive {
		return nil, apperror.Validation("statut", fmt.Sprintf("only an active account can be deactivated; this one is %s", target.Status.Label()))
	}
	u, err := s.users.SetStatus(ctx, id, domain.AccountStatusInactive)
	if err != nil {
		return nil, err
	}
	return s.confirmed(ctx, me, target, u, domain.AccountStatusInactive)
}

func (s *AdminService) prepare(ctx context.Context, id int64) (me, target *domain.User, err error) {
	if id <= 0 {
		return nil, nil, apperror.Validation("id", "user id must be positive")
	}
	if me, err = s.authorize(ctx); err != nil {
		return nil, nil, err
	}
	if target, err = s.users.GetByID(ctx, id); err != nil {
		return nil, nil, err
	}
	return me, target, nil
}

func (s *AdminService) authorize(ctx context.Context) (*domain.User, error) {
	sess := s.session.Snapshot()
	if !sess.IsAuthenticated() {
		return nil, &apperror.Error{Kind: apperror.KindAuthentication, Message: apperror.MsgSessionExpired, Err: ErrNotAuthenticated}
	}
	d, err := s.policy.Decide(ctx, engine.Input{User: sess.User})
	if err != nil {
		return nil, &apperror.Error{Kind: apperror.KindServer, Message: apperror.MsgUnexpected, Err: fmt.Errorf("policy: %w", err)}
	}
	if !d.ManageUsers {
		return nil, forbidden("only an active administrator or department head can manage accounts")
	}
	return sess.User, nil
}

// confirmed checks the backend really moved the account to want before reporting success.
func (s *AdminService) confirmed(ctx context.Context, me, before, after *domain.User, want domain.AccountStatus) (*domain.User, error) {
	if after == nil || after.ID != before.ID || after.Status != want {
		err := fmt.Errorf("user %d: backend answered %+v, expected status %s", before.ID, after, want)
		log.Printf("users: backend returned an inconsistent account: %v", err)
		return nil, &apperror.Error{Kind: apperror.KindServer, Message: apperror.MsgUnexpected, Err: err}
	}
	if s.events != nil {
		telemetry.EmitAsync(s.events, ctx, telemetry.NewEvent(telemetry.EventUserStatusChanged, eventSource, me.ID,
			map[string]any{"utilisateur": after.ID, "from": before.Status, "to": after.Status}))
	}
	return after, nil
}

func forbidden(msg string) error {
	return &apperror.Error{Kind: apperror.KindAuthorization, Message: msg}
}
