// Package service implements the fiche submission workflow: creation by a class representative,
// validation or refusal by the referenced instructor, and resubmission of refused fiches.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"koursa/client/internal/apperror"
	"koursa/client/internal/fiche/domain"
	"koursa/client/internal/policy/engine"
	sessiondomain "koursa/client/internal/session/domain"
	"koursa/client/internal/telemetry"
	userdomain "koursa/client/internal/user/domain"
	"koursa/client/internal/validation"
)

const eventSource = "fiche"

// ErrNotAuthenticated is wrapped by the error returned when no user is signed in.
var ErrNotAuthenticated = errors.New("not authenticated")

// FicheAPI is the remote fiche repository.
type FicheAPI interface {
	List(ctx context.Context) ([]domain.Fiche, error)
	ListPending(ctx context.Context) ([]domain.Fiche, error)
	GetByID(ctx context.Context, id int64) (*domain.Fiche, error)
	Create(ctx context.Context, req domain.CreateRequest) (*domain.Fiche, error)
	Validate(ctx context.Context, id int64, validationToken string) (*domain.Fiche, error)
	Refuse(ctx context.Context, id int64, reason string) (*domain.Fiche, error)
}

// PasswordConfirmer exchanges the current user's password for a one-time validation token.
type PasswordConfirmer interface {
	ConfirmPassword(ctx context.Context, password string) (string, error)
}

// SessionSource exposes the current session.
type SessionSource interface {
	Snapshot() sessiondomain.Session
}

// WorkflowService drives fiche transitions. It keeps the last server-confirmed copy of every fiche
// it has seen; the cache is written only from successful backend responses.
type WorkflowService struct {
	fiches  FicheAPI
	confirm PasswordConfirmer
	session SessionSource
	policy  engine.Evaluator
	events  telemetry.EventEmitter

	mu    sync.RWMutex
	cache map[int64]domain.Fiche
}

// NewWorkflowService returns a WorkflowService. policy defaults to engine.RulesEvaluator and
// events may be nil.
func NewWorkflowService(fiches FicheAPI, confirm PasswordConfirmer, session SessionSource, policy engine.Evaluator, events telemetry.EventEmitter) *WorkflowService {
	if policy == nil {
		policy = engine.RulesEvaluator{}
	}
	return &WorkflowService{
		fiches:  fiches,
		confirm: confirm,
		session: session,
		policy:  policy,
		events:  events,
		cache:   make(map[int64]domain.Fiche),
	}
}

// Create submits a new fiche on behalf of the signed-in representative.
func (s *WorkflowService) Create(ctx context.Context, in domain.Input) (*domain.Fiche, error) {
	user, err := s.currentUser()
	if err != nil {
		return nil, err
	}
	in = normalizeInput(in)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	d, err := s.decide(ctx, user, nil)
	if err != nil {
		return nil, err
	}
	if !d.Create {
		return nil, forbidden("only an active class representative can submit a fiche")
	}
	f, err := s.fiches.Create(ctx, domain.CreateRequest{Input: in, RepresentativeID: user.ID})
	if err != nil {
		return nil, err
	}
	if err := s.confirmed(f, domain.StatusSubmitted); err != nil {
		return nil, err
	}
	s.emit(ctx, telemetry.NewEvent(telemetry.EventFicheCreated, eventSource, user.ID,
		map[string]any{"ue": f.UnitID, "date_cours": f.Date}).WithFiche(f.ID))
	return f, nil
}

// Validate confirms the instructor's password, then validates fiche id with the returned token.
func (s *WorkflowService) Validate(ctx context.Context, id int64, password string) (*domain.Fiche, error) {
	if err := validation.Required("password", password); err != nil {
		return nil, err
	}
	user, cur, err := s.prepare(ctx, id, domain.TransitionValidate)
	if err != nil {
		return nil, err
	}
	d, err := s.decide(ctx, user, cur)
	if err != nil {
		return nil, err
	}
	if !d.Validate {
		return nil, forbidden("only the instructor concerned can validate this fiche")
	}

	token, err := s.confirm.ConfirmPassword(ctx, password)
	if err != nil {
		return nil, err
	}
	f, err := s.fiches.Validate(ctx, id, token)
	if err != nil {
		return nil, err
	}
	if err := s.confirmed(f, domain.StatusValidated); err != nil {
		return nil, err
	}
	s.emit(ctx, telemetry.NewEvent(telemetry.EventFicheValidated, eventSource, user.ID, nil).WithFiche(id))
	return f, nil
}

// Refuse refuses fiche id with reason.
func (s *WorkflowService) Refuse(ctx context.Context, id int64, reason string) (*domain.Fiche, error) {
	reason = strings.TrimSpace(reason)
	if err := validation.Required("motif_refus", reason); err != nil {
		return nil, err
	}
	user, cur, err := s.prepare(ctx, id, domain.TransitionRefuse)
	if err != nil {
		return nil, err
	}
	d, err := s.decide(ctx, user, cur)
	if err != nil {
		return nil, err
	}
	if !d.Refuse {
		return nil, forbidden("only the instructor concerned can refuse this fiche")
	}

	f, err := s.fiches.Refuse(ctx, id, reason)
	if err != nil {
		return nil, err
	}
	if err := s.confirmed(f, domain.StatusRefused); err != nil {
		return nil, err
	}
	s.emit(ctx, telemetry.NewEvent(telemetry.EventFicheRefused, eventSource, user.ID,
		map[string]string{"motif_refus": reason}).WithFiche(id))
	return f, nil
}

// Resubmit creates a corrected fiche that supersedes the refused fiche id. The refused fiche is
// kept as is.
func (s *WorkflowService) Resubmit(ctx context.Context, id int64, in domain.Input) (*domain.Fiche, error) {
	in = normalizeInput(in)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	user, cur, err := s.prepare(ctx, id, domain.TransitionResubmit)
	if err != nil {
		return nil, err
	}
	d, err := s.decide(ctx, user, cur)
	if err != nil {
		return nil, err
	}
	if !d.Resubmit {
		return nil, forbidden("only the representative who submitted this fiche can resubmit it")
	}

	prev := id
	f, err := s.fiches.Create(ctx, domain.CreateRequest{Input: in, RepresentativeID: user.ID, SupersedesID: &prev})
	if err != nil {
		return nil, err
	}
	if err := s.confirmed(f, domain.StatusSubmitted); err != nil {
		return nil, err
	}
	s.emit(ctx, telemetry.NewEvent(telemetry.EventFicheResubmitted, eventSource, user.ID,
		map[string]int64{"fiche_precedente": id}).WithFiche(f.ID))
	return f, nil
}

// List returns the fiches visible to the signed-in user and refreshes the cache with them.
func (s *WorkflowService) List(ctx context.Context) ([]domain.Fiche, error) {
	if _, err := s.currentUser(); err != nil {
		return nil, err
	}
	list, err := s.fiches.List(ctx)
	if err != nil {
		return nil, err
	}
	s.remember(list...)
	return list, nil
}

// ListPending returns the fiches awaiting the signed-in instructor's decision.
func (s *WorkflowService) ListPending(ctx context.Context) ([]domain.Fiche, error) {
	if _, err := s.currentUser(); err != nil {
		return nil, err
	}
	list, err := s.fiches.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	s.remember(list...)
	return list, nil
}

// Get fetches fiche id from the backend.
func (s *WorkflowService) Get(ctx context.Context, id int64) (*domain.Fiche, error) {
	if id <= 0 {
		return nil, apperror.Validation("id", "fiche id must be positive")
	}
	if _, err := s.currentUser(); err != nil {
		return nil, err
	}
	f, err := s.fiches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.remember(*f)
	return f, nil
}

// Cached returns the last confirmed copy of fiche id, if any.
func (s *WorkflowService) Cached(id int64) (domain.Fiche, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.cache[id]
	return f, ok
}

// AllowedActions reports which transitions the signed-in user may attempt on f. Status rules
// apply on top of the policy.
func (s *WorkflowService) AllowedActions(ctx context.Context, f *domain.Fiche) (engine.Decision, error) {
	user, err := s.currentUser()
	if err != nil {
		return engine.Decision{}, err
	}
	return s.decide(ctx, user, f)
}

// prepare resolves the current user and fiche id (cache first) and checks that t is legal from
// the fiche's status. Nothing is sent when the transition is illegal.
func (s *WorkflowService) prepare(ctx context.Context, id int64, t domain.Transition) (*userdomain.User, *domain.Fiche, error) {
	if id <= 0 {
		return nil, nil, apperror.Validation("id", "fiche id must be positive")
	}
	user, err := s.currentUser()
	if err != nil {
		return nil, nil, err
	}
	cur, ok := s.Cached(id)
	if !ok {
		f, err := s.fiches.GetByID(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		s.remember(*f)
		cur = *f
	}
	if err := domain.CanTransition(cur.Status, t); err != nil {
		return nil, nil, &apperror.Error{Kind: apperror.KindValidation, Field: "statut", Message: transitionMessage(cur.Status, t), Err: err}
	}
	return user, &cur, nil
}

func (s *WorkflowService) decide(ctx context.Context, user *userdomain.User, f *domain.Fiche) (engine.Decision, error) {
	d, err := s.policy.Decide(ctx, engine.Input{User: user, Fiche: f})
	if err != nil {
		return engine.Decision{}, &apperror.Error{Kind: apperror.KindServer, Message: apperror.MsgUnexpected, Err: fmt.Errorf("policy: %w", err)}
	}
	if f != nil {
		d.Validate = d.Validate && domain.CanTransition(f.Status, domain.TransitionValidate) == nil
		d.Refuse = d.Refuse && domain.CanTransition(f.Status, domain.TransitionRefuse) == nil
		d.Resubmit = d.Resubmit && domain.CanTransition(f.Status, domain.TransitionResubmit) == nil
	}
	return d, nil
}

// confirmed checks a backend answer and caches it.
func (s *WorkflowService) confirmed(f *domain.Fiche, want domain.Status) error {
	if f == nil {
		return &apperror.Error{Kind: apperror.KindServer, Message: apperror.MsgUnexpected, Err: errors.New("empty fiche response")}
	}
	err := f.CheckInvariants()
	if err == nil && f.Status != want {
		err = fmt.Errorf("fiche %d is %s, expected %s", f.ID, f.Status.Label(), want.Label())
	}
	if err != nil {
		log.Printf("fiche: backend returned an inconsistent fiche: %v", err)
		return &apperror.Error{Kind: apperror.KindServer, Message: apperror.MsgUnexpected, Err: err}
	}
	s.remember(*f)
	return nil
}

func (s *WorkflowService) remember(list ...domain.Fiche) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range list {
		if f.ID > 0 {
			s.cache[f.ID] = f
		}
	}
}

func (s *WorkflowService) currentUser() (*userdomain.User, error) {
	sess := s.session.Snapshot()
	if !sess.IsAuthenticated() {
		return nil, &apperror.Error{Kind: apperror.KindAuthentication, Message: apperror.MsgSessionExpired, Err: ErrNotAuthenticated}
	}
	return sess.User, nil
}

func (s *WorkflowService) emit(ctx context.Context, ev *telemetry.Event) {
	if s.events == nil {
		return
	}
	telemetry.EmitAsync(s.events, ctx, ev)
}

func normalizeInput(in domain.Input) domain.Input {
	in.Date = strings.TrimSpace(in.Date)
	in.StartTime = domain.ClockTime(in.StartTime)
	in.EndTime = domain.ClockTime(in.EndTime)
	in.Room = strings.TrimSpace(in.Room)
	in.ChapterTitle = strings.TrimSpace(in.ChapterTitle)
	in.Content = strings.TrimSpace(in.Content)
	if t, err := domain.ParseSessionType(string(in.SessionType)); err == nil {
		in.SessionType = t
	}
	return in
}

func transitionMessage(st domain.Status, t domain.Transition) string {
	if t == domain.TransitionResubmit {
		return "only refused fiches can be resubmitted"
	}
	return "fiche is already " + st.Label()
}

func forbidden(msg string) error {
	return &apperror.Error{Kind: apperror.KindAuthorization, Message: msg}
}
