package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Event types emitted by the session manager, the workflow controller and user administration.
const (
	EventLoginSuccess       = "login_success"
	EventLoginFailure       = "login_failure"
	EventLogout             = "logout"
	EventTokenRefreshed     = "token_refreshed"
	EventTokenRefreshFailed = "token_refresh_failed"
	EventFicheCreated       = "fiche_created"
	EventFicheValidated     = "fiche_validated"
	EventFicheRefused       = "fiche_refused"
	EventFicheResubmitted   = "fiche_resubmitted"
	EventUserStatusChanged  = "user_status_changed"
)

// Event is one client-side domain event. UserID and FicheID are 0 when not applicable.
type Event struct {
	Type      string          `json:"event_type"`
	UserID    int64           `json:"user_id,omitempty"`
	FicheID   int64           `json:"fiche_id,omitempty"`
	Source    string          `json:"source"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEvent returns an Event of type typ stamped with the current time. meta, when non-nil, is JSON-encoded
// into Metadata; encoding failures leave Metadata empty.
func NewEvent(typ, source string, userID int64, meta any) *Event {
	ev := &Event{Type: typ, UserID: userID, Source: source, CreatedAt: time.Now().UTC()}
	if meta != nil {
		if b, err := json.Marshal(meta); err == nil {
			ev.Metadata = b
		}
	}
	return ev
}

// WithFiche sets FicheID and returns ev.
func (ev *Event) WithFiche(id int64) *Event {
	ev.FicheID = id
	return ev
}

// EventEmitter emits telemetry events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// Fanout emits each event to every non-nil emitter and joins their errors.
type Fanout []EventEmitter

func (f Fanout) Emit(ctx context.Context, event *Event) error {
	var errs []error
	for _, em := range f {
		if em == nil {
			continue
		}
		if err := em.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, *Event) error { return nil }
