// Package domain holds the tracked-lesson record ("fiche de suivi") and its state machine.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Fiche is one lesson-tracking sheet submitted by a class representative.
type Fiche struct {
	ID               int64       `json:"id"`
	UnitID           int64       `json:"ue"`
	UnitName         string      `json:"nom_ue,omitempty"`
	RepresentativeID *int64      `json:"delegue"`
	Representative   string      `json:"nom_delegue,omitempty"`
	InstructorID     *int64      `json:"enseignant"`
	Instructor       string      `json:"nom_enseignant,omitempty"`
	Date             string      `json:"date_cours"`
	StartTime        string      `json:"heure_debut"`
	EndTime          string      `json:"heure_fin"`
	Duration         string      `json:"duree,omitempty"`
	Room             string      `json:"salle"`
	SessionType      SessionType `json:"type_seance"`
	ChapterTitle     string      `json:"titre_chapitre"`
	Content          string      `json:"contenu_aborde"`
	Status           Status      `json:"statut"`
	RefusalReason    string      `json:"motif_refus"`
	SubmittedAt      time.Time   `json:"date_soumission"`
	ValidatedAt      *time.Time  `json:"date_validation"`
	SupersedesID     *int64      `json:"fiche_precedente,omitempty"`
}

type Status string

const (
	StatusSubmitted Status = "SOUMISE"
	StatusValidated Status = "VALIDEE"
	StatusRefused   Status = "REFUSEE"
)

// Label returns the English name of the status.
func (s Status) Label() string {
	switch s {
	case StatusSubmitted:
		return "submitted"
	case StatusValidated:
		return "validated"
	case StatusRefused:
		return "refused"
	default:
		return string(s)
	}
}

// Terminal reports whether no validate/refuse transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusValidated || s == StatusRefused
}

type SessionType string

const (
	SessionTypeLecture  SessionType = "CM"
	SessionTypeTutorial SessionType = "TD"
	SessionTypeLab      SessionType = "TP"
)

// ParseSessionType accepts the wire code (CM/TD/TP) or the English name (LECTURE/TUTORIAL/LAB).
func ParseSessionType(s string) (SessionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CM", "LECTURE":
		return SessionTypeLecture, nil
	case "TD", "TUTORIAL":
		return SessionTypeTutorial, nil
	case "TP", "LAB":
		return SessionTypeLab, nil
	default:
		return "", fmt.Errorf("unknown session type %q", s)
	}
}

// Valid reports whether t is one of the known session types.
func (t SessionType) Valid() bool {
	return t == SessionTypeLecture || t == SessionTypeTutorial || t == SessionTypeLab
}

// Transition names a workflow action on a fiche.
type Transition string

const (
	TransitionValidate Transition = "validate"
	TransitionRefuse   Transition = "refuse"
	TransitionResubmit Transition = "resubmit"
)

// ErrInvalidTransition is returned when a transition is not legal from the current status.
var ErrInvalidTransition = errors.New("invalid fiche transition")

// CanTransition reports whether t may be applied to a fiche in status s.
// Validate and refuse leave SUBMITTED only; resubmit starts from REFUSED.
func CanTransition(s Status, t Transition) error {
	switch t {
	case TransitionValidate, TransitionRefuse:
		if s != StatusSubmitted {
			return fmt.Errorf("%w: cannot %s a %s fiche", ErrInvalidTransition, t, s.Label())
		}
	case TransitionResubmit:
		if s != StatusRefused {
			return fmt.Errorf("%w: only refused fiches can be resubmitted (fiche is %s)", ErrInvalidTransition, s.Label())
		}
	default:
		return fmt.Errorf("%w: unknown transition %q", ErrInvalidTransition, t)
	}
	return nil
}

// CheckInvariants verifies the status-dependent fields of a fiche returned by the backend.
func (f *Fiche) CheckInvariants() error {
	switch f.Status {
	case StatusSubmitted:
		if f.ValidatedAt != nil {
			return errors.New("submitted fiche has a validation timestamp")
		}
	case StatusValidated:
		if f.ValidatedAt == nil {
			return errors.New("validated fiche has no validation timestamp")
		}
	case StatusRefused:
		if strings.TrimSpace(f.RefusalReason) == "" {
			return errors.New("refused fiche has no refusal reason")
		}
		if f.ValidatedAt != nil {
			return errors.New("refused fiche has a validation timestamp")
		}
	default:
		return fmt.Errorf("unknown fiche status %q", f.Status)
	}
	if f.Status != StatusRefused && strings.TrimSpace(f.RefusalReason) != "" {
		return errors.New("refusal reason set on a non-refused fiche")
	}
	return nil
}

// IsInstructor reports whether userID is the instructor concerned by the fiche.
func (f *Fiche) IsInstructor(userID int64) bool {
	return f.InstructorID != nil && *f.InstructorID == userID
}

// IsRepresentative reports whether userID submitted the fiche.
func (f *Fiche) IsRepresentative(userID int64) bool {
	return f.RepresentativeID != nil && *f.RepresentativeID == userID
}

// Hours returns the session length in hours computed from StartTime/EndTime, or 0 if unparsable.
func (f *Fiche) Hours() float64 {
	start, err1 := time.Parse("15:04", ClockTime(f.StartTime))
	end, err2 := time.Parse("15:04", ClockTime(f.EndTime))
	if err1 != nil || err2 != nil || !end.After(start) {
		return 0
	}
	return end.Sub(start).Hours()
}

// ClockTime trims a backend time ("08:00:00") to the HH:MM form used in forms.
func ClockTime(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 5 && s[5] == ':' {
		return s[:5]
	}
	return s
}
