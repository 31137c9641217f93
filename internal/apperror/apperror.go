// Package apperror defines the client-side failure taxonomy surfaced to callers
// of the session and workflow services. Every network-calling operation returns
// an *Error with a short, user-presentable Message instead of a raw transport error.
package apperror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	// KindValidation is a local precondition failure; no request was sent.
	KindValidation Kind = iota + 1
	// KindAuthentication means credentials or the session token were rejected (401).
	KindAuthentication
	// KindAuthorization means the authenticated user may not perform the action (403).
	KindAuthorization
	// KindConflict is a backend uniqueness or state conflict (400/409 with field errors).
	KindConflict
	// KindNetwork means no response reached the client.
	KindNetwork
	// KindServer covers 5xx and anything unclassified.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Default messages.
const (
	MsgInvalidCredentials = "incorrect email or password."
	MsgNotAuthorized      = "not authorized"
	MsgNetwork            = "connection error, check your network."
	MsgUnexpected         = "an unexpected error occurred"
	MsgSessionExpired     = "session expired, please log in again"
)

// Error is a classified failure. Message is safe to show to the user.
type Error struct {
	Kind       Kind
	Message    string
	Field      string // offending field for validation/conflict errors, if known
	StatusCode int    // HTTP status when the backend answered; 0 otherwise
	Err        error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind so errors.Is(err, &Error{Kind: KindNetwork}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Validation returns a KindValidation error for field.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// Network wraps a transport failure.
func Network(err error) *Error {
	return &Error{Kind: KindNetwork, Message: MsgNetwork, Err: err}
}

// KindOf returns the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the user-presentable message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return MsgUnexpected
}

// FromResponse classifies a non-2xx HTTP response. body is the raw response body (may be empty).
func FromResponse(status int, body []byte) *Error {
	detail, field, fieldMsg := parseBody(body)
	e := &Error{StatusCode: status}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindAuthentication
		e.Message = firstNonEmpty(detail, MsgSessionExpired)
	case status == http.StatusForbidden:
		e.Kind = KindAuthorization
		e.Message = firstNonEmpty(detail, MsgNotAuthorized)
	case status == http.StatusBadRequest || status == http.StatusConflict:
		e.Kind = KindConflict
		switch {
		case detail != "":
			e.Message = detail
		case field != "":
			e.Field = field
			e.Message = field + ": " + fieldMsg
		default:
			e.Message = MsgUnexpected
		}
	default:
		e.Kind = KindServer
		e.Message = MsgUnexpected
	}
	return e
}

// parseBody extracts a DRF-style error payload: {"detail": "..."} or {"field": ["msg", ...]}.
// Fields are scanned in sorted order so the chosen field is deterministic.
func parseBody(body []byte) (detail, field, fieldMsg string) {
	if len(body) == 0 {
		return "", "", ""
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return "", "", ""
	}
	for _, key := range []string{"detail", "message", "error"} {
		if raw, ok := m[key]; ok {
			if s := decodeMessage(raw); s != "" {
				return s, "", ""
			}
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s := decodeMessage(m[k]); s != "" {
			return "", k, s
		}
	}
	return "", "", ""
}

func decodeMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if item = strings.TrimSpace(item); item != "" {
				return item
			}
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
