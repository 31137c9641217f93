package domain

import (
	"errors"
	"fmt"
	"strings"
)

// User is the profile of a Koursa account as returned by the backend.
type User struct {
	ID               int64         `json:"id"`
	Email            string        `json:"email"`
	FirstName        string        `json:"first_name"`
	LastName         string        `json:"last_name"`
	Status           AccountStatus `json:"statut"`
	Roles            []Role        `json:"roles"`
	RepresentedLevel *int64        `json:"niveau_represente"` // only for representatives
}

// Role is a named permission set.
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"nom_role"`
}

type AccountStatus string

const (
	AccountStatusPending  AccountStatus = "EN_ATTENTE"
	AccountStatusActive   AccountStatus = "ACTIF"
	AccountStatusInactive AccountStatus = "INACTIF"
)

// Label returns the English name of the status.
func (s AccountStatus) Label() string {
	switch s {
	case AccountStatusPending:
		return "pending"
	case AccountStatusActive:
		return "active"
	case AccountStatusInactive:
		return "inactive"
	default:
		return string(s)
	}
}

// ParseAccountStatus accepts a wire value (ACTIF) or its label (active), in any case.
func ParseAccountStatus(s string) (AccountStatus, error) {
	v := strings.TrimSpace(s)
	for _, st := range []AccountStatus{AccountStatusPending, AccountStatusActive, AccountStatusInactive} {
		if strings.EqualFold(v, string(st)) || strings.EqualFold(v, st.Label()) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown account status %q (want pending, active or inactive)", s)
}

// Role names used by the backend.
const (
	RoleRepresentative = "Delegue"
	RoleInstructor     = "Enseignant"
	RoleDepartmentHead = "Chef de Departement"
	RoleAdministrator  = "Administrateur"
)

// HasRole reports whether the user holds a role named name (case-insensitive, accents ignored
// for the common "Délégué" spelling).
func (u *User) HasRole(name string) bool {
	if u == nil {
		return false
	}
	want := NormalizeRole(name)
	for _, r := range u.Roles {
		if NormalizeRole(r.Name) == want {
			return true
		}
	}
	return false
}

// RoleNames returns the role names in backend order.
func (u *User) RoleNames() []string {
	if u == nil {
		return nil
	}
	out := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		out[i] = r.Name
	}
	return out
}

// IsActive reports whether the account may take part in privileged workflow actions.
func (u *User) IsActive() bool {
	return u != nil && u.Status == AccountStatusActive
}

// FullName returns "First Last", trimmed.
func (u *User) FullName() string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Validate checks the profile is usable as a session identity.
func (u *User) Validate() error {
	if u == nil {
		return errors.New("user is missing")
	}
	if u.ID <= 0 {
		return errors.New("user id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	return nil
}

var roleReplacer = strings.NewReplacer("é", "e", "è", "e", "É", "e")

// NormalizeRole lowercases a role name and strips the accents used in "Délégué".
func NormalizeRole(s string) string {
	return strings.ToLower(strings.TrimSpace(roleReplacer.Replace(s)))
}
