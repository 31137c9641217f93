package engine

import (
	"context"

	fichedomain "koursa/client/internal/fiche/domain"
	userdomain "koursa/client/internal/user/domain"
)

// Decision holds which workflow actions the user may attempt. ManageUsers covers listing accounts
// and changing their status.
type Decision struct {
	Create      bool
	Validate    bool
	Refuse      bool
	Resubmit    bool
	ManageUsers bool
}

// Input is what a decision is made on. Fiche is nil when only creation is being decided.
type Input struct {
	User  *userdomain.User
	Fiche *fichedomain.Fiche
}

// Evaluator decides workflow gating. Gating only spares the user a doomed request; the backend
// still enforces its own authorization.
type Evaluator interface {
	Decide(ctx context.Context, in Input) (Decision, error)
}

// RulesEvaluator applies the built-in gating rules without OPA. It is the fallback when a Rego
// policy cannot be evaluated.
type RulesEvaluator struct{}

// Decide implements Evaluator.
func (RulesEvaluator) Decide(ctx context.Context, in Input) (Decision, error) {
	var d Decision
	u := in.User
	if !u.IsActive() {
		return d, nil
	}
	d.Create = u.HasRole(userdomain.RoleRepresentative)
	d.ManageUsers = u.HasRole(userdomain.RoleAdministrator) || u.HasRole(userdomain.RoleDepartmentHead)
	if f := in.Fiche; f != nil {
		submitted := f.Status == fichedomain.StatusSubmitted
		d.Validate = submitted && f.IsInstructor(u.ID)
		d.Refuse = d.Validate
		d.Resubmit = f.Status == fichedomain.StatusRefused && f.IsRepresentative(u.ID)
	}
	return d, nil
}
