package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"

	userdomain "koursa/client/internal/user/domain"
)

const policyQuery = "data.koursa.fiche"

// DefaultRegoPolicy encodes the built-in gating rules. A policy loaded from POLICY_FILE must
// declare the same package and the four fiche can_* rules; can_manage_users is optional and
// denies when absent.
const DefaultRegoPolicy = `package koursa.fiche

default can_create := false
default can_validate := false
default can_refuse := false
default can_resubmit := false
default can_manage_users := false

active if input.user.statut == "ACTIF"

submitted if input.fiche.statut == "SOUMISE"

refused if input.fiche.statut == "REFUSEE"

instructor_of_fiche if {
	input.fiche.enseignant > 0
	input.fiche.enseignant == input.user.id
}

representative_of_fiche if {
	input.fiche.delegue > 0
	input.fiche.delegue == input.user.id
}

can_create if {
	active
	"delegue" in input.user.roles
}

can_validate if {
	active
	submitted
	instructor_of_fiche
}

can_refuse if {
	active
	submitted
	instructor_of_fiche
}

can_resubmit if {
	active
	refused
	representative_of_fiche
}

can_manage_users if {
	active
	"administrateur" in input.user.roles
}

can_manage_users if {
	active
	"chef de departement" in input.user.roles
}
`

// OPAEvaluator decides workflow gating with a Rego policy. Evaluation failures fall back to
// RulesEvaluator.
type OPAEvaluator struct {
	query    rego.PreparedEvalQuery
	fallback Evaluator
}

// NewOPAEvaluator compiles policy (DefaultRegoPolicy when empty).
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultRegoPolicy
	}
	q, err := rego.New(
		rego.Query(policyQuery),
		rego.Module("koursa_fiche.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	return &OPAEvaluator{query: q, fallback: RulesEvaluator{}}, nil
}

// LoadPolicy returns the contents of path, or DefaultRegoPolicy when path is empty.
func LoadPolicy(path string) (string, error) {
	if path == "" {
		return DefaultRegoPolicy, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read policy file: %w", err)
	}
	return string(b), nil
}

// HealthCheck evaluates the compiled policy against a minimal input.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.eval(ctx, Input{})
	return err
}

// Decide implements Evaluator.
func (e *OPAEvaluator) Decide(ctx context.Context, in Input) (Decision, error) {
	d, err := e.eval(ctx, in)
	if err != nil {
		log.Printf("policy: evaluation failed: %v, using built-in rules", err)
		return e.fallback.Decide(ctx, in)
	}
	return d, nil
}

func (e *OPAEvaluator) eval(ctx context.Context, in Input) (Decision, error) {
	input, err := buildInput(in)
	if err != nil {
		return Decision{}, fmt.Errorf("build input: %w", err)
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{}, fmt.Errorf("policy query returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("policy result has type %T", rs[0].Expressions[0].Value)
	}
	var d Decision
	for name, dst := range map[string]*bool{
		"can_create":   &d.Create,
		"can_validate": &d.Validate,
		"can_refuse":   &d.Refuse,
		"can_resubmit": &d.Resubmit,
	} {
		v, ok := doc[name].(bool)
		if !ok {
			return Decision{}, fmt.Errorf("policy rule %s is missing or not a boolean", name)
		}
		*dst = v
	}
	if v, ok := doc["can_manage_users"]; ok {
		b, isBool := v.(bool)
		if !isBool {
			return Decision{}, fmt.Errorf("policy rule can_manage_users is not a boolean")
		}
		d.ManageUsers = b
	}
	return d, nil
}

type userInput struct {
	ID     int64    `json:"id"`
	Status string   `json:"statut"`
	Roles  []string `json:"roles"`
}

type ficheInput struct {
	ID             int64  `json:"id"`
	Status         string `json:"statut"`
	Representative int64  `json:"delegue"`
	Instructor     int64  `json:"enseignant"`
}

// buildInput round-trips through JSON so OPA sees plain JSON numbers and strings.
func buildInput(in Input) (map[string]interface{}, error) {
	doc := struct {
		User  userInput   `json:"user"`
		Fiche *ficheInput `json:"fiche,omitempty"`
	}{User: userInput{Roles: []string{}}}
	if u := in.User; u != nil {
		doc.User.ID = u.ID
		doc.User.Status = string(u.Status)
		for _, r := range u.Roles {
			doc.User.Roles = append(doc.User.Roles, userdomain.NormalizeRole(r.Name))
		}
	}
	if f := in.Fiche; f != nil {
		doc.Fiche = &ficheInput{ID: f.ID, Status: string(f.Status)}
		if f.RepresentativeID != nil {
			doc.Fiche.Representative = *f.RepresentativeID
		}
		if f.InstructorID != nil {
			doc.Fiche.Instructor = *f.InstructorID
		}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
