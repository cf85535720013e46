package core

import (
	"context"
	"fmt"
	"strings"

	"rostercore/pkg/domain"
)

// NewRequiredNameRule returns the default in-transaction rule requiring both
// name fields to be non-empty after trimming. Each empty field produces its
// own blocking violation so callers can surface per-field messages.
func NewRequiredNameRule() domain.Rule {
	return requiredNameRule{}
}

type requiredNameRule struct{}

func (requiredNameRule) Name() string { return "required_name" }

func (requiredNameRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityPerson || change.Action == domain.ActionDelete {
			continue
		}
		person, ok := change.After.(domain.Person)
		if !ok {
			continue
		}
		for field, value := range map[string]string{
			"first_name": person.FirstName,
			"last_name":  person.LastName,
		} {
			if strings.TrimSpace(value) != "" {
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "required_name",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("%s is required", field),
				Entity:   domain.EntityPerson,
				EntityID: person.ID,
				Field:    field,
			})
		}
	}
	return res, nil
}
