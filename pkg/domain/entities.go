// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by rostercore.
package domain

import (
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityPerson identifies an individual roster record.
	EntityPerson EntityType = "person"
)

// Base carries the identity and bookkeeping fields shared by all entities.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Person represents an individual tracked by the roster. Updates replace the
// record wholesale; there are no partial field semantics.
type Person struct {
	Base
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// DisplayName renders the person for logs and export rows.
func (p Person) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Change captures a single mutation applied within a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was replaced.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity ranks rule violations.
type Severity string

// Violation severities; only SeverityBlock aborts a transaction.
const (
	SeverityBlock Severity = "block"
	SeverityWarn  Severity = "warn"
	SeverityLog   Severity = "log"
)

// Violation reports a failed rule evaluation. Field names the offending
// attribute when the rule checks a single field, otherwise it is empty.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
	Field    string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// FieldViolations returns the blocking violations keyed by field name.
func (r Result) FieldViolations() map[string]string {
	out := make(map[string]string)
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock && v.Field != "" {
			if _, seen := out[v.Field]; !seen {
				out[v.Field] = v.Message
			}
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
