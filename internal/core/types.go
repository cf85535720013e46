package core

import "rostercore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Person             = domain.Person
	Change             = domain.Change
	Action             = domain.Action
	Severity           = domain.Severity
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	RosterSnapshot     = domain.RosterSnapshot
	CommitNotice       = domain.CommitNotice
)

const (
	EntityPerson = domain.EntityPerson
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
