package model

import "errors"

var (
	// ErrInputTooLarge is returned when the source exceeds the configured size ceiling.
	ErrInputTooLarge = errors.New("input too large")
	// ErrDuplicateRuleID is returned when a rule id is registered twice.
	ErrDuplicateRuleID = errors.New("duplicate rule id")
)

// Warning flags attached to a SourceUnit and copied into report metadata.
const (
	WarnUnterminatedLiteral = "unterminatedLiteral"
	WarnUnparsableBlock     = "unparsableBlock"
)
