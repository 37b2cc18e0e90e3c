package plugins

import (
	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
)

const idFloatingPragma = "SOL-FLOATING-PRAGMA"

var floatingPragmaRule = Rule{
	ID:          idFloatingPragma,
	Title:       "Floating pragma solidity version",
	Category:    model.CategoryOther,
	Severity:    model.SeverityLow,
	GasImpact:   model.GasNone,
	Scope:       ScopeText,
	Confidence:  0.9,
	Description: "The compiler version is a range. Deployments may be built with a different compiler than the one tested, including versions with known bugs.",
	Remediation: "Pin to an exact compiler version, e.g., pragma solidity 0.8.24; and enforce it in CI.",
	References:  []string{"SWC-103"},
	Detect:      detectFloatingPragma,
}

func detectFloatingPragma(ctx *analysis.Context) ([]model.Match, error) {
	var out []model.Match
	for _, p := range ctx.Program.Pragmas {
		if p.Floating {
			out = append(out, model.Match{RuleID: idFloatingPragma, Span: p.Span, Evidence: compact(p.Text)})
		}
	}
	return out, nil
}
