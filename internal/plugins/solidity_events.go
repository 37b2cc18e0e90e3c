package plugins

import (
	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/solidity"
)

const idMissingEvent = "SOL-MISSING-EVENT"

var missingEventRule = Rule{
	ID:          idMissingEvent,
	Title:       "State change without event emission",
	Category:    model.CategoryOther,
	Severity:    model.SeverityLow,
	GasImpact:   model.GasLow,
	Confidence:  0.5,
	Description: "A public function updates contract configuration or ownership without emitting an event. Off-chain monitors and users cannot track the change.",
	Remediation: "Emit an event when updating critical state variables and include the old and new values.",
	References:  []string{"SWC-1010"},
	Detect:      detectMissingEvent,
}

func detectMissingEvent(ctx *analysis.Context) ([]model.Match, error) {
	var out []model.Match
	for _, b := range ctx.Functions() {
		if b.ReadOnly() || b.Kind != solidity.KindFunction {
			continue
		}
		if analysis.Any(b, analysis.IsKind(solidity.StmtEventEmit)) {
			continue
		}
		// config-style writes: scalar state, not per-user mappings or arrays
		var written string
		for _, w := range b.Writes() {
			if v, ok := ctx.StateVar(b, w); ok && !v.Mapping && !v.DynamicArray && !v.Constant && !v.Immutable {
				written = w
				break
			}
		}
		if written != "" {
			out = append(out, analysis.HeaderMatch(idMissingEvent, b, b.Name+"() updates "+written+" silently"))
		}
	}
	return out, nil
}
