package plugins

import (
	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/solidity"
)

const idMissingPause = "SOL-MISSING-PAUSE"

var missingPauseRule = Rule{
	ID:          idMissingPause,
	Title:       "Fund-moving function without pause hook",
	Category:    model.CategoryAvailability,
	Severity:    model.SeverityLow,
	GasImpact:   model.GasNone,
	Confidence:  0.45,
	Description: "A public function transfers ether or tokens and has no circuit breaker. When an exploit is under way there is no way to halt outflows.",
	Remediation: "Inherit Pausable and apply whenNotPaused to functions that move funds, with pause rights held by a guardian.",
	References:  []string{"circuit-breaker"},
	Detect:      detectMissingPause,
}

func detectMissingPause(ctx *analysis.Context) ([]model.Match, error) {
	var out []model.Match
	for _, b := range ctx.Functions() {
		if b.ReadOnly() || b.HasModifier(pauseFragments...) || hasAccessGuard(b) {
			continue
		}
		if analysis.Any(b, func(st *solidity.Statement) bool {
			return analysis.IsGuard(st) && (analysis.Mentions(st.Text, "paused") || analysis.Mentions(st.Text, "_requireNotPaused"))
		}) {
			continue
		}
		if i := analysis.FirstIndex(b, movesFunds); i >= 0 {
			out = append(out, analysis.HeaderMatch(idMissingPause, b, b.Name+"() moves funds with no pause check"))
		}
	}
	return out, nil
}
