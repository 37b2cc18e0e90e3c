package plugins

import (
	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
)

const idTimestamp = "SOL-TIMESTAMP"

var timestampRule = Rule{
	ID:          idTimestamp,
	Title:       "Control flow depends on block timestamp",
	Category:    model.CategoryTimestamp,
	Severity:    model.SeverityLow,
	GasImpact:   model.GasNone,
	Confidence:  0.5,
	Description: "A branch or requirement compares against block.timestamp. Validators can shift the timestamp by several seconds, which matters for tight windows and equality checks.",
	Remediation: "Avoid strict equality on timestamps and keep time windows coarse enough that a few seconds of drift cannot change the outcome.",
	References:  []string{"SWC-116"},
	Detect:      detectTimestamp,
}

func detectTimestamp(ctx *analysis.Context) ([]model.Match, error) {
	var out []model.Match
	for _, b := range ctx.Blocks() {
		for i := range b.Statements {
			st := &b.Statements[i]
			if !analysis.IsGuard(st) && st.Keyword != "while" {
				continue
			}
			if analysis.Mentions(st.Text, "block.timestamp") || analysis.Mentions(st.Text, "now") {
				out = append(out, analysis.Match(idTimestamp, st, "branch on block timestamp"))
			}
		}
	}
	return out, nil
}
