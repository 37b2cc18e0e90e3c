package plugins

import (
	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
)

const idShadowing = "SOL-SHADOWING"

var shadowingRule = Rule{
	ID:          idShadowing,
	Title:       "Local variable shadows state variable",
	Category:    model.CategoryOther,
	Severity:    model.SeverityLow,
	GasImpact:   model.GasNone,
	Confidence:  0.7,
	Description: "A local variable or parameter has the same name as a state variable. Code after the declaration reads and writes the local, while the author may believe it touches storage.",
	Remediation: "Rename the local or parameter, for example with a leading or trailing underscore.",
	References:  []string{"SWC-119"},
	Detect:      detectShadowing,
}

func detectShadowing(ctx *analysis.Context) ([]model.Match, error) {
	var out []model.Match
	for _, b := range ctx.Blocks() {
		for _, p := range b.Params {
			if _, ok := ctx.StateVar(b, p.Name); ok && p.Name != "" {
				out = append(out, analysis.HeaderMatch(idShadowing, b, "parameter "+p.Name+" shadows state variable"))
			}
		}
		for i := range b.Statements {
			st := &b.Statements[i]
			if st.Decl == nil {
				continue
			}
			if _, ok := ctx.StateVar(b, st.Decl.Name); ok {
				out = append(out, analysis.Match(idShadowing, st, "local "+st.Decl.Name+" shadows state variable"))
			}
		}
	}
	return out, nil
}
