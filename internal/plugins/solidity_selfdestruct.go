package plugins

import (
	"regexp"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
)

const idSelfdestruct = "SOL-UNPROTECTED-SELFDESTRUCT"

var selfdestructRule = Rule{
	ID:          idSelfdestruct,
	Title:       "selfdestruct reachable without access control",
	Category:    model.CategoryAccessControl,
	Severity:    model.SeverityCritical,
	GasImpact:   model.GasNone,
	Confidence:  0.85,
	Description: "A public or external function executes selfdestruct without restricting the caller. Anyone can disable the contract and sweep its ether to an address of their choosing.",
	Remediation: "Remove selfdestruct. If it must stay, restrict it behind multisig or timelock access control and a fixed, vetted beneficiary.",
	References:  []string{"SWC-106"},
	Detect:      detectSelfdestruct,
}

var reSelfdestruct = regexp.MustCompile(`\b(selfdestruct|suicide)\s*\(`)

func detectSelfdestruct(ctx *analysis.Context) ([]model.Match, error) {
	var out []model.Match
	for _, b := range ctx.Functions() {
		if hasAccessGuard(b) {
			continue
		}
		for i := range b.Statements {
			st := &b.Statements[i]
			if st.Assembly {
				continue
			}
			if m := reSelfdestruct.FindString(st.Text); m != "" {
				out = append(out, analysis.Match(idSelfdestruct, st, b.Name+"() can be called by anyone"))
			}
		}
	}
	return out, nil
}
