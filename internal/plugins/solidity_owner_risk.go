package plugins

import (
	"regexp"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/solidity"
)

const idCentralization = "SOL-CENTRALIZATION"

var centralizationRule = Rule{
	ID:          idCentralization,
	Title:       "Single-owner control over critical function",
	Category:    model.CategoryCentralization,
	Severity:    model.SeverityMedium,
	GasImpact:   model.GasNone,
	Confidence:  0.6,
	Description: "One privileged account can immediately move funds, mint, change critical addresses or destroy the contract. There is no multi-step ownership transfer, timelock or multisig in between.",
	Remediation: "Put critical functions behind a timelock and multisig, use two-step ownership transfer (Ownable2Step), and document the operational procedure.",
	References:  []string{"governance-best-practices"},
	Detect:      detectCentralization,
}

var (
	reDecentralized = regexp.MustCompile(`(?i)timelock|multisig|Ownable2Step|pendingOwner|acceptOwnership|Governor`)
	reCritical      = regexp.MustCompile(`\b(selfdestruct|_mint|_burn|_pause|_unpause|_upgradeTo\w*|_setImplementation)\s*\(`)
)

func detectCentralization(ctx *analysis.Context) ([]model.Match, error) {
	if reDecentralized.MatchString(ctx.Text()) {
		return nil, nil
	}
	var out []model.Match
	for _, b := range ctx.Functions() {
		if b.ReadOnly() || !ownerOnly(b) {
			continue
		}
		why := ""
		for i := range b.Statements {
			st := &b.Statements[i]
			switch {
			case movesFunds(st) || hasCall(st, solidity.CallLowLevel, solidity.CallDelegate):
				why = "moves funds"
			case reCritical.MatchString(st.Text):
				why = "performs " + reCritical.FindStringSubmatch(st.Text)[1]
			default:
				for _, w := range st.Writes {
					if v, ok := ctx.StateVar(b, w); ok && isPrivileged(v.Name) {
						why = "changes " + w
						break
					}
				}
			}
			if why != "" {
				break
			}
		}
		if why != "" {
			out = append(out, analysis.HeaderMatch(idCentralization, b, "owner-only "+b.Name+"() "+why))
		}
	}
	return out, nil
}
