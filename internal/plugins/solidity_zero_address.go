package plugins

import (
	"strings"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/solidity"
)

const idZeroAddress = "SOL-ZERO-ADDRESS"

var zeroAddressRule = Rule{
	ID:          idZeroAddress,
	Title:       "Missing zero-address validation",
	Category:    model.CategoryOther,
	Severity:    model.SeverityLow,
	GasImpact:   model.GasLow,
	Confidence:  0.6,
	Description: "An address parameter is stored in state without checking it against address(0). A mistaken call can lock ownership or send funds to the zero address.",
	Remediation: "require(param != address(0)) before storing addresses that receive funds or privileges.",
	References:  []string{"missing-zero-check"},
	Detect:      detectZeroAddress,
}

func detectZeroAddress(ctx *analysis.Context) ([]model.Match, error) {
	var out []model.Match
	for _, b := range ctx.Blocks() {
		if b.Kind == solidity.KindModifier || b.ReadOnly() {
			continue
		}
		var addrs []string
		for _, p := range b.Params {
			if p.Name != "" && strings.HasPrefix(p.Type, "address") && !strings.Contains(p.Type, "[") {
				addrs = append(addrs, p.Name)
			}
		}
		if len(addrs) == 0 {
			continue
		}
		reported := map[string]bool{}
		for i := range b.Statements {
			st := &b.Statements[i]
			if len(st.Writes) == 0 {
				continue
			}
			value := rhs(st.Text)
			for _, a := range addrs {
				if reported[a] || !analysis.Mentions(value, a) || analysis.GuardedBefore(b, a, i) {
					continue
				}
				reported[a] = true
				out = append(out, analysis.Match(idZeroAddress, st, a+" stored without address(0) check"))
			}
		}
	}
	return out, nil
}
