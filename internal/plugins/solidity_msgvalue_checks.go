package plugins

import (
	"strings"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/solidity"
)

const idAmountValidation = "SOL-AMOUNT-VALIDATION"

var amountValidationRule = Rule{
	ID:          idAmountValidation,
	Title:       "Missing balance or amount validation",
	Category:    model.CategoryOther,
	Severity:    model.SeverityLow,
	GasImpact:   model.GasLow,
	Confidence:  0.55,
	Description: "An amount supplied by the caller moves funds or updates balances without a prior check (non-zero, within balance, within limits), or a payable function never looks at msg.value.",
	Remediation: "Validate amounts with require before use: non-zero, not above the available balance, and within configured limits. Account for or reject msg.value in payable functions.",
	References:  []string{"input-validation"},
	Detect:      detectAmountValidation,
}

var amountNames = []string{"amount", "value", "qty", "quantity", "shares", "wad", "assets"}

func isAmountParam(p solidity.Param) bool {
	if p.Name == "" || !strings.HasPrefix(p.Type, "uint") || strings.Contains(p.Type, "[") {
		return false
	}
	ln := strings.ToLower(p.Name)
	for _, n := range amountNames {
		if strings.Contains(ln, n) {
			return true
		}
	}
	return false
}

func detectAmountValidation(ctx *analysis.Context) ([]model.Match, error) {
	var out []model.Match
	for _, b := range ctx.Functions() {
		if b.ReadOnly() {
			continue
		}
		if b.Payable() && b.Kind == solidity.KindFunction && len(b.Writes()) > 0 && !strings.Contains(b.BodyText(ctx.Unit), "msg.value") {
			out = append(out, analysis.HeaderMatch(idAmountValidation, b, b.Name+"() is payable but ignores msg.value"))
		}
		for _, p := range b.Params {
			if !isAmountParam(p) {
				continue
			}
			for i := range b.Statements {
				st := &b.Statements[i]
				if !(len(st.Writes) > 0 || movesFunds(st)) || !analysis.Mentions(st.Text, p.Name) {
					continue
				}
				if !analysis.GuardedBefore(b, p.Name, i) {
					out = append(out, analysis.Match(idAmountValidation, st, p.Name+" used before any validation"))
				}
				break
			}
		}
	}
	return out, nil
}
