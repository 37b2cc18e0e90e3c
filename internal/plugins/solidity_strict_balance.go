package plugins

import (
	"regexp"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
)

const idStrictBalance = "SOL-STRICT-BALANCE"

var strictBalanceRule = Rule{
	ID:          idStrictBalance,
	Title:       "Strict equality on contract balance",
	Category:    model.CategoryOther,
	Severity:    model.SeverityMedium,
	GasImpact:   model.GasNone,
	Scope:       ScopeText,
	Confidence:  0.8,
	Description: "The contract's ether balance is compared with == or !=. Ether can be forced into any contract (selfdestruct, coinbase rewards), so the equality can be broken permanently.",
	Remediation: "Track deposits in an internal accounting variable, or compare with >= / <= instead of strict equality.",
	References:  []string{"SWC-132"},
	Detect:      detectStrictBalance,
}

var reStrictBalance = regexp.MustCompile(`(address\s*\(\s*this\s*\)|\bthis)\s*\.\s*balance\s*(==|!=)|(==|!=)\s*(address\s*\(\s*this\s*\)|\bthis)\s*\.\s*balance\b`)

func detectStrictBalance(ctx *analysis.Context) ([]model.Match, error) {
	text := ctx.Text()
	var out []model.Match
	for _, m := range reStrictBalance.FindAllStringIndex(text, -1) {
		out = append(out, model.Match{RuleID: idStrictBalance, Span: model.Span{Start: m[0], End: m[1]}, Evidence: compact(text[m[0]:m[1]])})
	}
	return out, nil
}
