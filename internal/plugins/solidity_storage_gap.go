package plugins

import (
	"strings"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/solidity"
)

const idStorageGap = "SOL-STORAGE-GAP"

var storageGapRule = Rule{
	ID:          idStorageGap,
	Title:       "Upgradeable contract without storage gap",
	Category:    model.CategoryOther,
	Severity:    model.SeverityMedium,
	GasImpact:   model.GasNone,
	Confidence:  0.55,
	Description: "An upgradeable contract declares state but reserves no __gap slots. Adding variables in a later version shifts the storage layout of every contract that inherits it.",
	Remediation: "Reserve slots with uint256[50] private __gap; and shrink the gap as new variables are added, following OpenZeppelin upgradeable guidelines.",
	References:  []string{"OpenZeppelin Upgradeable: storage gaps"},
	Detect:      detectStorageGap,
}

var upgradeFunctions = []string{"upgradeto", "upgradetoandcall", "_authorizeupgrade"}

func detectStorageGap(ctx *analysis.Context) ([]model.Match, error) {
	var out []model.Match
	text := ctx.Text()
	for i := range ctx.Program.Contracts {
		c := &ctx.Program.Contracts[i]
		if c.Kind == "interface" || c.Kind == "library" || !upgradeable(ctx, c) {
			continue
		}
		mutable, gap := 0, false
		for _, v := range c.StateVars {
			if strings.HasPrefix(v.Name, "__gap") {
				gap = true
			}
			if !v.Constant && !v.Immutable {
				mutable++
			}
		}
		if gap || mutable == 0 {
			continue
		}
		end := c.Span.Start + strings.IndexByte(text[c.Span.Start:], '{')
		if end < c.Span.Start {
			end = c.Span.Start
		}
		out = append(out, model.Match{
			RuleID:   idStorageGap,
			Span:     model.Span{Start: c.Span.Start, End: end},
			Evidence: compact(text[c.Span.Start:end]),
		})
	}
	return out, nil
}

// upgradeable reports contracts that inherit an upgradeable base or carry
// their own upgrade entry point.
func upgradeable(ctx *analysis.Context, c *solidity.Contract) bool {
	for _, b := range c.Bases {
		if strings.Contains(strings.ToLower(b), "upgradeable") {
			return true
		}
	}
	for _, b := range ctx.Blocks() {
		if b.Contract != c.Name || b.Kind != solidity.KindFunction {
			continue
		}
		for _, name := range upgradeFunctions {
			if strings.EqualFold(b.Name, name) {
				return true
			}
		}
	}
	return false
}
