package plugins

import (
	"regexp"
	"strings"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
)

const idTxOrigin = "SOL-TX-ORIGIN"

var txOriginRule = Rule{
	ID:          idTxOrigin,
	Title:       "tx.origin used for authorization",
	Category:    model.CategoryAccessControl,
	Severity:    model.SeverityHigh,
	GasImpact:   model.GasNone,
	Scope:       ScopeText,
	Confidence:  0.85,
	Description: "tx.origin is compared against an address to authorize the caller. A malicious contract the owner interacts with can relay calls that pass this check.",
	Remediation: "Replace tx.origin with msg.sender and implement proper access control.",
	References:  []string{"SWC-115"},
	Detect:      detectTxOrigin,
}

var reTxOrigin = regexp.MustCompile(`tx\.origin\s*(==|!=)\s*[\w.\[\]]+|[\w.\[\]]+\s*(==|!=)\s*tx\.origin`)

func detectTxOrigin(ctx *analysis.Context) ([]model.Match, error) {
	text := ctx.Text()
	var out []model.Match
	for _, m := range reTxOrigin.FindAllStringIndex(text, -1) {
		expr := text[m[0]:m[1]]
		// tx.origin == msg.sender is an EOA check, not authorization
		if strings.Contains(expr, "msg.sender") {
			continue
		}
		out = append(out, model.Match{
			RuleID:   idTxOrigin,
			Span:     model.Span{Start: m[0], End: m[1]},
			Evidence: "tx-origin: " + expr,
		})
	}
	return out, nil
}
