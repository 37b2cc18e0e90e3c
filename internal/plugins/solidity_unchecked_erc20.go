package plugins

import (
	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/solidity"
)

const idUncheckedReturn = "SOL-UNCHECKED-RETURN"

var uncheckedReturnRule = Rule{
	ID:          idUncheckedReturn,
	Title:       "Unchecked ERC20 return value",
	Category:    model.CategoryExternalCalls,
	Severity:    model.SeverityHigh,
	GasImpact:   model.GasNone,
	Confidence:  0.7,
	Description: "An ERC20 transfer, transferFrom or approve is called as a bare statement. Tokens that return false instead of reverting leave the failure unnoticed.",
	Remediation: "Use OpenZeppelin SafeERC20 (safeTransfer, safeTransferFrom, forceApprove) or require the returned boolean.",
	References:  []string{"SWC-104"},
	Detect:      detectUncheckedReturn,
}

var boolReturning = map[string]bool{"transfer": true, "transferFrom": true, "approve": true}

func detectUncheckedReturn(ctx *analysis.Context) ([]model.Match, error) {
	var out []model.Match
	for _, b := range ctx.Blocks() {
		for i := range b.Statements {
			st := &b.Statements[i]
			if st.Kind != solidity.StmtExternalCall || !bareStatement(st) {
				continue
			}
			for _, c := range st.Calls {
				if c.Kind == solidity.CallInterface && boolReturning[c.Method] {
					out = append(out, analysis.Match(idUncheckedReturn, st, c.Receiver+"."+c.Method+" result ignored"))
					break
				}
			}
		}
	}
	return out, nil
}

// bareStatement reports an expression statement whose value is discarded.
func bareStatement(st *solidity.Statement) bool {
	if st.Decl != nil || analysis.IsGuard(st) || controlKeyword(st.Keyword) {
		return false
	}
	switch st.Keyword {
	case "return", "emit", "try", "catch":
		return false
	}
	return rhs(st.Text) == ""
}

func controlKeyword(kw string) bool {
	switch kw {
	case "if", "else", "for", "while", "do":
		return true
	}
	return false
}
