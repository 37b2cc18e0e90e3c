package plugins

import (
	"fmt"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/solidity"
)

const idReentrancy = "SOL-REENTRANCY"

var reentrancyRule = Rule{
	ID:          idReentrancy,
	Title:       "External call before state update",
	Category:    model.CategoryReentrancy,
	Severity:    model.SeverityCritical,
	GasImpact:   model.GasLow,
	Confidence:  0.8,
	Description: "An external call hands control to another contract before this function finishes updating its own state. The callee can re-enter and observe or exploit the stale state.",
	Remediation: "Apply checks-effects-interactions: update balances and other state before the external call, or add a nonReentrant guard. Prefer pull payments.",
	References:  []string{"SWC-107"},
	Detect:      detectReentrancy,
}

// reentrancy automaton states
const (
	seekingCall analysis.State = iota
	callSeen
	writeAfterCall
)

// reentrantCall reports calls that forward enough gas to re-enter.
func reentrantCall(st *solidity.Statement) bool {
	for _, c := range st.Calls {
		switch c.Kind {
		case solidity.CallLowLevel, solidity.CallDelegate, solidity.CallInterface:
			return true
		}
	}
	return false
}

func detectReentrancy(ctx *analysis.Context) ([]model.Match, error) {
	var out []model.Match
	for _, b := range ctx.Functions() {
		if b.ReadOnly() || hasReentrancyGuard(b) {
			continue
		}
		call := -1
		analysis.Walk(b, func(s analysis.State, i int, st *solidity.Statement) (analysis.State, bool) {
			switch {
			case reentrantCall(st):
				call = i
				return callSeen, false
			case s == callSeen && len(st.Writes) > 0:
				c := &b.Statements[call]
				out = append(out, analysis.Match(idReentrancy, c,
					fmt.Sprintf("%s() calls out before writing %s", b.Name, st.Writes[0])))
				return writeAfterCall, true
			}
			return s, false
		})
	}
	return out, nil
}
