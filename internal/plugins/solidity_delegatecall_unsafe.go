package plugins

import (
	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/solidity"
)

const idDelegatecall = "SOL-UNSAFE-DELEGATECALL"

var delegatecallRule = Rule{
	ID:          idDelegatecall,
	Title:       "delegatecall to potentially untrusted target",
	Category:    model.CategoryExternalCalls,
	Severity:    model.SeverityCritical,
	GasImpact:   model.GasNone,
	Confidence:  0.75,
	Description: "delegatecall runs foreign code against this contract's storage and balance. The target is taken from caller input, or from a state variable that any caller can overwrite.",
	Remediation: "Restrict and validate delegatecall targets. Keep implementation addresses behind access control and prefer audited UUPS or transparent proxy patterns.",
	References:  []string{"SWC-112"},
	Detect:      detectDelegatecall,
}

func detectDelegatecall(ctx *analysis.Context) ([]model.Match, error) {
	open := openlyWritable(ctx)
	var out []model.Match
	for _, b := range ctx.Blocks() {
		if b.Kind == solidity.KindModifier {
			continue
		}
		guarded := hasAccessGuard(b)
		inputs := append(paramNames(b), "msg.data", "msg.sender")
		derived := analysis.Derived(b, paramNames(b))
		for i := range b.Statements {
			st := &b.Statements[i]
			for _, c := range st.Calls {
				if c.Kind != solidity.CallDelegate {
					continue
				}
				root := rootIdent(c.Receiver)
				tainted := analysis.MentionsAny(c.Receiver, inputs) || derived[root]
				switch {
				case tainted && !guarded && b.Callable():
					out = append(out, analysis.Match(idDelegatecall, st, "delegatecall target "+c.Receiver+" comes from caller input"))
				case open[b.Contract+"."+root]:
					out = append(out, analysis.Match(idDelegatecall, st, "delegatecall target "+root+" is writable by any caller"))
				}
			}
		}
	}
	return out, nil
}

// openlyWritable collects contract.var keys for state variables written by
// callable functions that have no access guard.
func openlyWritable(ctx *analysis.Context) map[string]bool {
	out := map[string]bool{}
	for _, b := range ctx.Functions() {
		if b.ReadOnly() || hasAccessGuard(b) {
			continue
		}
		for _, w := range b.Writes() {
			out[b.Contract+"."+w] = true
		}
	}
	return out
}

// rootIdent returns the leading identifier of an expression, skipping a
// wrapping address(...) or payable(...) cast.
func rootIdent(expr string) string {
	for _, cast := range []string{"address(", "payable("} {
		for len(expr) > len(cast) && expr[:len(cast)] == cast {
			expr = expr[len(cast):]
		}
	}
	ids := analysis.Identifiers(expr)
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}
