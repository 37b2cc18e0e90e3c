package plugins

import (
	"strings"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/solidity"
)

// Modifier name fragments that indicate caller restrictions.
var accessFragments = []string{
	"only", "auth", "admin", "owner", "role", "govern", "restricted", "guardian",
	"permissioned", "initializer", "whitelisted", "allowlisted",
}

var reentrancyFragments = []string{"nonreentrant", "noreentr", "reentrancyguard", "lock", "mutex"}

var pauseFragments = []string{"whennotpaused", "notpaused", "whenpaused", "pausable", "circuitbreaker"}

// privilegedNames are state variable name fragments that control a contract.
var privilegedNames = []string{
	"owner", "admin", "governance", "governor", "implementation", "oracle", "treasury",
	"minter", "operator", "pauser", "guardian", "controller", "feerecipient", "fee",
	"router", "signer", "manager", "keeper", "beneficiary",
}

// hasAccessGuard reports whether b restricts its callers through a modifier
// or an explicit sender check.
func hasAccessGuard(b *solidity.CodeBlock) bool {
	if b.HasModifier(accessFragments...) {
		return true
	}
	for i := range b.Statements {
		st := &b.Statements[i]
		t := st.Text
		if analysis.IsGuard(st) && (strings.Contains(t, "msg.sender") || strings.Contains(t, "_msgSender()") ||
			strings.Contains(t, "tx.origin") || strings.Contains(t, "hasRole")) {
			return true
		}
		if strings.Contains(t, "_checkOwner(") || strings.Contains(t, "_checkRole(") || strings.Contains(t, "_onlyOwner(") ||
			strings.Contains(t, "_authorize") {
			return true
		}
	}
	return false
}

// callerRestricted extends hasAccessGuard with custom modifiers, resolved
// through the inheritance chain, whose bodies check the caller.
func callerRestricted(ctx *analysis.Context, b *solidity.CodeBlock) bool {
	if hasAccessGuard(b) {
		return true
	}
	for _, name := range b.Modifiers {
		if m := ctx.Modifier(b, name); m != nil && (analysis.Guarded(m, "msg.sender") || analysis.Guarded(m, "_msgSender")) {
			return true
		}
	}
	return false
}

// ownerOnly reports a guard bound to a single privileged account rather
// than a role set or governance process.
func ownerOnly(b *solidity.CodeBlock) bool {
	return b.HasModifier("onlyowner", "onlyadmin", "onlyoperator") || analysis.Any(b, func(st *solidity.Statement) bool {
		return analysis.IsGuard(st) && strings.Contains(st.Text, "msg.sender") &&
			(analysis.Mentions(st.Text, "owner") || analysis.Mentions(st.Text, "admin") || strings.Contains(st.Text, "owner()"))
	}) || analysis.Any(b, func(st *solidity.Statement) bool { return strings.Contains(st.Text, "_checkOwner(") })
}

func hasReentrancyGuard(b *solidity.CodeBlock) bool {
	return b.HasModifier(reentrancyFragments...)
}

func isPrivileged(name string) bool {
	ln := strings.ToLower(name)
	for _, f := range privilegedNames {
		if strings.Contains(ln, f) {
			return true
		}
	}
	return false
}

// mutating reports blocks that may change state when called from outside.
func mutating(b *solidity.CodeBlock) bool {
	return b.Callable() && !b.ReadOnly()
}

// movesFunds reports whether a statement sends ether or tokens.
func movesFunds(st *solidity.Statement) bool {
	for _, c := range st.Calls {
		if c.WithValue || c.Kind == solidity.CallTransfer || c.Kind == solidity.CallSend {
			return true
		}
		switch c.Method {
		case "transfer", "transferFrom", "safeTransfer", "safeTransferFrom", "sendValue":
			return true
		}
	}
	return false
}

func hasCall(st *solidity.Statement, kinds ...solidity.CallKind) bool {
	for _, c := range st.Calls {
		for _, k := range kinds {
			if c.Kind == k {
				return true
			}
		}
	}
	return false
}

// paramNames lists named parameters of b.
func paramNames(b *solidity.CodeBlock) []string {
	var out []string
	for _, p := range b.Params {
		if p.Name != "" {
			out = append(out, p.Name)
		}
	}
	return out
}

// rhs returns the text right of the first top-level plain assignment.
func rhs(text string) string {
	depth := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '=':
			if depth != 0 || i+1 >= len(text) || text[i+1] == '=' || text[i+1] == '>' {
				continue
			}
			if i > 0 && strings.IndexByte("=!<>", text[i-1]) >= 0 {
				continue
			}
			return text[i+1:]
		}
	}
	return ""
}

func compact(s string) string { return strings.Join(strings.Fields(s), " ") }

func containsAny(s string, subs []string) bool {
	for _, x := range subs {
		if strings.Contains(s, x) {
			return true
		}
	}
	return false
}
