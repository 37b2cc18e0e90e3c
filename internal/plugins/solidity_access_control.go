package plugins

import (
	"sort"
	"strings"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/solidity"
)

const (
	idUnprotectedState = "SOL-UNPROTECTED-STATE-CHANGE"
	idAccessModifier   = "SOL-ACCESS-MODIFIER"
)

var unprotectedStateRule = Rule{
	ID:          idUnprotectedState,
	Title:       "Privileged state changed without access control",
	Category:    model.CategoryAccessControl,
	Severity:    model.SeverityCritical,
	GasImpact:   model.GasNone,
	Confidence:  0.8,
	Description: "A public or external function writes a state variable that controls the contract (owner, admin, implementation, oracle, treasury and similar) without any caller restriction. Anyone can take over that role.",
	Remediation: "Add an access-control modifier (onlyOwner, onlyRole) or an explicit msg.sender check. Run initializers exactly once through an initializer guard.",
	References:  []string{"SWC-105", "SWC-106"},
	Detect:      detectUnprotectedState,
}

var accessModifierRule = Rule{
	ID:          idAccessModifier,
	Title:       "Missing or inconsistent access-control modifier",
	Category:    model.CategoryAccessControl,
	Severity:    model.SeverityMedium,
	GasImpact:   model.GasNone,
	Confidence:  0.6,
	Description: "An administrative-looking function, or one writing state that other functions of the same contract protect, can be called by anyone.",
	Remediation: "Apply the same access-control modifier to every function that mutates the protected state, or document why open access is intended.",
	References:  []string{"SWC-105"},
	Detect:      detectAccessModifier,
}

func detectUnprotectedState(ctx *analysis.Context) ([]model.Match, error) {
	var out []model.Match
	for _, b := range ctx.Functions() {
		if b.ReadOnly() || callerRestricted(ctx, b) {
			continue
		}
		for i := range b.Statements {
			st := &b.Statements[i]
			for _, w := range st.Writes {
				if v, ok := ctx.StateVar(b, w); ok && isPrivileged(v.Name) && !v.Mapping {
					out = append(out, analysis.Match(idUnprotectedState, st, b.Name+"() sets "+w+" without caller check"))
					break
				}
			}
		}
	}
	return out, nil
}

// adminPrefixes mark function names that conventionally require privileges.
var adminPrefixes = []string{
	"set", "update", "mint", "pause", "unpause", "upgrade", "rescue", "sweep",
	"emergency", "withdrawall", "kill", "destroy", "configure", "grant", "revoke",
	"blacklist", "whitelist", "changeowner", "transferownership",
}

func detectAccessModifier(ctx *analysis.Context) ([]model.Match, error) {
	// state written by guarded functions, per contract
	protected := map[string]map[string]bool{}
	for _, b := range ctx.Functions() {
		if b.ReadOnly() || !callerRestricted(ctx, b) {
			continue
		}
		if protected[b.Contract] == nil {
			protected[b.Contract] = map[string]bool{}
		}
		for _, w := range b.Writes() {
			protected[b.Contract][w] = true
		}
	}

	var out []model.Match
	for _, b := range ctx.Functions() {
		if b.ReadOnly() || callerRestricted(ctx, b) || b.Kind != solidity.KindFunction {
			continue
		}
		writes := b.Writes()
		var shared []string
		for _, w := range writes {
			if protected[b.Contract][w] {
				if v, ok := ctx.StateVar(b, w); ok && !(isPrivileged(v.Name) && !v.Mapping) {
					shared = append(shared, w)
				}
			}
		}
		switch {
		case len(shared) > 0:
			sort.Strings(shared)
			out = append(out, analysis.HeaderMatch(idAccessModifier, b,
				b.Name+"() writes "+strings.Join(shared, ", ")+" which guarded functions also write"))
		case adminName(b.Name) && (len(writes) > 0 || analysis.Any(b, analysis.IsKind(solidity.StmtExternalCall))):
			out = append(out, analysis.HeaderMatch(idAccessModifier, b, b.Name+"() looks administrative but has no access modifier"))
		}
	}
	return out, nil
}

func adminName(name string) bool {
	ln := strings.ToLower(name)
	if strings.Contains(ln, "approv") {
		return false
	}
	for _, p := range adminPrefixes {
		if strings.HasPrefix(ln, p) {
			return true
		}
	}
	return false
}
