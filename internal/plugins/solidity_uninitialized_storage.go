package plugins

import (
	"strings"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/solidity"
)

const idUninitializedStorage = "SOL-UNINITIALIZED-STORAGE"

var uninitializedStorageRule = Rule{
	ID:          idUninitializedStorage,
	Title:       "Uninitialized storage pointer",
	Category:    model.CategoryOther,
	Severity:    model.SeverityHigh,
	GasImpact:   model.GasNone,
	Confidence:  0.7,
	Description: "A local struct, array or mapping variable is declared without a data location under a pre-0.5 compiler. It defaults to a storage pointer at slot 0, so writes through it overwrite unrelated state variables.",
	Remediation: "Declare the variable memory, or initialize it from an existing storage reference. Upgrade to Solidity 0.5 or later, which rejects this pattern.",
	References:  []string{"SWC-109"},
	Detect:      detectUninitializedStorage,
}

func detectUninitializedStorage(ctx *analysis.Context) ([]model.Match, error) {
	if !preV05Compiler(ctx.Program) {
		return nil, nil
	}
	var out []model.Match
	for _, b := range ctx.Blocks() {
		var structs []string
		if c := ctx.Program.Contract(b.Contract); c != nil {
			structs = c.Structs
		}
		for i := range b.Statements {
			st := &b.Statements[i]
			d := st.Decl
			if d == nil || d.Location != "" || strings.Contains(st.Text, "=") {
				continue
			}
			if referenceType(d.Type, structs) {
				out = append(out, analysis.Match(idUninitializedStorage, st, d.Type+" "+d.Name))
			}
		}
	}
	return out, nil
}

// preV05Compiler reports a pragma that admits compilers before 0.5.
func preV05Compiler(p *solidity.Program) bool {
	for _, pr := range p.Pragmas {
		if pr.Major == 0 && pr.Minor > 0 && pr.Minor < 5 {
			return true
		}
	}
	return false
}

func referenceType(t string, structs []string) bool {
	if strings.HasSuffix(t, "]") || strings.HasPrefix(t, "mapping") {
		return true
	}
	for _, s := range structs {
		if t == s {
			return true
		}
	}
	return false
}
