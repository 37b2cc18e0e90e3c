package plugins

import (
	"regexp"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/solidity"
)

const idUnboundedLoop = "SOL-UNBOUNDED-LOOP"

var unboundedLoopRule = Rule{
	ID:          idUnboundedLoop,
	Title:       "Unbounded loop over dynamic storage array",
	Category:    model.CategoryAvailability,
	Severity:    model.SeverityMedium,
	GasImpact:   model.GasHigh,
	Confidence:  0.65,
	Description: "A loop iterates over the full length of a storage array that can grow without bound and performs external calls or storage writes per element. Once the array is large enough the function exceeds the block gas limit, and a single reverting callee blocks every iteration.",
	Remediation: "Bound the array length, paginate the work across transactions, or switch to a pull pattern where each recipient claims individually.",
	References:  []string{"SWC-128", "SWC-113"},
	Detect:      detectUnboundedLoop,
}

var reLength = regexp.MustCompile(`([A-Za-z_]\w*)\s*\.\s*length\b`)

func detectUnboundedLoop(ctx *analysis.Context) ([]model.Match, error) {
	var out []model.Match
	for _, b := range ctx.Blocks() {
		for i := range b.Statements {
			hdr := &b.Statements[i]
			if hdr.Keyword != "for" && hdr.Keyword != "while" {
				continue
			}
			arr := ""
			for _, m := range reLength.FindAllStringSubmatch(hdr.Text, -1) {
				if v, ok := ctx.StateVar(b, m[1]); ok && v.DynamicArray {
					arr = m[1]
					break
				}
			}
			if arr == "" {
				continue
			}
			calls, writes := false, false
			for j := i + 1; j < len(b.Statements) && b.Statements[j].LoopDepth > hdr.LoopDepth; j++ {
				st := &b.Statements[j]
				calls = calls || st.Kind == solidity.StmtExternalCall
				writes = writes || len(st.Writes) > 0
			}
			switch {
			case calls:
				out = append(out, analysis.Match(idUnboundedLoop, hdr, "loop over "+arr+".length makes external calls"))
			case writes:
				out = append(out, analysis.Match(idUnboundedLoop, hdr, "loop over "+arr+".length writes storage"))
			}
		}
	}
	return out, nil
}
