package plugins

import (
	"strings"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
)

const idRandomness = "SOL-WEAK-RANDOMNESS"

var randomnessRule = Rule{
	ID:          idRandomness,
	Title:       "Weak randomness from chain attributes",
	Category:    model.CategoryRandomness,
	Severity:    model.SeverityHigh,
	GasImpact:   model.GasNone,
	Confidence:  0.75,
	Description: "A random outcome is derived from block properties (timestamp, prevrandao, difficulty, blockhash, number, coinbase). Validators can influence these values and other contracts can compute them in the same block.",
	Remediation: "Use Chainlink VRF or a commit-reveal scheme instead of chain attributes.",
	References:  []string{"SWC-120"},
	Detect:      detectRandomness,
}

var entropySources = []string{
	"block.timestamp", "block.prevrandao", "block.difficulty", "blockhash(", "block.blockhash(",
	"block.number", "block.coinbase", "block.gaslimit",
}

// randomShaped reports expressions that hash or reduce a value into a range.
func randomShaped(text string) bool {
	return strings.Contains(text, "keccak256(") || strings.Contains(text, "sha256(") || strings.Contains(text, "%")
}

func detectRandomness(ctx *analysis.Context) ([]model.Match, error) {
	var out []model.Match
	for _, b := range ctx.Blocks() {
		derived := analysis.Derived(b, entropySources)
		var names []string
		for n := range derived {
			names = append(names, n)
		}
		for i := range b.Statements {
			st := &b.Statements[i]
			if !randomShaped(st.Text) {
				continue
			}
			if containsAny(st.Text, entropySources) || analysis.MentionsAny(st.Text, names) {
				out = append(out, analysis.Match(idRandomness, st, "random value derived from block attributes"))
				break
			}
		}
	}
	return out, nil
}
