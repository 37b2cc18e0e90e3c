package plugins

import (
	"strings"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/solidity"
)

const idUncheckedLowLevel = "SOL-UNCHECKED-LOWLEVEL"

var uncheckedLowLevelRule = Rule{
	ID:          idUncheckedLowLevel,
	Title:       "Unchecked low-level call",
	Category:    model.CategoryExternalCalls,
	Severity:    model.SeverityHigh,
	GasImpact:   model.GasNone,
	Confidence:  0.8,
	Description: "The boolean returned by call, delegatecall, staticcall or send is discarded or never tested. A failed call silently continues execution.",
	Remediation: "Capture the boolean return and handle failures with require, an if/revert, or explicit rollback.",
	References:  []string{"SWC-104"},
	Detect:      detectUncheckedLowLevel,
}

// success-check automaton states
const (
	capturing analysis.State = iota + 1
)

var typeWords = map[string]bool{"bool": true, "bytes": true, "memory": true}

func detectUncheckedLowLevel(ctx *analysis.Context) ([]model.Match, error) {
	var out []model.Match
	for _, b := range ctx.Blocks() {
		type pending struct {
			name string
			at   int
		}
		var open []pending
		analysis.Walk(b, func(s analysis.State, i int, st *solidity.Statement) (analysis.State, bool) {
			// a later guard or return consumes pending captures
			if len(open) > 0 && (analysis.IsGuard(st) || st.Keyword == "return") {
				kept := open[:0]
				for _, p := range open {
					if !analysis.Mentions(st.Text, p.name) {
						kept = append(kept, p)
					}
				}
				open = kept
			}
			if !hasCall(st, solidity.CallLowLevel, solidity.CallDelegate, solidity.CallStatic, solidity.CallSend) {
				if len(open) == 0 {
					return analysis.Start, false
				}
				return s, false
			}
			if analysis.IsGuard(st) || st.Keyword == "return" {
				return s, false
			}
			if name := capturedName(st); name != "" {
				open = append(open, pending{name: name, at: i})
				return capturing, false
			}
			out = append(out, analysis.Match(idUncheckedLowLevel, st, "return value discarded"))
			return s, true
		})
		for _, p := range open {
			out = append(out, analysis.Match(idUncheckedLowLevel, &b.Statements[p.at], p.name+" is never checked"))
		}
	}
	return out, nil
}

// capturedName returns the success variable a call statement assigns.
func capturedName(st *solidity.Statement) string {
	text := st.Text
	eq := strings.Index(text, "=")
	if eq <= 0 || rhs(text) == "" {
		return ""
	}
	for _, id := range analysis.Identifiers(text[:eq]) {
		if !typeWords[id] {
			return id
		}
	}
	return ""
}
