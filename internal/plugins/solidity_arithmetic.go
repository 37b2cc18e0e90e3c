package plugins

import (
	"regexp"
	"strings"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/solidity"
)

const idArithmetic = "SOL-ARITHMETIC"

var arithmeticRule = Rule{
	ID:          idArithmetic,
	Title:       "Unguarded arithmetic can overflow or underflow",
	Category:    model.CategoryArithmeticSafety,
	Severity:    model.SeverityHigh,
	GasImpact:   model.GasLow,
	Confidence:  0.6,
	Description: "Arithmetic on stored values runs without overflow checks: the compiler version predates 0.8 and SafeMath is not used, the expression sits inside an unchecked block, or a value is narrowed with an explicit downcast.",
	Remediation: "Compile with Solidity >= 0.8, use SafeMath on older compilers, keep unchecked blocks to provably bounded counters, and use SafeCast for narrowing conversions.",
	References:  []string{"SWC-101"},
	Detect:      detectArithmetic,
}

var (
	reArith    = regexp.MustCompile(`[+\-*]=|[\w)\]]\s*[+\-*]\s*[\w(]`)
	reDowncast = regexp.MustCompile(`\b(u?int(8|16|24|32|40|48|64|96|112|128|160|192))\s*\(`)
	reCounter  = regexp.MustCompile(`^\s*(\+\+|--)?\s*[A-Za-z_]\w*\s*(\+\+|--)?\s*;?\s*$`)
)

func detectArithmetic(ctx *analysis.Context) ([]model.Match, error) {
	legacy := legacyCompiler(ctx.Program) && !strings.Contains(ctx.Text(), "SafeMath")
	var out []model.Match
	for _, b := range ctx.Blocks() {
		for i := range b.Statements {
			st := &b.Statements[i]
			if st.Assembly || st.Kind != solidity.StmtStateWrite || reCounter.MatchString(st.Text) {
				continue
			}
			var why string
			switch {
			case legacy && reArith.MatchString(st.Text):
				why = "arithmetic on state without overflow checks (compiler < 0.8)"
			case st.Unchecked && reArith.MatchString(st.Text):
				why = "state arithmetic inside unchecked block"
			case reDowncast.MatchString(rhs(st.Text)):
				why = "narrowing cast " + reDowncast.FindStringSubmatch(rhs(st.Text))[1] + " truncates silently"
			default:
				continue
			}
			out = append(out, analysis.Match(idArithmetic, st, why))
		}
	}
	return out, nil
}

// legacyCompiler reports a pragma that admits a 0.x compiler before 0.8.
func legacyCompiler(p *solidity.Program) bool {
	for _, pr := range p.Pragmas {
		if pr.Major == 0 && pr.Minor > 0 && pr.Minor < 8 {
			return true
		}
	}
	return false
}
