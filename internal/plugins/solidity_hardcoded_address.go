package plugins

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
)

const idHardcodedAddress = "SOL-HARDCODED-ADDRESS"

var hardcodedAddressRule = Rule{
	ID:          idHardcodedAddress,
	Title:       "Hard-coded address literal",
	Category:    model.CategoryCentralization,
	Severity:    model.SeverityLow,
	GasImpact:   model.GasNone,
	Scope:       ScopeText,
	Confidence:  0.7,
	Description: "An address literal is embedded in code. The contract depends on a specific deployment that cannot be changed, differs across chains, and may be mistyped; literals with a wrong EIP-55 checksum point somewhere unintended.",
	Remediation: "Pass addresses through the constructor or an access-controlled setter and store them as immutable; verify the EIP-55 checksum of any literal that must stay.",
	References:  []string{"EIP-55"},
	Detect:      detectHardcodedAddress,
}

var reAddressLiteral = regexp.MustCompile(`\b0x[0-9a-fA-F]{40}\b`)

func detectHardcodedAddress(ctx *analysis.Context) ([]model.Match, error) {
	text := ctx.Text()
	var out []model.Match
	for _, m := range reAddressLiteral.FindAllStringIndex(text, -1) {
		lit := text[m[0]:m[1]]
		if !common.IsHexAddress(lit) {
			continue
		}
		addr := common.HexToAddress(lit)
		if addr == (common.Address{}) {
			continue
		}
		evidence := "address literal " + lit
		if mixedCase(lit[2:]) && addr.Hex() != lit {
			evidence += " fails EIP-55 checksum, expected " + addr.Hex()
		}
		out = append(out, model.Match{RuleID: idHardcodedAddress, Span: model.Span{Start: m[0], End: m[1]}, Evidence: evidence})
	}
	return out, nil
}

func mixedCase(hex string) bool {
	return strings.ToLower(hex) != hex && strings.ToUpper(hex) != hex
}
