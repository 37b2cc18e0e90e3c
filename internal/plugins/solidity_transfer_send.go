package plugins

import (
	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/solidity"
)

const idTransferSend = "SOL-TRANSFER-SEND"

var transferSendRule = Rule{
	ID:          idTransferSend,
	Title:       "Use of transfer/send (gas stipend)",
	Category:    model.CategoryExternalCalls,
	Severity:    model.SeverityLow,
	GasImpact:   model.GasMedium,
	Confidence:  0.8,
	Description: "Ether is sent with transfer or send, which forward a fixed 2300 gas stipend. Recipients with non-trivial receive logic, including many smart wallets, fail under gas repricing.",
	Remediation: `Use call{value: amount}("") and handle the success boolean, or implement a pull payment pattern.`,
	References:  []string{"EIP-1884"},
	Detect:      detectTransferSend,
}

func detectTransferSend(ctx *analysis.Context) ([]model.Match, error) {
	var out []model.Match
	for _, b := range ctx.Blocks() {
		for i := range b.Statements {
			st := &b.Statements[i]
			for _, c := range st.Calls {
				if c.Kind == solidity.CallTransfer || c.Kind == solidity.CallSend {
					out = append(out, analysis.Match(idTransferSend, st, c.Receiver+"."+c.Method))
					break
				}
			}
		}
	}
	return out, nil
}
