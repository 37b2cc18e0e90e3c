package plugins

import (
	"regexp"
	"strings"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
)

const idSignatureReplay = "SOL-SIGNATURE-REPLAY"

var signatureReplayRule = Rule{
	ID:          idSignatureReplay,
	Title:       "Signature verification without replay protection",
	Category:    model.CategoryAccessControl,
	Severity:    model.SeverityHigh,
	GasImpact:   model.GasNone,
	Confidence:  0.65,
	Description: "A signature is recovered and trusted, but the signed message carries no nonce and the contract records no used signatures, or the digest is not bound to this chain and contract through a domain separator. The same signature can be submitted again, or on another chain.",
	Remediation: "Include a per-signer nonce and an EIP-712 domain separator (chain id and verifying contract) in the signed digest, and mark digests as used.",
	References:  []string{"SWC-121", "SWC-117", "EIP-712"},
	Detect:      detectSignatureReplay,
}

var (
	reRecover = regexp.MustCompile(`\becrecover\s*\(|\.(recover|tryRecover)\s*\(|SignatureChecker\.isValid`)
	reDomain  = regexp.MustCompile(`DOMAIN_SEPARATOR|_domainSeparatorV4|_hashTypedDataV4|block\.chainid|chainId|EIP712`)
	reUsedMap = regexp.MustCompile(`(?i)(used|executed|processed|claimed|consumed)\w*\s*\[`)
)

func detectSignatureReplay(ctx *analysis.Context) ([]model.Match, error) {
	domain := reDomain.MatchString(ctx.Text())
	var out []model.Match
	for _, b := range ctx.Blocks() {
		idx := -1
		for i := range b.Statements {
			if reRecover.MatchString(b.Statements[i].Text) {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		body := strings.ToLower(b.BodyText(ctx.Unit))
		nonce := strings.Contains(body, "nonce") || reUsedMap.MatchString(b.BodyText(ctx.Unit))
		var missing []string
		if !nonce {
			missing = append(missing, "nonce")
		}
		if !domain {
			missing = append(missing, "domain separator")
		}
		if len(missing) == 0 {
			continue
		}
		out = append(out, analysis.Match(idSignatureReplay, &b.Statements[idx],
			"signature recovered without "+strings.Join(missing, " or ")))
	}
	return out, nil
}
