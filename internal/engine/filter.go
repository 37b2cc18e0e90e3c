package engine

import (
	"github.com/xab-mack/solguard/internal/model"
)

// filterBySeverity removes findings below threshold. An empty threshold
// keeps everything.
func filterBySeverity(findings []model.Finding, threshold model.Severity) []model.Finding {
	if threshold == "" {
		return findings
	}
	out := findings[:0:0]
	for _, f := range findings {
		if model.SeverityGTE(f.Severity, threshold) {
			out = append(out, f)
		}
	}
	return out
}
