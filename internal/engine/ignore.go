package engine

import (
	"path/filepath"
	"strings"

	"github.com/xab-mack/solguard/internal/config"
	"github.com/xab-mack/solguard/internal/model"
)

// suppressionWindow is how many lines above a finding an inline marker may sit.
const suppressionWindow = 5

const suppressionMarker = "solguard:ignore"

// applyIgnores drops findings matched by configured ignore rules or, when
// enabled, by inline markers in the raw source. It returns the survivors and
// the number dropped.
func applyIgnores(findings []model.Finding, raw string, opts Options) ([]model.Finding, int) {
	if len(opts.Ignore) == 0 && !opts.HonorSuppressions {
		return findings, 0
	}
	var lines []string
	if opts.HonorSuppressions && strings.Contains(raw, suppressionMarker) {
		lines = strings.Split(raw, "\n")
	}
	out := findings[:0:0]
	for _, f := range findings {
		if isIgnored(f, opts.Ignore) || hasInlineSuppression(lines, f.RuleID, f.Start.Line) {
			continue
		}
		out = append(out, f)
	}
	return out, len(findings) - len(out)
}

func isIgnored(f model.Finding, rules []config.IgnoreRule) bool {
	for _, ig := range rules {
		if ig.Rule != "" && !strings.EqualFold(ig.Rule, f.RuleID) {
			continue
		}
		if ig.Path != "" && !strings.HasPrefix(filepath.ToSlash(f.File), filepath.ToSlash(ig.Path)) {
			continue
		}
		if ig.Rule == "" && ig.Path == "" {
			continue
		}
		return true
	}
	return false
}

// hasInlineSuppression looks for `solguard:ignore RULE-ID` on the finding's
// line or up to suppressionWindow lines above it. Several ids may follow one
// marker, separated by spaces or commas.
func hasInlineSuppression(lines []string, ruleID string, line int) bool {
	if len(lines) == 0 || line < 1 {
		return false
	}
	to := min(line-1, len(lines)-1)
	from := max(0, line-1-suppressionWindow)
	for i := from; i <= to; i++ {
		k := strings.Index(lines[i], suppressionMarker)
		if k < 0 {
			continue
		}
		rest := lines[i][k+len(suppressionMarker):]
		for _, id := range strings.FieldsFunc(rest, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' }) {
			if strings.EqualFold(strings.TrimSuffix(id, "*/"), ruleID) {
				return true
			}
		}
	}
	return false
}
