package report

import (
	"encoding/json"
	"sort"

	"github.com/xab-mack/solguard/internal/model"
)

// Build sorts findings and aggregates them into a report. The input slice is
// not modified.
func Build(findings []model.Finding, meta model.ScanMetadata) *model.Report {
	sorted := append([]model.Finding{}, findings...)
	Sort(sorted)
	cats, sevs := Counts(sorted)
	return &model.Report{
		Findings:       sorted,
		Score:          Score(sorted),
		RiskLabel:      Label(sevs),
		CategoryCounts: cats,
		SeverityCounts: sevs,
		Metadata:       meta,
	}
}

// Sort orders findings by severity descending, then start line, rule id,
// start column and end offset ascending.
func Sort(findings []model.Finding) {
	sort.SliceStable(findings, func(i, j int) bool { return less(&findings[i], &findings[j]) })
}

func less(a, b *model.Finding) bool {
	if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
		return ra > rb
	}
	if a.Start.Line != b.Start.Line {
		return a.Start.Line < b.Start.Line
	}
	if a.RuleID != b.RuleID {
		return a.RuleID < b.RuleID
	}
	if a.File != b.File {
		return a.File < b.File
	}
	if a.Start.Column != b.Start.Column {
		return a.Start.Column < b.Start.Column
	}
	return a.Span.End < b.Span.End
}

// Merge combines per-file reports into one, summing metadata counters and
// re-aggregating the findings.
func Merge(reports []*model.Report) *model.Report {
	var all []model.Finding
	var meta model.ScanMetadata
	for _, r := range reports {
		if r == nil {
			continue
		}
		all = append(all, r.Findings...)
		m := r.Metadata
		meta.InputLength += m.InputLength
		meta.UnitCount += m.UnitCount
		meta.ContractCount += m.ContractCount
		meta.RulesEvaluated = max(meta.RulesEvaluated, m.RulesEvaluated)
		meta.BudgetUsed += m.BudgetUsed
		meta.BudgetLimit += m.BudgetLimit
		meta.BudgetExceeded = meta.BudgetExceeded || m.BudgetExceeded
		meta.Cancelled = meta.Cancelled || m.Cancelled
		meta.Suppressed += m.Suppressed
		meta.Baselined += m.Baselined
		for _, w := range m.Warnings {
			if !contains(meta.Warnings, w) {
				meta.Warnings = append(meta.Warnings, w)
			}
		}
		meta.RuleErrors = append(meta.RuleErrors, m.RuleErrors...)
		meta.UnparsableBlocks = append(meta.UnparsableBlocks, m.UnparsableBlocks...)
	}
	return Build(all, meta)
}

// ToJSON renders the structured report. Map keys are emitted sorted, so the
// output is stable.
func ToJSON(r *model.Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
