package report

import "github.com/xab-mack/solguard/internal/model"

// Risk labels, most severe first.
const (
	LabelCritical = "Critical Risk"
	LabelHigh     = "High Risk"
	LabelMedium   = "Medium Risk"
	LabelLow      = "Low Risk"
	LabelNone     = "No Issues Detected"
)

// Weight is the score contribution of one finding of severity s.
func Weight(s model.Severity) int {
	switch s {
	case model.SeverityCritical:
		return 10
	case model.SeverityHigh:
		return 5
	case model.SeverityMedium:
		return 2
	case model.SeverityLow:
		return 1
	}
	return 0
}

// Score sums the weights of findings.
func Score(findings []model.Finding) int {
	total := 0
	for _, f := range findings {
		total += Weight(f.Severity)
	}
	return total
}

// Label picks the overall risk label from severity counts. The first
// matching rule wins.
func Label(counts map[model.Severity]int) string {
	switch {
	case counts[model.SeverityCritical] > 0:
		return LabelCritical
	case counts[model.SeverityHigh] >= 3:
		return LabelHigh
	case counts[model.SeverityHigh] >= 1 || counts[model.SeverityMedium] >= 5:
		return LabelMedium
	case counts[model.SeverityMedium] > 0 || counts[model.SeverityLow] > 0:
		return LabelLow
	}
	return LabelNone
}

// LabelRank orders labels from LabelNone (0) to LabelCritical (4).
func LabelRank(label string) int {
	switch label {
	case LabelCritical:
		return 4
	case LabelHigh:
		return 3
	case LabelMedium:
		return 2
	case LabelLow:
		return 1
	}
	return 0
}

// Counts tallies findings by category and severity. Every category and
// severity is present, zero or not.
func Counts(findings []model.Finding) (map[model.Category]int, map[model.Severity]int) {
	cats := make(map[model.Category]int, len(model.Categories))
	for _, c := range model.Categories {
		cats[c] = 0
	}
	sevs := make(map[model.Severity]int, len(model.Severities))
	for _, s := range model.Severities {
		sevs[s] = 0
	}
	for _, f := range findings {
		cats[f.Category]++
		sevs[f.Severity]++
	}
	return cats, sevs
}
