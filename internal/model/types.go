package model

import "strings"

type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// ParseSeverity is case-insensitive; unknown input maps to Low.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Rank orders severities: Critical=4 ... Low=1, unknown=0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

func SeverityGTE(a, b Severity) bool {
	return a.Rank() >= b.Rank()
}

type Category string

const (
	CategoryAccessControl    Category = "AccessControl"
	CategoryReentrancy       Category = "Reentrancy"
	CategoryMEV              Category = "MEV"
	CategoryRandomness       Category = "Randomness"
	CategoryArithmeticSafety Category = "ArithmeticSafety"
	CategoryExternalCalls    Category = "ExternalCalls"
	CategoryTimestamp        Category = "Timestamp"
	CategoryAvailability     Category = "Availability"
	CategoryCentralization   Category = "Centralization"
	CategoryOther            Category = "Other"
)

// Categories lists every category in report order.
var Categories = []Category{
	CategoryAccessControl,
	CategoryReentrancy,
	CategoryMEV,
	CategoryRandomness,
	CategoryArithmeticSafety,
	CategoryExternalCalls,
	CategoryTimestamp,
	CategoryAvailability,
	CategoryCentralization,
	CategoryOther,
}

// ParseCategory matches case-insensitively and falls back to Other.
func ParseCategory(s string) Category {
	for _, c := range Categories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c
		}
	}
	return CategoryOther
}

type GasImpact string

const (
	GasNone   GasImpact = "None"
	GasLow    GasImpact = "Low"
	GasMedium GasImpact = "Medium"
	GasHigh   GasImpact = "High"
)

func ParseGasImpact(s string) GasImpact {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return GasLow
	case "medium":
		return GasMedium
	case "high":
		return GasHigh
	default:
		return GasNone
	}
}

// Span is a half-open byte range [Start, End) into the scanned source.
type Span struct {
	Start int `json:"start" msgpack:"start"`
	End   int `json:"end" msgpack:"end"`
}

func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether two spans share at least one byte. Identical
// empty spans also overlap.
func (s Span) Overlaps(o Span) bool {
	if s == o {
		return true
	}
	return s.Start < o.End && o.Start < s.End
}

// Position is a 1-based line and byte column.
type Position struct {
	Line   int `json:"line" msgpack:"line"`
	Column int `json:"column" msgpack:"column"`
}

// Match is the raw output of a rule predicate.
type Match struct {
	RuleID   string
	Span     Span
	Evidence string
}

type Finding struct {
	RuleID      string    `json:"ruleId" msgpack:"ruleId"`
	Title       string    `json:"title" msgpack:"title"`
	Category    Category  `json:"category" msgpack:"category"`
	Severity    Severity  `json:"severity" msgpack:"severity"`
	GasImpact   GasImpact `json:"gasImpact" msgpack:"gasImpact"`
	Confidence  float64   `json:"confidence" msgpack:"confidence"`
	File        string    `json:"file,omitempty" msgpack:"file"`
	Span        Span      `json:"span" msgpack:"span"`
	Start       Position  `json:"start" msgpack:"start"`
	End         Position  `json:"end" msgpack:"end"`
	Contract    string    `json:"contract,omitempty" msgpack:"contract"`
	Function    string    `json:"function,omitempty" msgpack:"function"`
	Snippet     string    `json:"snippet" msgpack:"snippet"`
	Evidence    string    `json:"evidence,omitempty" msgpack:"evidence"`
	Description string    `json:"description" msgpack:"description"`
	Remediation string    `json:"remediation" msgpack:"remediation"`
	References  []string  `json:"references,omitempty" msgpack:"references"`
	Fingerprint string    `json:"fingerprint" msgpack:"fingerprint"`
}

// RuleEvaluationError records a rule whose predicate failed during a scan.
type RuleEvaluationError struct {
	RuleID  string `json:"ruleId" msgpack:"ruleId"`
	Message string `json:"message" msgpack:"message"`
}

// UnparsableBlock records a code unit the structurer could not balance.
type UnparsableBlock struct {
	Contract string `json:"contract,omitempty" msgpack:"contract"`
	Name     string `json:"name" msgpack:"name"`
	Span     Span   `json:"span" msgpack:"span"`
	Line     int    `json:"line" msgpack:"line"`
}

type ScanMetadata struct {
	InputLength      int                   `json:"inputLength" msgpack:"inputLength"`
	UnitCount        int                   `json:"unitCount" msgpack:"unitCount"`
	ContractCount    int                   `json:"contractCount" msgpack:"contractCount"`
	RulesEvaluated   int                   `json:"rulesEvaluated" msgpack:"rulesEvaluated"`
	BudgetUsed       int                   `json:"budgetUsed" msgpack:"budgetUsed"`
	BudgetLimit      int                   `json:"budgetLimit" msgpack:"budgetLimit"`
	BudgetExceeded   bool                  `json:"budgetExceeded" msgpack:"budgetExceeded"`
	Cancelled        bool                  `json:"cancelled" msgpack:"cancelled"`
	Suppressed       int                   `json:"suppressed" msgpack:"suppressed"`
	Baselined        int                   `json:"baselined" msgpack:"baselined"`
	Warnings         []string              `json:"warnings,omitempty" msgpack:"warnings"`
	RuleErrors       []RuleEvaluationError `json:"ruleErrors,omitempty" msgpack:"ruleErrors"`
	UnparsableBlocks []UnparsableBlock     `json:"unparsableBlocks,omitempty" msgpack:"unparsableBlocks"`
}

// Partial reports whether the findings may be incomplete.
func (m ScanMetadata) Partial() bool {
	return m.BudgetExceeded || m.Cancelled
}

type Report struct {
	Findings       []Finding        `json:"findings" msgpack:"findings"`
	Score          int              `json:"score" msgpack:"score"`
	RiskLabel      string           `json:"riskLabel" msgpack:"riskLabel"`
	CategoryCounts map[Category]int `json:"categoryCounts" msgpack:"categoryCounts"`
	SeverityCounts map[Severity]int `json:"severityCounts" msgpack:"severityCounts"`
	Metadata       ScanMetadata     `json:"metadata" msgpack:"metadata"`
}
