package report

import (
	"fmt"
	"strings"

	"github.com/xab-mack/solguard/internal/model"
)

// ToMarkdown renders r as a markdown document: title, overall risk and
// score, category and severity tables, scan notes, then one "### " section
// per finding. It reads nothing but r.
func ToMarkdown(r *model.Report) string {
	var b strings.Builder
	b.WriteString("# Smart Contract Security Report\n\n")
	fmt.Fprintf(&b, "**Overall risk:** %s  \n", r.RiskLabel)
	fmt.Fprintf(&b, "**Risk score:** %d  \n", r.Score)
	fmt.Fprintf(&b, "**Findings:** %d\n\n", len(r.Findings))

	b.WriteString("## Summary by category\n\n")
	b.WriteString("| Category | Findings |\n")
	b.WriteString("|----------|---------:|\n")
	for _, c := range model.Categories {
		fmt.Fprintf(&b, "| %s | %d |\n", c, r.CategoryCounts[c])
	}
	b.WriteString("\n## Summary by severity\n\n")
	b.WriteString("| Severity | Findings | Weight |\n")
	b.WriteString("|----------|---------:|-------:|\n")
	for _, s := range model.Severities {
		fmt.Fprintf(&b, "| %s | %d | %d |\n", s, r.SeverityCounts[s], Weight(s))
	}

	if notes := Notes(r.Metadata); len(notes) > 0 {
		b.WriteString("\n## Scan notes\n\n")
		for _, n := range notes {
			fmt.Fprintf(&b, "- %s\n", n)
		}
	}

	b.WriteString("\n## Findings\n")
	if len(r.Findings) == 0 {
		b.WriteString("\nNo issues detected.\n")
		return b.String()
	}
	for i := range r.Findings {
		writeFinding(&b, i+1, &r.Findings[i])
	}
	return b.String()
}

func writeFinding(b *strings.Builder, n int, f *model.Finding) {
	fmt.Fprintf(b, "\n### %d. [%s] %s\n\n", n, f.RuleID, f.Title)
	fmt.Fprintf(b, "- **Rule:** `%s`\n", f.RuleID)
	fmt.Fprintf(b, "- **Category:** %s\n", f.Category)
	fmt.Fprintf(b, "- **Severity:** %s\n", f.Severity)
	fmt.Fprintf(b, "- **Gas impact:** %s\n", f.GasImpact)
	fmt.Fprintf(b, "- **Location:** %s\n", Location(f))
	if f.Evidence != "" {
		fmt.Fprintf(b, "- **Evidence:** %s\n", f.Evidence)
	}
	fence := codeFence(f.Snippet)
	fmt.Fprintf(b, "\n%ssolidity\n%s\n%s\n", fence, strings.TrimRight(f.Snippet, "\n"), fence)
	fmt.Fprintf(b, "\n**Description:** %s\n", f.Description)
	fmt.Fprintf(b, "\n**Remediation:** %s\n", f.Remediation)
	if len(f.References) > 0 {
		fmt.Fprintf(b, "\n**References:** %s\n", strings.Join(f.References, ", "))
	}
}

// Location formats where a finding starts, with its enclosing contract and
// function when known.
func Location(f *model.Finding) string {
	loc := fmt.Sprintf("line %d, column %d", f.Start.Line, f.Start.Column)
	if f.File != "" {
		loc = fmt.Sprintf("%s:%d:%d", f.File, f.Start.Line, f.Start.Column)
	}
	switch {
	case f.Contract != "" && f.Function != "":
		loc += fmt.Sprintf(" (%s.%s)", f.Contract, f.Function)
	case f.Contract != "":
		loc += fmt.Sprintf(" (%s)", f.Contract)
	}
	return loc
}

// Notes lists human-readable remarks about partial or filtered scans.
func Notes(m model.ScanMetadata) []string {
	var notes []string
	if m.Cancelled {
		notes = append(notes, "Scan was cancelled; findings are partial.")
	}
	if m.BudgetExceeded {
		notes = append(notes, fmt.Sprintf("Evaluation budget exceeded (%d of %d units used); remaining rules were skipped.",
			m.BudgetUsed, m.BudgetLimit))
	}
	for _, e := range m.RuleErrors {
		notes = append(notes, fmt.Sprintf("Rule `%s` failed and reported nothing: %s", e.RuleID, e.Message))
	}
	for _, u := range m.UnparsableBlocks {
		name := u.Name
		if u.Contract != "" {
			name = u.Contract + "." + u.Name
		}
		notes = append(notes, fmt.Sprintf("Block `%s` at line %d could not be structured and was checked as text only.", name, u.Line))
	}
	for _, w := range m.Warnings {
		if w == model.WarnUnterminatedLiteral {
			notes = append(notes, "Source contains an unterminated comment or string literal.")
		}
	}
	if m.Suppressed > 0 {
		notes = append(notes, fmt.Sprintf("%d finding(s) suppressed by ignore rules.", m.Suppressed))
	}
	if m.Baselined > 0 {
		notes = append(notes, fmt.Sprintf("%d finding(s) hidden by the baseline.", m.Baselined))
	}
	return notes
}

// codeFence returns a backtick fence longer than any backtick run in s.
func codeFence(s string) string {
	longest, run := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}
