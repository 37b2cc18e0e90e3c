package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/report"
	"github.com/xab-mack/solguard/internal/util"
)

const (
	formatTable    = "table"
	formatJSON     = "json"
	formatSARIF    = "sarif"
	formatMarkdown = "markdown"

	defaultWidth = 120
)

var formats = []string{formatTable, formatJSON, formatSARIF, formatMarkdown}

var (
	criticalColor = color.New(color.FgRed, color.Bold)
	highColor     = color.New(color.FgRed)
	mediumColor   = color.New(color.FgYellow)
	lowColor      = color.New(color.FgCyan)
	headerColor   = color.New(color.Bold)
	dimColor      = color.New(color.Faint)
)

func severityColor(s model.Severity) *color.Color {
	switch s {
	case model.SeverityCritical:
		return criticalColor
	case model.SeverityHigh:
		return highColor
	case model.SeverityMedium:
		return mediumColor
	}
	return lowColor
}

func labelColor(label string) *color.Color {
	switch label {
	case report.LabelCritical:
		return criticalColor
	case report.LabelHigh:
		return highColor
	case report.LabelMedium:
		return mediumColor
	case report.LabelLow:
		return lowColor
	}
	return dimColor
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// setColor applies the --color mode: auto colors only terminals.
func setColor(mode string, out io.Writer) {
	switch strings.ToLower(mode) {
	case "on", "always":
		color.NoColor = false
	case "off", "never":
		color.NoColor = true
	default:
		f, ok := out.(*os.File)
		color.NoColor = !ok || !isTerminal(f) || os.Getenv("NO_COLOR") != ""
	}
}

func terminalWidth(out io.Writer) int {
	if f, ok := out.(*os.File); ok && isTerminal(f) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 40 {
			return w
		}
	}
	return defaultWidth
}

// render writes r to w in the requested format.
func render(w io.Writer, format string, r *model.Report, width int) error {
	switch format {
	case formatJSON:
		b, err := report.ToJSON(r)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case formatSARIF:
		b, err := report.ToSARIF(r.Findings)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case formatMarkdown:
		_, err := io.WriteString(w, report.ToMarkdown(r))
		return err
	case formatTable:
		writeTable(w, r, width)
		return nil
	}
	return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(formats, ", "))
}

// writeTable prints one aligned row per finding followed by a summary.
func writeTable(w io.Writer, r *model.Report, width int) {
	if len(r.Findings) == 0 {
		fmt.Fprintln(w, "No issues detected.")
	} else {
		ruleW, locW := len("RULE"), len("LOCATION")
		locs := make([]string, len(r.Findings))
		for i := range r.Findings {
			f := &r.Findings[i]
			locs[i] = location(f)
			ruleW = max(ruleW, runewidth.StringWidth(f.RuleID))
			locW = max(locW, runewidth.StringWidth(locs[i]))
		}
		sevW := len("CRITICAL")
		titleW := max(16, width-sevW-ruleW-locW-6)
		fmt.Fprintln(w, headerColor.Sprintf("%s  %s  %s  %s",
			runewidth.FillRight("SEVERITY", sevW), runewidth.FillRight("RULE", ruleW),
			runewidth.FillRight("LOCATION", locW), "TITLE"))
		for i := range r.Findings {
			f := &r.Findings[i]
			sev := severityColor(f.Severity).Sprint(runewidth.FillRight(strings.ToUpper(string(f.Severity)), sevW))
			fmt.Fprintf(w, "%s  %s  %s  %s\n", sev, runewidth.FillRight(f.RuleID, ruleW),
				runewidth.FillRight(locs[i], locW), runewidth.Truncate(f.Title, titleW, "..."))
			if f.Evidence != "" {
				fmt.Fprintf(w, "%s  %s\n", strings.Repeat(" ", sevW), dimColor.Sprint(util.Truncate(f.Evidence, width-sevW-2)))
			}
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Overall risk: %s  score %d  findings %d\n", labelColor(r.RiskLabel).Sprint(r.RiskLabel), r.Score, len(r.Findings))
	var parts []string
	for _, s := range model.Severities {
		parts = append(parts, fmt.Sprintf("%s %d", s, r.SeverityCounts[s]))
	}
	fmt.Fprintln(w, dimColor.Sprint(strings.Join(parts, "  ")))
	for _, n := range report.Notes(r.Metadata) {
		fmt.Fprintln(w, dimColor.Sprint("note: "+n))
	}
}

func location(f *model.Finding) string {
	loc := fmt.Sprintf("%s:%d:%d", f.File, f.Start.Line, f.Start.Column)
	if f.File == "" {
		loc = fmt.Sprintf("%d:%d", f.Start.Line, f.Start.Column)
	}
	if f.Function != "" {
		loc += " " + f.Contract + "." + f.Function
	}
	return loc
}
