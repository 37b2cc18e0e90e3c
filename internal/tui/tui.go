// Package tui renders a scan report as an interactive terminal viewer.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/report"
	"github.com/xab-mack/solguard/internal/util"
)

const (
	listFraction   = 3 // list takes 1/listFraction of the height
	snippetContext = 6
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Reverse(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	borderStyle   = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderTop(true).BorderForeground(lipgloss.Color("8"))
)

func severityStyle(s model.Severity) lipgloss.Style {
	switch s {
	case model.SeverityCritical:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	case model.SeverityHigh:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case model.SeverityMedium:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	}
}

// Model is a two-pane viewer: a finding list above a scrollable detail view.
type Model struct {
	report  *model.Report
	sources map[string]string
	cursor  int
	offset  int
	detail  viewport.Model
	width   int
	height  int
}

// New builds a viewer for r. sources maps file names to their raw text and
// is used to show context around each finding; it may be nil.
func New(r *model.Report, sources map[string]string) *Model {
	m := &Model{report: r, sources: sources, width: 80, height: 24}
	m.detail = viewport.New(m.width, m.detailHeight())
	m.refresh()
	return m
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			m.move(-1)
			return m, nil
		case "down", "j":
			m.move(1)
			return m, nil
		case "home", "g":
			m.move(-len(m.report.Findings))
			return m, nil
		case "end", "G":
			m.move(len(m.report.Findings))
			return m, nil
		}
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
		}
		if msg.Height > 0 {
			m.height = msg.Height
		}
		m.detail.Width = m.width
		m.detail.Height = m.detailHeight()
		m.move(0)
		return m, nil
	}
	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.header()))
	b.WriteString("\n")
	rows := m.listHeight()
	for i := m.offset; i < len(m.report.Findings) && i < m.offset+rows; i++ {
		line := m.row(i)
		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(borderStyle.Width(m.width).Render(m.detail.View()))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("j/k move  pgup/pgdn scroll  q quit"))
	return b.String()
}

// Selected returns the finding under the cursor.
func (m *Model) Selected() (model.Finding, bool) {
	if len(m.report.Findings) == 0 {
		return model.Finding{}, false
	}
	return m.report.Findings[m.cursor], true
}

func (m *Model) header() string {
	r := m.report
	return fmt.Sprintf("%s  score %d  findings %d", r.RiskLabel, r.Score, len(r.Findings))
}

func (m *Model) row(i int) string {
	f := &m.report.Findings[i]
	sev := severityStyle(f.Severity).Render(runewidth.FillRight(string(f.Severity), 8))
	loc := fmt.Sprintf("%s:%d", f.File, f.Start.Line)
	text := fmt.Sprintf("%-28s %-20s %s", f.RuleID, loc, f.Title)
	return sev + " " + runewidth.Truncate(text, max(10, m.width-10), "...")
}

func (m *Model) move(delta int) {
	n := len(m.report.Findings)
	if n == 0 {
		m.refresh()
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), n-1)
	rows := m.listHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
	m.refresh()
}

func (m *Model) refresh() {
	f, ok := m.Selected()
	if !ok {
		m.detail.SetContent("No issues detected.")
		return
	}
	m.detail.SetContent(m.describe(&f))
	m.detail.GotoTop()
}

func (m *Model) describe(f *model.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", severityStyle(f.Severity).Render("["+string(f.Severity)+"]"), titleStyle.Render(f.Title))
	fmt.Fprintf(&b, "%s  %s  gas %s  confidence %.2f\n", f.RuleID, f.Category, f.GasImpact, f.Confidence)
	fmt.Fprintf(&b, "at %s\n", report.Location(f))
	if f.Evidence != "" {
		fmt.Fprintf(&b, "evidence: %s\n", util.Truncate(f.Evidence, 200))
	}
	b.WriteString("\n")
	snippet := f.Snippet
	if src, ok := m.sources[f.File]; ok {
		if s := util.ExtractSnippet(src, f.Start.Line, f.End.Line, snippetContext); s != "" {
			snippet = s
		}
	}
	b.WriteString(snippet)
	b.WriteString("\n\n")
	b.WriteString(f.Description)
	b.WriteString("\n\nRemediation: ")
	b.WriteString(f.Remediation)
	if len(f.References) > 0 {
		b.WriteString("\nReferences: " + strings.Join(f.References, ", "))
	}
	return b.String()
}

func (m *Model) listHeight() int {
	return max(3, (m.height-4)/listFraction)
}

func (m *Model) detailHeight() int {
	return max(3, m.height-m.listHeight()-4)
}

// Run shows r until the user quits.
func Run(r *model.Report, sources map[string]string) error {
	p := tea.NewProgram(New(r, sources), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
