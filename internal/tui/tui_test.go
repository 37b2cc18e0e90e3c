package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/xab-mack/solguard/internal/model"
)

func sample(n int) *model.Report {
	r := &model.Report{RiskLabel: "High Risk", Score: 5 * n}
	for i := 0; i < n; i++ {
		r.Findings = append(r.Findings, model.Finding{
			RuleID: "SOL-TX-ORIGIN", Title: "tx.origin used for authorization", Severity: model.SeverityHigh,
			File: "Wallet.sol", Start: model.Position{Line: 5 + i, Column: 9}, End: model.Position{Line: 5 + i, Column: 30},
			Snippet: "require(tx.origin == owner);", Description: "desc", Remediation: "use msg.sender",
		})
	}
	return r
}

func key(s string) tea.KeyMsg {
	switch s {
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestCursorBounds(t *testing.T) {
	m := New(sample(3), nil)
	m.Update(key("up"))
	if m.cursor != 0 {
		t.Fatalf("cursor %d", m.cursor)
	}
	for i := 0; i < 5; i++ {
		m.Update(key("j"))
	}
	if m.cursor != 2 {
		t.Fatalf("cursor %d", m.cursor)
	}
	m.Update(key("g"))
	f, ok := m.Selected()
	if !ok || f.Start.Line != 5 {
		t.Fatalf("selected %+v", f)
	}
}

func TestQuit(t *testing.T) {
	m := New(sample(1), nil)
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("no quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q did not quit")
	}
}

func TestViewShowsDetailFromSource(t *testing.T) {
	src := "contract W {\n  address owner;\n  function a() public {\n  }\n  function b() public {\n    require(tx.origin == owner);\n  }\n}\n"
	m := New(sample(2), map[string]string{"Wallet.sol": src})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	out := m.View()
	for _, want := range []string{"High Risk", "score 10", "SOL-TX-ORIGIN", "Wallet.sol:5:9", "require(tx.origin == owner);"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestEmptyReport(t *testing.T) {
	m := New(&model.Report{RiskLabel: "No Issues Detected"}, nil)
	m.Update(key("j"))
	if _, ok := m.Selected(); ok {
		t.Fatal("selection on empty report")
	}
	if !strings.Contains(m.View(), "No issues detected.") {
		t.Fatal("empty message missing")
	}
}
