package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/xab-mack/solguard/internal/model"
)

const bankSrc = `pragma solidity ^0.8.0;
contract Bank {
    mapping(address => uint256) public balances;
    function withdraw(uint256 amount) public {
        require(balances[msg.sender] >= amount);
        (bool ok, ) = msg.sender.call{value: amount}("");
        require(ok);
        balances[msg.sender] -= amount;
    }
}
`

const cleanSrc = `pragma solidity 0.8.24;
contract Empty {}
`

// workspace lays out a project with a config whose cache lives inside it.
func workspace(t *testing.T) (dir, cfg string) {
	t.Helper()
	dir = t.TempDir()
	mustWrite(t, filepath.Join(dir, "contracts", "Bank.sol"), bankSrc)
	mustWrite(t, filepath.Join(dir, "contracts", "Empty.sol"), cleanSrc)
	mustWrite(t, filepath.Join(dir, "contracts", "node_modules", "dep", "Dep.sol"), bankSrc)
	cfg = filepath.Join(dir, ".solguard.yaml")
	mustWrite(t, cfg, "failOn: none\ncache:\n  enabled: true\n  dir: "+filepath.Join(dir, "cache")+"\nlogging:\n  level: error\n")
	return dir, cfg
}

func mustWrite(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "solguard", SilenceUsage: true, SilenceErrors: true}
	AddCommands(root)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func decode(t *testing.T, out string) model.Report {
	t.Helper()
	var r model.Report
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	return r
}

func hasRule(r model.Report, id string) bool {
	for _, f := range r.Findings {
		if f.RuleID == id {
			return true
		}
	}
	return false
}

func TestScanJSON(t *testing.T) {
	dir, cfg := workspace(t)
	out, err := run(t, "", "scan", filepath.Join(dir, "contracts"), "--config", cfg, "-f", "json")
	if err != nil {
		t.Fatal(err)
	}
	r := decode(t, out)
	if !hasRule(r, "SOL-REENTRANCY") {
		t.Fatalf("reentrancy missing: %+v", r.Findings)
	}
	for _, f := range r.Findings {
		if strings.Contains(f.File, "node_modules") {
			t.Fatalf("node_modules scanned: %s", f.File)
		}
		if !strings.HasSuffix(f.File, "Bank.sol") && f.RuleID == "SOL-REENTRANCY" {
			t.Fatalf("finding in %s", f.File)
		}
	}
	if r.RiskLabel != "Critical Risk" {
		t.Fatalf("label %q", r.RiskLabel)
	}

	again, err := run(t, "", "scan", filepath.Join(dir, "contracts"), "--config", cfg, "-f", "json")
	if err != nil {
		t.Fatal(err)
	}
	if again != out {
		t.Fatal("cached rescan differs from first scan")
	}
	entries, _ := filepath.Glob(filepath.Join(dir, "cache", "reports", "*.mp"))
	if len(entries) != 2 {
		t.Fatalf("want one cache entry per file, got %d", len(entries))
	}
}

func TestScanFailOn(t *testing.T) {
	dir, cfg := workspace(t)
	_, err := run(t, "", "scan", filepath.Join(dir, "contracts"), "--config", cfg, "--no-cache", "--fail-on", "critical")
	if !errors.Is(err, ErrFailOn) {
		t.Fatalf("want ErrFailOn, got %v", err)
	}
	_, err = run(t, "", "scan", filepath.Join(dir, "contracts", "Empty.sol"), "--config", cfg, "--no-cache", "--fail-on", "medium")
	if err != nil {
		t.Fatalf("clean contract failed: %v", err)
	}
}

func TestScanBaseline(t *testing.T) {
	dir, cfg := workspace(t)
	base := filepath.Join(dir, "baseline.json")
	bank := filepath.Join(dir, "contracts", "Bank.sol")
	if _, err := run(t, "", "scan", bank, "--config", cfg, "--write-baseline", base); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "", "scan", bank, "--config", cfg, "--baseline", base, "-f", "json")
	if err != nil {
		t.Fatal(err)
	}
	r := decode(t, out)
	if len(r.Findings) != 0 || r.Metadata.Baselined == 0 {
		t.Fatalf("baseline not applied: %d findings, %d baselined", len(r.Findings), r.Metadata.Baselined)
	}
}

func TestScanFormats(t *testing.T) {
	dir, cfg := workspace(t)
	bank := filepath.Join(dir, "contracts", "Bank.sol")
	cases := map[string]string{
		"table":    "Overall risk: Critical Risk",
		"markdown": "# Smart Contract Security Report",
		"sarif":    `"version": "2.1.0"`,
	}
	for format, want := range cases {
		out, err := run(t, "", "scan", bank, "--config", cfg, "--no-cache", "-f", format)
		if err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		if !strings.Contains(out, want) {
			t.Errorf("%s output missing %q", format, want)
		}
	}
	if _, err := run(t, "", "scan", bank, "--config", cfg, "--no-cache", "-f", "xml"); err == nil {
		t.Fatal("unknown format accepted")
	}
}

func TestScanOutFile(t *testing.T) {
	dir, cfg := workspace(t)
	dest := filepath.Join(dir, "report.md")
	out, err := run(t, "", "scan", filepath.Join(dir, "contracts", "Bank.sol"), "--config", cfg, "--no-cache", "-f", "markdown", "-o", dest)
	if err != nil {
		t.Fatal(err)
	}
	if out != "" {
		t.Fatalf("stdout not empty: %q", out)
	}
	b, err := os.ReadFile(dest)
	if err != nil || !strings.Contains(string(b), "SOL-REENTRANCY") {
		t.Fatalf("report file: %v", err)
	}
}

type failingCloser struct {
	bytes.Buffer
	closed bool
}

var errDiskFull = errors.New("disk full")

func (f *failingCloser) Close() error {
	f.closed = true
	return errDiskFull
}

func TestRenderAndCloseReportsCloseError(t *testing.T) {
	r := &model.Report{RiskLabel: "None"}
	wc := &failingCloser{}
	err := renderAndClose(wc, "json", r, 80)
	if !errors.Is(err, errDiskFull) || !wc.closed {
		t.Fatalf("err %v closed %v", err, wc.closed)
	}
	if wc.Len() == 0 {
		t.Fatal("nothing rendered")
	}

	wc = &failingCloser{}
	if err := renderAndClose(wc, "yaml", r, 80); err == nil || errors.Is(err, errDiskFull) || !wc.closed {
		t.Fatalf("render error masked: %v closed %v", err, wc.closed)
	}
}

func TestScanStdin(t *testing.T) {
	_, cfg := workspace(t)
	out, err := run(t, bankSrc, "scan", "-", "--config", cfg, "--no-cache", "-f", "json")
	if err != nil {
		t.Fatal(err)
	}
	r := decode(t, out)
	if !hasRule(r, "SOL-REENTRANCY") || r.Findings[0].File != "<stdin>" {
		t.Fatalf("stdin findings %+v", r.Findings)
	}
}

func TestScanTooLargeIsWarning(t *testing.T) {
	dir, cfg := workspace(t)
	out, err := run(t, "", "scan", filepath.Join(dir, "contracts", "Bank.sol"), "--config", cfg, "--no-cache", "--max-size", "10", "-f", "json")
	if err != nil {
		t.Fatalf("oversized input failed the scan: %v", err)
	}
	if r := decode(t, out); len(r.Findings) != 0 {
		t.Fatalf("findings from skipped file: %+v", r.Findings)
	}
}

func TestScanMissingPath(t *testing.T) {
	_, cfg := workspace(t)
	if _, err := run(t, "", "scan", filepath.Join(t.TempDir(), "nope"), "--config", cfg); err == nil {
		t.Fatal("missing path accepted")
	}
}

func TestScanRulePack(t *testing.T) {
	dir, cfg := workspace(t)
	pack := filepath.Join(dir, "pack.yaml")
	mustWrite(t, pack, "rules:\n  - id: CUSTOM-MAPPING\n    severity: low\n    pattern: 'mapping\\('\n")
	out, err := run(t, "", "scan", filepath.Join(dir, "contracts", "Bank.sol"), "--config", cfg, "--no-cache",
		"--rules-pack", pack, "--rule", "CUSTOM-MAPPING", "-f", "json")
	if err != nil {
		t.Fatal(err)
	}
	r := decode(t, out)
	if len(r.Findings) != 1 || r.Findings[0].RuleID != "CUSTOM-MAPPING" {
		t.Fatalf("findings %+v", r.Findings)
	}
}

func TestRulesList(t *testing.T) {
	_, cfg := workspace(t)
	out, err := run(t, "", "rules", "list", "--config", cfg)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 25 {
		t.Fatalf("%d rules listed", len(lines))
	}
	if !strings.Contains(out, "SOL-TX-ORIGIN\tHigh\tAccessControl\t") {
		t.Fatalf("tx-origin row missing:\n%s", out)
	}
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	if _, err := run(t, "", "init", "--dir", dir); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".solguard.yaml")); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "", "init", "--dir", dir); err == nil {
		t.Fatal("overwrote existing config")
	}
	if _, err := run(t, "", "init", "--dir", dir, "--force"); err != nil {
		t.Fatal(err)
	}
}

func TestHistory(t *testing.T) {
	dir, cfg := workspace(t)
	db := filepath.Join(dir, "history.db")
	if _, err := run(t, "", "scan", filepath.Join(dir, "contracts"), "--config", cfg, "--no-cache", "--db", db); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "", "history", "--config", cfg, "--db", db)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Critical Risk") || !strings.Contains(out, "contracts") {
		t.Fatalf("history output:\n%s", out)
	}
	if _, err := run(t, "", "history", "--config", cfg); err == nil {
		t.Fatal("history without a database accepted")
	}
}

func TestCollectFiles(t *testing.T) {
	dir, _ := workspace(t)
	mustWrite(t, filepath.Join(dir, "contracts", "notes.txt"), "x")
	files, err := collectFiles([]string{filepath.Join(dir, "contracts")})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || !strings.HasSuffix(files[0], "Bank.sol") || !strings.HasSuffix(files[1], "Empty.sol") {
		t.Fatalf("files %v", files)
	}
}

func TestFailOnThreshold(t *testing.T) {
	r := &model.Report{Findings: []model.Finding{{RuleID: "X", Severity: model.SeverityMedium}}}
	if failOn("high", r) != nil || failOn("none", r) != nil || failOn("", r) != nil {
		t.Fatal("fail-on triggered below threshold")
	}
	if !errors.Is(failOn("medium", r), ErrFailOn) {
		t.Fatal("fail-on not triggered at threshold")
	}
}
