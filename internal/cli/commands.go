package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xab-mack/solguard/internal/engine"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/storage"
	"github.com/xab-mack/solguard/internal/tui"
)

// ErrFailOn is returned by scan when a finding meets the --fail-on severity.
var ErrFailOn = errors.New("findings at or above fail-on severity")

// AddCommands registers the global flags and every subcommand on root.
func AddCommands(root *cobra.Command) {
	pf := root.PersistentFlags()
	pf.String("config", "", "Config file (default: nearest .solguard.yaml/.solguard.toml)")
	pf.String("log-level", "", "Log level: debug|info|warn|error")
	pf.String("log-format", "", "Log format: text|json")
	pf.String("color", "auto", "Colorize output (auto|on|off)")

	root.AddCommand(newScanCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newRulesCmd())
	root.AddCommand(newHistoryCmd())
}

type scanFlags struct {
	format        string
	out           string
	failOn        string
	severity      string
	budget        int
	maxSize       int
	rulePacks     []string
	only          []string
	disable       []string
	baseline      string
	writeBaseline string
	db            string
	noCache       bool
	noSuppress    bool
	useTUI        bool
}

func newScanCmd() *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "scan [paths...]",
		Short: "Scan Solidity files or directories for vulnerabilities",
		Long: "Scan Solidity sources and report findings. Directories are walked for .sol files;\n" +
			"use - to read a single source from standard input.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.format, "format", "f", formatTable, "Output format: "+strings.Join(formats, "|"))
	fl.StringVarP(&f.out, "out", "o", "", "Write the report to a file instead of stdout")
	fl.StringVar(&f.failOn, "fail-on", "", "Exit non-zero on a finding of this severity or higher (low|medium|high|critical|none)")
	fl.StringVar(&f.severity, "severity", "", "Drop findings below this severity")
	fl.IntVar(&f.budget, "budget", 0, "Evaluation budget in work units per file (0: size-based default)")
	fl.IntVar(&f.maxSize, "max-size", 0, "Maximum input size in characters per file (0: default)")
	fl.StringSliceVar(&f.rulePacks, "rules-pack", nil, "Additional YAML/TOML rule pack (repeatable)")
	fl.StringSliceVar(&f.only, "rule", nil, "Evaluate only these rule ids (repeatable)")
	fl.StringSliceVar(&f.disable, "disable", nil, "Skip these rule ids (repeatable)")
	fl.StringVar(&f.baseline, "baseline", "", "Drop findings whose fingerprint is in this baseline file")
	fl.StringVar(&f.writeBaseline, "write-baseline", "", "Write the fingerprints of all findings to this file")
	fl.StringVar(&f.db, "db", "", "Record the scan in this SQLite history database")
	fl.BoolVar(&f.noCache, "no-cache", false, "Do not read or write the report cache")
	fl.BoolVar(&f.noSuppress, "no-inline-ignore", false, "Ignore solguard:ignore comments")
	fl.BoolVar(&f.useTUI, "tui", false, "Browse findings in an interactive viewer")
	return cmd
}

func runScan(cmd *cobra.Command, args []string, f scanFlags) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	cfg := s.cfg
	if f.severity != "" {
		cfg.SeverityThreshold = f.severity
	}
	if f.failOn != "" {
		cfg.FailOn = f.failOn
	}
	if f.budget > 0 {
		cfg.EvaluationBudget = f.budget
	}
	if f.maxSize > 0 {
		cfg.MaxInputSize = f.maxSize
	}
	if f.db != "" {
		cfg.Database = f.db
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	catalog, err := s.catalog(f.rulePacks...)
	if err != nil {
		return err
	}
	packs := append(append([]string(nil), cfg.RulePacks...), f.rulePacks...)
	digest, err := packDigest(packs)
	if err != nil {
		return err
	}

	opts := engine.Options{
		MaxInputSize:      cfg.MaxInputSize,
		EvaluationBudget:  cfg.EvaluationBudget,
		SeverityThreshold: severityOrEmpty(cfg.SeverityThreshold),
		Allowed:           append(append([]string(nil), cfg.Plugins...), f.only...),
		Disabled:          append(append([]string(nil), cfg.Disabled...), f.disable...),
		HonorSuppressions: cfg.HonorSuppressions && !f.noSuppress,
		Ignore:            cfg.ActiveIgnores(time.Now()),
	}
	// A baseline being rewritten must not hide the findings it is built from.
	if f.baseline != "" && f.writeBaseline == "" {
		if opts.Baseline, err = engine.LoadBaseline(f.baseline); err != nil {
			return err
		}
	}

	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no Solidity files found")
	}

	eng := engine.New(catalog, s.log)
	keyBase, err := cacheKeyBase(eng, digest, opts)
	if err != nil {
		return err
	}
	sc := &scanner{eng: eng, opts: opts, cache: s.cache(f.noCache), keyBase: keyBase, stdin: cmd.InOrStdin(), log: s.log}

	started := time.Now()
	results, err := sc.scanAll(cmd.Context(), files)
	if err != nil {
		return err
	}
	elapsed := time.Since(started)
	merged, sources, errs := merge(results)
	for _, e := range errs {
		s.log.Warn("file skipped", "err", e)
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", e)
	}
	if len(errs) > 0 && !tooLarge(errs) {
		return errors.Join(errs...)
	}
	s.log.Info("scan finished", "files", len(files), "findings", len(merged.Findings), "elapsed", elapsed)

	if cfg.Database != "" {
		if err := record(cmd, cfg.Database, args, started, elapsed, len(files)-len(errs), merged); err != nil {
			return err
		}
	}
	if f.writeBaseline != "" {
		if err := engine.WriteBaseline(f.writeBaseline, merged.Findings); err != nil {
			return err
		}
	}

	if f.useTUI {
		if !isTerminal(os.Stdout) {
			return fmt.Errorf("--tui needs a terminal on stdout")
		}
		if err := tui.Run(merged, sources); err != nil {
			return err
		}
	} else if err := output(cmd, f, merged); err != nil {
		return err
	}
	return failOn(cfg.FailOn, merged)
}

func output(cmd *cobra.Command, f scanFlags, r *model.Report) error {
	mode, _ := cmd.Flags().GetString("color")
	if f.out == "" {
		w := cmd.OutOrStdout()
		setColor(mode, w)
		return render(w, f.format, r, terminalWidth(w))
	}
	file, err := os.Create(f.out)
	if err != nil {
		return err
	}
	setColor(mode, file)
	return renderAndClose(file, f.format, r, terminalWidth(file))
}

// renderAndClose renders into wc and closes it. A close failure is reported
// when rendering succeeded.
func renderAndClose(wc io.WriteCloser, format string, r *model.Report, width int) error {
	if err := render(wc, format, r, width); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	return nil
}

func record(cmd *cobra.Command, path string, args []string, started time.Time, elapsed time.Duration, files int, r *model.Report) error {
	db, err := storage.Open(cmd.Context(), path)
	if err != nil {
		return err
	}
	defer db.Close()
	target := strings.Join(args, " ")
	if target == "" {
		target = "."
	}
	_, err = db.Record(cmd.Context(), target, started, elapsed, files, r)
	return err
}

// failOn returns ErrFailOn when r holds a finding at or above threshold.
// "none" and "" disable the check.
func failOn(threshold string, r *model.Report) error {
	if threshold == "" || strings.EqualFold(threshold, "none") {
		return nil
	}
	t := model.ParseSeverity(threshold)
	for _, f := range r.Findings {
		if model.SeverityGTE(f.Severity, t) {
			return fmt.Errorf("%w: %s finding %s", ErrFailOn, f.Severity, f.RuleID)
		}
	}
	return nil
}

func severityOrEmpty(s string) model.Severity {
	if s == "" {
		return ""
	}
	return model.ParseSeverity(s)
}
