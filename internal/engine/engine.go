package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/config"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/plugins"
	"github.com/xab-mack/solguard/internal/report"
	"github.com/xab-mack/solguard/internal/solidity"
	"github.com/xab-mack/solguard/internal/util"
)

// MinBudget is the smallest default evaluation budget, in work units.
const MinBudget = 20000

// Options tune a single scan. The zero value scans with every rule and the
// default limits.
type Options struct {
	// File labels findings and keys fingerprints. It is never opened.
	File string
	// MaxInputSize caps the input in characters; <= 0 uses the default.
	MaxInputSize int
	// EvaluationBudget caps work units; <= 0 uses DefaultBudget.
	EvaluationBudget int
	// SeverityThreshold drops findings below it. Empty keeps everything.
	SeverityThreshold model.Severity
	// Allowed, when non-empty, restricts evaluation to these rule ids.
	Allowed []string
	// Disabled rule ids are never evaluated.
	Disabled []string
	// HonorSuppressions enables inline `solguard:ignore RULE-ID` comments.
	HonorSuppressions bool
	// Ignore drops findings by rule id and path prefix.
	Ignore []config.IgnoreRule
	// Baseline drops findings whose fingerprint it contains.
	Baseline Baseline
}

// Engine runs a rule catalog over Solidity source. It holds no per-scan
// state and is safe for concurrent use.
type Engine struct {
	catalog *plugins.Catalog
	log     *slog.Logger
}

// New returns an engine over catalog. A nil catalog uses the built-in rules
// and a nil logger discards output.
func New(catalog *plugins.Catalog, logger *slog.Logger) *Engine {
	if catalog == nil {
		catalog = plugins.Default()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{catalog: catalog, log: logger}
}

// Catalog returns the rules this engine evaluates.
func (e *Engine) Catalog() *plugins.Catalog { return e.catalog }

// DefaultBudget is the evaluation budget for an input of n bytes.
func DefaultBudget(n int) int {
	return max(MinBudget, 16*n)
}

// ruleCost is the work charged for one rule evaluation.
func ruleCost(ctx *analysis.Context) int {
	return 1 + len(ctx.Program.Blocks) + ctx.Program.StatementCount() + len(ctx.Text())/128
}

type ruleMatch struct {
	rule  plugins.Rule
	match model.Match
}

// Scan normalizes and structures source, evaluates every enabled rule in id
// order and aggregates the surviving findings into a report. Only
// model.ErrInputTooLarge is returned as an error; rule failures, budget
// exhaustion and cancellation are recorded in the report metadata.
func (e *Engine) Scan(ctx context.Context, source string, opts Options) (*model.Report, error) {
	unit, err := solidity.Normalize(source, opts.MaxInputSize)
	if err != nil {
		return nil, err
	}
	limit := opts.EvaluationBudget
	if limit <= 0 {
		limit = DefaultBudget(len(unit.Text))
	}
	actx := analysis.NewContextWithin(unit, limit)
	prog := actx.Program

	meta := model.ScanMetadata{
		InputLength:      len(unit.Raw),
		UnitCount:        len(prog.Blocks),
		ContractCount:    len(prog.Contracts),
		BudgetLimit:      limit,
		BudgetUsed:       min(prog.Work, limit),
		BudgetExceeded:   prog.Truncated,
		Warnings:         append([]string(nil), unit.Warnings...),
		UnparsableBlocks: prog.UnparsableBlocks(),
	}
	if prog.Truncated {
		e.log.Warn("structuring budget exceeded", "file", opts.File, "used", meta.BudgetUsed, "limit", limit)
	}
	if len(meta.UnparsableBlocks) > 0 {
		meta.Warnings = append(meta.Warnings, model.WarnUnparsableBlock)
	}

	allowed := idSet(opts.Allowed)
	disabled := idSet(opts.Disabled)
	cost := ruleCost(actx)
	var raw []ruleMatch
	rules := e.catalog.Rules()
	for i, r := range rules {
		if len(allowed) > 0 && !allowed[r.ID] || disabled[r.ID] {
			continue
		}
		if ctx.Err() != nil {
			meta.Cancelled = true
			e.log.Info("scan cancelled", "file", opts.File, "rulesEvaluated", meta.RulesEvaluated)
			break
		}
		if meta.BudgetUsed+cost > meta.BudgetLimit {
			meta.BudgetExceeded = true
			e.log.Warn("evaluation budget exceeded", "file", opts.File,
				"used", meta.BudgetUsed, "limit", meta.BudgetLimit, "skipped", len(rules)-i)
			break
		}
		meta.BudgetUsed += cost
		meta.RulesEvaluated++
		matches, stack, err := evaluate(r, actx)
		if err != nil {
			meta.RuleErrors = append(meta.RuleErrors, model.RuleEvaluationError{RuleID: r.ID, Message: err.Error()})
			e.log.Warn("rule evaluation failed", "rule", r.ID, "file", opts.File, "err", err)
			if stack != nil {
				e.log.Debug("rule panic", "rule", r.ID, "stack", string(stack))
			}
			continue
		}
		for _, m := range matches {
			m.RuleID = r.ID
			if !validSpan(m.Span, len(unit.Text)) {
				e.log.Debug("dropping match with invalid span", "rule", r.ID, "start", m.Span.Start, "end", m.Span.End)
				continue
			}
			raw = append(raw, ruleMatch{rule: r, match: m})
		}
	}

	kept := dedupMatches(raw)
	findings := make([]model.Finding, 0, len(kept))
	for _, k := range kept {
		findings = append(findings, e.finding(actx, k, opts.File))
	}

	findings = filterBySeverity(findings, opts.SeverityThreshold)
	var dropped int
	findings, dropped = applyIgnores(findings, unit.Raw, opts)
	meta.Suppressed += dropped
	findings, dropped = filterByBaseline(findings, opts.Baseline)
	meta.Baselined = dropped

	rep := report.Build(findings, meta)
	e.log.Debug("scan complete", "file", opts.File, "findings", len(rep.Findings),
		"score", rep.Score, "budgetUsed", meta.BudgetUsed, "partial", meta.Partial())
	return rep, nil
}

// evaluate runs one predicate, converting a panic into an error so a
// defective rule cannot abort the scan.
func evaluate(r plugins.Rule, ctx *analysis.Context) (matches []model.Match, stack []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			matches, stack = nil, debug.Stack()
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	matches, err = r.Detect(ctx)
	return matches, nil, err
}

func (e *Engine) finding(ctx *analysis.Context, k ruleMatch, file string) model.Finding {
	u := ctx.Unit
	r, m := k.rule, k.match
	f := model.Finding{
		RuleID:      r.ID,
		Title:       r.Title,
		Category:    r.Category,
		Severity:    r.Severity,
		GasImpact:   r.GasImpact,
		Confidence:  r.Confidence,
		File:        file,
		Span:        m.Span,
		Start:       u.Position(m.Span.Start),
		End:         u.Position(m.Span.End),
		Snippet:     u.RawSlice(m.Span),
		Evidence:    m.Evidence,
		Description: r.Description,
		Remediation: r.Remediation,
		References:  append([]string(nil), r.References...),
	}
	if b := ctx.Program.BlockAt(m.Span.Start); b != nil {
		f.Function = b.Name
		f.Contract = b.Contract
	} else if c := ctx.Program.ContractAt(m.Span.Start); c != nil {
		f.Contract = c.Name
	}
	f.Fingerprint = util.Fingerprint(r.ID, file, f.Contract, f.Function, f.Snippet)
	return f
}

func validSpan(s model.Span, n int) bool {
	return s.Start >= 0 && s.End <= n && s.Start <= s.End
}

func idSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out[id] = true
		}
	}
	return out
}
