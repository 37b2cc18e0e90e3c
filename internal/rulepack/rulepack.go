// Package rulepack loads user-defined pattern rules from YAML or TOML files
// and compiles them into catalog rules.
package rulepack

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/plugins"
	"github.com/xab-mack/solguard/internal/solidity"
)

const (
	ScopeText     = "text"
	ScopeFunction = "function"

	defaultConfidence = 0.6
)

type Pack struct {
	Rules []Def `yaml:"rules" toml:"rules"`
}

// Def is one rule as written in a pack file.
type Def struct {
	ID                    string   `yaml:"id" toml:"id"`
	Title                 string   `yaml:"title" toml:"title"`
	Category              string   `yaml:"category" toml:"category"`
	Severity              string   `yaml:"severity" toml:"severity"`
	GasImpact             string   `yaml:"gasImpact" toml:"gasImpact"`
	Confidence            float64  `yaml:"confidence" toml:"confidence"`
	Description           string   `yaml:"description" toml:"description"`
	Remediation           string   `yaml:"remediation" toml:"remediation"`
	References            []string `yaml:"references" toml:"references"`
	Pattern               string   `yaml:"pattern" toml:"pattern"`
	Scope                 string   `yaml:"scope" toml:"scope"`
	Unless                string   `yaml:"unless" toml:"unless"`
	RequireModifierAbsent []string `yaml:"requireModifierAbsent" toml:"requireModifierAbsent"`
}

// Load reads a pack file. Files ending in .toml are TOML, anything else YAML.
func Load(path string) (*Pack, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule pack: %w", err)
	}
	var pack Pack
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		md, err := toml.Decode(string(b), &pack)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if und := md.Undecoded(); len(und) > 0 {
			return nil, fmt.Errorf("parse %s: unknown key %s", path, und[0])
		}
		return &pack, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&pack); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &pack, nil
}

// Register loads every pack in paths and adds its rules to c. It stops at
// the first error and returns the number of rules registered so far.
func Register(c *plugins.Catalog, paths ...string) (int, error) {
	n := 0
	for _, p := range paths {
		pack, err := Load(p)
		if err != nil {
			return n, err
		}
		for _, d := range pack.Rules {
			r, err := Compile(d)
			if err != nil {
				return n, fmt.Errorf("%s: %w", p, err)
			}
			if err := c.Register(r); err != nil {
				return n, fmt.Errorf("%s: %w", p, err)
			}
			n++
		}
	}
	return n, nil
}

type compiled struct {
	id       string
	scope    string
	pattern  *regexp.Regexp
	unless   *regexp.Regexp
	excluded []string
}

// Compile validates d and turns it into a catalog rule.
func Compile(d Def) (plugins.Rule, error) {
	id := strings.TrimSpace(d.ID)
	if id == "" || d.Pattern == "" {
		return plugins.Rule{}, fmt.Errorf("compile rule %q: missing required fields (id/pattern)", d.ID)
	}
	sev, err := severity(d.Severity)
	if err != nil {
		return plugins.Rule{}, fmt.Errorf("compile rule %s: %w", id, err)
	}
	cat, err := category(d.Category)
	if err != nil {
		return plugins.Rule{}, fmt.Errorf("compile rule %s: %w", id, err)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return plugins.Rule{}, fmt.Errorf("compile rule %s: confidence %v out of range", id, d.Confidence)
	}
	c := &compiled{id: id, scope: strings.ToLower(strings.TrimSpace(d.Scope)), excluded: d.RequireModifierAbsent}
	switch c.scope {
	case "":
		c.scope = ScopeText
	case ScopeText, ScopeFunction:
	default:
		return plugins.Rule{}, fmt.Errorf("compile rule %s: unknown scope %q", id, d.Scope)
	}
	if c.pattern, err = regexp.Compile(d.Pattern); err != nil {
		return plugins.Rule{}, fmt.Errorf("compile rule %s: pattern: %w", id, err)
	}
	if d.Unless != "" {
		if c.unless, err = regexp.Compile(d.Unless); err != nil {
			return plugins.Rule{}, fmt.Errorf("compile rule %s: unless: %w", id, err)
		}
	}

	title := d.Title
	if title == "" {
		title = id
	}
	conf := d.Confidence
	if conf == 0 {
		conf = defaultConfidence
	}
	scope := plugins.ScopeText
	if c.scope == ScopeFunction {
		scope = plugins.ScopeStructured
	}
	return plugins.Rule{
		ID:          id,
		Title:       title,
		Category:    cat,
		Severity:    sev,
		GasImpact:   model.ParseGasImpact(d.GasImpact),
		Scope:       scope,
		Confidence:  conf,
		Description: d.Description,
		Remediation: d.Remediation,
		References:  d.References,
		Detect:      c.detect,
	}, nil
}

func severity(s string) (model.Severity, error) {
	if s == "" {
		return model.SeverityLow, nil
	}
	for _, v := range model.Severities {
		if strings.EqualFold(string(v), strings.TrimSpace(s)) {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

func category(s string) (model.Category, error) {
	if s == "" {
		return model.CategoryOther, nil
	}
	for _, v := range model.Categories {
		if strings.EqualFold(string(v), strings.TrimSpace(s)) {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

func (c *compiled) detect(ctx *analysis.Context) ([]model.Match, error) {
	if c.scope == ScopeFunction {
		var out []model.Match
		for _, b := range ctx.Blocks() {
			if b.Kind == solidity.KindModifier || c.skip(ctx, b) {
				continue
			}
			out = append(out, c.find(ctx.Unit.Slice(b.Body), b.Body.Start)...)
		}
		return out, nil
	}
	var out []model.Match
	for _, m := range c.find(ctx.Text(), 0) {
		b := ctx.Program.BlockAt(m.Span.Start)
		switch {
		case b != nil && !b.Unparsable:
			if c.skip(ctx, b) {
				continue
			}
		case c.unless != nil && c.unless.MatchString(ctx.Text()):
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// skip reports whether b carries an excluded modifier or matches unless.
func (c *compiled) skip(ctx *analysis.Context, b *solidity.CodeBlock) bool {
	for _, want := range c.excluded {
		for _, m := range b.Modifiers {
			if strings.EqualFold(m, want) {
				return true
			}
		}
	}
	return c.unless != nil && c.unless.MatchString(ctx.Unit.Slice(b.Body))
}

func (c *compiled) find(text string, base int) []model.Match {
	var out []model.Match
	for _, loc := range c.pattern.FindAllStringIndex(text, -1) {
		if loc[0] == loc[1] {
			continue
		}
		out = append(out, model.Match{
			RuleID:   c.id,
			Span:     model.Span{Start: base + loc[0], End: base + loc[1]},
			Evidence: strings.Join(strings.Fields(text[loc[0]:loc[1]]), " "),
		})
	}
	return out
}
