package analysis

import (
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/solidity"
)

// Context carries the parsed artifacts rule predicates read from. It is built
// once per scan and never mutated afterwards.
type Context struct {
	Unit    *solidity.SourceUnit
	Program *solidity.Program

	blocks []*solidity.CodeBlock
}

// NewContext structures unit and wraps the result.
func NewContext(unit *solidity.SourceUnit) *Context {
	return NewContextWithin(unit, 0)
}

// NewContextWithin is NewContext with structuring capped at limit work units.
func NewContextWithin(unit *solidity.SourceUnit, limit int) *Context {
	prog := solidity.StructureWithin(unit, limit)
	return &Context{Unit: unit, Program: prog, blocks: prog.Parsable()}
}

// Text is the normalized source.
func (c *Context) Text() string { return c.Unit.Text }

// Blocks returns the parsable code blocks in source order. Unparsable blocks
// are absent.
func (c *Context) Blocks() []*solidity.CodeBlock { return c.blocks }

// Functions returns parsable blocks that an outside caller can enter.
func (c *Context) Functions() []*solidity.CodeBlock {
	var out []*solidity.CodeBlock
	for _, b := range c.blocks {
		if b.Callable() {
			out = append(out, b)
		}
	}
	return out
}

// StateVar resolves name against the state of the block's contract.
func (c *Context) StateVar(b *solidity.CodeBlock, name string) (solidity.StateVar, bool) {
	return c.Program.StateVar(b.Contract, name)
}

// Modifier returns the parsable modifier named name in the block's contract
// or its bases.
func (c *Context) Modifier(b *solidity.CodeBlock, name string) *solidity.CodeBlock {
	for _, m := range c.blocks {
		if m.Kind == solidity.KindModifier && m.Name == name {
			if m.Contract == b.Contract || c.inherits(b.Contract, m.Contract) {
				return m
			}
		}
	}
	return nil
}

func (c *Context) inherits(child, base string) bool {
	seen := map[string]bool{}
	var walk func(string) bool
	walk = func(name string) bool {
		if seen[name] {
			return false
		}
		seen[name] = true
		ct := c.Program.Contract(name)
		if ct == nil {
			return false
		}
		for _, b := range ct.Bases {
			if b == base || walk(b) {
				return true
			}
		}
		return false
	}
	return walk(child)
}

// Match builds a match for a statement span.
func Match(ruleID string, st *solidity.Statement, evidence string) model.Match {
	return model.Match{RuleID: ruleID, Span: st.Span, Evidence: evidence}
}

// HeaderMatch builds a match spanning a block header.
func HeaderMatch(ruleID string, b *solidity.CodeBlock, evidence string) model.Match {
	return model.Match{RuleID: ruleID, Span: b.Header, Evidence: evidence}
}
