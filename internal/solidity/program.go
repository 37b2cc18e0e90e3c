package solidity

import (
	"strings"

	"github.com/xab-mack/solguard/internal/model"
)

// Contract returns the contract declared with name, or nil.
func (p *Program) Contract(name string) *Contract {
	for i := range p.Contracts {
		if p.Contracts[i].Name == name {
			return &p.Contracts[i]
		}
	}
	return nil
}

// StateVars returns the state variables visible in contract, including
// those inherited from base contracts declared in the same unit. Variables
// of the contract itself come first.
func (p *Program) StateVars(contract string) []StateVar {
	var out []StateVar
	seen := map[string]bool{}
	var walk func(name string)
	walk = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		c := p.Contract(name)
		if c == nil {
			return
		}
		out = append(out, c.StateVars...)
		for _, b := range c.Bases {
			walk(b)
		}
	}
	walk(contract)
	return out
}

// StateVar looks up a state variable visible in contract.
func (p *Program) StateVar(contract, name string) (StateVar, bool) {
	for _, v := range p.StateVars(contract) {
		if v.Name == name {
			return v, true
		}
	}
	return StateVar{}, false
}

// Parsable returns the blocks that structured cleanly, in source order.
func (p *Program) Parsable() []*CodeBlock {
	out := make([]*CodeBlock, 0, len(p.Blocks))
	for i := range p.Blocks {
		if !p.Blocks[i].Unparsable {
			out = append(out, &p.Blocks[i])
		}
	}
	return out
}

// BlockAt returns the block whose extent contains off.
func (p *Program) BlockAt(off int) *CodeBlock {
	for i := range p.Blocks {
		b := &p.Blocks[i]
		if off >= b.Start && off < b.End {
			return b
		}
	}
	return nil
}

// ContractAt returns the contract whose body contains off.
func (p *Program) ContractAt(off int) *Contract {
	for i := range p.Contracts {
		c := &p.Contracts[i]
		if off >= c.Span.Start && off < c.Span.End {
			return c
		}
	}
	return nil
}

// StatementCount is the number of statements over all parsable blocks.
func (p *Program) StatementCount() int {
	n := 0
	for i := range p.Blocks {
		n += len(p.Blocks[i].Statements)
	}
	return n
}

// UnparsableBlocks reports every block the structurer had to abandon.
func (p *Program) UnparsableBlocks() []model.UnparsableBlock {
	var out []model.UnparsableBlock
	for _, b := range p.Blocks {
		if !b.Unparsable {
			continue
		}
		out = append(out, model.UnparsableBlock{
			Contract: b.Contract,
			Name:     b.Name,
			Span:     model.Span{Start: b.Start, End: b.End},
			Line:     p.Unit.Position(b.Start).Line,
		})
	}
	return out
}

// HasModifier reports whether any declared modifier contains one of the
// given fragments, compared case-insensitively.
func (b *CodeBlock) HasModifier(fragments ...string) bool {
	for _, m := range b.Modifiers {
		lm := strings.ToLower(m)
		for _, f := range fragments {
			if strings.Contains(lm, strings.ToLower(f)) {
				return true
			}
		}
	}
	return false
}

// Callable reports whether the block can be entered by an outside caller.
// Functions without explicit visibility default to public.
func (b *CodeBlock) Callable() bool {
	switch b.Kind {
	case KindModifier, KindConstructor:
		return false
	}
	return b.Visibility == "" || b.Visibility == "public" || b.Visibility == "external"
}

// ReadOnly reports view, pure and legacy constant functions.
func (b *CodeBlock) ReadOnly() bool {
	return b.Mutability == "view" || b.Mutability == "pure" || b.Mutability == "constant"
}

func (b *CodeBlock) Payable() bool { return b.Mutability == "payable" || b.Kind == KindReceive }

// Param returns the parameter or named return called name.
func (b *CodeBlock) Param(name string) (Param, bool) {
	for _, p := range b.Params {
		if p.Name == name {
			return p, true
		}
	}
	for _, p := range b.Returns {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Writes lists every state root written anywhere in the block, in order of
// first write.
func (b *CodeBlock) Writes() []string {
	var out []string
	for _, st := range b.Statements {
		for _, w := range st.Writes {
			if !contains(out, w) {
				out = append(out, w)
			}
		}
	}
	return out
}

// HeaderText returns the normalized header of the block.
func (b *CodeBlock) HeaderText(u *SourceUnit) string { return u.Slice(b.Header) }

// BodyText returns the normalized body of the block, braces included.
func (b *CodeBlock) BodyText(u *SourceUnit) string { return u.Slice(b.Body) }
