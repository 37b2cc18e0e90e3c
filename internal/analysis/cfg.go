package analysis

import "github.com/xab-mack/solguard/internal/solidity"

// State is a node of a sequence automaton. Each rule defines its own states.
type State int

// Start is the initial state of every automaton.
const Start State = 0

// Step advances an automaton over one statement. It returns the next state
// and whether the statement is accepted (reported) in this transition.
type Step func(s State, idx int, st *solidity.Statement) (State, bool)

// Walk feeds the block's statements, in source order, through step and
// returns the indexes of accepted statements. Statement order inside a body
// is the only flow information available, so automata stand in for a CFG.
func Walk(b *solidity.CodeBlock, step Step) []int {
	var accepted []int
	s := Start
	for i := range b.Statements {
		var ok bool
		s, ok = step(s, i, &b.Statements[i])
		if ok {
			accepted = append(accepted, i)
		}
	}
	return accepted
}

// FirstIndex returns the index of the first statement satisfying pred, or -1.
func FirstIndex(b *solidity.CodeBlock, pred func(*solidity.Statement) bool) int {
	for i := range b.Statements {
		if pred(&b.Statements[i]) {
			return i
		}
	}
	return -1
}

// Any reports whether some statement satisfies pred.
func Any(b *solidity.CodeBlock, pred func(*solidity.Statement) bool) bool {
	return FirstIndex(b, pred) >= 0
}

// IsKind returns a predicate matching statements of kind k.
func IsKind(k solidity.StmtKind) func(*solidity.Statement) bool {
	return func(st *solidity.Statement) bool { return st.Kind == k }
}
