package analysis

import (
	"regexp"
	"strings"

	"github.com/xab-mack/solguard/internal/solidity"
)

var reIdent = regexp.MustCompile(`[A-Za-z_$][A-Za-z0-9_$]*`)

// Mentions reports whether ident occurs in text as a whole identifier that is
// not a member of another expression.
func Mentions(text, ident string) bool {
	if ident == "" {
		return false
	}
	for off := 0; ; {
		k := strings.Index(text[off:], ident)
		if k < 0 {
			return false
		}
		k += off
		end := k + len(ident)
		before := k == 0 || !identByte(text[k-1]) && text[k-1] != '.'
		after := end >= len(text) || !identByte(text[end])
		if before && after {
			return true
		}
		off = k + 1
	}
}

// MentionsAny reports whether text mentions one of idents.
func MentionsAny(text string, idents []string) bool {
	for _, id := range idents {
		if Mentions(text, id) {
			return true
		}
	}
	return false
}

func identByte(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Identifiers lists identifiers of text in order of first appearance.
func Identifiers(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range reIdent.FindAllStringIndex(text, -1) {
		if m[0] > 0 && text[m[0]-1] == '.' {
			continue
		}
		id := text[m[0]:m[1]]
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// IsGuard reports whether a statement validates a condition: require,
// assert, a revert or an if header.
func IsGuard(st *solidity.Statement) bool {
	switch st.Keyword {
	case "require", "assert", "if", "revert":
		return true
	}
	return false
}

// GuardedBefore reports whether a guard mentioning ident appears in the
// block before statement index limit.
func GuardedBefore(b *solidity.CodeBlock, ident string, limit int) bool {
	for i := 0; i < limit && i < len(b.Statements); i++ {
		st := &b.Statements[i]
		if IsGuard(st) && Mentions(st.Text, ident) {
			return true
		}
	}
	return false
}

// Guarded reports whether any guard in the block mentions ident.
func Guarded(b *solidity.CodeBlock, ident string) bool {
	return GuardedBefore(b, ident, len(b.Statements))
}

// Derived returns the locals whose initializer or assignment mentions one
// of the seed expressions, directly or through another derived local.
// Statements are visited in order, so flow is forward-only.
func Derived(b *solidity.CodeBlock, seeds []string) map[string]bool {
	out := map[string]bool{}
	tainted := func(text string) bool {
		for _, s := range seeds {
			if strings.Contains(text, s) {
				return true
			}
		}
		for id := range out {
			if Mentions(text, id) {
				return true
			}
		}
		return false
	}
	for _, st := range b.Statements {
		name, rhs := assignment(st)
		if name != "" && tainted(rhs) {
			out[name] = true
		}
	}
	return out
}

// assignment splits a declaration or simple assignment into target and
// right-hand side.
func assignment(st solidity.Statement) (string, string) {
	text := strings.TrimSuffix(strings.TrimSpace(st.Text), ";")
	eq := strings.Index(text, "=")
	if eq <= 0 || eq+1 >= len(text) || text[eq+1] == '=' || strings.ContainsRune("!<>", rune(text[eq-1])) {
		return "", ""
	}
	if st.Decl != nil {
		return st.Decl.Name, text[eq+1:]
	}
	lhs := strings.TrimSpace(text[:eq])
	if !isPlainIdent(lhs) {
		return "", ""
	}
	return lhs, text[eq+1:]
}

func isPlainIdent(s string) bool {
	return s != "" && reIdent.FindString(s) == s
}
