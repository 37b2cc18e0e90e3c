package solidity

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/xab-mack/solguard/internal/model"
)

type BlockKind string

const (
	KindFunction    BlockKind = "function"
	KindModifier    BlockKind = "modifier"
	KindConstructor BlockKind = "constructor"
	KindFallback    BlockKind = "fallback"
	KindReceive     BlockKind = "receive"
)

// Param is a parameter, named return or local variable declaration.
type Param struct {
	Type     string
	Name     string
	Location string // memory, storage, calldata or empty
}

type StateVar struct {
	Name         string
	Type         string
	Mapping      bool
	DynamicArray bool
	Constant     bool
	Immutable    bool
	Span         model.Span
}

type Contract struct {
	Name      string
	Kind      string // contract, abstract, interface, library
	Bases     []string
	Span      model.Span
	StateVars []StateVar
	Structs   []string
	Enums     []string
}

type Pragma struct {
	Span     model.Span
	Text     string
	Floating bool
	Major    int
	Minor    int
}

// CodeBlock is a function, modifier, constructor, fallback or receive unit.
type CodeBlock struct {
	Kind       BlockKind
	Name       string
	Contract   string
	Modifiers  []string
	Visibility string
	Mutability string
	Virtual    bool
	Params     []Param
	Returns    []Param
	Locals     []Param
	Header     model.Span
	Body       model.Span
	Start      int
	End        int
	Statements []Statement
	Unparsable bool
}

// Program is the structured view of one SourceUnit.
type Program struct {
	Unit      *SourceUnit
	Contracts []Contract
	Pragmas   []Pragma
	Blocks    []CodeBlock

	// Work is the statement-level structuring cost in work units.
	Work int
	// Truncated is set when the work limit stopped statement splitting.
	// Blocks left unsplit are marked unparsable.
	Truncated bool
}

var (
	visibilities = map[string]bool{"public": true, "external": true, "internal": true, "private": true}
	mutabilities = map[string]bool{"view": true, "pure": true, "payable": true, "constant": true, "nonpayable": true}
	declKeywords = map[string]bool{"function": true, "modifier": true, "constructor": true, "fallback": true, "receive": true}
	varQualifier = map[string]bool{
		"public": true, "private": true, "internal": true, "external": true,
		"constant": true, "immutable": true, "override": true, "transient": true,
	}
	reVersion = regexp.MustCompile(`(\d+)\.(\d+)`)
)

// maxNesting bounds recursive statement splitting on degenerate input.
const maxNesting = 256

// WorkUnitBytes is the number of bytes examined per structuring work unit.
const WorkUnitBytes = 32

type contractFrame struct {
	index int
	depth int
}

type structurer struct {
	text   string
	prog   *Program
	pairs  []int
	semis  []int
	frames []contractFrame
	depth  int
}

// meter counts bytes examined while splitting statements. A limit <= 0
// never trips.
type meter struct {
	used  int
	limit int
}

func (m *meter) charge(n int) { m.used += n }

func (m *meter) exhausted() bool {
	return m.limit > 0 && m.used > m.limit*WorkUnitBytes
}

// Structure segments a normalized unit into contracts and code blocks in a
// single forward pass, then splits every balanced body into statements.
func Structure(unit *SourceUnit) *Program {
	return StructureWithin(unit, 0)
}

// StructureWithin is Structure with statement splitting capped at limit work
// units. Once the cap is hit the current and remaining blocks are marked
// unparsable and Program.Truncated is set. limit <= 0 means no cap.
func StructureWithin(unit *SourceUnit, limit int) *Program {
	s := &structurer{
		text:  unit.Text,
		prog:  &Program{Unit: unit},
		pairs: pairTable(unit.Text),
		semis: nextSemicolons(unit.Text),
	}
	s.scan()
	m := &meter{limit: limit}
	for i := range s.prog.Blocks {
		b := &s.prog.Blocks[i]
		if b.Unparsable {
			continue
		}
		if !m.exhausted() {
			newStatementParser(s.prog, b, s.pairs, m).run()
		}
		if m.exhausted() {
			b.Statements, b.Locals = nil, nil
			b.Unparsable = true
			s.prog.Truncated = true
		}
	}
	s.prog.Work = m.used / WorkUnitBytes
	return s.prog
}

// pairTable maps every bracket in text to the offset of its partner, or -1.
// Each bracket kind is matched on its own stack, so a lookup agrees with
// counting one delimiter kind forward from the opener.
func pairTable(text string) []int {
	pairs := make([]int, len(text))
	var stacks [3][]int
	for i := 0; i < len(text); i++ {
		pairs[i] = -1
		if k := strings.IndexByte("([{", text[i]); k >= 0 {
			stacks[k] = append(stacks[k], i)
			continue
		}
		if k := strings.IndexByte(")]}", text[i]); k >= 0 && len(stacks[k]) > 0 {
			o := stacks[k][len(stacks[k])-1]
			stacks[k] = stacks[k][:len(stacks[k])-1]
			pairs[o], pairs[i] = i, o
		}
	}
	return pairs
}

// nextSemicolons maps every offset to the first ';' at or after it, or len(text).
func nextSemicolons(text string) []int {
	out := make([]int, len(text)+1)
	next := len(text)
	out[len(text)] = next
	for i := len(text) - 1; i >= 0; i-- {
		if text[i] == ';' {
			next = i
		}
		out[i] = next
	}
	return out
}

// group returns the offset closing the '(' or '{' at open, or -1. A
// parenthesis group containing ';' is not a header group.
func (s *structurer) group(open int) int {
	close := s.pairs[open]
	if close < 0 {
		return -1
	}
	if s.text[open] == '(' && s.semis[open] < close {
		return -1
	}
	return close
}

func (s *structurer) scan() {
	text := s.text
	n := len(text)
	for i := 0; i < n; {
		c := text[i]
		switch {
		case c == '{':
			s.depth++
			i++
			continue
		case c == '}':
			s.depth--
			if len(s.frames) > 0 {
				top := s.frames[len(s.frames)-1]
				if s.depth == top.depth {
					s.prog.Contracts[top.index].Span.End = i + 1
					s.frames = s.frames[:len(s.frames)-1]
				}
			}
			if s.depth < 0 {
				s.depth = 0
			}
			i++
			continue
		case !isIdentStart(c) || !wordBoundary(text, i):
			i++
			continue
		}

		w := wordAt(text, i)
		switch w {
		case "pragma":
			i = s.pragma(i)
		case "contract", "interface", "library":
			i = s.contract(i, w)
		case "function", "modifier", "constructor", "fallback", "receive":
			next, ok := s.block(i, w)
			if ok {
				i = next
			} else {
				i += len(w)
			}
		case "struct", "enum":
			i = s.typeDecl(i, w)
		case "event", "error", "using", "import":
			i = skipTo(text, i, ';')
		default:
			if s.memberLevel() {
				i = s.stateVar(i)
			} else {
				i += len(w)
			}
		}
	}
	for _, f := range s.frames {
		if s.prog.Contracts[f.index].Span.End == 0 {
			s.prog.Contracts[f.index].Span.End = n
		}
	}
}

func (s *structurer) memberLevel() bool {
	if len(s.frames) == 0 {
		return false
	}
	return s.depth == s.frames[len(s.frames)-1].depth+1
}

func (s *structurer) currentContract() string {
	if len(s.frames) == 0 {
		return ""
	}
	return s.prog.Contracts[s.frames[len(s.frames)-1].index].Name
}

func (s *structurer) pragma(i int) int {
	end := skipTo(s.text, i, ';')
	p := Pragma{Span: model.Span{Start: i, End: end}, Text: strings.TrimSpace(s.text[i:end])}
	fields := strings.Fields(p.Text)
	if len(fields) < 2 || fields[1] != "solidity" {
		return end
	}
	p.Floating = strings.ContainsAny(p.Text, "^><~") || strings.Contains(p.Text, "*")
	if m := reVersion.FindStringSubmatch(p.Text); m != nil {
		p.Major, _ = strconv.Atoi(m[1])
		p.Minor, _ = strconv.Atoi(m[2])
	}
	s.prog.Pragmas = append(s.prog.Pragmas, p)
	return end
}

func (s *structurer) contract(i int, kw string) int {
	text := s.text
	kind := kw
	if before := strings.TrimSpace(text[max(0, i-16):i]); strings.HasSuffix(before, "abstract") {
		kind = "abstract"
	}
	j := skipSpace(text, i+len(kw))
	name := wordAt(text, j)
	if name == "" {
		return i + len(kw)
	}
	j += len(name)
	var bases []string
	for j < len(text) {
		c := text[j]
		if c == '{' {
			break
		}
		if c == ';' || c == '}' {
			return j
		}
		if c == '(' {
			if close := s.group(j); close > 0 {
				j = close + 1
				continue
			}
			return j + 1
		}
		if isIdentStart(c) && wordBoundary(text, j) {
			w := wordAt(text, j)
			if w != "is" {
				bases = append(bases, w)
			}
			j += len(w)
			continue
		}
		j++
	}
	if j >= len(text) {
		return j
	}
	s.prog.Contracts = append(s.prog.Contracts, Contract{
		Name:  name,
		Kind:  kind,
		Bases: bases,
		Span:  model.Span{Start: i},
	})
	s.frames = append(s.frames, contractFrame{index: len(s.prog.Contracts) - 1, depth: s.depth})
	s.depth++
	return j + 1
}

func (s *structurer) typeDecl(i int, kw string) int {
	text := s.text
	j := skipSpace(text, i+len(kw))
	name := wordAt(text, j)
	open := j + len(name)
	for open < len(text) && text[open] != '{' {
		if text[open] == ';' || text[open] == '}' {
			return open
		}
		open++
	}
	if open >= len(text) {
		return open
	}
	if len(s.frames) > 0 && name != "" {
		c := &s.prog.Contracts[s.frames[len(s.frames)-1].index]
		if kw == "struct" {
			c.Structs = append(c.Structs, name)
		} else {
			c.Enums = append(c.Enums, name)
		}
	}
	close := s.group(open)
	if close < 0 {
		return open + 1
	}
	return close + 1
}

// stateVar parses a contract member declaration terminated by ';'. Anything
// reaching a brace first is not a variable; scanning resumes at that brace.
func (s *structurer) stateVar(i int) int {
	text := s.text
	paren, bracket := 0, 0
	j := i
	for ; j < len(text); j++ {
		c := text[j]
		switch c {
		case '(':
			paren++
		case ')':
			paren--
		case '[':
			bracket++
		case ']':
			bracket--
		case '{', '}':
			return j
		}
		if c == ';' && paren <= 0 && bracket <= 0 {
			break
		}
	}
	if j >= len(text) {
		return j
	}
	decl := text[i:j]
	if eq := topLevelAssign(decl); eq >= 0 {
		decl = decl[:eq]
	}
	v, ok := parseStateVar(decl)
	if ok {
		v.Span = model.Span{Start: i, End: j + 1}
		c := &s.prog.Contracts[s.frames[len(s.frames)-1].index]
		c.StateVars = append(c.StateVars, v)
	}
	return j + 1
}

func parseStateVar(decl string) (StateVar, bool) {
	decl = strings.TrimSpace(decl)
	if decl == "" {
		return StateVar{}, false
	}
	var v StateVar
	typeText := decl
	if strings.HasPrefix(decl, "mapping") {
		open := strings.IndexByte(decl, '(')
		if open < 0 {
			return v, false
		}
		close := matchGroup(decl, open, len(decl), '(', ')')
		if close < 0 {
			return v, false
		}
		v.Mapping = true
		v.Type = decl[:close+1]
		typeText = decl[close+1:]
	}
	toks := strings.Fields(typeText)
	var rest []string
	for _, t := range toks {
		switch {
		case t == "constant":
			v.Constant = true
		case t == "immutable":
			v.Immutable = true
		case varQualifier[t] || strings.HasPrefix(t, "override"):
		default:
			rest = append(rest, t)
		}
	}
	if len(rest) == 0 {
		return v, false
	}
	name := rest[len(rest)-1]
	if !isIdentifier(name) {
		return v, false
	}
	if !v.Mapping {
		if len(rest) < 2 {
			return v, false
		}
		v.Type = strings.Join(rest[:len(rest)-1], " ")
	}
	v.Name = name
	v.DynamicArray = strings.HasSuffix(strings.ReplaceAll(v.Type, " ", ""), "[]")
	return v, true
}

// block parses a declaration header starting at keyword kw and, when a body
// follows, its balanced body. ok is false when the keyword does not start a
// declaration with a body.
func (s *structurer) block(i int, kw string) (int, bool) {
	text := s.text
	n := len(text)
	b := CodeBlock{Kind: BlockKind(kw), Name: kw, Contract: s.currentContract(), Start: i}
	j := skipSpace(text, i+len(kw))
	switch kw {
	case "function", "modifier":
		if name := wordAt(text, j); name != "" {
			b.Name = name
			j += len(name)
		} else if kw == "function" && j < n && text[j] == '(' {
			b.Kind, b.Name = KindFallback, "fallback"
		} else {
			return 0, false
		}
	}
	j = skipSpace(text, j)
	if j < n && text[j] == '(' {
		close := s.group(j)
		if close < 0 {
			return 0, false
		}
		b.Params = parseParams(text[j+1 : close])
		j = close + 1
	} else if kw != "modifier" {
		return 0, false
	}

	for {
		j = skipSpace(text, j)
		if j >= n {
			return n, true
		}
		c := text[j]
		if c == ';' {
			return j + 1, true
		}
		if c == '}' {
			return j, true
		}
		if c == '{' {
			break
		}
		if c == '(' {
			close := s.group(j)
			if close < 0 {
				return j + 1, true
			}
			j = close + 1
			continue
		}
		if !isIdentStart(c) {
			j++
			continue
		}
		w := wordAt(text, j)
		j += len(w)
		switch {
		case visibilities[w]:
			b.Visibility = w
		case mutabilities[w]:
			b.Mutability = w
		case w == "virtual":
			b.Virtual = true
		case w == "override":
			j = s.skipOptionalGroup(j)
		case w == "returns":
			k := skipSpace(text, j)
			if k < n && text[k] == '(' {
				if close := s.group(k); close > 0 {
					b.Returns = parseParams(text[k+1 : close])
					j = close + 1
				}
			}
		default:
			if !contains(b.Modifiers, w) {
				b.Modifiers = append(b.Modifiers, w)
			}
			j = s.skipOptionalGroup(j)
		}
	}
	if b.Visibility == "" && (b.Kind == KindFallback || b.Kind == KindReceive) {
		b.Visibility = "external"
	}
	if b.Visibility == "" && b.Kind == KindConstructor {
		b.Visibility = "public"
	}

	b.Header = model.Span{Start: i, End: j}
	close, stop := matchBody(text, j)
	if close < 0 {
		b.Unparsable = true
		b.Body = model.Span{Start: j, End: stop}
		b.End = stop
		s.prog.Blocks = append(s.prog.Blocks, b)
		return stop, true
	}
	b.Body = model.Span{Start: j, End: close + 1}
	b.End = close + 1
	s.prog.Blocks = append(s.prog.Blocks, b)
	return close + 1, true
}

// matchBody finds the brace closing the body opened at open. When the body
// is unbalanced it returns -1 and the offset where structuring stopped: the
// start of a nested declaration or the end of input.
func matchBody(text string, open int) (close, stop int) {
	depth := 0
	for i := open; i < len(text); i++ {
		switch c := text[i]; {
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i, i + 1
			}
		case depth > 0 && isIdentStart(c) && wordBoundary(text, i):
			w := wordAt(text, i)
			if nestedDeclaration(text, i, w) {
				return -1, i
			}
			i += len(w) - 1
		}
	}
	return -1, len(text)
}

// nestedDeclaration reports whether w at i starts a declaration that cannot
// appear inside a function body.
func nestedDeclaration(text string, i int, w string) bool {
	j := skipSpace(text, i+len(w))
	switch w {
	case "function", "modifier":
		name := wordAt(text, j)
		if name == "" {
			return false
		}
		k := skipSpace(text, j+len(name))
		return w == "modifier" || (k < len(text) && text[k] == '(')
	case "constructor":
		return j < len(text) && text[j] == '('
	case "contract", "interface", "library":
		name := wordAt(text, j)
		if name == "" {
			return false
		}
		k := skipSpace(text, j+len(name))
		return k < len(text) && (text[k] == '{' || wordAt(text, k) == "is")
	}
	return false
}

func parseParams(list string) []Param {
	var out []Param
	for _, part := range splitTopLevel(list, ',') {
		toks := strings.Fields(part)
		if len(toks) == 0 {
			continue
		}
		p := Param{}
		var typ []string
		for k, t := range toks {
			switch t {
			case "memory", "storage", "calldata":
				p.Location = t
			case "indexed", "payable":
				if t == "payable" {
					typ = append(typ, t)
				}
			default:
				if k == len(toks)-1 && len(typ) > 0 && isIdentifier(t) {
					p.Name = t
				} else {
					typ = append(typ, t)
				}
			}
		}
		p.Type = strings.Join(typ, " ")
		out = append(out, p)
	}
	return out
}

// Helpers shared by the structurer and statement parser.

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isIdentifier(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) {
			return false
		}
	}
	return true
}

// wordBoundary reports whether an identifier may start at i: the preceding
// byte is neither an identifier byte nor a member-access dot.
func wordBoundary(text string, i int) bool {
	if i == 0 {
		return true
	}
	p := text[i-1]
	return !isIdentPart(p) && p != '.'
}

func wordAt(text string, i int) string {
	if i >= len(text) || !isIdentStart(text[i]) {
		return ""
	}
	j := i + 1
	for j < len(text) && isIdentPart(text[j]) {
		j++
	}
	return text[i:j]
}

func skipSpace(text string, i int) int {
	for i < len(text) {
		switch text[i] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			i++
		default:
			return i
		}
	}
	return i
}

// skipTo returns the offset just after the next c, or len(text).
func skipTo(text string, i int, c byte) int {
	k := strings.IndexByte(text[i:], c)
	if k < 0 {
		return len(text)
	}
	return i + k + 1
}

func (s *structurer) skipOptionalGroup(j int) int {
	k := skipSpace(s.text, j)
	if k < len(s.text) && s.text[k] == '(' {
		if close := s.group(k); close > 0 {
			return close + 1
		}
	}
	return j
}

// matchGroup returns the index of the delimiter closing the one at open,
// or -1. Parentheses never contain braces or semicolons in well-formed
// headers, so those abort the search early.
func matchGroup(text string, open, end int, o, c byte) int {
	depth := 0
	for i := open; i < end; i++ {
		switch text[i] {
		case o:
			depth++
		case c:
			depth--
			if depth == 0 {
				return i
			}
		case ';':
			if o == '(' && depth <= 1 {
				return -1
			}
		}
	}
	return -1
}

func splitTopLevel(s string, sep byte) []string {
	var out []string
	depth, last := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case sep:
			if depth == 0 {
				out = append(out, s[last:i])
				last = i + 1
			}
		}
	}
	return append(out, s[last:])
}

// topLevelAssign returns the offset of the first plain or compound
// assignment operator outside brackets, or -1.
func topLevelAssign(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '=':
			if depth == 0 && isAssignAt(s, i) {
				return i
			}
		}
	}
	return -1
}

func isAssignAt(s string, i int) bool {
	if i+1 < len(s) && (s[i+1] == '=' || s[i+1] == '>') {
		return false
	}
	if i == 0 {
		return true
	}
	switch s[i-1] {
	case '=', '!':
		return false
	case '<', '>':
		// <<= and >>= are assignments, <= and >= are comparisons
		return i >= 2 && s[i-2] == s[i-1]
	}
	return true
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
