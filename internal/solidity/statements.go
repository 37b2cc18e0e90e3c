package solidity

import (
	"strings"
	"unicode"

	"github.com/xab-mack/solguard/internal/model"
)

type StmtKind string

const (
	StmtExternalCall StmtKind = "external-call"
	StmtStateWrite   StmtKind = "state-write"
	StmtControlFlow  StmtKind = "control-flow"
	StmtEventEmit    StmtKind = "event-emit"
	StmtOther        StmtKind = "other"
)

type CallKind string

const (
	CallLowLevel  CallKind = "call"
	CallDelegate  CallKind = "delegatecall"
	CallStatic    CallKind = "staticcall"
	CallSend      CallKind = "send"
	CallTransfer  CallKind = "transfer"
	CallInterface CallKind = "interface"
)

// Call is an external call expression found inside a statement.
type Call struct {
	Kind      CallKind
	Receiver  string
	Method    string
	Args      string
	WithValue bool
	Span      model.Span
}

// Statement is one coarsely classified statement or control-flow header.
type Statement struct {
	Span      model.Span
	Kind      StmtKind
	Keyword   string
	Text      string
	Depth     int
	LoopDepth int
	Unchecked bool
	Assembly  bool
	Decl      *Param
	Calls     []Call
	Writes    []string
}

// IsLowLevel reports whether the call is a raw address call.
func (c Call) IsLowLevel() bool {
	switch c.Kind {
	case CallLowLevel, CallDelegate, CallStatic, CallSend:
		return true
	}
	return false
}

var controlKeywords = map[string]bool{
	"if": true, "else": true, "for": true, "while": true, "do": true, "catch": true,
}

// nonTypeWords start statements that are never declarations.
var nonTypeWords = map[string]bool{
	"return": true, "emit": true, "delete": true, "require": true, "assert": true,
	"revert": true, "if": true, "else": true, "for": true, "while": true, "do": true,
	"break": true, "continue": true, "new": true, "throw": true, "try": true,
}

var builtinRoots = []string{"this", "msg", "block", "tx", "abi", "super"}

const (
	// maxReceiverSteps caps the backward walk over a call receiver.
	maxReceiverSteps = 256
	// maxReceiverBytes caps the receiver text, bracket groups included.
	maxReceiverBytes = 1024
	// maxCallOptions caps the bytes of a `{value: ...}` group searched.
	maxCallOptions = 256
)

type stmtCtx struct {
	depth     int
	loopDepth int
	unchecked bool
}

type statementParser struct {
	text  string
	prog  *Program
	block *CodeBlock
	pairs []int
	meter *meter
	env   map[string]Param
	state map[string]StateVar
	types map[string]bool // struct, enum and library names
}

func newStatementParser(prog *Program, b *CodeBlock, pairs []int, m *meter) *statementParser {
	p := &statementParser{
		text:  prog.Unit.Text,
		prog:  prog,
		block: b,
		pairs: pairs,
		meter: m,
		env:   map[string]Param{},
		state: map[string]StateVar{},
		types: map[string]bool{},
	}
	for _, v := range prog.StateVars(b.Contract) {
		p.state[v.Name] = v
	}
	for _, c := range prog.Contracts {
		if c.Kind == "library" {
			p.types[c.Name] = true
		}
		for _, n := range c.Structs {
			p.types[n] = true
		}
		for _, n := range c.Enums {
			p.types[n] = true
		}
	}
	for _, prm := range b.Params {
		if prm.Name != "" {
			p.env[prm.Name] = prm
		}
	}
	for _, prm := range b.Returns {
		if prm.Name != "" {
			p.env[prm.Name] = prm
		}
	}
	return p
}

func (p *statementParser) run() {
	b := p.block
	p.parseRange(b.Body.Start+1, b.Body.End-1, stmtCtx{})
	for i := range b.Statements {
		if p.meter.exhausted() {
			return
		}
		p.classify(&b.Statements[i])
	}
}

func (p *statementParser) parseRange(i, end int, ctx stmtCtx) {
	for !p.meter.exhausted() {
		i = skipSpace(p.text, i)
		if i >= end {
			return
		}
		i = p.parseOne(i, end, ctx)
	}
}

// match returns the partner of the bracket at open when it lies before end,
// or -1.
func (p *statementParser) match(open, end int) int {
	if close := p.pairs[open]; close > open && close < end {
		return close
	}
	return -1
}

func (p *statementParser) emit(start, end int, kw string, ctx stmtCtx) *Statement {
	st := Statement{
		Span:      model.Span{Start: start, End: end},
		Keyword:   kw,
		Text:      p.text[start:end],
		Depth:     ctx.depth,
		LoopDepth: ctx.loopDepth,
		Unchecked: ctx.unchecked,
	}
	p.block.Statements = append(p.block.Statements, st)
	return &p.block.Statements[len(p.block.Statements)-1]
}

// parseOne consumes a single statement starting at i and returns the offset
// just past it.
func (p *statementParser) parseOne(i, end int, ctx stmtCtx) int {
	text := p.text
	switch c := text[i]; {
	case c == ';', c == '}':
		return i + 1
	case c == '{':
		close := p.match(i, end)
		if close < 0 {
			close = end
		}
		p.nested(i+1, close, ctx)
		return close + 1
	}

	w := ""
	if isIdentStart(text[i]) {
		w = wordAt(text, i)
	}
	switch w {
	case "if", "while", "for":
		headerEnd := i + len(w)
		if j := skipSpace(text, headerEnd); j < end && text[j] == '(' {
			if close := p.match(j, end); close > 0 {
				headerEnd = close + 1
			} else {
				headerEnd = end
			}
		}
		p.emit(i, headerEnd, w, ctx)
		if w == "for" {
			p.forInit(i, headerEnd)
		}
		body := ctx
		if w != "if" {
			body.loopDepth++
		}
		return p.body(headerEnd, end, body)
	case "else":
		p.emit(i, i+len(w), w, ctx)
		return p.body(i+len(w), end, ctx)
	case "do":
		p.emit(i, i+len(w), w, ctx)
		loop := ctx
		loop.loopDepth++
		next := skipSpace(text, p.body(i+len(w), end, loop))
		if next < end && wordAt(text, next) == "while" {
			stop := p.simpleEnd(next, end)
			p.emit(next, stop, "while", ctx)
			return stop
		}
		return next
	case "unchecked":
		j := skipSpace(text, i+len(w))
		if j < end && text[j] == '{' {
			inner := ctx
			inner.unchecked = true
			close := p.match(j, end)
			if close < 0 {
				close = end
			}
			p.nested(j+1, close, inner)
			return close + 1
		}
	case "assembly":
		open := strings.IndexAny(text[i:end], "{;")
		if open >= 0 && text[i+open] == '{' {
			close := p.match(i+open, end)
			if close < 0 {
				close = end - 1
			}
			st := p.emit(i, close+1, w, ctx)
			st.Assembly = true
			return close + 1
		}
	case "try":
		open := headerOpen(text, i, end)
		p.emit(i, open, w, ctx)
		next := p.body(open, end, ctx)
		for {
			k := skipSpace(text, next)
			if k >= end || wordAt(text, k) != "catch" {
				return next
			}
			open := headerOpen(text, k, end)
			p.emit(k, open, "catch", ctx)
			next = p.body(open, end, ctx)
		}
	}

	stop := p.simpleEnd(i, end)
	st := p.emit(i, stop, w, ctx)
	p.declaration(st)
	return stop
}

func (p *statementParser) nested(start, end int, ctx stmtCtx) {
	ctx.depth++
	if ctx.depth > maxNesting {
		if skipSpace(p.text, start) < end {
			p.emit(start, end, "", ctx)
		}
		return
	}
	p.parseRange(start, end, ctx)
}

// body parses the single statement or block governed by a control header.
func (p *statementParser) body(i, end int, ctx stmtCtx) int {
	i = skipSpace(p.text, i)
	if i >= end {
		return end
	}
	if p.text[i] == '{' {
		close := p.match(i, end)
		if close < 0 {
			close = end
		}
		p.nested(i+1, close, ctx)
		return close + 1
	}
	inner := ctx
	inner.depth++
	if inner.depth > maxNesting {
		stop := p.simpleEnd(i, end)
		p.emit(i, stop, "", inner)
		return stop
	}
	return p.parseOne(i, end, inner)
}

// simpleEnd finds the end of an expression statement: just past the first
// ';' outside brackets, or the first unmatched '}' (not consumed).
func (p *statementParser) simpleEnd(i, end int) int {
	depth := 0
	for j := i; j < end; j++ {
		switch p.text[j] {
		case '(', '[', '{':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case '}':
			if depth == 0 {
				return j
			}
			depth--
		case ';':
			if depth == 0 {
				return j + 1
			}
		}
	}
	return end
}

// headerOpen finds the '{' opening a try or catch body. A ';' outside
// parentheses ends a malformed header first.
func headerOpen(text string, i, end int) int {
	depth := 0
	for j := i; j < end; j++ {
		switch text[j] {
		case '(':
			depth++
		case ')':
			depth--
		case '{', ';':
			if depth <= 0 {
				return j
			}
		}
	}
	return end
}

func (p *statementParser) forInit(start, headerEnd int) {
	header := p.text[start:headerEnd]
	open := strings.IndexByte(header, '(')
	if open < 0 {
		return
	}
	init := header[open+1:]
	if semi := strings.IndexByte(init, ';'); semi >= 0 {
		init = init[:semi]
	}
	if d, ok := parseDeclaration(init); ok {
		p.addLocal(d)
	}
}

func (p *statementParser) declaration(st *Statement) {
	if d, ok := parseDeclaration(strings.TrimSuffix(st.Text, ";")); ok {
		p.addLocal(d)
		st.Decl = &d
		return
	}
	text := strings.TrimSpace(st.Text)
	if strings.HasPrefix(text, "(") {
		eq := topLevelAssign(text)
		if eq < 0 {
			return
		}
		lhs := strings.TrimSpace(text[:eq])
		if close := matchDelim(lhs, 0, len(lhs), '(', ')'); close > 0 {
			for _, part := range splitTopLevel(lhs[1:close], ',') {
				if d, ok := parseDeclaration(part); ok {
					p.addLocal(d)
				}
			}
		}
	}
}

func (p *statementParser) addLocal(d Param) {
	p.env[d.Name] = d
	p.block.Locals = append(p.block.Locals, d)
}

// parseDeclaration recognises `Type [location] name [= expr]`.
func parseDeclaration(s string) (Param, bool) {
	s = strings.TrimSpace(s)
	if eq := topLevelAssign(s); eq >= 0 {
		if eq == 0 {
			return Param{}, false
		}
		if s[eq-1] != ' ' && !isIdentPart(s[eq-1]) && s[eq-1] != ']' && s[eq-1] != ')' {
			return Param{}, false
		}
		s = strings.TrimSpace(s[:eq])
	}
	if s == "" || strings.ContainsAny(s, "[(.") && !strings.HasPrefix(s, "mapping") && !strings.Contains(s, "[]") {
		return Param{}, false
	}
	first := wordAt(s, 0)
	if first == "" || nonTypeWords[first] {
		return Param{}, false
	}
	params := parseParams(s)
	if len(params) != 1 || params[0].Name == "" || params[0].Type == "" {
		return Param{}, false
	}
	return params[0], true
}

func (p *statementParser) classify(st *Statement) {
	if st.Assembly {
		st.Kind = StmtOther
		return
	}
	p.meter.charge(len(st.Text))
	st.Calls = p.findCalls(st.Text, st.Span.Start)
	if !controlKeywords[st.Keyword] && st.Keyword != "try" {
		st.Writes = p.findWrites(st.Text, st.Span.Start, st.Decl != nil)
	}
	switch {
	case len(st.Calls) > 0:
		st.Kind = StmtExternalCall
	case len(st.Writes) > 0:
		st.Kind = StmtStateWrite
	case controlKeywords[st.Keyword]:
		st.Kind = StmtControlFlow
	case st.Keyword == "emit":
		st.Kind = StmtEventEmit
	default:
		st.Kind = StmtOther
	}
}

var lowLevel = map[string]CallKind{
	"call":         CallLowLevel,
	"delegatecall": CallDelegate,
	"staticcall":   CallStatic,
	"send":         CallSend,
	"transfer":     CallTransfer,
}

// addressHelpers are OpenZeppelin Address/SafeERC20 helpers that perform
// external calls when used through `using ... for`.
var addressHelpers = map[string]bool{
	"sendValue": true, "functionCall": true, "functionCallWithValue": true,
	"functionDelegateCall": true, "safeTransfer": true, "safeTransferFrom": true,
	"safeApprove": true, "safeIncreaseAllowance": true, "safeDecreaseAllowance": true,
}

func (p *statementParser) findCalls(text string, base int) []Call {
	var out []Call
	for i := 0; i < len(text); i++ {
		if text[i] != '.' {
			continue
		}
		j := skipSpace(text, i+1)
		method := wordAt(text, j)
		if method == "" {
			continue
		}
		k := skipSpace(text, j+len(method))
		withValue := false
		if k < len(text) && text[k] == '{' {
			close := p.match(base+k, base+len(text)) - base
			if close < 0 {
				continue
			}
			withValue = strings.Contains(text[k:min(close, k+maxCallOptions)], "value")
			k = skipSpace(text, close+1)
		}
		// legacy `.call.value(x)(...)`
		if method == "call" && k < len(text) && text[k] == '.' {
			withValue = strings.HasPrefix(text[k:], ".value")
			out = append(out, Call{Kind: CallLowLevel, Receiver: p.receiverBefore(text, base, i), Method: method,
				WithValue: withValue, Span: model.Span{Start: base + i, End: base + k}})
			i = k - 1
			continue
		}
		if k >= len(text) || text[k] != '(' {
			continue
		}
		close, stop := p.match(base+k, base+len(text))-base, 0
		if close < 0 {
			close, stop = len(text), len(text)
		} else {
			stop = close + 1
		}
		args := text[k+1 : close]
		recv := p.receiverBefore(text, base, i)
		call := Call{Receiver: recv, Method: method, Args: args, WithValue: withValue,
			Span: model.Span{Start: base + i - len(recv), End: base + stop}}
		if kind, ok := lowLevel[method]; ok {
			call.Kind = kind
			if kind == CallTransfer && p.topLevelComma(base+k+1, base+close) {
				call.Kind = CallInterface
			}
			if kind == CallTransfer || kind == CallSend {
				call.WithValue = call.Kind != CallInterface
			}
			if call.Kind == CallInterface && !p.externalReceiver(recv) {
				continue
			}
			out = append(out, call)
			continue
		}
		if addressHelpers[method] && recv != "" {
			call.Kind = CallLowLevel
			if strings.HasPrefix(method, "safe") {
				call.Kind = CallInterface
			}
			call.WithValue = method == "sendValue" || method == "functionCallWithValue"
			out = append(out, call)
			continue
		}
		if p.externalReceiver(recv) {
			call.Kind = CallInterface
			out = append(out, call)
		}
	}
	return out
}

// receiverBefore extracts the receiver expression ending just before the
// member-access dot at i: an identifier chain, optionally ending in a
// call or index group such as `IERC20(token)` or `users[id]`. text starts
// at offset base of the unit. Receivers longer than maxReceiverSteps or
// maxReceiverBytes are reported as empty.
func (p *statementParser) receiverBefore(text string, base, i int) string {
	j := i
	for j > 0 && (text[j-1] == ' ' || text[j-1] == '\t' || text[j-1] == '\n') {
		j--
	}
	end := j
	steps := 0
walk:
	for ; j > 0 && steps < maxReceiverSteps; steps++ {
		c := text[j-1]
		switch {
		case c == ')' || c == ']':
			open := p.pairs[base+j-1] - base
			if open < 0 {
				break walk
			}
			j = open
		case isIdentPart(c) || c == '.':
			j--
		default:
			break walk
		}
	}
	p.meter.charge(steps)
	if steps == maxReceiverSteps || end-j > maxReceiverBytes {
		return ""
	}
	return strings.TrimSpace(text[j:end])
}

// topLevelComma reports a ',' in the unit between from and to outside
// nested brackets.
func (p *statementParser) topLevelComma(from, to int) bool {
	for i := from; i < to; i++ {
		switch p.text[i] {
		case ',':
			return true
		case '(', '[', '{':
			if p.pairs[i] < 0 || p.pairs[i] >= to {
				return false
			}
			i = p.pairs[i]
		case ')', ']', '}':
			return false
		}
	}
	return false
}

// externalReceiver decides whether a call receiver is contract-typed.
func (p *statementParser) externalReceiver(recv string) bool {
	if recv == "" {
		return false
	}
	root := wordAt(recv, 0)
	if root == "" {
		return false
	}
	rest := recv[len(root):]
	if strings.HasPrefix(rest, "(") {
		// explicit cast such as IERC20(token)
		return isContractType(root) && !p.types[root]
	}
	if contains(builtinRoots, root) {
		return false
	}
	if strings.Contains(rest, ".") {
		return false
	}
	typ := p.typeOf(root)
	if typ == "" {
		return false
	}
	if strings.HasPrefix(typ, "mapping") {
		typ = mappingValue(typ)
	}
	typ = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(typ), "[]"))
	return isContractType(typ) && !p.types[typ]
}

func (p *statementParser) typeOf(name string) string {
	if prm, ok := p.env[name]; ok {
		return prm.Type
	}
	if v, ok := p.state[name]; ok {
		return v.Type
	}
	return ""
}

func isContractType(t string) bool {
	return t != "" && t[0] >= 'A' && t[0] <= 'Z' && isIdentifier(t)
}

func mappingValue(t string) string {
	k := strings.LastIndex(t, "=>")
	if k < 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(t[k+2:]), ")")
}

func (p *statementParser) findWrites(text string, base int, isDecl bool) []string {
	var out []string
	add := func(root string) {
		if root != "" && p.isStateRoot(root) && !contains(out, root) {
			out = append(out, root)
		}
	}
	base += len(text) - len(strings.TrimLeftFunc(text, unicode.IsSpace))
	trimmed := strings.TrimSpace(text)
	if !isDecl {
		if eq := topLevelAssign(trimmed); eq >= 0 {
			lhs := strings.TrimSpace(trimmed[:eq])
			if strings.HasPrefix(lhs, "(") {
				if close := matchDelim(lhs, 0, len(lhs), '(', ')'); close > 0 {
					for _, part := range splitTopLevel(lhs[1:close], ',') {
						add(wordAt(strings.TrimSpace(part), 0))
					}
				}
			} else {
				add(wordAt(lhs, 0))
			}
		}
	}
	if strings.HasPrefix(trimmed, "delete ") {
		add(wordAt(strings.TrimSpace(trimmed[len("delete "):]), 0))
	}
	for _, op := range []string{"++", "--"} {
		for off := 0; ; {
			k := strings.Index(trimmed[off:], op)
			if k < 0 {
				break
			}
			k += off
			off = k + len(op)
			if recv := p.receiverBefore(trimmed, base, k); recv != "" {
				add(wordAt(recv, 0))
			} else {
				add(wordAt(trimmed, skipSpace(trimmed, k+len(op))))
			}
		}
	}
	for _, m := range []string{".push(", ".pop("} {
		for off := 0; ; {
			k := strings.Index(trimmed[off:], m)
			if k < 0 {
				break
			}
			k += off
			off = k + len(m)
			add(wordAt(p.receiverBefore(trimmed, base, k), 0))
		}
	}
	return out
}

// isStateRoot reports whether writing through root mutates contract storage.
func (p *statementParser) isStateRoot(root string) bool {
	if prm, ok := p.env[root]; ok {
		return prm.Location == "storage"
	}
	_, ok := p.state[root]
	return ok
}

// matchDelim is matchGroup without the header-only early abort. It serves
// short substrings; unit-wide lookups go through the pair table.
func matchDelim(text string, open, end int, o, c byte) int {
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
		}
	}
	return -1
}
