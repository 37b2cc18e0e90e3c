package solidity

import (
	"strings"
	"testing"
	"time"
)

const vaultSource = `pragma solidity ^0.8.0;

contract Vault is Base {
    struct Info { uint256 amount; }
    mapping(address => uint256) public balances;
    mapping(uint256 => Info) infos;
    address public owner;
    IERC20 token;
    uint256 total;

    modifier onlyOwner() {
        require(msg.sender == owner, "not owner");
        _;
    }

    function withdraw(uint256 amount) external nonReentrant {
        require(balances[msg.sender] >= amount);
        (bool ok, ) = msg.sender.call{value: amount}("");
        require(ok);
        balances[msg.sender] -= amount;
        emit Withdrawn(msg.sender, amount);
    }

    function setOwner(address o) public onlyOwner { owner = o; }

    function pay(address to) external {
        token.transfer(to, 1);
        for (uint i = 0; i < 10; i++) { total += i; }
    }

    function local(uint256 id) public {
        uint256 owner = 1;
        owner = 2;
        Info storage info = infos[id];
        info.amount = 0;
        IERC20(to()).approve(address(this), 1);
        payable(msg.sender).transfer(1);
    }
}
`

func structure(t *testing.T, src string) *Program {
	t.Helper()
	u, err := Normalize(src, 0)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return Structure(u)
}

func kinds(b *CodeBlock) []StmtKind {
	out := make([]StmtKind, len(b.Statements))
	for i, st := range b.Statements {
		out[i] = st.Kind
	}
	return out
}

func findBlock(t *testing.T, p *Program, name string) *CodeBlock {
	t.Helper()
	for i := range p.Blocks {
		if p.Blocks[i].Name == name {
			return &p.Blocks[i]
		}
	}
	t.Fatalf("block %q not found", name)
	return nil
}

func equalKinds(a, b []StmtKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStructureContractsAndState(t *testing.T) {
	p := structure(t, vaultSource)
	if len(p.Pragmas) != 1 || !p.Pragmas[0].Floating || p.Pragmas[0].Minor != 8 {
		t.Fatalf("pragma = %+v", p.Pragmas)
	}
	if len(p.Contracts) != 1 {
		t.Fatalf("contracts = %d", len(p.Contracts))
	}
	c := p.Contracts[0]
	if c.Name != "Vault" || c.Kind != "contract" || len(c.Bases) != 1 || c.Bases[0] != "Base" {
		t.Fatalf("contract = %+v", c)
	}
	if c.Span.End != strings.LastIndex(vaultSource, "}")+1 {
		t.Fatalf("contract end = %d", c.Span.End)
	}
	names := []string{}
	for _, v := range c.StateVars {
		names = append(names, v.Name)
	}
	if strings.Join(names, ",") != "balances,infos,owner,token,total" {
		t.Fatalf("state vars = %v", names)
	}
	if !c.StateVars[0].Mapping || c.StateVars[3].Type != "IERC20" {
		t.Fatalf("state var details = %+v", c.StateVars)
	}
	if len(c.Structs) != 1 || c.Structs[0] != "Info" {
		t.Fatalf("structs = %v", c.Structs)
	}
	want := []string{"onlyOwner", "withdraw", "setOwner", "pay", "local"}
	if len(p.Blocks) != len(want) {
		t.Fatalf("blocks = %d, want %d", len(p.Blocks), len(want))
	}
	for i, name := range want {
		if p.Blocks[i].Name != name || p.Blocks[i].Contract != "Vault" {
			t.Errorf("block %d = %s/%s", i, p.Blocks[i].Contract, p.Blocks[i].Name)
		}
	}
}

func TestStructureHeaders(t *testing.T) {
	p := structure(t, vaultSource)
	w := findBlock(t, p, "withdraw")
	if w.Kind != KindFunction || w.Visibility != "external" || !w.HasModifier("nonreentrant") {
		t.Fatalf("withdraw header = %+v", w)
	}
	if len(w.Params) != 1 || w.Params[0].Name != "amount" || w.Params[0].Type != "uint256" {
		t.Fatalf("params = %+v", w.Params)
	}
	if !strings.HasPrefix(p.Unit.Slice(w.Body), "{") || !strings.HasSuffix(p.Unit.Slice(w.Body), "}") {
		t.Fatalf("body not brace delimited: %q", p.Unit.Slice(w.Body))
	}
	s := findBlock(t, p, "setOwner")
	if len(s.Modifiers) != 1 || s.Modifiers[0] != "onlyOwner" || s.Visibility != "public" {
		t.Fatalf("setOwner header = %+v", s)
	}
	m := findBlock(t, p, "onlyOwner")
	if m.Kind != KindModifier || m.Callable() {
		t.Fatalf("modifier = %+v", m)
	}
}

func TestStatementClassification(t *testing.T) {
	p := structure(t, vaultSource)

	w := findBlock(t, p, "withdraw")
	want := []StmtKind{StmtOther, StmtExternalCall, StmtOther, StmtStateWrite, StmtEventEmit}
	if got := kinds(w); !equalKinds(got, want) {
		t.Fatalf("withdraw kinds = %v, want %v", got, want)
	}
	call := w.Statements[1].Calls[0]
	if call.Kind != CallLowLevel || !call.WithValue || call.Receiver != "msg.sender" {
		t.Fatalf("call = %+v", call)
	}
	if w.Statements[3].Writes[0] != "balances" {
		t.Fatalf("writes = %v", w.Statements[3].Writes)
	}

	s := findBlock(t, p, "setOwner")
	if got := kinds(s); !equalKinds(got, []StmtKind{StmtStateWrite}) {
		t.Fatalf("setOwner kinds = %v", got)
	}

	pay := findBlock(t, p, "pay")
	want = []StmtKind{StmtExternalCall, StmtControlFlow, StmtStateWrite}
	if got := kinds(pay); !equalKinds(got, want) {
		t.Fatalf("pay kinds = %v, want %v", got, want)
	}
	if pay.Statements[0].Calls[0].Kind != CallInterface {
		t.Fatalf("token.transfer(to, 1) kind = %s", pay.Statements[0].Calls[0].Kind)
	}
	if body := pay.Statements[2]; body.LoopDepth != 1 || body.Depth != 1 {
		t.Fatalf("loop body depth = %d loop = %d", body.Depth, body.LoopDepth)
	}
}

func TestLocalsAndStoragePointers(t *testing.T) {
	p := structure(t, vaultSource)
	b := findBlock(t, p, "local")
	want := []StmtKind{StmtOther, StmtOther, StmtOther, StmtStateWrite, StmtExternalCall, StmtExternalCall}
	if got := kinds(b); !equalKinds(got, want) {
		t.Fatalf("local kinds = %v, want %v", got, want)
	}
	if b.Statements[0].Decl == nil || b.Statements[0].Decl.Name != "owner" {
		t.Fatalf("shadowing declaration not recorded: %+v", b.Statements[0])
	}
	if b.Statements[3].Writes[0] != "info" {
		t.Fatalf("storage pointer write = %v", b.Statements[3].Writes)
	}
	if c := b.Statements[4].Calls[0]; c.Kind != CallInterface || c.Method != "approve" {
		t.Fatalf("cast call = %+v", c)
	}
	if c := b.Statements[5].Calls[0]; c.Kind != CallTransfer || !c.WithValue {
		t.Fatalf("transfer call = %+v", c)
	}
}

func TestControlFlowSplitting(t *testing.T) {
	src := `contract C {
    uint x;
    function f(uint a) public {
        if (a > 1) x = 1; else { x = 2; }
        while (a > 0) a--;
        do { x++; } while (x < 5);
        unchecked { x += a; }
        assembly { sstore(0, 1) }
        try this.g() { x = 3; } catch { x = 4; }
    }
}`
	p := structure(t, src)
	b := findBlock(t, p, "f")
	var kw []string
	for _, st := range b.Statements {
		kw = append(kw, st.Keyword)
	}
	got := strings.Join(kw, ",")
	if got != "if,x,else,x,while,a,do,x,while,x,assembly,try,x,catch,x" {
		t.Fatalf("keywords = %s", got)
	}
	for _, st := range b.Statements {
		if strings.HasPrefix(st.Text, "x +=") && !st.Unchecked {
			t.Fatal("unchecked flag missing")
		}
		if st.Keyword == "assembly" && (!st.Assembly || st.Kind != StmtOther) {
			t.Fatalf("assembly statement = %+v", st)
		}
		if st.Keyword == "a" && st.LoopDepth != 1 {
			t.Fatalf("while body loop depth = %d", st.LoopDepth)
		}
	}
}

func TestUnparsableBlockIsolated(t *testing.T) {
	src := `contract A {
    uint y;
    function broken() public {
        if (y > 0) {
    function ok() public { y = 1; }
}`
	p := structure(t, src)
	if len(p.Blocks) != 2 {
		t.Fatalf("blocks = %d", len(p.Blocks))
	}
	if !p.Blocks[0].Unparsable || p.Blocks[0].Name != "broken" {
		t.Fatalf("first block = %+v", p.Blocks[0])
	}
	ok := p.Blocks[1]
	if ok.Unparsable || ok.Name != "ok" || len(ok.Statements) != 1 || ok.Statements[0].Kind != StmtStateWrite {
		t.Fatalf("second block = %+v", ok)
	}
	un := p.UnparsableBlocks()
	if len(un) != 1 || un[0].Name != "broken" || un[0].Line != 3 {
		t.Fatalf("unparsable = %+v", un)
	}
	if len(p.Parsable()) != 1 {
		t.Fatalf("parsable = %d", len(p.Parsable()))
	}
}

func TestInheritedStateVars(t *testing.T) {
	src := `contract Base { address owner; }
contract Child is Base {
    function take(address a) public { owner = a; }
}`
	p := structure(t, src)
	if _, ok := p.StateVar("Child", "owner"); !ok {
		t.Fatal("inherited state var not visible")
	}
	b := findBlock(t, p, "take")
	if b.Statements[0].Kind != StmtStateWrite {
		t.Fatalf("inherited write kind = %s", b.Statements[0].Kind)
	}
}

func TestDeepNestingBounded(t *testing.T) {
	src := "contract D { function f() public { " + strings.Repeat("{", 400) + "x;" + strings.Repeat("}", 400) + " } }"
	p := structure(t, src)
	b := findBlock(t, p, "f")
	if b.Unparsable {
		t.Fatal("balanced deep nesting marked unparsable")
	}
	for _, st := range b.Statements {
		if st.Depth > maxNesting+1 {
			t.Fatalf("depth %d exceeds bound", st.Depth)
		}
	}
}

func TestRepeatedCallsStructureInLinearWork(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"unclosed calls", "x = " + strings.Repeat("a.b(", 45000) + ";"},
		{"nested calls", strings.Repeat("x.b(", 39000) + strings.Repeat(")", 39000) + ";"},
		{"call chain", "x = " + strings.Repeat("a.f().", 30000) + "b;"},
		{"headerless try", strings.Repeat("try x; ", 25000)},
		{"headerless assembly", strings.Repeat("assembly; ", 18000)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := "contract C { function f() public { " + tc.body + " } }"
			u, err := Normalize(src, 0)
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			start := time.Now()
			p := Structure(u)
			elapsed := time.Since(start)
			if p.Truncated || len(p.Blocks) != 1 || p.Blocks[0].Unparsable {
				t.Fatalf("blocks %d truncated %v", len(p.Blocks), p.Truncated)
			}
			if p.Work > len(src)*maxReceiverSteps/WorkUnitBytes {
				t.Fatalf("work %d for %d bytes", p.Work, len(src))
			}
			if elapsed > 2*time.Second {
				t.Fatalf("structuring took %v", elapsed)
			}
		})
	}
}

func TestFunctionKeywordRunWithoutParens(t *testing.T) {
	src := "contract C { " + strings.Repeat("function f( ", 15000) + "}"
	start := time.Now()
	p := structure(t, src)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("structuring took %v", elapsed)
	}
	if len(p.Blocks) != 0 {
		t.Fatalf("blocks %d", len(p.Blocks))
	}
}

func TestStructureWithinTruncates(t *testing.T) {
	u, err := Normalize(vaultSource, 0)
	if err != nil {
		t.Fatal(err)
	}
	p := StructureWithin(u, 1)
	if !p.Truncated {
		t.Fatal("work limit not applied")
	}
	for _, b := range p.Blocks {
		if !b.Unparsable || len(b.Statements) != 0 {
			t.Fatalf("block %s kept %d statements", b.Name, len(b.Statements))
		}
	}
	if got := len(p.UnparsableBlocks()); got != len(p.Blocks) {
		t.Fatalf("unparsable %d of %d", got, len(p.Blocks))
	}

	full := Structure(u)
	if full.Truncated || full.Work == 0 {
		t.Fatalf("unlimited structure: truncated %v work %d", full.Truncated, full.Work)
	}
	if again := StructureWithin(u, full.Work+1); again.Truncated {
		t.Fatal("limit above the measured work truncated")
	}
}

func TestReceiverWalkIsCapped(t *testing.T) {
	chain := strings.Repeat("a", maxReceiverSteps+10)
	src := "contract C { IERC20 token; function f() public { token.approve(x, 1); " + chain + ".approve(x, 1); } }"
	b := findBlock(t, structure(t, src), "f")
	if len(b.Statements) != 2 {
		t.Fatalf("statements %d", len(b.Statements))
	}
	if calls := b.Statements[0].Calls; len(calls) != 1 || calls[0].Receiver != "token" {
		t.Fatalf("calls %+v", calls)
	}
	if calls := b.Statements[1].Calls; len(calls) != 0 {
		t.Fatalf("over-long receiver resolved: %+v", calls)
	}
}

func FuzzStructure(f *testing.F) {
	f.Add(vaultSource)
	f.Add("contract { function ( { } ")
	f.Add("function f() { try x.y() { } catch Error(string memory r) { } do x; while(")
	f.Fuzz(func(t *testing.T, raw string) {
		u, err := Normalize(raw, 0)
		if err != nil {
			return
		}
		p := Structure(u)
		for _, b := range p.Blocks {
			if b.Start > b.End || b.End > len(u.Text) {
				t.Fatalf("block %s out of range: %d..%d", b.Name, b.Start, b.End)
			}
			for _, st := range b.Statements {
				if st.Span.Start > st.Span.End || st.Span.End > len(u.Text) {
					t.Fatalf("statement out of range: %+v", st.Span)
				}
			}
		}
	})
}
