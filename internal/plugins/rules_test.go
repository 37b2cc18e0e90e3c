package plugins

import (
	"strings"
	"testing"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/solidity"
)

func contextFor(t *testing.T, src string) *analysis.Context {
	t.Helper()
	unit, err := solidity.Normalize(src, 0)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return analysis.NewContext(unit)
}

func run(t *testing.T, r Rule, src string) ([]model.Match, *analysis.Context) {
	t.Helper()
	ctx := contextFor(t, src)
	ms, err := r.Detect(ctx)
	if err != nil {
		t.Fatalf("%s: %v", r.ID, err)
	}
	for _, m := range ms {
		if m.RuleID != r.ID {
			t.Fatalf("%s returned match for %s", r.ID, m.RuleID)
		}
		if m.Span.Start < 0 || m.Span.End > len(src) || m.Span.Start > m.Span.End {
			t.Fatalf("%s: span %+v out of range", r.ID, m.Span)
		}
	}
	return ms, ctx
}

const bankSrc = `pragma solidity ^0.8.0;
contract Bank {
    mapping(address => uint256) public balances;
    function withdraw(uint256 amount) public {
        require(balances[msg.sender] >= amount);
        (bool ok, ) = msg.sender.call{value: amount}("");
        require(ok);
        balances[msg.sender] -= amount;
    }
}
`

func TestReentrancyReportsCallLine(t *testing.T) {
	ms, ctx := run(t, reentrancyRule, bankSrc)
	if len(ms) != 1 {
		t.Fatalf("want 1 match, got %d", len(ms))
	}
	if line := ctx.Unit.Position(ms[0].Span.Start).Line; line != 6 {
		t.Fatalf("reported line %d, want 6", line)
	}
	if !strings.Contains(ms[0].Evidence, "balances") {
		t.Fatalf("evidence %q", ms[0].Evidence)
	}
	if reentrancyRule.Severity != model.SeverityCritical || reentrancyRule.Category != model.CategoryReentrancy {
		t.Fatal("reentrancy rule metadata changed")
	}
}

const ownerSrc = `contract Own {
    address public owner;
    function setOwner(address o) public { owner = o; }
}
`

const txOriginSrc = `contract Wallet {
    address owner;
    mapping(address => bool) authorized;
    function authorize(address to) public {
        require(tx.origin == owner);
        authorized[to] = true;
    }
}
`

func TestTxOriginAuthorization(t *testing.T) {
	ms, _ := run(t, txOriginRule, txOriginSrc)
	if len(ms) != 1 {
		t.Fatalf("want 1 match, got %d", len(ms))
	}
	if ms[0].Evidence != "tx-origin: tx.origin == owner" {
		t.Fatalf("evidence %q", ms[0].Evidence)
	}
	if txOriginRule.Severity != model.SeverityHigh || txOriginRule.Category != model.CategoryAccessControl {
		t.Fatal("tx.origin rule metadata changed")
	}
}

func TestHardcodedAddressChecksum(t *testing.T) {
	good := `contract R { address constant ROUTER = 0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D; }`
	ms, _ := run(t, hardcodedAddressRule, good)
	if len(ms) != 1 || strings.Contains(ms[0].Evidence, "EIP-55") {
		t.Fatalf("checksummed literal: %+v", ms)
	}
	bad := `contract R { address constant ROUTER = 0x7A250d5630B4cF539739dF2C5dAcb4c659F2488D; }`
	ms, _ = run(t, hardcodedAddressRule, bad)
	if len(ms) != 1 || !strings.Contains(ms[0].Evidence, "fails EIP-55 checksum") {
		t.Fatalf("bad checksum: %+v", ms)
	}
}

func TestRuleCases(t *testing.T) {
	cases := []struct {
		name string
		rule Rule
		src  string
		want int
	}{
		{"reentrancy guarded", reentrancyRule, strings.Replace(bankSrc, "public {", "public nonReentrant {", 1), 0},
		{"reentrancy checks-effects-interactions", reentrancyRule, `contract Bank {
    mapping(address => uint256) balances;
    function withdraw(uint256 amount) public {
        balances[msg.sender] -= amount;
        (bool ok, ) = msg.sender.call{value: amount}("");
        require(ok);
    }
}`, 0},

		{"unprotected owner", unprotectedStateRule, ownerSrc, 1},
		{"protected owner", unprotectedStateRule, `contract Own {
    address public owner;
    function setOwner(address o) public { require(msg.sender == owner); owner = o; }
}`, 0},

		{"custom modifier guard", unprotectedStateRule, `contract Base {
    address boss;
    modifier isBoss() { require(msg.sender == boss, "nope"); _; }
}
contract Own is Base {
    address public owner;
    function setOwner(address o) public isBoss { owner = o; }
}`, 0},

		{"tx.origin eoa check", txOriginRule, `contract W { function f() public { require(tx.origin == msg.sender); } }`, 0},

		{"randomness direct", randomnessRule, `contract Dice {
    function roll() public view returns (uint256) {
        uint256 r = uint256(keccak256(abi.encodePacked(block.timestamp, block.prevrandao))) % 6;
        return r;
    }
}`, 1},
		{"randomness through local", randomnessRule, `contract Lottery {
    address[] players;
    address winner;
    function pick() public {
        uint256 seed = block.number;
        winner = players[seed % players.length];
    }
}`, 1},
		{"randomness from nonce", randomnessRule, `contract N {
    uint256 nonce;
    function id() public returns (bytes32) { return keccak256(abi.encodePacked(nonce, msg.sender)); }
}`, 0},

		{"delegatecall caller target", delegatecallRule, `contract Proxy {
    function exec(address target, bytes memory data) public {
        target.delegatecall(data);
    }
}`, 1},
		{"delegatecall open implementation", delegatecallRule, `contract P {
    address implementation;
    function setImpl(address i) public { implementation = i; }
    fallback() external payable {
        (bool ok, ) = implementation.delegatecall(msg.data);
        require(ok);
    }
}`, 1},
		{"delegatecall guarded implementation", delegatecallRule, `contract P {
    address implementation;
    address admin;
    function setImpl(address i) public { require(msg.sender == admin); implementation = i; }
    fallback() external payable {
        (bool ok, ) = implementation.delegatecall(msg.data);
        require(ok);
    }
}`, 0},

		{"selfdestruct open", selfdestructRule, `contract K { function kill() public { selfdestruct(payable(msg.sender)); } }`, 1},
		{"selfdestruct guarded", selfdestructRule, `contract K { function kill() public onlyOwner { selfdestruct(payable(msg.sender)); } }`, 0},

		{"erc20 transfer ignored", uncheckedReturnRule, `contract Pay {
    IERC20 token;
    function pay(address to, uint256 amount) external {
        token.transfer(to, amount);
    }
}`, 1},
		{"erc20 transfer required", uncheckedReturnRule, `contract Pay {
    IERC20 token;
    function pay(address to, uint256 amount) external {
        require(token.transfer(to, amount));
    }
}`, 0},

		{"send discarded", uncheckedLowLevelRule, `contract S { function f(address to, uint256 amount) public { payable(to).send(amount); } }`, 1},
		{"call success unused", uncheckedLowLevelRule, `contract S {
    function f(address to) public {
        (bool ok, ) = to.call{value: 1}("");
    }
}`, 1},
		{"call success checked", uncheckedLowLevelRule, `contract S {
    function f(address to) public {
        (bool ok, ) = to.call{value: 1}("");
        require(ok, "failed");
    }
}`, 0},

		{"legacy arithmetic", arithmeticRule, `pragma solidity ^0.6.0;
contract T {
    mapping(address => uint) bal;
    function add(uint v) public { bal[msg.sender] += v; }
}`, 1},
		{"legacy arithmetic with SafeMath", arithmeticRule, `pragma solidity ^0.6.0;
contract T {
    using SafeMath for uint;
    mapping(address => uint) bal;
    function add(uint v) public { bal[msg.sender] = bal[msg.sender].add(v); }
}`, 0},
		{"unchecked arithmetic", arithmeticRule, `pragma solidity ^0.8.0;
contract U {
    uint256 total;
    function sub(uint256 v) public { unchecked { total -= v; } }
}`, 1},
		{"downcast into state", arithmeticRule, `pragma solidity ^0.8.0;
contract D {
    uint128 small;
    function f(uint256 v) public { small = uint128(v); }
}`, 1},
		{"checked arithmetic", arithmeticRule, `pragma solidity ^0.8.0;
contract U {
    uint256 total;
    function sub(uint256 v) public { total -= v; }
}`, 0},

		{"swap without slippage", frontRunningRule, `contract S {
    IRouter router;
    function swapAll(uint256 amt, address[] calldata path) external {
        router.swapExactTokensForTokens(amt, 0, path, msg.sender, block.timestamp);
    }
}`, 1},
		{"swap with bounds", frontRunningRule, `contract S {
    IRouter router;
    function swapAll(uint256 amt, uint256 minOut, address[] calldata path, uint256 deadline) external {
        router.swapExactTokensForTokens(amt, minOut, path, msg.sender, deadline);
    }
}`, 0},
		{"hash puzzle", frontRunningRule, `contract Puzzle {
    bytes32 answerHash;
    function solve(string memory answer) public {
        require(answerHash == keccak256(abi.encodePacked(answer)));
        payable(msg.sender).transfer(1 ether);
    }
}`, 1},

		{"flashloan spot price", flashloanRule, `contract Lend {
    IERC20 token;
    IPool pool;
    mapping(address => uint256) debt;
    function borrow(uint256 amount) external {
        uint256 price = token.balanceOf(address(this)) * 1e18 / pool.totalSupply();
        debt[msg.sender] += amount * price;
    }
}`, 1},
		{"flashloan balance sweep", flashloanRule, `contract T {
    address owner;
    function drain(address payable to) external {
        require(msg.sender == owner);
        to.transfer(address(this).balance);
    }
}`, 0},

		{"signature replay", signatureReplayRule, `contract Sig {
    address signer;
    function claim(uint256 amount, uint8 v, bytes32 r, bytes32 s) public {
        bytes32 h = keccak256(abi.encodePacked(msg.sender, amount));
        require(ecrecover(h, v, r, s) == signer);
        payable(msg.sender).transfer(amount);
    }
}`, 1},
		{"signature with nonce and chain", signatureReplayRule, `contract Sig {
    address signer;
    mapping(address => uint256) nonces;
    function claim(uint256 amount, uint8 v, bytes32 r, bytes32 s) public {
        bytes32 h = keccak256(abi.encodePacked(msg.sender, amount, nonces[msg.sender]++, block.chainid));
        require(ecrecover(h, v, r, s) == signer);
        payable(msg.sender).transfer(amount);
    }
}`, 0},

		{"timestamp guard", timestampRule, `contract Sale {
    uint256 start;
    bool opened;
    function open() public { require(block.timestamp >= start); opened = true; }
}`, 1},
		{"no timestamp", timestampRule, `contract Sale {
    address owner;
    function open() public { require(msg.sender == owner); }
}`, 0},

		{"zero address", zeroAddressRule, `contract Z {
    address owner;
    function setOwner(address o) public onlyOwner { owner = o; }
}`, 1},
		{"zero address checked", zeroAddressRule, `contract Z {
    address owner;
    function setOwner(address o) public onlyOwner { require(o != address(0)); owner = o; }
}`, 0},

		{"missing access modifier", accessModifierRule, `contract Fee {
    address owner;
    uint256 limit;
    uint256 supply;
    modifier onlyOwner() { require(msg.sender == owner); _; }
    function setLimit(uint256 l) public onlyOwner { limit = l; }
    function bump() public { limit = 5; }
    function mintTo(address to) public { supply += 1; }
}`, 2},
		{"open user function", accessModifierRule, `contract Fee {
    uint256 supply;
    function deposit() public { supply += 1; }
}`, 0},

		{"amount unvalidated", amountValidationRule, `contract Vault {
    mapping(address => uint256) balances;
    function deposit(uint256 amount) public { balances[msg.sender] += amount; }
}`, 1},
		{"amount validated", amountValidationRule, `contract Vault {
    mapping(address => uint256) balances;
    function deposit(uint256 amount) public { require(amount > 0); balances[msg.sender] += amount; }
}`, 0},
		{"payable ignores value", amountValidationRule, `contract Shop {
    bool sold;
    function buy() public payable { sold = true; }
}`, 1},

		{"unbounded loop", unboundedLoopRule, `contract Pay {
    address[] public payees;
    function payAll() public {
        for (uint256 i = 0; i < payees.length; i++) {
            payable(payees[i]).transfer(1);
        }
    }
}`, 1},
		{"loop over argument", unboundedLoopRule, `contract Pay {
    uint256 total;
    function sum(uint256[] memory list) public {
        for (uint256 i = 0; i < list.length; i++) {
            total += list[i];
        }
    }
}`, 0},

		{"owner drains treasury", centralizationRule, `contract Treasury {
    address owner;
    modifier onlyOwner() { require(msg.sender == owner); _; }
    function drain(address payable to) external onlyOwner { to.transfer(address(this).balance); }
}`, 1},
		{"owner behind two-step ownership", centralizationRule, `contract Treasury is Ownable2Step {
    function drain(address payable to) external onlyOwner { to.transfer(address(this).balance); }
}`, 0},

		{"withdraw without pause", missingPauseRule, `contract W { function withdraw() public { payable(msg.sender).transfer(1); } }`, 1},
		{"withdraw pausable", missingPauseRule, `contract W { function withdraw() public whenNotPaused { payable(msg.sender).transfer(1); } }`, 0},

		{"silent config change", missingEventRule, `contract Cfg {
    uint256 rate;
    function setRate(uint256 r) public onlyOwner { rate = r; }
}`, 1},
		{"config change emitted", missingEventRule, `contract Cfg {
    uint256 rate;
    function setRate(uint256 r) public onlyOwner { rate = r; emit RateSet(r); }
}`, 0},

		{"shadowing", shadowingRule, `contract Sh {
    address owner;
    function f() public { address owner = msg.sender; }
    function g(uint256 owner) public { }
}`, 2},
		{"no shadowing", shadowingRule, `contract Sh {
    address owner;
    function f() public { address who = msg.sender; }
}`, 0},

		{"floating pragma", floatingPragmaRule, "pragma solidity ^0.8.0;\ncontract A {}", 1},
		{"pinned pragma", floatingPragmaRule, "pragma solidity 0.8.24;\ncontract A {}", 0},

		{"transfer stipend", transferSendRule, `contract W { function withdraw() public { payable(msg.sender).transfer(1); } }`, 1},
		{"call with value", transferSendRule, `contract W {
    function withdraw() public {
        (bool ok, ) = msg.sender.call{value: 1}("");
        require(ok);
    }
}`, 0},

		{"strict balance", strictBalanceRule, `contract G { function done() public view returns (bool) { return address(this).balance == 0; } }`, 1},
		{"bounded balance", strictBalanceRule, `contract G { function done() public view returns (bool) { return address(this).balance >= 1 ether; } }`, 0},

		{"upgradeable without gap", storageGapRule, `contract VaultV1 is Initializable, OwnableUpgradeable {
    uint256 public total;
    function initialize() public initializer { total = 0; }
}`, 1},
		{"upgradeable with gap", storageGapRule, `contract VaultV1 is Initializable, OwnableUpgradeable {
    uint256 public total;
    uint256[49] private __gap;
}`, 0},
		{"uups entry point", storageGapRule, `contract Impl {
    address owner;
    function _authorizeUpgrade(address) internal { require(msg.sender == owner); }
}`, 1},
		{"plain contract", storageGapRule, `contract Plain { uint256 total; }`, 0},

		{"legacy storage pointer", uninitializedStorageRule, `pragma solidity ^0.4.24;
contract Registry {
    struct Rec { address owner; uint256 id; }
    address admin;
    function add(uint256 id) public {
        Rec r;
        r.owner = msg.sender;
        r.id = id;
    }
}`, 1},
		{"legacy memory local", uninitializedStorageRule, `pragma solidity ^0.4.24;
contract Registry {
    struct Rec { address owner; uint256 id; }
    function add(uint256 id) public {
        Rec memory r;
        uint256[] storage list = ids;
        r.id = id;
    }
}`, 0},
		{"modern compiler", uninitializedStorageRule, `pragma solidity ^0.8.0;
contract Registry {
    struct Rec { address owner; }
    function add() public { Rec r; r.owner = msg.sender; }
}`, 0},
		{"0.6 compiler", uninitializedStorageRule, `pragma solidity ^0.6.0;
contract Registry {
    struct Rec { address owner; }
    function add() public { Rec r; r.owner = msg.sender; }
}`, 0},

		{"zero address literal", hardcodedAddressRule, `contract R { address constant NONE = 0x0000000000000000000000000000000000000000; }`, 0},
		{"bytes32 literal", hardcodedAddressRule, `contract R { bytes32 constant H = 0x7a250d5630b4cf539739df2c5dacb4c659f2488d7a250d5630b4cf539739df2c; }`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ms, _ := run(t, tc.rule, tc.src)
			if len(ms) != tc.want {
				t.Fatalf("%s: want %d matches, got %d: %+v", tc.rule.ID, tc.want, len(ms), ms)
			}
		})
	}
}

func TestCompilerVersionGates(t *testing.T) {
	cases := []struct {
		pragma       string
		pre05, pre08 bool
	}{
		{"pragma solidity ^0.4.24;", true, true},
		{"pragma solidity ^0.6.12;", false, true},
		{"pragma solidity 0.8.24;", false, false},
		{"", false, false},
	}
	for _, tc := range cases {
		ctx := contextFor(t, tc.pragma+"\ncontract A {}")
		if got := preV05Compiler(ctx.Program); got != tc.pre05 {
			t.Errorf("%q: preV05Compiler = %v", tc.pragma, got)
		}
		if got := legacyCompiler(ctx.Program); got != tc.pre08 {
			t.Errorf("%q: legacyCompiler = %v", tc.pragma, got)
		}
	}
}

func TestRulesSurviveUnparsableInput(t *testing.T) {
	srcs := []string{
		"",
		"contract",
		"contract A { function f( { ",
		"function f() public { if (x) { while (true) { ",
		strings.Repeat("{", 300),
		"contract A { modifier m { _; } function g() m { x.call(\"\"); } }",
	}
	for _, src := range srcs {
		ctx := contextFor(t, src)
		for _, r := range Default().Rules() {
			if _, err := r.Detect(ctx); err != nil {
				t.Errorf("%s on %q: %v", r.ID, src, err)
			}
		}
	}
}
