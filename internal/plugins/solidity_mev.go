package plugins

import (
	"regexp"
	"strings"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/solidity"
)

const (
	idFlashloan    = "SOL-FLASHLOAN-MANIPULATION"
	idFrontRunning = "SOL-FRONT-RUNNING"
)

var flashloanRule = Rule{
	ID:          idFlashloan,
	Title:       "Spot price or balance used for value or voting decisions",
	Category:    model.CategoryMEV,
	Severity:    model.SeverityCritical,
	GasImpact:   model.GasNone,
	Confidence:  0.6,
	Description: "The function derives a price, share amount or voting weight from a value that can be moved within one transaction (AMM reserves, pool balances, current token balance) and then acts on it. A flash loan can skew that value for the duration of the call.",
	Remediation: "Use a manipulation-resistant oracle (TWAP, Chainlink) for prices and snapshot-based voting power (getPastVotes, balanceOfAt) for governance.",
	References:  []string{"SWC-114", "flash-loan-oracle-manipulation"},
	Detect:      detectFlashloan,
}

var frontRunningRule = Rule{
	ID:          idFrontRunning,
	Title:       "Check-then-act pattern susceptible to front-running",
	Category:    model.CategoryMEV,
	Severity:    model.SeverityHigh,
	GasImpact:   model.GasNone,
	Confidence:  0.55,
	Description: "Transaction outcome depends on public, pending information: a swap without slippage or deadline bounds, or a reward released to whoever first submits a value matching a stored hash. Observers can reorder or copy the transaction.",
	Remediation: "Pass a caller-supplied minimum output and deadline to swaps. Use commit-reveal for answer or bid submissions.",
	References:  []string{"SWC-114"},
	Detect:      detectFrontRunning,
}

// spotSources are reads that reflect instantaneous, flash-loanable state.
var spotSources = []string{
	"getReserves(", "slot0(", "balanceOf(address(this))", "getAmountsOut(", "getAmountOut(",
	"address(this).balance", "get_virtual_price(", "getSpotPrice(",
}

var voteSources = []string{"balanceOf(msg.sender)", "getVotes(", "balanceOf(_msgSender())"}

var voteNames = []string{"vote", "propos", "delegate", "govern", "quorum"}

func detectFlashloan(ctx *analysis.Context) ([]model.Match, error) {
	var out []model.Match
	for _, b := range ctx.Functions() {
		if b.ReadOnly() {
			continue
		}
		seeds, voting := spotSources, false
		lname := strings.ToLower(b.Name)
		for _, v := range voteNames {
			if strings.Contains(lname, v) {
				seeds, voting = append(append([]string(nil), spotSources...), voteSources...), true
				break
			}
		}
		// a spot value matters once it is scaled into a price or share amount;
		// voting weight matters as read
		computed := func(text string) bool { return voting || strings.ContainsAny(text, "*/") }
		var derived []string
		src := -1
		for i := range b.Statements {
			st := &b.Statements[i]
			if !containsAny(st.Text, seeds) && !analysis.MentionsAny(st.Text, derived) {
				continue
			}
			if st.Decl != nil {
				derived = append(derived, st.Decl.Name)
				if src < 0 && computed(st.Text) {
					src = i
				}
				continue
			}
			if src < 0 && !computed(st.Text) {
				continue
			}
			if len(st.Writes) == 0 && !movesFunds(st) && !hasCall(st, solidity.CallInterface) {
				continue
			}
			at := i
			if src >= 0 {
				at = src
			}
			out = append(out, analysis.Match(idFlashloan, &b.Statements[at], b.Name+"() acts on a same-transaction spot value"))
			break
		}
	}
	return out, nil
}

var reSwap = regexp.MustCompile(`(?i)\.\s*(swap\w*|exactInput\w*|exactOutput\w*)\s*[({]`)

func detectFrontRunning(ctx *analysis.Context) ([]model.Match, error) {
	var out []model.Match
	for _, b := range ctx.Functions() {
		if b.ReadOnly() {
			continue
		}
		params := paramNames(b)
		hashCheck := -1
		for i := range b.Statements {
			st := &b.Statements[i]
			if reSwap.MatchString(st.Text) && unboundedSwap(st) {
				out = append(out, analysis.Match(idFrontRunning, st, "swap without slippage or deadline bound"))
				continue
			}
			if analysis.IsGuard(st) && strings.Contains(st.Text, "keccak256(") && analysis.MentionsAny(st.Text, params) {
				hashCheck = i
				continue
			}
			if hashCheck >= 0 && movesFunds(st) {
				out = append(out, analysis.Match(idFrontRunning, &b.Statements[hashCheck],
					"reward released on first matching submission"))
				hashCheck = -1
			}
		}
	}
	return out, nil
}

// unboundedSwap reports swaps passing a literal zero minimum or a deadline
// of the current block.
func unboundedSwap(st *solidity.Statement) bool {
	for _, c := range st.Calls {
		if !reSwap.MatchString("." + c.Method + "(") {
			continue
		}
		for _, a := range strings.Split(c.Args, ",") {
			a = strings.TrimSpace(a)
			if a == "0" || a == "block.timestamp" || strings.HasSuffix(a, ": 0") {
				return true
			}
		}
	}
	return false
}
