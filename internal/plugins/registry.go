package plugins

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xab-mack/solguard/internal/analysis"
	"github.com/xab-mack/solguard/internal/model"
)

// Scope tells the engine what a rule reads.
type Scope string

const (
	// ScopeStructured rules read parsable code blocks only.
	ScopeStructured Scope = "structured"
	// ScopeText rules read the whole normalized text, unparsable regions included.
	ScopeText Scope = "text"
)

// Predicate inspects a scan context. It must not mutate the context.
type Predicate func(ctx *analysis.Context) ([]model.Match, error)

// Rule is an immutable catalog entry.
type Rule struct {
	ID          string
	Title       string
	Category    model.Category
	Severity    model.Severity
	GasImpact   model.GasImpact
	Scope       Scope
	Confidence  float64
	Description string
	Remediation string
	References  []string
	Detect      Predicate
}

// Catalog maps rule ids to rules and iterates them in id order, so
// registration order never shows up in output.
type Catalog struct {
	byID  map[string]Rule
	order []string
}

func NewCatalog() *Catalog { return &Catalog{byID: map[string]Rule{}} }

// Register adds r. A second rule with the same id is rejected.
func (c *Catalog) Register(r Rule) error {
	if r.ID == "" {
		return fmt.Errorf("register rule: empty id")
	}
	if r.Detect == nil {
		return fmt.Errorf("register rule %s: nil predicate", r.ID)
	}
	if _, dup := c.byID[r.ID]; dup {
		return fmt.Errorf("%w: %s", model.ErrDuplicateRuleID, r.ID)
	}
	if r.Scope == "" {
		r.Scope = ScopeStructured
	}
	if r.GasImpact == "" {
		r.GasImpact = model.GasNone
	}
	if r.Confidence == 0 {
		r.Confidence = 0.5
	}
	c.byID[r.ID] = r
	i := sort.SearchStrings(c.order, r.ID)
	c.order = append(c.order, "")
	copy(c.order[i+1:], c.order[i:])
	c.order[i] = r.ID
	return nil
}

// Get returns the rule registered under id.
func (c *Catalog) Get(id string) (Rule, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// Rules returns every rule sorted by id.
func (c *Catalog) Rules() []Rule {
	out := make([]Rule, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

func (c *Catalog) Len() int { return len(c.order) }

// Clone returns an independent catalog with the same rules, ready to be
// extended during initialization.
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{byID: make(map[string]Rule, len(c.byID)), order: append([]string(nil), c.order...)}
	for id, r := range c.byID {
		out.byID[id] = r
	}
	return out
}

// RegisterBuiltin adds the built-in Solidity rules to c.
func RegisterBuiltin(c *Catalog) error {
	for _, r := range builtinRules() {
		if err := c.Register(r); err != nil {
			return err
		}
	}
	return nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the shared built-in catalog. It is built on first use and
// must be treated as read-only; call Clone before registering more rules.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c := NewCatalog()
		if err := RegisterBuiltin(c); err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

func builtinRules() []Rule {
	return []Rule{
		reentrancyRule,
		flashloanRule,
		delegatecallRule,
		unprotectedStateRule,
		selfdestructRule,
		txOriginRule,
		uncheckedReturnRule,
		uncheckedLowLevelRule,
		arithmeticRule,
		frontRunningRule,
		signatureReplayRule,
		randomnessRule,
		timestampRule,
		zeroAddressRule,
		accessModifierRule,
		amountValidationRule,
		unboundedLoopRule,
		centralizationRule,
		missingPauseRule,
		missingEventRule,
		shadowingRule,
		floatingPragmaRule,
		transferSendRule,
		strictBalanceRule,
		hardcodedAddressRule,
		storageGapRule,
		uninitializedStorageRule,
	}
}
