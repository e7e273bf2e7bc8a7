package biscuit

import (
	"errors"
	"fmt"

	"github.com/biscuit-core/biscuit-go/datalog"
	"github.com/biscuit-core/biscuit-go/sig"
)

// ErrDuplicateFact is returned when the same fact is added twice to the
// same block.
var ErrDuplicateFact = errors.New("biscuit: fact already exists")

// Block is one signed link of a biscuit's block chain: the facts, rules,
// and checks it contributes, its own symbol/key extension tables, and
// (for a third-party block) the external signer that authored it.
type Block struct {
	index          uint32
	symbols        *datalog.SymbolTable
	keys           *datalog.PublicKeyTable
	facts          []datalog.Fact
	rules          []datalog.Rule
	checks         []datalog.Check
	context        string
	externalSigner *sig.PublicKey
}

// Bytes returns the deterministic byte encoding of the block's content that
// the chain signature in sig.SignBlock/sig.VerifyBlock actually covers. It
// is internal to this module, not an interchange format.
func (b *Block) Bytes() []byte {
	return datalog.EncodeBlock(b.context, b.facts, b.rules, b.checks)
}

// symbolIDs returns the symbol-table ids the block's facts, rules, and
// checks reference through predicates (predicate names and variables in
// predicate terms), so a foreign block can be checked against an
// accumulated symbol table before it is trusted (FromParts). Variables that
// appear only inside expressions are not collected.
func (b *Block) symbolIDs() []uint64 {
	var ids []uint64
	addPredicate := func(p datalog.Predicate) {
		ids = append(ids, p.Name)
		for _, t := range p.Terms {
			if v, ok := t.(datalog.Variable); ok {
				ids = append(ids, uint64(v))
			}
		}
	}
	addRule := func(r datalog.Rule) {
		addPredicate(r.Head)
		for _, p := range r.Body {
			addPredicate(p)
		}
	}
	for _, f := range b.facts {
		addPredicate(f.Predicate)
	}
	for _, r := range b.rules {
		addRule(r)
	}
	for _, c := range b.checks {
		for _, q := range c.Queries {
			addRule(q)
		}
	}
	return ids
}

func (b *Block) String(symbols *datalog.SymbolTable, keys *datalog.PublicKeyTable) string {
	debug := datalog.SymbolDebugger{Symbols: symbols, Keys: keys}
	rules := make([]string, len(b.rules))
	for i, r := range b.rules {
		rules[i] = debug.Rule(r)
	}
	checks := make([]string, len(b.checks))
	for i, c := range b.checks {
		checks[i] = debug.Check(c)
	}
	facts := make([]string, len(b.facts))
	for i, f := range b.facts {
		facts[i] = debug.Predicate(f.Predicate)
	}
	return fmt.Sprintf("Block[%d] {\n\tcontext: %q\n\tfacts: %v\n\trules: %v\n\tchecks: %v\n}",
		b.index, b.context, facts, rules, checks)
}

// BlockBuilder accumulates facts, rules, and checks for one block (the
// authority block or an attenuation block) before it is signed and
// appended to a chain.
type BlockBuilder interface {
	AddFact(fact Fact) error
	AddRule(rule Rule) error
	AddCheck(check Check) error
	SetContext(string)
	Build() *Block
}

type blockBuilder struct {
	symbolsStart int
	symbols      *datalog.SymbolTable
	keys         *datalog.PublicKeyTable
	facts        []datalog.Fact
	rules        []datalog.Rule
	checks       []datalog.Check
	context      string
}

var _ BlockBuilder = (*blockBuilder)(nil)

// NewBlockBuilder starts a block whose symbols/keys extend baseSymbols and
// baseKeys (typically the accumulated tables of every earlier block in the
// chain, so repeated names are not re-interned).
func NewBlockBuilder(baseSymbols *datalog.SymbolTable, baseKeys *datalog.PublicKeyTable) BlockBuilder {
	return &blockBuilder{
		symbolsStart: baseSymbols.Len(),
		symbols:      baseSymbols,
		keys:         baseKeys,
	}
}

func (b *blockBuilder) AddFact(fact Fact) error {
	dlFact := fact.convert(b.symbols)
	for _, existing := range b.facts {
		if existing.Predicate.Equal(dlFact.Predicate) {
			return ErrDuplicateFact
		}
	}
	b.facts = append(b.facts, dlFact)
	return nil
}

func (b *blockBuilder) AddRule(rule Rule) error {
	dlRule := rule.convert(b.symbols, b.keys)
	if err := dlRule.Validate(); err != nil {
		debug := datalog.SymbolDebugger{Symbols: b.symbols, Keys: b.keys}
		return &ErrInvalidBlockRule{BlockID: -1, Rule: debug.Rule(dlRule)}
	}
	b.rules = append(b.rules, dlRule)
	return nil
}

func (b *blockBuilder) AddCheck(check Check) error {
	b.checks = append(b.checks, check.convert(b.symbols, b.keys))
	return nil
}

func (b *blockBuilder) SetContext(context string) { b.context = context }

func (b *blockBuilder) Build() *Block {
	ownSymbols := b.symbols.SplitOff(b.symbolsStart)

	facts := make([]datalog.Fact, len(b.facts))
	copy(facts, b.facts)

	rules := make([]datalog.Rule, len(b.rules))
	copy(rules, b.rules)

	checks := make([]datalog.Check, len(b.checks))
	copy(checks, b.checks)

	return &Block{
		symbols: ownSymbols,
		keys:    b.keys,
		facts:   facts,
		rules:   rules,
		checks:  checks,
		context: b.context,
	}
}
