package biscuit

import (
	"crypto/rand"

	"github.com/biscuit-core/biscuit-go/datalog"
	"github.com/biscuit-core/biscuit-go/sig"
)

// Builder accumulates the authority block — the one block signed directly
// by the root key — before signing it into a fresh, open Biscuit.
type Builder interface {
	AddFact(fact Fact) error
	AddRule(rule Rule) error
	AddCheck(check Check) error
	SetContext(context string)
	Build() (*Biscuit, error)
}

type builder struct {
	block BlockBuilder
	root  sig.Keypair
	opts  builderOptions
}

var _ Builder = (*builder)(nil)

// NewBuilder starts a fresh authority block that will be signed by root.
// By default the ephemeral keys chaining later blocks use root's own
// algorithm; WithAlgorithm overrides that.
func NewBuilder(root sig.Keypair, opts ...compositionOption) Builder {
	bo := builderOptions{algorithm: root.Algorithm()}
	for _, o := range opts {
		o.applyToBuilder(&bo)
	}

	symbols := new(datalog.SymbolTable)
	keys := new(datalog.PublicKeyTable)

	return &builder{
		block: NewBlockBuilder(symbols, keys),
		root:  root,
		opts:  bo,
	}
}

func (b *builder) AddFact(fact Fact) error    { return b.block.AddFact(fact) }
func (b *builder) AddRule(rule Rule) error    { return b.block.AddRule(rule) }
func (b *builder) AddCheck(check Check) error { return b.block.AddCheck(check) }
func (b *builder) SetContext(context string)  { b.block.SetContext(context) }

func (b *builder) Build() (*Biscuit, error) {
	authority := b.block.Build()
	authority.index = 0

	rng := b.opts.rng
	if rng == nil {
		rng = rand.Reader
	}

	return New(rng, b.opts.algorithm, b.root, b.opts.rootKeyID, authority)
}
