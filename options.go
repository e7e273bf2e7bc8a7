package biscuit

import (
	"io"

	"github.com/biscuit-core/biscuit-go/sig"
)

// compositionOption is the functional-option type accepted by NewBuilder.
type compositionOption interface {
	applyToBuilder(*builderOptions)
}

type rngOption struct {
	io.Reader
}

func (o rngOption) applyToBuilder(b *builderOptions) {
	if r := o.Reader; r != nil {
		b.rng = o
	}
}

// WithRNG supplies a random number generator as a byte stream from which
// to read when generating the ephemeral keypairs that chain a biscuit's
// blocks together.
func WithRNG(r io.Reader) compositionOption {
	return rngOption{r}
}

type rootKeyIDOption uint32

func (o rootKeyIDOption) applyToBuilder(b *builderOptions) {
	id := uint32(o)
	b.rootKeyID = &id
}

// WithRootKeyID specifies the identifier for the root key pair used to
// sign a biscuit's authority block, allowing a consuming party to later
// select the corresponding public key to validate that signature.
func WithRootKeyID(id uint32) compositionOption {
	return rootKeyIDOption(id)
}

type algorithmOption sig.Algorithm

func (o algorithmOption) applyToBuilder(b *builderOptions) {
	b.algorithm = sig.Algorithm(o)
}

// WithAlgorithm selects the signature suite used for every ephemeral
// keypair generated while building or appending to a biscuit. The root
// key's own algorithm is fixed by the caller-supplied root keypair and is
// unaffected by this option.
func WithAlgorithm(alg sig.Algorithm) compositionOption {
	return algorithmOption(alg)
}

type builderOptions struct {
	rng       io.Reader
	rootKeyID *uint32
	algorithm sig.Algorithm
}
