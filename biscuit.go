package biscuit

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/biscuit-core/biscuit-go/datalog"
	"github.com/biscuit-core/biscuit-go/sig"
)

// Biscuit is a signed chain of blocks (its signatures are checked by
// Verify, not at construction): an authority block
// (index 0, signed by the root key) followed by zero or more attenuation
// blocks, each signed by the previous block's committed ephemeral key. An
// open (unsealed) Biscuit retains the last block's ephemeral private key so
// Append or Seal can extend it further; a sealed one carries a final proof
// signature instead and can never be extended again.
type Biscuit struct {
	root      sig.PublicKey
	rootKeyID *uint32 // identifies which root key to verify against, when a verifier holds several
	algorithm sig.Algorithm
	symbols   *datalog.SymbolTable
	keys      *datalog.PublicKeyTable
	blocks    []*Block
	sigs      []sig.BlockSignature
	lastKey   *sig.Keypair // non-nil iff open
	proof     *sig.Proof   // non-nil iff sealed
}

var (
	// ErrSymbolTableOverlap is returned when a new block's own symbols
	// collide with the accumulated chain symbol table.
	ErrSymbolTableOverlap = errors.New("biscuit: symbol table overlap")
	// ErrFactNotFound is returned by GetBlockID when no block carries the
	// searched fact.
	ErrFactNotFound = errors.New("biscuit: fact not found")
)

// New signs authority (which must have index 0) with root, opening a
// one-block Biscuit. rng supplies randomness for the ephemeral key that
// chains to the next block; if nil, crypto/rand.Reader is used. rootKeyID,
// if non-nil, is carried alongside the token so a verifier holding several
// root keys can select the right one before calling Verify.
func New(rng io.Reader, algorithm sig.Algorithm, root sig.Keypair, rootKeyID *uint32, authority *Block) (*Biscuit, error) {
	if rng == nil {
		rng = rand.Reader
	}
	if authority.index != 0 {
		return nil, &ErrInvalidAuthorityIndex{Index: authority.index}
	}

	next, err := sig.GenerateKeypair(algorithm, rng)
	if err != nil {
		return nil, err
	}

	signature, err := sig.SignBlock(root.Private(), authority.Bytes(), next.Public(), nil)
	if err != nil {
		return nil, &ErrSignature{Cause: err}
	}

	symbols := authority.symbols.Clone()
	keys := authority.keys.Clone()

	return &Biscuit{
		root:      root.Public(),
		rootKeyID: rootKeyID,
		algorithm: algorithm,
		symbols:   symbols,
		keys:      keys,
		blocks:    []*Block{authority},
		sigs:      []sig.BlockSignature{{NextKey: next.Public(), Signature: signature}},
		lastKey:   &next,
	}, nil
}

// RootKeyID returns the identifier of the root key this token was signed
// with, if the builder set one via WithRootKeyID.
func (b *Biscuit) RootKeyID() *uint32 { return b.rootKeyID }

// FromParts reconstructs a Biscuit from already-parsed block, signature, and
// proof values: the data a verifier holds once an external framer has
// decoded a token's wire bytes into blocks (spec §2, the step feeding into
// signature-chain verification). Every block's symbol references are
// checked against the accumulated symbol table built up to that point (key
// ids are not checked), so a block
// referencing an id neither the default table nor any earlier extension
// defines is rejected before it ever reaches the datalog engine. Since the
// last block's ephemeral private key is not part of this data, the returned
// Biscuit cannot be extended with Append or Seal.
func FromParts(root sig.PublicKey, rootKeyID *uint32, algorithm sig.Algorithm, blocks []*Block, sigs []sig.BlockSignature, proof *sig.Proof) (*Biscuit, error) {
	if len(blocks) == 0 {
		return nil, &FormatError{Detail: "biscuit has no blocks"}
	}
	if len(blocks) != len(sigs) {
		return nil, &FormatError{Detail: "block and signature counts differ"}
	}

	symbols := new(datalog.SymbolTable)
	keys := new(datalog.PublicKeyTable)
	for i, block := range blocks {
		if block.index != uint32(i) {
			return nil, &ErrInvalidAuthorityIndex{Index: block.index}
		}
		symbols.Extend(block.symbols)
		keys.Extend(block.keys)
		for _, id := range block.symbolIDs() {
			if !symbols.Contains(id) {
				return nil, &ErrMissingSymbols{ID: id}
			}
		}
	}

	return &Biscuit{
		root:      root,
		rootKeyID: rootKeyID,
		algorithm: algorithm,
		symbols:   symbols,
		keys:      keys,
		blocks:    blocks,
		sigs:      sigs,
		proof:     proof,
	}, nil
}

// CreateBlock starts a new attenuation block whose symbols and keys extend
// this Biscuit's accumulated tables.
func (b *Biscuit) CreateBlock() BlockBuilder {
	return NewBlockBuilder(b.symbols.Clone(), b.keys.Clone())
}

// Append signs block with a fresh ephemeral keypair chained from the
// current last block, returning a new Biscuit (the receiver is untouched).
// external, if non-nil, marks block as a third-party block externally
// signed by a key distinct from the chain's own ephemeral keys; checks
// elsewhere may then trust that key via a `trusting ed25519/<key>` scope.
func (b *Biscuit) Append(rng io.Reader, block *Block, external *ExternalSigner) (*Biscuit, error) {
	if b.lastKey == nil {
		return nil, ErrAlreadySealed
	}
	if !b.symbols.IsDisjoint(block.symbols) {
		return nil, ErrSymbolTableOverlap
	}
	block.index = uint32(len(b.blocks))

	if rng == nil {
		rng = rand.Reader
	}

	next, err := sig.GenerateKeypair(b.algorithm, rng)
	if err != nil {
		return nil, err
	}

	var extSig *sig.ExternalSignature
	if external != nil {
		previous := b.sigs[len(b.sigs)-1].Signature
		s, err := sig.SignExternal(external.Keypair.Private(), block.Bytes(), previous)
		if err != nil {
			return nil, &ErrSignature{Cause: err}
		}
		extSig = &sig.ExternalSignature{PublicKey: external.Keypair.Public(), Signature: s}
		block.externalSigner = &extSig.PublicKey
	}

	signature, err := sig.SignBlock(b.lastKey.Private(), block.Bytes(), next.Public(), extSig)
	if err != nil {
		return nil, &ErrSignature{Cause: err}
	}

	symbols := b.symbols.Clone()
	symbols.Extend(block.symbols)
	keys := b.keys.Clone()
	keys.Extend(block.keys)

	blocks := make([]*Block, len(b.blocks)+1)
	copy(blocks, b.blocks)
	blocks[len(b.blocks)] = block

	sigs := make([]sig.BlockSignature, len(b.sigs)+1)
	copy(sigs, b.sigs)
	sigs[len(b.sigs)] = sig.BlockSignature{NextKey: next.Public(), Signature: signature, External: extSig}

	return &Biscuit{
		root:      b.root,
		rootKeyID: b.rootKeyID,
		algorithm: b.algorithm,
		symbols:   symbols,
		keys:      keys,
		blocks:    blocks,
		sigs:      sigs,
		lastKey:   &next,
	}, nil
}

// ExternalSigner names the third-party keypair that authors an attenuation
// block passed to Append. Its signature is added alongside the chain's own
// ephemeral-key signature, which every block still carries.
type ExternalSigner struct {
	Keypair sig.Keypair
}

// Seal forecloses further attenuation: the last block's ephemeral private
// key is discarded and replaced with a one-time signature proving the
// chain ends here (spec §4.D). The receiver is untouched.
func (b *Biscuit) Seal() (*Biscuit, error) {
	if b.lastKey == nil {
		return nil, ErrAlreadySealed
	}

	last := len(b.blocks) - 1
	proof, err := sig.Seal(*b.lastKey, b.blocks[last].Bytes(), b.sigs[last].Signature)
	if err != nil {
		return nil, &ErrSignature{Cause: err}
	}

	return &Biscuit{
		root:      b.root,
		rootKeyID: b.rootKeyID,
		algorithm: b.algorithm,
		symbols:   b.symbols,
		keys:      b.keys,
		blocks:    b.blocks,
		sigs:      b.sigs,
		proof:     &proof,
	}, nil
}

// Sealed reports whether further attenuation has been foreclosed.
func (b *Biscuit) Sealed() bool { return b.proof != nil }

// Verify checks the Biscuit's signature chain against root (spec §4.D steps
// 1-4) and, for a sealed token, its final proof signature (step 4 variant).
// Signatures are always verified before the proof's kind byte is ever
// inspected, so a flipped discriminator bit cannot reinterpret a sealed
// token as attenuable.
func (b *Biscuit) Verify(root sig.PublicKey) error {
	if !b.root.Equal(root) {
		return ErrUnknownPublicKey
	}

	blockBytes := make([][]byte, len(b.blocks))
	for i, blk := range b.blocks {
		blockBytes[i] = blk.Bytes()
	}

	if err := sig.VerifyChain(root, blockBytes, b.sigs); err != nil {
		return &ErrSignature{Cause: err}
	}

	if b.proof != nil {
		last := len(b.blocks) - 1
		if err := sig.VerifySeal(b.sigs[last].NextKey, blockBytes[last], *b.proof); err != nil {
			return &ErrSignature{Cause: err}
		}
	}

	return nil
}

// RevocationIDs returns the per-block revocation identifiers (spec §4.D
// step 5): the raw signature bytes of every block, in chain order.
func (b *Biscuit) RevocationIDs() [][]byte { return sig.RevocationIDs(b.sigs) }

// BlockCount returns the number of blocks, including the authority block.
func (b *Biscuit) BlockCount() int { return len(b.blocks) }

// GetBlockID returns the index of the first block (authority first, then
// each attenuation block in chain order) containing fact.
func (b *Biscuit) GetBlockID(fact Fact) (int, error) {
	symbols := b.symbols.Clone()
	target := fact.convert(symbols)

	for i, block := range b.blocks {
		for _, f := range block.facts {
			if f.Predicate.Equal(target.Predicate) {
				return i, nil
			}
		}
	}
	return 0, ErrFactNotFound
}

func (b *Biscuit) String() string {
	blocks := make([]string, len(b.blocks))
	for i, block := range b.blocks {
		blocks[i] = block.String(b.symbols, b.keys)
	}
	state := "open"
	if b.Sealed() {
		state = "sealed"
	}
	return fmt.Sprintf("Biscuit {\n\tstate: %s\n\tblocks: %v\n}", state, blocks)
}

// originSigner resolves a block's Origin to the public key id of its
// external signer, for datalog.WithSigner. Only third-party blocks resolve.
func (b *Biscuit) originSigner() func(datalog.Origin) (uint64, bool) {
	return func(o datalog.Origin) (uint64, bool) {
		if int(o) < 0 || int(o) >= len(b.blocks) {
			return 0, false
		}
		signer := b.blocks[o].externalSigner
		if signer == nil {
			return 0, false
		}
		return b.keys.Insert(signer.Bytes()), true
	}
}
