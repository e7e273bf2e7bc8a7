package sig

import (
	"errors"
)

// ErrChainLength is returned when the number of block payloads and block
// signatures supplied to VerifyChain do not match.
var ErrChainLength = errors.New("sig: mismatched block/signature count")

// ExternalSignature is the additional signature a third-party block carries
// (spec §4.D): a signature by the contributing party's own key over
// (blockBytes ‖ previousSignature), proving they authored this block's
// content without ever holding the chain's signing key.
type ExternalSignature struct {
	PublicKey PublicKey
	Signature []byte
}

// BlockSignature is everything a verifier needs to check one block's place
// in the chain: the signature itself, the next ephemeral public key it
// commits to, and an optional third-party external signature.
type BlockSignature struct {
	NextKey   PublicKey
	Signature []byte
	External  *ExternalSignature
}

// payload builds the exact byte string every block signature covers (spec
// §4.D): block_bytes, the third-party external signature if present, the
// next key's algorithm tag, then the next key's bytes. Order matters — it
// is what makes the chain tamper-evident end to end.
func payload(blockBytes []byte, external *ExternalSignature, next PublicKey) []byte {
	var buf []byte
	buf = append(buf, blockBytes...)
	if external != nil {
		buf = append(buf, external.Signature...)
	}
	buf = append(buf, byte(next.Algorithm()))
	buf = append(buf, next.Bytes()...)
	return buf
}

// externalPayload builds the message a third-party block's external
// signature covers: its own bytes followed by the previous block's
// signature, binding the third-party contribution to one specific chain
// position.
func externalPayload(blockBytes, previousSignature []byte) []byte {
	buf := make([]byte, 0, len(blockBytes)+len(previousSignature))
	buf = append(buf, blockBytes...)
	buf = append(buf, previousSignature...)
	return buf
}

// SignExternal produces the external signature a third party contributes
// to blockBytes at the position following previousSignature.
func SignExternal(key PrivateKey, blockBytes, previousSignature []byte) ([]byte, error) {
	return Sign(key, externalPayload(blockBytes, previousSignature))
}

// SignBlock signs one block in the chain. signingKey is the root key for
// block 0, or the previous block's committed next key for every later
// block. next is the ephemeral keypair this block commits to; the caller
// keeps its private half to sign the following block (or folds it into a
// Proof to hand to a holder).
func SignBlock(signingKey PrivateKey, blockBytes []byte, next PublicKey, external *ExternalSignature) ([]byte, error) {
	return Sign(signingKey, payload(blockBytes, external, next))
}

// VerifyBlock checks one block's signature (and, if present, its external
// signature) against the key that should have produced it.
func VerifyBlock(signingKey PublicKey, blockBytes []byte, sig BlockSignature, previousSignature []byte) error {
	if sig.External != nil {
		if err := Verify(sig.External.PublicKey, externalPayload(blockBytes, previousSignature), sig.External.Signature); err != nil {
			return err
		}
	}
	return Verify(signingKey, payload(blockBytes, sig.External, sig.NextKey), sig.Signature)
}

// VerifyChain walks every block signature in order, verifying block i
// against the signing key committed by block i-1's signature (or root for
// block 0). It implements steps 1-4 of the spec's chain verification
// procedure; sealing and revocation id extraction are separate steps.
func VerifyChain(root PublicKey, blocks [][]byte, sigs []BlockSignature) error {
	if len(blocks) != len(sigs) {
		return ErrChainLength
	}
	signingKey := root
	var previousSignature []byte
	for i, blockBytes := range blocks {
		if err := VerifyBlock(signingKey, blockBytes, sigs[i], previousSignature); err != nil {
			return err
		}
		signingKey = sigs[i].NextKey
		previousSignature = sigs[i].Signature
	}
	return nil
}

// RevocationIDs returns the per-block revocation identifiers of spec §4.D:
// the raw signature bytes of each block, in chain order.
func RevocationIDs(sigs []BlockSignature) [][]byte {
	out := make([][]byte, len(sigs))
	for i, s := range sigs {
		out[i] = append([]byte(nil), s.Signature...)
	}
	return out
}

// ProofKind discriminates the two trailer shapes a token can carry (spec
// §4.D/§9): a reusable secret key that lets a holder append another block,
// or a one-time final signature that proves the chain ends here and
// forecloses further attenuation.
type ProofKind byte

const (
	ProofSecret ProofKind = iota
	ProofSealed
)

// Proof is the trailer appended after the last block signature. Its kind
// byte must never be branched on before the signature covering it has been
// verified — the spec requires signature-first verification specifically
// so a flipped discriminator bit cannot reinterpret a sealed token as
// attenuable or vice versa.
type Proof struct {
	Kind      ProofKind
	NextKey   PrivateKey // set iff Kind == ProofSecret
	Signature []byte     // set iff Kind == ProofSealed
}

// Seal produces a sealed proof for the last block in a chain: a final
// signature, under lastNextKey, covering the last block's own payload
// (spec §4.D "sealing" — this signature exists only to prove termination
// and is never treated as another chain link).
func Seal(lastNextKey Keypair, lastBlockBytes []byte, lastSignature []byte) (Proof, error) {
	s, err := Sign(lastNextKey.Private(), payload(lastBlockBytes, nil, lastNextKey.Public()))
	if err != nil {
		return Proof{}, err
	}
	return Proof{Kind: ProofSealed, Signature: s}, nil
}

// VerifySeal checks a sealed proof against the last block's committed next
// key and payload.
func VerifySeal(lastNextKey PublicKey, lastBlockBytes []byte, proof Proof) error {
	if err := Verify(lastNextKey, payload(lastBlockBytes, nil, lastNextKey), proof.Signature); err != nil {
		return err
	}
	if proof.Kind != ProofSealed {
		return errors.New("sig: not a sealed proof")
	}
	return nil
}
