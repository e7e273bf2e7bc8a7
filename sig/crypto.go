// Package sig implements the block signature suites used to chain and seal
// a Biscuit token.
package sig

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"math/big"
)

// Algorithm identifies which signature suite a key or signature uses. It is
// carried alongside every public key so a verifier never has to guess.
type Algorithm byte

const (
	Ed25519 Algorithm = iota
	ECDSAP256
)

func (a Algorithm) String() string {
	switch a {
	case Ed25519:
		return "Ed25519"
	case ECDSAP256:
		return "ECDSA_P256"
	default:
		return "unknown"
	}
}

// ErrInvalidSignature indicates that signature verification failed.
var ErrInvalidSignature = errors.New("sig: invalid signature")

// ErrUnknownAlgorithm indicates a key or signature carries an algorithm tag
// this build does not implement.
var ErrUnknownAlgorithm = errors.New("sig: unknown algorithm")

const (
	ed25519SeedSize = ed25519.SeedSize
	ed25519PubSize  = ed25519.PublicKeySize
	ed25519SigSize  = ed25519.SignatureSize
	ecdsaPrivSize   = 32
	ecdsaPubCompLen = 33
)

// PrivateKey is an algorithm-tagged signing key. Only one of its underlying
// representations is populated, selected by Algorithm.
type PrivateKey struct {
	alg    Algorithm
	edSeed []byte
	ecPriv *ecdsa.PrivateKey
}

func (k PrivateKey) Algorithm() Algorithm { return k.alg }

// Bytes returns the private key's canonical fixed-size encoding: a 32-byte
// Ed25519 seed, or a 32-byte big-endian ECDSA scalar.
func (k PrivateKey) Bytes() []byte {
	switch k.alg {
	case Ed25519:
		out := make([]byte, ed25519SeedSize)
		copy(out, k.edSeed)
		return out
	case ECDSAP256:
		return k.ecPriv.D.FillBytes(make([]byte, ecdsaPrivSize))
	default:
		return nil
	}
}

// NewPrivateKey decodes a private key previously produced by Bytes.
func NewPrivateKey(alg Algorithm, b []byte) (PrivateKey, error) {
	switch alg {
	case Ed25519:
		if len(b) != ed25519SeedSize {
			return PrivateKey{}, errors.New("sig: invalid ed25519 private key size")
		}
		seed := make([]byte, ed25519SeedSize)
		copy(seed, b)
		return PrivateKey{alg: Ed25519, edSeed: seed}, nil
	case ECDSAP256:
		if len(b) != ecdsaPrivSize {
			return PrivateKey{}, errors.New("sig: invalid ecdsa private key size")
		}
		curve := elliptic.P256()
		d := new(big.Int).SetBytes(b)
		x, y := curve.ScalarBaseMult(b)
		priv := &ecdsa.PrivateKey{
			PublicKey: ecdsa.PublicKey{Curve: curve, X: x, Y: y},
			D:         d,
		}
		return PrivateKey{alg: ECDSAP256, ecPriv: priv}, nil
	default:
		return PrivateKey{}, ErrUnknownAlgorithm
	}
}

// PublicKey is an algorithm-tagged verification key.
type PublicKey struct {
	alg   Algorithm
	edPub []byte
	ecPub *ecdsa.PublicKey
}

func (k PublicKey) Algorithm() Algorithm { return k.alg }

func (k PublicKey) Equal(o PublicKey) bool {
	if k.alg != o.alg {
		return false
	}
	kb, ob := k.Bytes(), o.Bytes()
	if len(kb) != len(ob) {
		return false
	}
	for i := range kb {
		if kb[i] != ob[i] {
			return false
		}
	}
	return true
}

// Bytes returns the public key's canonical fixed-size encoding: a 32-byte
// Ed25519 point, or a 33-byte SEC1 compressed P-256 point.
func (k PublicKey) Bytes() []byte {
	switch k.alg {
	case Ed25519:
		out := make([]byte, ed25519PubSize)
		copy(out, k.edPub)
		return out
	case ECDSAP256:
		return elliptic.MarshalCompressed(k.ecPub.Curve, k.ecPub.X, k.ecPub.Y)
	default:
		return nil
	}
}

// NewPublicKey decodes a public key previously produced by Bytes.
func NewPublicKey(alg Algorithm, b []byte) (PublicKey, error) {
	switch alg {
	case Ed25519:
		if len(b) != ed25519PubSize {
			return PublicKey{}, errors.New("sig: invalid ed25519 public key size")
		}
		pub := make([]byte, ed25519PubSize)
		copy(pub, b)
		return PublicKey{alg: Ed25519, edPub: pub}, nil
	case ECDSAP256:
		if len(b) != ecdsaPubCompLen {
			return PublicKey{}, errors.New("sig: invalid ecdsa public key size")
		}
		curve := elliptic.P256()
		x, y := elliptic.UnmarshalCompressed(curve, b)
		if x == nil {
			return PublicKey{}, errors.New("sig: invalid ecdsa point encoding")
		}
		return PublicKey{alg: ECDSAP256, ecPub: &ecdsa.PublicKey{Curve: curve, X: x, Y: y}}, nil
	default:
		return PublicKey{}, ErrUnknownAlgorithm
	}
}

// Keypair bundles a private key with its derived public key.
type Keypair struct {
	alg     Algorithm
	private PrivateKey
	public  PublicKey
}

func (k Keypair) Algorithm() Algorithm { return k.alg }
func (k Keypair) Private() PrivateKey  { return k.private }
func (k Keypair) Public() PublicKey    { return k.public }

// GenerateKeypair generates a new keypair for alg. If rng is nil, a safe
// CSPRNG is used.
func GenerateKeypair(alg Algorithm, rng io.Reader) (Keypair, error) {
	if rng == nil {
		rng = rand.Reader
	}
	switch alg {
	case Ed25519:
		edPub, edPriv, err := ed25519.GenerateKey(rng)
		if err != nil {
			return Keypair{}, err
		}
		priv := PrivateKey{alg: Ed25519, edSeed: edPriv.Seed()}
		pub := PublicKey{alg: Ed25519, edPub: edPub}
		return Keypair{alg: Ed25519, private: priv, public: pub}, nil
	case ECDSAP256:
		ecPriv, err := ecdsa.GenerateKey(elliptic.P256(), rng)
		if err != nil {
			return Keypair{}, err
		}
		priv := PrivateKey{alg: ECDSAP256, ecPriv: ecPriv}
		pub := PublicKey{alg: ECDSAP256, ecPub: &ecPriv.PublicKey}
		return Keypair{alg: ECDSAP256, private: priv, public: pub}, nil
	default:
		return Keypair{}, ErrUnknownAlgorithm
	}
}

// Sign signs msg with priv, returning the raw signature bytes: 64 bytes for
// Ed25519, a DER-encoded ASN.1 sequence for ECDSA.
func Sign(priv PrivateKey, msg []byte) ([]byte, error) {
	switch priv.alg {
	case Ed25519:
		edPriv := ed25519.NewKeyFromSeed(priv.edSeed)
		return ed25519.Sign(edPriv, msg), nil
	case ECDSAP256:
		if priv.ecPriv == nil {
			return nil, errors.New("sig: empty ecdsa private key")
		}
		h := sha256.Sum256(msg)
		return ecdsa.SignASN1(rand.Reader, priv.ecPriv, h[:])
	default:
		return nil, ErrUnknownAlgorithm
	}
}

// Verify verifies sig against msg under pub.
func Verify(pub PublicKey, msg, sig []byte) error {
	switch pub.alg {
	case Ed25519:
		if len(sig) != ed25519SigSize {
			return ErrInvalidSignature
		}
		if !ed25519.Verify(pub.edPub, msg, sig) {
			return ErrInvalidSignature
		}
		return nil
	case ECDSAP256:
		if pub.ecPub == nil {
			return ErrInvalidSignature
		}
		h := sha256.Sum256(msg)
		if !ecdsa.VerifyASN1(pub.ecPub, h[:], sig) {
			return ErrInvalidSignature
		}
		return nil
	default:
		return ErrUnknownAlgorithm
	}
}
