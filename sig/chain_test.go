package sig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildChain(t *testing.T, n int) (PublicKey, [][]byte, []BlockSignature) {
	t.Helper()
	root, err := GenerateKeypair(Ed25519, nil)
	require.NoError(t, err)

	blocks := make([][]byte, n)
	sigs := make([]BlockSignature, n)

	signingKey := root.Private()
	for i := 0; i < n; i++ {
		blocks[i] = []byte("block payload " + string(rune('0'+i)))
		next, err := GenerateKeypair(Ed25519, nil)
		require.NoError(t, err)

		s, err := SignBlock(signingKey, blocks[i], next.Public(), nil)
		require.NoError(t, err)

		sigs[i] = BlockSignature{NextKey: next.Public(), Signature: s}
		signingKey = next.Private()
	}
	return root.Public(), blocks, sigs
}

func TestVerifyChainAccepts(t *testing.T) {
	root, blocks, sigs := buildChain(t, 3)
	require.NoError(t, VerifyChain(root, blocks, sigs))
}

func TestVerifyChainRejectsTamperedBlock(t *testing.T) {
	root, blocks, sigs := buildChain(t, 3)
	blocks[1] = append([]byte(nil), blocks[1]...)
	blocks[1][0] ^= 0xff
	require.Error(t, VerifyChain(root, blocks, sigs))
}

func TestVerifyChainRejectsReorderedBlocks(t *testing.T) {
	root, blocks, sigs := buildChain(t, 3)
	blocks[1], blocks[2] = blocks[2], blocks[1]
	require.Error(t, VerifyChain(root, blocks, sigs))
}

func TestVerifyChainRejectsWrongRoot(t *testing.T) {
	_, blocks, sigs := buildChain(t, 2)
	other, err := GenerateKeypair(Ed25519, nil)
	require.NoError(t, err)
	require.Error(t, VerifyChain(other.Public(), blocks, sigs))
}

func TestExternalSignatureRoundTrip(t *testing.T) {
	root, err := GenerateKeypair(Ed25519, nil)
	require.NoError(t, err)
	third, err := GenerateKeypair(Ed25519, nil)
	require.NoError(t, err)

	block0 := []byte("authority")
	next0, err := GenerateKeypair(Ed25519, nil)
	require.NoError(t, err)
	sig0, err := SignBlock(root.Private(), block0, next0.Public(), nil)
	require.NoError(t, err)

	block1 := []byte("third party block")
	extSig, err := SignExternal(third.Private(), block1, sig0)
	require.NoError(t, err)
	ext := &ExternalSignature{PublicKey: third.Public(), Signature: extSig}

	next1, err := GenerateKeypair(Ed25519, nil)
	require.NoError(t, err)
	sig1, err := SignBlock(next0.Private(), block1, next1.Public(), ext)
	require.NoError(t, err)

	chain := []BlockSignature{
		{NextKey: next0.Public(), Signature: sig0},
		{NextKey: next1.Public(), Signature: sig1, External: ext},
	}
	require.NoError(t, VerifyChain(root.Public(), [][]byte{block0, block1}, chain))
}

func TestSealRoundTrip(t *testing.T) {
	root, blocks, sigs := buildChain(t, 2)
	require.NoError(t, VerifyChain(root, blocks, sigs))

	lastNext, err := GenerateKeypair(Ed25519, nil)
	require.NoError(t, err)
	// buildChain does not return the private half of the last committed
	// next key, so a fresh keypair stands in for it: Seal and VerifySeal
	// only need the two halves of one keypair.
	proof, err := Seal(lastNext, blocks[len(blocks)-1], sigs[len(sigs)-1].Signature)
	require.NoError(t, err)
	require.Equal(t, ProofSealed, proof.Kind)

	require.NoError(t, VerifySeal(lastNext.Public(), blocks[len(blocks)-1], proof))
}

func TestVerifySealRejectsSecretProof(t *testing.T) {
	kp, err := GenerateKeypair(Ed25519, nil)
	require.NoError(t, err)
	proof := Proof{Kind: ProofSecret, NextKey: kp.Private()}
	err = VerifySeal(kp.Public(), []byte("x"), proof)
	require.Error(t, err)
}

func TestRevocationIDsAreSignatureBytes(t *testing.T) {
	_, _, sigs := buildChain(t, 3)
	ids := RevocationIDs(sigs)
	require.Len(t, ids, 3)
	for i, id := range ids {
		require.Equal(t, sigs[i].Signature, id)
	}
}
