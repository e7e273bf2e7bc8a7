package sig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEd25519SignVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateKeypair(Ed25519, nil)
	require.NoError(t, err)

	msg := []byte("block 0 payload")
	s, err := Sign(kp.Private(), msg)
	require.NoError(t, err)
	require.Len(t, s, ed25519SigSize)

	require.NoError(t, Verify(kp.Public(), msg, s))
}

func TestECDSAP256SignVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateKeypair(ECDSAP256, nil)
	require.NoError(t, err)

	msg := []byte("block 0 payload")
	s, err := Sign(kp.Private(), msg)
	require.NoError(t, err)

	require.NoError(t, Verify(kp.Public(), msg, s))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	kp, err := GenerateKeypair(Ed25519, nil)
	require.NoError(t, err)

	s, err := Sign(kp.Private(), []byte("original"))
	require.NoError(t, err)

	err = Verify(kp.Public(), []byte("tampered"), s)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	kp1, err := GenerateKeypair(Ed25519, nil)
	require.NoError(t, err)
	kp2, err := GenerateKeypair(Ed25519, nil)
	require.NoError(t, err)

	msg := []byte("payload")
	s, err := Sign(kp1.Private(), msg)
	require.NoError(t, err)

	require.ErrorIs(t, Verify(kp2.Public(), msg, s), ErrInvalidSignature)
}

func TestPublicKeyBytesRoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{Ed25519, ECDSAP256} {
		kp, err := GenerateKeypair(alg, nil)
		require.NoError(t, err)

		b := kp.Public().Bytes()
		decoded, err := NewPublicKey(alg, b)
		require.NoError(t, err)
		require.True(t, kp.Public().Equal(decoded))
	}
}

func TestPrivateKeyBytesRoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{Ed25519, ECDSAP256} {
		kp, err := GenerateKeypair(alg, nil)
		require.NoError(t, err)

		b := kp.Private().Bytes()
		decoded, err := NewPrivateKey(alg, b)
		require.NoError(t, err)

		msg := []byte("round trip check")
		s, err := Sign(decoded, msg)
		require.NoError(t, err)
		require.NoError(t, Verify(kp.Public(), msg, s))
	}
}

func TestECDSAP256PublicKeyIsCompressed(t *testing.T) {
	kp, err := GenerateKeypair(ECDSAP256, nil)
	require.NoError(t, err)

	b := kp.Public().Bytes()
	require.Len(t, b, ecdsaPubCompLen)
	require.Contains(t, []byte{0x02, 0x03}, b[0])
}

func TestGenerateKeypairRejectsUnknownAlgorithm(t *testing.T) {
	_, err := GenerateKeypair(Algorithm(99), nil)
	require.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestNewPublicKeyRejectsWrongSize(t *testing.T) {
	_, err := NewPublicKey(Ed25519, make([]byte, 10))
	require.Error(t, err)
}
