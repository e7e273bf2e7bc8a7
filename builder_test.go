package biscuit

import (
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/biscuit-core/biscuit-go/sig"
)

func TestNewBuilderDefaultsAlgorithmToRoot(t *testing.T) {
	root, err := sig.GenerateKeypair(sig.ECDSAP256, rand.Reader)
	require.NoError(t, err)

	b := NewBuilder(root).(*builder)
	require.Equal(t, sig.ECDSAP256, b.opts.algorithm)
}

func TestWithAlgorithmOverridesChainKeys(t *testing.T) {
	root := newRootKeypair(t) // Ed25519
	b := NewBuilder(root, WithAlgorithm(sig.ECDSAP256)).(*builder)
	require.Equal(t, sig.ECDSAP256, b.opts.algorithm)

	token, err := b.Build()
	require.NoError(t, err)
	require.NoError(t, token.Verify(root.Public()))
}

func TestWithRootKeyIDRoundTrips(t *testing.T) {
	root := newRootKeypair(t)
	b := NewBuilder(root, WithRootKeyID(7))

	token, err := b.Build()
	require.NoError(t, err)
	require.NotNil(t, token.RootKeyID())
	require.Equal(t, uint32(7), *token.RootKeyID())
}

func TestWithRNGIsUsedForEphemeralKeys(t *testing.T) {
	root := newRootKeypair(t)
	var used bool
	tracking := trackingReader{Reader: rand.Reader, used: &used}

	b := NewBuilder(root, WithRNG(tracking))
	_, err := b.Build()
	require.NoError(t, err)
	require.True(t, used)
}

type trackingReader struct {
	io.Reader
	used *bool
}

func (t trackingReader) Read(p []byte) (int, error) {
	*t.used = true
	return t.Reader.Read(p)
}
