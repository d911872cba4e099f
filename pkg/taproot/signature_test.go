package taproot

import (
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureVerification(t *testing.T) {
	sk, pk, err := GenKey(rand.Reader)
	require.NoError(t, err)

	m := sha256.Sum256([]byte("message"))
	sig, err := sk.Sign(rand.Reader, m[:])
	require.NoError(t, err)
	assert.Len(t, sig, SignatureLen)
	assert.True(t, pk.Verify(sig, m[:]))

	m[0] ^= 1
	assert.False(t, pk.Verify(sig, m[:]))
}

func TestAgainstBtcec(t *testing.T) {
	sk, pk, err := GenKey(rand.Reader)
	require.NoError(t, err)
	m := sha256.Sum256([]byte("cross check"))
	sig, err := sk.Sign(rand.Reader, m[:])
	require.NoError(t, err)

	parsedKey, err := schnorr.ParsePubKey(pk)
	require.NoError(t, err)
	parsedSig, err := schnorr.ParseSignature(sig)
	require.NoError(t, err)
	assert.True(t, parsedSig.Verify(m[:], parsedKey))
}

func TestVerifyRejectsMalformed(t *testing.T) {
	_, pk, err := GenKey(rand.Reader)
	require.NoError(t, err)
	assert.False(t, pk.Verify(make([]byte, SignatureLen-1), nil))
	assert.False(t, PublicKey(make([]byte, 31)).Verify(make([]byte, SignatureLen), nil))
}
