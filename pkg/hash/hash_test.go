package hash

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taurusgroup/frost-bridge/pkg/math/curve"
	"github.com/taurusgroup/frost-bridge/pkg/math/sample"
)

func TestHash_WriteAny(t *testing.T) {
	s := sample.Scalar(rand.Reader)
	testFunc := func(vs ...interface{}) {
		h := New()
		for _, v := range vs {
			require.NoError(t, h.WriteAny(v), "writing %T", v)
		}
	}
	testFunc(s, s.ActOnBase(), []byte{1, 4, 6}, uint16(3))
	assert.Panics(t, func() { testFunc("unsupported") })
}

func TestHash_Clone(t *testing.T) {
	h1 := New(&BytesWithDomain{TheDomain: "test", Bytes: []byte("prefix")})
	h2 := h1.Clone()
	assert.Equal(t, h1.Sum(), h2.Sum())

	require.NoError(t, h2.WriteAny(curve.NewBasePoint()))
	assert.NotEqual(t, h1.Sum(), h2.Sum())
}

func TestHash_DomainSeparation(t *testing.T) {
	h1 := New()
	require.NoError(t, h1.WriteAny([]byte{0, 1}))
	h2 := New()
	require.NoError(t, h2.WriteAny(uint16(1)))
	assert.NotEqual(t, h1.Sum(), h2.Sum())

	h3 := New()
	require.NoError(t, h3.WriteAny([]byte{1}, []byte{2}))
	h4 := New()
	require.NoError(t, h4.WriteAny([]byte{1, 2}))
	assert.NotEqual(t, h3.Sum(), h4.Sum())
}
