package party

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDSlice(t *testing.T) {
	ids := NewIDSlice([]ID{5, 2, 3, 2, 1})
	assert.Equal(t, IDSlice{1, 2, 3, 5}, ids)
	assert.True(t, ids.Valid())
	assert.True(t, ids.Contains(1, 5))
	assert.False(t, ids.Contains(4))
	assert.Equal(t, IDSlice{1, 3, 5}, ids.Remove(2))
	assert.Equal(t, "[1, 2, 3, 5]", ids.String())
}

func TestIDSliceValid(t *testing.T) {
	assert.False(t, IDSlice{0, 1}.Valid())
	assert.False(t, IDSlice{2, 1}.Valid())
	assert.False(t, IDSlice{1, 1}.Valid())
	assert.True(t, Range(4).Valid())
}

func TestIDFromString(t *testing.T) {
	id, err := IDFromString("42")
	require.NoError(t, err)
	assert.Equal(t, ID(42), id)

	_, err = IDFromString("0")
	assert.Error(t, err)
	_, err = IDFromString("70000")
	assert.Error(t, err)
}
