package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h, err := NewHasher(MinCost)
	require.NoError(t, err)

	hash, err := h.Hash("correct horse battery")
	require.NoError(t, err)

	assert.True(t, h.Verify("correct horse battery", hash))
	assert.False(t, h.Verify("wrong", hash))
}

func TestHasher_EmptyPassword(t *testing.T) {
	h, err := NewHasher(MinCost)
	require.NoError(t, err)

	_, err = h.Hash("")
	assert.Error(t, err)
}

func TestNewHasher_RejectsOutOfRangeCost(t *testing.T) {
	_, err := NewHasher(MinCost - 1)
	assert.Error(t, err)

	_, err = NewHasher(MaxCost + 1)
	assert.Error(t, err)
}

func TestHasher_NeedsRehash(t *testing.T) {
	low, err := NewHasher(MinCost)
	require.NoError(t, err)
	high, err := NewHasher(MinCost + 1)
	require.NoError(t, err)

	hash, err := low.Hash("password123")
	require.NoError(t, err)

	needs, err := high.NeedsRehash(hash)
	require.NoError(t, err)
	assert.True(t, needs)

	needs, err = low.NeedsRehash(hash)
	require.NoError(t, err)
	assert.False(t, needs)

	_, err = low.NeedsRehash("not-a-hash")
	assert.Error(t, err)
}
