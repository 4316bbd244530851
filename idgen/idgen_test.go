package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]bool)
	prev := ""
	for range 500 {
		id := gen()
		u, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), u.Version())
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
		assert.GreaterOrEqual(t, id, prev, "v7 ids sort by creation")
		prev = id
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("run_", UUIDv7())()
	require.True(t, strings.HasPrefix(id, "run_"))
	_, err := Parse(strings.TrimPrefix(id, "run_"))
	assert.NoError(t, err)
}

func TestParse(t *testing.T) {
	got, err := Parse("0190A0E2-7C3B-7B44-9A36-0D6E1F1A2B3C")
	require.NoError(t, err)
	assert.Equal(t, "0190a0e2-7c3b-7b44-9a36-0d6e1f1a2b3c", got)

	_, err = Parse("not-a-uuid")
	assert.Error(t, err)
}
