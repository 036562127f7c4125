package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUUID(t *testing.T) {
	u := NewUUID()
	assert.Len(t, u, 36)
	parsed, err := ParseUUID(u)
	require.NoError(t, err)
	assert.Equal(t, u, parsed)

	_, err = ParseUUID("not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidUUID)
}

func TestNewHex(t *testing.T) {
	h := NewHex()
	assert.Len(t, h, 32)
	assert.NotContains(t, h, "-")
	assert.NotEqual(t, h, NewHex())
}

func TestULIDMonotonic(t *testing.T) {
	a, b := NewULID(), NewULID()
	assert.Less(t, a, b)

	ts, err := ULIDTime(a)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)

	_, err = ULIDTime("bad")
	assert.ErrorIs(t, err, ErrInvalidULID)
}
