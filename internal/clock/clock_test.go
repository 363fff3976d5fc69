package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsEmpty(t *testing.T) {
	c := New("CLIENT0000000000", 3)
	assert.True(t, c.Merkle.IsEmpty())
	assert.Equal(t, int64(0), c.Timestamp.Millis)
}

func TestInsertTimestampUpdatesMerkle(t *testing.T) {
	c := New("CLIENT0000000000", 3)
	ts, err := c.Timestamp.Send()
	require.NoError(t, err)

	c.InsertTimestamp(ts)
	assert.False(t, c.Merkle.IsEmpty())
	assert.Equal(t, ts.Hash(), c.Merkle.RootHash())
}
