package pulse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryKeepsMostRecent(t *testing.T) {
	var h History
	assert.Equal(t, 0, h.Len())

	const n = HistoryLength + 5
	for i := 0; i < n; i++ {
		h.Push(HistoryEntry{Timestamp: uint32(i), Width: uint16(100 + i)})
	}

	require.True(t, h.Full())
	require.Equal(t, HistoryLength, h.Len())
	for i := 0; i < HistoryLength; i++ {
		want := uint32(n - 1 - i)
		assert.Equal(t, want, h.At(i).Timestamp, "entry %d", i)
		assert.Equal(t, uint16(100+want), h.At(i).Width, "entry %d", i)
	}
}

func TestHistoryPartial(t *testing.T) {
	var h History
	h.Push(HistoryEntry{Timestamp: 1})
	h.Push(HistoryEntry{Timestamp: 2})

	assert.False(t, h.Full())
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, uint32(2), h.At(0).Timestamp)
	assert.Equal(t, uint32(1), h.At(1).Timestamp)
}
