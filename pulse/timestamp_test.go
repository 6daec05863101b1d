package pulse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name string
		x, y uint32
		want uint32
	}{
		{"forward", 10, 3, 7},
		{"equal", 42, 42, 0},
		{"wraps past max", 5, TimestampMax, 6},
		{"behind", 3, 10, TimestampMax - 6},
		{"ignores high bits", 0xff000005, 0x00000002, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Diff(tt.x, tt.y))
		})
	}
}

func TestSignedDiff(t *testing.T) {
	assert.Equal(t, int32(6), signedDiff(5, TimestampMax))
	assert.Equal(t, int32(-6), signedDiff(TimestampMax, 5))
	assert.Equal(t, int32(-1<<23), signedDiff(0, 1<<23))
}

func TestWithin(t *testing.T) {
	assert.True(t, within(10, TimestampMax-10, 21))
	assert.False(t, within(10, TimestampMax-10, 20))
	assert.True(t, within(100, 150, 50))
	assert.False(t, within(100, 151, 50))
}
