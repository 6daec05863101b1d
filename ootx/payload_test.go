package ootx

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseV1(t *testing.T) {
	want := &Payload{
		FirmwareVersion: 0x0276,
		ID:              0xcafe1234,
		Phase:           [2]float32{0.0625, -0.03125},
		Tilt:            [2]float32{-0.0078125, 0.015625},
		UnlockCount:     3,
		HardwareVersion: 9,
		Curve:           [2]float32{0.001953125, -0.00390625},
		AccelDir:        [3]int8{0, -127, 2},
		GibPhase:        [2]float32{1.5, -2.25},
		GibMag:          [2]float32{0.0048828125, 0},
		Mode:            1,
		Faults:          0,
	}

	got, err := ParseV1(want.Marshal())
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestParseV1ShortPayload(t *testing.T) {
	_, err := ParseV1(make([]byte, PayloadLength-1))
	assert.ErrorIs(t, err, ErrShortPayload)
}
