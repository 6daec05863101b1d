package synth

import (
	"testing"

	"github.com/jrwynneiii/lhdecode/pulse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countSyncs(frames []pulse.Frame) int {
	n := 0
	for _, f := range frames {
		if f.Width >= pulse.V1SyncBaseWidth {
			n++
		}
	}
	return n
}

func TestV1FramesLayout(t *testing.T) {
	frames := V1Frames(DefaultScene(), Options{Frames: 4, Start: 100})

	// two stations, four sensors each, plus one sweep per sensor
	require.Len(t, frames, 4*(2*pulse.NumSensors+pulse.NumSensors))
	assert.Equal(t, 4*2*pulse.NumSensors, countSyncs(frames))
	for i := 1; i < len(frames); i++ {
		assert.LessOrEqual(t, frames[i-1].Timestamp, frames[i].Timestamp, "pulse %d out of order", i)
	}

	// frame 0 is swept by station 0 on x, so station 1 sets the skip bit
	first := pulse.V1SyncCode((frames[0].Width - pulse.V1SyncBaseWidth) / pulse.V1SyncStepWidth)
	assert.False(t, first.Skip())
	assert.Equal(t, pulse.AxisX, first.Axis())
	second := pulse.V1SyncCode((frames[pulse.NumSensors].Width - pulse.V1SyncBaseWidth) / pulse.V1SyncStepWidth)
	assert.True(t, second.Skip())
}

func TestV1FramesDropout(t *testing.T) {
	full := V1Frames(DefaultScene(), Options{Frames: 8})
	dropped := V1Frames(DefaultScene(), Options{
		Frames:   8,
		Dropouts: []Dropout{{BaseStation: 1, From: 2, To: 4}},
	})
	// station 1 sweeps frames 2 and 3
	assert.Equal(t, len(full)-2*(2*pulse.NumSensors), len(dropped))
}

func TestV1FramesCarryOOTX(t *testing.T) {
	bits := []bool{true, false, true}
	frames := V1Frames(DefaultScene(), Options{Frames: 4, Start: 1000, OOTX: [2][]bool{bits, nil}})

	var got []bool
	for _, f := range frames {
		if f.Sensor != 0 || f.Width < pulse.V1SyncBaseWidth || f.Timestamp%pulse.V1FrameLength > pulse.V1SyncSeparation/2 {
			continue
		}
		got = append(got, pulse.V1SyncCode((f.Width-pulse.V1SyncBaseWidth)/pulse.V1SyncStepWidth).Data())
	}
	assert.Equal(t, []bool{true, false, true, true}, got)
}

func TestV2FramesLayout(t *testing.T) {
	frames := V2Frames(DefaultScene(), Options{Frames: 3, Channels: [2]uint8{2, 5}, HideChannel: [4]bool{true}})

	require.Len(t, frames, 3*pulse.NumBaseStations*pulse.NumSweeps*pulse.NumSensors)
	for _, f := range frames {
		if f.Sensor == 0 {
			assert.False(t, f.ChannelFound)
			continue
		}
		assert.True(t, f.ChannelFound)
		assert.Contains(t, []uint8{2, 5}, f.Channel)
		assert.Zero(t, f.Offset%4)
	}
}
