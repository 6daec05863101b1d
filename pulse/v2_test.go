package pulse_test

import (
	"testing"

	"github.com/jrwynneiii/lhdecode/config"
	"github.com/jrwynneiii/lhdecode/pulse"
	"github.com/jrwynneiii/lhdecode/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// v2Block builds the four pulses of one sweep, rotation starting at start.
func v2Block(start uint32, channel uint8, axis pulse.Axis, angles [pulse.NumSensors]float64) []pulse.Frame {
	frames := make([]pulse.Frame, pulse.NumSensors)
	for s := range frames {
		offset := pulse.V2Offset(angles[s], channel, axis) &^ 3
		word := pulse.EncodeBeamWord(pulse.BeamInfo{
			Offset:       offset,
			Channel:      channel,
			Slowbit:      uint8(axis),
			ChannelFound: true,
		})
		frames[s] = pulse.NewV2Frame(s, start+offset, 200, word)
	}
	return frames
}

var deck = [pulse.NumSensors]float64{0.10, 0.11, 0.12, 0.13}

func TestBeamWord(t *testing.T) {
	info := pulse.BeamInfo{Offset: 123456 &^ 3, Channel: 9, Slowbit: 1, ChannelFound: true}
	assert.Equal(t, info, pulse.DecodeBeamWord(pulse.EncodeBeamWord(info)))

	lost := pulse.DecodeBeamWord(pulse.EncodeBeamWord(pulse.BeamInfo{Offset: 400, Channel: 3, Slowbit: 1}))
	assert.Equal(t, pulse.BeamInfo{Offset: 400}, lost)
}

func TestV2AngleRoundTrip(t *testing.T) {
	for _, axis := range []pulse.Axis{pulse.AxisX, pulse.AxisY} {
		for _, a := range []float64{-0.5, 0, 0.25} {
			offset := pulse.V2Offset(a, 3, axis)
			assert.InDelta(t, a, pulse.V2Angle(offset, 3, axis), 1e-4)
		}
	}
}

func TestV2BlockCompletion(t *testing.T) {
	p := pulse.NewV2(config.DefaultV2())
	var res pulse.Result

	x := v2Block(1000, 0, pulse.AxisX, deck)
	for i := range x {
		assert.Equal(t, pulse.NoMeasurement, p.ProcessPulse(&x[i], &res).Outcome)
	}
	for s := 0; s < pulse.NumSensors; s++ {
		assert.Equal(t, pulse.SweepValid, p.SweepState(s))
	}
	bs, axis := p.Current()
	assert.Equal(t, 0, bs)
	assert.Equal(t, pulse.AxisX, axis)
	assert.Equal(t, pulse.Result{}, res)

	// three of four pulses leave the axis open
	y := v2Block(1000, 0, pulse.AxisY, deck)
	for i := 0; i < 3; i++ {
		assert.Equal(t, pulse.NoMeasurement, p.ProcessPulse(&y[i], &res).Outcome)
	}
	assert.Equal(t, pulse.Result{}, res)

	ev := p.ProcessPulse(&y[3], &res)
	require.Equal(t, pulse.MeasurementWritten, ev.Outcome)
	assert.Equal(t, 0, ev.BaseStation)
	for s := 0; s < pulse.NumSensors; s++ {
		m := res.Sensors[s].BaseStations[0]
		assert.Equal(t, 2, m.ValidCount)
		assert.InDelta(t, deck[s], m.Angles[pulse.AxisX], angleTolerance)
		assert.InDelta(t, deck[s], m.Angles[pulse.AxisY], angleTolerance)
		assert.Zero(t, res.Sensors[s].BaseStations[1].ValidCount)
	}
	assert.Equal(t, 1, p.Status().BaseStationsSynchronized)
}

func TestV2PartialFrameIsDropped(t *testing.T) {
	p := pulse.NewV2(config.DefaultV2())
	var res pulse.Result

	x := v2Block(1000, 0, pulse.AxisX, deck)
	for i := 0; i < 3; i++ {
		p.ProcessPulse(&x[i], &res)
	}
	// the next rotation starts before sensor 3 ever reported
	next := v2Block(1000+pulse.V2Period(0), 0, pulse.AxisX, deck)
	for i := range next {
		p.ProcessPulse(&next[i], &res)
	}
	assert.Equal(t, uint64(1), p.Stats().IncompleteAxes)
	for s := 0; s < pulse.NumSensors; s++ {
		assert.Equal(t, pulse.SweepValid, p.SweepState(s))
	}
}

func TestV2ChannelDisagreement(t *testing.T) {
	p := pulse.NewV2(config.DefaultV2())
	var res pulse.Result

	x := v2Block(1000, 0, pulse.AxisX, deck)
	x[2].Channel = 1
	var ev pulse.Event
	for i := range x {
		ev = p.ProcessPulse(&x[i], &res)
	}
	assert.Equal(t, pulse.ClassificationError, ev.Outcome)
	assert.Equal(t, uint64(1), p.Stats().FrameErrors)
	for s := 0; s < pulse.NumSensors; s++ {
		assert.Equal(t, pulse.SweepError, p.SweepState(s))
	}
	assert.Equal(t, pulse.Result{}, res)

	// the workspace is ready for the next block
	y := v2Block(1000, 0, pulse.AxisY, deck)
	for i := range y {
		ev = p.ProcessPulse(&y[i], &res)
	}
	assert.Equal(t, pulse.NoMeasurement, ev.Outcome)
	assert.Equal(t, pulse.SweepValid, p.SweepState(0))
}

func TestV2UnknownChannel(t *testing.T) {
	p := pulse.NewV2(config.DefaultV2())
	var res pulse.Result

	x := v2Block(1000, 7, pulse.AxisX, deck)
	var ev pulse.Event
	for i := range x {
		ev = p.ProcessPulse(&x[i], &res)
	}
	assert.Equal(t, pulse.ClassificationError, ev.Outcome)
	assert.Equal(t, uint64(1), p.Stats().Misses)
}

func TestV2StaleBlockIsNotPaired(t *testing.T) {
	p := pulse.NewV2(config.DefaultV2())
	var res pulse.Result

	x := v2Block(1000, 0, pulse.AxisX, deck)
	y := v2Block(1000+5000, 0, pulse.AxisY, deck)
	var ev pulse.Event
	for _, f := range append(x, y...) {
		ev = p.ProcessPulse(&f, &res)
	}
	assert.Equal(t, pulse.NoMeasurement, ev.Outcome)
	assert.Equal(t, pulse.Result{}, res)
}

func TestV2Stream(t *testing.T) {
	scene := synth.DefaultScene()
	p := pulse.NewV2(config.DefaultV2())
	var res pulse.Result
	frames := synth.V2Frames(scene, synth.Options{
		Frames:      12,
		Start:       77,
		Channels:    [2]uint8{0, 1},
		HideChannel: [pulse.NumSensors]bool{false, true, false, false},
	})

	var written [pulse.NumBaseStations]int
	for i := range frames {
		ev := p.ProcessPulse(&frames[i], &res)
		require.NotEqual(t, pulse.ClassificationError, ev.Outcome)
		if ev.Outcome != pulse.MeasurementWritten {
			continue
		}
		written[ev.BaseStation]++
		require.True(t, res.Complete(ev.BaseStation))
		for s := 0; s < pulse.NumSensors; s++ {
			for axis := pulse.AxisX; axis <= pulse.AxisY; axis++ {
				assert.InDelta(t, scene.Angles[ev.BaseStation][s][axis],
					res.Sensors[s].BaseStations[ev.BaseStation].Angles[axis], angleTolerance)
			}
		}
		res.Clear(ev.BaseStation)
	}
	assert.Equal(t, [pulse.NumBaseStations]int{12, 12}, written)

	st := p.Status()
	assert.Equal(t, [2]bool{true, true}, st.Locked)
	assert.Equal(t, pulse.Synchronized, st.State)
}
