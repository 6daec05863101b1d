package quality

import (
	"math"
	"testing"

	"github.com/jrwynneiii/lhdecode/config"
	"github.com/jrwynneiii/lhdecode/pulse"
	"github.com/jrwynneiii/lhdecode/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatorConverges(t *testing.T) {
	e := NewEstimator(0.1)
	for i := 0; i < 500; i++ {
		e.Update(2.5)
	}
	assert.InDelta(t, 2.5, e.Mean, 1e-12)
	assert.InDelta(t, 0, e.Jitter(), 1e-12)
	assert.Equal(t, 500, e.N)
}

func TestEstimatorTracksSpread(t *testing.T) {
	e := NewEstimator(0.01)
	for i := 0; i < 5000; i++ {
		e.Update(1 + 0.5*math.Sin(float64(i)))
	}
	assert.InDelta(t, 1, e.Mean, 0.05)
	// a sine of amplitude a has a standard deviation of a/sqrt(2)
	assert.InDelta(t, 0.5/math.Sqrt2, e.Jitter(), 0.05)
}

// observeV2 decodes a synthetic V2 stream into tr and returns the scene.
func observeV2(t *testing.T, tr *Tracker, opts synth.Options) *synth.Scene {
	t.Helper()
	scene := synth.DefaultScene()
	p := pulse.NewV2(config.DefaultV2())
	var res pulse.Result
	for _, f := range synth.V2Frames(scene, opts) {
		ev := p.ProcessPulse(&f, &res)
		if ev.Outcome != pulse.MeasurementWritten {
			continue
		}
		p.ApplyCalibration(&res, ev.BaseStation)
		var sensors [pulse.NumSensors]pulse.BaseStationMeasurement
		for s := range sensors {
			sensors[s] = res.Sensors[s].BaseStations[ev.BaseStation]
		}
		tr.Observe(ev.BaseStation, &sensors)
		res.Clear(ev.BaseStation)
	}
	return scene
}

func TestTrackerSummary(t *testing.T) {
	tr := New(DefaultAlpha)
	scene := observeV2(t, tr, synth.Options{
		Frames:   6,
		Channels: [2]uint8{0, 1},
		Disabled: [2]bool{false, true},
	})

	summary := tr.Summary()
	require.Len(t, summary, pulse.NumSensors*pulse.NumSweeps)
	for i, s := range summary {
		assert.Equal(t, 0, s.BaseStation)
		assert.Equal(t, i/pulse.NumSweeps, s.Sensor)
		assert.Equal(t, pulse.Axis(i%pulse.NumSweeps), s.Axis)
		assert.Equal(t, 6, s.Samples)
		assert.InDelta(t, scene.Angles[0][s.Sensor][s.Axis], s.Mean, 1e-4)
		assert.InDelta(t, 0, s.StdDev, 1e-9)
		assert.InDelta(t, s.Min, s.Max, 1e-12)
	}

	jitter := tr.Jitter()
	assert.Zero(t, jitter[1])
	assert.InDelta(t, 0, jitter[0][2][1], 1e-9)
	assert.Equal(t, 6, tr.Estimators[0][3][0].N)
	assert.Zero(t, tr.Estimators[1][0][0].N)
}

func TestTrackerBoundsWindow(t *testing.T) {
	tr := New(DefaultAlpha)
	observeV2(t, tr, synth.Options{Frames: maxSamples + 10, Channels: [2]uint8{0, 1}, Disabled: [2]bool{true, false}})

	for _, s := range tr.Summary() {
		assert.Equal(t, maxSamples, s.Samples)
	}
	assert.Equal(t, maxSamples+10, tr.Estimators[1][0][0].N)
}
