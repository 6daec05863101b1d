package metrics

import (
	"testing"

	"github.com/jrwynneiii/lhdecode/decode"
	"github.com/jrwynneiii/lhdecode/pulse"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	snap := decode.Snapshot{
		Status: pulse.Status{
			Locked:     [2]bool{true, false},
			FrameWidth: [2][2]float64{{400010, 399990}, {400000, 400000}},
		},
		Stats: pulse.Stats{
			Pulses:       1200,
			Misses:       30,
			Measurements: [2]uint64{40, 38},
			LockLosses:   [2]uint64{0, 2},
		},
		ClassificationErrors: 1,
		Published:            [2]uint64{20, 19},
	}
	snap.Last[0].Sensors[1].ValidCount = 2
	snap.Last[0].Sensors[1].CorrectedAngles = [2]float64{0.25, -0.125}
	snap.Jitter[0][1][0] = 1e-5
	m.Update(snap)

	assert.Equal(t, 1200.0, testutil.ToFloat64(m.pulses))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.classificationErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.locked.WithLabelValues("0")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.locked.WithLabelValues("1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.lockLosses.WithLabelValues("1")))
	assert.Equal(t, 19.0, testutil.ToFloat64(m.published.WithLabelValues("1")))
	assert.Equal(t, 399990.0, testutil.ToFloat64(m.frameWidth.WithLabelValues("0", "y")))
	assert.Equal(t, -0.125, testutil.ToFloat64(m.angle.WithLabelValues("0", "1", "y")))
	assert.Equal(t, 1e-5, testutil.ToFloat64(m.jitter.WithLabelValues("0", "1", "x")))

	// only sensors that reported get an angle series
	assert.Equal(t, 2, testutil.CollectAndCount(m.angle))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestUpdateNil(t *testing.T) {
	var m *Metrics
	m.Update(decode.Snapshot{})
}
