// Package quality tracks how steady the decoded angles are.
package quality

import (
	"math"

	"github.com/jrwynneiii/lhdecode/pulse"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultAlpha = 0.05
	maxSamples   = 1024
)

// Estimator is an exponentially smoothed mean and variance.
type Estimator struct {
	Alpha float64
	Beta  float64
	Mean  float64
	Var   float64
	N     int
}

func NewEstimator(alpha float64) Estimator {
	return Estimator{Alpha: alpha, Beta: 1.0 - alpha}
}

func (e *Estimator) Update(x float64) {
	if e.N == 0 {
		e.Mean = x
		e.N++
		return
	}
	d := x - e.Mean
	e.Mean += e.Alpha * d
	e.Var = e.Beta * (e.Var + e.Alpha*d*d)
	e.N++
}

// Jitter is the smoothed standard deviation.
func (e *Estimator) Jitter() float64 {
	return math.Sqrt(e.Var)
}

type key struct {
	bs, sensor int
	axis       pulse.Axis
}

type Summary struct {
	BaseStation int
	Sensor      int
	Axis        pulse.Axis
	Samples     int
	Mean        float64
	StdDev      float64
	Min         float64
	Max         float64
}

// Tracker keeps one estimator and a bounded sample window per base station,
// sensor and axis. It is not safe for concurrent use.
type Tracker struct {
	Estimators [pulse.NumBaseStations][pulse.NumSensors][pulse.NumSweeps]Estimator

	samples map[key][]float64
}

func New(alpha float64) *Tracker {
	t := &Tracker{samples: make(map[key][]float64)}
	for bs := range t.Estimators {
		for s := range t.Estimators[bs] {
			for axis := range t.Estimators[bs][s] {
				t.Estimators[bs][s][axis] = NewEstimator(alpha)
			}
		}
	}
	return t
}

// Observe records the corrected angles of one published measurement.
func (t *Tracker) Observe(bs int, sensors *[pulse.NumSensors]pulse.BaseStationMeasurement) {
	for s := range sensors {
		m := &sensors[s]
		for axis := pulse.AxisX; axis <= pulse.AxisY; axis++ {
			if !m.HasAxis(axis) {
				continue
			}
			x := m.CorrectedAngles[axis]
			t.Estimators[bs][s][axis].Update(x)

			k := key{bs, s, axis}
			window := append(t.samples[k], x)
			if len(window) > maxSamples {
				window = window[len(window)-maxSamples:]
			}
			t.samples[k] = window
		}
	}
}

// Jitter returns the smoothed standard deviation of every tracked angle.
func (t *Tracker) Jitter() [pulse.NumBaseStations][pulse.NumSensors][pulse.NumSweeps]float64 {
	var out [pulse.NumBaseStations][pulse.NumSensors][pulse.NumSweeps]float64
	for bs := range t.Estimators {
		for s := range t.Estimators[bs] {
			for axis := range t.Estimators[bs][s] {
				out[bs][s][axis] = t.Estimators[bs][s][axis].Jitter()
			}
		}
	}
	return out
}

// Summary computes statistics over the sample window of every angle that was
// seen at least once, ordered by base station, sensor and axis.
func (t *Tracker) Summary() []Summary {
	var out []Summary
	for bs := 0; bs < pulse.NumBaseStations; bs++ {
		for s := 0; s < pulse.NumSensors; s++ {
			for axis := pulse.AxisX; axis <= pulse.AxisY; axis++ {
				window := t.samples[key{bs, s, axis}]
				if len(window) == 0 {
					continue
				}
				mean, std := stat.MeanStdDev(window, nil)
				if len(window) == 1 {
					std = 0
				}
				lo, hi := window[0], window[0]
				for _, x := range window[1:] {
					lo = math.Min(lo, x)
					hi = math.Max(hi, x)
				}
				out = append(out, Summary{
					BaseStation: bs,
					Sensor:      s,
					Axis:        axis,
					Samples:     len(window),
					Mean:        mean,
					StdDev:      std,
					Min:         lo,
					Max:         hi,
				})
			}
		}
	}
	return out
}
