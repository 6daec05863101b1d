// Package calibration holds the lens and mounting model of a V1 base station
// and the correction it applies to raw sweep angles.
package calibration

import (
	"math"

	"github.com/jrwynneiii/lhdecode/config"
	"github.com/jrwynneiii/lhdecode/ootx"
	"github.com/jrwynneiii/lhdecode/pulse"
)

const (
	maxIterations = 10
	tolerance     = 1e-9
)

// Sweep is the factory calibration of one rotor.
type Sweep struct {
	Phase    float64
	Tilt     float64
	Curve    float64
	GibPhase float64
	GibMag   float64
}

// distort maps an ideal angle to the angle the rotor actually reports.
func (s *Sweep) distort(ideal float64) float64 {
	return ideal + s.Phase + s.Tilt*ideal + s.Curve*ideal*ideal + s.GibMag*math.Sin(ideal+s.GibPhase)
}

// Model implements pulse.Calibration. It is never mutated once built.
type Model struct {
	Sweeps     [pulse.NumSweeps]Sweep
	SensorTrim [pulse.NumSensors][pulse.NumSweeps]float64
}

// FromPayload builds a model from a decoded OOTX payload.
func FromPayload(p *ootx.Payload, conf config.CalibrationConf) *Model {
	m := &Model{SensorTrim: conf.SensorTrim}
	for axis := range m.Sweeps {
		m.Sweeps[axis] = Sweep{
			Phase:    float64(p.Phase[axis]),
			Tilt:     float64(p.Tilt[axis]),
			Curve:    float64(p.Curve[axis]),
			GibPhase: float64(p.GibPhase[axis]),
			GibMag:   float64(p.GibMag[axis]),
		}
	}
	return m
}

// Distort is the forward model, used to synthesize measurements.
func (m *Model) Distort(ideal float64, sensor int, axis pulse.Axis) float64 {
	return m.Sweeps[axis].distort(ideal - m.SensorTrim[sensor][axis])
}

// Correct inverts the rotor model by fixed point iteration and adds the
// sensor's mounting trim.
func (m *Model) Correct(raw float64, sensor int, axis pulse.Axis) float64 {
	s := &m.Sweeps[axis]
	ideal := raw
	for i := 0; i < maxIterations; i++ {
		next := ideal - (s.distort(ideal) - raw)
		if math.Abs(next-ideal) < tolerance {
			ideal = next
			break
		}
		ideal = next
	}
	return ideal + m.SensorTrim[sensor][axis]
}
