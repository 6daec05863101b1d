package pulse

// BaseStationMeasurement holds the angles one sensor saw from one base station.
// Only axes reported by HasAxis carry data.
type BaseStationMeasurement struct {
	Angles          [NumSweeps]float64
	CorrectedAngles [NumSweeps]float64
	ValidCount      int
	axes            uint8
}

func (m *BaseStationMeasurement) HasAxis(axis Axis) bool {
	return m.axes&(1<<axis) != 0
}

func (m *BaseStationMeasurement) set(axis Axis, angle float64) {
	m.Angles[axis] = angle
	bit := uint8(1) << axis
	if m.axes&bit == 0 {
		m.axes |= bit
		m.ValidCount++
	}
}

type SensorMeasurement struct {
	BaseStations [NumBaseStations]BaseStationMeasurement
}

// Result is owned by the caller and must be cleared between measurement cycles.
type Result struct {
	Sensors [NumSensors]SensorMeasurement
}

// Clear zeroes every sensor's data for base station bs.
func (r *Result) Clear(bs int) {
	if bs < 0 || bs >= NumBaseStations {
		return
	}
	for s := range r.Sensors {
		r.Sensors[s].BaseStations[bs] = BaseStationMeasurement{}
	}
}

// Complete reports whether every sensor has both axes for bs.
func (r *Result) Complete(bs int) bool {
	for s := range r.Sensors {
		if r.Sensors[s].BaseStations[bs].ValidCount < NumSweeps {
			return false
		}
	}
	return true
}

// Calibration corrects a raw angle for lens and mounting errors.
type Calibration interface {
	Correct(raw float64, sensor int, axis Axis) float64
}

// ApplyCalibration fills the corrected angles of every valid axis of bs.
// Without a calibration slot the raw angle is copied through.
func (p *Processor) ApplyCalibration(angles *Result, bs int) {
	if bs < 0 || bs >= NumBaseStations {
		return
	}
	cal := p.calibration[bs]
	for s := range angles.Sensors {
		m := &angles.Sensors[s].BaseStations[bs]
		if m.ValidCount == 0 {
			continue
		}
		for axis := AxisX; axis <= AxisY; axis++ {
			if !m.HasAxis(axis) {
				continue
			}
			if cal == nil {
				m.CorrectedAngles[axis] = m.Angles[axis]
				continue
			}
			m.CorrectedAngles[axis] = cal.Correct(m.Angles[axis], s, axis)
		}
	}
}
