// Package decode runs a pulse processor over a stream of captured frames,
// feeds the OOTX channel of each base station into its calibration and
// publishes finished measurements.
package decode

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/lhdecode/calibration"
	"github.com/jrwynneiii/lhdecode/config"
	"github.com/jrwynneiii/lhdecode/ootx"
	"github.com/jrwynneiii/lhdecode/pulse"
	"github.com/jrwynneiii/lhdecode/quality"
)

// Measurement is one published set of angles from one base station.
type Measurement struct {
	BaseStation int
	Sequence    uint64
	Sensors     [pulse.NumSensors]pulse.BaseStationMeasurement
}

type OOTXStatus struct {
	Frames      int
	CRCErrors   int
	FrameErrors int
	Payload     *ootx.Payload
}

// Snapshot is a consistent copy of the decoder state for other goroutines.
type Snapshot struct {
	Status               pulse.Status
	Stats                pulse.Stats
	ClassificationErrors uint64
	Published            [pulse.NumBaseStations]uint64
	Last                 [pulse.NumBaseStations]Measurement
	OOTX                 [pulse.NumBaseStations]OOTXStatus
	Jitter               [pulse.NumBaseStations][pulse.NumSensors][pulse.NumSweeps]float64
}

type Decoder struct {
	FramesInput chan pulse.Frame
	// Publish, when set, is called from Run for every measurement.
	Publish func(Measurement)

	mu                   sync.RWMutex
	processor            *pulse.Processor
	result               pulse.Result
	ootx                 [pulse.NumBaseStations]*ootx.Decoder
	payloads             [pulse.NumBaseStations]*ootx.Payload
	calConf              config.CalibrationConf
	quality              *quality.Tracker
	classificationErrors uint64
	published            [pulse.NumBaseStations]uint64
	last                 [pulse.NumBaseStations]Measurement
}

// ootxSink forwards sync data bits of one base station and installs its
// calibration once a payload checks out.
type ootxSink struct {
	d  *Decoder
	bs int
}

func (s ootxSink) ProcessBit(bit bool) bool {
	dec := s.d.ootx[s.bs]
	if !dec.ProcessBit(bit) {
		return false
	}
	payload, err := ootx.ParseV1(dec.Payload())
	if err != nil {
		log.Warnf("[ootx] Base station %d sent an unusable payload: %v", s.bs, err)
		return true
	}
	if prev := s.d.payloads[s.bs]; prev == nil || prev.ID != payload.ID {
		log.Infof("[ootx] Base station %d is %08x, firmware %d, calibration loaded", s.bs, payload.ID, payload.FirmwareVersion)
	}
	s.d.payloads[s.bs] = payload
	s.d.processor.SetCalibration(s.bs, calibration.FromPayload(payload, s.d.calConf))
	return true
}

func New(conf config.Conf, bufsize uint) (*Decoder, error) {
	p, err := pulse.New(conf)
	if err != nil {
		return nil, err
	}
	d := &Decoder{
		FramesInput: make(chan pulse.Frame, bufsize),
		processor:   p,
		calConf:     conf.Calibration,
		quality:     quality.New(quality.DefaultAlpha),
	}
	if p.Generation() == pulse.GenerationV1 {
		for bs := range d.ootx {
			d.ootx[bs] = ootx.NewDecoder()
			p.SetOOTXSink(bs, ootxSink{d: d, bs: bs})
		}
	}
	log.Debugf("Decoder ready for %s base stations", p.Generation())
	return d, nil
}

// Process feeds one frame and returns the measurement it finished, if any.
func (d *Decoder) Process(f pulse.Frame) (Measurement, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ev := d.processor.ProcessPulse(&f, &d.result)
	switch ev.Outcome {
	case pulse.MeasurementWritten:
		// V1 writes one axis per frame, publish after the second.
		if d.result.Complete(ev.BaseStation) || ev.Axis == pulse.AxisY {
			return d.publish(ev.BaseStation), true
		}
	case pulse.ClassificationError:
		d.classificationErrors++
		log.Debugf("[decode] Classification error on sensor %d", f.Sensor)
	}
	return Measurement{}, false
}

func (d *Decoder) publish(bs int) Measurement {
	d.processor.ApplyCalibration(&d.result, bs)
	d.published[bs]++
	m := Measurement{BaseStation: bs, Sequence: d.published[bs]}
	for s := range d.result.Sensors {
		m.Sensors[s] = d.result.Sensors[s].BaseStations[bs]
	}
	d.result.Clear(bs)
	d.quality.Observe(bs, &m.Sensors)
	d.last[bs] = m
	return m
}

// Run consumes FramesInput until it is closed or ctx is cancelled.
func (d *Decoder) Run(ctx context.Context) {
	for {
		select {
		case f, ok := <-d.FramesInput:
			if !ok {
				return
			}
			if m, ok := d.Process(f); ok && d.Publish != nil {
				d.Publish(m)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (d *Decoder) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snap := Snapshot{
		Status:               d.processor.Status(),
		Stats:                d.processor.Stats(),
		ClassificationErrors: d.classificationErrors,
		Published:            d.published,
		Last:                 d.last,
		Jitter:               d.quality.Jitter(),
	}
	for bs, dec := range d.ootx {
		if dec == nil {
			continue
		}
		snap.OOTX[bs] = OOTXStatus{
			Frames:      dec.Frames,
			CRCErrors:   dec.CRCErrors,
			FrameErrors: dec.FrameErrors,
			Payload:     d.payloads[bs],
		}
	}
	return snap
}

// Summary returns angle statistics over the recent measurements.
func (d *Decoder) Summary() []quality.Summary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.quality.Summary()
}
