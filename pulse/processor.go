package pulse

import (
	"fmt"
	"strings"

	"github.com/jrwynneiii/lhdecode/config"
)

// Generation is the base station protocol a Processor decodes.
type Generation int

const (
	GenerationV1 Generation = iota + 1
	GenerationV2
)

func ParseGeneration(s string) (Generation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v1", "1":
		return GenerationV1, nil
	case "v2", "2":
		return GenerationV2, nil
	}
	return 0, fmt.Errorf("unknown base station generation %q", s)
}

func (g Generation) String() string {
	switch g {
	case GenerationV1:
		return "v1"
	case GenerationV2:
		return "v2"
	}
	return "unknown"
}

// Outcome is the result of feeding one pulse to a Processor.
type Outcome int

const (
	NoMeasurement Outcome = iota
	MeasurementWritten
	ClassificationError
)

func (o Outcome) String() string {
	switch o {
	case MeasurementWritten:
		return "measurement"
	case ClassificationError:
		return "classification error"
	}
	return "none"
}

// Event tells the caller what a pulse produced. BaseStation and Axis are only
// meaningful when a measurement was written.
type Event struct {
	Outcome     Outcome
	BaseStation int
	Axis        Axis
}

func merge(a, b Event) Event {
	if a.Outcome != NoMeasurement {
		return a
	}
	return b
}

type SweepState int

const (
	SweepWaiting SweepState = iota
	SweepValid
	SweepError
)

type sweepSlot struct {
	timestamp uint32
	state     SweepState
}

// BitSink receives the OOTX data bits carried by V1 sync pulses. ProcessBit
// returns true when the bit completed a payload.
type BitSink interface {
	ProcessBit(bit bool) bool
}

// Stats are diagnostic counters, they never influence decoding.
type Stats struct {
	Pulses         uint64
	Misses         uint64
	SyncClusters   uint64
	FrameErrors    uint64
	IncompleteAxes uint64
	Measurements   [NumBaseStations]uint64
	LockLosses     [NumBaseStations]uint64
}

// SyncState is the coarse phase of the synchronization state machine.
type SyncState int

const (
	Unsynchronized SyncState = iota
	AcquiringSync
	Synchronized
)

func (s SyncState) String() string {
	switch s {
	case AcquiringSync:
		return "acquiring"
	case Synchronized:
		return "synchronized"
	}
	return "unsynchronized"
}

type Status struct {
	Generation               Generation
	State                    SyncState
	Synchronized             bool
	BaseStationsSynchronized int
	Locked                   [NumBaseStations]bool
	FrameWidth               [NumBaseStations][NumSweeps]float64
}

// decoder is implemented by exactly the two protocol generations.
type decoder interface {
	processPulse(p *Processor, f *Frame, angles *Result) Event
	status() Status
}

// Processor turns pulses into sweep angles for one sensor deck. It is not
// safe for concurrent use.
type Processor struct {
	generation Generation
	decoder    decoder

	// Base station and axis of the current frame
	currentBaseStation int
	currentAxis        Axis

	sweeps          [NumSensors]sweepSlot
	sweepDataStored bool

	ootx        [NumBaseStations]BitSink
	calibration [NumBaseStations]Calibration

	stats Stats
}

// New builds a Processor for the generation named in conf.
func New(conf config.Conf) (*Processor, error) {
	gen, err := ParseGeneration(conf.Processor.Generation)
	if err != nil {
		return nil, err
	}
	if gen == GenerationV2 {
		return NewV2(conf.V2), nil
	}
	return NewV1(conf.V1), nil
}

func NewV1(conf config.V1Conf) *Processor {
	return &Processor{generation: GenerationV1, decoder: newV1Decoder(conf)}
}

func NewV2(conf config.V2Conf) *Processor {
	return &Processor{generation: GenerationV2, decoder: newV2Decoder(conf)}
}

// ProcessPulse feeds one pulse through the state machine, writing into angles
// when an axis or a base station completes.
func (p *Processor) ProcessPulse(f *Frame, angles *Result) Event {
	p.stats.Pulses++
	if f.Sensor < 0 || f.Sensor >= NumSensors {
		p.stats.Misses++
		return Event{Outcome: ClassificationError}
	}
	f.Timestamp &= TimestampMax
	return p.decoder.processPulse(p, f, angles)
}

func (p *Processor) Generation() Generation {
	return p.generation
}

func (p *Processor) Stats() Stats {
	return p.stats
}

func (p *Processor) Status() Status {
	st := p.decoder.status()
	st.Generation = p.generation
	return st
}

// Current returns the base station and axis of the frame being decoded.
func (p *Processor) Current() (int, Axis) {
	return p.currentBaseStation, p.currentAxis
}

func (p *Processor) SweepState(sensor int) SweepState {
	return p.sweeps[sensor].state
}

func (p *Processor) SetOOTXSink(bs int, sink BitSink) {
	p.ootx[bs] = sink
}

// SetCalibration installs the correction used by ApplyCalibration for bs.
func (p *Processor) SetCalibration(bs int, cal Calibration) {
	p.calibration[bs] = cal
}

func (p *Processor) resetSweeps() {
	for i := range p.sweeps {
		p.sweeps[i] = sweepSlot{}
	}
	p.sweepDataStored = false
}
