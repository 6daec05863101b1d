package pulse

import (
	"math"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/lhdecode/config"
)

// Rotor periods per channel, in 48 MHz ticks.
var v2Periods = [16]uint32{
	959000, 957000, 953000, 949000, 947000, 943000, 941000, 939000,
	937000, 929000, 919000, 911000, 907000, 901000, 893000, 887000,
}

// V2Period returns the rotor period of channel in 24 MHz capture ticks.
func V2Period(channel uint8) uint32 {
	return v2Periods[channel&0x0f] / 2
}

// V2Angle maps an offset from the start of the rotation to a sweep angle. The
// two beams are tilted a third of a turn apart.
func V2Angle(offset uint32, channel uint8, axis Axis) float64 {
	a := float64(offset)*2*math.Pi/float64(V2Period(channel)) - math.Pi
	if axis == AxisX {
		return a + math.Pi/3
	}
	return a - math.Pi/3
}

// V2Offset is the inverse of V2Angle.
func V2Offset(angle float64, channel uint8, axis Axis) uint32 {
	a := angle + math.Pi
	if axis == AxisX {
		a -= math.Pi / 3
	} else {
		a += math.Pi / 3
	}
	return uint32(math.Round(a / (2 * math.Pi) * float64(V2Period(channel))))
}

type v2Pulse struct {
	timestamp    uint32
	offset       uint32
	channel      uint8
	slowbit      uint8
	channelFound bool // channel and slowbit are valid
	isSet        bool
}

type v2Workspace struct {
	sensors         [NumSensors]v2Pulse
	latestTimestamp uint32
	count           int
}

func (w *v2Workspace) clear() {
	*w = v2Workspace{}
}

type v2Block struct {
	offset    [NumSensors]uint32
	timestamp uint32 // Timestamp of sensor 0
	channel   uint8
	slowbit   uint8
	filled    bool
}

// rotationStart is when the rotor passed zero for this block.
func (b *v2Block) rotationStart() uint32 {
	return Diff(b.timestamp, b.offset[0])
}

type v2Decoder struct {
	conf      config.V2Conf
	workspace v2Workspace
	blocks    [NumBaseStations][NumSweeps]v2Block
	seen      [NumBaseStations]bool
}

func newV2Decoder(conf config.V2Conf) *v2Decoder {
	return &v2Decoder{conf: conf}
}

func (d *v2Decoder) processPulse(p *Processor, f *Frame, angles *Result) Event {
	w := &d.workspace
	if w.count > 0 && (!within(f.Timestamp, w.latestTimestamp, d.conf.SensorWindow) || w.sensors[f.Sensor].isSet) {
		d.dropPartial(p)
	}

	w.sensors[f.Sensor] = v2Pulse{
		timestamp:    f.Timestamp,
		offset:       f.Offset,
		channel:      f.Channel,
		slowbit:      f.Slowbit & 0x01,
		channelFound: f.ChannelFound,
		isSet:        true,
	}
	if w.count == 0 || signedDiff(f.Timestamp, w.latestTimestamp) > 0 {
		w.latestTimestamp = f.Timestamp
	}
	w.count++
	if w.count < NumSensors {
		return Event{}
	}
	return d.resolve(p, angles)
}

// dropPartial discards a frame that never saw all sensors.
func (d *v2Decoder) dropPartial(p *Processor) {
	p.stats.IncompleteAxes++
	for i := range d.workspace.sensors {
		if d.workspace.sensors[i].isSet {
			p.sweeps[i].state = SweepError
		} else {
			p.sweeps[i].state = SweepWaiting
		}
	}
	p.sweepDataStored = false
	d.workspace.clear()
}

func (d *v2Decoder) reject(p *Processor) Event {
	p.stats.FrameErrors++
	for i := range p.sweeps {
		p.sweeps[i].state = SweepError
	}
	p.sweepDataStored = false
	d.workspace.clear()
	return Event{Outcome: ClassificationError}
}

// resolve turns a full workspace into a sweep block and, once both axes of a
// base station are in, into angles.
func (d *v2Decoder) resolve(p *Processor, angles *Result) Event {
	w := &d.workspace
	var channel, slowbit uint8
	found := false
	for i := range w.sensors {
		s := &w.sensors[i]
		if !s.channelFound {
			continue
		}
		if !found {
			channel, slowbit, found = s.channel, s.slowbit, true
			continue
		}
		if s.channel != channel || s.slowbit != slowbit {
			return d.reject(p)
		}
	}
	if !found {
		return d.reject(p)
	}
	bs, ok := d.baseStation(channel)
	if !ok {
		p.stats.Misses++
		return d.reject(p)
	}
	axis := Axis(slowbit)

	block := &d.blocks[bs][axis]
	block.timestamp = w.sensors[0].timestamp
	block.channel = channel
	block.slowbit = slowbit
	block.filled = true
	for i := range w.sensors {
		block.offset[i] = w.sensors[i].offset
		p.sweeps[i] = sweepSlot{timestamp: w.sensors[i].timestamp, state: SweepValid}
	}
	p.sweepDataStored = true
	p.currentBaseStation = bs
	p.currentAxis = axis
	w.clear()

	other := &d.blocks[bs][1-axis]
	if !other.filled {
		return Event{}
	}
	skew := Diff(block.rotationStart(), other.rotationStart())
	if back := Diff(other.rotationStart(), block.rotationStart()); back < skew {
		skew = back
	}
	if skew > d.conf.MaxBlockSkew {
		log.Debugf("[v2] Dropping stale sweep block for base station %d, skew %d", bs, skew)
		other.filled = false
		d.seen[bs] = false
		return Event{}
	}

	x, y := &d.blocks[bs][AxisX], &d.blocks[bs][AxisY]
	for s := range angles.Sensors {
		m := &angles.Sensors[s].BaseStations[bs]
		m.set(AxisX, V2Angle(x.offset[s], channel, AxisX))
		m.set(AxisY, V2Angle(y.offset[s], channel, AxisY))
	}
	x.filled, y.filled = false, false
	if !d.seen[bs] {
		log.Infof("[v2] Base station %d (channel %d) decoded", bs, channel+1)
	}
	d.seen[bs] = true
	p.stats.Measurements[bs]++
	return Event{Outcome: MeasurementWritten, BaseStation: bs, Axis: axis}
}

func (d *v2Decoder) baseStation(channel uint8) (int, bool) {
	switch channel {
	case d.conf.ChannelBS0:
		return 0, true
	case d.conf.ChannelBS1:
		return 1, true
	}
	return 0, false
}

func (d *v2Decoder) status() Status {
	var st Status
	for bs := range d.seen {
		st.Locked[bs] = d.seen[bs]
		if d.seen[bs] {
			st.BaseStationsSynchronized++
		}
	}
	st.Synchronized = st.BaseStationsSynchronized > 0
	switch {
	case st.Synchronized:
		st.State = Synchronized
	case d.workspace.count > 0 || d.blocks[0][0].filled || d.blocks[0][1].filled || d.blocks[1][0].filled || d.blocks[1][1].filled:
		st.State = AcquiringSync
	}
	return st
}
