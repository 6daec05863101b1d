package pulse

import (
	"math"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/lhdecode/config"
	"gonum.org/v1/gonum/stat"
)

// V1 timing, in 24 MHz ticks.
const (
	V1FrameLength       = 200000 // 8.333 ms
	V1SyncSeparation    = 9600   // sync1 follows sync0 by 400 us
	V1NominalFrameWidth = 2 * V1FrameLength

	// Sync pulses are 62.5 us plus 10.4 us per code step. The base sits half
	// a step low so integer division lands mid band.
	V1SyncBaseWidth = 1375
	V1SyncStepWidth = 250
	V1SyncMaxWidth  = V1SyncBaseWidth + 8*V1SyncStepWidth
	V1SweepMaxWidth = 512

	v1ScaleToAngle      = 2 * math.Pi
	v1OffsetToCenter    = math.Pi / 2
	v1FrameWidthSamples = 4
	v1HistoryLookback   = 3
)

// V1SyncCode is the 3 bit word a V1 sync pulse encodes in its width.
type V1SyncCode uint8

func NewV1SyncCode(axis Axis, data, skip bool) V1SyncCode {
	code := V1SyncCode(axis & 1)
	if data {
		code |= 0x02
	}
	if skip {
		code |= 0x04
	}
	return code
}

func (c V1SyncCode) Axis() Axis { return Axis(c & 0x01) }
func (c V1SyncCode) Data() bool { return c&0x02 != 0 }
func (c V1SyncCode) Skip() bool { return c&0x04 != 0 }

// V1SyncWidth is the nominal pulse width for code.
func V1SyncWidth(code V1SyncCode) uint16 {
	return V1SyncBaseWidth + V1SyncStepWidth/2 + uint16(code&0x07)*V1SyncStepWidth
}

func isV1Sync(width uint16) bool {
	return width >= V1SyncBaseWidth && width < V1SyncMaxWidth
}

func v1SyncCodeOf(width uint32) V1SyncCode {
	return V1SyncCode((width-V1SyncBaseWidth)/V1SyncStepWidth) & 0x07
}

// V1Angle converts the delay of a sweep behind its sync into an angle.
func V1Angle(delta uint32, frameWidth float64) float64 {
	return float64(delta)/frameWidth*v1ScaleToAngle - v1OffsetToCenter
}

// syncCluster averages the sync pulses the sensors see within a short window
// into one refined timestamp. begin and close bracket the acquisition phase.
type syncCluster struct {
	active         bool
	first          uint32
	currentSyncSum int64
	widthSum       uint64
	nSyncPulses    int
}

func (c *syncCluster) begin(ts uint32, width uint16) {
	*c = syncCluster{active: true, first: ts, widthSum: uint64(width), nSyncPulses: 1}
}

func (c *syncCluster) add(ts uint32, width uint16) {
	c.currentSyncSum += int64(signedDiff(ts, c.first))
	c.widthSum += uint64(width)
	c.nSyncPulses++
}

func (c *syncCluster) close() (uint32, uint32) {
	mean := c.currentSyncSum / int64(c.nSyncPulses)
	ts := uint32(int64(c.first)+mean) & TimestampMax
	width := uint32(c.widthSum / uint64(c.nSyncPulses))
	c.reset()
	return ts, width
}

func (c *syncCluster) reset() {
	*c = syncCluster{}
}

type stationLock struct {
	locked   bool
	run      int
	seen     bool
	lastSync uint32

	axisSeen [NumSweeps]bool
	axisSync [NumSweeps]uint32
	widths   [NumSweeps][v1FrameWidthSamples]float64
	nWidths  [NumSweeps]int
	widthIdx [NumSweeps]int
}

type v1Decoder struct {
	conf config.V1Conf

	history [NumSensors]History
	cluster syncCluster

	synchronized                  bool
	basestationsSynchronizedCount int
	stations                      [NumBaseStations]stationLock
	unidentified                  int

	haveReference     bool
	lastSync          uint32 // Last sync seen
	currentSync       uint32 // Sync used for sweep phase measurement
	currentSync0      uint32 // Sync0 of the current frame
	currentSync0Width uint32
	currentSync1Width uint32

	currentSync0X uint32
	currentSync0Y uint32
	currentSync1X uint32
	currentSync1Y uint32

	frameWidth [NumBaseStations][NumSweeps]float64

	frameOpen bool
	sync1Seen bool
	sweeper   int // -1 until a sync without the skip bit claims the frame
	sweepAxis Axis
}

func newV1Decoder(conf config.V1Conf) *v1Decoder {
	d := &v1Decoder{conf: conf, sweeper: -1}
	for bs := range d.frameWidth {
		for axis := range d.frameWidth[bs] {
			d.frameWidth[bs][axis] = V1NominalFrameWidth
		}
	}
	return d
}

func (d *v1Decoder) processPulse(p *Processor, f *Frame, angles *Result) Event {
	ts := f.Timestamp
	d.history[f.Sensor].Push(HistoryEntry{Timestamp: ts, Width: f.Width})

	var ev Event
	if d.sweepWindowExpired(p, ts) {
		ev = d.closeFrame(p, angles)
	}
	if d.cluster.active && !within(ts, d.cluster.first, d.conf.ClusterWindow) {
		ev = merge(ev, d.handleSync(p, angles))
	}
	d.checkLockLoss(p, ts)

	switch {
	case isV1Sync(f.Width):
		if d.cluster.active {
			d.cluster.add(ts, f.Width)
		} else {
			d.cluster.begin(ts, f.Width)
		}
	case f.Width < V1SweepMaxWidth && d.acceptsSweep(p, ts):
		ev = merge(ev, d.storeSweep(p, f.Sensor, ts, angles))
	default:
		p.stats.Misses++
	}
	return ev
}

func (d *v1Decoder) sweepWindowExpired(p *Processor, ts uint32) bool {
	if !d.frameOpen || d.sweeper < 0 || p.sweepDataStored {
		return false
	}
	delta := Diff(ts, d.currentSync0)
	return delta > d.conf.SweepWindowEnd && delta < 2*V1FrameLength
}

func (d *v1Decoder) acceptsSweep(p *Processor, ts uint32) bool {
	if !d.synchronized || !d.frameOpen || d.sweeper < 0 || p.sweepDataStored {
		return false
	}
	if !d.stations[d.sweeper].locked {
		return false
	}
	delta := Diff(ts, d.currentSync0)
	return delta >= d.conf.SweepWindowStart && delta <= d.conf.SweepWindowEnd
}

func (d *v1Decoder) storeSweep(p *Processor, sensor int, ts uint32, angles *Result) Event {
	slot := &p.sweeps[sensor]
	switch slot.state {
	case SweepWaiting:
		slot.timestamp = ts
		slot.state = SweepValid
	case SweepValid:
		// Two sweeps on one sensor in one frame, neither can be trusted.
		slot.state = SweepError
		p.stats.Misses++
	}
	for i := range p.sweeps {
		if p.sweeps[i].state != SweepValid {
			return Event{}
		}
	}
	return d.storeAngles(p, angles)
}

// storeAngles writes the valid sweeps of the current frame into angles.
func (d *v1Decoder) storeAngles(p *Processor, angles *Result) Event {
	bs, axis := d.sweeper, d.sweepAxis
	width := d.frameWidth[bs][axis]
	written := 0
	for s := range p.sweeps {
		if p.sweeps[s].state != SweepValid {
			continue
		}
		delta := Diff(p.sweeps[s].timestamp, d.currentSync)
		angles.Sensors[s].BaseStations[bs].set(axis, V1Angle(delta, width))
		written++
	}
	p.sweepDataStored = true
	if written == 0 {
		return Event{}
	}
	if written < NumSensors {
		p.stats.IncompleteAxes++
	}
	p.stats.Measurements[bs]++
	return Event{Outcome: MeasurementWritten, BaseStation: bs, Axis: axis}
}

func (d *v1Decoder) closeFrame(p *Processor, angles *Result) Event {
	if !d.frameOpen || d.sweeper < 0 || p.sweepDataStored || !d.stations[d.sweeper].locked {
		return Event{}
	}
	return d.storeAngles(p, angles)
}

func (d *v1Decoder) openFrame(p *Processor, sync0 uint32) {
	d.haveReference = true
	d.currentSync0 = sync0
	d.frameOpen = true
	d.sync1Seen = false
	d.sweeper = -1
	p.resetSweeps()
}

// handleSync closes the pending sync cluster and advances the state machine.
func (d *v1Decoder) handleSync(p *Processor, angles *Result) Event {
	ts, width := d.cluster.close()
	p.stats.SyncClusters++
	d.lastSync = ts
	code := v1SyncCodeOf(width)

	d.checkLockLoss(p, ts)

	bs, identified := d.identify(ts)
	if !identified {
		if d.basestationsSynchronizedCount > 0 {
			p.stats.Misses++
			d.unidentified++
			if d.unidentified <= 2*d.conf.LockLossMisses {
				return Event{}
			}
			log.Warnf("[v1] Sync reference went stale, dropping all locks")
			for i := range d.stations {
				if d.stations[i].locked {
					d.unlock(p, i)
				}
			}
		}
		// Restart acquisition with this cluster as frame reference.
		bs = 0
		d.stations[0].seen = false
		d.stations[1].seen = false
		d.stations[1].run = 0
	}
	d.unidentified = 0

	// The data bit of a cluster that restarted acquisition may belong to
	// either station.
	if sink := p.ootx[bs]; sink != nil && identified {
		sink.ProcessBit(code.Data())
	}

	ev := d.advanceFrame(p, angles, bs, ts, width)
	d.track(p, bs, ts, code)
	return merge(ev, d.claimSweep(p, bs, ts, code))
}

// identify maps a sync timestamp to a base station by its phase in the frame.
func (d *v1Decoder) identify(ts uint32) (int, bool) {
	if !d.haveReference {
		return 0, false
	}
	age := Diff(ts, d.currentSync0)
	if age > uint32(d.conf.MaxReferenceAge)*V1FrameLength {
		return 0, false
	}
	phase := age % V1FrameLength
	switch {
	case phase <= d.conf.FrameTolerance || phase >= V1FrameLength-d.conf.FrameTolerance:
		return 0, true
	case absDiff(phase, V1SyncSeparation) <= d.conf.SeparationTolerance:
		return 1, true
	}
	return 0, false
}

func (d *v1Decoder) advanceFrame(p *Processor, angles *Result, bs int, ts, width uint32) Event {
	var ev Event
	switch bs {
	case 0:
		ev = d.closeFrame(p, angles)
		d.openFrame(p, ts)
		d.currentSync0Width = width
	case 1:
		// sync0 of this frame went missing, derive the frame start from sync1
		if !d.frameOpen || d.sync1Seen || Diff(ts, d.currentSync0) > V1FrameLength/2 {
			ev = d.closeFrame(p, angles)
			d.openFrame(p, (ts-V1SyncSeparation)&TimestampMax)
		}
		d.sync1Seen = true
		d.currentSync1Width = width
	}
	return ev
}

func (d *v1Decoder) track(p *Processor, bs int, ts uint32, code V1SyncCode) {
	st := &d.stations[bs]
	switch {
	case !st.seen:
		st.run = 1
	case absDiff(Diff(ts, st.lastSync), V1FrameLength) <= d.conf.FrameTolerance:
		st.run++
	default:
		st.run = 1
	}
	if st.run == 1 && !st.locked {
		st.run += d.historyRun(ts)
	}
	st.seen = true
	st.lastSync = ts

	axis := code.Axis()
	d.trackFrameWidth(st, bs, axis, ts)
	switch {
	case bs == 0 && axis == AxisX:
		d.currentSync0X = ts
	case bs == 0 && axis == AxisY:
		d.currentSync0Y = ts
	case bs == 1 && axis == AxisX:
		d.currentSync1X = ts
	default:
		d.currentSync1Y = ts
	}

	if !st.locked && st.run >= d.conf.LockRunLength {
		st.locked = true
		d.basestationsSynchronizedCount++
		d.synchronized = true
		log.Infof("[v1] Base station %d locked after %d sync frames", bs, st.run)
	}
}

// historyRun counts how many whole frames back the sensor histories show a
// sync pulse lined up with ts. It lets a station relock quickly after noise.
func (d *v1Decoder) historyRun(ts uint32) int {
	run := 0
	for k := uint32(1); k <= v1HistoryLookback; k++ {
		if !d.historyHasSync(ts, k*V1FrameLength) {
			break
		}
		run++
	}
	return run
}

func (d *v1Decoder) historyHasSync(ts, back uint32) bool {
	for s := range d.history {
		h := &d.history[s]
		for i := 0; i < h.Len(); i++ {
			e := h.At(i)
			if isV1Sync(e.Width) && absDiff(Diff(ts, e.Timestamp), back) <= d.conf.FrameTolerance {
				return true
			}
		}
	}
	return false
}

// trackFrameWidth measures one rotor revolution as the gap between two syncs
// of the same station and axis.
func (d *v1Decoder) trackFrameWidth(st *stationLock, bs int, axis Axis, ts uint32) {
	if st.axisSeen[axis] {
		w := Diff(ts, st.axisSync[axis])
		if w >= d.conf.FrameWidthMin && w <= d.conf.FrameWidthMax {
			st.widths[axis][st.widthIdx[axis]] = float64(w)
			st.widthIdx[axis] = (st.widthIdx[axis] + 1) % v1FrameWidthSamples
			if st.nWidths[axis] < v1FrameWidthSamples {
				st.nWidths[axis]++
			}
			d.frameWidth[bs][axis] = stat.Mean(st.widths[axis][:st.nWidths[axis]], nil)
		}
	}
	st.axisSeen[axis] = true
	st.axisSync[axis] = ts
}

func (d *v1Decoder) claimSweep(p *Processor, bs int, ts uint32, code V1SyncCode) Event {
	if code.Skip() || !d.frameOpen {
		return Event{}
	}
	if d.sweeper >= 0 && d.sweeper != bs {
		// Both stations claim the frame.
		p.stats.FrameErrors++
		d.frameOpen = false
		for i := range p.sweeps {
			p.sweeps[i].state = SweepError
		}
		return Event{Outcome: ClassificationError, BaseStation: bs, Axis: code.Axis()}
	}
	d.sweeper = bs
	d.sweepAxis = code.Axis()
	d.currentSync = ts
	p.currentBaseStation = bs
	p.currentAxis = d.sweepAxis
	return Event{}
}

// checkLockLoss drops stations whose last sync is more than LockLossMisses
// frames behind ts. Pulses just behind a sync are out of order, not stale.
func (d *v1Decoder) checkLockLoss(p *Processor, ts uint32) {
	limit := uint32(d.conf.LockLossMisses)*V1FrameLength + d.conf.FrameTolerance
	for bs := range d.stations {
		st := &d.stations[bs]
		if st.locked && Diff(ts, st.lastSync) > limit && !within(ts, st.lastSync, d.conf.FrameTolerance) {
			d.unlock(p, bs)
		}
	}
}

func (d *v1Decoder) unlock(p *Processor, bs int) {
	st := &d.stations[bs]
	st.locked = false
	st.run = 0
	d.basestationsSynchronizedCount--
	p.stats.LockLosses[bs]++
	log.Warnf("[v1] Lost lock on base station %d", bs)
	if d.basestationsSynchronizedCount == 0 {
		d.synchronized = false
		d.frameOpen = false
		d.cluster.reset()
	}
}

func (d *v1Decoder) status() Status {
	st := Status{
		Synchronized:             d.synchronized,
		BaseStationsSynchronized: d.basestationsSynchronizedCount,
		FrameWidth:               d.frameWidth,
	}
	for bs := range d.stations {
		st.Locked[bs] = d.stations[bs].locked
	}
	switch {
	case d.synchronized:
		st.State = Synchronized
	case d.cluster.active || d.haveReference:
		st.State = AcquiringSync
	}
	return st
}
