// Package synth generates pulse streams a sensor deck would capture from base
// stations sweeping a fixed scene. The streams are deterministic.
package synth

import (
	"cmp"
	"math"
	"slices"

	"github.com/jrwynneiii/lhdecode/pulse"
)

// Widths used for synthetic pulses.
const (
	SweepWidth = 120
	BeamWidth  = 200
)

// Sync pulses reach the sensors a tick or so apart. The offsets average out
// to zero so a sync cluster lands exactly on the sync time.
var syncSkew = [pulse.NumSensors]int64{-1, 0, 0, 1}

// Scene is the true angle of every sensor as seen by every base station,
// indexed [base station][sensor][axis].
type Scene struct {
	Angles [pulse.NumBaseStations][pulse.NumSensors][pulse.NumSweeps]float64
}

// DefaultScene is a 4 sensor deck a few degrees off the axis of both stations.
func DefaultScene() *Scene {
	s := &Scene{}
	for bs := range s.Angles {
		for sensor := range s.Angles[bs] {
			dx := float64(sensor%2) * 0.015
			dy := float64(sensor/2) * 0.015
			base := 0.12 - 0.3*float64(bs)
			s.Angles[bs][sensor] = [pulse.NumSweeps]float64{base + dx, -0.05 + 0.1*float64(bs) + dy}
		}
	}
	return s
}

// Distorter maps a true angle to the angle a real rotor would report.
type Distorter interface {
	Distort(ideal float64, sensor int, axis pulse.Axis) float64
}

// Dropout silences a base station for frames (V1) or rotations (V2) in
// [From, To).
type Dropout struct {
	BaseStation int
	From, To    int
}

type Options struct {
	// Frames is the number of V1 frames or V2 rotations to generate.
	Frames int
	Start  uint32
	// Disabled stations are never emitted.
	Disabled [pulse.NumBaseStations]bool
	Dropouts []Dropout
	// OOTX holds the bit stream each V1 station sends, repeated forever.
	OOTX [pulse.NumBaseStations][]bool
	// Distort is applied per station before converting angles to time.
	Distort [pulse.NumBaseStations]Distorter
	// V2 channel of each station, zero indexed.
	Channels [pulse.NumBaseStations]uint8
	// HideChannel clears the channel of a sensor's beam words.
	HideChannel [pulse.NumSensors]bool
}

func (o *Options) active(bs, frame int) bool {
	if o.Disabled[bs] {
		return false
	}
	for _, d := range o.Dropouts {
		if d.BaseStation == bs && frame >= d.From && frame < d.To {
			return false
		}
	}
	return true
}

func (o *Options) angle(scene *Scene, bs, sensor int, axis pulse.Axis) float64 {
	a := scene.Angles[bs][sensor][axis]
	if d := o.Distort[bs]; d != nil {
		return d.Distort(a, sensor, axis)
	}
	return a
}

type timedFrame struct {
	at    int64
	frame pulse.Frame
}

func sorted(frames []timedFrame) []pulse.Frame {
	slices.SortStableFunc(frames, func(a, b timedFrame) int {
		return cmp.Compare(a.at, b.at)
	})
	out := make([]pulse.Frame, len(frames))
	for i := range frames {
		out[i] = frames[i].frame
		out[i].Timestamp = uint32(frames[i].at) & pulse.TimestampMax
	}
	return out
}

// V1Frames emits opts.Frames V1 frames. Frame k is swept by station (k/2)%2
// on axis k%2, so each station sweeps both axes in turn.
func V1Frames(scene *Scene, opts Options) []pulse.Frame {
	var out []timedFrame
	var bitIndex [pulse.NumBaseStations]int
	for k := 0; k < opts.Frames; k++ {
		frameStart := int64(opts.Start) + int64(k)*pulse.V1FrameLength
		sweeper := (k / 2) % pulse.NumBaseStations
		axis := pulse.Axis(k % pulse.NumSweeps)

		for bs := 0; bs < pulse.NumBaseStations; bs++ {
			if !opts.active(bs, k) {
				continue
			}
			data := false
			if bits := opts.OOTX[bs]; len(bits) > 0 {
				data = bits[bitIndex[bs]%len(bits)]
				bitIndex[bs]++
			}
			code := pulse.NewV1SyncCode(axis, data, bs != sweeper)
			syncAt := frameStart + int64(bs)*pulse.V1SyncSeparation
			for s := 0; s < pulse.NumSensors; s++ {
				out = append(out, timedFrame{
					at:    syncAt + syncSkew[s],
					frame: pulse.Frame{Sensor: s, Width: pulse.V1SyncWidth(code)},
				})
			}
			if bs != sweeper {
				continue
			}
			for s := 0; s < pulse.NumSensors; s++ {
				raw := opts.angle(scene, bs, s, axis)
				delta := math.Round((raw + math.Pi/2) / (2 * math.Pi) * pulse.V1NominalFrameWidth)
				out = append(out, timedFrame{
					at:    syncAt + int64(delta),
					frame: pulse.Frame{Sensor: s, Width: SweepWidth},
				})
			}
		}
	}
	return sorted(out)
}

// V2Frames emits opts.Frames rotations of every active V2 station. Station 1
// trails station 0 by a sixth of a turn so their beams never overlap.
func V2Frames(scene *Scene, opts Options) []pulse.Frame {
	period := max(pulse.V2Period(opts.Channels[0]), pulse.V2Period(opts.Channels[1]))
	var out []timedFrame
	for r := 0; r < opts.Frames; r++ {
		cycleStart := int64(opts.Start) + int64(r)*int64(period)
		for bs := 0; bs < pulse.NumBaseStations; bs++ {
			if !opts.active(bs, r) {
				continue
			}
			channel := opts.Channels[bs]
			rotationStart := cycleStart + int64(bs)*int64(period)/6
			for axis := pulse.AxisX; axis <= pulse.AxisY; axis++ {
				for s := 0; s < pulse.NumSensors; s++ {
					offset := pulse.V2Offset(opts.angle(scene, bs, s, axis), channel, axis) &^ 3
					info := pulse.BeamInfo{
						Offset:       offset,
						Channel:      channel,
						Slowbit:      uint8(axis),
						ChannelFound: !opts.HideChannel[s],
					}
					at := rotationStart + int64(offset)
					out = append(out, timedFrame{
						at:    at,
						frame: pulse.NewV2Frame(s, uint32(at), BeamWidth, pulse.EncodeBeamWord(info)),
					})
				}
			}
		}
	}
	return sorted(out)
}
