package pulse

// Architectural limits of the sensor deck.
const (
	NumSweeps       = 2
	NumBaseStations = 2
	NumSensors      = 4
	HistoryLength   = 8

	TimestampBits = 24
	TimestampMax  = 1<<TimestampBits - 1
)

// Axis selects one of the two sweep planes of a base station.
type Axis int

const (
	AxisX Axis = iota
	AxisY
)

func (a Axis) String() string {
	if a == AxisX {
		return "x"
	}
	return "y"
}

// Diff returns x - y on the wrapping 24 bit capture counter.
func Diff(x, y uint32) uint32 {
	return (x - y) & TimestampMax
}

// signedDiff is Diff folded into [-2^23, 2^23), for pulses that may arrive
// slightly out of order.
func signedDiff(x, y uint32) int32 {
	d := Diff(x, y)
	if d >= 1<<(TimestampBits-1) {
		return int32(d) - 1<<TimestampBits
	}
	return int32(d)
}

func absDiff(x, y uint32) uint32 {
	if x > y {
		return x - y
	}
	return y - x
}

func within(x, y, window uint32) bool {
	d := signedDiff(x, y)
	if d < 0 {
		d = -d
	}
	return uint32(d) <= window
}
