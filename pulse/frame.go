package pulse

// Frame is one pulse as captured by the sensor deck.
type Frame struct {
	Sensor    int
	Timestamp uint32

	// V1 base stations
	Width uint16

	// V2 base stations
	BeamData uint32
	Offset   uint32
	// Channel is zero indexed here, the base station config numbers them 1-16.
	Channel      uint8
	Slowbit      uint8
	ChannelFound bool
}

// Beam word layout. The deck reports the offset in 6 MHz units.
const (
	beamOffsetMask   = 0x1ffff
	beamSlowbitShift = 17
	beamChannelShift = 18
	beamChannelMask  = 0x0f
	beamNoChannel    = 1 << 22
	beamOffsetShift  = 2
)

// BeamInfo is the metadata a V2 beam word carries.
type BeamInfo struct {
	Offset       uint32
	Channel      uint8
	Slowbit      uint8
	ChannelFound bool
}

func DecodeBeamWord(word uint32) BeamInfo {
	info := BeamInfo{
		Offset:       (word & beamOffsetMask) << beamOffsetShift,
		ChannelFound: word&beamNoChannel == 0,
	}
	if info.ChannelFound {
		info.Channel = uint8((word >> beamChannelShift) & beamChannelMask)
		info.Slowbit = uint8((word >> beamSlowbitShift) & 0x01)
	}
	return info
}

// EncodeBeamWord packs info, truncating the offset to 6 MHz resolution.
func EncodeBeamWord(info BeamInfo) uint32 {
	word := (info.Offset >> beamOffsetShift) & beamOffsetMask
	if !info.ChannelFound {
		return word | beamNoChannel
	}
	word |= uint32(info.Slowbit&0x01) << beamSlowbitShift
	word |= uint32(info.Channel&beamChannelMask) << beamChannelShift
	return word
}

// NewV2Frame builds a frame and decodes its beam word.
func NewV2Frame(sensor int, timestamp uint32, width uint16, beamData uint32) Frame {
	info := DecodeBeamWord(beamData)
	return Frame{
		Sensor:       sensor,
		Timestamp:    timestamp & TimestampMax,
		Width:        width,
		BeamData:     beamData,
		Offset:       info.Offset,
		Channel:      info.Channel,
		Slowbit:      info.Slowbit,
		ChannelFound: info.ChannelFound,
	}
}
