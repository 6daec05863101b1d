package ootx

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/x448/float16"
)

// PayloadLength is the size of a V1 base station OOTX payload.
const PayloadLength = 33

var ErrShortPayload = errors.New("ootx: payload too short")

// Payload is the V1 base station configuration. Calibration fields are
// indexed by sweep axis.
type Payload struct {
	FirmwareVersion uint16
	ID              uint32
	Phase           [2]float32
	Tilt            [2]float32
	UnlockCount     uint8
	HardwareVersion uint8
	Curve           [2]float32
	AccelDir        [3]int8
	GibPhase        [2]float32
	GibMag          [2]float32
	Mode            uint8
	Faults          uint8
}

func half(b []byte) float32 {
	return float16.Frombits(binary.LittleEndian.Uint16(b)).Float32()
}

func putHalf(b []byte, f float32) {
	binary.LittleEndian.PutUint16(b, float16.Fromfloat32(f).Bits())
}

func ParseV1(data []byte) (*Payload, error) {
	if len(data) < PayloadLength {
		return nil, fmt.Errorf("%w: have %d bytes, want %d", ErrShortPayload, len(data), PayloadLength)
	}
	p := &Payload{
		FirmwareVersion: binary.LittleEndian.Uint16(data[0:]),
		ID:              binary.LittleEndian.Uint32(data[2:]),
		Phase:           [2]float32{half(data[6:]), half(data[8:])},
		Tilt:            [2]float32{half(data[10:]), half(data[12:])},
		UnlockCount:     data[14],
		HardwareVersion: data[15],
		Curve:           [2]float32{half(data[16:]), half(data[18:])},
		AccelDir:        [3]int8{int8(data[20]), int8(data[21]), int8(data[22])},
		GibPhase:        [2]float32{half(data[23:]), half(data[25:])},
		GibMag:          [2]float32{half(data[27:]), half(data[29:])},
		Mode:            data[31],
		Faults:          data[32],
	}
	return p, nil
}

// Marshal is the inverse of ParseV1. Calibration values lose precision to
// half floats.
func (p *Payload) Marshal() []byte {
	data := make([]byte, PayloadLength)
	binary.LittleEndian.PutUint16(data[0:], p.FirmwareVersion)
	binary.LittleEndian.PutUint32(data[2:], p.ID)
	putHalf(data[6:], p.Phase[0])
	putHalf(data[8:], p.Phase[1])
	putHalf(data[10:], p.Tilt[0])
	putHalf(data[12:], p.Tilt[1])
	data[14] = p.UnlockCount
	data[15] = p.HardwareVersion
	putHalf(data[16:], p.Curve[0])
	putHalf(data[18:], p.Curve[1])
	data[20] = byte(p.AccelDir[0])
	data[21] = byte(p.AccelDir[1])
	data[22] = byte(p.AccelDir[2])
	putHalf(data[23:], p.GibPhase[0])
	putHalf(data[25:], p.GibPhase[1])
	putHalf(data[27:], p.GibMag[0])
	putHalf(data[29:], p.GibMag[1])
	data[31] = p.Mode
	data[32] = p.Faults
	return data
}
