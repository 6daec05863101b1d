// Package ootx reassembles the configuration payload V1 base stations
// broadcast one bit per sync pulse.
//
// A frame is a 17 bit zero preamble, then 16 bit words each followed by a
// one sync bit: a little endian length word, the payload padded to an even
// length, and a little endian CRC32 of the payload.
package ootx

import (
	"hash/crc32"
)

const (
	preambleZeros    = 17
	wordBits         = 16
	MaxPayloadLength = 64
)

type rxState int

const (
	rxLength rxState = iota
	rxData
	rxCrc0
	rxCrc1
)

type Decoder struct {
	zeros        int
	synchronized bool
	bitInWord    int
	currentWord  uint16
	state        rxState

	frameLength   int
	wordsReceived int
	crc           uint32
	data          [MaxPayloadLength]byte

	payload     [MaxPayloadLength]byte
	payloadLen  int
	Frames      int
	CRCErrors   int
	FrameErrors int
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// ProcessBit consumes one bit and returns true when it completed a frame
// with a valid CRC.
func (d *Decoder) ProcessBit(bit bool) bool {
	if bit {
		d.zeros = 0
	} else {
		d.zeros++
		if d.zeros == preambleZeros {
			// the next bit is the sync bit in front of the length word
			d.synchronized = true
			d.bitInWord = wordBits
			d.state = rxLength
			d.wordsReceived = 0
			return false
		}
	}
	if !d.synchronized {
		return false
	}

	if d.bitInWord == wordBits {
		d.bitInWord = 0
		if !bit {
			d.synchronized = false
			d.FrameErrors++
		}
		return false
	}

	d.currentWord <<= 1
	if bit {
		d.currentWord |= 1
	}
	d.bitInWord++
	if d.bitInWord < wordBits {
		return false
	}
	return d.processWord(d.currentWord)
}

func (d *Decoder) processWord(word uint16) bool {
	first, second := byte(word>>8), byte(word)
	switch d.state {
	case rxLength:
		d.frameLength = int(first) | int(second)<<8
		if d.frameLength > MaxPayloadLength {
			d.synchronized = false
			d.FrameErrors++
			return false
		}
		d.state = rxData
		if d.frameLength == 0 {
			d.state = rxCrc0
		}
	case rxData:
		d.data[2*d.wordsReceived] = first
		d.data[2*d.wordsReceived+1] = second
		d.wordsReceived++
		if 2*d.wordsReceived >= d.frameLength {
			d.state = rxCrc0
		}
	case rxCrc0:
		d.crc = uint32(first) | uint32(second)<<8
		d.state = rxCrc1
	case rxCrc1:
		d.crc |= (uint32(first) | uint32(second)<<8) << 16
		d.synchronized = false
		if crc32.ChecksumIEEE(d.data[:d.frameLength]) != d.crc {
			d.CRCErrors++
			return false
		}
		d.payload = d.data
		d.payloadLen = d.frameLength
		d.Frames++
		return true
	}
	return false
}

// Payload returns the last frame that passed its CRC, or nil.
func (d *Decoder) Payload() []byte {
	if d.Frames == 0 {
		return nil
	}
	out := make([]byte, d.payloadLen)
	copy(out, d.payload[:d.payloadLen])
	return out
}

// Encode returns the bit stream a base station sends for payload.
func Encode(payload []byte) []bool {
	bits := make([]bool, 0, preambleZeros+1+(len(payload)/2+4)*(wordBits+1))
	for i := 0; i < preambleZeros; i++ {
		bits = append(bits, false)
	}
	bits = append(bits, true)

	word := func(first, second byte) {
		w := uint16(first)<<8 | uint16(second)
		for i := wordBits - 1; i >= 0; i-- {
			bits = append(bits, w&(1<<i) != 0)
		}
		bits = append(bits, true)
	}

	word(byte(len(payload)), byte(len(payload)>>8))
	for i := 0; i < len(payload); i += 2 {
		var second byte
		if i+1 < len(payload) {
			second = payload[i+1]
		}
		word(payload[i], second)
	}
	crc := crc32.ChecksumIEEE(payload)
	word(byte(crc), byte(crc>>8))
	word(byte(crc>>16), byte(crc>>24))
	return bits
}
