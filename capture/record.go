// Package capture reads and writes the pulse records a sensor deck streams
// over its UART, from a serial port or a capture file.
package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"

	"github.com/jrwynneiii/lhdecode/pulse"
)

// RecordSize is the length of one record on the wire:
//
//	[0]     sensor index
//	[1:3]   pulse width, little endian
//	[3:7]   V2 beam word, little endian
//	[7:10]  24 bit timestamp, little endian
//	[10:12] zero
const RecordSize = 12

const (
	sensorMask   = 0x03
	beamWordMask = 0x007fffff
)

// EncodeRecord packs f into its wire form.
func EncodeRecord(f *pulse.Frame) [RecordSize]byte {
	var rec [RecordSize]byte
	rec[0] = byte(f.Sensor) & sensorMask
	binary.LittleEndian.PutUint16(rec[1:], f.Width)
	binary.LittleEndian.PutUint32(rec[3:], f.BeamData&beamWordMask)
	ts := f.Timestamp & pulse.TimestampMax
	rec[7] = byte(ts)
	rec[8] = byte(ts >> 8)
	rec[9] = byte(ts >> 16)
	return rec
}

// DecodeRecord unpacks rec. ok is false when the reserved bits are not zero,
// which means the reader is not aligned on a record boundary.
func DecodeRecord(rec []byte) (f pulse.Frame, ok bool) {
	if len(rec) < RecordSize || rec[0]&^sensorMask != 0 || rec[10] != 0 || rec[11] != 0 {
		return f, false
	}
	beam := binary.LittleEndian.Uint32(rec[3:])
	if beam&^beamWordMask != 0 {
		return f, false
	}
	ts := uint32(rec[7]) | uint32(rec[8])<<8 | uint32(rec[9])<<16
	return pulse.NewV2Frame(int(rec[0]), ts, binary.LittleEndian.Uint16(rec[1:]), beam), true
}

// Reader pulls records from a byte stream, sliding one byte at a time until
// it finds a valid record after corruption.
type Reader struct {
	Records int
	Resyncs int

	r   *bufio.Reader
	buf [RecordSize]byte
	n   int
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next valid record. It returns io.EOF at the end of the
// stream, dropping any trailing partial record.
func (r *Reader) Next() (pulse.Frame, error) {
	for {
		if _, err := io.ReadFull(r.r, r.buf[r.n:]); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			return pulse.Frame{}, err
		}
		if f, ok := DecodeRecord(r.buf[:]); ok {
			r.n = 0
			r.Records++
			return f, nil
		}
		copy(r.buf[:], r.buf[1:])
		r.n = RecordSize - 1
		r.Resyncs++
	}
}

type Writer struct {
	w *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) Write(f *pulse.Frame) error {
	rec := EncodeRecord(f)
	_, err := w.w.Write(rec[:])
	return err
}

func (w *Writer) Flush() error {
	return w.w.Flush()
}
