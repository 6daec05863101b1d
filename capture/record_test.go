package capture

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jrwynneiii/lhdecode/pulse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFrames() []pulse.Frame {
	return []pulse.Frame{
		pulse.NewV2Frame(0, 0x123456, pulse.V1SyncWidth(5), 0),
		pulse.NewV2Frame(3, pulse.TimestampMax, 120, 0),
		pulse.NewV2Frame(2, 42, 200, pulse.EncodeBeamWord(pulse.BeamInfo{Offset: 160000, Channel: 1, Slowbit: 1, ChannelFound: true})),
		pulse.NewV2Frame(1, 43, 200, pulse.EncodeBeamWord(pulse.BeamInfo{Offset: 160004})),
	}
}

func encodeAll(t *testing.T, frames []pulse.Frame) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for i := range frames {
		require.NoError(t, w.Write(&frames[i]))
	}
	require.NoError(t, w.Flush())
	return buf.Bytes()
}

func readAll(t *testing.T, r *Reader) []pulse.Frame {
	t.Helper()
	var out []pulse.Frame
	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, f)
	}
}

func TestRecordLayout(t *testing.T) {
	f := pulse.NewV2Frame(2, 0xabcdef, 0x0102, 0x00030405)
	rec := EncodeRecord(&f)
	assert.Equal(t, [RecordSize]byte{2, 0x02, 0x01, 0x05, 0x04, 0x03, 0x00, 0xef, 0xcd, 0xab, 0, 0}, rec)
}

func TestReaderRoundTrip(t *testing.T) {
	frames := sampleFrames()
	r := NewReader(bytes.NewReader(encodeAll(t, frames)))

	got := readAll(t, r)
	if diff := cmp.Diff(frames, got); diff != "" {
		t.Fatalf("frames mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, len(frames), r.Records)
	assert.Zero(t, r.Resyncs)
}

func TestReaderResyncs(t *testing.T) {
	frames := sampleFrames()
	data := encodeAll(t, frames)

	// line noise in front and a record cut short in the middle
	stream := append([]byte{0xff, 0xfe, 0x80}, data[:RecordSize+5]...)
	stream = append(stream, data[2*RecordSize:]...)
	stream = append(stream, 0x01, 0x02)

	r := NewReader(bytes.NewReader(stream))
	got := readAll(t, r)

	want := []pulse.Frame{frames[0], frames[2], frames[3]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("frames mismatch (-want +got):\n%s", diff)
	}
	assert.GreaterOrEqual(t, r.Resyncs, 3)
}
