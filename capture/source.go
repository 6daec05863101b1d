package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/lhdecode/config"
	"github.com/jrwynneiii/lhdecode/pulse"
	"go.bug.st/serial"
)

var ErrUnknownDriver = errors.New("capture: unknown source driver")

type Source struct {
	FramesOutput chan<- pulse.Frame
	Driver       string
	Path         string
	BaudRate     int
	Reader       *Reader

	port io.ReadCloser
}

func New(conf config.SourceConf, output chan<- pulse.Frame) *Source {
	return &Source{
		FramesOutput: output,
		Driver:       conf.Driver,
		Path:         conf.Path,
		BaudRate:     conf.BaudRate,
	}
}

// NewFromReader wraps an already open stream, such as stdin or a test buffer.
func NewFromReader(r io.Reader, output chan<- pulse.Frame) *Source {
	return &Source{FramesOutput: output, Driver: "reader", Reader: NewReader(r)}
}

// Connect opens the configured file or serial port.
func (s *Source) Connect() error {
	if s.Reader != nil {
		return nil
	}
	switch s.Driver {
	case "file":
		f, err := os.Open(s.Path)
		if err != nil {
			return fmt.Errorf("opening capture file: %w", err)
		}
		s.port = f
	case "serial":
		mode := &serial.Mode{
			BaudRate: s.BaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		port, err := serial.Open(s.Path, mode)
		if err != nil {
			return fmt.Errorf("opening serial port %s: %w", s.Path, err)
		}
		s.port = port
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, s.Driver)
	}
	log.Debugf("Opened %s source %s", s.Driver, s.Path)
	s.Reader = NewReader(s.port)
	return nil
}

// Start pushes frames until the stream ends or ctx is cancelled. It closes
// FramesOutput on return.
func (s *Source) Start(ctx context.Context) error {
	defer close(s.FramesOutput)
	for {
		f, err := s.Reader.Next()
		if errors.Is(err, io.EOF) {
			log.Debugf("Source drained: %d records, %d resyncs", s.Reader.Records, s.Reader.Resyncs)
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s source: %w", s.Driver, err)
		}
		select {
		case s.FramesOutput <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Source) Destroy() {
	if s.port == nil {
		return
	}
	if err := s.port.Close(); err != nil {
		log.Errorf("Could not close %s source: %v", s.Driver, err)
	}
	s.port = nil
}

// LogSerialPorts lists the ports a sensor deck could be attached to.
func LogSerialPorts() error {
	ports, err := serial.GetPortsList()
	if err != nil {
		return fmt.Errorf("listing serial ports: %w", err)
	}
	log.Infof("Found %d serial ports", len(ports))
	for _, port := range ports {
		log.Infof("\t- %s", port)
	}
	return nil
}
