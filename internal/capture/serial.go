package capture

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// SerialDevice reads power levels from a serial-attached sound level
// meter that emits one reading per line.
type SerialDevice struct {
	Path string
	Baud int
}

// NewSerialDevice creates a Device backed by the serial port at path.
func NewSerialDevice(path string, baud int) *SerialDevice {
	if baud == 0 {
		baud = 115200
	}
	return &SerialDevice{Path: path, Baud: baud}
}

func (d *SerialDevice) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	port, err := serial.Open(d.Path, &serial.Mode{BaudRate: d.Baud})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", ErrUnavailable, d.Path, err)
	}
	return &serialSession{
		port:    port,
		scanner: bufio.NewScanner(port),
	}, nil
}

type serialSession struct {
	mu      sync.Mutex
	port    serial.Port
	scanner *bufio.Scanner
	closed  bool
}

// ReadPower reads the next line from the meter and parses it as a power
// level. The port read itself is not interruptible, so the deadline check
// brackets it instead.
func (s *serialSession) ReadPower(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrUnavailable
	}

	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return 0, fmt.Errorf("%w: read failed: %v", ErrUnavailable, err)
		}
		return 0, fmt.Errorf("%w: port closed", ErrUnavailable)
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return parsePowerLine(s.scanner.Text())
}

func (s *serialSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}

// parsePowerLine extracts a power reading from one meter output line.
// Accepts a bare float or a "key=value" pair where the value is the
// reading, e.g. "power=-32.5".
func parsePowerLine(line string) (float64, error) {
	line = strings.TrimSpace(line)
	if i := strings.LastIndex(line, "="); i >= 0 {
		line = strings.TrimSpace(line[i+1:])
	}
	p, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse power reading %q: %w", line, err)
	}
	return p, nil
}
