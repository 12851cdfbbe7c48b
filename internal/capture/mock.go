package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// MockDevice implements Device for testing and dev mode. It replays a
// fixed sequence of power readings, cycling when exhausted.
type MockDevice struct {
	Powers    []float64
	OpenError error
	ReadError error

	mu         sync.Mutex
	next       int
	openCount  int
	closeCount int
}

// NewMockDevice creates a MockDevice replaying the given power readings.
func NewMockDevice(powers ...float64) *MockDevice {
	return &MockDevice{Powers: powers}
}

// NewFixtureDevice creates a MockDevice from fixture file contents: one
// power reading per line, blank lines and '#' comments skipped.
func NewFixtureDevice(data []byte) (*MockDevice, error) {
	var powers []float64
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse fixture line %q: %w", line, err)
		}
		powers = append(powers, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(powers) == 0 {
		return nil, fmt.Errorf("fixture contains no readings")
	}
	return NewMockDevice(powers...), nil
}

func (d *MockDevice) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.OpenError != nil {
		return nil, d.OpenError
	}
	d.mu.Lock()
	d.openCount++
	d.mu.Unlock()
	return &mockSession{device: d}, nil
}

// OpenCount returns how many sessions have been opened.
func (d *MockDevice) OpenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openCount
}

// CloseCount returns how many sessions have been closed.
func (d *MockDevice) CloseCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCount
}

type mockSession struct {
	device *MockDevice
}

func (s *mockSession) ReadPower(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d := s.device
	if d.ReadError != nil {
		return 0, d.ReadError
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Powers) == 0 {
		return 0, ErrUnavailable
	}
	p := d.Powers[d.next%len(d.Powers)]
	d.next++
	return p, nil
}

func (s *mockSession) Close() error {
	s.device.mu.Lock()
	s.device.closeCount++
	s.device.mu.Unlock()
	return nil
}
