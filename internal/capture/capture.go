// Package capture abstracts the audio level source: a device that can be
// opened into a metering session yielding instantaneous power readings, and
// the permission gate that must grant access first. No audio content is
// ever retained; sessions expose a single scalar power level on demand.
package capture

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the capture device could not be opened or read.
var ErrUnavailable = errors.New("capture device unavailable")

// Device opens metering sessions against an audio level source.
type Device interface {
	// Open establishes a metering session. Opening is not idempotent at
	// this layer; callers hold at most one session per device.
	Open(ctx context.Context) (Session, error)
}

// Session is an established metering session.
type Session interface {
	// ReadPower returns the instantaneous power level of the source,
	// typically in dBFS (negative, 0 at full scale).
	ReadPower(ctx context.Context) (float64, error)

	// Close releases the session. Safe to call more than once.
	Close() error
}

// PermissionGate resolves whether the user has granted audio capture
// access. RequestPermission blocks until resolved or ctx is cancelled.
type PermissionGate interface {
	RequestPermission(ctx context.Context) (bool, error)
}

// StaticPermission is a PermissionGate with a fixed answer. Headless
// deployments run with StaticPermission(true); tests use either value.
type StaticPermission bool

func (p StaticPermission) RequestPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return bool(p), nil
}
