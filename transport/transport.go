// Package transport provides the byte-stream channel between the station
// host and its MCU.
//
// Two implementations are available: Serial drives a local serial device
// through go.bug.st/serial, and Stream drives any net.Conn, typically a
// TCP serial bridge (tcp://host:port) or an in-memory pipe in tests.
// Each transport is opened and closed exactly once per session.
package transport

import (
	"errors"
	"time"
)

var (
	// ErrNotOpen is returned when a transport is used while closed.
	ErrNotOpen = errors.New("transport: not open")
	// ErrAlreadyOpen is returned when Open is called on an open transport.
	ErrAlreadyOpen = errors.New("transport: already open")
	// ErrOpenFailed wraps the cause of a failed Open.
	ErrOpenFailed = errors.New("transport: open failed")
)

// Transport is a byte-stream channel with per-read timeouts.
//
// A Transport is owned by a single user; implementations are not required to
// support concurrent Read or Write calls.
type Transport interface {
	// Open acquires the underlying device.
	Open() error
	// Close releases the underlying device.
	Close() error
	// IsOpen reports whether the transport is open.
	IsOpen() bool
	// Read reads up to len(p) bytes, waiting at most timeout for the first
	// byte. It returns 0, nil when the timeout elapses without data.
	Read(p []byte, timeout time.Duration) (int, error)
	// Write writes all of p.
	Write(p []byte) (int, error)
	// ResetInput discards any unread input.
	ResetInput() error
	// Name returns the port name.
	Name() string
}

// New creates the transport matching cfg: a Stream for tcp:// ports and a
// Serial transport otherwise.
func New(cfg *Config) Transport {
	if cfg.IsTCP() {
		return NewTCP(cfg)
	}

	return NewSerial(cfg)
}
