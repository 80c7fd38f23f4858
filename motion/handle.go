// Package motion manages the process-wide native motion library used by the
// robot axis driver.
//
// The library supports a single open session per process. Several logical
// owners share it through a reference counted Handle: the first Connect opens
// the library and the last Disconnect closes it.
package motion

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-eol/logger"
)

// DefaultIRQ is the interrupt line used by the motion board.
const DefaultIRQ = 7

var (
	// ErrNotConnected is returned when the library is used without a connection.
	ErrNotConnected = errors.New("motion: library not connected")
	// ErrInUse is returned by Release while a handle still has owners.
	ErrInUse = errors.New("motion: handle in use")
	// ErrOpenFailed wraps a failure to load or open the native library.
	ErrOpenFailed = errors.New("motion: open failed")
)

// Library is the native motion library session.
type Library interface {
	Open(irq int) error
	Close() error
	IsOpened() bool
}

// NewLibraryFunc loads the native library.
type NewLibraryFunc func() (Library, error)

// Handle is the shared entry of one native library.
type Handle struct {
	name   string
	newLib NewLibraryFunc
	logger logger.Logger

	mu   sync.Mutex
	lib  Library
	refs atomic.Int32
}

var registry = xsync.NewMapOf[string, *Handle]()

// Acquire returns the process-wide handle registered under name, creating it
// with newLib on first use. Later calls ignore newLib.
func Acquire(name string, newLib NewLibraryFunc) *Handle {
	h, _ := registry.LoadOrCompute(name, func() *Handle {
		return &Handle{
			name:   name,
			newLib: newLib,
			logger: logger.GetLogger().With("library", name),
		}
	})

	return h
}

// Release removes the handle registered under name. It fails with ErrInUse
// while the handle is connected.
func Release(name string) error {
	var err error
	registry.Compute(name, func(h *Handle, loaded bool) (*Handle, bool) {
		if !loaded {
			return nil, true
		}
		if n := h.RefCount(); n > 0 {
			err = fmt.Errorf("%w: %s has %d owners", ErrInUse, name, n)
			return h, false
		}

		return nil, true
	})

	return err
}

// Name returns the registry name of the handle.
func (h *Handle) Name() string { return h.name }

// RefCount returns the number of connected owners.
func (h *Handle) RefCount() int { return int(h.refs.Load()) }

// Connect registers one more owner. Only the first owner opens the library;
// a library that is already open is reused.
func (h *Handle) Connect(irq int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.refs.Load() > 0 {
		n := h.refs.Add(1)
		h.logger.Debug("motion library shared", "refs", n)
		return nil
	}

	if h.lib == nil {
		if h.newLib == nil {
			return fmt.Errorf("%w: %s: no loader", ErrOpenFailed, h.name)
		}
		lib, err := h.newLib()
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrOpenFailed, h.name, err)
		}
		h.lib = lib
	}

	if !h.lib.IsOpened() {
		if err := h.lib.Open(irq); err != nil {
			return fmt.Errorf("%w: %s irq %d: %w", ErrOpenFailed, h.name, irq, err)
		}
		h.logger.Info("motion library opened", "irq", irq)
	}
	h.refs.Store(1)

	return nil
}

// Disconnect drops one owner. The last owner closes the library. Calling
// Disconnect without owners does nothing.
func (h *Handle) Disconnect() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.refs.Load() == 0 {
		h.logger.Debug("disconnect without owners ignored")
		return nil
	}

	if n := h.refs.Add(-1); n > 0 {
		h.logger.Debug("motion library released by one owner", "refs", n)
		return nil
	}

	if err := h.lib.Close(); err != nil {
		h.logger.Error("failed to close motion library", "error", err)
		return fmt.Errorf("motion: close %s: %w", h.name, err)
	}
	h.logger.Info("motion library closed")

	return nil
}

// Library returns the open library session.
func (h *Handle) Library() (Library, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.refs.Load() == 0 || h.lib == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, h.name)
	}

	return h.lib, nil
}
