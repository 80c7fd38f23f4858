package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/arloliu/go-eol/internal/opstate"
	"github.com/arloliu/go-eol/logger"
)

// Serial is a Transport over a local serial device.
type Serial struct {
	cfg    *Config
	logger logger.Logger
	state  opstate.Atomic

	mu          sync.Mutex
	port        serial.Port
	readTimeout time.Duration
}

var _ Transport = (*Serial)(nil)

// NewSerial creates a serial transport. The device is not touched until Open.
func NewSerial(cfg *Config) *Serial {
	return &Serial{
		cfg:    cfg,
		logger: cfg.GetLogger().With("port", cfg.Port()),
	}
}

// Name returns the device path.
func (s *Serial) Name() string { return s.cfg.Port() }

// IsOpen reports whether the port is open.
func (s *Serial) IsOpen() bool { return s.state.IsOpened() }

// Open opens the port with the configured line settings.
// It returns ErrAlreadyOpen if the port is already open.
func (s *Serial) Open() error {
	if !s.state.ToOpening() {
		return ErrAlreadyOpen
	}

	port, err := serial.Open(s.cfg.Port(), serialMode(s.cfg))
	if err != nil {
		s.state.Set(opstate.Closed)
		return fmt.Errorf("%w: %s: %w", ErrOpenFailed, s.cfg.Port(), describePortError(err))
	}
	if err := port.SetReadTimeout(s.cfg.Timeout()); err != nil {
		_ = port.Close()
		s.state.Set(opstate.Closed)
		return fmt.Errorf("%w: %s: %w", ErrOpenFailed, s.cfg.Port(), err)
	}

	s.mu.Lock()
	s.port = port
	s.readTimeout = s.cfg.Timeout()
	s.mu.Unlock()

	s.state.ToOpened()
	s.logger.Info("serial port opened", "settings", s.cfg.String())

	return nil
}

// Close closes the port. Closing a closed port is a no-op.
func (s *Serial) Close() error {
	if !s.state.ToClosing() {
		return nil
	}
	defer s.state.ToClosed()

	s.mu.Lock()
	port := s.port
	s.port = nil
	s.mu.Unlock()

	if port == nil {
		return nil
	}
	s.logger.Info("serial port closed")

	return port.Close()
}

// Read reads up to len(p) bytes, waiting at most timeout.
// It returns 0, nil when the timeout elapses without data.
func (s *Serial) Read(p []byte, timeout time.Duration) (int, error) {
	port, err := s.openPort()
	if err != nil {
		return 0, err
	}

	if timeout != s.readTimeout {
		if err := port.SetReadTimeout(timeout); err != nil {
			return 0, err
		}
		s.readTimeout = timeout
	}

	// go.bug.st/serial returns 0, nil on read timeout
	return port.Read(p)
}

// Write writes all of p, retrying partial writes.
func (s *Serial) Write(p []byte) (int, error) {
	port, err := s.openPort()
	if err != nil {
		return 0, err
	}

	n := 0
	for n < len(p) {
		m, err := port.Write(p[n:])
		n += m
		if err != nil {
			return n, err
		}
		if m == 0 {
			return n, io.ErrShortWrite
		}
	}

	return n, nil
}

// ResetInput discards the driver's input buffer.
func (s *Serial) ResetInput() error {
	port, err := s.openPort()
	if err != nil {
		return err
	}

	return port.ResetInputBuffer()
}

func (s *Serial) openPort() (serial.Port, error) {
	if !s.state.IsOpened() {
		return nil, ErrNotOpen
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil, ErrNotOpen
	}

	return s.port, nil
}

func serialMode(cfg *Config) *serial.Mode {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate(),
		DataBits: cfg.DataBits(),
	}

	switch cfg.Parity() {
	case ParityOdd:
		mode.Parity = serial.OddParity
	case ParityEven:
		mode.Parity = serial.EvenParity
	case ParityMark:
		mode.Parity = serial.MarkParity
	case ParitySpace:
		mode.Parity = serial.SpaceParity
	default:
		mode.Parity = serial.NoParity
	}

	switch cfg.StopBits() {
	case OnePointFiveStopBits:
		mode.StopBits = serial.OnePointFiveStopBits
	case TwoStopBits:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}

	return mode
}

// describePortError adds a hint for the serial library's error codes.
func describePortError(err error) error {
	var code serial.PortErrorCode
	var ptrErr *serial.PortError
	var valErr serial.PortError
	switch {
	case errors.As(err, &ptrErr):
		code = ptrErr.Code()
	case errors.As(err, &valErr):
		code = valErr.Code()
	default:
		return err
	}

	switch code {
	case serial.PortNotFound:
		return fmt.Errorf("port not found: %w", err)
	case serial.PortBusy:
		return fmt.Errorf("port busy, already used by another process: %w", err)
	case serial.PermissionDenied:
		return fmt.Errorf("permission denied: %w", err)
	case serial.InvalidSpeed, serial.InvalidDataBits, serial.InvalidParity, serial.InvalidStopBits:
		return fmt.Errorf("unsupported line settings: %w", err)
	default:
		return err
	}
}

// PortInfo describes a serial port found on the host.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// ListPorts enumerates the serial ports of the host.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("transport: enumerate ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}

	return ports, nil
}
