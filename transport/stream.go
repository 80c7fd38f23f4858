package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/go-eol/internal/opstate"
	"github.com/arloliu/go-eol/internal/pool"
	"github.com/arloliu/go-eol/logger"
)

// drainSilence is how long the line must stay quiet for ResetInput to finish.
const drainSilence = 20 * time.Millisecond

// Stream is a Transport over a net.Conn.
type Stream struct {
	name   string
	dial   func() (net.Conn, error)
	logger logger.Logger
	state  opstate.Atomic

	mu   sync.Mutex
	conn net.Conn
}

var _ Transport = (*Stream)(nil)

// NewStream wraps an established connection. Open only marks it usable and
// Close closes conn.
func NewStream(name string, conn net.Conn, l logger.Logger) *Stream {
	if l == nil {
		l = logger.GetLogger()
	}
	used := false

	return &Stream{
		name:   name,
		logger: l.With("port", name),
		dial: func() (net.Conn, error) {
			if used {
				return nil, errors.New("connection already consumed")
			}
			used = true

			return conn, nil
		},
	}
}

// NewTCP creates a stream transport that dials the tcp:// address of cfg on Open.
func NewTCP(cfg *Config) *Stream {
	addr := strings.TrimPrefix(cfg.Port(), TCPScheme)

	return &Stream{
		name:   cfg.Port(),
		logger: cfg.GetLogger().With("port", cfg.Port()),
		dial: func() (net.Conn, error) {
			return net.DialTimeout("tcp", addr, cfg.DialTimeout())
		},
	}
}

// Name returns the stream name.
func (s *Stream) Name() string { return s.name }

// IsOpen reports whether the stream is open.
func (s *Stream) IsOpen() bool { return s.state.IsOpened() }

// Open dials the remote end, or adopts the connection given to NewStream.
// It returns ErrAlreadyOpen if the stream is already open.
func (s *Stream) Open() error {
	if !s.state.ToOpening() {
		return ErrAlreadyOpen
	}

	conn, err := s.dial()
	if err != nil {
		s.state.Set(opstate.Closed)
		return fmt.Errorf("%w: %s: %w", ErrOpenFailed, s.name, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.state.ToOpened()
	s.logger.Info("stream opened", "remote", conn.RemoteAddr().String())

	return nil
}

// Close closes the connection. Closing a closed stream is a no-op.
func (s *Stream) Close() error {
	if !s.state.ToClosing() {
		return nil
	}
	defer s.state.ToClosed()

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	s.logger.Info("stream closed")

	return conn.Close()
}

// Read reads up to len(p) bytes using a read deadline of timeout.
// A deadline expiry is reported as 0, nil.
func (s *Stream) Read(p []byte, timeout time.Duration) (int, error) {
	conn, err := s.openConn()
	if err != nil {
		return 0, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}

	n, err := conn.Read(p)
	if isTimeout(err) {
		return n, nil
	}

	return n, err
}

// Write writes p to the connection.
func (s *Stream) Write(p []byte) (int, error) {
	conn, err := s.openConn()
	if err != nil {
		return 0, err
	}

	return conn.Write(p)
}

// ResetInput reads and discards bytes until the line is silent.
func (s *Stream) ResetInput() error {
	conn, err := s.openConn()
	if err != nil {
		return err
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(drainSilence)); err != nil {
			return err
		}
		n, err := conn.Read(*buf)
		if n > 0 {
			s.logger.Debug("discarded stale input", "bytes", n)
		}
		if err != nil {
			if isTimeout(err) {
				return nil
			}
			return err
		}
	}
}

func (s *Stream) openConn() (net.Conn, error) {
	if !s.state.IsOpened() {
		return nil, ErrNotOpen
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, ErrNotOpen
	}

	return s.conn, nil
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
