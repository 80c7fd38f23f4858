package mcu

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-eol/frame"
	"github.com/arloliu/go-eol/logger"
	"github.com/arloliu/go-eol/transport"
)

// step is one write of the fake device, performed after delay.
type step struct {
	delay time.Duration
	data  []byte
}

func send(data []byte) step { return step{data: data} }

func after(d time.Duration, data []byte) step { return step{delay: d, data: data} }

// fakeMCU is the device end of a net.Pipe. It answers every request frame
// with the steps returned by its handler.
type fakeMCU struct {
	conn net.Conn
	reqs chan *frame.Frame

	mu      sync.Mutex
	handler func(req *frame.Frame) []step
}

func (d *fakeMCU) setHandler(h func(req *frame.Frame) []step) {
	d.mu.Lock()
	d.handler = h
	d.mu.Unlock()
}

func (d *fakeMCU) respond(req *frame.Frame) []step {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handler == nil {
		return nil
	}

	return d.handler(req)
}

func (d *fakeMCU) serve() {
	var buf []byte
	chunk := make([]byte, 512)
	for {
		n, err := d.conn.Read(chunk)
		if err != nil {
			return
		}
		buf = append(buf, chunk[:n]...)

		for {
			f, consumed := frame.ExtractFirst(buf)
			buf = buf[consumed:]
			if f == nil {
				break
			}
			select {
			case d.reqs <- f:
			default:
			}
			if !d.play(d.respond(f)) {
				return
			}
		}
	}
}

func (d *fakeMCU) play(steps []step) bool {
	for _, s := range steps {
		time.Sleep(s.delay)
		if _, err := d.conn.Write(s.data); err != nil {
			return false
		}
	}

	return true
}

// push writes unsolicited steps in the background.
func (d *fakeMCU) push(steps ...step) {
	go d.play(steps)
}

func (d *fakeMCU) lastRequest(t *testing.T) *frame.Frame {
	t.Helper()
	select {
	case f := <-d.reqs:
		return f
	case <-time.After(time.Second):
		t.Fatal("no request received by fake device")
		return nil
	}
}

// ack answers a request with its own command code.
func ack(cmd byte, payload ...byte) []byte {
	f, _ := frame.New(cmd, payload)
	return f.Pack()
}

func short(cmd byte) []byte {
	return frame.NewShort(cmd).Pack()
}

func newTestConfig(t *testing.T, opts ...Option) *Config {
	t.Helper()

	base := []Option{
		WithAckTimeout(200 * time.Millisecond),
		WithBootTimeout(time.Second),
		WithCloseTimeout(time.Second),
		WithCompletionTimeout(StartStandbyHeating, 300*time.Millisecond),
		WithCompletionTimeout(SetOperatingTemperature, 300*time.Millisecond),
		WithCompletionTimeout(SetCoolingTemperature, 300*time.Millisecond),
		WithCompletionTimeout(StartStandbyCooling, 300*time.Millisecond),
		WithLogger(logger.NewMockLogger().AllowAll()),
	}
	cfg, err := NewConfig(append(base, opts...)...)
	require.NoError(t, err)

	return cfg
}

// newTestClient returns an opened client wired to a fake device.
func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeMCU) {
	t.Helper()

	local, remote := net.Pipe()
	dev := &fakeMCU{conn: remote, reqs: make(chan *frame.Frame, 16)}

	cfg := newTestConfig(t, opts...)
	c, err := NewClient(context.Background(), transport.NewStream("pipe", local, cfg.GetLogger()), cfg)
	require.NoError(t, err)
	require.NoError(t, c.Open())

	go dev.serve()

	t.Cleanup(func() {
		_ = c.Close()
		_ = remote.Close()
	})

	return c, dev
}

// echoAck acknowledges every request and completes two-phase commands.
func echoAck(req *frame.Frame) []step {
	steps := []step{send(ack(req.Command))}
	for _, cmd := range Commands() {
		d, _ := Lookup(cmd)
		if d.Code == req.Command && d.HasCompletion() {
			steps = append(steps, after(10*time.Millisecond, short(d.Completion.Code)))
		}
	}

	return steps
}
