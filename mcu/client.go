package mcu

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-eol/frame"
	"github.com/arloliu/go-eol/internal/opstate"
	"github.com/arloliu/go-eol/internal/queue"
	"github.com/arloliu/go-eol/internal/task"
	"github.com/arloliu/go-eol/logger"
	"github.com/arloliu/go-eol/transport"
)

// leftoverCapacity is the size of the leftover-frame mailbox.
const leftoverCapacity = 1

// Reply carries the frames of a finished exchange.
type Reply struct {
	Command Command
	// Ack is the acknowledge frame. It carries the measurement payload of
	// single-phase query commands.
	Ack *frame.Frame
	// Completion is nil for single-phase commands and on completion timeout.
	Completion *frame.Frame

	AckLatency        time.Duration
	CompletionLatency time.Duration
}

// Client drives the request/acknowledge/completion handshake with the MCU.
//
// The client exclusively owns its Transport. All line I/O happens on a
// single worker goroutine; public methods queue a request to it and block
// until the worker answers or the caller's context is done. Only one
// exchange may be pending at a time.
type Client struct {
	tr      transport.Transport
	cfg     *Config
	logger  logger.Logger
	opState opstate.Atomic
	taskMgr *task.Manager
	reqChan chan *request
	busy    atomic.Bool

	// owned by the exchange worker
	rxBuf    []byte
	leftover *queue.Bounded[*frame.Frame]

	metrics ClientMetrics
	stats   *xsync.MapOf[Command, *CommandStats]
}

type requestKind uint8

const (
	reqExchange requestKind = iota
	reqAwait
	reqBoot
)

type request struct {
	kind      requestKind
	desc      Descriptor
	frame     *frame.Frame
	replyChan chan result
}

type result struct {
	reply *Reply
	err   error
}

// NewClient creates a client using ctx as the parent context of its worker.
// The transport must not be open yet; Open opens it.
func NewClient(ctx context.Context, tr transport.Transport, cfg *Config) (*Client, error) {
	if tr == nil {
		return nil, errors.New("mcu: nil transport")
	}
	if cfg == nil {
		var err error
		if cfg, err = NewConfig(); err != nil {
			return nil, err
		}
	}

	l := cfg.GetLogger().With("port", tr.Name())

	return &Client{
		tr:       tr,
		cfg:      cfg,
		logger:   l,
		taskMgr:  task.NewManager(ctx, l),
		leftover: queue.NewBounded[*frame.Frame](leftoverCapacity),
		rxBuf:    make([]byte, 0, 2*(frame.Overhead+frame.MaxPayloadSize)),
		stats:    xsync.NewMapOf[Command, *CommandStats](),
	}, nil
}

// Open opens the transport, discards stale input and starts the exchange worker.
func (c *Client) Open() error {
	if !c.opState.ToOpening() {
		return fmt.Errorf("mcu: cannot open client in %s state", c.opState.String())
	}

	if err := c.tr.Open(); err != nil {
		c.opState.Set(opstate.Closed)
		return &ConnectionError{Op: "open", Err: err}
	}
	if err := c.tr.ResetInput(); err != nil {
		c.logger.Warn("failed to flush stale input", "error", err)
	}

	c.rxBuf = c.rxBuf[:0]
	c.leftover.Drain()
	c.reqChan = make(chan *request)
	if err := task.StartConsumer(c.taskMgr, "exchangeWorker", c.reqChan, c.handleRequest); err != nil {
		_ = c.tr.Close()
		c.opState.Set(opstate.Closed)
		return &ConnectionError{Op: "open", Err: err}
	}

	c.opState.ToOpened()
	c.logger.Info("mcu client opened")

	return nil
}

// Close stops the worker and closes the transport. A pending exchange is
// abandoned and its caller receives ErrClosed.
func (c *Client) Close() error {
	if !c.opState.ToClosing() {
		if c.opState.IsClosed() {
			return nil
		}
		return fmt.Errorf("mcu: cannot close client in %s state", c.opState.String())
	}

	c.taskMgr.Stop()

	done := make(chan struct{})
	go func() {
		c.taskMgr.Wait()
		close(done)
	}()

	var closeErr error
	timer := time.NewTimer(c.cfg.closeTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		c.logger.Error("close timeout", "timeout", c.cfg.closeTimeout)
		closeErr = fmt.Errorf("mcu: close timeout after %v", c.cfg.closeTimeout)
	}

	if err := c.tr.Close(); err != nil && closeErr == nil {
		closeErr = &ConnectionError{Op: "close", Err: err}
	}
	c.busy.Store(false)
	c.opState.ToClosed()
	c.logger.Info("mcu client closed")

	return closeErr
}

// IsOpen reports whether the client is open.
func (c *Client) IsOpen() bool { return c.opState.IsOpened() }

// Config returns the client configuration.
func (c *Client) Config() *Config { return c.cfg }

// GetLogger returns the client logger.
func (c *Client) GetLogger() logger.Logger { return c.logger }

// GetMetrics returns the client metrics.
func (c *Client) GetMetrics() *ClientMetrics { return &c.metrics }

// Stats returns the statistics of cmd, creating them on first use.
func (c *Client) Stats(cmd Command) *CommandStats {
	s, _ := c.stats.LoadOrCompute(cmd, func() *CommandStats { return &CommandStats{} })
	return s
}

// Exchange sends cmd with args and waits for its acknowledge and, if the
// command has one, its completion frame.
//
// On a completion timeout the returned Reply still carries the acknowledge
// frame and the error satisfies IsAttempted.
//
// Cancelling ctx releases the caller only: the exchange keeps running on the
// worker until its current phase times out, and no other command can be
// issued until then.
func (c *Client) Exchange(ctx context.Context, cmd Command, args ...float64) (*Reply, error) {
	desc, err := c.cfg.Descriptor(cmd)
	if err != nil {
		return nil, err
	}
	f, err := desc.Frame(args...)
	if err != nil {
		return nil, err
	}

	res := c.do(ctx, &request{kind: reqExchange, desc: desc, frame: f})

	return res.reply, res.err
}

// AwaitCompletion waits again for the completion frame of cmd without
// sending anything, e.g. after a completion timeout. A matching frame held
// in the leftover slot satisfies the wait immediately.
func (c *Client) AwaitCompletion(ctx context.Context, cmd Command) (*frame.Frame, error) {
	desc, err := c.cfg.Descriptor(cmd)
	if err != nil {
		return nil, err
	}
	if !desc.HasCompletion() {
		return nil, fmt.Errorf("%w: %s has no completion phase", ErrInvalidArgument, desc.Name)
	}

	res := c.do(ctx, &request{kind: reqAwait, desc: desc})
	if res.reply == nil {
		return nil, res.err
	}

	return res.reply.Completion, res.err
}

// WaitBoot waits for the boot signal, a short frame with command 0x00.
// Other frames seen meanwhile are logged and ignored.
func (c *Client) WaitBoot(ctx context.Context) error {
	desc := Descriptor{Name: "wait boot", AckCode: BootCompleteCode}
	res := c.do(ctx, &request{kind: reqBoot, desc: desc})

	return res.err
}

// do queues req to the worker and waits for its result.
func (c *Client) do(ctx context.Context, req *request) result {
	if !c.opState.IsOpened() {
		return result{err: &ConnectionError{Op: req.desc.Name, Err: ErrNotOpen}}
	}
	if !c.busy.CompareAndSwap(false, true) {
		return result{err: fmt.Errorf("%w: cannot start %s", ErrExchangeInProgress, req.desc.Name)}
	}

	req.replyChan = make(chan result, 1)
	workerCtx := c.taskMgr.Context()

	select {
	case c.reqChan <- req:
	case <-ctx.Done():
		c.busy.Store(false)
		return result{err: ctx.Err()}
	case <-workerCtx.Done():
		c.busy.Store(false)
		return result{err: &ConnectionError{Op: req.desc.Name, Err: ErrClosed}}
	}

	select {
	case res := <-req.replyChan:
		return res
	case <-ctx.Done():
		c.logger.Warn("caller stopped waiting, exchange continues until its timeout",
			"command", req.desc.Name, "error", ctx.Err())
		return result{err: ctx.Err()}
	case <-workerCtx.Done():
		return result{err: &ConnectionError{Op: req.desc.Name, Err: ErrClosed}}
	}
}
