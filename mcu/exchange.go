package mcu

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/arloliu/go-eol/frame"
	"github.com/arloliu/go-eol/internal/pool"
)

// handleRequest runs one request on the worker goroutine.
func (c *Client) handleRequest(ctx context.Context, req *request) bool {
	var res result
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic during exchange", "command", req.desc.Name, "panic", r)
			res = result{err: fmt.Errorf("mcu: %s: internal error: %v", req.desc.Name, r)}
		}
		c.finish(req, res)
	}()

	switch req.kind {
	case reqBoot:
		res.err = c.runBoot(ctx, req.desc)
	case reqAwait:
		res.reply, res.err = c.runAwait(ctx, req.desc)
	default:
		res.reply, res.err = c.runExchange(ctx, req)
	}

	return true
}

func (c *Client) finish(req *request, res result) {
	if req.kind != reqBoot {
		c.Stats(req.desc.Command).record(res.reply, res.err)
		if res.err != nil {
			c.metrics.incExchangeErrCount()
		} else {
			c.metrics.incExchangeCount()
		}
	}

	if res.err != nil {
		c.logger.Debug("exchange failed", "command", req.desc.Name, "error", res.err)
	}

	c.busy.Store(false)
	req.replyChan <- res
}

func (c *Client) runExchange(ctx context.Context, req *request) (*Reply, error) {
	desc := req.desc
	c.discardStale(desc)

	c.logger.Debug("PC -> MCU", "command", desc.Name, "frame", req.frame.String())
	data := req.frame.Pack()
	n, err := c.tr.Write(data)
	if err == nil && n < len(data) {
		err = fmt.Errorf("%w: wrote %d of %d bytes", io.ErrShortWrite, n, len(data))
	}
	if err != nil {
		return nil, &ConnectionError{Op: "write " + desc.Name, Err: err}
	}
	c.metrics.incFrameSendCount()
	sentAt := time.Now()

	ack, err := c.awaitAck(ctx, desc)
	if err != nil {
		return nil, err
	}
	reply := &Reply{Command: desc.Command, Ack: ack, AckLatency: time.Since(sentAt)}
	if !desc.HasCompletion() {
		return reply, nil
	}

	ackAt := time.Now()
	comp, err := c.awaitCompletion(ctx, desc)
	if err != nil {
		return reply, err
	}
	reply.Completion = comp
	reply.CompletionLatency = time.Since(ackAt)

	return reply, nil
}

func (c *Client) runAwait(ctx context.Context, desc Descriptor) (*Reply, error) {
	start := time.Now()
	comp, err := c.awaitCompletion(ctx, desc)
	if err != nil {
		return nil, err
	}

	return &Reply{Command: desc.Command, Completion: comp, CompletionLatency: time.Since(start)}, nil
}

// discardStale drops frames and bytes that belong to a previous exchange.
func (c *Client) discardStale(desc Descriptor) {
	for _, f := range c.leftover.Drain() {
		c.metrics.incLeftoverDiscardCount()
		c.logger.Warn("discarding stale leftover frame", "next_command", desc.Name, "frame", f.String())
	}

	if len(c.rxBuf) > 0 {
		c.metrics.addNoiseBytes(len(c.rxBuf))
		c.logger.Warn("discarding stale input", "next_command", desc.Name, "bytes", frame.Hex(c.rxBuf))
		c.rxBuf = c.rxBuf[:0]
	}
}

func (c *Client) awaitAck(ctx context.Context, desc Descriptor) (*frame.Frame, error) {
	timeout := c.cfg.ackTimeout
	f, err := c.nextFrame(ctx, desc, time.Now().Add(timeout), c.cfg.ackPollInterval, c.cfg.lenientFraming)
	if err != nil {
		return nil, err
	}

	switch {
	case f == nil:
		c.metrics.incAckTimeoutCount()
		return nil, &ProtocolTimeoutError{Phase: PhaseAck, Command: desc.Name, Code: desc.AckCode, Timeout: timeout}
	case f.Command != desc.AckCode:
		c.metrics.incAckMismatchCount()
		return nil, &OperationError{Command: desc.Name, Expected: desc.AckCode, Got: f}
	case len(f.Payload) < desc.MinAckPayload:
		c.metrics.incAckMismatchCount()
		return nil, &OperationError{
			Command:  desc.Name,
			Expected: desc.AckCode,
			Got:      f,
			Reason:   fmt.Sprintf("ack payload has %d bytes, need at least %d", len(f.Payload), desc.MinAckPayload),
		}
	}

	return f, nil
}

// awaitCompletion waits for the completion frame of desc. Unrelated frames
// go to the leftover slot; a second one overflows it.
func (c *Client) awaitCompletion(ctx context.Context, desc Descriptor) (*frame.Frame, error) {
	code := desc.Completion.Code
	timeout := desc.Completion.Timeout

	if f, ok := c.leftover.Peek(); ok && f.Command == code {
		c.leftover.Poll()
		c.logger.Debug("completion taken from leftover slot", "command", desc.Name, "frame", f.String())
		return f, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		f, err := c.nextFrame(ctx, desc, deadline, c.cfg.completionPollInterval, c.cfg.lenientFraming)
		if err != nil {
			return nil, err
		}
		if f == nil {
			c.metrics.incCompletionTimeoutCount()
			return nil, &ProtocolTimeoutError{Phase: PhaseCompletion, Command: desc.Name, Code: code, Timeout: timeout}
		}
		if f.Command == code {
			return f, nil
		}

		if !c.leftover.Offer(f) {
			c.metrics.incViolationCount()
			held, _ := c.leftover.Peek()
			c.logger.Error("leftover slot overflow", "command", desc.Name, "held", held.String(), "frame", f.String())
			return nil, &ProtocolViolationError{Command: desc.Name, Reason: "leftover slot overflow", Frame: f}
		}
		c.logger.Debug("unrelated frame held in leftover slot", "command", desc.Name, "frame", f.String())
	}
}

func (c *Client) runBoot(ctx context.Context, desc Descriptor) error {
	timeout := c.cfg.bootTimeout
	deadline := time.Now().Add(timeout)
	c.logger.Info("waiting for mcu boot signal", "timeout", timeout)

	for {
		// the firmware may be chatty while booting, take frames one by one
		f, err := c.nextFrame(ctx, desc, deadline, c.cfg.completionPollInterval, true)
		if err != nil {
			return err
		}
		if f == nil {
			return &ProtocolTimeoutError{Phase: PhaseBoot, Command: desc.Name, Code: BootCompleteCode, Timeout: timeout}
		}
		if f.IsShort() && f.Command == BootCompleteCode {
			c.logger.Info("mcu boot complete")
			return nil
		}
		c.logger.Debug("ignoring frame while waiting for boot", "frame", f.String())
	}
}

// nextFrame returns the next frame from the line, or nil once deadline passes.
func (c *Client) nextFrame(ctx context.Context, desc Descriptor, deadline time.Time, poll time.Duration, lenient bool) (*frame.Frame, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	for {
		f, err := c.extract(lenient)
		if err != nil {
			return nil, &ProtocolViolationError{Command: desc.Name, Reason: "two frames in one read window", Err: err}
		}
		if f != nil {
			return f, nil
		}

		if ctx.Err() != nil {
			return nil, &ConnectionError{Op: desc.Name, Err: ErrClosed}
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		n, err := c.tr.Read(*buf, min(poll, remaining))
		if err != nil {
			return nil, &ConnectionError{Op: "read " + desc.Name, Err: err}
		}
		if n > 0 {
			c.rxBuf = append(c.rxBuf, (*buf)[:n]...)
		}
	}
}

// extract takes the next frame out of the receive buffer.
func (c *Client) extract(lenient bool) (*frame.Frame, error) {
	if len(c.rxBuf) == 0 {
		return nil, nil
	}

	var (
		f        *frame.Frame
		consumed int
		err      error
	)
	if lenient {
		f, consumed = frame.ExtractFirst(c.rxBuf)
	} else {
		f, consumed, err = frame.Extract(c.rxBuf)
	}
	if err != nil {
		c.metrics.incViolationCount()
		c.logger.Error("out of sync with mcu", "bytes", frame.Hex(c.rxBuf))
		c.rxBuf = c.rxBuf[:0]

		return nil, err
	}

	noise := consumed
	if f != nil {
		noise -= f.Size()
	}
	if noise > 0 {
		c.metrics.addNoiseBytes(noise)
		c.logger.Debug("dropped line noise", "bytes", frame.Hex(c.rxBuf[:noise]))
	}
	c.rxBuf = append(c.rxBuf[:0], c.rxBuf[consumed:]...)

	if f != nil {
		c.metrics.incFrameRecvCount()
		c.logger.Debug("MCU -> PC", "frame", f.String())
	}

	return f, nil
}
