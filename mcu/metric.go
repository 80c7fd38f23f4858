package mcu

import (
	"sync/atomic"
	"time"
)

// ClientMetrics contains atomic counters of a protocol client.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ClientMetrics struct {
	// FrameSendCount indicates the number of request frames written.
	FrameSendCount atomic.Uint64
	// FrameRecvCount indicates the number of frames extracted from the line.
	FrameRecvCount atomic.Uint64
	// NoiseByteCount indicates the number of bytes dropped as line noise.
	NoiseByteCount atomic.Uint64

	// ExchangeCount indicates the number of completed exchanges.
	ExchangeCount atomic.Uint64
	// ExchangeErrCount indicates the number of failed exchanges.
	ExchangeErrCount atomic.Uint64

	// AckTimeoutCount indicates the number of acknowledge timeouts.
	AckTimeoutCount atomic.Uint64
	// AckMismatchCount indicates the number of unexpected acknowledge frames.
	AckMismatchCount atomic.Uint64
	// CompletionTimeoutCount indicates the number of completion timeouts.
	CompletionTimeoutCount atomic.Uint64
	// ViolationCount indicates the number of protocol violations.
	ViolationCount atomic.Uint64
	// LeftoverDiscardCount indicates the number of stale leftover frames
	// discarded before a send.
	LeftoverDiscardCount atomic.Uint64
}

func (m *ClientMetrics) incFrameSendCount()         { m.FrameSendCount.Add(1) }
func (m *ClientMetrics) incFrameRecvCount()         { m.FrameRecvCount.Add(1) }
func (m *ClientMetrics) addNoiseBytes(n int)        { m.NoiseByteCount.Add(uint64(n)) }
func (m *ClientMetrics) incExchangeCount()          { m.ExchangeCount.Add(1) }
func (m *ClientMetrics) incExchangeErrCount()       { m.ExchangeErrCount.Add(1) }
func (m *ClientMetrics) incAckTimeoutCount()        { m.AckTimeoutCount.Add(1) }
func (m *ClientMetrics) incAckMismatchCount()       { m.AckMismatchCount.Add(1) }
func (m *ClientMetrics) incCompletionTimeoutCount() { m.CompletionTimeoutCount.Add(1) }
func (m *ClientMetrics) incViolationCount()         { m.ViolationCount.Add(1) }
func (m *ClientMetrics) incLeftoverDiscardCount()   { m.LeftoverDiscardCount.Add(1) }

// CommandStats holds per-command counters and the latencies of the most
// recent exchange.
type CommandStats struct {
	Count                 atomic.Uint64
	Failures              atomic.Uint64
	lastAckLatency        atomic.Int64
	lastCompletionLatency atomic.Int64
}

// LastAckLatency returns the ack latency of the most recent successful ack.
func (s *CommandStats) LastAckLatency() time.Duration {
	return time.Duration(s.lastAckLatency.Load())
}

// LastCompletionLatency returns the completion latency of the most recent
// confirmed completion.
func (s *CommandStats) LastCompletionLatency() time.Duration {
	return time.Duration(s.lastCompletionLatency.Load())
}

func (s *CommandStats) record(reply *Reply, err error) {
	s.Count.Add(1)
	if err != nil {
		s.Failures.Add(1)
	}
	if reply == nil {
		return
	}
	if reply.Ack != nil {
		s.lastAckLatency.Store(int64(reply.AckLatency))
	}
	if reply.Completion != nil {
		s.lastCompletionLatency.Store(int64(reply.CompletionLatency))
	}
}
