package mcu

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-eol/frame"
)

// Error categories. Every failed exchange returns an error matching exactly
// one of these with errors.Is. Calls rejected before anything is sent
// (ErrInvalidArgument, ErrUnknownCommand, ErrExchangeInProgress) match none.
var (
	// ErrConnection indicates the transport is not open or not openable.
	ErrConnection = errors.New("mcu: connection error")
	// ErrProtocolTimeout indicates an expected frame did not arrive in time.
	ErrProtocolTimeout = errors.New("mcu: protocol timeout")
	// ErrProtocolViolation indicates a malformed or ambiguous byte stream.
	ErrProtocolViolation = errors.New("mcu: protocol violation")
	// ErrOperation indicates the device answered with an unexpected frame.
	ErrOperation = errors.New("mcu: operation error")
)

var (
	// ErrNotOpen is returned when a command is issued on a client that is not open.
	ErrNotOpen = errors.New("mcu: client not open")
	// ErrClosed is returned when the client is closed while an exchange is pending.
	ErrClosed = errors.New("mcu: client closed")
	// ErrExchangeInProgress is returned when a command is issued while
	// another one is still pending.
	ErrExchangeInProgress = errors.New("mcu: exchange in progress")
	// ErrInvalidArgument is returned when command arguments fail validation.
	ErrInvalidArgument = errors.New("mcu: invalid argument")
	// ErrUnknownCommand is returned for a command missing from the table.
	ErrUnknownCommand = errors.New("mcu: unknown command")
)

// Phase identifies which wait of an exchange failed.
type Phase uint8

const (
	PhaseAck Phase = iota
	PhaseCompletion
	PhaseBoot
)

func (p Phase) String() string {
	switch p {
	case PhaseAck:
		return "ack"
	case PhaseCompletion:
		return "completion"
	case PhaseBoot:
		return "boot"
	default:
		return "unknown"
	}
}

// ConnectionError reports a transport failure.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mcu: connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolTimeoutError reports a frame that did not arrive within its timeout.
type ProtocolTimeoutError struct {
	Phase   Phase
	Command string
	// Code is the frame command code that was awaited.
	Code    byte
	Timeout time.Duration
}

func (e *ProtocolTimeoutError) Error() string {
	return fmt.Sprintf("mcu: %s timed out after %v waiting for %s 0x%02X", e.Command, e.Timeout, e.Phase, e.Code)
}

func (e *ProtocolTimeoutError) Is(target error) bool { return target == ErrProtocolTimeout }

// Attempted reports whether the device acknowledged the command before the
// timeout. In that case its effect may have partially taken place and the
// caller should re-query device state rather than blindly retry.
func (e *ProtocolTimeoutError) Attempted() bool {
	return e.Phase == PhaseCompletion
}

// ProtocolViolationError reports a malformed or out-of-sync byte stream.
type ProtocolViolationError struct {
	Command string
	Reason  string
	Frame   *frame.Frame
	Err     error
}

func (e *ProtocolViolationError) Error() string {
	msg := fmt.Sprintf("mcu: protocol violation during %s: %s", e.Command, e.Reason)
	if e.Frame != nil {
		msg += " [" + e.Frame.String() + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *ProtocolViolationError) Is(target error) bool { return target == ErrProtocolViolation }

func (e *ProtocolViolationError) Unwrap() error { return e.Err }

// OperationError reports a frame that arrived but is not the expected answer.
type OperationError struct {
	Command  string
	Expected byte
	Got      *frame.Frame
	Reason   string
}

func (e *OperationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("mcu: %s: %s", e.Command, e.Reason)
	}

	return fmt.Sprintf("mcu: %s: expected ack 0x%02X, got [%s]", e.Command, e.Expected, e.Got)
}

func (e *OperationError) Is(target error) bool { return target == ErrOperation }

// CommandError tags an error with the human readable operation that failed.
type CommandError struct {
	Op  string
	Err error
}

func (e *CommandError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *CommandError) Unwrap() error { return e.Err }

// IsAttempted reports whether err is a completion timeout, i.e. the command
// was acknowledged but its completion was never confirmed.
func IsAttempted(err error) bool {
	var te *ProtocolTimeoutError

	return errors.As(err, &te) && te.Attempted()
}
