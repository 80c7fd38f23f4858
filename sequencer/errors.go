package sequencer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMatrix is returned by Validate and Run for an unusable plan.
	ErrInvalidMatrix = errors.New("sequencer: invalid matrix")
	// ErrRunning is returned when Run is called while another run is active.
	ErrRunning = errors.New("sequencer: run in progress")
	// ErrOutOfRange marks a force outside the pass criteria.
	ErrOutOfRange = errors.New("sequencer: force out of range")
	// ErrTemperatureNotReached marks a failed temperature read-back.
	ErrTemperatureNotReached = errors.New("sequencer: temperature not reached")
)

// Stage is the step of a point that failed.
type Stage uint8

const (
	StagePrepare Stage = iota
	StageThermal
	StageVerify
	StageMove
	StageSample
	StageCriteria
)

func (s Stage) String() string {
	switch s {
	case StagePrepare:
		return "prepare"
	case StageThermal:
		return "thermal"
	case StageVerify:
		return "verify"
	case StageMove:
		return "move"
	case StageSample:
		return "sample"
	case StageCriteria:
		return "criteria"
	default:
		return "unknown"
	}
}

// PointError is the failure reason of a point. It wraps the error of the
// underlying operation unchanged.
type PointError struct {
	Key   Key
	Stage Stage
	Err   error
}

func (e *PointError) Error() string {
	return fmt.Sprintf("point %s: %s: %v", e.Key, e.Stage, e.Err)
}

func (e *PointError) Unwrap() error { return e.Err }
