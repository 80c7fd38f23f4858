package sequencer

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Key identifies a matrix point. Repeat starts at 1.
type Key struct {
	Temperature float64
	Position    float64
	Repeat      int
}

func (k Key) String() string {
	return fmt.Sprintf("(%g°C, %g, #%d)", k.Temperature, k.Position, k.Repeat)
}

// Point is the outcome of one matrix point.
type Point struct {
	Key
	Force  float64
	Passed bool
	// Err is the failure reason, a *PointError, or nil when Passed.
	Err error
	At  time.Time
}

// CycleResult groups the repeats of one temperature and position.
type CycleResult struct {
	Temperature float64
	Position    float64
	Forces      []float64
	StartedAt   time.Time
	EndedAt     time.Time
	Passed      bool
}

// Stop identifies the point that ended a run early and why.
type Stop struct {
	Key Key
	Err error
}

func (s *Stop) String() string {
	return fmt.Sprintf("stopped at %s: %v", s.Key, s.Err)
}

// Result is the outcome of a run. Points are in execution order.
type Result struct {
	RunID  uuid.UUID
	Points []Point
	Cycles []CycleResult
	// Stop is nil when the whole matrix was executed.
	Stop *Stop
	// Passed reports whether every point of the matrix ran and passed.
	Passed bool
	// CleanupErrors holds errors of the return move and standby cooling
	// that follow each temperature.
	CleanupErrors []error

	StartedAt time.Time
	EndedAt   time.Time
}

// PassMap returns the pass/fail outcome of every attempted point.
func (r *Result) PassMap() map[Key]bool {
	m := make(map[Key]bool, len(r.Points))
	for _, p := range r.Points {
		m[p.Key] = p.Passed
	}

	return m
}

// Failed returns the failing points in execution order.
func (r *Result) Failed() []Point {
	var out []Point
	for _, p := range r.Points {
		if !p.Passed {
			out = append(out, p)
		}
	}

	return out
}

// Duration returns the wall time of the run.
func (r *Result) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}
