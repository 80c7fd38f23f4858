package sequencer

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/arloliu/go-eol/mcu"
)

// PassCriteria is the accepted force band, inclusive on both ends.
type PassCriteria struct {
	ForceMin float64
	ForceMax float64
}

// Evaluate reports whether force lies within the band.
func (c PassCriteria) Evaluate(force float64) bool {
	return force >= c.ForceMin && force <= c.ForceMax
}

func (c PassCriteria) String() string {
	return fmt.Sprintf("[%g, %g]", c.ForceMin, c.ForceMax)
}

// MotionProfile holds the robot axis and its move parameters.
type MotionProfile struct {
	Axis         int
	Velocity     float64
	Acceleration float64
	Deceleration float64
}

// TemperatureCheck reads the temperature back after a thermal settle and
// requires it within Tolerance of the target, trying up to 1+Retries times.
type TemperatureCheck struct {
	Tolerance float64
	Retries   int
	Interval  time.Duration
}

// StationSetup is run once before the sweep.
type StationSetup struct {
	// WaitBoot waits for the controller boot signal first.
	WaitBoot bool
	// BootSettle is the pause after the boot signal.
	BootSettle time.Duration
	// TestMode is selected after boot. Zero leaves the mode unchanged.
	TestMode int
}

// StandbyProfile describes the standby cycle run before the sweep and after
// each temperature: set the upper limit and fan, heat to Activation, return
// the axis, then cool back to Standby.
type StandbyProfile struct {
	UpperTemperature float64
	FanLevel         int
	Activation       float64
	Standby          float64
	// Hold is how long the controller stays at Activation before standby.
	Hold time.Duration
	// MaxStroke, when set, is visited once during the initial cycle before
	// the axis returns.
	MaxStroke *float64
	// CommandSettle is the pause after each controller command.
	CommandSettle time.Duration
}

// Matrix is the test plan of one run.
type Matrix struct {
	// Temperatures in °C, visited in order.
	Temperatures []float64
	// Positions of the stroke axis, visited in order for every temperature.
	Positions []float64
	// Repeats is the number of samples per position.
	Repeats  int
	Criteria PassCriteria
	// StopOnFailure ends the run at the first failing point.
	StopOnFailure bool

	Motion MotionProfile
	// HomeBeforeRun enables the servo and homes the axis before the sweep.
	HomeBeforeRun bool
	// MoveSettle is the pause between a move and the first sample.
	MoveSettle time.Duration
	// PeakWindow switches sampling to peak force over the window. Zero takes
	// a single reading.
	PeakWindow   time.Duration
	PeakInterval time.Duration

	// Verify enables temperature read-back after each thermal settle.
	Verify *TemperatureCheck
	// ReturnPosition, when set, is where the axis goes after each temperature.
	ReturnPosition *float64
	// StandbyCooling cools back to standby after each temperature.
	StandbyCooling bool

	// Setup runs the station setup before the sweep.
	Setup *StationSetup
	// Standby runs the standby cycle before the sweep and after each
	// temperature. It implies standby cooling.
	Standby *StandbyProfile
}

// Size returns the number of points of a complete run.
func (m Matrix) Size() int {
	return len(m.Temperatures) * len(m.Positions) * m.Repeats
}

// Keys returns every point key in execution order.
func (m Matrix) Keys() []Key {
	keys := make([]Key, 0, m.Size())
	for _, t := range m.Temperatures {
		for _, p := range m.Positions {
			for r := 1; r <= m.Repeats; r++ {
				keys = append(keys, Key{Temperature: t, Position: p, Repeat: r})
			}
		}
	}

	return keys
}

// Validate checks the plan and reports every problem found.
func (m Matrix) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(m.Temperatures) == 0 {
		add("no temperatures")
	}
	seen := make(map[float64]bool, len(m.Temperatures))
	for _, t := range m.Temperatures {
		switch {
		case math.IsNaN(t) || t < mcu.MinTemperature || t > mcu.MaxTemperature:
			add("temperature %g out of range [%g, %g]", t, mcu.MinTemperature, mcu.MaxTemperature)
		case seen[t]:
			add("duplicate temperature %g", t)
		}
		seen[t] = true
	}

	if len(m.Positions) == 0 {
		add("no positions")
	}
	seen = make(map[float64]bool, len(m.Positions))
	for _, p := range m.Positions {
		switch {
		case !isFinite(p) || p < 0:
			add("invalid position %g", p)
		case seen[p]:
			add("duplicate position %g", p)
		}
		seen[p] = true
	}

	if m.Repeats < 1 {
		add("repeats must be at least 1, got %d", m.Repeats)
	}
	if !isFinite(m.Criteria.ForceMin) || !isFinite(m.Criteria.ForceMax) || m.Criteria.ForceMin > m.Criteria.ForceMax {
		add("invalid pass criteria %s", m.Criteria)
	}

	if m.Motion.Axis < 0 {
		add("invalid axis %d", m.Motion.Axis)
	}
	if !(m.Motion.Velocity > 0) || !(m.Motion.Acceleration > 0) || !(m.Motion.Deceleration > 0) {
		add("velocity, acceleration and deceleration must be positive")
	}
	if m.MoveSettle < 0 {
		add("negative move settle %v", m.MoveSettle)
	}

	if m.PeakWindow < 0 {
		add("negative peak window %v", m.PeakWindow)
	}
	if m.PeakWindow > 0 && (m.PeakInterval <= 0 || m.PeakInterval > m.PeakWindow) {
		add("peak interval %v must be in (0, %v]", m.PeakInterval, m.PeakWindow)
	}

	if v := m.Verify; v != nil {
		if !(v.Tolerance > 0) {
			add("temperature tolerance must be positive, got %g", v.Tolerance)
		}
		if v.Retries < 0 {
			add("negative temperature retries %d", v.Retries)
		}
		if v.Interval < 0 {
			add("negative temperature retry interval %v", v.Interval)
		}
	}
	if p := m.ReturnPosition; p != nil && (!isFinite(*p) || *p < 0) {
		add("invalid return position %g", *p)
	}

	if st := m.Setup; st != nil {
		if st.BootSettle < 0 {
			add("negative boot settle %v", st.BootSettle)
		}
		if st.TestMode < 0 || st.TestMode > 3 {
			add("test mode %d out of range [1, 3]", st.TestMode)
		}
	}
	if sb := m.Standby; sb != nil {
		for _, t := range []struct {
			name string
			v    float64
		}{{"upper", sb.UpperTemperature}, {"activation", sb.Activation}, {"standby", sb.Standby}} {
			if math.IsNaN(t.v) || t.v < mcu.MinTemperature || t.v > mcu.MaxTemperature {
				add("%s temperature %g out of range [%g, %g]", t.name, t.v, mcu.MinTemperature, mcu.MaxTemperature)
			}
		}
		if sb.Activation > sb.UpperTemperature {
			add("activation temperature %g above upper temperature %g", sb.Activation, sb.UpperTemperature)
		}
		if sb.FanLevel < 1 || sb.FanLevel > 10 {
			add("fan level %d out of range [1, 10]", sb.FanLevel)
		}
		if sb.Hold < 0 {
			add("negative standby hold %v", sb.Hold)
		}
		if sb.CommandSettle < 0 {
			add("negative command settle %v", sb.CommandSettle)
		}
		if p := sb.MaxStroke; p != nil && (!isFinite(*p) || *p < 0) {
			add("invalid max stroke %g", *p)
		}
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrInvalidMatrix, errors.Join(errs...))
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
