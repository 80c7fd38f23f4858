package sequencer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/go-eol/internal/pool"
	"github.com/arloliu/go-eol/logger"
)

// Sequencer executes test matrices against its collaborators. It runs one
// matrix at a time.
type Sequencer struct {
	thermal  ThermalController
	reader   TemperatureReader
	cooler   StandbyCooler
	preparer StationPreparer
	heater   StandbyHeater
	robot    RobotService
	loadCell LoadCellService

	observer func(Point)
	logger   logger.Logger
	running  atomic.Bool
}

// Option is a functional option for configuring a Sequencer.
type Option interface {
	apply(*Sequencer)
}

type optFunc func(*Sequencer)

func (f optFunc) apply(s *Sequencer) { f(s) }

// WithObserver registers fn to be called with every recorded point, on the
// run goroutine.
func WithObserver(fn func(Point)) Option {
	return optFunc(func(s *Sequencer) { s.observer = fn })
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(s *Sequencer) {
		if l != nil {
			s.logger = l
		}
	})
}

// New creates a sequencer. thermal may also implement TemperatureReader,
// StandbyCooler, StationPreparer and StandbyHeater to enable verification,
// standby cooling, station setup and the standby cycle.
func New(thermal ThermalController, robot RobotService, loadCell LoadCellService, opts ...Option) (*Sequencer, error) {
	if thermal == nil || robot == nil || loadCell == nil {
		return nil, errors.New("sequencer: thermal controller, robot and load cell are required")
	}

	s := &Sequencer{
		thermal:  thermal,
		robot:    robot,
		loadCell: loadCell,
		logger:   logger.GetLogger(),
	}
	s.reader, _ = thermal.(TemperatureReader)
	s.cooler, _ = thermal.(StandbyCooler)
	s.preparer, _ = thermal.(StationPreparer)
	s.heater, _ = thermal.(StandbyHeater)

	for _, opt := range opts {
		opt.apply(s)
	}

	return s, nil
}

// Run executes m and returns its result.
//
// Point failures are reported in the Result, not as an error. The error is
// non-nil only for an invalid matrix, a concurrent run, or ctx ending; in the
// last case the partial Result is returned along with ctx.Err().
func (s *Sequencer) Run(ctx context.Context, m Matrix) (*Result, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.Verify != nil && s.reader == nil {
		return nil, fmt.Errorf("%w: temperature verification needs a temperature reader", ErrInvalidMatrix)
	}
	if m.StandbyCooling && s.cooler == nil {
		return nil, fmt.Errorf("%w: standby cooling needs a standby cooler", ErrInvalidMatrix)
	}
	if m.Setup != nil && s.preparer == nil {
		return nil, fmt.Errorf("%w: station setup needs a station preparer", ErrInvalidMatrix)
	}
	if m.Standby != nil && (s.heater == nil || s.cooler == nil) {
		return nil, fmt.Errorf("%w: standby cycle needs a standby heater and cooler", ErrInvalidMatrix)
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunning
	}
	defer s.running.Store(false)

	res := &Result{RunID: uuid.New(), StartedAt: time.Now()}
	r := &run{
		s:      s,
		m:      m,
		res:    res,
		logger: s.logger.With("run_id", res.RunID.String()),
	}

	r.logger.Info("test matrix started",
		"temperatures", len(m.Temperatures), "positions", len(m.Positions),
		"repeats", m.Repeats, "points", m.Size(), "stop_on_failure", m.StopOnFailure)

	err := r.execute(ctx)

	res.EndedAt = time.Now()
	res.Passed = res.Stop == nil && len(res.Points) == m.Size() && len(res.Failed()) == 0

	if res.Stop != nil {
		r.logger.Warn("test matrix stopped", "point", res.Stop.Key.String(), "reason", res.Stop.Err)
	}
	r.logger.Info("test matrix finished", "passed", res.Passed,
		"points", len(res.Points), "failed", len(res.Failed()), "duration", res.Duration())

	return res, err
}

// run holds the state of one Run call.
type run struct {
	s      *Sequencer
	m      Matrix
	res    *Result
	logger logger.Logger
}

func (r *run) execute(ctx context.Context) error {
	first := Key{Temperature: r.m.Temperatures[0], Position: r.m.Positions[0], Repeat: 1}
	if err := r.prepare(ctx); err != nil {
		if ctx.Err() != nil {
			return r.cancel(first, ctx.Err())
		}
		r.fail(first, StagePrepare, err)
		r.res.Stop = &Stop{Key: first, Err: r.lastErr()}
		return nil
	}

	for _, temp := range r.m.Temperatures {
		key := Key{Temperature: temp, Position: r.m.Positions[0], Repeat: 1}
		if err := ctx.Err(); err != nil {
			return r.cancel(key, err)
		}

		stage, err := r.settle(ctx, temp)
		if err != nil {
			if ctx.Err() != nil {
				return r.cancel(key, ctx.Err())
			}
			if r.failBlock(temp, r.m.Positions, stage, err) {
				return nil
			}
			if stopped, err := r.afterTemperature(ctx, temp); stopped {
				return err
			}
			continue
		}

		for _, pos := range r.m.Positions {
			stopped, err := r.position(ctx, temp, pos)
			if err != nil || stopped {
				return err
			}
		}

		if stopped, err := r.afterTemperature(ctx, temp); stopped {
			return err
		}
	}

	return nil
}

// position moves to pos and samples every repeat. It reports whether the run
// stopped.
func (r *run) position(ctx context.Context, temp, pos float64) (bool, error) {
	key := Key{Temperature: temp, Position: pos, Repeat: 1}
	if err := ctx.Err(); err != nil {
		return true, r.cancel(key, err)
	}

	if err := r.move(ctx, pos); err != nil {
		if ctx.Err() != nil {
			return true, r.cancel(key, ctx.Err())
		}
		return r.failBlock(temp, []float64{pos}, StageMove, err), nil
	}

	cycle := CycleResult{Temperature: temp, Position: pos, StartedAt: time.Now(), Passed: true}
	defer func() {
		cycle.EndedAt = time.Now()
		r.res.Cycles = append(r.res.Cycles, cycle)
	}()

	for rep := 1; rep <= r.m.Repeats; rep++ {
		key.Repeat = rep
		if err := ctx.Err(); err != nil {
			cycle.Passed = false
			return true, r.cancel(key, err)
		}

		force, err := r.sample(ctx)
		if err != nil && ctx.Err() != nil {
			cycle.Passed = false
			return true, r.cancel(key, ctx.Err())
		}

		p := r.evaluate(key, force, err)
		if err == nil {
			cycle.Forces = append(cycle.Forces, force)
		}
		if !p.Passed {
			cycle.Passed = false
			if r.m.StopOnFailure {
				r.res.Stop = &Stop{Key: key, Err: p.Err}
				return true, nil
			}
		}
	}

	return false, nil
}

// prepare homes the axis, sets up the station and runs the initial standby
// cycle, each when configured. It stops at the first error.
func (r *run) prepare(ctx context.Context) error {
	if r.m.HomeBeforeRun {
		axis := r.m.Motion.Axis
		if err := r.s.robot.EnableServo(ctx, axis); err != nil {
			return err
		}
		r.logger.Info("homing axis", "axis", axis)
		if err := r.s.robot.HomeAxis(ctx, axis); err != nil {
			return err
		}
	}

	if st := r.m.Setup; st != nil {
		if st.WaitBoot {
			r.logger.Info("waiting for controller boot")
			if err := r.s.preparer.WaitBootComplete(ctx); err != nil {
				return fmt.Errorf("boot: %w", err)
			}
			if err := sleep(ctx, st.BootSettle); err != nil {
				return err
			}
		}
		if st.TestMode > 0 {
			if err := r.s.preparer.SetTestMode(ctx, st.TestMode); err != nil {
				return fmt.Errorf("test mode %d: %w", st.TestMode, err)
			}
		}
	}

	sb := r.m.Standby
	if sb == nil {
		return nil
	}
	if err := r.standbyHeat(ctx); err != nil {
		return err
	}
	if p := sb.MaxStroke; p != nil {
		if err := r.move(ctx, *p); err != nil {
			return fmt.Errorf("move to max stroke %g: %w", *p, err)
		}
	}
	if p := r.m.ReturnPosition; p != nil {
		if err := r.move(ctx, *p); err != nil {
			return fmt.Errorf("return to %g: %w", *p, err)
		}
	}
	if err := r.standbyCool(ctx); err != nil {
		return err
	}
	r.logger.Info("standby cycle completed", "standby", sb.Standby)

	return nil
}

// standbyHeat sets the limits and heats to the activation temperature.
func (r *run) standbyHeat(ctx context.Context) error {
	sb := r.m.Standby
	h := r.s.heater
	if err := h.SetUpperTemperature(ctx, sb.UpperTemperature); err != nil {
		return fmt.Errorf("upper temperature: %w", err)
	}
	if err := sleep(ctx, sb.CommandSettle); err != nil {
		return err
	}
	if err := h.SetFanSpeed(ctx, sb.FanLevel); err != nil {
		return fmt.Errorf("fan speed: %w", err)
	}
	if err := sleep(ctx, sb.CommandSettle); err != nil {
		return err
	}

	r.logger.Info("standby heating", "activation", sb.Activation, "standby", sb.Standby)
	if err := h.StartStandbyHeating(ctx, sb.Activation, sb.Standby, sb.Hold); err != nil {
		return fmt.Errorf("standby heating: %w", err)
	}
	if err := sleep(ctx, sb.CommandSettle); err != nil {
		return err
	}
	if r.m.Verify != nil {
		if err := r.verify(ctx, sb.Activation); err != nil {
			return fmt.Errorf("activation temperature: %w", err)
		}
	}

	return nil
}

// standbyCool cools to standby and, with a standby profile, verifies the
// standby temperature.
func (r *run) standbyCool(ctx context.Context) error {
	if err := r.s.cooler.StartStandbyCooling(ctx); err != nil {
		return fmt.Errorf("standby cooling: %w", err)
	}

	sb := r.m.Standby
	if sb == nil {
		return nil
	}
	if err := sleep(ctx, sb.CommandSettle); err != nil {
		return err
	}
	if r.m.Verify != nil {
		if err := r.verify(ctx, sb.Standby); err != nil {
			return fmt.Errorf("standby temperature: %w", err)
		}
	}

	return nil
}

// settle brings the device to temp and optionally verifies the reading.
func (r *run) settle(ctx context.Context, temp float64) (Stage, error) {
	r.logger.Info("settling temperature", "celsius", temp)
	start := time.Now()
	if err := r.s.thermal.SetOperatingTemperature(ctx, temp); err != nil {
		return StageThermal, err
	}
	r.logger.Info("temperature reached", "celsius", temp, "elapsed", time.Since(start))

	if r.m.Verify == nil {
		return StageThermal, nil
	}

	return StageVerify, r.verify(ctx, temp)
}

func (r *run) verify(ctx context.Context, target float64) error {
	chk := r.m.Verify

	var lastErr error
	for attempt := 0; attempt <= chk.Retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, chk.Interval); err != nil {
				return err
			}
		}

		v, err := r.s.reader.ReadTemperature(ctx)
		switch {
		case err != nil:
			lastErr = err
		case math.Abs(v-target) <= chk.Tolerance:
			return nil
		default:
			lastErr = fmt.Errorf("%w: read %.1f°C, want %.1f±%.1f°C", ErrTemperatureNotReached, v, target, chk.Tolerance)
		}
		r.logger.Debug("temperature verification attempt failed", "attempt", attempt+1, "error", lastErr)
	}

	return lastErr
}

func (r *run) move(ctx context.Context, pos float64) error {
	mp := r.m.Motion
	if err := r.s.robot.MoveAbsolute(ctx, pos, mp.Axis, mp.Velocity, mp.Acceleration, mp.Deceleration); err != nil {
		return err
	}

	return sleep(ctx, r.m.MoveSettle)
}

func (r *run) sample(ctx context.Context) (float64, error) {
	if r.m.PeakWindow > 0 {
		return r.s.loadCell.ReadPeakForce(ctx, r.m.PeakWindow, r.m.PeakInterval)
	}

	return r.s.loadCell.ReadForce(ctx)
}

// evaluate records the point of key from a sample outcome.
func (r *run) evaluate(key Key, force float64, err error) Point {
	p := Point{Key: key, Force: force, At: time.Now()}
	switch {
	case err != nil:
		p.Err = &PointError{Key: key, Stage: StageSample, Err: err}
	case !r.m.Criteria.Evaluate(force):
		p.Err = &PointError{Key: key, Stage: StageCriteria,
			Err: fmt.Errorf("%w: %g not in %s", ErrOutOfRange, force, r.m.Criteria)}
	default:
		p.Passed = true
	}
	r.record(p)

	return p
}

// failBlock records err for every point a failed operation prevented. In
// stop mode only the first such point is recorded and the run stops.
func (r *run) failBlock(temp float64, positions []float64, stage Stage, err error) bool {
	for _, pos := range positions {
		for rep := 1; rep <= r.m.Repeats; rep++ {
			key := Key{Temperature: temp, Position: pos, Repeat: rep}
			r.fail(key, stage, err)
			if r.m.StopOnFailure {
				r.res.Stop = &Stop{Key: key, Err: r.lastErr()}
				return true
			}
		}
		now := time.Now()
		r.res.Cycles = append(r.res.Cycles, CycleResult{Temperature: temp, Position: pos, StartedAt: now, EndedAt: now})
	}

	return false
}

func (r *run) fail(key Key, stage Stage, err error) {
	r.record(Point{Key: key, Err: &PointError{Key: key, Stage: stage, Err: err}, At: time.Now()})
}

// lastKey is the key of the last recorded point, or the first key of temp
// when nothing was recorded.
func (r *run) lastKey(temp float64) Key {
	if n := len(r.res.Points); n > 0 {
		return r.res.Points[n-1].Key
	}

	return Key{Temperature: temp, Position: r.m.Positions[0], Repeat: 1}
}

func (r *run) lastErr() error {
	return r.res.Points[len(r.res.Points)-1].Err
}

func (r *run) record(p Point) {
	r.res.Points = append(r.res.Points, p)
	if p.Passed {
		r.logger.Debug("point passed", "point", p.Key.String(), "force", p.Force)
	} else {
		r.logger.Warn("point failed", "point", p.Key.String(), "force", p.Force, "reason", p.Err)
	}

	if r.s.observer != nil {
		r.s.observer(p)
	}
}

func (r *run) cancel(key Key, err error) error {
	r.res.Stop = &Stop{Key: key, Err: err}
	return err
}

// afterTemperature runs the standby heating, returns the axis and cools to
// standby, each when configured. A failed heating step does not prevent the
// return move or cooling. Errors are kept in the result; in stop mode they
// end the run. It reports whether the run stopped.
func (r *run) afterTemperature(ctx context.Context, temp float64) (bool, error) {
	var errs []error
	if r.m.Standby != nil {
		if err := r.standbyHeat(ctx); err != nil {
			errs = append(errs, fmt.Errorf("after %g°C: %w", temp, err))
		}
	}
	if p := r.m.ReturnPosition; p != nil && ctx.Err() == nil {
		if err := r.move(ctx, *p); err != nil {
			errs = append(errs, fmt.Errorf("return to %g after %g°C: %w", *p, temp, err))
		}
	}
	if (r.m.StandbyCooling || r.m.Standby != nil) && ctx.Err() == nil {
		if err := r.standbyCool(ctx); err != nil {
			errs = append(errs, fmt.Errorf("after %g°C: %w", temp, err))
		}
	}
	if len(errs) == 0 {
		return false, nil
	}

	r.res.CleanupErrors = append(r.res.CleanupErrors, errs...)
	last := r.lastKey(temp)
	if ctx.Err() != nil {
		return true, r.cancel(last, ctx.Err())
	}
	for _, err := range errs {
		r.logger.Error("post temperature step failed", "celsius", temp, "error", err)
	}
	if r.m.StopOnFailure {
		r.res.Stop = &Stop{Key: last, Err: errors.Join(errs...)}
		return true, nil
	}

	return false, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := pool.GetTimer(d)
	defer pool.PutTimer(t)

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
