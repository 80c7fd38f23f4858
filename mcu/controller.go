package mcu

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/arloliu/go-eol/logger"
)

// maxTransitions bounds the thermal transition history.
const maxTransitions = 256

// ThermalState is the last thermal activity requested from the MCU.
type ThermalState uint8

const (
	ThermalIdle ThermalState = iota
	ThermalHeating
	ThermalCooling
)

func (s ThermalState) String() string {
	switch s {
	case ThermalHeating:
		return "heating"
	case ThermalCooling:
		return "cooling"
	default:
		return "idle"
	}
}

// Status is a snapshot of what the controller last commanded and observed.
type Status struct {
	Booted             bool
	TestMode           int
	FanLevel           int
	UpperTemperature   float64
	TargetTemperature  float64
	StandbyTemperature float64
	Thermal            ThermalState
	// Confirmed is false when the last thermal command was acknowledged
	// but its completion never arrived.
	Confirmed   bool
	LastReading *Reading
	UpdatedAt   time.Time
}

// Transition records the timing of one heating or cooling command.
type Transition struct {
	Operation string
	From      float64
	To        float64
	StartedAt time.Time
	Duration  time.Duration
	Confirmed bool
}

func (t Transition) String() string {
	return fmt.Sprintf("%.1f°C -> %.1f°C", t.From, t.To)
}

// Controller exposes the MCU command table as named operations and keeps a
// status snapshot plus a heating/cooling timing history.
//
// Errors are *CommandError values wrapping the typed protocol error.
type Controller struct {
	client *Client
	logger logger.Logger

	mu          sync.RWMutex
	status      Status
	transitions []Transition
}

// NewController creates a controller on an opened or to-be-opened client.
func NewController(client *Client) *Controller {
	return &Controller{
		client: client,
		logger: client.GetLogger(),
	}
}

// Client returns the underlying protocol client.
func (ctl *Controller) Client() *Client { return ctl.client }

// WaitBootComplete waits for the MCU boot signal.
func (ctl *Controller) WaitBootComplete(ctx context.Context) error {
	if err := ctl.client.WaitBoot(ctx); err != nil {
		return &CommandError{Op: "wait boot complete", Err: err}
	}

	ctl.update(func(s *Status) { s.Booted = true })

	return nil
}

// SetTestMode selects test mode 1 to 3.
func (ctl *Controller) SetTestMode(ctx context.Context, mode int) error {
	if _, err := ctl.run(ctx, SetTestMode, float64(mode)); err != nil {
		return err
	}
	ctl.update(func(s *Status) { s.TestMode = mode })
	ctl.logger.Info("test mode set", "mode", mode)

	return nil
}

// SetUpperTemperature sets the upper temperature limit.
func (ctl *Controller) SetUpperTemperature(ctx context.Context, celsius float64) error {
	if _, err := ctl.run(ctx, SetUpperTemperature, celsius); err != nil {
		return err
	}
	ctl.update(func(s *Status) { s.UpperTemperature = celsius })
	ctl.logger.Info("upper temperature set", "celsius", celsius)

	return nil
}

// SetFanSpeed sets the fan level 1 to 10.
func (ctl *Controller) SetFanSpeed(ctx context.Context, level int) error {
	if _, err := ctl.run(ctx, SetFanSpeed, float64(level)); err != nil {
		return err
	}
	ctl.update(func(s *Status) { s.FanLevel = level })
	ctl.logger.Info("fan speed set", "level", level)

	return nil
}

// StartStandbyHeating heats to operating and holds for hold before settling
// at standby. It returns once the MCU confirms the operating temperature.
func (ctl *Controller) StartStandbyHeating(ctx context.Context, operating, standby float64, hold time.Duration) error {
	if hold < 0 {
		return &CommandError{Op: StartStandbyHeating.String(), Err: fmt.Errorf("%w: negative hold time %v", ErrInvalidArgument, hold)}
	}
	holdMs := float64(hold.Milliseconds())

	return ctl.thermal(ctx, StartStandbyHeating, operating, ThermalHeating, func(s *Status) {
		s.StandbyTemperature = standby
	}, operating, standby, holdMs)
}

// SetOperatingTemperature moves to celsius and returns once it is reached.
func (ctl *Controller) SetOperatingTemperature(ctx context.Context, celsius float64) error {
	state := ThermalHeating
	if celsius < ctl.Status().TargetTemperature {
		state = ThermalCooling
	}

	return ctl.thermal(ctx, SetOperatingTemperature, celsius, state, nil, celsius)
}

// SetCoolingTemperature cools to celsius and returns once it is reached.
func (ctl *Controller) SetCoolingTemperature(ctx context.Context, celsius float64) error {
	return ctl.thermal(ctx, SetCoolingTemperature, celsius, ThermalCooling, nil, celsius)
}

// StartStandbyCooling cools back to the standby temperature and returns once
// the MCU reports cooling complete.
func (ctl *Controller) StartStandbyCooling(ctx context.Context) error {
	return ctl.thermal(ctx, StartStandbyCooling, ctl.Status().StandbyTemperature, ThermalCooling, nil)
}

// GetTemperature queries the current maximum and minimum temperatures.
func (ctl *Controller) GetTemperature(ctx context.Context) (Reading, error) {
	reply, err := ctl.run(ctx, GetTemperature)
	if err != nil {
		return Reading{}, err
	}

	r, err := decodeReading(reply.Ack)
	if err != nil {
		return Reading{}, &CommandError{Op: GetTemperature.String(), Err: &OperationError{
			Command: GetTemperature.String(), Expected: reply.Ack.Command, Got: reply.Ack, Reason: err.Error(),
		}}
	}
	ctl.update(func(s *Status) { s.LastReading = &r })

	return r, nil
}

// ReadTemperature returns the measured (maximum) temperature.
func (ctl *Controller) ReadTemperature(ctx context.Context) (float64, error) {
	r, err := ctl.GetTemperature(ctx)
	return r.Max, err
}

// ConfirmCompletion waits again for the completion of a thermal command
// whose completion previously timed out, without resending it.
func (ctl *Controller) ConfirmCompletion(ctx context.Context, cmd Command) error {
	if _, err := ctl.client.AwaitCompletion(ctx, cmd); err != nil {
		return &CommandError{Op: cmd.String(), Err: err}
	}
	ctl.update(func(s *Status) { s.Confirmed = true })

	return nil
}

// Status returns a snapshot of the controller status.
func (ctl *Controller) Status() Status {
	ctl.mu.RLock()
	defer ctl.mu.RUnlock()

	s := ctl.status
	if s.LastReading != nil {
		r := *s.LastReading
		s.LastReading = &r
	}

	return s
}

// Transitions returns the recorded heating and cooling timings, oldest first.
func (ctl *Controller) Transitions() []Transition {
	ctl.mu.RLock()
	defer ctl.mu.RUnlock()

	out := make([]Transition, len(ctl.transitions))
	copy(out, ctl.transitions)

	return out
}

// ClearTransitions empties the timing history.
func (ctl *Controller) ClearTransitions() {
	ctl.mu.Lock()
	ctl.transitions = nil
	ctl.mu.Unlock()
}

func (ctl *Controller) run(ctx context.Context, cmd Command, args ...float64) (*Reply, error) {
	reply, err := ctl.client.Exchange(ctx, cmd, args...)
	if err != nil {
		ctl.logger.Error("mcu command failed", "command", cmd.String(), "error", err)
		return reply, &CommandError{Op: cmd.String(), Err: err}
	}

	return reply, nil
}

// thermal runs a two-phase thermal command and records its outcome. A
// command that was acknowledged stays recorded as requested even when its
// completion timed out.
func (ctl *Controller) thermal(ctx context.Context, cmd Command, target float64, state ThermalState, apply func(*Status), args ...float64) error {
	from := ctl.Status().TargetTemperature
	start := time.Now()

	reply, err := ctl.run(ctx, cmd, args...)
	if reply == nil || reply.Ack == nil {
		return err
	}

	confirmed := err == nil
	ctl.mu.Lock()
	ctl.status.TargetTemperature = target
	ctl.status.Thermal = state
	ctl.status.Confirmed = confirmed
	if apply != nil {
		apply(&ctl.status)
	}
	ctl.status.UpdatedAt = time.Now()
	t := Transition{
		Operation: cmd.String(),
		From:      from,
		To:        target,
		StartedAt: start,
		Duration:  time.Since(start),
		Confirmed: confirmed,
	}
	ctl.transitions = append(ctl.transitions, t)
	if len(ctl.transitions) > maxTransitions {
		ctl.transitions = ctl.transitions[len(ctl.transitions)-maxTransitions:]
	}
	ctl.mu.Unlock()

	if confirmed {
		ctl.logger.Info("thermal target reached", "command", cmd.String(), "transition", t.String(), "duration", t.Duration)
	} else {
		ctl.logger.Warn("thermal command acknowledged but not confirmed", "command", cmd.String(), "transition", t.String())
	}

	return err
}

func (ctl *Controller) update(fn func(*Status)) {
	ctl.mu.Lock()
	fn(&ctl.status)
	ctl.status.UpdatedAt = time.Now()
	ctl.mu.Unlock()
}

// FanLevelFromPercent maps a 0–100 % fan speed onto the MCU fan levels
// 1–10: 0 % is level 1 and 100 % is level 10.
func FanLevelFromPercent(percent float64) (int, error) {
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return 0, fmt.Errorf("%w: fan speed must be 0-100%%, got %g%%", ErrInvalidArgument, percent)
	}
	level := int(percent/100*9) + 1

	return max(1, min(10, level)), nil
}
