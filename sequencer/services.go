package sequencer

import (
	"context"
	"time"
)

// ThermalController settles the device under test at a temperature. The call
// returns once the controller has confirmed the target was reached.
type ThermalController interface {
	SetOperatingTemperature(ctx context.Context, celsius float64) error
}

// TemperatureReader reads back the measured temperature. A ThermalController
// that also implements it enables temperature verification.
type TemperatureReader interface {
	ReadTemperature(ctx context.Context) (float64, error)
}

// StandbyCooler returns the device to its standby temperature. A
// ThermalController that also implements it enables standby cooling between
// temperatures.
type StandbyCooler interface {
	StartStandbyCooling(ctx context.Context) error
}

// StationPreparer brings the controller into test mode after power-up. A
// ThermalController that also implements it enables Matrix.Setup.
type StationPreparer interface {
	WaitBootComplete(ctx context.Context) error
	SetTestMode(ctx context.Context, mode int) error
}

// StandbyHeater configures the controller limits and runs the standby
// heating cycle: heat to the activation temperature, then fall back to the
// standby temperature after hold. A ThermalController that also implements
// it, together with StandbyCooler, enables Matrix.Standby.
type StandbyHeater interface {
	SetUpperTemperature(ctx context.Context, celsius float64) error
	SetFanSpeed(ctx context.Context, level int) error
	StartStandbyHeating(ctx context.Context, activation, standby float64, hold time.Duration) error
}

// RobotService drives the stroke axis.
type RobotService interface {
	Connect(ctx context.Context) error
	MoveAbsolute(ctx context.Context, position float64, axis int, velocity, accel, decel float64) error
	GetPosition(ctx context.Context, axis int) (float64, error)
	EnableServo(ctx context.Context, axis int) error
	HomeAxis(ctx context.Context, axis int) error
	EmergencyStop(ctx context.Context, axis int) error
}

// LoadCellService samples the force sensor.
type LoadCellService interface {
	ReadForce(ctx context.Context) (float64, error)
	// ReadPeakForce samples every interval for window and returns the
	// largest absolute force seen.
	ReadPeakForce(ctx context.Context, window, interval time.Duration) (float64, error)
}

// PowerService controls the bench power supply. It is driven by the station
// facade around a run, not by the sequencer itself.
type PowerService interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	SetVoltage(ctx context.Context, volts float64) error
	SetCurrentLimit(ctx context.Context, amps float64) error
	SetOutput(ctx context.Context, enabled bool) error
	ReadVoltage(ctx context.Context) (float64, error)
	ReadCurrent(ctx context.Context) (float64, error)
}

// DigitalIOService reads operator inputs and drives indicator outputs. Like
// PowerService it belongs to the station facade.
type DigitalIOService interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	ReadInput(ctx context.Context, channel int) (bool, error)
	WriteOutput(ctx context.Context, channel int, level bool) error
}
