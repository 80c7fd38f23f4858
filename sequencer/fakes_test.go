package sequencer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// bench is a stateful station fake: the load cell answers with force(temp, pos).
type bench struct {
	mu          sync.Mutex
	temperature float64
	position    float64
	repeat      map[[2]float64]int

	force       func(temp, pos float64, rep int) float64
	thermalErr  map[float64]error
	moveErr     map[float64]error
	readings    []float64
	coolErr     error
	heatErr     error
	bootErr     error
	sampleDelay time.Duration
	standby     *float64

	temps    []float64
	moves    []float64
	cools    int
	readCall int
	calls    []string
}

func newBench(force func(temp, pos float64, rep int) float64) *bench {
	return &bench{
		force:      force,
		repeat:     make(map[[2]float64]int),
		thermalErr: make(map[float64]error),
		moveErr:    make(map[float64]error),
	}
}

func (b *bench) SetOperatingTemperature(_ context.Context, celsius float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.temps = append(b.temps, celsius)
	b.calls = append(b.calls, fmt.Sprintf("operating %g", celsius))
	if err := b.thermalErr[celsius]; err != nil {
		return err
	}
	b.temperature = celsius

	return nil
}

func (b *bench) ReadTemperature(_ context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readCall++
	b.calls = append(b.calls, "read")
	if len(b.readings) == 0 {
		return b.temperature, nil
	}
	v := b.readings[0]
	b.readings = b.readings[1:]

	return v, nil
}

func (b *bench) StartStandbyCooling(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cools++
	b.calls = append(b.calls, "cool")
	if b.coolErr != nil {
		return b.coolErr
	}
	if b.standby != nil {
		b.temperature = *b.standby
	}

	return nil
}

func (b *bench) WaitBootComplete(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "boot")

	return b.bootErr
}

func (b *bench) SetTestMode(_ context.Context, mode int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, fmt.Sprintf("mode %d", mode))

	return nil
}

func (b *bench) SetUpperTemperature(_ context.Context, celsius float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, fmt.Sprintf("upper %g", celsius))

	return nil
}

func (b *bench) SetFanSpeed(_ context.Context, level int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, fmt.Sprintf("fan %d", level))

	return nil
}

func (b *bench) StartStandbyHeating(_ context.Context, activation, standby float64, hold time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, fmt.Sprintf("heat %g/%g/%v", activation, standby, hold))
	if b.heatErr != nil {
		return b.heatErr
	}
	b.temperature = activation
	b.standby = &standby

	return nil
}

func (b *bench) Connect(context.Context) error { return nil }

func (b *bench) MoveAbsolute(_ context.Context, position float64, _ int, _, _, _ float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.moves = append(b.moves, position)
	b.calls = append(b.calls, fmt.Sprintf("move %g", position))
	if err := b.moveErr[position]; err != nil {
		return err
	}
	b.position = position

	return nil
}

func (b *bench) GetPosition(context.Context, int) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.position, nil
}

func (b *bench) EnableServo(context.Context, int) error   { return nil }
func (b *bench) HomeAxis(context.Context, int) error      { return nil }
func (b *bench) EmergencyStop(context.Context, int) error { return nil }

func (b *bench) ReadForce(ctx context.Context) (float64, error) {
	if b.sampleDelay > 0 {
		select {
		case <-time.After(b.sampleDelay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	k := [2]float64{b.temperature, b.position}
	b.repeat[k]++

	return b.force(b.temperature, b.position, b.repeat[k]), nil
}

func (b *bench) ReadPeakForce(ctx context.Context, _, _ time.Duration) (float64, error) {
	return b.ReadForce(ctx)
}

type mockThermal struct{ mock.Mock }

func (m *mockThermal) SetOperatingTemperature(ctx context.Context, celsius float64) error {
	return m.Called(ctx, celsius).Error(0)
}

type mockRobot struct{ mock.Mock }

func (m *mockRobot) Connect(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *mockRobot) MoveAbsolute(ctx context.Context, position float64, axis int, velocity, accel, decel float64) error {
	return m.Called(ctx, position, axis, velocity, accel, decel).Error(0)
}

func (m *mockRobot) GetPosition(ctx context.Context, axis int) (float64, error) {
	args := m.Called(ctx, axis)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockRobot) EnableServo(ctx context.Context, axis int) error {
	return m.Called(ctx, axis).Error(0)
}

func (m *mockRobot) HomeAxis(ctx context.Context, axis int) error {
	return m.Called(ctx, axis).Error(0)
}

func (m *mockRobot) EmergencyStop(ctx context.Context, axis int) error {
	return m.Called(ctx, axis).Error(0)
}

type mockLoadCell struct{ mock.Mock }

func (m *mockLoadCell) ReadForce(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockLoadCell) ReadPeakForce(ctx context.Context, window, interval time.Duration) (float64, error) {
	args := m.Called(ctx, window, interval)
	return args.Get(0).(float64), args.Error(1)
}

func constForce(v float64) func(float64, float64, int) float64 {
	return func(float64, float64, int) float64 { return v }
}

func key(t, p float64, r int) Key { return Key{Temperature: t, Position: p, Repeat: r} }

func keys(points []Point) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = fmt.Sprint(p.Key)
	}

	return out
}
