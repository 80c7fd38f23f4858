package mcu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, DefaultAckTimeout, cfg.AckTimeout())
	assert.Equal(t, DefaultAckPollInterval, cfg.AckPollInterval())
	assert.Equal(t, DefaultCompletionPollInterval, cfg.CompletionPollInterval())
	assert.Equal(t, DefaultBootTimeout, cfg.BootTimeout())
	assert.False(t, cfg.LenientFraming())
	assert.NotNil(t, cfg.GetLogger())

	d, err := cfg.Descriptor(StartStandbyCooling)
	require.NoError(t, err)
	assert.Equal(t, byte(0x0C), d.Completion.Code)
	assert.Equal(t, 120*time.Second, d.Completion.Timeout)
}

func TestConfig_CompletionOverrides(t *testing.T) {
	cfg, err := NewConfig(
		WithCompletionTimeout(SetCoolingTemperature, time.Minute),
		WithCompletionCode(SetCoolingTemperature, 0x0C),
	)
	require.NoError(t, err)

	d, err := cfg.Descriptor(SetCoolingTemperature)
	require.NoError(t, err)
	assert.Equal(t, byte(0x0C), d.Completion.Code)
	assert.Equal(t, time.Minute, d.Completion.Timeout)

	// overrides never leak into the shared table
	orig, _ := Lookup(SetCoolingTemperature)
	assert.Equal(t, byte(0x0D), orig.Completion.Code)
	assert.Equal(t, DefaultCoolingTimeout, orig.Completion.Timeout)

	_, err = cfg.Descriptor(Command(0))
	require.ErrorIs(t, err, ErrUnknownCommand)
}

func TestConfig_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"ack timeout too short", WithAckTimeout(time.Millisecond)},
		{"ack timeout too long", WithAckTimeout(2 * time.Minute)},
		{"ack poll too short", WithAckPollInterval(time.Microsecond)},
		{"completion poll too long", WithCompletionPollInterval(2 * time.Second)},
		{"boot timeout too long", WithBootTimeout(3 * time.Minute)},
		{"close timeout zero", WithCloseTimeout(0)},
		{"completion timeout on single phase", WithCompletionTimeout(SetFanSpeed, time.Second)},
		{"completion timeout too long", WithCompletionTimeout(SetCoolingTemperature, time.Hour)},
		{"completion code reserved", WithCompletionCode(SetCoolingTemperature, BootCompleteCode)},
		{"completion code unknown command", WithCompletionCode(Command(77), 0x0C)},
		{"nil logger", WithLogger(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(tt.opt)
			require.Error(t, err)
		})
	}
}
