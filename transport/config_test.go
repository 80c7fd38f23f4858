package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/arloliu/go-eol/logger"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig("/dev/ttyUSB0")
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Port())
	assert.Equal(t, DefaultBaudRate, cfg.BaudRate())
	assert.Equal(t, DefaultDataBits, cfg.DataBits())
	assert.Equal(t, ParityNone, cfg.Parity())
	assert.Equal(t, OneStopBit, cfg.StopBits())
	assert.Equal(t, DefaultTimeout, cfg.Timeout())
	assert.False(t, cfg.IsTCP())
	assert.NotNil(t, cfg.GetLogger())
	assert.Equal(t, "/dev/ttyUSB0 115200 8N1", cfg.String())
}

func TestNewConfig_Options(t *testing.T) {
	cfg, err := NewConfig("tcp://127.0.0.1:4001",
		WithBaudRate(9600),
		WithDataBits(7),
		WithParity(ParityEven),
		WithStopBits(TwoStopBits),
		WithTimeout(250*time.Millisecond),
		WithDialTimeout(time.Second),
		WithLogger(logger.NewMockLogger()),
	)
	require.NoError(t, err)

	assert.True(t, cfg.IsTCP())
	assert.Equal(t, 9600, cfg.BaudRate())
	assert.Equal(t, 7, cfg.DataBits())
	assert.Equal(t, ParityEven, cfg.Parity())
	assert.Equal(t, TwoStopBits, cfg.StopBits())
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout())
	assert.Equal(t, time.Second, cfg.DialTimeout())
	assert.Equal(t, "tcp://127.0.0.1:4001 9600 7E2", cfg.String())
}

func TestNewConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		port string
		opt  Option
	}{
		{"empty port", " ", nil},
		{"baud rate", "COM3", WithBaudRate(12345)},
		{"data bits low", "COM3", WithDataBits(4)},
		{"data bits high", "COM3", WithDataBits(9)},
		{"parity", "COM3", WithParity(Parity(9))},
		{"stop bits", "COM3", WithStopBits(StopBits(7))},
		{"timeout low", "COM3", WithTimeout(0)},
		{"timeout high", "COM3", WithTimeout(time.Hour)},
		{"dial timeout", "COM3", WithDialTimeout(-time.Second)},
		{"nil logger", "COM3", WithLogger(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.opt != nil {
				opts = append(opts, tt.opt)
			}
			_, err := NewConfig(tt.port, opts...)
			require.Error(t, err)
		})
	}
}

func TestParseParity(t *testing.T) {
	for in, want := range map[string]Parity{
		"N": ParityNone, "none": ParityNone, "": ParityNone,
		"O": ParityOdd, "even": ParityEven, "M": ParityMark, "space": ParitySpace,
	} {
		got, err := ParseParity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseParity("X")
	require.Error(t, err)
}

func TestParseStopBits(t *testing.T) {
	s, err := ParseStopBits(1)
	require.NoError(t, err)
	assert.Equal(t, OneStopBit, s)

	s, err = ParseStopBits(1.5)
	require.NoError(t, err)
	assert.Equal(t, "1.5", s.String())

	s, err = ParseStopBits(2)
	require.NoError(t, err)
	assert.Equal(t, TwoStopBits, s)

	_, err = ParseStopBits(3)
	require.Error(t, err)
}

func TestSerialMode(t *testing.T) {
	cfg, err := NewConfig("/dev/ttyS0", WithParity(ParityOdd), WithStopBits(OnePointFiveStopBits), WithDataBits(7))
	require.NoError(t, err)

	mode := serialMode(cfg)
	assert.Equal(t, DefaultBaudRate, mode.BaudRate)
	assert.Equal(t, 7, mode.DataBits)
	assert.Equal(t, serial.OddParity, mode.Parity)
	assert.Equal(t, serial.OnePointFiveStopBits, mode.StopBits)
}

func TestNew_SelectsImplementation(t *testing.T) {
	cfg, err := NewConfig("tcp://127.0.0.1:1")
	require.NoError(t, err)
	assert.IsType(t, &Stream{}, New(cfg))

	cfg, err = NewConfig("/dev/ttyUSB9")
	require.NoError(t, err)
	assert.IsType(t, &Serial{}, New(cfg))
}
