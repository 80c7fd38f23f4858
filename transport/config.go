package transport

import (
	"fmt"
	"strings"
	"time"

	"github.com/arloliu/go-eol/logger"
)

// Default serial parameters of the station MCU.
const (
	DefaultBaudRate    = 115200
	DefaultDataBits    = 8
	DefaultTimeout     = 5 * time.Second
	DefaultDialTimeout = 3 * time.Second
)

const (
	MinTimeout = time.Millisecond
	MaxTimeout = 5 * time.Minute
)

// TCPScheme prefixes a port name that refers to a TCP serial bridge,
// e.g. "tcp://192.168.0.10:4001".
const TCPScheme = "tcp://"

var validBaudRates = map[int]struct{}{
	1200: {}, 2400: {}, 4800: {}, 9600: {}, 19200: {}, 38400: {},
	57600: {}, 115200: {}, 230400: {}, 460800: {}, 921600: {},
}

// Parity is the serial parity mode.
type Parity uint8

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "N"
	case ParityOdd:
		return "O"
	case ParityEven:
		return "E"
	case ParityMark:
		return "M"
	case ParitySpace:
		return "S"
	default:
		return "?"
	}
}

// ParseParity accepts the single letter (N, O, E, M, S) or full name forms.
func ParseParity(s string) (Parity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "N", "NONE", "":
		return ParityNone, nil
	case "O", "ODD":
		return ParityOdd, nil
	case "E", "EVEN":
		return ParityEven, nil
	case "M", "MARK":
		return ParityMark, nil
	case "S", "SPACE":
		return ParitySpace, nil
	default:
		return ParityNone, fmt.Errorf("transport: unknown parity %q", s)
	}
}

// StopBits is the number of serial stop bits.
type StopBits uint8

const (
	OneStopBit StopBits = iota
	OnePointFiveStopBits
	TwoStopBits
)

func (s StopBits) String() string {
	switch s {
	case OneStopBit:
		return "1"
	case OnePointFiveStopBits:
		return "1.5"
	case TwoStopBits:
		return "2"
	default:
		return "?"
	}
}

// ParseStopBits converts 1, 1.5 or 2 into StopBits.
func ParseStopBits(v float64) (StopBits, error) {
	switch v {
	case 1:
		return OneStopBit, nil
	case 1.5:
		return OnePointFiveStopBits, nil
	case 2:
		return TwoStopBits, nil
	default:
		return OneStopBit, fmt.Errorf("transport: invalid stop bits %v", v)
	}
}

// Config holds the parameters of a byte-stream transport.
type Config struct {
	port        string
	baudRate    int
	dataBits    int
	parity      Parity
	stopBits    StopBits
	timeout     time.Duration
	dialTimeout time.Duration
	logger      logger.Logger
}

// NewConfig creates a transport configuration for port.
//
// port is a serial device name ("/dev/ttyUSB0", "COM3") or a TCP bridge
// address with the tcp:// scheme.
func NewConfig(port string, opts ...Option) (*Config, error) {
	if strings.TrimSpace(port) == "" {
		return nil, fmt.Errorf("transport: empty port name")
	}

	cfg := &Config{
		port:        port,
		baudRate:    DefaultBaudRate,
		dataBits:    DefaultDataBits,
		parity:      ParityNone,
		stopBits:    OneStopBit,
		timeout:     DefaultTimeout,
		dialTimeout: DefaultDialTimeout,
		logger:      logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Port returns the port name.
func (cfg *Config) Port() string { return cfg.port }

// IsTCP reports whether the port refers to a TCP serial bridge.
func (cfg *Config) IsTCP() bool { return strings.HasPrefix(cfg.port, TCPScheme) }

// BaudRate returns the serial baud rate.
func (cfg *Config) BaudRate() int { return cfg.baudRate }

// DataBits returns the number of data bits.
func (cfg *Config) DataBits() int { return cfg.dataBits }

// Parity returns the parity mode.
func (cfg *Config) Parity() Parity { return cfg.parity }

// StopBits returns the number of stop bits.
func (cfg *Config) StopBits() StopBits { return cfg.stopBits }

// Timeout returns the default read timeout.
func (cfg *Config) Timeout() time.Duration { return cfg.timeout }

// DialTimeout returns the TCP dial timeout used for tcp:// ports.
func (cfg *Config) DialTimeout() time.Duration { return cfg.dialTimeout }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// String renders the line settings, e.g. "/dev/ttyUSB0 115200 8N1".
func (cfg *Config) String() string {
	return fmt.Sprintf("%s %d %d%s%s", cfg.port, cfg.baudRate, cfg.dataBits, cfg.parity, cfg.stopBits)
}

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithBaudRate sets the baud rate. Only standard rates are accepted.
func WithBaudRate(baud int) Option {
	return optFunc(func(cfg *Config) error {
		if _, ok := validBaudRates[baud]; !ok {
			return fmt.Errorf("transport: unsupported baud rate %d", baud)
		}
		cfg.baudRate = baud

		return nil
	})
}

// WithDataBits sets the data bits, 5 to 8.
func WithDataBits(bits int) Option {
	return optFunc(func(cfg *Config) error {
		if bits < 5 || bits > 8 {
			return fmt.Errorf("transport: data bits %d out of range [5, 8]", bits)
		}
		cfg.dataBits = bits

		return nil
	})
}

// WithParity sets the parity mode.
func WithParity(p Parity) Option {
	return optFunc(func(cfg *Config) error {
		if p > ParitySpace {
			return fmt.Errorf("transport: invalid parity %d", p)
		}
		cfg.parity = p

		return nil
	})
}

// WithStopBits sets the stop bits.
func WithStopBits(s StopBits) Option {
	return optFunc(func(cfg *Config) error {
		if s > TwoStopBits {
			return fmt.Errorf("transport: invalid stop bits %d", s)
		}
		cfg.stopBits = s

		return nil
	})
}

// WithTimeout sets the default read timeout.
func WithTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinTimeout || d > MaxTimeout {
			return fmt.Errorf("transport: timeout %v out of range [%v, %v]", d, MinTimeout, MaxTimeout)
		}
		cfg.timeout = d

		return nil
	})
}

// WithDialTimeout sets the TCP dial timeout for tcp:// ports.
func WithDialTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("transport: dial timeout must be positive, got %v", d)
		}
		cfg.dialTimeout = d

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return fmt.Errorf("transport: nil logger")
		}
		cfg.logger = l

		return nil
	})
}
