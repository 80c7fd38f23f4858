package mcu

import (
	"fmt"
	"time"

	"github.com/arloliu/go-eol/logger"
)

// Default client timing.
const (
	DefaultAckTimeout             = 5 * time.Second
	DefaultAckPollInterval        = time.Millisecond
	DefaultCompletionPollInterval = 10 * time.Millisecond
	DefaultBootTimeout            = 60 * time.Second
	DefaultCloseTimeout           = 3 * time.Second
)

// Timing limits.
const (
	MinAckTimeout = 10 * time.Millisecond
	MaxAckTimeout = 60 * time.Second

	MinPollInterval = 100 * time.Microsecond
	MaxPollInterval = time.Second

	MinCompletionTimeout = 10 * time.Millisecond
	MaxCompletionTimeout = 10 * time.Minute

	MinBootTimeout = 100 * time.Millisecond
	MaxBootTimeout = 2 * time.Minute
)

// Config holds the protocol client configuration.
type Config struct {
	ackTimeout             time.Duration
	ackPollInterval        time.Duration
	completionPollInterval time.Duration
	bootTimeout            time.Duration
	closeTimeout           time.Duration

	// lenientFraming accepts several frames in one read instead of
	// reporting a protocol violation.
	lenientFraming bool

	completionOverrides map[Command]Completion

	logger logger.Logger
}

// NewConfig creates a client configuration.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		ackTimeout:             DefaultAckTimeout,
		ackPollInterval:        DefaultAckPollInterval,
		completionPollInterval: DefaultCompletionPollInterval,
		bootTimeout:            DefaultBootTimeout,
		closeTimeout:           DefaultCloseTimeout,
		completionOverrides:    make(map[Command]Completion),
		logger:                 logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// AckTimeout returns how long to wait for an acknowledge frame.
func (cfg *Config) AckTimeout() time.Duration { return cfg.ackTimeout }

// AckPollInterval returns the read granularity of the ack phase.
func (cfg *Config) AckPollInterval() time.Duration { return cfg.ackPollInterval }

// CompletionPollInterval returns the read granularity of the completion phase.
func (cfg *Config) CompletionPollInterval() time.Duration { return cfg.completionPollInterval }

// BootTimeout returns how long WaitBoot waits for the boot signal.
func (cfg *Config) BootTimeout() time.Duration { return cfg.bootTimeout }

// LenientFraming reports whether several frames per read are accepted.
func (cfg *Config) LenientFraming() bool { return cfg.lenientFraming }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Descriptor returns the descriptor of cmd with any configured completion
// overrides applied.
func (cfg *Config) Descriptor(cmd Command) (Descriptor, error) {
	d, ok := Lookup(cmd)
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %d", ErrUnknownCommand, uint8(cmd))
	}

	if o, ok := cfg.completionOverrides[cmd]; ok {
		c := *d.Completion
		if o.Code != 0 {
			c.Code = o.Code
		}
		if o.Timeout != 0 {
			c.Timeout = o.Timeout
		}
		d.Completion = &c
	}

	return d, nil
}

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithAckTimeout sets the acknowledge timeout, 10ms–60s.
func WithAckTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinAckTimeout || d > MaxAckTimeout {
			return fmt.Errorf("mcu: ack timeout %v out of range [%v, %v]", d, MinAckTimeout, MaxAckTimeout)
		}
		cfg.ackTimeout = d

		return nil
	})
}

// WithAckPollInterval sets the ack phase read granularity, 100µs–1s.
func WithAckPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinPollInterval || d > MaxPollInterval {
			return fmt.Errorf("mcu: ack poll interval %v out of range [%v, %v]", d, MinPollInterval, MaxPollInterval)
		}
		cfg.ackPollInterval = d

		return nil
	})
}

// WithCompletionPollInterval sets the completion phase read granularity, 100µs–1s.
func WithCompletionPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinPollInterval || d > MaxPollInterval {
			return fmt.Errorf("mcu: completion poll interval %v out of range [%v, %v]", d, MinPollInterval, MaxPollInterval)
		}
		cfg.completionPollInterval = d

		return nil
	})
}

// WithBootTimeout sets how long WaitBoot waits, 100ms–2m. The firmware
// normally signals within 30 to 60 seconds of power-up.
func WithBootTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinBootTimeout || d > MaxBootTimeout {
			return fmt.Errorf("mcu: boot timeout %v out of range [%v, %v]", d, MinBootTimeout, MaxBootTimeout)
		}
		cfg.bootTimeout = d

		return nil
	})
}

// WithCloseTimeout sets how long Close waits for a pending exchange to stop.
func WithCloseTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("mcu: close timeout must be positive, got %v", d)
		}
		cfg.closeTimeout = d

		return nil
	})
}

// WithCompletionTimeout overrides the completion timeout of cmd, 10ms–10m.
func WithCompletionTimeout(cmd Command, d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := requireCompletion(cmd); err != nil {
			return err
		}
		if d < MinCompletionTimeout || d > MaxCompletionTimeout {
			return fmt.Errorf("mcu: %s completion timeout %v out of range [%v, %v]",
				cmd, d, MinCompletionTimeout, MaxCompletionTimeout)
		}
		o := cfg.completionOverrides[cmd]
		o.Timeout = d
		cfg.completionOverrides[cmd] = o

		return nil
	})
}

// WithCompletionCode overrides the completion code of cmd.
//
// Firmware revisions disagree on the cooling completion codes, so both
// cooling commands keep their own independently configurable code.
func WithCompletionCode(cmd Command, code byte) Option {
	return optFunc(func(cfg *Config) error {
		if err := requireCompletion(cmd); err != nil {
			return err
		}
		if code == BootCompleteCode {
			return fmt.Errorf("mcu: completion code 0x%02X is reserved for the boot signal", code)
		}
		o := cfg.completionOverrides[cmd]
		o.Code = code
		cfg.completionOverrides[cmd] = o

		return nil
	})
}

// WithLenientFraming accepts several frames in one read window and handles
// them in order instead of failing with a protocol violation.
func WithLenientFraming() Option {
	return optFunc(func(cfg *Config) error {
		cfg.lenientFraming = true
		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return fmt.Errorf("mcu: nil logger")
		}
		cfg.logger = l

		return nil
	})
}

func requireCompletion(cmd Command) error {
	d, ok := Lookup(cmd)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownCommand, uint8(cmd))
	}
	if !d.HasCompletion() {
		return fmt.Errorf("mcu: %s has no completion phase", d.Name)
	}

	return nil
}
