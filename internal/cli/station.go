package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/arloliu/go-eol/logger"
	"github.com/arloliu/go-eol/mcu"
	"github.com/arloliu/go-eol/sequencer"
	"github.com/arloliu/go-eol/transport"
)

// Station is a decoded station file.
type Station struct {
	Port      string
	Transport []transport.Option
	MCU       []mcu.Option
	Matrix    sequencer.Matrix
	// HasMatrix reports whether the file defines a [matrix] table.
	HasMatrix bool
}

type stationFile struct {
	Serial serialSection `toml:"serial"`
	MCU    mcuSection    `toml:"mcu"`
	Matrix matrixSection `toml:"matrix"`
}

type serialSection struct {
	Port     string  `toml:"port"`
	BaudRate int     `toml:"baud_rate"`
	DataBits int     `toml:"data_bits"`
	Parity   string  `toml:"parity"`
	StopBits float64 `toml:"stop_bits"`
	Timeout  string  `toml:"timeout"`
}

type mcuSection struct {
	AckTimeout     string `toml:"ack_timeout"`
	BootTimeout    string `toml:"boot_timeout"`
	LenientFraming bool   `toml:"lenient_framing"`

	HeatingTimeout        string `toml:"heating_timeout"`
	OperatingTimeout      string `toml:"operating_timeout"`
	CoolingTimeout        string `toml:"cooling_timeout"`
	StandbyCoolingTimeout string `toml:"standby_cooling_timeout"`

	CoolingCode        int `toml:"cooling_completion_code"`
	StandbyCoolingCode int `toml:"standby_cooling_completion_code"`
}

type matrixSection struct {
	Temperatures  []float64 `toml:"temperatures"`
	Positions     []float64 `toml:"positions"`
	Repeats       int       `toml:"repeats"`
	ForceMin      float64   `toml:"force_min"`
	ForceMax      float64   `toml:"force_max"`
	StopOnFailure bool      `toml:"stop_on_failure"`

	Axis          int     `toml:"axis"`
	Velocity      float64 `toml:"velocity"`
	Acceleration  float64 `toml:"acceleration"`
	Deceleration  float64 `toml:"deceleration"`
	HomeBeforeRun bool    `toml:"home_before_run"`
	MoveSettle    string  `toml:"move_settle"`

	PeakWindow   string `toml:"peak_window"`
	PeakInterval string `toml:"peak_interval"`

	TemperatureTolerance float64 `toml:"temperature_tolerance"`
	TemperatureRetries   int     `toml:"temperature_retries"`
	TemperatureInterval  string  `toml:"temperature_interval"`

	ReturnPosition float64 `toml:"return_position"`
	StandbyCooling bool    `toml:"standby_cooling"`

	Setup   setupSection   `toml:"setup"`
	Standby standbySection `toml:"standby"`
}

type setupSection struct {
	WaitBoot   bool   `toml:"wait_boot"`
	BootSettle string `toml:"boot_settle"`
	TestMode   int    `toml:"test_mode"`
}

type standbySection struct {
	UpperTemperature float64 `toml:"upper_temperature"`
	FanLevel         int     `toml:"fan_level"`
	Activation       float64 `toml:"activation_temperature"`
	Standby          float64 `toml:"standby_temperature"`
	Hold             string  `toml:"hold"`
	MaxStroke        float64 `toml:"max_stroke"`
	CommandSettle    string  `toml:"command_settle"`
}

// LoadStation decodes the station file at path.
func LoadStation(path string, l logger.Logger) (*Station, error) {
	var raw stationFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load station file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		l.Warn("unknown station file keys ignored", "keys", fmt.Sprint(undecoded))
	}

	st := &Station{Port: strings.TrimSpace(raw.Serial.Port)}
	if err := st.decodeSerial(meta, raw.Serial); err != nil {
		return nil, err
	}
	if err := st.decodeMCU(meta, raw.MCU); err != nil {
		return nil, err
	}
	if meta.IsDefined("matrix") {
		st.HasMatrix = true
		if st.Matrix, err = decodeMatrix(meta, raw.Matrix); err != nil {
			return nil, err
		}
	}

	return st, nil
}

func (st *Station) decodeSerial(meta toml.MetaData, s serialSection) error {
	if meta.IsDefined("serial", "baud_rate") {
		st.Transport = append(st.Transport, transport.WithBaudRate(s.BaudRate))
	}
	if meta.IsDefined("serial", "data_bits") {
		st.Transport = append(st.Transport, transport.WithDataBits(s.DataBits))
	}
	if meta.IsDefined("serial", "parity") {
		p, err := transport.ParseParity(s.Parity)
		if err != nil {
			return fmt.Errorf("serial.parity: %w", err)
		}
		st.Transport = append(st.Transport, transport.WithParity(p))
	}
	if meta.IsDefined("serial", "stop_bits") {
		sb, err := transport.ParseStopBits(s.StopBits)
		if err != nil {
			return fmt.Errorf("serial.stop_bits: %w", err)
		}
		st.Transport = append(st.Transport, transport.WithStopBits(sb))
	}
	if meta.IsDefined("serial", "timeout") {
		d, err := parseDuration("serial.timeout", s.Timeout)
		if err != nil {
			return err
		}
		st.Transport = append(st.Transport, transport.WithTimeout(d))
	}

	return nil
}

func (st *Station) decodeMCU(meta toml.MetaData, s mcuSection) error {
	durations := []struct {
		key   string
		value string
		opt   func(time.Duration) mcu.Option
	}{
		{"ack_timeout", s.AckTimeout, mcu.WithAckTimeout},
		{"boot_timeout", s.BootTimeout, mcu.WithBootTimeout},
		{"heating_timeout", s.HeatingTimeout, completionTimeout(mcu.StartStandbyHeating)},
		{"operating_timeout", s.OperatingTimeout, completionTimeout(mcu.SetOperatingTemperature)},
		{"cooling_timeout", s.CoolingTimeout, completionTimeout(mcu.SetCoolingTemperature)},
		{"standby_cooling_timeout", s.StandbyCoolingTimeout, completionTimeout(mcu.StartStandbyCooling)},
	}
	for _, d := range durations {
		if !meta.IsDefined("mcu", d.key) {
			continue
		}
		v, err := parseDuration("mcu."+d.key, d.value)
		if err != nil {
			return err
		}
		st.MCU = append(st.MCU, d.opt(v))
	}

	codes := []struct {
		key   string
		value int
		cmd   mcu.Command
	}{
		{"cooling_completion_code", s.CoolingCode, mcu.SetCoolingTemperature},
		{"standby_cooling_completion_code", s.StandbyCoolingCode, mcu.StartStandbyCooling},
	}
	for _, c := range codes {
		if !meta.IsDefined("mcu", c.key) {
			continue
		}
		if c.value < 0 || c.value > 0xFF {
			return fmt.Errorf("mcu.%s: %d is not a byte", c.key, c.value)
		}
		st.MCU = append(st.MCU, mcu.WithCompletionCode(c.cmd, byte(c.value)))
	}

	if s.LenientFraming {
		st.MCU = append(st.MCU, mcu.WithLenientFraming())
	}

	return nil
}

func completionTimeout(cmd mcu.Command) func(time.Duration) mcu.Option {
	return func(d time.Duration) mcu.Option { return mcu.WithCompletionTimeout(cmd, d) }
}

func decodeMatrix(meta toml.MetaData, s matrixSection) (sequencer.Matrix, error) {
	m := sequencer.Matrix{
		Temperatures:  s.Temperatures,
		Positions:     s.Positions,
		Repeats:       s.Repeats,
		Criteria:      sequencer.PassCriteria{ForceMin: s.ForceMin, ForceMax: s.ForceMax},
		StopOnFailure: s.StopOnFailure,
		Motion: sequencer.MotionProfile{
			Axis:         s.Axis,
			Velocity:     s.Velocity,
			Acceleration: s.Acceleration,
			Deceleration: s.Deceleration,
		},
		HomeBeforeRun:  s.HomeBeforeRun,
		StandbyCooling: s.StandbyCooling,
	}
	if !meta.IsDefined("matrix", "repeats") {
		m.Repeats = 1
	}

	var err error
	if m.MoveSettle, err = optionalDuration(meta, "move_settle", s.MoveSettle); err != nil {
		return m, err
	}
	if m.PeakWindow, err = optionalDuration(meta, "peak_window", s.PeakWindow); err != nil {
		return m, err
	}
	if m.PeakInterval, err = optionalDuration(meta, "peak_interval", s.PeakInterval); err != nil {
		return m, err
	}

	if meta.IsDefined("matrix", "temperature_tolerance") {
		chk := &sequencer.TemperatureCheck{Tolerance: s.TemperatureTolerance, Retries: s.TemperatureRetries}
		if chk.Interval, err = optionalDuration(meta, "temperature_interval", s.TemperatureInterval); err != nil {
			return m, err
		}
		m.Verify = chk
	}
	if meta.IsDefined("matrix", "return_position") {
		p := s.ReturnPosition
		m.ReturnPosition = &p
	}

	if meta.IsDefined("matrix", "setup") {
		st := &sequencer.StationSetup{WaitBoot: s.Setup.WaitBoot, TestMode: s.Setup.TestMode}
		if !meta.IsDefined("matrix", "setup", "test_mode") {
			st.TestMode = 1
		}
		if st.BootSettle, err = optionalDuration(meta, "setup.boot_settle", s.Setup.BootSettle); err != nil {
			return m, err
		}
		m.Setup = st
	}
	if meta.IsDefined("matrix", "standby") {
		sb := &sequencer.StandbyProfile{
			UpperTemperature: s.Standby.UpperTemperature,
			FanLevel:         s.Standby.FanLevel,
			Activation:       s.Standby.Activation,
			Standby:          s.Standby.Standby,
		}
		if sb.Hold, err = optionalDuration(meta, "standby.hold", s.Standby.Hold); err != nil {
			return m, err
		}
		if sb.CommandSettle, err = optionalDuration(meta, "standby.command_settle", s.Standby.CommandSettle); err != nil {
			return m, err
		}
		if meta.IsDefined("matrix", "standby", "max_stroke") {
			p := s.Standby.MaxStroke
			sb.MaxStroke = &p
		}
		m.Standby = sb
	}

	return m, nil
}

// optionalDuration parses the dotted key under [matrix] when it is set.
func optionalDuration(meta toml.MetaData, key, value string) (time.Duration, error) {
	if !meta.IsDefined(append([]string{"matrix"}, strings.Split(key, ".")...)...) {
		return 0, nil
	}

	return parseDuration("matrix."+key, value)
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	return d, nil
}
