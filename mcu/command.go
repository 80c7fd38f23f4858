package mcu

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/arloliu/go-eol/frame"
)

// Command names a device operation in the command table.
type Command uint8

const (
	SetTestMode Command = iota + 1
	SetUpperTemperature
	SetFanSpeed
	StartStandbyHeating
	SetOperatingTemperature
	SetCoolingTemperature
	GetTemperature
	StartStandbyCooling
)

// Boot signal sent by the MCU once its firmware is ready.
const BootCompleteCode byte = 0x00

// Default completion timeouts.
const (
	DefaultHeatingTimeout     = 10 * time.Second
	DefaultOperatingTimeout   = 15 * time.Second
	DefaultCoolingTimeout     = 40 * time.Second
	DefaultStandbyCoolTimeout = 120 * time.Second
)

// FieldKind describes how an argument is encoded into a payload field.
type FieldKind uint8

const (
	// FieldTemperature is a signed 4-byte count of tenths of a degree.
	FieldTemperature FieldKind = iota
	// FieldUint is an unsigned 4-byte integer.
	FieldUint
)

// Field is one 4-byte payload argument with its accepted range.
type Field struct {
	Name string
	Kind FieldKind
	Min  float64
	Max  float64
}

func (f Field) encode(b []byte, v float64) ([]byte, error) {
	if math.IsNaN(v) || v < f.Min || v > f.Max {
		return nil, fmt.Errorf("%w: %s %v out of range [%v, %v]", ErrInvalidArgument, f.Name, v, f.Min, f.Max)
	}

	switch f.Kind {
	case FieldTemperature:
		return AppendTemperature(b, v), nil
	default:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidArgument, f.Name, v)
		}
		return frame.AppendUint32(b, uint32(v)), nil
	}
}

// Completion describes the second, physically bound confirmation of a command.
type Completion struct {
	Code    byte
	Timeout time.Duration
}

// Descriptor is the immutable definition of one command.
type Descriptor struct {
	Command Command
	// Name is the human readable operation name used in logs and errors.
	Name string
	// Code is the command byte of the request frame.
	Code byte
	// AckCode is the command byte of the expected acknowledge frame.
	AckCode byte
	// Fields lists the payload arguments in wire order.
	Fields []Field
	// MinAckPayload is the minimum payload size of the acknowledge frame.
	MinAckPayload int
	// Completion is nil for single-phase commands.
	Completion *Completion
}

// HasCompletion reports whether the command has a completion phase.
func (d Descriptor) HasCompletion() bool {
	return d.Completion != nil
}

// Encode validates args against the descriptor fields and returns the payload.
func (d Descriptor) Encode(args ...float64) ([]byte, error) {
	if len(args) != len(d.Fields) {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrInvalidArgument, d.Name, len(d.Fields), len(args))
	}

	payload := make([]byte, 0, len(d.Fields)*frame.FieldSize)
	for i, f := range d.Fields {
		var err error
		if payload, err = f.encode(payload, args[i]); err != nil {
			return nil, err
		}
	}

	return payload, nil
}

// Frame builds the request frame for args.
func (d Descriptor) Frame(args ...float64) (*frame.Frame, error) {
	payload, err := d.Encode(args...)
	if err != nil {
		return nil, err
	}

	return frame.New(d.Code, payload)
}

func (d Descriptor) String() string {
	return d.Name
}

var (
	temperatureField = func(name string) Field {
		return Field{Name: name, Kind: FieldTemperature, Min: MinTemperature, Max: MaxTemperature}
	}

	commandTable = map[Command]Descriptor{
		SetTestMode: {
			Command: SetTestMode,
			Name:    "set test mode",
			Code:    0x01, AckCode: 0x01,
			Fields: []Field{{Name: "mode", Kind: FieldUint, Min: 1, Max: 3}},
		},
		SetUpperTemperature: {
			Command: SetUpperTemperature,
			Name:    "set upper temperature",
			Code:    0x02, AckCode: 0x02,
			Fields: []Field{temperatureField("upper temperature")},
		},
		SetFanSpeed: {
			Command: SetFanSpeed,
			Name:    "set fan speed",
			Code:    0x03, AckCode: 0x03,
			Fields: []Field{{Name: "fan level", Kind: FieldUint, Min: 1, Max: 10}},
		},
		StartStandbyHeating: {
			Command: StartStandbyHeating,
			Name:    "start standby heating",
			Code:    0x04, AckCode: 0x04,
			Fields: []Field{
				temperatureField("operating temperature"),
				temperatureField("standby temperature"),
				{Name: "hold time ms", Kind: FieldUint, Min: 0, Max: math.MaxUint32},
			},
			Completion: &Completion{Code: 0x0B, Timeout: DefaultHeatingTimeout},
		},
		SetOperatingTemperature: {
			Command: SetOperatingTemperature,
			Name:    "set operating temperature",
			Code:    0x05, AckCode: 0x05,
			Fields:     []Field{temperatureField("operating temperature")},
			Completion: &Completion{Code: 0x0B, Timeout: DefaultOperatingTimeout},
		},
		SetCoolingTemperature: {
			Command: SetCoolingTemperature,
			Name:    "set cooling temperature",
			Code:    0x06, AckCode: 0x06,
			Fields:     []Field{temperatureField("cooling temperature")},
			Completion: &Completion{Code: 0x0D, Timeout: DefaultCoolingTimeout},
		},
		GetTemperature: {
			Command: GetTemperature,
			Name:    "get temperature",
			Code:    0x07, AckCode: 0x07,
			MinAckPayload: 2 * frame.FieldSize,
		},
		StartStandbyCooling: {
			Command: StartStandbyCooling,
			Name:    "start standby cooling",
			Code:    0x08, AckCode: 0x08,
			Completion: &Completion{Code: 0x0C, Timeout: DefaultStandbyCoolTimeout},
		},
	}
)

// Lookup returns the built-in descriptor of cmd.
func Lookup(cmd Command) (Descriptor, bool) {
	d, ok := commandTable[cmd]
	return d, ok
}

// Commands returns all commands of the table in command code order.
func Commands() []Command {
	cmds := make([]Command, 0, len(commandTable))
	for cmd := range commandTable {
		cmds = append(cmds, cmd)
	}
	slices.Sort(cmds)

	return cmds
}

// ParseCommand looks a command up by name. Words may be separated by
// spaces, underscores or dashes, e.g. "set_fan_speed".
func ParseCommand(name string) (Command, bool) {
	name = strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(strings.TrimSpace(name)))
	for cmd, d := range commandTable {
		if d.Name == name {
			return cmd, true
		}
	}

	return 0, false
}

func (c Command) String() string {
	if d, ok := commandTable[c]; ok {
		return d.Name
	}

	return fmt.Sprintf("command(%d)", uint8(c))
}
