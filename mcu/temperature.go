package mcu

import (
	"fmt"
	"math"

	"github.com/arloliu/go-eol/frame"
)

// Temperature limits accepted by the MCU, in degrees Celsius.
const (
	MinTemperature = -40.0
	MaxTemperature = 150.0
)

// temperatureScale converts degrees to the wire unit (tenths of a degree).
const temperatureScale = 10.0

// EncodeTemperature converts degrees Celsius to the wire value: integer
// tenths of a degree, rounded to the nearest tenth.
func EncodeTemperature(celsius float64) int32 {
	return int32(math.Round(celsius * temperatureScale))
}

// DecodeTemperature converts a wire value back to degrees Celsius.
func DecodeTemperature(raw uint32) float64 {
	return float64(int32(raw)) / temperatureScale
}

// AppendTemperature appends the 4-byte big-endian wire form of celsius.
func AppendTemperature(b []byte, celsius float64) []byte {
	return frame.AppendInt32(b, EncodeTemperature(celsius))
}

func validateTemperature(name string, celsius float64) error {
	if math.IsNaN(celsius) || celsius < MinTemperature || celsius > MaxTemperature {
		return fmt.Errorf("%w: %s %.1f°C out of range [%.0f, %.0f]",
			ErrInvalidArgument, name, celsius, MinTemperature, MaxTemperature)
	}

	return nil
}

// Reading is the pair of temperatures reported by get_temperature.
type Reading struct {
	Max float64
	Min float64
}

func decodeReading(f *frame.Frame) (Reading, error) {
	maxRaw, err := f.Field(0)
	if err != nil {
		return Reading{}, err
	}
	minRaw, err := f.Field(1)
	if err != nil {
		return Reading{}, err
	}

	return Reading{Max: DecodeTemperature(maxRaw), Min: DecodeTemperature(minRaw)}, nil
}
