package frame

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Wire markers.
const (
	StartMarker uint16 = 0xFFFF
	EndMarker   uint16 = 0xFEFE
)

const (
	// HeaderSize is the size of start marker, command and length bytes.
	HeaderSize = 4
	// TrailerSize is the size of the end marker.
	TrailerSize = 2
	// Overhead is the number of framing bytes around the payload.
	Overhead = HeaderSize + TrailerSize
	// MaxPayloadSize is the largest payload the length byte can describe.
	MaxPayloadSize = 255
	// FieldSize is the size of a numeric payload field.
	FieldSize = 4
)

var (
	// ErrPayloadTooLarge is returned when a payload exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	// ErrMalformed is returned when bytes do not form exactly one frame.
	ErrMalformed = errors.New("frame: malformed frame")
	// ErrMultipleFrames is returned when one buffer holds two independent frames.
	ErrMultipleFrames = errors.New("frame: multiple frames in one parse window")
	// ErrFieldOutOfRange is returned when a payload field index is beyond the payload.
	ErrFieldOutOfRange = errors.New("frame: payload field out of range")
)

// Frame is one protocol unit: a command code and its payload.
type Frame struct {
	Command byte
	Payload []byte
}

// New creates a frame carrying a copy of payload.
func New(command byte, payload []byte) (*Frame, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	f := &Frame{Command: command}
	if len(payload) > 0 {
		f.Payload = append([]byte(nil), payload...)
	}

	return f, nil
}

// NewShort creates a short frame with an empty payload.
func NewShort(command byte) *Frame {
	return &Frame{Command: command}
}

// IsShort reports whether f is a short (zero-length payload) frame.
func (f *Frame) IsShort() bool {
	return len(f.Payload) == 0
}

// Size returns the number of bytes f occupies on the wire.
func (f *Frame) Size() int {
	return Overhead + len(f.Payload)
}

// Pack serializes f into its wire form.
func (f *Frame) Pack() []byte {
	buf := make([]byte, 0, f.Size())
	buf = binary.BigEndian.AppendUint16(buf, StartMarker)
	buf = append(buf, f.Command, byte(len(f.Payload)))
	buf = append(buf, f.Payload...)

	return binary.BigEndian.AppendUint16(buf, EndMarker)
}

// Field returns the i-th 4-byte big-endian payload field.
func (f *Frame) Field(i int) (uint32, error) {
	off := i * FieldSize
	if i < 0 || off+FieldSize > len(f.Payload) {
		return 0, fmt.Errorf("%w: field %d, payload %d bytes", ErrFieldOutOfRange, i, len(f.Payload))
	}

	return binary.BigEndian.Uint32(f.Payload[off:]), nil
}

// Equal reports whether f and o carry the same command and payload.
func (f *Frame) Equal(o *Frame) bool {
	if f == nil || o == nil {
		return f == o
	}

	return f.Command == o.Command && string(f.Payload) == string(o.Payload)
}

// String returns the wire form as space separated upper-case hex.
func (f *Frame) String() string {
	return Hex(f.Pack())
}

// Parse decodes b, which must contain exactly one frame and nothing else.
func Parse(b []byte) (*Frame, error) {
	if len(b) < Overhead {
		return nil, fmt.Errorf("%w: %d bytes is shorter than %d", ErrMalformed, len(b), Overhead)
	}
	if binary.BigEndian.Uint16(b) != StartMarker {
		return nil, fmt.Errorf("%w: missing start marker", ErrMalformed)
	}

	length := int(b[3])
	if len(b) != Overhead+length {
		return nil, fmt.Errorf("%w: length byte %d does not match %d bytes", ErrMalformed, length, len(b))
	}
	if binary.BigEndian.Uint16(b[len(b)-TrailerSize:]) != EndMarker {
		return nil, fmt.Errorf("%w: missing end marker", ErrMalformed)
	}

	return New(b[2], b[HeaderSize:HeaderSize+length])
}

// AppendUint32 appends v as a 4-byte big-endian field.
func AppendUint32(b []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(b, v)
}

// AppendInt32 appends v as a 4-byte big-endian two's complement field.
func AppendInt32(b []byte, v int32) []byte {
	return binary.BigEndian.AppendUint32(b, uint32(v))
}

// Hex renders b as space separated upper-case hex pairs, e.g. "FF FF 03 04".
func Hex(b []byte) string {
	if len(b) == 0 {
		return ""
	}

	enc := strings.ToUpper(hex.EncodeToString(b))
	var sb strings.Builder
	sb.Grow(len(b) * 3)
	for i := 0; i < len(enc); i += 2 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(enc[i : i+2])
	}

	return sb.String()
}

// ParseHex decodes a hex string, ignoring spaces, into bytes.
func ParseHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.ReplaceAll(s, " ", ""))
}
