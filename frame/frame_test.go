package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_Pack(t *testing.T) {
	f, err := New(0x03, []byte{0x00, 0x00, 0x00, 0x0A})
	require.NoError(t, err)

	b := f.Pack()
	assert.Equal(t, []byte{0xFF, 0xFF, 0x03, 0x04, 0x00, 0x00, 0x00, 0x0A, 0xFE, 0xFE}, b)
	assert.Len(t, b, 10)
	assert.Equal(t, 10, f.Size())
	assert.Equal(t, "FF FF 03 04 00 00 00 0A FE FE", f.String())
	assert.False(t, f.IsShort())
}

func TestFrame_ParseRoundTrip(t *testing.T) {
	f, err := New(0x03, []byte{0x00, 0x00, 0x00, 0x0A})
	require.NoError(t, err)

	parsed, err := Parse(f.Pack())
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), parsed.Command)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x0A}, parsed.Payload)
	assert.True(t, f.Equal(parsed))
}

func TestFrame_Short(t *testing.T) {
	f := NewShort(0x00)
	assert.True(t, f.IsShort())
	assert.Equal(t, []byte{0xFF, 0xFF, 0x00, 0x00, 0xFE, 0xFE}, f.Pack())

	parsed, err := Parse(f.Pack())
	require.NoError(t, err)
	assert.True(t, parsed.IsShort())
	assert.Nil(t, parsed.Payload)
}

func TestFrame_New_Copies(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	f, err := New(0x05, payload)
	require.NoError(t, err)

	payload[0] = 0xAA
	assert.Equal(t, byte(1), f.Payload[0])
}

func TestFrame_New_TooLarge(t *testing.T) {
	_, err := New(0x01, make([]byte, MaxPayloadSize+1))
	require.ErrorIs(t, err, ErrPayloadTooLarge)

	f, err := New(0x01, make([]byte, MaxPayloadSize))
	require.NoError(t, err)
	assert.Equal(t, Overhead+MaxPayloadSize, len(f.Pack()))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"too short", "FF FF 00 00 FE"},
		{"missing start marker", "FF FE 00 00 FE FE"},
		{"length mismatch", "FF FF 03 04 00 00 00 FE FE"},
		{"trailing bytes", "FF FF 00 00 FE FE 00"},
		{"missing end marker", "FF FF 03 01 00 FE FF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ParseHex(tt.input)
			require.NoError(t, err)

			_, err = Parse(b)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestFrame_Field(t *testing.T) {
	payload := AppendInt32(nil, 520)
	payload = AppendInt32(payload, -35)
	payload = AppendUint32(payload, 10000)
	f, err := New(0x04, payload)
	require.NoError(t, err)

	v, err := f.Field(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x208), v)

	v, err = f.Field(1)
	require.NoError(t, err)
	assert.Equal(t, int32(-35), int32(v))

	v, err = f.Field(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(10000), v)

	_, err = f.Field(3)
	require.ErrorIs(t, err, ErrFieldOutOfRange)
	_, err = f.Field(-1)
	require.ErrorIs(t, err, ErrFieldOutOfRange)
}

func TestHex(t *testing.T) {
	assert.Equal(t, "", Hex(nil))
	assert.Equal(t, "0A", Hex([]byte{0x0a}))
	assert.Equal(t, "FF FF 07 00 FE FE", Hex([]byte{0xff, 0xff, 0x07, 0x00, 0xfe, 0xfe}))

	b, err := ParseHex("ff ff 07 00 fe fe")
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte{0xff, 0xff, 0x07, 0x00, 0xfe, 0xfe}, b))
}
