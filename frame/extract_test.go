package frame

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := ParseHex(s)
	require.NoError(t, err)

	return b
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		command  byte
		payload  []byte
		found    bool
		consumed int
	}{
		{
			name:     "exact frame",
			input:    "FF FF 03 04 00 00 00 0A FE FE",
			found:    true,
			command:  0x03,
			payload:  []byte{0, 0, 0, 0x0A},
			consumed: 10,
		},
		{
			name:     "noise around frame",
			input:    "01 02 03 FF FF 03 04 00 00 00 0A FE FE 04 05",
			found:    true,
			command:  0x03,
			payload:  []byte{0, 0, 0, 0x0A},
			consumed: 13,
		},
		{
			name:     "short frame",
			input:    "FF FF 00 00 FE FE",
			found:    true,
			command:  0x00,
			consumed: 6,
		},
		{
			name:     "false start marker with bad terminator",
			input:    "FF FF 01 00 AA BB FF FF 05 00 FE FE",
			found:    true,
			command:  0x05,
			consumed: 12,
		},
		{
			name:     "overlapping start markers",
			input:    "FF FF FF 03 04 00 00 00 0A FE FE",
			found:    true,
			command:  0x03,
			payload:  []byte{0, 0, 0, 0x0A},
			consumed: 11,
		},
		{
			name:     "incomplete candidate before a complete frame",
			input:    "FF FF 05 09 FF FF 03 04 00 00 00 0A FE FE",
			found:    true,
			command:  0x03,
			payload:  []byte{0, 0, 0, 0x0A},
			consumed: 14,
		},
		{
			name:     "partial frame keeps candidate",
			input:    "01 FF FF 03 04 00 00",
			consumed: 1,
		},
		{
			name:     "marker without length byte",
			input:    "01 02 FF FF 03",
			consumed: 2,
		},
		{
			name:     "trailing half marker",
			input:    "01 02 FF",
			consumed: 2,
		},
		{
			name:     "pure noise",
			input:    "01 02 03",
			consumed: 3,
		},
		{
			name:     "false terminator keeps accumulating",
			input:    "FF FF 03 09 00 FE FE",
			consumed: 0,
		},
		{
			name:     "empty buffer",
			input:    "",
			consumed: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, consumed, err := Extract(mustHex(t, tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.consumed, consumed)

			if !tt.found {
				assert.Nil(t, f)
				return
			}
			require.NotNil(t, f)
			assert.Equal(t, tt.command, f.Command)
			assert.Equal(t, tt.payload, f.Payload)
		})
	}
}

func TestExtract_MultipleFrames(t *testing.T) {
	buf := mustHex(t, "FF FF 04 00 FE FE 00 FF FF 0B 00 FE FE")

	f, consumed, err := Extract(buf)
	require.ErrorIs(t, err, ErrMultipleFrames)
	assert.Nil(t, f)
	assert.Zero(t, consumed)
}

func TestExtract_FrameThenPartial(t *testing.T) {
	buf := mustHex(t, "FF FF 04 00 FE FE FF FF 0B")

	f, consumed, err := Extract(buf)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, byte(0x04), f.Command)
	assert.Equal(t, 6, consumed)
}

func TestExtract_Incremental(t *testing.T) {
	wire := mustHex(t, "AA FF FF 07 08 00 00 02 08 00 00 01 5E FE FE")

	var buf []byte
	var got *Frame
	for _, b := range wire {
		buf = append(buf, b)
		f, consumed, err := Extract(buf)
		require.NoError(t, err)
		buf = buf[consumed:]
		if f != nil {
			got = f
		}
	}

	require.NotNil(t, got)
	assert.Equal(t, byte(0x07), got.Command)
	assert.Len(t, got.Payload, 8)
	assert.Empty(t, buf)
}

func TestExtractFirst(t *testing.T) {
	buf := mustHex(t, "FF FF 04 00 FE FE 00 FF FF 0B 00 FE FE")

	f, consumed := ExtractFirst(buf)
	require.NotNil(t, f)
	assert.Equal(t, byte(0x04), f.Command)
	assert.Equal(t, 6, consumed)

	f, consumed = ExtractFirst(buf[consumed:])
	require.NotNil(t, f)
	assert.Equal(t, byte(0x0B), f.Command)
	assert.Equal(t, 7, consumed)

	f, consumed = ExtractFirst([]byte{0x01, 0xFF})
	assert.Nil(t, f)
	assert.Equal(t, 1, consumed)
}

// noise returns n random bytes that never contain 0xFF.
func noise(r *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.IntN(0xFF))
	}

	return b
}

func randomFrame(t *testing.T, r *rand.Rand) *Frame {
	t.Helper()
	payload := make([]byte, r.IntN(32))
	for i := range payload {
		payload[i] = byte(r.IntN(256))
	}
	f, err := New(byte(r.IntN(256)), payload)
	require.NoError(t, err)

	return f
}

func TestExtract_SingleFrameInNoise(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 500; i++ {
		want := randomFrame(t, r)
		buf := append(noise(r, r.IntN(16)), want.Pack()...)
		buf = append(buf, noise(r, r.IntN(16))...)

		got, consumed, err := Extract(buf)
		require.NoError(t, err, "buffer %s", Hex(buf))
		require.NotNil(t, got, "buffer %s", Hex(buf))
		assert.True(t, want.Equal(got), "buffer %s", Hex(buf))
		assert.LessOrEqual(t, consumed, len(buf))
	}
}

func TestExtract_TwoFramesAlwaysViolation(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))

	for i := 0; i < 500; i++ {
		buf := append(noise(r, r.IntN(8)), randomFrame(t, r).Pack()...)
		buf = append(buf, noise(r, r.IntN(8))...)
		buf = append(buf, randomFrame(t, r).Pack()...)

		_, _, err := Extract(buf)
		require.ErrorIs(t, err, ErrMultipleFrames, "buffer %s", Hex(buf))
	}
}
