package cli

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-eol/frame"
	"github.com/arloliu/go-eol/mcu"
)

// serveMCU accepts one connection on a local TCP bridge and answers every
// request with the frames returned by respond.
func serveMCU(t *testing.T, respond func(req *frame.Frame) []*frame.Frame) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		var buf []byte
		chunk := make([]byte, 256)
		for {
			n, err := conn.Read(chunk)
			if err != nil {
				return
			}
			buf = append(buf, chunk[:n]...)
			for {
				f, consumed := frame.ExtractFirst(buf)
				buf = buf[consumed:]
				if f == nil {
					break
				}
				for _, r := range respond(f) {
					time.Sleep(5 * time.Millisecond)
					if _, err := conn.Write(r.Pack()); err != nil {
						return
					}
				}
			}
		}
	}()

	return "tcp://" + ln.Addr().String()
}

func TestTempCommand(t *testing.T) {
	addr := serveMCU(t, func(req *frame.Frame) []*frame.Frame {
		payload := mcu.AppendTemperature(nil, 52.3)
		payload = mcu.AppendTemperature(payload, 35.0)
		f, _ := frame.New(req.Command, payload)
		return []*frame.Frame{f}
	})

	out, err := execute(t, "--port", addr, "--format", "json", "temp")
	require.NoError(t, err)

	var v map[string]float64
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.InDelta(t, 52.3, v["max"], 1e-9)
	assert.InDelta(t, 35.0, v["min"], 1e-9)
}

func TestSetTempCommand(t *testing.T) {
	addr := serveMCU(t, func(req *frame.Frame) []*frame.Frame {
		return []*frame.Frame{frame.NewShort(req.Command), frame.NewShort(0x0B)}
	})

	out, err := execute(t, "--port", addr, "set-temp", "52")
	require.NoError(t, err)
	assert.Contains(t, out, "set operating temperature: 0.0°C -> 52.0°C")
}

func TestSendCommand(t *testing.T) {
	reqs := make(chan *frame.Frame, 1)
	addr := serveMCU(t, func(req *frame.Frame) []*frame.Frame {
		reqs <- req
		return []*frame.Frame{frame.NewShort(req.Command)}
	})

	out, err := execute(t, "--port", addr, "--format", "json", "send", "set_fan_speed", "7")
	require.NoError(t, err)

	var v replyView
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "set fan speed", v.Command)
	assert.Equal(t, "FF FF 03 00 FE FE", v.Ack)
	assert.Equal(t, "FF FF 03 04 00 00 00 07 FE FE", (<-reqs).String())
}

func TestSendCommand_InvalidArgument(t *testing.T) {
	addr := serveMCU(t, func(req *frame.Frame) []*frame.Frame { return nil })

	_, err := execute(t, "--port", addr, "send", "set_fan_speed", "42")
	require.ErrorIs(t, err, mcu.ErrInvalidArgument)
}
