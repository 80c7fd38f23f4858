package frame

import (
	"bytes"
	"encoding/binary"
)

var startMarker = []byte{0xFF, 0xFF}

// candidate state of a start marker position.
type candidate uint8

const (
	candInvalid candidate = iota
	candValid
	candPending // not enough bytes to decide yet
)

// Extract scans buf for a well-formed frame.
//
// It returns the frame and the number of leading bytes the caller should
// drop (any noise before the frame plus the frame itself). When no frame is
// available yet, the frame is nil and consumed counts only the bytes that can
// never become part of a frame; the rest must be kept while more bytes are
// read.
//
// If a second, independent frame follows the first one in the same buffer
// the two ends are out of sync: Extract returns ErrMultipleFrames and drops
// nothing.
func Extract(buf []byte) (*Frame, int, error) {
	f, end, pending := scan(buf, 0)
	if f == nil {
		return nil, discardable(buf, pending), nil
	}

	if g, _, _ := scan(buf, end); g != nil {
		return nil, 0, ErrMultipleFrames
	}

	return f, end, nil
}

// ExtractFirst is like Extract but returns the first frame even when more
// frames follow. The remaining bytes stay in buf for the next call.
func ExtractFirst(buf []byte) (*Frame, int) {
	f, end, pending := scan(buf, 0)
	if f == nil {
		return nil, discardable(buf, pending)
	}

	return f, end
}

// scan looks for the first valid frame at or after offset from. It also
// returns the position of the first pending candidate before that frame, or
// -1 if none.
func scan(buf []byte, from int) (f *Frame, end, pending int) {
	pending = -1
	i := from
	for i < len(buf) {
		idx := bytes.Index(buf[i:], startMarker)
		if idx < 0 {
			break
		}
		p := i + idx

		switch st, e := classify(buf, p); st {
		case candValid:
			length := int(buf[p+3])
			f = &Frame{Command: buf[p+2]}
			if length > 0 {
				f.Payload = append([]byte(nil), buf[p+HeaderSize:p+HeaderSize+length]...)
			}
			return f, e, pending
		case candPending:
			if pending < 0 {
				pending = p
			}
		}

		// resume at p+1 so overlapping or false markers are not skipped
		i = p + 1
	}

	return nil, -1, pending
}

func classify(buf []byte, p int) (candidate, int) {
	if p+3 >= len(buf) {
		return candPending, 0
	}

	length := int(buf[p+3])
	end := p + Overhead + length
	if end > len(buf) {
		return candPending, 0
	}
	if binary.BigEndian.Uint16(buf[end-TrailerSize:end]) == EndMarker {
		return candValid, end
	}

	return candInvalid, 0
}

// discardable returns how many leading bytes of a frameless buffer can be
// dropped without losing a frame that is still arriving.
func discardable(buf []byte, pending int) int {
	if pending >= 0 {
		return pending
	}
	if n := len(buf); n > 0 && buf[n-1] == 0xFF {
		return n - 1
	}

	return len(buf)
}
