// Package pool holds the small object pools used by the polling loops.
package pool

import (
	"sync"
	"time"
)

// ReadChunkSize is the size of buffers handed out by GetBuffer. It covers the
// largest frame on the wire (6 + 255 bytes).
const ReadChunkSize = 512

var (
	timerPool  sync.Pool
	bufferPool = sync.Pool{
		New: func() any {
			b := make([]byte, ReadChunkSize)
			return &b
		},
	}
)

// GetTimer returns a timer for the given duration d from the pool.
//
// Return the timer to the pool with PutTimer.
func GetTimer(d time.Duration) *time.Timer {
	if v := timerPool.Get(); v != nil {
		t, _ := v.(*time.Timer)
		if t.Reset(d) {
			select {
			case <-t.C:
			default:
			}
		}
		return t
	}

	return time.NewTimer(d)
}

// PutTimer returns t to the pool. t cannot be accessed afterwards.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}

// GetBuffer returns a read buffer of ReadChunkSize bytes.
func GetBuffer() *[]byte {
	b, _ := bufferPool.Get().(*[]byte)
	*b = (*b)[:ReadChunkSize]

	return b
}

// PutBuffer returns b to the pool.
func PutBuffer(b *[]byte) {
	if b == nil || cap(*b) < ReadChunkSize {
		return
	}
	bufferPool.Put(b)
}
