package pool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerPool(t *testing.T) {
	t.Run("Get and Put", func(t *testing.T) {
		timer1 := GetTimer(time.Second)
		require.NotNil(t, timer1)
		PutTimer(timer1)

		timer2 := GetTimer(20 * time.Millisecond)
		require.NotNil(t, timer2)
		<-timer2.C
		PutTimer(timer2)
	})

	t.Run("Put Active Timer", func(t *testing.T) {
		timer1 := GetTimer(50 * time.Millisecond)
		time.Sleep(10 * time.Millisecond)
		PutTimer(timer1)

		begin := time.Now()
		timer2 := GetTimer(100 * time.Millisecond)
		<-timer2.C
		assert.GreaterOrEqual(t, time.Since(begin), 100*time.Millisecond)
		PutTimer(timer2)
	})

	t.Run("Concurrent", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tm := GetTimer(time.Millisecond)
				<-tm.C
				PutTimer(tm)
			}()
		}
		wg.Wait()
	})
}

func TestBufferPool(t *testing.T) {
	b := GetBuffer()
	require.NotNil(t, b)
	assert.Len(t, *b, ReadChunkSize)

	*b = (*b)[:3]
	PutBuffer(b)

	b2 := GetBuffer()
	assert.Len(t, *b2, ReadChunkSize, "length restored on reuse")
	PutBuffer(b2)

	small := make([]byte, 8)
	PutBuffer(&small)
	PutBuffer(nil)
}
