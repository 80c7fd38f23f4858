package opstate

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_String(t *testing.T) {
	assert.Equal(t, "Closed", Closed.String())
	assert.Equal(t, "Closing", Closing.String())
	assert.Equal(t, "Opening", Opening.String())
	assert.Equal(t, "Opened", Opened.String())
	assert.Equal(t, "Unknown", State(99).String())
}

func TestAtomic_Lifecycle(t *testing.T) {
	var st Atomic
	assert.True(t, st.IsClosed())

	assert.False(t, st.ToOpened(), "cannot open without opening")
	assert.True(t, st.ToOpening())
	assert.False(t, st.ToOpening())
	assert.True(t, st.ToOpened())
	assert.True(t, st.IsOpened())
	assert.Equal(t, "Opened", st.String())

	assert.True(t, st.ToClosing())
	assert.False(t, st.ToClosing())
	assert.True(t, st.ToClosed())
	assert.True(t, st.ToClosed(), "closing twice is harmless")
}

func TestAtomic_AbortOpening(t *testing.T) {
	var st Atomic
	st.ToOpening()
	assert.True(t, st.ToClosing())
	assert.True(t, st.ToClosed())
}

func TestAtomic_OpenRace(t *testing.T) {
	var (
		st   Atomic
		wins atomic.Int32
		wg   sync.WaitGroup
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if st.ToOpening() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
