package sensor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlag_Coalesces(t *testing.T) {
	var f Flag
	assert.False(t, f.Take())

	f.Raise()
	f.Raise()
	f.Raise()
	assert.True(t, f.Pending())
	assert.True(t, f.Take())
	assert.False(t, f.Take(), "three raises before a take are one occurrence")
}

func TestFlag_Clear(t *testing.T) {
	var f Flag
	f.Raise()
	f.Clear()
	assert.False(t, f.Pending())
	assert.False(t, f.Take())
}

func TestFlag_ConcurrentRaiseTake(t *testing.T) {
	var f Flag
	var wg sync.WaitGroup
	const raises = 1000

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < raises; i++ {
			f.Raise()
		}
	}()

	taken := 0
	for i := 0; i < raises; i++ {
		if f.Take() {
			taken++
		}
	}
	wg.Wait()
	if f.Take() {
		taken++
	}

	assert.GreaterOrEqual(t, taken, 1)
	assert.LessOrEqual(t, taken, raises)
	assert.False(t, f.Pending())
}

func TestEvents_Reset(t *testing.T) {
	var e Events
	e.ByteReceived.Raise()
	e.TickElapsed.Raise()
	e.SampleDue.Raise()

	e.Reset()
	assert.False(t, e.ByteReceived.Pending())
	assert.False(t, e.TickElapsed.Pending())
	assert.False(t, e.SampleDue.Pending())
}
