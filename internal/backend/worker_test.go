package backend

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_DoBlocksUntilDone(t *testing.T) {
	w := NewWorker()
	defer w.Close()

	ran := false
	err := w.Do(func() { ran = true })
	require.NoError(t, err)
	assert.True(t, ran, "Do returns only after the closure finished")
}

func TestWorker_SerializesWork(t *testing.T) {
	w := NewWorker()
	defer w.Close()

	// Concurrent submitters; the worker must interleave nothing.
	var inFlight, maxInFlight int
	var track sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Do(func() {
				track.Lock()
				inFlight++
				if inFlight > maxInFlight {
					maxInFlight = inFlight
				}
				track.Unlock()

				track.Lock()
				inFlight--
				track.Unlock()
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInFlight, "exactly one task runs at a time")
}

func TestWorker_DoAfterClose(t *testing.T) {
	w := NewWorker()
	w.Close()
	w.Close() // idempotent

	err := w.Do(func() { t.Fatal("must not run") })
	assert.ErrorIs(t, err, ErrWorkerClosed)
}
