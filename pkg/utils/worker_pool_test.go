package utils

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPool_LimitsConcurrency(t *testing.T) {
	wp := NewWorkerPool(2)
	var running, peak atomic.Int32
	for range 8 {
		wp.Execute(func() {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
		})
	}
	wp.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(0), running.Load())
}

func TestWorkerPool_PanicHandler(t *testing.T) {
	var got atomic.Value
	wp := NewWorkerPool(1, WithPanicHandler(func(v any, stack []byte) {
		got.Store(v)
		assert.NotEmpty(t, stack)
	}))
	wp.Execute(func() { panic("boom") })
	done := false
	wp.Execute(func() { done = true })
	wp.Wait()
	assert.Equal(t, "boom", got.Load())
	assert.True(t, done, "pool keeps running after a panic")
}
