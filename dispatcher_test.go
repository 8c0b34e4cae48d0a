package bedrock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_Async(t *testing.T) {
	d := NewDispatcher(2)
	defer d.Stop()

	done := make(chan struct{})
	d.Async(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestDispatcher_AsyncAfterOrdering(t *testing.T) {
	d := NewDispatcher(1)
	defer d.Stop()

	var order []int
	var mu = make(chan struct{}, 1)
	mu <- struct{}{}
	record := func(n int) Job {
		return func() {
			<-mu
			order = append(order, n)
			mu <- struct{}{}
		}
	}

	done := make(chan struct{})
	d.AsyncAfter(0.12, func() {
		record(2)()
		close(done)
	})
	d.AsyncAfter(0.03, record(1))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("delayed jobs did not run")
	}

	<-mu
	require.Equal(t, []int{1, 2}, order)
}

func TestDispatcher_AsyncAfterZeroRunsImmediately(t *testing.T) {
	d := NewDispatcher(1)
	defer d.Stop()

	done := make(chan struct{})
	d.AsyncAfter(0, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("zero-delay job did not run")
	}
}

func TestParallelForAsync_CompletionAfterAllSubtasks(t *testing.T) {
	d := NewDispatcher(4)
	defer d.Stop()

	var counter atomic.Int64
	done := make(chan struct{})

	ParallelForAsync(d, 64, func() {
		assert.Equal(t, int64(64), counter.Load())
		close(done)
	}, func(index int) {
		counter.Add(1)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("completion did not fire")
	}
}

func TestParallelForAsync_EmptyRunsCompletion(t *testing.T) {
	d := NewDispatcher(1)
	defer d.Stop()

	done := make(chan struct{})
	ParallelForAsync(d, 0, func() { close(done) }, func(int) {})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("completion did not fire for empty range")
	}
}

func TestParallelFor_CoversRange(t *testing.T) {
	var counter atomic.Int64
	ParallelFor(4, 100, func(index int) {
		counter.Add(int64(index))
	})
	assert.Equal(t, int64(4950), counter.Load())
}

func TestDispatcher_StopIsIdempotent(t *testing.T) {
	d := NewDispatcher(1)
	d.Stop()
	assert.NotPanics(t, func() { d.Stop() })
}
