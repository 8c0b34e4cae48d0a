package bedrock

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// Job is a unit of work posted to the dispatcher. Jobs run to completion
// and never block their thread.
type Job func()

// Dispatcher is a fixed pool of worker goroutines plus a delayed-job
// min-heap keyed on earliest execution time. One extra goroutine runs the
// timer loop promoting due jobs into the work queue.
type Dispatcher struct {
	jobs chan Job
	quit chan struct{}

	mu      sync.Mutex
	delayed delayedQueue
	wake    chan struct{}

	stopped atomic.Bool
	wg      sync.WaitGroup
}

// NewDispatcher starts a dispatcher with the given number of worker
// goroutines
func NewDispatcher(workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}

	d := &Dispatcher{
		jobs: make(chan Job, 256),
		quit: make(chan struct{}),
		wake: make(chan struct{}, 1),
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	d.wg.Add(1)
	go d.timerLoop()

	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.jobs:
			job()
		case <-d.quit:
			return
		}
	}
}

// Async schedules a job for execution as soon as a worker is free
func (d *Dispatcher) Async(job Job) {
	if d.stopped.Load() {
		return
	}
	select {
	case d.jobs <- job:
	case <-d.quit:
	}
}

// AsyncAfter schedules a job to run after the given delay in seconds
func (d *Dispatcher) AsyncAfter(delay float64, job Job) {
	if delay <= 0 {
		d.Async(job)
		return
	}

	d.mu.Lock()
	heap.Push(&d.delayed, delayedJob{
		at:  time.Now().Add(time.Duration(delay * float64(time.Second))),
		job: job,
	})
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) timerLoop() {
	defer d.wg.Done()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		d.mu.Lock()
		var wait time.Duration = time.Hour
		now := time.Now()
		for d.delayed.Len() > 0 {
			next := d.delayed[0]
			if next.at.After(now) {
				wait = next.at.Sub(now)
				break
			}
			heap.Pop(&d.delayed)
			d.mu.Unlock()
			d.Async(next.job)
			d.mu.Lock()
			now = time.Now()
		}
		d.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-timer.C:
		case <-d.wake:
		case <-d.quit:
			return
		}
	}
}

// Stop shuts the dispatcher down. Queued jobs may be dropped.
func (d *Dispatcher) Stop() {
	if d.stopped.Swap(true) {
		return
	}
	close(d.quit)
	d.wg.Wait()
}

type delayedJob struct {
	at  time.Time
	job Job
}

type delayedQueue []delayedJob

func (q delayedQueue) Len() int           { return len(q) }
func (q delayedQueue) Less(i, j int) bool { return q[i].at.Before(q[j].at) }
func (q delayedQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *delayedQueue) Push(x any)        { *q = append(*q, x.(delayedJob)) }
func (q *delayedQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

var (
	globalDispatcher     *Dispatcher
	globalDispatcherOnce sync.Once
)

// InitGlobalDispatcher sizes the process-wide dispatcher. It must run
// before the first island worker is created; later calls are ignored.
func InitGlobalDispatcher(workers int) {
	globalDispatcherOnce.Do(func() {
		globalDispatcher = NewDispatcher(workers)
	})
}

// GlobalDispatcher returns the process-wide dispatcher, creating it with a
// default pool size on first use
func GlobalDispatcher() *Dispatcher {
	InitGlobalDispatcher(DefaultConfig().Workers)
	return globalDispatcher
}

// ParallelForAsync partitions [0, count) across subtask jobs and posts the
// completion job after the last subtask finishes. The caller returns
// immediately: fork-join at worker granularity.
func ParallelForAsync(d *Dispatcher, count int, completion Job, fn func(index int)) {
	if count == 0 {
		d.Async(completion)
		return
	}

	var remaining atomic.Int64
	remaining.Store(int64(count))

	for i := 0; i < count; i++ {
		index := i
		d.Async(func() {
			fn(index)
			if remaining.Add(-1) == 0 {
				d.Async(completion)
			}
		})
	}
}

// ParallelFor runs fn over [0, count) partitioned in chunks across the
// dispatcher pool and blocks until every chunk finishes. Used by callers
// that are not themselves dispatcher jobs.
func ParallelFor(workers int, count int, fn func(index int)) {
	if workers < 1 {
		workers = 1
	}
	chunk := (count + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > count {
			end = count
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				fn(i)
			}
		}(start, end)
	}
	wg.Wait()
}
