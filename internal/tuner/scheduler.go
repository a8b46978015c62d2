package tuner

import (
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler runs short, non-blocking units of orchestration work in sequence:
// stream polls, scan steps, and host notifications all go through here.
// Implementations must execute units one at a time, never concurrently.
type Scheduler interface {
	// Schedule enqueues fn to run once, soon.
	Schedule(fn func()) *Task
	// ScheduleEvery runs fn repeatedly at the given interval until the
	// returned task is cancelled.
	ScheduleEvery(interval time.Duration, fn func()) *Task
}

// Task is a handle to scheduled work. Cancel is safe to call at any point,
// including after the unit has been dispatched: a cancelled task becomes a
// no-op when it fires, since there is no way to yank work that is already in
// flight to the loop.
type Task struct {
	cancelled atomic.Bool
	stop      func()
}

// Cancel marks the task dead and releases any timer driving it.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	if t.cancelled.CompareAndSwap(false, true) && t.stop != nil {
		t.stop()
	}
}

// Cancelled reports whether Cancel has been called.
func (t *Task) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// Loop is the production Scheduler: a single goroutine draining a work
// channel. Timers post into the same channel, so every unit runs on the one
// loop goroutine and no two units overlap.
type Loop struct {
	work chan func()
	quit chan struct{}
	wg   sync.WaitGroup
}

// NewLoop returns a stopped loop; call Start before scheduling.
func NewLoop() *Loop {
	return &Loop{
		work: make(chan func(), 64),
		quit: make(chan struct{}),
	}
}

// Start launches the loop goroutine.
func (l *Loop) Start() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case fn := <-l.work:
				fn()
			case <-l.quit:
				return
			}
		}
	}()
}

// Stop shuts the loop down and waits for the current unit to finish.
// Pending units that never ran are discarded.
func (l *Loop) Stop() {
	close(l.quit)
	l.wg.Wait()
}

// Schedule implements Scheduler.
func (l *Loop) Schedule(fn func()) *Task {
	t := &Task{}
	l.post(func() {
		if !t.Cancelled() {
			fn()
		}
	})
	return t
}

// ScheduleEvery implements Scheduler. A ticker goroutine posts the unit into
// the loop; the unit itself still runs on the loop goroutine.
func (l *Loop) ScheduleEvery(interval time.Duration, fn func()) *Task {
	done := make(chan struct{})
	t := &Task{stop: func() { close(done) }}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.post(func() {
					if !t.Cancelled() {
						fn()
					}
				})
			case <-done:
				return
			case <-l.quit:
				return
			}
		}
	}()
	return t
}

func (l *Loop) post(fn func()) {
	select {
	case l.work <- fn:
	case <-l.quit:
	}
}
