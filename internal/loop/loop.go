package loop

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Loop runs posted functions one at a time, in order, on a single goroutine.
type Loop struct {
	queue  *Queue[func()]
	logger *slog.Logger
	done   chan struct{}

	closeOnce sync.Once
}

// New starts a loop.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Loop{
		queue:  NewQueue[func()](64),
		logger: logger,
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Post schedules fn to run on the loop goroutine. It never blocks.
// Returns false if the loop has been closed.
func (l *Loop) Post(fn func()) bool {
	return l.queue.Push(fn)
}

// AfterFunc posts fn to the loop once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.cancelled.Load() {
				return
			}
			t.fired.Store(true)
			fn()
		})
	})
	return t
}

// Close stops accepting work, runs whatever is already queued and waits
// for the loop goroutine to exit. Safe to call more than once.
// Must not be called from the loop goroutine.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.queue.Close()
	})
	<-l.done
}

// Pending returns the number of queued functions.
func (l *Loop) Pending() int {
	return l.queue.Len()
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		fn, ok := l.queue.Pop()
		if !ok {
			return
		}
		l.invoke(fn)
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop callback panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// Timer is a cancellable scheduled loop function.
type Timer struct {
	timer     *time.Timer
	cancelled atomic.Bool
	fired     atomic.Bool
}

// Cancel prevents the function from running if it has not started yet.
// Returns false if it had already started.
func (t *Timer) Cancel() bool {
	if t == nil {
		return false
	}
	t.cancelled.Store(true)
	t.timer.Stop()
	return !t.fired.Load()
}
