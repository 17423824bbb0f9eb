// File: reactor/loop.go
// Author: momentics <momentics@gmail.com>
//
// Serialized event loop. All connection callbacks - dial completions,
// inbound chunks, timeouts, close confirmations - are posted here and
// executed one at a time on a single goroutine. That serialization is
// the engine's only synchronization mechanism: at most one event for a
// given connection is ever in flight.

package reactor

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

// Loop is a single-goroutine cooperative scheduler.
type Loop struct {
	mu       sync.Mutex
	tasks    *queue.Queue
	deferred *queue.Queue
	stopped  bool

	wake chan struct{}
	done chan struct{}
}

// NewLoop constructs a loop. The caller starts it with go Run().
func NewLoop() *Loop {
	return &Loop{
		tasks:    queue.New(),
		deferred: queue.New(),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Run executes posted tasks until Shutdown, then drains what remains and
// returns. Runs on exactly one goroutine.
func (l *Loop) Run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		var task func()
		switch {
		case l.tasks.Length() > 0:
			task = l.tasks.Remove().(func())
		case l.deferred.Length() > 0:
			task = l.deferred.Remove().(func())
		case l.stopped:
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()
		if task == nil {
			<-l.wake
			continue
		}
		task()
		l.drainDeferred()
	}
}

// Post enqueues fn for execution on the loop goroutine. Tasks run in
// post order. Posting to a stopped loop is a no-op.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.tasks.Add(fn)
	l.mu.Unlock()
	l.wakeup()
}

// PostDelayed schedules fn to be posted after d. The returned timer may
// be stopped to cancel.
func (l *Loop) PostDelayed(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() { l.Post(fn) })
}

// Defer enqueues fn to run after the currently executing task returns
// and before the next posted task. This is the destroy-after-return
// mechanism: a connection is never torn down inside a callback its own
// state is still live on.
func (l *Loop) Defer(fn func()) {
	l.mu.Lock()
	l.deferred.Add(fn)
	l.mu.Unlock()
	l.wakeup()
}

// Shutdown stops the loop after draining pending tasks and blocks until
// Run returns. Must not be called from the loop goroutine.
func (l *Loop) Shutdown() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.wakeup()
	<-l.done
}

// Done is closed when Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) wakeup() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// drainDeferred runs destroy-queue entries scheduled by the task that
// just returned.
func (l *Loop) drainDeferred() {
	for {
		l.mu.Lock()
		if l.deferred.Length() == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.deferred.Remove().(func())
		l.mu.Unlock()
		fn()
	}
}
