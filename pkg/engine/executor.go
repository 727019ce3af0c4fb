package engine

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// executor serializes every state change of one database onto a single
// logical thread. The first caller to submit while nothing is draining
// drains the queue inline; submissions made during a drain (including from
// tier callbacks on other goroutines) are picked up by that drain.
type executor struct {
	mu       sync.Mutex
	queue    []func()
	draining bool
	closed   bool
	logger   zerolog.Logger
}

func newExecutor(logger zerolog.Logger) *executor {
	return &executor{queue: make([]func(), 0, 16), logger: logger}
}

// submit enqueues fn and returns false if the executor is closed
func (e *executor) submit(fn func()) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.queue = append(e.queue, fn)
	if e.draining {
		e.mu.Unlock()
		return true
	}
	e.draining = true
	e.mu.Unlock()

	e.drain()
	return true
}

func (e *executor) drain() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.draining = false
			e.mu.Unlock()
			return
		}
		fn := e.queue[0]
		e.queue[0] = nil
		if len(e.queue) == 1 {
			e.queue = e.queue[:0]
		} else {
			e.queue = e.queue[1:]
		}
		e.mu.Unlock()

		e.run(fn)
	}
}

// run logs a panic from fn and lets the drain carry on with the queue
func (e *executor) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("panic", fmt.Sprint(r)).
				Msg("Executor task panicked")
		}
	}()
	fn()
}

// pending returns the number of queued, not yet started functions
func (e *executor) pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

func (e *executor) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.queue = nil
}
