// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package locator

import (
	"sync"
	"time"
)

// Timer is a cancellable one-shot timer.
type Timer interface {
	Stop() bool
}

// Scheduler arms one-shot timers. The callback must run on the
// orchestrator's event loop, never concurrently with a handler.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// loopScheduler fires timers by posting their callback to the event queue.
type loopScheduler struct {
	q *queue
}

func (s loopScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() { s.q.push(fn) })
}

// queue is the single serialized event queue. push never blocks, so sources
// may emit from inside Start/Stop while the loop itself is calling them.
type queue struct {
	mu     sync.Mutex
	items  []func()
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

func (q *queue) push(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// drain returns all queued callbacks in arrival order.
func (q *queue) drain() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
