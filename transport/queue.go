// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package transport

// defaultQueueCapacity bounds the number of pending actions. At 60
// ticks per second with two channels this is about two seconds of
// backlog.
const defaultQueueCapacity = 256

// action is deferred work for the worker goroutine. run executes on
// the worker. discard, if set, is called instead of run when the action
// is dropped: the queue was full, the worker cleared it after a failed
// send, or the transport closed.
type action struct {
	run     func() error
	discard func()
}

func (a action) drop() {
	if a.discard != nil {
		a.discard()
	}
}

// actionQueue is a bounded multi-producer, single-consumer queue.
type actionQueue struct {
	pending chan action
}

func newActionQueue(capacity int) *actionQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &actionQueue{pending: make(chan action, capacity)}
}

// push enqueues a without blocking. A full queue drops a and returns
// false.
func (q *actionQueue) push(a action) bool {
	select {
	case q.pending <- a:
		return true
	default:
		a.drop()
		return false
	}
}

// clear drops everything currently queued and returns how many actions
// were discarded.
func (q *actionQueue) clear() int {
	discarded := 0
	for {
		select {
		case a := <-q.pending:
			a.drop()
			discarded++
		default:
			return discarded
		}
	}
}
