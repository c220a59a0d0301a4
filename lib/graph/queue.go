// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import "sync"

type delivery struct {
	id    string
	value Value
}

// queue hands deliveries to one handler goroutine in enqueue order.
// Enqueue never blocks the writer.
type queue struct {
	mu      sync.Mutex
	pending []delivery
	wake    chan struct{}
	done    chan struct{}
	stop    sync.Once
	exited  chan struct{}
	handler func(delivery)
}

func newQueue(handler func(delivery)) *queue {
	q := &queue{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
		handler: handler,
	}
	go q.run()
	return q
}

func (q *queue) enqueue(d delivery) {
	q.mu.Lock()
	q.pending = append(q.pending, d)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *queue) close() {
	q.stop.Do(func() { close(q.done) })
}

func (q *queue) run() {
	defer close(q.exited)
	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
		}
		for {
			q.mu.Lock()
			batch := q.pending
			q.pending = nil
			q.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, d := range batch {
				select {
				case <-q.done:
					return
				default:
				}
				q.handler(d)
			}
		}
	}
}
