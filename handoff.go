package main

import "sync"

// SampleQueue is the handoff between the acquisition goroutine and the
// processing tick: an unbounded FIFO with a non-blocking producer side.
// One producer, one consumer; the consumer swaps the whole backlog out
// under the lock so a burst of notifications costs one allocation, not
// one lock round-trip per sample.
type SampleQueue struct {
	mu      sync.Mutex
	pending []RawSample
}

// NewSampleQueue creates an empty sample queue
func NewSampleQueue() *SampleQueue {
	return &SampleQueue{}
}

// Push appends a sample. It never blocks and never drops.
func (q *SampleQueue) Push(s RawSample) {
	q.mu.Lock()
	q.pending = append(q.pending, s)
	q.mu.Unlock()
}

// Drain removes and returns everything currently queued, in arrival
// order. Returns nil when the queue is empty.
func (q *SampleQueue) Drain() []RawSample {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()
	return batch
}

// Len returns the number of samples currently queued
func (q *SampleQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
