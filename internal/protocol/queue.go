// internal/protocol/queue.go
package protocol

import (
	"time"
)

// chunkQueue is an unbounded FIFO of inbound byte chunks. The producer side
// (the transport read loop) never blocks on the consumer side (the line
// reader): a pump goroutine parks excess chunks in an internal backlog.
// Single producer, single consumer.
type chunkQueue struct {
	in     chan []byte
	out    chan []byte
	drainc chan chan struct{}
	done   chan struct{}
}

func newChunkQueue() *chunkQueue {
	q := &chunkQueue{
		in:     make(chan []byte, 1),
		out:    make(chan []byte),
		drainc: make(chan chan struct{}),
		done:   make(chan struct{}),
	}
	go q.pump()
	return q
}

func (q *chunkQueue) pump() {
	defer close(q.done)
	defer close(q.out)

	var backlog [][]byte
	in := q.in

	for in != nil || len(backlog) > 0 {
		var out chan []byte
		var next []byte
		if len(backlog) > 0 {
			out = q.out
			next = backlog[0]
		}

		select {
		case chunk, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			backlog = append(backlog, chunk)
		case out <- next:
			backlog = backlog[1:]
		case ack := <-q.drainc:
			// The backlog is pump-local, so the whole of it has to be
			// cleared here, not by racing receives from the consumer side.
			backlog = nil
			close(ack)
		}
	}
}

// Put enqueues a chunk. Must not be called after Close.
func (q *chunkQueue) Put(chunk []byte) {
	q.in <- chunk
}

// Get dequeues the next chunk, waiting no longer than the deadline. A nil
// chunk with ok=false means the queue was closed; a TimeoutError means the
// deadline passed first.
func (q *chunkQueue) Get(deadline time.Time) ([]byte, bool, error) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return nil, false, &TimeoutError{Op: OpRead}
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case chunk, ok := <-q.out:
		return chunk, ok, nil
	case <-timer.C:
		return nil, false, &TimeoutError{Op: OpRead}
	}
}

// Drain discards every chunk currently buffered, waiting for the pump to
// acknowledge the clear. Chunks still in flight from the producer may land
// just after; the caller resets the transport buffers in the same breath, so
// stale data cannot survive both.
func (q *chunkQueue) Drain() {
	ack := make(chan struct{})
	select {
	case q.drainc <- ack:
		<-ack
	case <-q.done:
	}
}

// Close stops the pump once the backlog empties. Producer side only.
func (q *chunkQueue) Close() {
	close(q.in)
}
