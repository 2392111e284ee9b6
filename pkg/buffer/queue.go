// Package buffer provides a bounded, blocking FIFO used to hand streamed
// events from a producer goroutine to a single consumer.
//
// A Queue blocks Push when full and Pop when empty. The producer ends the
// stream with CloseWrite (consumers drain what is left, then get
// ErrQueueDone) or aborts it with CloseWithError (pending and future
// operations fail immediately with that error).
package buffer

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrQueueDone is returned by Pop once the write side is closed and every
// queued element has been consumed.
var ErrQueueDone = errors.New("buffer: queue done")

// Queue is a thread-safe fixed-size circular FIFO.
type Queue[T any] struct {
	cond *sync.Cond

	mu         sync.Mutex
	buf        []T
	head, tail int64
	closeWrite bool
	closeErr   error
}

// NewQueue creates a Queue holding at most size elements.
func NewQueue[T any](size int) *Queue[T] {
	if size <= 0 {
		size = 1
	}
	q := &Queue[T]{buf: make([]T, size)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends v, blocking while the queue is full.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.writableLocked(); err != nil {
		return err
	}
	size := int64(len(q.buf))
	for q.tail-q.head == size {
		q.cond.Wait()
		if err := q.writableLocked(); err != nil {
			return err
		}
	}
	q.buf[q.tail%size] = v
	q.tail++
	q.cond.Broadcast()
	return nil
}

func (q *Queue[T]) writableLocked() error {
	if q.closeErr != nil {
		return fmt.Errorf("buffer: push to closed queue: %w", q.closeErr)
	}
	if q.closeWrite {
		return fmt.Errorf("buffer: push to closed queue: %w", io.ErrClosedPipe)
	}
	return nil
}

// Pop removes and returns the oldest element, blocking while the queue is
// empty. It returns ErrQueueDone after CloseWrite once drained.
func (q *Queue[T]) Pop() (v T, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.closeErr != nil {
			return v, fmt.Errorf("buffer: pop from closed queue: %w", q.closeErr)
		}
		if q.head != q.tail {
			break
		}
		if q.closeWrite {
			return v, ErrQueueDone
		}
		q.cond.Wait()
	}
	idx := q.head % int64(len(q.buf))
	v = q.buf[idx]
	var zero T
	q.buf[idx] = zero
	q.head++
	q.cond.Broadcast()
	return v, nil
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int(q.tail - q.head)
}

// CloseWrite ends the stream. Queued elements remain readable.
func (q *Queue[T]) CloseWrite() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closeWrite {
		q.closeWrite = true
		q.cond.Broadcast()
	}
	return nil
}

// CloseWithError aborts the queue. A nil err is replaced by
// io.ErrClosedPipe. Only the first error is kept.
func (q *Queue[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeErr != nil {
		return nil
	}
	q.closeErr = err
	q.closeWrite = true
	q.cond.Broadcast()
	return nil
}

// Close is CloseWithError(io.ErrClosedPipe).
func (q *Queue[T]) Close() error {
	return q.CloseWithError(io.ErrClosedPipe)
}

// Err returns the error the queue was aborted with, if any.
func (q *Queue[T]) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closeErr
}
