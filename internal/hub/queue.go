package hub

import (
	"context"
	"sync"

	"github.com/hubwire/hubwire"
)

// MessageQueue is a bounded FIFO of whole byte messages with suspending
// write/read and a terminal writer-complete signal. It is the sole point of
// producer/consumer coordination between the hub manager and the transport
// pump.
type MessageQueue struct {
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

// NewMessageQueue returns a queue holding at most capacity messages.
func NewMessageQueue(capacity int) *MessageQueue {
	return &MessageQueue{
		ch:   make(chan []byte, capacity),
		done: make(chan struct{}),
	}
}

// Write enqueues one message, suspending while the queue is full. It fails
// with hubwire.ErrQueueCompleted once Complete has been called and with the
// context error when ctx is done first.
func (q *MessageQueue) Write(ctx context.Context, msg []byte) error {
	select {
	case <-q.done:
		return hubwire.ErrQueueCompleted
	default:
	}
	select {
	case q.ch <- msg:
		return nil
	case <-q.done:
		return hubwire.ErrQueueCompleted
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Read dequeues one message, suspending while the queue is empty. After
// Complete it keeps returning buffered messages until the queue drains, then
// fails with hubwire.ErrQueueCompleted.
func (q *MessageQueue) Read(ctx context.Context) ([]byte, error) {
	// Buffered messages win over the completion signal.
	select {
	case msg := <-q.ch:
		return msg, nil
	default:
	}
	select {
	case msg := <-q.ch:
		return msg, nil
	case <-q.done:
		select {
		case msg := <-q.ch:
			return msg, nil
		default:
			return nil, hubwire.ErrQueueCompleted
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Complete marks the writer side finished. Pending and subsequent writes fail;
// reads drain what is buffered and then fail. Safe to call more than once.
func (q *MessageQueue) Complete() {
	q.once.Do(func() { close(q.done) })
}

// Len returns the number of buffered messages.
func (q *MessageQueue) Len() int {
	return len(q.ch)
}

// Completed reports whether Complete has been called.
func (q *MessageQueue) Completed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}
