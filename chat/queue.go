package chat

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Sender is the downstream of the queue, implemented by the transport
// session. Ready gates draining; Send performs exactly one delivery
// attempt per entry.
type Sender interface {
	Ready() bool
	Send(payload any) error
}

// Queue is the FIFO outbound message queue. It is unbounded, in-memory
// only, and fire-and-forget: an entry is removed the instant it is handed
// to the sender, regardless of delivery outcome.
type Queue struct {
	mu    sync.Mutex
	items []any
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends a payload in submission order.
func (q *Queue) Push(payload any) {
	q.mu.Lock()
	q.items = append(q.items, payload)
	q.mu.Unlock()
}

// Len reports the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Process drains the queue in order. It is a no-op while the sender is
// not ready. Entries pushed concurrently with a drain are picked up by
// their own triggering Process call, so nothing is lost.
func (q *Queue) Process(s Sender) {
	if s == nil || !s.Ready() {
		return
	}

	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		payload := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		if err := s.Send(payload); err != nil {
			// Fire-and-forget: the entry is already consumed, reliability
			// is not this layer's contract.
			logrus.WithFields(logrus.Fields{
				"component": "Queue",
				"error":     err.Error(),
			}).Warn("Queued send failed")
		}
	}
}
