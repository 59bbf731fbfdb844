package task

import (
	"sort"
	"time"

	"github.com/phrazzld/scry-tasks/internal/domain"
)

// QueueItem is one pending task waiting for the worker.
type QueueItem struct {
	TaskID     string
	Priority   domain.Priority
	SessionID  string
	EnqueuedAt time.Time

	seq    uint64
	tokens map[string]struct{}
}

// PriorityQueue orders pending tasks by priority weight, highest first.
// Items with the same priority keep their enqueue order.
type PriorityQueue struct {
	items []*QueueItem
	seq   uint64
}

// NewPriorityQueue creates an empty queue.
func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{}
}

// Push inserts item behind every item of equal or higher priority and
// returns its 1-based position.
func (q *PriorityQueue) Push(item *QueueItem) int {
	item.seq = q.seq
	q.seq++

	w := item.Priority.Weight()
	i := sort.Search(len(q.items), func(i int) bool {
		return q.items[i].Priority.Weight() < w
	})

	q.items = append(q.items, nil)
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = item
	return i + 1
}

// Pop removes and returns the head of the queue.
func (q *PriorityQueue) Pop() (*QueueItem, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	head := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return head, true
}

// Peek returns the head of the queue without removing it.
func (q *PriorityQueue) Peek() (*QueueItem, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// Remove drops the item for taskID. It reports whether the item was queued.
func (q *PriorityQueue) Remove(taskID string) bool {
	for i, item := range q.items {
		if item.TaskID == taskID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Position returns the 1-based position of taskID, or 0 if it is not queued.
func (q *PriorityQueue) Position(taskID string) int {
	for i, item := range q.items {
		if item.TaskID == taskID {
			return i + 1
		}
	}
	return 0
}

// Len returns the number of queued items.
func (q *PriorityQueue) Len() int {
	return len(q.items)
}

// Items returns the queued items in dispatch order.
func (q *PriorityQueue) Items() []*QueueItem {
	out := make([]*QueueItem, len(q.items))
	copy(out, q.items)
	return out
}
