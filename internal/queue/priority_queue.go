package queue

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/orchids/event-stream/internal/domain"
)

type item struct {
	msg *domain.QueuedMessage
	seq uint64
	idx int
}

// msgHeap orders by priority first (lower value pops first), then by
// arrival sequence within equal priority.
type msgHeap []*item

func (h msgHeap) Len() int { return len(h) }

func (h msgHeap) Less(i, j int) bool {
	if h[i].msg.Priority != h[j].msg.Priority {
		return h[i].msg.Priority < h[j].msg.Priority
	}
	return h[i].seq < h[j].seq
}

func (h msgHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx = i
	h[j].idx = j
}

func (h *msgHeap) Push(x interface{}) {
	it := x.(*item)
	it.idx = len(*h)
	*h = append(*h, it)
}

func (h *msgHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

type namedQueue struct {
	items msgHeap

	// notify is closed and replaced on every enqueue, waking all blocked
	// Dequeue callers at once; each re-checks the heap under the lock.
	notify chan struct{}

	enqueued int64
	dequeued int64
	rejected int64
	expired  int64
}

// PriorityQueue is a set of named, bounded, in-process priority queues.
// Capacity overflow is an expected condition and reported as a boolean,
// not an error.
type PriorityQueue struct {
	mu       sync.Mutex
	queues   map[string]*namedQueue
	capacity int
	seq      uint64
}

func NewPriorityQueue(capacityPerQueue int) *PriorityQueue {
	return &PriorityQueue{
		queues:   make(map[string]*namedQueue),
		capacity: capacityPerQueue,
	}
}

func (q *PriorityQueue) queue(name string) *namedQueue {
	nq, ok := q.queues[name]
	if !ok {
		nq = &namedQueue{notify: make(chan struct{}, 1)}
		q.queues[name] = nq
	}
	return nq
}

// Enqueue stores msg in the named queue. Returns false when the queue is
// at capacity; the queue is left unchanged in that case.
func (q *PriorityQueue) Enqueue(msg *domain.QueuedMessage, queueName string) bool {
	q.mu.Lock()
	nq := q.queue(queueName)
	if len(nq.items) >= q.capacity {
		nq.rejected++
		q.mu.Unlock()
		return false
	}
	q.seq++
	heap.Push(&nq.items, &item{msg: msg, seq: q.seq})
	nq.enqueued++
	close(nq.notify)
	nq.notify = make(chan struct{})
	q.mu.Unlock()
	return true
}

// Dequeue returns the highest-priority live message, waiting up to timeout
// for one to arrive. Messages past their TTL are discarded, not delivered.
// Returns nil on timeout or context cancellation.
func (q *PriorityQueue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) *domain.QueuedMessage {
	deadline := time.Now().Add(timeout)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		nq := q.queue(queueName)
		if msg := nq.popLive(time.Now()); msg != nil {
			q.mu.Unlock()
			return msg
		}
		notify := nq.notify
		q.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(remaining)

		select {
		case <-notify:
		case <-timer.C:
			// One final non-blocking check below via the loop.
			if time.Now().After(deadline) {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// DequeueBatch drains up to batchSize live messages without waiting.
func (q *PriorityQueue) DequeueBatch(queueName string, batchSize int) []*domain.QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	nq := q.queue(queueName)
	now := time.Now()
	out := make([]*domain.QueuedMessage, 0, batchSize)
	for len(out) < batchSize {
		msg := nq.popLive(now)
		if msg == nil {
			break
		}
		out = append(out, msg)
	}
	return out
}

// popLive pops the highest-priority message, dropping expired ones on the
// way. Caller holds the lock.
func (nq *namedQueue) popLive(now time.Time) *domain.QueuedMessage {
	for nq.items.Len() > 0 {
		it := heap.Pop(&nq.items).(*item)
		if it.msg.Expired(now) {
			nq.expired++
			continue
		}
		nq.dequeued++
		return it.msg
	}
	return nil
}

func (q *PriorityQueue) Depth(queueName string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	nq, ok := q.queues[queueName]
	if !ok {
		return 0
	}
	return nq.items.Len()
}

// TotalDepth reports pending messages across every named queue.
func (q *PriorityQueue) TotalDepth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for _, nq := range q.queues {
		total += nq.items.Len()
	}
	return total
}

func (q *PriorityQueue) Capacity() int {
	return q.capacity
}

func (q *PriorityQueue) Stats() []domain.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := make([]domain.QueueStats, 0, len(q.queues))
	for name, nq := range q.queues {
		stats = append(stats, domain.QueueStats{
			Name:     name,
			Depth:    nq.items.Len(),
			Capacity: q.capacity,
			Enqueued: nq.enqueued,
			Dequeued: nq.dequeued,
			Rejected: nq.rejected,
			Expired:  nq.expired,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}
