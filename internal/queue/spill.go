package queue

import (
	"context"
	"sync"
	"time"

	"github.com/orchids/event-stream/internal/domain"
	"github.com/orchids/event-stream/pkg/logger"
)

// Spillover parks messages in the backing store when the in-process queue
// is full and drains them back as room frees up. Ordering across the spill
// boundary follows the store's priority law, so a spilled critical message
// still re-enters ahead of spilled low-priority ones.
type Spillover struct {
	store     Store
	queue     *PriorityQueue
	queueName string
	log       *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSpillover(store Store, q *PriorityQueue, queueName string, log *logger.Logger) *Spillover {
	return &Spillover{
		store:     store,
		queue:     q,
		queueName: queueName,
		log:       log,
	}
}

// Offload parks one message in the store.
func (s *Spillover) Offload(ctx context.Context, msg *domain.QueuedMessage) error {
	return s.store.Push(ctx, s.queueName, msg)
}

func (s *Spillover) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.drain(ctx)
}

func (s *Spillover) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Spillover) drain(ctx context.Context) {
	defer s.wg.Done()

	for ctx.Err() == nil {
		// Hold off while the in-process queue has no headroom; popping
		// now would just bounce the message straight back to the store.
		if s.queue.Depth(s.queueName) >= s.queue.Capacity() {
			select {
			case <-time.After(500 * time.Millisecond):
			case <-ctx.Done():
				return
			}
			continue
		}

		msg, err := s.store.Pop(ctx, s.queueName, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn(ctx, "spillover drain failed", map[string]interface{}{
				"queue": s.queueName,
				"error": err.Error(),
			})
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if msg == nil || msg.Expired(time.Now()) {
			continue
		}

		if !s.queue.Enqueue(msg, s.queueName) {
			// Lost the race for the last slot; park it again.
			if err := s.Offload(ctx, msg); err != nil {
				s.log.Error(ctx, "failed to re-park spilled message", err, map[string]interface{}{
					"queue":      s.queueName,
					"message_id": msg.ID,
				})
			}
		}
	}
}
