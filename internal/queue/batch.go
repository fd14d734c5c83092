package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/orchids/event-stream/internal/cache"
	"github.com/orchids/event-stream/internal/domain"
	"github.com/orchids/event-stream/pkg/logger"
)

// ProcessFunc handles one collected batch and returns a result per message
// id. Results are memoized in the cache under "result:<id>".
type ProcessFunc func(ctx context.Context, msgs []*domain.QueuedMessage) (map[string]interface{}, error)

type BatchProcessorConfig struct {
	QueueName   string
	BatchSize   int
	MaxWaitTime time.Duration
	WorkerCount int
	ResultTTL   time.Duration
}

// BatchProcessor collects messages off the priority queue and hands each
// batch to a bounded worker pool, so a slow handler never stalls the
// collection loop.
type BatchProcessor struct {
	cfg     BatchProcessorConfig
	queue   *PriorityQueue
	results *cache.Cache
	process ProcessFunc
	log     *logger.Logger

	workers chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewBatchProcessor(cfg BatchProcessorConfig, q *PriorityQueue, results *cache.Cache, process ProcessFunc, log *logger.Logger) *BatchProcessor {
	return &BatchProcessor{
		cfg:     cfg,
		queue:   q,
		results: results,
		process: process,
		log:     log,
		workers: make(chan struct{}, cfg.WorkerCount),
	}
}

func (p *BatchProcessor) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.run(ctx)
}

// Stop cancels the collection loop and waits for it and all in-flight
// batch workers to finish.
func (p *BatchProcessor) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *BatchProcessor) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		batch := p.collect(ctx)
		if len(batch) == 0 {
			continue
		}
		p.dispatch(ctx, batch)
	}
}

// collect gathers messages until the batch is full or MaxWaitTime elapses,
// whichever comes first.
func (p *BatchProcessor) collect(ctx context.Context) []*domain.QueuedMessage {
	deadline := time.Now().Add(p.cfg.MaxWaitTime)
	batch := make([]*domain.QueuedMessage, 0, p.cfg.BatchSize)

	for len(batch) < p.cfg.BatchSize {
		remaining := time.Until(deadline)
		if remaining <= 0 || ctx.Err() != nil {
			break
		}
		msg := p.queue.Dequeue(ctx, p.cfg.QueueName, remaining)
		if msg == nil {
			break
		}
		batch = append(batch, msg)
	}
	return batch
}

// dispatch runs the batch on the worker pool. Processing failures are
// logged and the batch is dropped; requeue policy belongs to the caller.
func (p *BatchProcessor) dispatch(ctx context.Context, batch []*domain.QueuedMessage) {
	select {
	case p.workers <- struct{}{}:
	case <-ctx.Done():
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.workers }()

		results, err := p.process(ctx, batch)
		if err != nil {
			p.log.Error(ctx, "batch processing failed", err, map[string]interface{}{
				"queue":      p.cfg.QueueName,
				"batch_size": len(batch),
			})
			return
		}

		for id, result := range results {
			p.results.SetWithTTL(resultKey(id), result, p.cfg.ResultTTL)
		}

		p.log.Debug(ctx, "batch processed", map[string]interface{}{
			"queue":      p.cfg.QueueName,
			"batch_size": len(batch),
			"results":    len(results),
		})
	}()
}

// Result returns the cached processing result for a message id, if still
// within its TTL.
func (p *BatchProcessor) Result(messageID string) (interface{}, bool) {
	return p.results.Get(resultKey(messageID))
}

func resultKey(messageID string) string {
	return fmt.Sprintf("result:%s", messageID)
}
