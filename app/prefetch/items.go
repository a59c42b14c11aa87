package prefetch

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lysyi3m/newsdeck/app/content"
)

const DefaultItemDelay = 200 * time.Millisecond

type ItemFetcher interface {
	GetNewsletter(ctx context.Context, id string) (*content.Item, error)
}

// ItemQueue fetches item details one at a time in FIFO order, pausing between
// completions so the remote endpoint is not saturated.
type ItemQueue struct {
	fetcher ItemFetcher
	delay   time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	queue     []string
	tasks     map[string]*Task
	running   bool
	processed []string
	wg        sync.WaitGroup
}

func NewItemQueue(fetcher ItemFetcher, delay time.Duration, logger *slog.Logger) *ItemQueue {
	if delay < 0 {
		delay = DefaultItemDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ItemQueue{
		fetcher: fetcher,
		delay:   delay,
		logger:  logger,
		tasks:   make(map[string]*Task),
	}
}

// Enqueue adds id unless it is already queued, loading or settled.
func (q *ItemQueue) Enqueue(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, known := q.tasks[id]; known {
		return false
	}
	q.tasks[id] = NewTask(TaskTypeItem, id)
	q.queue = append(q.queue, id)
	return true
}

// Start processes the queue in the background. It returns false without doing
// anything if the queue is already being processed.
func (q *ItemQueue) Start(ctx context.Context) bool {
	if !q.begin() {
		return false
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.process(ctx)
	}()
	return true
}

// Run processes the queue on the calling goroutine.
func (q *ItemQueue) Run(ctx context.Context) bool {
	if !q.begin() {
		return false
	}
	q.process(ctx)
	return true
}

// Wait blocks until a background run started by Start has finished.
func (q *ItemQueue) Wait() {
	q.wg.Wait()
}

func (q *ItemQueue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Processed returns ids in the order their fetch started.
func (q *ItemQueue) Processed() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.processed...)
}

func (q *ItemQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	peak := 0
	if len(q.processed) > 0 {
		peak = 1
	}
	return collectStats(q.tasks, peak)
}

func (q *ItemQueue) begin() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return false
	}
	q.running = true
	return true
}

func (q *ItemQueue) process(ctx context.Context) {
	for {
		task, ok := q.next(ctx)
		if !ok {
			return
		}

		_, err := q.fetcher.GetNewsletter(ctx, task.Key)

		q.mu.Lock()
		task.Finish(err)
		more := len(q.queue) > 0
		q.mu.Unlock()

		if err != nil {
			q.logger.Warn("Item prefetch failed", "id", task.Key, "duration", task.Duration, "error", err)
		} else {
			q.logger.Debug("Item prefetched", "id", task.Key, "duration", task.Duration)
		}

		if !more || q.delay == 0 {
			continue
		}

		timer := time.NewTimer(q.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

// next pops the head of the queue, or clears the running flag when there is
// nothing left to do.
func (q *ItemQueue) next(ctx context.Context) (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.queue) == 0 || ctx.Err() != nil {
		q.running = false
		return nil, false
	}

	id := q.queue[0]
	q.queue = q.queue[1:]

	task := q.tasks[id]
	task.Start()
	q.processed = append(q.processed, id)
	return task, true
}
