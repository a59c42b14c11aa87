package prefetch

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

const DefaultMaxConcurrent = 3

// Loader warms one asset.
type Loader interface {
	Load(ctx context.Context, url string) error
}

type LoaderFunc func(ctx context.Context, url string) error

func (f LoaderFunc) Load(ctx context.Context, url string) error {
	return f(ctx, url)
}

// ImagePrefetcher is a pull-based pool: a load starts only when a slot frees
// up, and at most maxConcurrent loads are active at any time.
type ImagePrefetcher struct {
	loader        Loader
	maxConcurrent int
	logger        *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []string
	tasks  map[string]*Task
	active int
	peak   int
	wg     sync.WaitGroup
}

func NewImagePrefetcher(loader Loader, maxConcurrent int, logger *slog.Logger) *ImagePrefetcher {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &ImagePrefetcher{
		loader:        loader,
		maxConcurrent: maxConcurrent,
		logger:        logger,
		tasks:         make(map[string]*Task),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Enqueue adds url unless it is already queued, loading or settled.
func (p *ImagePrefetcher) Enqueue(url string) bool {
	url = strings.TrimSpace(url)
	if url == "" {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, known := p.tasks[url]; known {
		return false
	}
	p.tasks[url] = NewTask(TaskTypeImage, url)
	p.queue = append(p.queue, url)
	p.cond.Broadcast()
	return true
}

// ProcessQueue drains the queue and returns once nothing is queued or active.
// Load failures are logged and never returned; only ctx cancellation is.
func (p *ImagePrefetcher) ProcessQueue(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.cond.Broadcast()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.pump(ctx)
		if len(p.queue) == 0 && p.active == 0 {
			return nil
		}
		p.cond.Wait()
	}
}

// Wait blocks until every started load has returned.
func (p *ImagePrefetcher) Wait() {
	p.wg.Wait()
}

func (p *ImagePrefetcher) State(url string) (State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	task, ok := p.tasks[url]
	if !ok {
		return "", false
	}
	return task.State, true
}

func (p *ImagePrefetcher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return collectStats(p.tasks, p.peak)
}

// pump must be called with p.mu held.
func (p *ImagePrefetcher) pump(ctx context.Context) {
	for p.active < p.maxConcurrent && len(p.queue) > 0 && ctx.Err() == nil {
		url := p.queue[0]
		p.queue = p.queue[1:]

		task := p.tasks[url]
		task.Start()
		p.active++
		p.peak = max(p.peak, p.active)

		p.wg.Add(1)
		go p.load(ctx, task)
	}
}

func (p *ImagePrefetcher) load(ctx context.Context, task *Task) {
	defer p.wg.Done()

	err := p.loader.Load(ctx, task.Key)

	p.mu.Lock()
	defer p.mu.Unlock()

	task.Finish(err)
	p.active--

	if err != nil {
		p.logger.Warn("Image prefetch failed", "url", task.Key, "duration", task.Duration, "error", err)
	} else {
		p.logger.Debug("Image prefetched", "url", task.Key, "duration", task.Duration)
	}

	p.pump(ctx)
	p.cond.Broadcast()
}
