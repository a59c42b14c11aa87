package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/lysyi3m/newsdeck/app/bridge"
	"github.com/lysyi3m/newsdeck/app/content"
	"github.com/lysyi3m/newsdeck/app/filter"
	"github.com/lysyi3m/newsdeck/app/prefetch"
	"github.com/lysyi3m/newsdeck/app/remote"
	"github.com/lysyi3m/newsdeck/app/session"
	"golang.org/x/sync/errgroup"
)

type Stage string

const (
	StageCategories Stage = "categories"
	StageFeatured   Stage = "featured"
	StageRecent     Stage = "recent"
	StageAll        Stage = "all"
)

const (
	DefaultPacing        = 100 * time.Millisecond
	DefaultFeaturedLimit = 6
	DefaultRecentLimit   = 12
	DefaultItemLimit     = 20
)

var stageOrder = []Stage{StageCategories, StageFeatured, StageRecent, StageAll}

// Priority is the 1-based position of s in the load sequence, or 0 if s is unknown.
func (s Stage) Priority() int {
	return slices.Index(stageOrder, s) + 1
}

func ParseStage(name string) (Stage, error) {
	stage := Stage(name)
	if stage.Priority() == 0 {
		return "", fmt.Errorf("unknown stage %q", name)
	}
	return stage, nil
}

type Remote interface {
	GetCategories(ctx context.Context) ([]content.Category, error)
	GetNewsletters(ctx context.Context) ([]content.Item, error)
	Forget(action string, params bridge.Params)
}

type Options struct {
	Pacing        time.Duration
	FeaturedLimit int
	RecentLimit   int
	ItemLimit     int
	Logger        *slog.Logger
}

type StageInfo struct {
	Name        Stage         `json:"name"`
	Priority    int           `json:"priority"`
	Completed   bool          `json:"completed"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Orchestrator loads content in stages so that something useful is displayed
// before the full working set has arrived. Every stage runs at most once.
type Orchestrator struct {
	remote  Remote
	session *session.Session
	images  *prefetch.ImagePrefetcher
	items   *prefetch.ItemQueue
	opts    Options
	logger  *slog.Logger

	mu     sync.Mutex
	stages map[Stage]*StageInfo

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
}

func New(remote Remote, sess *session.Session, images *prefetch.ImagePrefetcher, items *prefetch.ItemQueue, opts Options) *Orchestrator {
	if opts.Pacing < 0 {
		opts.Pacing = DefaultPacing
	}
	if opts.FeaturedLimit <= 0 {
		opts.FeaturedLimit = DefaultFeaturedLimit
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = DefaultRecentLimit
	}
	if opts.ItemLimit <= 0 {
		opts.ItemLimit = DefaultItemLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	stages := make(map[Stage]*StageInfo, len(stageOrder))
	for _, s := range stageOrder {
		stages[s] = &StageInfo{Name: s, Priority: s.Priority()}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		remote:  remote,
		session: sess,
		images:  images,
		items:   items,
		opts:    opts,
		logger:  opts.Logger,
		stages:  stages,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// RunStage runs s after any incomplete stage that precedes it. Completed stages
// are skipped.
func (o *Orchestrator) RunStage(ctx context.Context, s Stage) error {
	priority := s.Priority()
	if priority == 0 {
		return fmt.Errorf("unknown stage %q", s)
	}

	for _, stage := range stageOrder[:priority] {
		if _, err := o.runOnce(ctx, stage); err != nil {
			return err
		}
	}
	return nil
}

// RunAll runs every incomplete stage in order, pausing after each executed
// stage except the last.
func (o *Orchestrator) RunAll(ctx context.Context) error {
	for i, stage := range stageOrder {
		executed, err := o.runOnce(ctx, stage)
		if err != nil {
			return err
		}
		if !executed || i == len(stageOrder)-1 || o.opts.Pacing == 0 {
			continue
		}

		timer := time.NewTimer(o.opts.Pacing)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// Refresh refetches categories and newsletters and replaces the working set.
// On failure the current content is left untouched.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	o.remote.Forget(remote.ActionGetCategories, nil)
	o.remote.Forget(remote.ActionGetNewsletters, nil)

	categories, err := o.remote.GetCategories(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh categories: %w", err)
	}
	items, err := o.remote.GetNewsletters(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh newsletters: %w", err)
	}

	o.session.SetCategories(categories)
	o.finalize("refresh", items)

	o.logger.Info("Content refreshed", "items", len(items), "categories", len(categories), "duration", time.Since(start))
	return nil
}

func (o *Orchestrator) Completed(s Stage) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	info, ok := o.stages[s]
	return ok && info.Completed
}

func (o *Orchestrator) Stages() []StageInfo {
	o.mu.Lock()
	defer o.mu.Unlock()

	infos := make([]StageInfo, 0, len(stageOrder))
	for _, s := range stageOrder {
		infos = append(infos, *o.stages[s])
	}
	return infos
}

// Wait blocks until background prefetching started so far has drained.
func (o *Orchestrator) Wait() error {
	if err := o.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close stops background prefetching and waits for it to finish.
func (o *Orchestrator) Close() error {
	o.cancel()
	return o.Wait()
}

func (o *Orchestrator) runOnce(ctx context.Context, s Stage) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	info := o.stages[s]
	if info.Completed {
		return false, nil
	}

	start := time.Now()
	if err := o.execute(ctx, s); err != nil {
		o.logger.Error("Stage failed", "stage", string(s), "duration", time.Since(start), "error", err)
		return false, fmt.Errorf("stage %s: %w", s, err)
	}

	now := time.Now()
	info.Completed = true
	info.CompletedAt = &now
	info.Duration = now.Sub(start)

	o.logger.Info("Stage completed", "stage", string(s), "priority", info.Priority, "duration", info.Duration)
	return true, nil
}

func (o *Orchestrator) execute(ctx context.Context, s Stage) error {
	switch s {
	case StageCategories:
		categories, err := o.remote.GetCategories(ctx)
		if err != nil {
			return err
		}
		o.session.SetCategories(categories)
		return nil

	case StageFeatured:
		items, err := o.remote.GetNewsletters(ctx)
		if err != nil {
			return err
		}
		featured := make([]content.Item, 0, o.opts.FeaturedLimit)
		for _, item := range items {
			if item.Featured {
				featured = append(featured, item)
			}
		}
		o.session.Publish(string(s), newest(featured, o.opts.FeaturedLimit))
		return nil

	case StageRecent:
		items, err := o.remote.GetNewsletters(ctx)
		if err != nil {
			return err
		}
		o.session.Publish(string(s), newest(slices.Clone(items), o.opts.RecentLimit))
		return nil

	case StageAll:
		items, err := o.remote.GetNewsletters(ctx)
		if err != nil {
			return err
		}
		o.finalize(string(s), items)
		return nil
	}

	return fmt.Errorf("unknown stage %q", s)
}

// finalize installs items as the working set, publishes the filtered view and
// starts both prefetchers against it.
func (o *Orchestrator) finalize(stage string, items []content.Item) {
	ws := o.session.ReplaceWorkingSet(items)
	view, _ := o.session.ApplyFilter(stage, o.session.Criteria())

	queuedImages := 0
	for _, url := range ws.ImageURLs() {
		if o.images.Enqueue(url) {
			queuedImages++
		}
	}

	queuedItems := 0
	for _, item := range view.Items[:min(len(view.Items), o.opts.ItemLimit)] {
		if o.items.Enqueue(item.ID) {
			queuedItems++
		}
	}

	o.logger.Debug("Prefetch scheduled", "stage", stage, "images", queuedImages, "items", queuedItems)

	o.group.Go(func() error {
		return o.images.ProcessQueue(o.ctx)
	})
	o.group.Go(func() error {
		o.items.Run(o.ctx)
		return nil
	})
}

func newest(items []content.Item, limit int) []content.Item {
	filter.Sort(items, filter.SortNewest)
	return items[:min(len(items), limit)]
}
