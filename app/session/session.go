package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/newsdeck/app/content"
	"github.com/lysyi3m/newsdeck/app/debounce"
	"github.com/lysyi3m/newsdeck/app/filter"
	"github.com/lysyi3m/newsdeck/app/search"
)

// View is what the rendering layer displays.
type View struct {
	Stage     string          `json:"stage"`
	Criteria  filter.Criteria `json:"criteria"`
	Items     []content.Item  `json:"items"`
	Version   uint64          `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Session owns the working set together with everything derived from it: the
// search index, the filter pipeline and the displayed view.
type Session struct {
	index    *search.Index
	pipeline *filter.Pipeline
	sequence debounce.Sequencer
	logger   *slog.Logger

	mu          sync.RWMutex
	categories  []content.Category
	working     content.WorkingSet
	criteria    filter.Criteria
	view        View
	subscribers map[uint64]func(View)
	nextID      uint64
}

func New(extractor *content.Extractor, filterCacheSize int, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	index := search.NewIndex(extractor)
	return &Session{
		index:       index,
		pipeline:    filter.NewPipeline(index, filterCacheSize, logger),
		logger:      logger,
		categories:  []content.Category{},
		working:     content.WorkingSet{Items: []content.Item{}},
		criteria:    filter.Criteria{Sort: filter.SortNewest},
		view:        View{Items: []content.Item{}},
		subscribers: make(map[uint64]func(View)),
	}
}

func (s *Session) SetCategories(categories []content.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = categories
}

func (s *Session) Categories() []content.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categories
}

func (s *Session) WorkingSet() content.WorkingSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.working
}

// ReplaceWorkingSet installs items as the new working set, rebuilds the index
// and drops every cached filter result.
func (s *Session) ReplaceWorkingSet(items []content.Item) content.WorkingSet {
	if items == nil {
		items = []content.Item{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.working = content.WorkingSet{Items: items, Version: s.working.Version + 1}
	s.index.Build(s.working)
	s.pipeline.Clear()

	s.logger.Debug("Working set replaced", "version", s.working.Version, "items", len(items))
	return s.working
}

func (s *Session) Criteria() filter.Criteria {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.criteria
}

func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Query runs criteria against the current working set without touching the view.
func (s *Session) Query(criteria filter.Criteria) []content.Item {
	return s.pipeline.Apply(s.WorkingSet(), criteria)
}

// Publish replaces the displayed view with a stage subset.
func (s *Session) Publish(stage string, items []content.Item) View {
	s.mu.Lock()
	s.view = View{
		Stage:     stage,
		Criteria:  s.criteria,
		Items:     items,
		Version:   s.working.Version,
		UpdatedAt: time.Now(),
	}
	view, subscribers := s.view, s.snapshotSubscribers()
	s.mu.Unlock()

	notify(subscribers, view)
	return view
}

// ApplyFilter filters the working set and publishes the result unless a newer
// ApplyFilter started in the meantime. The returned bool reports whether the
// result was published.
func (s *Session) ApplyFilter(stage string, criteria filter.Criteria) (View, bool) {
	token := s.sequence.Begin()
	criteria.Sort = filter.ParseSort(string(criteria.Sort))

	ws := s.WorkingSet()
	items := s.pipeline.Apply(ws, criteria)

	s.mu.Lock()
	if !s.sequence.Commit(token) {
		view := s.view
		s.mu.Unlock()
		s.logger.Debug("Discarding superseded filter result", "query", criteria.Query)
		return view, false
	}

	s.criteria = criteria
	s.view = View{
		Stage:     stage,
		Criteria:  criteria,
		Items:     items,
		Version:   ws.Version,
		UpdatedAt: time.Now(),
	}
	view, subscribers := s.view, s.snapshotSubscribers()
	s.mu.Unlock()

	notify(subscribers, view)
	return view, true
}

// Subscribe registers fn for every published view and returns a function that
// removes it.
func (s *Session) Subscribe(fn func(View)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subscribers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Session) Index() *search.Index {
	return s.index
}

func (s *Session) Pipeline() *filter.Pipeline {
	return s.pipeline
}

func (s *Session) snapshotSubscribers() []func(View) {
	subscribers := make([]func(View), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	return subscribers
}

func notify(subscribers []func(View), view View) {
	for _, fn := range subscribers {
		fn(view)
	}
}
