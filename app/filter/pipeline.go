package filter

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/lysyi3m/newsdeck/app/cache"
	"github.com/lysyi3m/newsdeck/app/content"
)

const DefaultCacheSize = 20

type SortMode string

const (
	SortNewest   SortMode = "newest"
	SortOldest   SortMode = "oldest"
	SortViews    SortMode = "views"
	SortFeatured SortMode = "featured"
)

// ParseSort maps unknown or empty values to SortNewest.
func ParseSort(s string) SortMode {
	switch mode := SortMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case SortOldest, SortViews, SortFeatured:
		return mode
	default:
		return SortNewest
	}
}

type Criteria struct {
	Query    string   `json:"query"`
	Category string   `json:"category"`
	Tag      string   `json:"tag"`
	Sort     SortMode `json:"sort"`
}

type Searcher interface {
	Search(query string) []content.Item
}

// Pipeline narrows a working set by query, category and tag, then sorts it.
// Results are cached per working-set version and criteria.
type Pipeline struct {
	searcher     Searcher
	results      *cache.Cache[[]content.Item]
	computations atomic.Int64
	logger       *slog.Logger
}

func NewPipeline(searcher Searcher, cacheSize int, logger *slog.Logger) *Pipeline {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		searcher: searcher,
		results:  cache.New[[]content.Item](cache.WithMaxSize(cacheSize)),
		logger:   logger,
	}
}

// Apply returns the filtered view. Repeated calls with the same working-set
// version and criteria return the same slice; callers must not modify it.
func (p *Pipeline) Apply(ws content.WorkingSet, criteria Criteria) []content.Item {
	criteria.Sort = ParseSort(string(criteria.Sort))
	key := cacheKey(ws.Version, criteria)

	if items, ok := p.results.Get(key); ok {
		return items
	}

	items := p.compute(ws, criteria)
	p.computations.Add(1)
	p.results.Set(key, items)

	p.logger.Debug("Filter applied",
		"version", ws.Version,
		"query", criteria.Query,
		"category", criteria.Category,
		"tag", criteria.Tag,
		"sort", criteria.Sort,
		"results", len(items))

	return items
}

// Computations counts how many times Apply missed the cache.
func (p *Pipeline) Computations() int64 {
	return p.computations.Load()
}

func (p *Pipeline) Clear() {
	p.results.Clear()
}

func (p *Pipeline) CacheStats() cache.Stats {
	return p.results.Stats()
}

func (p *Pipeline) compute(ws content.WorkingSet, criteria Criteria) []content.Item {
	source := ws.Items
	if strings.TrimSpace(criteria.Query) != "" && p.searcher != nil {
		source = p.searcher.Search(criteria.Query)
	}

	tag := strings.TrimSpace(criteria.Tag)
	filtered := make([]content.Item, 0, len(source))
	for _, item := range source {
		if criteria.Category != "" && item.Category != criteria.Category {
			continue
		}
		if tag != "" && !hasTag(item, tag) {
			continue
		}
		filtered = append(filtered, item)
	}

	Sort(filtered, criteria.Sort)
	return filtered
}

// Sort orders items in place. Items of equal rank keep their relative order.
func Sort(items []content.Item, mode SortMode) {
	switch mode {
	case SortOldest:
		slices.SortStableFunc(items, func(a, b content.Item) int {
			return a.PublishedAt.Compare(b.PublishedAt)
		})
	case SortViews:
		slices.SortStableFunc(items, func(a, b content.Item) int {
			return compareInt64(b.Views, a.Views)
		})
	case SortFeatured:
		slices.SortStableFunc(items, func(a, b content.Item) int {
			return featuredRank(a) - featuredRank(b)
		})
	default:
		slices.SortStableFunc(items, func(a, b content.Item) int {
			return b.PublishedAt.Compare(a.PublishedAt)
		})
	}
}

func hasTag(item content.Item, tag string) bool {
	for _, t := range item.Tags {
		if strings.TrimSpace(t) == tag {
			return true
		}
	}
	return false
}

func featuredRank(item content.Item) int {
	if item.Featured {
		return 0
	}
	return 1
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cacheKey(version uint64, criteria Criteria) string {
	return fmt.Sprintf("%d|%q|%q|%q|%s", version, criteria.Query, criteria.Category, criteria.Tag, criteria.Sort)
}
