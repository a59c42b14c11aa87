package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/newsdeck/app/bridge"
	"github.com/lysyi3m/newsdeck/app/content"
	"github.com/lysyi3m/newsdeck/app/filter"
)

const (
	defaultRelatedLimit = 4
	defaultCounterWait  = 10 * time.Second
)

func NewHandler(deps Deps) *Handler {
	relatedLimit := deps.RelatedLimit
	if relatedLimit <= 0 {
		relatedLimit = defaultRelatedLimit
	}
	counterWait := deps.CounterWait
	if counterWait <= 0 {
		counterWait = defaultCounterWait
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		remote:       deps.Remote,
		session:      deps.Session,
		loader:       deps.Loader,
		images:       deps.Images,
		items:        deps.Items,
		requests:     deps.Requests,
		generator:    deps.Generator,
		channel:      deps.Channel,
		hub:          deps.Hub,
		relatedLimit: relatedLimit,
		counterWait:  counterWait,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Close stops background work started by requests and waits for it.
func (h *Handler) Close() {
	h.cancel()
	h.wg.Wait()
	h.items.Wait()
}

func (h *Handler) GetHealth(c *gin.Context) {
	ws := h.session.WorkingSet()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"items":     ws.Len(),
		"version":   ws.Version,
	})
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := gin.H{
		"cache":               h.remote.CacheStats(),
		"filter_cache":        h.session.Pipeline().CacheStats(),
		"filter_computations": h.session.Pipeline().Computations(),
		"images":              h.images.Stats(),
		"items":               h.items.Stats(),
		"stages":              h.loader.Stages(),
		"view":                h.session.View().Stage,
	}
	if h.requests != nil {
		stats["pending_requests"] = h.requests.Pending()
	}
	if h.hub != nil {
		stats["clients"] = h.hub.Count()
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) ListCategories(c *gin.Context) {
	categories := h.session.Categories()
	c.JSON(http.StatusOK, gin.H{
		"categories": categories,
		"total":      len(categories),
	})
}

func (h *Handler) ListTags(c *gin.Context) {
	tags := filter.Tags(h.session.WorkingSet().Items)
	c.JSON(http.StatusOK, gin.H{
		"tags":  tags,
		"total": len(tags),
	})
}

func (h *Handler) ListNewsletters(c *gin.Context) {
	criteria := filter.Criteria{
		Query:    c.Query("q"),
		Category: c.Query("category"),
		Tag:      c.Query("tag"),
		Sort:     filter.ParseSort(c.Query("sort")),
	}

	page, err := queryInt(c, "page", 1)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page parameter"})
		return
	}
	perPage, err := queryInt(c, "per_page", filter.DefaultPerPage)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid per_page parameter"})
		return
	}

	result := filter.Paginate(h.session.Query(criteria), page, perPage)
	c.JSON(http.StatusOK, gin.H{
		"newsletters": result.Items,
		"page":        result.Page,
		"per_page":    result.PerPage,
		"total":       result.Total,
		"total_pages": result.TotalPages,
		"criteria":    criteria,
		"version":     h.session.WorkingSet().Version,
	})
}

func (h *Handler) GetNewsletter(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing newsletter id parameter"})
		return
	}

	item, err := h.remote.GetNewsletter(c.Request.Context(), id)
	if err != nil {
		slog.Error("Remote error", "operation", "get_newsletter", "id", id, "error", err)
		writeRemoteError(c, err)
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Newsletter not found"})
		return
	}

	h.count("view", id, h.remote.IncrementView)

	related := h.related(*item)
	for _, r := range related {
		h.items.Enqueue(r.ID)
	}
	if len(related) > 0 {
		h.items.Start(h.ctx)
	}

	c.JSON(http.StatusOK, gin.H{
		"newsletter": item,
		"related":    related,
	})
}

func (h *Handler) ShareNewsletter(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing newsletter id parameter"})
		return
	}

	h.count("share", id, h.remote.IncrementShare)

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Share recorded",
		"id":      id,
	})
}

func (h *Handler) PrefetchNewsletter(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing newsletter id parameter"})
		return
	}

	queued := h.items.Enqueue(id)
	h.items.Start(h.ctx)

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Prefetch scheduled",
		"id":      id,
		"queued":  queued,
	})
}

func (h *Handler) Refresh(c *gin.Context) {
	if err := h.loader.Refresh(c.Request.Context()); err != nil {
		slog.Error("Refresh failed", "error", err)
		writeRemoteError(c, err)
		return
	}

	ws := h.session.WorkingSet()
	c.JSON(http.StatusOK, gin.H{
		"message": "Content refreshed",
		"items":   ws.Len(),
		"version": ws.Version,
	})
}

// GetFeed renders the whole filtered working set under the current criteria.
func (h *Handler) GetFeed(c *gin.Context) {
	items := h.session.Query(h.session.Criteria())

	rss, err := h.generator.Run(h.channel, items)
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))
	c.Header("X-Feed-Version", strconv.FormatUint(h.session.WorkingSet().Version, 10))

	c.String(http.StatusOK, rss)
}

func (h *Handler) ServeWS(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Live updates disabled"})
		return
	}
	h.hub.ServeWS(c.Writer, c.Request)
}

// count fires a counter update without holding up the response.
func (h *Handler) count(kind, id string, increment func(context.Context, string) error) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ctx, cancel := context.WithTimeout(h.ctx, h.counterWait)
		defer cancel()

		if err := increment(ctx, id); err != nil {
			slog.Warn("Counter update failed", "counter", kind, "id", id, "error", err)
		}
	}()
}

// related picks other items of the same category in working-set order.
func (h *Handler) related(item content.Item) []content.Item {
	related := make([]content.Item, 0, h.relatedLimit)
	if item.Category == "" {
		return related
	}
	for _, candidate := range h.session.WorkingSet().Items {
		if len(related) == h.relatedLimit {
			break
		}
		if candidate.ID != item.ID && candidate.Category == item.Category {
			related = append(related, candidate)
		}
	}
	return related
}

func writeRemoteError(c *gin.Context, err error) {
	switch {
	case bridge.IsRemote(err):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Remote error",
			"details": err.Error(),
		})
	case bridge.IsTransport(err):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Transport error",
			"details": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal error",
			"details": err.Error(),
		})
	}
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
