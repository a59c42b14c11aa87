package visibility

import (
	"sync"
)

// Observer defers work on a resource until it is about to be seen.
type Observer interface {
	Observe(resource string, onVisible func())
}

// Viewport is a visibility capability. Watch calls onVisible once resource
// comes within margin of the visible region.
type Viewport interface {
	Watch(resource string, margin int, onVisible func())
}

// Trigger observes through a Viewport when one is available and runs callbacks
// immediately otherwise. Each callback runs at most once.
type Trigger struct {
	viewport Viewport
	margin   int
}

var _ Observer = (*Trigger)(nil)

func NewTrigger(viewport Viewport, margin int) *Trigger {
	return &Trigger{viewport: viewport, margin: max(margin, 0)}
}

func (t *Trigger) Observe(resource string, onVisible func()) {
	once := sync.OnceFunc(onVisible)
	if t.viewport == nil {
		once()
		return
	}
	t.viewport.Watch(resource, t.margin, once)
}
