package visibility

import (
	"sync"
)

type watcher struct {
	margin    int
	onVisible func()
}

// ListViewport models a scrolling list of resources addressed by position.
// Offsets, heights and margins are counted in list rows.
type ListViewport struct {
	mu        sync.Mutex
	positions map[string]int
	watchers  map[string][]watcher
	offset    int
	height    int
	scrolled  bool
}

var _ Viewport = (*ListViewport)(nil)

func NewListViewport() *ListViewport {
	return &ListViewport{
		positions: make(map[string]int),
		watchers:  make(map[string][]watcher),
	}
}

// Place assigns list positions in order, replacing previous placements.
// Watchers of resources that are no longer placed are dropped.
func (v *ListViewport) Place(resources []string) {
	v.mu.Lock()
	v.place(resources)
	fire := v.collect()
	for resource := range v.watchers {
		if _, ok := v.positions[resource]; !ok {
			delete(v.watchers, resource)
		}
	}
	v.mu.Unlock()

	run(fire)
}

// Reset drops every watcher and places resources, for a list whose contents
// are about to be watched again from scratch.
func (v *ListViewport) Reset(resources []string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.watchers = make(map[string][]watcher)
	v.place(resources)
}

func (v *ListViewport) Watch(resource string, margin int, onVisible func()) {
	v.mu.Lock()
	w := watcher{margin: margin, onVisible: onVisible}
	if v.visible(resource, margin) {
		v.mu.Unlock()
		onVisible()
		return
	}
	v.watchers[resource] = append(v.watchers[resource], w)
	v.mu.Unlock()
}

// Scroll moves the visible region and fires every watcher that is now in
// range. It returns how many callbacks ran.
func (v *ListViewport) Scroll(offset, height int) int {
	v.mu.Lock()
	v.offset = max(offset, 0)
	v.height = max(height, 0)
	v.scrolled = true
	fire := v.collect()
	v.mu.Unlock()

	run(fire)
	return len(fire)
}

// Pending returns the number of watchers still waiting.
func (v *ListViewport) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := 0
	for _, ws := range v.watchers {
		n += len(ws)
	}
	return n
}

func (v *ListViewport) place(resources []string) {
	v.positions = make(map[string]int, len(resources))
	for i, resource := range resources {
		v.positions[resource] = i
	}
}

func (v *ListViewport) visible(resource string, margin int) bool {
	if !v.scrolled {
		return false
	}
	position, ok := v.positions[resource]
	if !ok {
		return false
	}
	return position >= v.offset-margin && position < v.offset+v.height+margin
}

// collect removes and returns the callbacks of in-range watchers.
func (v *ListViewport) collect() []func() {
	var fire []func()
	for resource, ws := range v.watchers {
		remaining := ws[:0]
		for _, w := range ws {
			if v.visible(resource, w.margin) {
				fire = append(fire, w.onVisible)
				continue
			}
			remaining = append(remaining, w)
		}
		if len(remaining) == 0 {
			delete(v.watchers, resource)
			continue
		}
		v.watchers[resource] = remaining
	}
	return fire
}

func run(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
