package debounce

import (
	"sync"
	"sync/atomic"
	"time"
)

const DefaultWait = 150 * time.Millisecond

// Debouncer runs only the most recent of a burst of triggers, once the burst
// has been quiet for the wait period.
type Debouncer struct {
	wait time.Duration

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

func New(wait time.Duration) *Debouncer {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Debouncer{wait: wait}
}

// Trigger schedules fn, superseding any call that has not fired yet.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen

	d.timer = time.AfterFunc(d.wait, func() {
		d.mu.Lock()
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()

		fn()
	})
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Sequencer tags computations so that only the most recently started one may
// publish its result.
type Sequencer struct {
	latest atomic.Uint64
}

func (s *Sequencer) Begin() uint64 {
	return s.latest.Add(1)
}

// Commit reports whether token still belongs to the latest computation.
func (s *Sequencer) Commit(token uint64) bool {
	return token == s.latest.Load()
}
