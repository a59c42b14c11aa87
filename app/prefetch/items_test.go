package prefetch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/newsdeck/app/content"
)

type fakeFetcher struct {
	mu        sync.Mutex
	active    int
	maxActive int
	calls     []string
	times     []time.Time
	fail      map[string]bool
	gate      chan struct{}
}

func (f *fakeFetcher) GetNewsletter(ctx context.Context, id string) (*content.Item, error) {
	f.mu.Lock()
	f.active++
	f.maxActive = max(f.maxActive, f.active)
	f.calls = append(f.calls, id)
	f.times = append(f.times, time.Now())
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	f.active--
	shouldFail := f.fail[id]
	f.mu.Unlock()

	if shouldFail {
		return nil, errors.New("remote unavailable")
	}
	return &content.Item{ID: id}, nil
}

func TestItemQueue_FIFOOneAtATime(t *testing.T) {
	fetcher := &fakeFetcher{}
	queue := NewItemQueue(fetcher, 0, nil)

	for _, id := range []string{"3", "1", "2", "1"} {
		queue.Enqueue(id)
	}

	if !queue.Run(context.Background()) {
		t.Fatal("Expected Run to process the queue")
	}

	expected := []string{"3", "1", "2"}
	if len(fetcher.calls) != len(expected) {
		t.Fatalf("Expected %d fetches, got %v", len(expected), fetcher.calls)
	}
	for i, id := range expected {
		if fetcher.calls[i] != id {
			t.Errorf("Expected fetch %d to be %s, got %s", i, id, fetcher.calls[i])
		}
	}
	if fetcher.maxActive != 1 {
		t.Errorf("Expected one fetch at a time, observed %d", fetcher.maxActive)
	}
	if queue.Running() {
		t.Error("Expected queue to be idle after Run")
	}
}

func TestItemQueue_PacesBetweenFetches(t *testing.T) {
	fetcher := &fakeFetcher{}
	queue := NewItemQueue(fetcher, 30*time.Millisecond, nil)

	queue.Enqueue("a")
	queue.Enqueue("b")
	queue.Enqueue("c")

	start := time.Now()
	queue.Run(context.Background())
	elapsed := time.Since(start)

	if elapsed < 60*time.Millisecond {
		t.Errorf("Expected at least two pacing delays, run took %s", elapsed)
	}
	for i := 1; i < len(fetcher.times); i++ {
		if gap := fetcher.times[i].Sub(fetcher.times[i-1]); gap < 30*time.Millisecond {
			t.Errorf("Expected a pacing gap before fetch %d, got %s", i, gap)
		}
	}
}

func TestItemQueue_StartIsIdempotentWhileRunning(t *testing.T) {
	fetcher := &fakeFetcher{gate: make(chan struct{})}
	queue := NewItemQueue(fetcher, 0, nil)
	queue.Enqueue("a")
	queue.Enqueue("b")

	if !queue.Start(context.Background()) {
		t.Fatal("Expected first Start to launch processing")
	}
	if queue.Start(context.Background()) {
		t.Error("Expected second Start to be a no-op")
	}
	if queue.Run(context.Background()) {
		t.Error("Expected Run to be a no-op while running")
	}

	close(fetcher.gate)
	queue.Wait()

	if len(fetcher.calls) != 2 {
		t.Errorf("Expected 2 fetches, got %v", fetcher.calls)
	}
	if fetcher.maxActive != 1 {
		t.Errorf("Expected one fetch at a time, observed %d", fetcher.maxActive)
	}
}

func TestItemQueue_FailuresAreSkipped(t *testing.T) {
	fetcher := &fakeFetcher{fail: map[string]bool{"bad": true}}
	queue := NewItemQueue(fetcher, 0, nil)

	queue.Enqueue("bad")
	queue.Enqueue("good")
	queue.Run(context.Background())

	if len(fetcher.calls) != 2 || fetcher.calls[1] != "good" {
		t.Errorf("Expected processing to continue after failure, got %v", fetcher.calls)
	}
	stats := queue.Stats()
	if stats.Failed != 1 || stats.Done != 1 {
		t.Errorf("Expected 1 failed and 1 done, got %+v", stats)
	}
	if queue.Enqueue("bad") {
		t.Error("Expected failed id not to be retried")
	}
}

func TestItemQueue_CanRestartAfterDraining(t *testing.T) {
	fetcher := &fakeFetcher{}
	queue := NewItemQueue(fetcher, 0, nil)

	queue.Enqueue("a")
	queue.Start(context.Background())
	queue.Wait()

	queue.Enqueue("b")
	if !queue.Start(context.Background()) {
		t.Fatal("Expected Start to succeed after the previous run drained")
	}
	queue.Wait()

	processed := queue.Processed()
	if len(processed) != 2 || processed[0] != "a" || processed[1] != "b" {
		t.Errorf("Expected [a b], got %v", processed)
	}
}

func TestItemQueue_StopsOnCancel(t *testing.T) {
	fetcher := &fakeFetcher{}
	queue := NewItemQueue(fetcher, time.Hour, nil)
	queue.Enqueue("a")
	queue.Enqueue("b")

	ctx, cancel := context.WithCancel(context.Background())
	queue.Start(ctx)

	for {
		fetcher.mu.Lock()
		n := len(fetcher.calls)
		fetcher.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	queue.Wait()

	if len(fetcher.calls) != 1 {
		t.Errorf("Expected cancellation during pacing to stop the queue, got %v", fetcher.calls)
	}
	if queue.Running() {
		t.Error("Expected queue to be idle after cancellation")
	}
}
