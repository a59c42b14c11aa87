package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeTransport answers loads through respond, tracking unreleased artifacts.
type fakeTransport struct {
	mu      sync.Mutex
	targets []*url.URL
	live    int
	loadErr error
	respond func(target *url.URL, callback string, d Dispatcher)
	wg      sync.WaitGroup
}

type fakeArtifact struct {
	transport *fakeTransport
	once      sync.Once
}

func (a *fakeArtifact) Release() {
	a.once.Do(func() {
		a.transport.mu.Lock()
		a.transport.live--
		a.transport.mu.Unlock()
	})
}

func (f *fakeTransport) Load(ctx context.Context, target *url.URL, callback string, d Dispatcher) (Artifact, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}

	f.mu.Lock()
	f.targets = append(f.targets, target)
	f.live++
	f.mu.Unlock()

	if f.respond != nil {
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.respond(target, callback, d)
		}()
	}
	return &fakeArtifact{transport: f}, nil
}

func (f *fakeTransport) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

func newTestBridge(t *testing.T, transport Transport, opts ...Option) *Bridge {
	t.Helper()
	b, err := New("https://api.example.com/exec", transport, opts...)
	if err != nil {
		t.Fatalf("Failed to create bridge: %v", err)
	}
	return b
}

func assertClean(t *testing.T, b *Bridge, f *fakeTransport) {
	t.Helper()
	f.wg.Wait()
	if b.Pending() != 0 {
		t.Errorf("Expected no pending requests, got %d", b.Pending())
	}
	if f.Live() != 0 {
		t.Errorf("Expected no live transport artifacts, got %d", f.Live())
	}
}

func TestBridge_ResolvesOKEnvelope(t *testing.T) {
	transport := &fakeTransport{
		respond: func(target *url.URL, callback string, d Dispatcher) {
			d.Dispatch(callback, Envelope{Status: StatusOK, Data: json.RawMessage(`{"value":"Y"}`)})
		},
	}
	b := newTestBridge(t, transport)

	data, err := b.Call(context.Background(), "getNewsletters", nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if string(data) != `{"value":"Y"}` {
		t.Errorf("Expected data to be passed through, got %s", string(data))
	}

	assertClean(t, b, transport)
}

func TestBridge_RejectsErrorEnvelope(t *testing.T) {
	transport := &fakeTransport{
		respond: func(target *url.URL, callback string, d Dispatcher) {
			d.Dispatch(callback, Envelope{Status: StatusError, Message: "X"})
		},
	}
	b := newTestBridge(t, transport)

	_, err := b.Call(context.Background(), "getNewsletter", Params{"id": "1"})

	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("Expected RemoteError, got: %v", err)
	}
	if remoteErr.Message != "X" {
		t.Errorf("Expected message 'X', got '%s'", remoteErr.Message)
	}
	if remoteErr.Action != "getNewsletter" {
		t.Errorf("Expected action 'getNewsletter', got '%s'", remoteErr.Action)
	}
	if IsTransport(err) {
		t.Error("Remote error must not be classified as transport error")
	}

	assertClean(t, b, transport)
}

func TestBridge_RejectsTransportFailure(t *testing.T) {
	transport := &fakeTransport{
		respond: func(target *url.URL, callback string, d Dispatcher) {
			d.Fail(callback, errors.New("network error"))
		},
	}
	b := newTestBridge(t, transport)

	_, err := b.Call(context.Background(), "getCategories", nil)
	if !IsTransport(err) {
		t.Fatalf("Expected TransportError, got: %v", err)
	}
	if IsRemote(err) {
		t.Error("Transport failure must not be classified as remote error")
	}

	assertClean(t, b, transport)
}

func TestBridge_LoadErrorCleansUp(t *testing.T) {
	transport := &fakeTransport{loadErr: errors.New("cannot inject")}
	b := newTestBridge(t, transport)

	_, err := b.Call(context.Background(), "getCategories", nil)
	if !IsTransport(err) {
		t.Fatalf("Expected TransportError, got: %v", err)
	}

	assertClean(t, b, transport)
}

func TestBridge_TimeoutRejects(t *testing.T) {
	transport := &fakeTransport{}
	b := newTestBridge(t, transport, WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := b.Call(context.Background(), "getNewsletters", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Expected call to wait for the timeout")
	}

	assertClean(t, b, transport)
}

func TestBridge_ContextCancellationRejects(t *testing.T) {
	transport := &fakeTransport{}
	b := newTestBridge(t, transport, WithTimeout(0))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Call(ctx, "getNewsletters", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected context deadline error, got: %v", err)
	}
	if !IsTransport(err) {
		t.Error("Expected cancellation to surface as TransportError")
	}

	assertClean(t, b, transport)
}

func TestBridge_TargetCarriesActionParamsAndCallback(t *testing.T) {
	transport := &fakeTransport{
		respond: func(target *url.URL, callback string, d Dispatcher) {
			d.Dispatch(callback, Envelope{Status: StatusOK})
		},
	}
	b := newTestBridge(t, transport, WithIDGenerator(func() string { return "ID1" }))

	if _, err := b.Call(context.Background(), "getNewsletter", Params{"id": "42", "action": "spoofed"}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	transport.mu.Lock()
	target := transport.targets[0]
	transport.mu.Unlock()

	query := target.Query()
	if query.Get("action") != "getNewsletter" {
		t.Errorf("Expected action 'getNewsletter', got '%s'", query.Get("action"))
	}
	if query.Get("id") != "42" {
		t.Errorf("Expected id '42', got '%s'", query.Get("id"))
	}
	if query.Get("callback") != DefaultCallbackPrefix+"ID1" {
		t.Errorf("Expected callback '%sID1', got '%s'", DefaultCallbackPrefix, query.Get("callback"))
	}
	if target.Host != "api.example.com" || target.Path != "/exec" {
		t.Errorf("Expected endpoint to be preserved, got %s", target.String())
	}
}

func TestBridge_ConcurrentCallsAreCorrelated(t *testing.T) {
	transport := &fakeTransport{
		respond: func(target *url.URL, callback string, d Dispatcher) {
			n := target.Query().Get("n")
			time.Sleep(time.Duration(len(n)) * time.Millisecond)
			d.Dispatch(callback, Envelope{Status: StatusOK, Data: json.RawMessage(`"` + n + `"`)})
		},
	}
	b := newTestBridge(t, transport)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n := fmt.Sprint(i)
			data, err := b.Call(context.Background(), "getNewsletter", Params{"n": n})
			if err != nil {
				errs <- err
				return
			}
			if string(data) != `"`+n+`"` {
				errs <- fmt.Errorf("request %s received %s", n, string(data))
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assertClean(t, b, transport)
}

func TestBridge_IDCollisionIsAvoided(t *testing.T) {
	ids := []string{"A", "A", "B"}
	var mu sync.Mutex
	next := func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[0]
		if len(ids) > 1 {
			ids = ids[1:]
		}
		return id
	}

	release := make(chan struct{})
	transport := &fakeTransport{
		respond: func(target *url.URL, callback string, d Dispatcher) {
			<-release
			d.Dispatch(callback, Envelope{Status: StatusOK, Data: json.RawMessage(`"` + callback + `"`)})
		},
	}
	b := newTestBridge(t, transport, WithIDGenerator(next))

	results := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			data, _ := b.Call(context.Background(), "getNewsletters", nil)
			results <- string(data)
		}()
		for b.Pending() != i+1 {
			time.Sleep(time.Millisecond)
		}
	}
	close(release)

	seen := map[string]bool{<-results: true, <-results: true}
	if !seen[`"`+DefaultCallbackPrefix+`A"`] || !seen[`"`+DefaultCallbackPrefix+`B"`] {
		t.Errorf("Expected distinct correlation ids A and B, got %v", seen)
	}
	assertClean(t, b, transport)
}

func TestBridge_OnlyFirstOutcomeIsDelivered(t *testing.T) {
	transport := &fakeTransport{
		respond: func(target *url.URL, callback string, d Dispatcher) {
			d.Dispatch(callback, Envelope{Status: StatusOK, Data: json.RawMessage(`1`)})
			d.Dispatch(callback, Envelope{Status: StatusError, Message: "late"})
			d.Fail(callback, errors.New("later"))
		},
	}
	b := newTestBridge(t, transport)

	data, err := b.Call(context.Background(), "getNewsletters", nil)
	if err != nil {
		t.Fatalf("Expected first outcome to win, got error: %v", err)
	}
	if string(data) != "1" {
		t.Errorf("Expected data '1', got %s", string(data))
	}
	assertClean(t, b, transport)
}

func TestBridge_UnknownCallbackIsDropped(t *testing.T) {
	b := newTestBridge(t, &fakeTransport{})

	b.Dispatch("someone_else", Envelope{Status: StatusOK})
	b.Fail(DefaultCallbackPrefix+"missing", errors.New("boom"))

	if b.Pending() != 0 {
		t.Errorf("Expected no pending requests, got %d", b.Pending())
	}
}

func TestNew_InvalidEndpoint(t *testing.T) {
	if _, err := New("not a url", &fakeTransport{}); err == nil {
		t.Error("Expected error for endpoint without scheme and host")
	}
	if _, err := New("https://api.example.com", nil); err == nil {
		t.Error("Expected error for missing transport")
	}
}
