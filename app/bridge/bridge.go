package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	StatusOK    = "ok"
	StatusError = "error"

	DefaultCallbackPrefix = "newsdeck_cb_"
	DefaultTimeout        = 30 * time.Second
)

type Params map[string]string

// Envelope is the body every remote response carries.
type Envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Dispatcher receives the outcome of a loaded request, keyed by callback name.
type Dispatcher interface {
	Dispatch(callback string, envelope Envelope)
	Fail(callback string, err error)
}

// Artifact is whatever per-call state a transport creates. Release tears it down.
type Artifact interface {
	Release()
}

// Transport loads a target out of band and reports exactly one outcome to the dispatcher.
type Transport interface {
	Load(ctx context.Context, target *url.URL, callback string, dispatcher Dispatcher) (Artifact, error)
}

type Option func(*Bridge)

// WithTimeout bounds every call. Zero disables the deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(b *Bridge) {
		if timeout >= 0 {
			b.timeout = timeout
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithCallbackPrefix(prefix string) Option {
	return func(b *Bridge) {
		if prefix != "" {
			b.callbackPrefix = prefix
		}
	}
}

// WithIDGenerator replaces the correlation id source.
func WithIDGenerator(newID func() string) Option {
	return func(b *Bridge) {
		if newID != nil {
			b.newID = newID
		}
	}
}

type result struct {
	data json.RawMessage
	err  error
}

type pendingRequest struct {
	id        string
	action    string
	createdAt time.Time
	done      chan result
}

// Bridge correlates out-of-band requests with their responses through a single
// dispatch table keyed by correlation id.
type Bridge struct {
	endpoint       *url.URL
	transport      Transport
	timeout        time.Duration
	callbackPrefix string
	newID          func() string
	logger         *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingRequest
}

var _ Dispatcher = (*Bridge)(nil)

func New(endpoint string, transport Transport, opts ...Option) (*Bridge, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid API endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API endpoint %q: scheme and host are required", endpoint)
	}
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	b := &Bridge{
		endpoint:       u,
		transport:      transport,
		timeout:        DefaultTimeout,
		callbackPrefix: DefaultCallbackPrefix,
		newID:          func() string { return ulid.Make().String() },
		logger:         slog.Default(),
		pending:        make(map[string]*pendingRequest),
	}
	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Call issues one request and waits for its single outcome. The dispatch entry
// and the transport artifact are released on every return path.
func (b *Bridge) Call(ctx context.Context, action string, params Params) (json.RawMessage, error) {
	req := b.register(action)
	defer b.remove(req.id)

	callback := b.callbackPrefix + req.id
	artifact, err := b.transport.Load(ctx, b.target(action, params, callback), callback, b)
	if err != nil {
		return nil, &TransportError{Action: action, Err: err}
	}
	defer artifact.Release()

	var timeout <-chan time.Time
	if b.timeout > 0 {
		timer := time.NewTimer(b.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-req.done:
		b.logger.Debug("Request settled",
			"action", action,
			"id", req.id,
			"duration", time.Since(req.createdAt),
			"error", res.err)
		return res.data, res.err
	case <-ctx.Done():
		return nil, &TransportError{Action: action, Err: ctx.Err()}
	case <-timeout:
		b.logger.Warn("Request timed out", "action", action, "id", req.id, "timeout", b.timeout)
		return nil, &TransportError{Action: action, Err: ErrTimeout}
	}
}

func (b *Bridge) Dispatch(callback string, envelope Envelope) {
	req, ok := b.take(callback)
	if !ok {
		b.logger.Debug("Dropping response for unknown callback", "callback", callback)
		return
	}

	if envelope.Status == StatusError {
		req.done <- result{err: &RemoteError{Action: req.action, Message: envelope.Message}}
		return
	}
	req.done <- result{data: envelope.Data}
}

func (b *Bridge) Fail(callback string, err error) {
	req, ok := b.take(callback)
	if !ok {
		b.logger.Debug("Dropping failure for unknown callback", "callback", callback, "error", err)
		return
	}
	req.done <- result{err: &TransportError{Action: req.action, Err: err}}
}

// Pending returns the number of requests still waiting for an outcome.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Bridge) register(action string) *pendingRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.newID()
	for {
		if _, taken := b.pending[id]; !taken {
			break
		}
		id = b.newID()
	}

	req := &pendingRequest{
		id:        id,
		action:    action,
		createdAt: time.Now(),
		done:      make(chan result, 1),
	}
	b.pending[id] = req
	return req
}

// take removes and returns the pending request so only the first outcome is delivered.
func (b *Bridge) take(callback string) (*pendingRequest, bool) {
	id, ok := strings.CutPrefix(callback, b.callbackPrefix)
	if !ok {
		return nil, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	req, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	return req, ok
}

func (b *Bridge) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, id)
}

func (b *Bridge) target(action string, params Params, callback string) *url.URL {
	target := *b.endpoint
	query := target.Query()
	for key, value := range params {
		query.Set(key, value)
	}
	query.Set("action", action)
	query.Set("callback", callback)
	target.RawQuery = query.Encode()
	return &target
}
