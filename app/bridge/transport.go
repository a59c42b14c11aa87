package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
)

const maxScriptSize = 16 << 20

var scriptPattern = regexp.MustCompile(`(?s)^\s*(?:/\*\*/)?\s*([A-Za-z_$][\w$.]*)\s*\((.*)\)\s*;?\s*$`)

// HTTPTransport fetches JSONP scripts and hands the invoked callback to the dispatcher.
type HTTPTransport struct {
	client    *http.Client
	userAgent string
}

var _ Transport = (*HTTPTransport)(nil)

func NewHTTPTransport(client *http.Client, userAgent string) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{
		client:    client,
		userAgent: userAgent,
	}
}

type httpArtifact struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Release aborts the script load if still running and waits for it to finish.
func (a *httpArtifact) Release() {
	a.cancel()
	<-a.done
}

func (t *HTTPTransport) Load(ctx context.Context, target *url.URL, callback string, dispatcher Dispatcher) (Artifact, error) {
	loadCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(loadCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	req.Header.Set("Accept", "application/javascript, text/javascript, */*")

	artifact := &httpArtifact{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(artifact.done)
		t.run(req, callback, dispatcher)
	}()

	return artifact, nil
}

func (t *HTTPTransport) run(req *http.Request, callback string, dispatcher Dispatcher) {
	resp, err := t.client.Do(req)
	if err != nil {
		dispatcher.Fail(callback, fmt.Errorf("failed to load script: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		dispatcher.Fail(callback, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status))
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptSize))
	if err != nil {
		dispatcher.Fail(callback, fmt.Errorf("failed to read script: %w", err))
		return
	}

	invoked, envelope, err := ParseScript(body)
	if err != nil {
		dispatcher.Fail(callback, err)
		return
	}

	// A script may only settle the request that loaded it.
	if invoked != callback {
		slog.Warn("Script invoked an unexpected callback", "expected", callback, "invoked", invoked)
		dispatcher.Fail(callback, ErrNoCallback)
		return
	}
	dispatcher.Dispatch(callback, envelope)
}

// ParseScript extracts the callback name and envelope from a JSONP body such as
// `cb({"status":"ok","data":[]})`.
func ParseScript(body []byte) (string, Envelope, error) {
	match := scriptPattern.FindSubmatch(body)
	if match == nil {
		return "", Envelope{}, ErrNoCallback
	}

	var envelope Envelope
	if err := json.Unmarshal(match[2], &envelope); err != nil {
		return "", Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}

	return string(match[1]), envelope, nil
}
