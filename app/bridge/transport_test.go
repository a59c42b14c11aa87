package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func newJSONPServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		callback := query.Get("callback")
		w.Header().Set("Content-Type", "application/javascript")

		switch query.Get("action") {
		case "getCategories":
			fmt.Fprintf(w, `/**/ %s({"status":"ok","data":[{"name":"Tech"}]});`, callback)
		case "getNewsletter":
			fmt.Fprintf(w, `%s({"status":"error","message":"Newsletter %s not found"})`, callback, query.Get("id"))
		case "wrongCallback":
			fmt.Fprint(w, `someoneElse({"status":"ok","data":1})`)
		case "garbage":
			fmt.Fprint(w, `<html>maintenance</html>`)
		default:
			http.Error(w, "unknown action", http.StatusInternalServerError)
		}
	}))
}

func TestHTTPTransport_ResolvesScript(t *testing.T) {
	server := newJSONPServer(t)
	defer server.Close()

	b, err := New(server.URL+"/exec", NewHTTPTransport(server.Client(), "newsdeck-test"))
	if err != nil {
		t.Fatalf("Failed to create bridge: %v", err)
	}

	data, err := b.Call(context.Background(), "getCategories", nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if string(data) != `[{"name":"Tech"}]` {
		t.Errorf("Unexpected data: %s", string(data))
	}
	if b.Pending() != 0 {
		t.Errorf("Expected no pending requests, got %d", b.Pending())
	}
}

func TestHTTPTransport_RemoteError(t *testing.T) {
	server := newJSONPServer(t)
	defer server.Close()

	b, _ := New(server.URL, NewHTTPTransport(server.Client(), ""))

	_, err := b.Call(context.Background(), "getNewsletter", Params{"id": "7"})

	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("Expected RemoteError, got: %v", err)
	}
	if remoteErr.Message != "Newsletter 7 not found" {
		t.Errorf("Unexpected remote message: %s", remoteErr.Message)
	}
}

func TestHTTPTransport_Failures(t *testing.T) {
	server := newJSONPServer(t)
	defer server.Close()

	b, _ := New(server.URL, NewHTTPTransport(server.Client(), ""))

	tests := []struct {
		action   string
		sentinel error
	}{
		{"unknown", nil},
		{"wrongCallback", ErrNoCallback},
		{"garbage", ErrNoCallback},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			_, err := b.Call(context.Background(), tt.action, nil)
			if !IsTransport(err) {
				t.Fatalf("Expected TransportError, got: %v", err)
			}
			if tt.sentinel != nil && !errors.Is(err, tt.sentinel) {
				t.Errorf("Expected %v, got: %v", tt.sentinel, err)
			}
			if b.Pending() != 0 {
				t.Errorf("Expected no pending requests, got %d", b.Pending())
			}
		})
	}
}

type settlement struct {
	callback string
	err      error
}

type recordingDispatcher struct {
	settled chan settlement
}

func (d *recordingDispatcher) Dispatch(callback string, envelope Envelope) {
	d.settled <- settlement{callback: callback}
}

func (d *recordingDispatcher) Fail(callback string, err error) {
	d.settled <- settlement{callback: callback, err: err}
}

func TestHTTPTransport_ScriptCannotSettleAnotherRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `cb_other({"status":"ok","data":"stolen"})`)
	}))
	defer server.Close()

	target, _ := url.Parse(server.URL + "?callback=cb_mine")
	dispatcher := &recordingDispatcher{settled: make(chan settlement, 4)}

	artifact, err := NewHTTPTransport(server.Client(), "").Load(context.Background(), target, "cb_mine", dispatcher)
	if err != nil {
		t.Fatalf("Failed to load script: %v", err)
	}

	select {
	case got := <-dispatcher.settled:
		if got.callback != "cb_mine" || !errors.Is(got.err, ErrNoCallback) {
			t.Errorf("Expected cb_mine to fail with %v, got %+v", ErrNoCallback, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the loading request to be settled")
	}
	artifact.Release()

	select {
	case got := <-dispatcher.settled:
		t.Errorf("Expected nothing else to be settled, got %+v", got)
	default:
	}
}

func TestHTTPTransport_SendsUserAgent(t *testing.T) {
	agents := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.Header.Get("User-Agent")
		fmt.Fprintf(w, `%s({"status":"ok"})`, r.URL.Query().Get("callback"))
	}))
	defer server.Close()

	b, _ := New(server.URL, NewHTTPTransport(server.Client(), "newsdeck/1.0"))
	if _, err := b.Call(context.Background(), "getCategories", nil); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if agent := <-agents; agent != "newsdeck/1.0" {
		t.Errorf("Expected User-Agent 'newsdeck/1.0', got '%s'", agent)
	}
}

func TestParseScript(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		callback string
		status   string
		wantErr  bool
	}{
		{"plain", `cb_1({"status":"ok","data":[]})`, "cb_1", StatusOK, false},
		{"with semicolon and whitespace", "\n cb_2 ( {\"status\":\"error\",\"message\":\"x\"} ) ;\n", "cb_2", StatusError, false},
		{"comment prefix", `/**/cb_3({"status":"ok"})`, "cb_3", StatusOK, false},
		{"dotted name", `window.cb_4({"status":"ok"})`, "window.cb_4", StatusOK, false},
		{"nested parens in payload", `cb_5({"status":"ok","data":"a (b) c"})`, "cb_5", StatusOK, false},
		{"no call", `{"status":"ok"}`, "", "", true},
		{"invalid json", `cb_6({status:ok})`, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			callback, envelope, err := ParseScript([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.body)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if callback != tt.callback {
				t.Errorf("Expected callback '%s', got '%s'", tt.callback, callback)
			}
			if envelope.Status != tt.status {
				t.Errorf("Expected status '%s', got '%s'", tt.status, envelope.Status)
			}
		})
	}
}
