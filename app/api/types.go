package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/lysyi3m/newsdeck/app/cache"
	"github.com/lysyi3m/newsdeck/app/content"
	"github.com/lysyi3m/newsdeck/app/feed"
	"github.com/lysyi3m/newsdeck/app/loader"
	"github.com/lysyi3m/newsdeck/app/prefetch"
	"github.com/lysyi3m/newsdeck/app/remote"
	"github.com/lysyi3m/newsdeck/app/session"
)

type RemoteInterface interface {
	GetNewsletter(ctx context.Context, id string) (*content.Item, error)
	IncrementView(ctx context.Context, id string) error
	IncrementShare(ctx context.Context, id string) error
	CacheStats() cache.Stats
}

var _ RemoteInterface = (*remote.Client)(nil)

type LoaderInterface interface {
	Refresh(ctx context.Context) error
	Stages() []loader.StageInfo
}

var _ LoaderInterface = (*loader.Orchestrator)(nil)

type GeneratorInterface interface {
	Run(channel feed.Channel, items []content.Item) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type PendingCounter interface {
	Pending() int
}

// clientMessage is what a websocket client sends: "filter" carries criteria,
// "viewport" carries the visible row range.
type clientMessage struct {
	Type     string          `json:"type"`
	Criteria json.RawMessage `json:"criteria,omitempty"`
	Offset   int             `json:"offset"`
	Height   int             `json:"height"`
}

type serverMessage struct {
	Type  string        `json:"type"`
	View  *session.View `json:"view,omitempty"`
	Fired int           `json:"fired,omitempty"`
	Error string        `json:"error,omitempty"`
}

// Handler serves the HTTP surface over one shared browsing session.
type Handler struct {
	remote       RemoteInterface
	session      *session.Session
	loader       LoaderInterface
	images       *prefetch.ImagePrefetcher
	items        *prefetch.ItemQueue
	requests     PendingCounter
	generator    GeneratorInterface
	channel      feed.Channel
	hub          *Hub
	relatedLimit int
	counterWait  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Deps wires a Handler. Requests may be nil.
type Deps struct {
	Remote       RemoteInterface
	Session      *session.Session
	Loader       LoaderInterface
	Images       *prefetch.ImagePrefetcher
	Items        *prefetch.ItemQueue
	Requests     PendingCounter
	Generator    GeneratorInterface
	Channel      feed.Channel
	Hub          *Hub
	RelatedLimit int
	CounterWait  time.Duration
}
