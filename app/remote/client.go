package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/lysyi3m/newsdeck/app/bridge"
	"github.com/lysyi3m/newsdeck/app/cache"
	"github.com/lysyi3m/newsdeck/app/content"
	"golang.org/x/sync/singleflight"
)

const (
	ActionGetCategories  = "getCategories"
	ActionGetNewsletters = "getNewsletters"
	ActionGetNewsletter  = "getNewsletter"
	ActionIncrementView  = "incrementView"
	ActionIncrementShare = "incrementShare"
)

// Caller issues a single remote action.
type Caller interface {
	Call(ctx context.Context, action string, params bridge.Params) (json.RawMessage, error)
}

// Client is the typed view of the remote API. Read actions go through the
// response cache; counters always reach the remote.
type Client struct {
	caller    Caller
	responses *cache.Cache[json.RawMessage]
	group     singleflight.Group
	logger    *slog.Logger
}

func NewClient(caller Caller, responses *cache.Cache[json.RawMessage], logger *slog.Logger) *Client {
	if responses == nil {
		responses = cache.New[json.RawMessage]()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		caller:    caller,
		responses: responses,
		logger:    logger,
	}
}

// Key builds the cache key for an action and its parameters.
func Key(action string, params bridge.Params) string {
	if len(params) == 0 {
		return action
	}
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return action + "?" + values.Encode()
}

func (c *Client) GetCategories(ctx context.Context) ([]content.Category, error) {
	data, err := c.cached(ctx, ActionGetCategories, nil)
	if err != nil {
		return nil, err
	}
	categories, err := content.DecodeCategories(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}
	return categories, nil
}

func (c *Client) GetNewsletters(ctx context.Context) ([]content.Item, error) {
	data, err := c.cached(ctx, ActionGetNewsletters, nil)
	if err != nil {
		return nil, err
	}
	items, err := content.DecodeItems(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode newsletters: %w", err)
	}
	return items, nil
}

// GetNewsletter returns nil without error when the remote has no such item.
func (c *Client) GetNewsletter(ctx context.Context, id string) (*content.Item, error) {
	data, err := c.cached(ctx, ActionGetNewsletter, bridge.Params{"id": id})
	if err != nil {
		return nil, err
	}
	item, err := content.DecodeItem(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode newsletter %s: %w", id, err)
	}
	return item, nil
}

func (c *Client) IncrementView(ctx context.Context, id string) error {
	_, err := c.caller.Call(ctx, ActionIncrementView, bridge.Params{"id": id})
	return err
}

func (c *Client) IncrementShare(ctx context.Context, id string) error {
	_, err := c.caller.Call(ctx, ActionIncrementShare, bridge.Params{"id": id})
	return err
}

// Forget drops one cached response.
func (c *Client) Forget(action string, params bridge.Params) {
	c.responses.Delete(Key(action, params))
}

// Invalidate drops every cached response.
func (c *Client) Invalidate() {
	c.responses.Clear()
}

func (c *Client) CacheStats() cache.Stats {
	return c.responses.Stats()
}

func (c *Client) cached(ctx context.Context, action string, params bridge.Params) (json.RawMessage, error) {
	key := Key(action, params)
	if data, ok := c.responses.Get(key); ok {
		c.logger.Debug("Cache hit", "key", key)
		return data, nil
	}

	result, err, shared := c.group.Do(key, func() (any, error) {
		data, err := c.caller.Call(ctx, action, params)
		if err != nil {
			return nil, err
		}
		c.responses.Set(key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("Shared in-flight request", "key", key)
	}
	return result.(json.RawMessage), nil
}
