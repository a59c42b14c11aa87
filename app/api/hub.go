package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lysyi3m/newsdeck/app/debounce"
	"github.com/lysyi3m/newsdeck/app/filter"
	"github.com/lysyi3m/newsdeck/app/prefetch"
	"github.com/lysyi3m/newsdeck/app/session"
	"github.com/lysyi3m/newsdeck/app/visibility"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one websocket connection. Until it reports a viewport its images
// are warmed as soon as a view arrives.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	debouncer *debounce.Debouncer

	sendMu sync.Mutex
	closed bool

	mu       sync.Mutex
	viewport *visibility.ListViewport
	trigger  *visibility.Trigger
	last     session.View
}

// Hub pushes every published view to the connected clients and turns their
// filter and viewport messages into session and prefetch work.
type Hub struct {
	session *session.Session
	images  *prefetch.ImagePrefetcher
	wait    time.Duration
	margin  int
	logger  *slog.Logger

	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan session.View

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHub(sess *session.Session, images *prefetch.ImagePrefetcher, debounceWait time.Duration, margin int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		session:    sess,
		images:     images,
		wait:       debounceWait,
		margin:     margin,
		logger:     logger,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan session.View),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start runs the hub loop in the background until Close.
func (h *Hub) Start() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.run()
	}()
}

// Close disconnects every client and waits for connection and warming
// goroutines to exit.
func (h *Hub) Close() {
	h.cancel()
	h.wg.Wait()
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) run() {
	unsubscribe := h.session.Subscribe(func(view session.View) {
		select {
		case h.broadcast <- view:
		case <-h.ctx.Done():
		}
	})
	defer unsubscribe()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("WebSocket client registered", "remote", client.conn.RemoteAddr().String(), "clients", h.Count())
			h.deliver(client, h.session.View())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.shutdown()
			}
			h.mu.Unlock()
			h.logger.Debug("WebSocket client unregistered", "clients", h.Count())

		case view := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()
			for _, client := range clients {
				h.deliver(client, view)
			}

		case <-h.ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.shutdown()
				client.conn.Close()
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) deliver(client *Client, view session.View) {
	payload, err := json.Marshal(serverMessage{Type: "view", View: &view})
	if err != nil {
		h.logger.Error("Failed to encode view", "error", err)
		return
	}
	client.push(payload)
	client.observe(view)
}

// warm queues image urls and drains the prefetcher in the background.
func (h *Hub) warm(urls []string) {
	queued := false
	for _, url := range urls {
		if h.images.Enqueue(url) {
			queued = true
		}
	}
	if !queued || h.ctx.Err() != nil {
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.images.ProcessQueue(h.ctx); err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Warn("Image prefetch stopped", "error", err)
		}
	}()
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		debouncer: debounce.New(h.wait),
		trigger:   visibility.NewTrigger(nil, h.margin),
	}

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		conn.Close()
		return
	}

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (c *Client) push(payload []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.hub.logger.Warn("WebSocket client is not keeping up, dropping message")
	}
}

// shutdown closes the send channel once; pending debounced filters are dropped.
func (c *Client) shutdown() {
	c.sendMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.sendMu.Unlock()
	c.debouncer.Cancel()
}

func (c *Client) observe(view session.View) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = view
	if c.viewport != nil {
		c.viewport.Reset(viewIDs(view))
	}
	c.watch(view)
}

// watch registers image warming for every item in view. Caller holds c.mu.
func (c *Client) watch(view session.View) {
	for _, item := range view.Items {
		urls := make([]string, 0, len(item.Images))
		for _, image := range item.Images {
			if image.URL != "" {
				urls = append(urls, image.URL)
			}
		}
		if len(urls) == 0 {
			continue
		}
		c.trigger.Observe(item.ID, func() {
			c.hub.warm(urls)
		})
	}
}

// scroll moves the client's viewport, creating it on first use, and returns
// how many deferred warmings fired.
func (c *Client) scroll(offset, height int) int {
	c.mu.Lock()
	if c.viewport == nil {
		c.viewport = visibility.NewListViewport()
		c.trigger = visibility.NewTrigger(c.viewport, c.hub.margin)
		c.viewport.Place(viewIDs(c.last))
	}
	viewport := c.viewport
	c.mu.Unlock()

	return viewport.Scroll(offset, height)
}

func (c *Client) handle(data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(serverMessage{Type: "error", Error: "invalid message"})
		return
	}

	switch msg.Type {
	case "filter":
		var criteria filter.Criteria
		if len(msg.Criteria) > 0 {
			if err := json.Unmarshal(msg.Criteria, &criteria); err != nil {
				c.reply(serverMessage{Type: "error", Error: "invalid criteria"})
				return
			}
		}
		sess := c.hub.session
		c.debouncer.Trigger(func() {
			sess.ApplyFilter("filter", criteria)
		})

	case "viewport":
		if msg.Height < 0 || msg.Offset < 0 {
			c.reply(serverMessage{Type: "error", Error: "invalid viewport"})
			return
		}
		fired := c.scroll(msg.Offset, msg.Height)
		c.reply(serverMessage{Type: "viewport", Fired: fired})

	default:
		c.reply(serverMessage{Type: "error", Error: "unknown message type"})
	}
}

func (c *Client) reply(msg serverMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.push(payload)
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("WebSocket read failed", "error", err)
			}
			return
		}
		c.handle(data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func viewIDs(view session.View) []string {
	ids := make([]string, len(view.Items))
	for i, item := range view.Items {
		ids[i] = item.ID
	}
	return ids
}
