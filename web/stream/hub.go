// Package stream fans push events out to WebSocket clients.
//
// Protocol:
// Client sends: {"action": "subscribe", "topic": "price_update"}
// Client sends: {"action": "unsubscribe", "topic": "*"}
//
// Server sends:
// - {"type": "<topic>", "data": {...}, "timestamp": "..."}
// - {"type": "subscribed", "data": {"topic": "..."}}
// - {"type": "unsubscribed", "data": {"topic": "..."}}
// - {"type": "error", "data": {"message": "..."}}
//
// New clients are subscribed to every topic. Unsubscribing a single topic
// while on "*" mutes just that topic.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/puzpuzpuz/xsync/v4"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AllTopics subscribes a client to every topic
const AllTopics = "*"

// Default configuration values
const (
	DefaultPingInterval = 30 * time.Second
	DefaultReadTimeout  = 60 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultSendBuffer   = 256
)

// ErrClosed is returned when publishing on a closed hub
var ErrClosed = errors.New("stream hub closed")

// Message is the frame sent to clients
type Message struct {
	Type      string     `json:"type"`
	Data      any        `json:"data"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ClientMessage is a subscription request sent by a client
type ClientMessage struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// Option configures the Hub
type Option func(*Hub)

// WithPingInterval sets the keep-alive ping period
func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) { h.pingInterval = d }
}

// WithSendBuffer sets how many frames may queue per client before it is dropped
func WithSendBuffer(n int) Option {
	return func(h *Hub) { h.sendBuffer = n }
}

// WithOnClients registers a hook receiving the client count after every change
func WithOnClients(fn func(int)) Option {
	return func(h *Hub) { h.onClients = fn }
}

// WithCheckOrigin sets the upgrade origin policy
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// Hub tracks connected clients and broadcasts frames to them
type Hub struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	sendBuffer   int
	onClients    func(int)

	clients  *xsync.Map[uint64, *client]
	nextID   atomic.Uint64
	count    atomic.Int64
	shutdown chan struct{}

	// mu orders wg.Add in ServeHTTP against Close
	mu     sync.Mutex
	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewHub creates a Hub accepting any origin
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		pingInterval: DefaultPingInterval,
		sendBuffer:   DefaultSendBuffer,
		onClients:    func(int) {},
		clients:      xsync.NewMap[uint64, *client](),
		shutdown:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Broadcast encodes data once and queues it for every client subscribed to topic
func (h *Hub) Broadcast(topic string, data any, at time.Time) error {
	frame, err := json.Marshal(Message{Type: topic, Data: data, Timestamp: &at})
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", topic, err)
	}
	return h.Publish(topic, frame)
}

// Publish queues a pre-encoded frame for every client subscribed to topic.
// Clients whose queue is full are disconnected.
func (h *Hub) Publish(topic string, frame []byte) error {
	if h.closed.Load() {
		return ErrClosed
	}
	h.clients.Range(func(_ uint64, c *client) bool {
		if c.subscribed(topic) {
			c.enqueue(frame)
		}
		return true
	})
	return nil
}

// Close disconnects every client and waits for their goroutines
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed.Load() {
		h.mu.Unlock()
		return
	}
	h.closed.Store(true)
	close(h.shutdown)
	h.mu.Unlock()

	h.wg.Wait()
}

// track registers a connection with the hub unless it is closing
func (h *Hub) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		return false
	}
	h.wg.Add(1)
	return true
}

// ServeHTTP upgrades the request and serves the client until it disconnects
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, ErrClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already answered
		return
	}

	if !h.track() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(DefaultWriteTimeout))
		_ = conn.Close()
		return
	}
	defer h.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		conn:   conn,
		send:   make(chan []byte, h.sendBuffer),
		all:    true,
		topics: map[string]bool{},
		muted:  map[string]bool{},
		cancel: cancel,
	}
	id := h.nextID.Add(1)
	h.clients.Store(id, c)
	h.onClients(int(h.count.Add(1)))
	defer func() {
		h.clients.Delete(id)
		h.onClients(int(h.count.Add(-1)))
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.writeMessages(ctx, c)
	}()
	go func() {
		defer wg.Done()
		select {
		case <-h.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	h.readClientMessages(ctx, c)

	cancel()
	wg.Wait()
	_ = conn.Close()
}

// writeMessages owns every write on the connection: frames, pings and the final close
func (h *Hub) writeMessages(ctx context.Context, c *client) {
	var ping <-chan time.Time
	if h.pingInterval > 0 {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(DefaultWriteTimeout))
			// unblock the reader
			_ = c.conn.SetReadDeadline(time.Now())
			return
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(DefaultWriteTimeout)); err != nil {
				c.cancel()
			}
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.cancel()
			}
		}
	}
}

// readClientMessages handles subscription requests until the connection closes
func (h *Hub) readClientMessages(ctx context.Context, c *client) {
	_ = c.conn.SetReadDeadline(time.Now().Add(DefaultReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(DefaultReadTimeout))
	})

	for ctx.Err() == nil {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(DefaultReadTimeout))

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply("error", map[string]string{"message": "malformed message"})
			continue
		}

		switch {
		case msg.Topic == "":
			c.reply("error", map[string]string{"message": "topic is required"})
		case msg.Action == "subscribe":
			c.setTopic(msg.Topic, true)
			c.reply("subscribed", map[string]string{"topic": msg.Topic})
		case msg.Action == "unsubscribe":
			c.setTopic(msg.Topic, false)
			c.reply("unsubscribed", map[string]string{"topic": msg.Topic})
		default:
			c.reply("error", map[string]string{"message": "unknown action: " + msg.Action})
		}
	}
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	cancel context.CancelFunc

	mu     sync.RWMutex
	all    bool
	topics map[string]bool
	// muted holds topics dropped while subscribed to everything
	muted map[string]bool
}

func (c *client) subscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.all {
		return !c.muted[topic]
	}
	return c.topics[topic]
}

func (c *client) setTopic(topic string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if topic == AllTopics {
		c.all = on
		clear(c.muted)
		if !on {
			clear(c.topics)
		}
		return
	}

	if on {
		c.topics[topic] = true
		delete(c.muted, topic)
		return
	}
	delete(c.topics, topic)
	if c.all {
		c.muted[topic] = true
	}
}

// enqueue drops the client instead of blocking the publisher
func (c *client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
		c.cancel()
	}
}

func (c *client) reply(typ string, data any) {
	frame, err := json.Marshal(Message{Type: typ, Data: data})
	if err != nil {
		return
	}
	c.enqueue(frame)
}
