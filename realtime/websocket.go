package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zkx401/pulse/pkg/clock"
	"github.com/zkx401/pulse/pkg/retry"
)

// Default WebSocket settings
const (
	DefaultAccount      = "11111111111111111111111111111111" // system program
	DefaultPingInterval = 30 * time.Second
	DefaultReconnects   = 5
	DefaultReconnectGap = 5 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

var pingMessage = []byte(`{"type":"ping"}`)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// WebSocketOption configures a WebSocket source
type WebSocketOption func(*WebSocket)

// WithAccount sets the account whose changes are subscribed to
func WithAccount(account string) WebSocketOption {
	return func(w *WebSocket) { w.account = account }
}

// WithPingInterval sets the keep-alive interval
func WithPingInterval(d time.Duration) WebSocketOption {
	return func(w *WebSocket) { w.pingInterval = d }
}

// WithReconnect sets the reconnect policy
func WithReconnect(cfg retry.Config) WebSocketOption {
	return func(w *WebSocket) { w.reconnect = cfg }
}

// WithDialer replaces the default dialer
func WithDialer(d *websocket.Dialer) WebSocketOption {
	return func(w *WebSocket) { w.dialer = d }
}

// WithWebSocketClock injects a custom Clock
func WithWebSocketClock(c clock.Clock) WebSocketOption {
	return func(w *WebSocket) { w.clock = c }
}

// WithErrorHandler receives decode and connection errors that do not end the stream
func WithErrorHandler(fn func(error)) WebSocketOption {
	return func(w *WebSocket) { w.onError = fn }
}

// WebSocket streams account notifications and event envelopes from a
// WebSocket endpoint, reconnecting with linear backoff.
type WebSocket struct {
	url          string
	account      string
	pingInterval time.Duration
	reconnect    retry.Config
	dialer       *websocket.Dialer
	clock        clock.Clock
	onError      func(error)

	requestID atomic.Int64
	connected atomic.Bool
	writeMu   sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWebSocket creates a source for the endpoint at url
func NewWebSocket(url string, opts ...WebSocketOption) *WebSocket {
	w := &WebSocket{
		url:          url,
		account:      DefaultAccount,
		pingInterval: DefaultPingInterval,
		reconnect: retry.Config{
			MaxRetries:   DefaultReconnects,
			InitialDelay: DefaultReconnectGap,
			Linear:       true,
		},
		dialer:  websocket.DefaultDialer,
		clock:   clock.SystemClock{},
		onError: func(error) {},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Open dials the endpoint and subscribes. The channel closes when ctx ends,
// Close is called or reconnect attempts are exhausted.
func (w *WebSocket) Open(ctx context.Context) (<-chan Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return nil, ErrAlreadyOpen
	}

	conn, err := w.dial(ctx)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	out := make(chan Event, 64)

	go func(done chan struct{}) {
		defer close(done)
		defer close(out)
		w.run(runCtx, conn, out)
	}(w.done)
	return out, nil
}

// Close disconnects and waits for the channel to close
func (w *WebSocket) Close() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Connected reports whether a connection is currently established
func (w *WebSocket) Connected() bool {
	return w.connected.Load()
}

func (w *WebSocket) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := w.dialer.DialContext(ctx, w.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDial, err)
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      w.requestID.Add(1),
		Method:  "accountSubscribe",
		Params:  []any{w.account, map[string]string{"encoding": "jsonParsed"}},
	}
	payload, err := json.Marshal(req)
	if err == nil {
		err = w.write(conn, payload)
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrSubscribe, err)
	}
	return conn, nil
}

func (w *WebSocket) write(conn *websocket.Conn, payload []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (w *WebSocket) run(ctx context.Context, conn *websocket.Conn, out chan<- Event) {
	for conn != nil {
		err := w.serve(ctx, conn, out)
		w.connected.Store(false)
		if ctx.Err() != nil {
			return
		}
		w.onError(fmt.Errorf("%w: %w", ErrDisconnected, err))
		conn = w.redial(ctx)
	}
}

// serve reads until the connection fails or ctx ends
func (w *WebSocket) serve(ctx context.Context, conn *websocket.Conn, out chan<- Event) error {
	w.connected.Store(true)
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		w.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		w.writeMu.Unlock()
		_ = conn.Close()
	})
	defer stop()

	pingDone := make(chan struct{})
	defer close(pingDone)
	go w.keepAlive(conn, pingDone)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		ev, ok, err := Decode(msg, w.clock.Now())
		if err != nil {
			w.onError(err)
			continue
		}
		if !ok {
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *WebSocket) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	if w.pingInterval <= 0 {
		return
	}
	for clock.Sleep(w.clock, w.pingInterval, done) {
		if err := w.write(conn, pingMessage); err != nil {
			return
		}
	}
}

// redial retries the connection at InitialDelay × attempt
func (w *WebSocket) redial(ctx context.Context) *websocket.Conn {
	for attempt := 1; attempt <= w.reconnect.MaxRetries; attempt++ {
		if !clock.Sleep(w.clock, w.reconnect.Delay(attempt), ctx.Done()) {
			return nil
		}
		conn, err := w.dial(ctx)
		if err == nil {
			return conn
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		w.onError(err)
	}
	w.onError(ErrReconnectFailed)
	return nil
}
