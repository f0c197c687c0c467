package realtime_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkx401/pulse/dashboard"
	"github.com/zkx401/pulse/pkg/clock/clocktest"
	"github.com/zkx401/pulse/pkg/retry"
	"github.com/zkx401/pulse/realtime"
)

func TestCodec(t *testing.T) {
	t.Parallel()

	t.Run("it turns account notifications into transactions", func(t *testing.T) {
		t.Parallel()

		// Arrange
		msg := `{"jsonrpc":"2.0","method":"accountNotification","params":{"result":{"context":{"slot":294567123},"value":{"lamports":2500000000}},"subscription":7}}`

		// Act
		ev, ok, err := realtime.Decode([]byte(msg), clocktest.Epoch)

		// Assert
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, realtime.TypeTransaction, ev.Type)
		assert.Equal(t, clocktest.Epoch, ev.Timestamp)
		assert.Equal(t, int64(294567123), ev.Transaction.Slot)
		assert.InDelta(t, 2.5, ev.Transaction.Amount, 1e-9)
	})

	t.Run("it accepts short envelope type names", func(t *testing.T) {
		t.Parallel()

		msg := `{"type":"price","data":{"price":1.0001,"change24h":0.02},"timestamp":"2024-05-01T10:00:00Z"}`

		ev, ok, err := realtime.Decode([]byte(msg), clocktest.Epoch)

		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, realtime.TypePrice, ev.Type)
		assert.InDelta(t, 1.0001, ev.Price.Price, 1e-9)
		assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), ev.Timestamp.UTC())
	})

	t.Run("it skips control messages", func(t *testing.T) {
		t.Parallel()

		for _, msg := range []string{`{"jsonrpc":"2.0","result":7,"id":1}`, `{"type":"pong"}`, `{"type":"block","data":{}}`} {
			_, ok, err := realtime.Decode([]byte(msg), clocktest.Epoch)

			require.NoError(t, err, msg)
			assert.False(t, ok, msg)
		}
	})

	t.Run("it rejects malformed messages", func(t *testing.T) {
		t.Parallel()

		for _, msg := range []string{`not json`, `{"type":"activity"}`, `{"type":"network_stats","data":"oops"}`} {
			_, _, err := realtime.Decode([]byte(msg), clocktest.Epoch)

			assert.ErrorIs(t, err, realtime.ErrDecode, msg)
		}
	})

	t.Run("it decodes what it encodes", func(t *testing.T) {
		t.Parallel()

		// Arrange
		activity := dashboard.Activity{ID: "activity-1", Type: dashboard.KindProof, Message: "ZK proof generated", Timestamp: clocktest.Epoch}
		stats := dashboard.NetworkStats{TPS: 2400, BlockHeight: 245678901}
		events := []realtime.Event{
			{Type: realtime.TypeActivity, Timestamp: clocktest.Epoch, Activity: &activity},
			{Type: realtime.TypeStats, Timestamp: clocktest.Epoch, Stats: &stats},
		}

		for _, want := range events {
			// Act
			msg, err := realtime.Encode(want)
			require.NoError(t, err)
			got, ok, err := realtime.Decode(msg, time.Time{})

			// Assert
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want.Type, got.Type)
			assert.True(t, want.Timestamp.Equal(got.Timestamp))
			assert.Equal(t, want.Activity, got.Activity)
			assert.Equal(t, want.Stats, got.Stats)
		}
	})

	t.Run("it refuses to encode an event without payload", func(t *testing.T) {
		t.Parallel()

		_, err := realtime.Encode(realtime.Event{Type: realtime.TypePrice})

		assert.ErrorIs(t, err, realtime.ErrDecode)
	})
}

func TestSynthetic(t *testing.T) {
	t.Parallel()

	t.Run("it emits each event type on its own timer", func(t *testing.T) {
		t.Parallel()

		// Arrange
		clk := clocktest.New(time.Time{})
		src := realtime.NewSynthetic(fixedGenerator{}, realtime.WithSyntheticClock(clk))
		events, err := src.Open(t.Context())
		require.NoError(t, err)
		t.Cleanup(func() { _ = src.Close() })
		clk.BlockUntil(4)

		// Act
		clk.Advance(realtime.DefaultTransactionEvery)
		tx := <-events
		clk.Advance(realtime.DefaultActivityEvery - realtime.DefaultTransactionEvery)
		batch := receive(t, events, 2)
		clk.Advance(realtime.DefaultPriceEvery - realtime.DefaultActivityEvery)
		price := <-events

		// Assert
		assert.True(t, src.Connected())
		assert.Equal(t, realtime.TypeTransaction, tx.Type)
		assert.Equal(t, "sig", tx.Transaction.Signature)
		assert.Equal(t, int64(294567001), tx.Transaction.Slot)
		assert.InDelta(t, realtime.SyntheticFee, tx.Transaction.Fee, 1e-12)
		assert.Equal(t, clocktest.Epoch.Add(realtime.DefaultTransactionEvery), tx.Timestamp)
		assert.Equal(t, "live-0", batch[0].Activity.ID)
		assert.Equal(t, "live-1", batch[1].Activity.ID)
		assert.Equal(t, realtime.TypePrice, price.Type)
		assert.InDelta(t, 1.0003, price.Price.Price, 1e-9)
	})

	t.Run("it closes the stream on Close and refuses a second open", func(t *testing.T) {
		t.Parallel()

		// Arrange
		src := realtime.NewSynthetic(fixedGenerator{}, realtime.WithSyntheticClock(clocktest.New(time.Time{})))
		events, err := src.Open(t.Context())
		require.NoError(t, err)
		_, again := src.Open(t.Context())

		// Act
		require.NoError(t, src.Close())

		// Assert
		assert.ErrorIs(t, again, realtime.ErrAlreadyOpen)
		_, open := <-events
		assert.False(t, open)
		assert.False(t, src.Connected())
	})
}

func TestWebSocket(t *testing.T) {
	t.Parallel()

	t.Run("it subscribes, decodes messages and reconnects after a drop", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server := newScriptedServer(t, true,
			[]string{
				`{"jsonrpc":"2.0","result":3,"id":1}`,
				`{"jsonrpc":"2.0","method":"accountNotification","params":{"result":{"context":{"slot":42},"value":{"lamports":1000000000}}}}`,
				`garbage`,
				`{"type":"price","data":{"price":0.9998}}`,
			},
			[]string{
				`{"type":"activity","data":{"id":"activity-9","type":"user","message":"Wallet joined x402 network","timestamp":"2024-01-01T00:00:00Z"}}`,
			},
		)
		clk := clocktest.New(time.Time{})
		errs := make(chan error, 16)
		src := realtime.NewWebSocket(server.url(),
			realtime.WithWebSocketClock(clk),
			realtime.WithPingInterval(0),
			realtime.WithErrorHandler(func(err error) { errs <- err }))

		// Act
		events, err := src.Open(t.Context())
		require.NoError(t, err)
		tx := <-events
		price := <-events
		decodeErr := <-errs
		dropErr := <-errs
		clk.WaitFor(realtime.DefaultReconnectGap)
		clk.Advance(realtime.DefaultReconnectGap)
		activity := <-events
		require.NoError(t, src.Close())

		// Assert
		assert.Equal(t, int64(42), tx.Transaction.Slot)
		assert.InDelta(t, 1.0, tx.Transaction.Amount, 1e-9)
		assert.InDelta(t, 0.9998, price.Price.Price, 1e-9)
		assert.ErrorIs(t, decodeErr, realtime.ErrDecode)
		assert.ErrorIs(t, dropErr, realtime.ErrDisconnected)
		assert.Equal(t, "activity-9", activity.Activity.ID)
		assert.Equal(t, int32(2), server.accepted.Load())
		assert.Contains(t, <-server.subscriptions, `"method":"accountSubscribe"`)
		assert.Contains(t, <-server.subscriptions, realtime.DefaultAccount)
		_, open := <-events
		assert.False(t, open)
		assert.False(t, src.Connected())
	})

	t.Run("it gives up after the configured reconnect attempts", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server := newScriptedServer(t, false, []string{})
		clk := clocktest.New(time.Time{})
		errs := make(chan error, 16)
		src := realtime.NewWebSocket(server.url(),
			realtime.WithWebSocketClock(clk),
			realtime.WithPingInterval(0),
			realtime.WithReconnect(retry.Config{MaxRetries: 2, InitialDelay: time.Second, Linear: true}),
			realtime.WithErrorHandler(func(err error) { errs <- err }))
		events, err := src.Open(t.Context())
		require.NoError(t, err)
		t.Cleanup(func() { _ = src.Close() })

		// Act
		assert.ErrorIs(t, <-errs, realtime.ErrDisconnected)
		clk.WaitFor(time.Second)
		clk.Advance(time.Second)
		firstRetry := <-errs
		clk.WaitFor(2 * time.Second)
		clk.Advance(2 * time.Second)
		secondRetry := <-errs
		final := <-errs

		// Assert
		assert.ErrorIs(t, firstRetry, realtime.ErrDial)
		assert.ErrorIs(t, secondRetry, realtime.ErrDial)
		assert.ErrorIs(t, final, realtime.ErrReconnectFailed)
		_, open := <-events
		assert.False(t, open)
	})

	t.Run("it fails to open an unreachable endpoint", func(t *testing.T) {
		t.Parallel()

		server := newScriptedServer(t, false)
		src := realtime.NewWebSocket(server.url())

		_, err := src.Open(t.Context())

		assert.ErrorIs(t, err, realtime.ErrDial)
	})
}

// Domain-specific test builders

func receive(t *testing.T, events <-chan realtime.Event, n int) []realtime.Event {
	t.Helper()
	out := make([]realtime.Event, 0, n)
	for range n {
		ev := <-events
		require.Equal(t, realtime.TypeActivity, ev.Type)
		out = append(out, ev)
	}
	return out
}

// Mock implementations

type fixedGenerator struct{}

func (fixedGenerator) Network() dashboard.NetworkStats { return dashboard.NetworkStats{TPS: 2500} }

func (fixedGenerator) Price() dashboard.PriceInfo { return dashboard.PriceInfo{Price: 1.0003} }

func (fixedGenerator) LiveBatch() []dashboard.Activity {
	return []dashboard.Activity{
		{ID: "live-0", Type: dashboard.KindTransaction, Message: "x402 transaction completed"},
		{ID: "live-1", Type: dashboard.KindProof, Message: "ZK proof generated for wallet"},
	}
}

func (fixedGenerator) Signature() string { return "sig" }

func (fixedGenerator) Slot() int64 { return 294567001 }

// scriptedServer upgrades each connection, records the subscription request
// and plays one script per connection. Connections beyond the scripts are
// refused. With hold set the last connection stays open until the client leaves.
type scriptedServer struct {
	srv           *httptest.Server
	scripts       [][]string
	hold          bool
	accepted      atomic.Int32
	subscriptions chan string
}

func newScriptedServer(t *testing.T, hold bool, scripts ...[]string) *scriptedServer {
	t.Helper()
	s := &scriptedServer{scripts: scripts, hold: hold, subscriptions: make(chan string, 8)}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *scriptedServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *scriptedServer) handle(w http.ResponseWriter, r *http.Request) {
	n := int(s.accepted.Load())
	if n >= len(s.scripts) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	s.accepted.Add(1)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if _, msg, err := conn.ReadMessage(); err == nil {
		s.subscriptions <- string(msg)
	}
	for _, m := range s.scripts[n] {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
			return
		}
	}

	if !s.hold || n < len(s.scripts)-1 {
		return
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
