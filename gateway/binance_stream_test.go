package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-maker-sim/inventory"
	"market-maker-sim/market"
)

type recordingSink struct {
	mu     sync.Mutex
	books  [][]market.Level
	trades []market.Trade
}

func (s *recordingSink) OnBook(bids, asks []market.Level, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books = append(s.books, append(append([]market.Level{}, bids...), asks...))
	return nil
}

func (s *recordingSink) OnTrade(tr market.Trade) (inventory.Fill, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, tr)
	return inventory.Fill{}, false
}

func (s *recordingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.books), len(s.trades)
}

type countingObserver struct {
	connects, reconnects, trades atomic.Int64
	mu                           sync.Mutex
	kinds                        map[string]int
}

func (o *countingObserver) RecordFeedConnect()   { o.connects.Add(1) }
func (o *countingObserver) RecordFeedReconnect() { o.reconnects.Add(1) }
func (o *countingObserver) RecordMarketTrade()   { o.trades.Add(1) }
func (o *countingObserver) RecordFeedMessage(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.kinds == nil {
		o.kinds = make(map[string]int)
	}
	o.kinds[kind]++
}

const (
	depthMsg = `{"stream":"btcusdt@depth20@100ms","data":{"lastUpdateId":1,"bids":[["100","1"]],"asks":[["101","1"]]}}`
	tradeMsg = `{"stream":"btcusdt@trade","data":{"e":"trade","t":1,"p":"100.5","q":"0.2","T":1709294400000,"m":true}}`
)

// wsServer 每个连接推送 msgs；hold 为 true 时保持连接直到客户端断开。
func wsServer(t *testing.T, msgs []string, hold bool) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for _, m := range msgs {
			if err := c.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		if !hold {
			return
		}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/api/v3/depth", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		io.WriteString(w, `{"lastUpdateId":9,"bids":[["99","2"],["98","1"]],"asks":[["102","3"]]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
}

func runStream(t *testing.T, s *BinanceStream) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not stop")
		}
	}
}

func TestBinanceStreamDeliversEvents(t *testing.T) {
	srv := wsServer(t, []string{depthMsg, `{"id":1,"result":null}`, tradeMsg, `garbage`}, true)
	sink := &recordingSink{}
	obs := &countingObserver{}
	s, err := NewBinanceStream(StreamConfig{URL: wsURL(srv), Symbol: "btcusdt", ReadTimeout: time.Minute}, sink, nil)
	require.NoError(t, err)
	s.SetObserver(obs)

	stop := runStream(t, s)
	require.Eventually(t, func() bool {
		obs.mu.Lock()
		defer obs.mu.Unlock()
		return obs.kinds["invalid"] == 1
	}, 5*time.Second, 10*time.Millisecond)
	stop()

	sink.mu.Lock()
	require.Len(t, sink.books, 1)
	require.Len(t, sink.trades, 1)
	assert.Equal(t, []market.Level{{Price: 100, Size: 1}, {Price: 101, Size: 1}}, sink.books[0])
	assert.Equal(t, market.Trade{Ts: time.UnixMilli(1709294400000).UTC(), Price: 100.5, Size: 0.2, Side: market.SideSell}, sink.trades[0])
	sink.mu.Unlock()

	assert.Equal(t, int64(1), obs.connects.Load())
	assert.Equal(t, int64(1), obs.trades.Load())
	obs.mu.Lock()
	assert.Equal(t, map[string]int{"depth": 1, "trade": 1, "other": 1, "invalid": 1}, obs.kinds)
	obs.mu.Unlock()
}

func TestBinanceStreamReconnects(t *testing.T) {
	srv := wsServer(t, []string{depthMsg}, false)
	sink := &recordingSink{}
	obs := &countingObserver{}
	s, err := NewBinanceStream(StreamConfig{
		URL:          wsURL(srv),
		ReconnectMin: 5 * time.Millisecond,
		ReconnectMax: 20 * time.Millisecond,
	}, sink, nil)
	require.NoError(t, err)
	s.SetObserver(obs)

	stop := runStream(t, s)
	require.Eventually(t, func() bool { return obs.connects.Load() >= 3 }, 5*time.Second, 5*time.Millisecond)
	stop()

	assert.GreaterOrEqual(t, obs.reconnects.Load(), int64(2))
	books, _ := sink.counts()
	assert.GreaterOrEqual(t, books, 2)
}

func TestBinanceStreamDialFailureBacksOff(t *testing.T) {
	obs := &countingObserver{}
	s, err := NewBinanceStream(StreamConfig{
		URL:          "ws://127.0.0.1:1/stream",
		ReconnectMin: time.Millisecond,
		ReconnectMax: 4 * time.Millisecond,
	}, &recordingSink{}, nil)
	require.NoError(t, err)
	s.SetObserver(obs)

	stop := runStream(t, s)
	require.Eventually(t, func() bool { return obs.reconnects.Load() >= 3 }, 5*time.Second, time.Millisecond)
	stop()
	assert.Zero(t, obs.connects.Load())
}

func TestBinanceStreamSeedsFromSnapshot(t *testing.T) {
	srv := wsServer(t, nil, true)
	sink := &recordingSink{}
	s, err := NewBinanceStream(StreamConfig{URL: wsURL(srv), Symbol: "btcusdt", SnapshotSize: 5}, sink, nil)
	require.NoError(t, err)
	s.SetSnapshotClient(&BinanceRESTClient{BaseURL: srv.URL, HTTPClient: srv.Client()})

	stop := runStream(t, s)
	require.Eventually(t, func() bool {
		b, _ := sink.counts()
		return b == 1
	}, 5*time.Second, 10*time.Millisecond)
	stop()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []market.Level{{Price: 99, Size: 2}, {Price: 98, Size: 1}, {Price: 102, Size: 3}}, sink.books[0])
}

func TestNewBinanceStreamValidation(t *testing.T) {
	_, err := NewBinanceStream(StreamConfig{}, &recordingSink{}, nil)
	assert.Error(t, err)
	_, err = NewBinanceStream(StreamConfig{URL: "ws://x"}, nil, nil)
	assert.Error(t, err)

	s, err := NewBinanceStream(StreamConfig{URL: "ws://x", ReconnectMin: time.Second, ReconnectMax: time.Millisecond}, &recordingSink{}, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Second, s.cfg.ReconnectMax)
	assert.Equal(t, 20, s.cfg.SnapshotSize)
}
