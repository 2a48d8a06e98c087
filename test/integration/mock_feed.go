package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"market-maker-sim/market"
)

// MockFeed 模拟 binance combined stream（用于集成测试）
type MockFeed struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	msgs     chan []byte
	kick     chan struct{}
	done     chan struct{}
	once     sync.Once

	connects atomic.Int64
	updateID atomic.Int64
}

// NewMockFeed 创建并启动 Mock Feed；推送的消息在连接建立前会被缓存
func NewMockFeed() *MockFeed {
	m := &MockFeed{
		msgs: make(chan []byte, 256),
		kick: make(chan struct{}),
		done: make(chan struct{}),
	}
	m.srv = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL websocket 地址
func (m *MockFeed) URL() string {
	return "ws" + strings.TrimPrefix(m.srv.URL, "http") + "/stream"
}

// Connects 已建立的连接数
func (m *MockFeed) Connects() int64 {
	return m.connects.Load()
}

func (m *MockFeed) serve(w http.ResponseWriter, r *http.Request) {
	c, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer c.Close()
	m.connects.Add(1)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case <-m.done:
			return
		case <-closed:
			return
		case <-m.kick:
			return
		case msg := <-m.msgs:
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func encodeLevels(levels []market.Level) [][2]string {
	out := make([][2]string, 0, len(levels))
	for _, l := range levels {
		out = append(out, [2]string{
			strconv.FormatFloat(l.Price, 'f', -1, 64),
			strconv.FormatFloat(l.Size, 'f', -1, 64),
		})
	}
	return out
}

func (m *MockFeed) push(stream string, data any) {
	payload, _ := json.Marshal(data)
	msg, _ := json.Marshal(map[string]any{"stream": stream, "data": json.RawMessage(payload)})
	m.msgs <- msg
}

// PushDepth 推送一条 depth20 快照
func (m *MockFeed) PushDepth(bids, asks []market.Level) {
	m.push("btcusdt@depth20@100ms", map[string]any{
		"lastUpdateId": m.updateID.Add(1),
		"bids":         encodeLevels(bids),
		"asks":         encodeLevels(asks),
	})
}

// PushTrade 推送一条逐笔成交；卖方主动时 m=true
func (m *MockFeed) PushTrade(tr market.Trade) {
	m.push("btcusdt@trade", map[string]any{
		"e": "trade",
		"p": strconv.FormatFloat(tr.Price, 'f', -1, 64),
		"q": strconv.FormatFloat(tr.Size, 'f', -1, 64),
		"T": tr.Ts.UnixMilli(),
		"m": tr.Side == market.SideSell,
	})
}

// Disconnect 服务端断开当前连接，客户端应自行重连
func (m *MockFeed) Disconnect() {
	select {
	case m.kick <- struct{}{}:
	case <-m.done:
	}
}

// Close 关闭服务端与所有连接
func (m *MockFeed) Close() {
	m.once.Do(func() {
		close(m.done)
		m.srv.Close()
	})
}
