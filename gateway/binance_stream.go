package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"market-maker-sim/inventory"
	"market-maker-sim/market"
)

// Sink 接收归一化行情，由 sim.Runner 实现；调用是同步的，不排队。
type Sink interface {
	OnBook(bids, asks []market.Level, ts time.Time) error
	OnTrade(tr market.Trade) (inventory.Fill, bool)
}

// Observer 连接与消息计数，monitor.Monitor 实现。
type Observer interface {
	RecordFeedConnect()
	RecordFeedReconnect()
	RecordFeedMessage(kind string)
	RecordMarketTrade()
}

type nopObserver struct{}

func (nopObserver) RecordFeedConnect()       {}
func (nopObserver) RecordFeedReconnect()     {}
func (nopObserver) RecordFeedMessage(string) {}
func (nopObserver) RecordMarketTrade()       {}

// StreamConfig 行情连接参数。
type StreamConfig struct {
	URL          string
	Symbol       string
	ReadTimeout  time.Duration // 0 表示不设读超时
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	SnapshotSize int
}

// BinanceStream 订阅 combined stream（深度 + 逐笔成交），断线后按指数退避重连。
type BinanceStream struct {
	cfg      StreamConfig
	sink     Sink
	dialer   *websocket.Dialer
	rest     *BinanceRESTClient
	observer Observer
	log      *zap.Logger
	now      func() time.Time
}

func NewBinanceStream(cfg StreamConfig, sink Sink, log *zap.Logger) (*BinanceStream, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("feed url required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink required")
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = cfg.ReconnectMin
	}
	if cfg.SnapshotSize <= 0 {
		cfg.SnapshotSize = 20
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BinanceStream{
		cfg:      cfg,
		sink:     sink,
		dialer:   websocket.DefaultDialer,
		observer: nopObserver{},
		log:      log.Named("feed"),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *BinanceStream) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	s.observer = o
}

// SetSnapshotClient 每次连接成功后先用 REST 快照覆盖盘口。
func (s *BinanceStream) SetSnapshotClient(c *BinanceRESTClient) {
	s.rest = c
}

// Run 阻塞直到 ctx 结束；ctx 取消时返回 nil。
func (s *BinanceStream) Run(ctx context.Context) error {
	backoff := s.cfg.ReconnectMin
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			s.observer.RecordFeedReconnect()
		}
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = s.cfg.ReconnectMin
		}
		s.log.Warn("feed disconnected",
			zap.Error(err),
			zap.Bool("was_connected", connected),
			zap.Duration("retry_in", backoff),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.cfg.ReconnectMax {
			backoff = s.cfg.ReconnectMax
		}
	}
}

// session 建立一次连接并读取到出错为止。
func (s *BinanceStream) session(ctx context.Context) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	defer conn.Close()
	s.observer.RecordFeedConnect()
	s.log.Info("feed connected", zap.String("url", s.cfg.URL))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if s.rest != nil {
		s.seedBook(ctx)
	}

	for {
		if s.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return true, errors.New("closed by server")
			}
			return true, err
		}
		s.handle(raw)
	}
}

func (s *BinanceStream) seedBook(ctx context.Context) {
	bids, asks, err := s.rest.DepthSnapshot(ctx, s.cfg.Symbol, s.cfg.SnapshotSize)
	if err != nil {
		s.log.Warn("depth snapshot failed", zap.Error(err))
		return
	}
	if err := s.sink.OnBook(bids, asks, s.now()); err != nil {
		s.log.Warn("depth snapshot rejected", zap.Error(err))
	}
}

func (s *BinanceStream) handle(raw []byte) {
	ev, err := ParseMessage(raw)
	if err != nil {
		s.observer.RecordFeedMessage("invalid")
		s.log.Debug("skip message", zap.Error(err))
		return
	}
	s.observer.RecordFeedMessage(ev.Kind.String())
	switch ev.Kind {
	case EventDepth:
		// 空盘口或交叉盘口只丢弃本次更新
		if err := s.sink.OnBook(ev.Bids, ev.Asks, s.now()); err != nil {
			s.log.Debug("book rejected", zap.Error(err))
		}
	case EventTrade:
		s.observer.RecordMarketTrade()
		tr := ev.Trade
		if tr.Ts.IsZero() {
			tr.Ts = s.now()
		}
		s.sink.OnTrade(tr)
	}
}
