package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"market-maker-sim/market"
)

// EventKind 行情消息类型。
type EventKind int

const (
	EventUnknown EventKind = iota
	EventDepth
	EventTrade
)

func (k EventKind) String() string {
	switch k {
	case EventDepth:
		return "depth"
	case EventTrade:
		return "trade"
	default:
		return "other"
	}
}

// Event 归一化后的行情事件。
type Event struct {
	Kind  EventKind
	Bids  []market.Level
	Asks  []market.Level
	Trade market.Trade
}

// CombinedMessage 对应 binance combined stream 包装。
type CombinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// DepthPayload 部分深度快照；现货推送 bids/asks，合约推送 b/a。
type DepthPayload struct {
	LastUpdateID *int64           `json:"lastUpdateId"`
	Bids         [][2]json.Number `json:"bids"`
	Asks         [][2]json.Number `json:"asks"`
	B            [][2]json.Number `json:"b"`
	A            [][2]json.Number `json:"a"`
}

// TradePayload 逐笔成交。大小写相近的字段都要声明，否则 encoding/json 会按不区分大小写匹配串位。
type TradePayload struct {
	EventType  string      `json:"e"`
	EventTime  int64       `json:"E"`
	Symbol     string      `json:"s"`
	TradeID    int64       `json:"t"`
	Price      json.Number `json:"p"`
	Qty        json.Number `json:"q"`
	TradeTime  int64       `json:"T"`
	BuyerMaker bool        `json:"m"`
	Ignore     bool        `json:"M"`
}

var ErrEmptyMessage = errors.New("empty message")

// ParseMessage 解析 combined stream 或单流原始消息。无法识别的消息返回 EventUnknown 且不报错。
func ParseMessage(raw []byte) (Event, error) {
	if len(raw) == 0 {
		return Event{}, ErrEmptyMessage
	}
	var msg CombinedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Event{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.Stream != "" {
		switch {
		case strings.Contains(msg.Stream, "depth"):
			return parseDepth(msg.Data)
		case strings.Contains(msg.Stream, "trade"):
			return parseTrade(msg.Data)
		default:
			return Event{}, nil
		}
	}

	var probe struct {
		LastUpdateID *int64 `json:"lastUpdateId"`
		EventType    string `json:"e"`
		EventTime    int64  `json:"E"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Event{}, fmt.Errorf("decode message: %w", err)
	}
	switch {
	case probe.LastUpdateID != nil:
		return parseDepth(raw)
	case probe.EventType == "trade":
		return parseTrade(raw)
	}
	return Event{}, nil
}

func parseDepth(data []byte) (Event, error) {
	var p DepthPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Event{}, fmt.Errorf("decode depth: %w", err)
	}
	bids, asks := p.Bids, p.Asks
	if len(bids) == 0 && len(asks) == 0 {
		bids, asks = p.B, p.A
	}
	ev := Event{Kind: EventDepth, Bids: levels(bids), Asks: levels(asks)}
	sort.Slice(ev.Bids, func(i, j int) bool { return ev.Bids[i].Price > ev.Bids[j].Price })
	sort.Slice(ev.Asks, func(i, j int) bool { return ev.Asks[i].Price < ev.Asks[j].Price })
	return ev, nil
}

// levels 丢弃数量为 0 或无法解析的档位。
func levels(raw [][2]json.Number) []market.Level {
	out := make([]market.Level, 0, len(raw))
	for _, l := range raw {
		px, err := l[0].Float64()
		if err != nil {
			continue
		}
		qty, err := l[1].Float64()
		if err != nil || qty <= 0 {
			continue
		}
		out = append(out, market.Level{Price: px, Size: qty})
	}
	return out
}

func parseTrade(data []byte) (Event, error) {
	var p TradePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Event{}, fmt.Errorf("decode trade: %w", err)
	}
	px, err := p.Price.Float64()
	if err != nil {
		return Event{}, fmt.Errorf("trade price %q: %w", p.Price, err)
	}
	qty, err := p.Qty.Float64()
	if err != nil {
		return Event{}, fmt.Errorf("trade qty %q: %w", p.Qty, err)
	}
	// m=true 表示买方是挂单方，即主动卖出
	side := market.SideBuy
	if p.BuyerMaker {
		side = market.SideSell
	}
	tr := market.Trade{Price: px, Size: qty, Side: side}
	if p.TradeTime > 0 {
		tr.Ts = time.UnixMilli(p.TradeTime).UTC()
	}
	return Event{Kind: EventTrade, Trade: tr}, nil
}
