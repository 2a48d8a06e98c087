package market

import "time"

// Snapshot represents a top-of-book market snapshot.
type Snapshot struct {
	BestBid   float64
	BestAsk   float64
	BidSize   float64
	AskSize   float64
	Mid       float64
	Spread    float64 // 绝对价差
	SpreadBps float64
	Timestamp time.Time
}

// NewSnapshot 从视图提取最优档；空盘口返回 false。
func NewSnapshot(v BookView, ts time.Time) (Snapshot, bool) {
	bid, okb := v.BestBid()
	ask, oka := v.BestAsk()
	if !okb || !oka {
		return Snapshot{}, false
	}
	s := Snapshot{
		BestBid:   bid.Price,
		BestAsk:   ask.Price,
		BidSize:   bid.Size,
		AskSize:   ask.Size,
		Mid:       (bid.Price + ask.Price) / 2,
		Spread:    ask.Price - bid.Price,
		Timestamp: ts,
	}
	if s.Mid > 0 {
		s.SpreadBps = s.Spread / s.Mid * 10000
	}
	return s, true
}
