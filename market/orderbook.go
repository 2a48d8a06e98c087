package market

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tidwall/btree"
)

var (
	ErrNonPositiveSize = errors.New("level size must be > 0")
	ErrBidsNotSorted   = errors.New("bids must be strictly descending")
	ErrAsksNotSorted   = errors.New("asks must be strictly ascending")
)

const btreeDegree = 32

// Level 单个价位。
type Level struct {
	Price float64
	Size  float64
}

func validLevel(l Level) bool {
	return l.Size > 0 && l.Price > 0 && !math.IsInf(l.Price, 1) && !math.IsInf(l.Size, 1)
}

// OrderBook 维护按价格有序的买卖两侧；同价位后写覆盖先写。
type OrderBook struct {
	mu      sync.RWMutex
	bids    *btree.Map[float64, float64] // price -> size
	asks    *btree.Map[float64, float64]
	updated time.Time
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids: btree.NewMap[float64, float64](btreeDegree),
		asks: btree.NewMap[float64, float64](btreeDegree),
	}
}

// Replace 用完整快照替换两侧（depth20 推送即为快照），非正数量的档位被丢弃。
func (ob *OrderBook) Replace(bids, asks []Level) {
	nb := btree.NewMap[float64, float64](btreeDegree)
	na := btree.NewMap[float64, float64](btreeDegree)
	for _, l := range bids {
		if validLevel(l) {
			nb.Set(l.Price, l.Size)
		}
	}
	for _, l := range asks {
		if validLevel(l) {
			na.Set(l.Price, l.Size)
		}
	}
	ob.mu.Lock()
	ob.bids, ob.asks = nb, na
	ob.updated = time.Now()
	ob.mu.Unlock()
}

// ApplyDelta 应用增量更新，qty <= 0 表示删除该档。
func (ob *OrderBook) ApplyDelta(bidDelta map[float64]float64, askDelta map[float64]float64) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	for p, q := range bidDelta {
		if q <= 0 {
			ob.bids.Delete(p)
		} else {
			ob.bids.Set(p, q)
		}
	}
	for p, q := range askDelta {
		if q <= 0 {
			ob.asks.Delete(p)
		} else {
			ob.asks.Set(p, q)
		}
	}
	ob.updated = time.Now()
}

// Best 返回最好买/卖价；若不存在则为 0。
func (ob *OrderBook) Best() (bestBid float64, bestAsk float64) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if p, _, ok := ob.bids.Max(); ok {
		bestBid = p
	}
	if p, _, ok := ob.asks.Min(); ok {
		bestAsk = p
	}
	return bestBid, bestAsk
}

// Mid 返回中间价；若缺失任一侧返回 0。
func (ob *OrderBook) Mid() float64 {
	bid, ask := ob.Best()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// View 导出前 depth 档（depth <= 0 表示全部）。
func (ob *OrderBook) View(depth int) BookView {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	v := BookView{Ts: ob.updated}
	ob.bids.Reverse(func(p, s float64) bool {
		v.Bids = append(v.Bids, Level{Price: p, Size: s})
		return depth <= 0 || len(v.Bids) < depth
	})
	ob.asks.Scan(func(p, s float64) bool {
		v.Asks = append(v.Asks, Level{Price: p, Size: s})
		return depth <= 0 || len(v.Asks) < depth
	})
	return v
}

// BookView 是某一时刻盘口的只读视图：bids 严格降序，asks 严格升序，数量均为正。
type BookView struct {
	Bids []Level
	Asks []Level
	Ts   time.Time
}

// NewBookView 对原始档位做过滤、排序和去重后生成视图。
func NewBookView(bids, asks []Level) BookView {
	ob := NewOrderBook()
	ob.Replace(bids, asks)
	return ob.View(0)
}

// Empty 任一侧为空即视为空盘口。
func (v BookView) Empty() bool {
	return len(v.Bids) == 0 || len(v.Asks) == 0
}

func (v BookView) BestBid() (Level, bool) {
	if len(v.Bids) == 0 {
		return Level{}, false
	}
	return v.Bids[0], true
}

func (v BookView) BestAsk() (Level, bool) {
	if len(v.Asks) == 0 {
		return Level{}, false
	}
	return v.Asks[0], true
}

// Crossed 最优卖价 <= 最优买价。
func (v BookView) Crossed() bool {
	bid, okb := v.BestBid()
	ask, oka := v.BestAsk()
	return okb && oka && ask.Price <= bid.Price
}

// Top 截取前 n 档。
func (v BookView) Top(n int) BookView {
	out := BookView{Ts: v.Ts, Bids: v.Bids, Asks: v.Asks}
	if n > 0 && len(out.Bids) > n {
		out.Bids = out.Bids[:n]
	}
	if n > 0 && len(out.Asks) > n {
		out.Asks = out.Asks[:n]
	}
	return out
}

// Validate 校验排序与数量不变式。
func (v BookView) Validate() error {
	for i, l := range v.Bids {
		if l.Size <= 0 {
			return fmt.Errorf("%w: bid %.8f size %.8f", ErrNonPositiveSize, l.Price, l.Size)
		}
		if i > 0 && l.Price >= v.Bids[i-1].Price {
			return fmt.Errorf("%w: %.8f after %.8f", ErrBidsNotSorted, l.Price, v.Bids[i-1].Price)
		}
	}
	for i, l := range v.Asks {
		if l.Size <= 0 {
			return fmt.Errorf("%w: ask %.8f size %.8f", ErrNonPositiveSize, l.Price, l.Size)
		}
		if i > 0 && l.Price <= v.Asks[i-1].Price {
			return fmt.Errorf("%w: %.8f after %.8f", ErrAsksNotSorted, l.Price, v.Asks[i-1].Price)
		}
	}
	return nil
}
