package orderbook

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side 表示盘口方向。
type Side int

const (
	// Bid 买盘。作为吃单方向时代表买入。
	Bid Side = iota
	// Ask 卖盘。作为吃单方向时代表卖出。
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Opposite 返回对手方向。
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

var (
	// ErrInvalidPrice 价格必须为正。
	ErrInvalidPrice = errors.New("orderbook: 价格必须为正")
	// ErrInvalidQuantity 数量必须为正。
	ErrInvalidQuantity = errors.New("orderbook: 数量必须为正")
)

// Level 为单个价位的聚合量。
type Level struct {
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}

// Trade 为一次撮合成交。
type Trade struct {
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	TakerSide Side
	MakerID   string
	Timestamp time.Time
}

type restingOrder struct {
	id        string
	quantity  decimal.Decimal
	timestamp time.Time
}

type priceLevel struct {
	price  decimal.Decimal
	volume decimal.Decimal
	orders []*restingOrder
}

// ladder 按优先级保存某一侧的价位，下标 0 为最优价。
type ladder struct {
	side   Side
	levels []*priceLevel
}

func (l *ladder) better(a, b decimal.Decimal) bool {
	if l.side == Bid {
		return a.GreaterThan(b)
	}
	return a.LessThan(b)
}

func (l *ladder) insert(price decimal.Decimal, order *restingOrder) {
	idx := sort.Search(len(l.levels), func(i int) bool {
		return !l.better(l.levels[i].price, price)
	})
	if idx < len(l.levels) && l.levels[idx].price.Equal(price) {
		lvl := l.levels[idx]
		lvl.orders = append(lvl.orders, order)
		lvl.volume = lvl.volume.Add(order.quantity)
		return
	}

	lvl := &priceLevel{
		price:  price,
		volume: order.quantity,
		orders: []*restingOrder{order},
	}
	l.levels = append(l.levels, nil)
	copy(l.levels[idx+1:], l.levels[idx:])
	l.levels[idx] = lvl
}

func (l *ladder) volume() decimal.Decimal {
	total := decimal.Zero
	for _, lvl := range l.levels {
		total = total.Add(lvl.volume)
	}
	return total
}

func (l *ladder) clone() ladder {
	out := ladder{side: l.side, levels: make([]*priceLevel, len(l.levels))}
	for i, lvl := range l.levels {
		orders := make([]*restingOrder, len(lvl.orders))
		for j, o := range lvl.orders {
			cp := *o
			orders[j] = &cp
		}
		out.levels[i] = &priceLevel{price: lvl.price, volume: lvl.volume, orders: orders}
	}
	return out
}

// Book 是单一标的的限价订单簿，同价位按时间先后排队。
// Book 不是并发安全的，每条执行路径各自持有独立实例。
type Book struct {
	Symbol    string
	Timestamp time.Time

	bids ladder
	asks ladder
	tape []Trade
}

// New 创建空订单簿。
func New(symbol string) *Book {
	return &Book{
		Symbol: symbol,
		bids:   ladder{side: Bid},
		asks:   ladder{side: Ask},
	}
}

// FromLevels 以聚合价位构建订单簿快照，每个价位挂一笔订单。
func FromLevels(symbol string, ts time.Time, bids, asks []Level) (*Book, error) {
	book := New(symbol)
	book.Timestamp = ts
	for _, lvl := range bids {
		if _, err := book.AddLimit(Bid, lvl.Price, lvl.Volume, ts); err != nil {
			return nil, fmt.Errorf("orderbook: 买盘价位 %s 无效: %w", lvl.Price, err)
		}
	}
	for _, lvl := range asks {
		if _, err := book.AddLimit(Ask, lvl.Price, lvl.Volume, ts); err != nil {
			return nil, fmt.Errorf("orderbook: 卖盘价位 %s 无效: %w", lvl.Price, err)
		}
	}
	return book, nil
}

// AddLimit 挂入一笔限价单，返回订单 ID。
func (b *Book) AddLimit(side Side, price, quantity decimal.Decimal, ts time.Time) (string, error) {
	if !price.IsPositive() {
		return "", ErrInvalidPrice
	}
	if !quantity.IsPositive() {
		return "", ErrInvalidQuantity
	}
	order := &restingOrder{
		id:        uuid.NewString(),
		quantity:  quantity,
		timestamp: ts,
	}
	b.ladder(side).insert(price, order)
	return order.id, nil
}

func (b *Book) ladder(side Side) *ladder {
	if side == Bid {
		return &b.bids
	}
	return &b.asks
}

// BestBid 返回最优买价，买盘为空时 ok=false。
func (b *Book) BestBid() (decimal.Decimal, bool) {
	if len(b.bids.levels) == 0 {
		return decimal.Zero, false
	}
	return b.bids.levels[0].price, true
}

// BestAsk 返回最优卖价，卖盘为空时 ok=false。
func (b *Book) BestAsk() (decimal.Decimal, bool) {
	if len(b.asks.levels) == 0 {
		return decimal.Zero, false
	}
	return b.asks.levels[0].price, true
}

// Mid 返回中间价；单边为空时退化为另一侧最优价。
func (b *Book) Mid() (decimal.Decimal, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	switch {
	case okBid && okAsk:
		return bid.Add(ask).Div(decimal.NewFromInt(2)), true
	case okBid:
		return bid, true
	case okAsk:
		return ask, true
	default:
		return decimal.Zero, false
	}
}

// Levels 返回某一侧从最优价开始的前 depth 个价位，depth<=0 时返回全部。
func (b *Book) Levels(side Side, depth int) []Level {
	l := b.ladder(side)
	n := len(l.levels)
	if depth > 0 && depth < n {
		n = depth
	}
	out := make([]Level, n)
	for i := 0; i < n; i++ {
		out[i] = Level{Price: l.levels[i].price, Volume: l.levels[i].volume}
	}
	return out
}

// Volume 返回某一侧挂单总量。
func (b *Book) Volume(side Side) decimal.Decimal {
	return b.ladder(side).volume()
}

// Match 以市价方式吃单：taker 为 Bid 时消耗卖盘，反之消耗买盘。
// 返回成交列表与未成交余量，余量不会挂入订单簿。
func (b *Book) Match(taker Side, quantity decimal.Decimal, ts time.Time) ([]Trade, decimal.Decimal) {
	return b.match(taker, quantity, nil, ts)
}

// MatchLimit 与 Match 相同，但不会越过限价 limit。
func (b *Book) MatchLimit(taker Side, quantity, limit decimal.Decimal, ts time.Time) ([]Trade, decimal.Decimal) {
	return b.match(taker, quantity, &limit, ts)
}

func (b *Book) match(taker Side, quantity decimal.Decimal, limit *decimal.Decimal, ts time.Time) ([]Trade, decimal.Decimal) {
	remaining := quantity
	if !remaining.IsPositive() {
		return nil, decimal.Zero
	}

	book := b.ladder(taker.Opposite())
	trades := make([]Trade, 0, 4)

	for remaining.IsPositive() && len(book.levels) > 0 {
		lvl := book.levels[0]
		if limit != nil && crosses(taker, lvl.price, *limit) {
			break
		}

		for remaining.IsPositive() && len(lvl.orders) > 0 {
			maker := lvl.orders[0]
			qty := decimal.Min(remaining, maker.quantity)

			trades = append(trades, Trade{
				Price:     lvl.price,
				Quantity:  qty,
				TakerSide: taker,
				MakerID:   maker.id,
				Timestamp: ts,
			})

			remaining = remaining.Sub(qty)
			maker.quantity = maker.quantity.Sub(qty)
			lvl.volume = lvl.volume.Sub(qty)
			if maker.quantity.IsZero() {
				lvl.orders = lvl.orders[1:]
			}
		}

		if len(lvl.orders) == 0 {
			book.levels = book.levels[1:]
		}
	}

	b.tape = append(b.tape, trades...)
	return trades, remaining
}

// crosses 判断价位是否超出吃单限价。
func crosses(taker Side, price, limit decimal.Decimal) bool {
	if taker == Bid {
		return price.GreaterThan(limit)
	}
	return price.LessThan(limit)
}

// Tape 返回该订单簿上发生的全部成交副本。
func (b *Book) Tape() []Trade {
	return append([]Trade(nil), b.tape...)
}

// Clone 深拷贝订单簿，价位、排队订单与成交记录均不共享内存。
func (b *Book) Clone() *Book {
	return &Book{
		Symbol:    b.Symbol,
		Timestamp: b.Timestamp,
		bids:      b.bids.clone(),
		asks:      b.asks.clone(),
		tape:      append([]Trade(nil), b.tape...),
	}
}
