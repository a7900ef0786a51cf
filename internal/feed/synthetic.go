package feed

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"optimal-execution/internal/orderbook"
)

// SyntheticConfig 描述一个按固定步长漂移的阶梯订单簿。
type SyntheticConfig struct {
	Symbol      string
	Start       time.Time
	Interval    time.Duration
	BestBid     decimal.Decimal
	BestAsk     decimal.Decimal
	Levels      int
	PriceTick   decimal.Decimal // 相邻价位间距
	LevelVolume decimal.Decimal
	Drift       decimal.Decimal // 每个快照的价格漂移
}

// SyntheticFeed 生成确定性的合成订单簿序列。
type SyntheticFeed struct {
	cfg   SyntheticConfig
	index int
	limit int
}

// NewSyntheticFeed 创建合成数据源。
func NewSyntheticFeed(cfg SyntheticConfig) (*SyntheticFeed, error) {
	switch {
	case cfg.Interval <= 0:
		return nil, errors.New("feed: 合成快照间隔必须为正")
	case cfg.Levels <= 0:
		return nil, errors.New("feed: 合成价位数必须为正")
	case !cfg.BestBid.IsPositive() || !cfg.BestAsk.GreaterThan(cfg.BestBid):
		return nil, errors.New("feed: 合成盘口需满足 0 < bid < ask")
	case !cfg.PriceTick.IsPositive() || !cfg.LevelVolume.IsPositive():
		return nil, errors.New("feed: 合成价位间距与挂单量必须为正")
	}
	return &SyntheticFeed{cfg: cfg}, nil
}

// Reset 从第一份快照重新开始；bufferSize<=0 表示不限长度。
func (f *SyntheticFeed) Reset(_ context.Context, bufferSize int) error {
	f.index = 0
	f.limit = bufferSize
	return nil
}

// Next 生成下一份快照。价格漂移到非正区间时返回 ErrExhausted。
func (f *SyntheticFeed) Next(ctx context.Context) (time.Time, *orderbook.Book, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, nil, err
	}
	if f.limit > 0 && f.index >= f.limit {
		return time.Time{}, nil, ErrExhausted
	}

	snap := f.At(f.index)
	if len(snap.Bids) == 0 {
		return time.Time{}, nil, ErrExhausted
	}
	f.index++

	book, err := snap.Book()
	if err != nil {
		return time.Time{}, nil, err
	}
	return snap.Timestamp, book, nil
}

// At 返回第 i 份快照，价格不为正的价位会被省略。
func (f *SyntheticFeed) At(i int) Snapshot {
	shift := f.cfg.Drift.Mul(decimal.NewFromInt(int64(i)))
	bid := f.cfg.BestBid.Add(shift)
	ask := f.cfg.BestAsk.Add(shift)

	snap := Snapshot{
		Symbol:    f.cfg.Symbol,
		Timestamp: f.cfg.Start.Add(time.Duration(i) * f.cfg.Interval),
		Bids:      make([]orderbook.Level, 0, f.cfg.Levels),
		Asks:      make([]orderbook.Level, 0, f.cfg.Levels),
	}
	for lvl := 0; lvl < f.cfg.Levels; lvl++ {
		offset := f.cfg.PriceTick.Mul(decimal.NewFromInt(int64(lvl)))
		if p := bid.Sub(offset); p.IsPositive() {
			snap.Bids = append(snap.Bids, orderbook.Level{Price: p, Volume: f.cfg.LevelVolume})
		}
		if p := ask.Add(offset); p.IsPositive() {
			snap.Asks = append(snap.Asks, orderbook.Level{Price: p, Volume: f.cfg.LevelVolume})
		}
	}
	return snap
}
