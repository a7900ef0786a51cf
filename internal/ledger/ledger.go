package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

var (
	// ErrNoExecutedVolume 路径没有任何成交量，VWAP 无定义。
	ErrNoExecutedVolume = errors.New("ledger: 路径无成交量")
	// ErrUnknownPath 路径未注册。
	ErrUnknownPath = errors.New("ledger: 未知路径")
)

// PathID 标识一条执行路径。
type PathID string

const (
	Benchmark   PathID = "benchmark"
	Alternative PathID = "alternative"
)

// Entry 为某条路径在一个步长内的成交记录。
type Entry struct {
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Arrival   decimal.Decimal // 下单前中间价
	Timestamp time.Time
}

// Series 为一条路径的三列等长序列。
type Series struct {
	Prices     []decimal.Decimal
	Quantities []decimal.Decimal
	Arrivals   []decimal.Decimal
	Timestamps []time.Time
}

// Len 返回序列长度。
func (s Series) Len() int {
	return len(s.Prices)
}

type series struct {
	prices     []decimal.Decimal
	quantities []decimal.Decimal
	arrivals   []decimal.Decimal
	timestamps []time.Time
}

// Ledger 记录各路径的成交序列，只追加。
// Ledger 不是并发安全的，由单个仿真实例独占。
type Ledger struct {
	paths map[PathID]*series
	order []PathID
}

// New 创建账本并注册路径。
func New(paths ...PathID) *Ledger {
	l := &Ledger{}
	l.Reset(paths...)
	return l
}

// Reset 清空全部记录并重新注册路径。
func (l *Ledger) Reset(paths ...PathID) {
	l.paths = make(map[PathID]*series, len(paths))
	l.order = l.order[:0]
	for _, p := range paths {
		if _, ok := l.paths[p]; ok {
			continue
		}
		l.paths[p] = &series{}
		l.order = append(l.order, p)
	}
}

// Paths 返回按注册顺序排列的路径。
func (l *Ledger) Paths() []PathID {
	return append([]PathID(nil), l.order...)
}

// Record 原子追加一条记录：价格、数量、到达价同时写入。
func (l *Ledger) Record(path PathID, e Entry) error {
	s, ok := l.paths[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPath, path)
	}
	s.prices = append(s.prices, e.Price)
	s.quantities = append(s.quantities, e.Quantity)
	s.arrivals = append(s.arrivals, e.Arrival)
	s.timestamps = append(s.timestamps, e.Timestamp)
	return nil
}

// Len 返回路径记录条数，未知路径返回 0。
func (l *Ledger) Len(path PathID) int {
	s, ok := l.paths[path]
	if !ok {
		return 0
	}
	return len(s.prices)
}

// Series 返回路径序列副本。
func (l *Ledger) Series(path PathID) (Series, error) {
	s, ok := l.paths[path]
	if !ok {
		return Series{}, fmt.Errorf("%w: %s", ErrUnknownPath, path)
	}
	return Series{
		Prices:     append([]decimal.Decimal(nil), s.prices...),
		Quantities: append([]decimal.Decimal(nil), s.quantities...),
		Arrivals:   append([]decimal.Decimal(nil), s.arrivals...),
		Timestamps: append([]time.Time(nil), s.timestamps...),
	}, nil
}

// ExecutedVolume 返回路径累计成交量。
func (l *Ledger) ExecutedVolume(path PathID) (decimal.Decimal, error) {
	s, ok := l.paths[path]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownPath, path)
	}
	total := decimal.Zero
	for _, q := range s.quantities {
		total = total.Add(q)
	}
	return total, nil
}

// VWAPOf 计算单条路径的成交量加权均价，成交量为 0 时返回 ErrNoExecutedVolume。
func (l *Ledger) VWAPOf(path PathID) (decimal.Decimal, error) {
	s, ok := l.paths[path]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownPath, path)
	}
	notional := decimal.Zero
	volume := decimal.Zero
	for i := range s.prices {
		notional = notional.Add(s.prices[i].Mul(s.quantities[i]))
		volume = volume.Add(s.quantities[i])
	}
	if volume.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoExecutedVolume, path)
	}
	return notional.Div(volume), nil
}

// VWAP 计算全部路径的 VWAP。无定义的路径不出现在结果中，其错误合并返回。
func (l *Ledger) VWAP() (map[PathID]decimal.Decimal, error) {
	out := make(map[PathID]decimal.Decimal, len(l.order))
	var errs error
	for _, p := range l.order {
		v, err := l.VWAPOf(p)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out[p] = v
	}
	return out, errs
}

// ImplementationShortfall 计算各路径相对到达价的执行差：Σq(p-a) / Σq·a。
// 买入时为正表示成交价劣于到达价。
func (l *Ledger) ImplementationShortfall() (map[PathID]decimal.Decimal, error) {
	out := make(map[PathID]decimal.Decimal, len(l.order))
	var errs error
	for _, p := range l.order {
		s := l.paths[p]
		cost := decimal.Zero
		base := decimal.Zero
		for i := range s.prices {
			if s.quantities[i].IsZero() {
				continue
			}
			cost = cost.Add(s.quantities[i].Mul(s.prices[i].Sub(s.arrivals[i])))
			base = base.Add(s.quantities[i].Mul(s.arrivals[i]))
		}
		if base.IsZero() {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s", ErrNoExecutedVolume, p))
			continue
		}
		out[p] = cost.Div(base)
	}
	return out, errs
}

// Sorted 返回按名称排序的路径，用于稳定输出。
func Sorted(m map[PathID]decimal.Decimal) []PathID {
	keys := make([]PathID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
