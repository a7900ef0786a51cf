package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"optimal-execution/internal/orderbook"
)

// ErrExhausted 当前窗口的快照已全部读完。
var ErrExhausted = errors.New("feed: 快照已耗尽")

// Feed 按时间顺序提供订单簿快照。每次 Reset 开始一段新的有限序列。
// Next 返回的订单簿归调用方所有。
type Feed interface {
	Reset(ctx context.Context, bufferSize int) error
	Next(ctx context.Context) (time.Time, *orderbook.Book, error)
}

// Snapshot 为一份按价位聚合的订单簿快照。
type Snapshot struct {
	Symbol    string            `json:"symbol"`
	Timestamp time.Time         `json:"timestamp"`
	Bids      []orderbook.Level `json:"bids"`
	Asks      []orderbook.Level `json:"asks"`
}

// Book 以快照构建一份新的订单簿。
func (s Snapshot) Book() (*orderbook.Book, error) {
	book, err := orderbook.FromLevels(s.Symbol, s.Timestamp, s.Bids, s.Asks)
	if err != nil {
		return nil, fmt.Errorf("feed: 构建订单簿失败: %w", err)
	}
	return book, nil
}

// SliceFeed 以固定序列提供快照，Reset 时回到开头。
type SliceFeed struct {
	snapshots []Snapshot
	index     int
	limit     int
}

// NewSliceFeed 创建固定序列数据源。
func NewSliceFeed(snaps []Snapshot) *SliceFeed {
	return &SliceFeed{snapshots: append([]Snapshot(nil), snaps...), limit: len(snaps)}
}

// Reset 回到序列开头，bufferSize>0 时限制本段最多读取的条数。
func (f *SliceFeed) Reset(_ context.Context, bufferSize int) error {
	if bufferSize > len(f.snapshots) {
		return fmt.Errorf("feed: 快照数量 %d 少于所需 %d", len(f.snapshots), bufferSize)
	}
	f.index = 0
	f.limit = len(f.snapshots)
	if bufferSize > 0 {
		f.limit = bufferSize
	}
	return nil
}

// Next 返回下一份快照。
func (f *SliceFeed) Next(ctx context.Context) (time.Time, *orderbook.Book, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, nil, err
	}
	if f.index >= f.limit {
		return time.Time{}, nil, ErrExhausted
	}
	snap := f.snapshots[f.index]
	f.index++
	book, err := snap.Book()
	if err != nil {
		return time.Time{}, nil, err
	}
	return snap.Timestamp, book, nil
}
