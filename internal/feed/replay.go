package feed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"optimal-execution/internal/orderbook"
)

// ReplayFeed 从 SnapshotStore 回放历史快照，每次 Reset 随机选择一个连续窗口。
type ReplayFeed struct {
	store  *SnapshotStore
	symbol string
	rng    *rand.Rand
	logger *zap.Logger

	window []Snapshot
	index  int
}

// NewReplayFeed 创建回放数据源，窗口起点由 seed 决定。
func NewReplayFeed(store *SnapshotStore, symbol string, seed int64, logger *zap.Logger) *ReplayFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplayFeed{
		store:  store,
		symbol: symbol,
		rng:    rand.New(rand.NewSource(seed)),
		logger: logger,
	}
}

// Seed 重置窗口选择的随机源。
func (f *ReplayFeed) Seed(seed int64) {
	f.rng = rand.New(rand.NewSource(seed))
}

// Reset 随机选取 bufferSize 条连续快照作为新窗口。
func (f *ReplayFeed) Reset(ctx context.Context, bufferSize int) error {
	total, err := f.store.Count(ctx, f.symbol)
	if err != nil {
		return err
	}
	if bufferSize <= 0 {
		bufferSize = total
	}
	if total == 0 || total < bufferSize {
		return fmt.Errorf("feed: %s 快照数量 %d 少于所需 %d", f.symbol, total, bufferSize)
	}

	offset := f.rng.Intn(total - bufferSize + 1)
	window, err := f.store.Load(ctx, f.symbol, offset, bufferSize)
	if err != nil {
		return err
	}

	f.window = window
	f.index = 0
	f.logger.Debug("已加载回放窗口",
		zap.String("symbol", f.symbol),
		zap.Int("offset", offset),
		zap.Int("size", len(window)),
	)
	return nil
}

// Next 返回窗口中的下一份快照。
func (f *ReplayFeed) Next(ctx context.Context) (time.Time, *orderbook.Book, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, nil, err
	}
	if f.index >= len(f.window) {
		return time.Time{}, nil, ErrExhausted
	}
	snap := f.window[f.index]
	f.index++
	snap.Bids = levelsOf(snap.Bids)
	snap.Asks = levelsOf(snap.Asks)
	book, err := snap.Book()
	if err != nil {
		return time.Time{}, nil, err
	}
	return snap.Timestamp, book, nil
}
