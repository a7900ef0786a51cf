package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"optimal-execution/internal/exchange"
	"optimal-execution/internal/orderbook"
)

// BookSource 为实时订单簿来源。
type BookSource interface {
	Symbol() string
	FetchOrderBook(ctx context.Context, depth int64) (exchange.OrderBookSnapshot, error)
}

var _ BookSource = (*exchange.Client)(nil)

// RecorderConfig 控制采集节奏。
type RecorderConfig struct {
	Interval     time.Duration
	Depth        int
	MaxSnapshots int // 0 表示不限
}

// Recorder 定时拉取订单簿并写入 SnapshotStore。
type Recorder struct {
	source BookSource
	store  *SnapshotStore
	cfg    RecorderConfig
	logger *zap.Logger

	// OnCapture 在每次成功写入后调用。
	OnCapture func(Snapshot)
	// OnError 在单次采集失败时调用，采集循环不会因此退出。
	OnError func(error)
}

// NewRecorder 创建采集器。
func NewRecorder(source BookSource, store *SnapshotStore, cfg RecorderConfig, logger *zap.Logger) (*Recorder, error) {
	if source == nil || store == nil {
		return nil, errors.New("feed: 采集器依赖不能为空")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("feed: 采集间隔必须为正")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{source: source, store: store, cfg: cfg, logger: logger}, nil
}

// CaptureOnce 拉取并保存一份快照。
func (r *Recorder) CaptureOnce(ctx context.Context) (Snapshot, error) {
	raw, err := r.source.FetchOrderBook(ctx, int64(r.cfg.Depth))
	if err != nil {
		return Snapshot{}, fmt.Errorf("feed: 拉取订单簿失败: %w", err)
	}

	snap := FromExchange(raw)
	if len(snap.Bids) == 0 && len(snap.Asks) == 0 {
		return Snapshot{}, errors.New("feed: 订单簿为空")
	}
	if err := r.store.Save(ctx, snap); err != nil {
		return Snapshot{}, err
	}
	if r.OnCapture != nil {
		r.OnCapture(snap)
	}
	return snap, nil
}

// Run 按间隔采集，直到 ctx 结束或达到 MaxSnapshots。返回成功采集的数量。
func (r *Recorder) Run(ctx context.Context) (int, error) {
	captured := 0
	tick := func() bool {
		if _, err := r.CaptureOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return false
			}
			r.logger.Warn("订单簿采集失败", zap.String("symbol", r.source.Symbol()), zap.Error(err))
			if r.OnError != nil {
				r.OnError(err)
			}
			return true
		}
		captured++
		return r.cfg.MaxSnapshots <= 0 || captured < r.cfg.MaxSnapshots
	}

	if !tick() {
		return captured, nil
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("订单簿采集已停止",
				zap.String("symbol", r.source.Symbol()),
				zap.Int("captured", captured),
			)
			return captured, nil
		case <-ticker.C:
			if !tick() {
				return captured, nil
			}
		}
	}
}

// FromExchange 将交易所快照转为十进制档位。
func FromExchange(raw exchange.OrderBookSnapshot) Snapshot {
	convert := func(levels []exchange.OrderBookLevel) []orderbook.Level {
		out := make([]orderbook.Level, 0, len(levels))
		for _, lvl := range levels {
			out = append(out, orderbook.Level{
				Price:  decimal.NewFromFloat(lvl.Price),
				Volume: decimal.NewFromFloat(lvl.Amount),
			})
		}
		return levelsOf(out)
	}
	return Snapshot{
		Symbol:    raw.Symbol,
		Timestamp: raw.Timestamp,
		Bids:      convert(raw.Bids),
		Asks:      convert(raw.Asks),
	}
}
