package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"optimal-execution/internal/config"
	"optimal-execution/internal/exchange"
	"optimal-execution/internal/feed"
	"optimal-execution/internal/monitor"
	"optimal-execution/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *store.Store
	metrics *monitor.Metrics

	// newSource 构建采集模式的订单簿来源，默认连接交易所。
	newSource func() (feed.BookSource, error)
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		metrics: monitor.NewMetrics(),
	}
	a.newSource = func() (feed.BookSource, error) {
		client, err := exchange.NewClient(cfg.Exchange, cfg.Exchange.Market, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return a
}

// Run 按 app.mode 运行评估或采集。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("仿真系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("mode", a.cfg.App.Mode),
		zap.String("feed", a.cfg.Feed.Source),
		zap.String("policy", a.cfg.Policy.Kind),
	)

	svc, err := monitor.NewService(a.store, a.logger)
	if err != nil {
		return err
	}

	if a.cfg.Monitor.Enabled {
		srv, err := monitor.NewServer(a.cfg.Monitor.Addr, svc, a.metrics, a.logger)
		if err != nil {
			return err
		}
		go func() {
			if err := srv.Start(ctx); err != nil {
				a.logger.Error("监控服务异常", zap.Error(err))
			}
		}()
	}

	switch a.cfg.App.Mode {
	case config.ModeEvaluate:
		if err := a.runEvaluate(ctx, svc); err != nil {
			return err
		}
		if a.cfg.Monitor.Enabled {
			a.logger.Info("评估完成，监控接口保持运行直到退出")
			<-ctx.Done()
		}
		return nil
	case config.ModeCapture:
		return a.runCapture(ctx, svc)
	default:
		return fmt.Errorf("app: 不支持的运行模式 %q", a.cfg.App.Mode)
	}
}

// Metrics 返回进程内的指标集合。
func (a *App) Metrics() *monitor.Metrics {
	return a.metrics
}

func (a *App) runCapture(ctx context.Context, svc *monitor.Service) error {
	source, err := a.newSource()
	if err != nil {
		return fmt.Errorf("app: 初始化行情来源失败: %w", err)
	}
	snapshots, err := feed.NewSnapshotStore(a.store)
	if err != nil {
		return err
	}

	rec, err := feed.NewRecorder(source, snapshots, feed.RecorderConfig{
		Interval:     a.cfg.Capture.Interval,
		Depth:        a.cfg.Capture.Depth,
		MaxSnapshots: a.cfg.Capture.MaxSnapshots,
	}, a.logger)
	if err != nil {
		return err
	}
	rec.OnCapture = func(snap feed.Snapshot) {
		a.metrics.ObserveCapture(snap.Symbol)
		svc.RecordCapture(ctx, snap)
	}
	rec.OnError = func(err error) {
		a.metrics.ObserveError("capture")
		svc.RecordError(ctx, "订单簿采集失败", err, map[string]interface{}{"symbol": source.Symbol()})
	}

	n, err := rec.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: 采集异常退出: %w", err)
	}
	a.logger.Info("采集结束", zap.Int("captured", n))
	return nil
}
