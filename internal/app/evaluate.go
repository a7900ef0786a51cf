package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"optimal-execution/internal/config"
	"optimal-execution/internal/env"
	"optimal-execution/internal/evaluate"
	"optimal-execution/internal/execution"
	"optimal-execution/internal/feed"
	"optimal-execution/internal/monitor"
	"optimal-execution/internal/policy"
	"optimal-execution/internal/schedule"
)

func (a *App) runEvaluate(ctx context.Context, svc *monitor.Service) error {
	envCfg, err := envConfigFrom(a.cfg)
	if err != nil {
		return err
	}

	pol, err := policy.New(a.cfg.Policy, a.cfg.OpenAI, a.cfg.Evaluation.Seed, a.logger)
	if err != nil {
		return err
	}

	newFeed, err := a.feedFactory()
	if err != nil {
		return err
	}

	factory := func(worker int) (env.Env, error) {
		src, err := newFeed(worker)
		if err != nil {
			return nil, err
		}
		return env.New(envCfg, src, nil, a.logger.With(zap.Int("worker", worker)))
	}

	runner, err := evaluate.NewRunner(evaluate.Config{
		Episodes: a.cfg.Evaluation.Episodes,
		Workers:  a.cfg.Evaluation.Workers,
		Seed:     a.cfg.Evaluation.Seed,
		Side:     envCfg.Side,
		Quantity: envCfg.Quantity,
	}, factory, pol, a.logger)
	if err != nil {
		return err
	}
	runner.OnEpisode = func(res evaluate.EpisodeResult) {
		a.metrics.ObserveEpisode(res)
		svc.RecordEpisode(ctx, res)
	}

	report, err := runner.Run(ctx)
	if err != nil {
		a.metrics.ObserveError("evaluate")
		svc.RecordError(ctx, "评估失败", err, map[string]interface{}{"policy": pol.Name()})
		return fmt.Errorf("app: 评估失败: %w", err)
	}

	a.metrics.ObserveSummary(pol.Name(), report.Summary)
	svc.RecordEvaluation(ctx, pol.Name(), report.Summary)
	a.logger.Info("评估结果",
		zap.String("policy", pol.Name()),
		zap.Int("episodes", report.Summary.Episodes),
		zap.Float64("outperformance", report.Summary.Outperformance),
		zap.Float64("upside_median", report.Summary.UpsideMedian),
		zap.Float64("downside_median", report.Summary.DownsideMedian),
		zap.Float64("reward_mean", report.Summary.RewardMean),
		zap.Float64("reward_std", report.Summary.RewardStd),
	)
	return nil
}

// feedFactory 按 feed.source 为每个 worker 构建独立数据源。
func (a *App) feedFactory() (func(worker int) (feed.Feed, error), error) {
	switch a.cfg.Feed.Source {
	case "synthetic":
		syn := syntheticConfigFrom(a.cfg.Feed)
		return func(int) (feed.Feed, error) {
			return feed.NewSyntheticFeed(syn)
		}, nil
	case "replay":
		snapshots, err := feed.NewSnapshotStore(a.store)
		if err != nil {
			return nil, err
		}
		return func(worker int) (feed.Feed, error) {
			return feed.NewReplayFeed(snapshots, a.cfg.Feed.Symbol, a.cfg.Evaluation.Seed+int64(worker), a.logger), nil
		}, nil
	default:
		return nil, fmt.Errorf("app: 不支持的数据源 %q", a.cfg.Feed.Source)
	}
}

func syntheticConfigFrom(cfg config.FeedConfig) feed.SyntheticConfig {
	s := cfg.Synthetic
	return feed.SyntheticConfig{
		Symbol:      cfg.Symbol,
		Start:       s.Start,
		Interval:    s.Interval,
		BestBid:     decimal.NewFromFloat(s.BestBid),
		BestAsk:     decimal.NewFromFloat(s.BestAsk),
		Levels:      s.Levels,
		PriceTick:   decimal.NewFromFloat(s.PriceTick),
		LevelVolume: decimal.NewFromFloat(s.LevelVolume),
		Drift:       decimal.NewFromFloat(s.Drift),
	}
}

// envConfigFrom 将配置文件映射为环境参数。
func envConfigFrom(cfg *config.Config) (env.Config, error) {
	side, err := execution.ParseSide(cfg.Simulation.Direction)
	if err != nil {
		return env.Config{}, err
	}
	sim := cfg.Simulation
	return env.Config{
		Side:            side,
		Quantity:        decimal.NewFromFloat(sim.Quantity),
		MinSteps:        sim.MinSteps,
		MaxSteps:        sim.MaxSteps,
		TickInterval:    sim.TickInterval,
		BucketSize:      sim.BucketSize,
		Placement:       sim.Placement,
		RandomPlacement: sim.RandomPlacement,
		Curve:           volumeCurve(sim.VolumeProfile),
		Remainder:       schedule.RemainderPolicy(strings.ToLower(sim.Remainder)),
		Anchor:          schedule.Anchor(strings.ToLower(sim.Anchor)),
		VolumePrecision: sim.VolumePrecision,
		PenaltyDepth:    sim.PenaltyDepth,
		MaxActionScale:  sim.MaxActionScale,
		LOBDepth:        cfg.Observation.LOBDepth,
		History:         cfg.Observation.NrOfLOBs,
		Normalize:       cfg.Observation.Normalize,
		Seed:            cfg.Evaluation.Seed,
	}, nil
}

// volumeCurve 将配置中的成交量曲线转为调度权重；未配置时返回 nil，即均匀分配。
func volumeCurve(profile []float64) schedule.Curve {
	if len(profile) == 0 {
		return nil
	}
	weights := make([]decimal.Decimal, 0, len(profile))
	for _, w := range profile {
		weights = append(weights, decimal.NewFromFloat(w))
	}
	return schedule.ProfileCurve(weights...)
}
