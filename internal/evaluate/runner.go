package evaluate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"optimal-execution/internal/env"
	"optimal-execution/internal/ledger"
)

// fallbackAction 在策略出错时使用，等价于复刻基准。
const fallbackAction env.Action = 0.5

// EpisodeResult 为单个回合的评估结果。
type EpisodeResult struct {
	ID              string
	Index           int
	Worker          int
	Policy          string
	Steps           int
	Reward          float64
	BenchmarkVWAP   decimal.Decimal
	AlternativeVWAP decimal.Decimal
	// VWAPDefined 为 false 时两条路径至少有一条没有成交，VWAP 相关字段无意义。
	VWAPDefined bool
	// VWAPDiff 为按交易方向调整后的相对差：正值表示替代路径更优。
	VWAPDiff      float64
	AltRemaining  decimal.Decimal
	ExecutedRatio float64
	Shortfall     map[ledger.PathID]decimal.Decimal
}

// Report 汇总评估结果。
type Report struct {
	Results []EpisodeResult
	Summary Summary
}

// Runner 在多个 worker 上并行运行独立回合。
type Runner struct {
	cfg    Config
	newEnv EnvFactory
	policy Policy
	logger *zap.Logger

	// OnEpisode 在每个回合结束后调用，调用之间互斥。
	OnEpisode func(EpisodeResult)
	mu        sync.Mutex
}

// NewRunner 构建评估器。
func NewRunner(cfg Config, newEnv EnvFactory, policy Policy, logger *zap.Logger) (*Runner, error) {
	if newEnv == nil {
		return nil, errors.New("evaluate: env factory 不能为空")
	}
	if policy == nil {
		return nil, errors.New("evaluate: policy 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:    cfg.normalize(),
		newEnv: newEnv,
		policy: policy,
		logger: logger,
	}, nil
}

// Run 执行全部回合，结果按回合序号排序。任一回合失败即取消其余 worker。
func (r *Runner) Run(ctx context.Context) (Report, error) {
	jobs := make(chan int)
	results := make([]EpisodeResult, 0, r.cfg.Episodes)
	var resMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for i := 0; i < r.cfg.Episodes; i++ {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < r.cfg.Workers; w++ {
		worker := w
		g.Go(func() error {
			e, err := r.newEnv(worker)
			if err != nil {
				return fmt.Errorf("evaluate: worker %d 构建环境失败: %w", worker, err)
			}
			for idx := range jobs {
				res, err := r.episode(gctx, e, worker, idx)
				if err != nil {
					return fmt.Errorf("evaluate: 回合 %d 失败: %w", idx, err)
				}
				resMu.Lock()
				results = append(results, res)
				resMu.Unlock()
				r.notify(res)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	summary := Summarize(results)
	r.logger.Info("评估完成",
		zap.String("policy", r.policy.Name()),
		zap.Int("episodes", summary.Episodes),
		zap.Int("undefined_vwap", summary.Undefined),
		zap.Float64("outperformance", summary.Outperformance),
		zap.Float64("reward_mean", summary.RewardMean),
	)
	return Report{Results: results, Summary: summary}, nil
}

func (r *Runner) notify(res EpisodeResult) {
	if r.OnEpisode == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.OnEpisode(res)
}

func (r *Runner) episode(ctx context.Context, e env.Env, worker, idx int) (EpisodeResult, error) {
	e.Seed(r.cfg.Seed + int64(idx))
	obs, err := e.Reset(ctx)
	if err != nil {
		return EpisodeResult{}, err
	}

	steps := 0
	for {
		if err := ctx.Err(); err != nil {
			return EpisodeResult{}, err
		}

		action, err := r.policy.Act(ctx, obs)
		if err != nil {
			r.logger.Warn("获取动作失败，使用基准比例",
				zap.Int("episode", idx),
				zap.Int("step", steps),
				zap.Error(err),
			)
			action = fallbackAction
		}

		res, err := e.Step(ctx, action)
		if err != nil {
			return EpisodeResult{}, err
		}
		steps++
		if res.Done {
			out := r.result(res.Info, worker, idx, steps)
			r.logger.Debug("回合结束",
				zap.String("id", out.ID),
				zap.Int("episode", idx),
				zap.Float64("reward", out.Reward),
				zap.Float64("vwap_diff", out.VWAPDiff),
			)
			return out, nil
		}
		obs = res.Observation
	}
}

func (r *Runner) result(info env.Info, worker, idx, steps int) EpisodeResult {
	out := EpisodeResult{
		ID:           uuid.NewString(),
		Index:        idx,
		Worker:       worker,
		Policy:       r.policy.Name(),
		Steps:        steps,
		Reward:       info.EpisodeReward,
		AltRemaining: info.AltRemaining,
		Shortfall:    info.Shortfall,
	}

	if r.cfg.Quantity.IsPositive() {
		executed := r.cfg.Quantity.Sub(info.AltRemaining)
		out.ExecutedRatio = executed.Div(r.cfg.Quantity).InexactFloat64()
	}

	bmk, okBmk := info.VWAP[ledger.Benchmark]
	alt, okAlt := info.VWAP[ledger.Alternative]
	if okBmk && okAlt && bmk.IsPositive() {
		out.VWAPDefined = true
		out.BenchmarkVWAP = bmk
		out.AlternativeVWAP = alt
		dir := decimal.NewFromInt(int64(r.cfg.Side.Direction()))
		out.VWAPDiff = bmk.Sub(alt).Div(bmk).Mul(dir).InexactFloat64()
	}
	return out
}
