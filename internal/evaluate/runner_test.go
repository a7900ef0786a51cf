package evaluate

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optimal-execution/internal/env"
	"optimal-execution/internal/execution"
	"optimal-execution/internal/feed"
	"optimal-execution/internal/ledger"
)

// scriptedEnv 每个回合固定步数，VWAP 由种子决定。
type scriptedEnv struct {
	steps   int
	t       int
	seed    int64
	actions []env.Action
}

func (e *scriptedEnv) Seed(seed int64) []int64 {
	e.seed = seed
	return []int64{seed}
}

func (e *scriptedEnv) Reset(context.Context) (env.Observation, error) {
	e.t = 0
	return env.Observation{0, 0}, nil
}

func (e *scriptedEnv) Step(_ context.Context, a env.Action) (env.StepResult, error) {
	e.actions = append(e.actions, a)
	e.t++
	if e.t < e.steps {
		return env.StepResult{Observation: env.Observation{0, 0}}, nil
	}
	return env.StepResult{
		Done: true,
		Info: env.Info{
			EpisodeReward: float64(e.seed),
			AltRemaining:  decimal.NewFromInt(2),
			VWAP: map[ledger.PathID]decimal.Decimal{
				ledger.Benchmark:   decimal.NewFromInt(100),
				ledger.Alternative: decimal.NewFromInt(100 - e.seed),
			},
		},
	}, nil
}

type stubPolicy struct {
	action env.Action
	err    error
}

func (p stubPolicy) Name() string { return "stub" }

func (p stubPolicy) Act(context.Context, env.Observation) (env.Action, error) {
	return p.action, p.err
}

func TestRunner_ParallelResultsOrdered(t *testing.T) {
	var mu sync.Mutex
	built := map[int]bool{}
	factory := func(worker int) (env.Env, error) {
		mu.Lock()
		defer mu.Unlock()
		built[worker] = true
		return &scriptedEnv{steps: 4}, nil
	}

	r, err := NewRunner(Config{Episodes: 7, Workers: 3, Seed: -3, Quantity: decimal.NewFromInt(10)}, factory, stubPolicy{action: 0.7}, nil)
	require.NoError(t, err)

	var seen []int
	r.OnEpisode = func(res EpisodeResult) { seen = append(seen, res.Index) }

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 7)
	assert.Len(t, seen, 7)
	assert.Len(t, built, 3)

	ids := map[string]bool{}
	for i, res := range report.Results {
		assert.Equal(t, i, res.Index)
		assert.Equal(t, 4, res.Steps)
		assert.Equal(t, "stub", res.Policy)
		assert.Equal(t, float64(int64(i)-3), res.Reward, "episode seed is Seed+index")
		assert.InDelta(t, 0.8, res.ExecutedRatio, 1e-12)
		assert.True(t, res.VWAPDefined)
		ids[res.ID] = true
	}
	assert.Len(t, ids, 7)

	// 种子 -3..3：alt VWAP = 100 - seed，买入时 seed<0 跑赢。
	assert.Equal(t, 7, report.Summary.Episodes)
	assert.InDelta(t, 3.0/7, report.Summary.Outperformance, 1e-12)
	assert.InDelta(t, 0.02, report.Summary.UpsideMedian, 1e-12)
	assert.InDelta(t, -0.015, report.Summary.DownsideMedian, 1e-12)
}

func TestRunner_PolicyErrorFallsBack(t *testing.T) {
	e := &scriptedEnv{steps: 3}
	r, err := NewRunner(Config{Episodes: 1}, func(int) (env.Env, error) { return e, nil }, stubPolicy{err: errors.New("rate limited")}, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []env.Action{0.5, 0.5, 0.5}, e.actions)
}

func TestRunner_FactoryError(t *testing.T) {
	r, err := NewRunner(Config{Episodes: 4, Workers: 2}, func(worker int) (env.Env, error) {
		if worker == 1 {
			return nil, errors.New("no feed")
		}
		return &scriptedEnv{steps: 1}, nil
	}, stubPolicy{}, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	assert.ErrorContains(t, err, "no feed")
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := NewRunner(Config{Episodes: 3}, func(int) (env.Env, error) { return &scriptedEnv{steps: 2}, nil }, stubPolicy{}, nil)
	require.NoError(t, err)
	_, err = r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner(Config{}, nil, stubPolicy{}, nil)
	assert.Error(t, err)
	_, err = NewRunner(Config{}, func(int) (env.Env, error) { return nil, nil }, nil, nil)
	assert.Error(t, err)
}

func TestRunner_WithSimulator(t *testing.T) {
	factory := func(int) (env.Env, error) {
		f, err := feed.NewSyntheticFeed(feed.SyntheticConfig{
			Symbol:      "TEST",
			Start:       time.Date(2019, 4, 1, 9, 0, 0, 0, time.UTC),
			Interval:    time.Second,
			BestBid:     decimal.RequireFromString("29.9"),
			BestAsk:     decimal.RequireFromString("30"),
			Levels:      20,
			PriceTick:   decimal.RequireFromString("0.1"),
			LevelVolume: decimal.NewFromInt(10),
			Drift:       decimal.RequireFromString("0.01"),
		})
		if err != nil {
			return nil, err
		}
		cfg := env.DefaultConfig()
		cfg.MinSteps, cfg.MaxSteps = 20, 30
		return env.New(cfg, f, nil, nil)
	}

	r, err := NewRunner(Config{
		Episodes: 6,
		Workers:  2,
		Seed:     42,
		Side:     execution.OrderSideBuy,
		Quantity: decimal.NewFromInt(25),
	}, factory, stubPolicy{action: 0.5}, nil)
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 6)
	for _, res := range report.Results {
		assert.GreaterOrEqual(t, res.Steps, 20)
		assert.LessOrEqual(t, res.Steps, 30)
		require.True(t, res.VWAPDefined)
		assert.True(t, res.BenchmarkVWAP.Equal(res.AlternativeVWAP), "scale 0.5 replicates the benchmark")
		assert.Zero(t, res.VWAPDiff)
	}
	assert.Zero(t, report.Summary.Outperformance)
	assert.Zero(t, report.Summary.Undefined)
}

func TestSummarize(t *testing.T) {
	results := []EpisodeResult{
		{Reward: 1, VWAPDefined: true, VWAPDiff: 0.01, ExecutedRatio: 1},
		{Reward: 3, VWAPDefined: true, VWAPDiff: 0.03, ExecutedRatio: 1},
		{Reward: -1, VWAPDefined: true, VWAPDiff: -0.02, ExecutedRatio: 0.5},
		{Reward: 0, ExecutedRatio: 0},
	}
	s := Summarize(results)
	assert.Equal(t, 4, s.Episodes)
	assert.Equal(t, 1, s.Undefined)
	assert.InDelta(t, 2.0/3, s.Outperformance, 1e-12)
	assert.InDelta(t, 0.02, s.UpsideMedian, 1e-12)
	assert.InDelta(t, -0.02, s.DownsideMedian, 1e-12)
	assert.InDelta(t, 0.02/3, s.VWAPDiffMean, 1e-9)
	assert.InDelta(t, 0.75, s.RewardMean, 1e-9)
	assert.InDelta(t, math.Sqrt(2.1875), s.RewardStd, 1e-9)
	assert.InDelta(t, 0.625, s.ExecutedMean, 1e-9)
}

func TestSummarize_Degenerate(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))

	s := Summarize([]EpisodeResult{{Reward: 2}})
	assert.Equal(t, 2.0, s.RewardMean)
	assert.Zero(t, s.RewardStd)
	assert.Equal(t, 1, s.Undefined)
	assert.Zero(t, s.Outperformance)
}
