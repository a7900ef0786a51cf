package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optimal-execution/internal/config"
	"optimal-execution/internal/exchange"
	"optimal-execution/internal/execution"
	"optimal-execution/internal/feed"
	"optimal-execution/internal/monitor"
	"optimal-execution/internal/schedule"
	"optimal-execution/internal/store"
)

var start = time.Date(2019, 4, 1, 9, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Environment: "test", Mode: config.ModeEvaluate},
		Simulation: config.SimulationConfig{
			Direction: "Buy", Quantity: 25, MinSteps: 20, MaxSteps: 20,
			TickInterval: time.Second, BucketSize: 10 * time.Second, Placement: []float64{0.5},
			Remainder: "LAST", Anchor: "start", VolumePrecision: 2, PenaltyDepth: 5, MaxActionScale: 1,
		},
		Observation: config.ObservationConfig{LOBDepth: 5, NrOfLOBs: 2, Normalize: true},
		Feed: config.FeedConfig{
			Source: "synthetic",
			Symbol: "TEST",
			Synthetic: config.SyntheticFeedConfig{
				Start: start, Interval: time.Second, BestBid: 29.9, BestAsk: 30,
				Levels: 10, PriceTick: 0.1, LevelVolume: 5, Drift: -0.1,
			},
		},
		Evaluation: config.EvaluationConfig{Episodes: 3, Workers: 2, Seed: 7},
		Policy:     config.PolicyConfig{Kind: "constant", Scale: 0.5},
		Capture:    config.CaptureConfig{Interval: 5 * time.Millisecond, Depth: 5, MaxSnapshots: 2},
		Database:   config.DatabaseConfig{InMemory: true},
		Logging:    config.LoggingConfig{Level: "info", Encoding: "console"},
	}
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func events(t *testing.T, st *store.Store, typ monitor.EventType) []monitor.Event {
	t.Helper()
	svc, err := monitor.NewService(st, nil)
	require.NoError(t, err)
	evs, err := svc.ListEvents(context.Background(), typ, 100)
	require.NoError(t, err)
	return evs
}

func TestEnvConfigFrom(t *testing.T) {
	cfg := testConfig()
	got, err := envConfigFrom(cfg)
	require.NoError(t, err)

	assert.Equal(t, execution.OrderSideBuy, got.Side)
	assert.True(t, got.Quantity.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, schedule.RemainderLast, got.Remainder)
	assert.Equal(t, schedule.AnchorStart, got.Anchor)
	assert.Equal(t, 2, got.History)
	assert.Equal(t, int64(7), got.Seed)
	assert.Nil(t, got.Curve)
	require.NoError(t, got.Validate())

	cfg.Simulation.VolumePrecision = 0
	cfg.Simulation.VolumeProfile = []float64{1, 4}
	got, err = envConfigFrom(cfg)
	require.NoError(t, err)
	require.NotNil(t, got.Curve)
	sched, err := schedule.Build(schedule.Config{
		Total:      got.Quantity,
		Start:      start,
		End:        start.Add(20 * time.Second),
		BucketSize: got.BucketSize,
		Curve:      got.Curve,
		Remainder:  got.Remainder,
	})
	require.NoError(t, err)
	buckets := sched.Buckets()
	require.Len(t, buckets, 2)
	assert.True(t, buckets[0].Target.Equal(decimal.NewFromInt(5)))
	assert.True(t, buckets[1].Target.Equal(decimal.NewFromInt(20)))

	cfg.Simulation.Direction = "hold"
	_, err = envConfigFrom(cfg)
	assert.ErrorIs(t, err, execution.ErrInvalidOrder)
}

func TestRun_EvaluateSynthetic(t *testing.T) {
	st := newStore(t)
	a := New(testConfig(), nil, st)

	require.NoError(t, a.Run(context.Background()))

	assert.Len(t, events(t, st, monitor.EventEpisode), 3)
	assert.Len(t, events(t, st, monitor.EventEvaluation), 1)
	assert.Empty(t, events(t, st, monitor.EventError))
	assert.Equal(t, 3.0, testutil.ToFloat64(a.Metrics().episodes.WithLabelValues("constant")))
}

func TestRun_EvaluateProfileWithEndPlacement(t *testing.T) {
	cfg := testConfig()
	cfg.Simulation.Placement = []float64{1}
	cfg.Simulation.VolumeProfile = []float64{1, 3}

	st := newStore(t)
	a := New(cfg, nil, st)
	require.NoError(t, a.Run(context.Background()))

	assert.Len(t, events(t, st, monitor.EventEpisode), 3)
	assert.Empty(t, events(t, st, monitor.EventError))
}

func TestRun_EvaluateReplay(t *testing.T) {
	st := newStore(t)
	snapshots, err := feed.NewSnapshotStore(st)
	require.NoError(t, err)

	ctx := context.Background()
	syn, err := feed.NewSyntheticFeed(syntheticConfigFrom(testConfig().Feed))
	require.NoError(t, err)
	for i := 0; i < 40; i++ {
		require.NoError(t, snapshots.Save(ctx, syn.At(i)))
	}

	cfg := testConfig()
	cfg.Feed.Source = "replay"
	cfg.Policy = config.PolicyConfig{Kind: "random"}
	require.NoError(t, New(cfg, nil, st).Run(ctx))
	assert.Len(t, events(t, st, monitor.EventEpisode), 3)
}

func TestRun_EvaluateReplayWithoutData(t *testing.T) {
	st := newStore(t)
	cfg := testConfig()
	cfg.Feed.Source = "replay"

	err := New(cfg, nil, st).Run(context.Background())
	require.Error(t, err)
	assert.Len(t, events(t, st, monitor.EventError), 1)
}

type fakeSource struct {
	mu    sync.Mutex
	calls int
	fail  int
}

func (f *fakeSource) Symbol() string { return "BTC/USDT" }

func (f *fakeSource) FetchOrderBook(context.Context, int64) (exchange.OrderBookSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fail {
		return exchange.OrderBookSnapshot{}, errors.New("exchange busy")
	}
	return exchange.OrderBookSnapshot{
		Symbol:    "BTC/USDT",
		Timestamp: start.Add(time.Duration(f.calls) * time.Second),
		Bids:      []exchange.OrderBookLevel{{Price: 100, Amount: 1}},
		Asks:      []exchange.OrderBookLevel{{Price: 101, Amount: 2}},
	}, nil
}

func TestRun_Capture(t *testing.T) {
	st := newStore(t)
	cfg := testConfig()
	cfg.App.Mode = config.ModeCapture

	a := New(cfg, nil, st)
	src := &fakeSource{fail: 1}
	a.newSource = func() (feed.BookSource, error) { return src, nil }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Run(ctx))

	snapshots, err := feed.NewSnapshotStore(st)
	require.NoError(t, err)
	n, err := snapshots.Count(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Len(t, events(t, st, monitor.EventCapture), 2)
	assert.Len(t, events(t, st, monitor.EventError), 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(a.Metrics().captured.WithLabelValues("BTC/USDT")))
}

func TestRun_CaptureSourceError(t *testing.T) {
	cfg := testConfig()
	cfg.App.Mode = config.ModeCapture
	a := New(cfg, nil, newStore(t))
	a.newSource = func() (feed.BookSource, error) { return nil, errors.New("no credentials") }

	err := a.Run(context.Background())
	assert.ErrorContains(t, err, "no credentials")
}

func TestRun_UnknownMode(t *testing.T) {
	cfg := testConfig()
	cfg.App.Mode = "train"
	assert.Error(t, New(cfg, nil, newStore(t)).Run(context.Background()))
}

func TestSyntheticConfigFrom(t *testing.T) {
	got := syntheticConfigFrom(testConfig().Feed)
	assert.Equal(t, "TEST", got.Symbol)
	assert.True(t, got.Drift.Equal(decimal.RequireFromString("-0.1")))
	assert.Equal(t, 10, got.Levels)

}
