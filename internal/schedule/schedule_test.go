package schedule

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optimal-execution/internal/execution"
)

var day = time.Date(2019, 4, 1, 9, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func sumTargets(buckets []Bucket) decimal.Decimal {
	total := decimal.Zero
	for _, b := range buckets {
		total = total.Add(b.Target)
	}
	return total
}

func TestBuild_SumsExactlyAndCountsCeil(t *testing.T) {
	cases := []struct {
		name    string
		total   string
		horizon time.Duration
		bucket  time.Duration
		prec    int32
		anchor  Anchor
		count   int
	}{
		{name: "even", total: "25", horizon: time.Minute, bucket: 10 * time.Second, prec: 1, count: 6},
		{name: "short tail", total: "100", horizon: 65 * time.Second, bucket: 10 * time.Second, prec: 2, count: 7},
		{name: "short head", total: "100", horizon: 65 * time.Second, bucket: 10 * time.Second, prec: 2, anchor: AnchorEnd, count: 7},
		{name: "integer units", total: "7", horizon: 30 * time.Second, bucket: 7 * time.Second, prec: 0, count: 5},
		{name: "single bucket", total: "3.3333", horizon: 5 * time.Second, bucket: 10 * time.Second, prec: 4, count: 1},
		{name: "zero volume", total: "0", horizon: time.Minute, bucket: 10 * time.Second, prec: 2, count: 6},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Build(Config{
				Total:      d(tc.total),
				Start:      day,
				End:        day.Add(tc.horizon),
				BucketSize: tc.bucket,
				Precision:  tc.prec,
				Anchor:     tc.anchor,
			})
			require.NoError(t, err)

			buckets := s.Buckets()
			assert.Len(t, buckets, tc.count)
			assert.True(t, sumTargets(buckets).Equal(d(tc.total)), "sum=%s", sumTargets(buckets))

			covered := time.Duration(0)
			for i, b := range buckets {
				assert.False(t, b.Target.IsNegative())
				covered += b.Duration
				if i > 0 {
					assert.Equal(t, buckets[i-1].End(), b.Start, "buckets must be contiguous")
				}
			}
			assert.Equal(t, tc.horizon, covered)
		})
	}
}

func TestBuild_RemainderGoesToFirstBucket(t *testing.T) {
	// 09:00:03 - 09:01:00，按整 10 秒边界切分，首个分桶只有 7 秒。
	s, err := Build(Config{
		Total:      d("25"),
		Start:      day.Add(3 * time.Second),
		End:        day.Add(time.Minute),
		BucketSize: 10 * time.Second,
		Placement:  FixedPlacement(0.5),
		Anchor:     AnchorEnd,
		Precision:  1,
	})
	require.NoError(t, err)

	buckets := s.Buckets()
	require.Len(t, buckets, 6)
	assert.True(t, buckets[0].Target.Equal(d("3")), "first=%s", buckets[0].Target)
	assert.Equal(t, 7*time.Second, buckets[0].Duration)
	for _, b := range buckets[1:] {
		assert.True(t, b.Target.Equal(d("4.4")), "got %s", b.Target)
		assert.Equal(t, day.Add(time.Duration(b.Index)*10*time.Second), b.Start)
	}

	slices := s.Slices()
	require.Len(t, slices, 6)
	assert.Equal(t, day.Add(6500*time.Millisecond), slices[0].At)
	assert.Equal(t, day.Add(15*time.Second), slices[1].At)
}

func TestBuild_RemainderLastPolicy(t *testing.T) {
	s, err := Build(Config{
		Total:      d("25"),
		Start:      day,
		End:        day.Add(time.Minute),
		BucketSize: 10 * time.Second,
		Remainder:  RemainderLast,
		Precision:  1,
	})
	require.NoError(t, err)

	buckets := s.Buckets()
	assert.True(t, buckets[0].Target.Equal(d("4.2")))
	assert.True(t, buckets[5].Target.Equal(d("4")))
}

func TestBuild_NegativeRemainderFallsBackToTruncation(t *testing.T) {
	s, err := Build(Config{
		Total:      d("1.8"),
		Start:      day,
		End:        day.Add(30 * time.Second),
		BucketSize: 10 * time.Second,
		Precision:  0,
	})
	require.NoError(t, err)

	buckets := s.Buckets()
	assert.True(t, buckets[0].Target.Equal(d("1.8")))
	assert.True(t, buckets[1].Target.IsZero())
	assert.True(t, buckets[2].Target.IsZero())
}

func TestBuild_ProfileCurve(t *testing.T) {
	s, err := Build(Config{
		Total:      d("30"),
		Start:      day,
		End:        day.Add(30 * time.Second),
		BucketSize: 10 * time.Second,
		Curve:      ProfileCurve(d("1"), d("2"), d("3")),
		Remainder:  RemainderLast,
		Precision:  2,
	})
	require.NoError(t, err)

	buckets := s.Buckets()
	assert.True(t, buckets[0].Target.Equal(d("5")))
	assert.True(t, buckets[1].Target.Equal(d("10")))
	assert.True(t, buckets[2].Target.Equal(d("15")))
}

func TestBuild_MultiplePlacementsStrictlyIncreasing(t *testing.T) {
	s, err := Build(Config{
		Total:      d("25"),
		Start:      day,
		End:        day.Add(time.Minute),
		BucketSize: 10 * time.Second,
		Placement:  FixedPlacement(0.5, 0.6),
		Precision:  1,
	})
	require.NoError(t, err)

	slices := s.Slices()
	require.Len(t, slices, 12)
	for i := 1; i < len(slices); i++ {
		assert.True(t, slices[i].At.After(slices[i-1].At), "slice %d not after %d", i, i-1)
	}
	assert.Equal(t, day.Add(5*time.Second), slices[0].At)
	assert.Equal(t, day.Add(6*time.Second), slices[1].At)
	assert.True(t, slices[0].Quantity.Equal(d("2")))
	assert.True(t, slices[2].Quantity.Equal(d("2.1")))

	total := decimal.Zero
	for _, sl := range slices {
		total = total.Add(sl.Quantity)
	}
	assert.True(t, total.Equal(d("25")))
}

func TestBuild_InvalidPlacement(t *testing.T) {
	cases := map[string]Placement{
		"out of range":   FixedPlacement(1.2),
		"not increasing": FixedPlacement(0.6, 0.5),
		"duplicate":      FixedPlacement(0.5, 0.5),
		"empty":          FixedPlacement(),
	}
	for name, placement := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Build(Config{
				Total:      d("10"),
				Start:      day,
				End:        day.Add(time.Minute),
				BucketSize: 10 * time.Second,
				Placement:  placement,
			})
			assert.ErrorIs(t, err, ErrInvalidPlacement)
		})
	}
}

func TestBuild_PlacementAtWindowEndUsesLastTick(t *testing.T) {
	cases := map[string]struct {
		placement Placement
		slices    int
		last      time.Time
		lastQty   decimal.Decimal
	}{
		"end of every bucket": {
			placement: FixedPlacement(1),
			slices:    6,
			last:      day.Add(59 * time.Second),
			lastQty:   d("4.2"),
		},
		"clamped instant merges": {
			placement: FixedPlacement(0.9, 1),
			slices:    11,
			last:      day.Add(59 * time.Second),
			lastQty:   d("4.2"),
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := Build(Config{
				Total:      d("25"),
				Start:      day,
				End:        day.Add(time.Minute),
				BucketSize: 10 * time.Second,
				Resolution: time.Second,
				Placement:  tc.placement,
				Precision:  1,
			})
			require.NoError(t, err)

			slices := s.Slices()
			require.Len(t, slices, tc.slices)
			last := slices[len(slices)-1]
			assert.Equal(t, tc.last, last.At)
			assert.True(t, last.Quantity.Equal(tc.lastQty), "last qty %s", last.Quantity)
			for i := 1; i < len(slices); i++ {
				assert.True(t, slices[i].At.After(slices[i-1].At))
			}
			assert.True(t, s.Scheduled(day.Add(time.Minute)).Equal(d("25")))

			order, ok := s.OrderAt(day.Add(59 * time.Second))
			require.True(t, ok)
			assert.True(t, order.Quantity.Equal(tc.lastQty))
		})
	}
}

func TestBuild_InvalidConfig(t *testing.T) {
	base := Config{Total: d("10"), Start: day, End: day.Add(time.Minute), BucketSize: 10 * time.Second}

	cases := map[string]func(c *Config){
		"negative total": func(c *Config) { c.Total = d("-1") },
		"empty window":   func(c *Config) { c.End = c.Start },
		"zero bucket":    func(c *Config) { c.BucketSize = 0 },
		"bad remainder":  func(c *Config) { c.Remainder = "middle" },
		"bad anchor":     func(c *Config) { c.Anchor = "center" },
		"bad side":       func(c *Config) { c.Side = "hold" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			_, err := Build(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestSchedule_OrderAtAggregatesResolutionWindow(t *testing.T) {
	s, err := Build(Config{
		Total:      d("25"),
		Start:      day,
		End:        day.Add(time.Minute),
		BucketSize: 10 * time.Second,
		Resolution: time.Second,
		Side:       execution.OrderSideSell,
		Placement:  FixedPlacement(0.5, 0.55),
		Precision:  1,
	})
	require.NoError(t, err)

	order, ok := s.OrderAt(day.Add(5 * time.Second))
	require.True(t, ok)
	assert.True(t, order.Quantity.Equal(d("4")), "two slices inside one tick are merged, got %s", order.Quantity)
	assert.Equal(t, execution.OrderSideSell, order.Side)
	assert.Equal(t, execution.OrderKindMarket, order.Kind)
	assert.Equal(t, day.Add(5*time.Second), order.Timestamp)

	_, ok = s.OrderAt(day.Add(4 * time.Second))
	assert.False(t, ok)

	assert.True(t, s.Scheduled(day.Add(15*time.Second)).Equal(d("4")))
	assert.True(t, s.Scheduled(day.Add(time.Minute)).Equal(d("25")))
}

func TestSchedule_UpdateRemainingVolume(t *testing.T) {
	s, err := Build(Config{Total: d("10"), Start: day, End: day.Add(time.Minute), BucketSize: 10 * time.Second})
	require.NoError(t, err)

	s.UpdateRemainingVolume(d("3"))
	s.UpdateRemainingVolume(decimal.Zero)
	s.UpdateRemainingVolume(d("-1"))
	assert.True(t, s.Remaining().Equal(d("7")))

	s.UpdateRemainingVolume(d("100"))
	assert.True(t, s.Remaining().IsZero())
}

func TestRandomPlacement_IsReproducible(t *testing.T) {
	build := func(seed int64) []Slice {
		s, err := Build(Config{
			Total:      d("10"),
			Start:      day,
			End:        day.Add(time.Minute),
			BucketSize: 10 * time.Second,
			Placement:  RandomPlacement(rand.New(rand.NewSource(seed))),
		})
		require.NoError(t, err)
		return s.Slices()
	}

	assert.Equal(t, build(7), build(7))
	for i, sl := range build(7) {
		assert.Equal(t, i, sl.Bucket)
	}
}
