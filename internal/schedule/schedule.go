package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"optimal-execution/internal/execution"
)

var (
	// ErrInvalidPlacement 下单时点不合法（超出 [0,1] 或不严格递增）。
	ErrInvalidPlacement = errors.New("schedule: 下单时点不合法")
	// ErrInvalidConfig 调度参数不合法。
	ErrInvalidConfig = errors.New("schedule: 参数不合法")
)

// RemainderPolicy 决定取整余量归入哪个分桶。
type RemainderPolicy string

const (
	RemainderFirst RemainderPolicy = "first"
	RemainderLast  RemainderPolicy = "last"
)

// Anchor 决定分桶边界的对齐方式。
type Anchor string

const (
	// AnchorStart 从窗口起点切分，最后一个分桶可能较短。
	AnchorStart Anchor = "start"
	// AnchorEnd 从窗口终点倒推切分，第一个分桶可能较短。
	AnchorEnd Anchor = "end"
)

// Config 描述一次调度。
type Config struct {
	Total      decimal.Decimal
	Start      time.Time
	End        time.Time
	BucketSize time.Duration
	// Resolution 为 OrderAt 的查询粒度，通常等于仿真步长。
	Resolution time.Duration
	Side       execution.OrderSide
	Placement  Placement
	Curve      Curve
	Remainder  RemainderPolicy
	Anchor     Anchor
	// Precision 为非余量分桶保留的小数位数。
	Precision int32
}

// Bucket 为一个时间分桶。
type Bucket struct {
	Index    int
	Start    time.Time
	Duration time.Duration
	Target   decimal.Decimal
}

// End 返回分桶结束时间（不含）。
func (b Bucket) End() time.Time {
	return b.Start.Add(b.Duration)
}

// Slice 为分桶内某个时点的子订单量。
type Slice struct {
	Bucket   int
	At       time.Time
	Quantity decimal.Decimal
}

// Schedule 为确定性的子订单计划。
type Schedule struct {
	cfg       Config
	buckets   []Bucket
	slices    []Slice
	remaining decimal.Decimal
}

// Build 根据配置生成分桶与子订单时点。
func Build(cfg Config) (*Schedule, error) {
	cfg = withDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}

	buckets := partition(cfg)
	if err := allocate(cfg, buckets); err != nil {
		return nil, err
	}

	slices, err := place(cfg, buckets)
	if err != nil {
		return nil, err
	}

	return &Schedule{
		cfg:       cfg,
		buckets:   buckets,
		slices:    slices,
		remaining: cfg.Total,
	}, nil
}

func withDefaults(cfg Config) Config {
	if cfg.Resolution <= 0 {
		cfg.Resolution = time.Second
	}
	if cfg.Placement == nil {
		cfg.Placement = FixedPlacement(0)
	}
	if cfg.Curve == nil {
		cfg.Curve = UniformCurve
	}
	if cfg.Remainder == "" {
		cfg.Remainder = RemainderFirst
	}
	if cfg.Anchor == "" {
		cfg.Anchor = AnchorStart
	}
	if cfg.Side == "" {
		cfg.Side = execution.OrderSideBuy
	}
	return cfg
}

func validate(cfg Config) error {
	switch {
	case cfg.Total.IsNegative():
		return fmt.Errorf("%w: 总量不能为负", ErrInvalidConfig)
	case !cfg.End.After(cfg.Start):
		return fmt.Errorf("%w: 结束时间必须晚于开始时间", ErrInvalidConfig)
	case cfg.BucketSize <= 0:
		return fmt.Errorf("%w: 分桶大小必须为正", ErrInvalidConfig)
	case cfg.Precision < 0:
		return fmt.Errorf("%w: 精度不能为负", ErrInvalidConfig)
	}
	if cfg.Remainder != RemainderFirst && cfg.Remainder != RemainderLast {
		return fmt.Errorf("%w: 未知余量策略 %q", ErrInvalidConfig, cfg.Remainder)
	}
	if cfg.Anchor != AnchorStart && cfg.Anchor != AnchorEnd {
		return fmt.Errorf("%w: 未知对齐方式 %q", ErrInvalidConfig, cfg.Anchor)
	}
	if cfg.Side != execution.OrderSideBuy && cfg.Side != execution.OrderSideSell {
		return fmt.Errorf("%w: 未知方向 %q", ErrInvalidConfig, cfg.Side)
	}
	return nil
}

// partition 将窗口切分为 ceil(horizon/size) 个连续分桶。
func partition(cfg Config) []Bucket {
	horizon := cfg.End.Sub(cfg.Start)
	count := int(horizon / cfg.BucketSize)
	if horizon%cfg.BucketSize != 0 {
		count++
	}

	buckets := make([]Bucket, count)
	for i := 0; i < count; i++ {
		var start, end time.Time
		switch cfg.Anchor {
		case AnchorEnd:
			end = cfg.End.Add(-time.Duration(count-1-i) * cfg.BucketSize)
			start = end.Add(-cfg.BucketSize)
			if start.Before(cfg.Start) {
				start = cfg.Start
			}
		default:
			start = cfg.Start.Add(time.Duration(i) * cfg.BucketSize)
			end = start.Add(cfg.BucketSize)
			if end.After(cfg.End) {
				end = cfg.End
			}
		}
		buckets[i] = Bucket{Index: i, Start: start, Duration: end.Sub(start)}
	}
	return buckets
}

// allocate 按曲线分配目标量，非余量分桶按精度四舍五入，余量归入指定分桶。
// 若四舍五入使余量为负，则全部分桶改为截断。
func allocate(cfg Config, buckets []Bucket) error {
	weights := make([]decimal.Decimal, len(buckets))
	sum := decimal.Zero
	for i, b := range buckets {
		w := cfg.Curve(i, len(buckets), b)
		if w.IsNegative() {
			return fmt.Errorf("%w: 分桶 %d 权重为负", ErrInvalidConfig, i)
		}
		weights[i] = w
		sum = sum.Add(w)
	}
	if sum.IsZero() {
		return fmt.Errorf("%w: 成交量曲线权重之和为 0", ErrInvalidConfig)
	}

	rest := 0
	if cfg.Remainder == RemainderLast {
		rest = len(buckets) - 1
	}

	shares := make([]decimal.Decimal, len(buckets))
	for i := range buckets {
		shares[i] = cfg.Total.Mul(weights[i]).Div(sum)
	}

	assign := func(round func(decimal.Decimal) decimal.Decimal) decimal.Decimal {
		allocated := decimal.Zero
		for i := range buckets {
			if i == rest {
				continue
			}
			buckets[i].Target = round(shares[i])
			allocated = allocated.Add(buckets[i].Target)
		}
		return cfg.Total.Sub(allocated)
	}

	remainder := assign(func(v decimal.Decimal) decimal.Decimal { return v.Round(cfg.Precision) })
	if remainder.IsNegative() {
		remainder = assign(func(v decimal.Decimal) decimal.Decimal { return v.Truncate(cfg.Precision) })
	}
	buckets[rest].Target = remainder
	return nil
}

// place 计算每个分桶的下单时点，并把分桶目标量平均拆分到各时点。
func place(cfg Config, buckets []Bucket) ([]Slice, error) {
	slices := make([]Slice, 0, len(buckets))
	for i, b := range buckets {
		fractions := cfg.Placement(i, len(buckets))
		if len(fractions) == 0 {
			return nil, fmt.Errorf("%w: 分桶 %d 没有下单时点", ErrInvalidPlacement, i)
		}

		parts := splitEven(b.Target, len(fractions), cfg.Precision, cfg.Remainder)
		for j, f := range fractions {
			if f < 0 || f > 1 {
				return nil, fmt.Errorf("%w: 比例 %.4f 超出 [0,1]", ErrInvalidPlacement, f)
			}
			at := b.Start.Add(time.Duration(f * float64(b.Duration)))
			if !at.Before(cfg.End) {
				// 落在窗口终点的时点收回到最后一个步长；与上一时点重合时并入上一笔。
				at = cfg.End.Add(-cfg.Resolution)
				if at.Before(cfg.Start) {
					at = cfg.Start
				}
				if n := len(slices); n > 0 && !at.After(slices[n-1].At) {
					slices[n-1].Quantity = slices[n-1].Quantity.Add(parts[j])
					continue
				}
			}
			if n := len(slices); n > 0 && !at.After(slices[n-1].At) {
				return nil, fmt.Errorf("%w: 分桶 %d 的时点 %s 未严格递增", ErrInvalidPlacement, i, at.Format(time.RFC3339Nano))
			}
			slices = append(slices, Slice{Bucket: i, At: at, Quantity: parts[j]})
		}
	}
	return slices, nil
}

// splitEven 将 total 拆成 n 份，截断部分归入余量位置，合计与 total 完全一致。
func splitEven(total decimal.Decimal, n int, precision int32, policy RemainderPolicy) []decimal.Decimal {
	parts := make([]decimal.Decimal, n)
	if n == 1 {
		parts[0] = total
		return parts
	}
	base := total.Div(decimal.NewFromInt(int64(n))).Truncate(precision)
	rest := 0
	if policy == RemainderLast {
		rest = n - 1
	}
	for i := range parts {
		parts[i] = base
	}
	parts[rest] = total.Sub(base.Mul(decimal.NewFromInt(int64(n - 1))))
	return parts
}

// Buckets 返回分桶副本。
func (s *Schedule) Buckets() []Bucket {
	return append([]Bucket(nil), s.buckets...)
}

// Slices 返回子订单时点副本，按时间升序。
func (s *Schedule) Slices() []Slice {
	return append([]Slice(nil), s.slices...)
}

// Side 返回调度方向。
func (s *Schedule) Side() execution.OrderSide {
	return s.cfg.Side
}

// Total 返回计划总量。
func (s *Schedule) Total() decimal.Decimal {
	return s.cfg.Total
}

// OrderAt 汇总 [ts, ts+Resolution) 内的全部子订单为一笔市价单；该区间没有计划时返回 false。
func (s *Schedule) OrderAt(ts time.Time) (execution.Order, bool) {
	until := ts.Add(s.cfg.Resolution)
	idx := sort.Search(len(s.slices), func(i int) bool {
		return !s.slices[i].At.Before(ts)
	})

	qty := decimal.Zero
	found := false
	for ; idx < len(s.slices) && s.slices[idx].At.Before(until); idx++ {
		qty = qty.Add(s.slices[idx].Quantity)
		found = true
	}
	if !found {
		return execution.Order{}, false
	}

	order, err := execution.NewMarketOrder(s.cfg.Side, qty, ts)
	if err != nil {
		// 数量与方向在 Build 时已校验。
		panic(fmt.Sprintf("schedule: 构建子订单失败: %v", err))
	}
	return order, true
}

// Scheduled 返回 until 之前（不含）计划下单的累计量。
func (s *Schedule) Scheduled(until time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, sl := range s.slices {
		if !sl.At.Before(until) {
			break
		}
		total = total.Add(sl.Quantity)
	}
	return total
}

// UpdateRemainingVolume 扣减实际成交量。不会重新规划后续分桶。
func (s *Schedule) UpdateRemainingVolume(filled decimal.Decimal) {
	if !filled.IsPositive() {
		return
	}
	s.remaining = s.remaining.Sub(filled)
	if s.remaining.IsNegative() {
		s.remaining = decimal.Zero
	}
}

// Remaining 返回尚未成交的量。
func (s *Schedule) Remaining() decimal.Decimal {
	return s.remaining
}
