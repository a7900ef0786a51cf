package env

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"optimal-execution/internal/execution"
	"optimal-execution/internal/feed"
	"optimal-execution/internal/ledger"
	"optimal-execution/internal/orderbook"
	"optimal-execution/internal/schedule"
)

const (
	bmkPath = ledger.Benchmark
	altPath = ledger.Alternative
)

type state int

const (
	stateIdle state = iota
	stateReady
	stateDone
)

// seeder 为可重置随机源的数据源。
type seeder interface {
	Seed(seed int64)
}

// Simulator 同步推进基准路径与替代路径，两条路径各自持有独立的订单簿副本。
// Simulator 不是并发安全的，并行评估时每个 worker 持有自己的实例。
type Simulator struct {
	cfg    Config
	feed   feed.Feed
	broker execution.Trader
	logger *zap.Logger
	rng    *rand.Rand
	space  Space

	state    state
	t        int
	maxSteps int
	start    time.Time

	sched        *schedule.Schedule
	ledger       *ledger.Ledger
	altRemaining decimal.Decimal
	reward       float64

	histories map[ledger.PathID][]*orderbook.Book
	remaining map[ledger.PathID][]decimal.Decimal
	mids      []decimal.Decimal
}

// New 创建仿真环境。broker 为空时使用默认撮合适配器。
func New(cfg Config, src feed.Feed, broker execution.Trader, logger *zap.Logger) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, errors.New("env: 数据源不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if broker == nil {
		broker = execution.NewBroker(logger)
	}

	return &Simulator{
		cfg:    cfg,
		feed:   src,
		broker: broker,
		logger: logger,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		space:  observationSpace(cfg),
		ledger: ledger.New(bmkPath, altPath),
	}, nil
}

// Seed 重置随机源，同时转发给支持播种的数据源。
func (s *Simulator) Seed(seed int64) []int64 {
	s.rng = rand.New(rand.NewSource(seed))
	if sd, ok := s.feed.(seeder); ok {
		sd.Seed(seed)
	}
	return []int64{seed}
}

// ObservationSpace 返回观测空间。
func (s *Simulator) ObservationSpace() Space {
	return s.space
}

// Reset 开始新回合：抽取步数、重置数据源、构建调度并返回初始观测。
func (s *Simulator) Reset(ctx context.Context) (Observation, error) {
	s.state = stateIdle

	s.maxSteps = s.cfg.MinSteps
	if span := s.cfg.MaxSteps - s.cfg.MinSteps; span > 0 {
		s.maxSteps += s.rng.Intn(span + 1)
	}

	if err := s.feed.Reset(ctx, s.maxSteps); err != nil {
		return nil, fmt.Errorf("env: 重置数据源失败: %w", err)
	}
	ts, book, err := s.feed.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("env: 读取初始快照失败: %w", err)
	}

	placement := schedule.FixedPlacement(s.cfg.Placement...)
	if s.cfg.RandomPlacement {
		placement = schedule.RandomPlacement(s.rng)
	}
	sched, err := schedule.Build(schedule.Config{
		Total:      s.cfg.Quantity,
		Start:      ts,
		End:        ts.Add(time.Duration(s.maxSteps) * s.cfg.TickInterval),
		BucketSize: s.cfg.BucketSize,
		Resolution: s.cfg.TickInterval,
		Side:       s.cfg.Side,
		Placement:  placement,
		Curve:      s.cfg.Curve,
		Remainder:  s.cfg.Remainder,
		Anchor:     s.cfg.Anchor,
		Precision:  s.cfg.VolumePrecision,
	})
	if err != nil {
		return nil, fmt.Errorf("env: 构建执行计划失败: %w", err)
	}

	s.start = ts
	s.t = -1
	s.sched = sched
	s.ledger.Reset(bmkPath, altPath)
	s.altRemaining = s.cfg.Quantity
	s.reward = 0

	book.Timestamp = ts
	s.histories = map[ledger.PathID][]*orderbook.Book{
		bmkPath: {book},
		altPath: {book.Clone()},
	}
	s.remaining = map[ledger.PathID][]decimal.Decimal{
		bmkPath: {s.cfg.Quantity},
		altPath: {s.cfg.Quantity},
	}
	s.mids = s.mids[:0]

	s.state = stateReady
	s.logger.Info("回合已重置",
		zap.Time("start", ts),
		zap.Int("max_steps", s.maxSteps),
		zap.String("side", string(s.cfg.Side)),
		zap.String("quantity", s.cfg.Quantity.String()),
		zap.Int("buckets", len(sched.Buckets())),
	)
	return s.buildObservation(), nil
}

// Step 推进一步。回合结束后或未 Reset 时调用属于编程错误，直接 panic。
func (s *Simulator) Step(ctx context.Context, action Action) (StepResult, error) {
	if s.state != stateReady {
		panic("env: Step 必须在 Reset 之后且回合未结束时调用")
	}

	s.t++
	now := s.start.Add(time.Duration(s.t) * s.cfg.TickInterval)

	bmkOrder, ok := s.sched.OrderAt(now)
	if !ok {
		bmkOrder = s.mustOrder(decimal.Zero, now)
	}

	scale := s.clip(action)
	requested := decimal.NewFromFloat(scale).Mul(decimal.NewFromInt(2)).Mul(bmkOrder.Quantity)
	altOrder := s.mustOrder(decimal.Min(requested, s.altRemaining), now)

	bmkFill := s.broker.Place(s.latest(bmkPath), bmkOrder)
	altFill := s.broker.Place(s.latest(altPath), altOrder)

	s.record(bmkPath, bmkFill, now)
	s.record(altPath, altFill, now)

	s.sched.UpdateRemainingVolume(bmkFill.Quantity)
	s.altRemaining = s.altRemaining.Sub(altFill.Quantity)
	s.remaining[bmkPath] = append(s.remaining[bmkPath], s.sched.Remaining())
	s.remaining[altPath] = append(s.remaining[altPath], s.altRemaining)
	s.mids = append(s.mids, bmkFill.Mid)

	info := Info{
		Step:            s.t,
		MaxSteps:        s.maxSteps,
		RemainingSteps:  s.maxSteps - s.t - 1,
		AltRemaining:    s.altRemaining,
		BmkRemaining:    s.sched.Remaining(),
		BmkScheduled:    s.sched.Scheduled(now.Add(s.cfg.TickInterval)),
		BenchmarkFill:   bmkFill,
		AlternativeFill: altFill,
		Requested:       requested,
	}

	info.Penalty = s.liquidityPenalty(requested)
	reward := -info.Penalty

	terminal := s.t >= s.maxSteps-1
	if terminal {
		info.TerminalBonus, info.VWAP = s.terminalBonus()
		info.Shortfall, _ = s.ledger.ImplementationShortfall()
		reward += info.TerminalBonus
	}
	s.reward += reward
	info.EpisodeReward = s.reward

	s.logger.Debug("步进完成",
		zap.Int("step", s.t),
		zap.String("bmk_qty", bmkFill.Quantity.String()),
		zap.String("bmk_price", bmkFill.Price.String()),
		zap.String("alt_qty", altFill.Quantity.String()),
		zap.String("alt_price", altFill.Price.String()),
		zap.Float64("reward", reward),
	)

	if terminal {
		s.state = stateDone
		fields := []zap.Field{
			zap.Int("steps", s.maxSteps),
			zap.Float64("penalty", info.Penalty),
			zap.Float64("terminal_bonus", info.TerminalBonus),
			zap.Float64("episode_reward", s.reward),
			zap.String("alt_remaining", s.altRemaining.String()),
		}
		for _, p := range ledger.Sorted(info.VWAP) {
			fields = append(fields, zap.String("vwap_"+string(p), info.VWAP[p].String()))
		}
		s.logger.Info("回合结束", fields...)
		return StepResult{Observation: nil, Reward: reward, Done: true, Info: info}, nil
	}

	ts, next, err := s.feed.Next(ctx)
	if err != nil {
		s.state = stateDone
		return StepResult{Reward: reward, Done: true, Info: info}, fmt.Errorf("env: 读取第 %d 步快照失败: %w", s.t+1, err)
	}
	next.Timestamp = ts
	s.histories[bmkPath] = append(s.histories[bmkPath], next)
	s.histories[altPath] = append(s.histories[altPath], next.Clone())

	return StepResult{Observation: s.buildObservation(), Reward: reward, Done: false, Info: info}, nil
}

func (s *Simulator) mustOrder(qty decimal.Decimal, ts time.Time) execution.Order {
	order, err := execution.NewMarketOrder(s.cfg.Side, qty, ts)
	if err != nil {
		panic(fmt.Sprintf("env: 构建子订单失败: %v", err))
	}
	return order
}

// clip 将动作限制在 [0, MaxActionScale]。
func (s *Simulator) clip(action Action) float64 {
	v := float64(action)
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > s.cfg.MaxActionScale {
		return s.cfg.MaxActionScale
	}
	return v
}

func (s *Simulator) latest(path ledger.PathID) *orderbook.Book {
	hist := s.histories[path]
	return hist[len(hist)-1]
}

func (s *Simulator) record(path ledger.PathID, fill execution.Fill, now time.Time) {
	err := s.ledger.Record(path, ledger.Entry{
		Price:     fill.Price,
		Quantity:  fill.Quantity,
		Arrival:   fill.Mid,
		Timestamp: now,
	})
	if err != nil {
		panic(fmt.Sprintf("env: 记录成交失败: %v", err))
	}
}
