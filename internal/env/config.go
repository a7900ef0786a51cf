package env

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"optimal-execution/internal/execution"
	"optimal-execution/internal/schedule"
)

// Config 描述一个仿真回合。
type Config struct {
	Side     execution.OrderSide
	Quantity decimal.Decimal
	// 每个回合的步数从 [MinSteps, MaxSteps] 中均匀抽取。
	MinSteps     int
	MaxSteps     int
	TickInterval time.Duration

	BucketSize      time.Duration
	Placement       []float64
	RandomPlacement bool
	// Curve 为空时按分桶时长均匀分配。
	Curve           schedule.Curve
	Remainder       schedule.RemainderPolicy
	Anchor          schedule.Anchor
	VolumePrecision int32

	PenaltyDepth   int
	MaxActionScale float64

	LOBDepth  int
	History   int
	Normalize bool

	Seed int64
}

// DefaultConfig 返回 60 步、每步 1 秒、10 秒分桶的买入任务。
func DefaultConfig() Config {
	return Config{
		Side:            execution.OrderSideBuy,
		Quantity:        decimal.NewFromInt(25),
		MinSteps:        60,
		MaxSteps:        60,
		TickInterval:    time.Second,
		BucketSize:      10 * time.Second,
		Placement:       []float64{0.5},
		Remainder:       schedule.RemainderFirst,
		Anchor:          schedule.AnchorStart,
		VolumePrecision: 4,
		PenaltyDepth:    5,
		MaxActionScale:  1,
		LOBDepth:        5,
		History:         1,
		Normalize:       true,
	}
}

// Validate 检查构造期参数。
func (c Config) Validate() error {
	var err error
	if c.Side != execution.OrderSideBuy && c.Side != execution.OrderSideSell {
		err = multierr.Append(err, fmt.Errorf("方向不合法: %q", c.Side))
	}
	if !c.Quantity.IsPositive() {
		err = multierr.Append(err, errors.New("目标数量必须为正"))
	}
	if c.MinSteps <= 0 || c.MaxSteps < c.MinSteps {
		err = multierr.Append(err, errors.New("步数范围必须满足 0 < min <= max"))
	}
	if c.TickInterval <= 0 {
		err = multierr.Append(err, errors.New("步长必须为正"))
	}
	if c.BucketSize <= 0 {
		err = multierr.Append(err, errors.New("分桶大小必须为正"))
	}
	if !c.RandomPlacement && len(c.Placement) == 0 {
		err = multierr.Append(err, errors.New("下单位置不能为空"))
	}
	if c.PenaltyDepth <= 0 {
		err = multierr.Append(err, errors.New("惩罚深度必须为正"))
	}
	if c.MaxActionScale <= 0 {
		err = multierr.Append(err, errors.New("动作上限必须为正"))
	}
	if c.LOBDepth <= 0 {
		err = multierr.Append(err, errors.New("观测深度必须为正"))
	}
	if c.History <= 0 {
		err = multierr.Append(err, errors.New("观测历史长度必须为正"))
	}
	if err != nil {
		return fmt.Errorf("env: 配置不合法: %w", err)
	}
	return nil
}
