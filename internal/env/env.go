package env

import (
	"context"

	"github.com/shopspring/decimal"

	"optimal-execution/internal/execution"
	"optimal-execution/internal/ledger"
)

// Action 为替代路径的下单比例：子订单量 = Action * 2 * 基准子订单量。
type Action float64

// Observation 为定长数值观测向量。
type Observation []float64

// Space 描述观测向量每一维的取值范围。
type Space struct {
	Low  []float64
	High []float64
}

// Dim 返回观测维度。
func (s Space) Dim() int {
	return len(s.Low)
}

// Contains 判断观测是否落在空间内（含维度检查）。
func (s Space) Contains(obs Observation) bool {
	if len(obs) != len(s.Low) {
		return false
	}
	for i, v := range obs {
		if v < s.Low[i] || v > s.High[i] {
			return false
		}
	}
	return true
}

// Info 为每步附带的诊断信息。
type Info struct {
	Step            int
	RemainingSteps  int
	MaxSteps        int
	AltRemaining    decimal.Decimal
	BmkRemaining    decimal.Decimal
	BmkScheduled    decimal.Decimal // 截至本步结束计划累计下单量
	BenchmarkFill   execution.Fill
	AlternativeFill execution.Fill
	Requested       decimal.Decimal // 未截断的替代路径请求量
	Penalty         float64
	TerminalBonus   float64
	EpisodeReward   float64
	VWAP            map[ledger.PathID]decimal.Decimal
	Shortfall       map[ledger.PathID]decimal.Decimal
}

// StepResult 为 Step 的返回值。Observation 在回合结束时为空。
type StepResult struct {
	Observation Observation
	Reward      float64
	Done        bool
	Info        Info
}

// Env 为训练或评估框架使用的环境接口。
type Env interface {
	Reset(ctx context.Context) (Observation, error)
	Step(ctx context.Context, action Action) (StepResult, error)
	Seed(seed int64) []int64
}

var _ Env = (*Simulator)(nil)
