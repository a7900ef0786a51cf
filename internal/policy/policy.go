package policy

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"optimal-execution/internal/config"
	"optimal-execution/internal/env"
)

// Policy 根据观测给出替代路径的下单比例。
type Policy interface {
	Name() string
	Act(ctx context.Context, obs env.Observation) (env.Action, error)
}

var (
	_ Policy = (*ConstantPolicy)(nil)
	_ Policy = (*RandomPolicy)(nil)
	_ Policy = (*OpenAIPolicy)(nil)
)

// ConstantPolicy 始终返回固定比例，0.5 即复刻基准 TWAP。
type ConstantPolicy struct {
	Scale float64
}

// NewConstant 创建固定比例策略。
func NewConstant(scale float64) *ConstantPolicy {
	return &ConstantPolicy{Scale: scale}
}

func (p *ConstantPolicy) Name() string { return "constant" }

// Act 忽略观测。
func (p *ConstantPolicy) Act(context.Context, env.Observation) (env.Action, error) {
	return env.Action(p.Scale), nil
}

// RandomPolicy 在 [0,1) 内均匀抽样，可并发调用。
type RandomPolicy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom 创建带种子的随机策略。
func NewRandom(seed int64) *RandomPolicy {
	return &RandomPolicy{rng: rand.New(rand.NewSource(seed))}
}

func (p *RandomPolicy) Name() string { return "random" }

func (p *RandomPolicy) Act(context.Context, env.Observation) (env.Action, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return env.Action(p.rng.Float64()), nil
}

// New 根据配置创建策略。seed 仅用于随机策略。
func New(cfg config.PolicyConfig, ai config.OpenAIConfig, seed int64, logger *zap.Logger) (Policy, error) {
	switch cfg.Kind {
	case "", "constant":
		return NewConstant(cfg.Scale), nil
	case "random":
		return NewRandom(seed), nil
	case "openai":
		return NewOpenAI(ai, logger)
	default:
		return nil, fmt.Errorf("policy: 不支持的策略类型 %q", cfg.Kind)
	}
}
