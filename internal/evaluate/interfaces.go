package evaluate

import (
	"context"

	"optimal-execution/internal/env"
)

// Policy 提供动作，便于在评估中注入不同来源。
type Policy interface {
	Name() string
	Act(ctx context.Context, obs env.Observation) (env.Action, error)
}

// EnvFactory 为每个 worker 构建独立的环境实例，环境之间不得共享状态。
type EnvFactory func(worker int) (env.Env, error)
