package evaluate

import (
	"github.com/shopspring/decimal"

	"optimal-execution/internal/execution"
)

// Config 定义多回合评估参数。
type Config struct {
	Episodes int                 // 回合数
	Workers  int                 // 并行 worker 数，每个 worker 独占一个环境
	Seed     int64               // 第 i 个回合使用 Seed+i
	Side     execution.OrderSide // 用于判断替代路径是否跑赢基准
	Quantity decimal.Decimal     // 目标总量，用于计算执行比例
}

func (c *Config) normalize() Config {
	cfg := *c
	if cfg.Episodes < 0 {
		cfg.Episodes = 0
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Episodes > 0 && cfg.Workers > cfg.Episodes {
		cfg.Workers = cfg.Episodes
	}
	if cfg.Side == "" {
		cfg.Side = execution.OrderSideBuy
	}
	return cfg
}
