package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Simulation  SimulationConfig  `mapstructure:"simulation"`
	Observation ObservationConfig `mapstructure:"observation"`
	Feed        FeedConfig        `mapstructure:"feed"`
	Evaluation  EvaluationConfig  `mapstructure:"evaluation"`
	Policy      PolicyConfig      `mapstructure:"policy"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	Exchange    ExchangeConfig    `mapstructure:"exchange"`
	Capture     CaptureConfig     `mapstructure:"capture"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
}

const (
	// ModeEvaluate 运行多回合评估。
	ModeEvaluate = "evaluate"
	// ModeCapture 从交易所采集订单簿快照。
	ModeCapture = "capture"
)

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
	Mode        string `mapstructure:"mode"`
}

// SimulationConfig 描述单个回合的执行任务与奖励参数。
type SimulationConfig struct {
	Direction       string        `mapstructure:"direction"`
	Quantity        float64       `mapstructure:"quantity"`
	MinSteps        int           `mapstructure:"min_steps"`
	MaxSteps        int           `mapstructure:"max_steps"`
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	BucketSize      time.Duration `mapstructure:"bucket_size"`
	Placement       []float64     `mapstructure:"placement"`
	RandomPlacement bool          `mapstructure:"random_placement"`
	VolumeProfile   []float64     `mapstructure:"volume_profile"`
	Remainder       string        `mapstructure:"remainder"`
	Anchor          string        `mapstructure:"anchor"`
	VolumePrecision int32         `mapstructure:"volume_precision"`
	PenaltyDepth    int           `mapstructure:"penalty_depth"`
	MaxActionScale  float64       `mapstructure:"max_action_scale"`
}

// ObservationConfig 控制观测向量。
type ObservationConfig struct {
	LOBDepth  int  `mapstructure:"lob_depth"`
	NrOfLOBs  int  `mapstructure:"nr_of_lobs"`
	Normalize bool `mapstructure:"normalize"`
}

// FeedConfig 描述订单簿快照来源。
type FeedConfig struct {
	Source    string              `mapstructure:"source"`
	Symbol    string              `mapstructure:"symbol"`
	Synthetic SyntheticFeedConfig `mapstructure:"synthetic"`
}

// SyntheticFeedConfig 控制合成订单簿。
type SyntheticFeedConfig struct {
	Start       time.Time     `mapstructure:"start"`
	Interval    time.Duration `mapstructure:"interval"`
	BestBid     float64       `mapstructure:"best_bid"`
	BestAsk     float64       `mapstructure:"best_ask"`
	Levels      int           `mapstructure:"levels"`
	PriceTick   float64       `mapstructure:"price_tick"`
	LevelVolume float64       `mapstructure:"level_volume"`
	Drift       float64       `mapstructure:"drift"`
}

// EvaluationConfig 控制多回合评估。
type EvaluationConfig struct {
	Episodes int   `mapstructure:"episodes"`
	Workers  int   `mapstructure:"workers"`
	Seed     int64 `mapstructure:"seed"`
}

// PolicyConfig 选择动作来源。
type PolicyConfig struct {
	Kind  string  `mapstructure:"kind"`
	Scale float64 `mapstructure:"scale"`
}

// OpenAIConfig 描述大模型调用参数。
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name       string      `mapstructure:"name"`
	Market     string      `mapstructure:"market"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	APIPass    string      `mapstructure:"api_password"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// CaptureConfig 控制快照采集节奏。
type CaptureConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	Depth        int           `mapstructure:"depth"`
	MaxSnapshots int           `mapstructure:"max_snapshots"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MonitorConfig 控制监控 HTTP 服务。
type MonitorConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	switch c.App.Mode {
	case ModeEvaluate, ModeCapture:
	default:
		err = multierr.Append(err, fmt.Errorf("app.mode 不支持: %q", c.App.Mode))
	}

	err = multierr.Append(err, c.Simulation.validate())
	err = multierr.Append(err, c.Observation.validate())

	switch c.Feed.Source {
	case "synthetic":
		err = multierr.Append(err, c.Feed.Synthetic.validate())
	case "replay":
	default:
		err = multierr.Append(err, fmt.Errorf("feed.source 不支持: %q", c.Feed.Source))
	}
	if c.Feed.Symbol == "" {
		err = multierr.Append(err, errors.New("feed.symbol 不能为空"))
	}

	if c.Evaluation.Episodes <= 0 {
		err = multierr.Append(err, errors.New("evaluation.episodes 必须大于0"))
	}
	if c.Evaluation.Workers <= 0 {
		err = multierr.Append(err, errors.New("evaluation.workers 必须大于0"))
	}

	switch c.Policy.Kind {
	case "constant":
		if c.Policy.Scale < 0 || c.Policy.Scale > 1 {
			err = multierr.Append(err, errors.New("policy.scale 必须位于[0,1]"))
		}
	case "random":
	case "openai":
		if c.OpenAI.APIKey == "" {
			err = multierr.Append(err, errors.New("openai.api_key 不能为空"))
		}
		if c.OpenAI.Model == "" {
			err = multierr.Append(err, errors.New("openai.model 不能为空"))
		}
		if c.OpenAI.Timeout <= 0 {
			err = multierr.Append(err, errors.New("openai.timeout 必须大于0"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("policy.kind 不支持: %q", c.Policy.Kind))
	}

	if c.App.Mode == ModeCapture {
		if c.Exchange.Name == "" {
			err = multierr.Append(err, errors.New("exchange.name 不能为空"))
		}
		if c.Exchange.Market == "" {
			err = multierr.Append(err, errors.New("exchange.market 不能为空"))
		}
		if c.Exchange.Retry.MaxAttempts <= 0 {
			err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
		}
		if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
			err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
		}
		if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
			err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
		}
		if c.Capture.Interval <= 0 {
			err = multierr.Append(err, errors.New("capture.interval 必须大于0"))
		}
		if c.Capture.Depth <= 0 {
			err = multierr.Append(err, errors.New("capture.depth 必须大于0"))
		}
	}

	if !c.Database.InMemory && c.Database.Path == "" {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Monitor.Enabled && c.Monitor.Addr == "" {
		err = multierr.Append(err, errors.New("monitor.addr 不能为空"))
	}

	switch strings.ToLower(c.Logging.Encoding) {
	case "console", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("logging.encoding 不支持: %q", c.Logging.Encoding))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}
	return nil
}

func (s SimulationConfig) validate() error {
	var err error
	switch strings.ToLower(s.Direction) {
	case "buy", "sell":
	default:
		err = multierr.Append(err, fmt.Errorf("simulation.direction 必须为 buy 或 sell: %q", s.Direction))
	}
	if s.Quantity <= 0 {
		err = multierr.Append(err, errors.New("simulation.quantity 必须大于0"))
	}
	if s.MinSteps <= 0 || s.MaxSteps < s.MinSteps {
		err = multierr.Append(err, errors.New("simulation.min_steps/max_steps 必须满足 0 < min <= max"))
	}
	if s.TickInterval <= 0 {
		err = multierr.Append(err, errors.New("simulation.tick_interval 必须大于0"))
	}
	if s.BucketSize < s.TickInterval {
		err = multierr.Append(err, errors.New("simulation.bucket_size 不能小于 tick_interval"))
	}
	if !s.RandomPlacement && len(s.Placement) == 0 {
		err = multierr.Append(err, errors.New("simulation.placement 不能为空"))
	}
	for _, f := range s.Placement {
		if f < 0 || f > 1 {
			err = multierr.Append(err, fmt.Errorf("simulation.placement 比例 %.4f 超出[0,1]", f))
		}
	}
	if len(s.VolumeProfile) > 0 {
		positive := false
		for _, w := range s.VolumeProfile {
			if w < 0 {
				err = multierr.Append(err, fmt.Errorf("simulation.volume_profile 权重 %.4f 不能为负", w))
			}
			if w > 0 {
				positive = true
			}
		}
		if !positive {
			err = multierr.Append(err, errors.New("simulation.volume_profile 至少需要一个正权重"))
		}
	}
	switch s.Remainder {
	case "first", "last":
	default:
		err = multierr.Append(err, fmt.Errorf("simulation.remainder 不支持: %q", s.Remainder))
	}
	switch s.Anchor {
	case "start", "end":
	default:
		err = multierr.Append(err, fmt.Errorf("simulation.anchor 不支持: %q", s.Anchor))
	}
	if s.VolumePrecision < 0 {
		err = multierr.Append(err, errors.New("simulation.volume_precision 不能为负"))
	}
	if s.PenaltyDepth <= 0 {
		err = multierr.Append(err, errors.New("simulation.penalty_depth 必须大于0"))
	}
	if s.MaxActionScale <= 0 {
		err = multierr.Append(err, errors.New("simulation.max_action_scale 必须大于0"))
	}
	return err
}

func (o ObservationConfig) validate() error {
	var err error
	if o.LOBDepth <= 0 {
		err = multierr.Append(err, errors.New("observation.lob_depth 必须大于0"))
	}
	if o.NrOfLOBs <= 0 {
		err = multierr.Append(err, errors.New("observation.nr_of_lobs 必须大于0"))
	}
	return err
}

func (s SyntheticFeedConfig) validate() error {
	var err error
	if s.Interval <= 0 {
		err = multierr.Append(err, errors.New("feed.synthetic.interval 必须大于0"))
	}
	if s.BestBid <= 0 || s.BestAsk <= s.BestBid {
		err = multierr.Append(err, errors.New("feed.synthetic 需满足 0 < best_bid < best_ask"))
	}
	if s.Levels <= 0 {
		err = multierr.Append(err, errors.New("feed.synthetic.levels 必须大于0"))
	}
	if s.PriceTick <= 0 {
		err = multierr.Append(err, errors.New("feed.synthetic.price_tick 必须大于0"))
	}
	if s.LevelVolume <= 0 {
		err = multierr.Append(err, errors.New("feed.synthetic.level_volume 必须大于0"))
	}
	return err
}
