package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "optexec"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.mode", ModeEvaluate)

	v.SetDefault("simulation.direction", "buy")
	v.SetDefault("simulation.quantity", 25)
	v.SetDefault("simulation.min_steps", 60)
	v.SetDefault("simulation.max_steps", 60)
	v.SetDefault("simulation.tick_interval", "1s")
	v.SetDefault("simulation.bucket_size", "10s")
	v.SetDefault("simulation.placement", []float64{0.5})
	v.SetDefault("simulation.random_placement", false)
	v.SetDefault("simulation.remainder", "first")
	v.SetDefault("simulation.anchor", "start")
	v.SetDefault("simulation.volume_precision", 4)
	v.SetDefault("simulation.penalty_depth", 5)
	v.SetDefault("simulation.max_action_scale", 1.0)

	v.SetDefault("observation.lob_depth", 5)
	v.SetDefault("observation.nr_of_lobs", 1)
	v.SetDefault("observation.normalize", true)

	v.SetDefault("feed.source", "synthetic")
	v.SetDefault("feed.symbol", "BTC/USDT:USDT")
	v.SetDefault("feed.synthetic.start", "2019-04-01T09:00:00Z")
	v.SetDefault("feed.synthetic.interval", "1s")
	v.SetDefault("feed.synthetic.best_bid", 29.9)
	v.SetDefault("feed.synthetic.best_ask", 30.0)
	v.SetDefault("feed.synthetic.levels", 3)
	v.SetDefault("feed.synthetic.price_tick", 0.1)
	v.SetDefault("feed.synthetic.level_volume", 1)
	v.SetDefault("feed.synthetic.drift", -0.1)

	v.SetDefault("evaluation.episodes", 100)
	v.SetDefault("evaluation.workers", 4)
	v.SetDefault("evaluation.seed", 1)

	v.SetDefault("policy.kind", "constant")
	v.SetDefault("policy.scale", 0.5)

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4.1")
	v.SetDefault("openai.timeout", "15s")

	v.SetDefault("exchange.name", "binanceusdm")
	v.SetDefault("exchange.market", "BTC/USDT:USDT")
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.retry.max_attempts", 5)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")

	v.SetDefault("capture.interval", "1s")
	v.SetDefault("capture.depth", 10)
	v.SetDefault("capture.max_snapshots", 0)

	v.SetDefault("database.path", "data/optimal_execution.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.addr", ":8090")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
