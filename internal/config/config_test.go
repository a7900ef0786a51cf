package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "app:\n  environment: test\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeEvaluate, cfg.App.Mode)
	assert.Equal(t, "buy", cfg.Simulation.Direction)
	assert.Equal(t, time.Second, cfg.Simulation.TickInterval)
	assert.Equal(t, 10*time.Second, cfg.Simulation.BucketSize)
	assert.Equal(t, []float64{0.5}, cfg.Simulation.Placement)
	assert.Equal(t, 5, cfg.Simulation.PenaltyDepth)
	assert.Equal(t, time.Date(2019, 4, 1, 9, 0, 0, 0, time.UTC), cfg.Feed.Synthetic.Start)
	assert.Equal(t, 500*time.Millisecond, cfg.Exchange.Retry.MinDelay)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		"app:",
		"  environment: test",
		"simulation:",
		"  direction: sell",
		"  quantity: 1000",
		"  min_steps: 30",
		"  max_steps: 90",
		"  placement: [0.5, 0.6]",
		"  volume_profile: [1, 2.5]",
		"observation:",
		"  lob_depth: 10",
		"  nr_of_lobs: 3",
		"",
	}, "\n"))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sell", cfg.Simulation.Direction)
	assert.Equal(t, 1000.0, cfg.Simulation.Quantity)
	assert.Equal(t, 30, cfg.Simulation.MinSteps)
	assert.Equal(t, 90, cfg.Simulation.MaxSteps)
	assert.Equal(t, []float64{0.5, 0.6}, cfg.Simulation.Placement)
	assert.Equal(t, []float64{1, 2.5}, cfg.Simulation.VolumeProfile)
	assert.Equal(t, 10, cfg.Observation.LOBDepth)
	assert.Equal(t, 3, cfg.Observation.NrOfLOBs)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "app:\n  environment: test\n")
	t.Setenv("OPTEXEC_POLICY_KIND", "random")
	t.Setenv("OPTEXEC_EVALUATION_EPISODES", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "random", cfg.Policy.Kind)
	assert.Equal(t, 7, cfg.Evaluation.Episodes)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		"app:",
		"  environment: test",
		"simulation:",
		"  direction: hold",
		"  min_steps: 10",
		"  max_steps: 5",
		"observation:",
		"  lob_depth: 0",
		"policy:",
		"  kind: openai",
		"",
	}, "\n"))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "配置校验失败")
	assert.Contains(t, err.Error(), "simulation.direction")
	assert.Contains(t, err.Error(), "simulation.min_steps")
	assert.Contains(t, err.Error(), "observation.lob_depth")
	assert.Contains(t, err.Error(), "openai.api_key")
}

func TestValidate_CaptureModeNeedsExchange(t *testing.T) {
	cfg := validConfig()
	cfg.App.Mode = ModeCapture
	cfg.Exchange = ExchangeConfig{}
	cfg.Capture = CaptureConfig{}

	err := cfg.Validate()
	require.Error(t, err)
	assert.GreaterOrEqual(t, len(multierr.Errors(unwrapOnce(err))), 5)

	require.NoError(t, validConfig().Validate())
}

func TestValidate_PlacementAndVolumeProfile(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(s *SimulationConfig)
		wantErr string
	}{
		{name: "placement at bucket end", mutate: func(s *SimulationConfig) { s.Placement = []float64{1} }},
		{name: "profile", mutate: func(s *SimulationConfig) { s.VolumeProfile = []float64{1, 0, 3} }},
		{name: "placement above one", mutate: func(s *SimulationConfig) { s.Placement = []float64{1.1} }, wantErr: "simulation.placement"},
		{name: "negative weight", mutate: func(s *SimulationConfig) { s.VolumeProfile = []float64{1, -1} }, wantErr: "不能为负"},
		{name: "all zero weights", mutate: func(s *SimulationConfig) { s.VolumeProfile = []float64{0, 0} }, wantErr: "至少需要一个正权重"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg.Simulation)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func unwrapOnce(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return err
}

func validConfig() Config {
	return Config{
		App: AppConfig{Environment: "test", Mode: ModeEvaluate},
		Simulation: SimulationConfig{
			Direction: "buy", Quantity: 25, MinSteps: 60, MaxSteps: 60,
			TickInterval: time.Second, BucketSize: 10 * time.Second, Placement: []float64{0.5},
			Remainder: "first", Anchor: "start", VolumePrecision: 1, PenaltyDepth: 5, MaxActionScale: 1,
		},
		Observation: ObservationConfig{LOBDepth: 5, NrOfLOBs: 1, Normalize: true},
		Feed: FeedConfig{
			Source: "synthetic",
			Symbol: "TEST",
			Synthetic: SyntheticFeedConfig{
				Interval: time.Second, BestBid: 29.9, BestAsk: 30, Levels: 3, PriceTick: 0.1, LevelVolume: 1,
			},
		},
		Evaluation: EvaluationConfig{Episodes: 1, Workers: 1},
		Policy:     PolicyConfig{Kind: "constant", Scale: 0.5},
		Database:   DatabaseConfig{InMemory: true},
		Logging:    LoggingConfig{Level: "info", Encoding: "console"},
	}
}
