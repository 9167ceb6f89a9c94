package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/paygate-labs/transaction-risk-engine/internal/domain/errors"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/risk"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server    ServerConfig    `koanf:"server"`
	Redis     RedisConfig     `koanf:"redis"`
	Telemetry TelemetryConfig `koanf:"telemetry"`

	Velocity VelocityConfig `koanf:"velocity"`
	Baseline BaselineConfig `koanf:"baseline"`
	Anomaly  AnomalyConfig  `koanf:"anomaly"`
	Signals  SignalsConfig  `koanf:"signals"`
	Scoring  ScoringConfig  `koanf:"scoring"`
	Feedback FeedbackConfig `koanf:"feedback"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type RedisConfig struct {
	Enabled      bool          `koanf:"enabled"`
	URL          string        `koanf:"url"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	ServiceName  string  `koanf:"service_name"`
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	SamplingRate float64 `koanf:"sampling_rate"`
}

type VelocityConfig struct {
	WindowSpan    time.Duration `koanf:"window_span"`
	MaxEntries    int           `koanf:"max_entries"`
	InactiveAfter time.Duration `koanf:"inactive_after"`
	PruneInterval time.Duration `koanf:"prune_interval"`
}

type BaselineConfig struct {
	TTL            time.Duration `koanf:"ttl"`
	Lookback       time.Duration `koanf:"lookback"`
	MaxHistory     int           `koanf:"max_history"`
	MinSamples     int           `koanf:"min_samples"`
	CommonMinShare float64       `koanf:"common_min_share"`
}

type AnomalyConfig struct {
	ZThreshold       float64  `koanf:"z_threshold"`
	HighRiskKeywords []string `koanf:"high_risk_keywords"`
	FuzzyDistance    int      `koanf:"fuzzy_distance"`
	LateNightStart   int      `koanf:"late_night_start"`
	LateNightEnd     int      `koanf:"late_night_end"`
}

type SignalsConfig struct {
	// Timeout bounds one whole signal fan-out
	Timeout   time.Duration             `koanf:"timeout"`
	Defaults  SourceSettings            `koanf:"defaults"`
	Sources   map[string]SourceSettings `koanf:"sources"`
	Fallbacks map[string][]string       `koanf:"fallbacks"`

	Geolocation HTTPSourceConfig `koanf:"geolocation"`
	Identity    HTTPSourceConfig `koanf:"identity"`
	FraudList   FraudListConfig  `koanf:"fraud_list"`
}

type SourceSettings struct {
	// Quota is the allowed calls per rolling minute
	Quota            int           `koanf:"quota"`
	FailureThreshold int           `koanf:"failure_threshold"`
	Cooldown         time.Duration `koanf:"cooldown"`
	CacheTTL         time.Duration `koanf:"cache_ttl"`
	Timeout          time.Duration `koanf:"timeout"`
}

type HTTPSourceConfig struct {
	Enabled bool   `koanf:"enabled"`
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
}

type FraudListConfig struct {
	Enabled   bool               `koanf:"enabled"`
	Merchants map[string]float64 `koanf:"merchants"`
	IPs       map[string]float64 `koanf:"ips"`
}

type ScoringConfig struct {
	Weights     map[string]float64   `koanf:"weights"`
	Thresholds  risk.LevelThresholds `koanf:"thresholds"`
	BreachScore float64              `koanf:"breach_score"`

	// BurstCount transactions within BurstWindow produce a velocity factor
	BurstWindow time.Duration `koanf:"burst_window"`
	BurstCount  int           `koanf:"burst_count"`

	MaxConcurrent int `koanf:"max_concurrent"`
}

type FeedbackConfig struct {
	MinSamples     int     `koanf:"min_samples"`
	PrecisionFloor float64 `koanf:"precision_floor"`
	RecallFloor    float64 `koanf:"recall_floor"`
	Step           float64 `koanf:"step"`
}

// Default returns the configuration the engine runs with when nothing
// overrides it
func Default() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			URL:          "localhost:6379",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "risk-engine",
			OTLPEndpoint: "localhost:4317",
			SamplingRate: 1.0,
		},
		Velocity: VelocityConfig{
			WindowSpan:    time.Hour,
			MaxEntries:    256,
			InactiveAfter: 24 * time.Hour,
			PruneInterval: 5 * time.Minute,
		},
		Baseline: BaselineConfig{
			TTL:            15 * time.Minute,
			Lookback:       90 * 24 * time.Hour,
			MaxHistory:     200,
			MinSamples:     5,
			CommonMinShare: 0.05,
		},
		Anomaly: AnomalyConfig{
			ZThreshold: 2.5,
			HighRiskKeywords: []string{
				"casino", "gambling", "betting", "lottery", "crypto",
				"pawn", "wire transfer", "escort", "darkweb",
			},
			FuzzyDistance:  1,
			LateNightStart: 2,
			LateNightEnd:   5,
		},
		Signals: SignalsConfig{
			Timeout: 800 * time.Millisecond,
			Defaults: SourceSettings{
				Quota:            60,
				FailureThreshold: 5,
				Cooldown:         30 * time.Second,
				CacheTTL:         5 * time.Minute,
				Timeout:          400 * time.Millisecond,
			},
		},
		Scoring: ScoringConfig{
			Weights: map[string]float64{
				"amount":         0.25,
				"merchant":       0.20,
				"geographic":     0.20,
				"temporal":       0.15,
				"velocity":       0.10,
				"behavioral":     0.20,
				"geolocation":    0.20,
				"identity":       0.15,
				"fraud_database": 0.15,
			},
			Thresholds:    risk.DefaultLevelThresholds(),
			BreachScore:   0.8,
			BurstWindow:   10 * time.Minute,
			BurstCount:    3,
			MaxConcurrent: 8,
		},
		Feedback: FeedbackConfig{
			MinSamples:     10,
			PrecisionFloor: 0.7,
			RecallFloor:    0.7,
			Step:           0.05,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// RISK_* environment variables, then validates it. A missing file at the
// default path is fine; an explicitly given path must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	explicit := path != ""
	if path == "" {
		path = "configs/risk.yaml"
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// RISK_SCORING__BURST_COUNT=5 overrides scoring.burst_count
	if err := k.Load(env.Provider("RISK_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "RISK_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations that must never reach an evaluation.
// Threshold monotonicity in particular is checked here so a bad deploy
// fails at startup instead of misclassifying traffic.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.NewConfigurationError("log_level",
			fmt.Sprintf("unknown log level %q", c.LogLevel))
	}

	if err := c.Scoring.Thresholds.Validate(); err != nil {
		return err
	}
	for name, w := range c.Scoring.Weights {
		if w <= 0 {
			return errors.NewConfigurationError("scoring.weights",
				fmt.Sprintf("weight for %q must be positive, got %v", name, w))
		}
	}
	if c.Scoring.BreachScore <= 0 || c.Scoring.BreachScore > 1 {
		return errors.NewConfigurationError("scoring.breach_score",
			fmt.Sprintf("breach score must lie in (0, 1], got %v", c.Scoring.BreachScore))
	}
	if c.Scoring.BurstCount < 1 {
		return errors.NewConfigurationError("scoring.burst_count", "burst count must be at least 1")
	}
	if c.Scoring.BurstWindow <= 0 {
		return errors.NewConfigurationError("scoring.burst_window", "burst window must be positive")
	}

	if c.Velocity.WindowSpan <= 0 {
		return errors.NewConfigurationError("velocity.window_span", "window span must be positive")
	}
	if c.Scoring.BurstWindow > c.Velocity.WindowSpan {
		return errors.NewConfigurationError("scoring.burst_window",
			"burst window cannot exceed the velocity window span")
	}

	if c.Baseline.TTL <= 0 {
		return errors.NewConfigurationError("baseline.ttl", "baseline TTL must be positive")
	}
	if c.Baseline.MinSamples < 1 {
		return errors.NewConfigurationError("baseline.min_samples", "min samples must be at least 1")
	}

	if c.Anomaly.ZThreshold <= 0 {
		return errors.NewConfigurationError("anomaly.z_threshold", "z-score threshold must be positive")
	}
	if c.Anomaly.LateNightStart < 0 || c.Anomaly.LateNightEnd > 23 ||
		c.Anomaly.LateNightStart > c.Anomaly.LateNightEnd {
		return errors.NewConfigurationError("anomaly.late_night",
			fmt.Sprintf("late night window [%d, %d] is not a valid hour range",
				c.Anomaly.LateNightStart, c.Anomaly.LateNightEnd))
	}

	if err := validateSourceSettings("signals.defaults", c.Signals.Defaults); err != nil {
		return err
	}
	for name, settings := range c.Signals.Sources {
		if err := validateSourceSettings("signals.sources."+name, settings); err != nil {
			return err
		}
	}

	if c.Feedback.MinSamples < 1 {
		return errors.NewConfigurationError("feedback.min_samples", "min samples must be at least 1")
	}
	if c.Feedback.PrecisionFloor <= 0 || c.Feedback.PrecisionFloor > 1 {
		return errors.NewConfigurationError("feedback.precision_floor", "precision floor must lie in (0, 1]")
	}
	if c.Feedback.RecallFloor <= 0 || c.Feedback.RecallFloor > 1 {
		return errors.NewConfigurationError("feedback.recall_floor", "recall floor must lie in (0, 1]")
	}
	if c.Feedback.Step <= 0 || c.Feedback.Step > 0.5 {
		return errors.NewConfigurationError("feedback.step", "threshold step must lie in (0, 0.5]")
	}

	return nil
}

func validateSourceSettings(field string, s SourceSettings) error {
	if s.Quota < 0 {
		return errors.NewConfigurationError(field, "quota cannot be negative")
	}
	if s.FailureThreshold < 0 {
		return errors.NewConfigurationError(field, "failure threshold cannot be negative")
	}
	if s.Cooldown < 0 || s.CacheTTL < 0 || s.Timeout < 0 {
		return errors.NewConfigurationError(field, "durations cannot be negative")
	}
	return nil
}

// SourceSettingsFor resolves settings for one source, filling unset
// fields from the defaults block
func (c *SignalsConfig) SourceSettingsFor(name string) SourceSettings {
	s, ok := c.Sources[name]
	if !ok {
		return c.Defaults
	}
	if s.Quota == 0 {
		s.Quota = c.Defaults.Quota
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = c.Defaults.FailureThreshold
	}
	if s.Cooldown == 0 {
		s.Cooldown = c.Defaults.Cooldown
	}
	if s.CacheTTL == 0 {
		s.CacheTTL = c.Defaults.CacheTTL
	}
	if s.Timeout == 0 {
		s.Timeout = c.Defaults.Timeout
	}
	return s
}
