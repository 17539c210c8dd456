package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Gate       GateConfig       `yaml:"gate"`
	Filter     FilterConfig     `yaml:"filter"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Routing    RoutingConfig    `yaml:"routing"`
	Audit      AuditConfig      `yaml:"audit"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPath string `yaml:"metrics_path"`
}

// GateConfig controls the orchestrator.
type GateConfig struct {
	// DetectorTimeout bounds every detector unless the detector sets its own.
	DetectorTimeout time.Duration `yaml:"detector_timeout"`
	// CancelOnDecisive cancels in-flight model detectors once a banned word hit is seen.
	CancelOnDecisive bool              `yaml:"cancel_on_decisive"`
	RoutePolicy      RoutePolicyConfig `yaml:"route_policy"`
}

type RoutePolicyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

type FilterConfig struct {
	BannedWord BannedWordFilterConfig `yaml:"banned_word"`
	Injection  InjectionFilterConfig  `yaml:"injection"`
	Politics   PoliticsFilterConfig   `yaml:"politics"`
}

type BannedWordFilterConfig struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

type InjectionFilterConfig struct {
	Enabled  bool          `yaml:"enabled"`
	ModelID  string        `yaml:"model_id"`
	PromptID string        `yaml:"prompt_id"`
	Timeout  time.Duration `yaml:"timeout"`
	// Heuristics enables the local regex rules. Hits are flagged, never blocked.
	Heuristics bool `yaml:"heuristics"`
}

type PoliticsFilterConfig struct {
	Enabled  bool          `yaml:"enabled"`
	ModelID  string        `yaml:"model_id"`
	PromptID string        `yaml:"prompt_id"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ClassifierConfig is the ordered complexity cascade. The first stage that
// answers yes decides; if none does the message is complex.
type ClassifierConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Stages  []StageConfig `yaml:"stages"`
}

type StageConfig struct {
	Name     string `yaml:"name"`
	ModelID  string `yaml:"model_id"`
	PromptID string `yaml:"prompt_id"`
	OnYes    string `yaml:"on_yes"`
	// Signal is recorded on the result when the stage answers yes:
	// "deep_research", "simple_task" or empty.
	Signal string `yaml:"signal"`
}

// RoutingConfig governs calls to model providers.
type RoutingConfig struct {
	// DefaultTimeout bounds a single provider attempt.
	DefaultTimeout time.Duration        `yaml:"default_timeout"`
	MaxRetries     int                  `yaml:"max_retries"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

// RateLimitConfig caps evaluations per caller on the HTTP surface.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

type AuditConfig struct {
	Enabled      bool          `yaml:"enabled"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      10 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "inner_bot",
			User:            "inner_bot",
			MaxOpenConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  20,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPath: "/metrics",
		},
		Gate: GateConfig{
			DetectorTimeout:  5 * time.Second,
			CancelOnDecisive: true,
			RoutePolicy: RoutePolicyConfig{
				Enabled:           false,
				BundlePath:        "configs/policies",
				EvaluationTimeout: 50 * time.Millisecond,
			},
		},
		Filter: FilterConfig{
			BannedWord: BannedWordFilterConfig{
				Enabled: true,
				Timeout: 500 * time.Millisecond,
			},
			Injection: InjectionFilterConfig{
				Enabled:    true,
				ModelID:    "guard-model",
				PromptID:   "guard_prompt_injection",
				Heuristics: true,
			},
			Politics: PoliticsFilterConfig{
				Enabled:  true,
				ModelID:  "guard-model",
				PromptID: "guard_sensitive_politics",
			},
		},
		Classifier: ClassifierConfig{
			Timeout: 5 * time.Second,
			Stages: []StageConfig{
				{
					Name:     "deep_research",
					ModelID:  "guard-model",
					PromptID: "guard_deep_research",
					OnYes:    "complex",
					Signal:   "deep_research",
				},
				{
					Name:     "simple_task",
					ModelID:  "guard-model",
					PromptID: "guard_simple_task",
					OnYes:    "simple",
					Signal:   "simple_task",
				},
			},
		},
		Routing: RoutingConfig{
			DefaultTimeout: 2 * time.Second,
			MaxRetries:     1,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:      5,
				RecoveryProbeInterval: 15 * time.Second,
			},
		},
		Audit: AuditConfig{
			Enabled:      true,
			WriteTimeout: 2 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 600,
		},
	}
}
