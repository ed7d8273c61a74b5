package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration. Values come from an
// optional YAML file (CONFIG_PATH or ./config/orchestrator.yaml) with
// SURVEY_* environment overrides on top.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Survey  SurveyConfig  `mapstructure:"survey"`
	Prompts PromptsConfig `mapstructure:"prompts"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type LLMConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Model         string        `mapstructure:"model"`
	Temperature   float64       `mapstructure:"temperature"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	Timeout       time.Duration `mapstructure:"timeout"`
	StreamTimeout time.Duration `mapstructure:"stream_timeout"`
	RatePerMinute int           `mapstructure:"rate_per_minute"`

	Breaker BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	SuccessThreshold uint32        `mapstructure:"success_threshold"`
	MaxHalfOpen      uint32        `mapstructure:"max_half_open"`
	Interval         time.Duration `mapstructure:"interval"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

type SurveyConfig struct {
	MaxTailQuestions int  `mapstructure:"max_tail_questions"`
	MaxRetries       int  `mapstructure:"max_retries"`
	ReactionEnabled  bool `mapstructure:"reaction_enabled"`
	RingCapacity     int  `mapstructure:"ring_capacity"`
}

type PromptsConfig struct {
	Path string `mapstructure:"path"`
}

type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)

	v.SetDefault("llm.base_url", "http://model-gateway:8080")
	v.SetDefault("llm.model", "default")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 512)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.stream_timeout", 120*time.Second)
	v.SetDefault("llm.rate_per_minute", 0) // 0 disables the limiter

	v.SetDefault("llm.breaker.failure_threshold", 5)
	v.SetDefault("llm.breaker.success_threshold", 2)
	v.SetDefault("llm.breaker.max_half_open", 3)
	v.SetDefault("llm.breaker.interval", 60*time.Second)
	v.SetDefault("llm.breaker.open_timeout", 10*time.Second)

	v.SetDefault("survey.max_tail_questions", 2)
	v.SetDefault("survey.max_retries", 1)
	v.SetDefault("survey.reaction_enabled", false)
	v.SetDefault("survey.ring_capacity", 256)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "survey-orchestrator")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
}

// Load reads the configuration. A missing file is not an error; env
// overrides and defaults still apply.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SURVEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/orchestrator.yaml"
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		// no file: run on defaults + env
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
