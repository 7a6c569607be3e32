package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the insight engine.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	LLM        LLMConfig        `yaml:"llm"`
	Thresholds ThresholdConfig  `yaml:"thresholds"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit"`
	Workers    WorkerConfig     `yaml:"workers"`
	Store      StoreConfig      `yaml:"store"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LLMConfig selects and tunes the generation backends.
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Fallbacks   []string      `yaml:"fallbacks"`
	MaxRetries  int           `yaml:"maxRetries"`
	Timeout     time.Duration `yaml:"timeout"`
	BackoffBase time.Duration `yaml:"backoffBase"`
	BackoffCap  time.Duration `yaml:"backoffCap"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"maxTokens"`
	Gemini      GeminiConfig  `yaml:"gemini"`
	OpenAI      OpenAIConfig  `yaml:"openai"`
}

// GeminiConfig configures the Gemini generation backend.
type GeminiConfig struct {
	APIKey  string `yaml:"apiKey"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"baseURL"`
}

// OpenAIConfig configures the OpenAI generation backend.
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"baseURL"`
}

// ThresholdConfig holds severity cutoffs as percent-change magnitudes.
type ThresholdConfig struct {
	CriticalPct float64 `yaml:"criticalPct"`
	HighPct     float64 `yaml:"highPct"`
	MediumPct   float64 `yaml:"mediumPct"`
	ZScore      float64 `yaml:"zScore"`
}

// RateLimitConfig controls per-tenant fixed-window admission.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// WorkerConfig sizes the async task pool.
type WorkerConfig struct {
	Count     int `yaml:"count"`
	QueueSize int `yaml:"queueSize"`
}

// StoreConfig configures the Valkey-backed counter, task, and insight stores.
type StoreConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	TaskTTL      time.Duration `yaml:"taskTTL"`
	InsightTTL   time.Duration `yaml:"insightTTL"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("PYTHIA_INSIGHTS_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		LLM: LLMConfig{
			Provider:    "mock",
			MaxRetries:  3,
			Timeout:     30 * time.Second,
			BackoffBase: 200 * time.Millisecond,
			BackoffCap:  5 * time.Second,
			Temperature: 0.7,
			MaxTokens:   1000,
			Gemini: GeminiConfig{
				Model:   "gemini-2.5-flash-lite",
				BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			},
			OpenAI: OpenAIConfig{
				Model: "gpt-4-turbo-preview",
			},
		},
		Thresholds: ThresholdConfig{
			CriticalPct: 50,
			HighPct:     25,
			MediumPct:   10,
			ZScore:      3,
		},
		RateLimit: RateLimitConfig{
			Requests: 100,
			Window:   time.Hour,
		},
		Workers: WorkerConfig{
			Count:     4,
			QueueSize: 64,
		},
		Store: StoreConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			TaskTTL:      24 * time.Hour,
			InsightTTL:   90 * 24 * time.Hour,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func validate(cfg *Config) error {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "gemini", "openai", "mock":
	default:
		return fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
	if cfg.LLM.MaxRetries <= 0 {
		return fmt.Errorf("llm.maxRetries must be positive, got %d", cfg.LLM.MaxRetries)
	}
	if cfg.RateLimit.Requests <= 0 || cfg.RateLimit.Window <= 0 {
		return fmt.Errorf("ratelimit requires positive requests and window")
	}
	if cfg.Thresholds.MediumPct > cfg.Thresholds.HighPct || cfg.Thresholds.HighPct > cfg.Thresholds.CriticalPct {
		return fmt.Errorf("thresholds must be ordered medium <= high <= critical")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PYTHIA_INSIGHTS_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_LLM_FALLBACKS"); v != "" {
		parts := strings.Split(v, ",")
		fallbacks := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				fallbacks = append(fallbacks, p)
			}
		}
		cfg.LLM.Fallbacks = fallbacks
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_LLM_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.MaxRetries = n
		}
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_LLM_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.Timeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_GEMINI_API_KEY"); v != "" {
		cfg.LLM.Gemini.APIKey = v
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_GEMINI_MODEL"); v != "" {
		cfg.LLM.Gemini.Model = v
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_OPENAI_API_KEY"); v != "" {
		cfg.LLM.OpenAI.APIKey = v
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_OPENAI_MODEL"); v != "" {
		cfg.LLM.OpenAI.Model = v
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_SEVERITY_THRESHOLD_CRITICAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Thresholds.CriticalPct = f
		}
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_SEVERITY_THRESHOLD_HIGH"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Thresholds.HighPct = f
		}
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_SEVERITY_THRESHOLD_MEDIUM"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Thresholds.MediumPct = f
		}
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_RATE_LIMIT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.Requests = n
		}
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_RATE_LIMIT_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.Window = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers.Count = n
		}
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_STORE_ADDR"); v != "" {
		cfg.Store.Addr = v
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_STORE_ENABLED"); v != "" {
		cfg.Store.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_STORE_USERNAME"); v != "" {
		cfg.Store.Username = v
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_STORE_PASSWORD"); v != "" {
		cfg.Store.Password = v
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_STORE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Store.DB = db
		}
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_STORE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Store.TLS = true
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PYTHIA_INSIGHTS_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}
