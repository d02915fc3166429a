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

// Config captures the settings required to boot the risk-of-bias service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	LLM        LLMConfig        `yaml:"llm"`
	Assessment AssessmentConfig `yaml:"assessment"`
	Store      StoreConfig      `yaml:"store"`
	Cache      CacheConfig      `yaml:"cache"`
	Templates  TemplatesConfig  `yaml:"templates"`
}

// ServerConfig controls gRPC listener behaviour. MetricsAddress also serves the admin API.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// LLMConfig selects the chat-completion provider.
type LLMConfig struct {
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"apiKey"`
	BaseURL    string        `yaml:"baseURL"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"maxRetries"`
}

// AssessmentConfig tunes the assessor.
type AssessmentConfig struct {
	UncertaintyThreshold float64 `yaml:"uncertaintyThreshold"`
	MaxTextChars         int     `yaml:"maxTextChars"`
	GuidancePath         string  `yaml:"guidancePath"`
	BudgetLimit          float64 `yaml:"budgetLimit"`
}

// StoreConfig selects the durable store backend.
type StoreConfig struct {
	Driver   string        `yaml:"driver"`
	DSN      string        `yaml:"dsn"`
	Database string        `yaml:"database"`
	Timeout  time.Duration `yaml:"timeout"`
}

// CacheConfig controls the shared assessment and template cache.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Addr          string        `yaml:"addr"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	MaxRetries    int           `yaml:"maxRetries"`
	TLS           bool          `yaml:"tls"`
	AssessmentTTL time.Duration `yaml:"assessmentTTL"`
	TemplateTTL   time.Duration `yaml:"templateTTL"`
}

// TemplatesConfig configures the template directory watcher.
type TemplatesConfig struct {
	WatchDir     string `yaml:"watchDir"`
	WatchProject string `yaml:"watchProject"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MIRADOR_ROB_CONFIG")
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "mongo":
	default:
		return fmt.Errorf("store.driver %q must be memory, sqlite or mongo", c.Store.Driver)
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for driver %s", c.Store.Driver)
	}
	switch c.LLM.Provider {
	case "", "none", "anthropic", "openai", "gemini":
	default:
		return fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider)
	}
	if t := c.Assessment.UncertaintyThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("assessment.uncertaintyThreshold must be in (0,1], got %v", t)
	}
	if c.Assessment.BudgetLimit < 0 {
		return fmt.Errorf("assessment.budgetLimit must not be negative")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		LLM: LLMConfig{
			Provider:   "none",
			Timeout:    120 * time.Second,
			MaxRetries: 3,
		},
		Assessment: AssessmentConfig{
			UncertaintyThreshold: 0.7,
			MaxTextChars:         50000,
		},
		Store: StoreConfig{
			Driver:   "memory",
			Database: "mirador_rob",
			Timeout:  5 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:       false,
			DialTimeout:   2 * time.Second,
			ReadTimeout:   500 * time.Millisecond,
			WriteTimeout:  500 * time.Millisecond,
			MaxRetries:    2,
			AssessmentTTL: 24 * time.Hour,
			TemplateTTL:   10 * time.Minute,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRADOR_ROB_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MIRADOR_ROB_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("MIRADOR_ROB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIRADOR_ROB_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("MIRADOR_ROB_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("MIRADOR_ROB_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("MIRADOR_ROB_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("MIRADOR_ROB_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("MIRADOR_ROB_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.Timeout = d
		}
	}
	if v := os.Getenv("MIRADOR_ROB_UNCERTAINTY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Assessment.UncertaintyThreshold = f
		}
	}
	if v := os.Getenv("MIRADOR_ROB_BUDGET_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Assessment.BudgetLimit = f
		}
	}
	if v := os.Getenv("MIRADOR_ROB_GUIDANCE_PATH"); v != "" {
		cfg.Assessment.GuidancePath = v
	}
	if v := os.Getenv("MIRADOR_ROB_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("MIRADOR_ROB_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("MIRADOR_ROB_STORE_DATABASE"); v != "" {
		cfg.Store.Database = v
	}
	if v := os.Getenv("MIRADOR_ROB_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("MIRADOR_ROB_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("MIRADOR_ROB_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("MIRADOR_ROB_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("MIRADOR_ROB_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("MIRADOR_ROB_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("MIRADOR_ROB_CACHE_ASSESSMENT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.AssessmentTTL = d
		}
	}
	if v := os.Getenv("MIRADOR_ROB_CACHE_TEMPLATE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TemplateTTL = d
		}
	}
	if v := os.Getenv("MIRADOR_ROB_TEMPLATES_WATCH_DIR"); v != "" {
		cfg.Templates.WatchDir = v
	}
	if v := os.Getenv("MIRADOR_ROB_TEMPLATES_WATCH_PROJECT"); v != "" {
		cfg.Templates.WatchProject = v
	}
}
