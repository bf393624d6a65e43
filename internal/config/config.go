package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Env override names. Every value in the JSON file can also be set through
// the environment; env wins over file.
const (
	envConfigPath       = "STOCK_ADVISOR_CONFIG"
	envDataDir          = "STOCK_ADVISOR_DATA_DIR"
	envPort             = "STOCK_ADVISOR_PORT"
	envGenProvider      = "STOCK_ADVISOR_GENERATION_PROVIDER"
	envGenAPIKey        = "STOCK_ADVISOR_GENERATION_API_KEY"
	envGenModel         = "STOCK_ADVISOR_GENERATION_MODEL"
	envGenBaseURL       = "STOCK_ADVISOR_GENERATION_BASE_URL"
	envPrimaryProvider  = "STOCK_ADVISOR_PRIMARY_PROVIDER"
	envFallbackProvider = "STOCK_ADVISOR_FALLBACK_PROVIDER"
	envMaxDailyCost     = "STOCK_ADVISOR_MAX_DAILY_COST"
	envMaxMonthlyCost   = "STOCK_ADVISOR_MAX_MONTHLY_COST"
)

// ServerConfig covers the HTTP listener and logging.
type ServerConfig struct {
	Port     int    `json:"port"`
	LogDir   string `json:"log_dir"`
	LogLevel string `json:"log_level"`
}

// ProvidersConfig selects the market data sources.
type ProvidersConfig struct {
	Primary  string `json:"primary"`
	Fallback string `json:"fallback"`
}

// GenerationConfig selects and authenticates the narration backend.
type GenerationConfig struct {
	Provider    string  `json:"provider"`
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	BaseURL     string  `json:"base_url"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// LimitsConfig tunes rate limiting, circuit breaking, and retries.
type LimitsConfig struct {
	AnalyzeWindowSec    int `json:"analyze_window_sec"`
	AnalyzeMaxRequests  int `json:"analyze_max_requests"`
	ProviderWindowSec   int `json:"provider_window_sec"`
	ProviderMaxRequests int `json:"provider_max_requests"`
	FailureThreshold    int `json:"failure_threshold"`
	RecoveryTimeoutSec  int `json:"recovery_timeout_sec"`
	MaxRetries          int `json:"max_retries"`
	BaseDelayMs         int `json:"base_delay_ms"`
	MaxDelayMs          int `json:"max_delay_ms"`
	CallTimeoutSec      int `json:"call_timeout_sec"`
}

// CostConfig caps generation spend in USD. Zero disables a ceiling.
type CostConfig struct {
	MaxDailyCost   float64 `json:"max_daily_cost"`
	MaxMonthlyCost float64 `json:"max_monthly_cost"`
}

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Providers  ProvidersConfig  `json:"providers"`
	Generation GenerationConfig `json:"generation"`
	Limits     LimitsConfig     `json:"limits"`
	Cost       CostConfig       `json:"cost"`
	// DataDir holds the sqlite state store and log files. Empty keeps all
	// resilience state in memory and logs under ./logs.
	DataDir string `json:"data_dir"`
}

// Default returns the configuration used when no file or env is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:     8000,
			LogDir:   "logs",
			LogLevel: "info",
		},
		Providers: ProvidersConfig{
			Primary:  "yahoo",
			Fallback: "stooq",
		},
		Generation: GenerationConfig{
			Provider:    "mock",
			MaxTokens:   1024,
			Temperature: 0.2,
		},
		Limits: LimitsConfig{
			AnalyzeWindowSec:    60,
			AnalyzeMaxRequests:  10,
			ProviderWindowSec:   60,
			ProviderMaxRequests: 30,
			FailureThreshold:    5,
			RecoveryTimeoutSec:  30,
			MaxRetries:          2,
			BaseDelayMs:         500,
			MaxDelayMs:          8000,
			CallTimeoutSec:      15,
		},
		Cost: CostConfig{
			MaxDailyCost:   5,
			MaxMonthlyCost: 50,
		},
	}
}

// Load reads the config file (explicit path, $STOCK_ADVISOR_CONFIG, or
// ./config.json) over the defaults, then applies env overrides. A missing
// file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(envConfigPath)
	}
	if path == "" {
		if cwd, err := os.Getwd(); err == nil {
			candidate := filepath.Join(cwd, "config.json")
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := envString(envDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := envString(envPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if v := envString(envGenProvider); v != "" {
		cfg.Generation.Provider = v
	}
	if v := envString(envGenAPIKey); v != "" {
		cfg.Generation.APIKey = v
	}
	if v := envString(envGenModel); v != "" {
		cfg.Generation.Model = v
	}
	if v := envString(envGenBaseURL); v != "" {
		cfg.Generation.BaseURL = v
	}
	if v := envString(envPrimaryProvider); v != "" {
		cfg.Providers.Primary = v
	}
	if v := envString(envFallbackProvider); v != "" {
		cfg.Providers.Fallback = v
	}
	if v := envString(envMaxDailyCost); v != "" {
		if cost, err := strconv.ParseFloat(v, 64); err == nil && cost >= 0 {
			cfg.Cost.MaxDailyCost = cost
		}
	}
	if v := envString(envMaxMonthlyCost); v != "" {
		if cost, err := strconv.ParseFloat(v, 64); err == nil && cost >= 0 {
			cfg.Cost.MaxMonthlyCost = cost
		}
	}
}

func envString(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

// Save writes the configuration as indented JSON.
func Save(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// StatePath returns the sqlite state store location, or "" when DataDir is
// unset (in-memory state).
func (c Config) StatePath() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, "advisor-state.db")
}

// LogDir resolves the log directory, preferring DataDir when set.
func (c Config) LogDir() string {
	if c.Server.LogDir != "" && filepath.IsAbs(c.Server.LogDir) {
		return c.Server.LogDir
	}
	if c.DataDir != "" {
		return filepath.Join(c.DataDir, "logs")
	}
	if c.Server.LogDir != "" {
		return c.Server.LogDir
	}
	return "logs"
}

// AnalyzeWindow and friends convert the integer file fields into durations.
func (l LimitsConfig) AnalyzeWindow() time.Duration {
	return time.Duration(l.AnalyzeWindowSec) * time.Second
}

func (l LimitsConfig) ProviderWindow() time.Duration {
	return time.Duration(l.ProviderWindowSec) * time.Second
}

func (l LimitsConfig) RecoveryTimeout() time.Duration {
	return time.Duration(l.RecoveryTimeoutSec) * time.Second
}

func (l LimitsConfig) BaseDelay() time.Duration {
	return time.Duration(l.BaseDelayMs) * time.Millisecond
}

func (l LimitsConfig) MaxDelay() time.Duration {
	return time.Duration(l.MaxDelayMs) * time.Millisecond
}

func (l LimitsConfig) CallTimeout() time.Duration {
	return time.Duration(l.CallTimeoutSec) * time.Second
}
