package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"stock-forecast-api/internal/montecarlo"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Port        string `yaml:"port"`
		Environment string `yaml:"environment"`
		BodyLimitMB int    `yaml:"body_limit_mb"`
		RateLimit   int    `yaml:"rate_limit_per_minute"`
	} `yaml:"server"`
	MarketData struct {
		AlphaVantageKey      string `yaml:"alpha_vantage_key"`
		AlphaVantageBaseURL  string `yaml:"alpha_vantage_base_url"`
		YahooBaseURL         string `yaml:"yahoo_base_url"`
		HistoryRange         string `yaml:"history_range"`
		MaxConcurrentFetches int    `yaml:"max_concurrent_fetches"`
	} `yaml:"market_data"`
	Forecast ForecastConfig `yaml:"forecast"`
	Cache    struct {
		TTL              time.Duration `yaml:"ttl"`
		FirestoreProject string        `yaml:"firestore_project"`
		RedisAddr        string        `yaml:"redis_addr"`
		RedisPassword    string        `yaml:"redis_password"`
	} `yaml:"cache"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Tracing struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"tracing"`
	Warmer struct {
		Cron    string   `yaml:"cron"`
		Symbols []string `yaml:"symbols"`
	} `yaml:"warmer"`
}

// ForecastConfig holds the default simulation parameters.
type ForecastConfig struct {
	NumSimulations int    `yaml:"num_simulations"`
	NumDays        int    `yaml:"num_days"`
	Workers        int    `yaml:"workers"`
	Seed           *int64 `yaml:"seed"`
}

// SimulationConfig converts the forecast defaults into a simulation config.
func (f ForecastConfig) SimulationConfig() montecarlo.SimulationConfig {
	cfg := montecarlo.SimulationConfig{
		NumSimulations: f.NumSimulations,
		NumDays:        f.NumDays,
	}
	if f.Seed != nil {
		cfg = cfg.WithSeed(*f.Seed)
	}
	return cfg
}

var historyRanges = map[string]bool{
	"5d": true, "1mo": true, "3mo": true, "6mo": true,
	"1y": true, "2y": true, "5y": true, "10y": true, "ytd": true, "max": true,
}

// Load reads .env, then the YAML file at path, then applies environment
// variable overrides and defaults. Missing files are not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Server.Environment = v
	}
	if v := os.Getenv("ALPHA_VANTAGE_KEY"); v != "" {
		cfg.MarketData.AlphaVantageKey = v
	}
	if v := os.Getenv("HISTORY_RANGE"); v != "" {
		cfg.MarketData.HistoryRange = v
	}
	if v := os.Getenv("FIRESTORE_PROJECT_ID"); v != "" {
		cfg.Cache.FirestoreProject = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse CACHE_TTL: %w", err)
		}
		cfg.Cache.TTL = ttl
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse TRACING_ENABLED: %w", err)
		}
		cfg.Tracing.Enabled = enabled
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"FORECAST_SIMULATIONS", &cfg.Forecast.NumSimulations},
		{"FORECAST_DAYS", &cfg.Forecast.NumDays},
		{"FORECAST_WORKERS", &cfg.Forecast.Workers},
	}
	for _, e := range ints {
		if v := os.Getenv(e.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", e.key, err)
			}
			*e.dst = n
		}
	}
	if v := os.Getenv("FORECAST_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse FORECAST_SEED: %w", err)
		}
		cfg.Forecast.Seed = &seed
	}

	if v := os.Getenv("WARM_CRON"); v != "" {
		cfg.Warmer.Cron = v
	}
	if v := os.Getenv("WARM_SYMBOLS"); v != "" {
		cfg.Warmer.Symbols = splitSymbols(v)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = "production"
	}
	if cfg.Server.BodyLimitMB == 0 {
		cfg.Server.BodyLimitMB = 4
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 100
	}
	if cfg.MarketData.HistoryRange == "" {
		cfg.MarketData.HistoryRange = "1mo"
	}
	if cfg.MarketData.MaxConcurrentFetches == 0 {
		cfg.MarketData.MaxConcurrentFetches = 10
	}
	if cfg.Forecast.NumSimulations == 0 {
		cfg.Forecast.NumSimulations = montecarlo.DefaultNumSimulations
	}
	if cfg.Forecast.NumDays == 0 {
		cfg.Forecast.NumDays = montecarlo.DefaultNumDays
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if len(cfg.Warmer.Symbols) > 0 && cfg.Warmer.Cron == "" {
		cfg.Warmer.Cron = "@hourly"
	}
	for i, s := range cfg.Warmer.Symbols {
		cfg.Warmer.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
}

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	if c.Forecast.NumSimulations <= 0 {
		return fmt.Errorf("forecast.num_simulations must be positive")
	}
	if c.Forecast.NumDays <= 0 {
		return fmt.Errorf("forecast.num_days must be positive")
	}
	if c.Forecast.Workers < 0 {
		return fmt.Errorf("forecast.workers must not be negative")
	}
	if c.MarketData.MaxConcurrentFetches <= 0 {
		return fmt.Errorf("market_data.max_concurrent_fetches must be positive")
	}
	if !historyRanges[c.MarketData.HistoryRange] {
		return fmt.Errorf("market_data.history_range %q is not a supported range", c.MarketData.HistoryRange)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console")
	}
	return nil
}

// IsDevelopment reports whether the service runs in a development environment.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

func splitSymbols(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
