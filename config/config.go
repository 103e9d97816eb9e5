// Package config loads the fxf settings from defaults, an optional fxfolio.yaml file, a .env
// file and FXF_ prefixed environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/etnz/fxfolio"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Providers of market data.
const (
	Yahoo = "yahoo"
	EODHD = "eodhd"
)

// Config is the root configuration.
type Config struct {
	Provider    string             `mapstructure:"provider"` // "yahoo" or "eodhd"
	Yahoo       YahooConfig        `mapstructure:"yahoo"`
	EODHD       EODHDConfig        `mapstructure:"eodhd"`
	HTTP        HTTPConfig         `mapstructure:"http"`
	Currency    CurrencyConfig     `mapstructure:"currency"`
	Rates       RatesConfig        `mapstructure:"rates"`
	Quotes      QuotesConfig       `mapstructure:"quotes"`
	Suggestions fxfolio.Thresholds `mapstructure:"suggestions"`
	Logging     LoggingConfig      `mapstructure:"logging"`
	Metrics     MetricsConfig      `mapstructure:"metrics"`
}

type YahooConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type EODHDConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type HTTPConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"` // 0 disables the limiter
	Burst             int           `mapstructure:"burst"`
	Cache             bool          `mapstructure:"cache"`
	CacheDir          string        `mapstructure:"cache_dir"`
	CachePeriod       string        `mapstructure:"cache_period"` // daily, weekly or monthly
	Breaker           uint32        `mapstructure:"breaker"`      // consecutive failures, 0 disables it
	BreakerCooldown   time.Duration `mapstructure:"breaker_cooldown"`
}

type CurrencyConfig struct {
	Source       string  `mapstructure:"source"`
	Target       string  `mapstructure:"target"`
	Pair         string  `mapstructure:"pair"`
	FixedRate    float64 `mapstructure:"fixed_rate"`    // scalar rate of the current mode
	FallbackRate float64 `mapstructure:"fallback_rate"` // rate of a day that could not be fetched
}

type RatesConfig struct {
	Attempts     int           `mapstructure:"attempts"`
	BaseDelay    time.Duration `mapstructure:"base_delay"` // doubled after each failure
	WindowBefore int           `mapstructure:"window_before"`
	WindowAfter  int           `mapstructure:"window_after"`
	KeyDelay     time.Duration `mapstructure:"key_delay"`
	Concurrency  int           `mapstructure:"concurrency"`
}

type QuotesConfig struct {
	BatchSize    int           `mapstructure:"batch_size"`
	BatchDelay   time.Duration `mapstructure:"batch_delay"`
	Attempts     int           `mapstructure:"attempts"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	SingleDelay  time.Duration `mapstructure:"single_base_delay"` // tickers retried alone, doubled after each failure
	LookbackDays int           `mapstructure:"lookback_days"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format"` // "text" or "json"
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"` // node_exporter textfile path, empty to skip
}

// Load reads the configuration. An empty path searches fxfolio.yaml in the working
// directory then in $HOME/.fxfolio, and a missing file is not an error.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fxfolio")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(homeDir(), ".fxfolio"))
	}

	v.SetEnvPrefix("FXF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", Yahoo)
	v.SetDefault("yahoo.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("eodhd.base_url", "https://eodhd.com")
	v.SetDefault("eodhd.api_key", "")

	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.requests_per_second", 2.0)
	v.SetDefault("http.burst", 2)
	v.SetDefault("http.cache", true)
	v.SetDefault("http.cache_dir", "")
	v.SetDefault("http.cache_period", "daily")
	v.SetDefault("http.breaker", 5)
	v.SetDefault("http.breaker_cooldown", 30*time.Second)

	v.SetDefault("currency.source", "USD")
	v.SetDefault("currency.target", "INR")
	v.SetDefault("currency.pair", "USDINR=X")
	v.SetDefault("currency.fixed_rate", 88.57)
	v.SetDefault("currency.fallback_rate", 83.0)

	v.SetDefault("rates.attempts", 3)
	v.SetDefault("rates.base_delay", time.Second)
	v.SetDefault("rates.window_before", 5)
	v.SetDefault("rates.window_after", 1)
	v.SetDefault("rates.key_delay", 500*time.Millisecond)
	v.SetDefault("rates.concurrency", 1)

	v.SetDefault("quotes.batch_size", 10)
	v.SetDefault("quotes.batch_delay", time.Second)
	v.SetDefault("quotes.attempts", 3)
	v.SetDefault("quotes.retry_delay", 2*time.Second)
	v.SetDefault("quotes.single_base_delay", time.Second)
	v.SetDefault("quotes.lookback_days", 5)

	th := fxfolio.DefaultThresholds()
	v.SetDefault("suggestions.volatile_daily_loss", th.VolatileDailyLoss)
	v.SetDefault("suggestions.book_profit_gain", th.BookProfitGain)
	v.SetDefault("suggestions.book_profit_daily_pct", th.BookProfitDailyPct)
	v.SetDefault("suggestions.buy_more_gain", th.BuyMoreGain)
	v.SetDefault("suggestions.buy_more_daily_pct", th.BuyMoreDailyPct)
	v.SetDefault("suggestions.top", th.Top)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("metrics.textfile", "")
}

// overrideFromEnv reads the unprefixed variables commonly found in .env files.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("EODHD_API_KEY"); key != "" && cfg.EODHD.APIKey == "" {
		cfg.EODHD.APIKey = key
	}
}

// Validate checks the values that would otherwise fail late, during a fetch.
func (c *Config) Validate() error {
	var errs []error
	switch c.Provider {
	case Yahoo:
	case EODHD:
		if c.EODHD.APIKey == "" {
			errs = append(errs, errors.New("provider eodhd requires eodhd.api_key (or EODHD_API_KEY)"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q, want %q or %q", c.Provider, Yahoo, EODHD))
	}
	if c.Currency.Source == "" || c.Currency.Target == "" || c.Currency.Pair == "" {
		errs = append(errs, errors.New("currency.source, currency.target and currency.pair are required"))
	}
	if c.Currency.FixedRate <= 0 || c.Currency.FallbackRate <= 0 {
		errs = append(errs, errors.New("currency rates must be positive"))
	}
	if c.Rates.Attempts < 1 || c.Quotes.Attempts < 1 {
		errs = append(errs, errors.New("attempts must be at least 1"))
	}
	if c.Quotes.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("invalid quotes.batch_size %d", c.Quotes.BatchSize))
	}
	if c.Rates.WindowBefore < 0 || c.Rates.WindowAfter < 0 {
		errs = append(errs, errors.New("rate windows cannot be negative"))
	}
	return errors.Join(errs...)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
