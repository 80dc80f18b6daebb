package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"priceflow/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the monitoring heartbeat.
type SchedulerConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	AlignToTick  bool          `mapstructure:"align_to_tick"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// BrowserConfig covers the remote browser endpoint and stealth behaviour.
type BrowserConfig struct {
	ControlURL         string        `mapstructure:"control_url"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout"`
	NetworkIdleTimeout time.Duration `mapstructure:"network_idle_timeout"`
	ElementTimeout     time.Duration `mapstructure:"element_timeout"`
	AllowLocalFallback bool          `mapstructure:"allow_local_fallback"`
	LocalBin           string        `mapstructure:"local_bin"`
	ScreenshotDir      string        `mapstructure:"screenshot_dir"`
	TextBudget         int           `mapstructure:"text_budget"`
	Proxies            []string      `mapstructure:"proxies"`
}

// ExtractionConfig parameterises model-based extraction.
type ExtractionConfig struct {
	APIKey             string        `mapstructure:"api_key"`
	TextModel          string        `mapstructure:"text_model"`
	VisionModel        string        `mapstructure:"vision_model"`
	MaxTokens          int64         `mapstructure:"max_tokens"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	MinPriceConfidence float64       `mapstructure:"min_price_confidence"`
}

// MonitorConfig defines check cadence and commit thresholds.
type MonitorConfig struct {
	DefaultIntervalMinutes int           `mapstructure:"default_interval_minutes"`
	PriceThreshold         float64       `mapstructure:"price_confidence_threshold"`
	StockThreshold         float64       `mapstructure:"stock_confidence_threshold"`
	LargeChangePct         float64       `mapstructure:"large_change_pct"`
	LargeChangeConfidence  float64       `mapstructure:"large_change_confidence"`
	RiseNotifyPct          float64       `mapstructure:"rise_notify_pct"`
	MaxConcurrentChecks    int           `mapstructure:"max_concurrent_checks"`
	RetryAttempts          int           `mapstructure:"retry_attempts"`
	HostileRetryAttempts   int           `mapstructure:"hostile_retry_attempts"`
	RetryBaseDelay         time.Duration `mapstructure:"retry_base_delay"`
}

// NotifyConfig tunes notification delivery.
type NotifyConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	TelegramAPIBase string        `mapstructure:"telegram_api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "priceflow")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.align_to_tick", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("browser.control_url", "ws://browserless:3000")
	v.SetDefault("browser.connect_timeout", "60s")
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.network_idle_timeout", "5s")
	v.SetDefault("browser.element_timeout", "5s")
	v.SetDefault("browser.allow_local_fallback", true)
	v.SetDefault("browser.screenshot_dir", "screenshots")
	v.SetDefault("browser.text_budget", 5000)

	v.SetDefault("extraction.text_model", "claude-haiku-4-5-20251001")
	v.SetDefault("extraction.vision_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("extraction.max_tokens", int64(1024))
	v.SetDefault("extraction.request_timeout", "45s")
	v.SetDefault("extraction.min_price_confidence", 0.3)

	v.SetDefault("monitor.default_interval_minutes", 60)
	v.SetDefault("monitor.price_confidence_threshold", 0.5)
	v.SetDefault("monitor.stock_confidence_threshold", 0.5)
	v.SetDefault("monitor.large_change_pct", 20.0)
	v.SetDefault("monitor.large_change_confidence", 0.7)
	v.SetDefault("monitor.rise_notify_pct", 5.0)
	v.SetDefault("monitor.max_concurrent_checks", 3)
	v.SetDefault("monitor.retry_attempts", 2)
	v.SetDefault("monitor.hostile_retry_attempts", 4)
	v.SetDefault("monitor.retry_base_delay", "3s")

	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("notify.telegram_api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Monitor.DefaultIntervalMinutes <= 0 {
		return fmt.Errorf("monitor.default_interval_minutes must be greater than zero")
	}
	if c.Monitor.PriceThreshold < 0 || c.Monitor.PriceThreshold > 1 {
		return fmt.Errorf("monitor.price_confidence_threshold must be within [0,1]")
	}
	if c.Monitor.StockThreshold < 0 || c.Monitor.StockThreshold > 1 {
		return fmt.Errorf("monitor.stock_confidence_threshold must be within [0,1]")
	}
	if c.Monitor.LargeChangePct <= 0 {
		return fmt.Errorf("monitor.large_change_pct must be greater than zero")
	}
	if c.Browser.ControlURL == "" && !c.Browser.AllowLocalFallback {
		return fmt.Errorf("browser.control_url 必须配置 (或启用 allow_local_fallback)")
	}
	if c.Browser.TextBudget <= 0 {
		return fmt.Errorf("browser.text_budget must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
