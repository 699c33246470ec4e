package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"twscan/internal/logging"
)

// Alert channel names accepted in alerting.channels.
const (
	ChannelLine     = "line"
	ChannelTelegram = "telegram"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig      `mapstructure:"app"`
	Logging   logging.Config `mapstructure:"logging"`
	Scanner   ScannerConfig  `mapstructure:"scanner"`
	Venues    VenuesConfig   `mapstructure:"venues"`
	Cache     CacheConfig    `mapstructure:"cache"`
	Alerting  AlertingConfig `mapstructure:"alerting"`
	Rules     RulesConfig    `mapstructure:"rules"`
	MACD      MACDConfig     `mapstructure:"macd"`
	DiffToMA5 BandConfig     `mapstructure:"diff_to_ma5_pct"`
	Limits    LimitsConfig   `mapstructure:"limits"`
	Yahoo     YahooConfig    `mapstructure:"yahoo"`
	Universe  UniverseConfig `mapstructure:"universe"`
	Server    ServerConfig   `mapstructure:"server"`
	Metrics   MetricsConfig  `mapstructure:"metrics"`
	Export    ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Timezone string `mapstructure:"timezone"`
}

// ScannerConfig governs the polling loop.
type ScannerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MinWait      time.Duration `mapstructure:"min_wait"`
	BatchSize    int           `mapstructure:"batch_size"`
	QuoteChunk   int           `mapstructure:"quote_chunk"`
	StartupPing  bool          `mapstructure:"startup_ping"`
	StartupText  string        `mapstructure:"startup_text"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// VenuesConfig lists the symbol suffixes probed by the resolver.
type VenuesConfig struct {
	Primary   string `mapstructure:"primary"`
	Secondary string `mapstructure:"secondary"`
}

// CacheConfig sets chart refresh cadence and history spans.
type CacheConfig struct {
	DailyRefresh  time.Duration `mapstructure:"daily_refresh"`
	WeeklyRefresh time.Duration `mapstructure:"weekly_refresh"`
	DailySpan     string        `mapstructure:"daily_span"`
	WeeklySpan    string        `mapstructure:"weekly_span"`
}

// AlertingConfig defines deduplication and routing.
type AlertingConfig struct {
	Cooldown       time.Duration  `mapstructure:"cooldown"`
	OncePerDay     bool           `mapstructure:"once_per_day"`
	Channels       []string       `mapstructure:"channels"`
	RequestTimeout time.Duration  `mapstructure:"request_timeout"`
	Line           LineConfig     `mapstructure:"line"`
	Telegram       TelegramConfig `mapstructure:"telegram"`
}

// LineConfig 描述 LINE Messaging API 参数。
type LineConfig struct {
	ChannelAccessToken string   `mapstructure:"channel_access_token"`
	ChannelSecret      string   `mapstructure:"channel_secret"`
	Recipients         []string `mapstructure:"recipients"`
	APIBase            string   `mapstructure:"api_base"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// RulesConfig toggles each rule.
type RulesConfig struct {
	R1MACDCombo        bool `mapstructure:"r1_macd_combo"`
	R2DailyMA34Up      bool `mapstructure:"r2_ma34_up_daily"`
	R3WeeklyMA5Pattern bool `mapstructure:"r3_weekly_ma5_pattern"`
	R4DailyMA5Up       bool `mapstructure:"r4_daily_ma5_up"`
	R5WithinBand       bool `mapstructure:"r5_within_band_of_ma5"`
	R6PriceAbove       bool `mapstructure:"r6_price_gt_min"`
	R7VolumeAbove      bool `mapstructure:"r7_volume_gt_min"`
	R8PriceAboveMA5    bool `mapstructure:"r8_price_gt_ma5"`
}

// MACDConfig holds the MACD periods and histogram tolerance.
type MACDConfig struct {
	Fast   int     `mapstructure:"fast"`
	Slow   int     `mapstructure:"slow"`
	Signal int     `mapstructure:"signal"`
	Eps    float64 `mapstructure:"eps"`
}

// BandConfig is an inclusive percentage band.
type BandConfig struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// LimitsConfig holds the absolute floors.
type LimitsConfig struct {
	PriceMin        float64 `mapstructure:"price_min"`
	MinVolumeShares int64   `mapstructure:"min_volume_shares"`
}

// YahooConfig covers the quote and chart source.
type YahooConfig struct {
	QuoteURL       string        `mapstructure:"quote_url"`
	ChartURL       string        `mapstructure:"chart_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// UniverseConfig locates the code list and its upstream pages.
type UniverseConfig struct {
	File           string        `mapstructure:"file"`
	TWSEURL        string        `mapstructure:"twse_url"`
	TPEXURL        string        `mapstructure:"tpex_url"`
	TWSEURLSecure  string        `mapstructure:"twse_url_secure"`
	TPEXURLSecure  string        `mapstructure:"tpex_url_secure"`
	LocalTWSE      string        `mapstructure:"local_twse"`
	LocalTPEX      string        `mapstructure:"local_tpex"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AutoRefresh    bool          `mapstructure:"auto_refresh"`
}

// ServerConfig configures the webhook listener.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// MetricsConfig configures the Prometheus endpoint during run.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	Dir           string `mapstructure:"dir"`
	MaxDataPoints int    `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TWSCAN")
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
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "twscan")
	v.SetDefault("app.timezone", "Asia/Taipei")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("scanner.poll_interval", "90s")
	v.SetDefault("scanner.min_wait", "5s")
	v.SetDefault("scanner.batch_size", 200)
	v.SetDefault("scanner.quote_chunk", 50)
	v.SetDefault("scanner.startup_ping", false)
	v.SetDefault("scanner.startup_text", "【啟動】XQ 全市場掃描已啟動 🚀")
	v.SetDefault("scanner.startup_delay", "0s")

	v.SetDefault("venues.primary", ".TW")
	v.SetDefault("venues.secondary", ".TWO")

	v.SetDefault("cache.daily_refresh", "30m")
	v.SetDefault("cache.weekly_refresh", "6h")
	v.SetDefault("cache.daily_span", "8mo")
	v.SetDefault("cache.weekly_span", "5y")

	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.once_per_day", false)
	v.SetDefault("alerting.channels", []string{ChannelLine})
	v.SetDefault("alerting.request_timeout", "15s")
	v.SetDefault("alerting.line.channel_access_token", "")
	v.SetDefault("alerting.line.channel_secret", "")
	v.SetDefault("alerting.line.recipients", []string{})
	v.SetDefault("alerting.line.api_base", "https://api.line.me")
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	for _, key := range []string{
		"r1_macd_combo", "r2_ma34_up_daily", "r3_weekly_ma5_pattern", "r4_daily_ma5_up",
		"r5_within_band_of_ma5", "r6_price_gt_min", "r7_volume_gt_min", "r8_price_gt_ma5",
	} {
		v.SetDefault("rules."+key, true)
	}

	v.SetDefault("macd.fast", 12)
	v.SetDefault("macd.slow", 26)
	v.SetDefault("macd.signal", 9)
	v.SetDefault("macd.eps", 1e-6)

	v.SetDefault("diff_to_ma5_pct.min", 0.0)
	v.SetDefault("diff_to_ma5_pct.max", 4.0)

	v.SetDefault("limits.price_min", 20.0)
	v.SetDefault("limits.min_volume_shares", int64(1_000_000))

	v.SetDefault("yahoo.quote_url", "https://query1.finance.yahoo.com/v7/finance/quote")
	v.SetDefault("yahoo.chart_url", "https://query1.finance.yahoo.com/v8/finance/chart")
	v.SetDefault("yahoo.request_timeout", "20s")
	v.SetDefault("yahoo.user_agent", "Mozilla/5.0")

	v.SetDefault("universe.file", "symbols_all.txt")
	v.SetDefault("universe.twse_url", "http://isin.twse.com.tw/isin/C_public.jsp?strMode=2")
	v.SetDefault("universe.tpex_url", "http://isin.twse.com.tw/isin/C_public.jsp?strMode=4")
	v.SetDefault("universe.twse_url_secure", "https://isin.twse.com.tw/isin/C_public.jsp?strMode=2")
	v.SetDefault("universe.tpex_url_secure", "https://isin.twse.com.tw/isin/C_public.jsp?strMode=4")
	v.SetDefault("universe.local_twse", "twse.html")
	v.SetDefault("universe.local_tpex", "tpex.html")
	v.SetDefault("universe.request_timeout", "25s")
	v.SetDefault("universe.auto_refresh", true)

	v.SetDefault("server.listen", ":8080")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen", ":9090")

	v.SetDefault("export.dir", "exports")
	v.SetDefault("export.max_data_points", 5000)
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
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Scanner.PollInterval <= 0 {
		return fmt.Errorf("scanner.poll_interval must be greater than zero")
	}
	if c.Scanner.MinWait < 0 {
		return fmt.Errorf("scanner.min_wait cannot be negative")
	}
	if c.Scanner.BatchSize <= 0 {
		return fmt.Errorf("scanner.batch_size must be greater than zero")
	}
	if c.Scanner.QuoteChunk <= 0 {
		return fmt.Errorf("scanner.quote_chunk must be greater than zero")
	}
	if c.Venues.Primary == "" || c.Venues.Secondary == "" {
		return fmt.Errorf("venues.primary and venues.secondary are required")
	}
	if c.Cache.DailyRefresh <= 0 || c.Cache.WeeklyRefresh <= 0 {
		return fmt.Errorf("cache refresh durations must be greater than zero")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.MACD.Fast <= 0 || c.MACD.Slow <= 0 || c.MACD.Signal <= 0 {
		return fmt.Errorf("macd periods must be greater than zero")
	}
	if c.DiffToMA5.Min > c.DiffToMA5.Max {
		return fmt.Errorf("diff_to_ma5_pct.min must not exceed diff_to_ma5_pct.max")
	}
	if c.Universe.File == "" {
		return fmt.Errorf("universe.file is required")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ValidateChannels checks credentials for every enabled alert channel. It runs
// only for commands that deliver notifications.
func (c *Config) ValidateChannels() error {
	if len(c.Alerting.Channels) == 0 {
		return fmt.Errorf("alerting.channels 至少需要一个渠道")
	}
	for _, ch := range c.Alerting.Channels {
		switch ch {
		case ChannelLine:
			if c.Alerting.Line.ChannelAccessToken == "" {
				return fmt.Errorf("alerting.line.channel_access_token 必须配置")
			}
			if len(c.Alerting.Line.Recipients) == 0 {
				return fmt.Errorf("alerting.line.recipients 至少需要一个 userId")
			}
		case ChannelTelegram:
			if c.Alerting.Telegram.BotToken == "" {
				return fmt.Errorf("alerting.telegram.bot_token 必须配置")
			}
			if c.Alerting.Telegram.ChatID == "" {
				return fmt.Errorf("alerting.telegram.chat_id 必须配置")
			}
		default:
			return fmt.Errorf("unknown alerting channel %q", ch)
		}
	}
	return nil
}

// ChannelEnabled reports whether name appears in alerting.channels.
func (c *Config) ChannelEnabled(name string) bool {
	return slices.Contains(c.Alerting.Channels, name)
}

// Location resolves app.timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("app.timezone %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
