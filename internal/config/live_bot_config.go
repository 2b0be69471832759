package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	boterrors "github.com/ducminhle1904/crypto-futures-bot/internal/errors"
	"github.com/ducminhle1904/crypto-futures-bot/internal/exchange"
	"github.com/ducminhle1904/crypto-futures-bot/internal/exchange/pricefeed"
	"github.com/ducminhle1904/crypto-futures-bot/internal/market"
	"github.com/ducminhle1904/crypto-futures-bot/internal/signal"
	"github.com/ducminhle1904/crypto-futures-bot/internal/sizing"
	"github.com/ducminhle1904/crypto-futures-bot/internal/watcher"
	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

// BotConfig represents the complete configuration for the futures bot
type BotConfig struct {
	BotName string `json:"bot_name"`

	Exchange      exchange.ExchangeConfig `json:"exchange"`
	Trading       TradingConfig           `json:"trading"`
	Market        market.Config           `json:"market"`
	Signal        signal.Config           `json:"signal"`
	Risk          sizing.Config           `json:"risk"`
	Watchers      watcher.Config          `json:"watchers"`
	PriceFeed     pricefeed.Config        `json:"price_feed"`
	Notifications NotificationConfig      `json:"notifications"`
	API           APIConfig               `json:"api"`
	State         StateConfig             `json:"state"`
	Logging       LoggingConfig           `json:"logging"`
}

// TradingConfig holds the scan loop settings
type TradingConfig struct {
	Symbols               []string       `json:"symbols"`
	QuoteAsset            string         `json:"quote_asset"`
	PollInterval          types.Duration `json:"poll_interval"`
	MaxOpenTrades         int            `json:"max_open_trades"`
	Cooldown              types.Duration `json:"cooldown"` // per symbol pause after a close
	DryRun                bool           `json:"dry_run"`
	DailyLossLimitPercent float64        `json:"daily_loss_limit_percent"`
	StatusInterval        types.Duration `json:"status_interval"`
}

// NotificationConfig holds Telegram settings
type NotificationConfig struct {
	Enabled        bool   `json:"enabled"`
	TelegramToken  string `json:"telegram_token,omitempty"`
	TelegramChatID string `json:"telegram_chat_id,omitempty"`
	Commands       bool   `json:"commands"` // serve chat commands from the same chat
	QueueSize      int    `json:"queue_size"`
	NotifySignals  bool   `json:"notify_signals"`
}

// APIConfig holds the HTTP control API settings
type APIConfig struct {
	Enabled   bool   `json:"enabled"`
	Addr      string `json:"addr"`
	AuthToken string `json:"auth_token,omitempty"`
}

// StateConfig selects where open trades are persisted
type StateConfig struct {
	Backend  string         `json:"backend"` // file | redis | none
	Path     string         `json:"path"`
	RedisURL string         `json:"redis_url,omitempty"`
	Key      string         `json:"key,omitempty"`
	TTL      types.Duration `json:"ttl"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level   string `json:"level"`
	Dir     string `json:"dir"`
	Console bool   `json:"console"`
}

func baseConfig() *BotConfig {
	return &BotConfig{
		Market:   market.DefaultConfig(),
		Signal:   signal.DefaultConfig(),
		Risk:     sizing.DefaultConfig(),
		Watchers: watcher.DefaultConfig(),
		Logging:  LoggingConfig{Console: true},
	}
}

// Default returns a config with every section at its default.
func Default() *BotConfig {
	c := baseConfig()
	c.setDefaults()
	return c
}

// ResolvePath maps bare config names into configs/ and appends .json.
func ResolvePath(configFile string) string {
	// If config file doesn't contain path separators, look in configs/ directory
	if !strings.ContainsAny(configFile, "/\\") {
		configFile = filepath.Join("configs", configFile)
	}
	if !strings.HasSuffix(configFile, ".json") {
		configFile += ".json"
	}
	return configFile
}

// Load reads an optional env file, the JSON config, then applies environment
// overrides, defaults and validation.
func Load(configFile, envFile string) (*BotConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, boterrors.WrapError(err, boterrors.ErrorCategoryConfiguration, "config", "load_env")
		}
	}

	path := ResolvePath(configFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, boterrors.WrapError(fmt.Errorf("failed to read config file %s: %w", path, err),
			boterrors.ErrorCategoryConfiguration, "config", "read")
	}
	return Parse(data)
}

// Parse decodes a config document. Sections missing from the document keep their defaults.
func Parse(data []byte) (*BotConfig, error) {
	cfg := baseConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, boterrors.WrapError(fmt.Errorf("failed to parse config file: %w", err),
			boterrors.ErrorCategoryConfiguration, "config", "parse")
	}

	cfg.applyEnv()
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays secrets and deployment switches from the environment.
func (c *BotConfig) applyEnv() {
	if key, secret := os.Getenv("BYBIT_API_KEY"), os.Getenv("BYBIT_API_SECRET"); key != "" || secret != "" {
		if c.Exchange.Bybit == nil {
			c.Exchange.Bybit = &exchange.BybitConfig{}
		}
		if key != "" {
			c.Exchange.Bybit.APIKey = key
		}
		if secret != "" {
			c.Exchange.Bybit.APISecret = secret
		}
	}
	if v, ok := envBool("BYBIT_TESTNET"); ok && c.Exchange.Bybit != nil {
		c.Exchange.Bybit.Testnet = v
	}
	if v, ok := envBool("BYBIT_DEMO"); ok && c.Exchange.Bybit != nil {
		c.Exchange.Bybit.Demo = v
	}
	if v, ok := envBool("DRY_RUN"); ok {
		c.Trading.DryRun = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Notifications.TelegramToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Notifications.TelegramChatID = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.State.RedisURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.API.Addr = v
	}
	if v := os.Getenv("API_AUTH_TOKEN"); v != "" {
		c.API.AuthToken = v
	}
}

func envBool(key string) (bool, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// setDefaults sets default values for missing configuration
func (c *BotConfig) setDefaults() {
	if c.BotName == "" {
		c.BotName = "futures-bot"
	}
	if c.Exchange.Name == "" {
		c.Exchange.Name = "bybit"
	}
	c.Exchange.Name = strings.ToLower(c.Exchange.Name)
	c.Exchange.DryRun = c.Trading.DryRun || c.Exchange.Name == "paper"

	for i, s := range c.Trading.Symbols {
		c.Trading.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	if c.Trading.QuoteAsset == "" {
		c.Trading.QuoteAsset = "USDT"
	}
	if c.Trading.PollInterval <= 0 {
		c.Trading.PollInterval = types.Duration(time.Minute)
	}
	if c.Trading.MaxOpenTrades == 0 {
		c.Trading.MaxOpenTrades = 3
	}
	if c.Trading.Cooldown == 0 {
		c.Trading.Cooldown = types.Duration(15 * time.Minute)
	}
	if c.Trading.StatusInterval == 0 {
		c.Trading.StatusInterval = types.Duration(15 * time.Minute)
	}

	if c.Notifications.QueueSize <= 0 {
		c.Notifications.QueueSize = 100
	}
	if c.API.Addr == "" {
		c.API.Addr = "127.0.0.1:8080"
	}

	if c.State.Backend == "" {
		c.State.Backend = "file"
	}
	if c.State.Path == "" {
		c.State.Path = filepath.Join("state", c.BotName+".json")
	}
	if c.State.Key == "" {
		c.State.Key = "futures-bot:trades:" + c.BotName
	}
	if c.State.TTL <= 0 {
		c.State.TTL = types.Duration(7 * 24 * time.Hour)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
	if c.PriceFeed.URL == "" {
		c.PriceFeed.URL = pricefeed.DefaultURL
	}
}

// Validate validates the configuration
func (c *BotConfig) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return boterrors.NewConfigurationError("config", "validate", fmt.Sprintf(format, args...))
	}

	if len(c.Trading.Symbols) == 0 {
		return fail("at least one trading symbol is required")
	}
	seen := make(map[string]bool, len(c.Trading.Symbols))
	for _, s := range c.Trading.Symbols {
		if seen[s] {
			return fail("duplicate symbol %s", s)
		}
		seen[s] = true
	}
	if c.Trading.MaxOpenTrades < 0 {
		return fail("max_open_trades must not be negative")
	}
	if c.Trading.DailyLossLimitPercent < 0 || c.Trading.DailyLossLimitPercent > 100 {
		return fail("daily_loss_limit_percent must be in [0, 100]")
	}
	if _, err := exchange.ParseInterval(c.Market.Timeframe); err != nil {
		return fail("market.timeframe: %v", err)
	}
	if c.Market.TrendTimeframe != "" {
		if _, err := exchange.ParseInterval(c.Market.TrendTimeframe); err != nil {
			return fail("market.trend_timeframe: %v", err)
		}
	}
	if err := c.Signal.Validate(); err != nil {
		return fail("signal: %v", err)
	}
	if err := c.Risk.Validate(); err != nil {
		return fail("risk: %v", err)
	}
	if err := c.Watchers.Validate(); err != nil {
		return fail("%v", err)
	}

	if err := exchange.ValidateConfig(c.Exchange); err != nil {
		return boterrors.WrapError(err, boterrors.ErrorCategoryCredentials, "config", "validate_exchange")
	}

	if c.Notifications.Enabled && (c.Notifications.TelegramToken == "" || c.Notifications.TelegramChatID == "") {
		return fail("notifications enabled but TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID is missing")
	}

	if c.API.Enabled && c.API.AuthToken == "" && c.IsLive() {
		return fail("api enabled on a live account requires API_AUTH_TOKEN")
	}

	switch c.State.Backend {
	case "file", "none":
	case "redis":
		if c.State.RedisURL == "" {
			return fail("state backend redis requires REDIS_URL")
		}
	default:
		return fail("unknown state backend %q", c.State.Backend)
	}
	return nil
}

// SetDryRun forces simulation on or off after loading, e.g. from a command line flag.
func (c *BotConfig) SetDryRun(on bool) {
	c.Trading.DryRun = on
	c.Exchange.DryRun = on || c.Exchange.Name == "paper"
}

// IsLive reports whether real orders will be sent.
func (c *BotConfig) IsLive() bool {
	return !c.Exchange.DryRun
}
