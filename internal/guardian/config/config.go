package config

import (
	"time"

	"github.com/creasty/defaults"

	"stop-loss-guardian/pkg/config"
)

// Guardian holds monitor, risk and escalation settings.
type Guardian struct {
	PollingInterval time.Duration `mapstructure:"polling_interval" default:"60s" validate:"gt=0"`
	TickTimeout     time.Duration `mapstructure:"tick_timeout" default:"50s" validate:"gt=0"`
	MaxWorkers      int           `mapstructure:"max_workers" default:"4" validate:"min=1"`

	// Risk thresholds
	WarningDrawdownPct        float64       `mapstructure:"warning_drawdown_pct" default:"5" validate:"gt=0"`
	EmergencyDrawdownPct      float64       `mapstructure:"emergency_drawdown_pct" default:"20" validate:"gtfield=WarningDrawdownPct"`
	EarningsHorizon           time.Duration `mapstructure:"earnings_horizon" default:"120h" validate:"gte=0"`
	EarningsEmergencyPersists bool          `mapstructure:"earnings_emergency_persists"`
	PriceStaleness            time.Duration `mapstructure:"price_staleness" default:"15m" validate:"gt=0"`
	StopTriggerGrace          time.Duration `mapstructure:"stop_trigger_grace" default:"15m" validate:"gte=0"`

	// Escalation cooldowns
	TelegramToSMSCooldown   time.Duration `mapstructure:"telegram_to_sms_cooldown" default:"5m" validate:"gt=0"`
	SMSToPhoneCooldown      time.Duration `mapstructure:"sms_to_phone_cooldown" default:"15m" validate:"gt=0"`
	PhoneCallRepeatInterval time.Duration `mapstructure:"phone_call_repeat_interval" default:"30m" validate:"gt=0"`

	// Delivery
	DeliveryMaxAttempts    int           `mapstructure:"delivery_max_attempts" default:"3" validate:"min=1"`
	DeliveryInitialBackoff time.Duration `mapstructure:"delivery_initial_backoff" default:"1s" validate:"gt=0"`
	DeliveryMaxBackoff     time.Duration `mapstructure:"delivery_max_backoff" default:"10s" validate:"gt=0"`
	DeliveryTimeout        time.Duration `mapstructure:"delivery_timeout" default:"10s" validate:"gt=0"`

	DegradedAlertThreshold int `mapstructure:"degraded_alert_threshold" default:"5" validate:"min=1"`

	// Position sizing
	DefaultStopLossPct float64 `mapstructure:"default_stop_loss_pct" default:"10" validate:"gt=0,lt=100"`
	ATRMultiplier      float64 `mapstructure:"atr_multiplier" default:"2" validate:"gt=0"`
	MaxRiskPerTradePct float64 `mapstructure:"max_risk_per_trade_pct" default:"2" validate:"gt=0,lte=100"`
	MaxPositionPct     float64 `mapstructure:"max_position_pct" default:"20" validate:"gt=0,lte=100"`

	// Market session
	MarketHoursOnly bool   `mapstructure:"market_hours_only"`
	MarketTimezone  string `mapstructure:"market_timezone" default:"America/New_York"`
	MarketOpen      string `mapstructure:"market_open" default:"09:30"`
	MarketClose     string `mapstructure:"market_close" default:"16:00"`

	DigestCron string `mapstructure:"digest_cron" default:"0 16 * * 1-5"`
}

// Feed holds the Redis keys written by the broker sync.
type Feed struct {
	PositionsKey   string        `mapstructure:"positions_key" default:"robinhood:positions"`
	StopOrdersKey  string        `mapstructure:"stop_orders_key" default:"robinhood:stop_orders"`
	EarningsKey    string        `mapstructure:"earnings_key" default:"market:earnings"`
	BuyingPowerKey string        `mapstructure:"buying_power_key" default:"robinhood:buying_power"`
	SnapshotTTL    time.Duration `mapstructure:"snapshot_ttl" default:"5s"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" default:"5s" validate:"gt=0"`
}

// Telegram holds configuration for the Telegram notifier.
type Telegram struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

func (t Telegram) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

// Twilio holds configuration for SMS and voice alerts.
type Twilio struct {
	AccountSID          string `mapstructure:"account_sid"`
	AuthToken           string `mapstructure:"auth_token"`
	FromNumber          string `mapstructure:"from_number"`
	AlertPhoneNumber    string `mapstructure:"alert_phone_number"`
	MaxRequestPerMinute int    `mapstructure:"max_request_per_minute" default:"30"`
}

func (t Twilio) Enabled() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.FromNumber != "" && t.AlertPhoneNumber != ""
}

// Config holds the full configuration for the guardian service.
type Config struct {
	App      config.App      `mapstructure:"app"`
	Logger   config.Logger   `mapstructure:"logger"`
	Database config.Database `mapstructure:"database"`
	Redis    config.Redis    `mapstructure:"redis"`
	API      config.API      `mapstructure:"api"`
	Guardian Guardian        `mapstructure:"guardian"`
	Feed     Feed            `mapstructure:"feed"`
	Telegram Telegram        `mapstructure:"telegram"`
	Twilio   Twilio          `mapstructure:"twilio"`
}

// Load loads the guardian configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultGuardian returns Guardian with every default applied.
func DefaultGuardian() Guardian {
	var g Guardian
	_ = defaults.Set(&g)
	return g
}

// DefaultFeed returns Feed with every default applied.
func DefaultFeed() Feed {
	var f Feed
	_ = defaults.Set(&f)
	return f
}
