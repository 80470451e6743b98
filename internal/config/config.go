// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application settings loaded from config.json.
type Config struct {
	WebSocketURL string `mapstructure:"websocket_url"`
	Account      string `mapstructure:"account"`
	WebhookURL   string `mapstructure:"webhook_url"`

	// Position store
	StoreBackend string `mapstructure:"store_backend"` // "file" or "badger"
	DataFile     string `mapstructure:"data_file"`
	BadgerDir    string `mapstructure:"badger_dir"`

	// Ladder: pairs are matched by index, both slices must be the same length
	TargetMultipliers []float64 `mapstructure:"target_multipliers"`
	TargetFractions   []float64 `mapstructure:"target_fractions"`

	// Sniping
	WatchCurrencies []string `mapstructure:"watch_currencies"`
	SpendDrops      int64    `mapstructure:"spend_drops"`
	MaxUnitPrice    float64  `mapstructure:"max_unit_price"` // XRP per unit ceiling for buys
	TrustLimit      string   `mapstructure:"trust_limit"`
	BurstSize       int      `mapstructure:"burst_size"`

	// Tickets
	TicketLowWater int `mapstructure:"ticket_low_water"`

	// Reconnection
	ReconnectMaxAttempts int `mapstructure:"reconnect_max_attempts"`

	DebugLogging bool   `mapstructure:"debug_logging"`
	LogFile      string `mapstructure:"log_file"`

	// Durations converted from the *_ms fields after unmarshal
	PollInterval   time.Duration `mapstructure:"-"`
	PollIntervalMS int           `mapstructure:"poll_interval"`
	NotifyPacing   time.Duration `mapstructure:"-"`
	NotifyPacingMS int           `mapstructure:"notify_pacing"`
	BurstPacing    time.Duration `mapstructure:"-"`
	BurstPacingMS  int           `mapstructure:"burst_pacing"`
	RefillDelay    time.Duration `mapstructure:"-"`
	RefillDelayMS  int           `mapstructure:"refill_delay"`
	RefillTick     time.Duration `mapstructure:"-"`
	RefillTickMS   int           `mapstructure:"refill_tick"`
	RevokeDelay    time.Duration `mapstructure:"-"`
	RevokeDelayMS  int           `mapstructure:"revoke_delay"`
	ReconnectDelay time.Duration `mapstructure:"-"`
	ReconnectDelMS int           `mapstructure:"reconnect_delay"`
}

// LoadConfig reads configuration from the specified file path and performs validation.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Defaults
	v.SetDefault("store_backend", "file")
	v.SetDefault("data_file", "data/positions.json")
	v.SetDefault("badger_dir", "data/badger")
	v.SetDefault("target_multipliers", []float64{2, 4, 6, 8, 10, 15, 20, 30, 40, 50})
	v.SetDefault("target_fractions", []float64{0.50, 0.20, 0.10, 0.05, 0.05, 0.025, 0.025, 0.02, 0.015, 0.01})
	v.SetDefault("spend_drops", 10_000_000)
	v.SetDefault("max_unit_price", 0.001)
	v.SetDefault("trust_limit", "1000000000")
	v.SetDefault("burst_size", 3)
	v.SetDefault("ticket_low_water", 10)
	v.SetDefault("reconnect_max_attempts", 10)
	v.SetDefault("debug_logging", true)
	v.SetDefault("poll_interval", 10_000)
	v.SetDefault("notify_pacing", 3_000)
	v.SetDefault("burst_pacing", 500)
	v.SetDefault("refill_delay", 15_000)
	v.SetDefault("refill_tick", 60_000)
	v.SetDefault("revoke_delay", 30_000)
	v.SetDefault("reconnect_delay", 5_000)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}

	loadEnvironmentVariables(v, &cfg)

	cfg.PollInterval = time.Duration(cfg.PollIntervalMS) * time.Millisecond
	cfg.NotifyPacing = time.Duration(cfg.NotifyPacingMS) * time.Millisecond
	cfg.BurstPacing = time.Duration(cfg.BurstPacingMS) * time.Millisecond
	cfg.RefillDelay = time.Duration(cfg.RefillDelayMS) * time.Millisecond
	cfg.RefillTick = time.Duration(cfg.RefillTickMS) * time.Millisecond
	cfg.RevokeDelay = time.Duration(cfg.RevokeDelayMS) * time.Millisecond
	cfg.ReconnectDelay = time.Duration(cfg.ReconnectDelMS) * time.Millisecond

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate checks required fields and the ladder tables.
func (c *Config) validate() error {
	if c.WebSocketURL == "" {
		return fmt.Errorf("websocket_url is required")
	}
	if err := validateScheme(c.WebSocketURL, "ws"); err != nil {
		return fmt.Errorf("invalid websocket_url: %w", err)
	}
	if c.Account == "" {
		return fmt.Errorf("account is required")
	}
	if c.WebhookURL != "" {
		if err := validateScheme(c.WebhookURL, "http"); err != nil {
			return fmt.Errorf("invalid webhook_url: %w", err)
		}
	}

	switch c.StoreBackend {
	case "file", "badger":
	default:
		return fmt.Errorf("unknown store_backend: %q", c.StoreBackend)
	}

	if err := c.validateLadder(); err != nil {
		return err
	}

	if c.SpendDrops <= 0 {
		return fmt.Errorf("spend_drops must be positive")
	}
	if c.MaxUnitPrice <= 0 {
		return fmt.Errorf("max_unit_price must be positive")
	}
	if c.BurstSize <= 0 {
		return fmt.Errorf("burst_size must be positive")
	}
	if c.TicketLowWater <= 0 {
		return fmt.Errorf("ticket_low_water must be positive")
	}
	if c.ReconnectMaxAttempts <= 0 {
		return fmt.Errorf("reconnect_max_attempts must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid poll_interval")
	}
	if c.NotifyPacing <= 0 {
		return fmt.Errorf("invalid notify_pacing")
	}
	if c.BurstPacing <= 0 {
		return fmt.Errorf("invalid burst_pacing")
	}

	return nil
}

// validateLadder rejects misaligned multiplier/fraction tables up front, so
// the evaluator never substitutes a default for a missing index.
func (c *Config) validateLadder() error {
	if len(c.TargetMultipliers) == 0 {
		return fmt.Errorf("target_multipliers must not be empty")
	}
	if len(c.TargetMultipliers) != len(c.TargetFractions) {
		return fmt.Errorf("target_multipliers and target_fractions must have the same length (%d vs %d)",
			len(c.TargetMultipliers), len(c.TargetFractions))
	}

	prev := 1.0
	for i, m := range c.TargetMultipliers {
		if m <= prev {
			return fmt.Errorf("target_multipliers must be strictly increasing and above 1.0 (index %d)", i)
		}
		prev = m
	}

	sum := 0.0
	for i, f := range c.TargetFractions {
		if f <= 0 || f > 1 {
			return fmt.Errorf("target_fractions must be in (0, 1] (index %d)", i)
		}
		sum += f
	}
	if sum > 1.0+1e-9 {
		return fmt.Errorf("target_fractions sum %.4f exceeds 1.0", sum)
	}

	return nil
}

func validateScheme(rawURL, prefix string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, prefix) {
		return fmt.Errorf("invalid URL protocol %q", parsed.Scheme)
	}
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	v.AutomaticEnv()
	v.SetEnvPrefix("XRPL_BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if env := v.GetString("WEBSOCKET_URL"); env != "" {
		cfg.WebSocketURL = env
	}
	if env := v.GetString("ACCOUNT"); env != "" {
		cfg.Account = env
	}
	if env := v.GetString("WEBHOOK_URL"); env != "" {
		cfg.WebhookURL = env
	}
}
