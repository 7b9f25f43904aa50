package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/p-blackswan/chatkeeper/internal/filter"
	"github.com/p-blackswan/chatkeeper/internal/strikes"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	DBPath      string `envconfig:"DB_PATH" default:"chatkeeper.db"`
	RulesFile   string `envconfig:"RULES_FILE"`

	// Snapshot and retention
	SnapshotInterval time.Duration `envconfig:"SNAPSHOT_INTERVAL" default:"5m"`
	ModLogRetention  time.Duration `envconfig:"MODLOG_RETENTION" default:"720h"`
	SchedulerTick    time.Duration `envconfig:"SCHEDULER_TICK" default:"1m"`

	// Slack (optional, the bot runs API-only without it)
	SlackBotToken   string `envconfig:"SLACK_BOT_TOKEN"`
	SlackAppToken   string `envconfig:"SLACK_APP_TOKEN"` // xapp- token for Socket Mode
	SlackChannel    string `envconfig:"SLACK_CHANNEL"`
	SlackModChannel string `envconfig:"SLACK_MOD_CHANNEL"`

	// Permission levels by Slack user ID, comma-separated
	BroadcasterID string `envconfig:"BROADCASTER_ID"`
	ModeratorIDs  string `envconfig:"MODERATOR_IDS"`
	SubscriberIDs string `envconfig:"SUBSCRIBER_IDS"`

	CommandPrefix string `envconfig:"COMMAND_PREFIX" default:"!"`

	// Message filter
	CheckCaps      bool    `envconfig:"FILTER_CAPS" default:"true"`
	CheckLinks     bool    `envconfig:"FILTER_LINKS" default:"true"`
	CheckBlacklist bool    `envconfig:"FILTER_BLACKLIST" default:"true"`
	CapsMinLength  int     `envconfig:"CAPS_MIN_LENGTH" default:"5"`
	CapsRatio      float64 `envconfig:"CAPS_RATIO" default:"0.75"`

	// Strikes
	StrikeThreshold  int  `envconfig:"STRIKE_THRESHOLD" default:"3"`
	TimeoutSeconds   int  `envconfig:"TIMEOUT_SECONDS" default:"900"`
	AllowPardons     bool `envconfig:"ALLOW_PARDONS" default:"true"`
	TimeoutOnStrikes bool `envconfig:"TIMEOUT_ON_STRIKES" default:"true"`

	// Currency payout to present users, disabled when the amount is zero
	PayoutAmount   int64         `envconfig:"PAYOUT_AMOUNT" default:"0"`
	PayoutInterval time.Duration `envconfig:"PAYOUT_INTERVAL" default:"10m"`

	// Management API
	APIListenAddr     string `envconfig:"API_LISTEN_ADDR" default:":8090"`
	APIKey            string `envconfig:"API_KEY"` // admin; empty disables auth
	APIOperatorKey    string `envconfig:"API_OPERATOR_KEY"`
	APIReadOnlyKey    string `envconfig:"API_READONLY_KEY"`
	APIRateLimitRPS   int    `envconfig:"API_RATE_LIMIT_RPS" default:"50"`
	APIRateLimitBurst int    `envconfig:"API_RATE_LIMIT_BURST" default:"100"`
	APICORSOrigins    string `envconfig:"API_CORS_ORIGINS"`
}

// SlackEnabled returns true if Slack tokens are configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

// ModeratorList returns the parsed moderator user IDs.
func (c *Config) ModeratorList() []string {
	return splitList(c.ModeratorIDs)
}

// SubscriberList returns the parsed subscriber user IDs.
func (c *Config) SubscriberList() []string {
	return splitList(c.SubscriberIDs)
}

// APIAuthMode returns "api-key" when an admin key is set and "none"
// otherwise.
func (c *Config) APIAuthMode() string {
	if c.APIKey == "" {
		return "none"
	}
	return "api-key"
}

// FilterConfig returns the classifier settings.
func (c *Config) FilterConfig() filter.Config {
	return filter.Config{
		CapsMinLength:  c.CapsMinLength,
		CapsRatio:      c.CapsRatio,
		CheckCaps:      c.CheckCaps,
		CheckLinks:     c.CheckLinks,
		CheckBlacklist: c.CheckBlacklist,
	}
}

// StrikeConfig returns the strike ledger policy.
func (c *Config) StrikeConfig() strikes.Config {
	return strikes.Config{
		Threshold:        c.StrikeThreshold,
		TimeoutSeconds:   c.TimeoutSeconds,
		AllowPardons:     c.AllowPardons,
		TimeoutOnStrikes: c.TimeoutOnStrikes,
	}
}

// Validate rejects settings the components would refuse.
func (c *Config) Validate() error {
	if err := c.FilterConfig().Validate(); err != nil {
		return err
	}
	if err := c.StrikeConfig().Validate(); err != nil {
		return err
	}
	if c.PayoutAmount < 0 {
		return fmt.Errorf("PAYOUT_AMOUNT must not be negative, got %d", c.PayoutAmount)
	}
	if c.PayoutAmount > 0 && c.PayoutInterval <= 0 {
		return fmt.Errorf("PAYOUT_INTERVAL must be positive when payouts are enabled")
	}
	if strings.TrimSpace(c.CommandPrefix) == "" {
		return fmt.Errorf("COMMAND_PREFIX must not be empty")
	}
	return nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}
