// Package config loads the process configuration from a YAML file, the environment and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ibrohim2505/prokinobot/internal/logging"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "PROKINO_"

// DefaultConfigPath is read when no path is given and the file exists.
const DefaultConfigPath = "config.yaml"

// Update source modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// Webhook configures the webhook update source.
type Webhook struct {
	URL    string `yaml:"url" env:"URL"`       // Public HTTPS URL registered with the Bot API.
	Secret string `yaml:"secret" env:"SECRET"` // Compared with X-Telegram-Bot-Api-Secret-Token.
	Path   string `yaml:"path" env:"PATH" envDefault:"/telegram/webhook"`
}

// AppConfig is the full process configuration.
type AppConfig struct {
	ConfigPath string `yaml:"-" env:"CONFIG"`

	BotToken     string `yaml:"bot-token" env:"BOT_TOKEN"`
	SuperadminID int64  `yaml:"superadmin-id" env:"SUPERADMIN_ID"`
	APIBaseURL   string `yaml:"api-base-url" env:"API_BASE_URL" envDefault:"https://api.telegram.org"`

	DatabaseDSN string `yaml:"database-dsn" env:"DATABASE_DSN" envDefault:"data/prokinobot.db"`
	RedisURL    string `yaml:"redis-url" env:"REDIS_URL"` // Empty keeps sessions in memory.

	Mode        string        `yaml:"mode" env:"MODE" envDefault:"polling"`
	PollTimeout time.Duration `yaml:"poll-timeout" env:"POLL_TIMEOUT" envDefault:"30s"`
	Webhook     Webhook       `yaml:"webhook" envPrefix:"WEBHOOK_"`
	HTTPAddr    string        `yaml:"http-addr" env:"HTTP_ADDR" envDefault:":8080"`

	// SessionTTL is the idle lifetime of a flow session; negative keeps sessions forever.
	SessionTTL           time.Duration `yaml:"session-ttl" env:"SESSION_TTL" envDefault:"24h"`
	SweepInterval        time.Duration `yaml:"sweep-interval" env:"SWEEP_INTERVAL" envDefault:"10m"`
	BroadcastConcurrency int           `yaml:"broadcast-concurrency" env:"BROADCAST_CONCURRENCY" envDefault:"4"`

	Logging logging.Config `yaml:"logging"`
}

// ResolveConfigPath returns the explicit path, the PROKINO_CONFIG variable, or the
// default file when it exists. An empty result means no file is read.
func ResolveConfigPath(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvPrefix + "CONFIG")); p != "" {
		return p
	}
	if _, err := os.Stat(DefaultConfigPath); err == nil {
		return DefaultConfigPath
	}
	return ""
}

// Load reads path (if any) and then applies environment overrides and defaults.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return AppConfig{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if errUnmarshal := yaml.Unmarshal(raw, &cfg); errUnmarshal != nil {
			return AppConfig{}, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
		}
	}
	opts := env.Options{Prefix: EnvPrefix, SetDefaultsForZeroValuesOnly: true}
	if errEnv := env.ParseWithOptions(&cfg, opts); errEnv != nil {
		return AppConfig{}, fmt.Errorf("config: parse env: %w", errEnv)
	}
	cfg.ConfigPath = path
	return cfg, nil
}

// ParseConfig resolves the config file from flags and the environment, loads it and
// applies the flags that were set explicitly.
func ParseConfig(fs *flag.FlagSet, args []string) (AppConfig, error) {
	if fs == nil {
		return AppConfig{}, errors.New("config: flag set is required")
	}
	var (
		configPath string
		override   AppConfig
	)
	fs.StringVar(&configPath, "config", "", "Path to the YAML config file")
	fs.StringVar(&override.BotToken, "token", "", "Bot API token")
	fs.Int64Var(&override.SuperadminID, "superadmin", 0, "Superadmin user id")
	fs.StringVar(&override.DatabaseDSN, "dsn", "", "Database DSN (SQLite path or Postgres URL)")
	fs.StringVar(&override.RedisURL, "redis", "", "Redis URL for shared sessions")
	fs.StringVar(&override.Mode, "mode", "", "Update source: polling or webhook")
	fs.StringVar(&override.HTTPAddr, "http-addr", "", "HTTP listen address")
	fs.StringVar(&override.Logging.Level, "log-level", "", "Log level")
	if args == nil {
		args = []string{}
	}
	if errParse := fs.Parse(args); errParse != nil {
		return AppConfig{}, errParse
	}

	cfg, err := Load(ResolveConfigPath(configPath))
	if err != nil {
		return AppConfig{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "token":
			cfg.BotToken = override.BotToken
		case "superadmin":
			cfg.SuperadminID = override.SuperadminID
		case "dsn":
			cfg.DatabaseDSN = override.DatabaseDSN
		case "redis":
			cfg.RedisURL = override.RedisURL
		case "mode":
			cfg.Mode = override.Mode
		case "http-addr":
			cfg.HTTPAddr = override.HTTPAddr
		case "log-level":
			cfg.Logging.Level = override.Logging.Level
		}
	})
	if errValidate := cfg.Validate(); errValidate != nil {
		return AppConfig{}, errValidate
	}
	return cfg, nil
}

// Validate checks required fields and the mode-specific settings.
func (c *AppConfig) Validate() error {
	c.BotToken = strings.TrimSpace(c.BotToken)
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	var problems []string
	if c.BotToken == "" {
		problems = append(problems, "bot token is required")
	}
	if c.SuperadminID <= 0 {
		problems = append(problems, "superadmin id is required")
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		problems = append(problems, "database dsn is required")
	}
	switch c.Mode {
	case ModePolling:
	case ModeWebhook:
		if !strings.HasPrefix(c.Webhook.URL, "https://") {
			problems = append(problems, "webhook url must be https")
		}
		if !strings.HasPrefix(c.Webhook.Path, "/") {
			problems = append(problems, "webhook path must start with /")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown mode %q", c.Mode))
	}
	if c.BroadcastConcurrency <= 0 {
		problems = append(problems, "broadcast concurrency must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
