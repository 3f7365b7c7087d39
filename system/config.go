package system

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every tunable of the console. All values have fixed
// defaults; environment variables (SIEM_ prefix) and an optional YAML file
// override them at startup only.
type Config struct {
	API struct {
		BaseURL string
		Timeout time.Duration
	}
	Poll struct {
		Interval time.Duration
	}
	Store struct {
		Path string
	}
	Log struct {
		Dir    string
		Level  string
		Format string
	}
	Console struct {
		Listen       string
		AllowOrigins string
	}
	GeoIP struct {
		DBPath string
	}
	Probe struct {
		MaxElapsed time.Duration
	}
	Alerts struct {
		DiscordWebhookURL string
		Cooldown          time.Duration
	}
	Demo struct {
		Listen    string
		JWTSecret string
		DBPath    string
	}
}

const (
	DefaultBaseURL      = "http://localhost:5001"
	DefaultTimeout      = 10 * time.Second
	DefaultPollInterval = 30 * time.Second
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", DefaultBaseURL)
	v.SetDefault("api.timeout", DefaultTimeout)
	v.SetDefault("poll.interval", DefaultPollInterval)
	v.SetDefault("store.path", "siem-console.db")
	v.SetDefault("log.dir", "./logs")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("console.listen", ":8080")
	v.SetDefault("console.allow_origins", "*")
	v.SetDefault("geoip.db_path", "")
	v.SetDefault("probe.max_elapsed", 30*time.Second)
	v.SetDefault("alerts.discord_webhook_url", "")
	v.SetDefault("alerts.cooldown", 10*time.Minute)
	v.SetDefault("demo.listen", ":5001")
	v.SetDefault("demo.jwt_secret", "super-secret-key-change-me")
	v.SetDefault("demo.db_path", ":memory:")
}

// LoadConfig reads defaults, an optional .env file, SIEM_* variables and an
// optional YAML file at path. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	// .env is a convenience for local runs
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		Warn("Could not read .env: %v", err)
	}

	v := viper.New()
	v.SetEnvPrefix("SIEM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	cfg.API.BaseURL = strings.TrimRight(v.GetString("api.base_url"), "/")
	cfg.API.Timeout = v.GetDuration("api.timeout")
	cfg.Poll.Interval = v.GetDuration("poll.interval")
	cfg.Store.Path = v.GetString("store.path")
	cfg.Log.Dir = v.GetString("log.dir")
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Format = v.GetString("log.format")
	cfg.Console.Listen = v.GetString("console.listen")
	cfg.Console.AllowOrigins = v.GetString("console.allow_origins")
	cfg.GeoIP.DBPath = v.GetString("geoip.db_path")
	cfg.Probe.MaxElapsed = v.GetDuration("probe.max_elapsed")
	cfg.Alerts.DiscordWebhookURL = v.GetString("alerts.discord_webhook_url")
	cfg.Alerts.Cooldown = v.GetDuration("alerts.cooldown")
	cfg.Demo.Listen = v.GetString("demo.listen")
	cfg.Demo.JWTSecret = v.GetString("demo.jwt_secret")
	cfg.Demo.DBPath = v.GetString("demo.db_path")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail late
func (c *Config) Validate() error {
	var errs []string

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("api.base_url %q is not an absolute URL", c.API.BaseURL))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, "api.timeout must be positive")
	}
	if c.Poll.Interval <= 0 {
		errs = append(errs, "poll.interval must be positive")
	}
	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}
	if c.Alerts.Cooldown < 0 {
		errs = append(errs, "alerts.cooldown must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
