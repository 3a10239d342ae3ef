// Package config loads pinsync settings from a YAML file, PINSYNC_*
// environment variables and built-in defaults, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PINSYNC_API_URL or
// PINSYNC_CONTROL_PORT.
const EnvPrefix = "PINSYNC"

// Config is the full configuration.
type Config struct {
	// APIURL is the backend base URL.
	APIURL          string `mapstructure:"api_url"`
	DBPath          string `mapstructure:"db_path"`
	CredentialsPath string `mapstructure:"credentials_path"`

	Control   ControlConfig   `mapstructure:"control"`
	Log       LogConfig       `mapstructure:"log"`
	Token     TokenConfig     `mapstructure:"token"`
	Server    ServerConfig    `mapstructure:"server"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`

	// File is the config file that was read, empty if none.
	File string `mapstructure:"-"`
}

// ControlConfig is where the daemon's control server listens.
type ControlConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns host:port.
func (c ControlConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig controls log rotation for long-running commands. An empty File
// logs to stderr.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// TokenConfig controls the access token cache.
type TokenConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// ServerConfig configures `pinsync serve`.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	DSN            string        `mapstructure:"dsn"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	AccessTTL      time.Duration `mapstructure:"access_ttl"`
	RefreshTTL     time.Duration `mapstructure:"refresh_ttl"`
}

// AnthropicConfig enables AI summaries when APIKey is set.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// Dir returns the config directory ($XDG_CONFIG_HOME/pinsync).
func Dir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "pinsync")
	}
	return filepath.Join(".", ".pinsync")
}

// DataDir returns the data directory ($XDG_DATA_HOME/pinsync, falling back
// to ~/.local/share/pinsync).
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "pinsync")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "pinsync")
	}
	return filepath.Join(".", ".pinsync")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_url", "http://127.0.0.1:8080")
	v.SetDefault("db_path", filepath.Join(DataDir(), "pins.db"))
	v.SetDefault("credentials_path", filepath.Join(Dir(), "credentials.toml"))

	v.SetDefault("control.host", "127.0.0.1")
	v.SetDefault("control.port", 7420)

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("token.refresh_interval", 5*time.Minute)

	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.dsn", filepath.Join(DataDir(), "server.db"))
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.access_ttl", 15*time.Minute)
	v.SetDefault("server.refresh_ttl", 30*24*time.Hour)

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")
}

// Load reads the config. When path is empty, config.yaml in Dir() is used if
// it exists; a missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The SDK's own variable works too.
	_ = v.BindEnv("anthropic.api_key", EnvPrefix+"_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(Dir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would only fail later and confusingly.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return fmt.Errorf("api_url must start with http:// or https:// (got %q)", c.APIURL)
	}
	if c.Control.Port < 0 || c.Control.Port > 65535 {
		return fmt.Errorf("control.port out of range: %d", c.Control.Port)
	}
	if c.Token.RefreshInterval < 0 {
		return fmt.Errorf("token.refresh_interval must not be negative")
	}
	return nil
}
