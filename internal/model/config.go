package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// MetricsConfig holds the optional prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address for /metrics; empty disables the endpoint.
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	// Theme is "dark", "light" or "auto".
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	// APIBaseURL is the root of the HR REST API (tickets).
	APIBaseURL string `mapstructure:"api_base_url" yaml:"api_base_url"`

	// ChatBaseURL is the root of the chat REST API. It may live on a
	// different host than the HR API.
	ChatBaseURL string `mapstructure:"chat_base_url" yaml:"chat_base_url"`

	// WSURL is the chat socket endpoint, without the token parameter.
	WSURL string `mapstructure:"ws_url" yaml:"ws_url"`

	// ReconnectDelayMS is the fixed delay before a reconnect attempt.
	ReconnectDelayMS int `mapstructure:"reconnect_delay_ms" yaml:"reconnect_delay_ms"`

	// PollIntervalSec is how often fetched sources are re-polled.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// DBPath is the location of the local state database.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
}

// ReconnectDelay returns the reconnect delay as a duration.
func (c *AppConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMS) * time.Millisecond
}

// PollInterval returns the polling interval as a duration.
func (c *AppConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// configDir returns ~/.config/hrnotify, or "." when the home directory
// cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "hrnotify")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/hrnotify/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		APIBaseURL:       "http://127.0.0.1:5000/api",
		ChatBaseURL:      "http://127.0.0.1:8000/api",
		WSURL:            "ws://127.0.0.1:8000/ws/chat/",
		ReconnectDelayMS: 3000,
		PollIntervalSec:  30,
		DBPath:           filepath.Join(configDir(), "state.db"),
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			File:   filepath.Join(configDir(), "hrnotify.log"),
		},
		Display: DisplayConfig{
			Theme: "auto",
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
// Environment variables prefixed with HRNOTIFY_ override file values.
func LoadConfig(path string) (*AppConfig, error) {
	def := defaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("HRNOTIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("api_base_url", def.APIBaseURL)
	v.SetDefault("chat_base_url", def.ChatBaseURL)
	v.SetDefault("ws_url", def.WSURL)
	v.SetDefault("reconnect_delay_ms", def.ReconnectDelayMS)
	v.SetDefault("poll_interval_sec", def.PollIntervalSec)
	v.SetDefault("db_path", def.DBPath)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("display.theme", def.Display.Theme)

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.ReconnectDelayMS <= 0 {
		cfg.ReconnectDelayMS = def.ReconnectDelayMS
	}
	if cfg.PollIntervalSec <= 0 {
		cfg.PollIntervalSec = def.PollIntervalSec
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api_base_url", cfg.APIBaseURL)
	v.Set("chat_base_url", cfg.ChatBaseURL)
	v.Set("ws_url", cfg.WSURL)
	v.Set("reconnect_delay_ms", cfg.ReconnectDelayMS)
	v.Set("poll_interval_sec", cfg.PollIntervalSec)
	v.Set("db_path", cfg.DBPath)
	v.Set("log", cfg.Log)
	v.Set("metrics", cfg.Metrics)
	v.Set("display", cfg.Display)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
