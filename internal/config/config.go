// Package config loads doorpin settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Input source selectors.
const (
	InputEvdev = "evdev" // raw keypad/RFID reader keystrokes
	InputT9EM  = "t9em"  // keypad that encodes every key as a numeric sequence
	InputStdin = "stdin" // one credential per line
)

type Config struct {
	HTTPAddr string `mapstructure:"DOORPIN_HTTP_ADDR"`
	GRPCAddr string `mapstructure:"DOORPIN_GRPC_ADDR"` // empty disables the health service

	Env      string `mapstructure:"DOORPIN_ENV"`   // "dev" | "prod"
	Store    string `mapstructure:"DOORPIN_STORE"` // "sqlite" | "memory"
	DBPath   string `mapstructure:"DOORPIN_DB_PATH"`
	LogLevel string `mapstructure:"DOORPIN_LOG_LEVEL"`

	// Capture
	InputSource       string `mapstructure:"INPUT_SOURCE"`
	InputTimeoutSecs  int    `mapstructure:"INPUT_TIMEOUT"`
	InputDeviceFilter string `mapstructure:"INPUT_DEVICE_FILTER"`
	PinLength         int    `mapstructure:"PIN_LENGTH"`
	RfidLength        int    `mapstructure:"RFID_LENGTH"`
	ReaderAutostart   bool   `mapstructure:"READER_AUTOSTART"`

	// Relay
	RelayDriver         string `mapstructure:"RELAY_DRIVER"` // "gpio" | "log"
	RelayChip           string `mapstructure:"RELAY_CHIP"`
	RelayPin            int    `mapstructure:"RELAY_PIN"`
	RelayActivationSecs int    `mapstructure:"RELAY_ACTIVATION_TIME"`
	RelayActiveState    string `mapstructure:"RELAY_ACTIVE_STATE"` // "HIGH" | "LOW"

	// Audit log retention
	AccessEventRetentionDays int `mapstructure:"ACCESS_EVENT_RETENTION_DAYS"` // 0 = keep forever
	PruneIntervalHours       int `mapstructure:"PRUNE_INTERVAL_HOURS"`

	RateLimitPerMinute int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	DevAPIKey          string `mapstructure:"DOORPIN_DEV_API_KEY"`
}

// Load reads .env (if present), then the environment, and validates the
// result. A missing .env file is not an error; an unreadable or malformed
// one is.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && !envFileMissing(err) {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envFileMissing(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DOORPIN_HTTP_ADDR", ":8080")
	v.SetDefault("DOORPIN_GRPC_ADDR", "")
	v.SetDefault("DOORPIN_ENV", "dev")
	v.SetDefault("DOORPIN_STORE", "sqlite")
	v.SetDefault("DOORPIN_DB_PATH", "./data/doorpin.db")
	v.SetDefault("DOORPIN_LOG_LEVEL", "info")

	v.SetDefault("INPUT_SOURCE", InputStdin)
	v.SetDefault("INPUT_TIMEOUT", 10)
	v.SetDefault("INPUT_DEVICE_FILTER", "")
	v.SetDefault("PIN_LENGTH", 4)
	v.SetDefault("RFID_LENGTH", 10)
	v.SetDefault("READER_AUTOSTART", true)

	v.SetDefault("RELAY_DRIVER", "gpio")
	v.SetDefault("RELAY_CHIP", "gpiochip0")
	v.SetDefault("RELAY_PIN", 18)
	v.SetDefault("RELAY_ACTIVATION_TIME", 5)
	v.SetDefault("RELAY_ACTIVE_STATE", "HIGH")

	v.SetDefault("ACCESS_EVENT_RETENTION_DAYS", 90)
	v.SetDefault("PRUNE_INTERVAL_HOURS", 6)

	v.SetDefault("RATE_LIMIT_PER_MINUTE", 30)
	v.SetDefault("DOORPIN_DEV_API_KEY", "")
}

func (c *Config) normalize() error {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env != "dev" && c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}

	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	if c.Store != "sqlite" && c.Store != "memory" {
		return fmt.Errorf("config: DOORPIN_STORE must be sqlite or memory, got %q", c.Store)
	}

	c.InputSource = strings.ToLower(strings.TrimSpace(c.InputSource))
	switch c.InputSource {
	case InputEvdev, InputT9EM, InputStdin:
	default:
		return fmt.Errorf("config: INPUT_SOURCE must be evdev, t9em or stdin, got %q", c.InputSource)
	}

	c.RelayActiveState = strings.ToUpper(strings.TrimSpace(c.RelayActiveState))
	if c.RelayActiveState != "HIGH" && c.RelayActiveState != "LOW" {
		return errors.New("config: RELAY_ACTIVE_STATE must be either HIGH or LOW")
	}

	c.RelayDriver = strings.ToLower(strings.TrimSpace(c.RelayDriver))
	if c.RelayDriver != "gpio" && c.RelayDriver != "log" {
		return fmt.Errorf("config: RELAY_DRIVER must be gpio or log, got %q", c.RelayDriver)
	}
	if c.RelayPin < 0 {
		return errors.New("config: RELAY_PIN must be a non-negative integer")
	}

	if c.InputTimeoutSecs <= 0 {
		c.InputTimeoutSecs = 10
	}
	if c.RelayActivationSecs <= 0 {
		c.RelayActivationSecs = 5
	}
	if c.PinLength < 0 {
		c.PinLength = 0
	}
	if c.RfidLength <= 0 {
		c.RfidLength = 10
	}
	if c.AccessEventRetentionDays < 0 {
		c.AccessEventRetentionDays = 0
	}
	if c.PruneIntervalHours <= 0 {
		c.PruneIntervalHours = 6
	}
	if c.RateLimitPerMinute <= 0 {
		c.RateLimitPerMinute = 30
	}
	return nil
}

// InputTimeout is the maximum gap between two keystrokes of one credential.
func (c *Config) InputTimeout() time.Duration {
	return time.Duration(c.InputTimeoutSecs) * time.Second
}

// RelayHold is how long the relay stays energized per unlock.
func (c *Config) RelayHold() time.Duration {
	return time.Duration(c.RelayActivationSecs) * time.Second
}

// RelayActiveHigh reports whether energizing the relay drives the line high.
func (c *Config) RelayActiveHigh() bool {
	return c.RelayActiveState == "HIGH"
}
