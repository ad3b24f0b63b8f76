package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the bridge configuration loaded from a TOML file.
type Config struct {
	LogLevel      string         `toml:"log_level"`
	SourceCodeURL string         `toml:"source_code_url"`
	Telegram      TelegramConfig `toml:"telegram"`
	Signal        SignalConfig   `toml:"signal"`
	Database      DatabaseConfig `toml:"database"`
}

// TelegramConfig contains Telegram Bot API credentials and addressing.
type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
	// BotUsername is appended to derived pack names, as the platform requires.
	BotUsername string `toml:"bot_username"`
	// OwnerID is the user that created packs are attributed to.
	OwnerID int64  `toml:"owner_id"`
	BaseURL string `toml:"base_url"`
}

// SignalConfig contains the sticker service endpoint and upload accounts.
type SignalConfig struct {
	BaseURL  string                `toml:"base_url"`
	Accounts []SignalAccountConfig `toml:"accounts"`
}

// SignalAccountConfig is one destination account. The credential is opaque
// to the bridge core and passed through to the stickers client.
type SignalAccountConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingConfig, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &config, nil
}

// Validate checks that the configuration names everything a conversion needs.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("%w: telegram.bot_token is required", ErrMissingCredentials)
	}
	if c.Telegram.BotUsername == "" {
		return fmt.Errorf("%w: telegram.bot_username is required", ErrInvalidConfig)
	}
	if len(c.Signal.Accounts) == 0 {
		return fmt.Errorf("%w: at least one signal account is required", ErrMissingCredentials)
	}
	for i, account := range c.Signal.Accounts {
		if account.Username == "" || account.Password == "" {
			return fmt.Errorf("%w: signal account %d is incomplete", ErrMissingCredentials, i)
		}
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
