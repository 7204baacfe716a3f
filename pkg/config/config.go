package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFiles are the dotenv files the bot has always been deployed with.
var DefaultEnvFiles = []string{"./config/.discord-env", "./config/.server-env"}

// legacyEnv maps the lower-case variable names used by older deployments to the
// field they populate. They override defaults only.
var legacyEnv = map[string]func(c *Config) *string{
	"discord_token": func(c *Config) *string { return &c.Discord.Token },
	"base_url":      func(c *Config) *string { return &c.Supervisor.BaseURL },
	"api_endpoint":  func(c *Config) *string { return &c.Supervisor.APIPath },
	"api_user":      func(c *Config) *string { return &c.Supervisor.User },
	"api_pwd":       func(c *Config) *string { return &c.Supervisor.Password },
}

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so guild_ids can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Discord    DiscordConfig    `json:"discord" label:"Discord"`
	Supervisor SupervisorConfig `json:"supervisor" label:"Supervisor"`
	Commands   CommandsConfig   `json:"commands" label:"Commands"`
	RateLimits RateLimitsConfig `json:"rate_limits" label:"Rate Limits"`
	Digest     DigestConfig     `json:"digest" label:"Status Digest"`
	Logging    LoggingConfig    `json:"logging" label:"Logging"`
	mu         sync.RWMutex
}

type DiscordConfig struct {
	Token string `json:"token" label:"Token" env:"GAMEMANAGER_DISCORD_TOKEN"`
	// GuildIDs restricts the bot to the listed guilds. Empty means any guild.
	GuildIDs FlexibleStringSlice `json:"guild_ids" label:"Guild IDs" env:"GAMEMANAGER_DISCORD_GUILD_IDS"`
	// Proxy is a proxy URL for REST and gateway traffic; empty uses HTTP(S)_PROXY.
	Proxy string `json:"proxy" label:"Proxy" env:"GAMEMANAGER_DISCORD_PROXY"`
}

type SupervisorConfig struct {
	BaseURL        string `json:"base_url" label:"Base URL" env:"GAMEMANAGER_SUPERVISOR_BASE_URL"`
	APIPath        string `json:"api_path" label:"API Path" env:"GAMEMANAGER_SUPERVISOR_API_PATH"`
	User           string `json:"user" label:"User" env:"GAMEMANAGER_SUPERVISOR_USER"`
	Password       string `json:"password" label:"Password" env:"GAMEMANAGER_SUPERVISOR_PASSWORD"`
	TimeoutSeconds int    `json:"timeout_seconds" label:"Timeout" env:"GAMEMANAGER_SUPERVISOR_TIMEOUT_SECONDS"`
}

type CommandsConfig struct {
	Prefix         string `json:"prefix" label:"Prefix" env:"GAMEMANAGER_COMMANDS_PREFIX"`
	Group          string `json:"group" label:"Group" env:"GAMEMANAGER_COMMANDS_GROUP"`
	StatusRole     string `json:"status_role" label:"Status Role" env:"GAMEMANAGER_COMMANDS_STATUS_ROLE"`
	RestartRole    string `json:"restart_role" label:"Restart Role" env:"GAMEMANAGER_COMMANDS_RESTART_ROLE"`
	TimeoutSeconds int    `json:"timeout_seconds" label:"Timeout" env:"GAMEMANAGER_COMMANDS_TIMEOUT_SECONDS"`
}

type RateLimitsConfig struct {
	CommandsPerMinute int `json:"commands_per_minute" label:"Commands Per Minute" env:"GAMEMANAGER_RATE_LIMITS_COMMANDS_PER_MINUTE"` // 0 = unlimited
}

type DigestConfig struct {
	Enabled   bool   `json:"enabled" label:"Enabled" env:"GAMEMANAGER_DIGEST_ENABLED"`
	Schedule  string `json:"schedule" label:"Schedule" env:"GAMEMANAGER_DIGEST_SCHEDULE"`
	ChannelID string `json:"channel_id" label:"Channel ID" env:"GAMEMANAGER_DIGEST_CHANNEL_ID"`
}

type LoggingConfig struct {
	Level      string `json:"level" label:"Level" env:"GAMEMANAGER_LOGGING_LEVEL"`
	File       string `json:"file" label:"File" env:"GAMEMANAGER_LOGGING_FILE"`
	MaxSizeMB  int    `json:"max_size_mb" label:"Max Size (MB)" env:"GAMEMANAGER_LOGGING_MAX_SIZE_MB"`
	MaxBackups int    `json:"max_backups" label:"Max Backups" env:"GAMEMANAGER_LOGGING_MAX_BACKUPS"`
	Redact     bool   `json:"redact" label:"Redact" env:"GAMEMANAGER_LOGGING_REDACT"`
}

func DefaultConfig() *Config {
	return &Config{
		Discord: DiscordConfig{
			GuildIDs: FlexibleStringSlice{},
		},
		Supervisor: SupervisorConfig{
			APIPath:        "/RPC2",
			TimeoutSeconds: 30,
		},
		Commands: CommandsConfig{
			Prefix:         "!",
			Group:          "gamemanager",
			StatusRole:     "Bot Manager - Status Permission",
			RestartRole:    "Bot Manager - Restart Permission",
			TimeoutSeconds: 120,
		},
		RateLimits: RateLimitsConfig{
			CommandsPerMinute: 6,
		},
		Digest: DigestConfig{
			Enabled:  false,
			Schedule: "0 */6 * * *",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
			Redact:     true,
		},
	}
}

// LoadConfig builds the configuration in increasing order of precedence:
// defaults, legacy variable names, the JSON file at path (if present) and the
// GAMEMANAGER_* variables. The given dotenv files (missing ones are skipped)
// are loaded into the environment first.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	applyLegacyEnv(cfg)

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadEnvFiles(files []string) error {
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		// Load never overrides variables that are already set.
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading env file %s: %w", f, err)
		}
	}
	return nil
}

func applyLegacyEnv(cfg *Config) {
	for name, field := range legacyEnv {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		*field(cfg) = v
	}
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// ValidateSupervisor reports every missing supervisor setting at once. Format
// checks on the URL are left to supervisor.New.
func (c *Config) ValidateSupervisor() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error
	if strings.TrimSpace(c.Supervisor.BaseURL) == "" {
		errs = append(errs, errors.New("supervisor.base_url is required"))
	}
	if strings.TrimSpace(c.Supervisor.APIPath) == "" {
		errs = append(errs, errors.New("supervisor.api_path is required"))
	}
	if c.Supervisor.User == "" {
		errs = append(errs, errors.New("supervisor.user is required"))
	}
	if c.Supervisor.Password == "" {
		errs = append(errs, errors.New("supervisor.password is required"))
	}
	return errors.Join(errs...)
}

// Validate checks everything the bot needs before connecting to Discord.
func (c *Config) Validate() error {
	var errs []error
	if err := c.ValidateSupervisor(); err != nil {
		errs = append(errs, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if strings.TrimSpace(c.Discord.Token) == "" {
		errs = append(errs, errors.New("discord.token is required"))
	}
	if c.Commands.Prefix == "" || c.Commands.Group == "" {
		errs = append(errs, errors.New("commands.prefix and commands.group are required"))
	}
	if c.Digest.Enabled && c.Digest.ChannelID == "" {
		errs = append(errs, errors.New("digest.channel_id is required when the digest is enabled"))
	}
	return errors.Join(errs...)
}

// Secrets returns the configured credential values so the logger can mask them.
func (c *Config) Secrets() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return []string{c.Discord.Token, c.Supervisor.Password}
}

func (c *Config) SupervisorTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return seconds(c.Supervisor.TimeoutSeconds, 30)
}

func (c *Config) CommandTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return seconds(c.Commands.TimeoutSeconds, 120)
}

func (c *Config) LogFilePath(paths RuntimePaths) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Logging.File != "" {
		return expandHome(c.Logging.File)
	}
	return paths.LogPath
}

func seconds(n, def int) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}
