package internal

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/sipeed/gamemanager/pkg/config"
	"github.com/sipeed/gamemanager/pkg/logger"
	"github.com/sipeed/gamemanager/pkg/supervisor"
)

const Logo = "🎮"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

// Global flags, bound on the root command.
var (
	configPath string
	envFiles   []string
)

// BindGlobalFlags registers --config and --env-file on the root command.
func BindGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default ~/.gamemanager/config.json, or $"+config.EnvGameManagerConfig+")")
	cmd.PersistentFlags().StringArrayVar(&envFiles, "env-file", config.DefaultEnvFiles,
		"dotenv file to load before reading the environment (repeatable)")
}

func GetConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.ResolveRuntimePaths().ConfigPath
}

func LoadConfig() (*config.Config, error) {
	return config.LoadConfig(GetConfigPath(), envFiles...)
}

// NewLogger builds the process logger from the logging section. The file sink
// is only enabled for the long-running bot; console output goes to console.
func NewLogger(cfg *config.Config, console io.Writer, withFile, debug bool) (*logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	opts := logger.DefaultOptions()
	opts.Level = level
	opts.Console = console
	opts.MaxSizeMB = cfg.Logging.MaxSizeMB
	opts.MaxBackups = cfg.Logging.MaxBackups
	opts.Redaction.Enabled = cfg.Logging.Redact
	if withFile {
		opts.FilePath = cfg.LogFilePath(config.ResolveRuntimePaths())
	}

	log, err := logger.New(opts)
	if err != nil {
		return nil, err
	}
	if debug {
		log.SetLevel(logger.DEBUG)
	}
	for _, secret := range cfg.Secrets() {
		log.Redactor().AddSecret(secret)
	}
	return log, nil
}

func NewMonitor(cfg *config.Config, log *logger.Logger) (*supervisor.Monitor, error) {
	if err := cfg.ValidateSupervisor(); err != nil {
		return nil, fmt.Errorf("invalid supervisor configuration: %w", err)
	}
	return supervisor.New(supervisor.Params{
		BaseURL:  cfg.Supervisor.BaseURL,
		APIPath:  cfg.Supervisor.APIPath,
		User:     cfg.Supervisor.User,
		Password: cfg.Supervisor.Password,
	},
		supervisor.WithLogger(log),
		supervisor.WithTimeout(cfg.SupervisorTimeout()),
	)
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

func GetVersion() string {
	return version
}

// Stderr is where CLI commands send log output so stdout stays parseable.
var Stderr io.Writer = os.Stderr
