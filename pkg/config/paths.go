package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvGameManagerConfig = "GAMEMANAGER_CONFIG"
	EnvGameManagerHome   = "GAMEMANAGER_HOME"
)

type RuntimePaths struct {
	HomeDir    string
	ConfigPath string
	LogPath    string
}

func ResolveRuntimePaths() RuntimePaths {
	if configPath := expandHome(strings.TrimSpace(os.Getenv(EnvGameManagerConfig))); configPath != "" {
		return buildRuntimePaths(filepath.Dir(configPath), configPath)
	}

	homeDir := expandHome(strings.TrimSpace(os.Getenv(EnvGameManagerHome)))
	if homeDir == "" {
		homeDir = defaultGameManagerHome()
	}

	return buildRuntimePaths(homeDir, filepath.Join(homeDir, "config.json"))
}

func defaultGameManagerHome() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".gamemanager"
	}
	return filepath.Join(home, ".gamemanager")
}

func buildRuntimePaths(homeDir, configPath string) RuntimePaths {
	return RuntimePaths{
		HomeDir:    homeDir,
		ConfigPath: configPath,
		LogPath:    filepath.Join(homeDir, "logs", "gamemanager-discord-bot.log"),
	}
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
