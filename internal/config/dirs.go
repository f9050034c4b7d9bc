package config

import (
	"os"
	"path/filepath"
)

const appDirName = "romfetch"

// GetConfigDir returns the per-user configuration directory, honoring
// XDG_CONFIG_HOME so tests can redirect it.
func GetConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return appDirName
	}
	return filepath.Join(homeDir, ".config", appDirName)
}

// GetStateDir returns the directory for runtime state (history DB, lock file).
func GetStateDir() string {
	return filepath.Join(GetConfigDir(), "state")
}

// GetHistoryPath returns the path of the download history database.
func GetHistoryPath() string {
	return filepath.Join(GetStateDir(), "history.db")
}
