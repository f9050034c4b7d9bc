package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Settings holds all user-configurable application settings organized by category.
type Settings struct {
	General GeneralSettings `json:"general"`
	Network NetworkSettings `json:"network"`
	Archive ArchiveSettings `json:"archive"`
}

// GeneralSettings contains application behavior settings.
type GeneralSettings struct {
	DownloadDir   string `json:"download_dir"`
	DownloadDelay int    `json:"download_delay"` // seconds between queued downloads, 0-60
	ValidateURLs  bool   `json:"validate_urls"`  // probe candidate URLs before queueing
}

// NetworkSettings contains HTTP client parameters.
type NetworkSettings struct {
	UserAgent             string        `json:"user_agent"` // empty means use default UA
	ConnectTimeout        time.Duration `json:"connect_timeout"`
	ResponseHeaderTimeout time.Duration `json:"response_header_timeout"`
	IdleConnTimeout       time.Duration `json:"idle_conn_timeout"`
}

// ArchiveSettings contains parameters for the archive.org fallback client.
type ArchiveSettings struct {
	MinRequestInterval time.Duration `json:"min_request_interval"`
	MaxRetries         int           `json:"max_retries"`
	RequestTimeout     time.Duration `json:"request_timeout"`
	OutputRoot         string        `json:"output_root"` // root for auto-fetched files
}

// DefaultSettings returns a new Settings instance with sensible defaults.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	downloadDir := filepath.Join(homeDir, "Downloads", "roms")

	return &Settings{
		General: GeneralSettings{
			DownloadDir:   downloadDir,
			DownloadDelay: 2,
			ValidateURLs:  false,
		},
		Network: NetworkSettings{
			UserAgent:             "",
			ConnectTimeout:        10 * time.Second,
			ResponseHeaderTimeout: 15 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		},
		Archive: ArchiveSettings{
			MinRequestInterval: 500 * time.Millisecond,
			MaxRetries:         3,
			RequestTimeout:     30 * time.Second,
			OutputRoot:         filepath.Join(downloadDir, "auto"),
		},
	}
}

// GetSettingsPath returns the path to the settings JSON file.
func GetSettingsPath() string {
	return filepath.Join(GetConfigDir(), "settings.json")
}

// LoadSettings loads settings from disk. Returns defaults if the file doesn't exist.
func LoadSettings() (*Settings, error) {
	path := GetSettingsPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings() // start with defaults to fill any missing fields
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// SaveSettings saves settings to disk atomically.
func SaveSettings(s *Settings) error {
	path := GetSettingsPath()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: write to temp file, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}
