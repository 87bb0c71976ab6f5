// Package appdir locates the per-user Hummingbird data directory, which holds
// the optional config.yaml, rotated log files, the chat history and saved
// conversations.
package appdir

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

const (
	// DirEnv is the environment variable to override the data directory.
	DirEnv = "HUMMINGBIRD_DIR"

	// ConfigFileName is the name of the user configuration file.
	ConfigFileName = "config.yaml"

	// LogsDirName is the name of the logs subdirectory.
	LogsDirName = "logs"

	// HistoryFileName stores chat REPL history.
	HistoryFileName = "history"

	// SessionsDirName holds saved chat conversations, one JSON file per session.
	SessionsDirName = "sessions"
)

var (
	cachedDir string
	mu        sync.RWMutex
)

// Dir returns the Hummingbird data directory path.
// The directory is determined in the following order:
//  1. HUMMINGBIRD_DIR environment variable (if set)
//  2. Platform-specific default:
//     - macOS: ~/Library/Application Support/Hummingbird
//     - Linux: $XDG_DATA_HOME/hummingbird or ~/.local/share/hummingbird
//     - Windows: %APPDATA%\Hummingbird
//
// This function only returns the path; use EnsureDir to create it.
func Dir() (string, error) {
	mu.RLock()
	if cachedDir != "" {
		dir := cachedDir
		mu.RUnlock()
		return dir, nil
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	if cachedDir != "" {
		return cachedDir, nil
	}

	dir, err := resolveDir()
	if err != nil {
		return "", err
	}

	cachedDir = dir
	return dir, nil
}

func resolveDir() (string, error) {
	if envDir := os.Getenv(DirEnv); envDir != "" {
		return envDir, nil
	}

	switch runtime.GOOS {
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, "Library", "Application Support", "Hummingbird"), nil

	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			appData = filepath.Join(homeDir, "AppData", "Roaming")
		}
		return filepath.Join(appData, "Hummingbird"), nil

	default:
		dataDir := os.Getenv("XDG_DATA_HOME")
		if dataDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			dataDir = filepath.Join(homeDir, ".local", "share")
		}
		return filepath.Join(dataDir, "hummingbird"), nil
	}
}

// EnsureDir creates the data directory and its logs subdirectory.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}

	logsDir := filepath.Join(dir, LogsDirName)
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory %s: %w", logsDir, err)
	}

	return nil
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() (string, error) {
	return join(ConfigFileName)
}

// LogsDir returns the full path to the logs directory.
func LogsDir() (string, error) {
	return join(LogsDirName)
}

// HistoryPath returns the full path to the chat history file.
func HistoryPath() (string, error) {
	return join(HistoryFileName)
}

// SessionsDir returns the full path to the saved conversations directory.
func SessionsDir() (string, error) {
	return join(SessionsDirName)
}

func join(name string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ResetCache clears the cached directory path.
// This is primarily useful for testing.
func ResetCache() {
	mu.Lock()
	defer mu.Unlock()
	cachedDir = ""
}
