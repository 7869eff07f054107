package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns the per-user directory holding the entry buffer.
// It prefers the platform's application data location and falls back to a
// dotdir in the user's home directory.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "./data"
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "nibbana")
	}

	// macOS: ~/Library/Application Support/Nibbana
	if isDir(filepath.Join(homeDir, "Library")) {
		return filepath.Join(homeDir, "Library", "Application Support", "Nibbana")
	}

	// Windows: %USERPROFILE%/AppData/Local/Nibbana
	if isDir(filepath.Join(homeDir, "AppData")) {
		return filepath.Join(homeDir, "AppData", "Local", "Nibbana")
	}

	return filepath.Join(homeDir, ".nibbana")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
