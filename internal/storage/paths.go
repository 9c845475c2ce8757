// Package storage keeps the generation catalog and knows where generated
// tables live on disk.
package storage

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "tablegen"

// GetDataDir returns the platform-specific data directory for the application.
// - macOS: ~/Library/Application Support/tablegen/
// - Linux: ~/.local/share/tablegen/
// - Windows: %APPDATA%/tablegen/
func GetDataDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		baseDir = filepath.Join(homeDir, "Library", "Application Support")

	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(homeDir, "AppData", "Roaming")
		}

	default:
		// Check XDG_DATA_HOME first
		baseDir = os.Getenv("XDG_DATA_HOME")
		if baseDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(homeDir, ".local", "share")
		}
	}

	return filepath.Join(baseDir, appName), nil
}

// Layout names the directories under a data directory.
type Layout struct {
	Root string
}

// Tables holds raw .endgame and compressed .tbz files.
func (l Layout) Tables() string { return filepath.Join(l.Root, "tables") }

// Catalog holds the badger database.
func (l Layout) Catalog() string { return filepath.Join(l.Root, "catalog") }

// Work holds disk-backed tables under construction and edge files.
func (l Layout) Work() string { return filepath.Join(l.Root, "work") }

// Ensure creates every directory of the layout.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.Tables(), l.Catalog(), l.Work()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
