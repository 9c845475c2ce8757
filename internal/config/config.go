// Package config loads command settings from defaults, an optional YAML
// file, TABLEGEN_* environment variables and command-line flags, later
// sources overriding earlier ones.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hailam/tablegen/internal/retro"
	"github.com/hailam/tablegen/internal/storage"
)

// Keys, also used as flag names.
const (
	KeyConfig    = "config"
	KeyDataDir   = "data-dir"
	KeyWorkers   = "workers"
	KeyMaxPieces = "max-pieces"
	KeyMode      = "mode"
	KeyStore     = "store"
	KeyLogLevel  = "log-level"
	KeyKeepRaw   = "keep-raw"
	KeySamples   = "samples"
)

// Store choices.
const (
	StoreAuto   = "auto"
	StoreMemory = "memory"
	StoreDisk   = "disk"
)

type Config struct {
	DataDir   string `mapstructure:"data-dir"`
	Workers   int    `mapstructure:"workers"`
	MaxPieces int    `mapstructure:"max-pieces"`
	Mode      string `mapstructure:"mode"`
	Store     string `mapstructure:"store"`
	LogLevel  string `mapstructure:"log-level"`
	KeepRaw   bool   `mapstructure:"keep-raw"`
	Samples   int    `mapstructure:"samples"`
}

// ScoringMode returns the parsed scoring mode.
func (c Config) ScoringMode() retro.Mode {
	m, _ := retro.ParseMode(c.Mode)
	return m
}

// Layout returns the directory layout under DataDir.
func (c Config) Layout() storage.Layout {
	return storage.Layout{Root: c.DataDir}
}

func defaultDataDir() string {
	dir, err := storage.GetDataDir()
	if err != nil {
		return "tablegen-data"
	}
	return dir
}

// Flags registers the shared flags on fs.
func Flags(fs *pflag.FlagSet) {
	fs.String(KeyConfig, "", "YAML configuration file")
	fs.String(KeyDataDir, defaultDataDir(), "directory holding tables, catalog and work files")
	fs.IntP(KeyWorkers, "j", runtime.NumCPU(), "number of worker goroutines")
	fs.IntP(KeyMaxPieces, "n", 2, "maximum number of non-king pieces")
	fs.String(KeyMode, "forward", "scoring mode: forward or backward")
	fs.String(KeyStore, StoreAuto, "where tables under construction live: auto, memory or disk")
	fs.String(KeyLogLevel, "info", "log level: trace, debug, info, warn, error")
	fs.Bool(KeyKeepRaw, true, "keep raw tables after compression")
	fs.Int(KeySamples, 100000, "random positions checked by verify")
}

// Load resolves the configuration for a parsed flag set.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TABLEGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, err
	}

	if file := v.GetString(KeyConfig); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%s must not be empty", KeyDataDir)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", KeyWorkers, c.Workers)
	}
	if c.MaxPieces < 1 || c.MaxPieces > 8 {
		return fmt.Errorf("%s must be between 1 and 8, got %d", KeyMaxPieces, c.MaxPieces)
	}
	if _, err := retro.ParseMode(c.Mode); err != nil {
		return err
	}
	switch c.Store {
	case StoreAuto, StoreMemory, StoreDisk:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.Samples < 0 {
		return fmt.Errorf("%s must not be negative", KeySamples)
	}
	return nil
}
