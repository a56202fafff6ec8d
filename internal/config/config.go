// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

// Package config loads CLI configuration from flags, environment, and TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/woozymasta/gamearc"
	"github.com/woozymasta/gamearc/formats/pbo"
	"github.com/woozymasta/gamearc/internal/logging"
)

// EnvPrefix prefixes environment overrides, e.g. GAMEARC_EXTRACT_WORKERS.
const EnvPrefix = "GAMEARC"

// ErrInvalidConfig means loaded configuration failed validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds app configuration
type Config struct {
	LogLevel     string `mapstructure:"log_level"`
	LogOutputDir string `mapstructure:"log_output_dir"`
	NoColor      bool   `mapstructure:"no_color"`

	// MinScore skips probes scoring lower than this.
	MinScore int `mapstructure:"min_score"`
	// DisableFallback stops after the best probe fails.
	DisableFallback bool `mapstructure:"disable_fallback"`
	// NamePattern formats synthesized resource names.
	NamePattern string `mapstructure:"name_pattern"`

	Extract Extract           `mapstructure:"extract"`
	PBO     pbo.ReaderOptions `mapstructure:"pbo"`
	Convert Convert           `mapstructure:"convert"`
}

// Extract holds extract command settings.
type Extract struct {
	Output   string   `mapstructure:"output"`
	Manifest string   `mapstructure:"manifest"`
	FileMode string   `mapstructure:"file_mode"`
	Include  []string `mapstructure:"include"`
	Exclude  []string `mapstructure:"exclude"`
	Workers  int      `mapstructure:"workers"`
	RawNames bool     `mapstructure:"raw_names"`
	FailFast bool     `mapstructure:"fail_fast"`
}

// Convert holds convert command settings.
type Convert struct {
	// Format is target container format: sarc, pbo, or blk.
	Format string `mapstructure:"format"`
	// Codec compresses converted payloads.
	Codec string `mapstructure:"codec"`
	// Compress lists pbo path patterns stored with LZSS.
	Compress  []string `mapstructure:"compress"`
	BlockSize uint32   `mapstructure:"block_size"`
}

// New returns viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("log_level", "info")
	v.SetDefault("log_output_dir", "")
	v.SetDefault("no_color", false)
	v.SetDefault("min_score", gamearc.DefaultMinScore)
	v.SetDefault("disable_fallback", false)
	v.SetDefault("name_pattern", gamearc.DefaultNamePattern)

	v.SetDefault("extract.output", ".")
	v.SetDefault("extract.manifest", "")
	v.SetDefault("extract.file_mode", string(gamearc.ExtractFileModeAuto))
	v.SetDefault("extract.include", []string{})
	v.SetDefault("extract.exclude", []string{})
	v.SetDefault("extract.workers", 0)
	v.SetDefault("extract.raw_names", false)
	v.SetDefault("extract.fail_fast", false)

	v.SetDefault("pbo.offset_mode", string(pbo.OffsetModeSequential))
	v.SetDefault("pbo.enable_junk_filter", false)
	v.SetDefault("pbo.verify_trailer", false)

	v.SetDefault("convert.format", "sarc")
	v.SetDefault("convert.codec", string(gamearc.CodecZstd))
	v.SetDefault("convert.compress", []string{})
	v.SetDefault("convert.block_size", 0)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile loads config file into v. With empty path it searches the user and
// system config dirs and a missing file is not an error. Returns file used.
func ReadFile(v *viper.Viper, path string) (string, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "gamearc"))
		}
		v.AddConfigPath("/etc/gamearc")
		v.SetConfigName("config")
		v.SetConfigType("toml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return "", nil
		}

		return "", fmt.Errorf("read config: %w", err)
	}

	return v.ConfigFileUsed(), nil
}

// Load decodes and validates configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks enumerated and numeric settings.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.MinScore < 0 {
		errs = append(errs, fmt.Errorf("min_score %d is negative", c.MinScore))
	}
	if c.NamePattern != "" && strings.Contains(fmt.Sprintf(c.NamePattern, 0), "%!") {
		errs = append(errs, fmt.Errorf("name_pattern %q must format exactly one integer", c.NamePattern))
	}
	if c.Extract.Workers < 0 {
		errs = append(errs, fmt.Errorf("extract.workers %d is negative", c.Extract.Workers))
	}

	switch gamearc.ExtractFileMode(c.Extract.FileMode) {
	case "", gamearc.ExtractFileModeAuto, gamearc.ExtractFileModeOverwriteSmart,
		gamearc.ExtractFileModeTruncate, gamearc.ExtractFileModeCreateOnly:
	default:
		errs = append(errs, fmt.Errorf("extract.file_mode %q is unknown", c.Extract.FileMode))
	}

	switch c.PBO.OffsetMode {
	case "", pbo.OffsetModeSequential, pbo.OffsetModeStoredCompat, pbo.OffsetModeStoredStrict:
	default:
		errs = append(errs, fmt.Errorf("pbo.offset_mode %q is unknown", c.PBO.OffsetMode))
	}

	switch c.Convert.Format {
	case "sarc", "pbo", "blk":
	default:
		errs = append(errs, fmt.Errorf("convert.format %q is unknown", c.Convert.Format))
	}
	if _, err := gamearc.ParseCodecKind(c.Convert.Codec); err != nil {
		errs = append(errs, fmt.Errorf("convert.codec: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}

// OpenOptions maps classification settings to gamearc.OpenOptions.
func (c *Config) OpenOptions() gamearc.OpenOptions {
	return gamearc.OpenOptions{
		MinScore:        c.MinScore,
		DisableFallback: c.DisableFallback,
	}
}

// ExtractOptions maps extract settings to gamearc.ExtractOptions.
func (c *Config) ExtractOptions() gamearc.ExtractOptions {
	return gamearc.ExtractOptions{
		Filter:     gamearc.NewResourceFilter(c.Extract.Include, c.Extract.Exclude),
		FileMode:   gamearc.ExtractFileMode(c.Extract.FileMode),
		MaxWorkers: c.Extract.Workers,
		RawNames:   c.Extract.RawNames,
		FailFast:   c.Extract.FailFast,
	}
}
