// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

// Command gamearc detects, lists, extracts, and converts game resource archives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/woozymasta/gamearc"
	"github.com/woozymasta/gamearc/formats/blk"
	"github.com/woozymasta/gamearc/formats/pbo"
	"github.com/woozymasta/gamearc/formats/sarc"
	"github.com/woozymasta/gamearc/internal/config"
	"github.com/woozymasta/gamearc/internal/logging"
)

// app holds state shared by all subcommands of one invocation.
type app struct {
	v        *viper.Viper
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
	cfgFile  string
}

// newRootCmd builds command tree with its own viper instance.
func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:                "gamearc",
		Short:              "Detect, list, and extract files from game resource archives",
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "path to config file")
	pf.String("log-level", "info", "log level (trace, debug, info, warn, error, fatal)")
	pf.String("log-output-dir", "", "directory to write JSON log files (logs also go to stderr)")
	pf.Bool("no-color", false, "disable colored console logs")
	pf.Int("min-score", gamearc.DefaultMinScore, "lowest probe score allowed to read an archive")
	pf.Bool("no-fallback", false, "fail when best matching probe cannot read archive")
	pf.String("name-pattern", gamearc.DefaultNamePattern, "printf pattern for synthesized resource names")
	pf.String("pbo-offset-mode", string(pbo.OffsetModeSequential), "pbo offset resolution (sequential, stored_compat, stored_strict)")
	pf.Bool("pbo-junk-filter", false, "drop empty and mangled pbo entries")
	pf.Bool("pbo-verify-trailer", false, "reject pbo archives with mismatched SHA1 trailer")

	a.bind(pf, map[string]string{
		"log_level":              "log-level",
		"log_output_dir":         "log-output-dir",
		"no_color":               "no-color",
		"min_score":              "min-score",
		"disable_fallback":       "no-fallback",
		"name_pattern":           "name-pattern",
		"pbo.offset_mode":        "pbo-offset-mode",
		"pbo.enable_junk_filter": "pbo-junk-filter",
		"pbo.verify_trailer":     "pbo-verify-trailer",
	})

	root.AddCommand(a.detectCmd(), a.listCmd(), a.extractCmd(), a.convertCmd())
	return root
}

// bind maps viper keys to flags of set.
func (a *app) bind(set *pflag.FlagSet, keys map[string]string) {
	for key, flag := range keys {
		if err := a.v.BindPFlag(key, set.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}

// setup reads config and installs logger before any subcommand runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	used, err := config.ReadFile(a.v, a.cfgFile)
	if err != nil {
		return err
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.Setup(logging.Options{
		Console:   cmd.ErrOrStderr(),
		Level:     cfg.LogLevel,
		OutputDir: cfg.LogOutputDir,
		NoColor:   cfg.NoColor,
	})
	if err != nil {
		return fmt.Errorf("could not set up logging: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	a.closeLog = closeLog
	if used != "" {
		logger.Debug("using config file", slog.String("path", used))
	}

	return nil
}

// teardown releases log file.
func (a *app) teardown(*cobra.Command, []string) error {
	if a.closeLog == nil {
		return nil
	}

	return a.closeLog()
}

// registry returns probes for every supported format in priority order.
func (a *app) registry() *gamearc.Registry {
	dir := gamearc.DirectoryOptions{NamePattern: a.cfg.NamePattern}

	sarcProbe := sarc.NewProbe()
	sarcProbe.Directory = dir

	wrappedProbe := sarc.NewWrappedProbe()
	wrappedProbe.Directory = dir

	pboProbe := pbo.NewProbe()
	pboProbe.Reader = a.cfg.PBO
	pboProbe.Directory = dir

	blkProbe := blk.NewProbe()
	blkProbe.Directory = dir

	return gamearc.NewRegistry(sarcProbe, wrappedProbe, pboProbe, blkProbe)
}

// open classifies archive at path.
func (a *app) open(ctx context.Context, path string) (*gamearc.Archive, error) {
	opts := a.cfg.OpenOptions()
	opts.Logger = a.logger

	archive, err := a.registry().Open(ctx, path, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	a.logger.Debug("opened archive",
		slog.String("path", path),
		slog.String("probe", archive.Probe()),
		slog.Int("score", archive.Score()),
		slog.Int("resources", archive.Len()),
	)

	return archive, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
