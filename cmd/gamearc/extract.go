// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/woozymasta/gamearc"
)

func (a *app) extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <archive>",
		Short: "Write archive resources to a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer func() { _ = archive.Close() }()

			opts := a.cfg.ExtractOptions()
			opts.Logger = a.logger

			var digests *manifestBuilder
			if a.cfg.Extract.Manifest != "" {
				digests = newManifestBuilder()
				opts.OnResourceDone = digests.add
			}

			dst := a.cfg.Extract.Output
			report, err := archive.Extract(cmd.Context(), dst, opts)
			if err != nil {
				return err
			}

			a.logger.Info("extracted archive",
				slog.String("archive", archive.Path()),
				slog.String("probe", archive.Probe()),
				slog.String("output", dst),
				slog.Int("files", len(report.Extracted)),
				slog.Int("failed", len(report.Failures)),
				slog.Int64("bytes", report.Bytes),
				slog.Duration("duration", report.Duration),
			)

			if digests != nil {
				m, err := digests.build(archive, dst, report)
				if err != nil {
					return err
				}
				if err := writeManifest(a.cfg.Extract.Manifest, m); err != nil {
					return err
				}
				a.logger.Debug("wrote manifest", slog.String("path", a.cfg.Extract.Manifest))
			}

			if err := report.Err(); err != nil {
				return fmt.Errorf("%d of %d resources failed: %w",
					len(report.Failures), len(report.Failures)+len(report.Extracted), err)
			}

			return nil
		},
	}

	f := cmd.Flags()
	f.StringP("output", "o", ".", "destination directory")
	f.String("manifest", "", "write YAML manifest with BLAKE3 digests to path")
	f.String("file-mode", string(gamearc.ExtractFileModeAuto), "file write policy (auto, overwrite_smart, truncate, create_only)")
	f.StringSlice("include", nil, "only extract resources matching patterns")
	f.StringSlice("exclude", nil, "skip resources matching patterns")
	f.IntP("workers", "j", 0, "parallel workers (0 means CPU count)")
	f.Bool("raw-names", false, "write names as stored without sanitizing")
	f.Bool("fail-fast", false, "stop at first failed resource")

	a.bind(f, map[string]string{
		"extract.output":    "output",
		"extract.manifest":  "manifest",
		"extract.file_mode": "file-mode",
		"extract.include":   "include",
		"extract.exclude":   "exclude",
		"extract.workers":   "workers",
		"extract.raw_names": "raw-names",
		"extract.fail_fast": "fail-fast",
	})

	return cmd
}
