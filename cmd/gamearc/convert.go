// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/woozymasta/gamearc"
	"github.com/woozymasta/gamearc/formats/blk"
	"github.com/woozymasta/gamearc/formats/pbo"
	"github.com/woozymasta/gamearc/formats/sarc"
	"github.com/woozymasta/gamearc/internal/logging"
)

func (a *app) convertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <archive> <output>",
		Short: "Repack archive resources into another container format",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer func() { _ = archive.Close() }()

			codec, err := gamearc.ParseCodecKind(a.cfg.Convert.Codec)
			if err != nil {
				return err
			}

			out := args[1]
			switch a.cfg.Convert.Format {
			case "sarc":
				err = a.convertSARC(archive, out, codec)
			case "pbo":
				err = a.convertPBO(cmd, archive, out)
			case "blk":
				err = a.convertBLK(archive, out, codec)
			default:
				err = fmt.Errorf("unknown convert format %q", a.cfg.Convert.Format)
			}
			if err != nil {
				return fmt.Errorf("convert %s: %w", args[0], err)
			}

			return nil
		},
	}

	f := cmd.Flags()
	f.StringP("format", "t", "sarc", "target format (sarc, pbo, blk)")
	f.StringP("codec", "c", string(gamearc.CodecZstd), "payload codec for sarc and blk targets")
	f.StringSlice("compress", nil, "pbo path patterns to store with LZSS")
	f.Uint32("block-size", blk.DefaultBlockSize, "blk decompressed block size")

	a.bind(f, map[string]string{
		"convert.format":     "format",
		"convert.codec":      "codec",
		"convert.compress":   "compress",
		"convert.block_size": "block-size",
	})

	return cmd
}

func (a *app) convertSARC(archive *gamearc.Archive, out string, codec gamearc.CodecKind) error {
	files, err := sarc.FromResources(archive.Resources(), archive.Codecs(), codec)
	if err != nil {
		return err
	}

	res, err := sarc.WriteFile(out, files, sarc.WriteOptions{Codecs: archive.Codecs()})
	if err != nil {
		return err
	}

	a.logger.Info("wrote sarc",
		slog.String("path", out),
		slog.Int("files", res.Records),
		slog.Int64("size", res.Size),
	)
	return nil
}

func (a *app) convertPBO(cmd *cobra.Command, archive *gamearc.Archive, out string) error {
	opts := pbo.PackOptions{
		Codecs:   archive.Codecs(),
		Compress: gamearc.IncludeRules(a.cfg.Convert.Compress...),
		OnEntryDone: func(e pbo.Entry) {
			a.logger.Log(cmd.Context(), logging.LevelTrace, "packed entry",
				slog.String("path", e.Path),
				slog.Bool("compressed", e.IsCompressed()),
			)
		},
	}
	if prefix := archivePrefix(archive); prefix != "" {
		opts.Headers = []pbo.HeaderPair{{Key: "prefix", Value: prefix}}
	}

	res, err := pbo.PackFile(cmd.Context(), out, pbo.InputsFromArchive(archive), opts)
	if err != nil {
		return err
	}

	a.logger.Info("wrote pbo",
		slog.String("path", out),
		slog.Int("files", len(res.Entries)),
		slog.Int("compressed", res.CompressedEntries),
		slog.Int64("size", res.DataSize+res.IndexSize),
		slog.Duration("duration", res.Duration),
	)
	return nil
}

func (a *app) convertBLK(archive *gamearc.Archive, out string, codec gamearc.CodecKind) error {
	resources := archive.Resources()
	files := make([]blk.File, 0, len(resources))
	for i, res := range resources {
		data, err := res.ReadAll(archive.Codecs())
		if err != nil {
			return &gamearc.ResourceError{Index: i, Name: res.Name, Err: err}
		}
		files = append(files, blk.File{Name: res.Name, Data: data})
	}

	tmp, err := os.CreateTemp(filepath.Dir(out), filepath.Base(out)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	res, err := blk.Write(tmp, files, blk.WriteOptions{
		Codecs:    archive.Codecs(),
		Codec:     codec,
		BlockSize: a.cfg.Convert.BlockSize,
	})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpPath, out)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	a.logger.Info("wrote blk",
		slog.String("path", out),
		slog.Int("files", res.Files),
		slog.Int("blocks", res.Blocks),
		slog.Int64("size", res.Size),
	)
	return nil
}

// archivePrefix returns pbo prefix header carried by source resources.
func archivePrefix(archive *gamearc.Archive) string {
	for _, res := range archive.Resources() {
		if prefix, ok := res.Properties.String(pbo.PropertyPrefix); ok && prefix != "" {
			return prefix
		}
	}

	return ""
}
