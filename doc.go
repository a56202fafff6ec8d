// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

/*
Package gamearc is a format-agnostic core for extracting files from game
resource containers. Format packages plug in as FormatProbe implementations;
the core handles classification, validation, decompression, and extraction.

Pipeline (summary):
  - every registered probe scores the container cheaply; highest score wins,
    ties go to the probe registered first, zero means "not mine";
  - winning probe builds a directory; every record is validated against
    container bounds before any Resource exists, and one bad record rejects
    the whole directory;
  - resources decode lazily through a Codec, or through a BlockPlan of
    independently compressed blocks;
  - containers compressed as a whole are decoded once into a read-only
    "<stem>_decompressed<ext>" sibling and reused by later opens.

# Opening

	registry := gamearc.NewRegistry(sarc.NewProbe(), sarc.NewWrappedProbe(), pbo.NewProbe())
	a, err := registry.Open(ctx, "assets.sarc", gamearc.OpenOptions{})
	if err != nil {
	    return err
	}
	defer a.Close()

	for _, res := range a.Resources() {
	    fmt.Println(res.Name, res.DecompressedLength)
	}

	data, err := a.ReadResource("textures/grass.dds")

Probes that fail to build a directory are skipped and the next candidate is
tried unless OpenOptions.DisableFallback is set.

# Extracting

	report, err := a.Extract(ctx, "out", gamearc.ExtractOptions{
	    Filter:     gamearc.NewResourceFilter([]string{"textures/"}, []string{"*.tmp"}),
	    MaxWorkers: 4,
	})
	if err != nil {
	    return err
	}
	for _, f := range report.Failures {
	    log.Println(f)
	}

Per-resource failures do not stop siblings; they are collected in
ExtractReport. Output names are sanitized for the host filesystem unless
ExtractOptions.RawNames is set.

# Codecs

DefaultCodecs registers pass-through, zlib, raw deflate, zstd, lz4 block,
lz4 frame, Bohemia LZSS, and a nibble LZ77 variant. Codec streams produce
exactly the declared output length; short or overlong output is ErrCodec.
Additional codecs are added with CodecRegistry.Register.

# Errors

Classification failures wrap ErrNoProbe or ErrProbeFailed; structural
problems wrap ErrValidation; decoding problems wrap ErrCodec or
ErrSizeMismatch; whole-archive cache problems wrap ErrCacheWrite. Use
errors.Is for matching and errors.As with *ResourceError for record index.
*/
package gamearc
