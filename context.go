// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ExtractionContext carries per-open state shared by probes while one container is classified.
// It is handed to FormatProbe.BuildDirectory and lives until the Archive is closed.
type ExtractionContext struct {
	// Context cancels long operations such as whole-archive decompression.
	Context context.Context
	// Logger receives probe diagnostics.
	Logger *slog.Logger
	// Codecs resolves codec kinds.
	Codecs *CodecRegistry
	// Cache materializes whole-archive compressed containers.
	Cache *ArchiveCache

	shared  map[string]any
	sources []*Source
	mu      sync.Mutex
}

// newExtractionContext builds context with defaults for nil fields.
func newExtractionContext(ctx context.Context, logger *slog.Logger, codecs *CodecRegistry, cache *ArchiveCache) *ExtractionContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if codecs == nil {
		codecs = DefaultCodecs()
	}
	if cache == nil {
		cache = NewArchiveCache(WithCacheCodecs(codecs), WithCacheLogger(logger))
	}

	return &ExtractionContext{
		Context: ctx,
		Logger:  logger,
		Codecs:  codecs,
		Cache:   cache,
		shared:  make(map[string]any),
	}
}

// Shared returns value stored under key by an earlier probe step, such as a palette or name table.
func (c *ExtractionContext) Shared(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.shared[key]
	return v, ok
}

// SetShared stores value under key for later probe steps.
func (c *ExtractionContext) SetShared(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shared[key] = value
}

// Track registers source to be closed together with archive.
func (c *ExtractionContext) Track(src *Source) {
	if src == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, src)
}

// Decompressed materializes whole-archive payload of in via cache and returns input over the result.
// Resulting source is tracked by this context.
func (c *ExtractionContext) Decompressed(in *Input, plan *BlockPlan) (*Input, error) {
	src, err := c.Cache.GetOrCreate(c.Context, in.Source, plan)
	if err != nil {
		return nil, err
	}

	c.Track(src)
	return NewInput(src)
}

// close releases tracked sources.
func (c *ExtractionContext) close() error {
	c.mu.Lock()
	sources := c.sources
	c.sources = nil
	c.mu.Unlock()

	var errs []error
	for _, src := range sources {
		if err := src.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
