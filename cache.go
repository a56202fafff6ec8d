// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// DecompressedSuffix is appended to container stem to name its decompressed sibling.
const DecompressedSuffix = "_decompressed"

// cacheFileMode is permission of committed sibling files.
const cacheFileMode fs.FileMode = 0o444

// cacheWriteBufferSize is write buffer size used while materializing sibling.
const cacheWriteBufferSize = 256 * 1024

// CacheStats reports cache activity counters.
type CacheStats struct {
	// Decompressions counts siblings actually written.
	Decompressions int64 `json:"decompressions" yaml:"decompressions"`
	// Hits counts requests served by an existing sibling.
	Hits int64 `json:"hits" yaml:"hits"`
}

// CacheOption configures ArchiveCache.
type CacheOption func(*ArchiveCache)

// WithCacheCodecs sets codec table used for decompression.
func WithCacheCodecs(codecs *CodecRegistry) CacheOption {
	return func(c *ArchiveCache) {
		if codecs != nil {
			c.codecs = codecs
		}
	}
}

// WithCacheLogger sets cache logger.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *ArchiveCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// ArchiveCache materializes containers wrapped in one outer compression layer
// as sibling files named "<stem>_decompressed<.ext>". Presence of sibling is the cache key.
type ArchiveCache struct {
	codecs         *CodecRegistry
	logger         *slog.Logger
	group          singleflight.Group
	decompressions atomic.Int64
	hits           atomic.Int64
}

// NewArchiveCache returns cache with default codecs and logger.
func NewArchiveCache(opts ...CacheOption) *ArchiveCache {
	c := &ArchiveCache{
		codecs: DefaultCodecs(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SiblingPath returns decompressed sibling path for container path.
func SiblingPath(path string) string {
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, stem+DecompressedSuffix+ext)
}

// Cached reports whether sibling for container path already exists.
func (c *ArchiveCache) Cached(path string) bool {
	info, err := os.Stat(SiblingPath(path))
	return err == nil && info.Mode().IsRegular()
}

// GetOrCreate returns source over decompressed sibling of src, writing it first when absent.
// Callers own returned source and must close it.
func (c *ArchiveCache) GetOrCreate(ctx context.Context, src *Source, plan *BlockPlan) (*Source, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheWrite, ErrNilSource)
	}
	if src.Path() == "" {
		return nil, fmt.Errorf("%w: source has no path", ErrCacheWrite)
	}
	if err := plan.Validate(src.Bounds(), plan.DecompressedLength()); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sibling := SiblingPath(src.Path())
	_, err, _ := c.group.Do(sibling, func() (any, error) {
		if c.Cached(src.Path()) {
			c.hits.Add(1)
			c.logger.Debug("reuse decompressed sibling", slog.String("path", sibling))
			return nil, nil
		}

		return nil, c.materialize(ctx, src, plan, sibling)
	})
	if err != nil {
		return nil, err
	}

	out, err := OpenSource(sibling)
	if err != nil {
		return nil, fmt.Errorf("%w: reopen %s: %w", ErrCacheWrite, sibling, err)
	}

	return out, nil
}

// materialize decodes plan into temp file next to sibling and commits it by rename.
func (c *ArchiveCache) materialize(ctx context.Context, src *Source, plan *BlockPlan, sibling string) error {
	dir := filepath.Dir(sibling)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(sibling)+"-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrCacheWrite, err)
	}

	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	rc := plan.Open(src, c.codecs)
	defer func() { _ = rc.Close() }()

	bw := bufio.NewWriterSize(tmp, cacheWriteBufferSize)
	written, err := io.Copy(bw, &contextReader{ctx: ctx, r: rc})
	if err != nil {
		return fmt.Errorf("%w: decompress %s: %w", ErrCacheWrite, src.Path(), err)
	}
	if written != plan.DecompressedLength() {
		return fmt.Errorf("%w: %w: wrote %d bytes, want %d", ErrCacheWrite, ErrSizeMismatch, written, plan.DecompressedLength())
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrCacheWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %w", ErrCacheWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %w", ErrCacheWrite, err)
	}
	if err := os.Chmod(tmpPath, cacheFileMode); err != nil {
		return fmt.Errorf("%w: freeze: %w", ErrCacheWrite, err)
	}

	if err := os.Rename(tmpPath, sibling); err != nil {
		// Another process may have committed the same sibling first.
		if c.Cached(src.Path()) {
			_ = os.Remove(tmpPath)
			committed = true
			c.hits.Add(1)
			return nil
		}

		return fmt.Errorf("%w: commit %s: %w", ErrCacheWrite, sibling, err)
	}

	committed = true
	c.decompressions.Add(1)
	c.logger.Info("decompressed archive",
		slog.String("source", src.Path()),
		slog.String("path", sibling),
		slog.Int64("size", written),
		slog.Int("blocks", plan.Len()),
	)

	return nil
}

// Invalidate removes sibling for container path. Missing sibling is not an error.
func (c *ArchiveCache) Invalidate(path string) error {
	sibling := SiblingPath(path)
	if err := os.Remove(sibling); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		// Read-only files cannot be removed on some platforms.
		if chmodErr := os.Chmod(sibling, 0o600); chmodErr != nil {
			return fmt.Errorf("invalidate %s: %w", sibling, err)
		}
		if err := os.Remove(sibling); err != nil {
			return fmt.Errorf("invalidate %s: %w", sibling, err)
		}
	}

	c.logger.Debug("invalidated decompressed sibling", slog.String("path", sibling))
	return nil
}

// Stats returns snapshot of cache counters.
func (c *ArchiveCache) Stats() CacheStats {
	return CacheStats{
		Decompressions: c.decompressions.Load(),
		Hits:           c.hits.Load(),
	}
}

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

// Read implements io.Reader.
func (r *contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}

	return r.r.Read(p)
}
