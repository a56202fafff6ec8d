// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// extractCopyBufferSize defines per-worker buffer size for file copy during extraction.
const extractCopyBufferSize = 64 * 1024

// ExtractFileMode controls output file open behavior during extraction.
type ExtractFileMode string

// Output file creation policies for extraction.
const (
	// ExtractFileModeAuto first tries create-only, then falls back to truncate for existing files.
	ExtractFileModeAuto ExtractFileMode = "auto"
	// ExtractFileModeOverwriteSmart rewrites files in place and truncates only when existing file is larger.
	ExtractFileModeOverwriteSmart ExtractFileMode = "overwrite_smart"
	// ExtractFileModeTruncate opens existing files with truncate and creates missing files.
	ExtractFileModeTruncate ExtractFileMode = "truncate"
	// ExtractFileModeCreateOnly creates files only when absent and fails on existing files.
	ExtractFileModeCreateOnly ExtractFileMode = "create_only"
)

// ExtractOptions configures Extract behavior.
type ExtractOptions struct {
	// Logger receives per-resource failures; defaults to slog.Default.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// OnResourceDone is called after one resource is fully written to disk.
	OnResourceDone func(res *Resource, written int64, outputPath string) `json:"-" yaml:"-"`
	// Resources limits extraction to selected directory entries; nil means all.
	Resources []*Resource `json:"-" yaml:"-"`
	// Filter narrows selected resources.
	Filter ResourceFilter `json:"filter,omitzero" yaml:"filter,omitzero"`
	// FileMode controls output file creation policy.
	FileMode ExtractFileMode `json:"file_mode,omitempty" yaml:"file_mode,omitempty"`
	// MaxWorkers is number of extraction workers (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
	// RawNames disables default name sanitization.
	RawNames bool `json:"raw_names,omitempty" yaml:"raw_names,omitempty"`
	// FailFast stops at first per-resource failure instead of continuing with siblings.
	FailFast bool `json:"fail_fast,omitempty" yaml:"fail_fast,omitempty"`
}

// applyDefaults fills zero-valued extract options with defaults.
func (opts *ExtractOptions) applyDefaults() {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FileMode == "" {
		opts.FileMode = ExtractFileModeAuto
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = max(runtime.GOMAXPROCS(0), 1)
	}
}

// ExtractedResource describes one written output file.
type ExtractedResource struct {
	// Name is resource logical name.
	Name string `json:"name" yaml:"name"`
	// Path is written output path relative to destination.
	Path string `json:"path" yaml:"path"`
	// Index is resource position in directory.
	Index int `json:"index" yaml:"index"`
	// Size is number of bytes written.
	Size int64 `json:"size" yaml:"size"`
}

// ExtractReport summarizes one Extract run. Per-resource failures do not abort siblings.
type ExtractReport struct {
	// Extracted lists written resources in directory order.
	Extracted []ExtractedResource `json:"extracted" yaml:"extracted"`
	// Failures lists per-resource failures in directory order.
	Failures []*ResourceError `json:"-" yaml:"-"`
	// Bytes is total payload bytes written.
	Bytes int64 `json:"bytes" yaml:"bytes"`
	// Duration is wall time of extraction.
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Err joins per-resource failures, nil when every resource succeeded.
func (r *ExtractReport) Err() error {
	if r == nil || len(r.Failures) == 0 {
		return nil
	}

	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}

	return errors.Join(errs...)
}

// extractWorkItem stores one selected resource with prepared output relative paths.
type extractWorkItem struct {
	res     *Resource
	relPath string
	relDir  string
	index   int
}

// extractResult is one finished work item.
type extractResult struct {
	err     error
	outPath string
	written int64
	item    int
}

// Extract writes selected resources to dstDir with a bounded worker pool.
// Failures of single resources are collected in the report; the returned error
// covers archive-level problems, cancellation, and FailFast aborts only.
func (a *Archive) Extract(ctx context.Context, dstDir string, opts ExtractOptions) (*ExtractReport, error) {
	if a.isClosed() {
		return nil, ErrClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	opts.applyDefaults()
	started := time.Now()

	selected := a.resources
	if opts.Resources != nil {
		selected = opts.Resources
	}

	selected, err := FilterResources(selected, opts.Filter)
	if err != nil {
		return nil, err
	}

	report := &ExtractReport{}
	if len(selected) == 0 {
		return report, nil
	}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(dstRootAbs, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	workItems, unnamed, err := a.prepareExtractWorkItems(selected, opts.RawNames)
	if err != nil {
		return nil, err
	}
	for _, rerr := range unnamed {
		opts.Logger.Warn("resource extraction failed",
			slog.String("archive", a.Path()),
			slog.String("resource", rerr.Name),
			slog.Int("index", rerr.Index),
			slog.Any("error", rerr.Err),
		)
	}
	report.Failures = unnamed
	if opts.FailFast && len(unnamed) > 0 {
		report.Duration = time.Since(started)
		return report, unnamed[0]
	}
	if err := prepareExtractDirs(dstRootAbs, workItems); err != nil {
		return nil, err
	}

	results := make([]extractResult, len(workItems))
	bufPool := sync.Pool{New: func() any {
		buf := make([]byte, extractCopyBufferSize)
		return &buf
	}}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxWorkers)
	for i, task := range workItems {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			bufPtr := bufPool.Get().(*[]byte) //nolint:forcetypeassert // pool contains only *[]byte
			defer bufPool.Put(bufPtr)

			outPath, written, err := a.extractPreparedResource(gctx, dstRootAbs, task, opts.FileMode, *bufPtr)
			results[i] = extractResult{item: i, outPath: outPath, written: written, err: err}
			if err != nil {
				if gctx.Err() != nil && errors.Is(err, gctx.Err()) {
					return err
				}

				opts.Logger.Warn("resource extraction failed",
					slog.String("archive", a.Path()),
					slog.String("resource", task.res.Name),
					slog.Int("index", task.index),
					slog.Any("error", err),
				)
				if opts.FailFast {
					return &ResourceError{Index: task.index, Name: task.res.Name, Err: err}
				}

				return nil
			}

			if opts.OnResourceDone != nil {
				opts.OnResourceDone(task.res, written, outPath)
			}

			return nil
		})
	}

	groupErr := g.Wait()
	for i, res := range results {
		task := workItems[i]
		switch {
		case res.err != nil:
			report.Failures = append(report.Failures, &ResourceError{Index: task.index, Name: task.res.Name, Err: res.err})
		case res.outPath != "":
			report.Extracted = append(report.Extracted, ExtractedResource{
				Name:  task.res.Name,
				Path:  filepath.ToSlash(task.relPath),
				Index: task.index,
				Size:  res.written,
			})
			report.Bytes += res.written
		}
	}

	slices.SortStableFunc(report.Failures, func(x, y *ResourceError) int {
		return cmp.Compare(x.Index, y.Index)
	})

	report.Duration = time.Since(started)
	if groupErr != nil {
		return report, groupErr
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	return report, nil
}

// prepareExtractWorkItems validates selected resources and prepares relative fs paths.
// Resources left without a usable name are returned as failures.
func (a *Archive) prepareExtractWorkItems(selected []*Resource, rawNames bool) ([]extractWorkItem, []*ResourceError, error) {
	indexOf := make(map[*Resource]int, len(a.resources))
	for i, res := range a.resources {
		indexOf[res] = i
	}

	names := make([]string, len(selected))
	for i, res := range selected {
		names[i] = res.Name
	}

	if !rawNames {
		sanitized, err := sanitizeNames(names)
		if err != nil {
			return nil, nil, err
		}

		names = sanitized
	}

	var unnamed []*ResourceError
	workItems := make([]extractWorkItem, 0, len(selected))
	for i, res := range selected {
		index, ok := indexOf[res]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s is not part of archive", ErrResourceNotFound, res.Name)
		}
		if strings.TrimSpace(names[i]) == "" {
			unnamed = append(unnamed, &ResourceError{
				Index: index,
				Name:  res.Name,
				Err:   fmt.Errorf("%w: empty name", ErrInvalidExtractPath),
			})
			continue
		}

		normalizedPath, err := normalizeExtractPath(names[i])
		if err != nil {
			return nil, nil, fmt.Errorf("normalize resource path %s: %w", res.Name, err)
		}

		relPath := filepath.FromSlash(normalizedPath)
		relDir := filepath.Dir(relPath)
		if relDir == "." {
			relDir = ""
		}

		workItems = append(workItems, extractWorkItem{
			res:     res,
			index:   index,
			relPath: relPath,
			relDir:  relDir,
		})
	}

	return workItems, unnamed, nil
}

// prepareExtractDirs creates all unique parent directories needed by work items.
func prepareExtractDirs(dstRootAbs string, workItems []extractWorkItem) error {
	seen := make(map[string]struct{}, len(workItems))
	for _, task := range workItems {
		if task.relDir == "" {
			continue
		}

		dirPath := filepath.Join(dstRootAbs, task.relDir)
		if err := ensureWithinRoot(dstRootAbs, dirPath); err != nil {
			return err
		}

		key := strings.ToLower(dirPath)
		if _, exists := seen[key]; exists {
			continue
		}

		seen[key] = struct{}{}
		if err := os.MkdirAll(dirPath, 0o750); err != nil {
			return fmt.Errorf("create output directory %s: %w", dirPath, err)
		}
	}

	return nil
}

// ensureWithinRoot rejects paths that resolve outside destination root.
func ensureWithinRoot(root string, target string) error {
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrExtractPathOutsideRoot, target)
	}

	return nil
}

// extractPreparedResource writes one prepared work item to destination root.
// Partially written output is removed on failure.
func (a *Archive) extractPreparedResource(
	ctx context.Context,
	dstRootAbs string,
	task extractWorkItem,
	fileMode ExtractFileMode,
	copyBuf []byte,
) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	outPath := filepath.Join(dstRootAbs, task.relPath)
	if err := ensureWithinRoot(dstRootAbs, outPath); err != nil {
		return "", 0, err
	}

	rc, err := task.res.Open(a.ectx.Codecs)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = rc.Close() }()

	file, needsTruncate, err := openExtractFile(outPath, fileMode, task.res.DecompressedLength)
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", outPath, err)
	}

	written, copyErr := copyExtractData(file, &contextReader{ctx: ctx, r: rc}, copyBuf)
	if copyErr == nil && written != task.res.DecompressedLength {
		copyErr = fmt.Errorf("%w: wrote %d bytes, declares %d", ErrSizeMismatch, written, task.res.DecompressedLength)
	}
	if copyErr == nil && needsTruncate {
		copyErr = file.Truncate(written)
	}

	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(outPath)
		return "", written, copyErr
	}
	if closeErr != nil {
		_ = os.Remove(outPath)
		return "", written, fmt.Errorf("close %s: %w", outPath, closeErr)
	}

	return outPath, written, nil
}

// openExtractFile opens output path according to selected extract file mode.
func openExtractFile(path string, mode ExtractFileMode, expectedSize int64) (*os.File, bool, error) {
	switch mode {
	case ExtractFileModeAuto:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // path checked against root
		if err == nil {
			return file, false, nil
		}
		if !os.IsExist(err) {
			return nil, false, err
		}

		file, truncErr := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // path checked against root
		return file, false, truncErr
	case ExtractFileModeOverwriteSmart:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o600) //nolint:gosec // path checked against root
		if err != nil {
			return nil, false, err
		}

		info, err := file.Stat()
		if err != nil {
			_ = file.Close()
			return nil, false, err
		}

		return file, info.Size() > expectedSize, nil
	case ExtractFileModeTruncate:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // path checked against root
		return file, false, err
	case ExtractFileModeCreateOnly:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // path checked against root
		return file, false, err
	default:
		return nil, false, fmt.Errorf("unknown extract file mode %q", mode)
	}
}

// copyExtractData copies one resource stream to output file using fixed worker buffer.
func copyExtractData(dst *os.File, src io.Reader, buf []byte) (int64, error) {
	if len(buf) == 0 {
		return 0, io.ErrShortBuffer
	}

	var total int64
	for {
		readN, readErr := src.Read(buf)
		if readN > 0 {
			writeN, writeErr := dst.Write(buf[:readN])
			total += int64(writeN)
			if writeErr != nil {
				return total, writeErr
			}
			if writeN != readN {
				return total, io.ErrShortWrite
			}
		}

		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			return total, nil
		}

		return total, readErr
	}
}
