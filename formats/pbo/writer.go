// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package pbo

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/woozymasta/gamearc"
	"github.com/woozymasta/pathrules"
)

// Default packer tuning values.
const (
	DefaultWriteBuffer     = 1024 * 1024
	DefaultMinCompressSize = 512
	DefaultMaxCompressSize = 16 * 1024 * 1024
)

// packCopyBufferSize is per-pack temporary buffer used by streaming payload copy.
const packCopyBufferSize = 64 * 1024

// ErrInvalidCompressPattern means compression rules failed to compile.
var ErrInvalidCompressPattern = errors.New("invalid PBO compress pattern")

// Input describes one source stream packed into a PBO entry.
type Input struct {
	// ModTime is optional entry timestamp.
	ModTime time.Time `json:"mod_time" yaml:"mod_time"`
	// Open returns raw source stream for this entry.
	Open func() (io.ReadCloser, error) `json:"-" yaml:"-"`
	// Path is destination path inside PBO.
	Path string `json:"path" yaml:"path"`
	// SizeHint is expected size in bytes (zero when unknown).
	SizeHint int64 `json:"size_hint,omitempty" yaml:"size_hint,omitempty"`
}

// BytesInput returns input serving data from memory.
func BytesInput(path string, data []byte) Input {
	return Input{
		Path:     path,
		SizeHint: int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// InputsFromArchive returns inputs streaming every resource of a decoded archive.
func InputsFromArchive(a *gamearc.Archive) []Input {
	resources := a.Resources()
	inputs := make([]Input, len(resources))
	for i, res := range resources {
		index := i
		inputs[i] = Input{
			Path:     res.Name,
			SizeHint: res.DecompressedLength,
			Open: func() (io.ReadCloser, error) {
				return a.OpenResource(index)
			},
		}
		if ts, ok := res.Properties.Int(PropertyTimestamp); ok && ts > 0 {
			inputs[i].ModTime = time.Unix(ts, 0)
		}
	}

	return inputs
}

// PackOptions configures pack behavior.
type PackOptions struct {
	// Codecs provides LZSS encoder; defaults to gamearc.DefaultCodecs.
	Codecs *gamearc.CodecRegistry `json:"-" yaml:"-"`
	// OnEntryDone is called after one entry payload is written.
	OnEntryDone func(entry Entry) `json:"-" yaml:"-"`
	// Headers are written in given order.
	Headers []HeaderPair `json:"headers,omitempty" yaml:"headers,omitempty"`
	// Compress defines ordered path rules selecting compression candidates.
	Compress []pathrules.Rule `json:"compress,omitempty" yaml:"compress,omitempty"`
	// CompressMatcherOptions control compression path rule matching.
	CompressMatcherOptions pathrules.MatcherOptions `json:"compress_matcher_options,omitzero" yaml:"compress_matcher_options,omitzero"`
	// WriterBufferSize is buffered writer size in bytes.
	WriterBufferSize int `json:"writer_buffer_size,omitempty" yaml:"writer_buffer_size,omitempty"`
	// MinCompressSize disables compression for smaller entries.
	MinCompressSize uint32 `json:"min_compress_size,omitempty" yaml:"min_compress_size,omitempty"`
	// MaxCompressSize disables compression for larger entries and bounds in-memory buffering.
	MaxCompressSize uint32 `json:"max_compress_size,omitempty" yaml:"max_compress_size,omitempty"`
}

// applyDefaults fills zero-valued pack options with defaults.
func (opts *PackOptions) applyDefaults() {
	if opts.Codecs == nil {
		opts.Codecs = gamearc.DefaultCodecs()
	}
	if opts.WriterBufferSize < 4096 {
		opts.WriterBufferSize = DefaultWriteBuffer
	}
	if opts.MinCompressSize == 0 {
		opts.MinCompressSize = DefaultMinCompressSize
	}
	if opts.MaxCompressSize == 0 || opts.MaxCompressSize <= opts.MinCompressSize {
		opts.MaxCompressSize = DefaultMaxCompressSize
	}
	if opts.CompressMatcherOptions == (pathrules.MatcherOptions{}) {
		opts.CompressMatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionExclude,
		}
	}
	if opts.CompressMatcherOptions.DefaultAction == pathrules.ActionUnknown {
		opts.CompressMatcherOptions.DefaultAction = pathrules.ActionExclude
	}
}

// PackResult contains pack output statistics.
type PackResult struct {
	// Entries are written records with absolute offsets.
	Entries []Entry `json:"entries" yaml:"entries"`
	// DataSize is total payload bytes written.
	DataSize int64 `json:"data_size" yaml:"data_size"`
	// IndexSize is total index bytes written.
	IndexSize int64 `json:"index_size" yaml:"index_size"`
	// CompressedEntries is number of entries written with LZSS payload.
	CompressedEntries int `json:"compressed_entries,omitempty" yaml:"compressed_entries,omitempty"`
	// Duration is end-to-end pack duration.
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// Pack writes a PBO to out from inputs sorted by path.
func Pack(ctx context.Context, out io.WriteSeeker, inputs []Input, opts PackOptions) (*PackResult, error) {
	startedAt := time.Now()

	if len(inputs) == 0 {
		return nil, ErrEmptyInputs
	}
	if out == nil {
		return nil, ErrNilWriter
	}

	opts.applyDefaults()

	sorted, err := preparePackInputs(inputs)
	if err != nil {
		return nil, err
	}

	matcher, err := newCompressMatcher(opts.Compress, opts.CompressMatcherOptions)
	if err != nil {
		return nil, err
	}

	w := bufio.NewWriterSize(out, opts.WriterBufferSize)
	if err := writeHeaderSection(w, opts.Headers); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flush headers: %w", err)
	}

	entriesStart, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("seek after headers: %w", err)
	}

	var placeholder [RecordFieldsSize]byte
	for _, in := range sorted {
		if _, err := w.WriteString(in.Path); err != nil {
			return nil, fmt.Errorf("write entry path: %w", err)
		}
		if err := w.WriteByte(0); err != nil {
			return nil, fmt.Errorf("write entry path terminator: %w", err)
		}
		if _, err := w.Write(placeholder[:]); err != nil {
			return nil, fmt.Errorf("write entry placeholder: %w", err)
		}
	}

	// Terminator record: empty name plus zero fields.
	if err := w.WriteByte(0); err != nil {
		return nil, fmt.Errorf("write entries terminator: %w", err)
	}
	if _, err := w.Write(placeholder[:]); err != nil {
		return nil, fmt.Errorf("write entries tail fields: %w", err)
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flush after entries: %w", err)
	}

	dataStart, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	if dataStart > maxPBOData {
		return nil, fmt.Errorf("%w: data start offset %d", ErrSizeOverflow, dataStart)
	}

	result := &PackResult{Entries: make([]Entry, 0, len(sorted))}
	currentOffset := uint32(dataStart) //nolint:gosec // checked above against maxPBOData
	copyBuf := make([]byte, packCopyBufferSize)
	for _, in := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entry, err := writeInputPayload(w, in, opts, matcher, currentOffset, copyBuf)
		if err != nil {
			return nil, err
		}

		entry.Offset = currentOffset
		result.Entries = append(result.Entries, entry)
		if entry.MimeType == MimeCompress {
			result.CompressedEntries++
		}
		if opts.OnEntryDone != nil {
			opts.OnEntryDone(entry)
		}

		currentOffset += entry.DataSize
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flush payloads: %w", err)
	}

	pos := entriesStart
	var fields [RecordFieldsSize]byte
	for i, entry := range result.Entries {
		pos += int64(len(entry.Path) + 1)
		binary.LittleEndian.PutUint32(fields[0:4], uint32(entry.MimeType))
		binary.LittleEndian.PutUint32(fields[4:8], entry.OriginalSize)
		// Common tooling emits zero in index offset and derives offsets sequentially.
		binary.LittleEndian.PutUint32(fields[8:12], 0)
		binary.LittleEndian.PutUint32(fields[12:16], entry.TimeStamp)
		binary.LittleEndian.PutUint32(fields[16:20], entry.DataSize)

		if _, err := out.Seek(pos, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek to entry %d: %w", i, err)
		}
		if _, err := out.Write(fields[:]); err != nil {
			return nil, fmt.Errorf("patch entry %d: %w", i, err)
		}

		pos += RecordFieldsSize
	}

	if _, err := out.Seek(0, io.SeekEnd); err != nil {
		return nil, fmt.Errorf("seek to end: %w", err)
	}

	result.DataSize = int64(currentOffset) - dataStart
	result.IndexSize = dataStart - entriesStart
	result.Duration = time.Since(startedAt)
	return result, nil
}

// PackFile writes a PBO to outPath through temp file, appends SHA1 trailer, and renames into place.
func PackFile(ctx context.Context, outPath string, inputs []Input, opts PackOptions) (*PackResult, error) {
	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".pbo-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	res, err := Pack(ctx, tmp, inputs, opts)
	if err != nil {
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close PBO file: %w", err)
	}
	if err := writeSHA1Trailer(tmpPath); err != nil {
		return nil, fmt.Errorf("write SHA1 trailer: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return nil, fmt.Errorf("rename into place: %w", err)
	}

	success = true
	return res, nil
}

// writeHeaderSection writes Vers record, header pairs, and header terminator.
func writeHeaderSection(w *bufio.Writer, headers []HeaderPair) error {
	var header [HeaderSize]byte
	binary.LittleEndian.PutUint32(header[1:5], uint32(MimeHeader))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, h := range headers {
		value := h.Value
		if strings.EqualFold(strings.TrimSpace(h.Key), "prefix") {
			value = NormalizePrefixHeader(value)
		}

		for _, s := range [...]string{h.Key, value} {
			if _, err := w.WriteString(s); err != nil {
				return fmt.Errorf("write header %s: %w", h.Key, err)
			}
			if err := w.WriteByte(0); err != nil {
				return fmt.Errorf("write header %s terminator: %w", h.Key, err)
			}
		}
	}

	if err := w.WriteByte(0); err != nil {
		return fmt.Errorf("write header terminator: %w", err)
	}

	return nil
}

// preparePackInputs normalizes archive paths and sorts inputs for deterministic output.
func preparePackInputs(inputs []Input) ([]Input, error) {
	sorted := make([]Input, len(inputs))
	copy(sorted, inputs)

	var total int64
	for i := range sorted {
		normalized := gamearc.NormalizePath(sorted[i].Path)
		if normalized == "" {
			return nil, fmt.Errorf("%w: empty entry path %q", gamearc.ErrInvalidExtractPath, sorted[i].Path)
		}
		if len(normalized) > maxNameLen {
			return nil, fmt.Errorf("%w: %s", ErrFileNameTooLong, normalized)
		}

		sorted[i].Path = strings.ReplaceAll(normalized, "/", `\`)
		total += max(sorted[i].SizeHint, 0)
	}

	if total > maxPBOData {
		return nil, fmt.Errorf("%w: estimated data %d exceeds 4 GiB", ErrSizeOverflow, total)
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Path < sorted[j].Path
	})

	seen := make(map[string]string, len(sorted))
	for _, in := range sorted {
		key := strings.ToLower(in.Path)
		if existing, ok := seen[key]; ok {
			return nil, fmt.Errorf("%w: %q conflicts with %q", ErrDuplicateEntryPath, in.Path, existing)
		}

		seen[key] = in.Path
	}

	return sorted, nil
}

// writeInputPayload opens one input and writes its payload, compressing candidates in memory.
func writeInputPayload(
	dst io.Writer,
	in Input,
	opts PackOptions,
	matcher *compressMatcher,
	currentOffset uint32,
	copyBuf []byte,
) (Entry, error) {
	if in.Open == nil {
		return Entry{}, fmt.Errorf("input %s: Open is nil", in.Path)
	}

	rc, err := in.Open()
	if err != nil {
		return Entry{}, fmt.Errorf("open input %s: %w", in.Path, err)
	}
	defer func() { _ = rc.Close() }()

	entry := Entry{Path: in.Path, TimeStamp: timeToUint32(in.ModTime)}
	maxEntrySize := int64(^uint32(0)) - int64(currentOffset)

	if !matcher.Match(in.Path) || in.SizeHint <= 0 || !shouldCompressBySize(opts, in.SizeHint) {
		streamed, err := copyPayloadBounded(dst, rc, maxEntrySize, copyBuf)
		if err != nil {
			return Entry{}, fmt.Errorf("stream input %s: %w", in.Path, err)
		}

		entry.DataSize = uint32(streamed) //nolint:gosec // bounded by maxEntrySize
		return entry, nil
	}

	raw, err := io.ReadAll(io.LimitReader(rc, int64(opts.MaxCompressSize)+1))
	if err != nil {
		return Entry{}, fmt.Errorf("read input %s: %w", in.Path, err)
	}
	if int64(len(raw)) > int64(opts.MaxCompressSize) || int64(len(raw)) > maxEntrySize {
		return Entry{}, fmt.Errorf("%w: input %s grew beyond size hint %d", ErrSizeOverflow, in.Path, in.SizeHint)
	}

	payload := raw
	compressed, err := opts.Codecs.Encode(gamearc.CodecLZSS, raw)
	switch {
	case gamearc.IsIncompressible(err):
		// stored raw
	case err != nil:
		return Entry{}, fmt.Errorf("compress %s: %w", in.Path, err)
	case len(compressed) < len(raw):
		payload = compressed
		entry.MimeType = MimeCompress
		entry.OriginalSize = uint32(len(raw)) //nolint:gosec // bounded by MaxCompressSize
	}

	if _, err := dst.Write(payload); err != nil {
		return Entry{}, fmt.Errorf("write payload %s: %w", in.Path, err)
	}

	entry.DataSize = uint32(len(payload)) //nolint:gosec // bounded by MaxCompressSize
	return entry, nil
}

// shouldCompressBySize reports whether payload size fits compression boundaries.
func shouldCompressBySize(opts PackOptions, size int64) bool {
	return size >= int64(opts.MinCompressSize) && size <= int64(opts.MaxCompressSize)
}

// copyPayloadBounded copies src into dst failing when more than limit bytes arrive.
func copyPayloadBounded(dst io.Writer, src io.Reader, limit int64, buf []byte) (int64, error) {
	written, err := io.CopyBuffer(dst, io.LimitReader(src, limit+1), buf)
	if err != nil {
		return written, err
	}
	if written > limit {
		return written, fmt.Errorf("%w: payload exceeds %d bytes", ErrSizeOverflow, limit)
	}

	return written, nil
}

// timeToUint32 converts time to uint32 Unix timestamp with bounds clamping.
func timeToUint32(t time.Time) uint32 {
	if t.IsZero() {
		return 0
	}

	u := t.Unix()
	if u < 0 {
		return 0
	}
	if u > 0xffffffff {
		return 0xffffffff
	}

	return uint32(u)
}

// compressMatcher holds compiled allow-list rules for compression.
type compressMatcher struct {
	matcher *pathrules.Matcher
}

// newCompressMatcher compiles compression path rules; nil when no rules are given.
func newCompressMatcher(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*compressMatcher, error) {
	normalized := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern := strings.ReplaceAll(strings.TrimSpace(rule.Pattern), `\`, `/`)
		if pattern == "" {
			continue
		}

		normalized = append(normalized, pathrules.Rule{Action: rule.Action, Pattern: pattern})
	}
	if len(normalized) == 0 {
		return nil, nil
	}

	matcher, err := pathrules.NewMatcher(normalized, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidCompressPattern, err)
	}

	return &compressMatcher{matcher: matcher}, nil
}

// Match reports whether path is included by compress rules.
func (m *compressMatcher) Match(path string) bool {
	if m == nil || m.matcher == nil {
		return false
	}

	candidate := gamearc.NormalizePath(path)
	if candidate == "" {
		return false
	}

	return m.matcher.Included(candidate, false)
}
