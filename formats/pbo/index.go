// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package pbo

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/woozymasta/gamearc"
)

const (
	// readerScanChunkSize is a chunk size used by null-terminated string scanner.
	readerScanChunkSize = 256
	// readerEntryBufferSize is a sequential read buffer for entry table parsing.
	readerEntryBufferSize = 64 * 1024
)

// entryTableReaderPool reuses buffered readers for sequential table parsing.
var entryTableReaderPool = sync.Pool{
	New: func() any {
		return bufio.NewReaderSize(bytes.NewReader(nil), readerEntryBufferSize)
	},
}

// Index is parsed PBO header section and entry table.
type Index struct {
	// Headers are key/value pairs in stored order.
	Headers []HeaderPair `json:"headers,omitempty" yaml:"headers,omitempty"`
	// Entries are parsed entry records with resolved offsets.
	Entries []Entry `json:"entries" yaml:"entries"`
	// DataStart is absolute offset of first payload byte.
	DataStart int64 `json:"data_start" yaml:"data_start"`
	// DataEnd is absolute offset after last payload byte.
	DataEnd int64 `json:"data_end" yaml:"data_end"`
	// Trailer is SHA1 trailer when HasTrailer is set.
	Trailer [sha1Size]byte `json:"-" yaml:"-"`
	// HasTrailer reports whether 0x00 + SHA1 follows payload region.
	HasTrailer bool `json:"has_trailer" yaml:"has_trailer"`
}

// Prefix returns normalized "prefix" header value.
func (ix *Index) Prefix() string {
	v, _ := HeaderValue(ix.Headers, "prefix")
	return NormalizePrefixHeader(v)
}

// ReadIndex parses header section and entry table of PBO held by ra.
// Structural problems wrap gamearc.ErrValidation.
func ReadIndex(ra io.ReaderAt, bounds gamearc.Bounds, opts ReaderOptions) (*Index, error) {
	opts.applyDefaults()

	if ra == nil {
		return nil, gamearc.ErrNilSource
	}
	if bounds.Size < HeaderSize {
		return nil, fmt.Errorf("%w: %w: short header", gamearc.ErrValidation, ErrInvalidHeader)
	}

	ix, err := readIndex(ra, bounds, opts)
	if err != nil {
		if errors.Is(err, gamearc.ErrValidation) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %w", gamearc.ErrValidation, err)
	}

	return ix, nil
}

// readIndex performs parse steps of ReadIndex.
func readIndex(ra io.ReaderAt, bounds gamearc.Bounds, opts ReaderOptions) (*Index, error) {
	headers, off, err := parseHeaderSection(ra, bounds.Size)
	if err != nil {
		return nil, err
	}

	entries, entriesEnd, err := parseEntriesBuffered(ra, off, bounds)
	if err != nil {
		return nil, err
	}

	if err := resolveEntryOffsets(entries, entriesEnd, bounds.Size, opts.OffsetMode); err != nil {
		return nil, err
	}
	if opts.EnableJunkFilter {
		entries = filterJunkEntries(entries)
	}

	ix := &Index{
		Headers:   headers,
		Entries:   entries,
		DataStart: entriesEnd,
		DataEnd:   payloadEnd(entries, entriesEnd),
	}

	// Trailer must sit after payload region; a trailing zero byte of payload is not one.
	if bounds.Size-TrailerSize >= ix.DataEnd {
		var tail [TrailerSize]byte
		if _, err := ra.ReadAt(tail[:], bounds.Size-TrailerSize); err == nil && tail[0] == 0x00 {
			ix.HasTrailer = true
			copy(ix.Trailer[:], tail[1:])
		}
	}

	return ix, nil
}

// parseHeaderSection validates fixed header and reads key-value pairs, returning entry table offset.
func parseHeaderSection(ra io.ReaderAt, size int64) ([]HeaderPair, int64, error) {
	var header [HeaderSize]byte
	if _, err := ra.ReadAt(header[:], 0); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, fmt.Errorf("%w: short header", ErrInvalidHeader)
		}

		return nil, 0, fmt.Errorf("read header: %w", err)
	}

	// The first directory entry must be "Vers".
	if header[0] != 0 || MimeType(binary.LittleEndian.Uint32(header[1:5])) != MimeHeader {
		return nil, 0, ErrInvalidHeader
	}

	headers := make([]HeaderPair, 0, 4)
	off := int64(HeaderSize)
	for {
		key, n, err := readNullTerminated(ra, off, size)
		if err != nil {
			return nil, 0, fmt.Errorf("read header key: %w", err)
		}

		off += int64(n)
		if key == "" {
			break
		}

		value, n, err := readNullTerminated(ra, off, size)
		if err != nil {
			return nil, 0, fmt.Errorf("read header value: %w", err)
		}

		off += int64(n)
		headers = append(headers, HeaderPair{Key: key, Value: value})
	}

	return headers, off, nil
}

// parseEntriesBuffered parses entry records from index table and returns payload start offset.
func parseEntriesBuffered(ra io.ReaderAt, tableOffset int64, bounds gamearc.Bounds) ([]Entry, int64, error) {
	if err := bounds.CheckOffset(tableOffset); err != nil {
		return nil, 0, fmt.Errorf("entry table: %w", err)
	}
	if tableOffset >= bounds.Size {
		return nil, 0, fmt.Errorf("read entry filename: %w", io.ErrUnexpectedEOF)
	}

	sr := io.NewSectionReader(ra, tableOffset, bounds.Size-tableOffset)
	br := entryTableReaderPool.Get().(*bufio.Reader) //nolint:forcetypeassert // pool contains only *bufio.Reader
	br.Reset(sr)
	defer entryTableReaderPool.Put(br)

	off := tableOffset
	var spill []byte
	entries := make([]Entry, 0, estimateEntryCapacity(bounds.Size-tableOffset))

	for {
		filename, nameBytes, err := readNullTerminatedBuffered(br, &spill)
		if err != nil {
			return nil, 0, fmt.Errorf("read entry filename: %w", unexpectedEOF(err))
		}
		if len(filename) > maxNameLen {
			return nil, 0, ErrFileNameTooLong
		}

		off += int64(nameBytes)
		var fields [RecordFieldsSize]byte
		if _, err := io.ReadFull(br, fields[:]); err != nil {
			return nil, 0, fmt.Errorf("read entry fields: %w", unexpectedEOF(err))
		}

		off += int64(len(fields))
		entry := Entry{
			Path:         filename,
			MimeType:     MimeType(binary.LittleEndian.Uint32(fields[0:4])),
			OriginalSize: binary.LittleEndian.Uint32(fields[4:8]),
			Offset:       binary.LittleEndian.Uint32(fields[8:12]),
			TimeStamp:    binary.LittleEndian.Uint32(fields[12:16]),
			DataSize:     binary.LittleEndian.Uint32(fields[16:20]),
		}

		if filename == "" && entry == (Entry{}) {
			return entries, off, nil
		}
		if bounds.MaxCount > 0 && len(entries) >= bounds.MaxCount {
			return nil, 0, fmt.Errorf("%w: entry count exceeds limit %d", gamearc.ErrValidation, bounds.MaxCount)
		}
		if err := bounds.CheckLength(int64(entry.OriginalSize)); err != nil {
			return nil, 0, fmt.Errorf("entry %s: %w", filename, err)
		}

		entries = append(entries, entry)
	}
}

// unexpectedEOF maps clean EOF inside table to io.ErrUnexpectedEOF.
func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}

	return err
}

// estimateEntryCapacity returns a conservative initial capacity for parsed entry metadata.
func estimateEntryCapacity(remainingBytes int64) int {
	if remainingBytes <= 0 {
		return 0
	}

	const (
		minCap = 16
		maxCap = 8192
		// remainingBytes includes payload region, so keep estimate intentionally conservative.
		avgEntryBytes = 512
	)

	return int(min(max(remainingBytes/avgEntryBytes, minCap), maxCap))
}

// payloadEnd returns end offset of furthest payload in entries.
func payloadEnd(entries []Entry, dataStart int64) int64 {
	end := dataStart
	for i := range entries {
		end = max(end, int64(entries[i].Offset)+int64(entries[i].DataSize))
	}

	return end
}

// resolveEntryOffsets applies selected offset policy and validates payload bounds.
func resolveEntryOffsets(entries []Entry, dataStart int64, totalSize int64, mode OffsetMode) error {
	switch mode {
	case OffsetModeSequential:
		if err := assignSequentialOffsets(entries, dataStart); err != nil {
			return err
		}
	case OffsetModeStoredCompat:
		usedStored, err := tryAssignStoredOffsets(entries, dataStart, totalSize)
		if err != nil || !usedStored {
			if err := assignSequentialOffsets(entries, dataStart); err != nil {
				return err
			}
		}
	case OffsetModeStoredStrict:
		usedStored, err := tryAssignStoredOffsets(entries, dataStart, totalSize)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEntryOffset, err)
		}
		if !usedStored {
			if err := assignSequentialOffsets(entries, dataStart); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unknown offset mode %q", ErrInvalidEntryOffset, mode)
	}

	return validateResolvedOffsets(entries, dataStart, totalSize)
}

// assignSequentialOffsets derives payload offsets from dataStart and previous entry sizes.
func assignSequentialOffsets(entries []Entry, dataStart int64) error {
	if dataStart < 0 || uint64(dataStart) > uint64(math.MaxUint32) {
		return fmt.Errorf("%w: data start offset %d", ErrSizeOverflow, dataStart)
	}

	current := uint32(dataStart) //nolint:gosec // bounded by check above
	for i := range entries {
		entries[i].Offset = current

		if uint64(entries[i].DataSize) > uint64(math.MaxUint32-current) {
			return fmt.Errorf("%w: entry %s size would exceed 4 GiB", ErrSizeOverflow, entries[i].Path)
		}

		current += entries[i].DataSize
	}

	return nil
}

// tryAssignStoredOffsets tries to apply stored non-zero index offsets in relative or absolute form.
func tryAssignStoredOffsets(entries []Entry, dataStart int64, totalSize int64) (bool, error) {
	hasMeaningful := false
	for i := range entries {
		if entries[i].Offset != 0 {
			hasMeaningful = true
			break
		}
	}
	if !hasMeaningful {
		return false, nil
	}

	// First offset below dataStart usually means relative form.
	order := []bool{true, false}
	if int64(entries[0].Offset) < dataStart {
		order = []bool{false, true}
	}

	for _, absolute := range order {
		if err := assignStoredOffsets(entries, dataStart, totalSize, absolute); err == nil {
			return true, nil
		}
	}

	return false, errors.New("stored offsets are malformed")
}

// assignStoredOffsets applies stored offsets as absolute or relative-to-dataStart values.
// Entries are left untouched on failure.
func assignStoredOffsets(entries []Entry, dataStart int64, totalSize int64, absolute bool) error {
	adjust := dataStart
	if absolute {
		adjust = 0
	}

	resolved := make([]uint32, len(entries))
	prev := int64(-1)
	for i := range entries {
		offset := int64(entries[i].Offset) + adjust
		if offset < dataStart {
			return fmt.Errorf("entry %s offset before data start", entries[i].Path)
		}
		if offset > math.MaxUint32 {
			return fmt.Errorf("entry %s offset out of range", entries[i].Path)
		}
		if offset < prev {
			return fmt.Errorf("entry %s offset is not monotonic", entries[i].Path)
		}

		end := offset + int64(entries[i].DataSize)
		if end > totalSize {
			return fmt.Errorf("entry %s payload out of file bounds", entries[i].Path)
		}

		resolved[i] = uint32(offset) //nolint:gosec // bounded by range check above
		prev = offset
	}

	for i := range entries {
		entries[i].Offset = resolved[i]
	}

	return nil
}

// validateResolvedOffsets validates final offsets regardless of policy branch.
func validateResolvedOffsets(entries []Entry, dataStart int64, totalSize int64) error {
	for i := range entries {
		offset := int64(entries[i].Offset)
		if offset < dataStart {
			return fmt.Errorf("%w: entry %s offset before data start", ErrInvalidEntryOffset, entries[i].Path)
		}

		end := offset + int64(entries[i].DataSize)
		if end > totalSize {
			return fmt.Errorf("%w: entry %s payload out of file bounds", ErrInvalidEntryOffset, entries[i].Path)
		}
	}

	return nil
}

// filterJunkEntries removes empty or unusable entries from parsed table.
func filterJunkEntries(entries []Entry) []Entry {
	filtered := make([]Entry, 0, len(entries))
	for i := range entries {
		e := entries[i]
		if e.DataSize == 0 {
			continue
		}
		if e.MimeType == MimeCompress && e.OriginalSize == 0 {
			continue
		}
		if gamearc.NormalizePath(e.Path) == "" {
			continue
		}

		filtered = append(filtered, e)
	}

	return filtered
}

// readNullTerminatedBuffered reads a NUL-terminated string from buffered stream.
func readNullTerminatedBuffered(br *bufio.Reader, spill *[]byte) (string, int, error) {
	consumed := 0
	*spill = (*spill)[:0]

	for {
		chunk, err := br.ReadSlice(0)
		consumed += len(chunk)

		if errors.Is(err, bufio.ErrBufferFull) {
			*spill = append(*spill, chunk...)
			if len(*spill) > maxNameLen {
				return "", 0, ErrFileNameTooLong
			}
			continue
		}
		if err != nil {
			return "", 0, err
		}

		segment := chunk[:len(chunk)-1]
		if len(*spill) == 0 {
			return string(segment), consumed, nil
		}

		*spill = append(*spill, segment...)
		return string(*spill), consumed, nil
	}
}

// readNullTerminated reads a zero-terminated string from ReaderAt starting at offset.
func readNullTerminated(ra io.ReaderAt, offset int64, size int64) (string, int, error) {
	total := 0
	var out []byte

	// Scan larger chunks to avoid one-byte ReadAt calls on large indices.
	var chunk [readerScanChunkSize]byte
	for {
		pos := offset + int64(total)
		if pos >= size {
			return "", 0, io.ErrUnexpectedEOF
		}

		want := min(int64(len(chunk)), size-pos)
		n, err := ra.ReadAt(chunk[:want], pos)
		if n > 0 {
			part := chunk[:n]
			if idx := bytes.IndexByte(part, 0); idx >= 0 {
				consumed := total + idx + 1
				if len(out) == 0 {
					return string(part[:idx]), consumed, nil
				}

				out = append(out, part[:idx]...)
				return string(out), consumed, nil
			}

			out = append(out, part...)
			total += n
			if total > maxNameLen {
				return "", 0, ErrFileNameTooLong
			}
		}

		if err != nil && !errors.Is(err, io.EOF) {
			return "", 0, err
		}
		if n == 0 {
			return "", 0, io.ErrUnexpectedEOF
		}
	}
}
