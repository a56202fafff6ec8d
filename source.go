// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
)

// Source is a byte-addressable container that resources point into:
// an archive file, a decompressed side-file, or an in-memory buffer.
type Source struct {
	// ra serves all payload reads.
	ra io.ReaderAt
	// file is set when Source owns an *os.File opened via OpenSource.
	file *os.File
	// path is container path or display name.
	path string
	// size is total byte size at open time.
	size int64
	// mu guards closed state and close operation.
	mu sync.Mutex
	// closed reports whether Close was already called.
	closed bool
}

// OpenSource opens file by path as read-only source.
func OpenSource(path string) (*Source, error) {
	f, err := os.Open(path) //nolint:gosec // caller-provided archive path
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	return &Source{ra: f, file: f, path: path, size: fi.Size()}, nil
}

// NewSource wraps existing ReaderAt of known size. Closing it does not close ra.
func NewSource(path string, ra io.ReaderAt, size int64) *Source {
	return &Source{ra: ra, path: path, size: size}
}

// NewBytesSource wraps in-memory buffer as source.
func NewBytesSource(path string, data []byte) *Source {
	return NewSource(path, bytes.NewReader(data), int64(len(data)))
}

// Path returns container path or display name.
func (s *Source) Path() string {
	if s == nil {
		return ""
	}

	return s.path
}

// Size returns container size captured at open time.
func (s *Source) Size() int64 {
	if s == nil {
		return 0
	}

	return s.size
}

// Bounds returns validator for this source with default limits.
func (s *Source) Bounds() Bounds {
	return NewBounds(s.Size())
}

// ReadAt implements io.ReaderAt.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if s == nil || s.ra == nil {
		return 0, ErrNilSource
	}
	if s.isClosed() {
		return 0, ErrClosed
	}

	return s.ra.ReadAt(p, off)
}

// Section returns reader over [off, off+n) of source.
func (s *Source) Section(off int64, n int64) *io.SectionReader {
	return io.NewSectionReader(s, off, n)
}

// Close closes the underlying file if source owns one.
func (s *Source) Close() error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	if s.file != nil {
		return s.file.Close()
	}

	return nil
}

// isClosed reports closed state under lock.
func (s *Source) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
