// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package pbo

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // Trailer format requires SHA1.
	"fmt"
	"io"
	"os"
)

// VerifyTrailer checks SHA1 trailer of ix against content of ra.
// Archives without trailer pass.
func VerifyTrailer(ra io.ReaderAt, size int64, ix *Index) error {
	if ix == nil || !ix.HasTrailer {
		return nil
	}

	sum, err := hashPrefixSHA1(io.NewSectionReader(ra, 0, size-TrailerSize))
	if err != nil {
		return fmt.Errorf("hash content: %w", err)
	}
	if !bytes.Equal(sum, ix.Trailer[:]) {
		return fmt.Errorf("%w: stored %x, computed %x", ErrTrailerMismatch, ix.Trailer, sum)
	}

	return nil
}

// writeSHA1Trailer appends SHA1 trailer (0x00 + 20-byte hash) to the file.
// The hash is computed over all content up to (but not including) the trailer.
// An existing valid trailer is replaced.
func writeSHA1Trailer(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0) //nolint:gosec // caller-owned output path
	if err != nil {
		return fmt.Errorf("open for trailer: %w", err)
	}
	defer func() { _ = f.Close() }()

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek end: %w", err)
	}

	writePos := size
	var sum []byte

	if size >= TrailerSize {
		tail := make([]byte, TrailerSize)
		if _, err := f.ReadAt(tail, size-TrailerSize); err == nil && tail[0] == 0x00 {
			candidate := size - TrailerSize
			candidateSum, err := hashPrefixSHA1(io.NewSectionReader(f, 0, candidate))
			if err != nil {
				return fmt.Errorf("hash trailer candidate: %w", err)
			}

			if bytes.Equal(candidateSum, tail[1:]) {
				writePos = candidate
				sum = candidateSum
			}
		}
	}

	if sum == nil {
		sum, err = hashPrefixSHA1(io.NewSectionReader(f, 0, size))
		if err != nil {
			return fmt.Errorf("hash content: %w", err)
		}
	}

	trailer := append([]byte{0x00}, sum...)
	if _, err := f.WriteAt(trailer, writePos); err != nil {
		return fmt.Errorf("write trailer: %w", err)
	}

	return f.Sync()
}

// hashPrefixSHA1 calculates SHA1 over r.
func hashPrefixSHA1(r io.Reader) ([]byte, error) {
	h := sha1.New() //nolint:gosec // Trailer format requires SHA1.
	if _, err := io.Copy(h, r); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}
