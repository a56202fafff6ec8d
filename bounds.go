// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import "math"

// Default sanity limits applied by NewBounds.
const (
	// DefaultMaxCount bounds entry counts read from container headers.
	DefaultMaxCount = 1 << 20
	// DefaultMaxLength bounds one declared decompressed length (4 GiB).
	DefaultMaxLength int64 = 1 << 32
)

// Bounds validates offsets, lengths, and counts read from one container before they are trusted.
type Bounds struct {
	// Size is total byte size of the container source.
	Size int64
	// MaxLength caps one length value; zero disables the cap.
	MaxLength int64
	// MaxCount caps record counts; zero disables the cap.
	MaxCount int
}

// NewBounds returns validator for source of given size with default limits.
func NewBounds(size int64) Bounds {
	return Bounds{
		Size:      size,
		MaxLength: DefaultMaxLength,
		MaxCount:  DefaultMaxCount,
	}
}

// CheckOffset reports whether offset points inside [0, Size].
func (b Bounds) CheckOffset(offset int64) error {
	if offset < 0 {
		return validationErrorf("offset %d is negative", offset)
	}
	if offset > b.Size {
		return validationErrorf("offset %d beyond source size %d", offset, b.Size)
	}

	return nil
}

// CheckLength reports whether length is non-negative and within MaxLength.
func (b Bounds) CheckLength(length int64) error {
	if length < 0 {
		return validationErrorf("length %d is negative", length)
	}
	if b.MaxLength > 0 && length > b.MaxLength {
		return validationErrorf("length %d exceeds limit %d", length, b.MaxLength)
	}

	return nil
}

// CheckRange reports whether [offset, offset+length) lies inside the source.
func (b Bounds) CheckRange(offset int64, length int64) error {
	if err := b.CheckOffset(offset); err != nil {
		return err
	}
	if err := b.CheckLength(length); err != nil {
		return err
	}
	if length > math.MaxInt64-offset {
		return validationErrorf("range %d+%d overflows", offset, length)
	}
	if offset+length > b.Size {
		return validationErrorf("range %d+%d exceeds source size %d", offset, length, b.Size)
	}

	return nil
}

// CheckCount reports whether count records of at least minRecordSize bytes fit into available bytes.
func (b Bounds) CheckCount(count int64, minRecordSize int64, available int64) error {
	if count < 0 {
		return validationErrorf("count %d is negative", count)
	}
	if b.MaxCount > 0 && count > int64(b.MaxCount) {
		return validationErrorf("count %d exceeds limit %d", count, b.MaxCount)
	}
	if minRecordSize <= 0 {
		return nil
	}
	if available < 0 || count > available/minRecordSize {
		return validationErrorf("count %d of %d-byte records does not fit into %d bytes", count, minRecordSize, available)
	}

	return nil
}
