// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import (
	"errors"
	"fmt"
)

// Sentinel errors for extraction operations. Use errors.Is in callers.
var (
	// ErrValidation means an offset, length, or count read from a container failed a bounds check.
	ErrValidation = errors.New("container field failed bounds validation")
	// ErrCodec means a codec hit malformed or truncated input mid-stream.
	ErrCodec = errors.New("codec failure")
	// ErrUnknownCodec means no codec is registered for requested kind.
	ErrUnknownCodec = errors.New("unknown codec")
	// ErrSizeMismatch means materialized output length differs from declared decompressed length.
	ErrSizeMismatch = errors.New("decompressed size mismatch")
	// ErrCacheWrite means the whole-archive decompression side-file could not be written.
	ErrCacheWrite = errors.New("whole-archive cache write failed")
	// ErrNoProbe means no registered probe claimed the input.
	ErrNoProbe = errors.New("no format probe matched input")
	// ErrProbeFailed means every matching probe failed to build a directory.
	ErrProbeFailed = errors.New("matching probe could not read input")
	// ErrInvalidResource means resource description violates its invariants.
	ErrInvalidResource = errors.New("invalid resource")
	// ErrInvalidPlan means block plan arrays or blocks are malformed.
	ErrInvalidPlan = errors.New("invalid block plan")
	// ErrStreamUsed means a single-use codec stream was reopened or read after close.
	ErrStreamUsed = errors.New("codec stream already used")
	// ErrNilSource means resource or input has no source attached.
	ErrNilSource = errors.New("source is nil")
	// ErrClosed means the archive or source is already closed.
	ErrClosed = errors.New("archive or source already closed")
	// ErrResourceNotFound means the resource is not found in directory.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrInvalidExtractPath means resource name is invalid for extraction destination.
	ErrInvalidExtractPath = errors.New("invalid extract path")
	// ErrExtractPathOutsideRoot means resolved extraction path escapes destination root.
	ErrExtractPathOutsideRoot = errors.New("extract path escapes destination root")
	// ErrInvalidFilterRules means one or more extract filter rules are invalid.
	ErrInvalidFilterRules = errors.New("invalid extract filter rules")
)

// ResourceError scopes a materialization failure to one resource of a directory.
type ResourceError struct {
	// Err is the underlying failure.
	Err error
	// Name is the resource logical name.
	Name string
	// Index is resource position in directory.
	Index int
}

// Error implements error.
func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource %d (%s): %v", e.Index, e.Name, e.Err)
}

// Unwrap returns the underlying failure.
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// codecErrorf wraps a formatted codec failure with ErrCodec.
func codecErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCodec, fmt.Sprintf(format, args...))
}

// validationErrorf wraps a formatted bounds failure with ErrValidation.
func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
