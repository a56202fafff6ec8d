// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

/*
Package pbo reads and writes Bohemia Interactive PBO archives.

A PBO starts with a 21-byte "Vers" record, followed by NUL-terminated header
key/value pairs closed by an empty key, then the entry table:

	name\0 mime:u32 originalSize:u32 offset:u32 timestamp:u32 dataSize:u32

An all-zero record with an empty name ends the table. Payloads follow in
table order. Entries with mime "Cprs", or with a non-zero original size larger
than stored size, are LZSS compressed. Archives written by common tooling end
with 0x00 plus SHA1 of everything before it.

Probe exposes a PBO as gamearc resources; Pack writes new archives.
*/
package pbo

import (
	"errors"
	"strings"

	"github.com/woozymasta/gamearc"
)

// Binary layout and format limits.
const (
	// HeaderSize is size of leading "Vers" record.
	HeaderSize = 21
	// RecordFieldsSize is size of fixed fields following every entry name.
	RecordFieldsSize = 20
	// TrailerSize is size of 0x00 plus SHA1 trailer.
	TrailerSize = 1 + sha1Size

	sha1Size   = 20
	maxNameLen = 512
	maxPBOData = 1 << 32
)

// Ext is PBO file extension.
const Ext = ".pbo"

// MimeType is 4-byte PBO entry type stored little-endian.
type MimeType uint32

// PBO entry mime constants.
const (
	// MimeHeader marks leading header record ("Vers").
	MimeHeader MimeType = 0x56657273
	// MimeCompress marks LZSS-compressed data ("Cprs").
	MimeCompress MimeType = 0x43707273
	// MimeEncoded marks encrypted data ("Enco").
	MimeEncoded MimeType = 0x456e6372
	// MimeNil marks uncompressed or terminator entry.
	MimeNil MimeType = 0x00000000
)

// String returns four-letter mime tag or empty string for MimeNil.
func (m MimeType) String() string {
	switch m {
	case MimeHeader:
		return "Vers"
	case MimeCompress:
		return "Cprs"
	case MimeEncoded:
		return "Enco"
	case MimeNil:
		return ""
	default:
		return "unknown"
	}
}

// Resource property keys set by Probe.
const (
	PropertyMime         = "mime"
	PropertyTimestamp    = "timestamp"
	PropertyOriginalSize = "original_size"
	PropertyPrefix       = "prefix"
	PropertyRawPath      = "raw_path"
)

// SharedHeadersKey stores parsed []HeaderPair in gamearc.ExtractionContext.
const SharedHeadersKey = "pbo.headers"

// Errors returned by PBO parsing and packing.
var (
	ErrInvalidHeader      = errors.New("invalid PBO header")
	ErrFileNameTooLong    = errors.New("PBO entry name too long")
	ErrInvalidEntryOffset = errors.New("invalid PBO entry offset")
	ErrSizeOverflow       = errors.New("PBO size overflow")
	ErrEmptyInputs        = errors.New("no PBO inputs")
	ErrDuplicateEntryPath = errors.New("duplicate PBO entry path")
	ErrNilWriter          = errors.New("nil PBO writer")
	ErrTrailerMismatch    = errors.New("PBO SHA1 trailer mismatch")
)

// HeaderPair is one PBO header key/value pair in stored order.
type HeaderPair struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Entry is one parsed entry table record.
type Entry struct {
	// Path is entry path as stored in archive index.
	Path string `json:"path" yaml:"path"`
	// Offset is resolved absolute payload offset.
	Offset uint32 `json:"offset" yaml:"offset"`
	// DataSize is stored payload size in bytes.
	DataSize uint32 `json:"data_size" yaml:"data_size"`
	// OriginalSize is uncompressed size for compressed entries; zero otherwise.
	OriginalSize uint32 `json:"original_size,omitempty" yaml:"original_size,omitempty"`
	// TimeStamp is Unix timestamp from entry record.
	TimeStamp uint32 `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	// MimeType stores entry mime marker.
	MimeType MimeType `json:"mime_type,omitempty" yaml:"mime_type,omitempty"`
}

// IsCompressed reports whether entry is stored with LZSS compression.
func (e *Entry) IsCompressed() bool {
	return e.MimeType == MimeCompress || (e.OriginalSize != 0 && e.DataSize < e.OriginalSize)
}

// OffsetMode controls how payload offsets are resolved from entry table.
type OffsetMode string

// Offset resolution modes.
const (
	// OffsetModeSequential ignores stored offsets and derives them from entry sizes.
	OffsetModeSequential OffsetMode = "sequential"
	// OffsetModeStoredCompat uses valid non-zero stored offsets and falls back to sequential.
	OffsetModeStoredCompat OffsetMode = "stored_compat"
	// OffsetModeStoredStrict requires non-zero stored offsets to be valid.
	OffsetModeStoredStrict OffsetMode = "stored_strict"
)

// ReaderOptions configures index parsing.
type ReaderOptions struct {
	// OffsetMode controls whether stored index offsets are used.
	OffsetMode OffsetMode `json:"offset_mode,omitempty" yaml:"offset_mode,omitempty" mapstructure:"offset_mode"`
	// EnableJunkFilter drops empty and mangled entries.
	EnableJunkFilter bool `json:"enable_junk_filter,omitempty" yaml:"enable_junk_filter,omitempty" mapstructure:"enable_junk_filter"`
	// VerifyTrailer rejects archives whose SHA1 trailer does not match content.
	VerifyTrailer bool `json:"verify_trailer,omitempty" yaml:"verify_trailer,omitempty" mapstructure:"verify_trailer"`
}

// applyDefaults fills zero-valued reader options with defaults.
func (opts *ReaderOptions) applyDefaults() {
	if opts.OffsetMode == "" {
		opts.OffsetMode = OffsetModeSequential
	}
}

// HeaderValue returns first header value with case-insensitive key match.
func HeaderValue(headers []HeaderPair, key string) (string, bool) {
	for _, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h.Key), key) {
			return h.Value, true
		}
	}

	return "", false
}

// NormalizePrefixHeader normalizes PBO "prefix" header value to "\" separators.
func NormalizePrefixHeader(raw string) string {
	normalized := gamearc.NormalizePath(raw)
	if normalized == "" {
		return ""
	}

	return strings.ReplaceAll(normalized, "/", `\`)
}
