// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

/*
Package sarc implements SARC, a simple indexed resource container, and its
SARZ variant wrapped in one outer compression layer.

Layout (all integers little-endian):

	header   "SARC" count:u32 tableOffset:u32 nameTableOffset:u32
	record   offset:u32 length:u32 decompressedLength:u32 codec:u16 flags:u16 nameOffset:u32
	names    NUL-terminated strings from nameTableOffset to end of file

Records marked FlagNamed reference the name table; others get synthesized
names. Records marked FlagChunked start with a chunk table:

	chunkCount:u32 { codec:u16 reserved:u16 compressedLength:u32 decompressedLength:u32 }...

followed by chunk payloads in order. SARZ files are

	"SARZ" codec:u16 flags:u16 decompressedSize:u64 payload...

where decoded payload is a complete SARC container.
*/
package sarc

import (
	"fmt"

	"github.com/woozymasta/gamearc"
)

// Binary layout constants.
const (
	// HeaderSize is size of SARC header.
	HeaderSize = 16
	// RecordSize is size of one directory record.
	RecordSize = 20
	// ChunkHeaderSize is size of one chunk table row.
	ChunkHeaderSize = 12
	// WrappedHeaderSize is size of SARZ header.
	WrappedHeaderSize = 16
)

// Magic values.
var (
	// Magic opens every SARC container.
	Magic = []byte("SARC")
	// WrappedMagic opens every SARZ container.
	WrappedMagic = []byte("SARZ")
)

// Extensions claimed by probes.
const (
	// Ext is SARC file extension.
	Ext = ".sarc"
	// WrappedExt is SARZ file extension.
	WrappedExt = ".sarz"
)

// Record flags.
const (
	// FlagNamed means nameOffset references name table.
	FlagNamed uint16 = 1 << 0
	// FlagChunked means record payload starts with chunk table.
	FlagChunked uint16 = 1 << 1
)

// Codec identifiers stored in records and chunk rows.
const (
	CodecIDNone     uint16 = 0
	CodecIDZlib     uint16 = 1
	CodecIDDeflate  uint16 = 2
	CodecIDZstd     uint16 = 3
	CodecIDLZ4      uint16 = 4
	CodecIDLZ4Frame uint16 = 5
	CodecIDLZSS     uint16 = 6
	CodecIDLZ77N    uint16 = 7
)

// codecKinds maps stored identifiers to codec kinds.
var codecKinds = map[uint16]gamearc.CodecKind{
	CodecIDNone:     gamearc.CodecNone,
	CodecIDZlib:     gamearc.CodecZlib,
	CodecIDDeflate:  gamearc.CodecDeflate,
	CodecIDZstd:     gamearc.CodecZstd,
	CodecIDLZ4:      gamearc.CodecLZ4,
	CodecIDLZ4Frame: gamearc.CodecLZ4Frame,
	CodecIDLZSS:     gamearc.CodecLZSS,
	CodecIDLZ77N:    gamearc.CodecLZ77N,
}

// CodecKind returns codec kind for stored identifier.
func CodecKind(id uint16) (gamearc.CodecKind, error) {
	kind, ok := codecKinds[id]
	if !ok {
		return "", fmt.Errorf("%w: codec id %d", gamearc.ErrUnknownCodec, id)
	}

	return kind, nil
}

// CodecID returns stored identifier for codec kind.
func CodecID(kind gamearc.CodecKind) (uint16, error) {
	if kind.IsNone() {
		return CodecIDNone, nil
	}

	for id, k := range codecKinds {
		if k == kind {
			return id, nil
		}
	}

	return 0, fmt.Errorf("%w: %s", gamearc.ErrUnknownCodec, kind)
}
