// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

/*
Package blk implements BLK1, a block-array container where every file is cut
into fixed-size blocks compressed with one archive-wide codec.

Layout (all integers little-endian):

	header  "BLK1" blockSize:u32 codec:u16 reserved:u16 fileCount:u32 blockCount:u32 nameTableOffset:u32
	file    firstBlock:u32 blockCount:u32 size:u32 nameOffset:u32
	block   offset:u32 compressedLength:u32

File table follows header, block table follows file table. Every block of a
file decodes to blockSize bytes except the last one, which holds the rest.
Files with nameOffset NoName, or all files when nameTableOffset is zero, get
synthesized names.
*/
package blk

import (
	"fmt"

	"github.com/woozymasta/gamearc"
)

// Binary layout constants.
const (
	// HeaderSize is size of BLK1 header.
	HeaderSize = 24
	// FileRecordSize is size of one file table row.
	FileRecordSize = 16
	// BlockRecordSize is size of one block table row.
	BlockRecordSize = 8
	// NoName marks file record without name table reference.
	NoName uint32 = 0xFFFFFFFF
)

// Block size limits accepted by reader and writer.
const (
	MinBlockSize     = 1 << 9
	MaxBlockSize     = 1 << 24
	DefaultBlockSize = 1 << 16
)

// Magic opens every BLK1 container.
var Magic = []byte("BLK1")

// Ext is BLK1 file extension.
const Ext = ".blk"

// SynthesizedExt is appended to synthesized names.
const SynthesizedExt = ".bin"

// codecIDs lists archive-wide codec identifiers by stored value.
var codecIDs = []gamearc.CodecKind{
	gamearc.CodecNone,
	gamearc.CodecZlib,
	gamearc.CodecDeflate,
	gamearc.CodecZstd,
	gamearc.CodecLZ4Frame,
	gamearc.CodecLZSS,
	gamearc.CodecLZ77N,
}

// CodecKind returns codec kind for stored identifier.
func CodecKind(id uint16) (gamearc.CodecKind, error) {
	if int(id) >= len(codecIDs) {
		return "", fmt.Errorf("%w: blk codec id %d", gamearc.ErrUnknownCodec, id)
	}

	return codecIDs[id], nil
}

// CodecID returns stored identifier for codec kind.
func CodecID(kind gamearc.CodecKind) (uint16, error) {
	if kind.IsNone() {
		return 0, nil
	}

	for id, k := range codecIDs {
		if k == kind {
			return uint16(id), nil //nolint:gosec // table is tiny
		}
	}

	return 0, fmt.Errorf("%w: blk cannot store %s", gamearc.ErrUnknownCodec, kind)
}

// validBlockSize reports whether size is a power of two within limits.
func validBlockSize(size uint32) bool {
	return size >= MinBlockSize && size <= MaxBlockSize && size&(size-1) == 0
}
