// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package blk

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/woozymasta/gamearc"
)

// ErrTooLarge means container would exceed 32-bit offsets.
var ErrTooLarge = errors.New("blk container exceeds 4 GiB")

// File is one payload to pack.
type File struct {
	// Name is stored in name table unless WriteOptions.OmitNames is set.
	Name string
	// Data is uncompressed payload.
	Data []byte
}

// WriteOptions configures Write.
type WriteOptions struct {
	// Codecs encodes blocks; defaults to gamearc.DefaultCodecs.
	Codecs *gamearc.CodecRegistry
	// Codec compresses every block.
	Codec gamearc.CodecKind
	// BlockSize is decompressed block size; defaults to DefaultBlockSize.
	BlockSize uint32
	// OmitNames writes no name table so readers synthesize names.
	OmitNames bool
}

// applyDefaults fills zero-valued write options with defaults.
func (opts *WriteOptions) applyDefaults() {
	if opts.Codecs == nil {
		opts.Codecs = gamearc.DefaultCodecs()
	}
	if opts.BlockSize == 0 {
		opts.BlockSize = DefaultBlockSize
	}
}

// WriteResult contains pack statistics.
type WriteResult struct {
	// Files is number of written file records.
	Files int `json:"files" yaml:"files"`
	// Blocks is number of written block records.
	Blocks int `json:"blocks" yaml:"blocks"`
	// Size is total container size.
	Size int64 `json:"size" yaml:"size"`
}

// Write packs files into BLK1 container.
// Every block must be encodable by opts.Codec; incompressible blocks are an error.
func Write(w io.Writer, files []File, opts WriteOptions) (WriteResult, error) {
	opts.applyDefaults()

	if !validBlockSize(opts.BlockSize) {
		return WriteResult{}, fmt.Errorf("%w: block size %d", gamearc.ErrValidation, opts.BlockSize)
	}

	codecID, err := CodecID(opts.Codec)
	if err != nil {
		return WriteResult{}, err
	}

	var (
		blocks     [][]byte
		fileRows   = make([]byte, 0, len(files)*FileRecordSize)
		names      bytes.Buffer
		blockSize  = int(opts.BlockSize)
		nameOffset = make([]uint32, len(files))
	)

	for i, f := range files {
		first := len(blocks)
		for start := 0; start < len(f.Data); start += blockSize {
			chunk := f.Data[start:min(start+blockSize, len(f.Data))]
			encoded, err := encodeBlock(opts.Codecs, opts.Codec, chunk)
			if err != nil {
				return WriteResult{}, fmt.Errorf("encode %s block %d: %w", f.Name, len(blocks)-first, err)
			}

			blocks = append(blocks, encoded)
		}

		nameOffset[i] = NoName
		if !opts.OmitNames && f.Name != "" {
			nameOffset[i] = uint32(names.Len()) //nolint:gosec // bounded by total size check
			names.WriteString(f.Name)
			names.WriteByte(0)
		}

		if uint64(len(f.Data)) > math.MaxUint32 {
			return WriteResult{}, ErrTooLarge
		}

		fileRows = binary.LittleEndian.AppendUint32(fileRows, uint32(first))             //nolint:gosec // bounded by total size check
		fileRows = binary.LittleEndian.AppendUint32(fileRows, uint32(len(blocks)-first)) //nolint:gosec // bounded by total size check
		fileRows = binary.LittleEndian.AppendUint32(fileRows, uint32(len(f.Data)))
		fileRows = binary.LittleEndian.AppendUint32(fileRows, nameOffset[i])
	}

	tablesEnd := int64(HeaderSize) + int64(len(files))*FileRecordSize + int64(len(blocks))*BlockRecordSize
	offset := tablesEnd
	blockRows := make([]byte, 0, len(blocks)*BlockRecordSize)
	for _, b := range blocks {
		blockRows = binary.LittleEndian.AppendUint32(blockRows, uint32(offset))  //nolint:gosec // bounded by total size check
		blockRows = binary.LittleEndian.AppendUint32(blockRows, uint32(len(b))) //nolint:gosec // bounded by total size check
		offset += int64(len(b))
	}

	nameTableOffset := int64(0)
	if names.Len() > 0 {
		nameTableOffset = offset
	}

	total := offset + int64(names.Len())
	if total > math.MaxUint32 {
		return WriteResult{}, ErrTooLarge
	}

	var header [HeaderSize]byte
	copy(header[:4], Magic)
	binary.LittleEndian.PutUint32(header[4:8], opts.BlockSize)
	binary.LittleEndian.PutUint16(header[8:10], codecID)
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(files)))      //nolint:gosec // bounded by total size check
	binary.LittleEndian.PutUint32(header[16:20], uint32(len(blocks)))     //nolint:gosec // bounded by total size check
	binary.LittleEndian.PutUint32(header[20:24], uint32(nameTableOffset)) //nolint:gosec // bounded by total size check

	bw := bufio.NewWriter(w)
	for _, part := range [][]byte{header[:], fileRows, blockRows} {
		if _, err := bw.Write(part); err != nil {
			return WriteResult{}, err
		}
	}
	for _, b := range blocks {
		if _, err := bw.Write(b); err != nil {
			return WriteResult{}, err
		}
	}
	if _, err := bw.Write(names.Bytes()); err != nil {
		return WriteResult{}, err
	}
	if err := bw.Flush(); err != nil {
		return WriteResult{}, err
	}

	return WriteResult{Files: len(files), Blocks: len(blocks), Size: total}, nil
}

// encodeBlock compresses one block with archive codec.
func encodeBlock(codecs *gamearc.CodecRegistry, codec gamearc.CodecKind, data []byte) ([]byte, error) {
	if codec.IsNone() {
		return data, nil
	}

	out, err := codecs.Encode(codec, data)
	if gamearc.IsIncompressible(err) {
		return nil, fmt.Errorf("%s cannot store incompressible block: %w", codec, err)
	}

	return out, err
}
