// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package blk

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/woozymasta/gamearc"
)

// Header is decoded BLK1 header.
type Header struct {
	// Codec compresses every block.
	Codec gamearc.CodecKind `json:"codec" yaml:"codec"`
	// BlockSize is decompressed size of every full block.
	BlockSize uint32 `json:"block_size" yaml:"block_size"`
	// FileCount is number of file records.
	FileCount uint32 `json:"file_count" yaml:"file_count"`
	// BlockCount is number of block records.
	BlockCount uint32 `json:"block_count" yaml:"block_count"`
	// NameTableOffset is absolute offset of name table, zero when absent.
	NameTableOffset uint32 `json:"name_table_offset" yaml:"name_table_offset"`
}

// tablesEnd returns offset after block table.
func (h Header) tablesEnd() int64 {
	return HeaderSize + int64(h.FileCount)*FileRecordSize + int64(h.BlockCount)*BlockRecordSize
}

// Probe recognizes BLK1 containers.
type Probe struct {
	// Directory configures name synthesis.
	Directory gamearc.DirectoryOptions
}

// NewProbe returns BLK1 probe with default options.
func NewProbe() *Probe {
	return &Probe{}
}

// Name implements gamearc.FormatProbe.
func (*Probe) Name() string {
	return "blk"
}

// Score implements gamearc.FormatProbe.
func (*Probe) Score(in *gamearc.Input) int {
	var card gamearc.Scorecard
	card.Extension(in, Ext)
	card.Magic(in.HasMagic(0, Magic))

	blockSize, okSize := in.Uint32At(4)
	codecID, okCodec := in.Uint16At(8)
	files, okFiles := in.Uint32At(12)
	blocks, okBlocks := in.Uint32At(16)
	if !okSize || !okCodec || !okFiles || !okBlocks {
		return card.Score()
	}

	_, err := CodecKind(codecID)
	card.Plausible(validBlockSize(blockSize))
	card.Plausible(err == nil)
	card.Plausible(Header{FileCount: files, BlockCount: blocks}.tablesEnd() <= in.Size())

	return card.Score()
}

// BuildDirectory implements gamearc.FormatProbe.
func (p *Probe) BuildDirectory(ctx *gamearc.ExtractionContext, in *gamearc.Input) ([]*gamearc.Resource, error) {
	src := in.Source
	header, err := ReadHeader(src)
	if err != nil {
		return nil, err
	}

	records, names, err := readRecords(src, header)
	if err != nil {
		return nil, err
	}

	resources, err := gamearc.BuildDirectory(src, src.Bounds(), records, names, p.Directory)
	if err != nil {
		return nil, err
	}

	ctx.Logger.Debug("blk directory",
		slog.String("path", in.Path),
		slog.String("codec", header.Codec.String()),
		slog.Uint64("block_size", uint64(header.BlockSize)),
		slog.Int("files", len(resources)),
	)

	return resources, nil
}

// ReadHeader reads and validates BLK1 header of src.
func ReadHeader(src *gamearc.Source) (Header, error) {
	var buf [HeaderSize]byte
	if src.Size() < HeaderSize {
		return Header{}, fmt.Errorf("%w: short blk header", gamearc.ErrValidation)
	}
	if _, err := src.ReadAt(buf[:], 0); err != nil {
		return Header{}, fmt.Errorf("read blk header: %w", err)
	}
	if string(buf[:4]) != string(Magic) {
		return Header{}, fmt.Errorf("%w: bad blk magic %q", gamearc.ErrValidation, buf[:4])
	}

	kind, err := CodecKind(binary.LittleEndian.Uint16(buf[8:10]))
	if err != nil {
		return Header{}, fmt.Errorf("%w: %w", gamearc.ErrValidation, err)
	}

	h := Header{
		BlockSize:       binary.LittleEndian.Uint32(buf[4:8]),
		Codec:           kind,
		FileCount:       binary.LittleEndian.Uint32(buf[12:16]),
		BlockCount:      binary.LittleEndian.Uint32(buf[16:20]),
		NameTableOffset: binary.LittleEndian.Uint32(buf[20:24]),
	}
	if !validBlockSize(h.BlockSize) {
		return Header{}, fmt.Errorf("%w: block size %d", gamearc.ErrValidation, h.BlockSize)
	}

	return h, nil
}

// readRecords decodes file and block tables into directory records with uniform plans.
func readRecords(src *gamearc.Source, h Header) ([]gamearc.EntryRecord, gamearc.NameResolver, error) {
	bounds := src.Bounds()
	if err := bounds.CheckCount(int64(h.FileCount), FileRecordSize, src.Size()-HeaderSize); err != nil {
		return nil, nil, fmt.Errorf("file table: %w", err)
	}

	blockTableOffset := HeaderSize + int64(h.FileCount)*FileRecordSize
	if err := bounds.CheckCount(int64(h.BlockCount), BlockRecordSize, src.Size()-blockTableOffset); err != nil {
		return nil, nil, fmt.Errorf("block table: %w", err)
	}

	tables := make([]byte, h.tablesEnd()-HeaderSize)
	if _, err := src.ReadAt(tables, HeaderSize); err != nil && len(tables) > 0 {
		return nil, nil, fmt.Errorf("read blk tables: %w", err)
	}
	fileTable := tables[:int64(h.FileCount)*FileRecordSize]
	blockTable := tables[len(fileTable):]

	var names gamearc.NameResolver
	if h.NameTableOffset != 0 {
		nameOffset := int64(h.NameTableOffset)
		if nameOffset < h.tablesEnd() {
			return nil, nil, fmt.Errorf("%w: name table overlaps record tables", gamearc.ErrValidation)
		}

		nt, err := gamearc.NewNameTable(src, bounds, nameOffset, src.Size()-nameOffset)
		if err != nil {
			return nil, nil, err
		}
		names = nt
	}

	records := make([]gamearc.EntryRecord, h.FileCount)
	for i := range records {
		row := fileTable[i*FileRecordSize : (i+1)*FileRecordSize]
		rec, err := decodeFile(h, row, blockTable)
		if err != nil {
			return nil, nil, &gamearc.ResourceError{Index: i, Err: err}
		}

		records[i] = rec
	}

	return records, names, nil
}

// decodeFile builds one record from file row and its block span.
func decodeFile(h Header, row []byte, blockTable []byte) (gamearc.EntryRecord, error) {
	first := int64(binary.LittleEndian.Uint32(row[0:4]))
	count := int64(binary.LittleEndian.Uint32(row[4:8]))
	size := int64(binary.LittleEndian.Uint32(row[8:12]))
	nameOffset := binary.LittleEndian.Uint32(row[12:16])
	blockSize := int64(h.BlockSize)

	if first > int64(h.BlockCount) || count > int64(h.BlockCount)-first {
		return gamearc.EntryRecord{}, fmt.Errorf(
			"%w: blocks %d+%d outside block table of %d", gamearc.ErrValidation, first, count, h.BlockCount,
		)
	}

	// Block count must match size exactly: ceil(size / blockSize).
	if want := (size + blockSize - 1) / blockSize; count != want {
		return gamearc.EntryRecord{}, fmt.Errorf(
			"%w: file of %d bytes spans %d blocks, needs %d", gamearc.ErrValidation, size, count, want,
		)
	}

	offsets := make([]int64, count)
	compressed := make([]int64, count)
	decompressed := make([]int64, count)
	remaining := size
	for i := range offsets {
		b := blockTable[(first+int64(i))*BlockRecordSize:]
		offsets[i] = int64(binary.LittleEndian.Uint32(b[0:4]))
		compressed[i] = int64(binary.LittleEndian.Uint32(b[4:8]))
		decompressed[i] = min(blockSize, remaining)
		remaining -= decompressed[i]
	}

	plan, err := gamearc.NewUniformPlan(h.Codec, offsets, compressed, decompressed)
	if err != nil {
		return gamearc.EntryRecord{}, err
	}

	rec := gamearc.EntryRecord{
		Plan:               plan,
		DecompressedLength: size,
		Ext:                SynthesizedExt,
		Properties:         gamearc.Properties{"blocks": count, "first_block": first},
	}
	if count > 0 {
		rec.Offset = offsets[0]
		rec.Length = compressed[0]
	}
	if h.NameTableOffset != 0 && nameOffset != NoName {
		rec.NameOffset = int64(nameOffset)
		rec.HasNameOffset = true
	}

	return rec, nil
}
