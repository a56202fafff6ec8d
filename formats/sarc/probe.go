// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package sarc

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/woozymasta/gamearc"
)

// Header is decoded SARC header.
type Header struct {
	// Count is number of directory records.
	Count uint32 `json:"count" yaml:"count"`
	// TableOffset is absolute offset of record table.
	TableOffset uint32 `json:"table_offset" yaml:"table_offset"`
	// NameTableOffset is absolute offset of name table, zero when absent.
	NameTableOffset uint32 `json:"name_table_offset" yaml:"name_table_offset"`
}

// Probe recognizes SARC containers.
type Probe struct {
	// Directory configures name synthesis.
	Directory gamearc.DirectoryOptions
}

// NewProbe returns SARC probe with default options.
func NewProbe() *Probe {
	return &Probe{}
}

// Name implements gamearc.FormatProbe.
func (*Probe) Name() string {
	return "sarc"
}

// Score implements gamearc.FormatProbe.
func (*Probe) Score(in *gamearc.Input) int {
	var card gamearc.Scorecard
	card.Extension(in, Ext)
	card.Magic(in.HasMagic(0, Magic))

	count, okCount := in.Uint32At(4)
	table, okTable := in.Uint32At(8)
	names, okNames := in.Uint32At(12)
	if !okCount || !okTable || !okNames {
		return card.Score()
	}

	size := in.Size()
	tableEnd := int64(table) + int64(count)*RecordSize
	card.Plausible(int64(count)*RecordSize <= size-HeaderSize)
	card.Plausible(table >= HeaderSize && tableEnd <= size)
	card.Plausible(names == 0 || (int64(names) >= HeaderSize && int64(names) <= size))

	return card.Score()
}

// BuildDirectory implements gamearc.FormatProbe.
func (p *Probe) BuildDirectory(ctx *gamearc.ExtractionContext, in *gamearc.Input) ([]*gamearc.Resource, error) {
	header, err := ReadHeader(in.Source)
	if err != nil {
		return nil, err
	}

	resources, err := buildDirectory(in.Source, header, p.Directory)
	if err != nil {
		return nil, err
	}

	ctx.Logger.Debug("sarc directory",
		slog.String("path", in.Path),
		slog.Int("records", len(resources)),
		slog.Bool("named", header.NameTableOffset != 0),
	)

	return resources, nil
}

// ReadHeader reads and validates SARC header of src.
func ReadHeader(src *gamearc.Source) (Header, error) {
	var buf [HeaderSize]byte
	if src.Size() < HeaderSize {
		return Header{}, fmt.Errorf("%w: short sarc header", gamearc.ErrValidation)
	}
	if _, err := src.ReadAt(buf[:], 0); err != nil {
		return Header{}, fmt.Errorf("read sarc header: %w", err)
	}
	if string(buf[:4]) != string(Magic) {
		return Header{}, fmt.Errorf("%w: bad sarc magic %q", gamearc.ErrValidation, buf[:4])
	}

	return Header{
		Count:           binary.LittleEndian.Uint32(buf[4:8]),
		TableOffset:     binary.LittleEndian.Uint32(buf[8:12]),
		NameTableOffset: binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

// buildDirectory decodes record table and builds resources over src.
func buildDirectory(src *gamearc.Source, header Header, opts gamearc.DirectoryOptions) ([]*gamearc.Resource, error) {
	bounds := src.Bounds()
	tableOffset := int64(header.TableOffset)
	count := int64(header.Count)

	if err := bounds.CheckOffset(tableOffset); err != nil {
		return nil, fmt.Errorf("record table: %w", err)
	}
	if err := bounds.CheckCount(count, RecordSize, src.Size()-tableOffset); err != nil {
		return nil, fmt.Errorf("record table: %w", err)
	}

	table := make([]byte, count*RecordSize)
	if _, err := src.ReadAt(table, tableOffset); err != nil && len(table) > 0 {
		return nil, fmt.Errorf("read record table: %w", err)
	}

	var names gamearc.NameResolver
	if header.NameTableOffset != 0 {
		nameOffset := int64(header.NameTableOffset)
		nt, err := gamearc.NewNameTable(src, bounds, nameOffset, src.Size()-nameOffset)
		if err != nil {
			return nil, err
		}
		names = nt
	}

	records := make([]gamearc.EntryRecord, count)
	for i := range records {
		row := table[i*RecordSize : (i+1)*RecordSize]
		rec, err := decodeRecord(src, bounds, row)
		if err != nil {
			return nil, &gamearc.ResourceError{Index: i, Err: err}
		}

		records[i] = rec
	}

	return gamearc.BuildDirectory(src, bounds, records, names, opts)
}

// decodeRecord decodes one record row and its chunk table when present.
func decodeRecord(ra io.ReaderAt, bounds gamearc.Bounds, row []byte) (gamearc.EntryRecord, error) {
	offset := int64(binary.LittleEndian.Uint32(row[0:4]))
	length := int64(binary.LittleEndian.Uint32(row[4:8]))
	decompressed := int64(binary.LittleEndian.Uint32(row[8:12]))
	codecID := binary.LittleEndian.Uint16(row[12:14])
	flags := binary.LittleEndian.Uint16(row[14:16])
	nameOffset := int64(binary.LittleEndian.Uint32(row[16:20]))

	rec := gamearc.EntryRecord{
		Offset:             offset,
		Length:             length,
		DecompressedLength: decompressed,
		NameOffset:         nameOffset,
		HasNameOffset:      flags&FlagNamed != 0,
		Properties:         gamearc.Properties{"flags": flags},
	}

	if flags&FlagChunked != 0 {
		plan, err := readChunkPlan(ra, bounds, offset, length)
		if err != nil {
			return gamearc.EntryRecord{}, err
		}

		rec.Plan = plan
		rec.Properties.Set("chunks", plan.Len())
		return rec, nil
	}

	kind, err := CodecKind(codecID)
	if err != nil {
		return gamearc.EntryRecord{}, fmt.Errorf("%w: %w", gamearc.ErrValidation, err)
	}

	rec.Codec = kind
	return rec, nil
}

// readChunkPlan decodes chunk table at start of [offset, offset+length) into heterogeneous plan.
func readChunkPlan(ra io.ReaderAt, bounds gamearc.Bounds, offset int64, length int64) (*gamearc.BlockPlan, error) {
	if err := bounds.CheckRange(offset, length); err != nil {
		return nil, fmt.Errorf("chunked payload: %w", err)
	}
	if length < 4 {
		return nil, fmt.Errorf("%w: chunked payload of %d bytes has no chunk count", gamearc.ErrValidation, length)
	}

	var countBuf [4]byte
	if _, err := ra.ReadAt(countBuf[:], offset); err != nil {
		return nil, fmt.Errorf("read chunk count: %w", err)
	}

	count := int64(binary.LittleEndian.Uint32(countBuf[:]))
	if err := bounds.CheckCount(count, ChunkHeaderSize, length-4); err != nil {
		return nil, fmt.Errorf("chunk table: %w", err)
	}

	rows := make([]byte, count*ChunkHeaderSize)
	if _, err := ra.ReadAt(rows, offset+4); err != nil && len(rows) > 0 {
		return nil, fmt.Errorf("read chunk table: %w", err)
	}

	dataStart := offset + 4 + count*ChunkHeaderSize
	payloadEnd := offset + length
	cursor := dataStart
	blocks := make([]gamearc.Block, count)
	for i := range blocks {
		row := rows[int64(i)*ChunkHeaderSize : int64(i+1)*ChunkHeaderSize]
		kind, err := CodecKind(binary.LittleEndian.Uint16(row[0:2]))
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %w", gamearc.ErrValidation, i, err)
		}

		compressed := int64(binary.LittleEndian.Uint32(row[4:8]))
		if compressed > payloadEnd-cursor {
			return nil, fmt.Errorf("%w: chunk %d overruns payload", gamearc.ErrValidation, i)
		}

		blocks[i] = gamearc.Block{
			Codec:              kind,
			SourceOffset:       cursor,
			CompressedLength:   compressed,
			DecompressedLength: int64(binary.LittleEndian.Uint32(row[8:12])),
		}
		cursor += compressed
	}

	return gamearc.NewPlan(blocks...)
}
