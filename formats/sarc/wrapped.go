// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package sarc

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/woozymasta/gamearc"
)

// WrappedHeader is decoded SARZ header.
type WrappedHeader struct {
	// Codec decodes payload; ignored when FlagChunked is set.
	Codec gamearc.CodecKind `json:"codec" yaml:"codec"`
	// Flags holds FlagChunked when payload starts with chunk table.
	Flags uint16 `json:"flags" yaml:"flags"`
	// DecompressedSize is size of inner SARC container.
	DecompressedSize uint64 `json:"decompressed_size" yaml:"decompressed_size"`
}

// WrappedProbe recognizes SARZ containers and resolves them through whole-archive cache.
type WrappedProbe struct {
	// Directory configures name synthesis of inner container.
	Directory gamearc.DirectoryOptions
}

// NewWrappedProbe returns SARZ probe with default options.
func NewWrappedProbe() *WrappedProbe {
	return &WrappedProbe{}
}

// Name implements gamearc.FormatProbe.
func (*WrappedProbe) Name() string {
	return "sarz"
}

// Score implements gamearc.FormatProbe.
func (*WrappedProbe) Score(in *gamearc.Input) int {
	var card gamearc.Scorecard
	card.Extension(in, WrappedExt)
	card.Magic(in.HasMagic(0, WrappedMagic))

	codecID, okCodec := in.Uint16At(4)
	size, okSize := in.Uint64At(8)
	if !okCodec || !okSize {
		return card.Score()
	}

	_, err := CodecKind(codecID)
	card.Plausible(err == nil)
	card.Plausible(size >= HeaderSize && size <= uint64(gamearc.DefaultMaxLength))

	return card.Score()
}

// BuildDirectory implements gamearc.FormatProbe.
func (p *WrappedProbe) BuildDirectory(ctx *gamearc.ExtractionContext, in *gamearc.Input) ([]*gamearc.Resource, error) {
	header, plan, err := ReadWrapped(in.Source)
	if err != nil {
		return nil, err
	}

	inner, err := ctx.Decompressed(in, plan)
	if err != nil {
		return nil, err
	}

	innerHeader, err := ReadHeader(inner.Source)
	if err != nil {
		return nil, fmt.Errorf("inner container: %w", err)
	}

	resources, err := buildDirectory(inner.Source, innerHeader, p.Directory)
	if err != nil {
		return nil, fmt.Errorf("inner container: %w", err)
	}

	ctx.Logger.Debug("sarz directory",
		slog.String("path", in.Path),
		slog.String("sibling", inner.Path),
		slog.String("codec", header.Codec.String()),
		slog.Int("records", len(resources)),
	)

	return resources, nil
}

// ReadWrapped reads SARZ header and returns block plan reconstructing inner container.
func ReadWrapped(src *gamearc.Source) (WrappedHeader, *gamearc.BlockPlan, error) {
	var buf [WrappedHeaderSize]byte
	if src.Size() < WrappedHeaderSize {
		return WrappedHeader{}, nil, fmt.Errorf("%w: short sarz header", gamearc.ErrValidation)
	}
	if _, err := src.ReadAt(buf[:], 0); err != nil {
		return WrappedHeader{}, nil, fmt.Errorf("read sarz header: %w", err)
	}
	if string(buf[:4]) != string(WrappedMagic) {
		return WrappedHeader{}, nil, fmt.Errorf("%w: bad sarz magic %q", gamearc.ErrValidation, buf[:4])
	}

	kind, err := CodecKind(binary.LittleEndian.Uint16(buf[4:6]))
	if err != nil {
		return WrappedHeader{}, nil, fmt.Errorf("%w: %w", gamearc.ErrValidation, err)
	}

	header := WrappedHeader{
		Codec:            kind,
		Flags:            binary.LittleEndian.Uint16(buf[6:8]),
		DecompressedSize: binary.LittleEndian.Uint64(buf[8:16]),
	}

	bounds := src.Bounds()
	if header.DecompressedSize > uint64(bounds.MaxLength) {
		return WrappedHeader{}, nil, fmt.Errorf("%w: inner size %d exceeds limit", gamearc.ErrValidation, header.DecompressedSize)
	}

	payloadLen := src.Size() - WrappedHeaderSize
	var plan *gamearc.BlockPlan
	if header.Flags&FlagChunked != 0 {
		plan, err = readChunkPlan(src, bounds, WrappedHeaderSize, payloadLen)
	} else {
		plan, err = gamearc.NewPlan(gamearc.Block{
			Codec:              kind,
			SourceOffset:       WrappedHeaderSize,
			CompressedLength:   payloadLen,
			DecompressedLength: int64(header.DecompressedSize), //nolint:gosec // bounded by MaxLength above
		})
	}
	if err != nil {
		return WrappedHeader{}, nil, err
	}
	if err := plan.Validate(bounds, int64(header.DecompressedSize)); err != nil { //nolint:gosec // bounded by MaxLength above
		return WrappedHeader{}, nil, err
	}

	return header, plan, nil
}
