// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// DefaultSniffSize is number of leading bytes captured for cheap scoring.
const DefaultSniffSize = 4096

// Partial credit awarded by probes. Credits are additive so near-matches can be ranked.
const (
	// ScoreExtension is credit for matching file extension.
	ScoreExtension = 25
	// ScoreMagic is credit for matching magic bytes.
	ScoreMagic = 50
	// ScorePlausibleField is credit for one plausible secondary header field.
	ScorePlausibleField = 5
)

// Input is an unclassified container presented to probes.
type Input struct {
	// Source serves random-access reads.
	Source *Source
	// Path is container path as given by caller.
	Path string
	// Ext is lower-case extension including dot.
	Ext string
	// Header holds up to DefaultSniffSize leading bytes.
	Header []byte
}

// NewInput captures leading bytes of src for scoring.
func NewInput(src *Source) (*Input, error) {
	if src == nil {
		return nil, ErrNilSource
	}

	n := min(src.Size(), DefaultSniffSize)
	header := make([]byte, n)
	if n > 0 {
		read, err := src.ReadAt(header, 0)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read header: %w", err)
		}
		header = header[:read]
	}

	return &Input{
		Source: src,
		Path:   src.Path(),
		Ext:    strings.ToLower(filepath.Ext(src.Path())),
		Header: header,
	}, nil
}

// Size returns container size.
func (in *Input) Size() int64 {
	return in.Source.Size()
}

// ReadAt reads from container source.
func (in *Input) ReadAt(p []byte, off int64) (int, error) {
	return in.Source.ReadAt(p, off)
}

// HasExt reports whether input extension matches one of exts (case-insensitive, with or without dot).
func (in *Input) HasExt(exts ...string) bool {
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if in.Ext == ext {
			return true
		}
	}

	return false
}

// HasMagic reports whether magic is present at offset of sniffed header.
func (in *Input) HasMagic(offset int, magic []byte) bool {
	if offset < 0 || offset+len(magic) > len(in.Header) {
		return false
	}

	return bytes.Equal(in.Header[offset:offset+len(magic)], magic)
}

// Uint16At returns little-endian uint16 at offset of sniffed header.
func (in *Input) Uint16At(offset int) (uint16, bool) {
	if offset < 0 || offset+2 > len(in.Header) {
		return 0, false
	}

	return binary.LittleEndian.Uint16(in.Header[offset:]), true
}

// Uint32At returns little-endian uint32 at offset of sniffed header.
func (in *Input) Uint32At(offset int) (uint32, bool) {
	if offset < 0 || offset+4 > len(in.Header) {
		return 0, false
	}

	return binary.LittleEndian.Uint32(in.Header[offset:]), true
}

// Uint64At returns little-endian uint64 at offset of sniffed header.
func (in *Input) Uint64At(offset int) (uint64, bool) {
	if offset < 0 || offset+8 > len(in.Header) {
		return 0, false
	}

	return binary.LittleEndian.Uint64(in.Header[offset:]), true
}

// FormatProbe is a per-format strategy: a cheap match score and an expensive directory builder.
type FormatProbe interface {
	// Name returns short stable format identifier.
	Name() string
	// Score returns non-negative confidence; 0 means definitely not this format.
	// It must be side-effect free and must not fail.
	Score(in *Input) int
	// BuildDirectory validates the container layout and returns all resources, or an error and none.
	BuildDirectory(ctx *ExtractionContext, in *Input) ([]*Resource, error)
}

// Scorecard accumulates partial-credit score.
type Scorecard struct {
	total int
}

// Extension adds ScoreExtension when input has one of exts.
func (s *Scorecard) Extension(in *Input, exts ...string) bool {
	ok := in.HasExt(exts...)
	if ok {
		s.total += ScoreExtension
	}

	return ok
}

// Magic adds ScoreMagic when ok.
func (s *Scorecard) Magic(ok bool) bool {
	if ok {
		s.total += ScoreMagic
	}

	return ok
}

// Plausible adds ScorePlausibleField when ok.
func (s *Scorecard) Plausible(ok bool) bool {
	if ok {
		s.total += ScorePlausibleField
	}

	return ok
}

// Add adds arbitrary credit.
func (s *Scorecard) Add(n int) {
	s.total += n
}

// Score returns accumulated non-negative score.
func (s *Scorecard) Score() int {
	return max(s.total, 0)
}

// SafeScore runs probe scoring, converting panics and negative results to 0.
func SafeScore(p FormatProbe, in *Input) (score int) {
	if p == nil || in == nil {
		return 0
	}

	defer func() {
		if recover() != nil {
			score = 0
		}
	}()

	return max(p.Score(in), 0)
}
