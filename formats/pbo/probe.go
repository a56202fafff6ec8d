// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package pbo

import (
	"bytes"
	"encoding/binary"
	"log/slog"

	"github.com/woozymasta/gamearc"
)

// minArchiveSize is header plus empty header section terminator plus table terminator.
const minArchiveSize = HeaderSize + 1 + 1 + RecordFieldsSize

// Probe recognizes PBO archives.
type Probe struct {
	// Reader configures index parsing.
	Reader ReaderOptions
	// Directory configures name synthesis for entries with empty paths.
	Directory gamearc.DirectoryOptions
}

// NewProbe returns PBO probe with default options.
func NewProbe() *Probe {
	return &Probe{}
}

// Name implements gamearc.FormatProbe.
func (*Probe) Name() string {
	return "pbo"
}

// Score implements gamearc.FormatProbe.
func (*Probe) Score(in *gamearc.Input) int {
	var card gamearc.Scorecard
	card.Extension(in, Ext)

	var magic [4]byte
	binary.LittleEndian.PutUint32(magic[:], uint32(MimeHeader))
	card.Magic(in.HasMagic(0, []byte{0}) && in.HasMagic(1, magic[:]))
	if len(in.Header) < HeaderSize {
		return card.Score()
	}

	card.Plausible(in.Size() >= minArchiveSize)
	card.Plausible(bytes.Count(in.Header[5:HeaderSize], []byte{0}) == HeaderSize-5)

	// Header section terminator inside sniffed bytes.
	rest := in.Header[HeaderSize:]
	card.Plausible(bytes.Contains(rest, []byte{0, 0}) || (len(rest) > 0 && rest[0] == 0))

	return card.Score()
}

// BuildDirectory implements gamearc.FormatProbe.
func (p *Probe) BuildDirectory(ctx *gamearc.ExtractionContext, in *gamearc.Input) ([]*gamearc.Resource, error) {
	src := in.Source
	bounds := src.Bounds()

	ix, err := ReadIndex(src, bounds, p.Reader)
	if err != nil {
		return nil, err
	}
	if p.Reader.VerifyTrailer {
		if err := VerifyTrailer(src, src.Size(), ix); err != nil {
			return nil, err
		}
	}

	ctx.SetShared(SharedHeadersKey, ix.Headers)
	resources, err := gamearc.BuildDirectory(src, bounds, entryRecords(ix), nil, p.Directory)
	if err != nil {
		return nil, err
	}

	ctx.Logger.Debug("pbo directory",
		slog.String("path", in.Path),
		slog.String("prefix", ix.Prefix()),
		slog.Int("entries", len(resources)),
		slog.Bool("trailer", ix.HasTrailer),
	)

	return resources, nil
}

// entryRecords maps parsed entries to directory records.
func entryRecords(ix *Index) []gamearc.EntryRecord {
	prefix := ix.Prefix()
	records := make([]gamearc.EntryRecord, len(ix.Entries))
	for i := range ix.Entries {
		e := &ix.Entries[i]
		rec := gamearc.EntryRecord{
			Name:   gamearc.NormalizePath(e.Path),
			Offset: int64(e.Offset),
			Length: int64(e.DataSize),
			Properties: gamearc.Properties{
				PropertyMime:      e.MimeType.String(),
				PropertyTimestamp: e.TimeStamp,
				PropertyRawPath:   e.Path,
			},
		}
		if prefix != "" {
			rec.Properties.Set(PropertyPrefix, prefix)
		}

		if e.IsCompressed() {
			rec.Codec = gamearc.CodecLZSS
			rec.DecompressedLength = int64(e.OriginalSize)
			rec.Properties.Set(PropertyOriginalSize, e.OriginalSize)
		}

		records[i] = rec
	}

	return records
}
