// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// DefaultNamePattern formats synthesized names from resource index.
const DefaultNamePattern = "file_%04d"

// maxNameLength caps one NUL-terminated name read from a name table.
const maxNameLength = 4096

// nameReadChunk is ReadAt step used while scanning for NUL terminator.
const nameReadChunk = 256

// EntryRecord is one raw directory record as decoded from container before validation.
type EntryRecord struct {
	// Properties are copied into resulting resource.
	Properties Properties
	// Plan supersedes Codec when set.
	Plan *BlockPlan
	// Name is literal name; takes priority over NameOffset.
	Name string
	// Ext is extension appended to synthesized name.
	Ext string
	// Codec decodes primary range; empty means raw.
	Codec CodecKind
	// Offset is primary range start.
	Offset int64
	// Length is primary range size.
	Length int64
	// DecompressedLength is declared output size.
	DecompressedLength int64
	// NameOffset locates name in NameResolver when HasNameOffset is set.
	NameOffset int64
	// HasNameOffset reports whether NameOffset is meaningful.
	HasNameOffset bool
}

// NameResolver resolves name references found in directory records.
type NameResolver interface {
	// ResolveName returns name at offset. Empty result means no name.
	ResolveName(offset int64) (string, error)
}

// NameTable resolves NUL-terminated names from a region of source.
type NameTable struct {
	ra     io.ReaderAt
	offset int64
	size   int64
}

// NewNameTable validates table region against bounds.
func NewNameTable(ra io.ReaderAt, bounds Bounds, offset int64, size int64) (*NameTable, error) {
	if err := bounds.CheckRange(offset, size); err != nil {
		return nil, fmt.Errorf("name table: %w", err)
	}

	return &NameTable{ra: ra, offset: offset, size: size}, nil
}

// Size returns table region size.
func (t *NameTable) Size() int64 {
	return t.size
}

// ResolveName implements NameResolver. Offset is relative to table start.
func (t *NameTable) ResolveName(offset int64) (string, error) {
	if offset < 0 || offset >= t.size {
		return "", validationErrorf("name offset %d outside table of %d bytes", offset, t.size)
	}

	var name []byte
	buf := make([]byte, nameReadChunk)
	pos := t.offset + offset
	end := t.offset + t.size
	for pos < end {
		n := int(min(int64(len(buf)), end-pos))
		read, err := t.ra.ReadAt(buf[:n], pos)
		if read == 0 && err != nil {
			return "", fmt.Errorf("read name at %d: %w", offset, err)
		}

		if i := bytes.IndexByte(buf[:read], 0); i >= 0 {
			name = append(name, buf[:i]...)
			if len(name) > maxNameLength {
				break
			}
			return string(name), nil
		}

		name = append(name, buf[:read]...)
		if len(name) > maxNameLength {
			break
		}
		pos += int64(read)
	}

	if len(name) > maxNameLength {
		return "", validationErrorf("name at %d exceeds %d bytes", offset, maxNameLength)
	}

	return "", validationErrorf("name at %d is not terminated", offset)
}

// DirectoryOptions configures BuildDirectory.
type DirectoryOptions struct {
	// NamePattern formats synthesized names from index; defaults to DefaultNamePattern.
	NamePattern string
}

// applyDefaults fills zero-value fields.
func (o *DirectoryOptions) applyDefaults() {
	if o.NamePattern == "" {
		o.NamePattern = DefaultNamePattern
	}
}

// SynthesizeName returns stable placeholder name for resource index.
func SynthesizeName(pattern string, index int, ext string) string {
	if pattern == "" {
		pattern = DefaultNamePattern
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return fmt.Sprintf(pattern, index) + ext
}

// BuildDirectory converts raw records into resources in two passes.
// Pass one validates every record against bounds; pass two resolves names.
// Any failure rejects the whole directory and no resource is returned.
func BuildDirectory(src *Source, bounds Bounds, records []EntryRecord, names NameResolver, opts DirectoryOptions) ([]*Resource, error) {
	if src == nil {
		return nil, ErrNilSource
	}
	if bounds.MaxCount > 0 && len(records) > bounds.MaxCount {
		return nil, validationErrorf("entry count %d exceeds limit %d", len(records), bounds.MaxCount)
	}

	opts.applyDefaults()

	resources := make([]*Resource, len(records))
	for i, rec := range records {
		res, err := newResourceWithBounds(src, bounds, ResourceSpec{
			Properties:         rec.Properties,
			Plan:               rec.Plan,
			Codec:              rec.Codec,
			Offset:             rec.Offset,
			Length:             rec.Length,
			DecompressedLength: rec.DecompressedLength,
		})
		if err != nil {
			return nil, &ResourceError{Index: i, Err: err}
		}

		resources[i] = res
	}

	for i, rec := range records {
		name, err := resolveRecordName(rec, names)
		if err != nil {
			return nil, &ResourceError{Index: i, Err: err}
		}
		if name == "" {
			name = SynthesizeName(opts.NamePattern, i, rec.Ext)
		}

		resources[i].Name = name
	}

	return resources, nil
}

// resolveRecordName returns literal or referenced name of record.
func resolveRecordName(rec EntryRecord, names NameResolver) (string, error) {
	if rec.Name != "" {
		return rec.Name, nil
	}
	if !rec.HasNameOffset {
		return "", nil
	}
	if names == nil {
		return "", validationErrorf("record references name table but none is available")
	}

	name, err := names.ResolveName(rec.NameOffset)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(name), nil
}
