// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strconv"
)

// readAllPreallocLimit caps eager buffer allocation from declared sizes.
const readAllPreallocLimit = 64 * 1024 * 1024

// ResourceMode describes how resource bytes are materialized.
type ResourceMode string

// Resource materialization modes.
const (
	// ModeRaw copies [Offset, Offset+Length) verbatim.
	ModeRaw ResourceMode = "raw"
	// ModeCodec decodes [Offset, Offset+Length) with a single codec.
	ModeCodec ResourceMode = "codec"
	// ModePlan decodes BlockPlan blocks in order.
	ModePlan ResourceMode = "plan"
)

// Properties is open bag of format-specific metadata (dimensions, hashes, flags).
type Properties map[string]any

// Set stores value under key.
func (p Properties) Set(key string, value any) {
	p[key] = value
}

// Get returns raw value for key.
func (p Properties) Get(key string) (any, bool) {
	v, ok := p[key]
	return v, ok
}

// String returns string value for key, formatting non-string values.
func (p Properties) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}

	return fmt.Sprint(v), true
}

// Int returns integer value for key when it holds an integer or numeric string.
func (p Properties) Int(key string) (int64, bool) {
	switch v := p[key].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// ResourceSpec describes resource fields before validation.
type ResourceSpec struct {
	// Properties are copied into resource.
	Properties Properties
	// Plan supersedes Codec when set.
	Plan *BlockPlan
	// Name is logical path inside archive.
	Name string
	// Codec decodes primary range; empty means raw.
	Codec CodecKind
	// Offset is primary range start in source.
	Offset int64
	// Length is primary range size in source.
	Length int64
	// DecompressedLength is declared output size; zero for raw means Length.
	DecompressedLength int64
}

// Resource is one logical file of a container plus its location and decoding metadata.
type Resource struct {
	// Source is container holding resource bytes.
	Source *Source `json:"-" yaml:"-"`
	// Properties hold format-specific metadata.
	Properties Properties `json:"properties,omitempty" yaml:"properties,omitempty"`
	// Plan reconstructs output from blocks; supersedes Codec.
	Plan *BlockPlan `json:"plan,omitempty" yaml:"plan,omitempty"`
	// Name is logical path, possibly synthesized.
	Name string `json:"name" yaml:"name"`
	// Codec decodes primary range when Plan is nil.
	Codec CodecKind `json:"codec,omitempty" yaml:"codec,omitempty"`
	// Offset is primary range start in Source.
	Offset int64 `json:"offset" yaml:"offset"`
	// Length is primary range size in Source.
	Length int64 `json:"length" yaml:"length"`
	// DecompressedLength is output size read from container metadata.
	DecompressedLength int64 `json:"decompressed_length" yaml:"decompressed_length"`
}

// NewResource validates spec against source and returns resource.
// Validation is eager: invalid ranges never produce a Resource.
func NewResource(src *Source, spec ResourceSpec) (*Resource, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResource, ErrNilSource)
	}

	return newResourceWithBounds(src, src.Bounds(), spec)
}

// newResourceWithBounds validates spec with explicit bounds.
func newResourceWithBounds(src *Source, bounds Bounds, spec ResourceSpec) (*Resource, error) {
	if spec.Length < 0 || spec.DecompressedLength < 0 {
		return nil, validationErrorf("resource %q has negative length", spec.Name)
	}
	if err := bounds.CheckRange(spec.Offset, spec.Length); err != nil {
		return nil, fmt.Errorf("resource %q: %w", spec.Name, err)
	}
	if err := bounds.CheckLength(spec.DecompressedLength); err != nil {
		return nil, fmt.Errorf("resource %q: %w", spec.Name, err)
	}

	r := &Resource{
		Source:             src,
		Name:               spec.Name,
		Codec:              spec.Codec,
		Offset:             spec.Offset,
		Length:             spec.Length,
		DecompressedLength: spec.DecompressedLength,
		Plan:               spec.Plan,
	}
	if len(spec.Properties) > 0 {
		r.Properties = make(Properties, len(spec.Properties))
		for k, v := range spec.Properties {
			r.Properties[k] = v
		}
	}

	switch r.Mode() {
	case ModePlan:
		if err := r.Plan.Validate(bounds, r.DecompressedLength); err != nil {
			return nil, fmt.Errorf("resource %q: %w", spec.Name, err)
		}
	case ModeRaw:
		if r.DecompressedLength == 0 {
			r.DecompressedLength = r.Length
		}
		if r.DecompressedLength != r.Length {
			return nil, fmt.Errorf(
				"%w: raw resource %q stores %d bytes, declares %d",
				ErrSizeMismatch, spec.Name, r.Length, r.DecompressedLength,
			)
		}
	}

	return r, nil
}

// Mode reports how resource bytes are materialized.
func (r *Resource) Mode() ResourceMode {
	switch {
	case r.Plan != nil:
		return ModePlan
	case !r.Codec.IsNone():
		return ModeCodec
	default:
		return ModeRaw
	}
}

// Ext returns extension of resource name including dot.
func (r *Resource) Ext() string {
	return path.Ext(r.Name)
}

// StoredLength returns number of source bytes backing resource.
func (r *Resource) StoredLength() int64 {
	if r.Plan != nil {
		return r.Plan.CompressedLength()
	}

	return r.Length
}

// SetProperty stores one property, allocating bag on first use.
func (r *Resource) SetProperty(key string, value any) {
	if r.Properties == nil {
		r.Properties = make(Properties, 4)
	}

	r.Properties.Set(key, value)
}

// Open returns stream of decompressed resource bytes.
func (r *Resource) Open(codecs *CodecRegistry) (io.ReadCloser, error) {
	if r == nil || r.Source == nil {
		return nil, ErrNilSource
	}
	if r.Source.isClosed() {
		return nil, ErrClosed
	}

	switch r.Mode() {
	case ModePlan:
		return r.Plan.Open(r.Source, codecs), nil
	case ModeCodec:
		stream, err := codecs.OpenStream(r.Codec, r.Source.Section(r.Offset, r.Length), r.Length, r.DecompressedLength)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", r.Name, err)
		}

		return NewStreamReader(stream), nil
	default:
		return io.NopCloser(r.Source.Section(r.Offset, r.Length)), nil
	}
}

// ReadAll materializes full resource and checks declared output length.
func (r *Resource) ReadAll(codecs *CodecRegistry) ([]byte, error) {
	rc, err := r.Open(codecs)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	var buf bytes.Buffer
	buf.Grow(int(min(r.DecompressedLength, readAllPreallocLimit)))
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, fmt.Errorf("read %s: %w", r.Name, err)
	}
	if int64(buf.Len()) != r.DecompressedLength {
		return nil, fmt.Errorf("%w: %s produced %d bytes, declares %d", ErrSizeMismatch, r.Name, buf.Len(), r.DecompressedLength)
	}

	return buf.Bytes(), nil
}
