// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

// CodecKind identifies decompression codec applied to one byte range.
type CodecKind string

// Built-in codec kinds.
const (
	// CodecNone copies bytes verbatim. Empty kind is treated the same way.
	CodecNone CodecKind = "none"
	// CodecZlib is RFC 1950 zlib stream.
	CodecZlib CodecKind = "zlib"
	// CodecDeflate is RFC 1951 raw deflate stream.
	CodecDeflate CodecKind = "deflate"
	// CodecZstd is Zstandard frame stream.
	CodecZstd CodecKind = "zstd"
	// CodecLZ4 is a single LZ4 block without frame header.
	CodecLZ4 CodecKind = "lz4"
	// CodecLZ4Frame is LZ4 frame stream.
	CodecLZ4Frame CodecKind = "lz4frame"
	// CodecLZSS is Bohemia LZSS with trailing checksum.
	CodecLZSS CodecKind = "lzss"
	// CodecLZ77N is nibble-split LZ77 variant with escape-extended lengths.
	CodecLZ77N CodecKind = "lz77n"
)

// streamChunkSize is maximum chunk returned by one Stream.Next call for reader-backed codecs.
const streamChunkSize = 64 * 1024

// errIncompressible is returned by encoders when output is not smaller than input.
var errIncompressible = errors.New("data is incompressible")

// IsIncompressible reports whether encoder refused data because it would not shrink.
func IsIncompressible(err error) bool {
	return errors.Is(err, errIncompressible)
}

// String returns codec kind name, "none" for empty kind.
func (k CodecKind) String() string {
	if k == "" {
		return string(CodecNone)
	}

	return string(k)
}

// IsNone reports whether kind means plain copy.
func (k CodecKind) IsNone() bool {
	return k == "" || k == CodecNone
}

// ParseCodecKind parses codec kind from its string representation.
func ParseCodecKind(name string) (CodecKind, error) {
	switch kind := CodecKind(name); kind {
	case "", CodecNone:
		return CodecNone, nil
	case CodecZlib, CodecDeflate, CodecZstd, CodecLZ4, CodecLZ4Frame, CodecLZSS, CodecLZ77N:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// Stream is a single-use pull-based producer of decompressed bytes for one compressed range.
// Implementations are stateful and not safe for concurrent use.
type Stream interface {
	// HasMore reports whether Next can produce more output.
	HasMore() bool
	// Next returns next decoded chunk. Returned slice is valid until the following call.
	// It returns io.EOF once declared output is fully produced.
	Next() ([]byte, error)
	// Close releases decoder state; the stream cannot be reused.
	Close() error
}

// Codec opens decompression streams over compressed byte ranges.
type Codec interface {
	// OpenStream starts decoding src. Implementations read at most compressedLen bytes
	// and must produce exactly decompressedLen bytes.
	OpenStream(src io.Reader, compressedLen int64, decompressedLen int64) (Stream, error)
}

// Encoder is optional codec capability used by writers.
type Encoder interface {
	// Encode compresses data into codec representation.
	Encode(data []byte) ([]byte, error)
}

// CodecFunc adapts plain function to Codec.
type CodecFunc func(src io.Reader, compressedLen int64, decompressedLen int64) (Stream, error)

// OpenStream calls f.
func (f CodecFunc) OpenStream(src io.Reader, compressedLen int64, decompressedLen int64) (Stream, error) {
	return f(src, compressedLen, decompressedLen)
}

// CodecRegistry is a lookup table of codecs by kind.
type CodecRegistry struct {
	codecs map[CodecKind]Codec
	mu     sync.RWMutex
}

// NewCodecRegistry returns empty registry with only plain copy available.
func NewCodecRegistry() *CodecRegistry {
	r := &CodecRegistry{codecs: make(map[CodecKind]Codec, 8)}
	r.Register(CodecNone, copyCodec{})
	return r
}

// DefaultCodecs returns fresh registry populated with all built-in codecs.
func DefaultCodecs() *CodecRegistry {
	r := NewCodecRegistry()
	r.Register(CodecZlib, zlibCodec{})
	r.Register(CodecDeflate, deflateCodec{})
	r.Register(CodecZstd, zstdCodec{})
	r.Register(CodecLZ4, lz4BlockCodec{})
	r.Register(CodecLZ4Frame, lz4FrameCodec{})
	r.Register(CodecLZSS, lzssCodec{})
	r.Register(CodecLZ77N, lz77Codec{})
	return r
}

// Register adds or replaces codec for kind.
func (r *CodecRegistry) Register(kind CodecKind, codec Codec) {
	if kind == "" {
		kind = CodecNone
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[kind] = codec
}

// Kinds returns registered codec kinds in sorted order.
func (r *CodecRegistry) Kinds() []CodecKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]CodecKind, 0, len(r.codecs))
	for kind := range r.codecs {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Lookup returns codec for kind.
func (r *CodecRegistry) Lookup(kind CodecKind) (Codec, error) {
	if kind == "" {
		kind = CodecNone
	}
	if r == nil {
		if kind == CodecNone {
			return copyCodec{}, nil
		}

		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, kind)
	}

	r.mu.RLock()
	codec, ok := r.codecs[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, kind)
	}

	return codec, nil
}

// OpenStream opens stream of given kind over src.
func (r *CodecRegistry) OpenStream(kind CodecKind, src io.Reader, compressedLen int64, decompressedLen int64) (Stream, error) {
	if compressedLen < 0 || decompressedLen < 0 {
		return nil, codecErrorf("negative stream lengths %d/%d", compressedLen, decompressedLen)
	}

	codec, err := r.Lookup(kind)
	if err != nil {
		return nil, err
	}

	return codec.OpenStream(src, compressedLen, decompressedLen)
}

// Encode compresses data with codec of given kind when it supports encoding.
func (r *CodecRegistry) Encode(kind CodecKind, data []byte) ([]byte, error) {
	codec, err := r.Lookup(kind)
	if err != nil {
		return nil, err
	}

	enc, ok := codec.(Encoder)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no encoder", ErrUnknownCodec, kind)
	}

	return enc.Encode(data)
}

// streamReader adapts Stream to io.ReadCloser.
type streamReader struct {
	stream  Stream
	pending []byte
	err     error
}

// NewStreamReader returns reader that drains stream; closing it closes stream.
func NewStreamReader(stream Stream) io.ReadCloser {
	return &streamReader{stream: stream}
}

// Read implements io.Reader.
func (r *streamReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		if !r.stream.HasMore() {
			r.err = io.EOF
			return 0, io.EOF
		}

		chunk, err := r.stream.Next()
		r.pending = chunk
		if err != nil {
			r.err = err
			if len(chunk) == 0 {
				return 0, err
			}
		}
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// Close implements io.Closer.
func (r *streamReader) Close() error {
	return r.stream.Close()
}

// DecodeAll runs stream of given kind to completion and returns all output.
func (r *CodecRegistry) DecodeAll(kind CodecKind, compressed []byte, decompressedLen int64) ([]byte, error) {
	stream, err := r.OpenStream(kind, bytes.NewReader(compressed), int64(len(compressed)), decompressedLen)
	if err != nil {
		return nil, err
	}

	rc := NewStreamReader(stream)
	defer func() { _ = rc.Close() }()

	out := make([]byte, 0, min(max(decompressedLen, 0), readAllPreallocLimit))
	buf := make([]byte, streamChunkSize)
	for {
		n, err := rc.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
