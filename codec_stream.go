// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/woozymasta/lzss"
)

// readerStream produces exactly declared output from decoder io.Reader.
type readerStream struct {
	dec       io.Reader
	closeFn   func() error
	err       error
	buf       []byte
	kind      CodecKind
	remaining int64
	// strictTail rejects decoders that still have output after declared length.
	strictTail bool
	// tailPending defers the tail check of an empty declared output to first Next.
	tailPending bool
	closed      bool
}

// newReaderStream wraps decoder reader as Stream producing decompressedLen bytes.
func newReaderStream(kind CodecKind, dec io.Reader, closeFn func() error, decompressedLen int64, strictTail bool) *readerStream {
	size := int64(streamChunkSize)
	if decompressedLen < size {
		size = max(decompressedLen, 1)
	}

	return &readerStream{
		kind:        kind,
		dec:         dec,
		closeFn:     closeFn,
		remaining:   decompressedLen,
		buf:         make([]byte, size),
		strictTail:  strictTail,
		tailPending: strictTail && decompressedLen == 0,
	}
}

// HasMore implements Stream.
func (s *readerStream) HasMore() bool {
	return !s.closed && s.err == nil && (s.remaining > 0 || s.tailPending)
}

// Next implements Stream.
func (s *readerStream) Next() ([]byte, error) {
	if s.closed {
		return nil, ErrStreamUsed
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.remaining == 0 {
		if s.tailPending {
			s.tailPending = false
			if err := s.checkTail(); err != nil {
				s.err = err
				return nil, err
			}
		}

		return nil, io.EOF
	}

	want := int64(len(s.buf))
	if s.remaining < want {
		want = s.remaining
	}

	n, err := io.ReadFull(s.dec, s.buf[:want])
	s.remaining -= int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			s.err = codecErrorf("%s: output truncated, %d bytes short", s.kind, s.remaining)
		} else {
			s.err = fmt.Errorf("%w: %s: %w", ErrCodec, s.kind, err)
		}

		return s.buf[:n], s.err
	}

	if s.remaining == 0 && s.strictTail {
		if err := s.checkTail(); err != nil {
			s.err = err
			return s.buf[:n], err
		}
	}

	return s.buf[:n], nil
}

// checkTail verifies decoder has no output beyond declared length.
func (s *readerStream) checkTail() error {
	var one [1]byte
	for range 4 {
		n, err := s.dec.Read(one[:])
		if n > 0 {
			return codecErrorf("%s: output exceeds declared length", s.kind)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrCodec, s.kind, err)
		}
	}

	return nil
}

// Close implements Stream.
func (s *readerStream) Close() error {
	if s.closed {
		return nil
	}

	s.closed = true
	if s.closeFn != nil {
		return s.closeFn()
	}

	return nil
}

// bytesStream emits already decoded buffer in chunks.
type bytesStream struct {
	data   []byte
	closed bool
}

// HasMore implements Stream.
func (s *bytesStream) HasMore() bool {
	return !s.closed && len(s.data) > 0
}

// Next implements Stream.
func (s *bytesStream) Next() ([]byte, error) {
	if s.closed {
		return nil, ErrStreamUsed
	}
	if len(s.data) == 0 {
		return nil, io.EOF
	}

	n := min(len(s.data), streamChunkSize)
	chunk := s.data[:n]
	s.data = s.data[n:]
	return chunk, nil
}

// Close implements Stream.
func (s *bytesStream) Close() error {
	s.closed = true
	s.data = nil
	return nil
}

// checkedOutputLen converts declared output length to int.
func checkedOutputLen(kind CodecKind, n int64) (int, error) {
	if n < 0 || uint64(n) > uint64(math.MaxInt) {
		return 0, codecErrorf("%s: output length %d out of range", kind, n)
	}

	return int(n), nil
}

// copyCodec passes bytes through unchanged.
type copyCodec struct{}

// OpenStream implements Codec.
func (copyCodec) OpenStream(src io.Reader, compressedLen int64, decompressedLen int64) (Stream, error) {
	if compressedLen < decompressedLen {
		return nil, codecErrorf("none: stored length %d shorter than output %d", compressedLen, decompressedLen)
	}

	return newReaderStream(CodecNone, io.LimitReader(src, compressedLen), nil, decompressedLen, false), nil
}

// Encode implements Encoder.
func (copyCodec) Encode(data []byte) ([]byte, error) {
	return bytes.Clone(data), nil
}

// zlibCodec decodes zlib streams.
type zlibCodec struct{}

// OpenStream implements Codec.
func (zlibCodec) OpenStream(src io.Reader, compressedLen int64, decompressedLen int64) (Stream, error) {
	zr, err := zlib.NewReader(io.LimitReader(src, compressedLen))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib header: %w", ErrCodec, err)
	}

	return newReaderStream(CodecZlib, zr, zr.Close, decompressedLen, true), nil
}

// Encode implements Encoder.
func (zlibCodec) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}

	return buf.Bytes(), nil
}

// deflateCodec decodes raw deflate streams.
type deflateCodec struct{}

// OpenStream implements Codec.
func (deflateCodec) OpenStream(src io.Reader, compressedLen int64, decompressedLen int64) (Stream, error) {
	fr := flate.NewReader(io.LimitReader(src, compressedLen))
	return newReaderStream(CodecDeflate, fr, fr.Close, decompressedLen, true), nil
}

// Encode implements Encoder.
func (deflateCodec) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("deflate compress: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("deflate compress: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("deflate compress: %w", err)
	}

	return buf.Bytes(), nil
}

// zstdEncoder is shared lazily; zstd.Encoder.EncodeAll is safe for concurrent use.
var zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
})

// zstdCodec decodes Zstandard frames.
type zstdCodec struct{}

// OpenStream implements Codec.
func (zstdCodec) OpenStream(src io.Reader, compressedLen int64, decompressedLen int64) (Stream, error) {
	dec, err := zstd.NewReader(io.LimitReader(src, compressedLen), zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %w", ErrCodec, err)
	}

	closeFn := func() error {
		dec.Close()
		return nil
	}

	return newReaderStream(CodecZstd, dec, closeFn, decompressedLen, true), nil
}

// Encode implements Encoder.
func (zstdCodec) Encode(data []byte) ([]byte, error) {
	enc, err := zstdEncoder()
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}

	return enc.EncodeAll(data, nil), nil
}

// MaxBufferedBlockLength caps either side of one block decoded by a buffering codec.
const MaxBufferedBlockLength int64 = 64 * 1024 * 1024

// lz4BlockCodec decodes one raw LZ4 block. Whole block is buffered; blocks are bounded by their plan.
type lz4BlockCodec struct{}

// OpenStream implements Codec.
func (lz4BlockCodec) OpenStream(src io.Reader, compressedLen int64, decompressedLen int64) (Stream, error) {
	if compressedLen > MaxBufferedBlockLength || decompressedLen > MaxBufferedBlockLength {
		return nil, codecErrorf("lz4: block %d/%d bytes exceeds buffered limit %d",
			compressedLen, decompressedLen, MaxBufferedBlockLength)
	}
	inLen, err := checkedOutputLen(CodecLZ4, compressedLen)
	if err != nil {
		return nil, err
	}
	outLen, err := checkedOutputLen(CodecLZ4, decompressedLen)
	if err != nil {
		return nil, err
	}

	compressed := make([]byte, inLen)
	if _, err := io.ReadFull(src, compressed); err != nil {
		return nil, fmt.Errorf("%w: lz4: read block: %w", ErrCodec, err)
	}

	out := make([]byte, outLen)
	n, err := lz4.UncompressBlock(compressed, out)
	if err != nil {
		return nil, fmt.Errorf("%w: lz4: %w", ErrCodec, err)
	}
	if n != outLen {
		return nil, codecErrorf("lz4: got %d bytes, expected %d", n, outLen)
	}

	return &bytesStream{data: out}, nil
}

// Encode implements Encoder.
func (lz4BlockCodec) Encode(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 || n >= len(data) {
		return nil, errIncompressible
	}

	return dst[:n], nil
}

// lz4FrameCodec decodes LZ4 frame streams.
type lz4FrameCodec struct{}

// OpenStream implements Codec.
func (lz4FrameCodec) OpenStream(src io.Reader, compressedLen int64, decompressedLen int64) (Stream, error) {
	zr := lz4.NewReader(io.LimitReader(src, compressedLen))
	return newReaderStream(CodecLZ4Frame, zr, nil, decompressedLen, true), nil
}

// Encode implements Encoder.
func (lz4FrameCodec) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("lz4 frame compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("lz4 frame compress: %w", err)
	}

	return buf.Bytes(), nil
}

// lzssCodec decodes Bohemia LZSS payloads.
type lzssCodec struct{}

// OpenStream implements Codec.
func (lzssCodec) OpenStream(src io.Reader, compressedLen int64, decompressedLen int64) (Stream, error) {
	outLen, err := checkedOutputLen(CodecLZSS, decompressedLen)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	go streamDecompressLZSS(pw, io.LimitReader(src, compressedLen), outLen)

	return newReaderStream(CodecLZSS, pr, pr.Close, decompressedLen, true), nil
}

// Encode implements Encoder.
func (lzssCodec) Encode(data []byte) ([]byte, error) {
	return lzss.Compress(data, lzss.DefaultCompressOptions())
}

// streamDecompressLZSS decodes one LZSS payload into pipe writer.
func streamDecompressLZSS(dst *io.PipeWriter, src io.Reader, outLen int) {
	if _, err := lzss.DecompressToWriter(dst, src, outLen, nil); err != nil {
		_ = dst.CloseWithError(fmt.Errorf("lzss: %w", err))
		return
	}

	_ = dst.Close()
}
