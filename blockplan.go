// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import (
	"errors"
	"fmt"
	"io"
	"math"
)

// Block is one independently decodable byte range of a BlockPlan.
type Block struct {
	// Codec decodes this block; empty means plain copy.
	Codec CodecKind `json:"codec,omitempty" yaml:"codec,omitempty"`
	// SourceOffset is absolute offset of stored block bytes in source.
	SourceOffset int64 `json:"source_offset" yaml:"source_offset"`
	// CompressedLength is stored block size in bytes.
	CompressedLength int64 `json:"compressed_length" yaml:"compressed_length"`
	// DecompressedLength is block output size in bytes.
	DecompressedLength int64 `json:"decompressed_length" yaml:"decompressed_length"`
}

// BlockPlan reconstructs one logical file from ordered blocks.
// Output is concatenation of each block output in list order.
type BlockPlan struct {
	// Blocks are decoded in order.
	Blocks []Block `json:"blocks" yaml:"blocks"`
}

// NewPlan builds heterogeneous plan where each block selects its own codec.
func NewPlan(blocks ...Block) (*BlockPlan, error) {
	for i, b := range blocks {
		if b.SourceOffset < 0 || b.CompressedLength < 0 || b.DecompressedLength < 0 {
			return nil, fmt.Errorf("%w: block %d has negative fields", ErrInvalidPlan, i)
		}
	}

	out := make([]Block, len(blocks))
	copy(out, blocks)
	return &BlockPlan{Blocks: out}, nil
}

// NewUniformPlan builds plan from parallel arrays sharing one codec.
// All three arrays must have the same length.
func NewUniformPlan(codec CodecKind, offsets []int64, compressed []int64, decompressed []int64) (*BlockPlan, error) {
	if len(offsets) != len(compressed) || len(offsets) != len(decompressed) {
		return nil, fmt.Errorf(
			"%w: array lengths differ (offsets=%d compressed=%d decompressed=%d)",
			ErrInvalidPlan, len(offsets), len(compressed), len(decompressed),
		)
	}

	blocks := make([]Block, len(offsets))
	for i := range offsets {
		blocks[i] = Block{
			Codec:              codec,
			SourceOffset:       offsets[i],
			CompressedLength:   compressed[i],
			DecompressedLength: decompressed[i],
		}
	}

	return NewPlan(blocks...)
}

// Len returns number of blocks.
func (p *BlockPlan) Len() int {
	if p == nil {
		return 0
	}

	return len(p.Blocks)
}

// DecompressedLength returns sum of block output sizes.
func (p *BlockPlan) DecompressedLength() int64 {
	if p == nil {
		return 0
	}

	var total int64
	for _, b := range p.Blocks {
		total += b.DecompressedLength
	}

	return total
}

// CompressedLength returns sum of stored block sizes.
func (p *BlockPlan) CompressedLength() int64 {
	if p == nil {
		return 0
	}

	var total int64
	for _, b := range p.Blocks {
		total += b.CompressedLength
	}

	return total
}

// Codecs returns distinct codec kinds used by plan in first-use order.
func (p *BlockPlan) Codecs() []CodecKind {
	if p == nil {
		return nil
	}

	seen := make(map[CodecKind]struct{}, 2)
	out := make([]CodecKind, 0, 2)
	for _, b := range p.Blocks {
		kind := CodecKind(b.Codec.String())
		if _, ok := seen[kind]; ok {
			continue
		}

		seen[kind] = struct{}{}
		out = append(out, kind)
	}

	return out
}

// Validate checks every block range against bounds and that outputs sum to expected.
func (p *BlockPlan) Validate(bounds Bounds, expected int64) error {
	if p == nil {
		return fmt.Errorf("%w: nil plan", ErrInvalidPlan)
	}

	var total int64
	for i, b := range p.Blocks {
		if err := bounds.CheckRange(b.SourceOffset, b.CompressedLength); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		if err := bounds.CheckLength(b.DecompressedLength); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		if b.Codec.IsNone() && b.CompressedLength < b.DecompressedLength {
			return validationErrorf("block %d: raw block stores %d bytes for %d output", i, b.CompressedLength, b.DecompressedLength)
		}
		if b.DecompressedLength > math.MaxInt64-total {
			return validationErrorf("block %d: total output overflows", i)
		}

		total += b.DecompressedLength
	}

	if total != expected {
		return fmt.Errorf("%w: plan yields %d bytes, resource declares %d", ErrSizeMismatch, total, expected)
	}

	return nil
}

// Open returns lazy reader over plan output. Only one block stream is live at a time.
func (p *BlockPlan) Open(ra io.ReaderAt, codecs *CodecRegistry) io.ReadCloser {
	return &planReader{
		ra:     ra,
		codecs: codecs,
		blocks: p.Blocks,
		want:   p.DecompressedLength(),
	}
}

// planReader streams block outputs in order.
type planReader struct {
	ra       io.ReaderAt
	codecs   *CodecRegistry
	cur      io.ReadCloser
	err      error
	blocks   []Block
	idx      int
	curOut   int64
	produced int64
	want     int64
	closed   bool
}

// Read implements io.Reader.
func (r *planReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if r.err != nil {
		return 0, r.err
	}

	for {
		if r.cur == nil {
			if r.idx >= len(r.blocks) {
				if r.produced != r.want {
					r.err = fmt.Errorf("%w: plan produced %d bytes, want %d", ErrSizeMismatch, r.produced, r.want)
					return 0, r.err
				}

				return 0, io.EOF
			}

			if err := r.openBlock(); err != nil {
				r.err = err
				return 0, err
			}
		}

		if len(p) == 0 {
			return 0, nil
		}

		n, err := r.cur.Read(p)
		r.curOut += int64(n)
		r.produced += int64(n)

		if errors.Is(err, io.EOF) {
			block := r.blocks[r.idx]
			_ = r.cur.Close()
			r.cur = nil
			if r.curOut != block.DecompressedLength {
				r.err = fmt.Errorf("%w: block %d produced %d bytes, want %d", ErrSizeMismatch, r.idx, r.curOut, block.DecompressedLength)
				return n, r.err
			}

			r.idx++
			if n > 0 {
				return n, nil
			}
			continue
		}

		if err != nil {
			r.err = fmt.Errorf("block %d: %w", r.idx, err)
			return n, r.err
		}

		return n, nil
	}
}

// openBlock opens codec stream for current block.
func (r *planReader) openBlock() error {
	block := r.blocks[r.idx]
	section := io.NewSectionReader(r.ra, block.SourceOffset, block.CompressedLength)

	stream, err := r.codecs.OpenStream(block.Codec, section, block.CompressedLength, block.DecompressedLength)
	if err != nil {
		return fmt.Errorf("block %d: %w", r.idx, err)
	}

	r.cur = NewStreamReader(stream)
	r.curOut = 0
	return nil
}

// Close implements io.Closer.
func (r *planReader) Close() error {
	if r.closed {
		return nil
	}

	r.closed = true
	if r.cur != nil {
		err := r.cur.Close()
		r.cur = nil
		return err
	}

	return nil
}
