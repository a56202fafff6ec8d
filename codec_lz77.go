// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

// LZ77N stream layout constants.
const (
	// lz77NibbleMax marks saturated 4-bit length field followed by escape bytes.
	lz77NibbleMax = 0x0F
	// lz77EscapeMore marks escape byte that is followed by another escape byte.
	lz77EscapeMore = 0xFF
	// lz77MinMatch is added to every decoded match length.
	lz77MinMatch = 4
	// lz77MaxOffset is largest backward distance encodable in 2-byte offset.
	lz77MaxOffset = 0xFFFF
	// lz77WindowTrim is window size after which history is shifted down to lz77MaxOffset.
	lz77WindowTrim = 4 * lz77MaxOffset
)

// lz77State is decoder state of nibble LZ77 state machine.
type lz77State uint8

// LZ77N decoder states.
const (
	lz77ReadControl lz77State = iota
	lz77EmitLiterals
	lz77ReadOffset
	lz77EmitMatch
	lz77End
)

// lz77Codec decodes nibble-split LZ77 variant.
type lz77Codec struct{}

// OpenStream implements Codec.
func (lz77Codec) OpenStream(src io.Reader, compressedLen int64, decompressedLen int64) (Stream, error) {
	capHint := min(decompressedLen, int64(lz77WindowTrim+streamChunkSize))
	return &lz77Stream{
		in:     bufio.NewReader(io.LimitReader(src, compressedLen)),
		total:  decompressedLen,
		window: make([]byte, 0, capHint),
	}, nil
}

// Encode implements Encoder.
func (lz77Codec) Encode(data []byte) ([]byte, error) {
	return EncodeLZ77(data), nil
}

// lz77Stream is single-pass decoder keeping decoded output as its own dictionary.
type lz77Stream struct {
	in     *bufio.Reader
	err    error
	window []byte
	// literals and match hold remaining byte counts of current sequence.
	literals    int64
	match       int64
	offset      int
	produced    int64
	total       int64
	matchNibble byte
	state       lz77State
	closed      bool
}

// HasMore implements Stream.
func (s *lz77Stream) HasMore() bool {
	return !s.closed && s.err == nil && s.state != lz77End
}

// Next implements Stream.
func (s *lz77Stream) Next() ([]byte, error) {
	if s.closed {
		return nil, ErrStreamUsed
	}
	if s.err != nil {
		return nil, s.err
	}

	s.trimWindow()
	start := len(s.window)
	for s.state != lz77End && len(s.window)-start < streamChunkSize {
		if err := s.step(streamChunkSize - (len(s.window) - start)); err != nil {
			s.err = err
			return s.window[start:], err
		}
	}

	if len(s.window) == start && s.state == lz77End {
		return nil, io.EOF
	}

	return s.window[start:], nil
}

// step advances state machine once, emitting at most room bytes.
func (s *lz77Stream) step(room int) error {
	switch s.state {
	case lz77ReadControl:
		ctrl, err := s.in.ReadByte()
		if errors.Is(err, io.EOF) {
			return s.finish()
		}
		if err != nil {
			return codecErrorf("lz77n: read control: %v", err)
		}

		s.literals = int64(ctrl >> 4)
		s.matchNibble = ctrl & lz77NibbleMax
		if s.literals == lz77NibbleMax {
			ext, err := s.readExtension()
			if err != nil {
				return err
			}
			s.literals += ext
		}
		if s.literals > s.total-s.produced {
			return codecErrorf("lz77n: literal run %d exceeds declared length", s.literals)
		}

		s.state = lz77EmitLiterals
		return nil

	case lz77EmitLiterals:
		n := min(s.literals, int64(room))
		pos := len(s.window)
		s.window = append(s.window, make([]byte, n)...)
		if _, err := io.ReadFull(s.in, s.window[pos:]); err != nil {
			s.window = s.window[:pos]
			return codecErrorf("lz77n: literal run truncated")
		}

		s.literals -= n
		s.produced += n
		if s.literals == 0 {
			s.state = lz77ReadOffset
		}
		return nil

	case lz77ReadOffset:
		var raw [2]byte
		first, err := s.in.ReadByte()
		if errors.Is(err, io.EOF) {
			// Stream may legally end on literal tail.
			return s.finish()
		}
		if err != nil {
			return codecErrorf("lz77n: read offset: %v", err)
		}

		second, err := s.in.ReadByte()
		if err != nil {
			return codecErrorf("lz77n: offset truncated")
		}

		raw[0], raw[1] = first, second
		s.offset = int(binary.LittleEndian.Uint16(raw[:]))
		if s.offset == 0 || s.offset > len(s.window) {
			return codecErrorf("lz77n: match offset %d outside decoded window %d", s.offset, len(s.window))
		}

		s.match = int64(s.matchNibble)
		if s.matchNibble == lz77NibbleMax {
			ext, err := s.readExtension()
			if err != nil {
				return err
			}
			s.match += ext
		}
		s.match += lz77MinMatch
		if s.match > s.total-s.produced {
			return codecErrorf("lz77n: match length %d exceeds declared length", s.match)
		}

		s.state = lz77EmitMatch
		return nil

	case lz77EmitMatch:
		n := min(s.match, int64(room))
		// Byte-by-byte copy: offset may be shorter than match length.
		for i := int64(0); i < n; i++ {
			s.window = append(s.window, s.window[len(s.window)-s.offset])
		}

		s.match -= n
		s.produced += n
		if s.match == 0 {
			s.state = lz77ReadControl
		}
		return nil

	default:
		return nil
	}
}

// readExtension sums escape bytes following saturated nibble.
func (s *lz77Stream) readExtension() (int64, error) {
	var total int64
	for {
		b, err := s.in.ReadByte()
		if err != nil {
			return 0, codecErrorf("lz77n: length escape truncated")
		}

		total += int64(b)
		if b != lz77EscapeMore {
			return total, nil
		}
	}
}

// finish moves to End and checks declared output length.
func (s *lz77Stream) finish() error {
	s.state = lz77End
	if s.produced != s.total {
		return codecErrorf("lz77n: output truncated, %d bytes short", s.total-s.produced)
	}

	return nil
}

// trimWindow drops history older than maximal match distance.
func (s *lz77Stream) trimWindow() {
	if len(s.window) <= lz77WindowTrim {
		return
	}

	keep := s.window[len(s.window)-lz77MaxOffset:]
	n := copy(s.window, keep)
	s.window = s.window[:n]
}

// Close implements Stream.
func (s *lz77Stream) Close() error {
	s.closed = true
	s.window = nil
	return nil
}

// EncodeLZ77 compresses data into nibble LZ77 representation with greedy 4-byte matching.
func EncodeLZ77(data []byte) []byte {
	out := make([]byte, 0, len(data)/2+16)
	table := make(map[uint32]int, len(data)/4+1)

	anchor := 0
	i := 0
	for i+lz77MinMatch <= len(data) {
		key := binary.LittleEndian.Uint32(data[i:])
		candidate, ok := table[key]
		table[key] = i
		if !ok || i-candidate > lz77MaxOffset {
			i++
			continue
		}

		length := lz77MinMatch
		for i+length < len(data) && data[candidate+length] == data[i+length] {
			length++
		}

		out = appendLZ77Sequence(out, data[anchor:i], i-candidate, length)
		i += length
		anchor = i
	}

	if anchor < len(data) {
		out = appendLZ77Literals(out, data[anchor:])
	}

	return out
}

// appendLZ77Sequence writes one literal run followed by one match.
func appendLZ77Sequence(out []byte, literals []byte, offset int, length int) []byte {
	litLen := len(literals)
	matchLen := length - lz77MinMatch

	out = append(out, byte(min(litLen, lz77NibbleMax))<<4|byte(min(matchLen, lz77NibbleMax)))
	if litLen >= lz77NibbleMax {
		out = appendLZ77Extension(out, litLen-lz77NibbleMax)
	}

	out = append(out, literals...)
	out = binary.LittleEndian.AppendUint16(out, uint16(offset)) //nolint:gosec // offset bounded by lz77MaxOffset
	if matchLen >= lz77NibbleMax {
		out = appendLZ77Extension(out, matchLen-lz77NibbleMax)
	}

	return out
}

// appendLZ77Literals writes trailing literal run with no following offset.
func appendLZ77Literals(out []byte, literals []byte) []byte {
	litLen := len(literals)
	out = append(out, byte(min(litLen, lz77NibbleMax))<<4)
	if litLen >= lz77NibbleMax {
		out = appendLZ77Extension(out, litLen-lz77NibbleMax)
	}

	return append(out, literals...)
}

// appendLZ77Extension writes escape bytes for length beyond saturated nibble.
func appendLZ77Extension(out []byte, n int) []byte {
	for n >= lz77EscapeMore {
		out = append(out, lz77EscapeMore)
		n -= lz77EscapeMore
	}

	return append(out, byte(n))
}
