// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"
)

// codecCorpus returns compressible payload mixing text and repeated runs.
func codecCorpus() []byte {
	var b strings.Builder
	for i := range 400 {
		b.WriteString("class CfgPatches { units[] = {}; weapons[] = {}; };\n")
		if i%7 == 0 {
			b.WriteString(strings.Repeat("x", i%50))
		}
	}

	return []byte(b.String())
}

func TestCodecs_RoundTrip(t *testing.T) {
	t.Parallel()

	codecs := DefaultCodecs()
	rng := rand.New(rand.NewSource(7))
	noise := make([]byte, 3000)
	_, _ = rng.Read(noise)

	payloads := map[string][]byte{
		"empty":  {},
		"short":  []byte("abc"),
		"corpus": codecCorpus(),
		"noise":  noise,
	}

	for _, kind := range []CodecKind{CodecNone, CodecZlib, CodecDeflate, CodecZstd, CodecLZ4Frame, CodecLZSS, CodecLZ77N} {
		for name, data := range payloads {
			if kind == CodecLZSS && len(data) == 0 {
				continue
			}

			t.Run(string(kind)+"/"+name, func(t *testing.T) {
				t.Parallel()

				encoded, err := codecs.Encode(kind, data)
				if err != nil {
					t.Fatalf("Encode: %v", err)
				}

				got, err := codecs.DecodeAll(kind, encoded, int64(len(data)))
				if err != nil {
					t.Fatalf("DecodeAll: %v", err)
				}
				if !bytes.Equal(got, data) {
					t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(data))
				}
			})
		}
	}
}

func TestCodecs_LZ4BlockRoundTrip(t *testing.T) {
	t.Parallel()

	codecs := DefaultCodecs()
	data := codecCorpus()
	encoded, err := codecs.Encode(CodecLZ4, data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := codecs.DecodeAll(CodecLZ4, encoded, int64(len(data)))
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("lz4 block round trip mismatch")
	}

	if _, err := codecs.Encode(CodecLZ4, []byte("ab")); !IsIncompressible(err) {
		t.Fatalf("tiny lz4 block: %v, want incompressible", err)
	}
}

func TestCodecs_DeclaredLengthEnforced(t *testing.T) {
	t.Parallel()

	codecs := DefaultCodecs()
	data := codecCorpus()

	for _, kind := range []CodecKind{CodecZlib, CodecDeflate, CodecZstd, CodecLZ4Frame, CodecLZ77N} {
		t.Run(string(kind), func(t *testing.T) {
			t.Parallel()

			encoded, err := codecs.Encode(kind, data)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			if _, err := codecs.DecodeAll(kind, encoded, int64(len(data))+10); !errors.Is(err, ErrCodec) {
				t.Fatalf("declared longer: %v, want ErrCodec", err)
			}
			if _, err := codecs.DecodeAll(kind, encoded, int64(len(data))-10); !errors.Is(err, ErrCodec) {
				t.Fatalf("declared shorter: %v, want ErrCodec", err)
			}
		})
	}
}

func TestCodecs_DeclaredZeroRejectsOutput(t *testing.T) {
	t.Parallel()

	codecs := DefaultCodecs()
	for _, kind := range []CodecKind{CodecZlib, CodecDeflate, CodecZstd, CodecLZ4Frame} {
		encoded, err := codecs.Encode(kind, []byte("abc"))
		if err != nil {
			t.Fatalf("%s Encode: %v", kind, err)
		}
		if _, err := codecs.DecodeAll(kind, encoded, 0); !errors.Is(err, ErrCodec) {
			t.Fatalf("%s declared zero: %v, want ErrCodec", kind, err)
		}

		empty, err := codecs.Encode(kind, nil)
		if err != nil {
			t.Fatalf("%s Encode empty: %v", kind, err)
		}
		got, err := codecs.DecodeAll(kind, empty, 0)
		if err != nil || len(got) != 0 {
			t.Fatalf("%s empty stream: %q, %v", kind, got, err)
		}
	}
}

func TestCodecs_TruncatedInput(t *testing.T) {
	t.Parallel()

	codecs := DefaultCodecs()
	data := codecCorpus()

	for _, kind := range []CodecKind{CodecZlib, CodecZstd, CodecLZ4Frame, CodecLZ77N} {
		t.Run(string(kind), func(t *testing.T) {
			t.Parallel()

			encoded, err := codecs.Encode(kind, data)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			cut := encoded[:len(encoded)/2]
			if _, err := codecs.DecodeAll(kind, cut, int64(len(data))); !errors.Is(err, ErrCodec) {
				t.Fatalf("truncated input: %v, want ErrCodec", err)
			}
		})
	}
}

func TestCodecs_NoneRejectsShortStore(t *testing.T) {
	t.Parallel()

	_, err := DefaultCodecs().DecodeAll(CodecNone, []byte("abc"), 4)
	if !errors.Is(err, ErrCodec) {
		t.Fatalf("DecodeAll: %v, want ErrCodec", err)
	}
}

func TestCodecRegistry_Lookup(t *testing.T) {
	t.Parallel()

	r := NewCodecRegistry()
	if _, err := r.Lookup(""); err != nil {
		t.Fatalf("empty kind must resolve to copy: %v", err)
	}
	if _, err := r.Lookup(CodecZstd); !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("Lookup zstd on bare registry: %v, want ErrUnknownCodec", err)
	}

	var nilRegistry *CodecRegistry
	if _, err := nilRegistry.Lookup(CodecNone); err != nil {
		t.Fatalf("nil registry copy: %v", err)
	}

	r.Register("reverse", CodecFunc(func(src io.Reader, _ int64, decompressedLen int64) (Stream, error) {
		buf := make([]byte, decompressedLen)
		if _, err := io.ReadFull(src, buf); err != nil {
			return nil, err
		}
		for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
			buf[i], buf[j] = buf[j], buf[i]
		}

		return &bytesStream{data: buf}, nil
	}))

	got, err := r.DecodeAll("reverse", []byte("olleh"), 5)
	if err != nil {
		t.Fatalf("DecodeAll custom: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("custom codec output=%q, want hello", got)
	}

	if _, err := r.Encode("reverse", []byte("x")); !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("Encode without encoder: %v, want ErrUnknownCodec", err)
	}
}

func TestParseCodecKind(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "none", "zlib", "deflate", "zstd", "lz4", "lz4frame", "lzss", "lz77n"} {
		if _, err := ParseCodecKind(name); err != nil {
			t.Fatalf("ParseCodecKind(%q): %v", name, err)
		}
	}
	if _, err := ParseCodecKind("brotli"); !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("ParseCodecKind(brotli): %v, want ErrUnknownCodec", err)
	}
}

func TestStream_SingleUse(t *testing.T) {
	t.Parallel()

	codecs := DefaultCodecs()
	encoded, err := codecs.Encode(CodecZlib, []byte("payload"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	stream, err := codecs.OpenStream(CodecZlib, bytes.NewReader(encoded), int64(len(encoded)), 7)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	if !stream.HasMore() {
		t.Fatal("fresh stream must have output")
	}

	chunk, err := stream.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(chunk) != "payload" {
		t.Fatalf("chunk=%q, want payload", chunk)
	}
	if stream.HasMore() {
		t.Fatal("stream must be drained")
	}
	if _, err := stream.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("Next after drain: %v, want io.EOF", err)
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := stream.Next(); !errors.Is(err, ErrStreamUsed) {
		t.Fatalf("Next after close: %v, want ErrStreamUsed", err)
	}
}

func TestOpenStream_NegativeLengths(t *testing.T) {
	t.Parallel()

	_, err := DefaultCodecs().OpenStream(CodecNone, bytes.NewReader(nil), -1, 0)
	if !errors.Is(err, ErrCodec) {
		t.Fatalf("OpenStream: %v, want ErrCodec", err)
	}
}

func TestOpenStream_LZ4BlockBufferLimit(t *testing.T) {
	t.Parallel()

	codecs := DefaultCodecs()
	for _, lengths := range [][2]int64{
		{16, MaxBufferedBlockLength + 1},
		{MaxBufferedBlockLength + 1, 16},
	} {
		_, err := codecs.OpenStream(CodecLZ4, bytes.NewReader(nil), lengths[0], lengths[1])
		if !errors.Is(err, ErrCodec) {
			t.Fatalf("OpenStream(%d, %d): %v, want ErrCodec", lengths[0], lengths[1], err)
		}
	}
}
