// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import (
	"bytes"
	"errors"
	"testing"
)

func TestNewResource_Modes(t *testing.T) {
	t.Parallel()

	codecs := DefaultCodecs()
	payload := bytes.Repeat([]byte("mode"), 100)
	encoded, err := codecs.Encode(CodecDeflate, payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	data := append([]byte("raw!"), encoded...)
	src := NewBytesSource("modes.bin", data)

	raw, err := NewResource(src, ResourceSpec{Name: "raw.txt", Offset: 0, Length: 4})
	if err != nil {
		t.Fatalf("raw resource: %v", err)
	}
	if raw.Mode() != ModeRaw || raw.DecompressedLength != 4 {
		t.Fatalf("raw mode=%s decompressed=%d", raw.Mode(), raw.DecompressedLength)
	}

	coded, err := NewResource(src, ResourceSpec{
		Name:               "coded.txt",
		Codec:              CodecDeflate,
		Offset:             4,
		Length:             int64(len(encoded)),
		DecompressedLength: int64(len(payload)),
	})
	if err != nil {
		t.Fatalf("codec resource: %v", err)
	}
	if coded.Mode() != ModeCodec {
		t.Fatalf("mode=%s, want codec", coded.Mode())
	}

	got, err := coded.ReadAll(codecs)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("codec resource payload mismatch")
	}

	plan, err := NewPlan(Block{Codec: CodecDeflate, SourceOffset: 4, CompressedLength: int64(len(encoded)), DecompressedLength: int64(len(payload))})
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}

	// Plan supersedes codec fields.
	planned, err := NewResource(src, ResourceSpec{Name: "plan.txt", Codec: CodecZstd, Plan: plan, DecompressedLength: int64(len(payload))})
	if err != nil {
		t.Fatalf("plan resource: %v", err)
	}
	if planned.Mode() != ModePlan {
		t.Fatalf("mode=%s, want plan", planned.Mode())
	}

	got, err = planned.ReadAll(codecs)
	if err != nil {
		t.Fatalf("plan ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("plan resource payload mismatch")
	}
	if planned.StoredLength() != int64(len(encoded)) {
		t.Fatalf("StoredLength()=%d, want %d", planned.StoredLength(), len(encoded))
	}
}

func TestNewResource_Invariants(t *testing.T) {
	t.Parallel()

	src := NewBytesSource("inv.bin", make([]byte, 32))
	tests := []struct {
		name string
		spec ResourceSpec
		want error
	}{
		{name: "range past end", spec: ResourceSpec{Offset: 30, Length: 4}, want: ErrValidation},
		{name: "negative offset", spec: ResourceSpec{Offset: -1, Length: 1}, want: ErrValidation},
		{name: "negative length", spec: ResourceSpec{Length: -1}, want: ErrValidation},
		{name: "raw size disagrees", spec: ResourceSpec{Length: 8, DecompressedLength: 9}, want: ErrSizeMismatch},
		{name: "declared length over limit", spec: ResourceSpec{Codec: CodecZlib, Length: 4, DecompressedLength: DefaultMaxLength + 1}, want: ErrValidation},
		{
			name: "plan total disagrees",
			spec: ResourceSpec{
				Plan:               &BlockPlan{Blocks: []Block{{SourceOffset: 0, CompressedLength: 8, DecompressedLength: 8}}},
				DecompressedLength: 7,
			},
			want: ErrSizeMismatch,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			res, err := NewResource(src, tc.spec)
			if res != nil {
				t.Fatal("invalid spec must not produce resource")
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("NewResource: %v, want %v", err, tc.want)
			}
		})
	}

	if _, err := NewResource(nil, ResourceSpec{}); !errors.Is(err, ErrNilSource) {
		t.Fatalf("nil source: %v, want ErrNilSource", err)
	}
}

func TestResource_ReadAllDetectsShortOutput(t *testing.T) {
	t.Parallel()

	codecs := DefaultCodecs()
	encoded, err := codecs.Encode(CodecZlib, []byte("twelve bytes"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	res, err := NewResource(NewBytesSource("short.bin", encoded), ResourceSpec{
		Name:               "short.txt",
		Codec:              CodecZlib,
		Length:             int64(len(encoded)),
		DecompressedLength: 20,
	})
	if err != nil {
		t.Fatalf("NewResource: %v", err)
	}

	if _, err := res.ReadAll(codecs); !errors.Is(err, ErrCodec) {
		t.Fatalf("ReadAll: %v, want ErrCodec", err)
	}
}

func TestResource_OpenAfterSourceClose(t *testing.T) {
	t.Parallel()

	src := NewBytesSource("closed.bin", []byte("data"))
	res, err := NewResource(src, ResourceSpec{Name: "a", Length: 4})
	if err != nil {
		t.Fatalf("NewResource: %v", err)
	}

	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := res.Open(nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Open: %v, want ErrClosed", err)
	}
}

func TestProperties(t *testing.T) {
	t.Parallel()

	p := Properties{}
	p.Set("width", uint16(512))
	p.Set("hash", "abc")
	p.Set("count", "42")
	p.Set("flag", true)

	if v, ok := p.Int("width"); !ok || v != 512 {
		t.Fatalf("Int(width)=%d,%v", v, ok)
	}
	if v, ok := p.Int("count"); !ok || v != 42 {
		t.Fatalf("Int(count)=%d,%v", v, ok)
	}
	if _, ok := p.Int("hash"); ok {
		t.Fatal("Int(hash) must fail")
	}
	if s, ok := p.String("flag"); !ok || s != "true" {
		t.Fatalf("String(flag)=%q,%v", s, ok)
	}
	if _, ok := p.Get("missing"); ok {
		t.Fatal("Get(missing) must fail")
	}

	var res Resource
	res.SetProperty("k", 1)
	if v, ok := res.Properties.Int("k"); !ok || v != 1 {
		t.Fatalf("SetProperty value=%d,%v", v, ok)
	}
}
