// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// toyEntry is one payload of toy container fixture.
type toyEntry struct {
	name    string
	data    []byte
	codec   CodecKind
	corrupt bool
}

// toyArchive writes entries back to back and opens them through a stub probe.
func toyArchive(t *testing.T, entries ...toyEntry) *Archive {
	t.Helper()

	codecs := DefaultCodecs()
	var (
		buf     bytes.Buffer
		records []EntryRecord
	)
	for _, e := range entries {
		encoded, err := codecs.Encode(e.codec, e.data)
		if err != nil {
			t.Fatalf("Encode %s: %v", e.name, err)
		}

		declared := int64(len(e.data))
		if e.corrupt {
			declared += 16
		}

		records = append(records, EntryRecord{
			Name:               e.name,
			Codec:              e.codec,
			Offset:             int64(buf.Len()),
			Length:             int64(len(encoded)),
			DecompressedLength: declared,
		})
		buf.Write(encoded)
	}

	path := writeInput(t, "toy.bin", buf.Bytes())
	probe := &stubProbe{name: "toy", score: 50, build: func(_ *ExtractionContext, in *Input) ([]*Resource, error) {
		return BuildDirectory(in.Source, in.Source.Bounds(), records, nil, DirectoryOptions{})
	}}

	a, err := NewRegistry(probe).Open(t.Context(), path, quietOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	return a
}

// sampleToyEntries returns entries covering raw and compressed payloads.
func sampleToyEntries() []toyEntry {
	return []toyEntry{
		{name: "readme.txt", data: []byte("hello"), codec: CodecNone},
		{name: "Textures/Grass.dds", data: bytes.Repeat([]byte("grass"), 300), codec: CodecZstd},
		{name: `scripts\init.c`, data: bytes.Repeat([]byte("void main() {}\n"), 40), codec: CodecLZ77N},
	}
}

func TestArchive_FindAndRead(t *testing.T) {
	t.Parallel()

	entries := sampleToyEntries()
	a := toyArchive(t, entries...)

	if a.Probe() != "toy" || a.Len() != len(entries) {
		t.Fatalf("probe=%s len=%d", a.Probe(), a.Len())
	}

	tests := []struct {
		lookup string
		index  int
	}{
		{lookup: "readme.txt", index: 0},
		{lookup: "textures/grass.dds", index: 1},
		{lookup: "/TEXTURES\\GRASS.DDS", index: 1},
		{lookup: "scripts/init.c", index: 2},
	}

	for _, tc := range tests {
		res, idx, err := a.Find(tc.lookup)
		if err != nil {
			t.Fatalf("Find(%q): %v", tc.lookup, err)
		}
		if idx != tc.index || res.Name != entries[tc.index].name {
			t.Fatalf("Find(%q)=%s@%d, want index %d", tc.lookup, res.Name, idx, tc.index)
		}

		got, err := a.ReadResource(tc.lookup)
		if err != nil {
			t.Fatalf("ReadResource(%q): %v", tc.lookup, err)
		}
		if !bytes.Equal(got, entries[tc.index].data) {
			t.Fatalf("ReadResource(%q) payload mismatch", tc.lookup)
		}
	}

	if _, _, err := a.Find("missing.txt"); !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("Find missing: %v, want ErrResourceNotFound", err)
	}
	if _, err := a.Resource(99); !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("Resource(99): %v, want ErrResourceNotFound", err)
	}

	rc, err := a.OpenNamed("scripts/init.c")
	if err != nil {
		t.Fatalf("OpenNamed: %v", err)
	}
	got, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || !bytes.Equal(got, entries[2].data) {
		t.Fatalf("OpenNamed read=%d bytes, err=%v", len(got), err)
	}
}

func TestArchive_ResourcesIsCopy(t *testing.T) {
	t.Parallel()

	a := toyArchive(t, sampleToyEntries()...)
	list := a.Resources()
	list[0] = nil

	res, err := a.Resource(0)
	if err != nil || res == nil {
		t.Fatalf("directory mutated through Resources(): %v", err)
	}
}

func TestArchive_ReadResourceScopesFailure(t *testing.T) {
	t.Parallel()

	a := toyArchive(t,
		toyEntry{name: "good.txt", data: []byte("fine"), codec: CodecNone},
		toyEntry{name: "bad.bin", data: bytes.Repeat([]byte("z"), 200), codec: CodecZlib, corrupt: true},
	)

	_, err := a.ReadResource("bad.bin")
	var resErr *ResourceError
	if !errors.As(err, &resErr) || resErr.Index != 1 || resErr.Name != "bad.bin" {
		t.Fatalf("ReadResource: %v, want ResourceError for index 1", err)
	}
	if !errors.Is(err, ErrCodec) {
		t.Fatalf("ReadResource: %v, want ErrCodec", err)
	}

	if got, err := a.ReadResource("good.txt"); err != nil || string(got) != "fine" {
		t.Fatalf("sibling read=%q, err=%v", got, err)
	}
}

func TestArchive_Close(t *testing.T) {
	t.Parallel()

	a := toyArchive(t, sampleToyEntries()...)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, err := a.ReadResource("readme.txt"); !errors.Is(err, ErrClosed) {
		t.Fatalf("ReadResource after Close: %v, want ErrClosed", err)
	}
	if _, err := a.OpenResource(0); !errors.Is(err, ErrClosed) {
		t.Fatalf("OpenResource after Close: %v, want ErrClosed", err)
	}
	if _, err := a.Extract(t.Context(), t.TempDir(), ExtractOptions{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Extract after Close: %v, want ErrClosed", err)
	}
}

func TestOpen_NilRegistry(t *testing.T) {
	t.Parallel()

	if _, err := Open(t.Context(), nil, "x", OpenOptions{}); !errors.Is(err, ErrNoProbe) {
		t.Fatalf("Open: %v, want ErrNoProbe", err)
	}
}
