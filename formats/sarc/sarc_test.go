// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package sarc

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/woozymasta/gamearc"
)

// fixtureRecord is one hand-built record row.
type fixtureRecord struct {
	offset, length, decompressed uint32
	codec, flags                 uint16
	nameOffset                   uint32
}

// buildFixture assembles header, payload region, and record table by hand.
func buildFixture(payload []byte, dataStart int, records []fixtureRecord, names []byte) []byte {
	tableOffset := dataStart + len(payload)
	nameTableOffset := 0
	if len(names) > 0 {
		nameTableOffset = tableOffset + len(records)*RecordSize
	}

	buf := make([]byte, dataStart, tableOffset+len(records)*RecordSize+len(names))
	copy(buf, Magic)
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(records)))
	binary.LittleEndian.PutUint32(buf[8:], uint32(tableOffset))
	binary.LittleEndian.PutUint32(buf[12:], uint32(nameTableOffset))
	buf = append(buf, payload...)

	for _, r := range records {
		var row [RecordSize]byte
		binary.LittleEndian.PutUint32(row[0:], r.offset)
		binary.LittleEndian.PutUint32(row[4:], r.length)
		binary.LittleEndian.PutUint32(row[8:], r.decompressed)
		binary.LittleEndian.PutUint16(row[12:], r.codec)
		binary.LittleEndian.PutUint16(row[14:], r.flags)
		binary.LittleEndian.PutUint32(row[16:], r.nameOffset)
		buf = append(buf, row[:]...)
	}

	return append(buf, names...)
}

// twoEntryFixture is the synthetic container with one raw and one lz77n entry.
func twoEntryFixture(secondDecompressed uint32) []byte {
	raw := []byte("0123456789")
	lz := []byte{0x5B, 'A', 'B', 'C', 'D', 'E', 0x05, 0x00}
	payload := append(append([]byte{}, raw...), lz...)

	return buildFixture(payload, 32, []fixtureRecord{
		{offset: 32, length: 10, decompressed: 10, codec: CodecIDNone},
		{offset: 42, length: 8, decompressed: secondDecompressed, codec: CodecIDLZ77N},
	}, nil)
}

// writeTemp stores data in a fresh temp directory.
func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// quietOptions returns open options that discard logs.
func quietOptions() gamearc.OpenOptions {
	return gamearc.OpenOptions{Logger: slog.New(slog.DiscardHandler)}
}

// newRegistry returns registry with both SARC probes.
func newRegistry() *gamearc.Registry {
	return gamearc.NewRegistry(NewProbe(), NewWrappedProbe())
}

func TestOpenSyntheticContainer(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "fixture.sarc", twoEntryFixture(20))

	a, err := newRegistry().Open(t.Context(), path, quietOptions())
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	require.Equal(t, "sarc", a.Probe())
	require.Equal(t, 2, a.Len())

	res := a.Resources()
	require.Equal(t, "file_0000", res[0].Name)
	require.Equal(t, "file_0001", res[1].Name)
	require.Equal(t, int64(32), res[0].Offset)
	require.Equal(t, int64(42), res[1].Offset)
	require.Equal(t, gamearc.ModeRaw, res[0].Mode())
	require.Equal(t, gamearc.ModeCodec, res[1].Mode())

	first, err := a.ReadResource("file_0000")
	require.NoError(t, err)
	require.Equal(t, []byte("0123456789"), first)

	second, err := a.ReadResource("file_0001")
	require.NoError(t, err)
	require.Len(t, second, 20)
	require.Equal(t, bytes.Repeat([]byte("ABCDE"), 4), second)
}

func TestScoreSyntheticContainer(t *testing.T) {
	t.Parallel()

	data := twoEntryFixture(20)
	in, err := gamearc.NewInput(gamearc.NewBytesSource("fixture.sarc", data))
	require.NoError(t, err)

	want := gamearc.ScoreExtension + gamearc.ScoreMagic + 3*gamearc.ScorePlausibleField
	require.Equal(t, want, NewProbe().Score(in))

	renamed, err := gamearc.NewInput(gamearc.NewBytesSource("fixture.bin", data))
	require.NoError(t, err)
	require.Equal(t, want-gamearc.ScoreExtension, NewProbe().Score(renamed))

	garbage, err := gamearc.NewInput(gamearc.NewBytesSource("noise.bin", []byte("not a container")))
	require.NoError(t, err)
	require.Zero(t, NewProbe().Score(garbage))
	require.Zero(t, NewWrappedProbe().Score(garbage))
}

func TestMutatedHeaderRejected(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		mutate func([]byte)
	}{
		{name: "huge count", mutate: func(b []byte) { binary.LittleEndian.PutUint32(b[4:], 0xFFFFFFF0) }},
		{name: "table past end", mutate: func(b []byte) { binary.LittleEndian.PutUint32(b[8:], uint32(len(b)+4)) }},
		{name: "name table past end", mutate: func(b []byte) { binary.LittleEndian.PutUint32(b[12:], uint32(len(b)+1)) }},
		{name: "record offset past end", mutate: func(b []byte) { binary.LittleEndian.PutUint32(b[50:], uint32(len(b))) }},
		{name: "record length past end", mutate: func(b []byte) { binary.LittleEndian.PutUint32(b[54:], 0x7FFFFFFF) }},
		{name: "unknown codec", mutate: func(b []byte) { binary.LittleEndian.PutUint16(b[62:], 99) }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			data := twoEntryFixture(20)
			tc.mutate(data)
			path := writeTemp(t, "mutated.sarc", data)

			a, err := newRegistry().Open(t.Context(), path, quietOptions())
			require.Nil(t, a)
			require.ErrorIs(t, err, gamearc.ErrProbeFailed)
			require.ErrorIs(t, err, gamearc.ErrValidation)
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	t.Parallel()

	text := bytes.Repeat([]byte("terrain tile data "), 200)
	files := []File{
		{Name: "raw.txt", Data: []byte("plain payload")},
		{Name: "maps/zlib.bin", Data: text, Codec: gamearc.CodecZlib},
		{Name: "maps/deflate.bin", Data: text, Codec: gamearc.CodecDeflate},
		{Name: "maps/zstd.bin", Data: text, Codec: gamearc.CodecZstd},
		{Name: "maps/lz4.bin", Data: text, Codec: gamearc.CodecLZ4},
		{Name: "maps/lz4frame.bin", Data: text, Codec: gamearc.CodecLZ4Frame},
		{Name: "maps/lzss.bin", Data: text, Codec: gamearc.CodecLZSS},
		{Name: "maps/lz77n.bin", Data: text, Codec: gamearc.CodecLZ77N},
		{Name: "chunked/uniform.bin", Data: text, Codec: gamearc.CodecZstd, ChunkSize: 1000},
		{Name: "chunked/mixed.bin", Chunks: []Chunk{
			{Data: text[:1200], Codec: gamearc.CodecLZ4},
			{Data: text[1200:2000]},
			{Data: text[2000:], Codec: gamearc.CodecLZ77N},
		}},
		{Name: "empty.txt"},
	}

	var buf bytes.Buffer
	res, err := Write(&buf, files, WriteOptions{})
	require.NoError(t, err)
	require.Equal(t, len(files), res.Records)
	require.Equal(t, int64(buf.Len()), res.Size)

	path := writeTemp(t, "roundtrip.sarc", buf.Bytes())
	a, err := newRegistry().Open(t.Context(), path, quietOptions())
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	require.Equal(t, len(files), a.Len())
	for i, f := range files {
		want := f.Data
		if f.Chunks != nil {
			want = nil
			for _, c := range f.Chunks {
				want = append(want, c.Data...)
			}
		}

		r, err := a.Resource(i)
		require.NoError(t, err)
		require.Equal(t, f.Name, r.Name)

		got, err := a.ReadResource(f.Name)
		require.NoError(t, err, f.Name)
		require.Equal(t, len(want), len(got), f.Name)
		require.True(t, bytes.Equal(want, got), f.Name)
	}

	mixed, _, err := a.Find("chunked/mixed.bin")
	require.NoError(t, err)
	require.Equal(t, gamearc.ModePlan, mixed.Mode())
	require.Equal(t, 3, mixed.Plan.Len())
	require.Equal(t, []gamearc.CodecKind{gamearc.CodecLZ4, gamearc.CodecNone, gamearc.CodecLZ77N}, mixed.Plan.Codecs())
}

func TestWriteOmitNamesSynthesizes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	_, err := Write(&buf, []File{
		{Name: "a.txt", Data: []byte("a")},
		{Name: "b.txt", Data: []byte("b")},
	}, WriteOptions{OmitNames: true})
	require.NoError(t, err)

	path := writeTemp(t, "anon.sarc", buf.Bytes())
	a, err := newRegistry().Open(t.Context(), path, quietOptions())
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	res := a.Resources()
	require.Equal(t, "file_0000", res[0].Name)
	require.Equal(t, "file_0001", res[1].Name)
}

func TestRepackFromResources(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "fixture.sarc", twoEntryFixture(20))
	a, err := newRegistry().Open(t.Context(), path, quietOptions())
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	files, err := FromResources(a.Resources(), a.Codecs(), gamearc.CodecZlib)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "repacked.sarc")
	_, err = WriteFile(out, files, WriteOptions{})
	require.NoError(t, err)

	b, err := newRegistry().Open(t.Context(), out, quietOptions())
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	got, err := b.ReadResource("file_0001")
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte("ABCDE"), 4), got)
}

func TestExtractIsolatesResourceFailures(t *testing.T) {
	t.Parallel()

	// Second entry declares 25 bytes while stream yields 20.
	path := writeTemp(t, "broken.sarc", twoEntryFixture(25))
	a, err := newRegistry().Open(t.Context(), path, quietOptions())
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	dst := t.TempDir()
	report, err := a.Extract(t.Context(), dst, gamearc.ExtractOptions{Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, err)
	require.Len(t, report.Extracted, 1)
	require.Len(t, report.Failures, 1)
	require.Equal(t, 1, report.Failures[0].Index)
	require.ErrorIs(t, report.Err(), gamearc.ErrCodec)

	got, err := os.ReadFile(filepath.Join(dst, "file_0000"))
	require.NoError(t, err)
	require.Equal(t, []byte("0123456789"), got)

	_, err = os.Stat(filepath.Join(dst, "file_0001"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWrappedContainerUsesCache(t *testing.T) {
	t.Parallel()

	var inner bytes.Buffer
	_, err := Write(&inner, []File{
		{Name: "config.txt", Data: bytes.Repeat([]byte("key=value\n"), 50)},
		{Name: "blob.bin", Data: bytes.Repeat([]byte{1, 2, 3, 4}, 300), Codec: gamearc.CodecLZ4},
	}, WriteOptions{})
	require.NoError(t, err)

	for _, tc := range []struct {
		name      string
		codec     gamearc.CodecKind
		chunkSize int
	}{
		{name: "zstd", codec: gamearc.CodecZstd},
		{name: "zlib chunked", codec: gamearc.CodecZlib, chunkSize: 512},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var wrapped bytes.Buffer
			require.NoError(t, WriteWrapped(&wrapped, inner.Bytes(), tc.codec, tc.chunkSize, nil))
			path := writeTemp(t, "pack.sarz", wrapped.Bytes())

			cache := gamearc.NewArchiveCache(gamearc.WithCacheLogger(slog.New(slog.DiscardHandler)))
			opts := quietOptions()
			opts.Cache = cache

			a, err := newRegistry().Open(t.Context(), path, opts)
			require.NoError(t, err)
			require.Equal(t, "sarz", a.Probe())

			sibling := filepath.Join(filepath.Dir(path), "pack_decompressed.sarz")
			require.Equal(t, sibling, gamearc.SiblingPath(path))
			info, err := os.Stat(sibling)
			require.NoError(t, err)
			require.Equal(t, int64(inner.Len()), info.Size())
			require.Equal(t, os.FileMode(0o444), info.Mode().Perm())

			for _, r := range a.Resources() {
				require.Equal(t, sibling, r.Source.Path())
			}

			got, err := a.ReadResource("config.txt")
			require.NoError(t, err)
			require.Equal(t, bytes.Repeat([]byte("key=value\n"), 50), got)
			require.NoError(t, a.Close())

			b, err := newRegistry().Open(t.Context(), path, opts)
			require.NoError(t, err)
			require.NoError(t, b.Close())

			stats := cache.Stats()
			require.Equal(t, int64(1), stats.Decompressions)
			require.Equal(t, int64(1), stats.Hits)
		})
	}
}

func TestWrappedCorruptPayloadLeavesNoSibling(t *testing.T) {
	t.Parallel()

	var wrapped bytes.Buffer
	require.NoError(t, WriteWrapped(&wrapped, bytes.Repeat([]byte("x"), 4096), gamearc.CodecZstd, 0, nil))

	data := wrapped.Bytes()
	// Cut payload in half; header still declares full inner size.
	path := writeTemp(t, "cut.sarz", data[:WrappedHeaderSize+(len(data)-WrappedHeaderSize)/2])

	_, err := newRegistry().Open(t.Context(), path, quietOptions())
	require.ErrorIs(t, err, gamearc.ErrCacheWrite)

	_, statErr := os.Stat(gamearc.SiblingPath(path))
	require.ErrorIs(t, statErr, os.ErrNotExist)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestScoreIgnoresPayloadBytes(t *testing.T) {
	t.Parallel()

	data := twoEntryFixture(20)
	in, err := gamearc.NewInput(gamearc.NewBytesSource("fixture.sarc", data))
	require.NoError(t, err)
	want := NewProbe().Score(in)

	rng := rand.New(rand.NewSource(11))
	for trial := range 32 {
		scrambled := bytes.Clone(data)
		_, _ = rng.Read(scrambled[HeaderSize:])

		in, err := gamearc.NewInput(gamearc.NewBytesSource("fixture.sarc", scrambled))
		require.NoError(t, err)
		require.Equal(t, want, NewProbe().Score(in), "trial %d", trial)
	}
}
