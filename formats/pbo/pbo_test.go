// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package pbo

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/woozymasta/gamearc"
	"github.com/woozymasta/gamearc/formats/sarc"
	"github.com/woozymasta/pathrules"
)

var configText = bytes.Repeat([]byte("class CfgPatches { units[] = {}; };\n"), 120)

// packFixture writes a small PBO with one compressed and two raw entries.
func packFixture(t *testing.T) (string, *PackResult) {
	t.Helper()

	stamp := time.Unix(1_700_000_000, 0)
	inputs := []Input{
		BytesInput(`scripts\init.c`, []byte("void main() {}")),
		BytesInput("config.cpp", configText),
		BytesInput("data/icon.paa", []byte{0x01, 0x02, 0x03, 0x04}),
	}
	for i := range inputs {
		inputs[i].ModTime = stamp
	}

	path := filepath.Join(t.TempDir(), "mod.pbo")
	res, err := PackFile(t.Context(), path, inputs, PackOptions{
		Headers:  []HeaderPair{{Key: "prefix", Value: "my/mod/"}, {Key: "product", Value: "dayz"}},
		Compress: []pathrules.Rule{{Action: pathrules.ActionInclude, Pattern: "*.cpp"}},
	})
	require.NoError(t, err)

	return path, res
}

// quietOptions returns open options that discard logs.
func quietOptions() gamearc.OpenOptions {
	return gamearc.OpenOptions{Logger: slog.New(slog.DiscardHandler)}
}

func TestPackAndOpen(t *testing.T) {
	t.Parallel()

	path, packed := packFixture(t)
	require.Len(t, packed.Entries, 3)
	require.Equal(t, 1, packed.CompressedEntries)

	a, err := gamearc.NewRegistry(NewProbe()).Open(t.Context(), path, quietOptions())
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	require.Equal(t, "pbo", a.Probe())
	require.Equal(t, 3, a.Len())

	names := make([]string, 0, a.Len())
	for _, r := range a.Resources() {
		names = append(names, r.Name)
	}
	require.Equal(t, []string{"config.cpp", "data/icon.paa", "scripts/init.c"}, names)

	cfg, _, err := a.Find("config.cpp")
	require.NoError(t, err)
	require.Equal(t, gamearc.CodecLZSS, cfg.Codec)
	require.Less(t, cfg.Length, cfg.DecompressedLength)

	mime, _ := cfg.Properties.String(PropertyMime)
	require.Equal(t, "Cprs", mime)
	prefix, _ := cfg.Properties.String(PropertyPrefix)
	require.Equal(t, `my\mod`, prefix)
	ts, ok := cfg.Properties.Int(PropertyTimestamp)
	require.True(t, ok)
	require.Equal(t, int64(1_700_000_000), ts)

	got, err := a.ReadResource("config.cpp")
	require.NoError(t, err)
	require.Equal(t, configText, got)

	got, err = a.ReadResource(`scripts\init.c`)
	require.NoError(t, err)
	require.Equal(t, []byte("void main() {}"), got)
}

func TestReadIndexHeadersAndTrailer(t *testing.T) {
	t.Parallel()

	path, _ := packFixture(t)
	src, err := gamearc.OpenSource(path)
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	ix, err := ReadIndex(src, src.Bounds(), ReaderOptions{})
	require.NoError(t, err)
	require.Equal(t, []HeaderPair{{Key: "prefix", Value: `my\mod`}, {Key: "product", Value: "dayz"}}, ix.Headers)
	require.Equal(t, `my\mod`, ix.Prefix())
	require.True(t, ix.HasTrailer)
	require.Equal(t, src.Size()-TrailerSize, ix.DataEnd)
	require.NoError(t, VerifyTrailer(src, src.Size(), ix))
}

func TestVerifyTrailerDetectsCorruption(t *testing.T) {
	t.Parallel()

	path, packed := packFixture(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	last := packed.Entries[len(packed.Entries)-1]
	data[last.Offset] ^= 0xFF
	corrupt := filepath.Join(t.TempDir(), "corrupt.pbo")
	require.NoError(t, os.WriteFile(corrupt, data, 0o600))

	strict := &Probe{Reader: ReaderOptions{VerifyTrailer: true}}
	_, err = gamearc.NewRegistry(strict).Open(t.Context(), corrupt, quietOptions())
	require.ErrorIs(t, err, ErrTrailerMismatch)

	// Without verification corruption stays invisible to directory building.
	a, err := gamearc.NewRegistry(NewProbe()).Open(t.Context(), corrupt, quietOptions())
	require.NoError(t, err)
	require.NoError(t, a.Close())
}

func TestScore(t *testing.T) {
	t.Parallel()

	path, _ := packFixture(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	in, err := gamearc.NewInput(gamearc.NewBytesSource("mod.pbo", data))
	require.NoError(t, err)
	full := gamearc.ScoreExtension + gamearc.ScoreMagic + 3*gamearc.ScorePlausibleField
	require.Equal(t, full, NewProbe().Score(in))

	renamed, err := gamearc.NewInput(gamearc.NewBytesSource("mod.bin", data))
	require.NoError(t, err)
	require.Equal(t, full-gamearc.ScoreExtension, NewProbe().Score(renamed))

	empty, err := gamearc.NewInput(gamearc.NewBytesSource("empty.pbo", nil))
	require.NoError(t, err)
	require.Equal(t, gamearc.ScoreExtension, NewProbe().Score(empty))
}

func TestTruncatedIndexRejected(t *testing.T) {
	t.Parallel()

	path, _ := packFixture(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	testCases := []struct {
		name string
		data []byte
	}{
		{name: "header only", data: data[:HeaderSize]},
		{name: "cut inside table", data: data[:HeaderSize+40]},
		{name: "bad vers", data: append([]byte{0, 'X', 'X', 'X', 'X'}, data[5:]...)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			src := gamearc.NewBytesSource("broken.pbo", tc.data)
			_, err := ReadIndex(src, src.Bounds(), ReaderOptions{})
			require.ErrorIs(t, err, gamearc.ErrValidation)
		})
	}
}

func TestPayloadPastEndRejected(t *testing.T) {
	t.Parallel()

	// One entry declaring 100 bytes with only 4 present.
	var buf bytes.Buffer
	var header [HeaderSize]byte
	binary.LittleEndian.PutUint32(header[1:5], uint32(MimeHeader))
	buf.Write(header[:])
	buf.WriteByte(0)
	buf.WriteString("a.txt\x00")
	var fields [RecordFieldsSize]byte
	binary.LittleEndian.PutUint32(fields[16:20], 100)
	buf.Write(fields[:])
	buf.WriteByte(0)
	buf.Write(make([]byte, RecordFieldsSize))
	buf.WriteString("data")

	src := gamearc.NewBytesSource("short.pbo", buf.Bytes())
	_, err := ReadIndex(src, src.Bounds(), ReaderOptions{})
	require.ErrorIs(t, err, gamearc.ErrValidation)
	require.ErrorIs(t, err, ErrInvalidEntryOffset)
}

func TestAssignStoredOffsets(t *testing.T) {
	t.Parallel()

	const dataStart = 100

	entries := []Entry{{Path: "a", Offset: 0, DataSize: 10}, {Path: "b", Offset: 10, DataSize: 5}}
	used, err := tryAssignStoredOffsets(entries, dataStart, 200)
	require.NoError(t, err)
	require.True(t, used)
	require.Equal(t, uint32(100), entries[0].Offset)
	require.Equal(t, uint32(110), entries[1].Offset)

	absolute := []Entry{{Path: "a", Offset: 120, DataSize: 10}, {Path: "b", Offset: 150, DataSize: 5}}
	used, err = tryAssignStoredOffsets(absolute, dataStart, 200)
	require.NoError(t, err)
	require.True(t, used)
	require.Equal(t, uint32(120), absolute[0].Offset)

	broken := []Entry{{Path: "a", Offset: 150, DataSize: 10}, {Path: "b", Offset: 120, DataSize: 5}}
	_, err = tryAssignStoredOffsets(broken, dataStart, 200)
	require.Error(t, err)
	require.Equal(t, uint32(150), broken[0].Offset)

	err = resolveEntryOffsets(broken, dataStart, 200, OffsetModeStoredStrict)
	require.ErrorIs(t, err, ErrInvalidEntryOffset)

	compat := []Entry{{Path: "a", Offset: 150, DataSize: 10}, {Path: "b", Offset: 120, DataSize: 5}}
	require.NoError(t, resolveEntryOffsets(compat, dataStart, 200, OffsetModeStoredCompat))
	require.Equal(t, uint32(100), compat[0].Offset)
	require.Equal(t, uint32(110), compat[1].Offset)
}

func TestJunkFilter(t *testing.T) {
	t.Parallel()

	entries := filterJunkEntries([]Entry{
		{Path: "empty.txt"},
		{Path: "bad.bin", DataSize: 4, MimeType: MimeCompress},
		{Path: "  ", DataSize: 4},
		{Path: "ok.txt", DataSize: 4},
	})
	require.Len(t, entries, 1)
	require.Equal(t, "ok.txt", entries[0].Path)
}

func TestPackRejectsDuplicatesAndEmpty(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	ws := &seekBuffer{buf: &out}

	_, err := Pack(t.Context(), ws, nil, PackOptions{})
	require.ErrorIs(t, err, ErrEmptyInputs)

	_, err = Pack(t.Context(), ws, []Input{
		BytesInput("Dup.txt", []byte("a")),
		BytesInput(`dup.TXT`, []byte("b")),
	}, PackOptions{})
	require.ErrorIs(t, err, ErrDuplicateEntryPath)
}

func TestRepackSARCIntoPBO(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sarcPath := filepath.Join(dir, "assets.sarc")
	_, err := sarc.WriteFile(sarcPath, []sarc.File{
		{Name: "textures/a.bin", Data: bytes.Repeat([]byte{7}, 2048), Codec: gamearc.CodecZstd},
		{Name: "readme.txt", Data: []byte("hello")},
	}, sarc.WriteOptions{})
	require.NoError(t, err)

	registry := gamearc.NewRegistry(sarc.NewProbe(), NewProbe())
	src, err := registry.Open(t.Context(), sarcPath, quietOptions())
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	pboPath := filepath.Join(dir, "assets.pbo")
	_, err = PackFile(t.Context(), pboPath, InputsFromArchive(src), PackOptions{
		Compress: []pathrules.Rule{{Action: pathrules.ActionInclude, Pattern: "textures/"}},
	})
	require.NoError(t, err)

	dst, err := registry.Open(t.Context(), pboPath, quietOptions())
	require.NoError(t, err)
	defer func() { _ = dst.Close() }()

	require.Equal(t, "pbo", dst.Probe())
	got, err := dst.ReadResource("textures/a.bin")
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{7}, 2048), got)

	tex, _, err := dst.Find("textures/a.bin")
	require.NoError(t, err)
	require.Equal(t, gamearc.CodecLZSS, tex.Codec)
}

// seekBuffer is minimal in-memory io.WriteSeeker.
type seekBuffer struct {
	buf *bytes.Buffer
	pos int64
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	b := s.buf.Bytes()
	end := s.pos + int64(len(p))
	if end > int64(len(b)) {
		s.buf.Write(make([]byte, end-int64(len(b))))
		b = s.buf.Bytes()
	}

	copy(b[s.pos:end], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		s.pos = offset
	case 1:
		s.pos += offset
	case 2:
		s.pos = int64(s.buf.Len()) + offset
	}

	return s.pos, nil
}

func TestScoreIgnoresPayloadBytes(t *testing.T) {
	t.Parallel()

	// Raw entry pushes payload past the sniffed header window.
	path := filepath.Join(t.TempDir(), "big.pbo")
	_, err := PackFile(t.Context(), path, []Input{
		BytesInput("config.cpp", configText),
		BytesInput("data/noise.bin", bytes.Repeat([]byte{0xA5}, 2*gamearc.DefaultSniffSize)),
	}, PackOptions{})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), gamearc.DefaultSniffSize)

	in, err := gamearc.NewInput(gamearc.NewBytesSource("big.pbo", data))
	require.NoError(t, err)
	want := NewProbe().Score(in)
	require.Equal(t, gamearc.ScoreExtension+gamearc.ScoreMagic+3*gamearc.ScorePlausibleField, want)

	rng := rand.New(rand.NewSource(17))
	for trial := range 32 {
		scrambled := bytes.Clone(data)
		_, _ = rng.Read(scrambled[gamearc.DefaultSniffSize:])

		in, err := gamearc.NewInput(gamearc.NewBytesSource("big.pbo", scrambled))
		require.NoError(t, err)
		require.Equal(t, want, NewProbe().Score(in), "trial %d", trial)
	}
}
