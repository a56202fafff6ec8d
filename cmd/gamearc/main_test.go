// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/woozymasta/gamearc"
	"github.com/woozymasta/gamearc/formats/sarc"
)

var fixtureFiles = map[string][]byte{
	"readme.txt":         []byte("hello archive\n"),
	"textures/grass.dds": bytes.Repeat([]byte("DDS grass texel "), 256),
	"scripts/init.c":     []byte("void main() {}\n"),
}

// writeFixture packs fixtureFiles into a SARC container.
func writeFixture(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bundle.sarc")
	_, err := sarc.WriteFile(path, []sarc.File{
		{Name: "readme.txt", Data: fixtureFiles["readme.txt"], Codec: gamearc.CodecNone},
		{Name: "textures/grass.dds", Data: fixtureFiles["textures/grass.dds"], Codec: gamearc.CodecZstd},
		{Name: "scripts/init.c", Data: fixtureFiles["scripts/init.c"], Codec: gamearc.CodecZlib},
	}, sarc.WriteOptions{})
	require.NoError(t, err)

	return path
}

// run executes CLI with args; tests using it are not parallel since logging replaces slog default.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	t.Setenv("HOME", t.TempDir())

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--log-level", "error", "--no-color"}, args...))

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestDetect(t *testing.T) {
	path := writeFixture(t)

	out, err := run(t, "detect", path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	require.Contains(t, lines[0], "PROBE")
	require.Contains(t, lines[1], "sarc")
	require.True(t, strings.HasSuffix(strings.TrimSpace(lines[1]), "*"))
}

func TestListJSON(t *testing.T) {
	path := writeFixture(t)

	out, err := run(t, "list", "--format", "json", path)
	require.NoError(t, err)

	var got listing
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, "sarc", got.Probe)
	require.Len(t, got.Resources, 3)
	require.Equal(t, "textures/grass.dds", got.Resources[1].Name)
	require.Equal(t, []gamearc.CodecKind{gamearc.CodecZstd}, got.Resources[1].Codecs)
	require.Equal(t, int64(len(fixtureFiles["textures/grass.dds"])), got.Resources[1].Size)
}

func TestListYAMLFiltered(t *testing.T) {
	path := writeFixture(t)

	out, err := run(t, "list", "--format", "yaml", "--include", "scripts/", path)
	require.NoError(t, err)

	var got listing
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	require.Len(t, got.Resources, 1)
	require.Equal(t, "scripts/init.c", got.Resources[0].Name)
	require.Equal(t, 2, got.Resources[0].Index)
}

func TestListTable(t *testing.T) {
	path := writeFixture(t)

	out, err := run(t, "list", path)
	require.NoError(t, err)
	require.Contains(t, out, "textures/grass.dds")
	require.Contains(t, out, "3 resources")
}

func TestListUnknownFormat(t *testing.T) {
	path := writeFixture(t)

	_, err := run(t, "list", "--format", "xml", path)
	require.Error(t, err)
}

func TestExtractWithManifest(t *testing.T) {
	path := writeFixture(t)
	dst := filepath.Join(t.TempDir(), "out")
	manifestPath := filepath.Join(t.TempDir(), "manifest.yaml")

	_, err := run(t, "extract", "-o", dst, "--manifest", manifestPath, "-j", "2", path)
	require.NoError(t, err)

	for name, want := range fixtureFiles {
		got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(name)))
		require.NoError(t, err, name)
		require.Equal(t, want, got, name)
	}

	data, err := os.ReadFile(manifestPath)
	require.NoError(t, err)

	var m manifest
	require.NoError(t, yaml.Unmarshal(data, &m))
	require.Equal(t, "sarc", m.Probe)
	require.Len(t, m.Files, 3)
	require.Empty(t, m.Failures)
	for i, f := range m.Files {
		require.Equal(t, i, f.Index)
		require.Equal(t, digest(fixtureFiles[f.Name]), f.BLAKE3, f.Name)
	}
}

func TestExtractExclude(t *testing.T) {
	path := writeFixture(t)
	dst := t.TempDir()

	_, err := run(t, "extract", "-o", dst, "--exclude", "*.dds", path)
	require.NoError(t, err)

	require.FileExists(t, filepath.Join(dst, "readme.txt"))
	require.FileExists(t, filepath.Join(dst, "scripts", "init.c"))
	require.NoFileExists(t, filepath.Join(dst, "textures", "grass.dds"))
}

func TestExtractConfigFile(t *testing.T) {
	path := writeFixture(t)
	dst := filepath.Join(t.TempDir(), "from-config")

	cfgPath := filepath.Join(t.TempDir(), "gamearc.toml")
	content := "[extract]\noutput = \"" + filepath.ToSlash(dst) + "\"\ninclude = [\"readme.txt\"]\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	_, err := run(t, "--config", cfgPath, "extract", path)
	require.NoError(t, err)

	entries, err := os.ReadDir(dst)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "readme.txt", entries[0].Name())
}

func TestExtractUnknownArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noise.bin")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))

	_, err := run(t, "extract", "-o", t.TempDir(), path)
	require.ErrorIs(t, err, gamearc.ErrNoProbe)
}

func TestInvalidConfigRejected(t *testing.T) {
	path := writeFixture(t)

	_, err := run(t, "--pbo-offset-mode", "guess", "list", path)
	require.Error(t, err)
}

func TestConvertRoundTrip(t *testing.T) {
	testCases := []struct {
		format string
		ext    string
		args   []string
	}{
		{format: "pbo", ext: ".pbo", args: []string{"--compress", "*.dds"}},
		{format: "blk", ext: ".blk", args: []string{"--codec", "zlib", "--block-size", "1024"}},
		{format: "sarc", ext: ".sarc", args: []string{"--codec", "lz4frame"}},
	}

	for _, tc := range testCases {
		t.Run(tc.format, func(t *testing.T) {
			src := writeFixture(t)
			out := filepath.Join(t.TempDir(), "converted"+tc.ext)

			args := append([]string{"convert", "--format", tc.format}, tc.args...)
			_, err := run(t, append(args, src, out)...)
			require.NoError(t, err)

			listed, err := run(t, "list", "--format", "json", out)
			require.NoError(t, err)

			var got listing
			require.NoError(t, json.Unmarshal([]byte(listed), &got))
			require.Equal(t, tc.format, got.Probe)
			require.Len(t, got.Resources, len(fixtureFiles))

			dst := t.TempDir()
			_, err = run(t, "extract", "-o", dst, out)
			require.NoError(t, err)
			for name, want := range fixtureFiles {
				data, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(name)))
				require.NoError(t, err, name)
				require.Equal(t, want, data, name)
			}
		})
	}
}
