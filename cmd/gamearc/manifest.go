// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/woozymasta/gamearc"
)

// manifest records what one extract run wrote.
type manifest struct {
	Created  time.Time         `yaml:"created"`
	Archive  string            `yaml:"archive"`
	Probe    string            `yaml:"probe"`
	Output   string            `yaml:"output"`
	Files    []manifestFile    `yaml:"files"`
	Failures []manifestFailure `yaml:"failures,omitempty"`
	Bytes    int64             `yaml:"bytes"`
}

type manifestFile struct {
	Name   string `yaml:"name"`
	Path   string `yaml:"path"`
	BLAKE3 string `yaml:"blake3"`
	Index  int    `yaml:"index"`
	Size   int64  `yaml:"size"`
}

type manifestFailure struct {
	Name  string `yaml:"name"`
	Error string `yaml:"error"`
	Index int    `yaml:"index"`
}

// manifestBuilder hashes files as extract workers finish them.
type manifestBuilder struct {
	digests map[string]string
	errs    []error
	mu      sync.Mutex
}

func newManifestBuilder() *manifestBuilder {
	return &manifestBuilder{digests: make(map[string]string)}
}

// add is an ExtractOptions.OnResourceDone callback.
func (b *manifestBuilder) add(res *gamearc.Resource, _ int64, outputPath string) {
	digest, err := hashFile(outputPath)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("hash %s: %w", res.Name, err))
		return
	}
	b.digests[filepath.Clean(outputPath)] = digest
}

// build assembles manifest in directory order.
func (b *manifestBuilder) build(archive *gamearc.Archive, dst string, report *gamearc.ExtractReport) (manifest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.errs) > 0 {
		return manifest{}, errors.Join(b.errs...)
	}

	root, err := filepath.Abs(dst)
	if err != nil {
		return manifest{}, fmt.Errorf("resolve output: %w", err)
	}

	m := manifest{
		Created: time.Now().UTC().Truncate(time.Second),
		Archive: archive.Path(),
		Probe:   archive.Probe(),
		Output:  dst,
		Bytes:   report.Bytes,
		Files:   make([]manifestFile, 0, len(report.Extracted)),
	}
	for _, e := range report.Extracted {
		m.Files = append(m.Files, manifestFile{
			Name:   e.Name,
			Path:   e.Path,
			Index:  e.Index,
			Size:   e.Size,
			BLAKE3: b.digests[filepath.Join(root, filepath.FromSlash(e.Path))],
		})
	}
	for _, f := range report.Failures {
		m.Failures = append(m.Failures, manifestFailure{Name: f.Name, Index: f.Index, Error: f.Err.Error()})
	}

	return m, nil
}

// hashFile returns hex BLAKE3-256 digest of file at path.
func hashFile(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path is an extract output
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeManifest encodes m as YAML at path.
func writeManifest(path string, m manifest) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create manifest directory: %w", err)
		}
	}

	f, err := os.Create(path) //nolint:gosec // operator-provided manifest path
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode manifest: %w", err)
	}

	return f.Close()
}
