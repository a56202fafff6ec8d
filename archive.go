// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Archive is a classified container with its immutable resource directory.
type Archive struct {
	// source is primary container source.
	source *Source
	// ectx holds codecs, logger, and derived sources such as decompressed siblings.
	ectx *ExtractionContext
	// probe is name of probe that built directory.
	probe string
	// resources are in container order.
	resources []*Resource
	// score is winning probe score.
	score int
	// mu guards closed state.
	mu sync.Mutex
	// ownsSource reports whether Close closes source.
	ownsSource bool
	// closed reports whether Close was already called.
	closed bool
}

// Open classifies container at path with registry and builds its directory.
func Open(ctx context.Context, registry *Registry, path string, opts OpenOptions) (*Archive, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: nil registry", ErrNoProbe)
	}

	return registry.Open(ctx, path, opts)
}

// Probe returns name of format probe that built directory.
func (a *Archive) Probe() string {
	return a.probe
}

// Score returns winning probe score.
func (a *Archive) Score() int {
	return a.score
}

// Source returns primary container source.
func (a *Archive) Source() *Source {
	return a.source
}

// Path returns primary container path.
func (a *Archive) Path() string {
	return a.source.Path()
}

// Codecs returns codec table used to materialize resources.
func (a *Archive) Codecs() *CodecRegistry {
	return a.ectx.Codecs
}

// Len returns number of resources.
func (a *Archive) Len() int {
	return len(a.resources)
}

// Resources returns copy of resource directory.
func (a *Archive) Resources() []*Resource {
	out := make([]*Resource, len(a.resources))
	copy(out, a.resources)
	return out
}

// Resource returns resource by directory index.
func (a *Archive) Resource(index int) (*Resource, error) {
	if index < 0 || index >= len(a.resources) {
		return nil, fmt.Errorf("%w: index %d", ErrResourceNotFound, index)
	}

	return a.resources[index], nil
}

// Find resolves resource by normalized name and returns it with its index.
// Exact match wins; otherwise first case-insensitive match is returned.
func (a *Archive) Find(name string) (*Resource, int, error) {
	lookup := NormalizePath(name)
	folded := -1
	for i, res := range a.resources {
		candidate := NormalizePath(res.Name)
		if candidate == lookup {
			return res, i, nil
		}
		if folded < 0 && strings.EqualFold(candidate, lookup) {
			folded = i
		}
	}

	if folded >= 0 {
		return a.resources[folded], folded, nil
	}

	return nil, -1, fmt.Errorf("%w: %s", ErrResourceNotFound, name)
}

// OpenResource opens decompressed stream of resource by index.
func (a *Archive) OpenResource(index int) (io.ReadCloser, error) {
	if a.isClosed() {
		return nil, ErrClosed
	}

	res, err := a.Resource(index)
	if err != nil {
		return nil, err
	}

	rc, err := res.Open(a.ectx.Codecs)
	if err != nil {
		return nil, &ResourceError{Index: index, Name: res.Name, Err: err}
	}

	return rc, nil
}

// OpenNamed opens decompressed stream of resource by name.
func (a *Archive) OpenNamed(name string) (io.ReadCloser, error) {
	_, index, err := a.Find(name)
	if err != nil {
		return nil, err
	}

	return a.OpenResource(index)
}

// ReadResource reads full decompressed payload of named resource.
func (a *Archive) ReadResource(name string) ([]byte, error) {
	if a.isClosed() {
		return nil, ErrClosed
	}

	res, index, err := a.Find(name)
	if err != nil {
		return nil, err
	}

	data, err := res.ReadAll(a.ectx.Codecs)
	if err != nil {
		return nil, &ResourceError{Index: index, Name: res.Name, Err: err}
	}

	return data, nil
}

// Close releases derived sources and primary source when archive owns it.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}

	a.closed = true
	errs := []error{a.ectx.close()}
	if a.ownsSource {
		errs = append(errs, a.source.Close())
	}

	return errors.Join(errs...)
}

// isClosed reports closed state under lock.
func (a *Archive) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}
