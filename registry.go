// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// DefaultMinScore is lowest score at which a probe is asked to build a directory.
const DefaultMinScore = 1

// Candidate is a probe ranked for one input.
type Candidate struct {
	// Probe is scored format strategy.
	Probe FormatProbe
	// Score is SafeScore result.
	Score int
	// Order is registration index used to break ties.
	Order int
}

// Name returns probe name.
func (c Candidate) Name() string {
	if c.Probe == nil {
		return ""
	}

	return c.Probe.Name()
}

// Registry holds format probes in registration order.
type Registry struct {
	probes []FormatProbe
	mu     sync.RWMutex
}

// NewRegistry returns registry with probes registered in given order.
func NewRegistry(probes ...FormatProbe) *Registry {
	r := &Registry{}
	r.Register(probes...)
	return r
}

// Register appends probes. Earlier registration wins score ties.
func (r *Registry) Register(probes ...FormatProbe) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range probes {
		if p != nil {
			r.probes = append(r.probes, p)
		}
	}
}

// Probes returns registered probes in registration order.
func (r *Registry) Probes() []FormatProbe {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]FormatProbe, len(r.probes))
	copy(out, r.probes)
	return out
}

// Rank scores every probe against input: highest score first, ties by registration order.
func (r *Registry) Rank(in *Input) []Candidate {
	probes := r.Probes()
	out := make([]Candidate, len(probes))
	for i, p := range probes {
		out[i] = Candidate{Probe: p, Score: SafeScore(p, in), Order: i}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	return out
}

// Select returns best candidate with positive score.
func (r *Registry) Select(in *Input) (Candidate, error) {
	ranked := r.Rank(in)
	if len(ranked) == 0 || ranked[0].Score <= 0 {
		return Candidate{}, fmt.Errorf("%w: %s", ErrNoProbe, in.Path)
	}

	return ranked[0], nil
}

// OpenOptions configures Registry.Open.
type OpenOptions struct {
	// Logger receives probe diagnostics; defaults to slog.Default.
	Logger *slog.Logger
	// Codecs resolves codec kinds; defaults to DefaultCodecs.
	Codecs *CodecRegistry
	// Cache materializes whole-archive compressed inputs; defaults to new ArchiveCache.
	Cache *ArchiveCache
	// MinScore skips candidates scoring lower; defaults to DefaultMinScore.
	MinScore int
	// DisableFallback stops after first candidate fails instead of trying next one.
	DisableFallback bool
}

// applyDefaults fills zero-value fields.
func (o *OpenOptions) applyDefaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Codecs == nil {
		o.Codecs = DefaultCodecs()
	}
	if o.Cache == nil {
		o.Cache = NewArchiveCache(WithCacheCodecs(o.Codecs), WithCacheLogger(o.Logger))
	}
	if o.MinScore <= 0 {
		o.MinScore = DefaultMinScore
	}
}

// Open opens container by path, classifies it, and builds its directory.
func (r *Registry) Open(ctx context.Context, path string, opts OpenOptions) (*Archive, error) {
	src, err := OpenSource(path)
	if err != nil {
		return nil, err
	}

	a, err := r.OpenSource(ctx, src, opts)
	if err != nil {
		_ = src.Close()
		return nil, err
	}

	a.ownsSource = true
	return a, nil
}

// OpenSource classifies existing source and builds its directory. Source stays owned by caller.
func (r *Registry) OpenSource(ctx context.Context, src *Source, opts OpenOptions) (*Archive, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	opts.applyDefaults()

	in, err := NewInput(src)
	if err != nil {
		return nil, err
	}

	ranked := r.Rank(in)
	logger := opts.Logger.With(slog.String("path", in.Path))

	var errs []error
	for _, cand := range ranked {
		if cand.Score < opts.MinScore {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ectx := newExtractionContext(ctx, opts.Logger, opts.Codecs, opts.Cache)
		resources, err := buildWithProbe(ectx, cand.Probe, in)
		if err == nil {
			err = verifyDirectory(resources)
		}
		if err != nil {
			_ = ectx.close()
			logger.Warn("probe rejected input",
				slog.String("probe", cand.Name()),
				slog.Int("score", cand.Score),
				slog.Any("error", err),
			)

			// No directory can be parsed without the side-file.
			if errors.Is(err, ErrCacheWrite) {
				return nil, fmt.Errorf("%s: %w", cand.Name(), err)
			}

			errs = append(errs, fmt.Errorf("%s: %w", cand.Name(), err))
			if opts.DisableFallback {
				break
			}
			continue
		}

		logger.Debug("classified input",
			slog.String("probe", cand.Name()),
			slog.Int("score", cand.Score),
			slog.Int("resources", len(resources)),
		)

		return &Archive{
			source:    src,
			ectx:      ectx,
			probe:     cand.Name(),
			score:     cand.Score,
			resources: resources,
		}, nil
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoProbe, in.Path)
	}

	return nil, fmt.Errorf("%w: %w", ErrProbeFailed, errors.Join(errs...))
}

// buildWithProbe runs BuildDirectory, converting panics into errors.
func buildWithProbe(ectx *ExtractionContext, p FormatProbe, in *Input) (resources []*Resource, err error) {
	defer func() {
		if v := recover(); v != nil {
			resources = nil
			err = fmt.Errorf("%w: probe panicked: %v", ErrValidation, v)
		}
	}()

	return p.BuildDirectory(ectx, in)
}

// verifyDirectory rechecks that every resource range fits its own source.
func verifyDirectory(resources []*Resource) error {
	for i, res := range resources {
		if res == nil || res.Source == nil {
			return &ResourceError{Index: i, Err: ErrNilSource}
		}

		bounds := res.Source.Bounds()
		if res.Plan != nil {
			if err := res.Plan.Validate(bounds, res.DecompressedLength); err != nil {
				return &ResourceError{Index: i, Name: res.Name, Err: err}
			}
			continue
		}
		if err := bounds.CheckRange(res.Offset, res.Length); err != nil {
			return &ResourceError{Index: i, Name: res.Name, Err: err}
		}
	}

	return nil
}
