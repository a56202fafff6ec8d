// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import (
	"errors"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "slash", in: "/", want: ""},
		{name: "clean", in: "levels/forest/map.dat", want: "levels/forest/map.dat"},
		{name: "windows", in: `.\levels\forest\`, want: "levels/forest"},
		{name: "dot segments", in: "./a/../b//c.txt", want: "b/c.txt"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := NormalizePath(tc.in)
			if got != tc.want {
				t.Fatalf("NormalizePath(%q)=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestHasPathPrefix(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		path   string
		prefix string
		want   bool
	}{
		{name: "empty prefix", path: "a/b", prefix: "", want: true},
		{name: "exact", path: `sound\music.ogg`, prefix: "sound/music.ogg", want: true},
		{name: "nested", path: `sound\music\a.ogg`, prefix: "sound", want: true},
		{name: "sibling name", path: "soundtrack/a.ogg", prefix: "sound", want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := HasPathPrefix(tc.path, tc.prefix); got != tc.want {
				t.Fatalf("HasPathPrefix(%q, %q)=%v, want %v", tc.path, tc.prefix, got, tc.want)
			}
		})
	}
}

func TestNormalizeExtractPath(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		got, err := normalizeExtractPath(`.\textures/ui\icon.png`)
		if err != nil {
			t.Fatalf("normalizeExtractPath: %v", err)
		}
		if got != "textures/ui/icon.png" {
			t.Fatalf("normalizeExtractPath=%q", got)
		}
	})

	for _, in := range []string{"", "/abs", `\abs`, "C:/x", "a/../../b", "a\x00b"} {
		t.Run("invalid "+in, func(t *testing.T) {
			t.Parallel()

			_, err := normalizeExtractPath(in)
			if !errors.Is(err, ErrInvalidExtractPath) {
				t.Fatalf("expected ErrInvalidExtractPath for %q, got %v", in, err)
			}
		})
	}
}
