// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import (
	"encoding/hex"
	"fmt"
	"path"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zeebo/blake3"
)

// maxSegmentLen bounds one written path segment in bytes.
const maxSegmentLen = 240

// forbiddenFileRunes cannot appear in a file name on Windows.
const forbiddenFileRunes = `<>:"/\|?*`

// windowsDevices holds device stems Windows resolves regardless of extension.
// COMn and LPTn are matched separately.
var windowsDevices = map[string]struct{}{
	"con":     {},
	"prn":     {},
	"aux":     {},
	"nul":     {},
	"clock$":  {},
	"conin$":  {},
	"conout$": {},
}

// SanitizePath rewrites one resource name to deterministic filesystem-safe slash-separated form.
func SanitizePath(name string) (string, error) {
	normalized := NormalizePath(name)
	if normalized == "" {
		return "", nil
	}

	sanitized := mapSegments(normalized, fileSegment)
	if _, err := normalizeExtractPath(sanitized); err != nil {
		return "", err
	}

	return sanitized, nil
}

// SanitizeDisplayName replaces control and format runes so names are safe for terminal output.
func SanitizeDisplayName(name string) string {
	return mapSegments(strings.ReplaceAll(name, `\`, `/`), displaySegment)
}

// sanitizeNames rewrites names to unique filesystem-safe relative paths.
// Output keeps input order; case-insensitive collisions get "~N" before the extension.
func sanitizeNames(names []string) ([]string, error) {
	claims := newNameClaims(len(names))
	out := make([]string, len(names))
	for i, name := range names {
		rel, err := normalizeExtractPath(name)
		if err != nil {
			// Traversal and absolute names are cleaned per segment instead.
			rel = strings.ReplaceAll(name, `\`, `/`)
		}

		sanitized := claims.claim(mapSegments(rel, fileSegment))
		if _, err := normalizeExtractPath(sanitized); err != nil {
			return nil, fmt.Errorf("sanitize path %s: %w", name, err)
		}

		out[i] = sanitized
	}

	return out, nil
}

// mapSegments applies segment to every non-empty part of slash path.
func mapSegments(rel string, segment func(string) string) string {
	var parts []string
	for part := range strings.SplitSeq(rel, "/") {
		part = strings.TrimSpace(part)
		if part == "" || part == "." {
			continue
		}

		parts = append(parts, segment(part))
	}
	if len(parts) == 0 {
		return "_"
	}

	return strings.Join(parts, "/")
}

// fileSegment makes one segment writable on Windows, macOS and Linux.
func fileSegment(seg string) string {
	seg = strings.TrimSpace(seg)
	device := isWindowsDevice(seg)

	seg = strings.TrimRight(strings.Map(replaceRune(isUnsafeFileRune), seg), ". ")
	if seg == "" {
		return "_"
	}
	if device || isWindowsDevice(seg) {
		seg = "_" + seg
	}

	return truncateSegment(seg, maxSegmentLen)
}

// displaySegment only neutralizes runes that could drive a terminal.
func displaySegment(seg string) string {
	if seg == ".." {
		return "_"
	}

	return strings.Map(replaceRune(isControlRune), seg)
}

// replaceRune returns strings.Map callback replacing matched runes with underscore.
func replaceRune(match func(rune) bool) func(rune) rune {
	return func(r rune) rune {
		if match(r) {
			return '_'
		}

		return r
	}
}

// isControlRune reports control, format and replacement runes.
func isControlRune(r rune) bool {
	return unicode.IsControl(r) || unicode.In(r, unicode.Cf) || r == utf8.RuneError
}

func isUnsafeFileRune(r rune) bool {
	return isControlRune(r) || strings.ContainsRune(forbiddenFileRunes, r)
}

// isWindowsDevice reports whether segment stem names a Windows device.
func isWindowsDevice(seg string) bool {
	stem := strings.ToLower(strings.TrimRight(strings.TrimSpace(seg), ". :"))
	if dot := strings.IndexByte(stem, '.'); dot >= 0 {
		stem = stem[:dot]
	}
	stem = strings.TrimRight(stem, " :")

	if _, ok := windowsDevices[stem]; ok {
		return true
	}
	if !strings.HasPrefix(stem, "com") && !strings.HasPrefix(stem, "lpt") {
		return false
	}

	switch stem[3:] {
	case "0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "¹", "²", "³":
		return true
	default:
		return false
	}
}

// truncateSegment cuts seg to limit bytes on rune boundary with digest tag.
func truncateSegment(seg string, limit int) string {
	if len(seg) <= limit {
		return seg
	}

	sum := blake3.Sum256([]byte(seg))
	tag := "~" + hex.EncodeToString(sum[:4])
	if limit <= len(tag) {
		return tag[:limit]
	}

	cut := limit - len(tag)
	for cut > 0 && !utf8.RuneStart(seg[cut]) {
		cut--
	}

	return seg[:cut] + tag
}

// nameClaims hands out case-insensitively unique paths in claim order.
type nameClaims struct {
	taken map[string]struct{}
	next  map[string]int
}

func newNameClaims(n int) *nameClaims {
	return &nameClaims{
		taken: make(map[string]struct{}, n),
		next:  make(map[string]int),
	}
}

// claim returns p or first free "~N" variant of it.
func (c *nameClaims) claim(p string) string {
	key := strings.ToLower(p)
	if _, ok := c.taken[key]; !ok {
		c.taken[key] = struct{}{}
		return p
	}

	dir, file := path.Split(p)
	ext := path.Ext(file)
	stem := strings.TrimSuffix(file, ext)
	if stem == "" {
		stem, ext = ext, ""
	}

	for n := max(c.next[key], 2); ; n++ {
		suffix := "~" + strconv.Itoa(n)
		short := truncateSegment(stem, max(maxSegmentLen-len(ext)-len(suffix), 1))
		candidate := dir + short + suffix + ext

		ck := strings.ToLower(candidate)
		if _, ok := c.taken[ck]; ok {
			continue
		}

		c.taken[ck] = struct{}{}
		c.next[key] = n + 1
		return candidate
	}
}
