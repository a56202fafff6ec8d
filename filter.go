// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package gamearc

import (
	"fmt"

	"github.com/woozymasta/pathrules"
)

// ResourceFilter selects resources for listing and extraction. Zero value selects all.
type ResourceFilter struct {
	// Rules are ordered include/exclude path rules.
	Rules []pathrules.Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
	// MatcherOptions control rule matching; zero value means case-insensitive with include default.
	MatcherOptions pathrules.MatcherOptions `json:"matcher_options,omitzero" yaml:"matcher_options,omitzero"`
	// Prefix keeps only resources under this path.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	// MinSize drops resources with smaller decompressed size.
	MinSize int64 `json:"min_size,omitempty" yaml:"min_size,omitempty"`
	// ASCIIOnly drops resources with non-ASCII names.
	ASCIIOnly bool `json:"ascii_only,omitempty" yaml:"ascii_only,omitempty"`
}

// IncludeRules builds include rules from patterns.
func IncludeRules(patterns ...string) []pathrules.Rule {
	return actionRules(pathrules.ActionInclude, patterns)
}

// ExcludeRules builds exclude rules from patterns.
func ExcludeRules(patterns ...string) []pathrules.Rule {
	return actionRules(pathrules.ActionExclude, patterns)
}

// NewResourceFilter builds filter from include and exclude pattern lists.
// With includes present, unmatched resources are excluded; excludes are applied after includes.
func NewResourceFilter(include []string, exclude []string) ResourceFilter {
	def := pathrules.ActionInclude
	if len(include) > 0 {
		def = pathrules.ActionExclude
	}

	rules := append(IncludeRules(include...), ExcludeRules(exclude...)...)
	return ResourceFilter{
		Rules: rules,
		MatcherOptions: pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   def,
		},
	}
}

// actionRules builds rules with one action.
func actionRules(action pathrules.Action, patterns []string) []pathrules.Rule {
	out := make([]pathrules.Rule, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, pathrules.Rule{Action: action, Pattern: p})
	}

	return out
}

// resourceMatcher holds compiled path rules.
type resourceMatcher struct {
	matcher *pathrules.Matcher
}

// newResourceMatcher compiles filter path rules. Nil matcher means no rules.
func newResourceMatcher(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*resourceMatcher, error) {
	rules = normalizeRules(rules)
	if len(rules) == 0 {
		return nil, nil
	}

	if opts == (pathrules.MatcherOptions{}) {
		opts = pathrules.MatcherOptions{CaseInsensitive: true, DefaultAction: pathrules.ActionInclude}
	}
	if opts.DefaultAction == pathrules.ActionUnknown {
		opts.DefaultAction = pathrules.ActionInclude
	}

	matcher, err := pathrules.NewMatcher(rules, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidFilterRules, err)
	}

	return &resourceMatcher{matcher: matcher}, nil
}

// normalizeRules normalizes rule patterns and drops empty patterns.
func normalizeRules(rules []pathrules.Rule) []pathrules.Rule {
	normalized := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern := normalizePathForMatching(rule.Pattern)
		if pattern == "" {
			continue
		}

		normalized = append(normalized, pathrules.Rule{
			Action:  rule.Action,
			Pattern: pattern,
		})
	}

	return normalized
}

// Match reports whether name is selected by rules.
func (m *resourceMatcher) Match(name string) bool {
	if m == nil || m.matcher == nil {
		return true
	}

	candidate := NormalizePath(name)
	if candidate == "" {
		return false
	}

	return m.matcher.Included(candidate, false)
}

// FilterResources returns resources passing filter, preserving order.
func FilterResources(resources []*Resource, filter ResourceFilter) ([]*Resource, error) {
	matcher, err := newResourceMatcher(filter.Rules, filter.MatcherOptions)
	if err != nil {
		return nil, err
	}

	out := make([]*Resource, 0, len(resources))
	for _, res := range resources {
		if !filter.selects(res, matcher) {
			continue
		}

		out = append(out, res)
	}

	return out, nil
}

// selects reports whether one resource passes every filter criterion.
func (f ResourceFilter) selects(res *Resource, matcher *resourceMatcher) bool {
	if res.DecompressedLength < f.MinSize {
		return false
	}
	if f.ASCIIOnly && !isASCIIOnly(res.Name) {
		return false
	}
	if !HasPathPrefix(res.Name, f.Prefix) {
		return false
	}

	return matcher.Match(res.Name)
}

// isASCIIOnly reports whether value contains only ASCII bytes.
func isASCIIOnly(value string) bool {
	for idx := 0; idx < len(value); idx++ {
		if value[idx] >= 0x80 {
			return false
		}
	}

	return true
}
