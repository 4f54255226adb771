// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package slug provides URL-friendly slug generation for hierarchy nodes.
package slug

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxAttempts bounds the number of suffixes Unique probes before giving up.
const MaxAttempts = 1000

// fallback is used when a name normalizes to nothing (e.g. "!!!").
const fallback = "node"

// ErrExhausted is returned by Unique when every candidate up to MaxAttempts
// is already taken.
var ErrExhausted = errors.New("slug: no free candidate")

var (
	// disallowed matches anything that isn't a letter, digit, whitespace,
	// underscore or hyphen.
	disallowed = regexp.MustCompile(`[^a-z0-9\s_-]`)
	// separators collapses runs of whitespace, underscores and hyphens.
	separators = regexp.MustCompile(`[\s_-]+`)
	// valid is the canonical slug shape.
	valid = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

// ExistsFunc reports whether a candidate slug is already in use.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// Generate creates a URL-friendly slug from the given name.
// Example: "Chocolate con Leche!!" → "chocolate-con-leche"
func Generate(s string) string {
	result := strings.ToLower(s)
	result = disallowed.ReplaceAllString(result, "")
	result = separators.ReplaceAllString(result, "-")
	result = strings.Trim(result, "-")
	return result
}

// IsValid reports whether s is already a canonical slug.
func IsValid(s string) bool {
	return valid.MatchString(s)
}

// Unique normalizes name and probes exists until it finds a free slug,
// appending -1, -2, ... on collision.
func Unique(ctx context.Context, name string, exists ExistsFunc) (string, error) {
	base := Generate(name)
	if base == "" {
		base = fallback
	}

	candidate := base
	for i := 1; i <= MaxAttempts; i++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("slug exists check %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return "", fmt.Errorf("%w: %q after %d attempts", ErrExhausted, base, MaxAttempts)
}
