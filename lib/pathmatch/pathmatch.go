// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package pathmatch matches root relative paths against listener glob
// patterns, caching the compiled form.
//
// Patterns support *, **, ?, character classes and {a,b} alternatives. A
// pattern without a slash is matched against the base name of the path; a
// pattern with one is matched against the whole root relative path. The
// empty pattern matches everything.
package pathmatch

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 1024

// Matcher is safe for concurrent use.
type Matcher struct {
	compiled *lru.Cache[string, glob.Glob]
}

func New(size int) *Matcher {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, glob.Glob](size)
	if err != nil {
		// Only returned for non-positive sizes.
		panic(err)
	}
	return &Matcher{compiled: cache}
}

// Match reports whether rel, a slash separated path relative to the watch
// root, matches pattern.
func (m *Matcher) Match(pattern, rel string) (bool, error) {
	pattern = normalize(pattern)
	g, err := m.compile(pattern)
	if err != nil {
		return false, err
	}
	if !strings.Contains(pattern, "/") {
		rel = path.Base(rel)
	}
	return g.Match(rel), nil
}

func (m *Matcher) compile(pattern string) (glob.Glob, error) {
	if g, ok := m.compiled.Get(pattern); ok {
		return g, nil
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	m.compiled.Add(pattern, g)
	return g, nil
}

// Len returns the number of cached compiled patterns.
func (m *Matcher) Len() int {
	return m.compiled.Len()
}

// Validate returns an error if pattern does not compile.
func Validate(pattern string) error {
	if _, err := glob.Compile(normalize(pattern), '/'); err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return nil
}

func normalize(pattern string) string {
	pattern = strings.TrimPrefix(strings.ReplaceAll(pattern, `\`, "/"), "/")
	if pattern == "" {
		return "**"
	}
	return pattern
}
