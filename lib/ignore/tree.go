// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package ignore

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/srcwatch/srcwatch/lib/sync"
)

const defaultCacheDirs = 4096

// A Tree evaluates ignore files from a watch root down to the directory of
// a path. Parsed rules are cached per directory until invalidated.
type Tree struct {
	root     string
	fileName string
	global   *Rules
	rules    *lru.Cache[string, *Rules]

	excluded map[string]struct{}
	mut      sync.RWMutex
}

// NewTree returns a tree for root reading ignore files named fileName,
// which may be empty to only apply the global patterns. Invalid global
// patterns are reported but the valid ones still apply.
func NewTree(root, fileName string, global []string) (*Tree, error) {
	cache, err := lru.New[string, *Rules](defaultCacheDirs)
	if err != nil {
		panic(err)
	}
	t := &Tree{
		root:     filepath.Clean(root),
		fileName: fileName,
		rules:    cache,
		excluded: make(map[string]struct{}),
		mut:      sync.NewRWMutex(),
	}
	t.global, err = ParseLines(global)
	return t, err
}

func (t *Tree) Root() string {
	return t.root
}

// Exclude marks an absolute path as always ignored.
func (t *Tree) Exclude(path string) {
	t.mut.Lock()
	t.excluded[filepath.Clean(path)] = struct{}{}
	t.mut.Unlock()
}

func (t *Tree) isExcluded(path string) bool {
	t.mut.RLock()
	defer t.mut.RUnlock()
	if len(t.excluded) == 0 {
		return false
	}
	for p := path; ; {
		if _, ok := t.excluded[p]; ok {
			return true
		}
		if p == t.root {
			return false
		}
		parent := filepath.Dir(p)
		if parent == p {
			return false
		}
		p = parent
	}
}

// IsIgnoreFile reports whether path names an ignore file within the tree.
func (t *Tree) IsIgnoreFile(path string) bool {
	return t.fileName != "" && filepath.Base(path) == t.fileName
}

// Ignored reports whether the absolute path is excluded, either directly or
// because one of its parent directories is. Paths outside the root are
// never ignored.
func (t *Tree) Ignored(path string, isDir bool) bool {
	path = filepath.Clean(path)
	if t.isExcluded(path) {
		return true
	}

	rel, err := filepath.Rel(t.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")

	// Rules of directories between the root and the current component,
	// root first.
	dirs := []string{t.root}
	for i := range parts {
		last := i == len(parts)-1
		if t.ignoredBy(dirs, parts[:i+1], isDir || !last) {
			l.Debugf("%s ignored at %s", path, strings.Join(parts[:i+1], "/"))
			return true
		}
		if !last {
			dirs = append(dirs, filepath.Join(dirs[len(dirs)-1], parts[i]))
		}
	}
	return false
}

// ignoredBy evaluates the rules of each directory in dirs against the path
// made of parts. Deeper files take precedence, as do later lines.
func (t *Tree) ignoredBy(dirs []string, parts []string, isDir bool) bool {
	for i := len(dirs) - 1; i >= 0; i-- {
		rel := strings.Join(parts[i:], "/")
		if matched, ignored := t.load(dirs[i]).Match(rel, isDir); matched {
			return ignored
		}
	}
	if matched, ignored := t.global.Match(strings.Join(parts, "/"), isDir); matched {
		return ignored
	}
	return false
}

func (t *Tree) load(dir string) *Rules {
	if t.fileName == "" {
		return nil
	}
	if rules, ok := t.rules.Get(dir); ok {
		return rules
	}
	rules, _ := t.Reload(dir)
	return rules
}

// Invalidate drops the cached rules of dir, which are read again on next
// use.
func (t *Tree) Invalidate(dir string) {
	t.rules.Remove(filepath.Clean(dir))
	l.Debugln("invalidated ignore rules of", dir)
}

// Reload reads the ignore file of dir and caches the result. A missing file
// caches an empty rule set and is not an error.
func (t *Tree) Reload(dir string) (*Rules, error) {
	dir = filepath.Clean(dir)
	if t.fileName == "" {
		return nil, nil
	}

	file := filepath.Join(dir, t.fileName)
	fd, err := os.Open(file)
	if errors.Is(err, fs.ErrNotExist) {
		t.rules.Add(dir, &Rules{})
		return &Rules{}, nil
	}
	if err != nil {
		l.Infof("Reading ignore file %s: %v", file, err)
		t.rules.Add(dir, &Rules{})
		return &Rules{}, err
	}
	defer fd.Close()

	rules, err := Parse(fd)
	if err != nil {
		l.Warnf("Ignore file %s: %v", file, err)
	}
	t.rules.Add(dir, rules)
	l.Debugf("loaded %d ignore rules from %s", rules.Len(), file)
	return rules, err
}

// Cached returns the number of directories with cached rules.
func (t *Tree) Cached() int {
	return t.rules.Len()
}
