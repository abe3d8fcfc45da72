// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package ignore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRules(t *testing.T) {
	rules, err := Parse(strings.NewReader(`
# comment
*.log
!keep.log
/build
docs/*.tmp
out/
\#literal
\!bang
`))
	if err != nil {
		t.Fatal(err)
	}

	var tests = []struct {
		rel     string
		isDir   bool
		ignored bool
	}{
		{"a.log", false, true},
		{"sub/a.log", false, true},
		{"keep.log", false, false},
		{"sub/keep.log", false, false},
		{"build", true, true},
		{"sub/build", true, false},
		{"docs/x.tmp", false, true},
		{"sub/docs/x.tmp", false, false},
		{"out", true, true},
		{"out", false, false},
		{"sub/out", true, true},
		{"#literal", false, true},
		{"!bang", false, true},
		{"comment", false, false},
		{"main.go", false, false},
	}

	for i, tc := range tests {
		_, ignored := rules.Match(tc.rel, tc.isDir)
		if ignored != tc.ignored {
			t.Errorf("#%d (%s dir=%v): got %v, want %v", i, tc.rel, tc.isDir, ignored, tc.ignored)
		}
	}
}

func TestLastMatchWins(t *testing.T) {
	rules, err := Parse(strings.NewReader("!a.txt\n*.txt\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ignored := rules.Match("a.txt", false); !ignored {
		t.Error("Later rule should override earlier negation")
	}
}

func TestLeadingDoubleStar(t *testing.T) {
	rules, err := Parse(strings.NewReader("**/foo\n**/docs/*.tmp\n**/cache/\n"))
	if err != nil {
		t.Fatal(err)
	}

	var tests = []struct {
		rel     string
		isDir   bool
		ignored bool
	}{
		{"foo", false, true},
		{"a/foo", false, true},
		{"a/b/foo", true, true},
		{"foobar", false, false},
		{"docs/x.tmp", false, true},
		{"a/docs/x.tmp", false, true},
		{"docs/sub/x.tmp", false, false},
		{"cache", true, true},
		{"a/cache", true, true},
		{"a/cache", false, false},
	}

	for i, tc := range tests {
		_, ignored := rules.Match(tc.rel, tc.isDir)
		if ignored != tc.ignored {
			t.Errorf("#%d (%s dir=%v): got %v, want %v", i, tc.rel, tc.isDir, ignored, tc.ignored)
		}
	}
	if pats := rules.Patterns(); pats[0] != "**/foo" || pats[2] != "**/cache/" {
		t.Errorf("Unexpected patterns %v", pats)
	}
}

func TestParseErrorKeepsValidLines(t *testing.T) {
	rules, err := Parse(strings.NewReader("*.o\n[abc\n*.a\n"))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected ParseError, got %v", err)
	}
	if len(perr.Lines) != 1 || perr.Lines[0].Line != 2 {
		t.Errorf("Unexpected error lines %+v", perr.Lines)
	}
	if rules.Len() != 2 {
		t.Errorf("Expected 2 valid rules, got %v", rules.Patterns())
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "*.tmp\nvendor/\n")
	writeFile(t, filepath.Join(root, "sub", ".gitignore"), "!keep.tmp\nlocal.txt\n")

	tree, err := NewTree(root, ".gitignore", []string{".git/"})
	if err != nil {
		t.Fatal(err)
	}

	var tests = []struct {
		rel     string
		isDir   bool
		ignored bool
	}{
		{"a.tmp", false, true},
		{"sub/a.tmp", false, true},
		{"sub/keep.tmp", false, false},
		{"keep.tmp", false, true},
		{"local.txt", false, false},
		{"sub/local.txt", false, true},
		{"vendor", true, true},
		{"vendor/x/y.go", false, true},
		{".git/HEAD", false, true},
		{"sub/.git/HEAD", false, true},
		{"src/main.go", false, false},
	}

	for i, tc := range tests {
		abs := filepath.Join(root, filepath.FromSlash(tc.rel))
		if ignored := tree.Ignored(abs, tc.isDir); ignored != tc.ignored {
			t.Errorf("#%d (%s): got %v, want %v", i, tc.rel, ignored, tc.ignored)
		}
	}

	if tree.Ignored(root, true) {
		t.Error("Root itself ignored")
	}
	if tree.Ignored(filepath.Join(filepath.Dir(root), "elsewhere.tmp"), false) {
		t.Error("Path outside root ignored")
	}
}

func TestTreeInvalidate(t *testing.T) {
	root := t.TempDir()
	ignoreFile := filepath.Join(root, ".gitignore")
	target := filepath.Join(root, "a.txt")

	tree, err := NewTree(root, ".gitignore", nil)
	if err != nil {
		t.Fatal(err)
	}

	if tree.Ignored(target, false) {
		t.Fatal("Ignored without any ignore file")
	}

	writeFile(t, ignoreFile, "a.txt\n")
	if tree.Ignored(target, false) {
		t.Fatal("Cached rules should still be in effect before invalidation")
	}

	if !tree.IsIgnoreFile(ignoreFile) {
		t.Fatal("Ignore file not recognized")
	}
	tree.Invalidate(root)
	if !tree.Ignored(target, false) {
		t.Error("New rules not picked up after invalidation")
	}

	writeFile(t, ignoreFile, "b.txt\n")
	if _, err := tree.Reload(root); err != nil {
		t.Fatal(err)
	}
	if tree.Ignored(target, false) {
		t.Error("Reloaded rules not in effect")
	}
}

func TestTreeExclude(t *testing.T) {
	root := t.TempDir()
	tree, err := NewTree(root, "", nil)
	if err != nil {
		t.Fatal(err)
	}

	logFile := filepath.Join(root, "logs", "srcwatch.log")
	tree.Exclude(logFile)

	if !tree.Ignored(logFile, false) {
		t.Error("Excluded path not ignored")
	}
	if tree.Ignored(filepath.Join(root, "logs", "other.log"), false) {
		t.Error("Sibling of excluded path ignored")
	}
	if tree.IsIgnoreFile(filepath.Join(root, ".gitignore")) {
		t.Error("Ignore file recognized with ignore files disabled")
	}
}

func TestInvalidGlobal(t *testing.T) {
	tree, err := NewTree(t.TempDir(), "", []string{"[bad", "*.o"})
	if err == nil {
		t.Fatal("Expected error for invalid global pattern")
	}
	if !tree.Ignored(filepath.Join(tree.Root(), "x.o"), false) {
		t.Error("Valid global pattern not applied")
	}
}
