// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package ignore implements gitignore style exclusion rules, loaded from
// the ignore files of each directory below a watch root.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path"
	"runtime"
	"strings"

	"github.com/gobwas/glob"
)

type Pattern struct {
	pattern string
	match   glob.Glob
	// Set for a leading "**/", matching the remainder at the top level.
	alt      glob.Glob
	negate   bool
	dirOnly  bool
	anchored bool
	foldCase bool
}

func (p Pattern) String() string {
	ret := p.pattern
	if p.negate {
		ret = "!" + ret
	}
	if p.dirOnly {
		ret += "/"
	}
	return ret
}

// Rules is the parsed content of one ignore file. Paths given to Match are
// slash separated and relative to the directory holding the file.
type Rules struct {
	patterns []Pattern
}

// Match returns whether any rule matched rel and, if so, whether the last
// matching rule ignores it.
func (r *Rules) Match(rel string, isDir bool) (matched, ignored bool) {
	if r == nil || len(r.patterns) == 0 {
		return false, false
	}

	var lowerRel, base, lowerBase string
	for i := len(r.patterns) - 1; i >= 0; i-- {
		p := r.patterns[i]
		if p.dirOnly && !isDir {
			continue
		}

		candidate := rel
		if !p.anchored {
			if base == "" {
				base = path.Base(rel)
			}
			candidate = base
		}
		if p.foldCase {
			if p.anchored {
				if lowerRel == "" {
					lowerRel = strings.ToLower(rel)
				}
				candidate = lowerRel
			} else {
				if lowerBase == "" {
					lowerBase = strings.ToLower(base)
				}
				candidate = lowerBase
			}
		}

		if p.match.Match(candidate) || (p.alt != nil && p.alt.Match(candidate)) {
			return true, !p.negate
		}
	}
	return false, false
}

// Patterns returns the parsed patterns in file order.
func (r *Rules) Patterns() []string {
	if r == nil {
		return nil
	}
	patterns := make([]string, len(r.patterns))
	for i, pat := range r.patterns {
		patterns[i] = pat.String()
	}
	return patterns
}

func (r *Rules) Len() int {
	if r == nil {
		return 0
	}
	return len(r.patterns)
}

// ParseError collects the lines of an ignore file that could not be
// compiled. The remaining lines are still in effect.
type ParseError struct {
	Lines []LineError
}

type LineError struct {
	Line    int
	Pattern string
	Err     error
}

func (e *ParseError) Error() string {
	msgs := make([]string, len(e.Lines))
	for i, le := range e.Lines {
		msgs[i] = fmt.Sprintf("line %d: invalid pattern %q: %v", le.Line, le.Pattern, le.Err)
	}
	return strings.Join(msgs, "; ")
}

// Parse reads ignore rules from r. On a *ParseError the returned Rules hold
// every valid line.
func Parse(r io.Reader) (*Rules, error) {
	rules := &Rules{}
	var perr ParseError

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		pat, err := compile(line)
		if err != nil {
			perr.Lines = append(perr.Lines, LineError{Line: lineNo, Pattern: line, Err: err})
			continue
		}
		rules.patterns = append(rules.patterns, pat)
	}
	if err := scanner.Err(); err != nil {
		return rules, err
	}
	if len(perr.Lines) > 0 {
		return rules, &perr
	}
	return rules, nil
}

// ParseLines is Parse for rules already split into lines, such as the
// global ignore list from the configuration.
func ParseLines(lines []string) (*Rules, error) {
	return Parse(strings.NewReader(strings.Join(lines, "\n")))
}

var errEmptyPattern = errors.New("empty pattern")

func compile(line string) (Pattern, error) {
	pattern := Pattern{
		foldCase: runtime.GOOS == "darwin" || runtime.GOOS == "windows",
	}

	switch {
	case strings.HasPrefix(line, `\#`), strings.HasPrefix(line, `\!`):
		line = line[1:]
	case strings.HasPrefix(line, "!"):
		pattern.negate = true
		line = line[1:]
	}

	if strings.HasSuffix(line, "/") {
		pattern.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	rest := line
	for strings.HasPrefix(rest, "**/") {
		rest = rest[len("**/"):]
	}
	deep := rest != line
	switch {
	case deep && !strings.Contains(rest, "/"):
		pattern.pattern = line
		line = rest
	case strings.Contains(line, "/"):
		pattern.anchored = true
		line = strings.TrimPrefix(line, "/")
		pattern.pattern = line
	default:
		pattern.pattern = line
	}
	if line == "" {
		return Pattern{}, errEmptyPattern
	}

	g, err := pattern.compileGlob(line)
	if err != nil {
		return Pattern{}, err
	}
	pattern.match = g
	if deep && pattern.anchored {
		if pattern.alt, err = pattern.compileGlob(rest); err != nil {
			return Pattern{}, err
		}
	}
	return pattern, nil
}

func (p Pattern) compileGlob(expr string) (glob.Glob, error) {
	if p.foldCase {
		expr = strings.ToLower(expr)
	}
	return glob.Compile(expr, '/')
}
