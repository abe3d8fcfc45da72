// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package watch keeps the registry of listeners per watched root and
// decides which registrations an event concerns.
package watch

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/srcwatch/srcwatch/lib/events"
	"github.com/srcwatch/srcwatch/lib/fsevent"
	"github.com/srcwatch/srcwatch/lib/ignore"
	"github.com/srcwatch/srcwatch/lib/monitor"
	"github.com/srcwatch/srcwatch/lib/pathmatch"
	"github.com/srcwatch/srcwatch/lib/sync"
)

const defaultDelay = 200 * time.Millisecond

type Options struct {
	// Delay is the debounce delay of registrations that do not set one.
	Delay          time.Duration
	IgnoreFileName string
	GlobalIgnores  []string
	// Excludes are absolute paths never reported, such as our own log
	// file.
	Excludes []string
	// OnRetire is called after a registration has been removed, outside
	// the registry lock.
	OnRetire func(*Registration)
	Matcher  *pathmatch.Matcher
	Events   *events.Logger
}

// Manager is safe for concurrent use. Match never waits for Watch or
// Unregister.
type Manager struct {
	mon  monitor.Monitor
	opts Options

	roots  map[string]*rootState
	closed bool
	mut    sync.Mutex

	nextID atomic.Uint64
	// Copy of the registry published on every change, read by Match.
	current atomic.Pointer[[]rootView]
}

type rootState struct {
	desc *monitor.Descriptor
	tree *ignore.Tree
	regs []*Registration
}

type rootView struct {
	root string
	desc *monitor.Descriptor
	tree *ignore.Tree
	regs []*Registration
}

func NewManager(mon monitor.Monitor, opts Options) *Manager {
	if opts.Delay <= 0 {
		opts.Delay = defaultDelay
	}
	if opts.Matcher == nil {
		opts.Matcher = pathmatch.New(0)
	}
	if opts.Events == nil {
		opts.Events = events.Noop
	}
	m := &Manager{
		mon:   mon,
		opts:  opts,
		roots: make(map[string]*rootState),
		mut:   sync.NewMutex(),
	}
	m.current.Store(new([]rootView))
	return m
}

// Watch registers listener for changes to paths below root matching
// pattern. An empty pattern falls back to the listener's own.
func (m *Manager) Watch(root, pattern string, listener fsevent.Listener, opts ...Option) (*Handle, error) {
	if listener == nil {
		return nil, &RegistrationError{Root: root, Err: ErrNoListener}
	}
	canonical, err := canonicalRoot(root)
	if err != nil {
		return nil, &RegistrationError{Root: root, Err: err}
	}

	if pattern == "" {
		pattern = listener.Pattern()
	}
	if pattern == "" {
		pattern = "**"
	}
	if err := pathmatch.Validate(pattern); err != nil {
		return nil, &RegistrationError{Root: root, Err: fmt.Errorf("%w: %w", ErrInvalidPattern, err)}
	}

	var ro regOptions
	for _, opt := range opts {
		opt(&ro)
	}
	reg := &Registration{
		Root:     canonical,
		Pattern:  pattern,
		Listener: listener,
		Filter:   ro.filter,
		Delay:    ro.delay,
	}
	if reg.Filter == nil {
		if f, ok := listener.(fsevent.Filterer); ok {
			reg.Filter = f.Filter
		}
	}
	if reg.Delay <= 0 {
		if d, ok := listener.(fsevent.DebounceDelayer); ok {
			reg.Delay = d.DebounceDelay()
		}
	}
	if reg.Delay <= 0 {
		reg.Delay = m.opts.Delay
	}

	m.mut.Lock()
	defer m.mut.Unlock()

	if m.closed {
		return nil, &RegistrationError{Root: root, Err: ErrClosed}
	}

	rs, ok := m.roots[canonical]
	if !ok {
		rs, err = m.startRootLocked(canonical)
		if err != nil {
			return nil, &RegistrationError{Root: root, Err: err}
		}
	}

	reg.ID = m.nextID.Add(1)
	reg.active.Store(true)
	rs.regs = append(rs.regs, reg)
	m.publishLocked()

	l.Debugln("registered", reg)
	return &Handle{m: m, reg: reg}, nil
}

func (m *Manager) startRootLocked(root string) (*rootState, error) {
	tree, err := ignore.NewTree(root, m.opts.IgnoreFileName, m.opts.GlobalIgnores)
	if err != nil {
		l.Warnf("Global ignore patterns for %s: %v", root, err)
	}
	for _, path := range m.opts.Excludes {
		tree.Exclude(path)
	}

	desc, err := m.mon.StartWatch(root)
	if err != nil {
		return nil, err
	}

	rs := &rootState{desc: desc, tree: tree}
	m.roots[root] = rs
	l.Infof("Watching %s (%s)", root, desc.Backend())
	m.opts.Events.Log(events.WatchStarted, map[string]string{
		"root":    root,
		"backend": desc.Backend(),
	})
	return rs, nil
}

func (m *Manager) unregister(reg *Registration) {
	m.mut.Lock()
	if !reg.active.CompareAndSwap(true, false) {
		m.mut.Unlock()
		return
	}

	rs := m.roots[reg.Root]
	rs.regs = slices.DeleteFunc(rs.regs, func(r *Registration) bool { return r == reg })
	if len(rs.regs) == 0 {
		delete(m.roots, reg.Root)
		m.stopRootLocked(reg.Root, rs)
	}
	m.publishLocked()
	m.mut.Unlock()

	l.Debugln("unregistered", reg)
	if m.opts.OnRetire != nil {
		m.opts.OnRetire(reg)
	}
}

func (m *Manager) stopRootLocked(root string, rs *rootState) {
	if err := m.mon.StopWatch(rs.desc); err != nil && !errors.Is(err, monitor.ErrClosed) {
		l.Infof("Stopping watch of %s: %v", root, err)
	}
	l.Infof("Stopped watching %s", root)
	m.opts.Events.Log(events.WatchStopped, map[string]string{
		"root": root,
	})
}

// Close retires every registration and releases the platform watches.
// Watch fails afterwards.
func (m *Manager) Close() {
	m.mut.Lock()
	if m.closed {
		m.mut.Unlock()
		return
	}
	m.closed = true
	var retired []*Registration
	for root, rs := range m.roots {
		for _, reg := range rs.regs {
			reg.active.Store(false)
			retired = append(retired, reg)
		}
		m.stopRootLocked(root, rs)
	}
	clear(m.roots)
	m.publishLocked()
	m.mut.Unlock()

	if m.opts.OnRetire != nil {
		for _, reg := range retired {
			m.opts.OnRetire(reg)
		}
	}
}

func (m *Manager) publishLocked() {
	views := make([]rootView, 0, len(m.roots))
	for root, rs := range m.roots {
		views = append(views, rootView{
			root: root,
			desc: rs.desc,
			tree: rs.tree,
			regs: slices.Clone(rs.regs),
		})
	}
	// Deepest roots first, so a path is attributed to its innermost root.
	slices.SortFunc(views, func(a, b rootView) int {
		if c := cmp.Compare(depth(b.root), depth(a.root)); c != 0 {
			return c
		}
		return strings.Compare(a.root, b.root)
	})
	m.current.Store(&views)
}

// Match returns the active registrations ev should be delivered to. A
// change to an ignore file drops the cached rules of its directory first.
func (m *Manager) Match(ev fsevent.Event) []*Registration {
	views := *m.current.Load()

	var matched []*Registration
	for _, v := range views {
		inPath := isBelow(ev.Path, v.root)
		inOld := ev.Type == fsevent.Renamed && isBelow(ev.OldPath, v.root)
		if !inPath && !inOld {
			continue
		}

		for _, p := range []string{ev.Path, ev.OldPath} {
			if p != "" && isBelow(p, v.root) && v.tree.IsIgnoreFile(p) {
				v.tree.Invalidate(filepath.Dir(p))
			}
		}

		for _, reg := range v.regs {
			if !reg.Active() {
				continue
			}
			if (inPath && m.matches(v, reg, ev.Path, ev.IsDir)) || (inOld && m.matches(v, reg, ev.OldPath, ev.IsDir)) {
				if reg.accepts(ev) {
					matched = append(matched, reg)
				}
			}
		}
	}
	return matched
}

// matches reports whether path, below the registration's root, is
// neither ignored nor outside the pattern. The root itself, reported when
// notifications were lost, concerns every registration.
func (m *Manager) matches(v rootView, reg *Registration, path string, isDir bool) bool {
	if path == v.root {
		return true
	}
	if v.tree.Ignored(path, isDir) {
		return false
	}
	rel, err := filepath.Rel(v.root, path)
	if err != nil {
		return false
	}
	ok, err := m.opts.Matcher.Match(reg.Pattern, filepath.ToSlash(rel))
	if err != nil {
		l.Debugln("matching", reg, err)
		return false
	}
	return ok
}

// IsIgnoreFile reports whether ev concerns an ignore file within a watched
// root.
func (m *Manager) IsIgnoreFile(ev fsevent.Event) bool {
	for _, v := range *m.current.Load() {
		if isBelow(ev.Path, v.root) && v.tree.IsIgnoreFile(ev.Path) {
			return true
		}
	}
	return false
}

// ReloadIgnores rereads the ignore file ev concerns in every root holding
// it.
func (m *Manager) ReloadIgnores(ev fsevent.Event) {
	dir := filepath.Dir(ev.Path)
	for _, v := range *m.current.Load() {
		if !isBelow(ev.Path, v.root) || !v.tree.IsIgnoreFile(ev.Path) {
			continue
		}
		rules, err := v.tree.Reload(dir)
		data := map[string]interface{}{
			"root":  v.root,
			"dir":   dir,
			"rules": rules.Len(),
			"error": events.Error(err),
		}
		m.opts.Events.Log(events.IgnoreReloaded, data)
		l.Debugf("reloaded ignore rules of %s: %d rules", dir, rules.Len())
	}
}

// Backend returns the name of the monitor backend serving path, or an
// empty string when no root contains it.
func (m *Manager) Backend(path string) string {
	for _, v := range *m.current.Load() {
		if isBelow(path, v.root) {
			return v.desc.Backend()
		}
	}
	return ""
}

// Roots returns the watched roots, sorted.
func (m *Manager) Roots() []string {
	views := *m.current.Load()
	roots := make([]string, 0, len(views))
	for _, v := range views {
		roots = append(roots, v.root)
	}
	slices.Sort(roots)
	return roots
}

// Len returns the number of active registrations.
func (m *Manager) Len() int {
	n := 0
	for _, v := range *m.current.Load() {
		n += len(v.regs)
	}
	return n
}

// canonicalRoot returns the absolute, symlink free form of root, which must
// be a readable directory.
func canonicalRoot(root string) (string, error) {
	if root == "" {
		return "", errors.New("empty path")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", ErrNotDirectory
	}
	fd, err := os.Open(resolved)
	if err != nil {
		return "", err
	}
	fd.Close()
	return filepath.Clean(resolved), nil
}

func isBelow(path, root string) bool {
	if path == root {
		return true
	}
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	return strings.HasPrefix(path, root)
}

func depth(root string) int {
	return strings.Count(filepath.Clean(root), string(filepath.Separator))
}
