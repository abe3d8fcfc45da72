// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/srcwatch/srcwatch/lib/events"
	"github.com/srcwatch/srcwatch/lib/fsevent"
	"github.com/srcwatch/srcwatch/lib/sync"
)

// op is the backend independent form of a raw notification. Backends may
// combine flags when the operating system coalesces them.
type op int

const (
	opCreate op = 1 << iota
	opWrite
	opRemove
	opRename
	opChmod
)

type rawEvent struct {
	path  string
	op    op
	isDir bool // hint for paths that no longer exist
}

type departure struct {
	path   string
	isDir  bool
	target string      // set for symlinks
	info   fs.FileInfo // last known identity, nil when never seen
	at     time.Time
}

// normalizer maps raw notifications to canonical events. It classifies
// symlinks, remembers the ones it has seen so their removal can be
// reported as such, and pairs the two halves of a rename. Halves are only
// paired when the arrival is the same file system object as the departure.
type normalizer struct {
	opts     backendOptions
	symlinks map[string]string      // path -> target
	ids      map[string]fs.FileInfo // path -> identity of the object there
	pending  []departure
	warn     *rate.Limiter
	now      func() time.Time
	mut      sync.Mutex
}

func newNormalizer(opts backendOptions) *normalizer {
	return &normalizer{
		opts:     opts,
		symlinks: make(map[string]string),
		ids:      make(map[string]fs.FileInfo),
		warn:     rate.NewLimiter(rate.Every(time.Minute), 1),
		now:      time.Now,
		mut:      sync.NewMutex(),
	}
}

// cleanPath returns the canonical form of a path reported by the operating
// system. HFS+ and APFS report decomposed names.
func cleanPath(path string) string {
	path = filepath.Clean(path)
	if runtime.GOOS == "darwin" {
		path = norm.NFC.String(path)
	}
	return path
}

// seed records the identity of every entry below root, and the targets of
// its symlinks.
func (n *normalizer) seed(root string) {
	found := make(map[string]string)
	ids := make(map[string]fs.FileInfo)
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		path = cleanPath(path)
		if path != root && n.opts.Skip != nil && n.opts.Skip(path) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if info, err := os.Lstat(path); err == nil {
			ids[path] = identity(info)
		}
		if d.Type()&fs.ModeSymlink != 0 {
			target, _ := os.Readlink(path)
			found[path] = target
		}
		return nil
	})

	n.mut.Lock()
	for path, target := range found {
		n.symlinks[path] = target
	}
	for path, info := range ids {
		n.ids[path] = info
	}
	n.mut.Unlock()
}

// forget drops everything known below root.
func (n *normalizer) forget(root string) {
	n.mut.Lock()
	n.forgetTreeLocked(root)
	n.mut.Unlock()
}

func (n *normalizer) forgetTreeLocked(dir string) {
	for path := range n.symlinks {
		if isBelow(path, dir) {
			delete(n.symlinks, path)
		}
	}
	for path := range n.ids {
		if isBelow(path, dir) {
			delete(n.ids, path)
		}
	}
}

// identity returns info with everything os.SameFile needs loaded, so it
// still compares after the path is gone. On Windows the file index is read
// lazily through the path.
func identity(info fs.FileInfo) fs.FileInfo {
	os.SameFile(info, info)
	return info
}

func (n *normalizer) handle(raw rawEvent) []fsevent.Event {
	path := cleanPath(raw.path)
	if n.opts.Skip != nil && n.opts.Skip(path) {
		return nil
	}

	n.mut.Lock()
	defer n.mut.Unlock()

	now := n.now()
	evs := n.expiredLocked(now)

	switch {
	case raw.op&opRename != 0:
		if info, err := os.Lstat(path); err == nil {
			evs = append(evs, n.arrivedLocked(path, info, now)...)
		} else {
			n.departedLocked(path, raw.isDir, now)
		}

	case raw.op&opRemove != 0:
		if info, err := os.Lstat(path); err == nil && raw.op&opCreate != 0 {
			// Coalesced remove and create of a path that exists again.
			evs = append(evs, n.arrivedLocked(path, info, now)...)
		} else {
			evs = append(evs, n.removedLocked(path, raw.isDir, now))
		}

	case raw.op&opCreate != 0:
		info, err := os.Lstat(path)
		if err != nil {
			// Already gone again; the removal follows.
			evs = append(evs, fsevent.Event{Type: fsevent.Created, Path: path, IsDir: raw.isDir, Time: now})
			break
		}
		evs = append(evs, n.arrivedLocked(path, info, now)...)

	case raw.op&(opWrite|opChmod) != 0:
		if ev, ok := n.modifiedLocked(path, now); ok {
			evs = append(evs, ev)
		}
	}

	return evs
}

// arrivedLocked handles a path that now exists. When it is the object
// that departed elsewhere within the rename window the two become a
// rename, and a renamed directory reports the move of everything below it.
func (n *normalizer) arrivedLocked(path string, info fs.FileInfo, now time.Time) []fsevent.Event {
	info = identity(info)
	isSymlink := info.Mode()&fs.ModeSymlink != 0
	var target string
	if isSymlink {
		target, _ = os.Readlink(path)
	}

	if from, ok := n.claimLocked(info); ok {
		moved := n.moveTreeLocked(from.path, path)
		n.ids[path] = info
		if isSymlink {
			n.symlinks[path] = target
		}
		evs := []fsevent.Event{{
			Type:          fsevent.Renamed,
			Path:          path,
			OldPath:       from.path,
			IsDir:         info.IsDir(),
			Time:          now,
			SymlinkTarget: target,
		}}
		if info.IsDir() {
			evs = append(evs, n.movedChildrenLocked(from.path, path, moved, now)...)
		}
		return evs
	}

	n.ids[path] = info
	if isSymlink {
		typ := fsevent.SymlinkCreated
		if _, known := n.symlinks[path]; known {
			typ = fsevent.SymlinkModified
		}
		n.symlinks[path] = target
		return []fsevent.Event{{Type: typ, Path: path, Time: now, SymlinkTarget: target}}
	}

	delete(n.symlinks, path)
	return []fsevent.Event{{Type: fsevent.Created, Path: path, IsDir: info.IsDir(), Time: now}}
}

// claimLocked removes and returns the pending departure of the object
// described by info.
func (n *normalizer) claimLocked(info fs.FileInfo) (departure, bool) {
	for i, from := range n.pending {
		if from.info != nil && os.SameFile(from.info, info) {
			n.pending = append(n.pending[:i], n.pending[i+1:]...)
			return from, true
		}
	}
	return departure{}, false
}

// moveTreeLocked forgets everything known below oldDir and returns the
// identities of the entries strictly below it, keyed by their new paths.
func (n *normalizer) moveTreeLocked(oldDir, newDir string) map[string]fs.FileInfo {
	moved := make(map[string]fs.FileInfo)
	for path, info := range n.ids {
		if !isBelow(path, oldDir) {
			continue
		}
		delete(n.ids, path)
		if path != oldDir {
			moved[newDir+strings.TrimPrefix(path, oldDir)] = info
		}
	}
	for path := range n.symlinks {
		if isBelow(path, oldDir) {
			delete(n.symlinks, path)
		}
	}
	return moved
}

// movedChildrenLocked reports the entries below a renamed directory: as
// renames when they are the objects previously known under oldDir,
// otherwise as creations.
func (n *normalizer) movedChildrenLocked(oldDir, newDir string, moved map[string]fs.FileInfo, now time.Time) []fsevent.Event {
	var evs []fsevent.Event
	filepath.WalkDir(newDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == newDir {
			return nil
		}
		path = cleanPath(path)
		if n.opts.Skip != nil && n.opts.Skip(path) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		info, err := os.Lstat(path)
		if err != nil {
			return nil
		}
		info = identity(info)
		n.ids[path] = info

		ev := fsevent.Event{Path: path, IsDir: info.IsDir(), Time: now}
		if info.Mode()&fs.ModeSymlink != 0 {
			ev.IsDir = false
			ev.SymlinkTarget, _ = os.Readlink(path)
			n.symlinks[path] = ev.SymlinkTarget
		}
		if known, ok := moved[path]; ok && os.SameFile(known, info) {
			ev.Type = fsevent.Renamed
			ev.OldPath = oldDir + strings.TrimPrefix(path, newDir)
		} else if ev.SymlinkTarget != "" {
			ev.Type = fsevent.SymlinkCreated
		} else {
			ev.Type = fsevent.Created
		}
		evs = append(evs, ev)
		return nil
	})
	return evs
}

func (n *normalizer) departedLocked(path string, isDir bool, now time.Time) {
	info := n.ids[path]
	if info != nil {
		isDir = isDir || info.IsDir()
	}
	n.pending = append(n.pending, departure{path: path, isDir: isDir, target: n.symlinks[path], info: info, at: now})
}

func (n *normalizer) removedLocked(path string, isDir bool, now time.Time) fsevent.Event {
	if info := n.ids[path]; info != nil {
		isDir = isDir || info.IsDir()
	}
	target, wasSymlink := n.symlinks[path]
	n.forgetTreeLocked(path)
	if wasSymlink {
		return fsevent.Event{Type: fsevent.SymlinkDeleted, Path: path, Time: now, SymlinkTarget: target}
	}
	return fsevent.Event{Type: fsevent.Deleted, Path: path, IsDir: isDir, Time: now}
}

func (n *normalizer) modifiedLocked(path string, now time.Time) (fsevent.Event, bool) {
	info, err := os.Lstat(path)
	if err != nil {
		return fsevent.Event{}, false
	}
	n.ids[path] = identity(info)
	if info.Mode()&fs.ModeSymlink != 0 {
		target, _ := os.Readlink(path)
		typ := fsevent.SymlinkModified
		if _, known := n.symlinks[path]; !known {
			typ = fsevent.SymlinkCreated
		}
		n.symlinks[path] = target
		return fsevent.Event{Type: typ, Path: path, Time: now, SymlinkTarget: target}, true
	}
	return fsevent.Event{Type: fsevent.Modified, Path: path, IsDir: info.IsDir(), Time: now}, true
}

// expiredLocked turns departures older than the rename window into
// deletions.
func (n *normalizer) expiredLocked(now time.Time) []fsevent.Event {
	var evs []fsevent.Event
	for len(n.pending) > 0 && now.Sub(n.pending[0].at) >= n.opts.RenameWindow {
		from := n.pending[0]
		n.pending = n.pending[1:]
		// A different object may have arrived at the path since.
		if cur, ok := n.ids[from.path]; !ok || (from.info != nil && os.SameFile(cur, from.info)) {
			n.forgetTreeLocked(from.path)
		}
		if from.target != "" {
			evs = append(evs, fsevent.Event{Type: fsevent.SymlinkDeleted, Path: from.path, Time: now, SymlinkTarget: from.target})
			continue
		}
		evs = append(evs, fsevent.Event{Type: fsevent.Deleted, Path: from.path, IsDir: from.isDir, Time: now})
	}
	return evs
}

// flush returns the departures that have expired by now.
func (n *normalizer) flush() []fsevent.Event {
	n.mut.Lock()
	defer n.mut.Unlock()
	return n.expiredLocked(n.now())
}

// flushTimer returns a channel firing when the oldest pending departure
// expires, or nil when nothing is pending.
func (n *normalizer) flushTimer() <-chan time.Time {
	n.mut.Lock()
	defer n.mut.Unlock()
	if len(n.pending) == 0 {
		return nil
	}
	return time.After(time.Until(n.pending[0].at.Add(n.opts.RenameWindow)))
}

// overflow returns the event standing in for notifications the operating
// system dropped below root.
func (n *normalizer) overflow(root string) fsevent.Event {
	if n.warn.Allow() {
		l.Warnf("Change notifications for %s overflowed; reporting the whole root as modified", root)
	} else {
		l.Debugln("notification overflow for", root)
	}
	n.opts.Events.Log(events.EventOverflow, map[string]string{"root": root})
	return fsevent.Event{Type: fsevent.Modified, Path: root, IsDir: true, Time: n.now()}
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
