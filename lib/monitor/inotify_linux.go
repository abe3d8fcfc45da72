// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/srcwatch/srcwatch/lib/fsevent"
	"github.com/srcwatch/srcwatch/lib/sync"
)

// inotify watches are not recursive: every directory below a root gets its
// own watch, added as directories appear.
type inotifyBackend struct {
	opts     backendOptions
	watcher  *fsnotify.Watcher
	addWatch func(dir string) error
	norm     *normalizer

	// Watched directory -> roots it was added for. Nested roots share
	// directories.
	dirs  map[string]map[string]struct{}
	roots map[string]struct{}
	// Watched directories that were moved. The watch's own move
	// notification follows the parent's and is dropped.
	movedDirs map[string]struct{}
	mut       sync.Mutex

	done chan struct{}
}

func newNative(opts backendOptions) (backend, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &InitError{Backend: BackendInotify, Err: err}
	}
	b := &inotifyBackend{
		opts:      opts,
		watcher:   w,
		addWatch:  w.Add,
		norm:      newNormalizer(opts),
		dirs:      make(map[string]map[string]struct{}),
		roots:     make(map[string]struct{}),
		movedDirs: make(map[string]struct{}),
		mut:       sync.NewMutex(),
		done:      make(chan struct{}),
	}
	go b.serve()
	return b, nil
}

func (*inotifyBackend) name() string {
	return BackendInotify
}

func (b *inotifyBackend) startWatch(root string) error {
	b.mut.Lock()
	defer b.mut.Unlock()

	if _, ok := b.roots[root]; ok {
		return nil
	}

	added, err := b.addTreeLocked(root, []string{root}, nil)
	if err != nil {
		for _, dir := range added {
			b.releaseDirLocked(dir, root)
		}
		return err
	}
	b.roots[root] = struct{}{}
	b.norm.seed(root)
	return nil
}

// addTreeLocked adds watches for dir and every directory below it on
// behalf of roots. With found non-nil, every entry below dir is appended
// to it.
func (b *inotifyBackend) addTreeLocked(dir string, roots []string, found *[]fs.DirEntry) ([]string, error) {
	var added []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			l.Debugln("skipping unreadable", path, err)
			return nil
		}
		path = cleanPath(path)
		if b.opts.Skip != nil && b.opts.Skip(path) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path != dir && found != nil {
			*found = append(*found, namedEntry{DirEntry: d, path: path})
		}
		if !d.IsDir() {
			return nil
		}
		if err := b.addDirLocked(path, roots); err != nil {
			if path == dir || errors.Is(err, ErrDescriptorsExhausted) {
				return err
			}
			l.Debugln("not watching", path, err)
			return fs.SkipDir
		}
		added = append(added, path)
		return nil
	})
	return added, err
}

func (b *inotifyBackend) addDirLocked(dir string, roots []string) error {
	owners, ok := b.dirs[dir]
	if !ok {
		if err := b.addWatch(dir); err != nil {
			if isDescriptorsExhausted(err) {
				return fmt.Errorf("adding watch for %s: %w: %w", dir, ErrDescriptorsExhausted, err)
			}
			return fmt.Errorf("adding watch for %s: %w", dir, err)
		}
		owners = make(map[string]struct{}, len(roots))
		b.dirs[dir] = owners
	}
	for _, root := range roots {
		owners[root] = struct{}{}
	}
	return nil
}

func (b *inotifyBackend) releaseDirLocked(dir, root string) {
	owners, ok := b.dirs[dir]
	if !ok {
		return
	}
	delete(owners, root)
	if len(owners) == 0 {
		delete(b.dirs, dir)
		// Fails harmlessly when the kernel already dropped the watch.
		b.watcher.Remove(dir)
	}
}

// dropTreeLocked forgets dir and everything below it, as after its removal
// or departure.
func (b *inotifyBackend) dropTreeLocked(dir string) bool {
	dropped := false
	for watched := range b.dirs {
		if isBelow(watched, dir) {
			delete(b.dirs, watched)
			b.watcher.Remove(watched)
			dropped = true
		}
	}
	return dropped
}

func (b *inotifyBackend) stopWatch(root string) error {
	b.mut.Lock()
	defer b.mut.Unlock()

	if _, ok := b.roots[root]; !ok {
		return ErrNotWatched
	}
	delete(b.roots, root)
	for dir := range b.dirs {
		b.releaseDirLocked(dir, root)
	}
	for dir := range b.movedDirs {
		if isBelow(dir, root) {
			delete(b.movedDirs, dir)
		}
	}
	b.norm.forget(root)
	return nil
}

func (b *inotifyBackend) close() error {
	err := b.watcher.Close()
	<-b.done
	return err
}

func (b *inotifyBackend) serve() {
	defer close(b.done)
	for {
		select {
		case ev, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			send(b.opts, b.handle(ev)...)

		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				send(b.opts, b.overflow()...)
				continue
			}
			l.Infoln("inotify:", err)

		case <-b.norm.flushTimer():
			send(b.opts, b.norm.flush()...)

		case <-b.opts.stop:
			return
		}
	}
}

func (b *inotifyBackend) handle(ev fsnotify.Event) []fsevent.Event {
	path := cleanPath(ev.Name)
	l.Debugln("inotify:", ev.Op, path)

	raw := rawEvent{path: path}
	if ev.Has(fsnotify.Create) {
		raw.op |= opCreate
	}
	if ev.Has(fsnotify.Write) {
		raw.op |= opWrite
	}
	if ev.Has(fsnotify.Remove) {
		raw.op |= opRemove
	}
	if ev.Has(fsnotify.Rename) {
		raw.op |= opRename
	}
	if ev.Has(fsnotify.Chmod) {
		raw.op |= opChmod
	}

	var synthesized []fs.DirEntry
	var exhausted []string
	var exhaustedErr error
	b.mut.Lock()
	if raw.op == opRename {
		if _, ok := b.movedDirs[path]; ok {
			if _, watched := b.dirs[path]; !watched {
				delete(b.movedDirs, path)
				b.mut.Unlock()
				return nil
			}
		}
	}
	if raw.op&(opRemove|opRename) != 0 {
		// The watch of a removed directory is gone; a renamed one would
		// keep reporting under its old name.
		raw.isDir = b.dropTreeLocked(path)
		if raw.isDir && raw.op&opRename != 0 {
			b.movedDirs[path] = struct{}{}
		}
	}
	if raw.op&opCreate != 0 {
		delete(b.movedDirs, path)
		if roots := b.rootsOfLocked(filepath.Dir(path)); len(roots) > 0 {
			_, err := b.addTreeLocked(path, roots, &synthesized)
			switch {
			case err == nil, errors.Is(err, fs.ErrNotExist):
			case errors.Is(err, ErrDescriptorsExhausted):
				exhausted, exhaustedErr = roots, err
			default:
				l.Infof("Watching new directory %s: %v", path, err)
			}
		}
	}
	b.mut.Unlock()

	evs := b.norm.handle(raw)

	// Entries created in a new directory before its watch was in place
	// produce no notifications of their own. A directory moved in has
	// had its contents reported by the rename already.
	if !renamedTo(evs, path) {
		for _, d := range synthesized {
			ne := d.(namedEntry)
			evs = append(evs, b.norm.handle(rawEvent{path: ne.path, op: opCreate, isDir: d.IsDir()})...)
		}
	}

	// Part of the tree is unwatched; the poller takes over those roots and
	// a root event stands in for what may have been missed.
	sort.Strings(exhausted)
	for _, root := range exhausted {
		if b.opts.degrade == nil {
			l.Warnf("Not watching below %s: %v", path, exhaustedErr)
			continue
		}
		b.opts.degrade(root, exhaustedErr)
		evs = append(evs, fsevent.Event{Type: fsevent.Modified, Path: root, IsDir: true, Time: time.Now()})
	}
	return evs
}

func renamedTo(evs []fsevent.Event, path string) bool {
	for _, ev := range evs {
		if ev.Type == fsevent.Renamed && ev.Path == path {
			return true
		}
	}
	return false
}

func (b *inotifyBackend) rootsOfLocked(dir string) []string {
	owners, ok := b.dirs[dir]
	if !ok {
		return nil
	}
	roots := make([]string, 0, len(owners))
	for root := range owners {
		roots = append(roots, root)
	}
	return roots
}

func (b *inotifyBackend) overflow() []fsevent.Event {
	b.mut.Lock()
	roots := make([]string, 0, len(b.roots))
	for root := range b.roots {
		roots = append(roots, root)
	}
	b.mut.Unlock()
	sort.Strings(roots)

	evs := make([]fsevent.Event, 0, len(roots))
	for _, root := range roots {
		evs = append(evs, b.norm.overflow(root))
	}
	return evs
}

type namedEntry struct {
	fs.DirEntry
	path string
}
