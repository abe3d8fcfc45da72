// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/srcwatch/srcwatch/lib/fsevent"
	"github.com/srcwatch/srcwatch/lib/sync"
)

// entry is the polled state of one path. Directories compare equal
// regardless of size and modification time, which change with their
// contents.
type entry struct {
	modTime   time.Time
	size      int64
	isDir     bool
	isSymlink bool
	target    string
}

func (e entry) equal(other entry) bool {
	if e.isDir != other.isDir || e.isSymlink != other.isSymlink {
		return false
	}
	if e.isDir {
		return true
	}
	if e.isSymlink {
		return e.target == other.target
	}
	return e.size == other.size && e.modTime.Equal(other.modTime)
}

type signature struct {
	modTime   int64
	size      int64
	isDir     bool
	isSymlink bool
	target    string
}

func (e entry) signature() signature {
	return signature{
		modTime:   e.modTime.UnixNano(),
		size:      e.size,
		isDir:     e.isDir,
		isSymlink: e.isSymlink,
		target:    e.target,
	}
}

type snapshot map[string]entry

// poller scans every watched root each interval from a single goroutine.
type poller struct {
	opts  backendOptions
	roots map[string]snapshot
	mut   sync.Mutex

	started bool
	done    chan struct{}
}

func newPoller(opts backendOptions) *poller {
	return &poller{
		opts:  opts,
		roots: make(map[string]snapshot),
		mut:   sync.NewMutex(),
		done:  make(chan struct{}),
	}
}

func (*poller) name() string {
	return BackendPoll
}

// startWatch takes the baseline snapshot synchronously, so that changes
// made after it returns are reported by the next scan.
func (p *poller) startWatch(root string) error {
	snap, err := scan(root, p.opts.Skip)
	if err != nil {
		return err
	}

	p.mut.Lock()
	defer p.mut.Unlock()
	p.roots[root] = snap
	if !p.started {
		p.started = true
		go p.serve()
	}
	return nil
}

func (p *poller) stopWatch(root string) error {
	p.mut.Lock()
	defer p.mut.Unlock()
	if _, ok := p.roots[root]; !ok {
		return ErrNotWatched
	}
	delete(p.roots, root)
	return nil
}

func (p *poller) close() error {
	p.mut.Lock()
	started := p.started
	p.mut.Unlock()
	if started {
		<-p.done
	}
	return nil
}

func (p *poller) serve() {
	defer close(p.done)

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.pollOnce()
		case <-p.opts.stop:
			return
		}
	}
}

func (p *poller) pollOnce() {
	p.mut.Lock()
	roots := make([]string, 0, len(p.roots))
	for root := range p.roots {
		roots = append(roots, root)
	}
	p.mut.Unlock()
	sort.Strings(roots)

	for _, root := range roots {
		snap, err := scan(root, p.opts.Skip)
		if err != nil {
			l.Debugf("polling %s: %v", root, err)
			continue
		}

		p.mut.Lock()
		prev, ok := p.roots[root]
		if ok {
			p.roots[root] = snap
		}
		p.mut.Unlock()
		if !ok {
			// Stopped while scanning.
			continue
		}

		evs := diff(prev, snap, time.Now())
		if len(evs) > 0 {
			l.Debugf("poll of %s found %d changes", root, len(evs))
		}
		send(p.opts, evs...)
	}
}

// scan returns the state of every path below root. A root that does not
// exist yields an empty snapshot; entries vanishing during the walk are
// skipped.
func scan(root string, skip func(string) bool) (snapshot, error) {
	snap := make(snapshot)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		path = cleanPath(path)
		if skip != nil && skip(path) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		e := entry{
			modTime:   info.ModTime(),
			size:      info.Size(),
			isDir:     d.IsDir(),
			isSymlink: d.Type()&fs.ModeSymlink != 0,
		}
		if e.isSymlink {
			e.target, _ = os.Readlink(path)
		}
		snap[path] = e
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return snap, nil
	}
	return snap, err
}

// diff compares two snapshots. A deletion and a creation with the same
// unique size, modification time and kind are reported as a rename.
func diff(prev, cur snapshot, now time.Time) []fsevent.Event {
	var deleted, created, modified []string
	for path, e := range prev {
		if c, ok := cur[path]; !ok {
			deleted = append(deleted, path)
		} else if !e.equal(c) {
			modified = append(modified, path)
		}
	}
	for path := range cur {
		if _, ok := prev[path]; !ok {
			created = append(created, path)
		}
	}
	sort.Strings(deleted)
	sort.Strings(created)
	sort.Strings(modified)

	var evs []fsevent.Event

	// Pair renames by signature, only where the match is unambiguous.
	deletedBySig := make(map[signature][]string)
	for _, path := range deleted {
		sig := prev[path].signature()
		deletedBySig[sig] = append(deletedBySig[sig], path)
	}
	createdBySig := make(map[signature][]string)
	for _, path := range created {
		sig := cur[path].signature()
		createdBySig[sig] = append(createdBySig[sig], path)
	}
	renamedFrom := make(map[string]bool)
	renamedTo := make(map[string]bool)
	for _, to := range created {
		sig := cur[to].signature()
		froms := deletedBySig[sig]
		if len(froms) != 1 || len(createdBySig[sig]) != 1 {
			continue
		}
		from := froms[0]
		renamedFrom[from] = true
		renamedTo[to] = true
		e := cur[to]
		evs = append(evs, fsevent.Event{
			Type:          fsevent.Renamed,
			Path:          to,
			OldPath:       from,
			IsDir:         e.isDir,
			Time:          now,
			SymlinkTarget: e.target,
		})
	}

	for _, path := range deleted {
		if renamedFrom[path] {
			continue
		}
		e := prev[path]
		if e.isSymlink {
			evs = append(evs, fsevent.Event{Type: fsevent.SymlinkDeleted, Path: path, Time: now, SymlinkTarget: e.target})
			continue
		}
		evs = append(evs, fsevent.Event{Type: fsevent.Deleted, Path: path, IsDir: e.isDir, Time: now})
	}

	for _, path := range created {
		if renamedTo[path] {
			continue
		}
		e := cur[path]
		if e.isSymlink {
			evs = append(evs, fsevent.Event{Type: fsevent.SymlinkCreated, Path: path, Time: now, SymlinkTarget: e.target})
			continue
		}
		evs = append(evs, fsevent.Event{Type: fsevent.Created, Path: path, IsDir: e.isDir, Time: now})
	}

	for _, path := range modified {
		p, c := prev[path], cur[path]
		switch {
		case c.isSymlink && p.isSymlink:
			evs = append(evs, fsevent.Event{Type: fsevent.SymlinkModified, Path: path, Time: now, SymlinkTarget: c.target})
		case p.isSymlink:
			// Symlink replaced by a regular entry.
			evs = append(evs,
				fsevent.Event{Type: fsevent.SymlinkDeleted, Path: path, Time: now, SymlinkTarget: p.target},
				fsevent.Event{Type: fsevent.Created, Path: path, IsDir: c.isDir, Time: now})
		case c.isSymlink:
			evs = append(evs,
				fsevent.Event{Type: fsevent.Deleted, Path: path, IsDir: p.isDir, Time: now},
				fsevent.Event{Type: fsevent.SymlinkCreated, Path: path, Time: now, SymlinkTarget: c.target})
		case p.isDir != c.isDir:
			evs = append(evs,
				fsevent.Event{Type: fsevent.Deleted, Path: path, IsDir: p.isDir, Time: now},
				fsevent.Event{Type: fsevent.Created, Path: path, IsDir: c.isDir, Time: now})
		default:
			evs = append(evs, fsevent.Event{Type: fsevent.Modified, Path: path, Time: now})
		}
	}

	return evs
}
