// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/srcwatch/srcwatch/lib/config"
	"github.com/srcwatch/srcwatch/lib/events"
	"github.com/srcwatch/srcwatch/lib/fsevent"
)

// waitFor reads events until match returns true or the timeout passes.
func waitFor(t *testing.T, c <-chan fsevent.Event, timeout time.Duration, match func(fsevent.Event) bool) []fsevent.Event {
	t.Helper()
	var seen []fsevent.Event
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-c:
			if !ok {
				t.Fatalf("Events channel closed; seen %v", seen)
			}
			seen = append(seen, ev)
			if match(ev) {
				return seen
			}
		case <-timer.C:
			t.Fatalf("Timed out; seen %v", seen)
			return nil
		}
	}
}

func tempRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return cleanPath(root)
}

func TestPollMode(t *testing.T) {
	bus := events.NewLogger()
	sub := bus.Subscribe(events.AllEvents)
	defer bus.Unsubscribe(sub)

	m := New(Options{Mode: config.MonitorModePoll, PollInterval: 20 * time.Millisecond, Events: bus})
	if m.Name() != BackendPoll {
		t.Errorf("Name() = %q, want poll", m.Name())
	}

	root := tempRoot(t)
	d, err := m.StartWatch(root)
	if err != nil {
		t.Fatal(err)
	}
	if d.Root() != root || d.Backend() != BackendPoll {
		t.Errorf("Unexpected descriptor %q %q", d.Root(), d.Backend())
	}

	file := filepath.Join(root, "a.txt")
	if err := os.WriteFile(file, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, m.Events(), 5*time.Second, func(ev fsevent.Event) bool {
		return ev.Type == fsevent.Created && ev.Path == file
	})

	if err := m.StopWatch(d); err != nil {
		t.Fatal(err)
	}
	if err := m.StopWatch(d); !errors.Is(err, ErrNotWatched) {
		t.Errorf("Second StopWatch returned %v", err)
	}

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	for range m.Events() {
		// drain until closed
	}
	if _, err := m.StartWatch(root); !errors.Is(err, ErrClosed) {
		t.Errorf("StartWatch after Close returned %v", err)
	}
	if _, err := sub.Poll(10 * time.Millisecond); err != events.ErrTimeout {
		t.Errorf("Configured polling should not publish a fallback, got %v", err)
	}
}

func TestPollerRename(t *testing.T) {
	root := tempRoot(t)
	a := filepath.Join(root, "a.txt")
	b := filepath.Join(root, "b.txt")
	if err := os.WriteFile(a, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := New(Options{Mode: config.MonitorModePoll, PollInterval: 20 * time.Millisecond})
	defer m.Close()
	if _, err := m.StartWatch(root); err != nil {
		t.Fatal(err)
	}

	if err := os.Rename(a, b); err != nil {
		t.Fatal(err)
	}

	seen := waitFor(t, m.Events(), 5*time.Second, func(ev fsevent.Event) bool {
		return ev.Type == fsevent.Renamed
	})
	ev := seen[len(seen)-1]
	if ev.OldPath != a || ev.Path != b {
		t.Errorf("Unexpected rename %v", ev)
	}
	for _, other := range seen[:len(seen)-1] {
		if other.Path == a || other.Path == b {
			t.Errorf("Rename also reported as %v", other)
		}
	}
}

func TestDiff(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	t1 := t0.Add(time.Second)
	now := time.Now()

	prev := snapshot{
		"/r/same":     {modTime: t0, size: 1},
		"/r/changed":  {modTime: t0, size: 1},
		"/r/gone":     {modTime: t0, size: 2},
		"/r/old":      {modTime: t1, size: 42},
		"/r/dir":      {modTime: t0, isDir: true},
		"/r/link":     {isSymlink: true, target: "same"},
		"/r/deadlink": {isSymlink: true, target: "gone"},
	}
	cur := snapshot{
		"/r/same":    {modTime: t0, size: 1},
		"/r/changed": {modTime: t1, size: 1},
		"/r/new":     {modTime: t1, size: 42},
		"/r/fresh":   {modTime: t1, size: 7},
		"/r/dir":     {modTime: t1, isDir: true},
		"/r/link":    {isSymlink: true, target: "changed"},
	}

	evs := diff(prev, cur, now)

	got := make(map[string]fsevent.Event)
	for _, ev := range evs {
		got[ev.Path] = ev
	}

	expect := map[string]fsevent.Type{
		"/r/new":      fsevent.Renamed,
		"/r/gone":     fsevent.Deleted,
		"/r/deadlink": fsevent.SymlinkDeleted,
		"/r/fresh":    fsevent.Created,
		"/r/changed":  fsevent.Modified,
		"/r/link":     fsevent.SymlinkModified,
	}
	if len(evs) != len(expect) {
		t.Errorf("Expected %d events, got %d: %v", len(expect), len(evs), evs)
	}
	for path, typ := range expect {
		if got[path].Type != typ {
			t.Errorf("%s: got %v, want %v", path, got[path].Type, typ)
		}
	}
	if got["/r/new"].OldPath != "/r/old" {
		t.Errorf("Rename paired with %q", got["/r/new"].OldPath)
	}
	if got["/r/link"].SymlinkTarget != "changed" {
		t.Errorf("Symlink target %q", got["/r/link"].SymlinkTarget)
	}
}

func TestDiffAmbiguousRename(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	prev := snapshot{
		"/r/a": {modTime: t0},
		"/r/b": {modTime: t0},
	}
	cur := snapshot{
		"/r/c": {modTime: t0},
		"/r/d": {modTime: t0},
	}
	for _, ev := range diff(prev, cur, time.Now()) {
		if ev.Type == fsevent.Renamed {
			t.Errorf("Ambiguous pair reported as rename: %v", ev)
		}
	}
}

func TestScanSkip(t *testing.T) {
	root := tempRoot(t)
	if err := os.MkdirAll(filepath.Join(root, "skipped", "deep"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "kept"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	skipped := filepath.Join(root, "skipped")
	snap, err := scan(root, func(path string) bool { return path == skipped })
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != 1 {
		t.Errorf("Expected only the kept file, got %v", snap)
	}

	snap, err = scan(filepath.Join(root, "missing"), nil)
	if err != nil || len(snap) != 0 {
		t.Errorf("Missing root: %v %v", snap, err)
	}
}

func TestInitErrorUnwrap(t *testing.T) {
	base := errors.New("too many instances")
	err := error(&InitError{Backend: BackendInotify, Err: base})
	if !errors.Is(err, base) {
		t.Error("InitError does not unwrap")
	}
	var ierr *InitError
	if !errors.As(err, &ierr) || ierr.Backend != BackendInotify {
		t.Error("errors.As failed")
	}
}
