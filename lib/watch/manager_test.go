// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package watch_test

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/srcwatch/srcwatch/lib/events"
	"github.com/srcwatch/srcwatch/lib/fsevent"
	"github.com/srcwatch/srcwatch/lib/monitor"
	"github.com/srcwatch/srcwatch/lib/monitor/mocks"
	"github.com/srcwatch/srcwatch/lib/watch"
)

func newFakeMonitor() *mocks.Monitor {
	mon := &mocks.Monitor{}
	mon.StartWatchCalls(func(root string) (*monitor.Descriptor, error) {
		return monitor.NewDescriptor(root), nil
	})
	return mon
}

func tempRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return root
}

func modified(path string) fsevent.Event {
	return fsevent.Event{Type: fsevent.Modified, Path: path, Time: time.Now()}
}

func TestWatchValidation(t *testing.T) {
	root := tempRoot(t)
	file := filepath.Join(root, "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	m := watch.NewManager(newFakeMonitor(), watch.Options{})
	lst := &fsevent.Funcs{Glob: "**"}

	cases := []struct {
		name    string
		root    string
		pattern string
		lst     fsevent.Listener
		is      error
	}{
		{"missing", filepath.Join(root, "missing"), "", lst, os.ErrNotExist},
		{"file", file, "", lst, watch.ErrNotDirectory},
		{"pattern", root, "[abc", lst, watch.ErrInvalidPattern},
		{"listener", root, "", nil, watch.ErrNoListener},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Watch(tc.root, tc.pattern, tc.lst)
			var rerr *watch.RegistrationError
			if !errors.As(err, &rerr) {
				t.Fatalf("Expected RegistrationError, got %v", err)
			}
			if !errors.Is(err, tc.is) {
				t.Errorf("Error %v is not %v", err, tc.is)
			}
		})
	}

	if m.Len() != 0 {
		t.Errorf("Failed registrations were stored")
	}
}

func TestRootReferenceCount(t *testing.T) {
	root := tempRoot(t)
	mon := newFakeMonitor()

	var retired []uint64
	bus := events.NewLogger()
	sub := bus.Subscribe(events.WatchStarted | events.WatchStopped)
	defer bus.Unsubscribe(sub)

	m := watch.NewManager(mon, watch.Options{
		Events:   bus,
		OnRetire: func(r *watch.Registration) { retired = append(retired, r.ID) },
	})

	h1, err := m.Watch(root, "*.go", &fsevent.Funcs{})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := m.Watch(root, "*.md", &fsevent.Funcs{})
	if err != nil {
		t.Fatal(err)
	}
	if mon.StartWatchCallCount() != 1 {
		t.Errorf("Platform watch started %d times", mon.StartWatchCallCount())
	}
	if h1.ID() == h2.ID() {
		t.Error("Handles share an ID")
	}
	if h1.Root() != root || h1.Pattern() != "*.go" {
		t.Errorf("Unexpected handle %s %s", h1.Root(), h1.Pattern())
	}
	if roots := m.Roots(); len(roots) != 1 || roots[0] != root {
		t.Errorf("Unexpected roots %v", roots)
	}

	h1.Unregister()
	if mon.StopWatchCallCount() != 0 {
		t.Error("Platform watch stopped while still referenced")
	}
	h2.Unregister()
	h2.Unregister()
	if mon.StopWatchCallCount() != 1 {
		t.Errorf("Platform watch stopped %d times", mon.StopWatchCallCount())
	}
	if d := mon.StopWatchArgsForCall(0); d.Root() != root {
		t.Errorf("Stopped %s", d.Root())
	}
	if len(retired) != 2 || retired[0] != h1.ID() || retired[1] != h2.ID() {
		t.Errorf("Unexpected retire calls %v", retired)
	}
	if m.Len() != 0 || len(m.Roots()) != 0 {
		t.Error("Registry not empty")
	}

	for _, typ := range []events.EventType{events.WatchStarted, events.WatchStopped} {
		ev, err := sub.Poll(time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if ev.Type != typ {
			t.Errorf("Got %v, expected %v", ev.Type, typ)
		}
	}
}

func TestStartWatchFailure(t *testing.T) {
	root := tempRoot(t)
	mon := &mocks.Monitor{}
	mon.StartWatchReturns(nil, monitor.ErrClosed)

	m := watch.NewManager(mon, watch.Options{})
	_, err := m.Watch(root, "", &fsevent.Funcs{})
	if !errors.Is(err, monitor.ErrClosed) {
		t.Fatalf("Expected monitor error, got %v", err)
	}
	if len(m.Roots()) != 0 {
		t.Error("Root recorded despite failure")
	}
}

func TestSymlinkedRoot(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on Windows")
	}
	root := tempRoot(t)
	link := filepath.Join(tempRoot(t), "link")
	if err := os.Symlink(root, link); err != nil {
		t.Fatal(err)
	}

	mon := newFakeMonitor()
	m := watch.NewManager(mon, watch.Options{})
	h, err := m.Watch(link, "", &fsevent.Funcs{})
	if err != nil {
		t.Fatal(err)
	}
	if h.Root() != root || mon.StartWatchArgsForCall(0) != root {
		t.Errorf("Root not resolved: %s", h.Root())
	}
}

func TestDefaults(t *testing.T) {
	root := tempRoot(t)
	m := watch.NewManager(newFakeMonitor(), watch.Options{Delay: time.Second})

	regOf := func(h *watch.Handle) *watch.Registration {
		t.Helper()
		for _, reg := range m.Match(modified(filepath.Join(root, "x.txt"))) {
			if reg.ID == h.ID() {
				return reg
			}
		}
		t.Fatalf("Registration %d not matched", h.ID())
		return nil
	}

	h, _ := m.Watch(root, "", &fsevent.Funcs{Glob: "*.txt"})
	if h.Pattern() != "*.txt" {
		t.Errorf("Pattern not taken from listener: %q", h.Pattern())
	}
	if reg := regOf(h); reg.Delay != time.Second {
		t.Errorf("Expected configured delay, got %v", reg.Delay)
	}

	h, _ = m.Watch(root, "", &fsevent.Funcs{Glob: "*.txt", Delay: time.Minute})
	if reg := regOf(h); reg.Delay != time.Minute {
		t.Errorf("Expected listener delay, got %v", reg.Delay)
	}

	h, _ = m.Watch(root, "", &fsevent.Funcs{Glob: "*.txt", Delay: time.Minute}, watch.WithDelay(time.Hour))
	if reg := regOf(h); reg.Delay != time.Hour {
		t.Errorf("Expected option delay, got %v", reg.Delay)
	}

	h, _ = m.Watch(root, "", &fsevent.Funcs{})
	if h.Pattern() != "**" {
		t.Errorf("Expected match-all pattern, got %q", h.Pattern())
	}
}

func TestMatch(t *testing.T) {
	root := tempRoot(t)
	other := tempRoot(t)
	m := watch.NewManager(newFakeMonitor(), watch.Options{})

	md, _ := m.Watch(root, "*.md", &fsevent.Funcs{})
	docs, _ := m.Watch(root, "docs/**", &fsevent.Funcs{})
	notTmp, _ := m.Watch(root, "**", &fsevent.Funcs{}, watch.WithFilter(func(ev fsevent.Event) bool {
		return filepath.Ext(ev.Path) != ".tmp"
	}))
	rejectAll, _ := m.Watch(root, "**", &fsevent.Funcs{Accept: func(fsevent.Event) bool { return false }})

	cases := []struct {
		ev   fsevent.Event
		want []uint64
	}{
		{modified(filepath.Join(root, "README.md")), []uint64{md.ID(), notTmp.ID()}},
		{modified(filepath.Join(root, "docs", "deep", "guide.md")), []uint64{md.ID(), docs.ID(), notTmp.ID()}},
		{modified(filepath.Join(root, "a.tmp")), nil},
		{modified(filepath.Join(other, "README.md")), nil},
		{fsevent.Event{Type: fsevent.Modified, Path: root, IsDir: true}, []uint64{md.ID(), docs.ID(), notTmp.ID()}},
		{fsevent.Event{Type: fsevent.Renamed, Path: filepath.Join(root, "b.txt"), OldPath: filepath.Join(root, "a.md")}, []uint64{md.ID(), notTmp.ID()}},
	}
	for i, tc := range cases {
		var got []uint64
		for _, reg := range m.Match(tc.ev) {
			got = append(got, reg.ID)
		}
		if !equalIDs(got, tc.want) {
			t.Errorf("%d: %v matched %v, want %v", i, tc.ev, got, tc.want)
		}
	}
	_ = rejectAll
}

func TestMatchAfterUnregister(t *testing.T) {
	root := tempRoot(t)
	m := watch.NewManager(newFakeMonitor(), watch.Options{})

	h1, _ := m.Watch(root, "**", &fsevent.Funcs{})
	h2, _ := m.Watch(root, "**", &fsevent.Funcs{})
	h1.Unregister()

	regs := m.Match(modified(filepath.Join(root, "f")))
	if len(regs) != 1 || regs[0].ID != h2.ID() {
		t.Errorf("Unexpected matches %v", regs)
	}
}

func TestIgnoreFiles(t *testing.T) {
	root := tempRoot(t)
	bus := events.NewLogger()
	sub := bus.Subscribe(events.IgnoreReloaded)
	defer bus.Unsubscribe(sub)

	m := watch.NewManager(newFakeMonitor(), watch.Options{
		IgnoreFileName: ".gitignore",
		GlobalIgnores:  []string{".git/"},
		Excludes:       []string{filepath.Join(root, "srcwatch.log")},
		Events:         bus,
	})
	if _, err := m.Watch(root, "**", &fsevent.Funcs{}); err != nil {
		t.Fatal(err)
	}

	generated := filepath.Join(root, "gen", "out.go")
	if len(m.Match(modified(generated))) != 1 {
		t.Fatal("Not matched before ignoring")
	}
	for _, path := range []string{filepath.Join(root, ".git", "index"), filepath.Join(root, "srcwatch.log")} {
		if regs := m.Match(modified(path)); len(regs) != 0 {
			t.Errorf("%s matched despite exclusion", path)
		}
	}

	ignoreFile := filepath.Join(root, ".gitignore")
	if err := os.WriteFile(ignoreFile, []byte("gen/\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ev := modified(ignoreFile)
	if !m.IsIgnoreFile(ev) {
		t.Fatal("Ignore file not recognized")
	}
	if len(m.Match(ev)) != 1 {
		t.Error("Ignore file change not delivered")
	}
	if regs := m.Match(modified(generated)); len(regs) != 0 {
		t.Error("Rule change not applied after the ignore file event")
	}

	m.ReloadIgnores(ev)
	got, err := sub.Poll(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	data := got.Data.(map[string]interface{})
	if data["rules"] != 1 || data["dir"] != root {
		t.Errorf("Unexpected reload data %v", data)
	}
}

func TestClose(t *testing.T) {
	root := tempRoot(t)
	mon := newFakeMonitor()
	var retired int
	m := watch.NewManager(mon, watch.Options{OnRetire: func(*watch.Registration) { retired++ }})

	h, _ := m.Watch(root, "**", &fsevent.Funcs{})
	m.Close()
	if retired != 1 || mon.StopWatchCallCount() != 1 {
		t.Errorf("Close retired %d, stopped %d", retired, mon.StopWatchCallCount())
	}
	h.Unregister()
	if retired != 1 {
		t.Error("Unregister after Close retired again")
	}
	if _, err := m.Watch(root, "**", &fsevent.Funcs{}); !errors.Is(err, watch.ErrClosed) {
		t.Errorf("Watch after Close returned %v", err)
	}
}

func equalIDs(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[uint64]int)
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		seen[id]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}
