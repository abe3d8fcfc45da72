// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/srcwatch/srcwatch/lib/config"
	"github.com/srcwatch/srcwatch/lib/engine"
	"github.com/srcwatch/srcwatch/lib/events"
	"github.com/srcwatch/srcwatch/lib/fsevent"
	"github.com/srcwatch/srcwatch/lib/monitor"
	"github.com/srcwatch/srcwatch/lib/monitor/mocks"
	"github.com/srcwatch/srcwatch/lib/watch"
)

func fakeMonitor() (*mocks.Monitor, chan fsevent.Event) {
	c := make(chan fsevent.Event, 64)
	mon := &mocks.Monitor{}
	mon.NameReturns("fake")
	mon.EventsReturns(c)
	mon.StartWatchCalls(func(root string) (*monitor.Descriptor, error) {
		return monitor.NewDescriptor(root), nil
	})
	var once stdsync.Once
	mon.CloseCalls(func() error {
		once.Do(func() { close(c) })
		return nil
	})
	return mon, c
}

func tempRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return root
}

func startEngine(t *testing.T, cfg config.Configuration, opts ...engine.Option) *engine.Engine {
	t.Helper()
	e := engine.New(cfg, opts...)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := e.Stop(5 * time.Second); err != nil {
			t.Error(err)
		}
	})
	return e
}

// recorder collects the events delivered to a listener.
type recorder struct {
	mut    stdsync.Mutex
	events []fsevent.Event
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 100)}
}

func (r *recorder) record(ev fsevent.Event) error {
	r.mut.Lock()
	r.events = append(r.events, ev)
	r.mut.Unlock()
	r.notify <- struct{}{}
	return nil
}

func (r *recorder) funcs(glob string) *fsevent.Funcs {
	return &fsevent.Funcs{
		Glob:            glob,
		Created:         r.record,
		Modified:        r.record,
		Deleted:         r.record,
		Renamed:         r.record,
		SymlinkCreated:  r.record,
		SymlinkModified: r.record,
		SymlinkDeleted:  r.record,
	}
}

func (r *recorder) wait(t *testing.T, n int) []fsevent.Event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.notify:
		case <-time.After(5 * time.Second):
			t.Fatalf("Received %d of %d deliveries", i, n)
		}
	}
	r.mut.Lock()
	defer r.mut.Unlock()
	return append([]fsevent.Event(nil), r.events...)
}

func (r *recorder) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case <-r.notify:
		r.mut.Lock()
		defer r.mut.Unlock()
		t.Fatalf("Unexpected delivery, have %v", r.events)
	case <-time.After(wait):
	}
}

func modified(path string) fsevent.Event {
	return fsevent.Event{Type: fsevent.Modified, Path: path, Time: time.Now()}
}

func TestCoalesceBurst(t *testing.T) {
	root := tempRoot(t)
	mon, c := fakeMonitor()
	e := startEngine(t, config.New(), engine.WithMonitor(mon))

	rec := newRecorder()
	if _, err := e.Watch(root, "*.md", rec.funcs(""), watch.WithDelay(200*time.Millisecond)); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(root, "notes.md")
	var last fsevent.Event
	for i := 0; i < 3; i++ {
		last = modified(path)
		c <- last
		time.Sleep(20 * time.Millisecond)
	}

	got := rec.wait(t, 1)
	if got[0].Type != fsevent.Modified || got[0].Path != path || !got[0].Time.Equal(last.Time) {
		t.Errorf("Expected the last modification, got %v", got[0])
	}
	rec.expectNone(t, 400*time.Millisecond)
}

func TestRouting(t *testing.T) {
	root := tempRoot(t)
	mon, c := fakeMonitor()
	e := startEngine(t, config.New(), engine.WithMonitor(mon))

	rec := newRecorder()
	if _, err := e.Watch(root, "*.go", rec.funcs(""), watch.WithDelay(10*time.Millisecond)); err != nil {
		t.Fatal(err)
	}

	in := []fsevent.Event{
		{Type: fsevent.Created, Path: filepath.Join(root, "a.go")},
		{Type: fsevent.Modified, Path: filepath.Join(root, "b.txt")},
		{Type: fsevent.Renamed, Path: filepath.Join(root, "new.go"), OldPath: filepath.Join(root, "old.go")},
		{Type: fsevent.Deleted, Path: filepath.Join(root, "sub", "c.go")},
		{Type: fsevent.SymlinkCreated, Path: filepath.Join(root, "d.go"), SymlinkTarget: "a.go"},
	}
	for _, ev := range in {
		c <- ev
	}

	got := rec.wait(t, 4)
	seen := make(map[fsevent.Type]fsevent.Event)
	for _, ev := range got {
		seen[ev.Type] = ev
	}
	for _, typ := range []fsevent.Type{fsevent.Created, fsevent.Renamed, fsevent.Deleted, fsevent.SymlinkCreated} {
		if _, ok := seen[typ]; !ok {
			t.Errorf("No %v delivered: %v", typ, got)
		}
	}
	if seen[fsevent.Renamed].OldPath != filepath.Join(root, "old.go") {
		t.Errorf("Rename lost its old path: %v", seen[fsevent.Renamed])
	}
	rec.expectNone(t, 100*time.Millisecond)

	if mon.StartWatchCallCount() != 1 {
		t.Errorf("StartWatch called %d times", mon.StartWatchCallCount())
	}
}

func TestUnregisterDropsPending(t *testing.T) {
	root := tempRoot(t)
	mon, c := fakeMonitor()
	e := startEngine(t, config.New(), engine.WithMonitor(mon))

	rec := newRecorder()
	h, err := e.Watch(root, "**", rec.funcs(""), watch.WithDelay(200*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	c <- modified(filepath.Join(root, "f"))
	deadline := time.Now().Add(5 * time.Second)
	for e.Stats().Pending == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Event never became pending")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.Unregister()
	h.Unregister()

	stats := e.Stats()
	if stats.Pending != 0 || stats.Registrations != 0 || stats.Roots != 0 {
		t.Errorf("Registration left state behind: %+v", stats)
	}
	if mon.StopWatchCallCount() != 1 {
		t.Errorf("StopWatch called %d times", mon.StopWatchCallCount())
	}
	rec.expectNone(t, 400*time.Millisecond)
}

func TestListenerFailureIsolation(t *testing.T) {
	root := tempRoot(t)
	mon, c := fakeMonitor()
	e := startEngine(t, config.New(), engine.WithMonitor(mon))

	sub := e.Subscribe(events.ListenerFailed)
	defer e.Unsubscribe(sub)

	broken := &fsevent.Funcs{Name: "broken", Modified: func(fsevent.Event) error {
		panic("boom")
	}}
	rec := newRecorder()
	for _, lst := range []fsevent.Listener{broken, rec.funcs("")} {
		if _, err := e.Watch(root, "**", lst, watch.WithDelay(10*time.Millisecond)); err != nil {
			t.Fatal(err)
		}
	}

	c <- modified(filepath.Join(root, "f"))
	rec.wait(t, 1)

	ev, err := sub.Poll(5 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if data := ev.Data.(map[string]interface{}); data["listener"] != "broken" {
		t.Errorf("Unexpected failure data %v", data)
	}

	// The pool keeps working after the panic.
	c <- modified(filepath.Join(root, "g"))
	rec.wait(t, 1)
}

func TestIgnoreFileReload(t *testing.T) {
	root := tempRoot(t)
	mon, c := fakeMonitor()
	e := startEngine(t, config.New(), engine.WithMonitor(mon))

	sub := e.Subscribe(events.IgnoreReloaded)
	defer e.Unsubscribe(sub)

	rec := newRecorder()
	if _, err := e.Watch(root, "**", rec.funcs(""), watch.WithDelay(10*time.Millisecond)); err != nil {
		t.Fatal(err)
	}

	ignoreFile := filepath.Join(root, ".gitignore")
	if err := os.WriteFile(ignoreFile, []byte("*.log\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c <- modified(ignoreFile)
	if _, err := sub.Poll(5 * time.Second); err != nil {
		t.Fatal("Ignore rules not reloaded:", err)
	}
	rec.wait(t, 1)

	c <- modified(filepath.Join(root, "build.log"))
	c <- modified(filepath.Join(root, "main.c"))
	got := rec.wait(t, 1)
	if got[len(got)-1].Path != filepath.Join(root, "main.c") {
		t.Errorf("Unexpected delivery %v", got[len(got)-1])
	}
	rec.expectNone(t, 100*time.Millisecond)
}

func TestLogFileExcluded(t *testing.T) {
	root := tempRoot(t)
	mon, c := fakeMonitor()

	cfg := config.New()
	cfg.Options.LogFile = filepath.Join(root, "srcwatch.log")
	e := startEngine(t, cfg, engine.WithMonitor(mon))

	rec := newRecorder()
	if _, err := e.Watch(root, "**", rec.funcs(""), watch.WithDelay(10*time.Millisecond)); err != nil {
		t.Fatal(err)
	}

	c <- modified(cfg.Options.LogFile)
	rec.expectNone(t, 100*time.Millisecond)
}

func TestStop(t *testing.T) {
	root := tempRoot(t)
	mon, _ := fakeMonitor()
	e := engine.New(config.New(), engine.WithMonitor(mon))
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(context.Background()); !errors.Is(err, engine.ErrAlreadyStarted) {
		t.Errorf("Second Start returned %v", err)
	}

	if _, err := e.Watch(root, "**", &fsevent.Funcs{}); err != nil {
		t.Fatal(err)
	}

	if err := e.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
	if err := e.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
	if mon.CloseCallCount() != 1 {
		t.Errorf("Monitor closed %d times", mon.CloseCallCount())
	}
	if mon.StopWatchCallCount() != 1 {
		t.Errorf("Watch not released on stop")
	}
	if _, err := e.Watch(root, "**", &fsevent.Funcs{}); !errors.Is(err, engine.ErrStopped) {
		t.Errorf("Watch after Stop returned %v", err)
	}
	if err := e.Start(context.Background()); !errors.Is(err, engine.ErrStopped) {
		t.Errorf("Start after Stop returned %v", err)
	}
}

func TestStopTimeout(t *testing.T) {
	root := tempRoot(t)
	mon, c := fakeMonitor()
	e := engine.New(config.New(), engine.WithMonitor(mon))
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	started := make(chan struct{})
	stuck := &fsevent.Funcs{Modified: func(fsevent.Event) error {
		close(started)
		<-release
		return nil
	}}
	if _, err := e.Watch(root, "**", stuck, watch.WithDelay(10*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	c <- modified(filepath.Join(root, "f"))
	<-started

	err := e.Stop(100 * time.Millisecond)
	close(release)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected a drain timeout, got %v", err)
	}
}

func TestNativeMonitor(t *testing.T) {
	if testing.Short() {
		t.Skip("uses the file system")
	}
	root := tempRoot(t)
	path := filepath.Join(root, "notes.md")
	if err := os.WriteFile(path, []byte("0"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.New()
	cfg.Options.DebounceDelayS = 0.2
	e := startEngine(t, cfg)

	type delivered struct {
		at      time.Time
		content string
	}
	var mut stdsync.Mutex
	var modifications int
	done := make(chan delivered, 10)
	lst := &fsevent.Funcs{Glob: "*.md", Modified: func(ev fsevent.Event) error {
		mut.Lock()
		modifications++
		mut.Unlock()
		bs, _ := os.ReadFile(ev.Path)
		done <- delivered{time.Now(), string(bs)}
		return nil
	}}
	if _, err := e.Watch(root, "", lst); err != nil {
		t.Fatal(err)
	}

	var first time.Time
	for i, content := range []string{"1", "22", "333"} {
		if i == 0 {
			first = time.Now()
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case d := <-done:
		if waited := d.at.Sub(first); waited < 200*time.Millisecond || waited > 2*time.Second {
			t.Errorf("Modification delivered %v after the first write, expected 200ms to 2s", waited)
		}
		if d.content != "333" {
			t.Errorf("Callback read %q, expected the final content", d.content)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("No modification delivered")
	}
	time.Sleep(500 * time.Millisecond)

	mut.Lock()
	defer mut.Unlock()
	if modifications != 1 {
		t.Errorf("Expected one coalesced modification, got %d", modifications)
	}
}
