// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:generate -command counterfeiter go run github.com/maxbrunsfeld/counterfeiter/v6
//go:generate counterfeiter -o mocks/monitor.go --fake-name Monitor . Monitor

// Package monitor turns operating system change notifications into
// fsevent.Events. The native backend is inotify on Linux, FSEvents on macOS
// and ReadDirectoryChangesW on Windows; a polling backend takes over where
// the native one is unavailable or runs out of resources.
package monitor

import (
	"errors"
	"fmt"
	"path/filepath"
	stdsync "sync"
	"time"

	"github.com/srcwatch/srcwatch/lib/config"
	"github.com/srcwatch/srcwatch/lib/events"
	"github.com/srcwatch/srcwatch/lib/fsevent"
	"github.com/srcwatch/srcwatch/lib/sync"
)

const (
	BackendInotify              = "inotify"
	BackendFSEvents             = "fsevents"
	BackendReadDirectoryChanges = "readdirectorychangesw"
	BackendPoll                 = "poll"
)

const (
	defaultBuffer       = 1024
	defaultPollInterval = time.Second
	// Rename halves are reported as separate notifications; a departure
	// not followed by an arrival within this window is a deletion.
	defaultRenameWindow = 50 * time.Millisecond
)

var (
	// ErrDescriptorsExhausted is returned when the operating system refuses
	// further watches, e.g. the inotify watch or instance limit.
	ErrDescriptorsExhausted = errors.New("watch descriptors exhausted")
	ErrClosed               = errors.New("monitor closed")
	ErrNotWatched           = errors.New("root not watched")
)

// InitError is returned by a native backend that cannot be initialized on
// this system.
type InitError struct {
	Backend string
	Err     error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initializing %s backend: %v", e.Backend, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// A Monitor delivers events for every path below the roots it watches on a
// single channel. The channel is closed by Close.
type Monitor interface {
	// Name returns the name of the native backend in use, or "poll".
	Name() string
	StartWatch(root string) (*Descriptor, error)
	StopWatch(d *Descriptor) error
	Events() <-chan fsevent.Event
	Close() error
}

// A Descriptor is the monitor's handle for one watched root. The backend
// serving it changes when a native watch degrades to polling.
type Descriptor struct {
	root    string
	mut     stdsync.Mutex
	backend backend
}

// NewDescriptor returns a descriptor not bound to any backend, for use by
// fake monitors in tests.
func NewDescriptor(root string) *Descriptor {
	return &Descriptor{root: root}
}

func (d *Descriptor) Root() string {
	return d.root
}

// Backend returns the name of the backend serving the root.
func (d *Descriptor) Backend() string {
	b := d.current()
	if b == nil {
		return ""
	}
	return b.name()
}

func (d *Descriptor) current() backend {
	d.mut.Lock()
	defer d.mut.Unlock()
	return d.backend
}

func (d *Descriptor) setBackend(b backend) {
	d.mut.Lock()
	d.backend = b
	d.mut.Unlock()
}

type Options struct {
	Mode         config.MonitorMode
	PollInterval time.Duration
	// Buffer is the capacity of the Events channel.
	Buffer int
	// RenameWindow bounds the pairing of rename halves.
	RenameWindow time.Duration
	// Skip reports paths that should never produce events.
	Skip   func(path string) bool
	Events *events.Logger
}

func (o *Options) setDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.Buffer <= 0 {
		o.Buffer = defaultBuffer
	}
	if o.RenameWindow <= 0 {
		o.RenameWindow = defaultRenameWindow
	}
	if o.Events == nil {
		o.Events = events.Noop
	}
}

// backend is implemented by the native backends and the poller. After
// close returns the backend sends nothing further.
type backend interface {
	name() string
	startWatch(root string) error
	stopWatch(root string) error
	close() error
}

type backendOptions struct {
	Options
	out  chan<- fsevent.Event
	stop <-chan struct{}
	// degrade hands a root over to polling after the native backend ran
	// out of watches below it. It must not be called with backend locks
	// held.
	degrade func(root string, err error)
}

// New returns the monitor for this platform. It never fails: when the
// native backend cannot be initialized, or polling is configured, all roots
// are polled.
func New(opts Options) Monitor {
	opts.setDefaults()

	m := &multiplexer{
		opts:  opts,
		out:   make(chan fsevent.Event, opts.Buffer),
		stop:  make(chan struct{}),
		descs: make(map[string]*Descriptor),
		mut:   sync.NewMutex(),
	}

	if opts.Mode == config.MonitorModePoll {
		l.Infoln("Using polling for all roots as configured")
		return m
	}

	native, err := newNative(m.backendOptions())
	if err != nil {
		if opts.Mode == config.MonitorModeNative {
			l.Warnf("Native file system notifications unavailable, polling instead: %v", err)
		} else {
			l.Infof("Native file system notifications unavailable, polling instead: %v", err)
		}
		opts.Events.Log(events.MonitorFallback, map[string]string{
			"error": err.Error(),
		})
		return m
	}

	l.Debugln("using native backend", native.name())
	m.native = native
	return m
}

type multiplexer struct {
	opts   Options
	native backend
	poller *poller
	out    chan fsevent.Event
	stop   chan struct{}
	descs  map[string]*Descriptor
	closed bool
	mut    sync.Mutex
}

func (m *multiplexer) backendOptions() backendOptions {
	return backendOptions{
		Options: m.opts,
		out:     m.out,
		stop:    m.stop,
		degrade: m.degrade,
	}
}

func (m *multiplexer) Name() string {
	if m.native == nil {
		return BackendPoll
	}
	return m.native.name()
}

func (m *multiplexer) Events() <-chan fsevent.Event {
	return m.out
}

func (m *multiplexer) StartWatch(root string) (*Descriptor, error) {
	root = filepath.Clean(root)

	m.mut.Lock()
	if m.closed {
		m.mut.Unlock()
		return nil, ErrClosed
	}
	native := m.native
	m.mut.Unlock()

	if native != nil {
		err := native.startWatch(root)
		if err == nil {
			l.Debugln("watching", root, "with", native.name())
			return m.track(root, native)
		}
		if errors.Is(err, ErrDescriptorsExhausted) {
			l.Warnf("Out of %s watches for %s, polling it instead. Consider raising the system limit. (%v)", native.name(), root, err)
		} else {
			l.Warnf("Watching %s with %s failed, polling it instead: %v", root, native.name(), err)
		}
		m.opts.Events.Log(events.MonitorFallback, map[string]string{
			"root":    root,
			"backend": native.name(),
			"error":   err.Error(),
		})
	}

	m.mut.Lock()
	if m.closed {
		m.mut.Unlock()
		return nil, ErrClosed
	}
	p := m.pollerLocked()
	m.mut.Unlock()

	if err := p.startWatch(root); err != nil {
		return nil, err
	}
	l.Debugln("polling", root)
	return m.track(root, p)
}

func (m *multiplexer) pollerLocked() *poller {
	if m.poller == nil {
		m.poller = newPoller(m.backendOptions())
	}
	return m.poller
}

func (m *multiplexer) track(root string, b backend) (*Descriptor, error) {
	d := &Descriptor{root: root, backend: b}
	m.mut.Lock()
	defer m.mut.Unlock()
	if m.closed {
		b.stopWatch(root)
		return nil, ErrClosed
	}
	m.descs[root] = d
	return d, nil
}

func (m *multiplexer) StopWatch(d *Descriptor) error {
	if d == nil || d.current() == nil {
		return ErrNotWatched
	}
	m.mut.Lock()
	defer m.mut.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.descs[d.root] == d {
		delete(m.descs, d.root)
	}
	return d.current().stopWatch(d.root)
}

// degrade moves root from the native backend to the poller. Other roots
// stay native.
func (m *multiplexer) degrade(root string, cause error) {
	m.mut.Lock()
	defer m.mut.Unlock()

	d, ok := m.descs[root]
	if m.closed || !ok || m.native == nil || d.current() != m.native {
		return
	}

	l.Warnf("Out of %s watches below %s, polling it instead. Consider raising the system limit. (%v)", m.native.name(), root, cause)
	m.opts.Events.Log(events.MonitorFallback, map[string]string{
		"root":    root,
		"backend": m.native.name(),
		"error":   cause.Error(),
	})

	if err := m.native.stopWatch(root); err != nil && !errors.Is(err, ErrNotWatched) {
		l.Debugln("releasing native watch of", root, err)
	}
	p := m.pollerLocked()
	if err := p.startWatch(root); err != nil {
		l.Warnf("Polling %s: %v", root, err)
		return
	}
	d.setBackend(p)
}

// Close stops all backends and then closes the Events channel.
func (m *multiplexer) Close() error {
	m.mut.Lock()
	if m.closed {
		m.mut.Unlock()
		return nil
	}
	m.closed = true
	close(m.stop)
	native, p := m.native, m.poller
	m.mut.Unlock()

	var errs []error
	if native != nil {
		if err := native.close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", native.name(), err))
		}
	}
	if p != nil {
		if err := p.close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.name(), err))
		}
	}
	close(m.out)
	return errors.Join(errs...)
}

// send delivers ev unless the monitor is stopping.
func send(o backendOptions, evs ...fsevent.Event) {
	for _, ev := range evs {
		select {
		case o.out <- ev:
		case <-o.stop:
			return
		}
	}
}
