// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package engine ties the monitor, watch registry, debouncer and worker
// pool together: events flow from the monitor through matching and
// debouncing to listener callbacks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/srcwatch/srcwatch/lib/config"
	"github.com/srcwatch/srcwatch/lib/debounce"
	"github.com/srcwatch/srcwatch/lib/dispatch"
	"github.com/srcwatch/srcwatch/lib/events"
	"github.com/srcwatch/srcwatch/lib/fsevent"
	"github.com/srcwatch/srcwatch/lib/monitor"
	"github.com/srcwatch/srcwatch/lib/svcutil"
	"github.com/srcwatch/srcwatch/lib/sync"
	"github.com/srcwatch/srcwatch/lib/tracker"
	"github.com/srcwatch/srcwatch/lib/watch"
)

var (
	ErrAlreadyStarted = errors.New("engine already started")
	ErrStopped        = errors.New("engine stopped")
)

type Option func(*builder)

type builder struct {
	mon      monitor.Monitor
	evLogger *events.Logger
	excludes []string
}

// WithMonitor replaces the platform monitor, mainly for tests.
func WithMonitor(mon monitor.Monitor) Option {
	return func(b *builder) {
		b.mon = mon
	}
}

// WithEvents sets the bus lifecycle events are published on.
func WithEvents(evLogger *events.Logger) Option {
	return func(b *builder) {
		b.evLogger = evLogger
	}
}

// WithExcludes adds absolute paths that never produce events, in addition
// to the configured log file.
func WithExcludes(paths ...string) Option {
	return func(b *builder) {
		b.excludes = append(b.excludes, paths...)
	}
}

type Engine struct {
	cfg      config.Configuration
	evLogger *events.Logger

	mon       monitor.Monitor
	manager   *watch.Manager
	debouncer *debounce.Debouncer
	pool      *dispatch.Pool
	tracker   *tracker.Tracker

	sup        *suture.Supervisor
	cancel     context.CancelFunc
	supDone    <-chan error
	ingestDone chan struct{}
	started    bool
	stopped    bool
	mut        sync.Mutex
}

// New builds the components described by cfg. Nothing runs until Start.
func New(cfg config.Configuration, opts ...Option) *Engine {
	var b builder
	for _, opt := range opts {
		opt(&b)
	}
	if b.evLogger == nil {
		b.evLogger = events.NewLogger()
	}
	if cfg.Options.LogFile != "" {
		if abs, err := filepath.Abs(cfg.Options.LogFile); err == nil {
			b.excludes = append(b.excludes, abs)
		}
	}
	for i, path := range b.excludes {
		b.excludes[i] = filepath.Clean(path)
	}

	if b.mon == nil {
		b.mon = monitor.New(monitor.Options{
			Mode:         cfg.Options.MonitorMode,
			PollInterval: cfg.Options.PollInterval(),
			Skip:         skipFunc(b.excludes),
			Events:       b.evLogger,
		})
	}

	e := &Engine{
		cfg:        cfg,
		evLogger:   b.evLogger,
		mon:        b.mon,
		ingestDone: make(chan struct{}),
		mut:        sync.NewMutex(),
	}

	e.pool = dispatch.NewPool(dispatch.Options{
		Workers:     cfg.Options.Workers,
		MaxQueue:    cfg.Options.MaxQueueDepth,
		SoftTimeout: cfg.Options.SoftTimeout(),
		Events:      b.evLogger,
	})
	e.debouncer = debounce.New(e.submit, debounce.Options{
		MaxDelayFactor: float64(cfg.Options.MaxDelayFactor),
	})
	e.manager = watch.NewManager(e.mon, watch.Options{
		Delay:          cfg.Options.DebounceDelay(),
		IgnoreFileName: cfg.Options.IgnoreFileName,
		GlobalIgnores:  cfg.Options.GlobalIgnores,
		Excludes:       b.excludes,
		OnRetire:       e.retire,
		Events:         b.evLogger,
	})
	e.tracker = tracker.New(tracker.Sources{
		Roots:         func() int { return len(e.manager.Roots()) },
		Registrations: e.manager.Len,
		Pending:       e.debouncer.Len,
		QueueLen:      e.pool.QueueLen,
		InFlight:      e.pool.InFlight,
		MaxQueue:      e.pool.MaxQueue(),
	}, tracker.Options{
		Interval: cfg.Options.SampleInterval(),
	})

	return e
}

func (e *Engine) String() string {
	return fmt.Sprintf("engine@%p", e)
}

// Start runs the components under a supervisor until Stop is called or
// ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	e.mut.Lock()
	defer e.mut.Unlock()
	if e.stopped {
		return ErrStopped
	}
	if e.started {
		return ErrAlreadyStarted
	}

	e.sup = suture.New("engine", svcutil.SpecWithDebugLogger(l))
	e.sup.Add(e.pool)
	e.sup.Add(e.debouncer)
	e.sup.Add(svcutil.AsService(e.ingest, e.String()))
	e.sup.Add(e.tracker)

	ctx, e.cancel = context.WithCancel(ctx)
	e.supDone = e.sup.ServeBackground(ctx)
	e.started = true

	l.Infof("Started with the %s monitor, %d workers", e.mon.Name(), e.pool.Workers())
	return nil
}

// Watch registers listener for changes below root; see watch.Manager.
func (e *Engine) Watch(root, pattern string, listener fsevent.Listener, opts ...watch.Option) (*watch.Handle, error) {
	e.mut.Lock()
	stopped := e.stopped
	e.mut.Unlock()
	if stopped {
		return nil, &watch.RegistrationError{Root: root, Err: ErrStopped}
	}
	return e.manager.Watch(root, pattern, listener, opts...)
}

// Stop shuts down in order: the monitor and ingestion, the debouncer with
// its pending events, the worker pool (draining queued callbacks for at
// most timeout), and finally the remaining services. It returns an error
// when the pool did not drain in time.
func (e *Engine) Stop(timeout time.Duration) error {
	e.mut.Lock()
	if e.stopped {
		e.mut.Unlock()
		return nil
	}
	e.stopped = true
	started := e.started
	e.mut.Unlock()

	deadline := time.Now().Add(timeout)

	if err := e.mon.Close(); err != nil {
		l.Infoln("Closing monitor:", err)
	}
	if started {
		select {
		case <-e.ingestDone:
		case <-time.After(time.Until(deadline)):
			l.Warnln("Event ingestion did not stop in time")
		}
	}

	e.debouncer.Stop()

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()
	err := e.pool.Stop(ctx)
	if err != nil {
		l.Warnln("Listener callbacks still running at shutdown:", err)
	}

	e.manager.Close()

	if started {
		e.cancel()
		if err == nil {
			select {
			case <-e.supDone:
			case <-time.After(svcutil.ServiceTimeout):
				l.Warnln("Services did not stop within", svcutil.ServiceTimeout)
			}
		}
	}

	l.Infoln("Stopped")
	return err
}

// Stats samples the current resource usage.
func (e *Engine) Stats() tracker.Snapshot {
	return e.tracker.Sample()
}

// Subscribe returns a subscription to the engine's lifecycle events.
func (e *Engine) Subscribe(mask events.EventType) *events.Subscription {
	return e.evLogger.Subscribe(mask)
}

func (e *Engine) Unsubscribe(s *events.Subscription) {
	e.evLogger.Unsubscribe(s)
}

// MonitorName returns the name of the native monitor backend, or "poll".
func (e *Engine) MonitorName() string {
	return e.mon.Name()
}

// ingest is the sole reader of the monitor's events.
func (e *Engine) ingest(ctx context.Context) error {
	defer func() {
		select {
		case <-e.ingestDone:
		default:
			close(e.ingestDone)
		}
	}()

	evs := e.mon.Events()
	for {
		select {
		case ev, ok := <-evs:
			if !ok {
				l.Debugln("monitor closed; ingestion stopped")
				return svcutil.NoRestartErr(nil)
			}
			e.handle(ev)
		case <-ctx.Done():
			return svcutil.NoRestartErr(ctx.Err())
		}
	}
}

func (e *Engine) handle(ev fsevent.Event) {
	e.tracker.CountEvent(e.backendOf(ev.Path))

	regs := e.manager.Match(ev)
	l.Debugf("%v matches %d registrations", ev, len(regs))
	for _, reg := range regs {
		key := debounce.Key{Target: reg.ID, Path: ev.Path, Class: ev.Type.Class()}
		e.debouncer.Add(reg, key, ev, reg.Delay)
	}

	if e.manager.IsIgnoreFile(ev) {
		task := dispatch.Task{
			Priority: dispatch.PriorityHousekeeping,
			Name:     "reload ignore rules of " + filepath.Dir(ev.Path),
			Run: func() error {
				e.manager.ReloadIgnores(ev)
				return nil
			},
		}
		if err := e.pool.Submit(task); err != nil {
			l.Debugln("not reloading ignore rules:", err)
		}
	}
}

func (e *Engine) backendOf(path string) string {
	if backend := e.manager.Backend(path); backend != "" {
		return backend
	}
	return e.mon.Name()
}

// submit is called by the debouncer with entries that are due.
func (e *Engine) submit(target debounce.Target, ev fsevent.Event) {
	reg := target.(*watch.Registration)
	if err := e.pool.Submit(dispatch.ListenerTask(reg.Listener, ev, reg.Active)); err != nil {
		l.Debugln("dropping", ev, "for", reg, err)
		return
	}
	e.tracker.CountDelivery(fsevent.Describe(reg.Listener))
}

// retire drops pending events of a registration that was unregistered.
func (e *Engine) retire(reg *watch.Registration) {
	e.debouncer.Cancel(reg.ID)
}

func skipFunc(excludes []string) func(string) bool {
	if len(excludes) == 0 {
		return nil
	}
	return func(path string) bool {
		for _, ex := range excludes {
			if path == ex {
				return true
			}
		}
		return false
	}
}
