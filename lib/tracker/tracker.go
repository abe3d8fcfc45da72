// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package tracker samples the resource usage of the watcher.
package tracker

import (
	"context"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/time/rate"
)

const (
	defaultInterval = 30 * time.Second
	// Queue length, as a fraction of the maximum, above which a warning is
	// logged.
	queueWarnFraction = 0.8
)

// Sources report the current state of the other components. Nil functions
// read as zero.
type Sources struct {
	Roots         func() int
	Registrations func() int
	Pending       func() int
	QueueLen      func() int
	InFlight      func() int
	MaxQueue      int
}

type Options struct {
	Interval time.Duration
}

type Snapshot struct {
	Time          time.Time        `json:"time"`
	Roots         int              `json:"roots"`
	Registrations int              `json:"registrations"`
	Pending       int              `json:"pending"`
	QueueLen      int              `json:"queueLen"`
	InFlight      int              `json:"inFlight"`
	Goroutines    int              `json:"goroutines"`
	RSS           uint64           `json:"rss"`
	CPUPercent    float64          `json:"cpuPercent"`
	OpenFDs       int32            `json:"openFDs"`
	Events        map[string]int64 `json:"events"`
	Deliveries    map[string]int64 `json:"deliveries"`
}

type Tracker struct {
	sources  Sources
	interval time.Duration
	proc     *process.Process

	events     *xsync.MapOf[string, *atomic.Int64]
	deliveries *xsync.MapOf[string, *atomic.Int64]
	last       atomic.Pointer[Snapshot]
	queueWarn  *rate.Limiter
}

func New(sources Sources, opts Options) *Tracker {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		l.Infoln("Process statistics unavailable:", err)
	}
	t := &Tracker{
		sources:    sources,
		interval:   opts.Interval,
		proc:       proc,
		events:     xsync.NewMapOf[string, *atomic.Int64](),
		deliveries: xsync.NewMapOf[string, *atomic.Int64](),
		queueWarn:  rate.NewLimiter(rate.Every(time.Minute), 1),
	}
	t.last.Store(&Snapshot{})
	return t
}

func (t *Tracker) String() string {
	return "tracker"
}

// CountEvent records an event ingested from backend.
func (t *Tracker) CountEvent(backend string) {
	increment(t.events, backend)
	metricEvents.WithLabelValues(backend).Inc()
}

// CountDelivery records an event handed to the named listener.
func (t *Tracker) CountDelivery(listener string) {
	increment(t.deliveries, listener)
	metricDeliveries.WithLabelValues(listener).Inc()
}

func increment(m *xsync.MapOf[string, *atomic.Int64], key string) {
	c, _ := m.LoadOrCompute(key, func() *atomic.Int64 { return new(atomic.Int64) })
	c.Add(1)
}

func counts(m *xsync.MapOf[string, *atomic.Int64]) map[string]int64 {
	res := make(map[string]int64)
	m.Range(func(key string, c *atomic.Int64) bool {
		res[key] = c.Load()
		return true
	})
	return res
}

// Serve samples every interval until ctx is cancelled.
func (t *Tracker) Serve(ctx context.Context) error {
	t.Sample()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.Sample()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Sample takes, exports and returns a new snapshot.
func (t *Tracker) Sample() Snapshot {
	s := Snapshot{
		Time:          time.Now(),
		Roots:         read(t.sources.Roots),
		Registrations: read(t.sources.Registrations),
		Pending:       read(t.sources.Pending),
		QueueLen:      read(t.sources.QueueLen),
		InFlight:      read(t.sources.InFlight),
		Goroutines:    runtime.NumGoroutine(),
		Events:        counts(t.events),
		Deliveries:    counts(t.deliveries),
	}

	if t.proc != nil {
		if mem, err := t.proc.MemoryInfo(); err == nil {
			s.RSS = mem.RSS
		}
		if cpu, err := t.proc.Percent(0); err == nil {
			s.CPUPercent = cpu
		}
		if fds, err := t.proc.NumFDs(); err == nil {
			s.OpenFDs = fds
		}
	}

	metricWatchedRoots.Set(float64(s.Roots))
	metricRegistrations.Set(float64(s.Registrations))
	metricPendingEvents.Set(float64(s.Pending))
	metricQueueLength.Set(float64(s.QueueLen))
	metricInFlight.Set(float64(s.InFlight))
	metricGoroutines.Set(float64(s.Goroutines))
	metricRSSBytes.Set(float64(s.RSS))
	metricCPUPercent.Set(s.CPUPercent)
	metricOpenFDs.Set(float64(s.OpenFDs))

	if limit := t.sources.MaxQueue; limit > 0 && float64(s.QueueLen) > queueWarnFraction*float64(limit) {
		if t.queueWarn.Allow() {
			l.Warnf("Listener queue is at %d of %d tasks; listeners are not keeping up", s.QueueLen, limit)
		}
	}

	l.Debugf("sample: %d roots, %d registrations, %d pending, %d queued, %d in flight, %d goroutines, rss %d",
		s.Roots, s.Registrations, s.Pending, s.QueueLen, s.InFlight, s.Goroutines, s.RSS)

	t.last.Store(&s)
	return s
}

// Snapshot returns the most recent sample.
func (t *Tracker) Snapshot() Snapshot {
	return *t.last.Load()
}

func read(fn func() int) int {
	if fn == nil {
		return 0
	}
	return fn()
}
