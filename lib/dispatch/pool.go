// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package dispatch runs listener callbacks on a bounded pool of workers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	stdsync "sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/srcwatch/srcwatch/lib/events"
	"github.com/srcwatch/srcwatch/lib/fsevent"
	"github.com/srcwatch/srcwatch/lib/svcutil"
	"github.com/srcwatch/srcwatch/lib/sync"
)

const (
	defaultMaxQueue    = 4096
	defaultSoftTimeout = 10 * time.Second
)

var ErrPoolStopped = errors.New("worker pool stopped")

type Options struct {
	// Workers defaults to twice GOMAXPROCS.
	Workers int
	// MaxQueue is the number of queued tasks at which Submit blocks.
	MaxQueue int
	// SoftTimeout is how long a task may run before a warning is
	// logged. Tasks are never interrupted.
	SoftTimeout time.Duration
	Events      *events.Logger
}

func (o *Options) setDefaults() {
	if o.Workers <= 0 {
		o.Workers = 2 * runtime.GOMAXPROCS(0)
	}
	if o.MaxQueue <= 0 {
		o.MaxQueue = defaultMaxQueue
	}
	if o.SoftTimeout <= 0 {
		o.SoftTimeout = defaultSoftTimeout
	}
	if o.Events == nil {
		o.Events = events.Noop
	}
}

// Pool runs submitted tasks, housekeeping first and otherwise in
// submission order. Workers run while Serve does.
type Pool struct {
	opts Options

	queues   [numPriorities][]Task
	queued   int
	stopping bool
	mut      sync.Mutex
	// Broadcast on every change of queued or stopping.
	cond *stdsync.Cond

	inFlight atomic.Int64
	serving  atomic.Bool
	done     chan struct{}

	failureWarn *rate.Limiter
	slowWarn    *rate.Limiter
}

func NewPool(opts Options) *Pool {
	opts.setDefaults()
	p := &Pool{
		opts:        opts,
		mut:         sync.NewMutex(),
		done:        make(chan struct{}),
		failureWarn: rate.NewLimiter(rate.Every(time.Second), 10),
		slowWarn:    rate.NewLimiter(rate.Every(time.Minute), 1),
	}
	p.cond = stdsync.NewCond(p.mut)
	return p
}

func (p *Pool) String() string {
	return fmt.Sprintf("dispatch.Pool@%p", p)
}

// Submit queues t, blocking while the queue is full. It returns
// ErrPoolStopped once Stop has been called.
func (p *Pool) Submit(t Task) error {
	if t.Priority < 0 || t.Priority >= numPriorities {
		t.Priority = PriorityListener
	}

	p.mut.Lock()
	defer p.mut.Unlock()

	for !p.stopping && p.queued >= p.opts.MaxQueue {
		p.cond.Wait()
	}
	if p.stopping {
		return ErrPoolStopped
	}
	p.queues[t.Priority] = append(p.queues[t.Priority], t)
	p.queued++
	p.cond.Broadcast()
	return nil
}

// QueueLen returns the number of tasks waiting for a worker.
func (p *Pool) QueueLen() int {
	p.mut.Lock()
	defer p.mut.Unlock()
	return p.queued
}

// InFlight returns the number of tasks being run.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

func (p *Pool) Workers() int {
	return p.opts.Workers
}

func (p *Pool) MaxQueue() int {
	return p.opts.MaxQueue
}

// Serve runs the workers until Stop has drained the queue or ctx is
// cancelled.
func (p *Pool) Serve(ctx context.Context) error {
	if !p.serving.CompareAndSwap(false, true) {
		return svcutil.NoRestartErr(errors.New("pool already serving"))
	}
	l.Debugf("%v starting %d workers", p, p.opts.Workers)

	wg := sync.NewWaitGroup()
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker()
		}()
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		close(p.done)
		return svcutil.NoRestartErr(nil)
	case <-ctx.Done():
		p.beginStop()
		<-finished
		close(p.done)
		return ctx.Err()
	}
}

// Stop stops accepting tasks and waits until the queued and running ones
// have completed, or ctx expires.
func (p *Pool) Stop(ctx context.Context) error {
	p.beginStop()

	if !p.serving.Load() {
		p.mut.Lock()
		dropped := p.queued
		p.queues = [numPriorities][]Task{}
		p.queued = 0
		p.mut.Unlock()
		if dropped > 0 {
			l.Infof("Dropped %d tasks queued before the pool started", dropped)
		}
		return nil
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%d tasks queued and %d running at shutdown: %w", p.QueueLen(), p.InFlight(), ctx.Err())
	}
}

func (p *Pool) beginStop() {
	p.mut.Lock()
	p.stopping = true
	p.cond.Broadcast()
	p.mut.Unlock()
}

func (p *Pool) worker() {
	for {
		t, ok := p.next()
		if !ok {
			return
		}
		p.run(t)
		p.inFlight.Add(-1)
	}
}

// next returns the next task, or false when the pool is stopping and the
// queue is empty.
func (p *Pool) next() (Task, bool) {
	p.mut.Lock()
	defer p.mut.Unlock()

	for p.queued == 0 {
		if p.stopping {
			return Task{}, false
		}
		p.cond.Wait()
	}

	for prio := range p.queues {
		if len(p.queues[prio]) == 0 {
			continue
		}
		t := p.queues[prio][0]
		p.queues[prio][0] = Task{}
		p.queues[prio] = p.queues[prio][1:]
		p.queued--
		p.inFlight.Add(1)
		p.cond.Broadcast()
		return t, true
	}
	panic("bug: queued count out of sync")
}

func (p *Pool) run(t Task) {
	start := time.Now()
	slow := time.AfterFunc(p.opts.SoftTimeout, func() {
		p.reportSlow(t, start)
	})

	err := p.protect(t)
	slow.Stop()

	prio := t.Priority.String()
	metricTasks.WithLabelValues(prio).Inc()
	metricTaskSeconds.WithLabelValues(prio).Add(time.Since(start).Seconds())

	if err != nil {
		p.reportFailure(err)
	}
}

// protect runs t, turning a returned error or a panic into a
// CallbackError.
func (p *Pool) protect(t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &CallbackError{
				Task:     t.String(),
				Listener: t.Listener,
				Event:    t.Event,
				Err:      &PanicError{Value: r},
				Stack:    debug.Stack(),
			}
		}
	}()

	if t.Run == nil {
		return nil
	}
	if err := t.Run(); err != nil {
		return &CallbackError{
			Task:     t.String(),
			Listener: t.Listener,
			Event:    t.Event,
			Err:      err,
		}
	}
	return nil
}

func (p *Pool) reportFailure(err error) {
	metricCallbackFailures.Inc()

	var cerr *CallbackError
	if !errors.As(err, &cerr) {
		l.Warnln("Task failed:", err)
		return
	}
	if p.failureWarn.Allow() {
		l.Warnln(cerr)
		if len(cerr.Stack) > 0 {
			l.Infof("Panic stack:\n%s", cerr.Stack)
		}
	} else {
		l.Debugln(cerr)
	}

	data := map[string]interface{}{
		"task":  cerr.Task,
		"error": cerr.Err.Error(),
	}
	if cerr.Listener != nil {
		data["listener"] = fsevent.Describe(cerr.Listener)
		data["event"] = cerr.Event
	}
	p.opts.Events.Log(events.ListenerFailed, data)
}

func (p *Pool) reportSlow(t Task, start time.Time) {
	metricSlowCallbacks.Inc()
	if p.slowWarn.Allow() {
		l.Warnf("%s is still running after %v", t, time.Since(start).Truncate(time.Millisecond))
	} else {
		l.Debugln("slow task", t)
	}
	p.opts.Events.Log(events.ListenerSlow, map[string]interface{}{
		"task":    t.String(),
		"running": time.Since(start).String(),
	})
}
