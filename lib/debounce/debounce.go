// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package debounce coalesces bursts of events for the same path into one
// delivery carrying the latest state.
package debounce

import (
	"container/heap"
	"context"
	"fmt"
	"time"

	"github.com/srcwatch/srcwatch/lib/fsevent"
	"github.com/srcwatch/srcwatch/lib/svcutil"
	"github.com/srcwatch/srcwatch/lib/sync"
)

const DefaultMaxDelayFactor = 10

// A Target receives debounced events. Events for a target that is no
// longer active are dropped.
type Target interface {
	Active() bool
}

// Key identifies the entries that coalesce: same target, path and class
// of change.
type Key struct {
	Target uint64
	Path   string
	Class  fsevent.Class
}

type Options struct {
	// MaxDelayFactor bounds how long a stream of events can postpone
	// delivery, as a multiple of the delay given to Add.
	MaxDelayFactor float64
}

type entry struct {
	ready time.Time
	// first is when the first event of the burst was added; ready never
	// passes first plus the ceiling.
	first  time.Time
	seq    uint64
	target Target
	key    Key
	event  fsevent.Event
	index  int
}

// entryHeap is ordered by ready time, then insertion.
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].ready.Equal(h[j].ready) {
		return h[i].seq < h[j].seq
	}
	return h[i].ready.Before(h[j].ready)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Debouncer holds pending entries until their ready time and then hands
// them to the submit function from the goroutine running Serve.
type Debouncer struct {
	submit func(Target, fsevent.Event)
	factor float64

	entries  entryHeap
	byKey    map[Key]*entry
	byTarget map[uint64]map[Key]*entry
	seq      uint64
	stopped  bool
	mut      sync.Mutex

	wake chan struct{}
	stop chan struct{}
}

func New(submit func(Target, fsevent.Event), opts Options) *Debouncer {
	if opts.MaxDelayFactor < 1 {
		opts.MaxDelayFactor = DefaultMaxDelayFactor
	}
	return &Debouncer{
		submit:   submit,
		factor:   opts.MaxDelayFactor,
		byKey:    make(map[Key]*entry),
		byTarget: make(map[uint64]map[Key]*entry),
		mut:      sync.NewMutex(),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

func (d *Debouncer) String() string {
	return fmt.Sprintf("debounce.Debouncer@%p", d)
}

// Add schedules ev for target after delay. An entry pending under the same
// key takes ev as its payload and is postponed, but never beyond its
// ceiling.
func (d *Debouncer) Add(target Target, key Key, ev fsevent.Event, delay time.Duration) {
	now := time.Now()

	d.mut.Lock()
	defer d.mut.Unlock()

	if d.stopped || !target.Active() {
		return
	}

	var earliest time.Time
	if len(d.entries) > 0 {
		earliest = d.entries[0].ready
	}

	ready := now.Add(delay)
	if e, ok := d.byKey[key]; ok {
		ceiling := e.first.Add(time.Duration(float64(delay) * d.factor))
		if ready.After(ceiling) {
			ready = ceiling
		}
		e.ready = ready
		e.event = ev
		e.target = target
		heap.Fix(&d.entries, e.index)
		l.Debugln("coalesced", ev, "due in", ready.Sub(now))
	} else {
		d.seq++
		e := &entry{
			ready:  ready,
			first:  now,
			seq:    d.seq,
			target: target,
			key:    key,
			event:  ev,
		}
		heap.Push(&d.entries, e)
		d.byKey[key] = e
		keys, ok := d.byTarget[key.Target]
		if !ok {
			keys = make(map[Key]*entry)
			d.byTarget[key.Target] = keys
		}
		keys[key] = e
	}

	if earliest.IsZero() || d.entries[0].ready.Before(earliest) {
		select {
		case d.wake <- struct{}{}:
		default:
		}
	}
}

// Cancel drops every pending entry of the target.
func (d *Debouncer) Cancel(target uint64) {
	d.mut.Lock()
	defer d.mut.Unlock()

	keys := d.byTarget[target]
	for key, e := range keys {
		heap.Remove(&d.entries, e.index)
		delete(d.byKey, key)
	}
	delete(d.byTarget, target)
	if len(keys) > 0 {
		l.Debugf("dropped %d pending events of target %d", len(keys), target)
	}
}

// Len returns the number of pending entries.
func (d *Debouncer) Len() int {
	d.mut.Lock()
	defer d.mut.Unlock()
	return len(d.entries)
}

// Stop drops all pending entries; Add does nothing afterwards and Serve
// returns.
func (d *Debouncer) Stop() {
	d.mut.Lock()
	defer d.mut.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if n := len(d.entries); n > 0 {
		l.Debugf("dropping %d pending events on stop", n)
	}
	d.entries = nil
	clear(d.byKey)
	clear(d.byTarget)
	close(d.stop)
}

// Serve runs the scheduler, submitting entries as they become due.
func (d *Debouncer) Serve(ctx context.Context) error {
	for {
		due, next := d.popDue(time.Now())
		for _, e := range due {
			if !e.target.Active() {
				continue
			}
			d.submit(e.target, e.event)
		}

		var timeout <-chan time.Time
		var timer *time.Timer
		if !next.IsZero() {
			timer = time.NewTimer(time.Until(next))
			timeout = timer.C
		}

		select {
		case <-timeout:
		case <-d.wake:
		case <-d.stop:
			stopTimer(timer)
			return svcutil.NoRestartErr(nil)
		case <-ctx.Done():
			stopTimer(timer)
			return ctx.Err()
		}
		stopTimer(timer)
	}
}

// popDue removes the entries due at now and returns them in order, with
// the ready time of the next entry.
func (d *Debouncer) popDue(now time.Time) ([]*entry, time.Time) {
	d.mut.Lock()
	defer d.mut.Unlock()

	var due []*entry
	for len(d.entries) > 0 && !d.entries[0].ready.After(now) {
		e := heap.Pop(&d.entries).(*entry)
		delete(d.byKey, e.key)
		if keys := d.byTarget[e.key.Target]; keys != nil {
			delete(keys, e.key)
			if len(keys) == 0 {
				delete(d.byTarget, e.key.Target)
			}
		}
		due = append(due, e)
	}
	if len(d.entries) == 0 {
		return due, time.Time{}
	}
	return due, d.entries[0].ready
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
