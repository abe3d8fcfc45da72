// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build (darwin && cgo) || windows

package monitor

import (
	"fmt"
	"path/filepath"

	"github.com/syncthing/notify"

	"github.com/srcwatch/srcwatch/lib/sync"
)

// Notify does not block on sending to channel, so the channel must be
// buffered. The actual number is magic.
var backendBuffer = 500

type notifyRaw struct {
	root     string
	raw      rawEvent
	overflow bool
}

// notifyBackend serves the recursive native APIs through
// github.com/syncthing/notify. Each root has its own notify channel and
// forwarder; one loop normalizes everything.
type notifyBackend struct {
	opts    backendOptions
	norm    *normalizer
	merged  chan notifyRaw
	watches map[string]*notifyWatch
	mut     sync.Mutex
	wg      sync.WaitGroup
	done    chan struct{}
}

type notifyWatch struct {
	c    chan notify.EventInfo
	stop chan struct{}
}

func newNotifyBackend(opts backendOptions) *notifyBackend {
	b := &notifyBackend{
		opts:    opts,
		norm:    newNormalizer(opts),
		merged:  make(chan notifyRaw, backendBuffer),
		watches: make(map[string]*notifyWatch),
		mut:     sync.NewMutex(),
		wg:      sync.NewWaitGroup(),
		done:    make(chan struct{}),
	}
	go b.serve()
	return b
}

func (*notifyBackend) name() string {
	return nativeName
}

func (b *notifyBackend) startWatch(root string) error {
	b.mut.Lock()
	defer b.mut.Unlock()

	if _, ok := b.watches[root]; ok {
		return nil
	}

	c := make(chan notify.EventInfo, backendBuffer)
	skip := func(path string) bool {
		return b.opts.Skip != nil && b.opts.Skip(cleanPath(path))
	}
	if err := notify.WatchWithFilter(filepath.Join(root, "..."), c, skip, nativeEventMask); err != nil {
		notify.Stop(c)
		if isDescriptorsExhausted(err) {
			return fmt.Errorf("watching %s: %w: %w", root, ErrDescriptorsExhausted, err)
		}
		return fmt.Errorf("watching %s: %w", root, err)
	}

	w := &notifyWatch{c: c, stop: make(chan struct{})}
	b.watches[root] = w
	b.norm.seed(root)

	b.wg.Add(1)
	go b.forward(root, w)
	return nil
}

func (b *notifyBackend) stopWatch(root string) error {
	b.mut.Lock()
	w, ok := b.watches[root]
	delete(b.watches, root)
	b.mut.Unlock()
	if !ok {
		return ErrNotWatched
	}
	notify.Stop(w.c)
	close(w.stop)
	b.norm.forget(root)
	return nil
}

func (b *notifyBackend) close() error {
	b.mut.Lock()
	for root, w := range b.watches {
		notify.Stop(w.c)
		close(w.stop)
		delete(b.watches, root)
	}
	b.mut.Unlock()
	b.wg.Wait()
	<-b.done
	return nil
}

// forward moves notifications from one root's channel to the merged
// channel, detecting overflow of the notify buffer.
func (b *notifyBackend) forward(root string, w *notifyWatch) {
	defer b.wg.Done()
	for {
		// Detect channel overflow
		if len(w.c) == backendBuffer {
		outer:
			for {
				select {
				case <-w.c:
				default:
					break outer
				}
			}
			if !b.push(notifyRaw{root: root, overflow: true}, w) {
				return
			}
		}

		select {
		case ev := <-w.c:
			raw, ok := rawFromNotify(ev)
			if !ok {
				continue
			}
			if !b.push(notifyRaw{root: root, raw: raw}, w) {
				return
			}
		case <-w.stop:
			return
		case <-b.opts.stop:
			return
		}
	}
}

func (b *notifyBackend) push(nr notifyRaw, w *notifyWatch) bool {
	select {
	case b.merged <- nr:
		return true
	case <-w.stop:
		return false
	case <-b.opts.stop:
		return false
	}
}

func (b *notifyBackend) serve() {
	defer close(b.done)
	for {
		select {
		case nr := <-b.merged:
			if nr.overflow {
				send(b.opts, b.norm.overflow(nr.root))
				continue
			}
			l.Debugln(nativeName+":", nr.raw.op, nr.raw.path)
			send(b.opts, b.norm.handle(nr.raw)...)

		case <-b.norm.flushTimer():
			send(b.opts, b.norm.flush()...)

		case <-b.opts.stop:
			return
		}
	}
}

// rawFromNotify maps the platform independent notify events. Platform
// specific bits are mapped by nativeOp.
func rawFromNotify(ev notify.EventInfo) (rawEvent, bool) {
	raw := rawEvent{path: ev.Path()}
	e := ev.Event()
	if e&notify.Create != 0 {
		raw.op |= opCreate
	}
	if e&notify.Write != 0 {
		raw.op |= opWrite
	}
	if e&notify.Remove != 0 {
		raw.op |= opRemove
	}
	if e&notify.Rename != 0 {
		raw.op |= opRename
	}
	raw.op |= nativeOp(ev)
	return raw, raw.op != 0
}
