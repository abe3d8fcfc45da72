// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package watch

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/srcwatch/srcwatch/lib/fsevent"
)

var (
	ErrNoListener     = errors.New("no listener given")
	ErrNotDirectory   = errors.New("not a directory")
	ErrInvalidPattern = errors.New("invalid pattern")
	ErrClosed         = errors.New("watch manager closed")
)

// RegistrationError is returned by Watch when a registration cannot be
// established.
type RegistrationError struct {
	Root string
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("watching %s: %v", e.Root, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// A Registration binds a listener to a pattern below a watched root.
type Registration struct {
	ID       uint64
	Root     string
	Pattern  string
	Listener fsevent.Listener
	Filter   fsevent.Filter
	Delay    time.Duration

	active atomic.Bool
}

// Active reports whether the registration may still receive events. It
// turns false, permanently, when the registration is unregistered.
func (r *Registration) Active() bool {
	return r.active.Load()
}

func (r *Registration) String() string {
	return fmt.Sprintf("registration %d (%s for %s in %s)", r.ID, fsevent.Describe(r.Listener), r.Pattern, r.Root)
}

// accepts applies the registration's filter.
func (r *Registration) accepts(ev fsevent.Event) bool {
	return r.Filter == nil || r.Filter(ev)
}

// A Handle is returned by Watch and ends the registration.
type Handle struct {
	m   *Manager
	reg *Registration
}

func (h *Handle) Root() string {
	return h.reg.Root
}

func (h *Handle) Pattern() string {
	return h.reg.Pattern
}

func (h *Handle) ID() uint64 {
	return h.reg.ID
}

// Unregister ends the registration. When it returns no further event is
// queued for the listener. Calling it again does nothing.
func (h *Handle) Unregister() {
	h.m.unregister(h.reg)
}

type Option func(*regOptions)

type regOptions struct {
	filter fsevent.Filter
	delay  time.Duration
}

// WithFilter sets the predicate applied after pattern matching, taking
// precedence over a Filterer listener.
func WithFilter(f fsevent.Filter) Option {
	return func(o *regOptions) {
		o.filter = f
	}
}

// WithDelay sets the debounce delay of the registration, taking precedence
// over a DebounceDelayer listener and the configured default.
func WithDelay(d time.Duration) Option {
	return func(o *regOptions) {
		o.delay = d
	}
}
