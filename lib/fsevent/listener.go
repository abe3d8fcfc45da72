// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package fsevent

import (
	"fmt"
	"time"
)

// A Listener receives events for paths matching its pattern. Delivery goes
// through the optional capability interfaces below; a listener that does
// not implement the capability for an event type silently ignores it.
type Listener interface {
	Pattern() string
}

type CreatedListener interface {
	OnCreated(Event) error
}

type ModifiedListener interface {
	OnModified(Event) error
}

type DeletedListener interface {
	OnDeleted(Event) error
}

type RenamedListener interface {
	OnRenamed(Event) error
}

type SymlinkCreatedListener interface {
	OnSymlinkCreated(Event) error
}

type SymlinkModifiedListener interface {
	OnSymlinkModified(Event) error
}

type SymlinkDeletedListener interface {
	OnSymlinkDeleted(Event) error
}

// Filterer lets a listener reject events after pattern matching. Returning
// false drops the event.
type Filterer interface {
	Filter(Event) bool
}

// DebounceDelayer overrides the configured debounce delay for a listener.
type DebounceDelayer interface {
	DebounceDelay() time.Duration
}

// Filter is a predicate over events, true meaning deliver.
type Filter func(Event) bool

// Deliver invokes the capability of l matching ev.Type. It is a no-op
// returning nil when l lacks that capability.
func Deliver(l Listener, ev Event) error {
	switch ev.Type {
	case Created:
		if c, ok := l.(CreatedListener); ok {
			return c.OnCreated(ev)
		}
	case Modified:
		if c, ok := l.(ModifiedListener); ok {
			return c.OnModified(ev)
		}
	case Deleted:
		if c, ok := l.(DeletedListener); ok {
			return c.OnDeleted(ev)
		}
	case Renamed:
		if c, ok := l.(RenamedListener); ok {
			return c.OnRenamed(ev)
		}
	case SymlinkCreated:
		if c, ok := l.(SymlinkCreatedListener); ok {
			return c.OnSymlinkCreated(ev)
		}
	case SymlinkModified:
		if c, ok := l.(SymlinkModifiedListener); ok {
			return c.OnSymlinkModified(ev)
		}
	case SymlinkDeleted:
		if c, ok := l.(SymlinkDeletedListener); ok {
			return c.OnSymlinkDeleted(ev)
		}
	default:
		return fmt.Errorf("unknown event type %d", ev.Type)
	}
	return nil
}

// Describe returns a short identity for l, used in log lines.
func Describe(l Listener) string {
	if s, ok := l.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T(%s)", l, l.Pattern())
}

// Funcs is a Listener built from optional callbacks. A nil field means the
// corresponding capability is not handled.
type Funcs struct {
	Name  string
	Glob  string
	Delay time.Duration

	Created         func(Event) error
	Modified        func(Event) error
	Deleted         func(Event) error
	Renamed         func(Event) error
	SymlinkCreated  func(Event) error
	SymlinkModified func(Event) error
	SymlinkDeleted  func(Event) error
	Accept          func(Event) bool
}

var (
	_ Listener                = (*Funcs)(nil)
	_ CreatedListener         = (*Funcs)(nil)
	_ ModifiedListener        = (*Funcs)(nil)
	_ DeletedListener         = (*Funcs)(nil)
	_ RenamedListener         = (*Funcs)(nil)
	_ SymlinkCreatedListener  = (*Funcs)(nil)
	_ SymlinkModifiedListener = (*Funcs)(nil)
	_ SymlinkDeletedListener  = (*Funcs)(nil)
	_ Filterer                = (*Funcs)(nil)
	_ DebounceDelayer         = (*Funcs)(nil)
)

func (f *Funcs) Pattern() string {
	return f.Glob
}

func (f *Funcs) String() string {
	if f.Name != "" {
		return f.Name
	}
	return fmt.Sprintf("Funcs(%s)", f.Glob)
}

func (f *Funcs) OnCreated(ev Event) error         { return call(f.Created, ev) }
func (f *Funcs) OnModified(ev Event) error        { return call(f.Modified, ev) }
func (f *Funcs) OnDeleted(ev Event) error         { return call(f.Deleted, ev) }
func (f *Funcs) OnRenamed(ev Event) error         { return call(f.Renamed, ev) }
func (f *Funcs) OnSymlinkCreated(ev Event) error  { return call(f.SymlinkCreated, ev) }
func (f *Funcs) OnSymlinkModified(ev Event) error { return call(f.SymlinkModified, ev) }
func (f *Funcs) OnSymlinkDeleted(ev Event) error  { return call(f.SymlinkDeleted, ev) }

func (f *Funcs) Filter(ev Event) bool {
	if f.Accept == nil {
		return true
	}
	return f.Accept(ev)
}

// DebounceDelay returns Delay; zero leaves the configured default in place.
func (f *Funcs) DebounceDelay() time.Duration {
	return f.Delay
}

func call(fn func(Event) error, ev Event) error {
	if fn == nil {
		return nil
	}
	return fn(ev)
}
