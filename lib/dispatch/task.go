// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package dispatch

import (
	"fmt"

	"github.com/srcwatch/srcwatch/lib/fsevent"
)

type Priority int

const (
	// PriorityHousekeeping tasks, such as reloading ignore rules, run
	// before any queued listener callback.
	PriorityHousekeeping Priority = iota
	PriorityListener
	numPriorities
)

func (p Priority) String() string {
	switch p {
	case PriorityHousekeeping:
		return "housekeeping"
	case PriorityListener:
		return "listener"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// A Task is run once by one worker. Listener and Event identify the
// callback in errors and are unset for housekeeping.
type Task struct {
	Priority Priority
	Name     string
	Run      func() error
	Listener fsevent.Listener
	Event    fsevent.Event
}

func (t Task) String() string {
	if t.Name != "" {
		return t.Name
	}
	if t.Listener != nil {
		return fmt.Sprintf("%s <- %v", fsevent.Describe(t.Listener), t.Event)
	}
	return t.Priority.String() + " task"
}

// ListenerTask returns the task delivering ev to lst. The delivery is
// skipped when active reports false by the time a worker picks it up.
func ListenerTask(lst fsevent.Listener, ev fsevent.Event, active func() bool) Task {
	return Task{
		Priority: PriorityListener,
		Listener: lst,
		Event:    ev,
		Run: func() error {
			if active != nil && !active() {
				return nil
			}
			return fsevent.Deliver(lst, ev)
		},
	}
}

// CallbackError describes a task that failed or panicked. Stack is set
// for panics.
type CallbackError struct {
	Task     string
	Listener fsevent.Listener
	Event    fsevent.Event
	Err      error
	Stack    []byte
}

func (e *CallbackError) Error() string {
	if e.Listener != nil {
		return fmt.Sprintf("listener %s failed on %v: %v", fsevent.Describe(e.Listener), e.Event, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Task, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// PanicError is the Err of a CallbackError for a task that panicked.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
