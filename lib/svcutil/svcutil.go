// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package svcutil adapts srcwatch components to suture services.
package svcutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/srcwatch/srcwatch/lib/logger"
	"github.com/srcwatch/srcwatch/lib/sync"

	"github.com/thejerf/suture/v4"
)

// ServiceTimeout bounds how long the supervisor waits for a single service
// to return after its context is cancelled.
const ServiceTimeout = 10 * time.Second

type ExitStatus int

const (
	ExitSuccess ExitStatus = 0
	ExitError   ExitStatus = 1
	// ExitUnclean is returned when the dispatch pool did not drain within
	// the shutdown timeout.
	ExitUnclean ExitStatus = 2
)

func (s ExitStatus) AsInt() int {
	return int(s)
}

// ExitStatusFor maps the result of a shutdown to an exit status.
func ExitStatusFor(err error) ExitStatus {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, context.DeadlineExceeded):
		return ExitUnclean
	default:
		return ExitError
	}
}

// NoRestartErr wraps the given error err (which may be nil) to make sure that
// `errors.Is(err, suture.ErrDoNotRestart) == true`.
func NoRestartErr(err error) error {
	if err == nil {
		return suture.ErrDoNotRestart
	}
	return &noRestartErr{err}
}

type noRestartErr struct {
	err error
}

func (e *noRestartErr) Error() string {
	return e.err.Error()
}

func (e *noRestartErr) Unwrap() error {
	return e.err
}

func (e *noRestartErr) Is(target error) bool {
	return target == suture.ErrDoNotRestart
}

// A Service is a suture service that remembers how its last run ended.
type Service interface {
	suture.Service
	fmt.Stringer
	Error() error
}

// AsService wraps fn as a suture service named after its creator.
func AsService(fn func(ctx context.Context) error, creator string) Service {
	return &service{
		creator: creator,
		serve:   fn,
		mut:     sync.NewMutex(),
	}
}

type service struct {
	creator string
	serve   func(ctx context.Context) error
	err     error
	mut     sync.Mutex
}

func (s *service) Serve(ctx context.Context) error {
	s.mut.Lock()
	s.err = nil
	s.mut.Unlock()

	err := s.serve(ctx)

	s.mut.Lock()
	s.err = err
	s.mut.Unlock()

	return err
}

// Error returns the error of the last completed run, nil while running.
func (s *service) Error() error {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.err
}

func (s *service) String() string {
	return fmt.Sprintf("Service@%p created by %v", s, s.creator)
}

// SpecWithDebugLogger returns a supervisor spec that logs service restarts
// and failures on the given facility at debug level. Panics are passed
// through.
func SpecWithDebugLogger(l logger.Logger) suture.Spec {
	return suture.Spec{
		EventHook: func(e suture.Event) { l.Debugln(e) },
		Timeout:   ServiceTimeout,

		PassThroughPanics: true,
	}
}
