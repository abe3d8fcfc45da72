// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package tracker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/srcwatch/srcwatch/lib/logger"
)

func constant(n int) func() int {
	return func() int { return n }
}

func TestSample(t *testing.T) {
	tr := New(Sources{
		Roots:         constant(2),
		Registrations: constant(5),
		Pending:       constant(7),
		QueueLen:      constant(1),
	}, Options{})

	tr.CountEvent("inotify")
	tr.CountEvent("inotify")
	tr.CountEvent("poll")
	tr.CountDelivery("builder")

	if !tr.Snapshot().Time.IsZero() {
		t.Error("Snapshot before first sample is not empty")
	}

	s := tr.Sample()
	if s.Roots != 2 || s.Registrations != 5 || s.Pending != 7 || s.QueueLen != 1 || s.InFlight != 0 {
		t.Errorf("Unexpected snapshot %+v", s)
	}
	if s.Events["inotify"] != 2 || s.Events["poll"] != 1 || s.Deliveries["builder"] != 1 {
		t.Errorf("Unexpected counters %v %v", s.Events, s.Deliveries)
	}
	if s.Goroutines == 0 {
		t.Error("No goroutines counted")
	}
	if got := tr.Snapshot(); !got.Time.Equal(s.Time) {
		t.Error("Snapshot does not return the last sample")
	}
}

func TestQueueWarning(t *testing.T) {
	rec := logger.NewRecorder(logger.DefaultLogger, logger.LevelWarn, 10)
	since := time.Now().Add(-time.Second)

	tr := New(Sources{QueueLen: constant(90), MaxQueue: 100}, Options{})
	tr.Sample()
	tr.Sample()

	var warnings int
	for _, line := range rec.Since(since) {
		if strings.Contains(line.Message, "90 of 100") {
			warnings++
		}
	}
	if warnings != 1 {
		t.Errorf("Expected one rate limited warning, got %d", warnings)
	}

	tr = New(Sources{QueueLen: constant(50), MaxQueue: 100}, Options{})
	rec.Clear()
	tr.Sample()
	if lines := rec.Since(since); len(lines) != 0 {
		t.Errorf("Warning below threshold: %v", lines)
	}
}

func TestServe(t *testing.T) {
	tr := New(Sources{Roots: constant(1)}, Options{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- tr.Serve(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for tr.Snapshot().Roots != 1 {
		if time.Now().After(deadline) {
			t.Fatal("No sample taken")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Serve returned %v", err)
	}
}
