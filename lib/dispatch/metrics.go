// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "srcwatch",
		Subsystem: "dispatch",
		Name:      "tasks_total",
		Help:      "Total number of tasks run, per priority",
	}, []string{"priority"})
	metricTaskSeconds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "srcwatch",
		Subsystem: "dispatch",
		Name:      "task_seconds_total",
		Help:      "Total time spent running tasks, per priority",
	}, []string{"priority"})
	metricCallbackFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "srcwatch",
		Subsystem: "dispatch",
		Name:      "callback_failures_total",
		Help:      "Total number of tasks that returned an error or panicked",
	})
	metricSlowCallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "srcwatch",
		Subsystem: "dispatch",
		Name:      "slow_callbacks_total",
		Help:      "Total number of tasks that ran past the soft timeout",
	})
)
