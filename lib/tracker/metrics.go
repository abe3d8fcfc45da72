// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricWatchedRoots = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "srcwatch",
		Subsystem: "tracker",
		Name:      "watched_roots",
		Help:      "Number of roots with a platform watch",
	})
	metricRegistrations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "srcwatch",
		Subsystem: "tracker",
		Name:      "registrations",
		Help:      "Number of active listener registrations",
	})
	metricPendingEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "srcwatch",
		Subsystem: "tracker",
		Name:      "pending_events",
		Help:      "Number of events waiting out their debounce delay",
	})
	metricQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "srcwatch",
		Subsystem: "tracker",
		Name:      "queue_length",
		Help:      "Number of tasks waiting for a worker",
	})
	metricInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "srcwatch",
		Subsystem: "tracker",
		Name:      "tasks_in_flight",
		Help:      "Number of tasks being run",
	})
	metricGoroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "srcwatch",
		Subsystem: "tracker",
		Name:      "goroutines",
		Help:      "Number of goroutines",
	})
	metricRSSBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "srcwatch",
		Subsystem: "tracker",
		Name:      "rss_bytes",
		Help:      "Resident set size of the process",
	})
	metricCPUPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "srcwatch",
		Subsystem: "tracker",
		Name:      "cpu_percent",
		Help:      "CPU usage of the process since the previous sample",
	})
	metricOpenFDs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "srcwatch",
		Subsystem: "tracker",
		Name:      "open_fds",
		Help:      "Number of open file descriptors, where the platform reports it",
	})

	metricEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "srcwatch",
		Subsystem: "tracker",
		Name:      "events_total",
		Help:      "Total number of file system events ingested, per monitor backend",
	}, []string{"backend"})
	metricDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "srcwatch",
		Subsystem: "tracker",
		Name:      "deliveries_total",
		Help:      "Total number of debounced events handed to listeners, per listener",
	}, []string{"listener"})
)
