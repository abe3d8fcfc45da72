// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"time"
)

type OptionsConfiguration struct {
	DebounceDelayS   float64     `json:"debounceDelayS" default:"0.2"`
	MaxDelayFactor   int         `json:"maxDelayFactor" default:"10"`
	PollIntervalS    float64     `json:"pollIntervalS" default:"1"`
	MonitorMode      MonitorMode `json:"monitorMode" default:"auto"`
	MaxQueueDepth    int         `json:"maxQueueDepth" default:"4096"`
	Workers          int         `json:"workers"` // Zero or less selects twice the number of usable CPUs.
	SoftTimeoutS     float64     `json:"softTimeoutS" default:"10"`
	ShutdownTimeoutS float64     `json:"shutdownTimeoutS" default:"5"`
	IgnoreFileName   string      `json:"ignoreFileName" default:".gitignore"` // Empty disables per-directory ignore files.
	GlobalIgnores    []string    `json:"globalIgnores" default:".git/"`
	LogFile          string      `json:"logFile"`
	SampleIntervalS  float64     `json:"sampleIntervalS" default:"30"`
	MetricsListen    string      `json:"metricsListen"`
}

func (opts OptionsConfiguration) Copy() OptionsConfiguration {
	optsCopy := opts
	optsCopy.GlobalIgnores = make([]string, len(opts.GlobalIgnores))
	copy(optsCopy.GlobalIgnores, opts.GlobalIgnores)
	return optsCopy
}

func (opts *OptionsConfiguration) prepare() {
	if opts.DebounceDelayS < 0 {
		opts.DebounceDelayS = 0
	}
	if opts.MaxDelayFactor < 1 {
		opts.MaxDelayFactor = 1
	}
	if opts.PollIntervalS <= 0 {
		opts.PollIntervalS = 1
	}
	if opts.MaxQueueDepth <= 0 {
		opts.MaxQueueDepth = 4096
	}
	if opts.Workers < 0 {
		opts.Workers = 0
	}
	if opts.SoftTimeoutS <= 0 {
		opts.SoftTimeoutS = 10
	}
	if opts.ShutdownTimeoutS <= 0 {
		opts.ShutdownTimeoutS = 5
	}
	if opts.SampleIntervalS <= 0 {
		opts.SampleIntervalS = 30
	}
	if expanded, err := ExpandTilde(opts.LogFile); err == nil {
		opts.LogFile = expanded
	}
}

func (opts OptionsConfiguration) DebounceDelay() time.Duration {
	return seconds(opts.DebounceDelayS)
}

func (opts OptionsConfiguration) PollInterval() time.Duration {
	return seconds(opts.PollIntervalS)
}

func (opts OptionsConfiguration) SoftTimeout() time.Duration {
	return seconds(opts.SoftTimeoutS)
}

func (opts OptionsConfiguration) ShutdownTimeout() time.Duration {
	return seconds(opts.ShutdownTimeoutS)
}

func (opts OptionsConfiguration) SampleInterval() time.Duration {
	return seconds(opts.SampleIntervalS)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
