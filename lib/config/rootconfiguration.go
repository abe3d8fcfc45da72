// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"path/filepath"
	"time"
)

type RootConfiguration struct {
	Path           string   `json:"path"`
	Patterns       []string `json:"patterns" default:"**"`
	DebounceDelayS float64  `json:"debounceDelayS"` // Zero uses the global delay.
}

func (r RootConfiguration) Copy() RootConfiguration {
	c := r
	c.Patterns = make([]string, len(r.Patterns))
	copy(c.Patterns, r.Patterns)
	return c
}

func (r *RootConfiguration) prepare() {
	if err := fillNilSlices(r); err != nil {
		panic("bug: fillNilSlices on root: " + err.Error())
	}
	if len(r.Patterns) == 0 {
		r.Patterns = []string{"**"}
	}
	if r.DebounceDelayS < 0 {
		r.DebounceDelayS = 0
	}
	if expanded, err := ExpandTilde(r.Path); err == nil {
		r.Path = expanded
	}
	if !filepath.IsAbs(r.Path) {
		if abs, err := filepath.Abs(r.Path); err == nil {
			r.Path = abs
		}
	}
}

// Delay returns the root's debounce delay, falling back to the global
// option when unset.
func (r RootConfiguration) Delay(opts OptionsConfiguration) time.Duration {
	if r.DebounceDelayS > 0 {
		return seconds(r.DebounceDelayS)
	}
	return opts.DebounceDelay()
}
