// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"fmt"
)

// MonitorMode selects how change notifications are obtained.
type MonitorMode int

const (
	// MonitorModeAuto uses the native backend and falls back to polling
	// when it is unavailable.
	MonitorModeAuto MonitorMode = iota
	// MonitorModeNative is like auto but logs the fallback as a warning.
	MonitorModeNative
	// MonitorModePoll always polls.
	MonitorModePoll
)

func (m MonitorMode) String() string {
	switch m {
	case MonitorModeAuto:
		return "auto"
	case MonitorModeNative:
		return "native"
	case MonitorModePoll:
		return "poll"
	default:
		return "unknown"
	}
}

// Description returns a human-readable description of the mode.
func (m MonitorMode) Description() string {
	switch m {
	case MonitorModeAuto:
		return "Native notifications, polling when unavailable"
	case MonitorModeNative:
		return "Native notifications, warning when unavailable"
	case MonitorModePoll:
		return "Periodic scanning"
	default:
		return "Unknown"
	}
}

func (m MonitorMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *MonitorMode) UnmarshalText(textBytes []byte) error {
	switch text := string(textBytes); text {
	case "auto", "":
		*m = MonitorModeAuto
	case "native":
		*m = MonitorModeNative
	case "poll":
		*m = MonitorModePoll
	default:
		return fmt.Errorf("unknown monitor mode %q", text)
	}
	return nil
}

func (m *MonitorMode) ParseDefault(str string) error {
	return m.UnmarshalText([]byte(str))
}
