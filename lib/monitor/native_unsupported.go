// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build !linux && !windows && !(darwin && cgo)

package monitor

import (
	"errors"
	"runtime"
)

func newNative(backendOptions) (backend, error) {
	return nil, &InitError{Backend: runtime.GOOS, Err: errors.New("no native backend on this platform")}
}
