// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build windows

package monitor

import (
	"github.com/syncthing/notify"
)

const (
	nativeName      = BackendReadDirectoryChanges
	nativeEventMask = notify.All
)

// ReadDirectoryChangesW reports renames as separate old and new name
// actions, which notify maps to Rename; the normalizer pairs them.
func newNative(opts backendOptions) (backend, error) {
	return newNotifyBackend(opts), nil
}

func nativeOp(notify.EventInfo) op {
	return 0
}
