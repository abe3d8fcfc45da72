// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build darwin && cgo

package monitor

import (
	"github.com/syncthing/notify"
)

const (
	nativeName      = BackendFSEvents
	nativeEventMask = notify.Create | notify.Remove | notify.Write | notify.Rename | notify.FSEventsInodeMetaMod
)

// FSEvents watches are recursive, one stream per root.
func newNative(opts backendOptions) (backend, error) {
	return newNotifyBackend(opts), nil
}

func nativeOp(ev notify.EventInfo) op {
	if ev.Event()&notify.FSEventsInodeMetaMod != 0 {
		return opChmod
	}
	return 0
}
