// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package automaxprocs sizes GOMAXPROCS, and with it the default worker
// pool, to the CPU quota of a container.
package automaxprocs

import (
	"runtime"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/srcwatch/srcwatch/lib/logger"
)

var l = logger.DefaultLogger.NewFacility("maxprocs", "GOMAXPROCS adjustment")

// Set adjusts GOMAXPROCS and returns a function restoring the previous
// value. Failure leaves GOMAXPROCS unchanged.
func Set() func() {
	undo, err := maxprocs.Set(maxprocs.Logger(l.Debugf))
	if err != nil {
		l.Infoln("Not adjusting GOMAXPROCS:", err)
		return func() {}
	}
	l.Debugln("GOMAXPROCS is", runtime.GOMAXPROCS(0))
	return undo
}
