// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build !windows

package monitor

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isDescriptorsExhausted reports the errors inotify returns when the per
// user watch limit (ENOSPC) or the instance limit (EMFILE) is reached.
func isDescriptorsExhausted(err error) bool {
	return errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EMFILE)
}
