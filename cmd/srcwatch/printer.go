// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/srcwatch/srcwatch/lib/fsevent"
	"github.com/srcwatch/srcwatch/lib/sync"
)

// printer writes every delivered event as a line. Callbacks run on several
// workers, so writes are serialized.
type printer struct {
	w    io.Writer
	json bool
	mut  sync.Mutex
}

func newPrinter(w io.Writer, json bool) *printer {
	return &printer{w: w, json: json, mut: sync.NewMutex()}
}

func (p *printer) listener(name, pattern string) *fsevent.Funcs {
	return &fsevent.Funcs{
		Name:            name,
		Glob:            pattern,
		Created:         p.print,
		Modified:        p.print,
		Deleted:         p.print,
		Renamed:         p.print,
		SymlinkCreated:  p.print,
		SymlinkModified: p.print,
		SymlinkDeleted:  p.print,
	}
}

func (p *printer) print(ev fsevent.Event) error {
	p.mut.Lock()
	defer p.mut.Unlock()

	if p.json {
		return json.NewEncoder(p.w).Encode(ev)
	}
	_, err := fmt.Fprintf(p.w, "%s %s\n", ev.Time.Format("15:04:05.000"), ev)
	return err
}
