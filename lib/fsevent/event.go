// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package fsevent defines the canonical file system change event and the
// listener capabilities that receive it.
package fsevent

import (
	"fmt"
	"time"
)

type Type int

const (
	Created Type = iota + 1
	Modified
	Deleted
	Renamed
	SymlinkCreated
	SymlinkModified
	SymlinkDeleted
)

func (t Type) String() string {
	switch t {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	case SymlinkCreated:
		return "symlink-created"
	case SymlinkModified:
		return "symlink-modified"
	case SymlinkDeleted:
		return "symlink-deleted"
	default:
		return "unknown"
	}
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(bs []byte) error {
	for c := Created; c <= SymlinkDeleted; c++ {
		if c.String() == string(bs) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", bs)
}

// IsSymlink reports whether t is one of the symlink variants.
func (t Type) IsSymlink() bool {
	return t == SymlinkCreated || t == SymlinkModified || t == SymlinkDeleted
}

// Class groups event types for coalescing. Symlink variants share the class
// of their base action.
type Class int

const (
	ClassCreate Class = iota
	ClassModify
	ClassRemove
	ClassRename
)

func (c Class) String() string {
	switch c {
	case ClassCreate:
		return "create"
	case ClassModify:
		return "modify"
	case ClassRemove:
		return "remove"
	case ClassRename:
		return "rename"
	default:
		return "unknown"
	}
}

func (t Type) Class() Class {
	switch t {
	case Created, SymlinkCreated:
		return ClassCreate
	case Deleted, SymlinkDeleted:
		return ClassRemove
	case Renamed:
		return ClassRename
	default:
		return ClassModify
	}
}

// Event is a single normalized change. Paths are absolute and cleaned.
// OldPath is set only for Renamed and SymlinkTarget only for symlink types
// when the target could be read.
type Event struct {
	Type          Type      `json:"type"`
	Path          string    `json:"path"`
	OldPath       string    `json:"oldPath,omitempty"`
	IsDir         bool      `json:"isDir"`
	Time          time.Time `json:"time"`
	SymlinkTarget string    `json:"symlinkTarget,omitempty"`
}

func (e Event) String() string {
	if e.Type == Renamed {
		return fmt.Sprintf("%v %s -> %s", e.Type, e.OldPath, e.Path)
	}
	if e.SymlinkTarget != "" {
		return fmt.Sprintf("%v %s -> %s", e.Type, e.Path, e.SymlinkTarget)
	}
	return fmt.Sprintf("%v %s", e.Type, e.Path)
}
