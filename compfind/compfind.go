// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package compfind matches a node's native components to the replicas that
// should own them. A finder is built once per node from its current
// component list; each native component can be claimed at most once, so
// no component is ever bound to two replicas.
package compfind

import (
	"slices"

	"github.com/mirrorscene/mirrorscene/scene"
)

// candidate is one not-yet-consumed native component, tagged with its
// original position so out-of-order matching can be detected.
type candidate struct {
	comp *scene.Component
	pos  int
}

// Finder matches native components by type and template identity,
// consuming each match at most once.
type Finder struct {

	// InOrder is whether all matches so far were found in the original
	// component order. When it becomes false the caller must resync the
	// native component order after matching.
	InOrder bool

	pool    []candidate
	lastPos int
}

// New returns a finder over the current components of the given node.
func New(node scene.Node) *Finder {
	comps := node.AsScene().Components
	f := &Finder{InOrder: true, lastPos: -1}
	f.pool = make([]candidate, 0, len(comps))
	for i, c := range comps {
		f.pool = append(f.pool, candidate{comp: c, pos: i})
	}
	return f
}

// Find returns the native component matching the given type name and
// template identity, or nil if there is none.
//
// If fileID is non-zero an exact fileID match is tried first; a component
// found that way but with a mismatched type or sourceID is stale (the
// template changed its definition) and is destroyed before falling through
// to matching by (type, sourceID). Every returned component is removed from
// the candidate pool.
func (f *Finder) Find(typ string, sourceID, fileID int64) *scene.Component {
	if fileID != 0 {
		if i := slices.IndexFunc(f.pool, func(c candidate) bool { return c.comp.FileID == fileID }); i >= 0 {
			c := f.pool[i]
			if c.comp.Type == typ && c.comp.SourceFileID == sourceID {
				return f.consume(i)
			}
			// stale: same file identity, different definition
			f.pool = slices.Delete(f.pool, i, i+1)
			c.comp.Destroy()
		}
	}
	i := slices.IndexFunc(f.pool, func(c candidate) bool {
		return c.comp.Type == typ && c.comp.SourceFileID == sourceID
	})
	if i < 0 {
		return nil
	}
	return f.consume(i)
}

// consume removes the candidate at the given pool index and updates the
// in-order tracking.
func (f *Finder) consume(i int) *scene.Component {
	c := f.pool[i]
	f.pool = slices.Delete(f.pool, i, i+1)
	if c.pos < f.lastPos {
		f.InOrder = false
	}
	f.lastPos = c.pos
	return c.comp
}

// Remaining returns the components that have not been claimed.
func (f *Finder) Remaining() []*scene.Component {
	out := make([]*scene.Component, len(f.pool))
	for i, c := range f.pool {
		out[i] = c.comp
	}
	return out
}
