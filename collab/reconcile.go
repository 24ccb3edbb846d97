// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package collab

import (
	"slices"

	"github.com/mirrorscene/mirrorscene/base/slicesx"
	"github.com/mirrorscene/mirrorscene/replica"
	"github.com/mirrorscene/mirrorscene/scene"
)

// Reconciler converges the native child order of a parent with the server's
// order in its replica, in both directions. [Reconciler.Apply] makes the
// native side match the server with a minimal number of child moves;
// [Reconciler.Sync] sends local reorderings and reparentings to the server,
// discarding any move that a lock forbids.
type Reconciler struct {

	// Prefer breaks ties in [Reconciler.Apply] when moving either of two
	// displaced children would reduce total displacement equally: it
	// returns whichever of the two should move. When nil, the child the
	// server expects at the contested position moves.
	Prefer func(server, local scene.Node) scene.Node

	eng *Engine
}

// Apply reorders the native children of the given parent to match the
// replica's child order, returning the number of child moves performed.
// Children the server parented here but that are natively elsewhere are
// pulled in first; unsynced native children keep their positions.
//
// At each mismatched position, either the child the server expects there
// is moved in, or the child occupying the position is moved out to its own
// server slot, whichever has the larger displacement. Applying an already
// converged parent performs no moves.
func (r *Reconciler) Apply(parent *replica.Object) int {
	node := r.eng.nodeOf(parent)
	if node == nil {
		return 0
	}
	pb := node.AsScene()
	moves := 0

	var server []scene.Node
	for _, child := range parent.Children() {
		cn := r.eng.nodeOf(child)
		if cn == nil {
			continue
		}
		if cn.AsScene().Parent != node {
			scene.MoveToParent(cn, node, len(pb.Children))
			moves++
		}
		server = append(server, cn)
	}
	if len(server) < 2 {
		return moves
	}

	synced := make(map[scene.Node]bool, len(server))
	serverIndex := make(map[scene.Node]int, len(server))
	for i, s := range server {
		synced[s] = true
		serverIndex[s] = i
	}
	local := make([]scene.Node, 0, len(server))
	for _, ch := range pb.Children {
		if synced[ch] {
			local = append(local, ch)
		}
	}

	for i := range server {
		// a blocker move brings a new occupant to position i, so this
		// settles in at most len(server) steps
		for guard := 0; local[i] != server[i] && guard < len(server); guard++ {
			want := server[i]
			blocker := local[i]
			j := slices.Index(local, want)
			k := serverIndex[blocker]
			serverDelta := j - i
			localDelta := k - i
			moveWant := serverDelta >= localDelta
			if serverDelta == localDelta && r.Prefer != nil {
				moveWant = r.Prefer(want, blocker) == want
			}
			if moveWant {
				pb.MoveChild(pb.IndexOf(want), pb.IndexOf(blocker))
				local = slicesx.Move(local, j, i)
			} else {
				pb.MoveChild(pb.IndexOf(blocker), pb.IndexOf(local[k]))
				local = slicesx.Move(local, i, k)
			}
			moves++
		}
	}
	return moves
}

// Sync walks the native children of the given parent in order and sends
// every local reordering and reparenting to the server. Unreplicated
// children are staged for creation. A move that a lock forbids is not
// sent; instead the server's order is re-applied natively at the end of
// the tick, reverting the local change.
//
// A temporary lock on the parent guards the first structural send and is
// released when the batch is done.
func (r *Reconciler) Sync(parent *replica.Object) {
	node := r.eng.nodeOf(parent)
	if node == nil {
		return
	}
	if r.eng.Locks.FullyLocked(parent) {
		r.eng.deferApply(parent)
		return
	}
	pb := node.AsScene()
	tempLocked := false
	changed := false
	reverted := false
	defer func() {
		if tempLocked {
			r.eng.Locks.ReleaseTempLock(parent)
		}
		if changed {
			r.eng.Revisions.BumpFor(parent)
		}
		if reverted {
			r.eng.deferApply(parent)
		}
	}()

	last := -1
	for _, ch := range pb.Children {
		if ch.AsScene().Transient {
			continue
		}
		rep, ok := r.eng.Registry.ByNative(ch)
		if !ok {
			if rep = r.eng.CreateObject(ch); rep == nil {
				continue
			}
		}
		if rep.Parent() != parent {
			old := rep.Parent()
			if r.eng.Locks.FullyLocked(rep) || (old != nil && r.eng.Locks.FullyLocked(old)) {
				reverted = true
				if old != nil {
					r.eng.deferApply(old)
				}
				continue
			}
			if !tempLocked {
				tempLocked = r.eng.Locks.TempLock(parent)
			}
			last++
			rep.SetParent(parent, last)
			r.eng.msgr.SetChildIndex(rep, last)
			if old != nil {
				r.eng.Revisions.BumpFor(old)
			}
			changed = true
			continue
		}
		idx := parent.Index(rep)
		if idx > last {
			last = idx
			continue
		}
		// the native order regressed relative to the replica: move the
		// replica child to just after the previously matched one
		if r.eng.Locks.FullyLocked(rep) {
			reverted = true
			continue
		}
		if !tempLocked {
			tempLocked = r.eng.Locks.TempLock(parent)
		}
		rep.MoveTo(last)
		r.eng.msgr.SetChildIndex(rep, last)
		changed = true
	}
}
