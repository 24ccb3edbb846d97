// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorscene/mirrorscene/scene"
	"github.com/mirrorscene/mirrorscene/session"
)

// childNames returns the names of the native children of the given node.
func childNames(n scene.Node) []string {
	var names []string
	for _, ch := range n.AsScene().Children {
		names = append(names, ch.AsScene().Name)
	}
	return names
}

func TestApplyMinimalMoves(t *testing.T) {
	eng, lb := newTestEngine(t)
	addChild(eng, eng.Root, "a")
	addChild(eng, eng.Root, "b")
	addChild(eng, eng.Root, "c")
	flush(eng, lb)
	rootRep := repOf(t, eng, eng.Root)

	// the native side drifted to [c a b]; the server wants [a b c]
	eng.Root.AsScene().MoveChild(2, 0)
	require.Equal(t, []string{"c", "a", "b"}, childNames(eng.Root))

	moves := eng.Reconciler.Apply(rootRep)
	assert.Equal(t, 1, moves) // moving c alone converges
	assert.Equal(t, []string{"a", "b", "c"}, childNames(eng.Root))
}

func TestApplyIdempotent(t *testing.T) {
	eng, lb := newTestEngine(t)
	addChild(eng, eng.Root, "a")
	addChild(eng, eng.Root, "b")
	flush(eng, lb)
	rootRep := repOf(t, eng, eng.Root)

	assert.Equal(t, 0, eng.Reconciler.Apply(rootRep))
}

func TestApplyPrefer(t *testing.T) {
	eng, lb := newTestEngine(t)
	a := addChild(eng, eng.Root, "a")
	b := addChild(eng, eng.Root, "b")
	flush(eng, lb)
	rootRep := repOf(t, eng, eng.Root)

	var gotServer, gotLocal scene.Node
	eng.Reconciler.Prefer = func(server, local scene.Node) scene.Node {
		gotServer, gotLocal = server, local
		return local // move the blocker out instead of the wanted child in
	}
	eng.Root.AsScene().MoveChild(1, 0) // [b a], server wants [a b]

	assert.Equal(t, 1, eng.Reconciler.Apply(rootRep))
	assert.Equal(t, []string{"a", "b"}, childNames(eng.Root))
	assert.Equal(t, scene.Node(a), gotServer)
	assert.Equal(t, scene.Node(b), gotLocal)
}

func TestApplyPullsAcrossParents(t *testing.T) {
	eng, lb := newTestEngine(t)
	p1 := addChild(eng, eng.Root, "p1")
	p2 := addChild(eng, eng.Root, "p2")
	x := addChild(eng, p1, "x")
	flush(eng, lb)
	xRep := repOf(t, eng, x)
	p2Rep := repOf(t, eng, p2)

	// the server moved x under p2; the native move happens once, at the
	// end of the tick
	eng.Dispatcher.OnParentChange(xRep.ID(), p2Rep.ID(), 0)
	assert.Same(t, p2Rep, xRep.Parent())
	assert.Equal(t, scene.Node(p1), x.Parent)

	eng.Tick()
	assert.Equal(t, scene.Node(p2), x.Parent)
	assert.Equal(t, 0, p1.NumChildren())
	assert.Equal(t, []string{"x"}, childNames(p2))
}

func TestSyncSendsMinimalMoves(t *testing.T) {
	eng, lb := newTestEngine(t)
	a := addChild(eng, eng.Root, "a")
	addChild(eng, eng.Root, "b")
	addChild(eng, eng.Root, "c")
	flush(eng, lb)
	rootRep := repOf(t, eng, eng.Root)
	aRep := repOf(t, eng, a)

	// local reorder [a b c] -> [b a c]: only a is out of order
	eng.Root.AsScene().MoveChild(1, 0)
	eng.HierarchyChanged(eng.Root)
	eng.Tick()

	moves := lb.OpsOfKind(session.OpSetChildIndex)
	require.Len(t, moves, 1)
	assert.Same(t, aRep, moves[0].Obj)
	assert.Equal(t, 1, moves[0].Index)
	assert.Equal(t, 1, rootRep.Index(aRep))

	// the structural batch is guarded by a temporary lock on the parent
	assert.Len(t, lb.OpsOfKind(session.OpRequestLock), 1)
	assert.Len(t, lb.OpsOfKind(session.OpReleaseLock), 1)
}

func TestSyncStagesUnsyncedChildren(t *testing.T) {
	eng, lb := newTestEngine(t)
	addChild(eng, eng.Root, "a")
	flush(eng, lb)

	// a child created outside the engine's notifications
	d := scene.New[*scene.NodeBase](eng.Root)
	d.Name = "d"
	eng.HierarchyChanged(eng.Root)
	eng.Tick() // sync stages the creation
	eng.Tick() // the staged creation is uploaded

	creates := lb.OpsOfKind(session.OpCreate)
	require.Len(t, creates, 1)
	require.Len(t, creates[0].Objs, 1)
	assert.Same(t, repOf(t, eng, d), creates[0].Objs[0])
}

func TestSyncLockedRevert(t *testing.T) {
	eng, lb := newTestEngine(t)
	a := addChild(eng, eng.Root, "a")
	addChild(eng, eng.Root, "b")
	flush(eng, lb)
	aRep := repOf(t, eng, a)

	eng.Dispatcher.OnLock(aRep.ID(), "other")
	eng.Root.AsScene().MoveChild(1, 0) // [b a], but a is locked
	eng.HierarchyChanged(eng.Root)
	eng.Tick()

	// the move is not sent; the server order is restored instead
	assert.Empty(t, lb.OpsOfKind(session.OpSetChildIndex))
	assert.Equal(t, []string{"a", "b"}, childNames(eng.Root))
	assert.False(t, a.Editable())
}

func TestSyncLockedReparentRevert(t *testing.T) {
	eng, lb := newTestEngine(t)
	p1 := addChild(eng, eng.Root, "p1")
	p2 := addChild(eng, eng.Root, "p2")
	x := addChild(eng, p1, "x")
	flush(eng, lb)
	p1Rep := repOf(t, eng, p1)
	xRep := repOf(t, eng, x)

	eng.Dispatcher.OnLock(p1Rep.ID(), "other")
	scene.MoveToParent(x, p2, 0) // natively pull x out of the locked p1
	eng.HierarchyChanged(p2)
	eng.Tick()

	assert.Empty(t, lb.OpsOfKind(session.OpSetChildIndex))
	assert.Same(t, p1Rep, xRep.Parent())
	assert.Equal(t, scene.Node(p1), x.Parent) // pulled back
	assert.Equal(t, 0, p2.NumChildren())
}
