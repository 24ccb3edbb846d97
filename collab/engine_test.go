// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package collab

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorscene/mirrorscene/replica"
	"github.com/mirrorscene/mirrorscene/scene"
	"github.com/mirrorscene/mirrorscene/session"
)

// paintNode is the synced node type used throughout the engine tests.
type paintNode struct {
	scene.NodeBase
	Color string
	Size  int
}

// newTestEngine returns a connected engine over a loopback messenger, with
// the scene root already uploaded and confirmed.
func newTestEngine(t *testing.T) (*Engine, *session.Loopback) {
	t.Helper()
	lb := session.NewLoopback()
	root := scene.NewRoot[*scene.NodeBase]("root")
	opts := NewOptions()
	opts.Participant = "me"
	eng := NewEngine(opts, lb, root)
	lb.Handler = eng.Dispatcher
	eng.Connect()
	eng.Tick()
	lb.ConfirmCreates()
	lb.Reset()
	return eng, lb
}

// addChild creates a named native child and notifies the engine.
func addChild(eng *Engine, parent scene.Node, name string) *scene.NodeBase {
	n := scene.New[*scene.NodeBase](parent)
	n.Name = name
	eng.NodeAdded(n)
	return n
}

// flush runs a tick and confirms and clears all resulting creates.
func flush(eng *Engine, lb *session.Loopback) {
	eng.Tick()
	lb.ConfirmCreates()
	lb.Reset()
}

func repOf(t *testing.T, eng *Engine, native scene.Object) *replica.Object {
	t.Helper()
	rep, ok := eng.Registry.ByNative(native)
	require.True(t, ok)
	return rep
}

func TestCreateUpload(t *testing.T) {
	eng, lb := newTestEngine(t)
	a := addChild(eng, eng.Root, "a")
	addChild(eng, eng.Root, "b")
	addChild(eng, eng.Root, "c")

	eng.Tick()
	creates := lb.OpsOfKind(session.OpCreate)
	require.Len(t, creates, 1) // one batch for one parent
	assert.Len(t, creates[0].Objs, 3)
	assert.Equal(t, 0, creates[0].Index)
	assert.Same(t, repOf(t, eng, eng.Root), creates[0].Parent)

	aRep := repOf(t, eng, a)
	assert.True(t, replica.IsLocal(aRep.ID()))
	assert.False(t, aRep.Confirmed)

	lb.ConfirmCreates()
	assert.False(t, replica.IsLocal(aRep.ID()))
	assert.True(t, aRep.Confirmed)
	assert.Same(t, aRep, eng.Object(aRep.ID()))
}

func TestConfirmRetargetsReferences(t *testing.T) {
	eng, lb := newTestEngine(t)
	a := addChild(eng, eng.Root, "a")
	b := addChild(eng, eng.Root, "b")
	aRep := repOf(t, eng, a)
	bRep := repOf(t, eng, b)
	localID := bRep.ID()
	aRep.Props.Set("target", replica.Ref(localID))

	flush(eng, lb)
	assert.NotEqual(t, localID, bRep.ID())
	v, _ := aRep.Props.Get("target")
	assert.Equal(t, replica.Ref(bRep.ID()), v)
}

func TestServerCreate(t *testing.T) {
	eng, _ := newTestEngine(t)
	rootRep := repOf(t, eng, eng.Root)

	eng.Dispatcher.OnCreate(42, rootRep.ID(), 0, "NodeBase")
	rep := eng.Object(42)
	require.NotNil(t, rep)
	assert.True(t, rep.Confirmed)
	node := eng.nodeOf(rep)
	require.NotNil(t, node)
	assert.Equal(t, eng.Root, node.AsScene().Parent)

	// a duplicate create for a known id is ignored
	eng.Dispatcher.OnCreate(42, rootRep.ID(), 0, "NodeBase")
	assert.Equal(t, 1, eng.Root.AsScene().NumChildren())
}

func TestWaitingParent(t *testing.T) {
	eng, _ := newTestEngine(t)
	rootRep := repOf(t, eng, eng.Root)

	// the child arrives before its parent
	eng.Dispatcher.OnCreate(5, 99, 0, "NodeBase")
	require.NotNil(t, eng.Object(5))
	assert.Nil(t, eng.nodeOf(eng.Object(5)))

	eng.Dispatcher.OnCreate(99, rootRep.ID(), 0, "NodeBase")
	require.NotNil(t, eng.nodeOf(eng.Object(99)))
	require.NotNil(t, eng.nodeOf(eng.Object(5)))
	assert.Same(t, eng.Object(99), eng.Object(5).Parent())
}

func TestServerDelete(t *testing.T) {
	eng, lb := newTestEngine(t)
	a := addChild(eng, eng.Root, "a")
	x := addChild(eng, a, "x")
	g := addChild(eng, x, "g")
	flush(eng, lb)
	aRep := repOf(t, eng, a)
	xID := repOf(t, eng, x).ID()
	gID := repOf(t, eng, g).ID()

	eng.Dispatcher.OnDelete(aRep.ID())
	assert.False(t, a.IsValid())
	assert.False(t, x.IsValid())
	assert.False(t, g.IsValid())
	assert.Nil(t, eng.Object(aRep.ID()))
	assert.Nil(t, eng.Object(xID))
	// the whole subtree leaves the session table, not just direct children
	assert.Nil(t, eng.Object(gID))
	_, bound := eng.Registry.ByNative(a)
	assert.False(t, bound)
}

func TestLocalDelete(t *testing.T) {
	eng, lb := newTestEngine(t)
	a := addChild(eng, eng.Root, "a")
	flush(eng, lb)
	aRep := repOf(t, eng, a)

	a.Delete()
	eng.NodeDeleted(a)
	require.Len(t, lb.OpsOfKind(session.OpDelete), 1)
	_, bound := eng.Registry.ByNative(a)
	assert.False(t, bound)
	assert.Nil(t, aRep.Parent())
}

func TestLockedDeleteRecreated(t *testing.T) {
	eng, lb := newTestEngine(t)
	a := addChild(eng, eng.Root, "a")
	flush(eng, lb)
	aRep := repOf(t, eng, a)
	stable := a.StableID()

	eng.Dispatcher.OnLock(aRep.ID(), "other")
	a.Delete()
	eng.NodeDeleted(a)
	assert.Empty(t, lb.OpsOfKind(session.OpDelete))

	eng.Tick()
	node := eng.nodeOf(aRep)
	require.NotNil(t, node)
	assert.Equal(t, "a", node.AsScene().Name)
	assert.Equal(t, stable, node.StableID())
	assert.Equal(t, eng.Root, node.AsScene().Parent)
}

func TestRetainOnDelete(t *testing.T) {
	eng, lb := newTestEngine(t)
	a := addChild(eng, eng.Root, "a")
	flush(eng, lb)
	aRep := repOf(t, eng, a)
	aRep.RetainOnDelete = true
	stable := a.StableID()
	id := aRep.ID()

	a.Delete()
	eng.NodeDeleted(a)
	require.Len(t, lb.OpsOfKind(session.OpDelete), 1)
	// the identifier stays alive for inbound references
	assert.Same(t, aRep, eng.Object(id))

	// re-creating the same logical node reuses the replica
	fresh := scene.New[*scene.NodeBase](eng.Root)
	fresh.Name = "a"
	fresh.SetStableID(stable)
	got := eng.CreateObject(fresh)
	assert.Same(t, aRep, got)
	assert.Equal(t, id, got.ID())
}

func TestIdentityConflict(t *testing.T) {
	eng, lb := newTestEngine(t)
	rootRep := repOf(t, eng, eng.Root)

	local := addChild(eng, eng.Root, "dup")
	localRep := repOf(t, eng, local)
	localID := localRep.ID()

	// another participant created the same logical object; the server
	// echoes its creation first
	eng.Dispatcher.OnCreate(77, rootRep.ID(), 0, "NodeBase")
	serverRep := eng.Object(77)
	eng.Dispatcher.OnPropertyChange(77, replica.Path{replica.Field("stableId")}, local.StableID())

	assert.Nil(t, eng.Object(localID))
	bound, ok := eng.Registry.ByNative(local)
	require.True(t, ok)
	assert.Same(t, serverRep, bound)
	// the duplicate materialized native is gone, the user's survives
	assert.Equal(t, 1, eng.Root.AsScene().NumChildren())
	assert.True(t, local.IsValid())
	assert.Empty(t, lb.OpsOfKind(session.OpDelete))

	// the local optimistic creation is no longer uploaded
	eng.Tick()
	assert.Empty(t, lb.OpsOfKind(session.OpCreate))
}

func TestObjectLimit(t *testing.T) {
	eng, lb := newTestEngine(t)
	lb.Limits = map[string]int{"NodeBase": 1} // the root already counts

	notified := 0
	eng.NotifyLimit = func(typ string, limit int) {
		notified++
		assert.Equal(t, "NodeBase", typ)
		assert.Equal(t, 1, limit)
	}
	n1 := scene.New[*scene.NodeBase](eng.Root)
	n2 := scene.New[*scene.NodeBase](eng.Root)
	assert.Nil(t, eng.CreateObject(n1))
	assert.Nil(t, eng.CreateObject(n2))
	assert.Equal(t, 1, notified) // once per type, not per attempt
}

func TestLocalObjectLimit(t *testing.T) {
	eng, _ := newTestEngine(t)
	eng.Options.ObjectLimits = map[string]int{"paintNode": 1}

	p1 := scene.New[*paintNode](eng.Root)
	p2 := scene.New[*paintNode](eng.Root)
	assert.NotNil(t, eng.CreateObject(p1))
	// the staged upload already counts: both creations in one pass
	// cannot slip under the cap together
	assert.Nil(t, eng.CreateObject(p2))
}

func TestLockConflictRevertsProperties(t *testing.T) {
	eng, lb := newTestEngine(t)
	p := scene.New[*paintNode](eng.Root)
	p.Name = "p"
	eng.NodeAdded(p)
	flush(eng, lb)
	pRep := repOf(t, eng, p)

	p.Color = "red"
	eng.PropertyChanged(p)
	flush(eng, lb)
	v, _ := pRep.Props.Get("color")
	require.Equal(t, "red", v)

	eng.Dispatcher.OnLock(pRep.ID(), "other")
	p.Color = "blue"
	eng.PropertyChanged(p)
	eng.Tick()

	assert.Empty(t, lb.OpsOfKind(session.OpSetProperty))
	assert.Equal(t, "red", p.Color) // reverted to the server state
	assert.False(t, p.Editable())
}

func TestTransientExcluded(t *testing.T) {
	eng, _ := newTestEngine(t)
	n := scene.New[*scene.NodeBase](eng.Root)
	n.Transient = true
	assert.False(t, eng.IsSyncable(n))
	assert.Nil(t, eng.CreateObject(n))
}

func TestDisconnectDropsPending(t *testing.T) {
	eng, lb := newTestEngine(t)
	addChild(eng, eng.Root, "a")
	eng.Disconnect()
	eng.Tick() // disconnected: nothing happens
	assert.Empty(t, lb.OpsOfKind(session.OpCreate))
}

func TestOptionsRoundTrip(t *testing.T) {
	opts := NewOptions()
	opts.Participant = "me"
	opts.ServerURL = "ws://localhost:8080/session"
	opts.ObjectLimits = map[string]int{"paintNode": 2}

	fn := filepath.Join(t.TempDir(), "options.toml")
	require.NoError(t, SaveOptions(opts, fn))
	got, err := OpenOptions(fn)
	require.NoError(t, err)
	assert.Equal(t, opts, got)

	_, err = OpenOptions(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
