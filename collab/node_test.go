// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorscene/mirrorscene/replica"
	"github.com/mirrorscene/mirrorscene/scene"
)

// serverComponent registers a server-confirmed component replica of the
// given type under the owning node's replica and materializes it.
func serverComponent(eng *Engine, id replica.ObjectID, owner *replica.Object, typ string) *replica.Object {
	rep := replica.New("component", id)
	rep.Confirmed = true
	rep.Props.Set("type", typ)
	rep.SetParent(owner, -1)
	eng.register(rep)
	eng.Dispatcher.recreateNative(rep)
	return rep
}

// componentTypes returns the type names of the node's components in order.
func componentTypes(node scene.Node) []string {
	comps := node.AsScene().Components
	out := make([]string, len(comps))
	for i, c := range comps {
		out[i] = c.Type
	}
	return out
}

func TestComponentClaim(t *testing.T) {
	eng, _ := newTestEngine(t)
	rootRep := repOf(t, eng, eng.Root)

	eng.Dispatcher.OnCreate(50, rootRep.ID(), 0, "NodeBase")
	ownerRep := eng.Object(50)
	owner := eng.nodeOf(ownerRep)
	require.NotNil(t, owner)
	mesh := scene.NewComponent("mesh")
	owner.AsScene().AddComponent(mesh)

	rep := serverComponent(eng, 51, ownerRep, "mesh")

	// the existing native component is claimed, not duplicated
	assert.Len(t, owner.AsScene().Components, 1)
	native, ok := eng.Registry.ByReplica(rep)
	require.True(t, ok)
	assert.Same(t, mesh, native)
}

func TestComponentOrderResync(t *testing.T) {
	eng, _ := newTestEngine(t)
	rootRep := repOf(t, eng, eng.Root)

	eng.Dispatcher.OnCreate(50, rootRep.ID(), 0, "NodeBase")
	ownerRep := eng.Object(50)
	owner := eng.nodeOf(ownerRep)
	require.NotNil(t, owner)

	// the native order is the reverse of the order the server sends
	sprite := scene.NewComponent("sprite")
	mesh := scene.NewComponent("mesh")
	owner.AsScene().AddComponent(sprite)
	owner.AsScene().AddComponent(mesh)

	meshRep := serverComponent(eng, 51, ownerRep, "mesh")
	assert.Equal(t, []string{"sprite", "mesh"}, componentTypes(owner))

	spriteRep := serverComponent(eng, 52, ownerRep, "sprite")

	// both existing components are claimed, and the out-of-order match
	// resyncs the native order to the replica order
	assert.Len(t, owner.AsScene().Components, 2)
	assert.Equal(t, []string{"mesh", "sprite"}, componentTypes(owner))
	meshNative, ok := eng.Registry.ByReplica(meshRep)
	require.True(t, ok)
	assert.Same(t, mesh, meshNative)
	spriteNative, ok := eng.Registry.ByReplica(spriteRep)
	require.True(t, ok)
	assert.Same(t, sprite, spriteNative)

	// the matching snapshot lives for one pass
	ct := eng.Dispatcher.byType[componentTypeTag].(*ComponentTranslator)
	assert.NotEmpty(t, ct.finders)
	eng.Tick()
	assert.Empty(t, ct.finders)
}
