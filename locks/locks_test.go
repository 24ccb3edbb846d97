// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package locks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorscene/mirrorscene/registry"
	"github.com/mirrorscene/mirrorscene/replica"
	"github.com/mirrorscene/mirrorscene/scene"
	"github.com/mirrorscene/mirrorscene/session"
)

func newTestCoordinator() (*Coordinator, *session.Loopback, *registry.Registry) {
	lb := session.NewLoopback()
	reg := registry.New()
	return New("me", lb, reg), lb, reg
}

func bindNode(reg *registry.Registry, name string) (*scene.NodeBase, *replica.Object) {
	n := scene.NewRoot[*scene.NodeBase](name)
	rep, _ := reg.GetOrCreate(n, "NodeBase", 0)
	return n, rep
}

func TestRequestRelease(t *testing.T) {
	c, lb, reg := newTestCoordinator()
	n, rep := bindNode(reg, "n")

	c.RequestLock(rep)
	assert.Equal(t, replica.LockRequested, rep.Lock)
	require.Len(t, lb.OpsOfKind(session.OpRequestLock), 1)

	// duplicate requests are not sent
	c.RequestLock(rep)
	assert.Len(t, lb.OpsOfKind(session.OpRequestLock), 1)

	c.OnLock(rep, "me")
	assert.Equal(t, replica.Locked, rep.Lock)
	assert.Equal(t, "me", rep.LockOwner)
	assert.True(t, n.Editable())

	c.ReleaseLock(rep)
	assert.Equal(t, replica.LockPendingRelease, rep.Lock)
	require.Len(t, lb.OpsOfKind(session.OpReleaseLock), 1)

	c.OnUnlock(rep)
	assert.Equal(t, replica.Unlocked, rep.Lock)
	assert.Empty(t, rep.LockOwner)
}

func TestReleaseBeforeGrant(t *testing.T) {
	c, lb, reg := newTestCoordinator()
	_, rep := bindNode(reg, "n")

	c.RequestLock(rep)
	c.ReleaseLock(rep)
	assert.Equal(t, replica.Unlocked, rep.Lock)
	assert.Len(t, lb.OpsOfKind(session.OpReleaseLock), 1)
}

func TestRemoteLock(t *testing.T) {
	c, lb, reg := newTestCoordinator()
	n, rep := bindNode(reg, "n")

	var unlocked []*replica.Object
	c.OnUnlocked = func(r *replica.Object) { unlocked = append(unlocked, r) }

	c.OnLock(rep, "other")
	assert.False(t, n.Editable())
	assert.True(t, c.FullyLocked(rep))

	// another participant's lock cannot be released locally
	c.ReleaseLock(rep)
	assert.Len(t, lb.OpsOfKind(session.OpReleaseLock), 0)
	assert.Equal(t, replica.Locked, rep.Lock)

	c.OnUnlock(rep)
	assert.True(t, n.Editable())
	assert.False(t, c.FullyLocked(rep))
	assert.Equal(t, []*replica.Object{rep}, unlocked)
}

func TestLockOwnerChange(t *testing.T) {
	c, _, reg := newTestCoordinator()
	n, rep := bindNode(reg, "n")

	c.OnLock(rep, "me")
	c.OnLockOwnerChange(rep, "other")
	assert.Equal(t, "other", rep.LockOwner)
	assert.False(t, n.Editable())
	c.OnLockOwnerChange(rep, "me")
	assert.True(t, n.Editable())
}

func TestTempLock(t *testing.T) {
	c, lb, reg := newTestCoordinator()
	_, rep := bindNode(reg, "n")

	require.True(t, c.TempLock(rep))
	assert.Len(t, lb.OpsOfKind(session.OpRequestLock), 1)
	// already requested: no second temp lock
	assert.False(t, c.TempLock(rep))

	c.ReleaseTempLock(rep)
	assert.Len(t, lb.OpsOfKind(session.OpReleaseLock), 1)
	assert.Equal(t, replica.Unlocked, rep.Lock)

	// releasing a lock the user holds through selection is a no-op
	c.RequestLock(rep)
	c.OnLock(rep, "me")
	c.ReleaseTempLock(rep)
	assert.Equal(t, replica.Locked, rep.Lock)
}

func TestPartiallyLocked(t *testing.T) {
	c, _, reg := newTestCoordinator()
	_, parent := bindNode(reg, "parent")
	_, child := bindNode(reg, "child")
	child.SetParent(parent, -1)

	assert.False(t, c.PartiallyLocked(child))
	c.OnLock(parent, "other")
	assert.True(t, c.PartiallyLocked(child))
	assert.False(t, c.FullyLocked(child))
	assert.False(t, c.PartiallyLocked(parent))

	c.OnLock(parent, "me")
	assert.False(t, c.PartiallyLocked(child))
}

func TestSelf(t *testing.T) {
	c, _, _ := newTestCoordinator()
	assert.Equal(t, "me", c.Self())
}
