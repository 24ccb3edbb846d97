// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package locks tracks which replicated objects are locked and by whom, and
// maintains the local "locked" presentation state. Locks are the protocol's
// conflict-avoidance mechanism: an exclusive edit-right token granted by the
// server, requested on selection and released on deselection, and also
// acquired transiently by the reconciliation algorithms to guard multi-step
// updates.
package locks

import (
	"log/slog"

	"github.com/mirrorscene/mirrorscene/registry"
	"github.com/mirrorscene/mirrorscene/replica"
	"github.com/mirrorscene/mirrorscene/scene"
	"github.com/mirrorscene/mirrorscene/session"
)

// Coordinator is the per-session lock state machine. Each object moves
// through Unlocked → LockRequested → Locked → Unlocked for local requests,
// or directly Unlocked → Locked → Unlocked for remote locks.
type Coordinator struct {

	// Indicator creates or destroys the visual lock indicator for an
	// object. The presentation itself is an editor UI concern; may be nil.
	Indicator func(rep *replica.Object, native scene.Object, locked bool)

	// OnUnlocked is called after a lock held by another participant is
	// released, so work deferred while the object was locked can run.
	// May be nil.
	OnUnlocked func(rep *replica.Object)

	self string
	msgr session.Messenger
	reg  *registry.Registry
	temp map[*replica.Object]bool
}

// New returns a coordinator for the participant with the given identity.
func New(self string, msgr session.Messenger, reg *registry.Registry) *Coordinator {
	return &Coordinator{
		self: self,
		msgr: msgr,
		reg:  reg,
		temp: map[*replica.Object]bool{},
	}
}

// Self returns this participant's identity.
func (c *Coordinator) Self() string {
	return c.self
}

// RequestLock sends a lock request for the given object. It is a no-op if
// the object is already locked or has a request in flight.
func (c *Coordinator) RequestLock(rep *replica.Object) {
	if rep.Lock != replica.Unlocked {
		return
	}
	rep.Lock = replica.LockRequested
	c.msgr.RequestLock(rep)
}

// ReleaseLock sends a lock release for the given object if this participant
// holds or has requested its lock.
func (c *Coordinator) ReleaseLock(rep *replica.Object) {
	switch rep.Lock {
	case replica.LockRequested:
		rep.Lock = replica.Unlocked
		c.msgr.ReleaseLock(rep)
	case replica.Locked:
		if rep.LockOwner != c.self {
			return
		}
		rep.Lock = replica.LockPendingRelease
		c.msgr.ReleaseLock(rep)
	}
}

// OnLock handles a server lock grant for the given object.
func (c *Coordinator) OnLock(rep *replica.Object, owner string) {
	rep.Lock = replica.Locked
	rep.LockOwner = owner
	c.present(rep, owner != c.self)
}

// OnUnlock handles a server lock release for the given object.
func (c *Coordinator) OnUnlock(rep *replica.Object) {
	wasOther := rep.LockedBy(c.self)
	rep.Lock = replica.Unlocked
	rep.LockOwner = ""
	delete(c.temp, rep)
	c.present(rep, false)
	if wasOther && c.OnUnlocked != nil {
		c.OnUnlocked(rep)
	}
}

// OnLockOwnerChange handles the lock changing hands directly.
func (c *Coordinator) OnLockOwnerChange(rep *replica.Object, owner string) {
	rep.Lock = replica.Locked
	rep.LockOwner = owner
	c.present(rep, owner != c.self)
}

// present updates the native not-editable marker and the visual indicator.
// A failure to resolve the native side is logged, never propagated, and the
// editable flag is still maintained so the user is not stuck with a phantom
// lock.
func (c *Coordinator) present(rep *replica.Object, locked bool) {
	native, ok := c.reg.ByReplica(rep)
	if !ok {
		slog.Debug("locks.Coordinator: lock state for unbound replica", "id", rep.ID())
		return
	}
	if node, ok := native.(scene.Node); ok && node.AsScene().IsValid() {
		node.AsScene().SetEditable(!locked)
	}
	if c.Indicator != nil {
		c.Indicator(rep, native, locked)
	}
}

// TempLock acquires the object's lock only if it is not already held or
// requested, to guard a multi-step local mutation against a concurrent edit
// by another participant. It returns whether a temporary lock was taken;
// callers must pair it with [Coordinator.ReleaseTempLock].
func (c *Coordinator) TempLock(rep *replica.Object) bool {
	if rep.Lock != replica.Unlocked {
		return false
	}
	c.RequestLock(rep)
	c.temp[rep] = true
	return true
}

// ReleaseTempLock releases a lock taken by [Coordinator.TempLock].
// It is a no-op for locks the user holds through selection.
func (c *Coordinator) ReleaseTempLock(rep *replica.Object) {
	if !c.temp[rep] {
		return
	}
	delete(c.temp, rep)
	c.ReleaseLock(rep)
}

// FullyLocked reports whether the object's own lock is held by another
// participant, which forbids both structural and property changes.
func (c *Coordinator) FullyLocked(rep *replica.Object) bool {
	return rep.LockedBy(c.self)
}

// PartiallyLocked reports whether an ancestor of the object is fully
// locked, which constrains structural changes but not property edits.
func (c *Coordinator) PartiallyLocked(rep *replica.Object) bool {
	for p := rep.Parent(); p != nil; p = p.Parent() {
		if c.FullyLocked(p) {
			return true
		}
	}
	return false
}
