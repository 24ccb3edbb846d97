// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package session defines the boundary to the transport/session collaborator:
// the inbound [Handler] interface the engine implements, and the outbound
// [Messenger] interface the engine sends through. The transport is assumed
// to deliver events ordered and reliable, addressed per object id; no wire
// encoding is specified here, only the semantics each event carries.
package session

import "github.com/mirrorscene/mirrorscene/replica"

// Handler receives inbound server events. The engine's event dispatcher
// implements it; the transport calls it synchronously on the update
// goroutine.
type Handler interface {

	// OnCreate announces a server-created object of the given type under
	// the given parent at the given child index.
	OnCreate(id, parentID replica.ObjectID, childIndex int, typ string)

	// OnConfirmCreate confirms an optimistic local creation, carrying the
	// server-assigned identifier that replaces the local one.
	OnConfirmCreate(id, serverID replica.ObjectID)

	// OnDelete announces that another participant deleted the object.
	OnDelete(id replica.ObjectID)

	// OnConfirmDelete confirms a local deletion. unsubscribed is whether
	// the server also dropped the subscription to the object.
	OnConfirmDelete(id replica.ObjectID, unsubscribed bool)

	// OnLock announces that the given participant now holds the lock.
	OnLock(id replica.ObjectID, owner string)

	// OnUnlock announces that the object's lock was released.
	OnUnlock(id replica.ObjectID)

	// OnLockOwnerChange announces that the lock changed hands directly.
	OnLockOwnerChange(id replica.ObjectID, owner string)

	// OnParentChange announces a structural move of the object to the
	// given child index (under its server-side parent, which the event
	// stream has already established).
	OnParentChange(id replica.ObjectID, parentID replica.ObjectID, childIndex int)

	// OnPropertyChange announces a property value change.
	OnPropertyChange(id replica.ObjectID, path replica.Path, value any)

	// OnRemoveField announces removal of a dictionary field.
	OnRemoveField(id replica.ObjectID, path replica.Path, name string)

	// OnListAdd announces insertion of values into a list property.
	OnListAdd(id replica.ObjectID, path replica.Path, index int, values []any)

	// OnListRemove announces removal of elements from a list property.
	OnListRemove(id replica.ObjectID, path replica.Path, index, count int)
}

// Messenger sends outbound changes to the server. Implementations receive
// the replica objects themselves so they can serialize whatever state the
// wire protocol needs (parent links, properties, type tags).
type Messenger interface {

	// Create uploads the given batch of new objects under the given
	// parent at the given insert index. The batch is ordered so that
	// parents precede their children.
	Create(objs []*replica.Object, parent *replica.Object, index int)

	// Delete requests deletion of the object.
	Delete(obj *replica.Object)

	// RequestLock requests the object's lock for this participant.
	RequestLock(obj *replica.Object)

	// ReleaseLock releases the object's lock.
	ReleaseLock(obj *replica.Object)

	// SetChildIndex moves the object to the given child index under its
	// current (possibly changed) parent.
	SetChildIndex(obj *replica.Object, index int)

	// SetProperty sends a property value change.
	SetProperty(obj *replica.Object, path replica.Path, value any)

	// RemoveField sends removal of a dictionary field.
	RemoveField(obj *replica.Object, path replica.Path, name string)

	// ListAdd sends insertion of values into a list property.
	ListAdd(obj *replica.Object, path replica.Path, index int, values []any)

	// ListRemove sends removal of elements from a list property.
	ListRemove(obj *replica.Object, path replica.Path, index, count int)

	// ObjectLimit returns the server-set creation cap for the given
	// object type, or a negative value if there is none.
	ObjectLimit(typ string) int

	// ObjectCount returns the server's current count of objects of the
	// given type.
	ObjectCount(typ string) int
}
