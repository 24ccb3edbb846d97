// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package registry maintains the bidirectional mapping between native scene
// objects and their replica objects. It is the sole source of truth for
// "is this native thing currently replicated, and by which replica".
// The registry runs on the single update goroutine and needs no locking.
package registry

import (
	"github.com/mirrorscene/mirrorscene/replica"
	"github.com/mirrorscene/mirrorscene/scene"
)

// Flags modify [Registry.GetOrCreate] behavior.
type Flags uint32

const (
	// RetainIdentifier keeps the registry entry and identifier alive
	// across a local delete of the native object, so re-creation of the
	// same logical node reuses the identifier.
	RetainIdentifier Flags = 1 << iota
)

// Registry is the bidirectional native/replica map. One native handle maps
// to at most one replica and vice versa, except during a brief replace
// window where an old native handle is being retired in favor of a new
// handle for the same logical object (tracked through stable identifiers).
type Registry struct {
	byNative  map[scene.Object]*replica.Object
	byReplica map[*replica.Object]scene.Object
	byStable  map[string]*replica.Object
	ids       replica.LocalIDs
}

// New returns a new empty registry.
func New() *Registry {
	return &Registry{
		byNative:  map[scene.Object]*replica.Object{},
		byReplica: map[*replica.Object]scene.Object{},
		byStable:  map[string]*replica.Object{},
	}
}

// Bind records the mapping between the given native object and replica,
// replacing any existing binding of either side.
func (r *Registry) Bind(native scene.Object, rep *replica.Object) {
	if old, ok := r.byReplica[rep]; ok && old != native {
		delete(r.byNative, old)
		delete(r.byStable, old.StableID())
	}
	if old, ok := r.byNative[native]; ok && old != rep {
		delete(r.byReplica, old)
	}
	r.byNative[native] = rep
	r.byReplica[rep] = native
	r.byStable[native.StableID()] = rep
}

// ByNative returns the replica bound to the given native object.
func (r *Registry) ByNative(native scene.Object) (*replica.Object, bool) {
	rep, ok := r.byNative[native]
	return rep, ok
}

// ByReplica returns the native object bound to the given replica.
func (r *Registry) ByReplica(rep *replica.Object) (scene.Object, bool) {
	native, ok := r.byReplica[rep]
	return native, ok
}

// ByStable returns the replica bound to the native object with the given
// stable identifier, whether or not the original handle is still live.
func (r *Registry) ByStable(stable string) (*replica.Object, bool) {
	rep, ok := r.byStable[stable]
	return rep, ok
}

// UnbindNative removes the binding for the given native handle. The
// replica-side mapping is only removed if it still points back at this
// handle: after a replace, a stale unbind of the retired handle must not
// sever the replica's binding to its new handle. A replica that retains
// its identifier across deletion keeps its stable-identifier entry, so
// re-creation of the same logical object finds it again.
func (r *Registry) UnbindNative(native scene.Object) {
	rep, ok := r.byNative[native]
	if !ok {
		return
	}
	delete(r.byNative, native)
	if cur, ok := r.byReplica[rep]; ok && cur == native {
		delete(r.byReplica, rep)
		if !rep.RetainOnDelete {
			delete(r.byStable, native.StableID())
		}
	}
}

// UnbindReplica removes the binding for the given replica on both sides.
func (r *Registry) UnbindReplica(rep *replica.Object) {
	native, ok := r.byReplica[rep]
	if !ok {
		return
	}
	delete(r.byReplica, rep)
	if cur, ok := r.byNative[native]; ok && cur == rep {
		delete(r.byNative, native)
		delete(r.byStable, native.StableID())
	}
}

// GetOrCreate returns the replica for the given native object, creating an
// optimistic (unconfirmed) one with a local identifier if none exists. It
// reports whether the replica was newly created.
//
// If the native handle is new but its stable identifier is already bound to
// a replica, the native object's underlying identity was replaced by an
// engine-level operation; the existing replica is re-pointed at the new
// handle instead of creating a duplicate.
func (r *Registry) GetOrCreate(native scene.Object, typ string, flags Flags) (*replica.Object, bool) {
	if rep, ok := r.byNative[native]; ok {
		return rep, false
	}
	if rep, ok := r.byStable[native.StableID()]; ok {
		r.Bind(native, rep)
		return rep, false
	}
	rep := replica.New(typ, r.ids.Next())
	rep.RetainOnDelete = flags&RetainIdentifier != 0
	r.Bind(native, rep)
	return rep, true
}

// All calls the given function for every bound (native, replica) pair.
// Iteration order is unspecified.
func (r *Registry) All(fun func(native scene.Object, rep *replica.Object)) {
	for native, rep := range r.byNative {
		fun(native, rep)
	}
}

// Len returns the number of bound pairs.
func (r *Registry) Len() int {
	return len(r.byNative)
}
