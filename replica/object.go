// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package replica defines the replicated representation of scene objects:
// the authoritative unit exchanged with the server, with an identifier,
// type tag, ordered property container, parent/children links, and lock
// state. Replica objects mirror native scene nodes and components; the
// mapping between the two sides is maintained by the registry package.
package replica

import "slices"

// ObjectID is the stable 64-bit identifier of a replicated object.
// Server-assigned identifiers occupy the lower half of the id space;
// optimistic local identifiers are allocated from the upper half by
// [LocalIDs] until the server confirms the creation.
type ObjectID uint64

// Ref is a property value referencing another replicated object by id.
// References are retargeted when object identity changes (identity
// conflicts, replace events).
type Ref ObjectID

// Object is the replicated representation of one scene node or component.
// Parent/child links are always mutually consistent: a child's parent
// pointer matches exactly one position in the parent's child list, which is
// why both are unexported and maintained only through Object methods.
type Object struct {

	// Props is the ordered property container of this object.
	Props *Dict

	// Lock is the current lock state of this object.
	Lock LockState

	// LockOwner is the participant holding the lock when Lock is
	// [Locked], and empty otherwise.
	LockOwner string

	// Confirmed is whether the server has confirmed the creation of this
	// object, as opposed to an optimistic local creation.
	Confirmed bool

	// TemplatePath is the asset path of the template this object is an
	// instance of, or the object's own asset path for a template root.
	TemplatePath string

	// Revision is the template revision counter, meaningful only on a
	// template asset's root object. It is incremented whenever any synced
	// edit is made inside the template.
	Revision uint32

	// InstanceRevisions is the per-nesting-level revision vector of a
	// template instance, inner-most first, snapshot at the moment the
	// instance last pulled in its template's state.
	InstanceRevisions []uint32

	// NoTemplate marks an instance that has been detached from its
	// template and no longer follows template updates.
	NoTemplate bool

	// RetainOnDelete keeps the identifier and registry entry of this
	// object alive across a local delete, so re-creation of the same
	// logical node reuses the identifier and preserves inbound references.
	RetainOnDelete bool

	id       ObjectID
	typ      string
	parent   *Object
	children []*Object
}

// New returns a new replica object with the given type tag and identifier.
func New(typ string, id ObjectID) *Object {
	return &Object{
		Props: NewDict(),
		id:    id,
		typ:   typ,
	}
}

// ID returns the identifier of this object.
func (o *Object) ID() ObjectID {
	return o.id
}

// SetID sets the identifier of this object. It is called exactly once per
// object lifetime outside of tests, when the server confirms an optimistic
// creation and assigns the authoritative identifier.
func (o *Object) SetID(id ObjectID) {
	o.id = id
}

// Type returns the type tag of this object.
func (o *Object) Type() string {
	return o.typ
}

// Parent returns the parent of this object, or nil for a root.
func (o *Object) Parent() *Object {
	return o.parent
}

// Children returns the ordered child list of this object.
// The returned slice must not be mutated directly.
func (o *Object) Children() []*Object {
	return o.children
}

// NumChildren returns the number of children of this object.
func (o *Object) NumChildren() int {
	return len(o.children)
}

// Child returns the child at the given index,
// or nil if the index is out of range.
func (o *Object) Child(i int) *Object {
	if i < 0 || i >= len(o.children) {
		return nil
	}
	return o.children[i]
}

// Index returns the index of the given child in this object's child list,
// or -1 if it is not a child.
func (o *Object) Index(child *Object) int {
	return slices.Index(o.children, child)
}

// IndexInParent returns this object's index in its parent's child list,
// or -1 for a root.
func (o *Object) IndexInParent() int {
	if o.parent == nil {
		return -1
	}
	return o.parent.Index(o)
}

// SetParent attaches this object under the given parent at the given child
// index, detaching it from any previous parent first. A negative or
// too-large index appends. Attaching an object under its own descendant is
// rejected to keep the tree acyclic.
func (o *Object) SetParent(parent *Object, at int) bool {
	if parent == o || o.isAncestorOf(parent) {
		return false
	}
	o.Detach()
	if parent == nil {
		return true
	}
	if at < 0 || at > len(parent.children) {
		at = len(parent.children)
	}
	parent.children = slices.Insert(parent.children, at, o)
	o.parent = parent
	return true
}

// Detach removes this object from its parent's child list, leaving it a root.
func (o *Object) Detach() {
	if o.parent == nil {
		return
	}
	if idx := o.parent.Index(o); idx >= 0 {
		o.parent.children = slices.Delete(o.parent.children, idx, idx+1)
	}
	o.parent = nil
}

// MoveTo moves this object to the given index within its parent's child list.
func (o *Object) MoveTo(at int) {
	if o.parent == nil {
		return
	}
	idx := o.parent.Index(o)
	at = min(max(at, 0), len(o.parent.children)-1)
	if idx < 0 || idx == at {
		return
	}
	p := o.parent
	p.children = slices.Delete(p.children, idx, idx+1)
	p.children = slices.Insert(p.children, at, o)
}

// Root returns the root of this object's tree.
func (o *Object) Root() *Object {
	r := o
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// isAncestorOf reports whether this object is an ancestor of the given one.
func (o *Object) isAncestorOf(other *Object) bool {
	for p := other; p != nil; p = p.parent {
		if p == o {
			return true
		}
	}
	return false
}

// Walk calls the given function on this object and all of its descendants
// in depth-first order.
func (o *Object) Walk(fun func(obj *Object)) {
	fun(o)
	for _, c := range o.children {
		c.Walk(fun)
	}
}

// ClearProps resets the property container, used when an object's
// identifier is retained across a local delete.
func (o *Object) ClearProps() {
	o.Props = NewDict()
}
