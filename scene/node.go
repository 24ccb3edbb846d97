// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scene provides the native scene graph that the replication engine
// drives: an ordered tree of [Node]s, each carrying typed [Component]s and
// serializable fields. The engine only depends on the [Object] and [Node]
// interfaces, so an embedding application can supply its own node types by
// embedding [NodeBase], exactly as widgets embed the base node in a GUI tree.
package scene

// Object is the native-side handle of anything that can be replicated:
// a scene node or one of its components. The stable identifier survives
// engine-level recreation of the underlying handle, which is how the
// replication layer detects that a new handle represents the same
// logical object.
type Object interface {

	// StableID returns the persistent identifier of this object,
	// which is preserved across engine-level recreation.
	StableID() string

	// TypeName returns the registered type name of this object.
	TypeName() string

	// IsValid reports whether the underlying native object still exists.
	IsValid() bool

	// Fields returns the serializable fields of this object, in a stable
	// order. The replication layer enumerates these to apply and send
	// property deltas generically.
	Fields() []Field
}

// Node is the interface for all scene nodes. The standard implementation
// is [NodeBase], which should be embedded in all higher-level node types.
type Node interface {
	Object

	// AsScene returns the [NodeBase] for this node.
	AsScene() *NodeBase

	// Init is called when the node is first initialized.
	Init()
}

// Field is one serializable field of an [Object], accessed through
// closures so that component data and struct fields present uniformly.
type Field struct {

	// Name is the field name.
	Name string

	// Get returns the current value of the field.
	Get func() any

	// Set sets the value of the field.
	Set func(v any)
}

const (
	// Continue can be returned from tree walking functions
	// to continue processing down the tree.
	Continue = true

	// Break can be returned from tree walking functions
	// to stop processing this branch of the tree.
	Break = false
)
