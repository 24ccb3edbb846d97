// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scene

import (
	"github.com/google/uuid"
)

// Component is a typed sub-object attached to a [Node]: a behavior, renderer,
// collider, or similar native concept. Components hold their serializable
// data as ordered named values so the replication layer can enumerate them
// through the [Object] interface without knowing concrete component types.
type Component struct {

	// Type is the registered type name of this component.
	Type string

	// FileID is the identity of this component within its own template
	// asset, or 0 if the owning node is not part of a template asset.
	FileID int64

	// SourceFileID is the identity of this component within the template
	// the owning node is an instance of, or 0 if not applicable.
	SourceFileID int64

	// Owner is the node this component is attached to.
	Owner Node

	// stable is the persistent identifier preserved across engine-level
	// recreation of this component.
	stable string

	// invalid is set when the component is destroyed.
	invalid bool

	// names is the ordered list of data field names.
	names []string

	// data holds the field values by name.
	data map[string]any
}

// NewComponent returns a new component of the given type name.
func NewComponent(typ string) *Component {
	return &Component{
		Type:   typ,
		stable: uuid.NewString(),
		data:   map[string]any{},
	}
}

// StableID returns the persistent identifier of this component.
func (c *Component) StableID() string {
	return c.stable
}

// SetStableID sets the persistent identifier of this component.
func (c *Component) SetStableID(id string) {
	c.stable = id
}

// TypeName returns the type name of this component.
func (c *Component) TypeName() string {
	return c.Type
}

// IsValid reports whether this component has not been destroyed.
func (c *Component) IsValid() bool {
	return c != nil && !c.invalid
}

// SetData sets the data field with the given name to the given value,
// adding it at the end of the field order if it is new.
func (c *Component) SetData(name string, value any) *Component {
	if _, ok := c.data[name]; !ok {
		c.names = append(c.names, name)
	}
	c.data[name] = value
	return c
}

// Data returns the value of the data field with the given name.
func (c *Component) Data(name string) any {
	return c.data[name]
}

// Fields returns the serializable fields of this component in field order.
func (c *Component) Fields() []Field {
	fields := make([]Field, 0, len(c.names))
	for _, name := range c.names {
		fields = append(fields, Field{
			Name: name,
			Get:  func() any { return c.data[name] },
			Set:  func(v any) { c.SetData(name, v) },
		})
	}
	return fields
}

// Destroy detaches this component from its owner and invalidates it.
func (c *Component) Destroy() {
	if c.invalid {
		return
	}
	if c.Owner != nil {
		c.Owner.AsScene().removeComponent(c)
	}
	c.invalidate()
}

func (c *Component) invalidate() {
	c.invalid = true
	c.Owner = nil
}

// clone returns a deep copy of this component
// with a fresh stable identifier.
func (c *Component) clone() *Component {
	nc := NewComponent(c.Type)
	nc.FileID = c.FileID
	nc.SourceFileID = c.SourceFileID
	for _, name := range c.names {
		nc.SetData(name, c.data[name])
	}
	return nc
}
