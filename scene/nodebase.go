// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scene

import (
	"log/slog"
	"reflect"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/mirrorscene/mirrorscene/base/slicesx"
)

// NodeBase implements the [Node] interface and provides the core scene tree
// functionality. You must use NodeBase as an embedded struct in all
// higher-level node types, and initialize nodes with [New], [NewRoot],
// [NodeBase.AddChild], or [NodeBase.InsertChild] so that the
// [NodeBase.This] field is set correctly.
type NodeBase struct {

	// Name is the name of this node, which is typically unique relative to
	// other children of the same parent.
	Name string `copier:"-" sync:"-"`

	// This is the value of this node as its true underlying type. It allows
	// methods defined on base types to call methods defined on higher-level
	// types. It is set to nil when the node is destroyed.
	This Node `copier:"-" sync:"-"`

	// Parent is the parent of this node, set automatically when the node is
	// added as a child. Nodes have at most one parent at a time.
	Parent Node `copier:"-" sync:"-"`

	// Children is the ordered list of children of this node.
	Children []Node `copier:"-" sync:"-"`

	// Components is the ordered list of components attached to this node.
	Components []*Component `copier:"-" sync:"-"`

	// TemplatePath is the asset path of the template this node is an
	// instance of, or empty if the node is not a template instance.
	TemplatePath string `copier:"-" sync:"-"`

	// FileID is the identity of this node within its own template asset,
	// or 0 if the node is not part of a template asset.
	FileID int64 `copier:"-" sync:"-"`

	// SourceFileID is the identity of this node within the template it is
	// an instance of, or 0 if not applicable.
	SourceFileID int64 `copier:"-" sync:"-"`

	// Transient excludes this node (and its subtree) from replication.
	Transient bool `copier:"-" sync:"-"`

	// stable is the persistent identifier preserved across engine-level
	// recreation of this node.
	stable string

	// notEditable is the native "locked by another participant" marker.
	notEditable bool

	// index is the last known value of our index in our parent, used as a
	// starting point for finding us there next time. It is not guaranteed
	// to be accurate; use [NodeBase.IndexInParent].
	index int
}

// New returns a new initialized node of the given type,
// optionally adding it to the given parent.
func New[T Node](parent ...Node) T {
	var zero T
	n := reflect.New(reflect.TypeOf(zero).Elem()).Interface().(T)
	initNode(n)
	if len(parent) > 0 && parent[0] != nil {
		parent[0].AsScene().AddChild(n)
	}
	return n
}

// NewRoot returns a new initialized root node of the given type
// with the given name.
func NewRoot[T Node](name string) T {
	n := New[T]()
	n.AsScene().Name = name
	return n
}

// initNode sets the This field and stable identifier and calls [Node.Init].
func initNode(this Node) {
	n := this.AsScene()
	if n.This != this {
		n.This = this
		if n.stable == "" {
			n.stable = uuid.NewString()
		}
		this.Init()
	}
}

// AsScene returns the [NodeBase] for this node.
func (n *NodeBase) AsScene() *NodeBase {
	return n
}

// Init is a placeholder implementation of [Node.Init] that does nothing.
func (n *NodeBase) Init() {}

// String implements [fmt.Stringer] by returning the path of the node.
func (n *NodeBase) String() string {
	if n == nil || n.This == nil {
		return "nil"
	}
	return n.Path()
}

// StableID returns the persistent identifier of this node.
func (n *NodeBase) StableID() string {
	return n.stable
}

// SetStableID sets the persistent identifier of this node. It is used when
// an engine-level operation recreates a node handle for the same logical
// object, and by deserialization.
func (n *NodeBase) SetStableID(id string) {
	n.stable = id
}

// TypeName returns the registered type name of this node,
// registering the type on first use.
func (n *NodeBase) TypeName() string {
	return TypeOf(n.This).Name
}

// IsValid reports whether this node has not been destroyed.
func (n *NodeBase) IsValid() bool {
	return n != nil && n.This != nil
}

// Editable reports whether this node is editable in the native editor
// (i.e., not marked as locked by another participant).
func (n *NodeBase) Editable() bool {
	return !n.notEditable
}

// SetEditable sets the native editable marker for this node.
func (n *NodeBase) SetEditable(editable bool) {
	n.notEditable = !editable
}

// Parents:

// IndexInParent returns our index within our parent node. It caches the last
// value and searches bidirectionally outward from it, so subsequent calls are
// typically quite fast. It returns -1 if we don't have a parent.
func (n *NodeBase) IndexInParent() int {
	if n.Parent == nil {
		return -1
	}
	kids := n.Parent.AsScene().Children
	idx := slicesx.Search(kids, func(e Node) bool { return e == n.This }, n.index)
	n.index = idx
	return idx
}

// Path returns the path to this node from the tree root,
// using node names separated by / delimiters.
func (n *NodeBase) Path() string {
	if n.Parent != nil {
		return n.Parent.AsScene().Path() + "/" + n.Name
	}
	return "/" + n.Name
}

// Root returns the root node of this node's tree.
func (n *NodeBase) Root() Node {
	if n.Parent == nil {
		return n.This
	}
	return n.Parent.AsScene().Root()
}

// IsAncestorOf reports whether this node is an ancestor of the given node.
func (n *NodeBase) IsAncestorOf(other Node) bool {
	got := false
	other.AsScene().WalkUp(func(k Node) bool {
		if k == n.This {
			got = true
			return Break
		}
		return Continue
	})
	return got && other != n.This
}

// Children:

// HasChildren returns whether this node has any children.
func (n *NodeBase) HasChildren() bool {
	return len(n.Children) > 0
}

// NumChildren returns the number of children this node has.
func (n *NodeBase) NumChildren() int {
	return len(n.Children)
}

// Child returns the child of this node at the given index,
// or nil if the index is out of range.
func (n *NodeBase) Child(i int) Node {
	if i >= len(n.Children) || i < 0 {
		return nil
	}
	return n.Children[i]
}

// ChildByName returns the first child that has the given name,
// or nil if none is found.
func (n *NodeBase) ChildByName(name string) Node {
	i := slicesx.Search(n.Children, func(ch Node) bool { return ch.AsScene().Name == name })
	return n.Child(i)
}

// IndexOf returns the index of the given child in this node's children,
// or -1 if it is not a child.
func (n *NodeBase) IndexOf(child Node) int {
	return slicesx.Search(n.Children, func(e Node) bool { return e == child }, child.AsScene().index)
}

// AddChild adds the given child at the end of the children list.
// The child is assumed to not be on another tree; see [MoveToParent]
// for moving nodes that already have a parent.
func (n *NodeBase) AddChild(kid Node) {
	initNode(kid)
	n.Children = append(n.Children, kid)
	setParent(kid, n.This)
}

// InsertChild adds the given child at the given position in the children
// list. The child is assumed to not be on another tree.
func (n *NodeBase) InsertChild(kid Node, at int) {
	initNode(kid)
	at = min(at, len(n.Children))
	n.Children = slices.Insert(n.Children, at, kid)
	setParent(kid, n.This)
}

// MoveChild moves the child at the given old position
// to the given new position in the children list.
func (n *NodeBase) MoveChild(from, to int) {
	if from == to || from < 0 || from >= len(n.Children) {
		return
	}
	to = min(max(to, 0), len(n.Children)-1)
	n.Children = slicesx.Move(n.Children, from, to)
}

// setParent sets the parent of the given child node.
func setParent(child, parent Node) {
	cb := child.AsScene()
	cb.Parent = parent
	if parent != nil && cb.Name == "" {
		cb.Name = strings.ToLower(child.TypeName())
	}
}

// MoveToParent removes the given node from its current parent and adds it as
// a child of the given new parent at the given index.
func MoveToParent(child, parent Node, at int) {
	old := child.AsScene().Parent
	if old != nil {
		ob := old.AsScene()
		if idx := ob.IndexOf(child); idx >= 0 {
			ob.Children = slices.Delete(ob.Children, idx, idx+1)
		}
	}
	parent.AsScene().InsertChild(child, at)
}

// DeleteChildAt deletes the child at the given index,
// returning false if there is no child there.
func (n *NodeBase) DeleteChildAt(index int) bool {
	child := n.Child(index)
	if child == nil {
		return false
	}
	n.Children = slices.Delete(n.Children, index, index+1)
	child.AsScene().Destroy()
	return true
}

// DeleteChild deletes the given child node,
// returning false if it can not find it.
func (n *NodeBase) DeleteChild(child Node) bool {
	idx := n.IndexOf(child)
	if idx < 0 {
		return false
	}
	return n.DeleteChildAt(idx)
}

// DeleteChildren deletes all children of this node.
func (n *NodeBase) DeleteChildren() {
	kids := n.Children
	n.Children = n.Children[:0]
	for _, kid := range kids {
		if kid == nil {
			continue
		}
		kid.AsScene().Destroy()
	}
}

// Delete deletes this node from its parent's children list
// and then destroys it.
func (n *NodeBase) Delete() {
	if n.Parent == nil {
		n.Destroy()
		return
	}
	n.Parent.AsScene().DeleteChild(n.This)
}

// Destroy recursively destroys this node, all of its children,
// and all of its components.
func (n *NodeBase) Destroy() {
	if n.This == nil { // already destroyed
		return
	}
	n.DeleteChildren()
	for _, c := range n.Components {
		c.invalidate()
	}
	n.Components = nil
	n.This = nil
}

// Components:

// AddComponent attaches the given component to this node.
func (n *NodeBase) AddComponent(c *Component) {
	c.Owner = n.This
	n.Components = append(n.Components, c)
}

// ComponentByType returns the first component of the given type name,
// or nil if there is none.
func (n *NodeBase) ComponentByType(typ string) *Component {
	for _, c := range n.Components {
		if c.Type == typ {
			return c
		}
	}
	return nil
}

// removeComponent removes the given component from the list
// without invalidating it.
func (n *NodeBase) removeComponent(c *Component) {
	if i := slices.Index(n.Components, c); i >= 0 {
		n.Components = slices.Delete(n.Components, i, i+1)
	}
}

// Fields:

// Fields returns the serializable fields of this node: the exported struct
// fields of the node's true underlying type, excluding those tagged
// sync:"-", plus the built-in name field. The replication layer enumerates
// these to apply and send property deltas generically.
func (n *NodeBase) Fields() []Field {
	fields := []Field{{
		Name: "name",
		Get:  func() any { return n.Name },
		Set:  func(v any) { n.Name, _ = v.(string) },
	}}
	if n.This == nil {
		return fields
	}
	v := reflect.ValueOf(n.This).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || sf.Anonymous || sf.Tag.Get("sync") == "-" {
			continue
		}
		fv := v.Field(i)
		name := sf.Tag.Get("sync")
		if name == "" {
			name = strings.ToLower(sf.Name[:1]) + sf.Name[1:]
		}
		fields = append(fields, Field{
			Name: name,
			Get:  fv.Interface,
			Set: func(val any) {
				rv := reflect.ValueOf(val)
				if val == nil || !rv.Type().AssignableTo(fv.Type()) {
					if val != nil && rv.Type().ConvertibleTo(fv.Type()) {
						fv.Set(rv.Convert(fv.Type()))
						return
					}
					slog.Error("scene.NodeBase.Fields: value not assignable", "field", sf.Name, "node", n.Path())
					return
				}
				fv.Set(rv)
			},
		})
	}
	return fields
}

// Clone creates and returns a deep copy of the tree from this node down,
// with fresh stable identifiers throughout.
func (n *NodeBase) Clone() Node {
	nc := TypeOf(n.This).New()
	initNode(nc)
	ncb := nc.AsScene()
	ncb.Name = n.Name
	ncb.TemplatePath = n.TemplatePath
	ncb.FileID = n.FileID
	ncb.SourceFileID = n.SourceFileID
	nc.AsScene().CopyFieldsFrom(n.This)
	for _, c := range n.Components {
		ncb.AddComponent(c.clone())
	}
	for _, kid := range n.Children {
		ncb.AddChild(kid.AsScene().Clone())
	}
	return nc
}

// CopyFieldsFrom copies the serializable fields of the given node to this
// node, doing a deep copy of all fields that do not have a `copier:"-"`
// struct tag.
func (n *NodeBase) CopyFieldsFrom(from Node) {
	err := copier.CopyWithOption(n.This, from.AsScene().This, copier.Option{CaseSensitive: true, DeepCopy: true})
	if err != nil {
		slog.Error("scene.NodeBase.CopyFieldsFrom", "err", err)
	}
}
