// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scene

// WalkUp calls the given function on this node and all of its parents,
// sequentially. It stops walking if the function returns [Break] and keeps
// walking if it returns [Continue]. It returns whether walking was finished
// (false if it was aborted with [Break]).
func (n *NodeBase) WalkUp(fun func(n Node) bool) bool {
	cur := n.This
	for {
		if !fun(cur) {
			return false
		}
		parent := cur.AsScene().Parent
		if parent == nil || parent == cur { // prevent loops
			return true
		}
		cur = parent
	}
}

// WalkDown calls the given function on this node and all of its children in
// depth-first order. It stops walking the current branch of the tree if the
// function returns [Break] and keeps walking if it returns [Continue].
// The function can destroy nodes it visits; destroyed subtrees are skipped.
func (n *NodeBase) WalkDown(fun func(n Node) bool) {
	if n.This == nil {
		return
	}
	if !fun(n.This) || n.This == nil {
		return
	}
	// iterate over a snapshot so fun can mutate the child list
	kids := make([]Node, len(n.Children))
	copy(kids, n.Children)
	for _, kid := range kids {
		if kid == nil || kid.AsScene().This == nil {
			continue
		}
		kid.AsScene().WalkDown(fun)
	}
}

// WalkDownPost calls the given function on this node and all of its children
// in depth-first post order, so children are always processed before their
// parents.
func (n *NodeBase) WalkDownPost(fun func(n Node) bool) {
	if n.This == nil {
		return
	}
	kids := make([]Node, len(n.Children))
	copy(kids, n.Children)
	for _, kid := range kids {
		if kid == nil || kid.AsScene().This == nil {
			continue
		}
		kid.AsScene().WalkDownPost(fun)
	}
	if n.This != nil {
		fun(n.This)
	}
}
