// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package depsort provides a generic topological dependency sorter. It is
// used to sequence template uploads so that a derived template is never
// materialized before the template it is based on.
package depsort

// Sorter records dependencies between items of any comparable key type and
// yields them in an order where every dependency precedes its dependents.
// The zero value is ready to use.
type Sorter[K comparable] struct {

	// deps maps an item to its ordered dependency list.
	deps map[K][]K

	// order is the insertion order of items that have dependencies,
	// which keeps [Sorter.Sort] deterministic.
	order []K
}

// Add records that item depends on dep. It returns false and leaves the
// graph unchanged if the edge would create a cycle, i.e. if dep already
// transitively depends on item (or dep == item).
func (s *Sorter[K]) Add(item, dep K) bool {
	if item == dep {
		return false
	}
	if s.dependsOn(dep, item, map[K]bool{}) {
		return false
	}
	if s.deps == nil {
		s.deps = map[K][]K{}
	}
	if _, ok := s.deps[item]; !ok {
		s.order = append(s.order, item)
	}
	s.deps[item] = append(s.deps[item], dep)
	return true
}

// dependsOn reports whether from transitively depends on target, memoizing
// visited items so the traversal stays near O(V+E).
func (s *Sorter[K]) dependsOn(from, target K, visited map[K]bool) bool {
	if from == target {
		return true
	}
	if visited[from] {
		return false
	}
	visited[from] = true
	for _, d := range s.deps[from] {
		if s.dependsOn(d, target, visited) {
			return true
		}
	}
	return false
}

// Sort returns the recorded items in dependency order: for every item X,
// all dependencies of X precede X. Only items that were added with at least
// one dependency act as traversal roots; an item that was never involved in
// any dependency is not emitted. Ordering is depth-first post-order over the
// dependency edges, in insertion order.
func (s *Sorter[K]) Sort() []K {
	visited := map[K]bool{}
	var out []K
	var visit func(k K)
	visit = func(k K) {
		if visited[k] {
			return
		}
		visited[k] = true
		for _, d := range s.deps[k] {
			visit(d)
		}
		out = append(out, k)
	}
	for _, item := range s.order {
		visit(item)
	}
	return out
}

// Reset removes all recorded dependencies.
func (s *Sorter[K]) Reset() {
	s.deps = nil
	s.order = nil
}
