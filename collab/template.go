// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package collab

import (
	"slices"

	"github.com/mirrorscene/mirrorscene/replica"
)

// Revisions propagates template edits to template instances. Every synced
// edit inside a template asset bumps the asset root's revision counter, at
// most once per tick regardless of how many edits the tick carries. An
// instance whose revision snapshot falls behind its template chain is
// re-materialized from the template, unless a lock defers the refresh.
type Revisions struct {
	eng *Engine

	// revised holds the template roots already bumped this pass.
	revised map[*replica.Object]bool

	// deferred holds instances whose refresh a lock is blocking.
	deferred map[*replica.Object]bool
}

func newRevisions(eng *Engine) *Revisions {
	return &Revisions{
		eng:      eng,
		revised:  map[*replica.Object]bool{},
		deferred: map[*replica.Object]bool{},
	}
}

// BumpFor records a synced edit at the given object. If the object lives
// inside a template asset, the asset root's revision is incremented and
// sent, capped at one increment per pass.
func (r *Revisions) BumpFor(rep *replica.Object) {
	root := r.owningTemplate(rep)
	if root == nil || r.revised[root] {
		return
	}
	r.revised[root] = true
	root.Revision++
	r.eng.setProperty(root, replica.Path{replica.Field("revision")}, root.Revision)
}

// owningTemplate returns the template asset root the given object lives
// under, or nil if the object is not part of a template asset. Objects
// inside template instances do not count: editing an instance never
// revises the template it came from.
func (r *Revisions) owningTemplate(rep *replica.Object) *replica.Object {
	for o := rep; o != nil; o = o.Parent() {
		if o.TemplatePath != "" && r.eng.Template(o.TemplatePath) == o {
			return o
		}
	}
	return nil
}

// Snapshot returns the current revision vector of the template chain
// rooted at the given path, inner-most template first.
func (r *Revisions) Snapshot(path string) []uint32 {
	var out []uint32
	seen := map[string]bool{}
	for path != "" && !seen[path] {
		seen[path] = true
		root := r.eng.Template(path)
		if root == nil {
			break
		}
		out = append(out, root.Revision)
		path = propString(root, "baseTemplate")
	}
	return out
}

// CheckInstance refreshes the given template instance if its revision
// snapshot is behind the current template chain. A locked instance (or one
// under a locked ancestor) is deferred and rechecked when the lock clears.
func (r *Revisions) CheckInstance(rep *replica.Object) {
	if rep.NoTemplate || rep.TemplatePath == "" {
		return
	}
	if r.eng.Template(rep.TemplatePath) == rep {
		return
	}
	want := r.Snapshot(rep.TemplatePath)
	if len(want) == 0 {
		return
	}
	if slices.Equal(rep.InstanceRevisions, want) {
		delete(r.deferred, rep)
		return
	}
	if r.eng.Locks.FullyLocked(rep) || r.eng.Locks.PartiallyLocked(rep) {
		r.deferred[rep] = true
		return
	}
	delete(r.deferred, rep)
	r.refresh(rep, want)
}

// refresh re-materializes the given instance from its template: the stale
// native subtree is destroyed and rebuilt, the advanced revision snapshot
// is replicated, and the rebuilt subtree is staged so its state re-syncs
// to the server in the next pre-phase.
func (r *Revisions) refresh(rep *replica.Object, want []uint32) {
	if node := r.eng.nodeOf(rep); node != nil {
		node.AsScene().Delete()
	}
	rep.InstanceRevisions = want
	r.eng.Dispatcher.recreateNative(rep)
	r.eng.setProperty(rep, replica.Path{replica.Field("instanceRevisions")}, revisionList(want))
	if node := r.eng.nodeOf(rep); node != nil {
		r.eng.SyncAll(node, true, false)
	}
}

// revisionList converts a revision vector to its replicated property form.
func revisionList(revs []uint32) *replica.List {
	l := &replica.List{Values: make([]any, len(revs))}
	for i, v := range revs {
		l.Values[i] = v
	}
	return l
}

// recheckDeferred retries the refresh of instances a lock was blocking.
func (r *Revisions) recheckDeferred() {
	for inst := range r.deferred {
		if !r.eng.Locks.FullyLocked(inst) && !r.eng.Locks.PartiallyLocked(inst) {
			r.CheckInstance(inst)
		}
	}
}

// noteProperty keeps the replica's revision state in step with inbound
// property changes: the template revision counter and the instance
// revision snapshot both travel as ordinary replicated properties.
func (r *Revisions) noteProperty(rep *replica.Object, path replica.Path, value any) {
	if len(path) != 1 || path[0].Index >= 0 {
		return
	}
	switch path[0].Name {
	case "revision":
		if v, ok := asRevision(value); ok {
			rep.Revision = v
		}
	case "instanceRevisions":
		l, ok := value.(*replica.List)
		if !ok {
			return
		}
		revs := make([]uint32, 0, len(l.Values))
		for _, v := range l.Values {
			if u, ok := asRevision(v); ok {
				revs = append(revs, u)
			}
		}
		rep.InstanceRevisions = revs
	}
}

// asRevision coerces the numeric types a JSON transport produces.
func asRevision(v any) (uint32, bool) {
	switch tv := v.(type) {
	case uint32:
		return tv, true
	case int:
		return uint32(tv), true
	case int64:
		return uint32(tv), true
	case uint64:
		return uint32(tv), true
	case float64:
		return uint32(tv), true
	}
	return 0, false
}

// endPass resets the once-per-pass bump cap.
func (r *Revisions) endPass() {
	clear(r.revised)
}
