// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package collab implements the replication engine: the event dispatcher
// that routes replication events to per-type translators, the hierarchy
// reconciler that converges native and server child ordering with minimal
// moves, and the template revision propagation that keeps instances of a
// shared template consistent.
//
// Everything runs on one logical update goroutine, driven by [Engine.Tick]:
// a pre-phase flushes locally-originated changes to the server, and a
// post-phase applies server-originated changes to the native scene. All
// pending sets are plain maps drained deterministically once per tick;
// correctness rests on this single-threaded two-phase discipline, not on
// local locking.
package collab

import (
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/mirrorscene/mirrorscene/depsort"
	"github.com/mirrorscene/mirrorscene/locks"
	"github.com/mirrorscene/mirrorscene/registry"
	"github.com/mirrorscene/mirrorscene/replica"
	"github.com/mirrorscene/mirrorscene/scene"
	"github.com/mirrorscene/mirrorscene/session"
)

// Engine owns the replication state of one editing session: the registry of
// native/replica bindings, the lock coordinator, the dispatcher with its
// per-type translators, and the per-frame pending sets.
type Engine struct {

	// Options configures engine behavior; see [Options].
	Options *Options

	// Registry is the bidirectional native/replica map.
	Registry *registry.Registry

	// Locks is the lock coordinator for this session.
	Locks *locks.Coordinator

	// Dispatcher routes replication events to per-type translators
	// and implements [session.Handler].
	Dispatcher *Dispatcher

	// Reconciler is the hierarchy diff/merge algorithm.
	Reconciler *Reconciler

	// Revisions tracks template revision propagation.
	Revisions *Revisions

	// Root is the native scene root this engine replicates.
	Root scene.Node

	// Drain, if set, is called between the pre-phase and the post-phase
	// of every tick to deliver queued inbound server events (for example
	// [session.Conn.Drain]). Inbound events must only be delivered on the
	// update goroutine.
	Drain func(h session.Handler)

	// NotifyLimit is called once per object type when a creation attempt
	// exceeds the server-set cap for that type. May be nil.
	NotifyLimit func(typ string, limit int)

	msgr    session.Messenger
	objects map[replica.ObjectID]*replica.Object

	// per-frame pending sets, drained once per tick
	uploads        []*replica.Object               // new local objects awaiting upload, parents first
	dirtyHierarchy map[*replica.Object]bool        // parents with local child-order changes
	dirtyProps     map[scene.Object]bool           // natives with local property changes
	deferredApply  map[*replica.Object]bool        // parents needing server→native re-apply at end of tick
	recreate       []*replica.Object               // locked local deletions converted to recreation
	templateOrder  depsort.Sorter[string]          // orders template uploads, base before derived
	templates      map[string]*replica.Object      // template asset path → asset root replica
	orphans        map[string][]*replica.Object    // instances waiting for an unresolved template
	limitNotified  map[string]bool                 // types already notified about the cap
	connected      bool
}

// NewEngine returns an engine replicating the given native scene root
// through the given messenger.
func NewEngine(opts *Options, msgr session.Messenger, root scene.Node) *Engine {
	if opts == nil {
		opts = NewOptions()
	}
	e := &Engine{
		Options:        opts,
		Registry:       registry.New(),
		Root:           root,
		msgr:           msgr,
		objects:        map[replica.ObjectID]*replica.Object{},
		dirtyHierarchy: map[*replica.Object]bool{},
		dirtyProps:     map[scene.Object]bool{},
		deferredApply:  map[*replica.Object]bool{},
		templates:      map[string]*replica.Object{},
		orphans:        map[string][]*replica.Object{},
		limitNotified:  map[string]bool{},
	}
	self := opts.Participant
	if self == "" {
		self = uuid.NewString()
	}
	e.Locks = locks.New(self, msgr, e.Registry)
	e.Locks.OnUnlocked = e.onUnlocked
	e.Revisions = newRevisions(e)
	e.Reconciler = &Reconciler{eng: e}
	e.Dispatcher = NewDispatcher(e)
	return e
}

// Connect starts the session: translators are notified, the native root is
// bound, and the existing scene is synced. It is the single entry point for
// session lifecycle, mirrored by [Engine.Disconnect].
func (e *Engine) Connect() {
	if e.connected {
		return
	}
	e.connected = true
	e.Dispatcher.sessionStarted()
	e.SyncAll(e.Root, true, false)
}

// Dial connects to the session hub in the given options over WebSocket,
// returning a connected engine replicating the given native scene root.
// The caller drives [Engine.Tick] and closes the connection when done.
func Dial(opts *Options, root scene.Node) (*Engine, *session.Conn, error) {
	if opts == nil {
		opts = NewOptions()
	}
	conn, err := session.Connect(opts.ServerURL)
	if err != nil {
		return nil, nil, err
	}
	eng := NewEngine(opts, conn, root)
	eng.Drain = conn.Drain
	eng.Connect()
	return eng, conn, nil
}

// Disconnect ends the session: translators are notified and all pending
// sets are dropped.
func (e *Engine) Disconnect() {
	if !e.connected {
		return
	}
	e.connected = false
	e.Dispatcher.sessionEnded()
	e.uploads = nil
	e.recreate = nil
	clear(e.dirtyHierarchy)
	clear(e.dirtyProps)
	clear(e.deferredApply)
}

// Object returns the session-wide replica with the given identifier.
func (e *Engine) Object(id replica.ObjectID) *replica.Object {
	return e.objects[id]
}

// register adds the given replica to the session-wide object table.
func (e *Engine) register(rep *replica.Object) {
	e.objects[rep.ID()] = rep
}

// nodeOf returns the valid native node bound to the given replica, or nil.
func (e *Engine) nodeOf(rep *replica.Object) scene.Node {
	native, ok := e.Registry.ByReplica(rep)
	if !ok {
		return nil
	}
	node, ok := native.(scene.Node)
	if !ok || !node.AsScene().IsValid() {
		return nil
	}
	return node
}

// Tick runs one update: the pre-phase flushes locally-originated changes,
// inbound events are drained, and the post-phase applies server-originated
// changes. Locally-confirmed creations are always flushed before
// server-applied creations are processed, so a just-created local object
// never races its own echoed confirmation.
func (e *Engine) Tick() {
	if !e.connected {
		return
	}
	e.prePhase()
	if e.Drain != nil {
		e.Drain(e.Dispatcher)
	}
	e.postPhase()
	e.Revisions.endPass()
	e.Dispatcher.endPass()
}

// prePhase flushes locally-originated changes: recreate pending objects,
// upload new children, sync changed hierarchies, and resend properties.
func (e *Engine) prePhase() {
	// locked deletions convert to recreation
	recreate := e.recreate
	e.recreate = nil
	for _, rep := range recreate {
		e.Dispatcher.recreateNative(rep)
	}

	e.flushUploads()

	dirty := drainSet(e.dirtyHierarchy)
	for _, parent := range dirty {
		e.Reconciler.Sync(parent)
	}

	props := drainSet(e.dirtyProps)
	for _, native := range props {
		rep, ok := e.Registry.ByNative(native)
		if !ok {
			continue
		}
		if e.Locks.FullyLocked(rep) {
			// lock conflict: revert the edit to server state instead of sending
			e.Dispatcher.applyProperties(rep)
			continue
		}
		e.Dispatcher.sendProperties(rep)
	}
}

// postPhase applies server-originated changes: queued hierarchy re-applies,
// dependent template materialization, and instance revision checks.
func (e *Engine) postPhase() {
	// dependency-ordered templates first, then any remaining resolvable ones
	for _, path := range e.templateOrder.Sort() {
		e.resolveOrphans(path)
	}
	e.templateOrder.Reset()
	for path := range e.orphans {
		e.resolveOrphans(path)
	}

	applies := drainSet(e.deferredApply)
	for _, parent := range applies {
		e.Reconciler.Apply(parent)
	}

	if e.Options.AutoTemplateRefresh {
		// a refresh can register new replicas; snapshot before checking
		var instances []*replica.Object
		for _, rep := range e.objects {
			if rep.TemplatePath != "" && !rep.NoTemplate && rep.InstanceRevisions != nil {
				instances = append(instances, rep)
			}
		}
		for _, rep := range instances {
			e.Revisions.CheckInstance(rep)
		}
	}
}

// drainSet empties the given pending set and returns its keys.
func drainSet[K comparable](set map[K]bool) []K {
	if len(set) == 0 {
		return nil
	}
	keys := make([]K, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	clear(set)
	return keys
}

// Native-engine surface:

// IsSyncable reports whether the given native object is eligible for
// replication: some translator recognizes its type and policy does not
// exclude it.
func (e *Engine) IsSyncable(native scene.Object) bool {
	if node, ok := native.(scene.Node); ok && node.AsScene().Transient {
		return false
	}
	return e.Dispatcher.translatorFor(native.TypeName()) != nil
}

// CreateObject creates (or returns) the replica for the given native
// object, staging a new one for upload in the next pre-phase. It returns
// nil if no translator claims the object or the server's per-type object
// cap would be exceeded.
func (e *Engine) CreateObject(native scene.Object) *replica.Object {
	if rep, ok := e.Registry.ByNative(native); ok {
		return rep
	}
	if !e.IsSyncable(native) {
		return nil
	}
	typ := native.TypeName()
	if !e.admit(typ) {
		return nil
	}
	rep := e.Dispatcher.tryCreate(native)
	if rep == nil {
		return nil
	}
	e.register(rep)
	e.uploads = append(e.uploads, rep)
	return rep
}

// admit checks the per-type object cap (the server's, tightened by any
// local [Options.ObjectLimits] entry), notifying the user once per type
// (not per attempt) when it is exceeded. Staged uploads count toward the
// cap, so several creations in one pass cannot slip under it together.
func (e *Engine) admit(typ string) bool {
	limit := e.msgr.ObjectLimit(typ)
	if local, ok := e.Options.ObjectLimits[typ]; ok && (limit < 0 || local < limit) {
		limit = local
	}
	if limit < 0 {
		return true
	}
	count := e.msgr.ObjectCount(typ)
	for _, rep := range e.uploads {
		if rep.Type() == typ {
			count++
		}
	}
	if count < limit {
		return true
	}
	if !e.limitNotified[typ] {
		e.limitNotified[typ] = true
		slog.Warn("collab.Engine: object limit reached", "type", typ, "limit", limit)
		if e.NotifyLimit != nil {
			e.NotifyLimit(typ, limit)
		}
	}
	return false
}

// SyncAll creates replicas for the given native node and (if recursive) its
// subtree, and stages its hierarchy and properties for the next pre-phase
// flush. If fixLocks is set, the locked presentation state of already
// synced objects is re-applied.
func (e *Engine) SyncAll(native scene.Node, recursive, fixLocks bool) {
	sync := func(n scene.Node) bool {
		nb := n.AsScene()
		if nb.Transient {
			return scene.Break
		}
		rep := e.CreateObject(n)
		if rep == nil {
			return scene.Break
		}
		for _, c := range nb.Components {
			e.CreateObject(c)
		}
		if fixLocks && e.Locks.FullyLocked(rep) {
			e.Locks.OnLock(rep, rep.LockOwner)
		}
		e.dirtyHierarchy[rep] = true
		e.dirtyProps[n] = true
		return scene.Continue
	}
	if recursive {
		native.AsScene().WalkDown(sync)
	} else {
		sync(native)
	}
}

// ApplyServerState re-applies the server's view of the given native node:
// properties and (if recursive) the child order of its subtree. It is used
// to revert local changes that conflict with locks.
func (e *Engine) ApplyServerState(native scene.Node, recursive bool) {
	rep, ok := e.Registry.ByNative(native)
	if !ok {
		return
	}
	e.Dispatcher.applyProperties(rep)
	e.Reconciler.Apply(rep)
	if recursive {
		for _, child := range rep.Children() {
			if cn := e.nodeOf(child); cn != nil {
				e.ApplyServerState(cn, true)
			}
		}
	}
}

// Change notifications from the native side:

// NodeAdded stages a just-created native node (and its subtree) for
// replication.
func (e *Engine) NodeAdded(native scene.Node) {
	e.SyncAll(native, true, false)
	if parent := native.AsScene().Parent; parent != nil {
		if prep, ok := e.Registry.ByNative(parent); ok {
			e.dirtyHierarchy[prep] = true
		}
	}
}

// HierarchyChanged stages the given native node for a native→server
// hierarchy sync in the next pre-phase.
func (e *Engine) HierarchyChanged(native scene.Node) {
	if rep, ok := e.Registry.ByNative(native); ok {
		e.dirtyHierarchy[rep] = true
	}
}

// PropertyChanged stages the given native object for a property flush in
// the next pre-phase.
func (e *Engine) PropertyChanged(native scene.Object) {
	if _, ok := e.Registry.ByNative(native); ok {
		e.dirtyProps[native] = true
	}
}

// NodeDeleted handles a local deletion of the given native object. If the
// object is locked the deletion is canceled: the same replica identity is
// recreated next tick instead (delete converted to reupload). Otherwise the
// deletion is sent; a replica marked [replica.Object.RetainOnDelete] keeps
// its identifier and registry entry with cleared properties so inbound
// references stay valid across re-creation.
func (e *Engine) NodeDeleted(native scene.Object) {
	rep, ok := e.Registry.ByNative(native)
	if !ok {
		return
	}
	if e.Locks.FullyLocked(rep) || e.Locks.PartiallyLocked(rep) {
		e.recreate = append(e.recreate, rep)
		return
	}
	e.msgr.Delete(rep)
	if rep.RetainOnDelete {
		rep.ClearProps()
		e.Registry.UnbindNative(native)
		return
	}
	rep.Detach()
	e.Registry.UnbindNative(native)
}

// Uploads:

// flushUploads sends all staged new objects to the server, batched per
// parent, parents before children. Template asset roots are registered for
// dependency-ordered processing in the post-phase.
func (e *Engine) flushUploads() {
	uploads := e.uploads
	e.uploads = nil
	for len(uploads) > 0 {
		first := uploads[0]
		parent := first.Parent()
		var batch []*replica.Object
		rest := uploads[:0]
		for _, rep := range uploads {
			if rep.Parent() == parent {
				batch = append(batch, rep)
			} else {
				rest = append(rest, rep)
			}
		}
		index := 0
		if parent != nil {
			index = parent.Index(first)
		}
		e.msgr.Create(batch, parent, index)
		uploads = rest
	}
}

// Templates:

// RegisterTemplate records the given replica as the root of the template
// asset at the given path, with the given base template path for derived
// templates (empty for none). Upload ordering guarantees a derived template
// is never materialized before its base.
func (e *Engine) RegisterTemplate(path string, root *replica.Object, base string) {
	root.TemplatePath = path
	e.templates[path] = root
	e.register(root)
	if base != "" {
		root.Props.Set("baseTemplate", base)
		if !e.templateOrder.Add(path, base) {
			slog.Error("collab.Engine: cyclic template dependency", "path", path, "base", base)
		}
	}
}

// Template returns the template asset root replica for the given path.
func (e *Engine) Template(path string) *replica.Object {
	return e.templates[path]
}

// DeferInstance parks the given instance replica until the template at the
// given path becomes resolvable; a placeholder native node stands in
// meanwhile.
func (e *Engine) DeferInstance(path string, inst *replica.Object) {
	e.orphans[path] = append(e.orphans[path], inst)
}

// resolveOrphans materializes instances that were waiting for the template
// at the given path.
func (e *Engine) resolveOrphans(path string) {
	if e.templates[path] == nil {
		return
	}
	waiting := e.orphans[path]
	delete(e.orphans, path)
	for _, inst := range waiting {
		e.Dispatcher.recreateNative(inst)
	}
}

// deferApply queues the given parent for a server→native hierarchy
// re-apply at the end of the tick. Queuing (rather than applying
// immediately) both avoids flicker from repeated mid-frame reshuffles and
// implements the lock-conflict revert: a discarded local move is replaced
// by the server's view exactly once per tick.
func (e *Engine) deferApply(parent *replica.Object) {
	e.deferredApply[parent] = true
}

// onUnlocked runs work deferred while an object was locked by another
// participant: queued hierarchy reverts and template refreshes.
func (e *Engine) onUnlocked(rep *replica.Object) {
	if parent := rep.Parent(); parent != nil {
		e.deferApply(parent)
	}
	e.Revisions.recheckDeferred()
}

// References:

// RetargetReferences rewrites every reference property in the session from
// the old identifier to the new one. It is used when identity conflicts
// collapse two replicas into one and when confirmation replaces a local
// identifier.
func (e *Engine) RetargetReferences(old, new replica.ObjectID) {
	for _, obj := range e.objects {
		retargetDict(obj.Props, old, new)
	}
}

func retargetDict(d *replica.Dict, old, new replica.ObjectID) {
	for i, p := range d.Order {
		d.Order[i].Value = retargetValue(p.Value, old, new)
	}
}

func retargetValue(v any, old, new replica.ObjectID) any {
	switch tv := v.(type) {
	case replica.Ref:
		if replica.ObjectID(tv) == old {
			return replica.Ref(new)
		}
	case *replica.Dict:
		retargetDict(tv, old, new)
	case *replica.List:
		for i, e := range tv.Values {
			tv.Values[i] = retargetValue(e, old, new)
		}
	}
	return v
}

// collapseDuplicate merges two replicas that turned out to represent the
// same logical object (an identity conflict between concurrent creations).
// The loser's native binding moves to the winner, the winner's duplicate
// native is destroyed, references to the loser are retargeted, and the
// loser is deleted.
func (e *Engine) collapseDuplicate(winner, loser *replica.Object) {
	wNative, wBound := e.Registry.ByReplica(winner)
	lNative, lBound := e.Registry.ByReplica(loser)
	if lBound {
		if wBound && wNative != lNative {
			if node, ok := wNative.(scene.Node); ok && node.AsScene().IsValid() {
				node.AsScene().Delete()
			}
		}
		e.Registry.Bind(lNative, winner)
		if t := e.Dispatcher.translatorOf(winner); t != nil {
			e.Dispatcher.safely("OnReplace", func() { t.OnReplace(winner, wNative, lNative) })
		}
	}
	e.RetargetReferences(loser.ID(), winner.ID())
	if loser.Confirmed {
		e.msgr.Delete(loser)
	}
	loser.RetainOnDelete = false
	e.removeObject(loser)
	slog.Debug("collab.Engine: identity conflict collapsed", "winner", winner.ID(), "loser", loser.ID())
}

// setProperty records one property change on the replica and sends it.
func (e *Engine) setProperty(rep *replica.Object, path replica.Path, value any) {
	if err := rep.SetProperty(path, value); err != nil {
		slog.Error("collab.Engine: set property", "id", rep.ID(), "path", path, "err", err)
		return
	}
	e.msgr.SetProperty(rep, path, value)
}

// confirmCreate finalizes an optimistic local creation with the
// server-assigned identifier.
func (e *Engine) confirmCreate(localID, serverID replica.ObjectID) {
	rep := e.objects[localID]
	if rep == nil {
		slog.Error("collab.Engine: confirm for unknown object", "id", localID)
		return
	}
	delete(e.objects, localID)
	rep.SetID(serverID)
	rep.Confirmed = true
	e.objects[serverID] = rep
	e.RetargetReferences(localID, serverID)
}

// removeObject drops the given replica from the session-wide table and
// registry, unless its identifier is retained.
func (e *Engine) removeObject(rep *replica.Object) {
	if rep.RetainOnDelete {
		rep.ClearProps()
		return
	}
	rep.Detach()
	e.Registry.UnbindReplica(rep)
	delete(e.objects, rep.ID())
	if i := slices.Index(e.uploads, rep); i >= 0 {
		e.uploads = slices.Delete(e.uploads, i, i+1)
	}
}
