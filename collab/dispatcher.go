// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package collab

import (
	"log/slog"

	"github.com/mirrorscene/mirrorscene/replica"
	"github.com/mirrorscene/mirrorscene/scene"
	"github.com/mirrorscene/mirrorscene/session"
)

// Dispatcher routes every inbound and outbound replication event to the
// translator registered for the object's type, and is the single choke
// point for the session lifecycle of all translators. It implements
// [session.Handler].
//
// Every translator callback runs through a recover wrapper: a misbehaving
// translator is logged and skipped, never allowed to halt the tick.
type Dispatcher struct {
	eng         *Engine
	translators []Translator
	byType      map[string]Translator

	// waiting holds children whose server parent has not been created
	// yet; they are attached when the parent object resolves.
	waiting map[replica.ObjectID][]waitingChild
}

// waitingChild is a child deferred until its server parent exists.
type waitingChild struct {
	rep   *replica.Object
	index int
}

var _ session.Handler = (*Dispatcher)(nil)

// NewDispatcher returns a dispatcher with the default translators
// registered: the node translator and the component translator.
func NewDispatcher(eng *Engine) *Dispatcher {
	d := &Dispatcher{
		eng:     eng,
		byType:  map[string]Translator{},
		waiting: map[replica.ObjectID][]waitingChild{},
	}
	d.Register(newNodeTranslator(eng))
	d.Register(newComponentTranslator(eng))
	return d
}

// Register adds the given translator. Translators are consulted for
// ownership claims in registration order.
func (d *Dispatcher) Register(t Translator) {
	d.translators = append(d.translators, t)
	d.byType[t.TypeTag()] = t
}

// translatorFor returns the translator for the given type tag, walking the
// scene type's base chain when there is no exact registration. The result
// of the walk is cached under the queried tag.
func (d *Dispatcher) translatorFor(typ string) Translator {
	if t, ok := d.byType[typ]; ok {
		return t
	}
	st := scene.TypeByName(typ)
	for st != nil && st.Base != "" {
		if t, ok := d.byType[st.Base]; ok {
			d.byType[typ] = t
			return t
		}
		st = scene.TypeByName(st.Base)
	}
	// unregistered scene types replicate as plain nodes
	return d.byType[nodeTypeTag]
}

// translatorOf returns the translator for the given replica's type,
// logging when there is none.
func (d *Dispatcher) translatorOf(rep *replica.Object) Translator {
	t := d.translatorFor(rep.Type())
	if t == nil {
		slog.Error("collab.Dispatcher: no translator", "type", rep.Type(), "id", rep.ID())
	}
	return t
}

// safely runs one translator callback, recovering and logging any panic so
// one misbehaving type cannot halt the reconciliation tick.
func (d *Dispatcher) safely(op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("collab.Dispatcher: translator failed", "op", op, "recovered", r)
		}
	}()
	fn()
}

// tryCreate offers the given native object to the translators in
// registration order and returns the replica of the first one to claim it.
func (d *Dispatcher) tryCreate(native scene.Object) *replica.Object {
	var rep *replica.Object
	for _, t := range d.translators {
		d.safely("TryCreate", func() {
			rep = t.TryCreate(native)
		})
		if rep != nil {
			return rep
		}
	}
	return nil
}

// recreateNative rebuilds the native side of the given replica, used for
// canceled (locked) deletions and deferred template instances.
func (d *Dispatcher) recreateNative(rep *replica.Object) {
	t := d.translatorOf(rep)
	if t == nil {
		return
	}
	index := rep.IndexInParent()
	d.safely("OnCreate", func() { t.OnCreate(rep, index) })
}

// applyProperties applies the replica's property state to the native side.
func (d *Dispatcher) applyProperties(rep *replica.Object) {
	if t := d.translatorOf(rep); t != nil {
		d.safely("ApplyProperties", func() { t.ApplyProperties(rep) })
	}
}

// sendProperties sends the native object's current property state to the
// server through the replica.
func (d *Dispatcher) sendProperties(rep *replica.Object) {
	if t := d.translatorOf(rep); t != nil {
		d.safely("SendProperties", func() { t.SendProperties(rep) })
	}
}

// sessionStarted notifies all translators that the session is live.
func (d *Dispatcher) sessionStarted() {
	for _, t := range d.translators {
		d.safely("SessionStarted", func() { t.SessionStarted(d.eng) })
	}
}

// sessionEnded notifies all translators that the session is over.
func (d *Dispatcher) sessionEnded() {
	for _, t := range d.translators {
		d.safely("SessionEnded", func() { t.SessionEnded() })
	}
}

// passEnder is implemented by translators carrying per-pass state.
type passEnder interface {
	endPass()
}

// endPass clears per-pass translator state at the end of a tick.
func (d *Dispatcher) endPass() {
	for _, t := range d.translators {
		if pe, ok := t.(passEnder); ok {
			pe.endPass()
		}
	}
}

// session.Handler implementation (inbound server events):

// OnCreate materializes a server-created object. A child whose parent is
// not resolvable yet is parked until the parent arrives.
func (d *Dispatcher) OnCreate(id, parentID replica.ObjectID, childIndex int, typ string) {
	if d.eng.Object(id) != nil {
		slog.Debug("collab.Dispatcher: duplicate create", "id", id)
		return
	}
	rep := replica.New(typ, id)
	rep.Confirmed = true
	d.eng.register(rep)

	parent := d.eng.Object(parentID)
	if parentID != 0 && parent == nil {
		d.waiting[parentID] = append(d.waiting[parentID], waitingChild{rep: rep, index: childIndex})
		return
	}
	d.attach(rep, parent, childIndex)
}

// attach links a resolved object under its parent, materializes it, and
// releases any children that were waiting for it.
func (d *Dispatcher) attach(rep *replica.Object, parent *replica.Object, childIndex int) {
	if parent != nil {
		rep.SetParent(parent, childIndex)
	}
	if t := d.translatorOf(rep); t != nil {
		d.safely("OnCreate", func() { t.OnCreate(rep, childIndex) })
	}
	for _, w := range d.waiting[rep.ID()] {
		d.attach(w.rep, rep, w.index)
	}
	delete(d.waiting, rep.ID())
}

// OnConfirmCreate finalizes an optimistic local creation; children parked
// under the local identifier are re-keyed to the server identifier.
func (d *Dispatcher) OnConfirmCreate(id, serverID replica.ObjectID) {
	if w, ok := d.waiting[id]; ok {
		d.waiting[serverID] = append(d.waiting[serverID], w...)
		delete(d.waiting, id)
	}
	d.eng.confirmCreate(id, serverID)
}

// OnDelete destroys the native side of a remotely deleted object. The
// whole replica subtree leaves the session, each descendant through the
// engine's removal path so retained identifiers and staged uploads are
// honored at every depth.
func (d *Dispatcher) OnDelete(id replica.ObjectID) {
	rep := d.eng.Object(id)
	if rep == nil {
		return
	}
	if t := d.translatorOf(rep); t != nil {
		d.safely("OnDelete", func() { t.OnDelete(rep) })
	}
	var subtree []*replica.Object
	rep.Walk(func(o *replica.Object) {
		if o != rep {
			subtree = append(subtree, o)
		}
	})
	for _, o := range subtree {
		d.eng.removeObject(o)
	}
	d.eng.removeObject(rep)
}

// OnConfirmDelete finishes a locally requested deletion.
func (d *Dispatcher) OnConfirmDelete(id replica.ObjectID, unsubscribed bool) {
	rep := d.eng.Object(id)
	if rep == nil {
		return
	}
	if t := d.translatorOf(rep); t != nil {
		d.safely("OnConfirmDelete", func() { t.OnConfirmDelete(rep, unsubscribed) })
	}
	d.eng.removeObject(rep)
}

// OnLock routes a lock grant.
func (d *Dispatcher) OnLock(id replica.ObjectID, owner string) {
	rep := d.eng.Object(id)
	if rep == nil {
		return
	}
	d.eng.Locks.OnLock(rep, owner)
	if t := d.translatorOf(rep); t != nil {
		d.safely("OnLock", func() { t.OnLock(rep, owner) })
	}
}

// OnUnlock routes a lock release.
func (d *Dispatcher) OnUnlock(id replica.ObjectID) {
	rep := d.eng.Object(id)
	if rep == nil {
		return
	}
	d.eng.Locks.OnUnlock(rep)
	if t := d.translatorOf(rep); t != nil {
		d.safely("OnUnlock", func() { t.OnUnlock(rep) })
	}
}

// OnLockOwnerChange routes a direct lock handover.
func (d *Dispatcher) OnLockOwnerChange(id replica.ObjectID, owner string) {
	rep := d.eng.Object(id)
	if rep == nil {
		return
	}
	d.eng.Locks.OnLockOwnerChange(rep, owner)
	if t := d.translatorOf(rep); t != nil {
		d.safely("OnLockOwnerChange", func() { t.OnLockOwnerChange(rep, owner) })
	}
}

// OnParentChange applies a server-side structural move. The native side is
// reconciled in the post-phase, once, to avoid mid-frame flicker.
func (d *Dispatcher) OnParentChange(id, parentID replica.ObjectID, childIndex int) {
	rep := d.eng.Object(id)
	if rep == nil {
		return
	}
	parent := d.eng.Object(parentID)
	if parentID != 0 && parent == nil {
		d.waiting[parentID] = append(d.waiting[parentID], waitingChild{rep: rep, index: childIndex})
		return
	}
	old := rep.Parent()
	if parent != nil {
		rep.SetParent(parent, childIndex)
		d.eng.deferApply(parent)
	} else {
		rep.MoveTo(childIndex)
	}
	if old != nil && old != parent {
		d.eng.deferApply(old)
	}
	if t := d.translatorOf(rep); t != nil {
		d.safely("OnParentChange", func() { t.OnParentChange(rep, parent, childIndex) })
	}
	d.eng.Revisions.BumpFor(rep)
}

// OnPropertyChange applies a server property change.
func (d *Dispatcher) OnPropertyChange(id replica.ObjectID, path replica.Path, value any) {
	rep := d.eng.Object(id)
	if rep == nil {
		return
	}
	if err := rep.SetProperty(path, value); err != nil {
		slog.Error("collab.Dispatcher: property change", "id", id, "path", path, "err", err)
		return
	}
	d.eng.Revisions.noteProperty(rep, path, value)
	if t := d.translatorOf(rep); t != nil {
		d.safely("OnPropertyChange", func() { t.OnPropertyChange(rep, path, value) })
	}
}

// OnRemoveField applies a server dictionary-field removal.
func (d *Dispatcher) OnRemoveField(id replica.ObjectID, path replica.Path, name string) {
	rep := d.eng.Object(id)
	if rep == nil {
		return
	}
	if err := rep.RemoveField(path, name); err != nil {
		slog.Error("collab.Dispatcher: remove field", "id", id, "path", path, "name", name, "err", err)
		return
	}
	if t := d.translatorOf(rep); t != nil {
		d.safely("OnRemoveField", func() { t.OnRemoveField(rep, path, name) })
	}
}

// OnListAdd applies a server list insertion.
func (d *Dispatcher) OnListAdd(id replica.ObjectID, path replica.Path, index int, values []any) {
	rep := d.eng.Object(id)
	if rep == nil {
		return
	}
	if err := rep.ListAdd(path, index, values...); err != nil {
		slog.Error("collab.Dispatcher: list add", "id", id, "path", path, "err", err)
		return
	}
	if t := d.translatorOf(rep); t != nil {
		d.safely("OnListAdd", func() { t.OnListAdd(rep, path, index, values) })
	}
}

// OnListRemove applies a server list removal.
func (d *Dispatcher) OnListRemove(id replica.ObjectID, path replica.Path, index, count int) {
	rep := d.eng.Object(id)
	if rep == nil {
		return
	}
	if err := rep.ListRemove(path, index, count); err != nil {
		slog.Error("collab.Dispatcher: list remove", "id", id, "path", path, "err", err)
		return
	}
	if t := d.translatorOf(rep); t != nil {
		d.safely("OnListRemove", func() { t.OnListRemove(rep, path, index, count) })
	}
}
