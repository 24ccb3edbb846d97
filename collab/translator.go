// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package collab

import (
	"reflect"

	"github.com/mirrorscene/mirrorscene/replica"
	"github.com/mirrorscene/mirrorscene/scene"
)

// Translator converts between one family of native scene types and their
// replica representation. The [Dispatcher] resolves the translator for an
// object through the scene type registry, so a translator registered for a
// base type also serves all types derived from it.
//
// All callbacks run on the update goroutine, wrapped in the dispatcher's
// panic recovery.
type Translator interface {

	// TypeTag returns the replica type tag this translator owns.
	TypeTag() string

	// TryCreate returns a new replica for the given native object, or nil
	// if this translator does not handle it. The returned replica is not
	// yet uploaded; the engine stages it for the next pre-phase.
	TryCreate(native scene.Object) *replica.Object

	// OnCreate materializes (or re-materializes) the native side of the
	// given replica at the given child index under its parent.
	OnCreate(rep *replica.Object, childIndex int)

	// OnDelete destroys the native side of a remotely deleted object.
	OnDelete(rep *replica.Object)

	// OnConfirmDelete finishes a locally requested deletion. unsubscribed
	// reports whether the object left the session's interest set rather
	// than being destroyed globally.
	OnConfirmDelete(rep *replica.Object, unsubscribed bool)

	// ApplyProperties applies the replica's full property state to the
	// native side, overwriting local edits.
	ApplyProperties(rep *replica.Object)

	// SendProperties diffs the native object's fields against the replica
	// and sends every changed property.
	SendProperties(rep *replica.Object)

	// OnPropertyChange applies one server property change to the native
	// side. The replica has already been updated.
	OnPropertyChange(rep *replica.Object, path replica.Path, value any)

	// OnRemoveField applies a server dictionary-field removal.
	OnRemoveField(rep *replica.Object, path replica.Path, name string)

	// OnListAdd applies a server list insertion.
	OnListAdd(rep *replica.Object, path replica.Path, index int, values []any)

	// OnListRemove applies a server list removal.
	OnListRemove(rep *replica.Object, path replica.Path, index, count int)

	// OnParentChange reacts to a server-side structural move. The replica
	// tree has already been updated and a hierarchy re-apply queued.
	OnParentChange(rep *replica.Object, parent *replica.Object, childIndex int)

	// OnReplace reacts to the native handle bound to the replica being
	// replaced by another handle for the same logical object, after the
	// registry has been re-pointed.
	OnReplace(rep *replica.Object, old, new scene.Object)

	// OnLock, OnUnlock, and OnLockOwnerChange react to lock transitions,
	// after the lock coordinator has updated the replica state.
	OnLock(rep *replica.Object, owner string)
	OnUnlock(rep *replica.Object)
	OnLockOwnerChange(rep *replica.Object, owner string)

	// SessionStarted and SessionEnded bracket the session lifecycle.
	SessionStarted(eng *Engine)
	SessionEnded()
}

// FieldHook overrides the generic handling of one named property for a
// translator. A hook that returns false falls through to the generic path.
type FieldHook struct {

	// Apply applies one incoming property value to the native side.
	Apply func(eng *Engine, rep *replica.Object, native scene.Object, value any) bool

	// Send produces the outgoing value for the field. handled=false falls
	// through to the generic field getter.
	Send func(eng *Engine, rep *replica.Object, native scene.Object) (value any, handled bool)
}

// Base is the default [Translator] implementation: generic field-based
// property transfer with per-field hooks, and no-op structural callbacks.
// Concrete translators embed it and override what they need.
type Base struct {

	// Hooks overrides property handling per field name.
	Hooks map[string]FieldHook

	eng *Engine
}

func (b *Base) TypeTag() string                              { return "" }
func (b *Base) TryCreate(native scene.Object) *replica.Object { return nil }
func (b *Base) OnCreate(rep *replica.Object, childIndex int) {}
func (b *Base) OnDelete(rep *replica.Object)                 {}

func (b *Base) OnConfirmDelete(rep *replica.Object, unsubscribed bool) {}

func (b *Base) OnParentChange(rep *replica.Object, parent *replica.Object, childIndex int) {}

func (b *Base) OnReplace(rep *replica.Object, old, new scene.Object) {}

func (b *Base) OnLock(rep *replica.Object, owner string)            {}
func (b *Base) OnUnlock(rep *replica.Object)                        {}
func (b *Base) OnLockOwnerChange(rep *replica.Object, owner string) {}

func (b *Base) SessionStarted(eng *Engine) {
	b.eng = eng
}

func (b *Base) SessionEnded() {}

// ApplyProperties applies every replica property to the corresponding
// native field, hooks first.
func (b *Base) ApplyProperties(rep *replica.Object) {
	native, ok := b.eng.Registry.ByReplica(rep)
	if !ok || !native.IsValid() {
		return
	}
	fields := fieldMap(native)
	for _, p := range rep.Props.Order {
		b.applyField(rep, native, fields, p.Name, p.Value)
	}
}

// applyField applies one property to the native side.
func (b *Base) applyField(rep *replica.Object, native scene.Object, fields map[string]scene.Field, name string, value any) {
	if h, ok := b.Hooks[name]; ok && h.Apply != nil {
		if h.Apply(b.eng, rep, native, value) {
			return
		}
	}
	f, ok := fields[name]
	if !ok {
		return
	}
	f.Set(fromReplicaValue(b.eng, value))
}

// SendProperties diffs the native fields against the replica and sends
// every changed property, hooks first. Equal values are skipped so that
// re-syncing an unchanged object produces no traffic.
func (b *Base) SendProperties(rep *replica.Object) {
	native, ok := b.eng.Registry.ByReplica(rep)
	if !ok || !native.IsValid() {
		return
	}
	for _, f := range native.Fields() {
		var value any
		if h, ok := b.Hooks[f.Name]; ok && h.Send != nil {
			v, handled := h.Send(b.eng, rep, native)
			if !handled {
				continue
			}
			value = v
		} else {
			value = toReplicaValue(b.eng, f.Get())
		}
		if old, ok := rep.Props.Get(f.Name); ok && reflect.DeepEqual(old, value) {
			continue
		}
		b.eng.setProperty(rep, replica.Path{replica.Field(f.Name)}, value)
		b.eng.Revisions.BumpFor(rep)
	}
}

// OnPropertyChange applies one server property change to the native side.
// Only top-level fields map directly onto native fields; deeper paths are
// re-applied through the root field's full value.
func (b *Base) OnPropertyChange(rep *replica.Object, path replica.Path, value any) {
	native, ok := b.eng.Registry.ByReplica(rep)
	if !ok || !native.IsValid() {
		return
	}
	fields := fieldMap(native)
	root := path[0].Name
	rv, ok := rep.Props.Get(root)
	if !ok {
		return
	}
	b.applyField(rep, native, fields, root, rv)
}

func (b *Base) OnRemoveField(rep *replica.Object, path replica.Path, name string) {
	b.reapplyRoot(rep, path, name)
}

func (b *Base) OnListAdd(rep *replica.Object, path replica.Path, index int, values []any) {
	b.reapplyRoot(rep, path, "")
}

func (b *Base) OnListRemove(rep *replica.Object, path replica.Path, index, count int) {
	b.reapplyRoot(rep, path, "")
}

// reapplyRoot re-applies the root field containing a container mutation.
// An empty path with a name addresses a top-level field removal.
func (b *Base) reapplyRoot(rep *replica.Object, path replica.Path, name string) {
	native, ok := b.eng.Registry.ByReplica(rep)
	if !ok || !native.IsValid() {
		return
	}
	root := name
	if len(path) > 0 {
		root = path[0].Name
	}
	rv, ok := rep.Props.Get(root)
	if !ok {
		return
	}
	b.applyField(rep, native, fieldMap(native), root, rv)
}

// fieldMap indexes a native object's fields by name.
func fieldMap(native scene.Object) map[string]scene.Field {
	fields := native.Fields()
	m := make(map[string]scene.Field, len(fields))
	for _, f := range fields {
		m[f.Name] = f
	}
	return m
}

// toReplicaValue converts a native field value to its replica property
// form: object handles become [replica.Ref], maps and slices become the
// replica container types.
func toReplicaValue(eng *Engine, v any) any {
	switch tv := v.(type) {
	case scene.Object:
		if rep, ok := eng.Registry.ByNative(tv); ok {
			return replica.Ref(rep.ID())
		}
		return replica.Ref(0)
	case map[string]any:
		d := replica.NewDict()
		for name, val := range tv {
			d.Set(name, toReplicaValue(eng, val))
		}
		return d
	case []any:
		l := &replica.List{Values: make([]any, len(tv))}
		for i, val := range tv {
			l.Values[i] = toReplicaValue(eng, val)
		}
		return l
	default:
		return v
	}
}

// fromReplicaValue converts a replica property value to its native field
// form, resolving references to native handles. An unresolvable reference
// becomes nil rather than a dangling id.
func fromReplicaValue(eng *Engine, v any) any {
	switch tv := v.(type) {
	case replica.Ref:
		rep := eng.Object(replica.ObjectID(tv))
		if rep == nil {
			return nil
		}
		native, ok := eng.Registry.ByReplica(rep)
		if !ok {
			return nil
		}
		return native
	case *replica.Dict:
		m := make(map[string]any, tv.Len())
		for _, p := range tv.Order {
			m[p.Name] = fromReplicaValue(eng, p.Value)
		}
		return m
	case *replica.List:
		out := make([]any, len(tv.Values))
		for i, val := range tv.Values {
			out[i] = fromReplicaValue(eng, val)
		}
		return out
	default:
		return v
	}
}
