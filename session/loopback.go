// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import "github.com/mirrorscene/mirrorscene/replica"

// OpKind identifies one kind of outbound operation recorded by [Loopback].
type OpKind int32

const (
	OpCreate OpKind = iota
	OpDelete
	OpRequestLock
	OpReleaseLock
	OpSetChildIndex
	OpSetProperty
	OpRemoveField
	OpListAdd
	OpListRemove
)

// Op is one recorded outbound operation.
type Op struct {
	Kind   OpKind
	Obj    *replica.Object
	Objs   []*replica.Object
	Parent *replica.Object
	Path   replica.Path
	Name   string
	Value  any
	Values []any
	Index  int
	Count  int
}

// Loopback is an in-process [Messenger] that records every outbound
// operation and can echo server confirmations back into a [Handler].
// It stands in for the real transport in tests and local sessions.
type Loopback struct {

	// Ops is the recorded operation log, in send order.
	Ops []Op

	// Limits holds per-type object caps; types not present are unlimited.
	Limits map[string]int

	// Handler receives echoed confirmations; may be nil.
	Handler Handler

	counts map[string]int
	nextID replica.ObjectID
}

// NewLoopback returns a new loopback messenger.
func NewLoopback() *Loopback {
	return &Loopback{counts: map[string]int{}}
}

func (lb *Loopback) Create(objs []*replica.Object, parent *replica.Object, index int) {
	lb.Ops = append(lb.Ops, Op{Kind: OpCreate, Objs: objs, Parent: parent, Index: index})
	for _, o := range objs {
		lb.counts[o.Type()]++
	}
}

func (lb *Loopback) Delete(obj *replica.Object) {
	lb.Ops = append(lb.Ops, Op{Kind: OpDelete, Obj: obj})
	if lb.counts[obj.Type()] > 0 {
		lb.counts[obj.Type()]--
	}
}

func (lb *Loopback) RequestLock(obj *replica.Object) {
	lb.Ops = append(lb.Ops, Op{Kind: OpRequestLock, Obj: obj})
}

func (lb *Loopback) ReleaseLock(obj *replica.Object) {
	lb.Ops = append(lb.Ops, Op{Kind: OpReleaseLock, Obj: obj})
}

func (lb *Loopback) SetChildIndex(obj *replica.Object, index int) {
	lb.Ops = append(lb.Ops, Op{Kind: OpSetChildIndex, Obj: obj, Index: index})
}

func (lb *Loopback) SetProperty(obj *replica.Object, path replica.Path, value any) {
	lb.Ops = append(lb.Ops, Op{Kind: OpSetProperty, Obj: obj, Path: path, Value: value})
}

func (lb *Loopback) RemoveField(obj *replica.Object, path replica.Path, name string) {
	lb.Ops = append(lb.Ops, Op{Kind: OpRemoveField, Obj: obj, Path: path, Name: name})
}

func (lb *Loopback) ListAdd(obj *replica.Object, path replica.Path, index int, values []any) {
	lb.Ops = append(lb.Ops, Op{Kind: OpListAdd, Obj: obj, Path: path, Index: index, Values: values})
}

func (lb *Loopback) ListRemove(obj *replica.Object, path replica.Path, index, count int) {
	lb.Ops = append(lb.Ops, Op{Kind: OpListRemove, Obj: obj, Path: path, Index: index, Count: count})
}

func (lb *Loopback) ObjectLimit(typ string) int {
	if lb.Limits == nil {
		return -1
	}
	if lim, ok := lb.Limits[typ]; ok {
		return lim
	}
	return -1
}

func (lb *Loopback) ObjectCount(typ string) int {
	return lb.counts[typ]
}

// OpsOfKind returns the recorded operations of the given kind.
func (lb *Loopback) OpsOfKind(kind OpKind) []Op {
	var out []Op
	for _, op := range lb.Ops {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// Reset clears the recorded operation log.
func (lb *Loopback) Reset() {
	lb.Ops = nil
}

// ConfirmCreates echoes a server confirmation for every recorded create,
// assigning ascending server identifiers. It does nothing without a
// handler.
func (lb *Loopback) ConfirmCreates() {
	if lb.Handler == nil {
		return
	}
	creates := lb.OpsOfKind(OpCreate)
	for _, op := range creates {
		for _, o := range op.Objs {
			lb.nextID++
			lb.Handler.OnConfirmCreate(o.ID(), lb.nextID)
		}
	}
}
