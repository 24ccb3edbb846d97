// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorscene/mirrorscene/replica"
)

// event is one recorded handler callback.
type event struct {
	op    string
	id    replica.ObjectID
	path  string
	value any
}

// recorder is a [Handler] that records every callback.
type recorder struct {
	events []event
}

func (r *recorder) OnCreate(id, parentID replica.ObjectID, childIndex int, typ string) {
	r.events = append(r.events, event{op: "create", id: id, value: typ})
}

func (r *recorder) OnConfirmCreate(id, serverID replica.ObjectID) {
	r.events = append(r.events, event{op: "confirmCreate", id: id, value: serverID})
}

func (r *recorder) OnDelete(id replica.ObjectID) {
	r.events = append(r.events, event{op: "delete", id: id})
}

func (r *recorder) OnConfirmDelete(id replica.ObjectID, unsubscribed bool) {
	r.events = append(r.events, event{op: "confirmDelete", id: id, value: unsubscribed})
}

func (r *recorder) OnLock(id replica.ObjectID, owner string) {
	r.events = append(r.events, event{op: "lock", id: id, value: owner})
}

func (r *recorder) OnUnlock(id replica.ObjectID) {
	r.events = append(r.events, event{op: "unlock", id: id})
}

func (r *recorder) OnLockOwnerChange(id replica.ObjectID, owner string) {
	r.events = append(r.events, event{op: "lockOwner", id: id, value: owner})
}

func (r *recorder) OnParentChange(id, parentID replica.ObjectID, childIndex int) {
	r.events = append(r.events, event{op: "parent", id: id, value: childIndex})
}

func (r *recorder) OnPropertyChange(id replica.ObjectID, path replica.Path, value any) {
	r.events = append(r.events, event{op: "set", id: id, path: path.String(), value: value})
}

func (r *recorder) OnRemoveField(id replica.ObjectID, path replica.Path, name string) {
	r.events = append(r.events, event{op: "removeField", id: id, path: path.String(), value: name})
}

func (r *recorder) OnListAdd(id replica.ObjectID, path replica.Path, index int, values []any) {
	r.events = append(r.events, event{op: "listAdd", id: id, path: path.String(), value: values})
}

func (r *recorder) OnListRemove(id replica.ObjectID, path replica.Path, index, count int) {
	r.events = append(r.events, event{op: "listRemove", id: id, path: path.String(), value: count})
}

func newTestConn() *Conn {
	return &Conn{
		inbox:  make(chan frame, 16),
		done:   make(chan struct{}),
		limits: map[string]int{},
		counts: map[string]int{},
	}
}

func TestApplyDispatch(t *testing.T) {
	c := newTestConn()
	h := &recorder{}

	c.apply(h, frame{Op: "create", ID: 7, Parent: 1, Type: "NodeBase"})
	c.apply(h, frame{Op: "set", ID: 7, Path: "transform/position", Value: 3.0})
	c.apply(h, frame{Op: "lock", ID: 7, Owner: "other"})
	c.apply(h, frame{Op: "delete", ID: 7})

	require.Len(t, h.events, 4)
	assert.Equal(t, event{op: "create", id: 7, value: "NodeBase"}, h.events[0])
	assert.Equal(t, event{op: "set", id: 7, path: "transform/position", value: 3.0}, h.events[1])
	assert.Equal(t, event{op: "lock", id: 7, value: "other"}, h.events[2])
	assert.Equal(t, event{op: "delete", id: 7}, h.events[3])

	// creates count toward the per-type total
	assert.Equal(t, 1, c.ObjectCount("NodeBase"))
}

func TestApplyLimit(t *testing.T) {
	c := newTestConn()
	h := &recorder{}

	assert.Equal(t, -1, c.ObjectLimit("NodeBase"))
	c.apply(h, frame{Op: "limit", Type: "NodeBase", Count: 10})
	assert.Equal(t, 10, c.ObjectLimit("NodeBase"))
	assert.Empty(t, h.events) // limits are consumed by the connection
}

func TestApplyBadPath(t *testing.T) {
	c := newTestConn()
	h := &recorder{}

	c.apply(h, frame{Op: "set", ID: 7, Path: "bad[x]", Value: 1})
	assert.Empty(t, h.events)
}

func TestDrain(t *testing.T) {
	c := newTestConn()
	h := &recorder{}

	c.inbox <- frame{Op: "lock", ID: 3, Owner: "other"}
	c.inbox <- frame{Op: "unlock", ID: 3}
	c.Drain(h)
	require.Len(t, h.events, 2)
	assert.Equal(t, "lock", h.events[0].op)
	assert.Equal(t, "unlock", h.events[1].op)

	// an empty inbox drains without blocking
	c.Drain(h)
	assert.Len(t, h.events, 2)
}

func TestPropsValue(t *testing.T) {
	d := replica.NewDict()
	d.Set("name", "thing")
	inner := replica.NewDict()
	inner.Set("x", 1.0)
	d.Set("transform", inner)
	d.Set("tags", &replica.List{Values: []any{"a", "b"}})

	v := propsValue(d)
	assert.Equal(t, map[string]any{
		"name":      "thing",
		"transform": map[string]any{"x": 1.0},
		"tags":      []any{"a", "b"},
	}, v)
}

func TestLoopbackConfirmCreates(t *testing.T) {
	lb := NewLoopback()
	h := &recorder{}
	lb.Handler = h

	a := replica.New("NodeBase", 1<<63+1)
	b := replica.New("NodeBase", 1<<63+2)
	lb.Create([]*replica.Object{a, b}, nil, 0)
	assert.Equal(t, 2, lb.ObjectCount("NodeBase"))

	lb.ConfirmCreates()
	require.Len(t, h.events, 2)
	assert.Equal(t, event{op: "confirmCreate", id: a.ID(), value: replica.ObjectID(1)}, h.events[0])
	assert.Equal(t, event{op: "confirmCreate", id: b.ID(), value: replica.ObjectID(2)}, h.events[1])

	lb.Delete(a)
	assert.Equal(t, 1, lb.ObjectCount("NodeBase"))
}
