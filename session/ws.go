// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"encoding/json"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/mirrorscene/mirrorscene/replica"
)

// frame is the placeholder JSON framing used by [Conn]. The protocol
// semantics live in [Handler] and [Messenger]; this encoding exists so the
// engine can talk to a hub during development and is not a stable format.
type frame struct {
	Op       string           `json:"op"`
	ID       replica.ObjectID `json:"id,omitempty"`
	ServerID replica.ObjectID `json:"serverId,omitempty"`
	Parent   replica.ObjectID `json:"parent,omitempty"`
	Type     string           `json:"type,omitempty"`
	Owner    string           `json:"owner,omitempty"`
	Path     string           `json:"path,omitempty"`
	Name     string           `json:"name,omitempty"`
	Index    int              `json:"index,omitempty"`
	Count    int              `json:"count,omitempty"`
	Value    any              `json:"value,omitempty"`
	Values   []any            `json:"values,omitempty"`
	Unsub    bool             `json:"unsub,omitempty"`
	Batch    []frame          `json:"batch,omitempty"`
}

// Conn is a [Messenger] over a WebSocket connection to a session hub.
// Inbound frames are queued by a background read goroutine and applied to a
// [Handler] only when [Conn.Drain] is called from the update goroutine, so
// all replication state stays single-threaded.
type Conn struct {
	conn   *websocket.Conn
	inbox  chan frame
	done   chan struct{}
	limits map[string]int
	counts map[string]int
}

// Connect dials the given WebSocket URL and starts the read loop.
func Connect(url string) (*Conn, error) {
	wc, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		conn:   wc,
		inbox:  make(chan frame, 256),
		done:   make(chan struct{}),
		limits: map[string]int{},
		counts: map[string]int{},
	}
	go c.readLoop()
	return c, nil
}

// readLoop reads frames until the connection closes.
func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Error("session.Conn: read", "err", err)
			}
			return
		}
		var f frame
		if err := json.Unmarshal(msg, &f); err != nil {
			slog.Error("session.Conn: malformed frame", "err", err)
			continue
		}
		select {
		case c.inbox <- f:
		case <-c.done:
			return
		}
	}
}

// CloseNotify returns a channel that is closed when the connection closes.
func (c *Conn) CloseNotify() <-chan struct{} {
	return c.done
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Drain applies all queued inbound frames to the given handler. It must be
// called from the update goroutine, typically once per tick before the
// engine's post-phase.
func (c *Conn) Drain(h Handler) {
	for {
		select {
		case f := <-c.inbox:
			c.apply(h, f)
		default:
			return
		}
	}
}

// apply dispatches one inbound frame to the handler.
func (c *Conn) apply(h Handler, f frame) {
	path, err := replica.ParsePath(f.Path)
	if f.Path != "" && err != nil {
		slog.Error("session.Conn: bad path", "op", f.Op, "path", f.Path, "err", err)
		return
	}
	switch f.Op {
	case "create":
		c.counts[f.Type]++
		h.OnCreate(f.ID, f.Parent, f.Index, f.Type)
	case "confirmCreate":
		h.OnConfirmCreate(f.ID, f.ServerID)
	case "delete":
		h.OnDelete(f.ID)
	case "confirmDelete":
		h.OnConfirmDelete(f.ID, f.Unsub)
	case "lock":
		h.OnLock(f.ID, f.Owner)
	case "unlock":
		h.OnUnlock(f.ID)
	case "lockOwner":
		h.OnLockOwnerChange(f.ID, f.Owner)
	case "parent":
		h.OnParentChange(f.ID, f.Parent, f.Index)
	case "set":
		h.OnPropertyChange(f.ID, path, f.Value)
	case "removeField":
		h.OnRemoveField(f.ID, path, f.Name)
	case "listAdd":
		h.OnListAdd(f.ID, path, f.Index, f.Values)
	case "listRemove":
		h.OnListRemove(f.ID, path, f.Index, f.Count)
	case "limit":
		c.limits[f.Type] = f.Count
	default:
		slog.Error("session.Conn: unknown op", "op", f.Op)
	}
}

// send marshals and writes one frame.
func (c *Conn) send(f frame) {
	msg, err := json.Marshal(f)
	if err != nil {
		slog.Error("session.Conn: marshal", "op", f.Op, "err", err)
		return
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		slog.Error("session.Conn: write", "op", f.Op, "err", err)
	}
}

// propsValue flattens an object's property container for the create frame.
func propsValue(d *replica.Dict) any {
	out := make(map[string]any, d.Len())
	for _, p := range d.Order {
		switch v := p.Value.(type) {
		case *replica.Dict:
			out[p.Name] = propsValue(v)
		case *replica.List:
			vals := make([]any, len(v.Values))
			for i, e := range v.Values {
				if nd, ok := e.(*replica.Dict); ok {
					vals[i] = propsValue(nd)
				} else {
					vals[i] = e
				}
			}
			out[p.Name] = vals
		default:
			out[p.Name] = v
		}
	}
	return out
}

func (c *Conn) Create(objs []*replica.Object, parent *replica.Object, index int) {
	f := frame{Op: "create", Index: index}
	if parent != nil {
		f.Parent = parent.ID()
	}
	for _, o := range objs {
		c.counts[o.Type()]++
		bf := frame{ID: o.ID(), Type: o.Type(), Value: propsValue(o.Props)}
		if p := o.Parent(); p != nil {
			bf.Parent = p.ID()
			bf.Index = p.Index(o)
		}
		f.Batch = append(f.Batch, bf)
	}
	c.send(f)
}

func (c *Conn) Delete(obj *replica.Object) {
	if c.counts[obj.Type()] > 0 {
		c.counts[obj.Type()]--
	}
	c.send(frame{Op: "delete", ID: obj.ID()})
}

func (c *Conn) RequestLock(obj *replica.Object) {
	c.send(frame{Op: "lock", ID: obj.ID()})
}

func (c *Conn) ReleaseLock(obj *replica.Object) {
	c.send(frame{Op: "unlock", ID: obj.ID()})
}

func (c *Conn) SetChildIndex(obj *replica.Object, index int) {
	f := frame{Op: "parent", ID: obj.ID(), Index: index}
	if p := obj.Parent(); p != nil {
		f.Parent = p.ID()
	}
	c.send(f)
}

func (c *Conn) SetProperty(obj *replica.Object, path replica.Path, value any) {
	c.send(frame{Op: "set", ID: obj.ID(), Path: path.String(), Value: value})
}

func (c *Conn) RemoveField(obj *replica.Object, path replica.Path, name string) {
	c.send(frame{Op: "removeField", ID: obj.ID(), Path: path.String(), Name: name})
}

func (c *Conn) ListAdd(obj *replica.Object, path replica.Path, index int, values []any) {
	c.send(frame{Op: "listAdd", ID: obj.ID(), Path: path.String(), Index: index, Values: values})
}

func (c *Conn) ListRemove(obj *replica.Object, path replica.Path, index, count int) {
	c.send(frame{Op: "listRemove", ID: obj.ID(), Path: path.String(), Index: index, Count: count})
}

func (c *Conn) ObjectLimit(typ string) int {
	if lim, ok := c.limits[typ]; ok {
		return lim
	}
	return -1
}

func (c *Conn) ObjectCount(typ string) int {
	return c.counts[typ]
}
