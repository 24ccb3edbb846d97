// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package replica

import "slices"

// Prop is one named property in a [Dict].
type Prop struct {
	Name  string
	Value any
}

// Dict is an ordered dictionary of named properties. Values are scalars,
// [*List]s, or nested [*Dict]s. The order slice holds the properties as
// added, while the index map provides fast name lookup into it; adding and
// access are fast, deletion is relatively slow due to index reindexing.
type Dict struct {

	// Order is the ordered list of properties, in the order added.
	Order []Prop

	// index is the name to order-index mapping.
	index map[string]int
}

// NewDict returns a new empty ordered property dictionary.
func NewDict() *Dict {
	return &Dict{index: map[string]int{}}
}

// Set sets the property with the given name to the given value. If the name
// already exists its value is replaced in place, preserving order; otherwise
// it is added at the end.
func (d *Dict) Set(name string, value any) {
	if i, ok := d.index[name]; ok {
		d.Order[i].Value = value
		return
	}
	d.index[name] = len(d.Order)
	d.Order = append(d.Order, Prop{Name: name, Value: value})
}

// Get returns the value of the property with the given name,
// and whether it exists.
func (d *Dict) Get(name string) (any, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.Order[i].Value, true
}

// Delete removes the property with the given name,
// returning false if it does not exist.
func (d *Dict) Delete(name string) bool {
	i, ok := d.index[name]
	if !ok {
		return false
	}
	d.Order = slices.Delete(d.Order, i, i+1)
	delete(d.index, name)
	for j := i; j < len(d.Order); j++ {
		d.index[d.Order[j].Name] = j
	}
	return true
}

// Len returns the number of properties.
func (d *Dict) Len() int {
	return len(d.Order)
}

// Clone returns a deep copy of this dictionary, deep-copying any
// nested [*Dict] and [*List] values.
func (d *Dict) Clone() *Dict {
	nd := NewDict()
	for _, p := range d.Order {
		nd.Set(p.Name, cloneValue(p.Value))
	}
	return nd
}

// List is an ordered list property value.
type List struct {

	// Values are the list elements: scalars, [*List]s, or [*Dict]s.
	Values []any
}

// NewList returns a new list with the given values.
func NewList(values ...any) *List {
	return &List{Values: values}
}

// Insert inserts the given values at the given index,
// clamping the index to the valid range.
func (l *List) Insert(at int, values ...any) {
	if at < 0 || at > len(l.Values) {
		at = len(l.Values)
	}
	l.Values = slices.Insert(l.Values, at, values...)
}

// Remove removes count elements starting at the given index,
// clamping the range to the list bounds.
func (l *List) Remove(at, count int) {
	if at < 0 || at >= len(l.Values) || count <= 0 {
		return
	}
	end := min(at+count, len(l.Values))
	l.Values = slices.Delete(l.Values, at, end)
}

// Len returns the number of elements in the list.
func (l *List) Len() int {
	return len(l.Values)
}

// Clone returns a deep copy of this list.
func (l *List) Clone() *List {
	nl := &List{Values: make([]any, len(l.Values))}
	for i, v := range l.Values {
		nl.Values[i] = cloneValue(v)
	}
	return nl
}

// cloneValue deep-copies nested containers and passes scalars through.
func cloneValue(v any) any {
	switch tv := v.(type) {
	case *Dict:
		return tv.Clone()
	case *List:
		return tv.Clone()
	default:
		return v
	}
}
