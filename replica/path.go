// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package replica

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Elem is one step of a property [Path]: the name of a property in a dict,
// optionally followed by an index selecting an element of a list value
// (Index < 0 means no list indexing).
type Elem struct {
	Name  string
	Index int
}

// Path addresses a property inside an object's property container, e.g.
// transform/position or materials[2]/color. An empty path is invalid.
type Path []Elem

// Field returns a path element addressing the named dict property.
func Field(name string) Elem {
	return Elem{Name: name, Index: -1}
}

// At returns a path element addressing the element at the given index
// of the named list property.
func At(name string, index int) Elem {
	return Elem{Name: name, Index: index}
}

// String returns the textual form of the path.
func (p Path) String() string {
	var b strings.Builder
	for i, e := range p {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(e.Name)
		if e.Index >= 0 {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(e.Index))
			b.WriteByte(']')
		}
	}
	return b.String()
}

// ParsePath parses the textual form produced by [Path.String].
func ParsePath(s string) (Path, error) {
	if s == "" {
		return nil, errors.New("replica.ParsePath: empty path")
	}
	var p Path
	for _, part := range strings.Split(s, "/") {
		e := Elem{Name: part, Index: -1}
		if bi := strings.IndexByte(part, '['); bi >= 0 {
			if !strings.HasSuffix(part, "]") {
				return nil, fmt.Errorf("replica.ParsePath: malformed element %q", part)
			}
			idx, err := strconv.Atoi(part[bi+1 : len(part)-1])
			if err != nil {
				return nil, fmt.Errorf("replica.ParsePath: malformed index in %q: %w", part, err)
			}
			e.Name = part[:bi]
			e.Index = idx
		}
		p = append(p, e)
	}
	return p, nil
}

// Errors returned by property path resolution.
var (
	ErrPathNotFound = errors.New("property path not found")
	ErrNotAList     = errors.New("property is not a list")
	ErrNotADict     = errors.New("property is not a dictionary")
)

// resolve walks the path down to (but excluding) the final element and
// returns the dict containing it.
func (o *Object) resolve(path Path) (*Dict, error) {
	if len(path) == 0 {
		return nil, ErrPathNotFound
	}
	d := o.Props
	for _, e := range path[:len(path)-1] {
		v, ok := d.Get(e.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
		}
		if e.Index >= 0 {
			l, ok := v.(*List)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrNotAList, path)
			}
			if e.Index >= len(l.Values) {
				return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
			}
			v = l.Values[e.Index]
		}
		nd, ok := v.(*Dict)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotADict, path)
		}
		d = nd
	}
	return d, nil
}

// SetProperty sets the property addressed by the given path to the given
// value. Intermediate containers must already exist; the final dict
// property is created if missing.
func (o *Object) SetProperty(path Path, value any) error {
	d, err := o.resolve(path)
	if err != nil {
		return err
	}
	last := path[len(path)-1]
	if last.Index < 0 {
		d.Set(last.Name, value)
		return nil
	}
	v, ok := d.Get(last.Name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	l, ok := v.(*List)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAList, path)
	}
	if last.Index >= len(l.Values) {
		return fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	l.Values[last.Index] = value
	return nil
}

// Property returns the value addressed by the given path,
// and whether it exists.
func (o *Object) Property(path Path) (any, bool) {
	d, err := o.resolve(path)
	if err != nil {
		return nil, false
	}
	last := path[len(path)-1]
	v, ok := d.Get(last.Name)
	if !ok {
		return nil, false
	}
	if last.Index < 0 {
		return v, true
	}
	l, ok := v.(*List)
	if !ok || last.Index >= len(l.Values) {
		return nil, false
	}
	return l.Values[last.Index], true
}

// RemoveField removes the named field from the dict addressed by the given
// path; an empty path addresses the object's own property container.
func (o *Object) RemoveField(path Path, name string) error {
	d := o.Props
	if len(path) > 0 {
		v, ok := o.Property(path)
		if !ok {
			return fmt.Errorf("%w: %s", ErrPathNotFound, path)
		}
		d, ok = v.(*Dict)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotADict, path)
		}
	}
	if !d.Delete(name) {
		return fmt.Errorf("%w: %s/%s", ErrPathNotFound, path, name)
	}
	return nil
}

// listAt returns the list addressed by the given path.
func (o *Object) listAt(path Path) (*List, error) {
	v, ok := o.Property(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	l, ok := v.(*List)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAList, path)
	}
	return l, nil
}

// ListAdd inserts the given values at the given index of the list
// addressed by the given path.
func (o *Object) ListAdd(path Path, at int, values ...any) error {
	l, err := o.listAt(path)
	if err != nil {
		return err
	}
	l.Insert(at, values...)
	return nil
}

// ListRemove removes count elements at the given index of the list
// addressed by the given path.
func (o *Object) ListRemove(path Path, at, count int) error {
	l, err := o.listAt(path)
	if err != nil {
		return err
	}
	l.Remove(at, count)
	return nil
}
