// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scene

import (
	"reflect"
	"strings"
	"sync"
)

// Type represents a registered scene object type. The native engine's
// inheritance hierarchy is flattened into an explicit base-type chain,
// so that per-type replication policies can be selected with an
// is-assignable query instead of virtual dispatch.
type Type struct {

	// Name is the short type name (e.g. Mesh).
	Name string

	// Base is the name of the base type this type derives from,
	// or empty for a root type.
	Base string

	// New returns a new instance of this type.
	New func() Node

	// allBases is the compiled set of all transitive base type names,
	// built lazily on the first assignability query.
	allBases map[string]bool
}

var (
	typesMu     sync.RWMutex
	typesByName = map[string]*Type{}
)

// AddType adds the given type to the type registry
// and returns it for convenient chaining.
func AddType(t *Type) *Type {
	typesMu.Lock()
	defer typesMu.Unlock()
	typesByName[t.Name] = t
	return t
}

// TypeByName returns the registered type with the given name,
// or nil if there is none.
func TypeByName(name string) *Type {
	typesMu.RLock()
	defer typesMu.RUnlock()
	return typesByName[name]
}

// TypeOf returns the registered [Type] for the given node, registering a
// type with the reflected name and no base on first use.
func TypeOf(n Node) *Type {
	name := typeName(n)
	if t := TypeByName(name); t != nil {
		return t
	}
	rt := reflect.TypeOf(n).Elem()
	return AddType(&Type{
		Name: name,
		New: func() Node {
			return reflect.New(rt).Interface().(Node)
		},
	})
}

// typeName returns the short, package-unqualified type name of the node.
func typeName(n Node) string {
	name := reflect.TypeOf(n).Elem().String()
	if li := strings.LastIndex(name, "."); li >= 0 {
		name = name[li+1:]
	}
	return name
}

// AssignableTo reports whether this type is the given type or derives from
// it at any depth. The first call compiles the full base set so subsequent
// queries are a single map lookup.
func (t *Type) AssignableTo(base string) bool {
	if t.Name == base {
		return true
	}
	if t.allBases == nil {
		t.compileBases()
	}
	return t.allBases[base]
}

// compileBases walks the base chain and records every transitive base.
func (t *Type) compileBases() {
	t.allBases = map[string]bool{}
	for b := t.Base; b != ""; {
		if t.allBases[b] { // defends against a registration cycle
			break
		}
		t.allBases[b] = true
		bt := TypeByName(b)
		if bt == nil {
			break
		}
		b = bt.Base
	}
}
