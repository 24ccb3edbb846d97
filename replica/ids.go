// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package replica

// localIDBase is the start of the optimistic local identifier range.
// Server-assigned identifiers stay below it.
const localIDBase ObjectID = 1 << 63

// LocalIDs allocates optimistic identifiers for locally created objects
// that the server has not confirmed yet. Identifiers come from the upper
// half of the id space so they can never collide with server-assigned ones.
type LocalIDs struct {
	next ObjectID
}

// Next returns the next unused local identifier.
func (a *LocalIDs) Next() ObjectID {
	if a.next < localIDBase {
		a.next = localIDBase
	}
	a.next++
	return a.next
}

// IsLocal reports whether the given identifier is an optimistic local one,
// as opposed to a server-assigned identifier.
func IsLocal(id ObjectID) bool {
	return id >= localIDBase
}
