// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package slicesx extends the standard [slices] package with the ordered
// mutation and proximity search helpers the scene tree needs.
package slicesx

import "slices"

// Move removes the element at from and reinserts it at to, returning the
// resulting slice. to addresses the slice after the removal.
func Move[E any](s []E, from, to int) []E {
	e := s[from]
	return slices.Insert(slices.Delete(s, from, from+1), to, e)
}

// Swap exchanges the elements at i and j in place.
func Swap[E any](s []E, i, j int) {
	s[i], s[j] = s[j], s[i]
}

// Search returns the index of the first element accepted by match,
// scanning outward in both directions from an optional start index. When
// the caller has a good guess at the position, such as a cached child
// index, this touches far fewer elements than a full scan. Without a
// start index the scan begins in the middle; a start of 0 degenerates to
// a plain forward scan, and out-of-range starts are clamped. It returns
// -1 when nothing matches.
func Search[E any](s []E, match func(e E) bool, start ...int) int {
	n := len(s)
	if n == 0 {
		return -1
	}
	at := n / 2
	if len(start) > 0 && start[0] >= 0 {
		at = min(start[0], n-1)
	}
	if at == 0 {
		return slices.IndexFunc(s, match)
	}
	for lo, hi := at, at+1; lo >= 0 || hi < n; {
		if hi < n {
			if match(s[hi]) {
				return hi
			}
			hi++
		}
		if lo >= 0 {
			if match(s[lo]) {
				return lo
			}
			lo--
		}
	}
	return -1
}
