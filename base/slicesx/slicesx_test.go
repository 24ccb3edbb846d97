// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slicesx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMove(t *testing.T) {
	assert.Equal(t, []int{1, 3, 2, 4}, Move([]int{1, 2, 3, 4}, 2, 1))
	assert.Equal(t, []int{2, 3, 1, 4}, Move([]int{1, 2, 3, 4}, 0, 2))
	assert.Equal(t, []int{4, 1, 2, 3}, Move([]int{1, 2, 3, 4}, 3, 0))
}

func TestSwap(t *testing.T) {
	s := []string{"a", "b", "c"}
	Swap(s, 0, 2)
	assert.Equal(t, []string{"c", "b", "a"}, s)
}

func TestSearch(t *testing.T) {
	s := []int{10, 20, 30, 40, 50}
	match := func(want int) func(int) bool {
		return func(e int) bool { return e == want }
	}
	assert.Equal(t, 0, Search(s, match(10)))
	assert.Equal(t, 4, Search(s, match(50)))
	assert.Equal(t, 2, Search(s, match(30), 2))
	assert.Equal(t, 3, Search(s, match(40), 0))
	assert.Equal(t, 1, Search(s, match(20), 4))
	assert.Equal(t, -1, Search(s, match(99)))
	assert.Equal(t, -1, Search(s, match(99), 2))
	assert.Equal(t, -1, Search([]int{}, match(1)))
	// out-of-range start indices are clamped
	assert.Equal(t, 2, Search(s, match(30), 17))
	assert.Equal(t, 2, Search(s, match(30), -3))
}
