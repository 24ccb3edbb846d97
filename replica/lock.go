// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package replica

// LockState is the lock state of a replicated object. Locks are a
// protocol-level mutual-exclusion mechanism granted by the server,
// not a local concurrency primitive.
type LockState int32

const (
	// Unlocked means nobody holds the lock.
	Unlocked LockState = iota

	// LockRequested means a local lock request has been sent
	// and not yet been granted.
	LockRequested

	// Locked means the lock is held by the participant
	// recorded in [Object.LockOwner].
	Locked

	// LockPendingRelease means a local release has been sent
	// and not yet been confirmed.
	LockPendingRelease
)

var lockStateNames = map[LockState]string{
	Unlocked:           "Unlocked",
	LockRequested:      "LockRequested",
	Locked:             "Locked",
	LockPendingRelease: "LockPendingRelease",
}

func (ls LockState) String() string {
	if s, ok := lockStateNames[ls]; ok {
		return s
	}
	return "LockState(?)"
}

// LockedBy reports whether this object's own lock is held
// by a participant other than the given one.
func (o *Object) LockedBy(other string) bool {
	return o.Lock == Locked && o.LockOwner != "" && o.LockOwner != other
}
