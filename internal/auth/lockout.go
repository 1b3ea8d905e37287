// Copyright (c) 2026 FieldServe. All rights reserved.

package auth

import "time"

// # Lockout State Machine
//
// The lockout tracker is a pure function over the two persisted fields
// (FailedLoginAttempts, AccountLockedUntil) and the current time. No state
// lives in memory, which makes it safe under process restarts and horizontal
// scaling: every evaluation reconstructs the state from the stored row.

// LockoutPolicy holds the tunable parameters of the brute-force lockout.
type LockoutPolicy struct {
	// Threshold is the number of consecutive failures that trips the lock.
	Threshold int
	// Duration is how long a tripped lock stays active.
	Duration time.Duration
}

// DefaultLockoutPolicy returns the production lockout parameters.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		Threshold: DefaultLockoutThreshold,
		Duration:  DefaultLockoutDuration,
	}
}

// LockoutState is the persisted lockout bookkeeping of one principal.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// IsLocked reports whether the lock window is active at the given instant.
func (state LockoutState) IsLocked(now time.Time) bool {
	return state.LockedUntil != nil && state.LockedUntil.After(now)
}

// RetryAfter returns the remaining lock duration at the given instant,
// rounded up to whole seconds so a client that waits exactly this long never
// lands inside the window. Zero when not locked.
func (state LockoutState) RetryAfter(now time.Time) time.Duration {
	if !state.IsLocked(now) {
		return 0
	}
	remaining := state.LockedUntil.Sub(now)
	rounded := remaining.Truncate(time.Second)
	if rounded < remaining {
		rounded += time.Second
	}
	return rounded
}

// RecordFailure applies the failure transition and returns the new state.
//
// When the incremented count reaches the threshold the state transitions to
// LOCKED: LockedUntil is set and the counter resets to zero, so the lock
// duration (not the counter) is authoritative from then on. An expired lock
// is cleared before counting, which lets the post-lock first failure start a
// fresh count of 1.
func (policy LockoutPolicy) RecordFailure(state LockoutState, now time.Time) LockoutState {
	if state.LockedUntil != nil && !state.LockedUntil.After(now) {
		state.LockedUntil = nil
	}

	state.FailedAttempts++
	if state.FailedAttempts >= policy.Threshold {
		lockedUntil := now.Add(policy.Duration)
		return LockoutState{FailedAttempts: 0, LockedUntil: &lockedUntil}
	}
	return state
}

// RecordSuccess applies the success transition: both fields clear
// unconditionally, regardless of prior count.
func (policy LockoutPolicy) RecordSuccess() LockoutState {
	return LockoutState{}
}

// RemainingAttempts returns how many more failures the state absorbs before
// locking under this policy.
func (policy LockoutPolicy) RemainingAttempts(state LockoutState) int {
	remaining := policy.Threshold - state.FailedAttempts
	if remaining < 0 {
		return 0
	}
	return remaining
}

// lockoutStateOf reconstructs the state machine input from a principal row.
func lockoutStateOf(principal *Principal) LockoutState {
	return LockoutState{
		FailedAttempts: principal.FailedLoginAttempts,
		LockedUntil:    principal.AccountLockedUntil,
	}
}
