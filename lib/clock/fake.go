// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at initial. Time moves only through
// Advance. Pending timers, tickers, and sleeps fire when an Advance
// carries the clock past their deadline.
//
// FakeClock is safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	fc := &FakeClock{now: initial}
	fc.changed = sync.NewCond(&fc.mu)
	return fc
}

// FakeClock is a deterministic Clock for tests.
//
// AfterFunc callbacks run synchronously inside Advance, in deadline
// order. Calling Advance or Sleep from inside a callback deadlocks.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	entries []*fakeEntry
	changed *sync.Cond
}

// fakeEntry is one scheduled wake-up: a timer, ticker, or sleeper.
type fakeEntry struct {
	deadline time.Time

	// Exactly one of ch and fn is set. ch receives the fire time for
	// After, Sleep, and Ticker entries; fn runs for AfterFunc entries.
	ch chan time.Time
	fn func()

	// every is the reschedule interval for tickers, zero for one-shots.
	every time.Duration

	stopped bool
	fired   bool
}

// Now returns the frozen current time.
func (fc *FakeClock) Now() time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.now
}

// After registers a one-shot channel entry. Non-positive durations
// deliver immediately without registering anything.
func (fc *FakeClock) After(d time.Duration) <-chan time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- fc.now
		return ch
	}
	fc.add(&fakeEntry{deadline: fc.now.Add(d), ch: ch})
	return ch
}

// AfterFunc registers a one-shot callback entry. A non-positive d runs
// f synchronously before returning.
func (fc *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	fc.mu.Lock()

	if d <= 0 {
		fc.mu.Unlock()
		f()
		return &Timer{
			stop:  func() bool { return false },
			reset: func(time.Duration) bool { return false },
		}
	}

	entry := &fakeEntry{deadline: fc.now.Add(d), fn: f}
	fc.add(entry)
	fc.mu.Unlock()

	return &Timer{
		stop: func() bool {
			fc.mu.Lock()
			defer fc.mu.Unlock()
			if entry.stopped || entry.fired {
				return false
			}
			entry.stopped = true
			return true
		},
		reset: func(d time.Duration) bool {
			fc.mu.Lock()
			defer fc.mu.Unlock()
			active := !entry.stopped && !entry.fired
			entry.deadline = fc.now.Add(d)
			entry.stopped = false
			if entry.fired {
				// Fired entries were dropped from the list; re-arm
				// means re-registering.
				entry.fired = false
				fc.add(entry)
			}
			return active
		},
	}
}

// NewTicker registers a repeating entry. Panics when d <= 0.
func (fc *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive NewTicker interval")
	}

	fc.mu.Lock()
	ch := make(chan time.Time, 1)
	entry := &fakeEntry{deadline: fc.now.Add(d), ch: ch, every: d}
	fc.add(entry)
	fc.mu.Unlock()

	return &Ticker{
		C: ch,
		stop: func() {
			fc.mu.Lock()
			defer fc.mu.Unlock()
			entry.stopped = true
		},
		reset: func(d time.Duration) {
			fc.mu.Lock()
			defer fc.mu.Unlock()
			entry.every = d
			entry.deadline = fc.now.Add(d)
			entry.stopped = false
		},
	}
}

// Sleep blocks until an Advance carries the clock past the deadline.
func (fc *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-fc.After(d)
}

// Advance moves the clock forward by d and fires everything whose
// deadline now falls due, strictly in deadline order. Entries
// registered by AfterFunc callbacks during the advance (and ticker
// reschedules) participate if their deadline is within range.
//
// Channel deliveries are non-blocking: a full buffer drops the tick,
// matching time.Ticker.
func (fc *FakeClock) Advance(d time.Duration) {
	fc.mu.Lock()
	fc.now = fc.now.Add(d)
	target := fc.now
	fc.mu.Unlock()

	for {
		entry := fc.takeEarliest(target)
		if entry == nil {
			return
		}
		if entry.fn != nil {
			entry.fn()
			continue
		}
		select {
		case entry.ch <- target:
		default:
		}
	}
}

// takeEarliest removes and returns the due entry with the earliest
// deadline, or nil when nothing is due at target. Tickers are
// rescheduled rather than removed; one-shots are marked fired.
func (fc *FakeClock) takeEarliest(target time.Time) *fakeEntry {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	var earliest *fakeEntry
	index := -1
	for i, entry := range fc.entries {
		if entry.stopped || entry.deadline.After(target) {
			continue
		}
		if earliest == nil || entry.deadline.Before(earliest.deadline) {
			earliest = entry
			index = i
		}
	}
	if earliest == nil {
		fc.compact()
		return nil
	}

	if earliest.every > 0 {
		earliest.deadline = earliest.deadline.Add(earliest.every)
	} else {
		earliest.fired = true
		fc.entries = append(fc.entries[:index], fc.entries[index+1:]...)
	}
	return earliest
}

// compact drops stopped entries so the list does not grow without
// bound across long tests.
func (fc *FakeClock) compact() {
	kept := fc.entries[:0]
	for _, entry := range fc.entries {
		if !entry.stopped {
			kept = append(kept, entry)
		}
	}
	fc.entries = kept
}

// add registers an entry and wakes WaitForTimers callers. Caller holds
// fc.mu.
func (fc *FakeClock) add(entry *fakeEntry) {
	fc.entries = append(fc.entries, entry)
	fc.changed.Broadcast()
}

// WaitForTimers blocks until at least n entries are pending. It closes
// the race between a goroutine registering a timer and the test
// advancing the clock:
//
//	go worker(fc)        // worker arms a debounce timer
//	fc.WaitForTimers(1)  // wait for the arm
//	fc.Advance(debounce) // fire it deterministically
func (fc *FakeClock) WaitForTimers(n int) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	for fc.pendingLocked() < n {
		fc.changed.Wait()
	}
}

// PendingCount returns the number of pending (armed, unfired) entries.
func (fc *FakeClock) PendingCount() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.pendingLocked()
}

func (fc *FakeClock) pendingLocked() int {
	n := 0
	for _, entry := range fc.entries {
		if !entry.stopped {
			n++
		}
	}
	return n
}
