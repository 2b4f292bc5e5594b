// Copyright 2026 The rcore-thread Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package timer implements the monotonic, tick-driven minimum-deadline
// event queue described in spec §4.1. It is generic over its event
// payload so pkg/threadpool can key it on its own Wakeup(Tid) type
// without an import cycle; spec §3 restricts the payload used by this
// core to exactly that one event kind.
package timer

import (
	"sync"

	"github.com/google/btree"
)

// Timer is a min-ordered deadline queue of (deadline, event) pairs.
// Timer serializes access to its internal tree with its own mutex.
// ThreadPool, the only owner this core ships, calls it from multiple
// goroutines without holding a timer lock of its own, so that mutex is
// what keeps the btree consistent.
type Timer[E comparable] struct {
	mu   sync.Mutex
	tree *btree.BTree
	now  uint64
	seq  uint64
}

// degree is the btree fan-out; the timer queue in this core is always
// small (bounded by MAX_THREAD_NUM sleepers), so any reasonable degree
// works. 32 matches typical in-memory btree.New defaults seen
// elsewhere in the gVisor-adjacent ecosystem.
const degree = 32

// entry is the btree.Item stored per pending event: ordered by
// deadline first, then by insertion sequence, giving ties (equal
// deadlines) FIFO resolution per spec §4.1.
type entry[E comparable] struct {
	deadline uint64
	seq      uint64
	event    E
}

func (e entry[E]) Less(than btree.Item) bool {
	o := than.(entry[E])
	if e.deadline != o.deadline {
		return e.deadline < o.deadline
	}
	return e.seq < o.seq
}

// New returns an empty Timer with its internal clock at zero.
func New[E comparable]() *Timer[E] {
	return &Timer[E]{tree: btree.New(degree)}
}

// Start inserts (now+delta, event). delta must be > 0; a zero-delta
// "sleep forever" is modeled by the caller never calling Start at all
// (see ThreadPool.Sleep).
func (t *Timer[E]) Start(delta uint64, event E) {
	if delta == 0 {
		panic("timer: Start requires delta > 0")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.tree.ReplaceOrInsert(entry[E]{deadline: t.now + delta, seq: t.seq, event: event})
}

// Stop removes the first entry matching event by equality. It is not
// an error for no matching entry to exist.
func (t *Timer[E]) Stop(event E) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var match *entry[E]
	t.tree.Ascend(func(i btree.Item) bool {
		e := i.(entry[E])
		if e.event == event {
			m := e
			match = &m
			return false
		}
		return true
	})
	if match != nil {
		t.tree.Delete(*match)
	}
}

// Tick advances the internal clock by one.
func (t *Timer[E]) Tick() {
	t.mu.Lock()
	t.now++
	t.mu.Unlock()
}

// Pop removes and returns the event with the smallest deadline if that
// deadline is <= now; otherwise it returns (zero, false). Callers
// drain all due events by calling Pop repeatedly until it returns
// false.
func (t *Timer[E]) Pop() (E, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	min := t.tree.Min()
	if min == nil {
		var zero E
		return zero, false
	}
	e := min.(entry[E])
	if e.deadline > t.now {
		var zero E
		return zero, false
	}
	t.tree.Delete(e)
	return e.event, true
}
