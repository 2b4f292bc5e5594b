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

package stdthread

import (
	"fmt"
	"sync"

	"github.com/rcore-os/rcore-thread/pkg/cpucontext"
	"github.com/rcore-os/rcore-thread/pkg/threadpool"
)

// resultSlot is the box a spawned closure's return value is written
// into before the thread exits, and JoinHandle.Join reads it out of
// after observing the exit. The mutex only ever sees uncontended
// lock/unlock pairs (writer exits before a reader can observe the exit
// code), but it is cheap insurance against reordering on unusual
// memory models.
type resultSlot[T any] struct {
	mu    sync.Mutex
	value T
}

func (s *resultSlot[T]) store(v T) {
	s.mu.Lock()
	s.value = v
	s.mu.Unlock()
}

func (s *resultSlot[T]) load() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// JoinError reports that a spawned closure never produced a value,
// because its trampoline caught a panic, matching original_source's
// std_thread::JoinHandle<T>::join() -> Result<T, Box<dyn Any + Send>>.
type JoinError struct {
	Tid threadpool.Tid
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("stdthread: thread %d panicked before returning a value", e.Tid)
}

// JoinHandle is returned by Spawn. Exactly one of Join or Detach must
// be called on it; original_source's handle has the same contract,
// enforced there by an std::thread::JoinHandle RAII drop that detaches
// automatically — Go has no destructors, so a handle dropped without
// either call leaves the thread's slot occupied after it exits, until
// something calls ThreadPool.TryRemove on its Tid.
type JoinHandle[T any] struct {
	tid    threadpool.Tid
	rt     *Runtime
	result *resultSlot[T]
	done   bool
}

// Spawn starts a new thread running f and returns a handle to it. f
// receives a *Current bound to the new thread, used to yield, sleep,
// or read its own Tid from inside the closure.
func Spawn[T any](rt *Runtime, f func(cur *Current) T) *JoinHandle[T] {
	slot := &resultSlot[T]{}
	tid := rt.pool.SpawnWithTid(func(tid threadpool.Tid) cpucontext.Entry {
		return entryTrampoline(rt, tid, func(cur *Current) {
			slot.store(f(cur))
		})
	})
	return &JoinHandle[T]{tid: tid, rt: rt, result: slot}
}

// Join blocks the calling thread (identified by cur) until the handle's
// thread exits, then returns its value, or a *JoinError if it panicked
// instead of returning. Calling Join twice, or after Detach, panics.
func (h *JoinHandle[T]) Join(cur *Current) (T, error) {
	if h.done {
		panic(fmt.Sprintf("stdthread: join: handle for thread %d already resolved", h.tid))
	}
	code, ok := h.rt.pool.TryRemove(h.tid)
	if !ok {
		h.rt.pool.Wait(cur.tid, h.tid)
		cur.Yield()
		code, ok = h.rt.pool.TryRemove(h.tid)
		if !ok {
			panic(fmt.Sprintf("stdthread: join: thread %d not exited after wakeup", h.tid))
		}
	}
	h.done = true
	if code != 0 {
		var zero T
		return zero, &JoinError{Tid: h.tid}
	}
	return h.result.load(), nil
}

// Detach releases the handle without waiting for the thread to exit:
// its slot is freed as soon as it exits rather than held for a join,
// matching original_source's std_thread::JoinHandle::detach (built on
// ThreadPool::detach). Calling Detach twice, or after Join, panics.
func (h *JoinHandle[T]) Detach() {
	if h.done {
		panic(fmt.Sprintf("stdthread: detach: handle for thread %d already resolved", h.tid))
	}
	h.rt.pool.Detach(h.tid)
	h.done = true
}

// Tid returns the Tid of the thread this handle refers to.
func (h *JoinHandle[T]) Tid() threadpool.Tid { return h.tid }
