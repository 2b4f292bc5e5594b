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

// Package stdthread is the ergonomic thread-handle API from spec §4.5:
// spawn, yield_now, sleep, park/unpark, current, and join/detach on the
// handle returned by spawn.
//
// original_source's std_thread module reaches "the current thread"
// through a bare `processor()` call with no arguments, because on real
// hardware a trampoline can read a per-core register to recover which
// physical CPU (and therefore which Processor) is driving it. A hosted
// Go goroutine has no such register and Go has no supported goroutine-
// local storage, so ambient lookup would have to be faked with a
// runtime.Stack-parsing hack. Instead every operation that must run "as
// the current thread" takes an explicit *Current, handed to the
// spawned closure the way gVisor's kernel package threads an explicit
// *kernel.Task through syscall handlers rather than reaching for
// goroutine-local state.
package stdthread

import (
	"fmt"

	"github.com/rcore-os/rcore-thread/pkg/cpucontext"
	"github.com/rcore-os/rcore-thread/pkg/processor"
	"github.com/rcore-os/rcore-thread/pkg/threadpool"
)

// Runtime ties a processor Table to the ThreadPool it drives. Spawn and
// Unpark hang off it directly; operations that must run as the calling
// thread hang off the Current handle a spawned closure receives.
type Runtime struct {
	table *processor.Table
	pool  *threadpool.ThreadPool
}

// NewRuntime returns a Runtime over an already-Init'd table and pool.
func NewRuntime(table *processor.Table, pool *threadpool.ThreadPool) *Runtime {
	return &Runtime{table: table, pool: pool}
}

// Pool returns the underlying ThreadPool.
func (rt *Runtime) Pool() *threadpool.ThreadPool { return rt.pool }

// Table returns the underlying processor Table.
func (rt *Runtime) Table() *processor.Table { return rt.table }

// Unpark wakes tid if it is parked, mirroring original_source's
// thread::Thread::unpark built on ThreadPool::wakeup. If tid called
// Park/Sleep but has not yet actually stopped running, the transition
// to Sleeping is still only pending (ThreadPool defers it to
// status_after_stop while tid is Running; see ThreadPool.Stop), and an
// ordinary Wakeup would see tid's committed status as Running and do
// nothing — the unpark would be lost, and tid would go on to park with
// nobody left to wake it. CancelSleeping closes that race by reverting
// a still-pending sleep back to Ready before Wakeup runs, so Unpark
// has an effect whether it arrives before or after tid actually stops.
func (rt *Runtime) Unpark(tid threadpool.Tid) {
	rt.pool.CancelSleeping(tid)
	rt.pool.Wakeup(tid)
}

// Current is a live handle to the thread executing the call, valid for
// the duration of the spawned closure it was handed to.
type Current struct {
	tid threadpool.Tid
	rt  *Runtime
}

// ID returns this thread's Tid.
func (c *Current) ID() threadpool.Tid { return c.tid }

// processor resolves which Processor currently drives this thread. It
// is re-resolved on every call rather than cached, because a thread
// that yields and is later re-picked may land on a different CPU (spec
// places no affinity guarantee across a sleep/wake or a yield/re-pick).
func (c *Current) processor() *processor.Processor {
	st, ok := c.rt.pool.Status(c.tid)
	if !ok || st.Kind != threadpool.StatusRunning {
		panic(fmt.Sprintf("stdthread: current thread %d is not marked running", c.tid))
	}
	return c.rt.table.ByID(st.CPU)
}

// Yield gives up the CPU for one scheduling round, matching
// original_source's thread::yield_now.
func (c *Current) Yield() { c.processor().YieldNow() }

// Sleep parks the calling thread for duration ticks (0 meaning forever)
// and yields immediately, matching thread::sleep.
func (c *Current) Sleep(duration uint64) {
	proc := c.processor()
	c.rt.pool.Sleep(c.tid, duration)
	proc.YieldNow()
}

// Park sleeps forever until a matching Unpark, matching
// original_source's thread::park.
func (c *Current) Park() { c.Sleep(0) }

// entryTrampoline is shared by Spawn[T]; run is expected to store its
// closure's return value itself (in the caller's result slot) before
// returning, so the only generic-free work left here is the exit and
// Finish bookkeeping every spawned thread needs.
func entryTrampoline(rt *Runtime, tid threadpool.Tid, run func(cur *Current)) cpucontext.Entry {
	return func(uintptr) {
		cur := &Current{tid: tid, rt: rt}
		code := runGuarded(cur, run)
		rt.pool.Exit(tid, code)
		cur.processor().Finish()
	}
}

// runGuarded invokes run, converting a panic into exit code 1 the way
// a trampoline abort would on real hardware; it never re-panics, since
// there is nothing above this frame to catch it.
func runGuarded(cur *Current, run func(cur *Current)) (code int) {
	defer func() {
		if r := recover(); r != nil {
			code = 1
		}
	}()
	run(cur)
	return 0
}
