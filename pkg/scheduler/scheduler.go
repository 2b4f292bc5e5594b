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

// Package scheduler defines the polymorphic runnable-queue policy
// interface from spec §4.2 and ships one concrete policy, stride round
// robin. Additional policies (work-conserving FIFO, CFS-like) plug in
// against the same interface without touching ThreadPool or Processor.
package scheduler

// Tid is a dense, non-negative thread identifier; see spec §3. It is
// redeclared here (rather than imported from pkg/threadpool) so this
// package has no dependency on the thread-lifecycle state machine —
// the Scheduler only ever owns Tids, never thread state, per spec §3's
// ownership rule.
type Tid int

// Scheduler is the runnable-queue policy interface. Implementations
// must satisfy spec invariant I1: a Tid is in the runnable set iff the
// owning ThreadPool considers it Ready; the Scheduler itself has no
// way to check that, so it trusts its caller to call Push exactly once
// per Ready transition and Pop/Remove to consume it.
type Scheduler interface {
	// Push marks tid runnable. The caller (ThreadPool) guarantees it
	// never pushes a Tid that is already queued.
	Push(tid Tid)

	// Pop removes and returns the next Tid to run on cpu, or false if
	// the queue is empty.
	Pop(cpu int) (Tid, bool)

	// Tick decrements tid's time-slice counter and reports whether it
	// has just expired (signaling the caller to force a yield).
	Tick(tid Tid) bool

	// SetPriority adjusts tid's scheduling weight. priority is taken
	// modulo nothing — values are expected in [0,255], higher meaning
	// more frequently scheduled.
	SetPriority(tid Tid, priority uint8)

	// Remove drops a still-queued tid that is being forced into a
	// non-ready state out of band (e.g. by an external wakeup racing
	// with a sleep). It is a no-op if tid is not queued.
	Remove(tid Tid)
}
