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

package threadpool_test

import (
	"testing"

	"github.com/rcore-os/rcore-thread/pkg/cpucontext"
	"github.com/rcore-os/rcore-thread/pkg/scheduler"
	"github.com/rcore-os/rcore-thread/pkg/threadpool"
)

func noopEntry(uintptr) {}

func newPool(t *testing.T, maxThreads int) *threadpool.ThreadPool {
	t.Helper()
	return threadpool.New(scheduler.NewStrideScheduler(5), maxThreads, nil)
}

func TestSpawnRunStopReadyRoundTrip(t *testing.T) {
	p := newPool(t, 4)
	tid := p.Spawn(noopEntry, 0)

	gotTid, ctx, ok := p.Run(0)
	if !ok || gotTid != tid || ctx == nil {
		t.Fatalf("Run() = (%d, ctx, %v), want (%d, non-nil, true)", gotTid, ok, tid)
	}
	st, ok := p.Status(tid)
	if !ok || st.Kind != threadpool.StatusRunning || st.CPU != 0 {
		t.Fatalf("Status() = (%v, %v), want Running(cpu=0)", st, ok)
	}

	p.Stop(tid, ctx)
	st, ok = p.Status(tid)
	if !ok || st.Kind != threadpool.StatusReady {
		t.Fatalf("Status() after Stop = (%v, %v), want Ready", st, ok)
	}
	if _, _, ok := p.Run(0); !ok {
		t.Fatalf("Run() after Stop did not re-offer the ready thread")
	}
}

func TestExitReleasesSlotOnlyWhenDetached(t *testing.T) {
	p := newPool(t, 4)
	tid := p.Spawn(noopEntry, 0)
	_, ctx, _ := p.Run(0)

	p.Exit(tid, 7)
	st, ok := p.Status(tid)
	if !ok || st.Kind != threadpool.StatusRunning {
		t.Fatalf("Status() immediately after Exit while Running = (%v, %v), want still Running (deferred)", st, ok)
	}

	p.Stop(tid, ctx)
	st, ok = p.Status(tid)
	if !ok || st.Kind != threadpool.StatusExited || st.Code != 7 {
		t.Fatalf("Status() after Stop following Exit = (%v, %v), want Exited(7)", st, ok)
	}

	if _, ok := p.TryRemove(tid + 1); ok {
		t.Fatalf("TryRemove() on a never-spawned tid returned ok=true")
	}
	code, ok := p.TryRemove(tid)
	if !ok || code != 7 {
		t.Fatalf("TryRemove() = (%d, %v), want (7, true)", code, ok)
	}
	if _, ok := p.Status(tid); ok {
		t.Fatalf("Status() found a thread after TryRemove freed its slot")
	}
}

func TestDetachFreesSlotImmediatelyOnExit(t *testing.T) {
	p := newPool(t, 4)
	tid := p.Spawn(noopEntry, 0)
	p.Detach(tid)
	_, ctx, _ := p.Run(0)

	p.Exit(tid, 0)
	p.Stop(tid, ctx)

	if _, ok := p.Status(tid); ok {
		t.Fatalf("Status() found a detached thread's slot still occupied after exit")
	}
	// The slot must be reusable immediately.
	tid2 := p.Spawn(noopEntry, 0)
	if tid2 != tid {
		t.Fatalf("Spawn() after detach+exit reused tid %d, want the freed slot %d", tid2, tid)
	}
}

func TestSleepThenWakeupReturnsToReady(t *testing.T) {
	p := newPool(t, 4)
	tid := p.Spawn(noopEntry, 0)
	_, ctx, _ := p.Run(0)

	p.Sleep(tid, 0) // sleep forever, deferred until Stop
	p.Stop(tid, ctx)

	st, ok := p.Status(tid)
	if !ok || st.Kind != threadpool.StatusSleeping {
		t.Fatalf("Status() after Sleep+Stop = (%v, %v), want Sleeping", st, ok)
	}

	p.Wakeup(tid)
	st, ok = p.Status(tid)
	if !ok || st.Kind != threadpool.StatusReady {
		t.Fatalf("Status() after Wakeup = (%v, %v), want Ready", st, ok)
	}
}

func TestWakeupOnNonSleepingThreadIsNoop(t *testing.T) {
	p := newPool(t, 4)
	tid := p.Spawn(noopEntry, 0)
	p.Wakeup(tid) // thread is Ready, not Sleeping; must be a no-op
	st, ok := p.Status(tid)
	if !ok || st.Kind != threadpool.StatusReady {
		t.Fatalf("Status() after a stray Wakeup = (%v, %v), want unchanged Ready", st, ok)
	}
}

func TestTimedSleepWakesOnTick(t *testing.T) {
	p := newPool(t, 4)
	tid := p.Spawn(noopEntry, 0)
	_, ctx, _ := p.Run(0)

	p.Sleep(tid, 10)
	p.Stop(tid, ctx)

	for i := 0; i < 9; i++ {
		p.Tick(0, 0, false)
	}
	if st, _ := p.Status(tid); st.Kind != threadpool.StatusSleeping {
		t.Fatalf("Status() at tick %d = %v, want still Sleeping", 9, st)
	}

	p.Tick(0, 0, false) // tick 10: due
	st, ok := p.Status(tid)
	if !ok || st.Kind != threadpool.StatusReady {
		t.Fatalf("Status() after the 10th tick = (%v, %v), want Ready", st, ok)
	}
}

func TestWaitBlocksUntilTargetExits(t *testing.T) {
	p := newPool(t, 4)
	waiter := p.Spawn(noopEntry, 0)
	target := p.Spawn(noopEntry, 0)

	_, wctx, _ := p.Run(0)
	if _, _, ok := p.Run(0); !ok {
		t.Fatalf("Run() for target thread returned ok=false")
	}

	p.Wait(waiter, target)
	p.Stop(waiter, wctx)
	if st, _ := p.Status(waiter); st.Kind != threadpool.StatusSleeping {
		t.Fatalf("Status(waiter) after Wait+Stop = %v, want Sleeping", st)
	}

	_, tctx, _ := p.Run(0)
	p.Exit(target, 3)
	p.Stop(target, tctx)

	st, ok := p.Status(waiter)
	if !ok || st.Kind != threadpool.StatusReady {
		t.Fatalf("Status(waiter) after target exits = (%v, %v), want Ready (woken)", st, ok)
	}
	code, ok := p.TryRemove(target)
	if !ok || code != 3 {
		t.Fatalf("TryRemove(target) = (%d, %v), want (3, true)", code, ok)
	}
}

func TestSpawnPanicsWhenTableExhausted(t *testing.T) {
	p := newPool(t, 1)
	p.Spawn(noopEntry, 0)
	defer func() {
		if recover() == nil {
			t.Fatalf("Spawn() on an exhausted table did not panic")
		}
	}()
	p.Spawn(noopEntry, 0)
}

// TestCancelSleepingRevertsDeferredSleep exercises the unpark-before-park
// race CancelSleeping exists to close: tid calls Sleep while still
// Running, so the transition to Sleeping is only pending in
// status_after_stop. CancelSleeping must revert that pending transition
// back to Ready before Stop ever commits it, matching
// stdthread.Runtime.Unpark's use of it ahead of Wakeup.
func TestCancelSleepingRevertsDeferredSleep(t *testing.T) {
	p := newPool(t, 4)
	tid := p.Spawn(noopEntry, 0)
	_, ctx, _ := p.Run(0)

	p.Sleep(tid, 0) // deferred: tid is still Running
	p.CancelSleeping(tid)
	p.Stop(tid, ctx)

	st, ok := p.Status(tid)
	if !ok || st.Kind != threadpool.StatusReady {
		t.Fatalf("Status() after Sleep+CancelSleeping+Stop = (%v, %v), want Ready", st, ok)
	}
}

// TestCancelSleepingOnCommittedSleepIsNoop checks that CancelSleeping only
// reaches into the pending status_after_stop slot; it must never disturb
// an already-committed Sleeping status, which Wakeup alone governs.
func TestCancelSleepingOnCommittedSleepIsNoop(t *testing.T) {
	p := newPool(t, 4)
	tid := p.Spawn(noopEntry, 0)
	_, ctx, _ := p.Run(0)

	p.Sleep(tid, 0)
	p.Stop(tid, ctx) // commits the Sleeping status

	p.CancelSleeping(tid) // nothing pending left to cancel
	st, ok := p.Status(tid)
	if !ok || st.Kind != threadpool.StatusSleeping {
		t.Fatalf("Status() after a stray CancelSleeping on a committed sleep = (%v, %v), want unchanged Sleeping", st, ok)
	}
}

// TestThreadPoolSetPriority checks that ThreadPool.SetPriority reaches
// the underlying scheduler, not just scheduler.SetPriority directly: a
// thread promoted well above the default priority must be picked by
// Run/Stop cycling noticeably more often than one left at the default.
func TestThreadPoolSetPriority(t *testing.T) {
	p := threadpool.New(scheduler.NewStrideScheduler(1), 4, nil)
	low := p.Spawn(noopEntry, 0)
	high := p.Spawn(noopEntry, 0)
	p.SetPriority(high, 9)

	const rounds = 100
	counts := map[threadpool.Tid]int{}
	for i := 0; i < rounds; i++ {
		tid, ctx, ok := p.Run(0)
		if !ok {
			t.Fatalf("Run() unexpectedly empty at round %d", i)
		}
		counts[tid]++
		p.Stop(tid, ctx)
	}
	if counts[high] <= counts[low] {
		t.Fatalf("counts = {low:%d, high:%d}, want the SetPriority-boosted thread picked strictly more often", counts[low], counts[high])
	}
	if counts[low]+counts[high] != rounds {
		t.Fatalf("counts sum to %d, want %d", counts[low]+counts[high], rounds)
	}
}

// TestSnapshotReflectsLiveThreadsOnly checks that Snapshot reports
// exactly the slots still occupied, in ascending Tid order, and that
// the returned copies don't alias live state (mutating the pool after
// Snapshot must not change the already-taken snapshot).
func TestSnapshotReflectsLiveThreadsOnly(t *testing.T) {
	p := newPool(t, 4)
	a := p.Spawn(noopEntry, 0)
	b := p.Spawn(noopEntry, 0)
	p.Detach(b)

	snap := p.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() len = %d, want 2", len(snap))
	}
	if snap[0].Tid != a || snap[1].Tid != b {
		t.Fatalf("Snapshot() tids = [%d %d], want [%d %d]", snap[0].Tid, snap[1].Tid, a, b)
	}
	if snap[0].Detached || !snap[1].Detached {
		t.Fatalf("Snapshot() detached flags = [%v %v], want [false true]", snap[0].Detached, snap[1].Detached)
	}

	_, ctx, _ := p.Run(0) // a is popped first (lower seq); change its live status
	p.Exit(a, 0)
	p.Stop(a, ctx)
	if snap[0].Status.Kind != threadpool.StatusReady {
		t.Fatalf("earlier Snapshot() mutated after later pool changes: status = %v, want unchanged Ready", snap[0].Status)
	}
}

func TestSpawnWithTidSeesItsOwnTid(t *testing.T) {
	p := newPool(t, 4)
	loop := cpucontext.Uninit()
	var seen threadpool.Tid = -1
	var ownCtx cpucontext.Context // set below, before the entry ever runs

	tid := p.SpawnWithTid(func(tid threadpool.Tid) cpucontext.Entry {
		return func(uintptr) {
			seen = tid
			cpucontext.Finish(ownCtx, loop)
		}
	})
	gotTid, ctx, _ := p.Run(0)
	if gotTid != tid {
		t.Fatalf("Run() tid = %d, want %d", gotTid, tid)
	}
	ownCtx = ctx
	loop.SwitchTo(ctx)
	if seen != tid {
		t.Fatalf("entry observed tid %d, want %d", seen, tid)
	}
}
