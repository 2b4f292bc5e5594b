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

// Package threadpool implements the authoritative thread lifecycle
// state machine described in spec §4.3: a fixed-capacity table of
// lockable thread slots, one scheduler, and one timer, tying together
// readiness, sleep, exit, join, and detach semantics.
//
// All public mutators here acquire only the slot(s) they touch; the
// one two-slot operation, Wait, locks the waiter's own status through
// setStatus (which only ever holds the waiter's slot) before locking
// the target's slot, so there is never a need to hold two slot locks
// at once — see the "Locking discipline" note in spec §5.
package threadpool

import (
	"fmt"
	"sync"

	"github.com/mohae/deepcopy"
	"github.com/sirupsen/logrus"

	"github.com/rcore-os/rcore-thread/pkg/cpucontext"
	"github.com/rcore-os/rcore-thread/pkg/scheduler"
	"github.com/rcore-os/rcore-thread/pkg/timer"
)

// thread is the per-slot record; see spec §3.
type thread struct {
	status          Status
	statusAfterStop Status
	waiter          *Tid
	detached        bool
	context         cpucontext.Context // nil exactly while Running (invariant I2)
}

type slotLock struct {
	mu sync.Mutex
	t  *thread
}

// wakeupEvent is the only timer payload this core uses (spec §3).
type wakeupEvent struct {
	tid Tid
}

// ThreadPool is the fixed-capacity thread table plus the scheduler and
// timer it drives. It is safe for concurrent use by multiple
// Processors.
type ThreadPool struct {
	slots     []slotLock
	scheduler scheduler.Scheduler
	timer     *timer.Timer[wakeupEvent]
	log       logrus.FieldLogger
}

// New returns a ThreadPool with room for maxThreads live threads,
// driven by sched. A nil log falls back to logrus's standard logger.
func New(sched scheduler.Scheduler, maxThreads int, log logrus.FieldLogger) *ThreadPool {
	if maxThreads <= 0 {
		panic("threadpool: maxThreads must be > 0")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ThreadPool{
		slots:     make([]slotLock, maxThreads),
		scheduler: sched,
		timer:     timer.New[wakeupEvent](),
		log:       log,
	}
}

func (p *ThreadPool) slot(tid Tid) *slotLock {
	if tid < 0 || int(tid) >= len(p.slots) {
		panic(fmt.Sprintf("threadpool: tid %d out of range", tid))
	}
	return &p.slots[tid]
}

// Spawn allocates the lowest-index free slot, builds a fresh Context
// whose first resume runs entry(arg0), marks it Ready, and pushes it
// to the scheduler. It panics if the table is full (spec §7: capacity
// exhaustion is fatal).
func (p *ThreadPool) Spawn(entry cpucontext.Entry, arg0 uintptr) Tid {
	return p.spawn(func(Tid) (cpucontext.Entry, uintptr) {
		return entry, arg0
	})
}

// SpawnWithTid is Spawn's late-binding counterpart: build is handed the
// allocated Tid before the Context is constructed, so the returned
// Entry can close over its own identity. Real hardware can recover
// "which thread am I" from a per-core register inside the trampoline
// itself; a hosted goroutine has no such register, so pkg/stdthread
// uses this instead to capture the Tid at spawn time.
func (p *ThreadPool) SpawnWithTid(build func(tid Tid) cpucontext.Entry) Tid {
	return p.spawn(func(tid Tid) (cpucontext.Entry, uintptr) {
		return build(tid), 0
	})
}

func (p *ThreadPool) spawn(build func(tid Tid) (cpucontext.Entry, uintptr)) Tid {
	for i := range p.slots {
		s := &p.slots[i]
		s.mu.Lock()
		if s.t != nil {
			s.mu.Unlock()
			continue
		}
		tid := Tid(i)
		entry, arg0 := build(tid)
		ctx := cpucontext.New(entry, arg0)
		s.t = &thread{
			status:          Ready(),
			statusAfterStop: Ready(),
		}
		s.t.context = ctx
		s.mu.Unlock()

		p.scheduler.Push(scheduler.Tid(tid))
		p.log.WithField("tid", tid).Trace("threadpool: spawn")
		return tid
	}
	panic("threadpool: thread table exhausted")
}

// Run is called by a Processor to obtain the next thread to execute on
// cpu. It marks the thread Running(cpu) and moves its Context out of
// the slot (invariant I2).
func (p *ThreadPool) Run(cpu int) (Tid, cpucontext.Context, bool) {
	sTid, ok := p.scheduler.Pop(cpu)
	if !ok {
		return 0, nil, false
	}
	tid := Tid(sTid)
	s := p.slot(tid)
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.t
	if t == nil {
		panic(fmt.Sprintf("threadpool: run: thread %d does not exist", tid))
	}
	t.status = Running(cpu)
	ctx := t.context
	t.context = nil
	p.log.WithFields(logrus.Fields{"tid": tid, "cpu": cpu}).Trace("threadpool: run")
	return tid, ctx, true
}

// Stop is called by a Processor when tid leaves the CPU. It writes ctx
// back into the slot, commits the deferred status_after_stop
// transition, and applies the consequences of landing on Ready,
// Exited, or Sleeping.
func (p *ThreadPool) Stop(tid Tid, ctx cpucontext.Context) {
	s := p.slot(tid)
	s.mu.Lock()
	t := s.t
	if t == nil {
		s.mu.Unlock()
		panic(fmt.Sprintf("threadpool: stop: thread %d does not exist", tid))
	}
	t.context = ctx
	t.status = t.statusAfterStop
	t.statusAfterStop = Ready()
	p.log.WithFields(logrus.Fields{"tid": tid, "to": t.status}).Trace("threadpool: stop")

	switch t.status.Kind {
	case StatusReady:
		s.mu.Unlock()
		p.scheduler.Push(scheduler.Tid(tid))
	case StatusExited:
		p.exitHandler(tid, s, t)
	default: // Sleeping: a prior sleep() already recorded a timer entry if finite.
		s.mu.Unlock()
	}
}

// exitHandler runs with s.mu held and t == s.t, t.status.Kind ==
// StatusExited. It wakes t's waiter (if any) strictly before
// releasing the slot, then frees the slot immediately if t is
// detached.
func (p *ThreadPool) exitHandler(tid Tid, s *slotLock, t *thread) {
	waiter := t.waiter
	t.context = nil
	detached := t.detached
	s.mu.Unlock()

	if waiter != nil {
		p.Wakeup(*waiter)
	}
	if detached {
		s.mu.Lock()
		s.t = nil
		s.mu.Unlock()
	}
}

// setStatus is the internal transition engine: spec §4.3's
// "set_status transition table". Missing threads are silently
// ignored, matching the callers that route through setStatus
// (sleep/exit/wait's self-transition); callers with fatal missing-
// thread semantics (Wait's target, Detach, Run, Stop) check for nil
// themselves instead of going through setStatus.
func (p *ThreadPool) setStatus(tid Tid, next Status) {
	s := p.slot(tid)
	s.mu.Lock()
	t := s.t
	if t == nil {
		s.mu.Unlock()
		return
	}
	from := t.status
	p.log.WithFields(logrus.Fields{"tid": tid, "from": from, "to": next}).Trace("threadpool: set_status")

	switch from.Kind {
	case StatusReady:
		if next.Kind == StatusReady {
			s.mu.Unlock()
			return
		}
		p.scheduler.Remove(scheduler.Tid(tid))
	case StatusExited:
		s.mu.Unlock()
		panic(fmt.Sprintf("threadpool: set_status: thread %d has already exited", tid))
	case StatusSleeping:
		if next.Kind == StatusExited {
			p.timer.Stop(wakeupEvent{tid: tid})
		}
	case StatusRunning:
		// handled below: deferred rather than applied immediately.
	}

	if from.Kind == StatusRunning {
		t.statusAfterStop = next
		s.mu.Unlock()
		return
	}

	t.status = next
	switch next.Kind {
	case StatusReady:
		s.mu.Unlock()
		p.scheduler.Push(scheduler.Tid(tid))
	case StatusExited:
		p.exitHandler(tid, s, t)
	default:
		s.mu.Unlock()
	}
}

// Wait records that tid is waiting for target's exit: tid goes to
// sleep, and target.waiter is set so target's eventual exit handler
// wakes tid. It is the caller's responsibility to have already
// observed that target has not exited (see DESIGN.md, Open Question
// a) — calling Wait on an already-exited target is a documented
// precondition violation and panics, as does calling it on a target
// that already has a waiter.
func (p *ThreadPool) Wait(tid Tid, target Tid) {
	p.setStatus(tid, Sleeping())

	ts := p.slot(target)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t := ts.t
	if t == nil {
		panic(fmt.Sprintf("threadpool: wait: target thread %d does not exist", target))
	}
	if t.status.Kind == StatusExited {
		panic(fmt.Sprintf("threadpool: wait: target thread %d already exited; caller must check before waiting", target))
	}
	if t.waiter != nil {
		panic(fmt.Sprintf("threadpool: wait: target thread %d already has a waiter", target))
	}
	w := tid
	t.waiter = &w
}

// Sleep parks tid. A zero duration sleeps forever (no timer entry); a
// positive duration schedules a Wakeup(tid) timer event after that
// many ticks.
func (p *ThreadPool) Sleep(tid Tid, duration uint64) {
	p.setStatus(tid, Sleeping())
	if duration > 0 {
		p.timer.Start(duration, wakeupEvent{tid: tid})
	}
}

// Wakeup moves tid from Sleeping to Ready. It is a no-op if tid is
// missing or not currently Sleeping, which is what makes redundant or
// stale wakeups idempotent (spec §4.3).
func (p *ThreadPool) Wakeup(tid Tid) {
	s := p.slot(tid)
	s.mu.Lock()
	t := s.t
	if t == nil || t.status.Kind != StatusSleeping {
		s.mu.Unlock()
		return
	}
	p.log.WithField("tid", tid).Trace("threadpool: wakeup")
	t.status = Ready()
	s.mu.Unlock()
	p.scheduler.Push(scheduler.Tid(tid))
}

// CancelSleeping clears a deferred "sleep after stop" that was queued
// while tid was still Running, reverting it back to Ready. It does
// not purge any pending timer entry; see DESIGN.md, Open Question b.
func (p *ThreadPool) CancelSleeping(tid Tid) {
	s := p.slot(tid)
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.t
	if t == nil {
		return
	}
	if t.statusAfterStop.Kind == StatusSleeping {
		t.statusAfterStop = Ready()
	}
}

// Exit transitions tid to Exited(code). If tid is currently Running,
// the transition (and its exit handler) are deferred until Stop.
func (p *ThreadPool) Exit(tid Tid, code int) {
	p.setStatus(tid, Exited(code))
}

// Detach marks tid so its slot is released immediately on exit rather
// than retained for a join. Detaching an already-detached thread is a
// fatal logic error.
func (p *ThreadPool) Detach(tid Tid) {
	s := p.slot(tid)
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.t
	if t == nil {
		panic(fmt.Sprintf("threadpool: detach: thread %d does not exist", tid))
	}
	if t.detached {
		panic(fmt.Sprintf("threadpool: detach: thread %d already detached", tid))
	}
	t.detached = true
}

// TryRemove frees tid's slot and returns its exit code iff tid has
// exited; otherwise it returns (0, false) and leaves the slot alone.
func (p *ThreadPool) TryRemove(tid Tid) (int, bool) {
	s := p.slot(tid)
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.t
	if t == nil || t.status.Kind != StatusExited {
		return 0, false
	}
	code := t.status.Code
	s.t = nil
	return code, true
}

// Tick is called once per timer interrupt. On cpu 0 it additionally
// drives the timer: advance the clock, then drain and apply every due
// Wakeup event. If tidOK, it delegates time-slice accounting to the
// scheduler for tid and reports whether tid should yield.
func (p *ThreadPool) Tick(cpu int, tid Tid, tidOK bool) bool {
	if cpu == 0 {
		p.timer.Tick()
		for {
			ev, ok := p.timer.Pop()
			if !ok {
				break
			}
			p.setStatus(ev.tid, Ready())
		}
	}
	if !tidOK {
		return false
	}
	return p.scheduler.Tick(scheduler.Tid(tid))
}

// Status returns tid's current status, or (Status{}, false) if tid has
// no live thread. It is the narrow read used by pkg/stdthread to find
// which CPU is currently driving a thread; see Snapshot for a
// whole-pool view.
func (p *ThreadPool) Status(tid Tid) (Status, bool) {
	if tid < 0 || int(tid) >= len(p.slots) {
		return Status{}, false
	}
	s := &p.slots[tid]
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.t == nil {
		return Status{}, false
	}
	return s.t.status, true
}

// SetPriority delegates to the scheduler.
func (p *ThreadPool) SetPriority(tid Tid, priority uint8) {
	p.scheduler.SetPriority(scheduler.Tid(tid), priority)
}

// ThreadSnapshot is a point-in-time, independently-owned copy of one
// thread's observable metadata, for debugging and tests. It never
// aliases live ThreadPool state (see DESIGN.md, pkg/threadpool entry).
type ThreadSnapshot struct {
	Tid      Tid
	Status   Status
	Detached bool
	Waiter   *Tid
}

// Snapshot returns a deep copy of every live thread's metadata. The
// order is by ascending Tid.
func (p *ThreadPool) Snapshot() []ThreadSnapshot {
	var out []ThreadSnapshot
	for i := range p.slots {
		s := &p.slots[i]
		s.mu.Lock()
		t := s.t
		if t == nil {
			s.mu.Unlock()
			continue
		}
		snap := ThreadSnapshot{
			Tid:      Tid(i),
			Status:   t.status,
			Detached: t.detached,
			Waiter:   t.waiter,
		}
		s.mu.Unlock()
		out = append(out, deepcopy.Copy(snap).(ThreadSnapshot))
	}
	return out
}
