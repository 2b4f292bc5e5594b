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

// Package processor implements the per-CPU executor loop from spec
// §4.4: pick a thread, switch into it, switch back out, hand it to the
// ThreadPool to finalize, or idle-wait when there is nothing runnable.
package processor

import (
	"fmt"
	"sync"

	"github.com/rcore-os/rcore-thread/pkg/cpucontext"
	"github.com/rcore-os/rcore-thread/pkg/interrupt"
	"github.com/rcore-os/rcore-thread/pkg/threadpool"
)

// running is the (Tid, Context) pair a Processor currently holds,
// mirroring ProcessorInner.thread in spec §3.
type running struct {
	tid threadpool.Tid
	ctx cpucontext.Context
}

// Processor is a per-CPU executor. It must be Init'd before Run, Tick,
// or any accessor is used. All methods require the caller to either
// have interrupts disabled or otherwise guarantee the calling
// goroutine will not migrate to another logical CPU mid-call — this
// package does no affinity pinning of its own (spec §4.4).
type Processor struct {
	id          int
	threadMu    sync.Mutex // guards thread; see Tick
	thread      *running
	loopContext cpucontext.Context
	pool        *threadpool.ThreadPool
	gate        *interrupt.Gate
	initialized bool
}

// New returns an uninitialized Processor; call Init before use.
func New() *Processor {
	return &Processor{}
}

// Init sets up a Processor for CPU id, backed by pool and gate. It
// must be called exactly once per Processor before Run.
func (p *Processor) Init(id int, pool *threadpool.ThreadPool, gate *interrupt.Gate) {
	p.id = id
	p.loopContext = cpucontext.Uninit()
	p.pool = pool
	p.gate = gate
	p.initialized = true
}

func (p *Processor) requireInit() {
	if !p.initialized {
		panic("processor: used before Init")
	}
}

// Run drives threads on this CPU forever: pick a runnable thread from
// the pool, switch into it, and once it switches back out, report its
// new Context back to the pool for finalization. When nothing is
// runnable it idle-waits for the next timer interrupt.
func (p *Processor) Run() {
	p.requireInit()
	for {
		tid, ctx, ok := p.pool.Run(p.id)
		if !ok {
			p.gate.EnableAndWaitForIRQ()
			p.gate.DisableAndStore()
			continue
		}
		p.setThread(&running{tid: tid, ctx: ctx})
		p.loopContext.SwitchTo(ctx)
		// Resumes here once the thread switches back to loopContext,
		// whether via an ordinary yield or the trampoline's final
		// handoff after exit.
		cur := p.clearThread()
		p.pool.Stop(cur.tid, cur.ctx)
	}
}

// YieldNow switches from the calling thread back to this CPU's
// scheduling loop. It must be called from code running as the current
// thread on this Processor; the scheduler re-picks the thread later,
// at which point this call returns.
func (p *Processor) YieldNow() {
	p.requireInit()
	cur := p.currentThread()
	if cur == nil {
		panic("processor: YieldNow called while CPU is idle")
	}
	cur.ctx.SwitchTo(p.loopContext)
}

// Finish is YieldNow's one-way counterpart, used only by the thread
// handle trampoline's final action after a thread has exited: since an
// exited thread is never scheduled again, there is no need to block
// waiting for a resume that will never come.
func (p *Processor) Finish() {
	p.requireInit()
	cur := p.currentThread()
	if cur == nil {
		panic("processor: Finish called while CPU is idle")
	}
	cpucontext.Finish(cur.ctx, p.loopContext)
}

// Tid returns the currently running thread's Tid. It panics if the CPU
// is idle.
func (p *Processor) Tid() threadpool.Tid {
	p.requireInit()
	cur := p.currentThread()
	if cur == nil {
		panic("processor: Tid called while CPU is idle")
	}
	return cur.tid
}

// TryTid returns the currently running thread's Tid, or (0, false) if
// the CPU is idle.
func (p *Processor) TryTid() (threadpool.Tid, bool) {
	p.requireInit()
	cur := p.currentThread()
	if cur == nil {
		return 0, false
	}
	return cur.tid, true
}

// Context returns the currently running thread's Context. It panics if
// the CPU is idle.
func (p *Processor) Context() cpucontext.Context {
	p.requireInit()
	cur := p.currentThread()
	if cur == nil {
		panic("processor: Context called while CPU is idle")
	}
	return cur.ctx
}

// setThread, clearThread, and currentThread guard p.thread with
// threadMu. Ordinary cooperative access never races (Run's goroutine
// and the thread's own backing goroutine alternate via the baton in
// cpucontext, never executing concurrently); the mutex exists so an
// unrelated goroutine can still safely read who is current (Tid,
// TryTid, Context) for introspection without racing Run. It does NOT
// make it safe to force a yield of the current thread from such a
// goroutine — see Tick.
func (p *Processor) setThread(r *running) {
	p.threadMu.Lock()
	p.thread = r
	p.threadMu.Unlock()
}

func (p *Processor) clearThread() *running {
	p.threadMu.Lock()
	cur := p.thread
	p.thread = nil
	p.threadMu.Unlock()
	return cur
}

func (p *Processor) currentThread() *running {
	p.threadMu.Lock()
	defer p.threadMu.Unlock()
	return p.thread
}

// Pool returns the ThreadPool this Processor draws work from.
func (p *Processor) Pool() *threadpool.ThreadPool {
	p.requireInit()
	return p.pool
}

// ID returns this Processor's CPU id.
func (p *Processor) ID() int {
	p.requireInit()
	return p.id
}

// Tick is called by a timer interrupt handler (with interrupts already
// disabled) once per tick. It delegates to the pool and, if the pool
// reports the current thread's time slice has expired, forces a yield.
//
// The forced yield assumes the call happens on the same execution
// stream as the thread it interrupts, exactly as a real local-timer
// ISR runs on the interrupted thread's own stack. The hosted backend's
// Context is a goroutine parked on a channel baton, so calling Tick
// from any goroutine other than the one this thread is actually
// running on hands that baton to two goroutines at once. Callers that
// cannot guarantee same-stream delivery (e.g. an external scheduler-
// clock goroutine) must drive the timer directly through Pool().Tick
// with tidOK=false instead, which only advances the clock and never
// touches the current thread.
func (p *Processor) Tick() {
	p.requireInit()
	tid, ok := p.TryTid()
	if need := p.pool.Tick(p.id, tid, ok); need {
		p.YieldNow()
	}
}

func (p *Processor) String() string {
	return fmt.Sprintf("processor(cpu=%d)", p.id)
}
