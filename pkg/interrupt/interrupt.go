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

// Package interrupt provides the opaque InterruptGate primitive from
// spec §6: enabling/disabling the interrupt flag and idle-waiting for
// the next one. Like pkg/cpucontext, the real thing is architecture
// assembly (cli/sti/hlt and their RISC-V/AArch64 equivalents); this
// package ships the one hosted backend this core needs for testing
// and for running outside a kernel image.
package interrupt

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Gate is a per-CPU interrupt flag plus an idle wait. All methods
// require the caller to already have CPU affinity (see spec §4.4): a
// Gate is not itself safe to share across goroutines representing
// different CPUs unless the caller establishes that only one of them
// runs at a time.
type Gate struct {
	mu      sync.Mutex
	enabled bool
	// limiter bounds how often EnableAndWaitForIRQ returns when no real
	// IRQ source exists to wake it, so an idle hosted CPU polls rather
	// than busy-spins. A real `hlt` needs no such limiter; it blocks
	// until hardware delivers an interrupt.
	limiter *rate.Limiter
}

// DefaultIdlePollHz bounds how often an idle hosted CPU re-checks for
// runnable work while "waiting for an IRQ".
const DefaultIdlePollHz = 1000

// New returns a Gate with interrupts enabled and idle polling bounded
// to idlePollHz wakeups per second.
func New(idlePollHz float64) *Gate {
	if idlePollHz <= 0 {
		idlePollHz = DefaultIdlePollHz
	}
	return &Gate{
		enabled: true,
		limiter: rate.NewLimiter(rate.Limit(idlePollHz), 1),
	}
}

// DisableAndStore disables interrupts and returns the prior enabled
// state, to be passed back to Restore.
func (g *Gate) DisableAndStore() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	prev := g.enabled
	g.enabled = false
	return prev
}

// Restore restores a previously saved interrupt-enabled state.
func (g *Gate) Restore(flags bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = flags
}

// EnableAndWaitForIRQ enables interrupts and blocks until the next one
// arrives (in the hosted backend: until the idle poll limiter admits
// another wakeup). Callers are expected to immediately disable
// interrupts again on return, as the Processor run loop does.
func (g *Gate) EnableAndWaitForIRQ() {
	g.mu.Lock()
	g.enabled = true
	g.mu.Unlock()
	_ = g.limiter.Wait(context.Background())
}

// Enabled reports whether interrupts are currently enabled on this
// Gate. Exposed for tests and introspection only.
func (g *Gate) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// NoInterrupt runs f with interrupts disabled, restoring the prior
// state on every exit path (including panics).
func NoInterrupt(g *Gate, f func()) {
	flags := g.DisableAndStore()
	defer g.Restore(flags)
	f()
}
