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

package processor

// Table is the global, process-wide array of per-CPU Processors from
// spec §9 ("Global per-CPU state"): lazily initialized, never torn
// down, reachable from a timer ISR for any CPU. The original crate
// exposes this as a `static PROCESSORS: [Processor; MAX_CPU_NUM]` plus
// an externally-supplied `fn cpu_id() -> usize`; here the resolver is
// an injected closure instead of a linker-resolved extern function.
type Table struct {
	procs []*Processor
	cpuID func() int
}

// NewTable allocates n uninitialized Processors. cpuID must return the
// index of the CPU the calling goroutine is pinned to; this package
// has no way to enforce that pinning itself (spec §4.4).
func NewTable(n int, cpuID func() int) *Table {
	procs := make([]*Processor, n)
	for i := range procs {
		procs[i] = New()
	}
	return &Table{procs: procs, cpuID: cpuID}
}

// Len returns the number of CPUs in the table.
func (t *Table) Len() int {
	return len(t.procs)
}

// ByID returns the Processor for a specific CPU id.
func (t *Table) ByID(id int) *Processor {
	return t.procs[id]
}

// Current returns the Processor for the calling goroutine's CPU, as
// reported by the resolver passed to NewTable.
func (t *Table) Current() *Processor {
	return t.procs[t.cpuID()]
}
