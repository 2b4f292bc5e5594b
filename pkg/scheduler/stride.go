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

package scheduler

import (
	"container/heap"
	"sync"
)

// BigStride is the numerator used to derive a Tid's stride from its
// priority: stride = BigStride / (priority + 1). It is large enough
// that strides stay well-ordered across the full [0,255] priority
// range without pass overflowing for any realistic run length.
const BigStride = 1 << 32

// DefaultQuantum is the time slice (in ticks) a thread receives each
// time it becomes current, matching the quantum original_source's
// worked example passes to RRScheduler::new(5).
const DefaultQuantum = 5

// StrideScheduler implements weighted-fair scheduling via the stride
// algorithm described in spec §4.2: each runnable Tid has a stride
// inversely proportional to (priority+1) and a monotonically
// increasing pass; Pop always selects the smallest pass and advances
// it by that Tid's stride, so low-stride (high-priority) threads
// accumulate pass more slowly and get picked more often.
type StrideScheduler struct {
	mu      sync.Mutex
	quantum int
	seq     uint64
	states  map[Tid]*strideState
	pq      passHeap
}

type strideState struct {
	priority  uint8
	stride    uint64
	pass      uint64
	ticksLeft int
	item      *passItem // non-nil while queued
}

// NewStrideScheduler returns a StrideScheduler whose threads receive a
// quantum-tick time slice each time they become current.
func NewStrideScheduler(quantum int) *StrideScheduler {
	if quantum <= 0 {
		quantum = DefaultQuantum
	}
	return &StrideScheduler{
		quantum: quantum,
		states:  make(map[Tid]*strideState),
	}
}

func (s *StrideScheduler) stateFor(tid Tid) *strideState {
	st, ok := s.states[tid]
	if !ok {
		st = &strideState{stride: BigStride}
		s.states[tid] = st
	}
	return st
}

// Push implements Scheduler.
func (s *StrideScheduler) Push(tid Tid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateFor(tid)
	s.seq++
	item := &passItem{tid: tid, pass: st.pass, seq: s.seq}
	st.item = item
	heap.Push(&s.pq, item)
}

// Pop implements Scheduler.
func (s *StrideScheduler) Pop(cpu int) (Tid, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pq.Len() == 0 {
		return 0, false
	}
	item := heap.Pop(&s.pq).(*passItem)
	st := s.states[item.tid]
	st.item = nil
	st.pass += st.stride
	st.ticksLeft = s.quantum
	return item.tid, true
}

// Tick implements Scheduler.
func (s *StrideScheduler) Tick(tid Tid) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[tid]
	if !ok {
		return false
	}
	st.ticksLeft--
	return st.ticksLeft <= 0
}

// SetPriority implements Scheduler.
func (s *StrideScheduler) SetPriority(tid Tid, priority uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateFor(tid)
	st.priority = priority
	st.stride = BigStride / (uint64(priority) + 1)
}

// Remove implements Scheduler.
func (s *StrideScheduler) Remove(tid Tid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[tid]
	if !ok || st.item == nil {
		return
	}
	heap.Remove(&s.pq, st.item.index)
	st.item = nil
}

// passItem is one entry in the runnable-queue heap.
type passItem struct {
	tid   Tid
	pass  uint64
	seq   uint64 // insertion order, breaks ties among equal pass
	index int
}

// passHeap is a container/heap.Interface ordering by (pass, seq).
type passHeap []*passItem

func (h passHeap) Len() int { return len(h) }

func (h passHeap) Less(i, j int) bool {
	if h[i].pass != h[j].pass {
		return h[i].pass < h[j].pass
	}
	return h[i].seq < h[j].seq
}

func (h passHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *passHeap) Push(x any) {
	item := x.(*passItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *passHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}
