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

package cpucontext

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// stackSize matches spec §3: each thread owns a fixed-size kernel
// stack, 16 KiB, aligned to its own size.
const stackSize = 16 * 1024

// hosted is the one Context implementation this core ships: a Go
// goroutine standing in for "a stack plus saved registers". A real
// ContextSwitch swaps a stack pointer in place; Go gives user code no
// portable way to do that to its own goroutines, so instead each
// logical kernel thread gets a dedicated goroutine parked on a channel
// rendezvous, and "switching to" it means handing it a baton and
// blocking until the baton comes back. This preserves the contract
// (SwitchTo blocks the caller until control returns) without needing
// inline assembly.
//
// The mmap'd region is never touched by Go code — it exists purely so
// the hosted backend reproduces the real allocation shape (fixed size,
// self-aligned, guarded) that an arch-specific backend would use for
// its actual stack.
type hosted struct {
	baton chan struct{}
	stack []byte // backing allocation, for shape only; unused by the goroutine itself
	done  bool   // set by finish just before entry(arg0) returns for the last time
}

func newLoopContext() *hosted {
	return &hosted{baton: make(chan struct{})}
}

func newHosted(entry Entry, arg0 uintptr) *hosted {
	stack, err := allocStack()
	if err != nil {
		// Mirrors the original crate's Stack::new, which panics (via the
		// allocator's own abort-on-OOM) rather than return an error: a
		// kernel that cannot allocate a thread stack has no sensible
		// recovery path.
		panic(fmt.Sprintf("cpucontext: allocating stack: %v", err))
	}
	h := &hosted{
		baton: make(chan struct{}),
		stack: stack,
	}
	started := make(chan struct{})
	go func() {
		close(started)
		<-h.baton // wait for the first switch-in
		entry(arg0)
		// entry returning is only legitimate after a prior call to
		// finish (h.done is then set and this goroutine simply ends);
		// any other return means entry gave back control without ever
		// yielding or exiting, which on real hardware has no stack to
		// return onto, matching the original's `extern "C" fn(usize) -> !`.
		if !h.done {
			panic("cpucontext: Entry returned")
		}
	}()
	<-started // ensure the goroutine is parked on h.baton before we return
	return h
}

// SwitchTo implements Context.
func (h *hosted) SwitchTo(target Context) {
	t := target.(*hosted)
	t.baton <- struct{}{}
	<-h.baton
}

// finish hands control to target without waiting for it to come back.
// It is used only by the thread-handle trampoline's final action after
// a thread has exited: the thread will never be scheduled again, so
// there is no baton to wait for, and blocking on h.baton here would
// leak the backing goroutine forever instead of letting it return.
func (h *hosted) finish(target Context) {
	h.done = true
	t := target.(*hosted)
	t.baton <- struct{}{}
}

// Finish performs a final, non-returning switch to target if ctx
// supports it, falling back to an ordinary SwitchTo otherwise. See
// hosted.finish.
func Finish(ctx Context, target Context) {
	if f, ok := ctx.(interface{ finish(Context) }); ok {
		f.finish(target)
		return
	}
	ctx.SwitchTo(target)
}

func allocStack() ([]byte, error) {
	// Over-allocate by one stackSize so we can hand back a size-aligned
	// slice, then guard the low page against underflow the way a real
	// kernel stack guard page would. The unused slack on either side of
	// the aligned slice is not unmapped; it stays mapped with the rest
	// of the region.
	raw, err := unix.Mmap(-1, 0, 2*stackSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	base := uintptr(0)
	if len(raw) > 0 {
		base = uintptr(unsafe.Pointer(&raw[0]))
	}
	aligned := (base + stackSize - 1) &^ (stackSize - 1)
	offset := int(aligned - base)
	stack := raw[offset : offset+stackSize]
	if len(stack) >= unix.Getpagesize() {
		_ = unix.Mprotect(stack[:unix.Getpagesize()], unix.PROT_NONE)
	}
	return stack, nil
}
