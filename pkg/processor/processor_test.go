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

package processor_test

import (
	"testing"
	"time"

	"github.com/rcore-os/rcore-thread/pkg/interrupt"
	"github.com/rcore-os/rcore-thread/pkg/processor"
	"github.com/rcore-os/rcore-thread/pkg/scheduler"
	"github.com/rcore-os/rcore-thread/pkg/threadpool"
)

func newProcessor(t *testing.T) (*processor.Processor, *threadpool.ThreadPool) {
	t.Helper()
	pool := threadpool.New(scheduler.NewStrideScheduler(5), 4, nil)
	gate := interrupt.New(10000) // fast idle poll so a leaked Run goroutine never blocks long
	p := processor.New()
	p.Init(0, pool, gate)
	return p, pool
}

func await(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestRunYieldsAndResumesThenExits(t *testing.T) {
	p, pool := newProcessor(t)

	ran := make(chan struct{})
	resumed := make(chan struct{})
	tid := pool.Spawn(func(uintptr) {
		close(ran)
		p.YieldNow()
		close(resumed)
		pool.Exit(p.Tid(), 0)
		p.Finish()
	}, 0)

	go p.Run()

	await(t, ran, "first entry into the thread")
	await(t, resumed, "resume after YieldNow")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if st, ok := pool.Status(tid); ok && st.Kind == threadpool.StatusExited {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("thread %d did not reach Exited within 1s of Finish", tid)
}

func TestTidAndContextDuringExecution(t *testing.T) {
	p, pool := newProcessor(t)

	observedTid := make(chan threadpool.Tid, 1)
	proceed := make(chan struct{})
	tid := pool.Spawn(func(uintptr) {
		observedTid <- p.Tid()
		<-proceed
		p.Finish()
	}, 0)

	go p.Run()

	select {
	case got := <-observedTid:
		if got != tid {
			t.Fatalf("p.Tid() inside entry = %d, want %d", got, tid)
		}
	case <-time.After(time.Second):
		t.Fatalf("entry never reported its Tid")
	}
	if _, ok := p.TryTid(); !ok {
		t.Fatalf("TryTid() = (_, false) while thread is current, want true")
	}
	if p.Context() == nil {
		t.Fatalf("Context() = nil while thread is current")
	}
	close(proceed)
}

func TestYieldNowPanicsWhenIdle(t *testing.T) {
	p, _ := newProcessor(t)
	defer func() {
		if recover() == nil {
			t.Fatalf("YieldNow() on an idle Processor did not panic")
		}
	}()
	p.YieldNow()
}

func TestFinishPanicsWhenIdle(t *testing.T) {
	p, _ := newProcessor(t)
	defer func() {
		if recover() == nil {
			t.Fatalf("Finish() on an idle Processor did not panic")
		}
	}()
	p.Finish()
}

func TestTidPanicsWhenIdle(t *testing.T) {
	p, _ := newProcessor(t)
	defer func() {
		if recover() == nil {
			t.Fatalf("Tid() on an idle Processor did not panic")
		}
	}()
	p.Tid()
}

func TestTryTidFalseWhenIdle(t *testing.T) {
	p, _ := newProcessor(t)
	if _, ok := p.TryTid(); ok {
		t.Fatalf("TryTid() on an idle Processor = (_, true), want false")
	}
}

func TestTickIsNoopWhenIdle(t *testing.T) {
	p, _ := newProcessor(t)
	// Must not panic: TryTid() is false, so Tick never attempts to force
	// a yield of a thread that does not exist.
	p.Tick()
}

func TestUseBeforeInitPanics(t *testing.T) {
	p := processor.New()
	defer func() {
		if recover() == nil {
			t.Fatalf("Run() before Init did not panic")
		}
	}()
	p.Run()
}
