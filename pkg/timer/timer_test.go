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

package timer_test

import (
	"testing"

	"github.com/rcore-os/rcore-thread/pkg/timer"
)

func TestPopOrdersByDeadlineThenFIFO(t *testing.T) {
	tm := timer.New[string]()
	tm.Start(5, "b-first-at-5")
	tm.Start(3, "a-first-at-3")
	tm.Start(3, "a-second-at-3")

	for i := 0; i < 2; i++ {
		tm.Tick()
	}
	if _, ok := tm.Pop(); ok {
		t.Fatalf("Pop() at tick 2 returned an event before any deadline (3) was reached")
	}
	tm.Tick() // now == 3
	got, ok := tm.Pop()
	if !ok || got != "a-first-at-3" {
		t.Fatalf("Pop() = (%q, %v), want (a-first-at-3, true)", got, ok)
	}
	got, ok = tm.Pop()
	if !ok || got != "a-second-at-3" {
		t.Fatalf("Pop() = (%q, %v), want (a-second-at-3, true)", got, ok)
	}
	if _, ok := tm.Pop(); ok {
		t.Fatalf("Pop() returned a third event at tick 3, want none left due")
	}
	for i := 0; i < 2; i++ {
		tm.Tick()
	}
	got, ok = tm.Pop()
	if !ok || got != "b-first-at-5" {
		t.Fatalf("Pop() at tick 5 = (%q, %v), want (b-first-at-5, true)", got, ok)
	}
}

func TestStopRemovesPendingEvent(t *testing.T) {
	tm := timer.New[int]()
	tm.Start(1, 42)
	tm.Stop(42)
	tm.Tick()
	if _, ok := tm.Pop(); ok {
		t.Fatalf("Pop() returned a Stop'd event, want none")
	}
}

func TestStopOnAbsentEventIsNoop(t *testing.T) {
	tm := timer.New[int]()
	tm.Stop(999) // must not panic
	tm.Start(1, 1)
	tm.Tick()
	got, ok := tm.Pop()
	if !ok || got != 1 {
		t.Fatalf("Pop() = (%d, %v), want (1, true)", got, ok)
	}
}

func TestStartZeroDeltaPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("Start(0, ...) did not panic")
		}
	}()
	timer.New[int]().Start(0, 1)
}
