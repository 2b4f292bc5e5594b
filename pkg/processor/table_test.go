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

	"github.com/rcore-os/rcore-thread/pkg/processor"
)

func TestTableByIDReturnsDistinctProcessorsPerCPU(t *testing.T) {
	table := processor.NewTable(3, func() int { return 0 })
	if table.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", table.Len())
	}
	seen := map[*processor.Processor]bool{}
	for i := 0; i < table.Len(); i++ {
		p := table.ByID(i)
		if p == nil {
			t.Fatalf("ByID(%d) = nil", i)
		}
		if seen[p] {
			t.Fatalf("ByID(%d) returned a Processor already seen at another index", i)
		}
		seen[p] = true
	}
}

// TestTableCurrentUsesInjectedResolver checks that Current defers to the
// cpuID closure NewTable was given, rather than always resolving to a
// fixed CPU — the way a production embedder would report a real
// physical core id from something like a per-core register.
func TestTableCurrentUsesInjectedResolver(t *testing.T) {
	cpu := 0
	table := processor.NewTable(2, func() int { return cpu })

	if got, want := table.Current(), table.ByID(0); got != want {
		t.Fatalf("Current() with cpuID()=0 = %p, want %p", got, want)
	}
	cpu = 1
	if got, want := table.Current(), table.ByID(1); got != want {
		t.Fatalf("Current() with cpuID()=1 = %p, want %p", got, want)
	}
}
