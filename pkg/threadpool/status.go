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

package threadpool

import "fmt"

// Tid is a dense, non-negative thread identifier, stable for the
// lifetime of a thread and reused only after its slot is released
// (spec §3).
type Tid int

// StatusKind enumerates the lifecycle states from spec §3.
type StatusKind int

const (
	// StatusReady means the thread is queued in the scheduler,
	// waiting for a CPU.
	StatusReady StatusKind = iota
	// StatusRunning means the thread currently owns a CPU; CPU holds
	// which one.
	StatusRunning
	// StatusSleeping means the thread is parked, either for a bounded
	// duration (a pending timer entry exists) or forever (no entry).
	StatusSleeping
	// StatusExited is terminal; Code holds the exit code.
	StatusExited
)

func (k StatusKind) String() string {
	switch k {
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusSleeping:
		return "sleeping"
	case StatusExited:
		return "exited"
	default:
		return fmt.Sprintf("status(%d)", int(k))
	}
}

// Status is the sum-of type from spec §3: Ready | Running(cpu) |
// Sleeping | Exited(code). CPU is meaningful only when Kind is
// StatusRunning; Code only when Kind is StatusExited.
type Status struct {
	Kind StatusKind
	CPU  int
	Code int
}

func (s Status) String() string {
	switch s.Kind {
	case StatusRunning:
		return fmt.Sprintf("running(cpu=%d)", s.CPU)
	case StatusExited:
		return fmt.Sprintf("exited(code=%d)", s.Code)
	default:
		return s.Kind.String()
	}
}

// Ready returns the Ready status.
func Ready() Status { return Status{Kind: StatusReady} }

// Running returns the Running(cpu) status.
func Running(cpu int) Status { return Status{Kind: StatusRunning, CPU: cpu} }

// Sleeping returns the Sleeping status.
func Sleeping() Status { return Status{Kind: StatusSleeping} }

// Exited returns the Exited(code) status.
func Exited(code int) Status { return Status{Kind: StatusExited, Code: code} }
