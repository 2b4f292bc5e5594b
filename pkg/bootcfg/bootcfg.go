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

// Package bootcfg loads the boot-time configuration a kdemo instance
// starts from: how many CPUs to bring up, how many thread slots to
// reserve, which scheduling policy to run, and its quantum. It plays
// the same role as runsc/config's typed Config loaded once at startup,
// at a fraction of the surface, since this runtime has no per-container
// OCI spec to parse.
package bootcfg

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Policy names accepted by the "scheduler" key.
const (
	PolicyStride = "stride"
)

// Config is the boot-time configuration, decoded from a TOML file.
type Config struct {
	// NumCPUs is the number of Processor loops to launch.
	NumCPUs int `toml:"num_cpus"`
	// MaxThreads is the ThreadPool's fixed slot-table capacity.
	MaxThreads int `toml:"max_threads"`
	// Scheduler names the scheduling policy; currently only "stride".
	Scheduler string `toml:"scheduler"`
	// Quantum is the time slice, in ticks, a thread gets when the
	// stride policy picks it.
	Quantum int `toml:"quantum"`
	// IdlePollHz bounds how often an idle CPU polls for work instead
	// of busy-spinning; see pkg/interrupt.
	IdlePollHz float64 `toml:"idle_poll_hz"`
}

// Default returns the configuration original_source's worked example
// boots with: one CPU, 32 thread slots, stride scheduling with a
// 5-tick quantum.
func Default() Config {
	return Config{
		NumCPUs:    1,
		MaxThreads: 32,
		Scheduler:  PolicyStride,
		Quantum:    5,
		IdlePollHz: 1000,
	}
}

// Load decodes a Config from the TOML file at path, starting from
// Default so an input file only needs to override the keys it cares
// about.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("bootcfg: load %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects a Config that would make the runtime meaningless.
func (c Config) Validate() error {
	if c.NumCPUs <= 0 {
		return fmt.Errorf("bootcfg: num_cpus must be > 0, got %d", c.NumCPUs)
	}
	if c.MaxThreads <= 0 {
		return fmt.Errorf("bootcfg: max_threads must be > 0, got %d", c.MaxThreads)
	}
	if c.Quantum <= 0 {
		return fmt.Errorf("bootcfg: quantum must be > 0, got %d", c.Quantum)
	}
	switch c.Scheduler {
	case PolicyStride:
	default:
		return fmt.Errorf("bootcfg: unknown scheduler policy %q", c.Scheduler)
	}
	return nil
}
