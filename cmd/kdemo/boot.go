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

package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rcore-os/rcore-thread/pkg/bootcfg"
	"github.com/rcore-os/rcore-thread/pkg/interrupt"
	"github.com/rcore-os/rcore-thread/pkg/processor"
	"github.com/rcore-os/rcore-thread/pkg/scheduler"
	"github.com/rcore-os/rcore-thread/pkg/stdthread"
	"github.com/rcore-os/rcore-thread/pkg/threadpool"
)

// bootCommand runs the parent/child join scenario from
// original_source's example/src/main.rs under a real Processor loop.
type bootCommand struct {
	configPath string
	lockPath   string
	tickHz     int
}

func (*bootCommand) Name() string     { return "boot" }
func (*bootCommand) Synopsis() string { return "boot a thread pool and run the demo scenario" }
func (*bootCommand) Usage() string {
	return "boot [-config path] [-lock path] [-tick-hz n]:\n" +
		"  bring up a ThreadPool and Processor, spawn the parent/child demo, run to completion.\n"
}

func (c *bootCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a TOML boot config; built-in default if empty")
	f.StringVar(&c.lockPath, "lock", "", "path to a lock file guarding against a second concurrent boot; skipped if empty")
	f.IntVar(&c.tickHz, "tick-hz", 200, "synthetic timer-interrupt rate driving the ThreadPool's clock")
}

func (c *bootCommand) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		logrus.WithError(err).Error("kdemo: config load failed")
		return subcommands.ExitFailure
	}

	if c.lockPath != "" {
		lock := flock.New(c.lockPath)
		locked, err := lock.TryLock()
		if err != nil {
			logrus.WithError(err).Error("kdemo: lock acquire failed")
			return subcommands.ExitFailure
		}
		if !locked {
			logrus.Error("kdemo: another boot holds the lock")
			return subcommands.ExitFailure
		}
		defer lock.Unlock()
	}

	log := logrus.StandardLogger()
	sched := scheduler.NewStrideScheduler(cfg.Quantum)
	pool := threadpool.New(sched, cfg.MaxThreads, log)
	table := processor.NewTable(cfg.NumCPUs, func() int { return 0 })
	gate := interrupt.New(cfg.IdlePollHz)

	for i := 0; i < table.Len(); i++ {
		table.ByID(i).Init(i, pool, gate)
	}
	rt := stdthread.NewRuntime(table, pool)

	done := make(chan struct{})
	runDemoScenario(rt, log, done)

	runCtx, cancelRun := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < table.Len(); i++ {
		proc := table.ByID(i)
		g.Go(func() error {
			go proc.Run()
			<-gctx.Done()
			return nil
		})
	}
	stopTicks := make(chan struct{})
	go driveTicks(table, time.Second/time.Duration(c.tickHz), done, stopTicks)

	<-done
	logSnapshot(log, pool)
	close(stopTicks)
	cancelRun()
	g.Wait()
	fmt.Println("kdemo: scenario complete")
	return subcommands.ExitSuccess
}

// driveTicks stands in for the global system-clock interrupt: once per
// period it advances the ThreadPool's timer and wakes any threads whose
// sleep has expired. On real hardware a per-CPU local-timer interrupt
// also forces a quantum-expired thread to yield, but that forcing is
// only well-defined when delivered on the interrupted thread's own
// execution stream — Processor.Tick's YieldNow path assumes exactly
// that. A goroutine outside Run has no such stream to deliver it on
// (Run's goroutine is blocked inside the thread's Context the whole
// time it is current), so driving quantum expiry from here would hand
// two goroutines the same Context's baton. This harness therefore only
// advances the clock; forced yield is left to each thread's own
// cooperative checkpoints (stdthread.Current.Yield/Sleep/Park), which
// is all a hosted, channel-based Context can honor safely. See
// DESIGN.md, pkg/processor, "Known limitation".
func driveTicks(table *processor.Table, period time.Duration, done <-chan struct{}, stop <-chan struct{}) {
	clock := table.ByID(0).Pool()
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-stop:
			return
		case <-t.C:
			clock.Tick(0, 0, false)
		}
	}
}

// logSnapshot reports every thread still occupying a slot once the
// scenario's done channel closes — ordinarily just whatever detached
// or not-yet-joined threads are left, useful for spotting a leaked
// slot without stopping under a debugger.
func logSnapshot(log logrus.FieldLogger, pool *threadpool.ThreadPool) {
	for _, snap := range pool.Snapshot() {
		log.WithFields(logrus.Fields{
			"tid":      snap.Tid,
			"status":   snap.Status,
			"detached": snap.Detached,
		}).Info("kdemo: thread still resident at shutdown")
	}
}

func loadConfig(path string) (bootcfg.Config, error) {
	if path == "" {
		return bootcfg.Default(), nil
	}
	return bootcfg.Load(path)
}
