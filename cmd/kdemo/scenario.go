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
	"github.com/sirupsen/logrus"

	"github.com/rcore-os/rcore-thread/pkg/stdthread"
)

// runDemoScenario reproduces original_source's example/src/main.rs: a
// parent thread yields once, spawns a child that also yields once and
// returns a value, joins it, and logs the result. close(done) once the
// whole scenario has run so the harness can shut the Processors down.
func runDemoScenario(rt *stdthread.Runtime, log *logrus.Logger, done chan<- struct{}) {
	stdthread.Spawn(rt, func(cur *stdthread.Current) any {
		tid := cur.ID()
		log.WithField("tid", tid).Info("yield")
		cur.Yield()
		log.WithField("tid", tid).Info("spawn child")

		child := stdthread.Spawn(rt, func(ccur *stdthread.Current) int {
			ctid := ccur.ID()
			log.WithField("tid", ctid).Info("yield")
			ccur.Yield()
			log.WithField("tid", ctid).Info("return 8")
			return 8
		})

		log.WithField("tid", tid).Info("join")
		ret, err := child.Join(cur)
		log.WithFields(logrus.Fields{"tid": tid, "result": ret, "err": err}).Info("joined")
		log.WithField("tid", tid).Info("exit")
		close(done)
		return nil
	})
}
