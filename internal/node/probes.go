/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package node

import (
	"context"
	"regexp"
	"time"

	"github.com/mike-tr-adamson/ccm/internal/logwatch"
)

// binaryProtoPattern is logged just before the native protocol server binds.
const binaryProtoPattern = "Starting listening for CQL clients"

func alivePattern(address string) string {
	return regexp.QuoteMeta(address) + ".* now UP"
}

func deadPattern(address string) string {
	return regexp.QuoteMeta(address) + ".* now DOWN"
}

// logProbe is a readiness check that waits for patterns in one log, starting
// from the mark taken when it was armed.
// logProbe 是一个就绪检查，从装备时记录的位置开始等待日志中出现指定模式。
type logProbe struct {
	name     string
	watcher  logwatch.Watcher
	patterns []string
	settle   time.Duration
	mark     logwatch.Mark
}

func (p *logProbe) Name() string {
	return p.name
}

func (p *logProbe) Arm() error {
	mark, err := p.watcher.Mark()
	if err != nil {
		return err
	}
	p.mark = mark
	return nil
}

func (p *logProbe) Await(ctx context.Context) error {
	if _, err := p.watcher.WatchFor(ctx, p.mark, p.patterns...); err != nil {
		return err
	}
	if p.settle > 0 {
		timer := time.NewTimer(p.settle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
