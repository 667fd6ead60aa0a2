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

package journal

import (
	"context"

	"github.com/mike-tr-adamson/ccm/internal/logger"
	"github.com/mike-tr-adamson/ccm/internal/node"
)

// Recorder writes node events to the journal. Write failures are logged and
// never fail the lifecycle call that produced the event.
// Recorder 将节点事件写入日志，写入失败只记录日志，不影响产生事件的生命周期调用。
type Recorder struct {
	repo    *Repository
	cluster string
}

// NewRecorder creates a Recorder for events of the named cluster.
func NewRecorder(repo *Repository, cluster string) *Recorder {
	return &Recorder{repo: repo, cluster: cluster}
}

// Handle has the node.EventHandler signature.
// Handle 的签名与 node.EventHandler 一致。
func (r *Recorder) Handle(ctx context.Context, e node.Event) {
	row := FromNodeEvent(r.cluster, e)
	// The lifecycle call may be cancelled right after emitting
	if err := r.repo.Create(context.WithoutCancel(ctx), row); err != nil {
		logger.WarnF(ctx, "[Journal] failed to record %s event for %s: %v", e.Kind, e.Node, err)
	}
}
