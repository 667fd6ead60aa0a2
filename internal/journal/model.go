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

// Package journal keeps a queryable history of node lifecycle and tool events.
// Package journal 保存可查询的节点生命周期和工具事件历史。
package journal

import (
	"time"

	"github.com/google/uuid"
	"github.com/mike-tr-adamson/ccm/internal/node"
)

// Event is one recorded node event.
// Event 表示一条已记录的节点事件。
type Event struct {
	ID         uint      `json:"-" gorm:"primaryKey;autoIncrement"`
	EventID    string    `json:"event_id" gorm:"size:36;uniqueIndex"`     // 事件 UUID / Event UUID
	Cluster    string    `json:"cluster" gorm:"size:100;index"`           // 集群名称 / Cluster name
	Node       string    `json:"node" gorm:"size:100;index"`              // 节点名称 / Node name
	Kind       string    `json:"kind" gorm:"size:20;index"`               // transition 或 tool
	FromState  string    `json:"from_state,omitempty" gorm:"size:20"`     // 原状态 / Previous state
	ToState    string    `json:"to_state,omitempty" gorm:"size:20"`       // 新状态 / New state
	PID        int       `json:"pid,omitempty"`                           // 进程 PID / Process PID
	Tool       string    `json:"tool,omitempty" gorm:"size:100"`          // 工具名称 / Tool name
	ExitCode   int       `json:"exit_code"`                               // 工具退出码 / Tool exit code
	Error      string    `json:"error,omitempty" gorm:"type:text"`        // 错误信息 / Error message
	DurationMs int64     `json:"duration_ms"`                             // 耗时（毫秒）/ Duration in ms
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime;index"` // 事件时间 / Event time
}

// TableName specifies the table name for Event.
// TableName 指定 Event 的表名。
func (Event) TableName() string {
	return "node_events"
}

// Failed reports whether the event records a failure.
func (e *Event) Failed() bool {
	return e.Error != "" || (e.Kind == string(node.EventTool) && e.ExitCode != 0)
}

// FromNodeEvent converts a node event into a journal row with a fresh id.
// FromNodeEvent 将节点事件转换为带新 ID 的日志记录。
func FromNodeEvent(cluster string, e node.Event) *Event {
	out := &Event{
		EventID:    uuid.NewString(),
		Cluster:    cluster,
		Node:       e.Node,
		Kind:       string(e.Kind),
		FromState:  string(e.From),
		ToState:    string(e.To),
		PID:        e.PID,
		Tool:       e.Tool,
		ExitCode:   e.ExitCode,
		DurationMs: e.Duration.Milliseconds(),
		CreatedAt:  e.At,
	}
	if e.Err != nil {
		out.Error = e.Err.Error()
	}
	return out
}

// EventFilter narrows a List call. Zero fields do not filter.
// EventFilter 用于过滤 List 查询，零值字段不参与过滤。
type EventFilter struct {
	Cluster  string     `form:"cluster"`
	Node     string     `form:"node"`
	Kind     string     `form:"kind"`
	Tool     string     `form:"tool"`
	Since    *time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Until    *time.Time `form:"until" time_format:"2006-01-02T15:04:05Z07:00"`
	Page     int        `form:"page"`
	PageSize int        `form:"page_size"`
}

// Validate checks the time range and paging.
func (f *EventFilter) Validate() error {
	if f.Page < 0 || f.PageSize < 0 {
		return ErrInvalidFilter
	}
	if f.Since != nil && f.Until != nil && f.Since.After(*f.Until) {
		return ErrInvalidFilter
	}
	return nil
}
