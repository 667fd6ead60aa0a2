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
	"fmt"
	"sort"
	"time"

	"github.com/mike-tr-adamson/ccm/internal/confmerge"
	"github.com/mike-tr-adamson/ccm/internal/logwatch"
	"github.com/mike-tr-adamson/ccm/internal/process"
)

// Workload is a processing capability a node is launched with.
// Workload 是节点启动时启用的处理能力。
type Workload string

// Workload constants
// 工作负载常量
const (
	WorkloadHadoop Workload = "hadoop"
	WorkloadSolr   Workload = "solr"
	WorkloadSpark  Workload = "spark"
	WorkloadCFS    Workload = "cfs"
)

// workloadFlags is in command line order.
var workloadFlags = []struct {
	workload Workload
	flag     string
}{
	{WorkloadHadoop, "-t"},
	{WorkloadSolr, "-s"},
	{WorkloadSpark, "-k"},
	{WorkloadCFS, "-c"},
}

// ParseWorkloads validates tags and returns them sorted without duplicates.
// ParseWorkloads 校验工作负载标签，返回去重并排序后的结果。
func ParseWorkloads(tags []string) ([]Workload, error) {
	seen := make(map[Workload]bool, len(tags))
	out := make([]Workload, 0, len(tags))
	for _, tag := range tags {
		w := Workload(tag)
		if _, ok := workloadFlag(w); !ok {
			return nil, fmt.Errorf("unknown workload %q, expected one of hadoop, solr, spark, cfs", tag)
		}
		if seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func workloadFlag(w Workload) (string, bool) {
	for _, wf := range workloadFlags {
		if wf.workload == w {
			return wf.flag, true
		}
	}
	return "", false
}

// State is the lifecycle state of a node.
// State 是节点的生命周期状态。
type State string

// State constants
// 状态常量
const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// AuthMode is the cluster authentication mode.
// AuthMode 是集群认证模式。
type AuthMode string

// AuthMode constants
// 认证模式常量
const (
	AuthNone     AuthMode = "none"
	AuthKerberos AuthMode = "kerberos"
)

// Peer is another node of the same cluster, as seen by wait-for-notice checks.
// Peer 是同一集群中的其他节点，用于等待感知检查。
type Peer interface {
	Name() string
	IsRunning() bool
	LogWatcher() logwatch.Watcher
}

// Cluster is the coordinator a node belongs to. The node only reads from it.
// Cluster 是节点所属的协调者，节点只从中读取信息。
type Cluster interface {
	Name() string
	Path() string
	AuthMode() AuthMode

	// KerberosConfig is the krb5.conf path used when AuthMode is kerberos
	// KerberosConfig 是 kerberos 模式下使用的 krb5.conf 路径
	KerberosConfig() string

	ConfigOverrides() confmerge.Overrides
	HasOpsCenter() bool

	// Peers returns every node of the cluster except the named one
	// Peers 返回集群中除指定节点外的所有节点
	Peers(self string) []Peer
}

// ConfigStore persists a node's mutable settings (workloads and overrides).
// ConfigStore 持久化节点的可变设置（工作负载和覆盖项）。
type ConfigStore interface {
	SaveNodeConfig(cfg Config) error
}

// Layout is the file-system surface used to build the node directory.
// Layout 是构建节点目录所使用的文件系统接口。
type Layout interface {
	CopyDirectory(src, dst string) error
	CopyFile(src, dst string) error
	EnsureDir(path string) error
	Exists(path string) bool
}

// Product is the lifecycle every managed product implements.
// Product 是每种受管产品都要实现的生命周期接口。
type Product interface {
	Name() string
	Start(ctx context.Context, opts StartOptions) (*process.Handle, error)
	Stop(ctx context.Context, opts StopOptions) (bool, error)
	Configure(ctx context.Context, overrides confmerge.Overrides) error
}

// Interfaces are the network bindings of a node. Binary is optional.
// Interfaces 是节点的网络绑定，Binary 可选。
type Interfaces struct {
	Thrift  process.Endpoint `json:"thrift" yaml:"thrift"`
	Storage process.Endpoint `json:"storage" yaml:"storage"`
	Binary  process.Endpoint `json:"binary" yaml:"binary"`
}

// Endpoints returns the bound interfaces.
func (i Interfaces) Endpoints() []process.Endpoint {
	out := make([]process.Endpoint, 0, 3)
	for _, ep := range []process.Endpoint{i.Thrift, i.Storage, i.Binary} {
		if ep.Port > 0 {
			out = append(out, ep)
		}
	}
	return out
}

// Config is the static and persisted description of a node.
// Config 是节点的静态及持久化描述。
type Config struct {
	Name            string              `json:"name"`
	InstallDir      string              `json:"install_dir"`
	Path            string              `json:"path"`
	Interfaces      Interfaces          `json:"interfaces"`
	JMXPort         int                 `json:"jmx_port"`
	InitialToken    string              `json:"initial_token,omitempty"`
	Workloads       []Workload          `json:"workloads"`
	ConfigOverrides confmerge.Overrides `json:"config_options,omitempty"`
}

// StartOptions select the readiness policy and launch flags of a start.
// StartOptions 选择启动时的就绪策略和启动参数。
type StartOptions struct {
	JoinRing bool `json:"join_ring"`

	// NoWait returns after a short grace period instead of draining output
	// NoWait 在短暂等待后返回，而不是读取输出直到结束
	NoWait  bool `json:"no_wait"`
	Verbose bool `json:"verbose"`

	// WaitOtherNotice waits for every running peer to log this node as UP
	// WaitOtherNotice 等待每个运行中的节点在日志中标记本节点为 UP
	WaitOtherNotice bool `json:"wait_other_notice"`

	// WaitForBinaryProto waits for the node to log that it serves CQL clients
	// WaitForBinaryProto 等待节点日志显示开始服务 CQL 客户端
	WaitForBinaryProto bool `json:"wait_for_binary_proto"`

	ReplaceToken   string   `json:"replace_token,omitempty"`
	ReplaceAddress string   `json:"replace_address,omitempty"`
	JVMArgs        []string `json:"jvm_args,omitempty"`
	UseJNA         bool     `json:"use_jna"`
	Debug          bool     `json:"debug"`

	// Timeout overrides the configured start timeout when positive
	// Timeout 为正数时覆盖配置中的启动超时
	Timeout time.Duration `json:"timeout,omitempty"`
}

// DefaultStartOptions joins the ring and waits for the launch output to end.
// DefaultStartOptions 加入环并等待启动输出结束。
func DefaultStartOptions() StartOptions {
	return StartOptions{JoinRing: true}
}

// StopOptions control how a node is stopped.
// StopOptions 控制节点的停止方式。
type StopOptions struct {
	Wait            bool `json:"wait"`
	WaitOtherNotice bool `json:"wait_other_notice"`
	Gently          bool `json:"gently"`
}

// DefaultStopOptions stops gently and waits for the process to exit.
func DefaultStopOptions() StopOptions {
	return StopOptions{Wait: true, Gently: true}
}

// EventKind classifies node events.
type EventKind string

// EventKind constants
const (
	EventTransition EventKind = "transition"
	EventTool       EventKind = "tool"
)

// Event is emitted on every state transition and tool run.
// Event 在每次状态转换和工具运行时发出。
type Event struct {
	Kind     EventKind
	Node     string
	From     State
	To       State
	PID      int
	Tool     string
	ExitCode int
	Err      error
	Duration time.Duration
	At       time.Time
}

// Failed reports whether the event records a failed start or tool run.
func (e Event) Failed() bool {
	if e.Kind == EventTool {
		return e.Err != nil || e.ExitCode != 0
	}
	return e.Err != nil
}

// EventHandler receives node events. Handlers run synchronously.
// EventHandler 接收节点事件，处理器同步执行。
type EventHandler func(ctx context.Context, event Event)

// Status is a point-in-time view of a node.
// Status 是节点在某一时刻的视图。
type Status struct {
	Name      string     `json:"name"`
	State     State      `json:"state"`
	Running   bool       `json:"running"`
	PID       int        `json:"pid,omitempty"`
	AgentPID  int        `json:"agent_pid,omitempty"`
	Address   string     `json:"address"`
	Workloads []Workload `json:"workloads"`
}
