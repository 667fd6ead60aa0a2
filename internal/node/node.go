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

// Package node implements the lifecycle controller of one DSE node: start and
// stop of the node process and its monitoring agent, config imports and the
// operator tool runners.
// node 包实现单个 DSE 节点的生命周期控制器：节点进程及其监控 Agent 的启停、配置导入以及运维工具的运行。
package node

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/mike-tr-adamson/ccm/internal/agent"
	"github.com/mike-tr-adamson/ccm/internal/config"
	"github.com/mike-tr-adamson/ccm/internal/confmerge"
	"github.com/mike-tr-adamson/ccm/internal/layout"
	"github.com/mike-tr-adamson/ccm/internal/logger"
	"github.com/mike-tr-adamson/ccm/internal/logwatch"
	"github.com/mike-tr-adamson/ccm/internal/process"
)

const (
	pidFileName   = "cassandra.pid"
	systemLogName = "system.log"
)

// Node is a DSE node under management.
// Node 是受管的 DSE 节点。
//
// Lifecycle calls on one Node are serialised by a mutex. Two ccm-node
// processes acting on the same node directory are not coordinated.
// 同一个 Node 上的生命周期调用由互斥锁串行化，但操作同一节点目录的多个 ccm-node 进程之间不做协调。
type Node struct {
	mu sync.Mutex

	cfg     Config
	cluster Cluster
	state   State

	launcher *process.Launcher
	layout   Layout
	store    ConfigStore
	agent    *agent.Supervisor
	timeouts config.NodeConfig
	handlers []EventHandler
}

// Option configures a Node.
type Option func(*Node)

// WithLayout replaces the file-system layout.
func WithLayout(l Layout) Option {
	return func(n *Node) { n.layout = l }
}

// WithTimeouts applies the node section of the service config.
// WithTimeouts 应用服务配置中的 node 部分。
func WithTimeouts(t config.NodeConfig) Option {
	return func(n *Node) {
		if t.StartTimeout > 0 {
			n.timeouts.StartTimeout = t.StartTimeout
		}
		if t.StopTimeout > 0 {
			n.timeouts.StopTimeout = t.StopTimeout
		}
		if t.GracefulTimeout > 0 {
			n.timeouts.GracefulTimeout = t.GracefulTimeout
		}
		if t.NoWaitGrace > 0 {
			n.timeouts.NoWaitGrace = t.NoWaitGrace
		}
		if t.BinaryProtoSettle > 0 {
			n.timeouts.BinaryProtoSettle = t.BinaryProtoSettle
		}
		if t.PollInterval > 0 {
			n.timeouts.PollInterval = t.PollInterval
		}
	}
}

// WithEventHandler adds a handler for lifecycle and tool events.
// WithEventHandler 添加生命周期和工具事件处理器。
func WithEventHandler(h EventHandler) Option {
	return func(n *Node) {
		if h != nil {
			n.handlers = append(n.handlers, h)
		}
	}
}

// WithConfigStore sets where workload and override changes are persisted.
func WithConfigStore(s ConfigStore) Option {
	return func(n *Node) { n.store = s }
}

// New creates a Node. The node starts in the stopped state, or running when
// its pid file points at a live process.
// New 创建节点。节点初始为停止状态，若 pid 文件指向存活进程则为运行状态。
func New(cfg Config, cluster Cluster, opts ...Option) *Node {
	defaults := config.Default().Node
	n := &Node{
		cfg:      cfg,
		cluster:  cluster,
		state:    StateStopped,
		layout:   layout.Local{},
		timeouts: defaults,
	}
	if n.cfg.ConfigOverrides == nil {
		n.cfg.ConfigOverrides = make(confmerge.Overrides)
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.launcher == nil {
		n.launcher = process.NewLauncher(process.WithNoWaitGrace(n.timeouts.NoWaitGrace))
	}
	n.agent = agent.New(cfg.Path, cfg.InstallDir, agent.AddressInfo{
		Address:    cfg.Interfaces.Thrift.Host,
		ThriftPort: cfg.Interfaces.Thrift.Port,
		JMXPort:    cfg.JMXPort,
	})
	if n.PID() > 0 {
		n.state = StateRunning
	}
	return n
}

// Name returns the node name.
func (n *Node) Name() string {
	return n.cfg.Name
}

// Path returns the node working directory.
func (n *Node) Path() string {
	return n.cfg.Path
}

// InstallDir returns the install root.
func (n *Node) InstallDir() string {
	return n.cfg.InstallDir
}

// Address is the host other nodes log this node under.
// Address 是其他节点日志中记录本节点所用的地址。
func (n *Node) Address() string {
	if n.cfg.Interfaces.Storage.Host != "" {
		return n.cfg.Interfaces.Storage.Host
	}
	return n.cfg.Interfaces.Thrift.Host
}

// Config returns a copy of the node description.
// Config 返回节点描述的副本。
func (n *Node) Config() Config {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.configLocked()
}

func (n *Node) configLocked() Config {
	out := n.cfg
	out.Workloads = append([]Workload(nil), n.cfg.Workloads...)
	out.ConfigOverrides = confmerge.Layer(n.cfg.ConfigOverrides)
	return out
}

// PIDFile returns <node>/cassandra.pid.
func (n *Node) PIDFile() string {
	return filepath.Join(n.cfg.Path, pidFileName)
}

// PID returns the live pid of the node process, or 0.
// PID 返回节点进程的存活 pid，否则返回 0。
func (n *Node) PID() int {
	return process.RunningPID(n.PIDFile())
}

// IsRunning reports whether the node process is alive.
func (n *Node) IsRunning() bool {
	return n.PID() > 0
}

// LogWatcher watches <node>/logs/system.log.
// LogWatcher 监视 <node>/logs/system.log。
func (n *Node) LogWatcher() logwatch.Watcher {
	return logwatch.NewFileWatcher(
		filepath.Join(n.cfg.Path, "logs", systemLogName),
		logwatch.WithPollInterval(n.timeouts.PollInterval),
	)
}

// Agent returns the supervisor of the node's monitoring agent.
func (n *Node) Agent() *agent.Supervisor {
	return n.agent
}

// State returns the last recorded lifecycle state.
func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Status returns a snapshot of the node.
// Status 返回节点快照。
func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	pid := n.PID()
	state := n.state
	// Another process may have started or stopped the node since
	// 其他进程可能已经启动或停止了该节点
	if state == StateStopped && pid > 0 {
		state = StateRunning
	} else if state == StateRunning && pid == 0 {
		state = StateStopped
	}
	return Status{
		Name:      n.cfg.Name,
		State:     state,
		Running:   pid > 0,
		PID:       pid,
		AgentPID:  n.agent.PID(),
		Address:   n.Address(),
		Workloads: append([]Workload(nil), n.cfg.Workloads...),
	}
}

// transition records a state change and notifies the handlers.
func (n *Node) transition(ctx context.Context, to State, pid int, err error, since time.Time) {
	from := n.state
	n.state = to
	if err != nil {
		logger.WarnF(ctx, "[Node] %s: %s -> %s: %v", n.cfg.Name, from, to, err)
	} else {
		logger.InfoF(ctx, "[Node] %s: %s -> %s", n.cfg.Name, from, to)
	}
	n.emit(ctx, Event{
		Kind:     EventTransition,
		Node:     n.cfg.Name,
		From:     from,
		To:       to,
		PID:      pid,
		Err:      err,
		Duration: time.Since(since),
	})
}

func (n *Node) emit(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	for _, h := range n.handlers {
		h(ctx, event)
	}
}

// persist saves the node config when a store is attached.
func (n *Node) persist() error {
	if n.store == nil {
		return nil
	}
	return n.store.SaveNodeConfig(n.configLocked())
}
