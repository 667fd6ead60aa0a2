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
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mike-tr-adamson/ccm/internal/layout"
	"github.com/mike-tr-adamson/ccm/internal/logger"
	"github.com/mike-tr-adamson/ccm/internal/nodeerr"
	"github.com/mike-tr-adamson/ccm/internal/otel_trace"
	"github.com/mike-tr-adamson/ccm/internal/process"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var _ Product = (*Node)(nil)

// Start launches the node and waits for the readiness policy in opts. Every
// wait is bounded by the start timeout. A failed start leaves the node
// stopped with no pid file. On success the monitoring agent is started when
// the cluster runs OpsCenter; agent failures are logged only.
// Start 启动节点并按 opts 中的就绪策略等待，所有等待都受启动超时限制。启动失败时节点处于停止状态且不留 pid 文件。
// 成功后若集群启用了 OpsCenter 则启动监控 Agent，Agent 失败只记录日志。
func (n *Node) Start(ctx context.Context, opts StartOptions) (*process.Handle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ctx, span := otel_trace.Start(ctx, "node.Start")
	defer span.End()
	span.SetAttributes(attribute.String("node.name", n.cfg.Name))

	timeout := n.timeouts.StartTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if pid := n.PID(); pid > 0 {
		return nil, nodeerr.Newf(nodeerr.CodeAlreadyRunning, "%s is already running", n.cfg.Name).
			WithContext("pid", pid)
	}

	spec, err := n.launchSpec(opts)
	if err != nil {
		return nil, err
	}

	startedAt := time.Now()
	starting := false
	prepare := spec.Prepare
	// The launcher runs Prepare only after its preconditions pass, so a port
	// conflict never shows up as a state change.
	spec.Prepare = func() error {
		starting = true
		n.transition(ctx, StateStarting, 0, nil, startedAt)
		return prepare()
	}

	handle, err := n.launcher.Start(ctx, spec)
	if err != nil {
		if starting {
			n.transition(ctx, StateStopped, 0, err, startedAt)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	n.transition(ctx, StateRunning, handle.PID, nil, startedAt)
	span.SetAttributes(attribute.Int("node.pid", handle.PID))

	if n.cluster.HasOpsCenter() {
		if _, err := n.agent.CopyFromInstall(); err != nil {
			logger.WarnF(ctx, "[Node] %s: failed to copy datastax-agent: %v", n.cfg.Name, err)
		}
		if err := n.agent.Start(ctx); err != nil {
			logger.WarnF(ctx, "[Node] %s: failed to start datastax-agent: %v", n.cfg.Name, err)
		}
	}
	return handle, nil
}

// launchSpec assembles the command line, environment and probes of a start.
// launchSpec 组装启动所需的命令行、环境变量和探针。
func (n *Node) launchSpec(opts StartOptions) (*process.LaunchSpec, error) {
	env, err := n.startEnvironment(opts)
	if err != nil {
		return nil, err
	}

	binDir := filepath.Join(n.cfg.Path, "bin")
	launchBin := filepath.Join(binDir, layout.BinaryName("dse"))
	spec := &process.LaunchSpec{
		Name:          n.cfg.Name,
		Command:       launchBin,
		Args:          n.launchArgs(opts),
		Env:           env.Environ(),
		Dir:           n.cfg.Path,
		PIDFile:       n.PIDFile(),
		Endpoints:     n.cfg.Interfaces.Endpoints(),
		SkipPortCheck: opts.ReplaceAddress != "",
		NoWait:        opts.NoWait,
		Verbose:       opts.Verbose,
		Prepare: func() error {
			return n.refreshLaunchScript(binDir, launchBin)
		},
	}

	if opts.WaitOtherNotice {
		for _, peer := range n.cluster.Peers(n.cfg.Name) {
			if !peer.IsRunning() {
				continue
			}
			spec.Probes = append(spec.Probes, &logProbe{
				name:     peer.Name() + " sees " + n.cfg.Name + " UP",
				watcher:  peer.LogWatcher(),
				patterns: []string{alivePattern(n.Address())},
			})
		}
	}
	if opts.WaitForBinaryProto {
		spec.Probes = append(spec.Probes, &logProbe{
			name:     "binary protocol",
			watcher:  n.LogWatcher(),
			patterns: []string{binaryProtoPattern},
			settle:   n.timeouts.BinaryProtoSettle,
		})
	}
	return spec, nil
}

// launchArgs builds the arguments after the dse launch script.
// launchArgs 构建 dse 启动脚本之后的参数。
func (n *Node) launchArgs(opts StartOptions) []string {
	args := []string{"cassandra"}
	active := make(map[Workload]bool, len(n.cfg.Workloads))
	for _, w := range n.cfg.Workloads {
		active[w] = true
	}
	for _, wf := range workloadFlags {
		if active[wf.workload] {
			args = append(args, wf.flag)
		}
	}

	args = append(args, "-p", n.PIDFile(), "-Dcassandra.join_ring="+strconv.FormatBool(opts.JoinRing))
	if opts.ReplaceToken != "" {
		args = append(args, "-Dcassandra.replace_token="+opts.ReplaceToken)
	}
	if opts.ReplaceAddress != "" {
		args = append(args, "-Dcassandra.replace_address="+opts.ReplaceAddress)
	}
	if !opts.UseJNA {
		args = append(args, "-Dcassandra.boot_without_jna=true")
	}
	return append(args, opts.JVMArgs...)
}

// refreshLaunchScript copies the install's dse script into the node bin
// directory so edits from an earlier run are dropped, and makes it executable.
// refreshLaunchScript 将安装目录中的 dse 脚本复制到节点 bin 目录（丢弃之前运行留下的修改）并设为可执行。
func (n *Node) refreshLaunchScript(binDir, launchBin string) error {
	source := filepath.Join(n.cfg.InstallDir, "bin", layout.BinaryName("dse"))
	if err := n.layout.EnsureDir(binDir); err != nil {
		return nodeerr.New(nodeerr.CodeConfigIO, "failed to create node bin directory").WithCause(err)
	}
	if err := n.layout.CopyFile(source, launchBin); err != nil {
		return nodeerr.New(nodeerr.CodeConfigIO, "failed to copy launch script").
			WithContext("source", source).
			WithCause(err)
	}
	info, err := os.Stat(launchBin)
	if err != nil {
		return nodeerr.New(nodeerr.CodeConfigIO, "launch script missing after copy").WithCause(err)
	}
	if err := os.Chmod(launchBin, info.Mode()|0111); err != nil {
		return nodeerr.New(nodeerr.CodeConfigIO, "failed to make launch script executable").WithCause(err)
	}
	return nil
}

// Stop stops the agent (errors are logged), then signals the node process.
// It reports false when the node was not running. With Wait, it blocks until
// the process exits or the stop timeout passes; with WaitOtherNotice it also
// waits for running peers to log the node as DOWN.
// Stop 先停止 Agent（错误只记录日志），再向节点进程发送信号。节点未运行时返回 false。
// Wait 为 true 时阻塞直到进程退出或停止超时；WaitOtherNotice 为 true 时还会等待运行中的节点在日志中标记本节点为 DOWN。
func (n *Node) Stop(ctx context.Context, opts StopOptions) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ctx, span := otel_trace.Start(ctx, "node.Stop")
	defer span.End()
	span.SetAttributes(attribute.String("node.name", n.cfg.Name), attribute.Bool("node.gently", opts.Gently))

	if _, err := n.agent.Stop(ctx); err != nil {
		logger.WarnF(ctx, "[Node] %s: failed to stop datastax-agent: %v", n.cfg.Name, err)
	}

	pid := n.PID()
	if pid == 0 {
		if n.state != StateStopped {
			n.transition(ctx, StateStopped, 0, nil, time.Now())
		}
		_ = process.RemovePIDFile(n.PIDFile())
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeouts.StopTimeout)
	defer cancel()

	var probes []*logProbe
	if opts.WaitOtherNotice {
		for _, peer := range n.cluster.Peers(n.cfg.Name) {
			if !peer.IsRunning() {
				continue
			}
			probe := &logProbe{
				name:     peer.Name() + " sees " + n.cfg.Name + " DOWN",
				watcher:  peer.LogWatcher(),
				patterns: []string{deadPattern(n.Address())},
			}
			if err := probe.Arm(); err != nil {
				logger.WarnF(ctx, "[Node] %s: cannot watch %s: %v", n.cfg.Name, peer.Name(), err)
				continue
			}
			probes = append(probes, probe)
		}
	}

	stoppingAt := time.Now()
	n.transition(ctx, StateStopping, pid, nil, stoppingAt)

	exited, err := process.Terminate(ctx, pid, process.TerminateOptions{
		Gently:          opts.Gently,
		Wait:            opts.Wait,
		GracefulTimeout: n.timeouts.GracefulTimeout,
		PollInterval:    n.timeouts.PollInterval,
	})
	if err != nil {
		// The process could not be signalled and is still alive
		n.transition(ctx, StateRunning, pid, err, stoppingAt)
		span.RecordError(err)
		return false, err
	}

	for _, probe := range probes {
		if err := probe.Await(ctx); err != nil {
			logger.WarnF(ctx, "[Node] %s: %s: %v", n.cfg.Name, probe.Name(), err)
		}
	}

	if opts.Wait && !exited {
		err := nodeerr.Newf(nodeerr.CodeStopFailed, "%s is still running after %v", n.cfg.Name, n.timeouts.StopTimeout).
			WithContext("pid", pid)
		n.transition(ctx, StateRunning, pid, err, stoppingAt)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	// The pid file only goes once the process is gone; an unwaited gentle
	// stop may still be shutting down.
	if exited || !process.IsAlive(pid) {
		_ = process.RemovePIDFile(n.PIDFile())
	}
	n.transition(ctx, StateStopped, pid, nil, stoppingAt)
	return true, nil
}
