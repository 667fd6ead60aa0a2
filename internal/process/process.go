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

// Package process launches, probes and terminates OS processes tracked by pid files.
// process 包负责启动、探测和终止通过 pid 文件跟踪的操作系统进程。
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mike-tr-adamson/ccm/internal/nodeerr"
)

// Default configuration values
// 默认配置值
const (
	// DefaultGracefulTimeout is the default timeout for graceful shutdown (30 seconds)
	// DefaultGracefulTimeout 是优雅关闭的默认超时时间（30秒）
	DefaultGracefulTimeout = 30 * time.Second

	// DefaultPollInterval is how often liveness is re-checked while waiting
	// DefaultPollInterval 是等待期间重新检查存活状态的间隔
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultLogTailLines is the default number of output lines kept for failure reports
	// DefaultLogTailLines 是失败报告中保留的默认输出行数
	DefaultLogTailLines = 100

	// signalSettle is how long an unwaited stop pauses before re-checking liveness
	signalSettle = 100 * time.Millisecond
)

// IsAlive checks if a process with the given PID is alive
// IsAlive 检查给定 PID 的进程是否存活
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	if runtime.GOOS == "windows" {
		return checkProcessWindows(pid)
	}

	// On Unix, FindProcess always succeeds, so we need to send signal 0 to check
	// 在 Unix 上，FindProcess 总是成功，所以我们需要发送信号 0 来检查
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return false
	}
	return !isZombie(pid)
}

// isZombie reports an exited but unreaped process, which still answers signal 0.
// isZombie 判断进程是否已退出但未被回收（仍会响应信号 0）。
func isZombie(pid int) bool {
	if runtime.GOOS != "linux" {
		return false
	}
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	// The state field follows the parenthesised command name.
	idx := bytes.LastIndexByte(data, ')')
	if idx < 0 || idx+2 >= len(data) {
		return false
	}
	return data[idx+2] == 'Z'
}

// checkProcessWindows checks if a process is alive on Windows
// checkProcessWindows 在 Windows 上检查进程是否存活
func checkProcessWindows(pid int) bool {
	cmd := exec.Command("tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/NH")
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(output), strconv.Itoa(pid))
}

// SendSignal sends a signal to a process
// SendSignal 向进程发送信号
func SendSignal(pid int, sig syscall.Signal) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}

	if runtime.GOOS == "windows" {
		// On Windows, we can only kill the process
		// 在 Windows 上，我们只能终止进程
		if sig == syscall.SIGKILL || sig == syscall.SIGTERM {
			return process.Kill()
		}
		return nil
	}

	return process.Signal(sig)
}

// ReadPIDFile returns the pid stored in the first line of path.
// ReadPIDFile 返回 path 第一行中保存的 pid。
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	line := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])
	pid, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("invalid pid file %s: %w", path, err)
	}
	return pid, nil
}

// RemovePIDFile deletes path; a missing file is not an error.
// RemovePIDFile 删除 pid 文件，文件不存在不视为错误。
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// RunningPID returns the live pid recorded in path, or 0.
// RunningPID 返回 path 中记录的存活 pid，否则返回 0。
func RunningPID(path string) int {
	pid, err := ReadPIDFile(path)
	if err != nil || !IsAlive(pid) {
		return 0
	}
	return pid
}

// TerminateOptions controls how a process is stopped.
// TerminateOptions 控制进程的停止方式。
type TerminateOptions struct {
	// Gently sends SIGTERM first; otherwise SIGKILL is sent straight away.
	// Gently 为 true 时先发送 SIGTERM，否则直接发送 SIGKILL。
	Gently bool

	// Wait blocks until the process exits or ctx ends.
	// Wait 阻塞直到进程退出或 ctx 结束。
	Wait bool

	// GracefulTimeout bounds the SIGTERM phase before escalating to SIGKILL.
	GracefulTimeout time.Duration

	PollInterval time.Duration
}

// Terminate signals pid and reports whether it has exited.
// Terminate 向 pid 发送信号并报告其是否已退出。
func Terminate(ctx context.Context, pid int, opts TerminateOptions) (bool, error) {
	if !IsAlive(pid) {
		return true, nil
	}
	if opts.GracefulTimeout <= 0 {
		opts.GracefulTimeout = DefaultGracefulTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	sig := syscall.SIGKILL
	if opts.Gently {
		sig = syscall.SIGTERM
	}
	if err := SendSignal(pid, sig); err != nil {
		if !IsAlive(pid) {
			return true, nil
		}
		return false, nodeerr.Newf(nodeerr.CodeProcessSignal, "failed to send %v to process %d", sig, pid).
			WithContext("pid", pid).
			WithCause(err)
	}

	if !opts.Wait {
		sleepCtx(ctx, signalSettle)
		return !IsAlive(pid), nil
	}

	if opts.Gently {
		graceCtx, cancel := context.WithTimeout(ctx, opts.GracefulTimeout)
		exited := waitExit(graceCtx, pid, opts.PollInterval)
		cancel()
		if exited {
			return true, nil
		}
		if ctx.Err() != nil {
			return false, nil
		}
		// Force kill after the graceful window / 优雅关闭超时后强制终止
		_ = SendSignal(pid, syscall.SIGKILL)
	}
	return waitExit(ctx, pid, opts.PollInterval), nil
}

// WaitExit blocks until pid is gone or ctx ends.
// WaitExit 阻塞直到 pid 退出或 ctx 结束。
func WaitExit(ctx context.Context, pid int, poll time.Duration) bool {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return waitExit(ctx, pid, poll)
}

func waitExit(ctx context.Context, pid int, poll time.Duration) bool {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		if !IsAlive(pid) {
			return true
		}
		select {
		case <-ctx.Done():
			return !IsAlive(pid)
		case <-ticker.C:
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
