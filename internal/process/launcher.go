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

package process

import (
	"bufio"
	"context"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mike-tr-adamson/ccm/internal/logger"
	"github.com/mike-tr-adamson/ccm/internal/nodeerr"
)

// DefaultNoWaitGrace is how long a no-wait start pauses before reading the pid file.
// DefaultNoWaitGrace 是不等待模式下读取 pid 文件前的暂停时间。
const DefaultNoWaitGrace = 2 * time.Second

// Probe is a readiness condition checked after the process is up. Arm runs
// before the process is spawned so that only output produced by this launch
// can satisfy Await.
// Probe 是进程启动后检查的就绪条件。Arm 在进程启动前执行，保证只有本次启动产生的输出能满足 Await。
type Probe interface {
	Name() string
	Arm() error
	Await(ctx context.Context) error
}

// LaunchSpec describes one start of a daemonising launch script.
// LaunchSpec 描述一次守护化启动脚本的启动。
type LaunchSpec struct {
	// Name identifies the process in logs and errors
	// Name 在日志和错误中标识该进程
	Name string

	Command string
	Args    []string
	Env     []string
	Dir     string

	// PIDFile is written by the launched process; it is the only record of the daemon pid
	// PIDFile 由被启动的进程写入，是守护进程 pid 的唯一记录
	PIDFile string

	// Endpoints must all be bindable unless SkipPortCheck is set
	// 除非设置了 SkipPortCheck，否则 Endpoints 必须全部可绑定
	Endpoints     []Endpoint
	SkipPortCheck bool

	// Prepare runs after preconditions pass and before the spawn
	// Prepare 在前置条件通过之后、启动进程之前执行
	Prepare func() error

	// NoWait skips draining stdout and pauses for the no-wait grace instead
	// NoWait 不读取标准输出直到结束，而是暂停一段固定时间
	NoWait  bool
	Verbose bool

	Probes []Probe
}

// Handle is a started process.
// Handle 表示已启动的进程。
type Handle struct {
	PID       int
	StartedAt time.Time
	Output    string
}

// Alive reports whether the process is still running.
func (h *Handle) Alive() bool {
	return h != nil && IsAlive(h.PID)
}

// Launcher starts daemon processes and checks their readiness.
// Launcher 启动守护进程并检查其就绪状态。
type Launcher struct {
	noWaitGrace  time.Duration
	logTailLines int
}

// LauncherOption configures a Launcher.
type LauncherOption func(*Launcher)

// WithNoWaitGrace overrides DefaultNoWaitGrace.
func WithNoWaitGrace(d time.Duration) LauncherOption {
	return func(l *Launcher) {
		if d > 0 {
			l.noWaitGrace = d
		}
	}
}

// NewLauncher creates a new Launcher
// NewLauncher 创建新的启动器
func NewLauncher(opts ...LauncherOption) *Launcher {
	l := &Launcher{
		noWaitGrace:  DefaultNoWaitGrace,
		logTailLines: DefaultLogTailLines,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches spec and returns once the wait policy and every probe are
// satisfied. ctx bounds the whole readiness phase. A failed start never leaves
// a pid file behind.
// Start 启动进程，在等待策略和所有探针满足后返回。ctx 限定整个就绪阶段。启动失败时不会遗留 pid 文件。
func (l *Launcher) Start(ctx context.Context, spec *LaunchSpec) (*Handle, error) {
	if pid := RunningPID(spec.PIDFile); pid > 0 {
		return nil, nodeerr.Newf(nodeerr.CodeAlreadyRunning, "%s is already running", spec.Name).
			WithContext("pid", pid)
	}
	if !spec.SkipPortCheck {
		if err := CheckAvailable(spec.Endpoints...); err != nil {
			return nil, err
		}
	}

	if spec.Prepare != nil {
		if err := spec.Prepare(); err != nil {
			return nil, err
		}
	}
	for _, probe := range spec.Probes {
		if err := probe.Arm(); err != nil {
			return nil, startFailed(spec, "failed to prepare readiness check "+probe.Name(), err, "")
		}
	}

	// A stale pid file from a crashed run must not be mistaken for this launch.
	_ = RemovePIDFile(spec.PIDFile)

	output := newTailBuffer(l.logTailLines)
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Env = spec.Env
	cmd.Dir = spec.Dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, startFailed(spec, "failed to open stdout", err, "")
	}
	// Both streams share one pipe, so EOF means the daemon closed them both.
	cmd.Stderr = cmd.Stdout

	logger.InfoF(ctx, "[Process] Starting %s: %s %s", spec.Name, spec.Command, strings.Join(spec.Args, " "))
	startedAt := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, startFailed(spec, "failed to execute launch script", err, "")
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			output.WriteLine(line)
			if spec.Verbose {
				logger.InfoF(ctx, "[%s] %s", spec.Name, line)
			}
		}
	}()
	go func() {
		// Wait may only run once stdout has been fully read.
		<-drained
		_ = cmd.Wait()
	}()

	if spec.NoWait {
		sleepCtx(ctx, l.noWaitGrace)
	} else {
		// The daemon closes its stdout once it has finished starting up.
		select {
		case <-drained:
		case <-ctx.Done():
			logger.WarnF(ctx, "[Process] %s did not close its output before the start deadline", spec.Name)
		}
	}

	pid, err := ReadPIDFile(spec.PIDFile)
	if err != nil || !IsAlive(pid) {
		_ = RemovePIDFile(spec.PIDFile)
		e := startFailed(spec, spec.Name+" is not running after launch", err, output.String())
		if pid > 0 {
			e.WithContext("pid", pid)
		}
		return nil, e
	}

	for _, probe := range spec.Probes {
		if err := probe.Await(ctx); err != nil {
			// Leave nothing half started behind
			// 不留下半启动的进程
			_ = SendSignal(pid, syscall.SIGKILL)
			_ = RemovePIDFile(spec.PIDFile)
			return nil, startFailed(spec, "readiness check "+probe.Name()+" failed", err, output.String()).
				WithContext("pid", pid)
		}
	}

	logger.InfoF(ctx, "[Process] %s started with pid %d in %v", spec.Name, pid, time.Since(startedAt).Round(time.Millisecond))
	return &Handle{PID: pid, StartedAt: startedAt, Output: output.String()}, nil
}

func startFailed(spec *LaunchSpec, msg string, cause error, output string) *nodeerr.Error {
	e := nodeerr.New(nodeerr.CodeStartFailed, msg).
		WithContext("name", spec.Name).
		WithOutput(output)
	if cause != nil {
		e.WithCause(cause)
	}
	if spec.PIDFile != "" {
		e.WithContext("pid_file", spec.PIDFile)
	}
	return e
}

// tailBuffer keeps the last N lines written to it.
// tailBuffer 保留写入的最后 N 行。
type tailBuffer struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) WriteLine(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appendLocked(line)
}

func (b *tailBuffer) appendLocked(line string) {
	b.lines = append(b.lines, strings.TrimRight(line, "\r"))
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}
