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

// Package agent supervises the datastax monitoring agent that runs next to a
// node. The agent is only managed when its directory exists in the node's
// working directory.
// agent 包管理与节点一同运行的 datastax 监控 Agent。只有当节点工作目录中存在 Agent 目录时才会对其进行管理。
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mike-tr-adamson/ccm/internal/layout"
	"github.com/mike-tr-adamson/ccm/internal/logger"
	"github.com/mike-tr-adamson/ccm/internal/nodeerr"
	"github.com/mike-tr-adamson/ccm/internal/process"
	"gopkg.in/yaml.v3"
)

const (
	// DirName is the agent directory under both the install root and the node path.
	// DirName 是安装目录和节点目录下的 Agent 目录名。
	DirName = "datastax-agent"

	binaryName  = "datastax-agent"
	pidFileName = "datastax-agent.pid"
	stompHost   = "127.0.0.1"
)

// log4jProperties is rewritten on every start.
var log4jProperties = strings.Join([]string{
	"log4j.rootLogger=INFO,R",
	"log4j.logger.org.apache.http=OFF",
	"log4j.logger.org.eclipse.jetty.util.log=WARN,R",
	"log4j.appender.R=org.apache.log4j.RollingFileAppender",
	"log4j.appender.R.maxFileSize=20MB",
	"log4j.appender.R.maxBackupIndex=5",
	"log4j.appender.R.layout=org.apache.log4j.PatternLayout",
	"log4j.appender.R.layout.ConversionPattern=%5p [%t] %d{ISO8601} %m%n",
	"log4j.appender.R.File=./log/agent.log",
}, "\n") + "\n"

// AddressInfo is what the agent needs to know to reach its node.
// AddressInfo 是 Agent 连接其节点所需的信息。
type AddressInfo struct {
	// Address is the node's thrift interface host
	// Address 是节点 thrift 接口的主机地址
	Address    string
	ThriftPort int
	JMXPort    int
}

// addressFile is conf/address.yaml; field order is the file's key order.
type addressFile struct {
	StompInterface           string `yaml:"stomp_interface"`
	LocalInterface           string `yaml:"local_interface"`
	AgentRPCInterface        string `yaml:"agent_rpc_interface"`
	AgentRPCBroadcastAddress string `yaml:"agent_rpc_broadcast_address"`
	CassandraConf            string `yaml:"cassandra_conf"`
	CassandraInstall         string `yaml:"cassandra_install"`
	CassandraLogs            string `yaml:"cassandra_logs"`
	ThriftPort               int    `yaml:"thrift_port"`
	JMXPort                  int    `yaml:"jmx_port"`
}

// Supervisor starts and stops the agent of one node.
// Supervisor 启动和停止单个节点的 Agent。
type Supervisor struct {
	nodePath   string
	installDir string
	info       AddressInfo
	fs         layout.Local
}

// New creates a Supervisor for the node living in nodePath.
// New 为位于 nodePath 的节点创建 Supervisor。
func New(nodePath, installDir string, info AddressInfo) *Supervisor {
	return &Supervisor{
		nodePath:   nodePath,
		installDir: installDir,
		info:       info,
	}
}

// Dir returns <node>/datastax-agent.
func (s *Supervisor) Dir() string {
	return filepath.Join(s.nodePath, DirName)
}

// PIDFile returns the path of the agent pid file.
func (s *Supervisor) PIDFile() string {
	return filepath.Join(s.Dir(), pidFileName)
}

// Enabled reports whether agent management applies to this node.
// Enabled 报告 Agent 管理是否适用于该节点。
func (s *Supervisor) Enabled() bool {
	info, err := os.Stat(s.Dir())
	return err == nil && info.IsDir()
}

// PID returns the pid of the running agent, or 0.
func (s *Supervisor) PID() int {
	if !s.Enabled() {
		return 0
	}
	return process.RunningPID(s.PIDFile())
}

// CopyFromInstall copies <install>/datastax-agent into the node when the
// install ships one and the node does not have it yet. It reports whether a
// copy was made.
// CopyFromInstall 在安装目录提供 Agent 且节点尚无 Agent 时复制到节点目录，返回是否执行了复制。
func (s *Supervisor) CopyFromInstall() (bool, error) {
	source := filepath.Join(s.installDir, DirName)
	if !s.fs.Exists(source) || s.fs.Exists(s.Dir()) {
		return false, nil
	}
	if err := s.fs.CopyTree(source, s.Dir()); err != nil {
		return false, nodeerr.New(nodeerr.CodeConfigIO, "failed to copy agent from install").
			WithContext("source", source).
			WithContext("target", s.Dir()).
			WithCause(err)
	}
	return true, nil
}

// Start writes the agent config files and spawns the agent detached. It does
// not wait for the agent to become ready.
// Start 写入 Agent 配置文件并以分离方式启动 Agent，不等待其就绪。
func (s *Supervisor) Start(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	if pid := s.PID(); pid > 0 {
		logger.InfoF(ctx, "[Agent] Agent for %s already running with pid %d", s.nodePath, pid)
		return nil
	}

	if err := s.writeAddressYAML(); err != nil {
		return err
	}
	if err := s.writeLog4jProperties(); err != nil {
		return err
	}

	bin := filepath.Join(s.Dir(), "bin", layout.BinaryName(binaryName))
	cmd := exec.Command(bin)
	cmd.Dir = s.Dir()
	// Output is discarded
	// 输出被丢弃
	cmd.Stdout = nil
	cmd.Stderr = nil
	process.Detach(cmd)
	if err := cmd.Start(); err != nil {
		return nodeerr.New(nodeerr.CodeStartFailed, "failed to start datastax-agent").
			WithContext("binary", bin).
			WithCause(err)
	}
	go func() { _ = cmd.Wait() }()

	logger.InfoF(ctx, "[Agent] Started datastax-agent for %s (launcher pid %d)", s.nodePath, cmd.Process.Pid)
	return nil
}

// Stop kills the agent recorded in the pid file and removes the file. A
// missing pid file means the agent is already stopped. It reports whether a
// kill was attempted.
// Stop 终止 pid 文件中记录的 Agent 并删除该文件。pid 文件不存在表示 Agent 已停止。返回是否尝试了终止。
func (s *Supervisor) Stop(ctx context.Context) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	pid, err := process.ReadPIDFile(s.PIDFile())
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err == nil {
		// Signal errors are ignored, the process may already be gone
		// 忽略信号错误，进程可能已经退出
		_ = process.SendSignal(pid, syscall.SIGKILL)
		logger.InfoF(ctx, "[Agent] Killed datastax-agent pid %d for %s", pid, s.nodePath)
	} else {
		logger.WarnF(ctx, "[Agent] Ignoring unreadable agent pid file: %v", err)
	}

	if err := process.RemovePIDFile(s.PIDFile()); err != nil {
		return true, nodeerr.New(nodeerr.CodeConfigIO, "failed to remove agent pid file").
			WithContext("pid_file", s.PIDFile()).
			WithCause(err)
	}
	return true, nil
}

// writeAddressYAML creates conf/address.yaml unless it already exists, so
// edits made by hand survive restarts.
func (s *Supervisor) writeAddressYAML() error {
	confDir := filepath.Join(s.Dir(), "conf")
	if err := s.fs.EnsureDir(confDir); err != nil {
		return nodeerr.New(nodeerr.CodeConfigIO, "failed to create agent conf directory").WithCause(err)
	}
	path := filepath.Join(confDir, "address.yaml")

	data, err := yaml.Marshal(addressFile{
		StompInterface:           stompHost,
		LocalInterface:           s.info.Address,
		AgentRPCInterface:        s.info.Address,
		AgentRPCBroadcastAddress: s.info.Address,
		CassandraConf:            filepath.Join(s.nodePath, "resources", "cassandra", "conf", "cassandra.yaml"),
		CassandraInstall:         s.nodePath,
		CassandraLogs:            filepath.Join(s.nodePath, "logs"),
		ThriftPort:               s.info.ThriftPort,
		JMXPort:                  s.info.JMXPort,
	})
	if err != nil {
		return fmt.Errorf("failed to encode address.yaml: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	if err != nil {
		return nodeerr.New(nodeerr.CodeConfigIO, "failed to create address.yaml").
			WithContext("path", path).
			WithCause(err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return nodeerr.New(nodeerr.CodeConfigIO, "failed to write address.yaml").
			WithContext("path", path).
			WithCause(err)
	}
	return nil
}

func (s *Supervisor) writeLog4jProperties() error {
	path := filepath.Join(s.Dir(), "conf", "log4j.properties")
	if err := os.WriteFile(path, []byte(log4jProperties), 0644); err != nil {
		return nodeerr.New(nodeerr.CodeConfigIO, "failed to write log4j.properties").
			WithContext("path", path).
			WithCause(err)
	}
	return nil
}
