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
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mike-tr-adamson/ccm/internal/layout"
	"github.com/mike-tr-adamson/ccm/internal/logger"
	"github.com/mike-tr-adamson/ccm/internal/nodeerr"
	"github.com/mike-tr-adamson/ccm/internal/otel_trace"
	"github.com/mike-tr-adamson/ccm/internal/process"
	"go.opentelemetry.io/otel/attribute"
)

// Stdio wires a tool's standard streams. Nil streams fall back to the
// current process's.
// Stdio 连接工具的标准输入输出流，为 nil 时使用当前进程的流。
type Stdio struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// RunTool runs <install>/resources/cassandra/bin/<name> with args, such as
// nodetool or cqlsh, and returns its exit code.
// RunTool 运行 <install>/resources/cassandra/bin/<name>（如 nodetool、cqlsh）并返回退出码。
func (n *Node) RunTool(ctx context.Context, name string, args []string, stdio Stdio) (int, error) {
	if name == "" || filepath.Base(name) != name {
		return -1, nodeerr.Newf(nodeerr.CodePrecondition, "invalid tool name %q", name)
	}
	bin := filepath.Join(n.cfg.InstallDir, "resources", "cassandra", "bin", layout.BinaryName(name))
	return n.runTool(ctx, name, bin, args, n.BaseEnvironment(), stdio)
}

// DseTool runs dsetool against this node; cmd is split on whitespace.
// DseTool 针对本节点运行 dsetool，cmd 按空白拆分。
func (n *Node) DseTool(ctx context.Context, cmd string, stdio Stdio) (int, error) {
	bin := filepath.Join(n.cfg.InstallDir, "bin", layout.BinaryName("dsetool"))
	args := append([]string{"-h", n.Address(), "-j", strconv.Itoa(n.cfg.JMXPort)}, strings.Fields(cmd)...)
	return n.runTool(ctx, "dsetool", bin, args, n.BaseEnvironment(), stdio)
}

// Hadoop runs `dse hadoop` with args.
func (n *Node) Hadoop(ctx context.Context, args []string, stdio Stdio) (int, error) {
	return n.dseVerb(ctx, "hadoop", args, stdio)
}

// Hive runs `dse hive` with args.
func (n *Node) Hive(ctx context.Context, args []string, stdio Stdio) (int, error) {
	return n.dseVerb(ctx, "hive", args, stdio)
}

// Pig runs `dse pig` with args.
func (n *Node) Pig(ctx context.Context, args []string, stdio Stdio) (int, error) {
	return n.dseVerb(ctx, "pig", args, stdio)
}

// Sqoop runs `dse sqoop` with args.
func (n *Node) Sqoop(ctx context.Context, args []string, stdio Stdio) (int, error) {
	return n.dseVerb(ctx, "sqoop", args, stdio)
}

// Spark runs `dse spark` with args.
func (n *Node) Spark(ctx context.Context, args []string, stdio Stdio) (int, error) {
	return n.dseVerb(ctx, "spark", args, stdio)
}

func (n *Node) dseVerb(ctx context.Context, verb string, args []string, stdio Stdio) (int, error) {
	bin := filepath.Join(n.cfg.InstallDir, "bin", layout.BinaryName("dse"))
	return n.runTool(ctx, verb, bin, append([]string{verb}, args...), n.BaseEnvironment(), stdio)
}

// Exec dispatches a tool by name: dsetool, the dse verbs and the kerberos
// tools go to their own methods, any other name to RunTool. dsetool takes the
// args as its command words; kinit takes exactly one principal.
// Exec 按名称分派工具：dsetool、dse 子命令和 kerberos 工具调用各自的方法，其他名称交给 RunTool。
func (n *Node) Exec(ctx context.Context, tool string, args []string, stdio Stdio) (int, error) {
	switch tool {
	case "dsetool":
		return n.DseTool(ctx, strings.Join(args, " "), stdio)
	case "hadoop":
		return n.Hadoop(ctx, args, stdio)
	case "hive":
		return n.Hive(ctx, args, stdio)
	case "pig":
		return n.Pig(ctx, args, stdio)
	case "sqoop":
		return n.Sqoop(ctx, args, stdio)
	case "spark":
		return n.Spark(ctx, args, stdio)
	case "kinit":
		if len(args) != 1 {
			return -1, nodeerr.New(nodeerr.CodePrecondition, "kinit takes exactly one principal")
		}
		return n.Kinit(ctx, args[0], stdio)
	case "klist":
		return n.Klist(ctx, stdio)
	case "kdestroy":
		return n.Kdestroy(ctx, stdio)
	default:
		return n.RunTool(ctx, tool, args, stdio)
	}
}

// Kinit obtains a ticket for principal into <node>/krb5_ticket.
// Kinit 为 principal 获取票据并保存到 <node>/krb5_ticket。
func (n *Node) Kinit(ctx context.Context, principal string, stdio Stdio) (int, error) {
	return n.kerberosTool(ctx, "kinit", []string{principal}, stdio)
}

// Klist lists the node's kerberos tickets.
func (n *Node) Klist(ctx context.Context, stdio Stdio) (int, error) {
	return n.kerberosTool(ctx, "klist", nil, stdio)
}

// Kdestroy destroys the node's kerberos tickets.
func (n *Node) Kdestroy(ctx context.Context, stdio Stdio) (int, error) {
	return n.kerberosTool(ctx, "kdestroy", nil, stdio)
}

// kerberosTool fails before running anything unless the cluster uses kerberos.
func (n *Node) kerberosTool(ctx context.Context, name string, args []string, stdio Stdio) (int, error) {
	if n.cluster.AuthMode() != AuthKerberos {
		return -1, nodeerr.Newf(nodeerr.CodePrecondition, "%s can only be run if kerberos authentication is enabled", name).
			WithContext("node", n.cfg.Name).
			WithContext("authn", string(n.cluster.AuthMode()))
	}
	return n.runTool(ctx, name, name, args, n.kerberosEnvironment(), stdio)
}

// runTool runs a foreground command and reports it as a tool event. The exit
// code is returned as is.
// runTool 运行前台命令并作为工具事件上报，退出码原样返回。
func (n *Node) runTool(ctx context.Context, tool, bin string, args []string, env process.Environment, stdio Stdio) (int, error) {
	ctx, span := otel_trace.Start(ctx, "node.RunTool")
	defer span.End()
	span.SetAttributes(attribute.String("node.name", n.cfg.Name), attribute.String("tool.name", tool))

	logger.DebugF(ctx, "[Node] %s: running %s %s", n.cfg.Name, bin, strings.Join(args, " "))
	start := time.Now()
	code, err := process.RunTool(ctx, process.ToolCommand{
		Path:   bin,
		Args:   args,
		Env:    env.Environ(),
		Stdin:  stdio.In,
		Stdout: stdio.Out,
		Stderr: stdio.Err,
	})
	span.SetAttributes(attribute.Int("tool.exit_code", code))
	if err != nil {
		span.RecordError(err)
	}

	n.emit(ctx, Event{
		Kind:     EventTool,
		Node:     n.cfg.Name,
		Tool:     tool,
		ExitCode: code,
		Err:      err,
		Duration: time.Since(start),
	})
	return code, err
}
