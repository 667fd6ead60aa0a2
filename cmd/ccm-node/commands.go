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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mike-tr-adamson/ccm/internal/confmerge"
	"github.com/mike-tr-adamson/ccm/internal/db/migrator"
	"github.com/mike-tr-adamson/ccm/internal/journal"
	"github.com/mike-tr-adamson/ccm/internal/logger"
	"github.com/mike-tr-adamson/ccm/internal/node"
	"github.com/mike-tr-adamson/ccm/internal/router"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	startOpts     = node.DefaultStartOptions()
	noJoinRing    bool
	stopNoWait    bool
	stopOther     bool
	stopNotGently bool
	unsetKeys     []string
	historySize   int
	historyKind   string
	historyTool   string
	serveAddr     string
)

// addNodeCommands registers every node subcommand on root.
// addNodeCommands 在根命令上注册所有节点子命令。
func addNodeCommands(root *cobra.Command) {
	startCmd.Flags().BoolVar(&startOpts.NoWait, "no-wait", false, "return shortly after launching instead of waiting for the launch output")
	startCmd.Flags().BoolVarP(&startOpts.Verbose, "verbose", "v", false, "print the launch output")
	startCmd.Flags().BoolVar(&startOpts.WaitOtherNotice, "wait-other-notice", false, "wait until running peers see the node UP")
	startCmd.Flags().BoolVar(&startOpts.WaitForBinaryProto, "wait-for-binary-proto", false, "wait until the node serves CQL clients")
	startCmd.Flags().BoolVar(&noJoinRing, "no-join-ring", false, "start without joining the ring")
	startCmd.Flags().StringVar(&startOpts.ReplaceToken, "replace-token", "", "token of the node being replaced")
	startCmd.Flags().StringVar(&startOpts.ReplaceAddress, "replace-address", "", "address of the node being replaced")
	startCmd.Flags().StringArrayVar(&startOpts.JVMArgs, "jvm-arg", nil, "extra JVM argument, repeatable")
	startCmd.Flags().BoolVar(&startOpts.UseJNA, "use-jna", false, "do not disable JNA")
	startCmd.Flags().BoolVar(&startOpts.Debug, "debug", false, "enable the remote debugger")
	startCmd.Flags().DurationVar(&startOpts.Timeout, "timeout", 0, "override node.start_timeout")

	stopCmd.Flags().BoolVar(&stopNoWait, "no-wait", false, "do not wait for the process to exit")
	stopCmd.Flags().BoolVar(&stopOther, "wait-other-notice", false, "wait until running peers see the node DOWN")
	stopCmd.Flags().BoolVar(&stopNotGently, "not-gently", false, "kill the process with SIGKILL")

	setOptionCmd.Flags().StringArrayVar(&unsetKeys, "unset", nil, "remove a key from dse.yaml, repeatable")

	historyCmd.Flags().IntVar(&historySize, "limit", 20, "number of events to show")
	historyCmd.Flags().StringVar(&historyKind, "kind", "", "only show transition or tool events")
	historyCmd.Flags().StringVar(&historyTool, "tool", "", "only show runs of this tool")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default api.addr)")

	toolCmd.Flags().SetInterspersed(false)
	dsetoolCmd.Flags().SetInterspersed(false)

	root.AddCommand(startCmd, stopCmd, statusCmd, importConfigCmd, setWorkloadCmd, setOptionCmd,
		setXMLOptionCmd, toolCmd, dsetoolCmd, kinitCmd, klistCmd, kdestroyCmd, historyCmd)
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the node / 启动节点",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		n, err := a.target()
		if err != nil {
			return err
		}
		opts := startOpts
		opts.JoinRing = !noJoinRing
		handle, err := n.Start(ctx, opts)
		if err != nil {
			return err
		}
		if opts.Verbose && handle.Output != "" {
			fmt.Fprint(a.stdio.Out, handle.Output)
		}
		fmt.Fprintf(a.stdio.Out, "%s started (pid %d)\n", n.Name(), handle.PID)
		return nil
	}),
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the node / 停止节点",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		n, err := a.target()
		if err != nil {
			return err
		}
		stopped, err := n.Stop(ctx, node.StopOptions{
			Wait:            !stopNoWait,
			WaitOtherNotice: stopOther,
			Gently:          !stopNotGently,
		})
		if err != nil {
			return err
		}
		if stopped {
			fmt.Fprintf(a.stdio.Out, "%s stopped\n", n.Name())
		} else {
			fmt.Fprintf(a.stdio.Out, "%s was not running\n", n.Name())
		}
		return nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show node status / 显示节点状态",
	Args:  cobra.NoArgs,
	RunE: withApp(func(_ context.Context, a *app, _ []string) error {
		nodes := a.cluster.Nodes()
		if nodeName != "" {
			n, err := a.cluster.Node(nodeName)
			if err != nil {
				return err
			}
			nodes = []*node.Node{n}
		}
		w := tabwriter.NewWriter(a.stdio.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATE\tPID\tAGENT\tADDRESS\tWORKLOADS")
		for _, n := range nodes {
			s := n.Status()
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", s.Name, s.State, pidString(s.PID), pidString(s.AgentPID),
				s.Address, workloadString(s.Workloads))
		}
		return w.Flush()
	}),
}

var importConfigCmd = &cobra.Command{
	Use:   "import-config",
	Short: "Refresh dse.yaml from the install and re-apply overrides / 从安装目录刷新 dse.yaml 并重新应用覆盖项",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		n, err := a.target()
		if err != nil {
			return err
		}
		return n.ImportConfig(ctx)
	}),
}

var setWorkloadCmd = &cobra.Command{
	Use:   "set-workload [workload...]",
	Short: "Replace the node's workloads / 替换节点工作负载",
	Long:  "Replace the node's workloads (cassandra, solr, hadoop, spark, cfs). No argument clears them.",
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		n, err := a.target()
		if err != nil {
			return err
		}
		workloads := make([]node.Workload, len(args))
		for i, arg := range args {
			workloads[i] = node.Workload(arg)
		}
		return n.SetWorkload(ctx, workloads)
	}),
}

var setOptionCmd = &cobra.Command{
	Use:   "set-option [key=value...]",
	Short: "Override dse.yaml options / 覆盖 dse.yaml 选项",
	Long: `Override dse.yaml options on the node. Values are parsed as YAML, so
"authentication_options={enabled: true}" sets a nested document.
Use --unset to remove a key.`,
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		n, err := a.target()
		if err != nil {
			return err
		}
		overrides, err := parseOverrides(args, unsetKeys)
		if err != nil {
			return err
		}
		if len(overrides) == 0 {
			return fmt.Errorf("nothing to set")
		}
		return n.SetConfigOptions(ctx, overrides)
	}),
}

var setXMLOptionCmd = &cobra.Command{
	Use:   "set-xml-option <product> <file> [name=value...]",
	Short: "Set properties in a Hadoop-style XML config file / 设置 XML 配置文件中的属性",
	Long:  "Set properties in <node>/resources/<product>/conf/<file>. An empty value removes the property.",
	Args:  cobra.MinimumNArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		n, err := a.target()
		if err != nil {
			return err
		}
		values := make(map[string]string, len(args)-2)
		for _, kv := range args[2:] {
			key, value, ok := strings.Cut(kv, "=")
			if !ok || key == "" {
				return fmt.Errorf("invalid property %q, expected name=value", kv)
			}
			values[key] = value
		}
		return n.SetXMLConfigurationOptions(ctx, args[0], args[1], values)
	}),
}

var toolCmd = &cobra.Command{
	Use:   "tool <name> [args...]",
	Short: "Run a tool against the node, e.g. nodetool or cqlsh / 针对节点运行工具",
	Args:  cobra.MinimumNArgs(1),
	RunE:  withApp(runTool),
}

var dsetoolCmd = &cobra.Command{
	Use:   "dsetool [command...]",
	Short: "Run dsetool against the node / 针对节点运行 dsetool",
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		return runTool(ctx, a, append([]string{"dsetool"}, args...))
	}),
}

var kinitCmd = &cobra.Command{
	Use:   "kinit <principal>",
	Short: "Obtain a kerberos ticket into the node's cache / 获取 kerberos 票据",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		return runTool(ctx, a, append([]string{"kinit"}, args...))
	}),
}

var klistCmd = &cobra.Command{
	Use:   "klist",
	Short: "List the node's kerberos tickets / 列出 kerberos 票据",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		return runTool(ctx, a, []string{"klist"})
	}),
}

var kdestroyCmd = &cobra.Command{
	Use:   "kdestroy",
	Short: "Destroy the node's kerberos tickets / 销毁 kerberos 票据",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		return runTool(ctx, a, []string{"kdestroy"})
	}),
}

// runTool runs args[0] with the rest of args on the terminal and turns a
// non-zero exit into an exitCodeError.
func runTool(ctx context.Context, a *app, args []string) error {
	n, err := a.target()
	if err != nil {
		return err
	}
	code, err := n.Exec(ctx, args[0], args[1:], a.stdio)
	if err != nil {
		return err
	}
	if code != 0 {
		return &exitCodeError{code: code}
	}
	return nil
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded lifecycle and tool events / 显示已记录的事件",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		if a.journal == nil {
			return fmt.Errorf("journal is disabled (journal.enabled=false)")
		}
		filter := &journal.EventFilter{
			Cluster:  a.cluster.Name(),
			Node:     nodeName,
			Kind:     historyKind,
			Tool:     historyTool,
			Page:     1,
			PageSize: historySize,
		}
		if err := filter.Validate(); err != nil {
			return err
		}
		events, total, err := a.journal.List(ctx, filter)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(a.stdio.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tNODE\tKIND\tDETAIL\tDURATION\tERROR")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", e.CreatedAt.Local().Format(time.DateTime), e.Node, e.Kind,
				eventDetail(e), time.Duration(e.DurationMs)*time.Millisecond, e.Error)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if total > int64(len(events)) {
			fmt.Fprintf(a.stdio.Out, "(%d of %d events)\n", len(events), total)
		}
		return nil
	}),
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API / 启动 HTTP API",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		if a.gdb != nil && a.cfg.Journal.Retention > 0 {
			pruned, err := migrator.Prune(ctx, a.gdb, a.cfg.Journal.Retention)
			if err != nil {
				logger.WarnF(ctx, "[CLI] failed to prune journal: %v", err)
			} else if pruned > 0 {
				logger.InfoF(ctx, "[CLI] pruned %d journal event(s) older than %s", pruned, a.cfg.Journal.Retention)
			}
		}
		if a.metrics != nil {
			for _, n := range a.cluster.Nodes() {
				a.metrics.Observe(n.Status())
			}
		}

		addr := serveAddr
		if addr == "" {
			addr = a.cfg.API.Addr
		}
		engine := router.New(router.Deps{
			Cluster:     a.cluster,
			Journal:     a.journal,
			Metrics:     a.metrics,
			ServiceName: a.cfg.Telemetry.ServiceName,
			Env:         a.cfg.API.Env,
		})
		logger.InfoF(ctx, "[CLI] serving cluster %s with %d node(s)", a.cluster.Name(), len(a.cluster.Nodes()))
		return router.Serve(ctx, addr, engine)
	}),
}

// parseOverrides reads key=value pairs, parsing each value as YAML, and adds
// an Absent entry for every unset key. key=null is the same as --unset key.
// parseOverrides 解析 key=value（值按 YAML 解析），并为每个 unset 键添加 Absent。
func parseOverrides(pairs, unset []string) (confmerge.Overrides, error) {
	out := make(confmerge.Overrides, len(pairs)+len(unset))
	for _, kv := range pairs {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid option %q, expected key=value", kv)
		}
		var value interface{}
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		switch {
		case value == nil && strings.TrimSpace(raw) == "":
			value = ""
		case value == nil:
			value = confmerge.Absent
		}
		out[key] = value
	}
	for _, key := range unset {
		out[key] = confmerge.Absent
	}
	return out, nil
}

func pidString(pid int) string {
	if pid <= 0 {
		return "-"
	}
	return fmt.Sprint(pid)
}

func workloadString(workloads []node.Workload) string {
	if len(workloads) == 0 {
		return "-"
	}
	tags := make([]string, len(workloads))
	for i, w := range workloads {
		tags[i] = string(w)
	}
	return strings.Join(tags, ",")
}

func eventDetail(e *journal.Event) string {
	if e.Kind == string(node.EventTool) {
		return fmt.Sprintf("%s exit=%d", e.Tool, e.ExitCode)
	}
	return e.FromState + "->" + e.ToState
}
