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

// Package main is the entry point of the ccm-node command.
// main 包是 ccm-node 命令的入口点。
//
// ccm-node drives one DSE node of a local test cluster:
// ccm-node 管理本地测试集群中的单个 DSE 节点：
// - Starts and stops the node and its monitoring agent / 启动和停止节点及其监控 agent
// - Imports and overrides node configuration / 导入和覆盖节点配置
// - Runs the DSE and Cassandra tools against the node / 针对节点运行 DSE 和 Cassandra 工具
// - Serves the same operations over HTTP / 通过 HTTP 提供相同的操作
package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information, set at build time
// 版本信息，在构建时设置
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var (
	configFile  string
	clusterPath string
	nodeName    string
	setFlags    []string
)

// rootCmd is the root command for the ccm-node CLI
// rootCmd 是 ccm-node CLI 的根命令
var rootCmd = &cobra.Command{
	Use:   "ccm-node",
	Short: "ccm-node - lifecycle manager for a local DSE node",
	Long: `ccm-node manages one DSE node of a local cluster.
ccm-node 管理本地集群中的单个 DSE 节点。

The cluster is described by a cluster.yaml descriptor:
集群由 cluster.yaml 描述文件定义：
- start / stop the node and its datastax-agent / 启动、停止节点及 datastax-agent
- import-config, set-option, set-xml-option, set-workload / 配置管理
- tool, dsetool, kinit, klist, kdestroy / 运行工具
- serve the HTTP API / 启动 HTTP API`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// versionCmd shows version information
// versionCmd 显示版本信息
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information / 打印版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ccm-node\n")
		fmt.Fprintf(out, "  Version:    %s\n", Version)
		fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
		fmt.Fprintf(out, "  Go Version: %s\n", runtime.Version())
		fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	// Add flags to root command
	// 向根命令添加标志
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: ./ccm.yaml or $CCM_CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&clusterPath, "cluster", ".", "cluster directory or cluster.yaml descriptor")
	rootCmd.PersistentFlags().StringVarP(&nodeName, "node", "n", "", "node name")
	rootCmd.PersistentFlags().StringArrayVar(&setFlags, "set", nil, "override a config key, e.g. --set node.start_timeout=5m")

	// Add subcommands
	// 添加子命令
	rootCmd.AddCommand(versionCmd)
	addNodeCommands(rootCmd)
	rootCmd.AddCommand(serveCmd)
}

// exitCodeError carries a tool's exit code out of Execute.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
