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
	"strings"

	"github.com/mike-tr-adamson/ccm/internal/cluster"
	"github.com/mike-tr-adamson/ccm/internal/config"
	"github.com/mike-tr-adamson/ccm/internal/db"
	"github.com/mike-tr-adamson/ccm/internal/db/migrator"
	"github.com/mike-tr-adamson/ccm/internal/journal"
	"github.com/mike-tr-adamson/ccm/internal/logger"
	"github.com/mike-tr-adamson/ccm/internal/metrics"
	"github.com/mike-tr-adamson/ccm/internal/node"
	"github.com/mike-tr-adamson/ccm/internal/otel_trace"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// app holds everything a command needs once the configuration is loaded.
// app 保存配置加载后命令所需的全部依赖。
type app struct {
	cfg     *config.Config
	cluster *cluster.Cluster
	gdb     *gorm.DB
	journal *journal.Repository
	metrics *metrics.Collector
	stdio   node.Stdio
}

// parseSetFlags turns --set key=value flags into LoadWithPriority overrides.
func parseSetFlags(values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, kv := range values {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", kv)
		}
		out[strings.TrimSpace(key)] = value
	}
	return out, nil
}

// setup loads the configuration, initializes logging and tracing, opens the
// journal and loads the cluster descriptor.
// setup 加载配置，初始化日志和追踪，打开事件日志并加载集群描述文件。
func setup(ctx context.Context) (*app, error) {
	overrides, err := parseSetFlags(setFlags)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadWithPriority(configFile, overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	otel_trace.Init(cfg.Telemetry)

	a := &app{cfg: cfg}
	handlers := []node.EventHandler{}

	if cfg.Journal.Enabled {
		gdb, err := db.Open(cfg.Journal)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		a.gdb = gdb
		if err := migrator.Migrate(ctx, gdb); err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("failed to migrate journal: %w", err)
		}
		a.journal = journal.NewRepository(gdb)
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New("")
		handlers = append(handlers, a.metrics.Handle)
	}

	// The recorder needs the cluster name, which is only known after loading;
	// events are forwarded through a late-bound handler.
	var recorder *journal.Recorder
	handlers = append(handlers, func(ctx context.Context, e node.Event) {
		if recorder != nil {
			recorder.Handle(ctx, e)
		}
	})

	nodeOpts := []node.Option{node.WithTimeouts(cfg.Node)}
	for _, h := range handlers {
		nodeOpts = append(nodeOpts, node.WithEventHandler(h))
	}
	c, err := cluster.Load(clusterPath, cluster.WithNodeOptions(nodeOpts...))
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.cluster = c
	if a.journal != nil {
		recorder = journal.NewRecorder(a.journal, c.Name())
	}
	logger.DebugF(ctx, "[CLI] loaded cluster %s from %s", c.Name(), c.File())
	return a, nil
}

// target resolves --node, defaulting to the only node of a single-node cluster.
// target 解析 --node 参数，单节点集群时默认使用唯一节点。
func (a *app) target() (*node.Node, error) {
	if nodeName == "" {
		nodes := a.cluster.Nodes()
		if len(nodes) == 1 {
			return nodes[0], nil
		}
		return nil, fmt.Errorf("--node is required for a cluster with %d nodes", len(nodes))
	}
	return a.cluster.Node(nodeName)
}

func (a *app) close(ctx context.Context) {
	if err := db.Close(a.gdb); err != nil {
		logger.WarnF(ctx, "[CLI] failed to close journal: %v", err)
	}
	otel_trace.Shutdown(ctx)
	_ = logger.Sync()
}

// withApp wraps a command body with setup and teardown.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		a.stdio = node.Stdio{In: cmd.InOrStdin(), Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr()}
		defer a.close(ctx)
		return fn(ctx, a, args)
	}
}
