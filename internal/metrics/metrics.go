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

// Package metrics exports node lifecycle and tool events as Prometheus metrics.
// Package metrics 将节点生命周期和工具事件导出为 Prometheus 指标。
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/mike-tr-adamson/ccm/internal/node"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "ccm"

// Collector records node events on a private registry.
// Collector 在独立的注册表上记录节点事件。
type Collector struct {
	transitions   *prometheus.CounterVec
	startDuration *prometheus.HistogramVec
	stopDuration  *prometheus.HistogramVec
	toolRuns      *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	running       *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates a Collector. An empty namespace uses DefaultNamespace.
// New 创建 Collector，namespace 为空时使用 DefaultNamespace。
func New(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	c := &Collector{registry: prometheus.NewRegistry()}

	c.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_state_transitions_total",
			Help:      "Total number of node state transitions",
		},
		[]string{"node", "from_state", "to_state", "status"},
	)

	// Starts can wait minutes for the CQL listener
	c.startDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_start_duration_seconds",
			Help:      "Duration of node starts, from launch to running or failure",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"node", "status"},
	)

	c.stopDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_stop_duration_seconds",
			Help:      "Duration of node stops",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node"},
	)

	c.toolRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_runs_total",
			Help:      "Total number of tool runs by exit code",
		},
		[]string{"node", "tool", "exit_code"},
	)

	c.toolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_run_duration_seconds",
			Help:      "Duration of tool runs",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "tool"},
	)

	c.running = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "node_running",
			Help:      "Whether the node process is running (1) or not (0)",
		},
		[]string{"node"},
	)

	c.registry.MustRegister(
		c.transitions,
		c.startDuration,
		c.stopDuration,
		c.toolRuns,
		c.toolDuration,
		c.running,
	)
	return c
}

// Handle records one event. It has the node.EventHandler signature.
// Handle 记录一个事件，签名与 node.EventHandler 一致。
func (c *Collector) Handle(_ context.Context, e node.Event) {
	switch e.Kind {
	case node.EventTransition:
		c.recordTransition(e)
	case node.EventTool:
		c.toolRuns.WithLabelValues(e.Node, e.Tool, strconv.Itoa(e.ExitCode)).Inc()
		c.toolDuration.WithLabelValues(e.Node, e.Tool).Observe(e.Duration.Seconds())
	}
}

func (c *Collector) recordTransition(e node.Event) {
	status := "success"
	if e.Err != nil {
		status = "error"
	}
	c.transitions.WithLabelValues(e.Node, string(e.From), string(e.To), status).Inc()

	switch {
	case e.From == node.StateStarting && e.To != node.StateStarting:
		c.startDuration.WithLabelValues(e.Node, status).Observe(e.Duration.Seconds())
	case e.From == node.StateStopping && e.To == node.StateStopped:
		c.stopDuration.WithLabelValues(e.Node).Observe(e.Duration.Seconds())
	}

	if e.To == node.StateRunning {
		c.running.WithLabelValues(e.Node).Set(1)
	} else {
		c.running.WithLabelValues(e.Node).Set(0)
	}
}

// Observe seeds the running gauge from a node's current status.
// Observe 根据节点当前状态初始化运行指标。
func (c *Collector) Observe(status node.Status) {
	v := 0.0
	if status.Running {
		v = 1
	}
	c.running.WithLabelValues(status.Name).Set(v)
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
// Handler 以 Prometheus 文本格式暴露注册表。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
