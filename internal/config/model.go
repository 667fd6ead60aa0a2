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

package config

import "time"

// Config is the runtime configuration of ccm-node.
// Config 是 ccm-node 的运行时配置。
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Node      NodeConfig      `mapstructure:"node"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	API       APIConfig       `mapstructure:"api"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // console, json
	Output     string `mapstructure:"output"` // stdout, file, both
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// NodeConfig bounds every wait performed by the lifecycle controller.
// NodeConfig 限定生命周期控制器执行的每一次等待。
type NodeConfig struct {
	// StartTimeout bounds the whole readiness phase of a start
	// StartTimeout 限定启动就绪阶段的总时长
	StartTimeout time.Duration `mapstructure:"start_timeout"`

	// StopTimeout bounds waiting for exit and for peers to notice the node is down
	// StopTimeout 限定等待退出以及等待其他节点感知下线的时长
	StopTimeout time.Duration `mapstructure:"stop_timeout"`

	// GracefulTimeout is how long a gentle stop waits before escalating to SIGKILL
	// GracefulTimeout 是温和停止升级为 SIGKILL 之前的等待时间
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`

	NoWaitGrace       time.Duration `mapstructure:"no_wait_grace"`
	BinaryProtoSettle time.Duration `mapstructure:"binary_proto_settle"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
}

// JournalConfig 生命周期事件日志（数据库）配置
type JournalConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Type            string `mapstructure:"type"`        // sqlite, mysql, postgres
	SQLitePath      string `mapstructure:"sqlite_path"` // SQLite 文件路径
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	MaxIdleConn     int    `mapstructure:"max_idle_conn"`
	MaxOpenConn     int    `mapstructure:"max_open_conn"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`

	// Retention prunes older events at serve startup; 0 keeps everything
	Retention time.Duration `mapstructure:"retention"`
}

// TelemetryConfig OpenTelemetry 追踪配置
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// APIConfig 控制 API 配置
type APIConfig struct {
	Addr string `mapstructure:"addr"`
	Env  string `mapstructure:"env"` // development, production
}
