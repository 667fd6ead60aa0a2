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

// Package config provides configuration management for ccm-node.
// config 包提供 ccm-node 的配置管理功能。
//
// Configuration loading priority (highest to lowest):
// 配置加载优先级（从高到低）：
// 1. Command line arguments / 命令行参数
// 2. Environment variables (CCM_ prefix) / 环境变量（CCM_ 前缀）
// 3. Configuration file / 配置文件
// 4. Default values / 默认值
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values
// 默认配置值
const (
	DefaultConfigPath = "ccm.yaml"
	EnvPrefix         = "CCM"

	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
	DefaultLogOutput     = "stdout"
	DefaultLogFile       = "./logs/ccm-node.log"
	DefaultLogMaxSize    = 100 // MB
	DefaultLogMaxBackups = 3
	DefaultLogMaxAge     = 7 // days

	// DefaultStartTimeout keeps a slow bootstrap from hanging the caller forever
	// DefaultStartTimeout 避免缓慢的启动无限期阻塞调用方
	DefaultStartTimeout      = 10 * time.Minute
	DefaultStopTimeout       = 2 * time.Minute
	DefaultGracefulTimeout   = 30 * time.Second
	DefaultNoWaitGrace       = 2 * time.Second
	DefaultBinaryProtoSettle = 200 * time.Millisecond
	DefaultPollInterval      = 500 * time.Millisecond

	DefaultJournalType = "sqlite"
	DefaultSQLitePath  = "./data/ccm-journal.db"

	DefaultJournalRetention = 30 * 24 * time.Hour

	DefaultAPIAddr = "127.0.0.1:8960"
)

// Load loads configuration from file and environment variables
// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values / 设置默认值
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if envPath := os.Getenv(EnvPrefix + "_CONFIG_PATH"); envPath != "" {
		v.SetConfigFile(envPath)
	} else {
		v.SetConfigFile(DefaultConfigPath)
	}

	// Enable environment variable override / 启用环境变量覆盖
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file falls back to defaults
		// 配置文件不存在时使用默认值
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			if _, statErr := os.Stat(v.ConfigFileUsed()); statErr == nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// LoadWithPriority loads the configuration and then applies command line
// overrides given as key=value pairs, e.g. "node.start_timeout=5m".
// LoadWithPriority 加载配置后应用 key=value 形式的命令行覆盖。
func LoadWithPriority(configPath string, cmdArgs map[string]string) (*Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}
	if len(cmdArgs) == 0 {
		return cfg, nil
	}

	v := viper.New()
	setDefaults(v)
	if err := v.MergeConfigMap(toNested(cfg)); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}
	for key, value := range cmdArgs {
		v.Set(key, value)
	}

	var out Config
	if err := v.Unmarshal(&out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &out, nil
}

// LoadFromYAML loads configuration from YAML bytes
// LoadFromYAML 从 YAML 字节加载配置
func LoadFromYAML(yamlData []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadConfig(strings.NewReader(string(yamlData))); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is configured.
// Default 返回未做任何配置时使用的默认配置。
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults sets default configuration values
// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("log.output", DefaultLogOutput)
	v.SetDefault("log.file_path", DefaultLogFile)
	v.SetDefault("log.max_size", DefaultLogMaxSize)
	v.SetDefault("log.max_backups", DefaultLogMaxBackups)
	v.SetDefault("log.max_age", DefaultLogMaxAge)
	v.SetDefault("log.compress", false)

	v.SetDefault("node.start_timeout", DefaultStartTimeout)
	v.SetDefault("node.stop_timeout", DefaultStopTimeout)
	v.SetDefault("node.graceful_timeout", DefaultGracefulTimeout)
	v.SetDefault("node.no_wait_grace", DefaultNoWaitGrace)
	v.SetDefault("node.binary_proto_settle", DefaultBinaryProtoSettle)
	v.SetDefault("node.poll_interval", DefaultPollInterval)

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.type", DefaultJournalType)
	v.SetDefault("journal.sqlite_path", DefaultSQLitePath)
	v.SetDefault("journal.max_idle_conn", 5)
	v.SetDefault("journal.max_open_conn", 10)
	v.SetDefault("journal.conn_max_lifetime", 3600)
	v.SetDefault("journal.log_level", "warn")
	v.SetDefault("journal.retention", DefaultJournalRetention)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "ccm-node")

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("api.addr", DefaultAPIAddr)
	v.SetDefault("api.env", "production")
}

// Validate validates the configuration
// Validate 验证配置
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be console or json)", c.Log.Format)
	}

	if c.Node.StartTimeout <= 0 {
		return errors.New("node.start_timeout must be positive")
	}
	if c.Node.StopTimeout <= 0 {
		return errors.New("node.stop_timeout must be positive")
	}
	if c.Node.GracefulTimeout <= 0 {
		return errors.New("node.graceful_timeout must be positive")
	}
	if c.Node.PollInterval < 10*time.Millisecond {
		return errors.New("node.poll_interval must be at least 10ms")
	}

	if c.Journal.Enabled {
		switch c.Journal.Type {
		case "sqlite", "mysql", "postgres":
		default:
			return fmt.Errorf("unsupported journal database type: %s", c.Journal.Type)
		}
	}
	return nil
}

// String returns a string representation of the config (for debugging)
// String 返回配置的字符串表示（用于调试）
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Log.Level: %s, Node.StartTimeout: %v, Node.StopTimeout: %v, Journal.Type: %s, API.Addr: %s}",
		c.Log.Level,
		c.Node.StartTimeout,
		c.Node.StopTimeout,
		c.Journal.Type,
		c.API.Addr,
	)
}

// toNested renders the config back into the nested key space viper expects.
func toNested(c *Config) map[string]interface{} {
	return map[string]interface{}{
		"log": map[string]interface{}{
			"level":       c.Log.Level,
			"format":      c.Log.Format,
			"output":      c.Log.Output,
			"file_path":   c.Log.FilePath,
			"max_size":    c.Log.MaxSize,
			"max_age":     c.Log.MaxAge,
			"max_backups": c.Log.MaxBackups,
			"compress":    c.Log.Compress,
		},
		"node": map[string]interface{}{
			"start_timeout":       c.Node.StartTimeout,
			"stop_timeout":        c.Node.StopTimeout,
			"graceful_timeout":    c.Node.GracefulTimeout,
			"no_wait_grace":       c.Node.NoWaitGrace,
			"binary_proto_settle": c.Node.BinaryProtoSettle,
			"poll_interval":       c.Node.PollInterval,
		},
		"journal": map[string]interface{}{
			"enabled":           c.Journal.Enabled,
			"type":              c.Journal.Type,
			"sqlite_path":       c.Journal.SQLitePath,
			"host":              c.Journal.Host,
			"port":              c.Journal.Port,
			"username":          c.Journal.Username,
			"password":          c.Journal.Password,
			"database":          c.Journal.Database,
			"max_idle_conn":     c.Journal.MaxIdleConn,
			"max_open_conn":     c.Journal.MaxOpenConn,
			"conn_max_lifetime": c.Journal.ConnMaxLifetime,
			"log_level":         c.Journal.LogLevel,
			"retention":         c.Journal.Retention,
		},
		"telemetry": map[string]interface{}{
			"enabled":      c.Telemetry.Enabled,
			"endpoint":     c.Telemetry.Endpoint,
			"insecure":     c.Telemetry.Insecure,
			"service_name": c.Telemetry.ServiceName,
		},
		"metrics": map[string]interface{}{
			"enabled": c.Metrics.Enabled,
		},
		"api": map[string]interface{}{
			"addr": c.API.Addr,
			"env":  c.API.Env,
		},
	}
}
