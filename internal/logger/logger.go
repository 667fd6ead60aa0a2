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

// Package logger wraps zap with rolling files and trace correlation.
// logger 包封装 zap，提供日志轮转和链路追踪关联。
package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mike-tr-adamson/ccm/internal/config"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.RWMutex
	base   = zap.NewNop()
	sugar  = otelzap.New(base).Sugar()
	closer func() error
)

// Init builds the process-wide logger from the log section of the config.
// Init 根据配置中的 log 部分构建全局日志器。
func Init(cfg config.LogConfig) error {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	var (
		syncers []zapcore.WriteSyncer
		rolling *lumberjack.Logger
	)
	switch cfg.Output {
	case "file", "both":
		rolling = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxAge,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}
		syncers = append(syncers, zapcore.AddSync(rolling))
		if cfg.Output == "both" {
			syncers = append(syncers, zapcore.Lock(os.Stdout))
		}
	default:
		syncers = append(syncers, zapcore.Lock(os.Stdout))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), level)
	zl := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		_ = closer()
	}
	base = zl
	sugar = otelzap.New(zl, otelzap.WithMinLevel(level), otelzap.WithTraceIDField(true)).Sugar()
	closer = func() error {
		_ = zl.Sync()
		if rolling != nil {
			return rolling.Close()
		}
		return nil
	}
	return nil
}

// Replace installs an already built zap logger, mainly for tests.
// Replace 安装一个已构建的 zap 日志器，主要用于测试。
func Replace(zl *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = zl
	sugar = otelzap.New(zl).Sugar()
}

// L returns the underlying zap logger for structured fields.
// L 返回底层 zap 日志器，用于结构化字段。
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Sync flushes buffered entries and closes the rolling file.
// Sync 刷新缓冲的日志并关闭轮转文件。
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return base.Sync()
	}
	err := closer()
	closer = nil
	return err
}

func current() *otelzap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func DebugF(ctx context.Context, format string, args ...interface{}) {
	current().DebugfContext(ctx, format, args...)
}

func InfoF(ctx context.Context, format string, args ...interface{}) {
	current().InfofContext(ctx, format, args...)
}

func WarnF(ctx context.Context, format string, args ...interface{}) {
	current().WarnfContext(ctx, format, args...)
}

func ErrorF(ctx context.Context, format string, args ...interface{}) {
	current().ErrorfContext(ctx, format, args...)
}
