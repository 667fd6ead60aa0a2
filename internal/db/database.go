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

// Package db opens the journal database.
// Package db 打开事件日志数据库。
package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mike-tr-adamson/ccm/internal/config"
	"github.com/mike-tr-adamson/ccm/internal/logger"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// DatabaseType 数据库类型常量
const (
	DatabaseTypeSQLite   = "sqlite"
	DatabaseTypeMySQL    = "mysql"
	DatabaseTypePostgres = "postgres"
)

// Open connects to the journal database described by cfg.
// SQLite, MySQL and PostgreSQL are supported; SQLite is the default.
// Open 根据配置连接事件日志数据库，支持 SQLite、MySQL、PostgreSQL，默认 SQLite。
func Open(cfg config.JournalConfig) (*gorm.DB, error) {
	ctx := context.Background()

	dbType := cfg.Type
	if dbType == "" {
		dbType = DatabaseTypeSQLite
	}

	var (
		dialector gorm.Dialector
		err       error
	)
	switch dbType {
	case DatabaseTypeSQLite:
		dialector, err = sqliteDialector(cfg.SQLitePath)
	case DatabaseTypeMySQL:
		dialector = mysqlDialector(cfg)
	case DatabaseTypePostgres:
		dialector = postgresDialector(cfg)
	default:
		return nil, fmt.Errorf("[Database] unsupported database type: %s, supported: sqlite, mysql, postgres", dbType)
	}
	if err != nil {
		return nil, fmt.Errorf("[Database] failed to init %s driver: %w", dbType, err)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger(cfg.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("[Database] failed to connect to %s: %w", dbType, err)
	}

	// 注入 OpenTelemetry 追踪
	if err := gdb.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		logger.WarnF(ctx, "[Database] failed to install tracing plugin: %v", err)
	}

	// 连接池仅对 MySQL 和 PostgreSQL 生效
	if dbType != DatabaseTypeSQLite {
		if err := configureConnectionPool(gdb, cfg); err != nil {
			return nil, fmt.Errorf("[Database] failed to configure connection pool: %w", err)
		}
	}

	logger.InfoF(ctx, "[Database] connected to %s journal", dbType)
	return gdb, nil
}

func sqliteDialector(path string) (gorm.Dialector, error) {
	if path == "" {
		path = config.DefaultSQLitePath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}
	logger.DebugF(context.Background(), "[Database] using sqlite database: %s", path)
	return sqlite.Open(path), nil
}

func mysqlDialector(cfg config.JournalConfig) gorm.Dialector {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)
	logger.DebugF(context.Background(), "[Database] connecting to mysql: %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	return mysql.Open(dsn)
}

func postgresDialector(cfg config.JournalConfig) gorm.Dialector {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
	)
	logger.DebugF(context.Background(), "[Database] connecting to postgres: %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	return postgres.Open(dsn)
}

// configureConnectionPool 配置数据库连接池
func configureConnectionPool(gdb *gorm.DB, cfg config.JournalConfig) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying connection: %w", err)
	}
	if cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}
	return nil
}

// gormLogger maps the journal log_level onto gorm's logger.
func gormLogger(level string) gormlogger.Interface {
	var logLevel gormlogger.LogLevel
	switch level {
	case "silent":
		logLevel = gormlogger.Silent
	case "error":
		logLevel = gormlogger.Error
	case "warn":
		logLevel = gormlogger.Warn
	case "info":
		logLevel = gormlogger.Info
	default:
		logLevel = gormlogger.Warn
	}
	return gormlogger.Default.LogMode(logLevel)
}

// Close closes the underlying connection pool. A nil db is a no-op.
// Close 关闭底层连接池，db 为 nil 时不做任何操作。
func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying connection: %w", err)
	}
	return sqlDB.Close()
}
