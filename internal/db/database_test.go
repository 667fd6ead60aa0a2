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

package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/mike-tr-adamson/ccm/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"
)

func testParameters() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	parameters.Rng.Seed(42) // 固定种子以确保可重复性
	return parameters
}

// TestProperty_SQLiteOpenConsistency 对于任何有效的 SQLite 文件名，Open 都应该成功并返回可用的连接
func TestProperty_SQLiteOpenConsistency(t *testing.T) {
	properties := gopter.NewProperties(testParameters())

	properties.Property("sqlite journals open and answer queries", prop.ForAll(
		func(filename string) bool {
			tempDir, err := os.MkdirTemp("", "db_test_*")
			if err != nil {
				t.Logf("failed to create temp dir: %v", err)
				return false
			}
			defer os.RemoveAll(tempDir)

			// The parent directory is created on demand
			dbPath := filepath.Join(tempDir, "nested", filename+".db")
			gdb, err := Open(config.JournalConfig{
				Enabled:    true,
				Type:       DatabaseTypeSQLite,
				SQLitePath: dbPath,
				LogLevel:   "silent",
			})
			if err != nil {
				t.Logf("open failed: %v", err)
				return false
			}
			defer Close(gdb)

			var one int
			if err := gdb.Raw("SELECT 1").Scan(&one).Error; err != nil || one != 1 {
				return false
			}
			_, err = os.Stat(dbPath)
			return err == nil
		},
		gen.RegexMatch("[a-zA-Z][a-zA-Z0-9]{0,19}"),
	))

	properties.TestingRun(t)
}

// TestProperty_UnsupportedDatabaseType 对于不支持的数据库类型，Open 应该返回错误
func TestProperty_UnsupportedDatabaseType(t *testing.T) {
	properties := gopter.NewProperties(testParameters())

	properties.Property("unsupported types fail", prop.ForAll(
		func(dbType string) bool {
			gdb, err := Open(config.JournalConfig{Enabled: true, Type: dbType, LogLevel: "silent"})
			return err != nil && gdb == nil
		},
		gen.Identifier().SuchThat(func(s string) bool {
			return s != DatabaseTypeSQLite && s != DatabaseTypeMySQL && s != DatabaseTypePostgres
		}),
	))

	properties.TestingRun(t)
}

func TestOpen_DefaultsToSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	gdb, err := Open(config.JournalConfig{SQLitePath: dbPath, LogLevel: "silent"})
	require.NoError(t, err)
	defer Close(gdb)

	assert.Equal(t, "sqlite", gdb.Dialector.Name())
	assert.FileExists(t, dbPath)
}

func TestClose_Nil(t *testing.T) {
	assert.NoError(t, Close(nil))
}

func TestGormLogger(t *testing.T) {
	// Every level maps to a usable logger; unknown levels fall back to warn
	for _, level := range []string{"silent", "error", "warn", "info", "", "verbose"} {
		assert.NotNil(t, gormLogger(level), level)
	}
	assert.Implements(t, (*gormlogger.Interface)(nil), gormLogger("info"))
}
