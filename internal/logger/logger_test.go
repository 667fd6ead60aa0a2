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

package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mike-tr-adamson/ccm/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ccm.log")
	err := Init(config.LogConfig{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: path,
		MaxSize:  1,
	})
	require.NoError(t, err)

	InfoF(context.Background(), "[Node] started %s", "node1")
	DebugF(context.Background(), "[Node] hidden below level")
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[Node] started node1")
	assert.NotContains(t, string(data), "hidden below level")
}

func TestInit_InvalidLevel(t *testing.T) {
	err := Init(config.LogConfig{Level: "loud", Output: "stdout"})
	assert.Error(t, err)
}

func TestReplace(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Replace(zap.New(core))

	WarnF(context.Background(), "[Agent] pid file %s missing", "datastax-agent.pid")
	ErrorF(context.Background(), "[Agent] boom")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "[Agent] pid file datastax-agent.pid missing", entries[0].Message)
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
}
