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
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/mike-tr-adamson/ccm/internal/cluster"
	"github.com/mike-tr-adamson/ccm/internal/confmerge"
	"github.com/mike-tr-adamson/ccm/internal/nodeerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// newClusterDir lays out a fake install with a nodetool that exits 3, a
// two-node descriptor and a config file journaling to sqlite.
func newClusterDir(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	dir = t.TempDir()
	install := filepath.Join(dir, "dse")
	writeFile(t, filepath.Join(install, "bin", "dse"), "#!/bin/sh\nexit 0\n", 0755)
	writeFile(t, filepath.Join(install, "resources", "cassandra", "bin", "nodetool"), "#!/bin/sh\necho \"nodetool $*\"\nexit 3\n", 0755)
	writeFile(t, filepath.Join(install, "resources", "dse", "conf", "dse.yaml"), "timeout: 30\n", 0644)

	descriptor := fmt.Sprintf(`name: cli
install_dir: %s
nodes:
  - name: node1
    interfaces:
      thrift: {role: thrift, host: 127.0.0.1, port: %d}
      storage: {role: storage, host: 127.0.0.1, port: %d}
    jmx_port: 7199
  - name: node2
    interfaces:
      thrift: {role: thrift, host: 127.0.0.2, port: %d}
      storage: {role: storage, host: 127.0.0.2, port: %d}
    jmx_port: 7299
    workloads: [spark]
`, install, freePort(t), freePort(t), freePort(t), freePort(t))
	writeFile(t, filepath.Join(dir, cluster.DescriptorName), descriptor, 0644)

	cfgPath = filepath.Join(dir, "ccm.yaml")
	writeFile(t, cfgPath, fmt.Sprintf(`log:
  level: error
  output: stdout
journal:
  enabled: true
  type: sqlite
  sqlite_path: %s
telemetry:
  enabled: false
metrics:
  enabled: true
`, filepath.Join(dir, "journal.db")), 0644)
	return dir, cfgPath
}

// execute runs the root command with args after resetting flag state.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile, clusterPath, nodeName, setFlags = "", ".", "", nil
	unsetKeys, historyKind, historyTool, historySize = nil, "", "", 20

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    dev")
	assert.Contains(t, out, "Go Version: "+runtime.Version())
}

func TestParseSetFlags(t *testing.T) {
	got, err := parseSetFlags([]string{"node.start_timeout=5m", " log.level =debug", "api.addr=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"node.start_timeout": "5m",
		"log.level":          "debug",
		"api.addr":           "a=b",
	}, got)

	_, err = parseSetFlags([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseSetFlags([]string{"=x"})
	assert.Error(t, err)
}

func TestParseOverrides(t *testing.T) {
	got, err := parseOverrides(
		[]string{"timeout=60", "audit_logging_options={enabled: true}", "name=dse", "empty=", "gone=null"},
		[]string{"old"},
	)
	require.NoError(t, err)
	assert.Equal(t, 60, got["timeout"])
	assert.Equal(t, map[string]interface{}{"enabled": true}, got["audit_logging_options"])
	assert.Equal(t, "dse", got["name"])
	assert.Equal(t, "", got["empty"])
	assert.True(t, confmerge.IsAbsent(got["gone"]))
	assert.True(t, confmerge.IsAbsent(got["old"]))

	_, err = parseOverrides([]string{"broken"}, nil)
	assert.Error(t, err)
	_, err = parseOverrides([]string{"bad=[unclosed"}, nil)
	assert.Error(t, err)
}

func TestExitCodeError(t *testing.T) {
	var err error = &exitCodeError{code: 3}
	var exitErr *exitCodeError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &exitErr))
	assert.Equal(t, 3, exitErr.code)
	assert.Equal(t, "exit status 3", err.Error())
}

func TestStatusCommand(t *testing.T) {
	dir, cfg := newClusterDir(t)

	out, err := execute(t, "status", "-c", cfg, "--cluster", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Regexp(t, `node1\s+stopped\s+-\s+-\s+127\.0\.0\.1\s+-`, out)
	assert.Regexp(t, `node2\s+stopped\s+-\s+-\s+127\.0\.0\.2\s+spark`, out)

	_, err = execute(t, "status", "-c", cfg, "--cluster", dir, "-n", "node9")
	assert.ErrorIs(t, err, nodeerr.ErrNodeNotFound)
}

func TestCommands_RequireNodeForMultiNodeCluster(t *testing.T) {
	dir, cfg := newClusterDir(t)
	_, err := execute(t, "import-config", "-c", cfg, "--cluster", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--node is required")
}

func TestToolCommand_PropagatesExitCode(t *testing.T) {
	dir, cfg := newClusterDir(t)

	out, err := execute(t, "tool", "-c", cfg, "--cluster", dir, "-n", "node1", "nodetool", "ring", "-v")
	var exitErr *exitCodeError
	require.True(t, errors.As(err, &exitErr), "got %v", err)
	assert.Equal(t, 3, exitErr.code)
	assert.Contains(t, out, "nodetool ring -v")

	out, err = execute(t, "history", "-c", cfg, "--cluster", dir, "--kind", "tool")
	require.NoError(t, err)
	assert.Contains(t, out, "nodetool exit=3")
	assert.Contains(t, out, "node1")
}

func TestKerberosCommands_RequireKerberos(t *testing.T) {
	dir, cfg := newClusterDir(t)
	_, err := execute(t, "klist", "-c", cfg, "--cluster", dir, "-n", "node1")
	assert.ErrorIs(t, err, nodeerr.ErrPrecondition)
}

func TestSetOptionCommand(t *testing.T) {
	dir, cfg := newClusterDir(t)

	_, err := execute(t, "set-option", "-c", cfg, "--cluster", dir, "-n", "node1", "timeout=60", "max_memory=4G")
	require.NoError(t, err)
	doc, err := confmerge.LoadYAML(filepath.Join(dir, "node1", "resources", "dse", "conf", "dse.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 60, doc["timeout"])
	assert.Equal(t, "4G", doc["max_memory"])

	_, err = execute(t, "set-option", "-c", cfg, "--cluster", dir, "-n", "node1", "--unset", "timeout")
	require.NoError(t, err)
	doc, err = confmerge.LoadYAML(filepath.Join(dir, "node1", "resources", "dse", "conf", "dse.yaml"))
	require.NoError(t, err)
	_, ok := doc["timeout"]
	assert.False(t, ok)

	// The override is persisted in the descriptor
	c, err := cluster.Load(dir)
	require.NoError(t, err)
	n, err := c.Node("node1")
	require.NoError(t, err)
	assert.True(t, confmerge.IsAbsent(n.Config().ConfigOverrides["timeout"]))

	_, err = execute(t, "set-option", "-c", cfg, "--cluster", dir, "-n", "node1")
	assert.Error(t, err)
}

func TestSetWorkloadCommand(t *testing.T) {
	dir, cfg := newClusterDir(t)

	_, err := execute(t, "set-workload", "-c", cfg, "--cluster", dir, "-n", "node1", "solr", "spark")
	require.NoError(t, err)
	out, err := execute(t, "status", "-c", cfg, "--cluster", dir, "-n", "node1")
	require.NoError(t, err)
	assert.Contains(t, out, "solr,spark")

	_, err = execute(t, "set-workload", "-c", cfg, "--cluster", dir, "-n", "node1", "graph")
	assert.ErrorIs(t, err, nodeerr.ErrPrecondition)
}

func TestStopCommand_NotRunning(t *testing.T) {
	dir, cfg := newClusterDir(t)
	out, err := execute(t, "stop", "-c", cfg, "--cluster", dir, "-n", "node2")
	require.NoError(t, err)
	assert.Contains(t, out, "node2 was not running")
}

func TestInvalidSetFlag(t *testing.T) {
	dir, cfg := newClusterDir(t)
	_, err := execute(t, "status", "-c", cfg, "--cluster", dir, "--set", "log.level")
	assert.Error(t, err)

	_, err = execute(t, "status", "-c", cfg, "--cluster", dir, "--set", "log.level=loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
