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

package cluster

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mike-tr-adamson/ccm/internal/confmerge"
	"github.com/mike-tr-adamson/ccm/internal/node"
	"github.com/mike-tr-adamson/ccm/internal/nodeerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const descriptor = `name: test
install_dir: /opt/dse
authn: kerberos
opscenter: true
config_options:
  max_memory: 4G
nodes:
  - name: node1
    interfaces:
      thrift: {role: thrift, host: 127.0.0.1, port: 9160}
      storage: {role: storage, host: 127.0.0.1, port: 7000}
    jmx_port: 7199
    workloads: [spark, solr]
  - name: node2
    path: /var/lib/ccm/node2
    interfaces:
      thrift: {role: thrift, host: 127.0.0.2, port: 9160}
      storage: {role: storage, host: 127.0.0.2, port: 7000}
    jmx_port: 7299
    config_options:
      timeout: 60
`

func writeDescriptor(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DescriptorName), []byte(content), 0644))
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeDescriptor(t, descriptor)
	c, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "test", c.Name())
	assert.Equal(t, node.AuthKerberos, c.AuthMode())
	assert.True(t, c.HasOpsCenter())
	assert.Equal(t, filepath.Join(c.Path(), "krb5.conf"), c.KerberosConfig())
	assert.Equal(t, "4G", c.ConfigOverrides()["max_memory"])
	require.Len(t, c.Nodes(), 2)

	n1, err := c.Node("node1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.Path(), "node1"), n1.Path())
	assert.Equal(t, "/opt/dse", n1.InstallDir())
	assert.Equal(t, []node.Workload{node.WorkloadSolr, node.WorkloadSpark}, n1.Config().Workloads)

	n2, err := c.Node("node2")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ccm/node2", n2.Path())
	assert.Equal(t, "127.0.0.2", n2.Address())
	assert.Equal(t, 60, n2.Config().ConfigOverrides["timeout"])
}

func TestLoad_DescriptorFile(t *testing.T) {
	dir := writeDescriptor(t, descriptor)
	c, err := Load(filepath.Join(dir, DescriptorName))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DescriptorName), c.File())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no name", "install_dir: /opt/dse\n"},
		{"no install", "name: test\n"},
		{"bad authn", "name: test\ninstall_dir: /opt\nauthn: ldap\n"},
		{"unnamed node", "name: test\ninstall_dir: /opt\nnodes:\n  - jmx_port: 7199\n"},
		{"duplicate node", "name: test\ninstall_dir: /opt\nnodes:\n  - name: a\n  - name: a\n"},
		{"bad workload", "name: test\ninstall_dir: /opt\nnodes:\n  - name: a\n    workloads: [graph]\n"},
		{"not yaml", "name: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeDescriptor(t, tt.content))
			assert.ErrorIs(t, err, ErrInvalidDescriptor)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNode_NotFound(t *testing.T) {
	c, err := Load(writeDescriptor(t, descriptor))
	require.NoError(t, err)
	_, err = c.Node("node9")
	assert.ErrorIs(t, err, nodeerr.ErrNodeNotFound)
}

func TestPeers(t *testing.T) {
	c, err := Load(writeDescriptor(t, descriptor))
	require.NoError(t, err)

	peers := c.Peers("node1")
	require.Len(t, peers, 1)
	assert.Equal(t, "node2", peers[0].Name())
	assert.False(t, peers[0].IsRunning())
	assert.Len(t, c.Peers("other"), 2)
}

func TestSaveNodeConfig_RoundTrip(t *testing.T) {
	dir := writeDescriptor(t, descriptor)
	c, err := Load(dir)
	require.NoError(t, err)
	n1, err := c.Node("node1")
	require.NoError(t, err)

	require.NoError(t, n1.SetWorkload(context.Background(), []node.Workload{node.WorkloadHadoop}))

	cfg := n1.Config()
	cfg.ConfigOverrides = confmerge.Overrides{"timeout": confmerge.Absent, "audit": map[string]interface{}{"enabled": true}}
	require.NoError(t, c.SaveNodeConfig(cfg))

	reloaded, err := Load(dir)
	require.NoError(t, err)
	r1, err := reloaded.Node("node1")
	require.NoError(t, err)
	assert.Equal(t, []node.Workload{node.WorkloadHadoop}, r1.Config().Workloads)
	overrides := r1.Config().ConfigOverrides
	v, ok := overrides["timeout"]
	require.True(t, ok)
	assert.True(t, confmerge.IsAbsent(v))
	assert.Equal(t, map[string]interface{}{"enabled": true}, overrides["audit"])

	// Other nodes and cluster settings survive the rewrite
	r2, err := reloaded.Node("node2")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ccm/node2", r2.Path())
	assert.Equal(t, "4G", reloaded.ConfigOverrides()["max_memory"])

	var raw map[string]interface{}
	data, err := os.ReadFile(filepath.Join(dir, DescriptorName))
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.Equal(t, "kerberos", raw["authn"])
}

func TestSaveNodeConfig_UnknownNode(t *testing.T) {
	c, err := Load(writeDescriptor(t, descriptor))
	require.NoError(t, err)
	err = c.SaveNodeConfig(node.Config{Name: "ghost"})
	assert.ErrorIs(t, err, nodeerr.ErrNodeNotFound)
}

func TestWithNodeOptions(t *testing.T) {
	var events []node.Event
	c, err := Load(writeDescriptor(t, descriptor), WithNodeOptions(node.WithEventHandler(func(_ context.Context, e node.Event) {
		events = append(events, e)
	})))
	require.NoError(t, err)
	n1, err := c.Node("node1")
	require.NoError(t, err)

	// dsetool is missing from the fake install, the failed run is still reported
	_, _ = n1.DseTool(context.Background(), "ring", node.Stdio{Out: os.Stderr})
	require.Len(t, events, 1)
	assert.Equal(t, node.EventTool, events[0].Kind)
}
