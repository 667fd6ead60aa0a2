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

// Package cluster loads the cluster descriptor a set of nodes is defined in
// and persists node changes back to it.
// Package cluster 加载定义节点集合的集群描述文件，并将节点变更写回该文件。
package cluster

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mike-tr-adamson/ccm/internal/confmerge"
	"github.com/mike-tr-adamson/ccm/internal/node"
	"github.com/mike-tr-adamson/ccm/internal/nodeerr"
	"gopkg.in/yaml.v3"
)

// DescriptorName is the descriptor file inside a cluster directory.
const DescriptorName = "cluster.yaml"

// ErrInvalidDescriptor is returned for descriptors that fail validation.
// ErrInvalidDescriptor 表示描述文件校验失败。
var ErrInvalidDescriptor = errors.New("invalid cluster descriptor")

// NodeSpec is one node entry of the descriptor.
// NodeSpec 是描述文件中的单个节点条目。
type NodeSpec struct {
	Name          string              `yaml:"name"`
	Path          string              `yaml:"path,omitempty"`
	Interfaces    node.Interfaces     `yaml:"interfaces"`
	JMXPort       int                 `yaml:"jmx_port"`
	InitialToken  string              `yaml:"initial_token,omitempty"`
	Workloads     []node.Workload     `yaml:"workloads,omitempty"`
	ConfigOptions confmerge.Overrides `yaml:"config_options,omitempty"`
}

// Descriptor is the on-disk cluster.yaml.
// Descriptor 是磁盘上的 cluster.yaml。
type Descriptor struct {
	Name          string              `yaml:"name"`
	InstallDir    string              `yaml:"install_dir"`
	Authn         node.AuthMode       `yaml:"authn,omitempty"`
	KerberosConf  string              `yaml:"kerberos_conf,omitempty"`
	OpsCenter     bool                `yaml:"opscenter,omitempty"`
	ConfigOptions confmerge.Overrides `yaml:"config_options,omitempty"`
	Nodes         []NodeSpec          `yaml:"nodes"`
}

// Option configures Load.
type Option func(*options)

type options struct {
	nodeOpts []node.Option
}

// WithNodeOptions passes opts to every node the cluster creates.
// WithNodeOptions 将 opts 传递给集群创建的每个节点。
func WithNodeOptions(opts ...node.Option) Option {
	return func(o *options) { o.nodeOpts = append(o.nodeOpts, opts...) }
}

// Cluster is a loaded descriptor together with its nodes. It implements
// node.Cluster and node.ConfigStore.
// Cluster 是已加载的描述文件及其节点，实现了 node.Cluster 和 node.ConfigStore。
type Cluster struct {
	mu    sync.Mutex
	dir   string
	file  string
	desc  Descriptor
	nodes []*node.Node
}

var (
	_ node.Cluster     = (*Cluster)(nil)
	_ node.ConfigStore = (*Cluster)(nil)
)

// Load reads a descriptor. path is either the descriptor itself or the
// cluster directory holding it.
// Load 读取描述文件，path 可以是描述文件本身或其所在的集群目录。
func Load(path string, opts ...Option) (*Cluster, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	file := path
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		file = filepath.Join(path, DescriptorName)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster descriptor: %w", err)
	}
	var desc Descriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, file, err)
	}

	dir, err := filepath.Abs(filepath.Dir(file))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cluster directory: %w", err)
	}
	if err := normalize(&desc, dir); err != nil {
		return nil, err
	}

	c := &Cluster{dir: dir, file: file, desc: desc}
	nodeOpts := append([]node.Option{node.WithConfigStore(c)}, o.nodeOpts...)
	for _, spec := range desc.Nodes {
		c.nodes = append(c.nodes, node.New(spec.config(desc.InstallDir), c, nodeOpts...))
	}
	return c, nil
}

// normalize validates desc and fills in defaults relative to dir.
func normalize(desc *Descriptor, dir string) error {
	if desc.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDescriptor)
	}
	if desc.InstallDir == "" {
		return fmt.Errorf("%w: install_dir is required", ErrInvalidDescriptor)
	}
	switch desc.Authn {
	case "":
		desc.Authn = node.AuthNone
	case node.AuthNone, node.AuthKerberos:
	default:
		return fmt.Errorf("%w: unknown authn %q", ErrInvalidDescriptor, desc.Authn)
	}
	if desc.KerberosConf == "" {
		desc.KerberosConf = filepath.Join(dir, "krb5.conf")
	}
	if desc.ConfigOptions == nil {
		desc.ConfigOptions = confmerge.Overrides{}
	}

	seen := make(map[string]bool, len(desc.Nodes))
	for i := range desc.Nodes {
		spec := &desc.Nodes[i]
		if spec.Name == "" {
			return fmt.Errorf("%w: node %d has no name", ErrInvalidDescriptor, i)
		}
		if seen[spec.Name] {
			return fmt.Errorf("%w: duplicate node %q", ErrInvalidDescriptor, spec.Name)
		}
		seen[spec.Name] = true
		if spec.Path == "" {
			spec.Path = filepath.Join(dir, spec.Name)
		}
		tags := make([]string, len(spec.Workloads))
		for j, w := range spec.Workloads {
			tags[j] = string(w)
		}
		workloads, err := node.ParseWorkloads(tags)
		if err != nil {
			return fmt.Errorf("%w: node %q: %v", ErrInvalidDescriptor, spec.Name, err)
		}
		spec.Workloads = workloads
	}
	return nil
}

func (s NodeSpec) config(installDir string) node.Config {
	return node.Config{
		Name:            s.Name,
		InstallDir:      installDir,
		Path:            s.Path,
		Interfaces:      s.Interfaces,
		JMXPort:         s.JMXPort,
		InitialToken:    s.InitialToken,
		Workloads:       append([]node.Workload(nil), s.Workloads...),
		ConfigOverrides: confmerge.Layer(s.ConfigOptions),
	}
}

func (c *Cluster) Name() string { return c.desc.Name }

// Path returns the cluster directory.
func (c *Cluster) Path() string { return c.dir }

// File returns the descriptor path.
func (c *Cluster) File() string { return c.file }

func (c *Cluster) AuthMode() node.AuthMode { return c.desc.Authn }

func (c *Cluster) KerberosConfig() string { return c.desc.KerberosConf }

func (c *Cluster) HasOpsCenter() bool { return c.desc.OpsCenter }

// ConfigOverrides returns a copy of the cluster-wide dse.yaml overrides.
func (c *Cluster) ConfigOverrides() confmerge.Overrides {
	c.mu.Lock()
	defer c.mu.Unlock()
	return confmerge.Layer(c.desc.ConfigOptions)
}

// Nodes returns the nodes in descriptor order.
func (c *Cluster) Nodes() []*node.Node {
	return append([]*node.Node(nil), c.nodes...)
}

// Node looks a node up by name.
// Node 按名称查找节点。
func (c *Cluster) Node(name string) (*node.Node, error) {
	for _, n := range c.nodes {
		if n.Name() == name {
			return n, nil
		}
	}
	return nil, nodeerr.Newf(nodeerr.CodeNodeNotFound, "no node %s in cluster %s", name, c.desc.Name)
}

// Peers returns every node except self.
// Peers 返回除 self 以外的所有节点。
func (c *Cluster) Peers(self string) []node.Peer {
	peers := make([]node.Peer, 0, len(c.nodes))
	for _, n := range c.nodes {
		if n.Name() != self {
			peers = append(peers, n)
		}
	}
	return peers
}

// SaveNodeConfig writes a node's workloads and overrides back to the
// descriptor.
// SaveNodeConfig 将节点的工作负载和覆盖项写回描述文件。
func (c *Cluster) SaveNodeConfig(cfg node.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.desc.Nodes {
		spec := &c.desc.Nodes[i]
		if spec.Name != cfg.Name {
			continue
		}
		spec.Interfaces = cfg.Interfaces
		spec.JMXPort = cfg.JMXPort
		spec.InitialToken = cfg.InitialToken
		spec.Workloads = append([]node.Workload(nil), cfg.Workloads...)
		spec.ConfigOptions = confmerge.Layer(cfg.ConfigOverrides)
		return c.writeLocked()
	}
	return nodeerr.Newf(nodeerr.CodeNodeNotFound, "no node %s in cluster %s", cfg.Name, c.desc.Name)
}

// writeLocked replaces the descriptor through a temporary sibling.
func (c *Cluster) writeLocked() error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c.desc); err != nil {
		return fmt.Errorf("failed to encode cluster descriptor: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode cluster descriptor: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.file), "."+DescriptorName+".*")
	if err != nil {
		return fmt.Errorf("failed to write cluster descriptor: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cluster descriptor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cluster descriptor: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.file); err != nil {
		return fmt.Errorf("failed to write cluster descriptor: %w", err)
	}
	return nil
}
