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

package node

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mike-tr-adamson/ccm/internal/confmerge"
	"github.com/mike-tr-adamson/ccm/internal/logger"
	"github.com/mike-tr-adamson/ccm/internal/nodeerr"
	"github.com/mike-tr-adamson/ccm/internal/otel_trace"
	"go.opentelemetry.io/otel/attribute"
)

const dseYAML = "dse.yaml"

// configProducts are copied from the install by CopyConfigFiles, in order.
var configProducts = []string{"dse", "cassandra", "hadoop", "sqoop", "hive", "tomcat", "spark", "shark", "mahout", "pig"}

// nodeDirectories are created for every node.
var nodeDirectories = []string{"data", "commitlogs", "saved_caches", "logs", "bin", "keys", "resources"}

// Directories returns the node's working sub-directories by name.
// Directories 按名称返回节点的工作子目录。
func (n *Node) Directories() map[string]string {
	out := make(map[string]string, len(nodeDirectories))
	for _, d := range nodeDirectories {
		out[d] = filepath.Join(n.cfg.Path, d)
	}
	return out
}

// ConfDir returns <node>/resources/<product>/conf.
func (n *Node) ConfDir(product string) string {
	return filepath.Join(n.cfg.Path, "resources", product, "conf")
}

func (n *Node) installConfDir(product string) string {
	return filepath.Join(n.cfg.InstallDir, "resources", product, "conf")
}

// SetWorkload replaces the workload set and persists it. It takes effect on
// the next start.
// SetWorkload 替换工作负载集合并持久化，下次启动时生效。
func (n *Node) SetWorkload(ctx context.Context, workloads []Workload) error {
	tags := make([]string, len(workloads))
	for i, w := range workloads {
		tags[i] = string(w)
	}
	parsed, err := ParseWorkloads(tags)
	if err != nil {
		return nodeerr.New(nodeerr.CodePrecondition, err.Error()).WithContext("node", n.cfg.Name)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.cfg.Workloads = parsed
	logger.InfoF(ctx, "[Node] %s: workload set to %v", n.cfg.Name, parsed)
	return n.persist()
}

// Configure implements Product by applying dse.yaml overrides.
func (n *Node) Configure(ctx context.Context, overrides confmerge.Overrides) error {
	return n.SetConfigOptions(ctx, overrides)
}

// SetConfigOptions records overrides on the node (Absent deletes a key from
// dse.yaml) and re-imports the dse config so they take effect.
// SetConfigOptions 在节点上记录覆盖项（Absent 表示从 dse.yaml 删除该键），并重新导入 dse 配置使其生效。
func (n *Node) SetConfigOptions(ctx context.Context, overrides confmerge.Overrides) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	logger.DebugF(ctx, "[Node] %s: setting dse.yaml options %v", n.cfg.Name, overrides.Keys())
	for k, v := range overrides {
		n.cfg.ConfigOverrides[k] = v
	}
	return n.importConfigLocked(ctx)
}

// ImportConfig refreshes <node>/resources/dse/conf from the install and
// re-applies the cluster and node overrides to dse.yaml. The base tree is
// always copied before merging, so overrides win over the fresh copy.
// ImportConfig 从安装目录刷新 <node>/resources/dse/conf，并将集群和节点覆盖项重新应用到 dse.yaml。
// 总是先复制基础配置再合并，保证覆盖项优先于新复制的内容。
func (n *Node) ImportConfig(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.importConfigLocked(ctx)
}

func (n *Node) importConfigLocked(ctx context.Context) error {
	ctx, span := otel_trace.Start(ctx, "node.ImportConfig")
	defer span.End()
	span.SetAttributes(attribute.String("node.name", n.cfg.Name))

	if err := n.persist(); err != nil {
		return err
	}

	confDir := n.ConfDir("dse")
	target := filepath.Join(confDir, dseYAML)
	// Bring an existing document up to date first; the copy below replaces
	// it and the merge after it is the one that counts.
	if n.layout.Exists(target) {
		if err := n.updateDseYAML(target); err != nil {
			return err
		}
	}

	if err := n.layout.EnsureDir(confDir); err != nil {
		return nodeerr.New(nodeerr.CodeConfigIO, "failed to create dse conf directory").
			WithContext("path", confDir).
			WithCause(err)
	}
	source := n.installConfDir("dse")
	if err := n.layout.CopyDirectory(source, confDir); err != nil {
		return nodeerr.New(nodeerr.CodeConfigIO, "failed to copy dse conf from install").
			WithContext("source", source).
			WithCause(err)
	}
	if err := n.updateDseYAML(target); err != nil {
		span.RecordError(err)
		return err
	}
	logger.InfoF(ctx, "[Node] %s: imported dse config with %d override(s)", n.cfg.Name,
		len(confmerge.Layer(n.cluster.ConfigOverrides(), n.cfg.ConfigOverrides)))
	return nil
}

// updateDseYAML points system_key_directory at the node and applies the
// cluster then node overrides.
func (n *Node) updateDseYAML(path string) error {
	keys := filepath.Join(n.cfg.Path, "keys")
	return confmerge.UpdateYAMLFile(path, func(doc confmerge.Document) confmerge.Document {
		doc["system_key_directory"] = keys
		return confmerge.MergeStructured(doc, n.cluster.ConfigOverrides(), n.cfg.ConfigOverrides)
	})
}

// SetXMLConfigurationOptions merges properties into
// <node>/resources/<product>/conf/<file>. An empty value removes the property.
// SetXMLConfigurationOptions 将属性合并到 <node>/resources/<product>/conf/<file>，空值表示删除该属性。
func (n *Node) SetXMLConfigurationOptions(ctx context.Context, product, file string, values map[string]string) error {
	if product == "" || file == "" {
		return nodeerr.New(nodeerr.CodePrecondition, "product and file are required")
	}
	if filepath.Base(file) != file {
		return nodeerr.Newf(nodeerr.CodePrecondition, "invalid config file name %q", file)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	path := filepath.Join(n.ConfDir(product), file)
	if err := confmerge.UpdateXMLFile(path, confmerge.PropertiesFromMap(values)); err != nil {
		return err
	}
	logger.InfoF(ctx, "[Node] %s: updated %d propert(ies) in %s", n.cfg.Name, len(values), path)
	return nil
}

// CopyConfigFiles copies every product's conf directory from the install into
// the node. Products the install does not ship are skipped.
// CopyConfigFiles 将各产品的配置目录从安装目录复制到节点，安装目录未提供的产品会被跳过。
func (n *Node) CopyConfigFiles(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, product := range configProducts {
		source := n.installConfDir(product)
		target := n.ConfDir(product)
		if err := n.layout.EnsureDir(target); err != nil {
			return nodeerr.New(nodeerr.CodeConfigIO, "failed to create conf directory").
				WithContext("product", product).
				WithCause(err)
		}
		if !n.layout.Exists(source) {
			logger.DebugF(ctx, "[Node] %s: install has no %s conf, skipping", n.cfg.Name, product)
			continue
		}
		if err := n.layout.CopyDirectory(source, target); err != nil {
			return nodeerr.New(nodeerr.CodeConfigIO, "failed to copy conf directory").
				WithContext("product", product).
				WithContext("source", source).
				WithCause(err)
		}
		if product == "cassandra" {
			if err := n.layout.EnsureDir(filepath.Join(target, "triggers")); err != nil {
				return nodeerr.New(nodeerr.CodeConfigIO, "failed to create triggers directory").WithCause(err)
			}
		}
	}
	return nil
}

// ImportBinFiles copies the install's launch scripts into the node.
// ImportBinFiles 将安装目录中的启动脚本复制到节点。
func (n *Node) ImportBinFiles(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	copies := []struct{ source, target string }{
		{filepath.Join(n.cfg.InstallDir, "bin"), filepath.Join(n.cfg.Path, "bin")},
		{
			filepath.Join(n.cfg.InstallDir, "resources", "cassandra", "bin"),
			filepath.Join(n.cfg.Path, "resources", "cassandra", "bin"),
		},
	}
	for _, c := range copies {
		if err := n.layout.EnsureDir(c.target); err != nil {
			return nodeerr.New(nodeerr.CodeConfigIO, "failed to create bin directory").WithCause(err)
		}
		if err := n.layout.CopyDirectory(c.source, c.target); err != nil {
			return nodeerr.New(nodeerr.CodeConfigIO, fmt.Sprintf("failed to copy %s", c.source)).WithCause(err)
		}
	}
	logger.InfoF(ctx, "[Node] %s: imported bin files", n.cfg.Name)
	return nil
}
