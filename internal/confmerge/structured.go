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

// Package confmerge layers runtime overrides onto node configuration files.
// confmerge 包将运行时覆盖项叠加到节点配置文件上。
//
// Two formats are handled: a YAML mapping document (dse.yaml) and Hadoop-style
// XML property lists (core-site.xml and friends). Applying the same overrides
// twice always yields the same file.
// 支持两种格式：YAML 映射文档（dse.yaml）和 Hadoop 风格的 XML 属性列表。
// 同一组覆盖项应用两次得到的文件完全相同。
package confmerge

import (
	"fmt"
	"sort"
)

type absent struct{}

func (absent) String() string { return "<absent>" }

// MarshalYAML persists the marker as null, which reads back as absent.
func (absent) MarshalYAML() (interface{}, error) { return nil, nil }

func (absent) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// Absent marks an override that deletes its key. A nil value means the same,
// so `key: ~` in a YAML override file also deletes.
// Absent 标记删除对应键的覆盖项。nil 值含义相同。
var Absent = absent{}

// IsAbsent reports whether v is a deletion marker.
func IsAbsent(v interface{}) bool {
	return v == nil || v == Absent
}

// Document is a parsed YAML mapping document.
// Document 是解析后的 YAML 映射文档。
type Document map[string]interface{}

// Overrides maps top-level option names to values. A mapping value merges into
// the existing mapping key by key.
// Overrides 将顶层选项名映射到值。映射类型的值会逐键合并到已有映射中。
type Overrides map[string]interface{}

// Layer combines override sets by top-level name; later sets win.
// Layer 按顶层名称合并多组覆盖项，后者优先。
func Layer(layers ...Overrides) Overrides {
	out := make(Overrides)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// Keys returns the override names in sorted order.
func (o Overrides) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MergeStructured applies cluster overrides then node overrides to doc and
// returns the merged document. doc itself is left untouched.
// MergeStructured 依次应用集群覆盖项和节点覆盖项，返回合并后的文档，不修改 doc。
func MergeStructured(doc Document, clusterOverrides, nodeOverrides Overrides) Document {
	out := Document(deepCopyMap(doc))
	mergeInto(out, Layer(clusterOverrides, nodeOverrides))
	return out
}

// mergeInto applies overrides to dst in place.
func mergeInto(dst map[string]interface{}, overrides map[string]interface{}) {
	// Sorted for deterministic traversal; results do not depend on it.
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, name := range keys {
		value := overrides[name]
		if IsAbsent(value) {
			delete(dst, name)
			continue
		}

		overrideMap, isMap := asMap(value)
		if !isMap {
			dst[name] = deepCopy(value)
			continue
		}

		existing, ok := asMap(dst[name])
		if !ok {
			existing = make(map[string]interface{})
		} else {
			existing = deepCopyMap(existing)
		}
		mergeInto(existing, overrideMap)
		dst[name] = existing
	}
}

// asMap normalises the mapping shapes produced by yaml.v3, JSON decoding and
// callers building overrides by hand.
func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Overrides:
		return map[string]interface{}(m), true
	case Document:
		return map[string]interface{}(m), true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v interface{}) interface{} {
	if m, ok := asMap(v); ok {
		return deepCopyMap(m)
	}
	if s, ok := v.([]interface{}); ok {
		out := make([]interface{}, len(s))
		for i, item := range s {
			out[i] = deepCopy(item)
		}
		return out
	}
	return v
}
