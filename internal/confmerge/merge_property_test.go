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

package confmerge

import (
	"reflect"
	"testing"

	"github.com/beevik/etree"
	"pgregory.net/rapid"
)

var propertyKeys = []string{"authentication_options", "audit", "timeout", "max_heap", "ldap", "solr"}

func genScalar() *rapid.Generator[interface{}] {
	return rapid.Custom(func(t *rapid.T) interface{} {
		if rapid.Bool().Draw(t, "isInt") {
			return rapid.IntRange(0, 1000).Draw(t, "int")
		}
		return rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "str")
	})
}

func genValue(depth int, withAbsent bool) *rapid.Generator[interface{}] {
	return rapid.Custom(func(t *rapid.T) interface{} {
		max := 1
		if withAbsent {
			max = 2
		}
		if depth > 0 {
			max = 3
		}
		switch rapid.IntRange(0, max).Draw(t, "kind") {
		case 0, 1:
			return genScalar().Draw(t, "scalar")
		case 2:
			if withAbsent {
				return Absent
			}
			return genScalar().Draw(t, "scalar")
		default:
			return genMap(depth-1, withAbsent).Draw(t, "map")
		}
	})
}

func genMap(depth int, withAbsent bool) *rapid.Generator[map[string]interface{}] {
	return rapid.Custom(func(t *rapid.T) map[string]interface{} {
		n := rapid.IntRange(0, 4).Draw(t, "size")
		m := make(map[string]interface{}, n)
		for i := 0; i < n; i++ {
			key := rapid.SampledFrom(propertyKeys).Draw(t, "key")
			m[key] = genValue(depth, withAbsent).Draw(t, "value")
		}
		return m
	})
}

// **Feature: config-merge, Property 1: Override application is idempotent**
//
// Property: applying the same cluster and node overrides to an already merged
// document SHALL leave it unchanged.
// 属性：对已合并的文档再次应用相同的覆盖项，文档保持不变。
func TestProperty_MergeStructuredIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := Document(genMap(2, false).Draw(t, "doc"))
		cluster := Overrides(genMap(2, true).Draw(t, "cluster"))
		node := Overrides(genMap(2, true).Draw(t, "node"))

		once := MergeStructured(doc, cluster, node)
		twice := MergeStructured(once, cluster, node)

		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("merge is not idempotent\nonce:  %#v\ntwice: %#v", once, twice)
		}
	})
}

// **Feature: config-merge, Property 2: Node overrides win over cluster overrides**
//
// Property: a key present in both layers SHALL end with the node layer's outcome,
// and a key the node layer marks absent SHALL not appear in the result.
// 属性：两层都存在的键以节点层为准；节点层标记为缺失的键不出现在结果中。
func TestProperty_MergeStructuredNodeWins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := Document(genMap(1, false).Draw(t, "doc"))
		cluster := Overrides(genMap(1, true).Draw(t, "cluster"))
		node := Overrides(genMap(1, true).Draw(t, "node"))

		merged := MergeStructured(doc, cluster, node)
		nodeOnly := MergeStructured(doc, nil, Layer(cluster, node))
		if !reflect.DeepEqual(merged, nodeOnly) {
			t.Fatalf("layering differs from a single layered override set")
		}

		for key, value := range node {
			got, ok := merged[key]
			switch {
			case IsAbsent(value):
				if ok {
					t.Fatalf("key %q marked absent is still present: %#v", key, got)
				}
			case !isMapping(value):
				if !ok || !reflect.DeepEqual(got, value) {
					t.Fatalf("key %q = %#v, want node value %#v", key, got, value)
				}
			}
		}
	})
}

func isMapping(v interface{}) bool {
	_, ok := asMap(v)
	return ok
}

type modelProperty struct {
	name, value string
}

// **Feature: config-merge, Property 3: XML properties keep encounter order**
//
// Property: merging SHALL update existing properties in place, drop those given
// an empty value and append new ones in the order they were given; a second
// merge of the same values SHALL produce an identical document.
// 属性：合并时原地更新已有属性、删除空值属性、按给定顺序追加新属性；再次合并结果不变。
func TestProperty_MergeXMLPropertiesOrder(t *testing.T) {
	names := []string{"fs.default.name", "hadoop.tmp.dir", "io.file.buffer.size", "dfs.replication", "mapred.job.tracker"}

	rapid.Check(t, func(t *rapid.T) {
		var model []modelProperty
		doc := etree.NewDocument()
		root := doc.CreateElement("configuration")
		for _, name := range names {
			if rapid.Bool().Draw(t, "preexisting") {
				value := rapid.StringMatching(`[a-z0-9]{1,6}`).Draw(t, "existingValue")
				prop := root.CreateElement("property")
				prop.CreateElement("name").SetText(name)
				prop.CreateElement("value").SetText(value)
				model = append(model, modelProperty{name, value})
			}
		}

		n := rapid.IntRange(0, 8).Draw(t, "ops")
		values := make([]Property, 0, n)
		for i := 0; i < n; i++ {
			values = append(values, Property{
				Name:  rapid.SampledFrom(names).Draw(t, "name"),
				Value: rapid.SampledFrom([]string{"", "1", "2", "/tmp/x"}).Draw(t, "value"),
			})
		}

		for _, p := range values {
			idx := -1
			for i, m := range model {
				if m.name == p.Name {
					idx = i
					break
				}
			}
			switch {
			case idx >= 0 && p.Value == "":
				model = append(model[:idx], model[idx+1:]...)
			case idx >= 0:
				model[idx].value = p.Value
			case p.Value != "":
				model = append(model, modelProperty{p.Name, p.Value})
			}
		}

		MergeXMLProperties(doc, values)

		gotNames := PropertyNames(doc)
		if len(gotNames) != len(model) {
			t.Fatalf("got %d properties %v, want %d", len(gotNames), gotNames, len(model))
		}
		for i, m := range model {
			if gotNames[i] != m.name {
				t.Fatalf("property %d = %q, want %q", i, gotNames[i], m.name)
			}
			if v, _ := PropertyValue(doc, m.name); v != m.value {
				t.Fatalf("property %q = %q, want %q", m.name, v, m.value)
			}
		}

		doc.Indent(2)
		first, err := doc.WriteToString()
		if err != nil {
			t.Fatal(err)
		}
		MergeXMLProperties(doc, values)
		doc.Indent(2)
		second, err := doc.WriteToString()
		if err != nil {
			t.Fatal(err)
		}
		if first != second {
			t.Fatalf("xml merge is not idempotent\nfirst:\n%s\nsecond:\n%s", first, second)
		}
	})
}
