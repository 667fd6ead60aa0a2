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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMergeStructured(t *testing.T) {
	tests := []struct {
		name    string
		doc     Document
		cluster Overrides
		node    Overrides
		want    Document
	}{
		{
			name: "insert missing key",
			doc:  Document{"a": 1},
			node: Overrides{"b": "x"},
			want: Document{"a": 1, "b": "x"},
		},
		{
			name: "absent deletes",
			doc:  Document{"timeout": 10, "keep": true},
			node: Overrides{"timeout": Absent},
			want: Document{"keep": true},
		},
		{
			name: "nil deletes",
			doc:  Document{"timeout": 10},
			node: Overrides{"timeout": nil},
			want: Document{},
		},
		{
			name: "absent on missing key is a no-op",
			doc:  Document{"a": 1},
			node: Overrides{"b": Absent},
			want: Document{"a": 1},
		},
		{
			name: "mapping merges key by key",
			doc: Document{"ldap_options": map[string]interface{}{
				"server_host": "localhost",
				"server_port": 389,
			}},
			node: Overrides{"ldap_options": map[string]interface{}{
				"server_port": 636,
				"use_ssl":     true,
			}},
			want: Document{"ldap_options": map[string]interface{}{
				"server_host": "localhost",
				"server_port": 636,
				"use_ssl":     true,
			}},
		},
		{
			name: "nested absent deletes inside mapping",
			doc: Document{"audit": map[string]interface{}{
				"enabled": true,
				"logger":  "SLF4J",
			}},
			node: Overrides{"audit": map[string]interface{}{"logger": Absent}},
			want: Document{"audit": map[string]interface{}{"enabled": true}},
		},
		{
			name: "scalar replaces mapping",
			doc:  Document{"x": map[string]interface{}{"y": 1}},
			node: Overrides{"x": 5},
			want: Document{"x": 5},
		},
		{
			name: "mapping replaces scalar without markers",
			doc:  Document{"x": 5},
			node: Overrides{"x": map[string]interface{}{"y": 1, "z": Absent}},
			want: Document{"x": map[string]interface{}{"y": 1}},
		},
		{
			name:    "node layer wins over cluster layer",
			doc:     Document{"max_solr_concurrency_per_core": 1},
			cluster: Overrides{"max_solr_concurrency_per_core": 2, "cluster_only": "c"},
			node:    Overrides{"max_solr_concurrency_per_core": 3},
			want:    Document{"max_solr_concurrency_per_core": 3, "cluster_only": "c"},
		},
		{
			name:    "node absent removes cluster value",
			doc:     Document{},
			cluster: Overrides{"k": "v"},
			node:    Overrides{"k": Absent},
			want:    Document{},
		},
		{
			name: "map[interface{}]interface{} overrides are accepted",
			doc:  Document{"m": map[string]interface{}{"a": 1}},
			node: Overrides{"m": map[interface{}]interface{}{"b": 2}},
			want: Document{"m": map[string]interface{}{"a": 1, "b": 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeStructured(tt.doc, tt.cluster, tt.node)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeStructured_DoesNotMutateInput(t *testing.T) {
	doc := Document{"m": map[string]interface{}{"a": 1}}
	_ = MergeStructured(doc, nil, Overrides{"m": map[string]interface{}{"a": 2}})
	assert.Equal(t, Document{"m": map[string]interface{}{"a": 1}}, doc)
}

func TestLayer(t *testing.T) {
	got := Layer(Overrides{"a": 1, "b": 1}, Overrides{"b": 2}, nil, Overrides{"c": Absent})
	assert.Equal(t, Overrides{"a": 1, "b": 2, "c": Absent}, got)
	assert.Equal(t, []string{"a", "b", "c"}, got.Keys())
}

func TestIsAbsent(t *testing.T) {
	assert.True(t, IsAbsent(Absent))
	assert.True(t, IsAbsent(nil))
	assert.False(t, IsAbsent(""))
	assert.False(t, IsAbsent(map[string]interface{}{}))
	assert.Equal(t, "<absent>", Absent.String())
}

func TestAbsent_PersistsAsNull(t *testing.T) {
	data, err := yaml.Marshal(Overrides{"timeout": Absent})
	require.NoError(t, err)
	assert.Equal(t, "timeout: null\n", string(data))

	var back Overrides
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.True(t, IsAbsent(back["timeout"]))

	js, err := json.Marshal(Overrides{"timeout": Absent})
	require.NoError(t, err)
	assert.JSONEq(t, `{"timeout":null}`, string(js))
}
