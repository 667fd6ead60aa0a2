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
	"sort"
	"strings"

	"github.com/beevik/etree"
)

const xmlRootElement = "configuration"

// Property is one name/value entry of a Hadoop-style XML configuration.
// An empty Value removes the property.
// Property 是 Hadoop 风格 XML 配置中的一个名称/值条目，空值表示删除。
type Property struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// PropertiesFromMap orders a name/value map by name.
// PropertiesFromMap 将名称/值映射按名称排序转换为属性列表。
func PropertiesFromMap(values map[string]string) []Property {
	out := make([]Property, 0, len(values))
	for name, value := range values {
		out = append(out, Property{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MergeXMLProperties updates, appends or deletes <property> entries under the
// document root. New properties are appended in the order given.
// MergeXMLProperties 在根元素下更新、追加或删除 <property> 条目，新属性按给定顺序追加。
func MergeXMLProperties(doc *etree.Document, values []Property) {
	root := doc.Root()
	if root == nil {
		root = doc.CreateElement(xmlRootElement)
	}

	for _, p := range values {
		prop := findProperty(root, p.Name)
		switch {
		case prop != nil && p.Value == "":
			root.RemoveChild(prop)
		case prop != nil:
			value := prop.SelectElement("value")
			if value == nil {
				value = prop.CreateElement("value")
			}
			value.SetText(p.Value)
		case p.Value != "":
			prop = root.CreateElement("property")
			prop.CreateElement("name").SetText(p.Name)
			prop.CreateElement("value").SetText(p.Value)
		}
	}
}

// PropertyValue returns the value of the named property.
// PropertyValue 返回指定属性的值。
func PropertyValue(doc *etree.Document, name string) (string, bool) {
	root := doc.Root()
	if root == nil {
		return "", false
	}
	prop := findProperty(root, name)
	if prop == nil {
		return "", false
	}
	if value := prop.SelectElement("value"); value != nil {
		return value.Text(), true
	}
	return "", true
}

// PropertyNames lists property names in document order.
func PropertyNames(doc *etree.Document) []string {
	root := doc.Root()
	if root == nil {
		return nil
	}
	var names []string
	for _, prop := range root.SelectElements("property") {
		if name := prop.SelectElement("name"); name != nil {
			names = append(names, strings.TrimSpace(name.Text()))
		}
	}
	return names
}

func findProperty(root *etree.Element, name string) *etree.Element {
	for _, prop := range root.SelectElements("property") {
		n := prop.SelectElement("name")
		if n != nil && strings.TrimSpace(n.Text()) == name {
			return prop
		}
	}
	return nil
}
