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
	"bytes"
	"os"
	"path/filepath"

	"github.com/beevik/etree"
	"github.com/mike-tr-adamson/ccm/internal/nodeerr"
	"gopkg.in/yaml.v3"
)

const xmlIndent = 2

// LoadYAML reads a mapping document. An empty file yields an empty document.
// LoadYAML 读取映射文档，空文件返回空文档。
func LoadYAML(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ioError("read", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, ioError("parse", path, err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// WriteYAML serialises doc in block style with sorted keys.
// WriteYAML 以块格式、按键排序序列化文档。
func WriteYAML(path string, doc Document) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]interface{}(doc)); err != nil {
		return ioError("encode", path, err)
	}
	if err := enc.Close(); err != nil {
		return ioError("encode", path, err)
	}
	return writeFile(path, buf.Bytes())
}

// UpdateYAMLFile performs read, mutate, write on a YAML document.
// UpdateYAMLFile 对 YAML 文档执行读取、修改、写回。
func UpdateYAMLFile(path string, mutate func(Document) Document) error {
	doc, err := LoadYAML(path)
	if err != nil {
		return err
	}
	return WriteYAML(path, mutate(doc))
}

// LoadXML reads an XML document.
// LoadXML 读取 XML 文档。
func LoadXML(path string) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, ioError("read", path, err)
	}
	return doc, nil
}

// WriteXML pretty prints doc to path. Re-indenting drops the old whitespace-only
// text, so repeated rewrites do not accumulate blank lines.
// WriteXML 格式化输出文档；重新缩进会丢弃原有的纯空白文本，多次写回不会累积空行。
func WriteXML(path string, doc *etree.Document) error {
	doc.Indent(xmlIndent)
	data, err := doc.WriteToBytes()
	if err != nil {
		return ioError("encode", path, err)
	}
	return writeFile(path, data)
}

// UpdateXMLFile merges values into the property list stored at path.
// UpdateXMLFile 将属性值合并到 path 处的属性列表中。
func UpdateXMLFile(path string, values []Property) error {
	doc, err := LoadXML(path)
	if err != nil {
		return err
	}
	MergeXMLProperties(doc, values)
	return WriteXML(path, doc)
}

// writeFile replaces path through a temporary sibling so readers never see a
// half written config.
func writeFile(path string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return ioError("write", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ioError("write", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return ioError("write", path, err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return ioError("write", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return ioError("write", path, err)
	}
	return nil
}

func ioError(op, path string, cause error) error {
	return nodeerr.Newf(nodeerr.CodeConfigIO, "failed to %s %s", op, filepath.Base(path)).
		WithContext("path", path).
		WithCause(cause)
}
