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

// Package layout provides the file-system helpers a node needs around its
// working directory: copying install trees and resolving platform binaries.
// layout 包提供节点工作目录相关的文件系统辅助功能：复制安装目录树以及解析平台相关的可执行文件。
package layout

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// Local implements the layout operations against the local file system.
// Local 基于本地文件系统实现布局操作。
type Local struct{}

// CopyDirectory copies the regular files directly under src into dst, which
// must exist. Sub-directories are not descended into; existing files are
// overwritten.
// CopyDirectory 将 src 下的普通文件复制到已存在的 dst 中，不递归子目录，已存在的文件会被覆盖。
func (Local) CopyDirectory(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", src, err)
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := copyFile(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// CopyTree copies src recursively to dst. dst must not exist yet.
// CopyTree 递归复制 src 到 dst，dst 必须尚不存在。
func (Local) CopyTree(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("target %s already exists", dst)
	}
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm())
		case d.Type()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			return copyFile(path, target)
		}
		return nil
	})
}

// CopyFile copies one file, keeping its permission bits.
// CopyFile 复制单个文件并保留其权限位。
func (Local) CopyFile(src, dst string) error {
	return copyFile(src, dst)
}

// EnsureDir creates path and its parents when missing.
func (Local) EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path exists.
func (Local) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// BinaryName returns the platform specific name of a launch script.
// BinaryName 返回启动脚本在当前平台上的名称。
func BinaryName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".bat"
	}
	return name
}

// copyFile copies a file from src to dst
// copyFile 将文件从 src 复制到 dst
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	// OpenFile only applies the mode on create
	if err := dstFile.Chmod(info.Mode().Perm()); err != nil {
		return err
	}
	return dstFile.Sync()
}
