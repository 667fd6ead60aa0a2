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

// Package logwatch waits for lines to appear in a growing log file.
// logwatch 包等待不断增长的日志文件中出现指定的行。
//
// A caller takes a Mark before triggering the event it expects, then calls
// WatchFor from that mark, so lines written by earlier runs never match.
// 调用方在触发期望的事件前先记录 Mark，然后从该位置开始 WatchFor，
// 这样旧的运行留下的日志行不会被匹配。
package logwatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWatchTimeout is returned when the context ends before every pattern matched.
// ErrWatchTimeout 表示在所有模式匹配之前上下文已结束。
var ErrWatchTimeout = errors.New("timed out waiting for log lines")

// DefaultPollInterval backs up fsnotify on filesystems that do not deliver events.
const DefaultPollInterval = 500 * time.Millisecond

// Mark is a byte offset into a log file.
// Mark 是日志文件中的字节偏移量。
type Mark int64

// Watcher is the log-watch capability used for readiness checks.
// Watcher 是就绪检查所使用的日志监视能力。
type Watcher interface {
	// Mark returns the current end of the log.
	Mark() (Mark, error)

	// WatchFor blocks until every pattern has matched a line written after
	// from, returning the matching lines in pattern order.
	WatchFor(ctx context.Context, from Mark, patterns ...string) ([]string, error)
}

// FileWatcher watches a single log file.
// FileWatcher 监视单个日志文件。
type FileWatcher struct {
	path         string
	pollInterval time.Duration
}

// Option configures a FileWatcher.
type Option func(*FileWatcher)

// WithPollInterval sets how often the file is re-read without a change event.
func WithPollInterval(d time.Duration) Option {
	return func(w *FileWatcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// NewFileWatcher creates a watcher for path. The file does not need to exist yet.
// NewFileWatcher 为 path 创建监视器，文件可以尚不存在。
func NewFileWatcher(path string, opts ...Option) *FileWatcher {
	w := &FileWatcher{path: path, pollInterval: DefaultPollInterval}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the watched file.
func (w *FileWatcher) Path() string {
	return w.path
}

// Mark returns the current size of the log, or 0 when it does not exist.
// Mark 返回日志当前大小；文件不存在时返回 0。
func (w *FileWatcher) Mark() (Mark, error) {
	info, err := os.Stat(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return Mark(info.Size()), nil
}

// WatchFor implements Watcher.
func (w *FileWatcher) WatchFor(ctx context.Context, from Mark, patterns ...string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	exprs := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid log pattern %q: %w", p, err)
		}
		exprs[i] = re
	}

	var events <-chan fsnotify.Event
	if notifier, err := fsnotify.NewWatcher(); err == nil {
		defer notifier.Close()
		// Watch the directory so creation and rotation of the file are seen too.
		if err := notifier.Add(filepath.Dir(w.path)); err == nil {
			events = notifier.Events
		}
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	t := &tail{path: w.path, offset: int64(from)}
	matched := make([]string, len(exprs))
	found := make([]bool, len(exprs))
	remaining := len(exprs)

	for {
		lines, err := t.read()
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			for i, re := range exprs {
				if !found[i] && re.MatchString(line) {
					found[i] = true
					matched[i] = line
					remaining--
				}
			}
		}
		if remaining == 0 {
			return matched, nil
		}

		select {
		case <-ctx.Done():
			var pending []string
			for i, ok := range found {
				if !ok {
					pending = append(pending, patterns[i])
				}
			}
			return nil, fmt.Errorf("%w in %s: %q: %w", ErrWatchTimeout, w.path, pending, ctx.Err())
		case <-ticker.C:
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
		}
	}
}

// tail reads complete lines appended to a file since the last call.
type tail struct {
	path    string
	offset  int64
	partial []byte
}

func (t *tail) read() ([]string, error) {
	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < t.offset {
		// truncated or rotated
		t.offset = 0
		t.partial = nil
	}
	if info.Size() == t.offset {
		return nil, nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	t.offset += int64(len(data))

	data = append(t.partial, data...)
	var lines []string
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(data[:idx], "\r")))
		data = data[idx+1:]
	}
	t.partial = append([]byte(nil), data...)
	return lines, nil
}
