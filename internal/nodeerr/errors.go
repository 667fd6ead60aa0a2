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

// Package nodeerr defines the error kinds surfaced by node lifecycle operations.
// Package nodeerr 定义节点生命周期操作返回的错误类型。
package nodeerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors, one per error kind. Every *Error unwraps to exactly one of them.
// 哨兵错误，每种错误类型一个。每个 *Error 都会解包为其中之一。
var (
	// ErrAlreadyRunning indicates a start was requested for a live node
	// ErrAlreadyRunning 表示对已在运行的节点请求启动
	ErrAlreadyRunning = errors.New("node is already running")

	// ErrPortUnavailable indicates a node network interface is already bound
	// ErrPortUnavailable 表示节点网络接口已被占用
	ErrPortUnavailable = errors.New("network interface is not available")

	// ErrStartFailed indicates the launched process was not alive after the wait policy finished
	// ErrStartFailed 表示等待策略结束后进程未存活
	ErrStartFailed = errors.New("node failed to start")

	// ErrPrecondition indicates an operation was invoked in the wrong mode
	// ErrPrecondition 表示操作在错误的模式下被调用
	ErrPrecondition = errors.New("precondition failed")

	// ErrConfigIO indicates a configuration file could not be read or written
	// ErrConfigIO 表示配置文件读写失败
	ErrConfigIO = errors.New("configuration file i/o failed")

	// ErrProcessSignal indicates a signal could not be delivered to a process
	// ErrProcessSignal 表示无法向进程发送信号
	ErrProcessSignal = errors.New("failed to signal process")

	// ErrStopFailed indicates the node process survived a waited stop
	// ErrStopFailed 表示等待停止后节点进程仍然存活
	ErrStopFailed = errors.New("node failed to stop")

	// ErrNodeNotFound indicates an unknown node name
	// ErrNodeNotFound 表示节点名称不存在
	ErrNodeNotFound = errors.New("node not found")
)

// Code identifies the error kind in logs, the journal and API responses.
// Code 在日志、事件日志和 API 响应中标识错误类型。
type Code string

const (
	CodeAlreadyRunning  Code = "ALREADY_RUNNING"
	CodePortUnavailable Code = "PORT_UNAVAILABLE"
	CodeStartFailed     Code = "START_FAILED"
	CodePrecondition    Code = "PRECONDITION_FAILED"
	CodeConfigIO        Code = "CONFIG_IO"
	CodeProcessSignal   Code = "PROCESS_SIGNAL"
	CodeStopFailed      Code = "STOP_FAILED"
	CodeNodeNotFound    Code = "NODE_NOT_FOUND"
)

var sentinels = map[Code]error{
	CodeAlreadyRunning:  ErrAlreadyRunning,
	CodePortUnavailable: ErrPortUnavailable,
	CodeStartFailed:     ErrStartFailed,
	CodePrecondition:    ErrPrecondition,
	CodeConfigIO:        ErrConfigIO,
	CodeProcessSignal:   ErrProcessSignal,
	CodeStopFailed:      ErrStopFailed,
	CodeNodeNotFound:    ErrNodeNotFound,
}

// Error carries the context needed to troubleshoot a failed node operation.
// Error 携带排查节点操作失败所需的上下文。
type Error struct {
	Code    Code
	Message string

	// Context holds details such as the node name, address or pid.
	// Context 保存节点名称、地址或 pid 等细节。
	Context map[string]interface{}

	// Output is whatever the launched process printed before failing.
	// Output 是启动进程在失败前输出的内容。
	Output string

	Cause      error
	Suggestion string
}

// New creates an error of the given kind.
// New 创建指定类型的错误。
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("[%s] %s", e.Code, e.Message)}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		kv := make([]string, 0, len(keys))
		for _, k := range keys {
			kv = append(kv, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, "context: "+strings.Join(kv, ", "))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}
	if e.Suggestion != "" {
		parts = append(parts, "suggestion: "+e.Suggestion)
	}
	return strings.Join(parts, "; ")
}

// Unwrap exposes both the kind sentinel and the underlying cause to errors.Is/As.
// Unwrap 同时向 errors.Is/As 暴露类型哨兵和底层原因。
func (e *Error) Unwrap() []error {
	var errs []error
	if s, ok := sentinels[e.Code]; ok {
		errs = append(errs, s)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// WithContext adds a key/value detail.
// WithContext 添加键值细节。
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCause records the underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithOutput attaches captured process output.
func (e *Error) WithOutput(output string) *Error {
	e.Output = output
	return e
}

// WithSuggestion adds an actionable hint.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// CodeOf returns the kind of err, or "" when err is not a node error.
// CodeOf 返回 err 的类型；若不是节点错误则返回空字符串。
func CodeOf(err error) Code {
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Code
	}
	for code, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ""
}

// OutputOf returns the captured process output carried by err, if any.
// OutputOf 返回 err 携带的进程输出（如有）。
func OutputOf(err error) string {
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Output
	}
	return ""
}
