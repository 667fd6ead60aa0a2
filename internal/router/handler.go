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

package router

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mike-tr-adamson/ccm/internal/cluster"
	"github.com/mike-tr-adamson/ccm/internal/confmerge"
	"github.com/mike-tr-adamson/ccm/internal/journal"
	"github.com/mike-tr-adamson/ccm/internal/node"
	"github.com/mike-tr-adamson/ccm/internal/nodeerr"
)

const nodeKey = "ccm.node"

// Response is the envelope of every API response.
// Response 是所有 API 响应的外层结构。
type Response struct {
	ErrorMsg string      `json:"error_msg"`
	Data     interface{} `json:"data"`
}

// StartRequest represents the request for starting a node. Unset fields keep
// the defaults of node.DefaultStartOptions.
// StartRequest 表示启动节点的请求，未设置的字段使用 node.DefaultStartOptions 的默认值。
type StartRequest struct {
	JoinRing           *bool    `json:"join_ring"`
	NoWait             bool     `json:"no_wait"`
	Verbose            bool     `json:"verbose"`
	WaitOtherNotice    bool     `json:"wait_other_notice"`
	WaitForBinaryProto bool     `json:"wait_for_binary_proto"`
	ReplaceToken       string   `json:"replace_token"`
	ReplaceAddress     string   `json:"replace_address"`
	JVMArgs            []string `json:"jvm_args"`
	UseJNA             bool     `json:"use_jna"`
	Debug              bool     `json:"debug"`
	Timeout            string   `json:"timeout"` // e.g. "90s"
}

// StopRequest represents the request for stopping a node.
// StopRequest 表示停止节点的请求。
type StopRequest struct {
	Wait            *bool `json:"wait"`
	WaitOtherNotice bool  `json:"wait_other_notice"`
	Gently          *bool `json:"gently"`
}

// WorkloadRequest replaces the workload set.
type WorkloadRequest struct {
	Workloads []string `json:"workloads"`
}

// ConfigRequest sets dse.yaml overrides; a null value deletes the key.
// ConfigRequest 设置 dse.yaml 覆盖项，null 值表示删除该键。
type ConfigRequest struct {
	Options map[string]interface{} `json:"options" binding:"required"`
}

// XMLConfigRequest merges properties into a product XML file.
type XMLConfigRequest struct {
	Product string            `json:"product" binding:"required"`
	File    string            `json:"file" binding:"required"`
	Values  map[string]string `json:"values"`
}

// ToolRequest carries the arguments of a tool run.
type ToolRequest struct {
	Args []string `json:"args"`
}

// ToolResult is the outcome of a tool run.
// ToolResult 是工具运行的结果。
type ToolResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Handler serves the node routes.
// Handler 处理节点相关路由。
type Handler struct {
	cluster *cluster.Cluster
	journal *journal.Repository
}

// Health handles GET /healthz
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Data: gin.H{"status": "ok"}})
}

// nodeMiddleware resolves :name or answers 404.
func (h *Handler) nodeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := h.cluster.Node(c.Param("name"))
		if err != nil {
			abort(c, err)
			return
		}
		c.Set(nodeKey, n)
		c.Next()
	}
}

func currentNode(c *gin.Context) *node.Node {
	return c.MustGet(nodeKey).(*node.Node)
}

// ListNodes handles GET /api/v1/nodes
// ListNodes 处理 GET /api/v1/nodes
func (h *Handler) ListNodes(c *gin.Context) {
	nodes := h.cluster.Nodes()
	statuses := make([]node.Status, 0, len(nodes))
	for _, n := range nodes {
		statuses = append(statuses, n.Status())
	}
	c.JSON(http.StatusOK, Response{Data: statuses})
}

// StartNode handles POST /api/v1/nodes/:name/start
// StartNode 处理 POST /api/v1/nodes/:name/start
func (h *Handler) StartNode(c *gin.Context) {
	var req StartRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	opts := node.DefaultStartOptions()
	if req.JoinRing != nil {
		opts.JoinRing = *req.JoinRing
	}
	opts.NoWait = req.NoWait
	opts.Verbose = req.Verbose
	opts.WaitOtherNotice = req.WaitOtherNotice
	opts.WaitForBinaryProto = req.WaitForBinaryProto
	opts.ReplaceToken = req.ReplaceToken
	opts.ReplaceAddress = req.ReplaceAddress
	opts.JVMArgs = req.JVMArgs
	opts.UseJNA = req.UseJNA
	opts.Debug = req.Debug
	if req.Timeout != "" {
		timeout, err := time.ParseDuration(req.Timeout)
		if err != nil || timeout <= 0 {
			c.JSON(http.StatusBadRequest, Response{ErrorMsg: "invalid timeout / 无效的超时时间: " + req.Timeout})
			return
		}
		opts.Timeout = timeout
	}

	n := currentNode(c)
	if _, err := n.Start(c.Request.Context(), opts); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Data: n.Status()})
}

// StopNode handles POST /api/v1/nodes/:name/stop
// StopNode 处理 POST /api/v1/nodes/:name/stop
func (h *Handler) StopNode(c *gin.Context) {
	var req StopRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	opts := node.DefaultStopOptions()
	if req.Wait != nil {
		opts.Wait = *req.Wait
	}
	if req.Gently != nil {
		opts.Gently = *req.Gently
	}
	opts.WaitOtherNotice = req.WaitOtherNotice

	n := currentNode(c)
	stopped, err := n.Stop(c.Request.Context(), opts)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Data: gin.H{"stopped": stopped, "status": n.Status()}})
}

// GetStatus handles GET /api/v1/nodes/:name/status
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Data: currentNode(c).Status()})
}

// ImportConfig handles POST /api/v1/nodes/:name/import-config
// ImportConfig 处理 POST /api/v1/nodes/:name/import-config
func (h *Handler) ImportConfig(c *gin.Context) {
	n := currentNode(c)
	if err := n.ImportConfig(c.Request.Context()); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Data: n.Config()})
}

// SetWorkload handles PUT /api/v1/nodes/:name/workload
// SetWorkload 处理 PUT /api/v1/nodes/:name/workload
func (h *Handler) SetWorkload(c *gin.Context) {
	var req WorkloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{ErrorMsg: err.Error()})
		return
	}
	workloads := make([]node.Workload, len(req.Workloads))
	for i, w := range req.Workloads {
		workloads[i] = node.Workload(w)
	}

	n := currentNode(c)
	if err := n.SetWorkload(c.Request.Context(), workloads); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Data: n.Status()})
}

// SetConfig handles PUT /api/v1/nodes/:name/config
// SetConfig 处理 PUT /api/v1/nodes/:name/config
func (h *Handler) SetConfig(c *gin.Context) {
	var req ConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{ErrorMsg: err.Error()})
		return
	}
	overrides := make(confmerge.Overrides, len(req.Options))
	for k, v := range req.Options {
		if v == nil {
			v = confmerge.Absent
		}
		overrides[k] = v
	}

	n := currentNode(c)
	if err := n.SetConfigOptions(c.Request.Context(), overrides); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Data: n.Config()})
}

// SetXMLConfig handles PUT /api/v1/nodes/:name/xml-config
func (h *Handler) SetXMLConfig(c *gin.Context) {
	var req XMLConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{ErrorMsg: err.Error()})
		return
	}
	if err := currentNode(c).SetXMLConfigurationOptions(c.Request.Context(), req.Product, req.File, req.Values); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Data: gin.H{"product": req.Product, "file": req.File, "updated": len(req.Values)}})
}

// RunTool handles POST /api/v1/nodes/:name/tools/:tool
// RunTool 处理 POST /api/v1/nodes/:name/tools/:tool
//
// The tool is dispatched by node.Exec. A non-zero exit code is still a
// successful call.
// 工具由 node.Exec 分派，非零退出码也视为调用成功。
func (h *Handler) RunTool(c *gin.Context) {
	var req ToolRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	var stdout, stderr bytes.Buffer
	stdio := node.Stdio{In: strings.NewReader(""), Out: &stdout, Err: &stderr}
	ctx := c.Request.Context()
	n := currentNode(c)

	code, err := n.Exec(ctx, c.Param("tool"), req.Args, stdio)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Data: ToolResult{ExitCode: code, Stdout: stdout.String(), Stderr: stderr.String()}})
}

// ListEvents handles GET /api/v1/nodes/:name/events
// ListEvents 处理 GET /api/v1/nodes/:name/events
func (h *Handler) ListEvents(c *gin.Context) {
	if h.journal == nil {
		c.JSON(http.StatusServiceUnavailable, Response{ErrorMsg: "journal is disabled / 事件日志未启用"})
		return
	}

	var filter journal.EventFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, Response{ErrorMsg: err.Error()})
		return
	}
	filter.Cluster = h.cluster.Name()
	filter.Node = currentNode(c).Name()
	if filter.PageSize == 0 {
		filter.Page, filter.PageSize = 1, 20
	}

	events, total, err := h.journal.List(c.Request.Context(), &filter)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Data: gin.H{
		"total":     total,
		"events":    events,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	}})
}

// bindOptionalJSON binds a JSON body when one was sent. It writes the 400
// itself and reports false on bad input.
func bindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, Response{ErrorMsg: err.Error()})
		return false
	}
	return true
}

// abort maps node errors onto HTTP statuses.
// abort 将节点错误映射为 HTTP 状态码。
func abort(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, nodeerr.ErrNodeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, nodeerr.ErrAlreadyRunning), errors.Is(err, nodeerr.ErrPortUnavailable):
		status = http.StatusConflict
	case errors.Is(err, nodeerr.ErrPrecondition), errors.Is(err, journal.ErrInvalidFilter):
		status = http.StatusBadRequest
	case errors.Is(err, nodeerr.ErrStartFailed), errors.Is(err, nodeerr.ErrStopFailed):
		status = http.StatusBadGateway
	}

	data := gin.H{}
	if code := nodeerr.CodeOf(err); code != "" {
		data["code"] = code
	}
	if output := nodeerr.OutputOf(err); output != "" {
		data["output"] = output
	}
	c.AbortWithStatusJSON(status, Response{ErrorMsg: err.Error(), Data: data})
}
