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

// Package router 提供 HTTP 路由配置
// Package router provides HTTP routing configuration
package router

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mike-tr-adamson/ccm/internal/cluster"
	"github.com/mike-tr-adamson/ccm/internal/journal"
	"github.com/mike-tr-adamson/ccm/internal/logger"
	"github.com/mike-tr-adamson/ccm/internal/metrics"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Deps are the services the API is built from. Journal and Metrics may be
// nil when disabled.
// Deps 是构建 API 所需的服务，Journal 和 Metrics 在禁用时可以为 nil。
type Deps struct {
	Cluster     *cluster.Cluster
	Journal     *journal.Repository
	Metrics     *metrics.Collector
	ServiceName string
	Env         string
}

// New builds the gin engine with every route registered.
// New 构建注册了全部路由的 gin 引擎。
func New(deps Deps) *gin.Engine {
	// 运行模式
	// Set run mode
	if deps.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.ServiceName == "" {
		deps.ServiceName = "ccm-node"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(deps.ServiceName), loggerMiddleware())

	h := &Handler{cluster: deps.Cluster, journal: deps.Journal}

	r.GET("/healthz", Health)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// API V1
	apiV1Router := r.Group("/api/v1")
	{
		apiV1Router.GET("/nodes", h.ListNodes)

		nodeRouter := apiV1Router.Group("/nodes/:name")
		nodeRouter.Use(h.nodeMiddleware())
		{
			// Lifecycle / 生命周期
			nodeRouter.POST("/start", h.StartNode)
			nodeRouter.POST("/stop", h.StopNode)
			nodeRouter.GET("/status", h.GetStatus)

			// Configuration / 配置
			nodeRouter.POST("/import-config", h.ImportConfig)
			nodeRouter.PUT("/workload", h.SetWorkload)
			nodeRouter.PUT("/config", h.SetConfig)
			nodeRouter.PUT("/xml-config", h.SetXMLConfig)

			// Tools / 工具
			nodeRouter.POST("/tools/:tool", h.RunTool)

			// Journal / 事件日志
			nodeRouter.GET("/events", h.ListEvents)
		}
	}
	return r
}

// Serve runs the engine on addr until ctx is cancelled, then shuts down
// gracefully.
// Serve 在 addr 上运行引擎，ctx 取消后优雅关闭。
func Serve(ctx context.Context, addr string, engine http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoF(ctx, "[API] HTTP server starting on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	logger.InfoF(ctx, "[API] HTTP server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// loggerMiddleware logs one structured line per request.
func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.L().Info("[API] request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
