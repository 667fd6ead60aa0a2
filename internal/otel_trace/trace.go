/*
 * MIT License
 *
 * Copyright (c) 2025 linux.do
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package otel_trace

import (
	"context"
	"sync"

	"github.com/mike-tr-adamson/ccm/internal/config"
	"github.com/mike-tr-adamson/ccm/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	instrumentationName = "github.com/mike-tr-adamson/ccm"
	defaultServiceName  = "ccm-node"
)

var (
	// Tracer creates the node, tool and API spans. It stays nil until Init.
	Tracer trace.Tracer

	mu       sync.Mutex
	initOnce sync.Once
	provider *sdktrace.TracerProvider
)

// Init sets up tracing once per process. With telemetry disabled, or when the
// exporter cannot be built, spans are no-ops.
// Init 在进程内初始化一次追踪。禁用遥测或导出器创建失败时，span 为空操作。
func Init(cfg config.TelemetryConfig) {
	initOnce.Do(func() {
		ctx := context.Background()
		mu.Lock()
		defer mu.Unlock()

		if !cfg.Enabled {
			Tracer = noop.NewTracerProvider().Tracer(instrumentationName)
			return
		}

		tp, err := newTracerProvider(ctx, cfg)
		if err != nil {
			logger.WarnF(ctx, "[Trace] tracing disabled, exporter for %s failed: %v", cfg.Endpoint, err)
			Tracer = noop.NewTracerProvider().Tracer(instrumentationName)
			return
		}

		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		otel.SetTracerProvider(tp)
		provider = tp
		Tracer = tp.Tracer(instrumentationName)
		logger.InfoF(ctx, "[Trace] exporting spans to %s as %s", cfg.Endpoint, serviceName(cfg))
	})
}

func serviceName(cfg config.TelemetryConfig) string {
	if cfg.ServiceName == "" {
		return defaultServiceName
	}
	return cfg.ServiceName
}

// newTracerProvider batches spans to an OTLP/gRPC collector.
// newTracerProvider 将 span 批量导出到 OTLP/gRPC 收集器。
func newTracerProvider(ctx context.Context, cfg config.TelemetryConfig) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName(cfg))))
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// IsEnabled reports whether spans are exported.
// IsEnabled 返回 span 是否会被导出。
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return provider != nil
}

// Shutdown flushes pending spans. Safe to call when tracing is disabled.
// Shutdown 刷新待导出的 span，追踪未启用时调用也是安全的。
func Shutdown(ctx context.Context) {
	mu.Lock()
	tp := provider
	provider = nil
	mu.Unlock()
	if tp == nil {
		return
	}
	if err := tp.Shutdown(ctx); err != nil {
		logger.WarnF(ctx, "[Trace] failed to flush spans: %v", err)
	}
}

// Start opens a span on Tracer, or returns a no-op span before Init.
func Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if Tracer == nil {
		return ctx, noop.Span{}
	}
	return Tracer.Start(ctx, name, opts...)
}
