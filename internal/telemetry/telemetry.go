// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry wires up the tracer and counters the dispatch core's
// transports report through. It is deliberately thin: one tracer, a
// handful of counters, and a constructor that is a no-op exporter when no
// OTLP endpoint is configured.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/fiberplane/mcpcore/internal/mcp/dispatch"
	"github.com/fiberplane/mcpcore/internal/mcp/middleware"
)

// Instrumentation bundles the tracer and request counters a transport
// reports through for every dispatched message.
type Instrumentation struct {
	Tracer trace.Tracer

	DispatchRequests metric.Int64Counter
	DispatchErrors   metric.Int64Counter
	ToolCalls        metric.Int64Counter
	ResourceReads    metric.Int64Counter

	promRegistry  *prometheus.Registry
	promDispatch  *prometheus.CounterVec
	promDispatchE *prometheus.CounterVec
}

// MetricsHandler serves the Prometheus exposition format for this
// Instrumentation's counters, independent of whatever OTLP endpoint (if
// any) New configured — a scrape target doesn't need a collector running.
func (i *Instrumentation) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(i.promRegistry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops any exporters New started. When no OTLP
// endpoint was configured it is a no-op that returns nil.
type Shutdown func(ctx context.Context) error

// New builds an Instrumentation. When otlpEndpoint is empty, tracing and
// metrics run against otel's no-op global providers — spans and counters
// are created and incremented but never exported, which keeps the
// dispatch core's instrumentation calls unconditional regardless of
// whether a collector is configured.
func New(ctx context.Context, serviceName, otlpEndpoint string) (*Instrumentation, Shutdown, error) {
	meterProvider := otel.GetMeterProvider()
	tracerProvider := otel.GetTracerProvider()
	shutdown := Shutdown(func(context.Context) error { return nil })

	if otlpEndpoint != "" {
		res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
			semconv.ServiceName(serviceName),
		))
		if err != nil {
			return nil, nil, fmt.Errorf("telemetry: building resource: %w", err)
		}

		traceExp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(otlpEndpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return nil, nil, fmt.Errorf("telemetry: otlp trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExp),
			sdktrace.WithResource(res),
		)

		metricExp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(otlpEndpoint), otlpmetrichttp.WithInsecure())
		if err != nil {
			return nil, nil, fmt.Errorf("telemetry: otlp metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
			sdkmetric.WithResource(res),
		)

		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		tracerProvider = tp
		meterProvider = mp
		shutdown = func(ctx context.Context) error {
			if err := tp.Shutdown(ctx); err != nil {
				return err
			}
			return mp.Shutdown(ctx)
		}
	}

	tracer := tracerProvider.Tracer("github.com/fiberplane/mcpcore")
	meter := meterProvider.Meter("github.com/fiberplane/mcpcore")

	dispatchRequests, err := meter.Int64Counter("mcpcore.dispatch.requests",
		metric.WithDescription("Number of JSON-RPC messages dispatched"))
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: dispatch.requests counter: %w", err)
	}
	dispatchErrors, err := meter.Int64Counter("mcpcore.dispatch.errors",
		metric.WithDescription("Number of dispatched messages that resulted in an error response"))
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: dispatch.errors counter: %w", err)
	}
	toolCalls, err := meter.Int64Counter("mcpcore.tools.calls",
		metric.WithDescription("Number of tools/call invocations"))
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: tools.calls counter: %w", err)
	}
	resourceReads, err := meter.Int64Counter("mcpcore.resources.reads",
		metric.WithDescription("Number of resources/read invocations"))
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: resources.reads counter: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	promFactory := promauto.With(promRegistry)
	promDispatch := promFactory.NewCounterVec(prometheus.CounterOpts{
		Name: "mcpcore_dispatch_requests_total",
		Help: "Number of JSON-RPC messages dispatched, by method",
	}, []string{"method"})
	promDispatchErrors := promFactory.NewCounterVec(prometheus.CounterOpts{
		Name: "mcpcore_dispatch_errors_total",
		Help: "Number of dispatched messages that resulted in an error response, by method",
	}, []string{"method"})

	return &Instrumentation{
		Tracer:           tracer,
		DispatchRequests: dispatchRequests,
		DispatchErrors:   dispatchErrors,
		ToolCalls:        toolCalls,
		ResourceReads:    resourceReads,
		promRegistry:     promRegistry,
		promDispatch:     promDispatch,
		promDispatchE:    promDispatchErrors,
	}, shutdown, nil
}

// Middleware reports one span and a handful of counters per dispatched
// message. It reads the method off the *dispatch.Context but never
// replaces the ctx it passes downstream — substituting the tracer's
// derived context would sever the *dispatch.Context type assertion every
// other middleware and handler in the chain relies on.
func (i *Instrumentation) Middleware() middleware.Middleware {
	return func(ctx context.Context, next middleware.Next) error {
		method := ""
		if rc, ok := ctx.(*dispatch.Context); ok {
			method = rc.Request.Method
		}
		attrs := metric.WithAttributes(attribute.String("method", method))

		_, span := i.Tracer.Start(ctx, "mcpcore.dispatch")
		defer span.End()

		i.DispatchRequests.Add(ctx, 1, attrs)
		i.promDispatch.WithLabelValues(method).Inc()
		err := next(ctx)
		if err != nil {
			i.DispatchErrors.Add(ctx, 1, attrs)
			i.promDispatchE.WithLabelValues(method).Inc()
		}
		switch {
		case strings.HasPrefix(method, "tools/call"):
			i.ToolCalls.Add(ctx, 1)
		case strings.HasPrefix(method, "resources/read"):
			i.ResourceReads.Add(ctx, 1)
		}
		return err
	}
}
