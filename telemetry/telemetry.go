//
// Copyright (C) 2024 AISHU Technology Corp.
// All rights reserved.
//
// KWeaver is licensed under the Apache License Version 2.0.
//
//

// Package telemetry wires the retrieval pipeline into OpenTelemetry.
// By default the exported Tracer and Meter are no-ops; calling Start
// replaces them with OTLP gRPC backed implementations.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	noopm "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
	noopt "go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// instrumentName identifies spans and metrics emitted by this module.
const instrumentName = "kweaver.retrieval"

var (
	// Tracer is the global tracer for the retrieval pipeline.
	Tracer trace.Tracer = noopt.Tracer{}
	// Meter is the global meter for the retrieval pipeline.
	Meter metric.Meter = noopm.Meter{}
)

// Option configures telemetry bootstrap.
type Option func(*options)

type options struct {
	endpoint       string
	serviceName    string
	serviceVersion string
}

// WithEndpoint sets the OTLP collector endpoint (host and port, no scheme).
// When unset, OTEL_EXPORTER_OTLP_ENDPOINT is consulted before falling back
// to localhost:4317.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

// WithServiceName sets the reported service name.
func WithServiceName(name string) Option {
	return func(o *options) {
		o.serviceName = name
	}
}

// WithServiceVersion sets the reported service version.
func WithServiceVersion(version string) Option {
	return func(o *options) {
		o.serviceVersion = version
	}
}

// Start initializes the OTLP trace and metric providers and swaps the
// package-level Tracer and Meter. The returned clean function flushes and
// shuts down both providers.
func Start(ctx context.Context, opts ...Option) (clean func() error, err error) {
	o := &options{
		endpoint:       defaultEndpoint(),
		serviceName:    "kweaver-sub002",
		serviceVersion: "v0.1.0",
	}
	for _, opt := range opts {
		opt(o)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(o.serviceName),
			semconv.ServiceVersion(o.serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	conn, err := grpc.NewClient(o.endpoint,
		// Insecure transport; put TLS termination in front of the collector.
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(traceExporter)),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	clean = func() error {
		var err error
		if terr := tracerProvider.Shutdown(context.Background()); terr != nil {
			err = errors.Join(err, fmt.Errorf("failed to shutdown TracerProvider: %w", terr))
		}
		if merr := meterProvider.Shutdown(context.Background()); merr != nil {
			err = errors.Join(err, fmt.Errorf("failed to shutdown MeterProvider: %w", merr))
		}
		return err
	}

	Tracer = otel.Tracer(instrumentName)
	Meter = otel.Meter(instrumentName)
	return clean, nil
}

func defaultEndpoint() string {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	return "localhost:4317"
}
