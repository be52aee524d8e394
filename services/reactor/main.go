// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/AleutianReact/services/gifsearch"
	"github.com/AleutianAI/AleutianReact/services/llm"
	"github.com/AleutianAI/AleutianReact/services/reactor/observability"
	"github.com/AleutianAI/AleutianReact/services/reactor/pipeline"
	"github.com/AleutianAI/AleutianReact/services/reactor/quota"
	"github.com/AleutianAI/AleutianReact/services/reactor/routes"
	"github.com/AleutianAI/AleutianReact/services/reactor/store"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "aleutian-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("reactor-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	port := os.Getenv("REACTOR_PORT")
	if port == "" {
		port = "12230"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	log.Println("Configuring the LLM Client")
	var llmClient llm.LLMClient
	switch os.Getenv("LLM_BACKEND_TYPE") {
	case "ollama":
		llmClient, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	case "openai":
		llmClient, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	default:
		slog.Warn("LLM_BACKEND_TYPE not set or invalid, defaulting to openai")
		llmClient, err = llm.NewOpenAIClient()
	}
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	searchClient, err := gifsearch.NewClient()
	if err != nil {
		log.Fatalf("Failed to initialize Giphy client: %v", err)
	}

	dbPath := os.Getenv("REACTOR_DB_PATH")
	if dbPath == "" {
		dbPath = "reactor.db"
		slog.Warn("REACTOR_DB_PATH not set, defaulting to ./reactor.db")
	}
	recordStore, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open the record store: %v", err)
	}
	defer recordStore.Close()

	quotaDir := os.Getenv("REACTOR_QUOTA_DIR")
	if quotaDir == "" {
		quotaDir = "quota-state"
		slog.Warn("REACTOR_QUOTA_DIR not set, defaulting to ./quota-state")
	}
	quotaDB, err := quota.Open(quotaDir)
	if err != nil {
		log.Fatalf("Failed to open the quota store: %v", err)
	}
	defer quotaDB.Close()
	gate := quota.NewBadgerGate(quotaDB, quota.DefaultLimit, quota.DefaultWindow)

	// Service handles are constructed once here and passed by reference;
	// nothing in the request path recreates a client.
	pipe := pipeline.New(llmClient, searchClient)
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	router := gin.Default()
	router.Use(otelgin.Middleware("reactor-service"))

	routes.SetupRoutes(router, pipe, gate, recordStore, metrics)
	log.Println("started up the container")

	log.Println("Starting the reactor server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
