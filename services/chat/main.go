// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/medicare-health/medicare-server/pkg/identity"
	"github.com/medicare-health/medicare-server/pkg/logging"
	"github.com/medicare-health/medicare-server/services/chat/config"
	"github.com/medicare-health/medicare-server/services/chat/middleware"
	"github.com/medicare-health/medicare-server/services/chat/routes"
	"github.com/medicare-health/medicare-server/services/chat/storage"
	badgerpkg "github.com/medicare-health/medicare-server/services/chat/storage/badger"
	"github.com/medicare-health/medicare-server/services/llm"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "medicare-otel-collector:4317"
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
		resource.WithAttributes(semconv.ServiceNameKey.String("chat-service")))
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

// buildStore creates the configured store backend. A backend that fails
// to open degrades to the unavailable store so the service still serves
// chat turns (replies are generated but not persisted).
func buildStore(ctx context.Context, cfg config.StoreConfig) (storage.Store, bool) {
	switch cfg.Type {
	case "", "memory":
		slog.Info("Using in-memory message store")
		return storage.NewMemoryStore(), false

	case "badger":
		db, err := badgerpkg.OpenWithPath(cfg.Path)
		if err != nil {
			slog.Error("Failed to open BadgerDB, degrading to unavailable store",
				"path", cfg.Path, "error", err)
			return storage.UnavailableStore{}, true
		}
		slog.Info("Using BadgerDB message store", "path", cfg.Path)
		return storage.NewBadgerStore(db, cfg.Namespace), false

	case "firestore":
		store, err := storage.NewFirestoreStore(ctx, cfg.ProjectID, cfg.Namespace)
		if err != nil {
			slog.Error("Failed to create Firestore client, degrading to unavailable store",
				"projectId", cfg.ProjectID, "error", err)
			return storage.UnavailableStore{}, true
		}
		slog.Info("Using Firestore message store", "projectId", cfg.ProjectID)
		return store, false

	default:
		slog.Error("Unknown store type, degrading to unavailable store", "type", cfg.Type)
		return storage.UnavailableStore{}, true
	}
}

func buildAIClient(backendType string) (llm.AnalysisClient, error) {
	switch backendType {
	case "", "gemini":
		slog.Info("Using Gemini AI backend")
		return llm.NewGeminiClient()
	case "openai":
		slog.Info("Using OpenAI AI backend")
		return llm.NewOpenAIClient()
	default:
		return nil, fmt.Errorf("unknown model backend type %q", backendType)
	}
}

func buildResolver(cfg config.AuthConfig) *identity.Resolver {
	var validator identity.Validator
	if cfg.BootstrapToken != "" {
		validator = &identity.StaticValidator{
			Tokens: map[string]identity.Identity{
				cfg.BootstrapToken: {UserID: "bootstrap-user"},
			},
		}
	}
	return identity.NewResolver(validator, cfg.BootstrapToken, cfg.AllowAnonymous)
}

func main() {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("LOG_LEVEL")),
		Service: "medicare-chat",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	if err := config.Load(); err != nil {
		log.Fatalf("failed to load the config: %v", err)
	}
	cfg := config.Global

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, storeDegraded := buildStore(ctx, cfg.Store)
	defer store.Close()

	aiClient, err := buildAIClient(cfg.ModelBackend.Type)
	if err != nil {
		log.Fatalf("Failed to initialize AI client: %v", err)
	}

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("chat-service"))
	routes.SetupRoutes(router, routes.Options{
		Store:         store,
		AI:            aiClient,
		Resolver:      buildResolver(cfg.Auth),
		StoreType:     cfg.Store.Type,
		StoreDegraded: storeDegraded,
		RateLimit:     limiter,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{Addr: addr, Handler: router}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("Starting the chat server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		slog.Info("Shutting down the chat server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
