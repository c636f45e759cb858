// Package server assembles the HTTP surface over the matching pipeline:
// echo bootstrap, pipeline wiring from the profile, API v1 routes, health
// and metrics endpoints, and graceful shutdown of both the listener and the
// pipeline workers.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/ghurfati/ghurfati/internal/profile"
	"github.com/ghurfati/ghurfati/pipeline"
	"github.com/ghurfati/ghurfati/pipeline/imagestore"
	"github.com/ghurfati/ghurfati/pipeline/matching"
	"github.com/ghurfati/ghurfati/pipeline/metrics"
	"github.com/ghurfati/ghurfati/pipeline/orchestrator"
	"github.com/ghurfati/ghurfati/pipeline/vector"
	apiv1 "github.com/ghurfati/ghurfati/server/router/api/v1"
	"github.com/ghurfati/ghurfati/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer   *echo.Echo
	orchestrator *orchestrator.Orchestrator
	vectorIndex  vector.Index
	apiV1Service *apiv1.APIV1Service
}

func NewServer(ctx context.Context, profile *profile.Profile, storeInstance *store.Store) (*Server, error) {
	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())

	images, err := imagestore.New(filepath.Join(profile.Data, "images"))
	if err != nil {
		return nil, errors.Wrap(err, "create image store")
	}

	generator, err := pipeline.NewGenerator(&pipeline.GeneratorConfig{
		APIKey:  profile.AIGenerationAPIKey,
		BaseURL: profile.AIGenerationBaseURL,
		Model:   profile.AIGenerationModel,
		Size:    profile.AIGenerationSize,
		Timeout: time.Duration(profile.AIGenerationTimeout) * time.Second,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create generator")
	}

	detector, err := pipeline.NewDetector(&pipeline.DetectorConfig{
		APIKey:  profile.AIVisionAPIKey,
		BaseURL: profile.AIVisionBaseURL,
		Model:   profile.AIVisionModel,
		Timeout: time.Duration(profile.AIVisionTimeout) * time.Second,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create detector")
	}

	embedder, err := pipeline.NewEmbedder(&pipeline.EmbedderConfig{
		APIKey:     profile.AIEmbeddingAPIKey,
		BaseURL:    profile.AIEmbeddingBaseURL,
		Model:      profile.AIEmbeddingModel,
		Dimensions: profile.EmbeddingDimensions,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create embedder")
	}

	index, err := newVectorIndex(ctx, profile, storeInstance)
	if err != nil {
		return nil, errors.Wrap(err, "create vector index")
	}

	exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())

	matcher := matching.NewMatcher(index, matching.Config{
		KQuery:         profile.MatchKQuery,
		CategoryWeight: profile.MatchCategoryWeight,
		PriceWeight:    profile.MatchPriceWeight,
		PriceMin:       profile.MatchPriceMin,
		PriceMax:       profile.MatchPriceMax,
	})

	orchestratorInstance, err := orchestrator.New(orchestrator.Dependencies{
		Store:     storeInstance,
		Images:    images,
		Generator: generator,
		Extractor: pipeline.NewExtractor(detector, embedder, images),
		Matcher:   matcher,
		Queue:     orchestrator.NewAdmissionQueue(profile.QueueCapacity),
		Metrics:   exporter,
	}, orchestrator.Config{
		Workers:          profile.Workers,
		TopK:             profile.MatchK,
		MatchConcurrency: profile.MatchConcurrency,
		Retry:            orchestrator.RetryPolicy{MaxAttempts: profile.StageMaxAttempts},
		Retention:        time.Duration(profile.RetentionDays) * 24 * time.Hour,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create orchestrator")
	}

	apiV1Service := apiv1.NewAPIV1Service(profile, orchestratorInstance, storeInstance, images, embedder, index)
	apiV1Service.RegisterRoutes(echoServer)

	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": profile.Version,
		})
	})
	echoServer.GET("/metrics", echo.WrapHandler(exporter.GetHandler()))

	return &Server{
		Profile:      profile,
		Store:        storeInstance,
		echoServer:   echoServer,
		orchestrator: orchestratorInstance,
		vectorIndex:  index,
		apiV1Service: apiV1Service,
	}, nil
}

// newVectorIndex builds the configured vector backend. The store-backed
// index serves single-binary deployments; qdrant serves external catalogs.
// A rate limit, when configured, wraps whichever backend is active.
func newVectorIndex(ctx context.Context, profile *profile.Profile, storeInstance *store.Store) (vector.Index, error) {
	var index vector.Index
	switch profile.VectorBackend {
	case "qdrant":
		qdrantIndex, err := vector.NewQdrantIndex(ctx, &vector.QdrantConfig{
			Host:       profile.QdrantHost,
			Port:       profile.QdrantPort,
			Collection: profile.QdrantCollection,
			Dimensions: profile.EmbeddingDimensions,
		}, storeInstance)
		if err != nil {
			return nil, err
		}
		index = qdrantIndex
	default:
		index = vector.NewStoreIndex(storeInstance, profile.EmbeddingDimensions)
	}

	if profile.VectorRateLimit > 0 {
		index = vector.NewRateLimited(index, profile.VectorRateLimit)
	}
	return index, nil
}

// Start requeues jobs interrupted by the previous run, starts the pipeline
// workers and begins serving HTTP. The listener runs in its own goroutine;
// Start returns once the server is accepting work.
func (s *Server) Start(ctx context.Context) error {
	if err := s.orchestrator.Recover(ctx); err != nil {
		return errors.Wrap(err, "recover interrupted jobs")
	}
	s.orchestrator.Start()

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the listener, drains the pipeline workers and closes the
// database. In-flight stage calls get a bounded window to finish.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	if err := s.orchestrator.Stop(20 * time.Second); err != nil {
		slog.Error("failed to stop pipeline workers", "error", err)
	}

	if closer, ok := s.vectorIndex.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			slog.Error("failed to close vector index", "error", err)
		}
	}

	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}

	slog.Info("ghurfati stopped properly")
}
