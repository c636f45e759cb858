// Package v1 implements the REST API over the pipeline: job submission and
// lifecycle, catalog ingestion, and image serving.
package v1

import (
	"context"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ghurfati/ghurfati/internal/profile"
	"github.com/ghurfati/ghurfati/pipeline"
	"github.com/ghurfati/ghurfati/pipeline/vector"
	"github.com/ghurfati/ghurfati/store"
)

// JobPipeline is the orchestrator surface the API submits to and reads from.
type JobPipeline interface {
	Submit(ctx context.Context, photoRef string, params pipeline.StyleParams) (*store.Job, error)
	Cancel(ctx context.Context, jobID string) (*store.Job, error)
	GetStatus(ctx context.Context, jobID string) (*store.Job, error)
	ListJobs(ctx context.Context, find *store.FindJob) ([]*store.Job, error)
	LoadResult(ctx context.Context, job *store.Job) (*pipeline.MatchResult, error)
}

// ProductCatalog is the store surface behind the catalog endpoints. Writes
// go through the vector index instead, so embeddings stay dimension-guarded.
type ProductCatalog interface {
	GetProduct(ctx context.Context, id string) (*store.Product, error)
	ListProducts(ctx context.Context, find *store.FindProduct) ([]*store.Product, error)
}

// ImageReader is the image store surface the API serves from.
type ImageReader interface {
	Path(ref string) (string, error)
	Stat(ref string) (int64, error)
	Thumbnail(ctx context.Context, ref string, maxSize int) ([]byte, error)
}

type APIV1Service struct {
	Profile      *profile.Profile
	Orchestrator JobPipeline
	Catalog      ProductCatalog
	Images       ImageReader
	Embedder     pipeline.Embedder
	Index        vector.Index
}

func NewAPIV1Service(
	profile *profile.Profile,
	orchestrator JobPipeline,
	catalog ProductCatalog,
	images ImageReader,
	embedder pipeline.Embedder,
	index vector.Index,
) *APIV1Service {
	return &APIV1Service{
		Profile:      profile,
		Orchestrator: orchestrator,
		Catalog:      catalog,
		Images:       images,
		Embedder:     embedder,
		Index:        index,
	}
}

// RegisterRoutes mounts the v1 REST routes on the given Echo instance.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	apiGroup := echoServer.Group("/api/v1")
	apiGroup.Use(middleware.CORS())

	apiGroup.POST("/jobs", s.SubmitJob)
	apiGroup.GET("/jobs", s.ListJobs)
	apiGroup.GET("/jobs/:id", s.GetJob)
	apiGroup.POST("/jobs/:id/cancel", s.CancelJob)

	apiGroup.POST("/products", s.UpsertProduct)
	apiGroup.GET("/products", s.ListProducts)

	apiGroup.GET("/images/:ref", s.GetImage)
}

// parsePagination reads limit/offset query params, clamping limit to
// [1, maxLimit] and falling back to defaultLimit when absent or malformed.
func parsePagination(c echo.Context, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	if raw := c.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	offset := 0
	if raw := c.QueryParam("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
