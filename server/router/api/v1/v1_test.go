package v1

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ghurfati/ghurfati/internal/profile"
	"github.com/ghurfati/ghurfati/pipeline"
	"github.com/ghurfati/ghurfati/pipeline/imagestore"
	"github.com/ghurfati/ghurfati/pipeline/vector"
	"github.com/ghurfati/ghurfati/store"
)

type fakePipeline struct {
	submitted []pipeline.StyleParams
	submitJob *store.Job
	submitErr error

	statusJobs map[string]*store.Job

	listJobs []*store.Job
	listErr  error
	lastFind *store.FindJob

	result    *pipeline.MatchResult
	resultErr error
}

func (f *fakePipeline) Submit(_ context.Context, _ string, params pipeline.StyleParams) (*store.Job, error) {
	f.submitted = append(f.submitted, params)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.submitJob, nil
}

func (f *fakePipeline) Cancel(_ context.Context, jobID string) (*store.Job, error) {
	return f.statusJobs[jobID], nil
}

func (f *fakePipeline) GetStatus(_ context.Context, jobID string) (*store.Job, error) {
	return f.statusJobs[jobID], nil
}

func (f *fakePipeline) ListJobs(_ context.Context, find *store.FindJob) ([]*store.Job, error) {
	f.lastFind = find
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listJobs, nil
}

func (f *fakePipeline) LoadResult(_ context.Context, _ *store.Job) (*pipeline.MatchResult, error) {
	if f.resultErr != nil {
		return nil, f.resultErr
	}
	return f.result, nil
}

type fakeCatalog struct {
	products map[string]*store.Product
	lastFind *store.FindProduct
	listErr  error
}

func (f *fakeCatalog) GetProduct(_ context.Context, id string) (*store.Product, error) {
	return f.products[id], nil
}

func (f *fakeCatalog) ListProducts(_ context.Context, find *store.FindProduct) ([]*store.Product, error) {
	f.lastFind = find
	if f.listErr != nil {
		return nil, f.listErr
	}
	list := make([]*store.Product, 0, len(f.products))
	for _, product := range f.products {
		list = append(list, product)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

type fakeEmbedder struct {
	dimensions int
	texts      []string
	err        error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		f.texts = append(f.texts, text)
		vec := make([]float32, f.dimensions)
		vec[0] = 1
		vectors[i] = vec
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dimensions }

// fakeIndex validates dimensions like the real backends and writes through
// to the catalog so read-back after upsert works.
type fakeIndex struct {
	dimensions int
	catalog    *fakeCatalog
	upserts    []*store.Product
	upsertErr  error
}

func (f *fakeIndex) Query(_ context.Context, _ *vector.Query) ([]*store.ProductWithScore, error) {
	return nil, nil
}

func (f *fakeIndex) Upsert(_ context.Context, product *store.Product) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if err := store.ValidateDimensions(f.dimensions, product.Embedding); err != nil {
		return err
	}
	f.upserts = append(f.upserts, product)
	row := *product
	row.CreatedTs = 1700000000
	row.UpdatedTs = 1700000000
	f.catalog.products[product.ID] = &row
	return nil
}

func (f *fakeIndex) Dimensions() int { return f.dimensions }

type fixture struct {
	pipeline *fakePipeline
	catalog  *fakeCatalog
	embedder *fakeEmbedder
	index    *fakeIndex
	images   *imagestore.LocalStore
	echo     *echo.Echo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	images, err := imagestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("create image store: %v", err)
	}

	catalog := &fakeCatalog{products: map[string]*store.Product{}}
	f := &fixture{
		pipeline: &fakePipeline{statusJobs: map[string]*store.Job{}},
		catalog:  catalog,
		embedder: &fakeEmbedder{dimensions: 4},
		index:    &fakeIndex{dimensions: 4, catalog: catalog},
		images:   images,
	}

	service := NewAPIV1Service(&profile.Profile{Mode: "dev"}, f.pipeline, f.catalog, f.images, f.embedder, f.index)
	e := echo.New()
	service.RegisterRoutes(e)
	f.echo = e
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}
