package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghurfati/ghurfati/internal/profile"
	"github.com/ghurfati/ghurfati/store"
)

func newTestDB(t *testing.T) store.Driver {
	t.Helper()
	p := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "ghurfati_test.db"),
	}
	driver, err := NewDB(p)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { driver.Close() })
	if err := driver.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return driver
}

func newTestJob(id string) *store.Job {
	now := time.Now().Unix()
	return &store.Job{
		ID:        id,
		PhotoRef:  "photo-" + id + ".png",
		Style:     "scandinavian",
		Strength:  0.75,
		Status:    store.JobQueued,
		CreatedTs: now,
		UpdatedTs: now,
	}
}

func TestMigrateStampsSchemaVersion(t *testing.T) {
	ctx := context.Background()
	p := &profile.Profile{
		Mode:    "dev",
		Driver:  "sqlite",
		Version: "0.2.0",
		DSN:     filepath.Join(t.TempDir(), "ghurfati_test.db"),
	}
	driver, err := NewDB(p)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { driver.Close() })

	if err := driver.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Booting the same release again is fine.
	if err := driver.Migrate(ctx); err != nil {
		t.Fatalf("remigrate: %v", err)
	}
	// A newer release may take over the data directory.
	p.Version = "0.3.0"
	if err := driver.Migrate(ctx); err != nil {
		t.Fatalf("upgrade migrate: %v", err)
	}
	// An older release must refuse it.
	p.Version = "0.2.5"
	if err := driver.Migrate(ctx); err == nil {
		t.Errorf("downgrade accepted")
	}
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	driver := newTestDB(t)

	created, err := driver.CreateJob(ctx, newTestJob("job-1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	status := store.JobGenerating
	attempts := 2
	updated, err := driver.UpdateJob(ctx, &store.UpdateJob{
		ID:                 created.ID,
		Status:             &status,
		GenerationAttempts: &attempts,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != store.JobGenerating {
		t.Errorf("status not updated: %s", updated.Status)
	}
	if updated.GenerationAttempts != 2 {
		t.Errorf("attempts not updated: %d", updated.GenerationAttempts)
	}
	if updated.PhotoRef != created.PhotoRef {
		t.Errorf("photo ref changed: %s", updated.PhotoRef)
	}

	list, err := driver.ListJobs(ctx, &store.FindJob{Status: []store.JobStatus{store.JobGenerating}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "job-1" {
		t.Errorf("unexpected list result: %+v", list)
	}
}

func TestDeleteJobsCascades(t *testing.T) {
	ctx := context.Background()
	driver := newTestDB(t)

	job, err := driver.CreateJob(ctx, newTestJob("job-1"))
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	image, err := driver.CreateStyledImage(ctx, &store.StyledImage{
		JobID:     job.ID,
		ImageRef:  "styled.png",
		Style:     job.Style,
		Strength:  job.Strength,
		CreatedTs: time.Now().Unix(),
	})
	if err != nil {
		t.Fatalf("create styled image: %v", err)
	}
	if image.ID == 0 {
		t.Fatalf("styled image id not assigned")
	}
	if _, err := driver.CreateRegions(ctx, []*store.Region{{
		ID:            "region-1",
		JobID:         job.ID,
		StyledImageID: image.ID,
		Idx:           0,
		Label:         "sofa",
		Embedding:     []float32{1, 0},
		CreatedTs:     time.Now().Unix(),
	}}); err != nil {
		t.Fatalf("create regions: %v", err)
	}
	if _, err := driver.CreateMatches(ctx, []*store.Match{{
		JobID:     job.ID,
		RegionID:  "region-1",
		Rank:      1,
		ProductID: "p1",
		Score:     0.9,
		CreatedTs: time.Now().Unix(),
	}}); err != nil {
		t.Fatalf("create matches: %v", err)
	}

	n, err := driver.DeleteJobs(ctx, &store.DeleteJob{IDs: []string{job.ID}})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted job, got %d", n)
	}

	regions, err := driver.ListRegions(ctx, &store.FindRegion{JobID: &job.ID})
	if err != nil {
		t.Fatalf("list regions: %v", err)
	}
	if len(regions) != 0 {
		t.Errorf("regions not cascaded: %d left", len(regions))
	}
	matches, err := driver.ListMatches(ctx, &store.FindMatch{JobID: &job.ID})
	if err != nil {
		t.Fatalf("list matches: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("matches not cascaded: %d left", len(matches))
	}
	images, err := driver.ListStyledImages(ctx, &store.FindStyledImage{JobID: &job.ID})
	if err != nil {
		t.Fatalf("list styled images: %v", err)
	}
	if len(images) != 0 {
		t.Errorf("styled images not cascaded: %d left", len(images))
	}
}

func TestRegionsOrderedByIdx(t *testing.T) {
	ctx := context.Background()
	driver := newTestDB(t)

	job, err := driver.CreateJob(ctx, newTestJob("job-1"))
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	// Insert out of order; listing must come back by idx.
	regions := []*store.Region{
		{ID: "r2", JobID: job.ID, StyledImageID: 1, Idx: 2, Label: "lamp", Embedding: []float32{0, 1}, CreatedTs: 1},
		{ID: "r0", JobID: job.ID, StyledImageID: 1, Idx: 0, Label: "sofa", Embedding: []float32{1, 0}, CreatedTs: 1},
		{ID: "r1", JobID: job.ID, StyledImageID: 1, Idx: 1, Label: "rug", Embedding: []float32{1, 1}, CreatedTs: 1},
	}
	if _, err := driver.CreateRegions(ctx, regions); err != nil {
		t.Fatalf("create regions: %v", err)
	}

	list, err := driver.ListRegions(ctx, &store.FindRegion{JobID: &job.ID})
	if err != nil {
		t.Fatalf("list regions: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 regions, got %d", len(list))
	}
	for i, region := range list {
		if region.Idx != int32(i) {
			t.Errorf("position %d holds idx %d", i, region.Idx)
		}
	}
	if list[0].Label != "sofa" || list[1].Label != "rug" || list[2].Label != "lamp" {
		t.Errorf("unexpected order: %s, %s, %s", list[0].Label, list[1].Label, list[2].Label)
	}
}

func TestSearchProductsDeterministicOrdering(t *testing.T) {
	ctx := context.Background()
	driver := newTestDB(t)

	products := []*store.Product{
		{ID: "p9", Title: "armchair", Price: 899, Currency: "AED", InStock: true, Embedding: []float32{0.8, 0.6}},
		{ID: "p7", Title: "sofa two", Price: 1899, Currency: "AED", InStock: true, Embedding: []float32{1, 0}},
		{ID: "p2", Title: "sofa one", Price: 1299, Currency: "AED", InStock: true, Embedding: []float32{1, 0}},
		{ID: "p5", Title: "floor lamp", Price: 149, Currency: "AED", InStock: false, Embedding: []float32{0.99, 0.1}},
	}
	for _, product := range products {
		if _, err := driver.UpsertProduct(ctx, product); err != nil {
			t.Fatalf("upsert %s: %v", product.ID, err)
		}
	}

	results, err := driver.SearchProducts(ctx, &store.SearchProductsOptions{
		Embedding:   []float32{1, 0},
		Limit:       3,
		InStockOnly: true,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	// p2 and p7 tie at similarity 1.0; ascending id puts p2 first. The
	// out-of-stock p5 must not appear.
	if results[0].Product.ID != "p2" || results[1].Product.ID != "p7" {
		t.Errorf("tie-break broken: got %s then %s", results[0].Product.ID, results[1].Product.ID)
	}
	if results[2].Product.ID != "p9" {
		t.Errorf("expected p9 third, got %s", results[2].Product.ID)
	}
	for _, r := range results {
		if r.Product.ID == "p5" {
			t.Errorf("out-of-stock product returned")
		}
	}
}

func TestUpsertProductOverwrites(t *testing.T) {
	ctx := context.Background()
	driver := newTestDB(t)

	first := &store.Product{ID: "p1", Title: "old title", Price: 100, Currency: "AED", InStock: true, Embedding: []float32{1, 0}}
	if _, err := driver.UpsertProduct(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second := &store.Product{ID: "p1", Title: "new title", Price: 120, Currency: "AED", InStock: false, Embedding: []float32{0, 1}}
	if _, err := driver.UpsertProduct(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	count, err := driver.CountProducts(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 product, got %d", count)
	}

	id := "p1"
	list, err := driver.ListProducts(ctx, &store.FindProduct{ID: &id})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 product, got %d", len(list))
	}
	got := list[0]
	if got.Title != "new title" || got.InStock || got.Price != 120 {
		t.Errorf("upsert did not overwrite: %+v", got)
	}
	if len(got.Embedding) != 2 || got.Embedding[0] != 0 || got.Embedding[1] != 1 {
		t.Errorf("embedding not overwritten: %v", got.Embedding)
	}
}
