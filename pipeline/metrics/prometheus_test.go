package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPrometheusExporter(t *testing.T) {
	exporter := NewPrometheusExporter(DefaultConfig())

	t.Run("RecordJobs", func(t *testing.T) {
		exporter.RecordJobSubmitted("scandinavian")
		exporter.RecordJobSubmitted("industrial")
		exporter.RecordJobRejected("queue_full")
		exporter.RecordJobFinished("completed", 12*time.Second)
		exporter.RecordJobFinished("failed", 3*time.Second)
	})

	t.Run("RecordStage", func(t *testing.T) {
		exporter.RecordStage("generation", 8*time.Second)
		exporter.RecordStageRetry("generation")
		exporter.RecordStageError("generation", "transient")
		exporter.RecordStage("matching", 200*time.Millisecond)
	})

	t.Run("Saturation", func(t *testing.T) {
		exporter.SetQueueDepth(7)
		exporter.SetActiveJobs(2)
	})

	t.Run("RecordVectorQuery", func(t *testing.T) {
		exporter.RecordVectorQuery(30*time.Millisecond, 8)
		exporter.RecordVectorQuery(15*time.Millisecond, 0)
	})
}

func TestPrometheusExporterHandler(t *testing.T) {
	exporter := NewPrometheusExporter(DefaultConfig())

	exporter.RecordJobSubmitted("scandinavian")
	exporter.RecordJobFinished("completed", 10*time.Second)
	exporter.RecordStage("extraction", 2*time.Second)
	exporter.RecordVectorQuery(20*time.Millisecond, 5)

	req := httptest.NewRequest("GET", "/metrics", http.NoBody)
	w := httptest.NewRecorder()

	exporter.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	if !strings.Contains(body, "ghurfati_pipeline_jobs_submitted_total") {
		t.Error("expected jobs_submitted_total metric in output")
	}
	if !strings.Contains(body, "ghurfati_pipeline_jobs_finished_total") {
		t.Error("expected jobs_finished_total metric in output")
	}
	if !strings.Contains(body, "ghurfati_pipeline_stage_latency_seconds") {
		t.Error("expected stage_latency_seconds metric in output")
	}
	if !strings.Contains(body, "ghurfati_pipeline_vector_query_latency_seconds") {
		t.Error("expected vector_query_latency_seconds metric in output")
	}
}

func TestPrometheusExporterCustomRegistry(t *testing.T) {
	exporter := NewPrometheusExporter(Config{})
	exporter.RecordJobSubmitted("boho")
	exporter.SetQueueDepth(1)

	req := httptest.NewRequest("GET", "/metrics", http.NoBody)
	w := httptest.NewRecorder()

	exporter.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}
