package main

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/clinic/internal/config"
	"github.com/ehr/clinic/internal/platform/middleware"
	"github.com/ehr/clinic/internal/platform/telemetry"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:            "test",
		CORSOrigins:    []string{"http://localhost:3000"},
		RequestTimeout: 5 * time.Second,
	}
}

func TestMigrationsFS_Embedded(t *testing.T) {
	for _, name := range []string{"001_core.sql", "002_inventory.sql", "003_prescriptions.sql", "004_audit_logs.sql"} {
		if _, err := fs.Stat(migrationsFS(""), name); err != nil {
			t.Errorf("embedded migrations missing %s: %v", name, err)
		}
	}
}

func TestMigrationsFS_Directory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_x.sql"), []byte("SELECT 1;"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Stat(migrationsFS(dir), "001_x.sql"); err != nil {
		t.Errorf("expected directory migrations, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	e := newEcho(testConfig(), zerolog.Nop(), telemetry.NewMetrics(), nil)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "ok" || body["version"] != version {
		t.Errorf("unexpected body %v", body)
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEcho(testConfig(), zerolog.Nop(), telemetry.NewMetrics(), nil)

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "clinic_http_requests_total") {
		t.Error("expected the http request counter to be exported")
	}
}

func TestUnknownRoute(t *testing.T) {
	e := newEcho(testConfig(), zerolog.Nop(), telemetry.NewMetrics(), nil)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
