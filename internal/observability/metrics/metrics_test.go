package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	xerrors "settingshub/internal/errors"
	"settingshub/internal/settings"
)

func TestObserveHTTPRequest(t *testing.T) {
	reg := NewRegistry()
	reg.ObserveHTTPRequest("group", http.MethodGet, http.StatusOK, 10*time.Millisecond)
	reg.ObserveHTTPRequest("group", http.MethodGet, http.StatusInternalServerError, 20*time.Millisecond)

	if got := testutil.ToFloat64(reg.httpRequests.WithLabelValues("group", "GET", "200")); got != 1 {
		t.Fatalf("expected 1 ok request, got %v", got)
	}
	if got := testutil.ToFloat64(reg.httpErrors.WithLabelValues("group", "GET")); got != 1 {
		t.Fatalf("expected 1 server error, got %v", got)
	}
	if n := testutil.CollectAndCount(reg.httpLatency); n != 1 {
		t.Fatalf("expected one latency series, got %d", n)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := NewRegistry()
	reg.ObserveHTTPRequest("locks", http.MethodPost, http.StatusNoContent, time.Millisecond)

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `settingshub_http_requests_total{code="204",handler="locks",method="POST"} 1`) {
		t.Fatalf("metrics output missing request counter:\n%s", body)
	}
}

func TestInstrumentedRepositoryRecordsResults(t *testing.T) {
	reg := NewRegistry()
	repo := InstrumentRepository(settings.NewMemoryRepository(), reg)
	ctx := context.Background()

	if err := repo.CreateProperty(ctx, "test", "a", settings.Int(1)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := repo.PropertiesInGroup(ctx, "test"); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if err := repo.CreateProperty(ctx, "test", "bad", settings.Number("NaN")); err == nil {
		t.Fatalf("expected encode failure")
	}

	if got := testutil.ToFloat64(reg.operations.WithLabelValues("create_property", "ok")); got != 1 {
		t.Fatalf("expected 1 successful create, got %v", got)
	}
	if got := testutil.ToFloat64(reg.operations.WithLabelValues("create_property", string(xerrors.CodeEncodeFailure))); got != 1 {
		t.Fatalf("expected 1 failed create, got %v", got)
	}
	if got := testutil.ToFloat64(reg.operations.WithLabelValues("properties_in_group", "ok")); got != 1 {
		t.Fatalf("expected 1 group read, got %v", got)
	}
}

func TestObserveOperationUnknownError(t *testing.T) {
	reg := NewRegistry()
	reg.ObserveOperation("lock_properties", errors.New("dial tcp: refused"), time.Millisecond)
	if got := testutil.ToFloat64(reg.operations.WithLabelValues("lock_properties", string(xerrors.CodeUnknown))); got != 1 {
		t.Fatalf("expected transport errors to be labelled UNKNOWN, got %v", got)
	}
}

func TestStartServerRequiresAddress(t *testing.T) {
	if err := StartServer(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty address")
	}
}
