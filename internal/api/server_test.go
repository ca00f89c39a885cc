package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	xerrors "settingshub/internal/errors"
	"settingshub/internal/observability/alerting"
	"settingshub/internal/observability/metrics"
	"settingshub/internal/settings"
	redisstore "settingshub/internal/storage/redis"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestServer(t *testing.T, repo settings.Repository, opts ...Option) *httptest.Server {
	t.Helper()
	svc := settings.NewService(repo, settings.WithLogger(quiet()), settings.WithAuditLogger(quiet()))
	opts = append([]Option{WithMetrics(metrics.NewRegistry(), true)}, opts...)
	srv := NewServer(":0", svc, opts...)
	srv.log = quiet()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestGroupLifecycle(t *testing.T) {
	ts := newTestServer(t, settings.NewMemoryRepository())
	base := ts.URL + "/api/v1/groups/general"

	resp, body := do(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"group":"general","properties":{}}`, body)

	resp, _ = do(t, http.MethodPut, base+"/properties/site_name", `{"value":"Spatie"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodPut, base+"/properties/theme", `{"value":null}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = do(t, http.MethodPatch, base, `{"properties":{"tags":["a","b"],"count":42}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"updated":["tags","count"],"skipped":[]}`, body)

	resp, body = do(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, `{"group":"general","properties":{"site_name":"Spatie","theme":null,"tags":["a","b"],"count":42}}`+"\n", body)

	resp, body = do(t, http.MethodGet, base+"/properties/theme", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"name":"theme","value":null}`, body)

	resp, _ = do(t, http.MethodDelete, base+"/properties/theme", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = do(t, http.MethodGet, base+"/properties/theme", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Contains(t, body, `"code":"NOT_FOUND"`)
}

func TestLocksEndpoints(t *testing.T) {
	ts := newTestServer(t, settings.NewMemoryRepository())
	base := ts.URL + "/api/v1/groups/general"

	resp, _ := do(t, http.MethodPut, base+"/properties/a", `{"value":1}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, base+"/locks", `{"names":["c","a"]}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := do(t, http.MethodGet, base+"/locks", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"group":"general","locked":["a","c"]}`, body)

	resp, body = do(t, http.MethodPatch, base, `{"properties":{"a":2,"b":3}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"updated":["b"],"skipped":["a"]}`, body)

	resp, _ = do(t, http.MethodDelete, base+"/locks", `{"names":["a","c"]}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = do(t, http.MethodGet, base+"/locks", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"group":"general","locked":[]}`, body)
}

func TestPutLockedPropertyConflicts(t *testing.T) {
	ts := newTestServer(t, settings.NewMemoryRepository())
	base := ts.URL + "/api/v1/groups/general"

	resp, _ := do(t, http.MethodPut, base+"/properties/site_name", `{"value":"Spatie"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, base+"/locks", `{"names":["site_name"]}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := do(t, http.MethodPatch, base, `{"properties":{"site_name":"ViaPatch"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"updated":[],"skipped":["site_name"]}`, body)

	resp, body = do(t, http.MethodPut, base+"/properties/site_name", `{"value":"ViaPut"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var parsed errorResponse
	require.NoError(t, json.Unmarshal([]byte(body), &parsed))
	require.Equal(t, "CONFLICT", parsed.Error.Code)

	resp, body = do(t, http.MethodGet, base+"/properties/site_name", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"name":"site_name","value":"Spatie"}`, body)
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t, settings.NewMemoryRepository())
	base := ts.URL + "/api/v1/groups/general"

	cases := []struct {
		method, path, body string
	}{
		{http.MethodPut, "/properties/a", ``},
		{http.MethodPut, "/properties/a", `{}`},
		{http.MethodPut, "/properties/a", `{"value":`},
		{http.MethodPatch, "", `{"properties":[1]}`},
		{http.MethodPost, "/locks", `{"names":[""]}`},
	}
	for _, tc := range cases {
		resp, body := do(t, tc.method, base+tc.path, tc.body)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, "%s %s %s", tc.method, tc.path, tc.body)
		var parsed errorResponse
		require.NoError(t, json.Unmarshal([]byte(body), &parsed))
		require.Equal(t, "INVALID_ARGUMENT", parsed.Error.Code)
	}

	resp, _ := do(t, http.MethodPost, base, `{}`)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

type brokenRepository struct {
	settings.Repository
}

func (brokenRepository) PropertiesInGroup(context.Context, string) (settings.Properties, error) {
	return nil, errors.New("dial tcp 127.0.0.1:6379: connection refused")
}

type recordingDispatcher struct {
	events []alerting.Event
}

func (d *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	d.events = append(d.events, event)
	return nil
}

func TestStorageFailureRaisesAlert(t *testing.T) {
	alerts := &recordingDispatcher{}
	ts := newTestServer(t, brokenRepository{}, WithAlerts(alerts))

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/groups/general", "")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.NotContains(t, body, "127.0.0.1")
	var parsed errorResponse
	require.NoError(t, json.Unmarshal([]byte(body), &parsed))
	require.Equal(t, "STORAGE_FAILURE", parsed.Error.Code)
	require.Len(t, alerts.events, 1)
	require.Equal(t, "group.get", alerts.events[0].Operation)
	require.Equal(t, "general", alerts.events[0].Group)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, settings.NewMemoryRepository())

	resp, body := do(t, http.MethodGet, ts.URL+"/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, body)

	resp, body = do(t, http.MethodGet, ts.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `settingshub_http_requests_total{code="200",handler="healthz",method="GET"} 1`)
}

func TestWithContextRejectsAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	handler := withContext(ctx, http.NotFoundHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRedisOutageIsServiceUnavailable(t *testing.T) {
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	repo, err := redisstore.NewRepository(client, redisstore.Config{})
	require.NoError(t, err)
	ts := newTestServer(t, repo)
	srv.Close()

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/groups/general", "")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.NotContains(t, body, srv.Addr())
	var parsed errorResponse
	require.NoError(t, json.Unmarshal([]byte(body), &parsed))
	require.Equal(t, "STORAGE_FAILURE", parsed.Error.Code)
}

func TestStatusOf(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"uncoded":  {errors.New("EOF"), http.StatusServiceUnavailable},
		"deadline": {context.DeadlineExceeded, http.StatusGatewayTimeout},
		"conflict": {xerrors.New(xerrors.CodeConflict, "locked"), http.StatusConflict},
		"decode":   {xerrors.New(xerrors.CodeDecodeFailure, "bad"), http.StatusInternalServerError},
		"storage":  {xerrors.New(xerrors.CodeStorageFailure, "down"), http.StatusServiceUnavailable},
	}
	for name, tc := range cases {
		require.Equal(t, tc.want, statusOf(tc.err), name)
	}
}
