package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/neows-etl/internal/adapter/http"
	"github.com/couchcryptid/neows-etl/internal/adapter/tables"
	"github.com/couchcryptid/neows-etl/internal/domain"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

func fixtureTables() (domain.Tables, domain.Metadata) {
	t := domain.Tables{
		Objects: []domain.ObjectRow{
			{ID: "2099942", Name: "99942 Apophis (2004 MN4)", IsPotentiallyHazardous: true},
			{ID: "3542519", Name: "(2010 PK9)"},
		},
		Approaches: []domain.ApproachRow{
			{ApproachID: "3542519_1", ObjectID: "3542519", CloseApproachDate: "2029-04-01", MissDistanceKM: 5e7, OrbitingBody: "Earth"},
			{ApproachID: "2099942_1", ObjectID: "2099942", CloseApproachDate: "2029-04-13", MissDistanceKM: 38000, OrbitingBody: "Earth", IsPotentiallyHazardous: true},
			{ApproachID: "3542519_2", ObjectID: "3542519", CloseApproachDate: "2029-05-02", MissDistanceKM: 4e7, OrbitingBody: "Earth"},
			{ApproachID: "2099942_2", ObjectID: "2099942", CloseApproachDate: "2036-03-27", MissDistanceKM: 6e7, OrbitingBody: "Earth", IsPotentiallyHazardous: true},
		},
	}
	meta := domain.Metadata{RunID: "run-1", RowCounts: domain.RowCounts{Objects: 2, Approaches: 4}}
	return t, meta
}

func newTestServer(readyErr error) *httpadapter.Server {
	catalog := tables.NewCatalog()
	catalog.Set(fixtureTables())
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, catalog, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func get(t *testing.T, srv http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

type approachesBody struct {
	Count      int                  `json:"count"`
	Approaches []domain.ApproachRow `json:"approaches"`
}

func decodeApproaches(t *testing.T, rec *httptest.ResponseRecorder) approachesBody {
	t.Helper()
	var body approachesBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func approachIDs(rows []domain.ApproachRow) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ApproachID
	}
	return ids
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(t, newTestServer(nil), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(t, newTestServer(nil), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(t, newTestServer(fmt.Errorf("tables not loaded")), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "tables not loaded", body["error"])
}

func TestReadyzFollowsCatalog(t *testing.T) {
	catalog := tables.NewCatalog()
	srv := httpadapter.NewServer(":0", catalog, catalog, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv, "/readyz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv, "/api/v1/metadata").Code)

	catalog.Set(fixtureTables())
	assert.Equal(t, http.StatusOK, get(t, srv, "/readyz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(nil), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetadataEndpoint(t *testing.T) {
	rec := get(t, newTestServer(nil), "/api/v1/metadata")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var meta domain.Metadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, "run-1", meta.RunID)
	assert.Equal(t, 4, meta.RowCounts.Approaches)
}

func TestObjectEndpoint(t *testing.T) {
	rec := get(t, newTestServer(nil), "/api/v1/objects/2099942")

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Object     domain.ObjectRow     `json:"object"`
		Approaches []domain.ApproachRow `json:"approaches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "99942 Apophis (2004 MN4)", body.Object.Name)
	assert.Equal(t, []string{"2099942_1", "2099942_2"}, approachIDs(body.Approaches))
}

func TestObjectEndpointUnknownID(t *testing.T) {
	rec := get(t, newTestServer(nil), "/api/v1/objects/404")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `unknown object \"404\"`)
}

func TestApproachesEndpoint(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all in date order", "", []string{"3542519_1", "2099942_1", "3542519_2", "2099942_2"}},
		{"by object", "?object_id=3542519", []string{"3542519_1", "3542519_2"}},
		{"hazardous only", "?hazardous=true", []string{"2099942_1", "2099942_2"}},
		{"not hazardous", "?hazardous=false", []string{"3542519_1", "3542519_2"}},
		{"limit", "?limit=3", []string{"3542519_1", "2099942_1", "3542519_2"}},
		{"combined", "?object_id=2099942&hazardous=1&limit=1", []string{"2099942_1"}},
		{"unknown object", "?object_id=nope", []string{}},
	}
	srv := newTestServer(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, srv, "/api/v1/approaches"+tt.query)
			require.Equal(t, http.StatusOK, rec.Code)

			body := decodeApproaches(t, rec)
			assert.Equal(t, tt.want, approachIDs(body.Approaches))
			assert.Equal(t, len(tt.want), body.Count)
		})
	}
}

func TestApproachesEndpointDefaultLimit(t *testing.T) {
	approaches := make([]domain.ApproachRow, httpadapter.DefaultLimit+20)
	for i := range approaches {
		approaches[i] = domain.ApproachRow{ApproachID: fmt.Sprintf("1_%03d", i), ObjectID: "1"}
	}
	catalog := tables.NewCatalog()
	catalog.Set(domain.Tables{Objects: []domain.ObjectRow{{ID: "1"}}, Approaches: approaches}, domain.Metadata{})
	srv := httpadapter.NewServer(":0", catalog, catalog, slog.New(slog.NewTextHandler(io.Discard, nil)))

	body := decodeApproaches(t, get(t, srv, "/api/v1/approaches"))
	assert.Equal(t, httpadapter.DefaultLimit, body.Count)
}

func TestApproachesEndpointBadParams(t *testing.T) {
	srv := newTestServer(nil)
	for _, query := range []string{
		"?limit=0",
		"?limit=-5",
		"?limit=1001",
		"?limit=ten",
		"?hazardous=maybe",
	} {
		t.Run(query, func(t *testing.T) {
			rec := get(t, srv, "/api/v1/approaches"+query)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestUnknownMethodRejected(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/metadata", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
