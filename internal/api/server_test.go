package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/access-cli/internal/access"
	"github.com/sells-group/access-cli/internal/crowfly"
	"github.com/sells-group/access-cli/internal/geodata"
	"github.com/sells-group/access-cli/internal/scenario"
	"github.com/sells-group/access-cli/internal/session"
)

type fakeGeo struct {
	pop        access.Population
	facilities []access.Point
	weights    []float64

	mu           sync.Mutex
	popQueries   []geodata.PopulationQuery
	facilityArgs []string
}

func (f *fakeGeo) calls() ([]geodata.PopulationQuery, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.popQueries, f.facilityArgs
}

func (f *fakeGeo) Population(_ context.Context, q geodata.PopulationQuery) (access.Population, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.popQueries = append(f.popQueries, q)
	return f.pop, nil
}

func (f *fakeGeo) Facilities(_ context.Context, name string, envelope *geom.Polygon) ([]access.Point, []float64, error) {
	if envelope == nil {
		return nil, nil, access.ErrInvalidParameters
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.facilityArgs = append(f.facilityArgs, name)
	return f.facilities, f.weights, nil
}

func (f *fakeGeo) FacilityFeatures(_ context.Context, name string, _ *geom.Polygon) (*geojson.FeatureCollection, error) {
	if name != "school" {
		return nil, access.ErrUnknownReference
	}
	return &geojson.FeatureCollection{Features: []*geojson.Feature{{
		Geometry:   geom.NewPointFlat(geom.XY, []float64{9, 48}),
		Properties: map[string]any{"weight": 1.0},
	}}}, nil
}

func (f *fakeGeo) PopulationFeatures(context.Context, string, *geom.Polygon) (*geojson.FeatureCollection, error) {
	return &geojson.FeatureCollection{Features: []*geojson.Feature{{
		ID:         "7",
		Geometry:   geom.NewPointFlat(geom.XY, []float64{9, 48}),
		Properties: map[string]any{"index": 7},
	}}}, nil
}

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	return newTestServerWithProvider(t, crowfly.New(nil), opts...)
}

// newTestServerWithProvider aggregates through provider and solves coverage
// with the crow-fly solver.
func newTestServerWithProvider(t *testing.T, provider access.Provider, opts ...Option) *httptest.Server {
	t.Helper()
	store := session.NewStore()
	engine := scenario.NewEngine(store, access.NewAggregator(provider), crowfly.New(nil))
	opts = append([]Option{WithSpeeds(crowfly.DefaultSpeeds)}, opts...)
	srv := httptest.NewServer(New(store, engine, opts...).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, user string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() }) //nolint:errcheck
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func newSession(t *testing.T, srv *httptest.Server, user string) string {
	t.Helper()
	resp := call(t, srv, http.MethodPost, "/decision-support/session", user, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody[map[string]string](t, resp)
	require.NotEmpty(t, body["session_id"])
	return body["session_id"]
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp := call(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, resp)["status"])
}

func TestMetricsHandler(t *testing.T) {
	srv := newTestServer(t, WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("access_sessions_active 0\n"))
	})))

	resp := call(t, srv, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	noMetrics := newTestServer(t)
	resp = call(t, noMetrics, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRequireUser(t *testing.T) {
	srv := newTestServer(t)

	resp := call(t, srv, http.MethodPost, "/decision-support/session", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", decodeBody[errorBody](t, resp).Error)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, WithCORSOrigins([]string{"https://planner.example"}))

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/decision-support/grid", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://planner.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, "https://planner.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	id := newSession(t, srv, "alice")

	// Sessions are scoped to their owner.
	resp := call(t, srv, http.MethodDelete, "/decision-support/session/"+id, "bob", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = call(t, srv, http.MethodDelete, "/decision-support/session/"+id, "alice", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = call(t, srv, http.MethodDelete, "/decision-support/session/"+id, "alice", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "session_not_found", decodeBody[errorBody](t, resp).Error)
}

func TestNewSessionIDsAreUnique(t *testing.T) {
	srv := newTestServer(t)
	seen := map[string]bool{}
	for range 20 {
		id := newSession(t, srv, "alice")
		assert.False(t, seen[id])
		seen[id] = true
	}
}
