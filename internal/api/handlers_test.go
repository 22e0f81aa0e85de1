package api

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/kmeans.visualiser/internal/config"
	"github.com/banshee-data/kmeans.visualiser/internal/db"
	"github.com/banshee-data/kmeans.visualiser/internal/kmeans"
	"github.com/banshee-data/kmeans.visualiser/internal/testutil"
)

func setupTestServer(t *testing.T, withHistory bool) (*Server, http.Handler) {
	t.Helper()
	return setupTestServerWithSession(t, testutil.NewSquareSession(t), withHistory)
}

func setupTestServerWithSession(t *testing.T, session *kmeans.Session, withHistory bool) (*Server, http.Handler) {
	t.Helper()
	var history *db.DB
	if withHistory {
		var err error
		history, err = db.NewMemoryDB()
		require.NoError(t, err)
		t.Cleanup(func() { history.Close() })
	}
	server := NewServer(session, config.DefaultServerConfig(), history)
	return server, server.ServeMux()
}

var squareSeed = map[string]interface{}{
	"centroids": [][]float64{{0, 0}, {10, 0}},
}

func TestGetDataPoints(t *testing.T) {
	_, h := setupTestServer(t, false)

	w := testutil.Do(t, h, http.MethodGet, "/get_data_points", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp dataPointsResponse
	testutil.DecodeBody(t, w, &resp)
	assert.Equal(t, testutil.SquarePoints(), resp.DataPoints)

	// The compatibility route answers POST with the same body.
	w = testutil.Do(t, h, http.MethodPost, "/initialize", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var compat dataPointsResponse
	testutil.DecodeBody(t, w, &compat)
	assert.Equal(t, resp, compat)
}

func TestMethodNotAllowed(t *testing.T) {
	_, h := setupTestServer(t, true)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/get_data_points"},
		{http.MethodGet, "/initialize"},
		{http.MethodGet, "/initialize_centroids"},
		{http.MethodGet, "/step"},
		{http.MethodGet, "/run"},
		{http.MethodGet, "/reset"},
		{http.MethodGet, "/new_dataset"},
		{http.MethodPost, "/api/status"},
		{http.MethodPost, "/api/history"},
		{http.MethodPost, "/api/version"},
		{http.MethodPost, "/charts/clusters"},
		{http.MethodPost, "/charts/clusters.png"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := testutil.Do(t, h, tt.method, tt.path, nil)
			testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
		})
	}
}

func TestInitializeCentroids(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantK      int
	}{
		{name: "random", body: map[string]interface{}{"method": "Random", "k": 2}, wantStatus: http.StatusOK, wantK: 2},
		{name: "farthest first", body: map[string]interface{}{"method": "Farthest First", "k": 2}, wantStatus: http.StatusOK, wantK: 2},
		{name: "kmeans++", body: map[string]interface{}{"method": "KMeans++", "k": 4}, wantStatus: http.StatusOK, wantK: 4},
		{name: "k as string", body: `{"method":"Random","k":"3"}`, wantStatus: http.StatusOK, wantK: 3},
		{name: "k as integral float", body: `{"method":"Random","k":2.0}`, wantStatus: http.StatusOK, wantK: 2},
		{name: "defaults", body: `{}`, wantStatus: http.StatusOK, wantK: 3},
		{name: "empty body", body: nil, wantStatus: http.StatusOK, wantK: 3},
		{name: "manual with centroids", body: map[string]interface{}{"method": "Manual", "centroids": [][]float64{{1, 1}}}, wantStatus: http.StatusOK, wantK: 1},
		{name: "k zero", body: map[string]interface{}{"method": "Random", "k": 0}, wantStatus: http.StatusBadRequest},
		{name: "k above n", body: map[string]interface{}{"method": "Random", "k": 5}, wantStatus: http.StatusBadRequest},
		{name: "k fractional", body: `{"method":"Random","k":1.5}`, wantStatus: http.StatusBadRequest},
		{name: "k not numeric", body: `{"method":"Random","k":"three"}`, wantStatus: http.StatusBadRequest},
		{name: "unknown method", body: map[string]interface{}{"method": "Spectral", "k": 2}, wantStatus: http.StatusBadRequest},
		{name: "manual without centroids", body: map[string]interface{}{"method": "Manual", "k": 2}, wantStatus: http.StatusBadRequest},
		{name: "malformed json", body: `{"method":`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, h := setupTestServer(t, false)
			w := testutil.Do(t, h, http.MethodPost, "/initialize_centroids", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			if tt.wantStatus != http.StatusOK {
				assert.Equal(t, kmeans.StateUninitialized, server.session.State())
				return
			}
			var resp centroidsResponse
			testutil.DecodeBody(t, w, &resp)
			assert.Len(t, resp.Centroids, tt.wantK)
			assert.Equal(t, kmeans.StateActive, server.session.State())
			assert.Equal(t, 0, server.session.StepCount())
		})
	}
}

func TestInitializeCentroids_PicksDatasetPoints(t *testing.T) {
	_, h := setupTestServer(t, false)
	w := testutil.Do(t, h, http.MethodPost, "/initialize_centroids", map[string]interface{}{"method": "Random", "k": 4})
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var resp centroidsResponse
	testutil.DecodeBody(t, w, &resp)
	assert.ElementsMatch(t, testutil.SquarePoints(), resp.Centroids)
}

func TestStep_WorkedExample(t *testing.T) {
	_, h := setupTestServer(t, false)

	w := testutil.Do(t, h, http.MethodPost, "/step", squareSeed)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var first stepResponse
	testutil.DecodeBody(t, w, &first)
	assert.Equal(t, 1, first.Step)
	want := stepResponse{
		Centroids: []kmeans.Point{{X: 0, Y: 1}, {X: 10, Y: 1}},
		Clusters: kmeans.Partition{
			{{X: 0, Y: 0}, {X: 0, Y: 2}},
			{{X: 10, Y: 0}, {X: 10, Y: 2}},
		},
		Step: 1,
	}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Errorf("first step mismatch (-want +got):\n%s", diff)
	}

	w = testutil.Do(t, h, http.MethodPost, "/step", squareSeed)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var second convergedResponse
	testutil.DecodeBody(t, w, &second)
	assert.Equal(t, convergedResponse{Message: "Converged", Converged: true, Step: 2}, second)
}

func TestStep_StringCoordinates(t *testing.T) {
	server, h := setupTestServer(t, false)
	w := testutil.Do(t, h, http.MethodPost, "/step", `{"centroids":[["0","0"],["10", "0.0"]]}`)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, kmeans.MethodManual, server.session.Method())
	assert.Equal(t, []kmeans.Point{{X: 0, Y: 1}, {X: 10, Y: 1}}, server.session.Centroids())
}

func TestStep_RejectsBadCentroids(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"three coordinates", `{"centroids":[[0,0,0]]}`},
		{"one coordinate", `{"centroids":[[0]]}`},
		{"not numeric", `{"centroids":[["a","b"]]}`},
		{"non-finite", `{"centroids":[["NaN",0]]}`},
		{"boolean", `{"centroids":[[true,0]]}`},
		{"too many", `{"centroids":[[0,0],[1,1],[2,2],[3,3],[4,4]]}`},
		{"not a list", `{"centroids":{"x":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, h := setupTestServer(t, false)
			w := testutil.Do(t, h, http.MethodPost, "/step", tt.body)
			testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
			assert.Equal(t, kmeans.StateUninitialized, server.session.State())
			assert.Equal(t, 0, server.session.StepCount())
		})
	}
}

func TestStep_InitializedSessionIgnoresPayload(t *testing.T) {
	server, h := setupTestServer(t, false)
	w := testutil.Do(t, h, http.MethodPost, "/initialize_centroids", map[string]interface{}{"method": "Manual", "centroids": [][]float64{{0, 0}, {10, 0}}})
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	lineage := server.session.Lineage()

	w = testutil.Do(t, h, http.MethodPost, "/step", `{"centroids":[[1]],"k":"bogus"}`)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, lineage, server.session.Lineage())
	assert.Equal(t, 1, server.session.StepCount())
}

func TestStep_AutoInitializesWithDefaults(t *testing.T) {
	server, h := setupTestServer(t, false)
	w := testutil.Do(t, h, http.MethodPost, "/step", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, kmeans.MethodRandom, server.session.Method())
	assert.Len(t, server.session.Centroids(), 3)
	assert.Equal(t, 1, server.session.StepCount())
}

func TestRun(t *testing.T) {
	server, h := setupTestServer(t, false)
	w := testutil.Do(t, h, http.MethodPost, "/run", squareSeed)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var resp runResponse
	testutil.DecodeBody(t, w, &resp)
	assert.Equal(t, 2, resp.Step)
	assert.Equal(t, kmeans.RunConverged, resp.Status)
	assert.Equal(t, []kmeans.Point{{X: 0, Y: 1}, {X: 10, Y: 1}}, resp.Centroids)
	assert.Len(t, resp.Clusters, 2)
	assert.Equal(t, kmeans.StateConverged, server.session.State())
}

func TestRun_StepLimitReached(t *testing.T) {
	session, err := kmeans.NewSessionWithPoints(testutil.SquarePoints(), kmeans.SessionConfig{MaxSteps: 1, Seed: 1})
	require.NoError(t, err)
	_, h := setupTestServerWithSession(t, session, false)

	w := testutil.Do(t, h, http.MethodPost, "/run", squareSeed)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var resp runResponse
	testutil.DecodeBody(t, w, &resp)
	assert.Equal(t, 1, resp.Step)
	assert.Equal(t, kmeans.RunStepLimitReached, resp.Status)

	// The ceiling is already spent, so a second run takes no steps.
	w = testutil.Do(t, h, http.MethodPost, "/run", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	testutil.DecodeBody(t, w, &resp)
	assert.Equal(t, 1, resp.Step)
	assert.Equal(t, kmeans.RunStepLimitReached, resp.Status)
}

func TestResetAndNewDataset(t *testing.T) {
	server, h := setupTestServer(t, false)
	w := testutil.Do(t, h, http.MethodPost, "/run", squareSeed)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	w = testutil.Do(t, h, http.MethodPost, "/reset", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var reset messageResponse
	testutil.DecodeBody(t, w, &reset)
	assert.Equal(t, messageResponse{Message: "Reset successful"}, reset)
	assert.Equal(t, kmeans.StateUninitialized, server.session.State())
	assert.Nil(t, server.session.Centroids())
	assert.Equal(t, testutil.SquarePoints(), server.session.Points())

	w = testutil.Do(t, h, http.MethodPost, "/run", squareSeed)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	w = testutil.Do(t, h, http.MethodPost, "/new_dataset", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var fresh messageResponse
	testutil.DecodeBody(t, w, &fresh)
	assert.Equal(t, "New dataset generated", fresh.Message)
	assert.Len(t, fresh.DataPoints, 4)
	assert.Equal(t, fresh.DataPoints, server.session.Points())
	assert.Equal(t, kmeans.StateUninitialized, server.session.State())
	assert.Equal(t, 0, server.session.StepCount())
}

func TestShowStatus(t *testing.T) {
	_, h := setupTestServer(t, true)

	w := testutil.Do(t, h, http.MethodGet, "/api/status", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var before map[string]interface{}
	testutil.DecodeBody(t, w, &before)
	assert.Equal(t, "uninitialized", before["state"])
	assert.Equal(t, true, before["history_enabled"])
	assert.NotContains(t, before, "inertia")

	testutil.Do(t, h, http.MethodPost, "/run", squareSeed)

	w = testutil.Do(t, h, http.MethodGet, "/api/status", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var after map[string]interface{}
	testutil.DecodeBody(t, w, &after)
	assert.Equal(t, "converged", after["state"])
	assert.Equal(t, "Manual", after["method"])
	assert.EqualValues(t, 2, after["step"])
	assert.EqualValues(t, 4, after["n"])
	assert.EqualValues(t, 2, after["k"])
	assert.InDelta(t, 4.0, after["inertia"], 1e-12)
	assert.Equal(t, []interface{}{2.0, 2.0}, after["cluster_sizes"])
	assert.Contains(t, after, "version")
}

func TestShowHistory(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		_, h := setupTestServer(t, false)
		w := testutil.Do(t, h, http.MethodGet, "/api/history", nil)
		testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)
	})

	t.Run("no lineage", func(t *testing.T) {
		_, h := setupTestServer(t, true)
		w := testutil.Do(t, h, http.MethodGet, "/api/history", nil)
		testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
	})

	t.Run("records step and run", func(t *testing.T) {
		server, h := setupTestServer(t, true)
		testutil.Do(t, h, http.MethodPost, "/step", squareSeed)
		lineage := server.session.Lineage()
		w := testutil.Do(t, h, http.MethodPost, "/run", nil)
		testutil.AssertStatusCode(t, w.Code, http.StatusOK)

		w = testutil.Do(t, h, http.MethodGet, "/api/history", nil)
		testutil.AssertStatusCode(t, w.Code, http.StatusOK)
		var resp struct {
			Lineage string          `json:"lineage"`
			Steps   []db.StepRecord `json:"steps"`
		}
		testutil.DecodeBody(t, w, &resp)
		assert.Equal(t, lineage, resp.Lineage)
		require.Len(t, resp.Steps, 2)
		assert.Equal(t, 1, resp.Steps[0].Step)
		assert.Equal(t, 2, resp.Steps[1].Step)
		assert.True(t, resp.Steps[1].Converged)
		assert.Equal(t, []int{2, 2}, resp.Steps[1].ClusterSizes)

		lineages, err := server.history.Lineages(0)
		require.NoError(t, err)
		require.Len(t, lineages, 1)
		assert.Equal(t, kmeans.MethodManual, lineages[0].Method)
		assert.Equal(t, []kmeans.Point{{X: 0, Y: 0}, {X: 10, Y: 0}}, lineages[0].InitialCentroids)
	})

	t.Run("explicit lineage survives reset", func(t *testing.T) {
		server, h := setupTestServer(t, true)
		testutil.Do(t, h, http.MethodPost, "/run", squareSeed)
		lineage := server.session.Lineage()
		testutil.Do(t, h, http.MethodPost, "/reset", nil)

		w := testutil.Do(t, h, http.MethodGet, "/api/history?lineage="+lineage, nil)
		testutil.AssertStatusCode(t, w.Code, http.StatusOK)
		var resp struct {
			Steps []db.StepRecord `json:"steps"`
		}
		testutil.DecodeBody(t, w, &resp)
		assert.Len(t, resp.Steps, 2)

		w = testutil.Do(t, h, http.MethodGet, "/api/history?lineage=unknown", nil)
		testutil.AssertStatusCode(t, w.Code, http.StatusOK)
		testutil.DecodeBody(t, w, &resp)
		assert.Empty(t, resp.Steps)
	})
}

func TestShowVersion(t *testing.T) {
	_, h := setupTestServer(t, false)
	w := testutil.Do(t, h, http.MethodGet, "/api/version", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var resp map[string]string
	testutil.DecodeBody(t, w, &resp)
	assert.Contains(t, resp, "version")
	assert.Contains(t, resp, "git_sha")
	assert.Contains(t, resp, "build_time")
}

func TestClustersChart(t *testing.T) {
	_, h := setupTestServer(t, false)

	w := testutil.Do(t, h, http.MethodGet, "/charts/clusters", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "Data Points")

	testutil.Do(t, h, http.MethodPost, "/step", squareSeed)
	w = testutil.Do(t, h, http.MethodGet, "/charts/clusters", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	body := w.Body.String()
	assert.Contains(t, body, "Cluster 1")
	assert.Contains(t, body, "Cluster 2")
	assert.Contains(t, body, "Centroids")
	assert.Contains(t, body, "Step 1")
}

func TestClustersPNG(t *testing.T) {
	_, h := setupTestServer(t, false)
	pngMagic := []byte("\x89PNG\r\n\x1a\n")

	w := testutil.Do(t, h, http.MethodGet, "/charts/clusters.png?size=3", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), pngMagic))

	// An empty cluster must not break rendering.
	testutil.Do(t, h, http.MethodPost, "/step", map[string]interface{}{
		"centroids": [][]float64{{0, 0}, {10, 0}, {100, 100}},
	})
	w = testutil.Do(t, h, http.MethodGet, "/charts/clusters.png", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), pngMagic))

	for _, size := range []string{"1", "21", "big"} {
		w = testutil.Do(t, h, http.MethodGet, "/charts/clusters.png?size="+size, nil)
		testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
	}
}

func TestGenerateColors(t *testing.T) {
	assert.Nil(t, generateColors(0))

	colors := hexColors(generateColors(3))
	require.Len(t, colors, 3)
	seen := map[string]bool{}
	for _, c := range colors {
		assert.True(t, strings.HasPrefix(c, "#") && len(c) == 7, c)
		seen[c] = true
	}
	assert.Len(t, seen, 3)
}
