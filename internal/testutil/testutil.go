// Package testutil provides shared test utilities and fixtures for the
// HTTP layer and the command tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/kmeans.visualiser/internal/kmeans"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// SquarePoints is four points forming two well separated pairs. Seeded with
// centroids (0,0) and (10,0) it converges on the second step with
// centroids (0,1) and (10,1).
func SquarePoints() []kmeans.Point {
	return []kmeans.Point{{X: 0, Y: 0}, {X: 0, Y: 2}, {X: 10, Y: 0}, {X: 10, Y: 2}}
}

// NewSquareSession returns a session over SquarePoints with a fixed seed.
func NewSquareSession(t *testing.T) *kmeans.Session {
	t.Helper()
	s, err := kmeans.NewSessionWithPoints(SquarePoints(), kmeans.SessionConfig{Seed: 1})
	AssertNoError(t, err)
	return s
}

// Do sends a request with an optional JSON body through h. A string body is
// sent verbatim; anything else is JSON encoded.
func Do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if buf.Len() > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// DecodeBody decodes a JSON response body into dst.
func DecodeBody(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}
