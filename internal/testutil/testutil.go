// Package testutil holds small HTTP helpers shared by the monitor and store
// tests: run a request through a handler, check the recorded status, decode
// a JSON body.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// Serve runs a single bodyless request through h and returns the recorded
// response.
func Serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

// AssertStatusCode fails the test when the recorded status differs from want.
// The body is included in the failure message since handlers carry their
// error text there.
func AssertStatusCode(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, want, rec.Body.String())
	}
}

// DecodeJSON unmarshals the recorded response body into v, failing the test
// if the body is not valid JSON.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response body: %v (body: %s)", err, rec.Body.String())
	}
}
