// Package testutil provides shared helpers for BookingPipe tests: a fake
// booking backend, a scripted extractor and HTTP assertions.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/BTreeMap/BookingPipe/internal/flow"
	"github.com/BTreeMap/BookingPipe/internal/models"
)

// TB is the subset of testing.TB used by the helpers.
type TB interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// BackendRequest is one request received by a FakeBackend.
type BackendRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]interface{}
}

// FakeBackend is an httptest server that answers booking API paths with
// canned JSON bodies. Unknown paths get a 404.
type FakeBackend struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]string
	requests  []BackendRequest
}

// NewFakeBackend starts a fake backend. Call Close when done.
func NewFakeBackend(responses map[string]string) *FakeBackend {
	fb := &FakeBackend{responses: make(map[string]string, len(responses))}
	for path, body := range responses {
		fb.responses[path] = body
	}
	fb.Server = httptest.NewServer(http.HandlerFunc(fb.serve))
	return fb
}

func (fb *FakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	req := BackendRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
	if data, err := io.ReadAll(r.Body); err == nil && len(data) > 0 {
		_ = json.Unmarshal(data, &req.Body)
	}

	fb.mu.Lock()
	fb.requests = append(fb.requests, req)
	body, ok := fb.responses[r.URL.Path]
	fb.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail":"Not Found"}`)
		return
	}
	fmt.Fprint(w, body)
}

// SetResponse replaces the canned body for path.
func (fb *FakeBackend) SetResponse(path, body string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.responses[path] = body
}

// Requests returns a copy of the requests received so far.
func (fb *FakeBackend) Requests() []BackendRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]BackendRequest(nil), fb.requests...)
}

// Paths returns the request paths received so far, in order.
func (fb *FakeBackend) Paths() []string {
	reqs := fb.Requests()
	paths := make([]string, len(reqs))
	for i, r := range reqs {
		paths[i] = r.Path
	}
	return paths
}

// ScriptedExtractor returns queued extraction results in order, then chat.
type ScriptedExtractor struct {
	mu      sync.Mutex
	results []flow.ExtractionResult
	Calls   int
}

// NewScriptedExtractor creates an extractor that replays results.
func NewScriptedExtractor(results ...flow.ExtractionResult) *ScriptedExtractor {
	return &ScriptedExtractor{results: results}
}

// Extract implements flow.Extractor.
func (s *ScriptedExtractor) Extract(ctx context.Context, req flow.ExtractionRequest) (flow.ExtractionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if len(s.results) == 0 {
		return flow.ExtractionResult{Intent: models.IntentChat}, nil
	}
	next := s.results[0]
	s.results = s.results[1:]
	return next, nil
}

// Booking builds a booking extraction with the given slot values.
func Booking(entities map[models.Slot]string) flow.ExtractionResult {
	return flow.ExtractionResult{Intent: models.IntentBooking, Entities: entities, Confidence: 1}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes an API envelope and validates its status field.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus) models.APIResponse {
	t.Helper()
	var response models.APIResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return response
	}
	if response.Status != string(expectedStatus) {
		t.Errorf("expected status '%s', got '%s' (message %q)", expectedStatus, response.Status, response.Message)
	}
	return response
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
