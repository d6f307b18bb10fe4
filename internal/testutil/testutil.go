// Package testutil provides shared fakes and fixtures for CravingCompanion tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/BTreeMap/CravingCompanion/internal/provider"
)

// ScriptJSON is a complete script document. The relief stage routes to Gemini.
const ScriptJSON = `{
  "version": "test-1",
  "stages": {
    "entry":      {"intent": "welcome", "tone": "calm", "coachMessages": ["Welcome in."], "userPrompts": ["How strong is it?"], "improvNotes": []},
    "relief":     {"intent": "breathe", "tone": "warm", "coachMessages": ["Breathe with me."], "userPrompts": [], "improvNotes": ["Slow down."], "llmProvider": "gemini"},
    "reflection": {"intent": "notice", "tone": "soft", "coachMessages": ["Notice the calm."], "userPrompts": [], "improvNotes": []},
    "teaser":     {"intent": "hint", "tone": "light", "coachMessages": ["There is more ahead."], "userPrompts": [], "improvNotes": []},
    "conversion": {"intent": "invite", "tone": "warm", "coachMessages": ["Ready to keep going?"], "userPrompts": [], "improvNotes": []}
  }
}`

// WriteScript writes ScriptJSON into a temp dir and returns its path.
func WriteScript(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stage_script.json")
	if err := os.WriteFile(path, []byte(ScriptJSON), 0o644); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

// StubProvider is a provider.Provider returning canned lines or an error.
type StubProvider struct {
	Key        string
	Configured bool
	Lines      []string
	Err        error

	calls atomic.Int32
	last  atomic.Pointer[provider.GenerationParams]
}

// NewStubProvider returns a configured stub replying with lines.
func NewStubProvider(key string, lines ...string) *StubProvider {
	return &StubProvider{Key: key, Configured: true, Lines: lines}
}

func (p *StubProvider) Name() string       { return p.Key }
func (p *StubProvider) IsConfigured() bool { return p.Configured }

// Generate records the call and replies with the canned outcome.
func (p *StubProvider) Generate(ctx context.Context, params provider.GenerationParams) provider.Outcome {
	p.calls.Add(1)
	p.last.Store(&params)
	if !p.Configured {
		return provider.Unavailable(provider.ErrNotConfigured)
	}
	if p.Err != nil {
		return provider.Failed(p.Err)
	}
	return provider.OK(params.Request.Stage, p.Lines)
}

// Calls reports how many times Generate ran.
func (p *StubProvider) Calls() int { return int(p.calls.Load()) }

// LastParams returns the params of the most recent call, or nil.
func (p *StubProvider) LastParams() *provider.GenerationParams { return p.last.Load() }

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t testing.TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		reqBody.WriteString(b)
	default:
		if err := json.NewEncoder(&reqBody).Encode(b); err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &reqBody)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// Serve runs req through h and returns the recorder.
func Serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// DecodeJSON decodes the recorder body into T and fails the test on error.
func DecodeJSON[T any](t testing.TB, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode JSON response %q: %v", rr.Body.String(), err)
	}
	return v
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected int, rr *httptest.ResponseRecorder) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d: %s", expected, rr.Code, rr.Body.String())
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

var _ provider.Provider = (*StubProvider)(nil)
