package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rushteam/neuralcalc/calculator"
	"github.com/rushteam/neuralcalc/config"
	"github.com/rushteam/neuralcalc/core"
	"github.com/rushteam/neuralcalc/history"
)

// fakeML 模拟一个误差很小的模型：x0 ± x2 再加 0.01234
type fakeML struct {
	err error
}

func (f *fakeML) Predict(ctx context.Context, req *core.MLPredictRequest) (*core.MLPredictResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float32, len(req.Instances))
	for i, x := range req.Instances {
		if x[1] == 1 {
			out[i] = x[0] + x[2] + 0.01234
		} else {
			out[i] = x[0] - x[2] + 0.01234
		}
	}
	return &core.MLPredictResponse{Predictions: out}, nil
}
func (f *fakeML) Health(ctx context.Context) error { return nil }
func (f *fakeML) Close(ctx context.Context) error  { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(ml core.MLService, opts ...Option) http.Handler {
	calc := calculator.New(ml, calculator.WithLogger(quietLogger()))
	opts = append([]Option{WithLogger(quietLogger()), WithModelSource("FNN2_weights.json")}, opts...)
	return New(calc, opts...).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return m
}

func TestHandleRoot(t *testing.T) {
	w := do(t, newTestServer(&fakeML{}), "GET", "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s", ct)
	}
	m := decode(t, w)
	if m["name"] != APIName || m["version"] != APIVersion || m["status"] != "running" {
		t.Errorf("root = %v", m)
	}
	endpoints, _ := m["endpoints"].(map[string]any)
	if endpoints["calculate"] != "/api/calculate (POST)" {
		t.Errorf("endpoints = %v", endpoints)
	}
	if _, ok := endpoints["history"]; ok {
		t.Error("history endpoint listed while disabled")
	}

	if w := do(t, newTestServer(&fakeML{}), "GET", "/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name   string
		ml     core.MLService
		loaded bool
	}{
		{name: "loaded", ml: &fakeML{}, loaded: true},
		{name: "not loaded", ml: nil, loaded: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newTestServer(tt.ml), "GET", "/api/health", "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			m := decode(t, w)
			if m["status"] != "healthy" || m["model_loaded"] != tt.loaded {
				t.Errorf("health = %v", m)
			}
		})
	}
}

func TestHandleCalculate(t *testing.T) {
	w := do(t, newTestServer(&fakeML{}), "POST", "/api/calculate", `{"expression": "  1 + 2 "}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
	m := decode(t, w)
	if m["expression"] != "1 + 2" {
		t.Errorf("expression = %v", m["expression"])
	}
	if m["result"] != 3.0123 {
		t.Errorf("result = %v", m["result"])
	}
	if m["actual"] != 3.0 {
		t.Errorf("actual = %v", m["actual"])
	}
	if d, ok := m["difference"].(float64); !ok || d < 0.0123 || d > 0.0124 {
		t.Errorf("difference = %v", m["difference"])
	}

	// 带下划线的数字可以编码，但参考求值器不接受：actual/difference 为 null
	w = do(t, newTestServer(&fakeML{}), "POST", "/api/calculate", `{"expression": "1_0 - 1"}`)
	m = decode(t, w)
	if w.Code != http.StatusOK || m["actual"] != nil || m["difference"] != nil {
		t.Errorf("underscore expression: status %d body %v", w.Code, m)
	}
	if _, ok := m["actual"]; !ok {
		t.Error("actual key must be present")
	}
}

func TestHandleCalculate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		ml      core.MLService
		body    string
		status  int
		message string
	}{
		{name: "model not loaded", ml: nil, body: `{"expression":"1 + 2"}`, status: 503,
			message: "Model not loaded. Please ensure FNN2_weights.json exists."},
		{name: "invalid json", ml: &fakeML{}, body: `{`, status: 400, message: "Invalid JSON body"},
		{name: "missing expression", ml: &fakeML{}, body: `{}`, status: 400, message: "No expression provided"},
		{name: "blank expression", ml: &fakeML{}, body: `{"expression":"   "}`, status: 400, message: "No expression provided"},
		{name: "even token count", ml: &fakeML{}, body: `{"expression":"1 + "}`, status: 400, message: invalidFormatMessage},
		{name: "unknown operator", ml: &fakeML{}, body: `{"expression":"1 * 2"}`, status: 400, message: "Unknown operator: *"},
		{name: "bad number", ml: &fakeML{}, body: `{"expression":"bad + 1"}`, status: 400,
			message: "could not convert string to float: 'bad'"},
		{name: "too many tokens", ml: &fakeML{}, body: `{"expression":"1 + 1 + 1 + 1 + 1 + 1 + 1 + 1 + 1"}`, status: 400},
		{name: "model failure", ml: &fakeML{err: errors.New("backend down")}, body: `{"expression":"1 + 2"}`, status: 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newTestServer(tt.ml), "POST", "/api/calculate", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body)
			}
			m := decode(t, w)
			msg, ok := m["error"].(string)
			if !ok || msg == "" {
				t.Fatalf("missing error message: %v", m)
			}
			if tt.message != "" && msg != tt.message {
				t.Errorf("error = %q, want %q", msg, tt.message)
			}
		})
	}
}

func TestHandleCalculate_MethodNotAllowed(t *testing.T) {
	w := do(t, newTestServer(&fakeML{}), "GET", "/api/calculate", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestHandleBatchCalculate(t *testing.T) {
	body := `{"expressions": ["1 + 2", "bad * 3", " 4 - 4 ", 5]}`
	w := do(t, newTestServer(&fakeML{}), "POST", "/api/batch-calculate", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}

	var resp struct {
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 4 {
		t.Fatalf("got %d results, want 4", len(resp.Results))
	}

	if r := resp.Results[0]; r["actual"] != 3.0 || r["error"] != nil {
		t.Errorf("item 0 = %v", r)
	}
	if r := resp.Results[1]; r["expression"] != "bad * 3" || r["error"] == nil || r["result"] != nil {
		t.Errorf("item 1 = %v", r)
	}
	if r := resp.Results[2]; r["expression"] != "4 - 4" || r["actual"] != 0.0 {
		t.Errorf("item 2 = %v", r)
	}
	if r := resp.Results[3]; r["expression"] != "5" || r["error"] != "expression must be a string" {
		t.Errorf("item 3 = %v", r)
	}
}

func TestHandleBatchCalculate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		ml     core.MLService
		body   string
		status int
	}{
		{name: "model not loaded", ml: nil, body: `{"expressions":["1 + 2"]}`, status: 503},
		{name: "missing", ml: &fakeML{}, body: `{}`, status: 400},
		{name: "null", ml: &fakeML{}, body: `{"expressions":null}`, status: 400},
		{name: "empty list", ml: &fakeML{}, body: `{"expressions":[]}`, status: 400},
		{name: "not a list", ml: &fakeML{}, body: `{"expressions":"1 + 2"}`, status: 400},
		{name: "invalid json", ml: &fakeML{}, body: `[`, status: 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newTestServer(tt.ml), "POST", "/api/batch-calculate", tt.body)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body)
			}
		})
	}
}

func TestHandleHistory(t *testing.T) {
	if w := do(t, newTestServer(&fakeML{}), "GET", "/api/history", ""); w.Code != http.StatusNotFound {
		t.Errorf("disabled history status = %d, want 404", w.Code)
	}

	store, err := history.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	calc := calculator.New(&fakeML{}, calculator.WithRecorder(store), calculator.WithLogger(quietLogger()))
	h := New(calc, WithHistory(store), WithLogger(quietLogger())).Handler()

	do(t, h, "POST", "/api/calculate", `{"expression":"1 + 2"}`)
	do(t, h, "POST", "/api/calculate", `{"expression":"1_0 - 1"}`)

	w := do(t, h, "GET", "/api/history?limit=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
	var resp struct {
		Recent []core.PredictionRecord `json:"recent"`
		Stats  history.Stats           `json:"stats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Recent) != 2 || resp.Stats.Count != 2 || resp.Stats.WithActual != 1 {
		t.Errorf("history = %+v", resp)
	}

	if w := do(t, h, "GET", "/api/history?limit=abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", w.Code)
	}
	if m := decode(t, do(t, h, "GET", "/", "")); m["endpoints"].(map[string]any)["history"] != "/api/history" {
		t.Errorf("history endpoint not listed: %v", m)
	}
}

func TestMiddleware(t *testing.T) {
	h := newTestServer(&fakeML{}, WithConfig(config.ServerConfig{MaxBodyBytes: 16}))

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/api/calculate", nil)
		req.Header.Set("Origin", "http://example.com")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Allow-Origin = %q", got)
		}
	})

	t.Run("request id", func(t *testing.T) {
		w := do(t, h, "GET", "/api/health", "")
		if w.Header().Get(HeaderRequestID) == "" {
			t.Error("missing request id")
		}
		req := httptest.NewRequest("GET", "/api/health", nil)
		req.Header.Set(HeaderRequestID, "abc-123")
		w = httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if got := w.Header().Get(HeaderRequestID); got != "abc-123" {
			t.Errorf("request id = %q, want client value", got)
		}
	})

	t.Run("body limit", func(t *testing.T) {
		w := do(t, h, "POST", "/api/calculate", `{"expression": "1 + 2 + 3 + 4"}`)
		if w.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", w.Code)
		}
	})
}

func TestAllowOrigin(t *testing.T) {
	allowed := []string{"https://app.example.com"}
	if got := allowOrigin(allowed, "https://app.example.com"); got != "https://app.example.com" {
		t.Errorf("allowed origin = %q", got)
	}
	if got := allowOrigin(allowed, "https://evil.example.com"); got != "" {
		t.Errorf("disallowed origin = %q", got)
	}
	if got := allowOrigin(nil, "https://any.example.com"); got != "*" {
		t.Errorf("default = %q", got)
	}
}

func TestServer_Serve(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}

	calc := calculator.New(&fakeML{}, calculator.WithLogger(quietLogger()))
	srv := New(calc, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/api/calculate"
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(`{"expression":"5 - 3"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
