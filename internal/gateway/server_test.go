package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mantra-hq/mantra/internal/config"
	"github.com/mantra-hq/mantra/internal/storage"
)

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	g := New(store, config.GatewayConfig{})
	t.Cleanup(g.Close)
	return g
}

func TestHandleHealthShape(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	for _, key := range []string{"status", "service", "version", "stats"} {
		if _, ok := body[key]; !ok {
			t.Errorf("health response missing key %q: %v", key, body)
		}
	}
	stats, ok := body["stats"].(map[string]interface{})
	if !ok {
		t.Fatalf("stats = %v, want object", body["stats"])
	}
	for _, key := range []string{"active_connections", "total_connections", "total_requests", "mcp_sessions"} {
		if _, ok := stats[key]; !ok {
			t.Errorf("stats missing key %q: %v", key, stats)
		}
	}
	for _, key := range []string{"activeConnections", "totalConnections", "totalRequests", "mcpSessions"} {
		if _, ok := stats[key]; ok {
			t.Errorf("stats unexpectedly contains camelCase key %q", key)
		}
	}
}

func TestOriginAllowed(t *testing.T) {
	g := newTestGateway(t)

	if !g.originAllowed("https://anything.example") {
		t.Error("an empty allowlist should allow every origin")
	}

	g.allowedOrigins = []string{"https://allowed.example"}
	if !g.originAllowed("https://allowed.example") {
		t.Error("expected an allowlisted origin to pass")
	}
	if g.originAllowed("https://evil.example") {
		t.Error("expected a non-allowlisted origin to fail")
	}
	if !g.originAllowed("") {
		t.Error("a request without an Origin header (not a browser) should pass")
	}
}

func TestAuthorized(t *testing.T) {
	g := newTestGateway(t)
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	if !g.authorized(req) {
		t.Error("no token configured should mean every request is authorized")
	}

	g.token = "secret"
	if g.authorized(req) {
		t.Error("a request without a bearer token should fail once a token is configured")
	}
	req.Header.Set("Authorization", "Bearer secret")
	if !g.authorized(req) {
		t.Error("a matching bearer token should pass")
	}
	req.Header.Set("Authorization", "Bearer wrong")
	if g.authorized(req) {
		t.Error("a mismatched bearer token should fail")
	}
}

func TestWithMiddlewareRejectsBadOrigin(t *testing.T) {
	g := newTestGateway(t)
	g.allowedOrigins = []string{"https://allowed.example"}

	called := false
	h := g.withMiddleware(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h(rec, req)

	if called {
		t.Error("handler should not run when origin is rejected")
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	var rpcResp Response
	if err := json.NewDecoder(rec.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rpcResp.Error == nil || rpcResp.Error.Code != codeForbidden {
		t.Errorf("error = %+v, want code %d", rpcResp.Error, codeForbidden)
	}
}

func TestHandleStreamableHTTPInitialize(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`
	resp, err := http.Post(srv.URL+"/mcp", "application/json", jsonBody(body))
	if err != nil {
		t.Fatalf("POST /mcp error = %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Mcp-Session-Id") == "" {
		t.Error("expected Mcp-Session-Id header to be set after initialize")
	}

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rpcResp.Error != nil {
		t.Errorf("unexpected error response: %+v", rpcResp.Error)
	}
}

func TestHandleStreamableHTTPRequiresSession(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	resp, err := http.Post(srv.URL+"/mcp", "application/json", jsonBody(body))
	if err != nil {
		t.Fatalf("POST /mcp error = %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rpcResp.Error == nil || rpcResp.Error.Code != codeSessionRequired {
		t.Errorf("error = %+v, want code %d", rpcResp.Error, codeSessionRequired)
	}
}

func TestHandleStreamableHTTPUnknownSession(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/mcp", jsonBody(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Mcp-Session-Id", "does-not-exist")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /mcp error = %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rpcResp.Error == nil || rpcResp.Error.Code != codeSessionNotFound {
		t.Errorf("error = %+v, want code %d", rpcResp.Error, codeSessionNotFound)
	}
}

func TestHandleStreamableDelete(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	initBody := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`
	initResp, err := http.Post(srv.URL+"/mcp", "application/json", jsonBody(initBody))
	if err != nil {
		t.Fatalf("POST /mcp (initialize) error = %v", err)
	}
	sessionID := initResp.Header.Get("Mcp-Session-Id")
	initResp.Body.Close()
	if sessionID == "" {
		t.Fatal("expected a session id from initialize")
	}

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/mcp", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Mcp-Session-Id", sessionID)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /mcp error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	// The session is gone: a second DELETE of the same id must 404.
	req2, _ := http.NewRequest(http.MethodDelete, srv.URL+"/mcp", nil)
	req2.Header.Set("Mcp-Session-Id", sessionID)
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("DELETE /mcp (second) error = %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp2.StatusCode, http.StatusNotFound)
	}
}

func TestHandleStreamableDeleteRequiresSessionHeader(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/mcp", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /mcp error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestHandleStreamableGetPrimesStream(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/mcp", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := http.DefaultClient.Do(req)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("GET /mcp error = %v", err)
	}
	if resp == nil {
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	buf := make([]byte, 256)
	n, _ := resp.Body.Read(buf)
	got := string(buf[:n])
	if !strings.Contains(got, "data: ") {
		t.Errorf("priming event = %q, want a data: line", got)
	}
}
