package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mantra-hq/mantra/internal/config"
	"github.com/mantra-hq/mantra/internal/logger"
	"github.com/mantra-hq/mantra/internal/mcpmodel"
	"github.com/mantra-hq/mantra/internal/storage"
)

// stats are the process-lifetime counters the health endpoint reports.
type stats struct {
	totalConnections int64
	totalRequests    int64
}

// Gateway is the MCP reverse proxy server: one process-wide instance shared
// by every transport the HTTP mux serves.
type Gateway struct {
	store     *storage.Store
	sessions  *sessionStore
	upstreams *upstreamPool
	limiter   *rate.Limiter

	token            string
	allowedOrigins   []string
	protocolVersions []string
	defaultProtocol  string
	version          string
	startedAt        time.Time

	stats stats
}

// New constructs a Gateway backed by store and configured from cfg.
func New(store *storage.Store, cfg config.GatewayConfig) *Gateway {
	protocolVersions := cfg.ProtocolVersions
	if len(protocolVersions) == 0 {
		protocolVersions = config.SupportedProtocolVersions
	}
	defaultProtocol := cfg.DefaultProtocol
	if defaultProtocol == "" {
		defaultProtocol = config.DefaultProtocolVersion
	}
	return &Gateway{
		store:            store,
		sessions:         newSessionStore(),
		upstreams:        newUpstreamPool(),
		limiter:          rate.NewLimiter(rate.Limit(50), 100),
		token:            cfg.Token,
		allowedOrigins:   cfg.AllowedOrigins,
		protocolVersions: protocolVersions,
		defaultProtocol:  defaultProtocol,
		version:          "dev",
		startedAt:        time.Now(),
	}
}

// Close releases upstream connections held by the gateway. The store
// itself is owned by the caller and is not closed here.
func (g *Gateway) Close() {
	g.upstreams.CloseAll()
}

// Handler returns the gateway's http.Handler, wiring the legacy SSE
// transport, the Streamable HTTP transport, and the health endpoint.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/mcp", g.withMiddleware(g.handleStreamableHTTP))
	mux.HandleFunc("/sse", g.withMiddleware(g.handleSSE))
	mux.HandleFunc("/message", g.withMiddleware(g.handleLegacyMessage))
	return mux
}

// ListenAndServe starts the HTTP server on addr, blocking until ctx is
// canceled or the server errors.
func (g *Gateway) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: g.Handler()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// withMiddleware applies origin checking, bearer-token auth, and rate
// limiting ahead of a transport handler, in that order — a request that
// fails an earlier check never reaches a later one, so a flood of
// unauthenticated requests can't exhaust the rate limiter budget real
// clients depend on... except origin/auth checks are themselves cheap
// enough to run first regardless.
func (g *Gateway) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.originAllowed(r.Header.Get("Origin")) {
			writeJSON(w, http.StatusForbidden, originForbiddenResponse())
			return
		}
		if !g.authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !g.limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		atomic.AddInt64(&g.stats.totalRequests, 1)
		next(w, r)
	}
}

func (g *Gateway) originAllowed(origin string) bool {
	if len(g.allowedOrigins) == 0 || origin == "" {
		return true
	}
	for _, allowed := range g.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (g *Gateway) authorized(r *http.Request) bool {
	if g.token == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	return auth == "Bearer "+g.token
}

// handleHealth reports process-lifetime counters in snake_case, the wire
// shape every other part of the gateway's JSON surface uses.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":  "ok",
		"service": "mantra-gateway",
		"version": g.version,
		"stats": map[string]interface{}{
			"active_connections": g.sessions.Count(),
			"total_connections":  atomic.LoadInt64(&g.stats.totalConnections),
			"total_requests":     atomic.LoadInt64(&g.stats.totalRequests),
			"mcp_sessions":       g.sessions.Count(),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// handleStreamableHTTP implements the Streamable HTTP transport on all three
// verbs the spec assigns to /mcp: POST for JSON-RPC request/response and
// notification traffic, GET for a server-pushed SSE stream, and DELETE for
// explicit session termination.
func (g *Gateway) handleStreamableHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		g.handleStreamablePost(w, r)
	case http.MethodGet:
		g.handleStreamableGet(w, r)
	case http.MethodDelete:
		g.handleStreamableDelete(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleStreamablePost handles one JSON-RPC request or notification per
// call. Every method but initialize requires a valid, previously-created
// Mcp-Session-Id — an unknown or expired one is never silently replaced
// with a fresh session, since that would let a terminated session become
// valid again on the client's next request.
func (g *Gateway) handleStreamablePost(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, parseErrorResponse())
		return
	}

	now := time.Now()
	var sess *mcpmodel.MCPSession
	if req.Method == "initialize" {
		sess = g.sessions.Create(now)
		atomic.AddInt64(&g.stats.totalConnections, 1)
	} else {
		sessionID := r.Header.Get("Mcp-Session-Id")
		if sessionID == "" {
			writeJSON(w, http.StatusOK, sessionRequiredResponse(req.ID))
			return
		}
		sess = g.sessions.Get(sessionID)
		if sess == nil {
			writeJSON(w, http.StatusOK, sessionNotFoundResponse(req.ID, sessionID))
			return
		}
	}

	resp := g.dispatch(r.Context(), sess, &req)
	w.Header().Set("Mcp-Session-Id", sess.ID)
	if req.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStreamableGet opens a server-pushed SSE stream on /mcp: a priming
// event with a fresh event ID and empty data (so a client can resume from
// it), then heartbeat comments every 30s until the client disconnects. No
// JSON-RPC response ever appears on this stream — it only carries
// server-originated messages and notifications.
func (g *Gateway) handleStreamableGet(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID != "" && g.sessions.Get(sessionID) == nil {
		writeJSON(w, http.StatusNotFound, sessionNotFoundResponse(nil, sessionID))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if sessionID != "" {
		w.Header().Set("Mcp-Session-Id", sessionID)
	}
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "id: %s\ndata: \n\n", uuid.NewString())
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			if sessionID != "" {
				g.sessions.Delete(sessionID)
			}
			return
		case <-ticker.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

// handleStreamableDelete terminates the session named by Mcp-Session-Id,
// the one operation that deterministically ends a Streamable HTTP session
// rather than waiting on idle timeout or a dropped stream.
func (g *Gateway) handleStreamableDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, sessionRequiredResponse(nil))
		return
	}
	if g.sessions.Get(sessionID) == nil {
		writeJSON(w, http.StatusNotFound, sessionNotFoundResponse(nil, sessionID))
		return
	}
	g.sessions.Delete(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// handleSSE implements the deprecated SSE transport: the client opens a
// long-lived GET here and receives an "endpoint" event pointing it at
// /message for the actual request/response traffic, followed by periodic
// heartbeat comments to keep the connection alive through proxies.
func (g *Gateway) handleSSE(w http.ResponseWriter, r *http.Request) {
	logger.ForComponent("gateway").Warn("client connected over deprecated SSE transport; use /mcp instead")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sess := g.sessions.Create(time.Now())
	atomic.AddInt64(&g.stats.totalConnections, 1)
	defer g.sessions.Delete(sess.ID)

	fmt.Fprintf(w, "event: endpoint\ndata: /message?sessionId=%s\n\n", sess.ID)
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

// handleLegacyMessage is the request/response half of the deprecated SSE
// transport: a client that connected to /sse POSTs its JSON-RPC traffic
// here, correlated by the sessionId query parameter handed out in the
// "endpoint" event.
func (g *Gateway) handleLegacyMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeJSON(w, http.StatusOK, invalidRequestResponse(nil, "missing sessionId"))
		return
	}
	sess := g.sessions.GetOrCreateEphemeral(sessionID, time.Now())

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, parseErrorResponse())
		return
	}

	resp := g.dispatch(r.Context(), sess, &req)
	if req.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// servicesForSession returns every service linked to the session's
// project. A session that never resolved to a known project (no initialize
// work dir, or a work dir outside any registered project) falls back to
// every enabled service, so the gateway remains useful before a project has
// been explicitly linked to any service.
func (g *Gateway) servicesForSession(sess *mcpmodel.MCPSession) ([]mcpmodel.MCPService, error) {
	if sess.ProjectID == "" {
		return g.store.ListServices()
	}
	ids, err := g.store.ProjectServices(sess.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list project services: %w", err)
	}
	if len(ids) == 0 {
		return g.store.ListServices()
	}
	services := make([]mcpmodel.MCPService, 0, len(ids))
	for _, id := range ids {
		svc, err := g.store.GetService(id)
		if err != nil {
			continue
		}
		services = append(services, svc)
	}
	return services, nil
}

func (g *Gateway) effectivePolicy(projectID string, svc mcpmodel.MCPService) mcpmodel.ToolPolicy {
	if projectID == "" {
		return mcpmodel.EffectivePolicy(nil, &svc.DefaultPolicy)
	}
	override, err := g.store.ProjectPolicyOverride(projectID, svc.ID)
	if err != nil {
		logger.ForComponent("gateway").Warn("policy override lookup failed", "error", err)
		override = nil
	}
	return mcpmodel.EffectivePolicy(override, &svc.DefaultPolicy)
}

func (g *Gateway) projectRoots() []string {
	ids, err := g.store.DistinctProjectIDs()
	if err != nil {
		logger.ForComponent("gateway").Warn("failed to list project roots", "error", err)
		return nil
	}
	return ids
}
