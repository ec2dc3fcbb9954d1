package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mantra-hq/mantra/internal/mcpmodel"
)

// ToolDescriptor is the shape of one tool, as reported by tools/list.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ToolCallResult is the shape of one tools/call response, independent of
// upstream transport.
type ToolCallResult struct {
	Content []json.RawMessage `json:"content"`
	IsError bool               `json:"isError,omitempty"`
}

// Upstream is the interface the dispatcher uses to talk to one service,
// regardless of whether it's reached over stdio or HTTP.
type Upstream interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args json.RawMessage) (*ToolCallResult, error)
	Close() error
}

// upstreamPool caches one connected Upstream per service ID, so a tool
// call doesn't pay stdio-process-spawn or HTTP-handshake cost on every
// request.
type upstreamPool struct {
	mu   sync.Mutex
	byID map[string]Upstream
}

func newUpstreamPool() *upstreamPool {
	return &upstreamPool{byID: make(map[string]Upstream)}
}

// Get returns the cached upstream for svc, connecting one if this is the
// first request for it.
func (p *upstreamPool) Get(ctx context.Context, svc mcpmodel.MCPService) (Upstream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if up, ok := p.byID[svc.ID]; ok {
		return up, nil
	}

	up, err := connectUpstream(ctx, svc)
	if err != nil {
		return nil, err
	}
	p.byID[svc.ID] = up
	return up, nil
}

// Invalidate drops a cached connection, e.g. after a call fails with a
// transport-level error, so the next call reconnects instead of reusing a
// dead stdio process or stale HTTP client.
func (p *upstreamPool) Invalidate(serviceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if up, ok := p.byID[serviceID]; ok {
		up.Close()
		delete(p.byID, serviceID)
	}
}

// CloseAll closes every cached upstream, used on gateway shutdown.
func (p *upstreamPool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, up := range p.byID {
		up.Close()
		delete(p.byID, id)
	}
}

func connectUpstream(ctx context.Context, svc mcpmodel.MCPService) (Upstream, error) {
	switch svc.Transport.Kind {
	case mcpmodel.TransportStdio:
		return newStdioUpstream(ctx, svc)
	case mcpmodel.TransportHTTP:
		return newHTTPUpstream(svc), nil
	default:
		return nil, fmt.Errorf("service %s: unknown transport kind %q", svc.ID, svc.Transport.Kind)
	}
}

// --- stdio upstream, via the official MCP Go SDK client -----------------

type stdioUpstream struct {
	session *mcpsdk.ClientSession
}

func newStdioUpstream(ctx context.Context, svc mcpmodel.MCPService) (Upstream, error) {
	cmd := exec.Command(svc.Transport.Command, svc.Transport.Args...)
	for k, v := range svc.Transport.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "mantra-gateway", Version: "1"}, nil)
	session, err := client.Connect(ctx, &mcpsdk.CommandTransport{Command: cmd})
	if err != nil {
		return nil, fmt.Errorf("connect stdio upstream %s: %w", svc.ID, err)
	}
	return &stdioUpstream{session: session}, nil
}

func (u *stdioUpstream) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	result, err := u.session.ListTools(ctx, &mcpsdk.ListToolsParams{})
	if err != nil {
		return nil, err
	}
	out := make([]ToolDescriptor, 0, len(result.Tools))
	for _, t := range result.Tools {
		schema, _ := json.Marshal(t.InputSchema)
		out = append(out, ToolDescriptor{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return out, nil
}

func (u *stdioUpstream) CallTool(ctx context.Context, name string, args json.RawMessage) (*ToolCallResult, error) {
	var argMap map[string]interface{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &argMap); err != nil {
			return nil, fmt.Errorf("decode tool arguments: %w", err)
		}
	}
	result, err := u.session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: argMap})
	if err != nil {
		return nil, err
	}
	content := make([]json.RawMessage, 0, len(result.Content))
	for _, c := range result.Content {
		b, err := json.Marshal(c)
		if err != nil {
			continue
		}
		content = append(content, b)
	}
	return &ToolCallResult{Content: content, IsError: result.IsError}, nil
}

func (u *stdioUpstream) Close() error {
	return u.session.Close()
}

// --- HTTP upstream, a plain JSON-RPC-over-HTTP client --------------------

// httpUpstream speaks the same legacy Streamable HTTP MCP protocol the
// gateway itself serves to its own clients, just pointed at an upstream
// instead of terminating it.
type httpUpstream struct {
	svc    mcpmodel.MCPService
	client *http.Client
}

func newHTTPUpstream(svc mcpmodel.MCPService) Upstream {
	return &httpUpstream{svc: svc, client: &http.Client{}}
}

func (u *httpUpstream) request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	reqBody, err := json.Marshal(Request{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: method, Params: paramsJSON})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.svc.Transport.URL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range u.svc.Transport.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call upstream %s: %w", u.svc.ID, err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode upstream response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("upstream %s: %s", u.svc.ID, rpcResp.Error.Message)
	}
	resultJSON, err := json.Marshal(rpcResp.Result)
	if err != nil {
		return nil, err
	}
	return resultJSON, nil
}

func (u *httpUpstream) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	result, err := u.request(ctx, "tools/list", map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("parse tools/list result: %w", err)
	}
	return parsed.Tools, nil
}

func (u *httpUpstream) CallTool(ctx context.Context, name string, args json.RawMessage) (*ToolCallResult, error) {
	result, err := u.request(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": json.RawMessage(orEmptyObject(args)),
	})
	if err != nil {
		return nil, err
	}
	var callResult ToolCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("parse tools/call result: %w", err)
	}
	return &callResult, nil
}

func (u *httpUpstream) Close() error { return nil }

func orEmptyObject(b json.RawMessage) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("{}")
	}
	return b
}
