package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mantra-hq/mantra/internal/logger"
	"github.com/mantra-hq/mantra/internal/mcpmodel"
)

// initializeParams is the subset of MCP's initialize request this gateway
// cares about: the protocol version the client wants, and whichever of the
// three workspace-root shapes it sent.
type initializeParams struct {
	ProtocolVersion  string          `json:"protocolVersion"`
	WorkspaceFolders []workspaceFolder `json:"workspaceFolders,omitempty"`
	RootURI          string          `json:"rootUri,omitempty"`
	RootPath         string          `json:"rootPath,omitempty"`
	ClientInfo       json.RawMessage `json:"clientInfo,omitempty"`
}

type workspaceFolder struct {
	URI string `json:"uri"`
}

type initializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ServerInfo      serverInfo             `json:"serverInfo"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// resolveWorkDir extracts a workspace path from initialize params, trying
// workspaceFolders first, then rootUri, then the deprecated rootPath —
// the same priority order editors themselves use when they send more than
// one.
func resolveWorkDir(p initializeParams) string {
	if len(p.WorkspaceFolders) > 0 && p.WorkspaceFolders[0].URI != "" {
		return uriToPath(p.WorkspaceFolders[0].URI)
	}
	if p.RootURI != "" {
		return uriToPath(p.RootURI)
	}
	return p.RootPath
}

// handleInitialize resolves and stores the session's work directory,
// negotiates a protocol version, and returns the gateway's capabilities.
func (g *Gateway) handleInitialize(sess *mcpmodel.MCPSession, params json.RawMessage) (*initializeResult, *Error) {
	var p initializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &Error{Code: codeInvalidParams, Message: "invalid initialize params"}
		}
	}

	workDir := resolveWorkDir(p)
	sess.WorkDir = workDir
	sess.ProjectID = g.resolveProjectID(workDir)
	sess.Initialized = true

	version := p.ProtocolVersion
	if !isSupportedProtocolVersion(version, g.protocolVersions) {
		version = g.defaultProtocol
	}
	sess.ProtocolVersion = version

	return &initializeResult{
		ProtocolVersion: version,
		Capabilities: map[string]interface{}{
			"tools":     map[string]interface{}{},
			"resources": map[string]interface{}{},
		},
		ServerInfo: serverInfo{Name: "mantra-gateway", Version: g.version},
	}, nil
}

func isSupportedProtocolVersion(v string, supported []string) bool {
	for _, s := range supported {
		if s == v {
			return true
		}
	}
	return false
}

// resolveProjectID maps a work directory onto a project ID by longest-
// prefix match against the known project roots — a session whose work dir
// is a subdirectory of a registered project still resolves to it.
func (g *Gateway) resolveProjectID(workDir string) string {
	if workDir == "" {
		return ""
	}
	best := ""
	for _, root := range g.projectRoots() {
		if root == workDir || (len(workDir) > len(root) && workDir[:len(root)] == root && workDir[len(root)] == '/') {
			if len(root) > len(best) {
				best = root
			}
		}
	}
	return best
}

type listToolsResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// handleToolsList aggregates tools/list across every service linked to the
// session's project, filtering out anything the effective tool policy
// blocks so a client never even sees a denied tool's name.
func (g *Gateway) handleToolsList(ctx context.Context, sess *mcpmodel.MCPSession) (*listToolsResult, *Error) {
	services, err := g.servicesForSession(sess)
	if err != nil {
		return nil, &Error{Code: codeInternalError, Message: err.Error()}
	}

	var tools []ToolDescriptor
	for _, svc := range services {
		if !svc.Enabled {
			continue
		}
		up, err := g.upstreams.Get(ctx, svc)
		if err != nil {
			logger.ForComponent("gateway").Warn("upstream unreachable", "service", svc.ID, "error", err)
			continue
		}
		svcTools, err := up.ListTools(ctx)
		if err != nil {
			g.upstreams.Invalidate(svc.ID)
			logger.ForComponent("gateway").Warn("tools/list failed", "service", svc.ID, "error", err)
			continue
		}
		policy := g.effectivePolicy(sess.ProjectID, svc)
		for _, t := range svcTools {
			qualified := svc.Name + "/" + t.Name
			if policy.IsAllowed(qualified) {
				t.Name = qualified
				tools = append(tools, t)
			}
		}
	}
	return &listToolsResult{Tools: tools}, nil
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// handleToolsCall resolves which service owns the named tool, enforces the
// effective policy, and forwards the call if allowed. A call the policy
// blocks is recorded as a tool_blocked audit event; allowed calls are not
// audited.
func (g *Gateway) handleToolsCall(ctx context.Context, sess *mcpmodel.MCPSession, id json.RawMessage, params json.RawMessage) *Response {
	var p toolsCallParams
	if err := json.Unmarshal(params, &p); err != nil {
		return invalidRequestResponse(id, "malformed tools/call params")
	}

	serviceName, toolName, ok := splitQualifiedToolName(p.Name)
	if !ok {
		return errorResponse(id, codeInvalidParams, fmt.Sprintf("tool name %q must be in \"service/tool\" form", p.Name))
	}

	services, err := g.servicesForSession(sess)
	if err != nil {
		return errorResponse(id, codeInternalError, err.Error())
	}

	svc, ok := findServiceByName(services, serviceName)
	if !ok {
		return toolBlockedResponse(id, p.Name)
	}

	policy := g.effectivePolicy(sess.ProjectID, svc)
	if policy.IsBlocked(p.Name) {
		g.logToolBlocked(sess.ProjectID, svc.ID, p.Name)
		return toolBlockedResponse(id, p.Name)
	}

	up, err := g.upstreams.Get(ctx, svc)
	if err != nil {
		return errorResponse(id, codeInternalError, fmt.Sprintf("service %s unavailable: %v", svc.ID, err))
	}
	result, err := up.CallTool(ctx, toolName, p.Arguments)
	if err != nil {
		g.upstreams.Invalidate(svc.ID)
		return errorResponse(id, codeInternalError, fmt.Sprintf("tool call failed: %v", err))
	}
	return successResponse(id, result)
}

// splitQualifiedToolName splits a "service/tool" name on its first slash,
// rejecting names with no slash or an empty service/tool half.
func splitQualifiedToolName(name string) (service, tool string, ok bool) {
	i := strings.IndexByte(name, '/')
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	return name[:i], name[i+1:], true
}

// findServiceByName locates the enabled linked service whose name matches
// the service half of a qualified tool name.
func findServiceByName(services []mcpmodel.MCPService, name string) (mcpmodel.MCPService, bool) {
	for _, svc := range services {
		if svc.Enabled && svc.Name == name {
			return svc, true
		}
	}
	return mcpmodel.MCPService{}, false
}

// logToolBlocked records a tool_blocked audit event to the shared store.
// Failures writing the audit row are logged but never surfaced to the
// caller — an audit write is never allowed to turn a policy decision into
// a server error.
func (g *Gateway) logToolBlocked(projectID, serviceID, toolName string) {
	ev := mcpmodel.NewToolBlockedEvent(projectID, serviceID, toolName, time.Now())
	if err := g.store.AppendAuditEvent(uuid.NewString(), ev); err != nil {
		logger.ForComponent("gateway").Warn("failed to write audit event", "error", err)
	}
}

type resourcesListResult struct {
	Resources []interface{} `json:"resources"`
}

// handleResourcesList returns an empty resource list: no linked service in
// this gateway exposes MCP resources today, but the method must still
// answer successfully rather than 404 so clients that probe it don't treat
// the gateway as broken.
func (g *Gateway) handleResourcesList() *resourcesListResult {
	return &resourcesListResult{Resources: []interface{}{}}
}

type resourcesReadParams struct {
	URI string `json:"uri"`
}

// handleResourcesRead always reports the resource as missing, for the same
// reason handleResourcesList always reports none.
func (g *Gateway) handleResourcesRead(id json.RawMessage, params json.RawMessage) *Response {
	var p resourcesReadParams
	_ = json.Unmarshal(params, &p)
	return errorResponse(id, codeInvalidParams, fmt.Sprintf("Resource not found: %s", p.URI))
}

// dispatch routes one JSON-RPC request to its handler, matching the
// initialize/ping/tools-list/tools-call/resources-list/resources-read
// table the gateway has always used, with anything else falling through
// to method_not_found.
func (g *Gateway) dispatch(ctx context.Context, sess *mcpmodel.MCPSession, req *Request) *Response {
	if req.JSONRPC != "2.0" {
		return invalidRequestResponse(req.ID, "jsonrpc version must be \"2.0\"")
	}
	sess.Touch(time.Now())

	switch req.Method {
	case "initialize":
		result, rpcErr := g.handleInitialize(sess, req.Params)
		if rpcErr != nil {
			return &Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
		}
		return successResponse(req.ID, result)

	case "ping":
		return successResponse(req.ID, map[string]interface{}{})

	case "tools/list":
		result, rpcErr := g.handleToolsList(ctx, sess)
		if rpcErr != nil {
			return &Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
		}
		return successResponse(req.ID, result)

	case "tools/call":
		return g.handleToolsCall(ctx, sess, req.ID, req.Params)

	case "resources/list":
		return successResponse(req.ID, g.handleResourcesList())

	case "resources/read":
		return g.handleResourcesRead(req.ID, req.Params)

	default:
		return methodNotFoundResponse(req.ID, req.Method)
	}
}
