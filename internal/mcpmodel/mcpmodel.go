// Package mcpmodel holds the shared vocabulary between the MCP gateway and
// the takeover engine: upstream service descriptions, tool policies, gateway
// sessions, and takeover backup records. Both components read and write these
// types against the same storage tables (internal/storage), so the shapes
// live in one place rather than being duplicated per-consumer.
package mcpmodel

import "time"

// TransportKind identifies how the gateway talks to an upstream MCP server.
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportHTTP  TransportKind = "http"
)

// Transport describes how to reach one upstream MCP server.
type Transport struct {
	Kind TransportKind `json:"kind"`

	// stdio
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// http
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// ServiceSource records whether a service was hand-entered or discovered by
// the takeover scanner, and if imported, which adapter/scope it came from.
type ServiceSource string

const (
	SourceManual   ServiceSource = "manual"
	SourceImported ServiceSource = "imported"
)

// Scope is where a vendor configuration entry lives.
type Scope string

const (
	ScopeProject Scope = "project"
	ScopeUser    Scope = "user"
	ScopeLocal   Scope = "local"
)

// PolicyMode selects how ToolPolicy.AllowedTools/DeniedTools are interpreted.
type PolicyMode string

const (
	PolicyAllowAll PolicyMode = "allow_all"
	PolicyDenyAll  PolicyMode = "deny_all"
	PolicyCustom   PolicyMode = "custom"
)

// ToolPolicy is a per-project or per-service tool filter.
type ToolPolicy struct {
	Mode         PolicyMode `json:"mode"`
	AllowedTools []string   `json:"allowedTools,omitempty"`
	DeniedTools  []string   `json:"deniedTools,omitempty"`
}

// DefaultToolPolicy is the zero-configuration policy: everything allowed.
func DefaultToolPolicy() ToolPolicy {
	return ToolPolicy{Mode: PolicyAllowAll}
}

func contains(set []string, name string) bool {
	for _, s := range set {
		if s == name {
			return true
		}
	}
	return false
}

// IsBlocked decides whether name is blocked by p. denied_tools dominates
// regardless of mode; otherwise deny_all blocks everything, and custom
// blocks anything not explicitly allowed.
func (p ToolPolicy) IsBlocked(name string) bool {
	if contains(p.DeniedTools, name) {
		return true
	}
	switch p.Mode {
	case PolicyDenyAll:
		return true
	case PolicyCustom:
		return !contains(p.AllowedTools, name)
	default:
		return false
	}
}

// IsAllowed is the complement of IsBlocked.
func (p ToolPolicy) IsAllowed(name string) bool {
	return !p.IsBlocked(name)
}

// EffectivePolicy resolves project-level override → service-level default →
// allow_all, in that order.
func EffectivePolicy(projectOverride *ToolPolicy, serviceDefault *ToolPolicy) ToolPolicy {
	if projectOverride != nil {
		return *projectOverride
	}
	if serviceDefault != nil {
		return *serviceDefault
	}
	return DefaultToolPolicy()
}

// MCPService is a named upstream MCP server the gateway can fan requests out
// to.
type MCPService struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Transport     Transport     `json:"transport"`
	Enabled       bool          `json:"enabled"`
	Source        ServiceSource `json:"source"`
	SourceFile    string        `json:"sourceFile,omitempty"`
	AdapterID     string        `json:"adapterId,omitempty"`
	SourceScope   Scope         `json:"sourceScope,omitempty"`
	DefaultPolicy ToolPolicy    `json:"defaultPolicy"`
}

// ProjectServiceLink records that a project uses a service, with an optional
// per-project policy override.
type ProjectServiceLink struct {
	ProjectID      string      `json:"projectId"`
	ServiceID      string      `json:"serviceId"`
	PolicyOverride *ToolPolicy `json:"policyOverride,omitempty"`
}

// MCPSession is a gateway-side record of one live client connection.
type MCPSession struct {
	ID              string
	ProtocolVersion string
	WorkDir         string
	ProjectID       string
	CreatedAt       time.Time
	LastActivity    time.Time
	Initialized     bool
}

// Touch bumps LastActivity to now.
func (s *MCPSession) Touch(now time.Time) {
	s.LastActivity = now
}

// TakeoverStatus is the lifecycle state of a TakeoverBackup row.
type TakeoverStatus string

const (
	TakeoverActive   TakeoverStatus = "active"
	TakeoverRestored TakeoverStatus = "restored"
)

// TakeoverBackup is one rewritten-config-file's restore record.
type TakeoverBackup struct {
	ID           string
	ToolType     string
	Scope        Scope
	ProjectPath  string
	OriginalPath string
	BackupPath   string
	TakenAt      time.Time
	RestoredAt   *time.Time
	Status       TakeoverStatus
	Hash         string
}

// AuditEvent is an append-only record of a gateway decision worth
// remembering, at minimum tool_blocked events per spec §6.
type AuditEvent struct {
	Event     string    `json:"event"`
	ProjectID string    `json:"projectId"`
	ServiceID string    `json:"serviceId"`
	ToolName  string    `json:"toolName"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}

// NewToolBlockedEvent builds the audit payload for a policy-blocked
// tools/call, matching the shape the original gateway's log_tool_blocked
// helper emits.
func NewToolBlockedEvent(projectID, serviceID, toolName string, at time.Time) AuditEvent {
	return AuditEvent{
		Event:     "tool_blocked",
		ProjectID: projectID,
		ServiceID: serviceID,
		ToolName:  toolName,
		Timestamp: at,
		Message:   "Tool call blocked by Tool Policy",
	}
}
