// Package normalize turns vendor-specific AI coding tool conversation logs
// (Claude Code JSONL transcripts, Cursor's SQLite workspace storage, the
// legacy single-JSON Claude export, and the line-oriented Gemini/Codex CLI
// transcripts) into one vendor-neutral Session shape that the rest of
// Mantra — storage, search, display — never needs to special-case by
// vendor again.
package normalize

import (
	"encoding/json"
	"time"
)

// Role is who authored a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StandardToolKind tags the variant held by a StandardTool.
type StandardToolKind string

const (
	ToolFileRead      StandardToolKind = "file_read"
	ToolFileWrite     StandardToolKind = "file_write"
	ToolFileEdit      StandardToolKind = "file_edit"
	ToolShellExec     StandardToolKind = "shell_exec"
	ToolFileSearch    StandardToolKind = "file_search"
	ToolContentSearch StandardToolKind = "content_search"
	ToolOther         StandardToolKind = "other"
)

// StandardTool is the normalized shape of a vendor tool invocation. Only
// the fields relevant to Kind are populated; it marshals as a tagged union
// with "kind" as the discriminant so callers that don't care about the
// specific tool can still render a generic fallback from Other.
type StandardTool struct {
	Kind StandardToolKind `json:"kind"`

	// file_read
	Path      string `json:"path,omitempty"`
	StartLine *int   `json:"startLine,omitempty"`
	EndLine   *int   `json:"endLine,omitempty"`

	// file_write
	Content string `json:"content,omitempty"`

	// file_edit
	OldString string `json:"oldString,omitempty"`
	NewString string `json:"newString,omitempty"`

	// shell_exec
	Command string `json:"command,omitempty"`
	Cwd     string `json:"cwd,omitempty"`

	// file_search / content_search
	Pattern string `json:"pattern,omitempty"`
	Glob    string `json:"glob,omitempty"`

	// other
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// ToolResultKind tags the variant held by a ToolResultData.
type ToolResultKind string

const (
	ResultFileRead  ToolResultKind = "file_read"
	ResultFileWrite ToolResultKind = "file_write"
	ResultFileEdit  ToolResultKind = "file_edit"
	ResultShellExec ToolResultKind = "shell_exec"
	ResultOther     ToolResultKind = "other"
)

// ToolResultData is the normalized shape of a tool's result payload.
type ToolResultData struct {
	Kind ToolResultKind `json:"kind"`

	// file_read
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`

	// shell_exec
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode *int   `json:"exitCode,omitempty"`

	// other
	Value json.RawMessage `json:"value,omitempty"`
}

// ContentBlockKind tags the variant held by a ContentBlock.
type ContentBlockKind string

const (
	BlockText           ContentBlockKind = "text"
	BlockThinking       ContentBlockKind = "thinking"
	BlockToolUse        ContentBlockKind = "tool_use"
	BlockToolResult     ContentBlockKind = "tool_result"
	BlockCodeDiff       ContentBlockKind = "code_diff"
	BlockImage          ContentBlockKind = "image"
	BlockReference      ContentBlockKind = "reference"
	BlockCodeSuggestion ContentBlockKind = "code_suggestion"
)

// ContentBlock is one normalized piece of a Message's content. Like
// StandardTool, it is a tagged union keyed on Kind; unused fields are
// omitted from JSON output.
type ContentBlock struct {
	Kind ContentBlockKind `json:"kind"`

	// text / thinking
	Text string `json:"text,omitempty"`

	// tool_use
	ToolName     string        `json:"toolName,omitempty"`
	ToolUseID    string        `json:"toolUseId,omitempty"`
	Tool         *StandardTool `json:"tool,omitempty"`
	RawInput     json.RawMessage `json:"rawInput,omitempty"`

	// tool_result
	CorrelationID string          `json:"correlationId,omitempty"`
	IsError       bool            `json:"isError,omitempty"`
	Result        *ToolResultData `json:"result,omitempty"`

	// code_diff / code_suggestion
	FilePath string `json:"filePath,omitempty"`
	OldCode  string `json:"oldCode,omitempty"`
	NewCode  string `json:"newCode,omitempty"`
	Language string `json:"language,omitempty"`

	// image
	MediaType string `json:"mediaType,omitempty"`
	Data      string `json:"data,omitempty"`

	// reference
	URI   string `json:"uri,omitempty"`
	Label string `json:"label,omitempty"`

	// set on any kind when the source record's discriminant wasn't
	// recognized: Text carries a truncated raw snapshot instead of the
	// block's real (unparseable) content.
	IsDegraded bool `json:"isDegraded,omitempty"`
}

// GitInfo captures the repository state a message was authored against.
type GitInfo struct {
	Branch string `json:"branch,omitempty"`
	Commit string `json:"commit,omitempty"`
	Dirty  bool   `json:"dirty,omitempty"`
}

// TokensBreakdown is the per-category token accounting vendors report.
type TokensBreakdown struct {
	Input         int `json:"input,omitempty"`
	Output        int `json:"output,omitempty"`
	CacheCreation int `json:"cacheCreation,omitempty"`
	CacheRead     int `json:"cacheRead,omitempty"`
}

// Message is one turn in a normalized conversation.
type Message struct {
	Role            Role              `json:"role"`
	ContentBlocks   []ContentBlock    `json:"contentBlocks"`
	Timestamp       *time.Time        `json:"timestamp,omitempty"`
	MentionedFiles  []string          `json:"mentionedFiles,omitempty"`
	MessageID       string            `json:"messageId,omitempty"`
	ParentID        string            `json:"parentId,omitempty"`
	IsSidechain     bool              `json:"isSidechain,omitempty"`
	SourceMetadata  json.RawMessage   `json:"sourceMetadata,omitempty"`
}

// SessionMetadata is vendor-reported context about a session that doesn't
// belong to any single message.
type SessionMetadata struct {
	Model           string           `json:"model,omitempty"`
	TotalTokens     int              `json:"totalTokens,omitempty"`
	Title           string           `json:"title,omitempty"`
	OriginalPath    string           `json:"originalPath,omitempty"`
	Git             *GitInfo         `json:"git,omitempty"`
	TokensBreakdown *TokensBreakdown `json:"tokensBreakdown,omitempty"`
	Instructions    string           `json:"instructions,omitempty"`
	SourceMetadata  json.RawMessage  `json:"sourceMetadata,omitempty"`

	// UnknownFormats lists the distinct degraded-block labels encountered
	// while parsing (e.g. "bubble_type_99"), so a caller can tell a
	// session degraded silently from one that didn't without scanning
	// every message's content blocks for IsDegraded.
	UnknownFormats []string `json:"unknownFormats,omitempty"`
}

// Session is the vendor-neutral normalized form of one AI coding tool
// conversation log.
type Session struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	Cwd       string          `json:"cwd,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Messages  []Message       `json:"messages"`
	Metadata  SessionMetadata `json:"metadata"`
}

// IsEmpty reports whether a session has no user and no assistant messages —
// the condition under which it is dropped rather than stored.
func (s *Session) IsEmpty() bool {
	for _, m := range s.Messages {
		if m.Role == RoleUser || m.Role == RoleAssistant {
			return false
		}
	}
	return true
}
