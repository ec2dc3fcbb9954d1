package normalize

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ClaudeParseError classifies why a Claude JSONL transcript produced no
// usable session, so a caller sweeping a directory can report a useful
// reason instead of a bare parse failure.
type ClaudeParseError struct {
	Reason string // "empty_file", "no_valid_conversation", "system_events_only", "missing_field"
	Field  string // populated when Reason == "missing_field"
	Path   string
}

func (e *ClaudeParseError) Error() string {
	if e.Reason == "missing_field" {
		return fmt.Sprintf("%s: missing required field %q", e.Path, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// claudeRecord is the superset of fields that can appear on any line of a
// Claude Code JSONL transcript. Vendors mix record "type"s in one file, so
// this is intentionally a kitchen-sink struct rather than one per type.
type claudeRecord struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Cwd       string          `json:"cwd"`
	Version   string          `json:"version"`
	GitBranch string          `json:"gitBranch"`
	UUID      string          `json:"uuid"`
	ParentUUID string         `json:"parentUuid"`
	IsSidechain bool          `json:"isSidechain"`
	IsMeta    bool            `json:"isMeta"`
	Timestamp string          `json:"timestamp"`
	Message   *claudeMessage  `json:"message"`
	ToolUseResult json.RawMessage `json:"toolUseResult"`
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
	Usage   *claudeUsage    `json:"usage"`
}

type claudeUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// claudeContentBlock is the shape of one element of a Claude message's
// content array, covering every block variant that can appear.
type claudeContentBlock struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	Thinking string         `json:"thinking"`
	ID      string          `json:"id"`      // tool_use
	Name    string          `json:"name"`    // tool_use
	Input   json.RawMessage `json:"input"`   // tool_use
	ToolUseID string        `json:"tool_use_id"` // tool_result
	IsError bool            `json:"is_error"`    // tool_result
	Content json.RawMessage `json:"content"`     // tool_result, string or []block
}

// ParseClaudeJSONL parses a Claude Code conversation transcript (one JSON
// object per line) into a normalized Session. path supplies the fallback
// cwd (decoded from the parent directory name) when no record carries one,
// and is recorded as Metadata.OriginalPath. The session ID is not taken
// from path: a transcript whose records never carry a sessionId is
// rejected with a missing_field ClaudeParseError.
func ParseClaudeJSONL(path string, data []byte) (*Session, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ClaudeParseError{Reason: "empty_file", Path: path}
	}

	sess := createEmptySessionFromPath(path, data)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var sawAnyValidRecord bool
	var sawSystemEvent bool
	var sessionIDSet, cwdSet, versionSet, branchSet bool
	toolUseApplied := make(map[string]bool) // correlation ID -> result already merged

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec claudeRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		sawAnyValidRecord = true

		if !sessionIDSet && rec.SessionID != "" {
			sess.ID = rec.SessionID
			sessionIDSet = true
		}
		if !cwdSet && rec.Cwd != "" {
			sess.Cwd = rec.Cwd
			cwdSet = true
		}
		if !versionSet && rec.Version != "" {
			versionSet = true
		}
		if !branchSet && rec.GitBranch != "" {
			sess.Metadata.Git = &GitInfo{Branch: rec.GitBranch}
			branchSet = true
		}

		switch rec.Type {
		case "summary":
			if sess.Metadata.Title == "" {
				sess.Metadata.Title = extractSummaryTitle(line)
			}
			continue
		case "system":
			sawSystemEvent = true
			continue
		}

		if rec.IsMeta || rec.Message == nil {
			continue
		}
		if len(bytes.TrimSpace(rec.Message.Content)) == 0 {
			continue
		}

		role := RoleUser
		if rec.Message.Role == "assistant" {
			role = RoleAssistant
		} else if rec.Message.Role != "user" {
			continue
		}

		blocks, unknown := parseJSONLContent(rec.Message.Content, rec.ToolUseResult, toolUseApplied)
		for _, label := range unknown {
			appendUnknownFormat(&sess.Metadata, label)
		}
		if len(blocks) == 0 {
			continue
		}

		msg := Message{
			Role:          role,
			ContentBlocks: blocks,
			MessageID:     rec.UUID,
			ParentID:      rec.ParentUUID,
			IsSidechain:   rec.IsSidechain,
		}
		if ts, err := time.Parse(time.RFC3339, rec.Timestamp); err == nil {
			msg.Timestamp = &ts
		}

		if role == RoleAssistant && rec.Message.Model != "" {
			sess.Metadata.Model = rec.Message.Model
		}
		if role == RoleAssistant && rec.Message.Usage != nil {
			addUsage(&sess.Metadata, rec.Message.Usage)
		}

		sess.Messages = append(sess.Messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: scan jsonl: %w", path, err)
	}

	if !sawAnyValidRecord {
		return nil, &ClaudeParseError{Reason: "no_valid_conversation", Path: path}
	}
	if len(sess.Messages) == 0 && sawSystemEvent {
		return nil, &ClaudeParseError{Reason: "system_events_only", Path: path}
	}
	if !sessionIDSet {
		return nil, &ClaudeParseError{Reason: "missing_field", Field: "sessionId", Path: path}
	}

	sess.Source = "claude-code"
	sess.Metadata.OriginalPath = path
	return sess, nil
}

// createEmptySessionFromPath seeds a Session with an ID and cwd derived
// from the file path when content peeking later fails to supply them: the
// ID falls back to the file's stem, or a fresh UUID if the stem isn't
// usable, and cwd falls back to decoding the parent directory name (Claude
// Code encodes project paths into its per-project log directory names).
func createEmptySessionFromPath(path string, data []byte) *Session {
	now := time.Now().UTC()
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	id := stem
	if id == "" {
		id = uuid.NewString()
	}

	cwd := decodeProjectDirName(filepath.Base(filepath.Dir(path)))

	return &Session{
		ID:        id,
		Source:    "claude-code",
		Cwd:       cwd,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// decodeProjectDirName reverses Claude Code's project-directory encoding,
// where "/" in a workspace path becomes "-" in the directory name.
func decodeProjectDirName(dirName string) string {
	if dirName == "" || dirName == "." {
		return ""
	}
	return "/" + strings.ReplaceAll(dirName, "-", "/")
}

// extractSummaryTitle pulls the "summary" string field out of a summary
// record without requiring a dedicated struct for the (rare) type.
func extractSummaryTitle(line string) string {
	var s struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(line), &s); err != nil {
		return ""
	}
	return s.Summary
}

func addUsage(meta *SessionMetadata, u *claudeUsage) {
	if meta.TokensBreakdown == nil {
		meta.TokensBreakdown = &TokensBreakdown{}
	}
	meta.TokensBreakdown.Input += u.InputTokens
	meta.TokensBreakdown.Output += u.OutputTokens
	meta.TokensBreakdown.CacheCreation += u.CacheCreationInputTokens
	meta.TokensBreakdown.CacheRead += u.CacheReadInputTokens
	meta.TotalTokens += u.InputTokens + u.OutputTokens
}

// parseJSONLContent parses a message's content field, which vendors send
// as either a bare string (treated as a single text block) or an array of
// typed content blocks.
func parseJSONLContent(content json.RawMessage, toolUseResult json.RawMessage, applied map[string]bool) ([]ContentBlock, []string) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, nil
		}
		if text == "" {
			return nil, nil
		}
		return []ContentBlock{{Kind: BlockText, Text: text}}, nil
	}

	var rawBlocks []claudeContentBlock
	if err := json.Unmarshal(trimmed, &rawBlocks); err != nil {
		return nil, nil
	}

	var blocks []ContentBlock
	var unknown []string
	for _, rb := range rawBlocks {
		block, ok, label := parseJSONLContentBlock(rb, toolUseResult, applied)
		if ok {
			blocks = append(blocks, block)
		}
		if label != "" {
			unknown = append(unknown, label)
		}
	}
	return blocks, unknown
}

// parseJSONLContentBlock converts one vendor content block into a
// ContentBlock. tool_use uses its own id as the correlation id; tool_result
// uses tool_use_id to correlate back to it. The first (and only the first)
// tool_result block for a given correlation id receives the out-of-band
// toolUseResult payload — later duplicates are treated as already applied.
func parseJSONLContentBlock(rb claudeContentBlock, toolUseResult json.RawMessage, applied map[string]bool) (ContentBlock, bool, string) {
	switch rb.Type {
	case "text":
		cleaned := stripSystemReminders(rb.Text)
		if cleaned == "" {
			return ContentBlock{}, false, ""
		}
		return ContentBlock{Kind: BlockText, Text: cleaned}, true, ""

	case "thinking":
		cleaned := stripSystemReminders(rb.Thinking)
		if cleaned == "" {
			return ContentBlock{}, false, ""
		}
		return ContentBlock{Kind: BlockThinking, Text: cleaned}, true, ""

	case "tool_use":
		tool := NormalizeTool(rb.Name, rb.Input)
		return ContentBlock{
			Kind:      BlockToolUse,
			ToolName:  rb.Name,
			ToolUseID: rb.ID,
			Tool:      &tool,
			RawInput:  rb.Input,
		}, true, ""

	case "tool_result":
		text := extractToolResultText(rb.Content)
		block := ContentBlock{
			Kind:          BlockToolResult,
			CorrelationID: rb.ToolUseID,
			IsError:       rb.IsError,
		}
		if text != "" {
			block.Text = cleanToolResultText(text)
		}
		if !applied[rb.ToolUseID] {
			if result := parseToolUseResult(toolUseResult); result != nil {
				block.Result = result
				applied[rb.ToolUseID] = true
			}
		}
		return block, true, ""

	default:
		raw, _ := json.Marshal(rb)
		label := "content_block_type_" + rb.Type
		return degradedTextBlock(raw), true, label
	}
}

// extractToolResultText pulls the displayable text out of a tool_result
// block's content field, which vendors send as either a bare string or an
// array of {type: "text", text: "..."} blocks.
func extractToolResultText(content json.RawMessage) string {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		_ = json.Unmarshal(trimmed, &s)
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(trimmed, &blocks); err != nil {
		return ""
	}
	var b strings.Builder
	for _, blk := range blocks {
		if blk.Type == "text" {
			b.WriteString(blk.Text)
		}
	}
	return b.String()
}
