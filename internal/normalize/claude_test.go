package normalize

import (
	"strings"
	"testing"
)

func TestParseClaudeJSONLBasicConversation(t *testing.T) {
	jsonl := strings.Join([]string{
		`{"type":"summary","summary":"Fix the login bug"}`,
		`{"sessionId":"abc-123","cwd":"/home/user/project","version":"1.2.3","gitBranch":"main","uuid":"m1","type":"user","message":{"role":"user","content":"Fix the bug"},"timestamp":"2026-01-01T00:00:00Z"}`,
		`{"sessionId":"abc-123","uuid":"m2","parentUuid":"m1","type":"assistant","message":{"role":"assistant","model":"claude-x","content":[{"type":"text","text":"Looking into it"},{"type":"tool_use","id":"t1","name":"Read","input":{"file_path":"/a.go"}}],"usage":{"input_tokens":100,"output_tokens":20}},"timestamp":"2026-01-01T00:00:01Z"}`,
		`{"sessionId":"abc-123","uuid":"m3","parentUuid":"m2","type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"1|package main"}]},"toolUseResult":{"file":{"filePath":"/a.go","content":"1|package main"}}}`,
	}, "\n")

	sess, err := ParseClaudeJSONL("/logs/abc-123.jsonl", []byte(jsonl))
	if err != nil {
		t.Fatalf("ParseClaudeJSONL() error: %v", err)
	}
	if sess.ID != "abc-123" {
		t.Errorf("ID = %q, want abc-123", sess.ID)
	}
	if sess.Cwd != "/home/user/project" {
		t.Errorf("Cwd = %q, want /home/user/project", sess.Cwd)
	}
	if sess.Metadata.Title != "Fix the login bug" {
		t.Errorf("Title = %q, want summary text", sess.Metadata.Title)
	}
	if sess.Metadata.Git == nil || sess.Metadata.Git.Branch != "main" {
		t.Errorf("Git = %+v, want branch main", sess.Metadata.Git)
	}
	if sess.Metadata.Model != "claude-x" {
		t.Errorf("Model = %q, want claude-x", sess.Metadata.Model)
	}
	if sess.Metadata.TokensBreakdown == nil || sess.Metadata.TokensBreakdown.Input != 100 {
		t.Errorf("TokensBreakdown = %+v", sess.Metadata.TokensBreakdown)
	}
	if len(sess.Messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(sess.Messages))
	}
	if sess.Messages[0].Role != RoleUser {
		t.Errorf("Messages[0].Role = %v, want user", sess.Messages[0].Role)
	}
	if sess.Messages[1].ContentBlocks[1].Kind != BlockToolUse {
		t.Fatalf("Messages[1].ContentBlocks[1].Kind = %v", sess.Messages[1].ContentBlocks[1].Kind)
	}
	if sess.Messages[1].ContentBlocks[1].Tool.Kind != ToolFileRead {
		t.Errorf("tool kind = %v, want file_read", sess.Messages[1].ContentBlocks[1].Tool.Kind)
	}
	resultBlock := sess.Messages[2].ContentBlocks[0]
	if resultBlock.Kind != BlockToolResult || resultBlock.CorrelationID != "t1" {
		t.Fatalf("result block = %+v", resultBlock)
	}
	if resultBlock.Result == nil || resultBlock.Result.Content != "package main" {
		t.Errorf("Result = %+v, want line-number prefix stripped", resultBlock.Result)
	}
	if sess.IsEmpty() {
		t.Error("IsEmpty() = true, want false")
	}
}

func TestParseClaudeJSONLEmptyFile(t *testing.T) {
	_, err := ParseClaudeJSONL("/logs/empty.jsonl", []byte("   \n\n"))
	var parseErr *ClaudeParseError
	if err == nil {
		t.Fatal("expected error for empty file")
	}
	if !errorsAs(err, &parseErr) || parseErr.Reason != "empty_file" {
		t.Errorf("error = %v, want empty_file", err)
	}
}

func TestParseClaudeJSONLSystemEventsOnly(t *testing.T) {
	jsonl := `{"sessionId":"s1","type":"system"}`
	_, err := ParseClaudeJSONL("/logs/s1.jsonl", []byte(jsonl))
	var parseErr *ClaudeParseError
	if !errorsAs(err, &parseErr) || parseErr.Reason != "system_events_only" {
		t.Errorf("error = %v, want system_events_only", err)
	}
}

func TestParseClaudeJSONLMissingSessionID(t *testing.T) {
	jsonl := `{"uuid":"m1","type":"user","message":{"role":"user","content":"hi"}}`
	_, err := ParseClaudeJSONL("/logs/nosession.jsonl", []byte(jsonl))
	var parseErr *ClaudeParseError
	if !errorsAs(err, &parseErr) || parseErr.Reason != "missing_field" || parseErr.Field != "sessionId" {
		t.Errorf("error = %v, want missing_field(sessionId)", err)
	}
}

func TestParseClaudeJSONLSkipsMeta(t *testing.T) {
	jsonl := strings.Join([]string{
		`{"sessionId":"s2","uuid":"m1","type":"user","message":{"role":"user","content":"real"}}`,
		`{"sessionId":"s2","uuid":"m2","isMeta":true,"type":"user","message":{"role":"user","content":"meta noise"}}`,
	}, "\n")
	sess, err := ParseClaudeJSONL("/logs/s2.jsonl", []byte(jsonl))
	if err != nil {
		t.Fatalf("ParseClaudeJSONL() error: %v", err)
	}
	if len(sess.Messages) != 1 {
		t.Fatalf("got %d messages, want 1 (isMeta message skipped)", len(sess.Messages))
	}
}

func TestParseClaudeJSONLDegradesUnknownContentBlockType(t *testing.T) {
	jsonl := `{"sessionId":"s3","uuid":"m1","type":"user","message":{"role":"user","content":[{"type":"future_block","weird":"payload"}]}}`
	sess, err := ParseClaudeJSONL("/logs/s3.jsonl", []byte(jsonl))
	if err != nil {
		t.Fatalf("ParseClaudeJSONL() error: %v", err)
	}
	if len(sess.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(sess.Messages))
	}
	blocks := sess.Messages[0].ContentBlocks
	if len(blocks) != 1 {
		t.Fatalf("got %d content blocks, want 1", len(blocks))
	}
	if blocks[0].Kind != BlockText || !blocks[0].IsDegraded {
		t.Errorf("block = %+v, want a degraded text block", blocks[0])
	}
	if !strings.Contains(blocks[0].Text, "future_block") {
		t.Errorf("degraded snapshot = %q, want it to contain the raw record", blocks[0].Text)
	}
	if len(sess.Metadata.UnknownFormats) != 1 || sess.Metadata.UnknownFormats[0] != "content_block_type_future_block" {
		t.Errorf("UnknownFormats = %v, want [content_block_type_future_block]", sess.Metadata.UnknownFormats)
	}
}

func TestParseClaudeJSONLStripsSystemReminderFromTextAndThinking(t *testing.T) {
	jsonl := `{"sessionId":"s4","uuid":"m1","type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"<system-reminder>internal note</system-reminder>"},{"type":"thinking","thinking":"real thought <system-reminder>noise</system-reminder>"}]}}`
	sess, err := ParseClaudeJSONL("/logs/s4.jsonl", []byte(jsonl))
	if err != nil {
		t.Fatalf("ParseClaudeJSONL() error: %v", err)
	}
	if len(sess.Messages) != 1 {
		t.Fatalf("got %d messages, want 1 (the empty-after-stripping text block should drop but thinking should stay)", len(sess.Messages))
	}
	blocks := sess.Messages[0].ContentBlocks
	if len(blocks) != 1 {
		t.Fatalf("got %d content blocks, want 1 (the all-reminder text block is dropped)", len(blocks))
	}
	if blocks[0].Kind != BlockThinking {
		t.Fatalf("blocks[0].Kind = %v, want thinking", blocks[0].Kind)
	}
	if strings.Contains(blocks[0].Text, "system-reminder") || !strings.Contains(blocks[0].Text, "real thought") {
		t.Errorf("Text = %q, want the reminder stripped and the real thought kept", blocks[0].Text)
	}
}

// errorsAs avoids importing "errors" just for As in every test.
func errorsAs(err error, target **ClaudeParseError) bool {
	if pe, ok := err.(*ClaudeParseError); ok {
		*target = pe
		return true
	}
	return false
}
