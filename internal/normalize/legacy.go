package normalize

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"
)

// legacySession is the shape of the older, pre-JSONL Claude export format:
// one JSON document holding the whole conversation rather than one record
// per line.
type legacySession struct {
	SessionID string `json:"session_id"`
	Cwd       string `json:"cwd"`
	Messages  []struct {
		Role      string          `json:"role"`
		Content   json.RawMessage `json:"content"`
		Timestamp string          `json:"timestamp"`
	} `json:"messages"`
}

// ParseLegacyJSON parses the legacy single-JSON-document Claude export
// format into a normalized Session. Detection of which parser to use
// happens in ParseFile, which tries this parser first for .json paths and
// after the JSONL parser otherwise; a file that fails line-by-line parsing
// but succeeds as one JSON document is legacy format.
func ParseLegacyJSON(path string, data []byte) (*Session, error) {
	var doc legacySession
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: not a legacy conversation document: %w", path, err)
	}
	if doc.SessionID == "" {
		return nil, &ClaudeParseError{Reason: "missing_field", Field: "session_id", Path: path}
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:        doc.SessionID,
		Source:    "claude-code-legacy",
		Cwd:       doc.Cwd,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sess.Metadata.OriginalPath = path

	applied := make(map[string]bool)
	for _, m := range doc.Messages {
		role := RoleUser
		if m.Role == "assistant" {
			role = RoleAssistant
		} else if m.Role != "user" {
			continue
		}
		blocks, unknown := parseJSONLContent(m.Content, nil, applied)
		for _, label := range unknown {
			appendUnknownFormat(&sess.Metadata, label)
		}
		if len(blocks) == 0 {
			continue
		}
		msg := Message{Role: role, ContentBlocks: blocks}
		if ts, err := time.Parse(time.RFC3339, m.Timestamp); err == nil {
			msg.Timestamp = &ts
		}
		sess.Messages = append(sess.Messages, msg)
	}

	return sess, nil
}

// isLikelyLegacyPath is a light heuristic a sweep can use to decide which
// parser to try first, since both formats commonly end in .json/.jsonl.
func isLikelyLegacyPath(path string) bool {
	return filepath.Ext(path) == ".json"
}
