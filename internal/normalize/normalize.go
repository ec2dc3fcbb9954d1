package normalize

import (
	"fmt"
	"strings"
)

// Source identifies which vendor adapter produced (or should parse) a log.
type Source string

const (
	SourceClaudeCode Source = "claude-code"
	SourceCursor     Source = "cursor"
	SourceGeminiCLI  Source = "gemini-cli"
	SourceCodex      Source = "codex"
)

// DetectSource guesses which adapter owns a file from its path alone; data
// is not inspected. Both .jsonl and .json paths map to SourceClaudeCode,
// and ParseFile then chooses between the JSONL and legacy single-JSON
// parsers. Returns "" if no adapter recognizes the path.
func DetectSource(path string, data []byte) Source {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, "state.vscdb"):
		return SourceCursor
	case strings.Contains(lower, "gemini"):
		return SourceGeminiCLI
	case strings.Contains(lower, "codex"):
		return SourceCodex
	case strings.HasSuffix(lower, ".jsonl"):
		return SourceClaudeCode
	case strings.HasSuffix(lower, ".json"):
		return SourceClaudeCode
	default:
		return ""
	}
}

// ParseFile normalizes a single log file, given its path and content,
// dispatching to the adapter DetectSource picks. For a Claude Code-shaped
// path ending in .json it tries the legacy single-JSON parser first; in
// every other case (and when that attempt fails) it tries the JSONL parser
// and falls back to the legacy parser, since a conversation log can be
// either depending on the tool version that wrote it.
func ParseFile(path string, data []byte) (*Session, error) {
	switch DetectSource(path, data) {
	case SourceCursor:
		sessions, err := ParseCursorWorkspace(path)
		if err != nil {
			return nil, err
		}
		if len(sessions) == 0 {
			return nil, fmt.Errorf("%s: no composer threads found", path)
		}
		return sessions[0], nil

	case SourceGeminiCLI:
		return ParseGeminiTranscript(path, data)

	case SourceCodex:
		return ParseCodexTranscript(path, data)

	case SourceClaudeCode:
		if isLikelyLegacyPath(path) {
			if sess, err := ParseLegacyJSON(path, data); err == nil {
				return sess, nil
			}
		}
		sess, err := ParseClaudeJSONL(path, data)
		if err == nil {
			return sess, nil
		}
		if legacySess, legacyErr := ParseLegacyJSON(path, data); legacyErr == nil {
			return legacySess, nil
		}
		return nil, err

	default:
		return nil, fmt.Errorf("%s: unrecognized log format", path)
	}
}

// ParseWorkspace normalizes every composer thread in a Cursor workspace
// database, since Cursor (unlike the other vendors) stores many sessions
// in one file rather than one session per file.
func ParseWorkspace(dbPath string) ([]*Session, error) {
	return ParseCursorWorkspace(dbPath)
}
