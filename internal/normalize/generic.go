package normalize

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
	"time"
)

// geminiTurnPrefix and codexTurnPrefix mark the start of a new turn in the
// line-oriented transcripts Gemini CLI and Codex CLI write — neither tool
// emits structured per-message JSON the way Claude Code and Cursor do, so
// role boundaries have to be recovered from a fixed line prefix instead.
var (
	geminiTurnPrefix = regexp.MustCompile(`^(user|model):\s?`)
	codexTurnPrefix  = regexp.MustCompile(`^\[(user|assistant)\]\s?`)
)

// ParseGeminiTranscript parses Gemini CLI's plain-text session log, where
// each turn starts on its own line with a "user:" or "model:" prefix and
// continues until the next prefixed line.
func ParseGeminiTranscript(path string, data []byte) (*Session, error) {
	return parseTextTranscript(path, data, "gemini-cli", geminiTurnPrefix, map[string]Role{
		"user":  RoleUser,
		"model": RoleAssistant,
	})
}

// ParseCodexTranscript parses Codex CLI's plain-text session log, using
// "[user]"/"[assistant]" line prefixes as turn boundaries.
func ParseCodexTranscript(path string, data []byte) (*Session, error) {
	return parseTextTranscript(path, data, "codex", codexTurnPrefix, map[string]Role{
		"user":      RoleUser,
		"assistant": RoleAssistant,
	})
}

func parseTextTranscript(path string, data []byte, source string, prefix *regexp.Regexp, roles map[string]Role) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        sessionIDFromPath(path),
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sess.Metadata.OriginalPath = path

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var currentRole Role
	var currentText strings.Builder
	haveTurn := false

	flush := func() {
		if !haveTurn {
			return
		}
		text := strings.TrimSpace(currentText.String())
		if text != "" {
			sess.Messages = append(sess.Messages, Message{
				Role:          currentRole,
				ContentBlocks: []ContentBlock{{Kind: BlockText, Text: text}},
			})
		}
		currentText.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		if m := prefix.FindStringSubmatchIndex(line); m != nil {
			flush()
			tag := line[m[2]:m[3]]
			currentRole = roles[tag]
			currentText.WriteString(line[m[1]:])
			haveTurn = true
			continue
		}
		if haveTurn {
			currentText.WriteString("\n")
			currentText.WriteString(line)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sess, nil
}

func sessionIDFromPath(path string) string {
	h := strings.TrimSuffix(path, ".log")
	h = strings.TrimSuffix(h, ".txt")
	if idx := strings.LastIndexByte(h, '/'); idx >= 0 {
		h = h[idx+1:]
	}
	if h == "" {
		return "session"
	}
	return h
}
