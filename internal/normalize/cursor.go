package normalize

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// cursorComposerData is the shape of the JSON blob Cursor stores under the
// "composer.composerData" key of its workspace-local state.vscdb, one row
// per editor tab's chat thread.
type cursorComposerData struct {
	Composers []cursorComposer `json:"allComposers"`
}

type cursorComposer struct {
	ComposerID string `json:"composerId"`
	Name       string `json:"name"`
	CreatedAt  int64  `json:"createdAt"` // epoch millis
	LastUpdatedAt int64 `json:"lastUpdatedAt"`
}

// cursorBubble is one chat turn, stored as its own ItemTable row keyed
// "bubbleId:<composerId>:<bubbleId>".
type cursorBubble struct {
	Type                int                    `json:"type"` // 1 = user, 2 = assistant
	Text                string                 `json:"text"`
	ToolFormerData      *cursorToolCall        `json:"toolFormerData,omitempty"`
	SuggestedCodeBlocks []cursorCodeSuggestion `json:"suggestedCodeBlocks,omitempty"`
}

type cursorToolCall struct {
	Name   string          `json:"name"`
	Params json.RawMessage `json:"rawArgs"`
	Result json.RawMessage `json:"result"`
}

// cursorCodeSuggestion is one entry of a bubble's suggestedCodeBlocks, the
// inline code Cursor's assistant proposes alongside its chat reply.
type cursorCodeSuggestion struct {
	FilePath string `json:"filePath"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

// ParseCursorWorkspace reads every composer (chat thread) out of a Cursor
// workspace's state.vscdb and returns one normalized Session per thread.
// dbPath is the path to state.vscdb itself (Cursor keeps one per workspace
// under its workspaceStorage directory, named by a hash of the folder
// path, which is the detail a caller sweeping ~/.../workspaceStorage for
// logs needs to resolve before calling this).
func ParseCursorWorkspace(dbPath string) ([]*Session, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro&immutable=1")
	if err != nil {
		return nil, fmt.Errorf("open cursor workspace db: %w", err)
	}
	defer db.Close()

	var composersBlob []byte
	row := db.QueryRow(`SELECT value FROM ItemTable WHERE key = 'composer.composerData'`)
	if err := row.Scan(&composersBlob); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("read composer data: %w", err)
	}

	var data cursorComposerData
	if err := json.Unmarshal(composersBlob, &data); err != nil {
		return nil, fmt.Errorf("parse composer data: %w", err)
	}

	var sessions []*Session
	for _, c := range data.Composers {
		sess, err := buildCursorSession(db, dbPath, c)
		if err != nil {
			continue // one malformed thread shouldn't sink the whole sweep
		}
		if sess != nil {
			sessions = append(sessions, sess)
		}
	}
	return sessions, nil
}

func buildCursorSession(db *sql.DB, dbPath string, c cursorComposer) (*Session, error) {
	rows, err := db.Query(`SELECT value FROM ItemTable WHERE key LIKE ? ORDER BY key`, "bubbleId:"+c.ComposerID+":%")
	if err != nil {
		return nil, fmt.Errorf("read bubbles for %s: %w", c.ComposerID, err)
	}
	defer rows.Close()

	sess := &Session{
		ID:        c.ComposerID,
		Source:    "cursor",
		CreatedAt: millisToTime(c.CreatedAt),
		UpdatedAt: millisToTime(c.LastUpdatedAt),
	}
	sess.Metadata.Title = c.Name
	sess.Metadata.OriginalPath = dbPath

	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			continue
		}
		var bubble cursorBubble
		if err := json.Unmarshal(blob, &bubble); err != nil {
			continue
		}

		if bubble.Type != 1 && bubble.Type != 2 {
			appendUnknownFormat(&sess.Metadata, fmt.Sprintf("bubble_type_%d", bubble.Type))
			sess.Messages = append(sess.Messages, Message{
				Role:          RoleUser,
				ContentBlocks: []ContentBlock{degradedTextBlock(blob)},
			})
			continue
		}

		role := RoleUser
		if bubble.Type == 2 {
			role = RoleAssistant
		}

		var blocks []ContentBlock
		if bubble.Text != "" {
			blocks = append(blocks, ContentBlock{Kind: BlockText, Text: bubble.Text})
		}
		if bubble.ToolFormerData != nil {
			tool := NormalizeTool(bubble.ToolFormerData.Name, bubble.ToolFormerData.Params)
			blocks = append(blocks, ContentBlock{
				Kind:     BlockToolUse,
				ToolName: bubble.ToolFormerData.Name,
				Tool:     &tool,
				RawInput: bubble.ToolFormerData.Params,
			})
			if len(bubble.ToolFormerData.Result) > 0 {
				blocks = append(blocks, ContentBlock{
					Kind:   BlockToolResult,
					Result: &ToolResultData{Kind: ResultOther, Value: bubble.ToolFormerData.Result},
				})
			}
		}
		for _, cb := range bubble.SuggestedCodeBlocks {
			if cb.Code == "" {
				continue
			}
			filePath := cb.FilePath
			if filePath == "" {
				filePath = "unknown"
			}
			blocks = append(blocks, ContentBlock{
				Kind:     BlockCodeSuggestion,
				FilePath: filePath,
				NewCode:  cb.Code,
				Language: cb.Language,
			})
		}
		if len(blocks) == 0 {
			continue
		}

		sess.Messages = append(sess.Messages, Message{Role: role, ContentBlocks: blocks})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sess, nil
}

func millisToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
