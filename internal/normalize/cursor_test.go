package normalize

import (
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
)

// newCursorTestDB builds a minimal state.vscdb with one composer and the
// given bubble rows, mirroring the ItemTable key/value layout
// ParseCursorWorkspace reads.
func newCursorTestDB(t *testing.T, composerID string, bubbles []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.vscdb")

	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatalf("open cursor test db: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE ItemTable (key TEXT PRIMARY KEY, value BLOB)`); err != nil {
		t.Fatalf("create ItemTable: %v", err)
	}

	composers, _ := json.Marshal(cursorComposerData{
		Composers: []cursorComposer{{ComposerID: composerID, Name: "test thread"}},
	})
	if _, err := db.Exec(`INSERT INTO ItemTable (key, value) VALUES (?, ?)`, "composer.composerData", composers); err != nil {
		t.Fatalf("insert composer data: %v", err)
	}

	for i, b := range bubbles {
		key := "bubbleId:" + composerID + ":" + string(rune('a'+i))
		if _, err := db.Exec(`INSERT INTO ItemTable (key, value) VALUES (?, ?)`, key, b); err != nil {
			t.Fatalf("insert bubble %d: %v", i, err)
		}
	}

	return path
}

func TestParseCursorWorkspaceDegradesUnknownBubbleType(t *testing.T) {
	path := newCursorTestDB(t, "c1", []string{
		`{"type":1,"text":"hello"}`,
		`{"type":99,"text":"from the future"}`,
	})

	sessions, err := ParseCursorWorkspace(path)
	if err != nil {
		t.Fatalf("ParseCursorWorkspace() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	sess := sessions[0]
	if len(sess.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(sess.Messages))
	}

	degraded := sess.Messages[1].ContentBlocks
	if len(degraded) != 1 || degraded[0].Kind != BlockText || !degraded[0].IsDegraded {
		t.Errorf("second message blocks = %+v, want one degraded text block", degraded)
	}
	if len(sess.Metadata.UnknownFormats) != 1 || sess.Metadata.UnknownFormats[0] != "bubble_type_99" {
		t.Errorf("UnknownFormats = %v, want [bubble_type_99]", sess.Metadata.UnknownFormats)
	}
}

func TestParseCursorWorkspaceConvertsSuggestedCodeBlocks(t *testing.T) {
	path := newCursorTestDB(t, "c2", []string{
		`{"type":2,"text":"here's a fix","suggestedCodeBlocks":[{"filePath":"a.go","code":"func main() {}","language":"go"},{"filePath":"","code":"","language":"go"}]}`,
	})

	sessions, err := ParseCursorWorkspace(path)
	if err != nil {
		t.Fatalf("ParseCursorWorkspace() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	blocks := sessions[0].Messages[0].ContentBlocks
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2 (text + one code suggestion, the empty-code one skipped)", len(blocks))
	}
	suggestion := blocks[1]
	if suggestion.Kind != BlockCodeSuggestion {
		t.Fatalf("blocks[1].Kind = %v, want code_suggestion", suggestion.Kind)
	}
	if suggestion.FilePath != "a.go" || suggestion.NewCode != "func main() {}" || suggestion.Language != "go" {
		t.Errorf("suggestion = %+v", suggestion)
	}
}

func TestParseCursorWorkspaceSuggestedCodeBlockDefaultsFilePath(t *testing.T) {
	path := newCursorTestDB(t, "c3", []string{
		`{"type":2,"text":"","suggestedCodeBlocks":[{"filePath":"","code":"x := 1","language":"go"}]}`,
	})

	sessions, err := ParseCursorWorkspace(path)
	if err != nil {
		t.Fatalf("ParseCursorWorkspace() error = %v", err)
	}
	blocks := sessions[0].Messages[0].ContentBlocks
	if len(blocks) != 1 || blocks[0].FilePath != "unknown" {
		t.Errorf("blocks = %+v, want a single suggestion defaulting filePath to \"unknown\"", blocks)
	}
}
