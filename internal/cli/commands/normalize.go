package commands

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mantra-hq/mantra/internal/cli/flags"
	"github.com/mantra-hq/mantra/internal/config"
	"github.com/mantra-hq/mantra/internal/normalize"
	"github.com/mantra-hq/mantra/internal/storage"
)

func init() {
	Register(&Command{
		Name:        "normalize",
		Description: "Import AI coding tool conversation logs into the local store",
		Run:         RunNormalize,
	})
}

// NormalizeOptions contains the configuration for the normalize command.
type NormalizeOptions struct {
	Root   string
	Path   string
	Source string
}

// RunNormalize executes the normalize command with parsed arguments.
func RunNormalize(args []string) error {
	fs := flag.NewFlagSet("normalize", flag.ContinueOnError)
	root := flags.AddRootFlag(fs)
	path := fs.String("path", "", "file or directory of vendor logs to import (default: common vendor locations)")
	source := fs.String("source", "", "restrict import to one vendor: claude-code, cursor, gemini-cli, codex")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return ExecuteNormalize(NormalizeOptions{Root: *root, Path: *path, Source: *source})
}

// ExecuteNormalize walks Path (or, if empty, the well-known per-vendor log
// locations under the workspace root and the user's home directory),
// normalizing every recognized conversation log into a SessionRecord and
// upserting it into the store.
func ExecuteNormalize(opts NormalizeOptions) error {
	rootPath, err := filepath.Abs(opts.Root)
	if err != nil {
		return err
	}

	cfg, err := config.Load(rootPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dataDir := cfg.DataDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(rootPath, dataDir)
	}
	store, err := storage.Open(dataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	roots := []string{opts.Path}
	if opts.Path == "" {
		roots = defaultLogRoots(rootPath)
	}

	imported, skipped := 0, 0
	for _, root := range roots {
		if root == "" {
			continue
		}
		n, s, err := importPath(store, root, opts.Source)
		if err != nil {
			fmt.Fprintf(os.Stderr, "normalize %s: %v\n", root, err)
			continue
		}
		imported += n
		skipped += s
	}

	fmt.Printf("imported %d session(s), skipped %d empty session(s)\n", imported, skipped)
	return nil
}

func importPath(store *storage.Store, root, sourceFilter string) (imported, skipped int, err error) {
	info, statErr := os.Stat(root)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return 0, 0, nil
		}
		return 0, 0, statErr
	}

	if !info.IsDir() {
		n, s, err := importFile(store, root, sourceFilter)
		return n, s, err
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		n, s, fileErr := importFile(store, path, sourceFilter)
		if fileErr != nil {
			fmt.Fprintf(os.Stderr, "normalize %s: %v\n", path, fileErr)
			return nil
		}
		imported += n
		skipped += s
		return nil
	})
	return imported, skipped, err
}

func importFile(store *storage.Store, path, sourceFilter string) (imported, skipped int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}

	src := normalize.DetectSource(path, data)
	if src == "" {
		return 0, 0, nil
	}
	if sourceFilter != "" && string(src) != sourceFilter {
		return 0, 0, nil
	}

	if src == normalize.SourceCursor {
		sessions, err := normalize.ParseWorkspace(path)
		if err != nil {
			return 0, 0, err
		}
		for _, sess := range sessions {
			stored, err := storeSession(store, sess, path)
			if err != nil {
				return imported, skipped, err
			}
			if stored {
				imported++
			} else {
				skipped++
			}
		}
		return imported, skipped, nil
	}

	sess, err := normalize.ParseFile(path, data)
	if err != nil {
		return 0, 0, err
	}
	stored, err := storeSession(store, sess, path)
	if err != nil {
		return 0, 0, err
	}
	if stored {
		return 1, 0, nil
	}
	return 0, 1, nil
}

func storeSession(store *storage.Store, sess *normalize.Session, sourcePath string) (bool, error) {
	if sess.IsEmpty() {
		return false, nil
	}

	messages, err := json.Marshal(sess.Messages)
	if err != nil {
		return false, fmt.Errorf("marshal messages: %w", err)
	}
	metadata, err := json.Marshal(sess.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshal metadata: %w", err)
	}

	rec := storage.SessionRecord{
		ID:           sess.ID,
		Source:       sess.Source,
		Cwd:          sess.Cwd,
		CreatedAt:    sess.CreatedAt,
		UpdatedAt:    sess.UpdatedAt,
		Metadata:     metadata,
		Messages:     messages,
		MessageCount: len(sess.Messages),
		IsEmpty:      false,
		Title:        sess.Metadata.Title,
		SourcePath:   sourcePath,
		SourceHash:   hashBytes(messages),
	}
	if err := store.UpsertSession(rec); err != nil {
		return false, fmt.Errorf("upsert session %s: %w", rec.ID, err)
	}
	return true, nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// defaultLogRoots lists the well-known per-vendor conversation log
// locations: Claude Code's project-scoped JSONL transcripts under the
// user's home directory, Cursor's global workspace storage, and Gemini/
// Codex's CLI session logs.
func defaultLogRoots(rootPath string) []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".claude", "projects"),
		filepath.Join(home, "Library", "Application Support", "Cursor", "User", "workspaceStorage"),
		filepath.Join(home, ".config", "Cursor", "User", "workspaceStorage"),
		filepath.Join(home, ".gemini", "tmp"),
		filepath.Join(home, ".codex", "sessions"),
		filepath.Join(rootPath, ".mantra", "imports"),
	}
}
