// Package fsutil provides the filesystem primitives shared by the log
// normalizer's path discovery and the takeover engine's transactional file
// rewrites: guardrail-aware directory walks, content hashing, and atomic
// replace.
package fsutil

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/mantra-hq/mantra/internal/config"
)

// MatchesGuardrail returns true if the path matches any guardrail glob.
func MatchesGuardrail(path string, guardrails config.Guardrails) bool {
	normalized := filepath.ToSlash(path)
	for _, g := range guardrails.DoNotTouchGlobs {
		if g == "" {
			continue
		}
		ok, err := doublestar.Match(g, normalized)
		if err == nil && ok {
			return true
		}
	}
	for _, g := range guardrails.ReadOnlyGlobs {
		if g == "" {
			continue
		}
		ok, err := doublestar.Match(g, normalized)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// HashFile returns the lowercase hex SHA-256 digest of a file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// HashBytes returns the lowercase hex SHA-256 digest of b.
func HashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return fmt.Sprintf("%x", h)
}

// ListFiles walks root, returning paths relative to root, skipping anything
// that matches a guardrail glob and not following symlinked directories.
func ListFiles(root string, guardrails config.Guardrails) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if MatchesGuardrail(rel, guardrails) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&os.ModeSymlink != 0 {
			target, err := os.Stat(path)
			if err != nil {
				return nil
			}
			if target.IsDir() {
				return filepath.SkipDir
			}
			files = append(files, rel)
			return nil
		}

		if d.IsDir() {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// AtomicReplace writes data to a temp file in the same directory as path,
// fsyncs it, then renames it over path — the write-temp+fsync+rename
// pattern the takeover engine uses for every config-file rewrite and
// restore so a crash mid-write never leaves a half-written file behind.
func AtomicReplace(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".mantra-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// CopyFileAtomic copies src's contents onto dst using AtomicReplace,
// preserving dst's existing permissions if it already exists.
func CopyFileAtomic(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	perm := os.FileMode(0o600)
	if info, err := os.Stat(dst); err == nil {
		perm = info.Mode().Perm()
	}
	return AtomicReplace(dst, data, perm)
}

var ErrNotFound = os.ErrNotExist

// FileStat is a minimal, deterministic summary of a file's state.
type FileStat struct {
	Size    int64
	ModTime time.Time
	Hash    string
}

// StatFile returns size and mod time for a path.
func StatFile(path string) (FileStat, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileStat{}, ErrNotFound
		}
		return FileStat{}, err
	}
	return FileStat{
		Size:    info.Size(),
		ModTime: NormalizeModTime(info.ModTime()),
	}, nil
}

// NormalizeModTime truncates mod time to second precision for deterministic comparisons.
func NormalizeModTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
