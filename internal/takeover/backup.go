package takeover

import (
	"fmt"
	"os"
	"time"

	"github.com/mantra-hq/mantra/internal/fsutil"
)

// backupPathFor returns the backup file path for original, appending a UTC
// timestamp if a file already exists at the plain `<orig>.mantra-backup`
// name (such as one left by an earlier backup of the same file).
func backupPathFor(original string) string {
	plain := original + ".mantra-backup"
	if _, err := os.Stat(plain); os.IsNotExist(err) {
		return plain
	}
	return fmt.Sprintf("%s.%s", plain, time.Now().UTC().Format("20060102T150405Z"))
}

// writeBackup copies original's current bytes to a backup path and returns
// the path and SHA-256 hash of those bytes — the hash the restore path
// later re-verifies against before copying the backup back over the
// (possibly since-modified) original.
func writeBackup(originalPath string, content []byte) (backupPath, hash string, err error) {
	backupPath = backupPathFor(originalPath)
	if err := fsutil.AtomicReplace(backupPath, content, 0o600); err != nil {
		return "", "", fmt.Errorf("write backup %s: %w", backupPath, err)
	}
	hash = fsutil.HashBytes(content)
	return backupPath, hash, nil
}
