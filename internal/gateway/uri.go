package gateway

import (
	"net/url"
	"runtime"
	"strings"
)

// uriToPath converts a file:// URI (as sent in initialize's rootUri or
// workspaceFolders) into a plain filesystem path, stripping the leading
// slash Windows drive-letter paths pick up from the URI authority-less
// form (file:///C:/foo -> /C:/foo -> C:/foo) and URL-decoding the rest.
func uriToPath(uri string) string {
	if uri == "" {
		return ""
	}
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}
	path := strings.TrimPrefix(uri, "file://")
	if decoded, err := url.PathUnescape(path); err == nil {
		path = decoded
	}
	if runtime.GOOS == "windows" || isWindowsDriveLetterPath(path) {
		path = strings.TrimPrefix(path, "/")
	}
	return path
}

// isWindowsDriveLetterPath detects "/C:/..." shaped paths regardless of
// the host OS, since a gateway running on Linux can still receive a
// workspace path from a Windows-side editor.
func isWindowsDriveLetterPath(path string) bool {
	if len(path) < 3 || path[0] != '/' {
		return false
	}
	drive := path[1]
	return (drive >= 'a' && drive <= 'z' || drive >= 'A' && drive <= 'Z') && path[2] == ':'
}
