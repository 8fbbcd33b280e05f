package httpapi

import (
	"fmt"
	"strings"
)

// profileFileName names the downloaded profile after the user, falling back
// to "surge" for names that are unsafe in a header or on disk.
func profileFileName(username string) string {
	base := strings.TrimSpace(username)
	if base == "" || len(base) > 200 ||
		strings.ContainsAny(base, "\r\n\x00/\\") ||
		base == "." || base == ".." {
		base = "surge"
	}
	return base + ".conf"
}

func contentDispositionAttachment(filename string) string {
	// RFC 6266 + RFC 5987.
	escaped := strings.ReplaceAll(filename, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", escaped, pctEncode(filename))
}
