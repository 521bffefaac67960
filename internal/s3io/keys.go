package s3io

import (
	"fmt"
	"path"
	"strings"
)

// Accepted image extensions; anything else is dropped before OCR.
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// IsImageKey reports whether the object key has an accepted image extension.
func IsImageKey(key string) bool {
	return imageExts[strings.ToLower(path.Ext(key))]
}

// Owner extracts the owning username from an object key. Keys follow the
// "{owner}/{filename}" convention; anything else is invalid input.
func Owner(key string) (string, error) {
	owner, rest, found := strings.Cut(key, "/")
	if !found || owner == "" || rest == "" {
		return "", fmt.Errorf("key %q does not match owner/filename", key)
	}
	return owner, nil
}
