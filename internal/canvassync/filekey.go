package canvassync

import (
	"fmt"
	"net/url"
	"strings"
)

const fileKeyMarker = "/f/"

// FileKeyFromURL extracts the upload key from a public file URL: everything
// after the first "/f/" path segment.
func FileKeyFromURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadFileURL, err)
	}

	idx := strings.Index(u.Path, fileKeyMarker)
	if idx < 0 {
		return "", ErrBadFileURL
	}
	key := strings.Trim(u.Path[idx+len(fileKeyMarker):], "/")
	if key == "" {
		return "", ErrBadFileURL
	}
	return key, nil
}
