package sync

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/openmined/studiosync/internal/client/localfs"
)

// MarkerType is a dot-suffix inserted before the extension of a file.
type MarkerType string

const (
	// Deleted marks a local file whose remote counterpart was deleted while it
	// still carried local edits.
	Deleted MarkerType = ".deleted"
)

const (
	timeFormat       = "20060102150405"
	timestampPattern = `\d{14}`
)

var allMarkers = []MarkerType{Deleted}

var markerRegexes = make(map[MarkerType]*regexp.Regexp)

func init() {
	for _, marker := range allMarkers {
		// marker, then an optional rotation timestamp
		pattern := fmt.Sprintf(`%s(\.%s)?`, regexp.QuoteMeta(string(marker)), timestampPattern)
		markerRegexes[marker] = regexp.MustCompile(pattern)
	}
}

// SetMarker renames path to its marked name. An existing marked file is
// rotated away first so earlier kept copies are never overwritten.
func SetMarker(fs *localfs.Adapter, path string, mtype MarkerType) (string, error) {
	if !fs.IsFile(path) {
		return "", fmt.Errorf("cannot mark file: source file does not exist: %s", path)
	}

	markedPath := asMarkedPath(path, mtype)
	if fs.Exists(markedPath) {
		rotatedPath := asRotatedPath(markedPath, time.Now())
		if err := fs.Rename(markedPath, rotatedPath); err != nil {
			return "", fmt.Errorf("rotate marked file %s to %s: %w", markedPath, rotatedPath, err)
		}
		slog.Debug("rotated marked file", "from", markedPath, "to", rotatedPath)
	}

	if err := fs.Rename(path, markedPath); err != nil {
		return "", fmt.Errorf("mark file %s as %s: %w", path, markedPath, err)
	}
	return markedPath, nil
}

// IsMarkedPath reports whether the file name carries a marker.
func IsMarkedPath(path string) bool {
	name := filepath.Base(path)
	for _, marker := range allMarkers {
		if markerRegexes[marker].MatchString(name) {
			return true
		}
	}
	return false
}

// e.g. "lib.py" -> "lib.deleted.py"
func asMarkedPath(path string, marker MarkerType) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return base + string(marker) + ext
}

// e.g. "lib.deleted.py" -> "lib.deleted.20250712234500.py"
func asRotatedPath(path string, t time.Time) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s.%s%s", base, t.Format(timeFormat), ext)
}
