package sync

import (
	"bufio"
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/openmined/studiosync/internal/client/localfs"
	"github.com/openmined/studiosync/internal/client/metadata"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is an optional per-root file with extra gitignore rules.
const IgnoreFileName = ".studiosyncignore"

var defaultIgnoreLines = []string{
	// studiosync
	metadata.DirName + "/",
	IgnoreFileName,
	"*" + string(Deleted),
	"*" + string(Deleted) + ".*",
	"*" + localfs.TempFilePattern + "*",
	// python
	".ipynb_checkpoints/",
	"__pycache__/",
	"*.py[co]",
	// jvm
	"*.class",
	// IDE/Editor-specific
	".vscode",
	".idea",
	// General excludes
	".git",
	"*.swp",
	"*~",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
}

var defaultIgnore = gitignore.CompileIgnoreLines(defaultIgnoreLines...)

// SyncIgnoreList filters generated and sentinel files out of tree scans.
// Rules are compiled once per tree root.
type SyncIgnoreList struct {
	fs    *localfs.Adapter
	rules map[string]*gitignore.GitIgnore
	mu    sync.Mutex
}

func NewSyncIgnoreList(fs *localfs.Adapter) *SyncIgnoreList {
	return &SyncIgnoreList{
		fs:    fs,
		rules: make(map[string]*gitignore.GitIgnore),
	}
}

// ShouldIgnore reports whether path, below root, is excluded.
func (s *SyncIgnoreList) ShouldIgnore(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return IsIgnoredPath(path)
	}
	return s.load(root).MatchesPath(filepath.ToSlash(rel))
}

// Reset drops compiled rules so edited ignore files are picked up.
func (s *SyncIgnoreList) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = make(map[string]*gitignore.GitIgnore)
}

func (s *SyncIgnoreList) load(root string) *gitignore.GitIgnore {
	root = filepath.Clean(root)

	s.mu.Lock()
	defer s.mu.Unlock()

	if ign, ok := s.rules[root]; ok {
		return ign
	}

	lines := defaultIgnoreLines
	ignorePath := filepath.Join(root, IgnoreFileName)
	if s.fs.IsFile(ignorePath) {
		data, err := s.fs.Read(ignorePath)
		if err != nil {
			slog.Warn("Failed to read ignore file", "path", ignorePath, "error", err)
		} else {
			extra := parseIgnoreLines(data)
			lines = append(append([]string{}, defaultIgnoreLines...), extra...)
			slog.Debug("Loaded ignore file", "path", ignorePath, "rules", len(extra))
		}
	}

	ign := gitignore.CompileIgnoreLines(lines...)
	s.rules[root] = ign
	return ign
}

func parseIgnoreLines(data []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	return lines
}

// IsIgnoredPath applies only the built-in rules. Watchers use it to drop
// events before they reach the scheduler.
func IsIgnoredPath(path string) bool {
	slashed := filepath.ToSlash(path)
	if strings.Contains(slashed, "/"+metadata.DirName+"/") || strings.HasSuffix(slashed, "/"+metadata.DirName) {
		return true
	}
	return IsMarkedPath(path) || defaultIgnore.MatchesPath(filepath.Base(path))
}
