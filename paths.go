package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// appPaths stores resolved locations for the transcript store and the tool's
// own data directory.
type appPaths struct {
	projectsDir string
	dataDir     string
	indexDBPath string
}

// resolveAppPaths reads the environment and returns the store root and data
// directory. CLAUDE_PROJECTS_DIR and BUSHWACK_DATA_DIR override the defaults.
func resolveAppPaths() (appPaths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return appPaths{}, fmt.Errorf("resolve home dir: %w", err)
	}

	projectsDir := os.Getenv("CLAUDE_PROJECTS_DIR")
	if projectsDir == "" {
		projectsDir = filepath.Join(home, ".claude", "projects")
	}
	dataDir := os.Getenv("BUSHWACK_DATA_DIR")
	if dataDir == "" {
		dataDir = filepath.Join(home, ".claude-bushwack")
	}

	return appPaths{
		projectsDir: projectsDir,
		dataDir:     dataDir,
		indexDBPath: filepath.Join(dataDir, "index.db"),
	}, nil
}

// conversationManager locates, resolves, and duplicates conversation
// transcripts grouped under one projects directory.
type conversationManager struct {
	projectsDir string
	// Remembers the original path encoded for each directory token so
	// hyphenated segments decode intact later in the session. Not safe for
	// concurrent use; the tool is single-threaded.
	pathCache map[string]string
}

func newConversationManager(projectsDir string) *conversationManager {
	return &conversationManager{
		projectsDir: projectsDir,
		pathCache:   make(map[string]string),
	}
}

// encodeProjectPath converts a filesystem path to the flat directory name
// used to group its transcripts. Separators become dashes; a dash before a
// dot doubles so hidden-directory segments survive. The mapping is lossy: a
// literal hyphen inside a segment is indistinguishable from a separator.
func (m *conversationManager) encodeProjectPath(path string) string {
	normalized := filepath.Clean(path)
	encoded := strings.ReplaceAll(normalized, "/", "-")
	encoded = strings.ReplaceAll(encoded, "-.", "--")
	m.pathCache[encoded] = normalized
	return encoded
}

// decodeProjectDir recovers the project path behind a directory token.
// Resolution order: the in-process cache, then an explicit path recorded in
// the directory's own transcripts, then the lossy inverse transform. The
// fallback result is never cached so a later metadata hit can override it.
func (m *conversationManager) decodeProjectDir(projectDir string) string {
	if cached, ok := m.pathCache[projectDir]; ok {
		return cached
	}

	dirPath := filepath.Join(m.projectsDir, projectDir)
	if info, err := os.Stat(dirPath); err == nil && info.IsDir() {
		if projectPath, ok := projectPathFromDir(dirPath); ok {
			m.pathCache[projectDir] = projectPath
			return projectPath
		}
	}

	decoded := strings.ReplaceAll(projectDir, "--", "-.")
	return strings.ReplaceAll(decoded, "-", "/")
}

// decodeBrowsePath maps a full directory path under the store root to its
// decoded project path. The store root itself means "no project".
func (m *conversationManager) decodeBrowsePath(dir string) (string, bool) {
	if filepath.Clean(dir) == filepath.Clean(m.projectsDir) {
		return "", false
	}
	return m.decodeProjectDir(filepath.Base(dir)), true
}

// currentProjectDir encodes the working directory as a project token.
func (m *conversationManager) currentProjectDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return m.encodeProjectPath(cwd), nil
}
