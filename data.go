package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// conversation describes one transcript file in the store.
type conversation struct {
	id          string
	path        string
	projectDir  string
	projectPath string
	modifiedAt  time.Time
	parentUUID  string
}

// transcriptNamePattern matches canonical transcript filenames: a full
// lowercase UUID plus the record-file suffix.
var transcriptNamePattern = regexp.MustCompile(
	`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.jsonl$`,
)

// sessionIDPattern admits full and partial session IDs.
var sessionIDPattern = regexp.MustCompile(`^[0-9a-f-]+$`)

// findConversations lists transcripts in one scope: the working directory's
// project by default, an explicit project path, or every project under the
// store root. Entries that error on access are skipped, not fatal. Results
// sort newest first.
func (m *conversationManager) findConversations(projectFilter string, allProjects bool) ([]conversation, error) {
	if _, err := os.Stat(m.projectsDir); err != nil {
		return nil, nil
	}

	var targetDirs []string
	switch {
	case allProjects:
		entries, err := os.ReadDir(m.projectsDir)
		if err != nil {
			return nil, fmt.Errorf("read projects dir %q: %w", m.projectsDir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				targetDirs = append(targetDirs, entry.Name())
			}
		}
	case projectFilter != "":
		projectDir := m.encodeProjectPath(projectFilter)
		if _, err := os.Stat(filepath.Join(m.projectsDir, projectDir)); err == nil {
			targetDirs = append(targetDirs, projectDir)
		}
	default:
		projectDir, err := m.currentProjectDir()
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(filepath.Join(m.projectsDir, projectDir)); err == nil {
			targetDirs = append(targetDirs, projectDir)
		}
	}

	var conversations []conversation
	for _, projectDir := range targetDirs {
		dirPath := filepath.Join(m.projectsDir, projectDir)
		entries, err := os.ReadDir(dirPath)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !transcriptNamePattern.MatchString(entry.Name()) {
				continue
			}
			path := filepath.Join(dirPath, entry.Name())

			projectPath, ok := scanProjectPath(path)
			if !ok {
				// Directory-name reconstruction may be wrong for paths
				// containing hyphens.
				projectPath = m.decodeProjectDir(projectDir)
			}

			modifiedAt := time.Now()
			if info, err := entry.Info(); err == nil {
				modifiedAt = info.ModTime()
			}

			parentUUID, _ := firstParentUUID(path)

			conversations = append(conversations, conversation{
				id:          strings.TrimSuffix(entry.Name(), ".jsonl"),
				path:        path,
				projectDir:  projectDir,
				projectPath: projectPath,
				modifiedAt:  modifiedAt,
				parentUUID:  parentUUID,
			})
		}
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].modifiedAt.After(conversations[j].modifiedAt)
	})
	return conversations, nil
}

// findConversation resolves a full or partial session ID against the whole
// store regardless of listing scope. An exact ID match wins; otherwise a
// unique prefix resolves, zero prefix matches is not found, and several is
// ambiguous. Matching is case-insensitive.
func (m *conversationManager) findConversation(sessionID string) (conversation, error) {
	lowered := strings.ToLower(sessionID)
	if !sessionIDPattern.MatchString(lowered) {
		return conversation{}, &invalidSessionIDError{id: sessionID}
	}

	all, err := m.findConversations("", true)
	if err != nil {
		return conversation{}, err
	}

	for _, conv := range all {
		if conv.id == lowered {
			return conv, nil
		}
	}

	var matches []conversation
	for _, conv := range all {
		if strings.HasPrefix(conv.id, lowered) {
			matches = append(matches, conv)
		}
	}

	switch len(matches) {
	case 0:
		return conversation{}, &conversationNotFoundError{id: sessionID}
	case 1:
		return matches[0], nil
	default:
		return conversation{}, &ambiguousSessionIDError{id: sessionID, matches: matches}
	}
}

// buildConversationTree partitions conversations into roots and a parent to
// children multimap. A conversation whose parent lies outside the input set
// lands in the map but under a key no input conversation owns; callers flag
// those orphans by set difference since orphan-ness is scope-relative.
func buildConversationTree(conversations []conversation) ([]conversation, map[string][]conversation) {
	children := make(map[string][]conversation)
	var roots []conversation

	for _, conv := range conversations {
		if conv.parentUUID != "" {
			children[conv.parentUUID] = append(children[conv.parentUUID], conv)
		} else {
			roots = append(roots, conv)
		}
	}
	return roots, children
}

// conversationAncestry returns the lineage chain for a conversation, root
// ancestor first. The walk keeps a seen set so cyclic parent links terminate,
// and a parent that no longer exists simply ends the chain.
func (m *conversationManager) conversationAncestry(sessionID string) ([]conversation, error) {
	conv, err := m.findConversation(sessionID)
	if err != nil {
		return nil, err
	}

	ancestry := []conversation{conv}
	seen := map[string]bool{conv.id: true}

	current := conv
	for current.parentUUID != "" && !seen[current.parentUUID] {
		seen[current.parentUUID] = true
		parent, err := m.findConversation(current.parentUUID)
		if err != nil {
			var notFound *conversationNotFoundError
			if errors.As(err, &notFound) {
				break
			}
			return nil, err
		}
		ancestry = append([]conversation{parent}, ancestry...)
		current = parent
	}
	return ancestry, nil
}

// orphanConversations returns the conversations whose parent id is set but
// absent from the input set.
func orphanConversations(conversations []conversation) []conversation {
	ids := make(map[string]bool, len(conversations))
	for _, conv := range conversations {
		ids[conv.id] = true
	}

	var orphans []conversation
	for _, conv := range conversations {
		if conv.parentUUID != "" && !ids[conv.parentUUID] {
			orphans = append(orphans, conv)
		}
	}
	return orphans
}

// displayTitle returns the best short label for a conversation: its summary
// record when present, else the first real user message.
func displayTitle(meta conversationMetadata) string {
	if meta.summary != "" {
		return meta.summary
	}
	return meta.preview
}

func formatTimeForList(ts time.Time) string {
	return ts.Local().Format("2006-01-02 15:04")
}
