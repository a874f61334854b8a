package main

import (
	"bytes"
	"encoding/json"
	"os"
	"sort"
	"strings"
)

var branchKeys = map[string]bool{"gitBranch": true}

var projectDirKeys = map[string]bool{
	"projectDir":       true,
	"projectDirectory": true,
}

var projectPathKeys = map[string]bool{
	"workspaceRoot": true,
	"workspacePath": true,
	"projectPath":   true,
	"projectRoot":   true,
	"cwd":           true,
	"repoPath":      true,
}

// candidateSet accumulates old-value strings in first-seen order so
// substitution attempts run deterministically, nominal seeds first.
type candidateSet struct {
	values []string
	seen   map[string]bool
}

func newCandidateSet(seed string) *candidateSet {
	set := &candidateSet{seen: make(map[string]bool)}
	set.add(seed)
	return set
}

func (s *candidateSet) add(value string) {
	if value == "" || s.seen[value] {
		return
	}
	s.seen[value] = true
	s.values = append(s.values, value)
}

func (s *candidateSet) contains(value string) bool {
	return s.seen[value]
}

// metadataRewrite holds the target identity and the candidate sets collected
// from the source transcript's own records.
type metadataRewrite struct {
	targetPath     string
	targetDir      string
	gitBranch      string
	pathCandidates *candidateSet
	dirCandidates  *candidateSet
}

// rewriteProjectMetadata patches every embedded reference to the source
// project inside a duplicated transcript so it is self-consistent in its new
// project: recognized path and directory-token fields, the git branch field,
// and untyped values equal to a collected candidate. Blank and unparseable
// lines are carried through verbatim. The already-copied file is never rolled
// back on failure.
func rewriteProjectMetadata(path, sourceProjectPath, targetProjectPath, sourceProjectDir, targetProjectDir, gitBranch string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return &branchError{msg: "Failed to read conversation for metadata rewrite", err: err}
	}

	lines := strings.Split(string(content), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	records := make([]any, len(lines))
	parsed := make([]bool, len(lines))
	for i, line := range lines {
		records[i], parsed[i] = parseRecordLine(line)
	}

	rewrite := &metadataRewrite{
		targetPath:     targetProjectPath,
		targetDir:      targetProjectDir,
		gitBranch:      gitBranch,
		pathCandidates: newCandidateSet(sourceProjectPath),
		dirCandidates:  newCandidateSet(sourceProjectDir),
	}
	for i, record := range records {
		if parsed[i] {
			collectMetadataCandidates(record, "", rewrite.pathCandidates, rewrite.dirCandidates)
		}
	}

	var out strings.Builder
	for i, line := range lines {
		if !parsed[i] {
			out.WriteString(line)
			out.WriteByte('\n')
			continue
		}
		rewritten, err := marshalRecordLine(rewrite.rewriteNode(records[i], ""))
		if err != nil {
			return &branchError{msg: "Failed to serialize rewritten record", err: err}
		}
		out.WriteString(rewritten)
		out.WriteByte('\n')
	}

	if err := os.WriteFile(path, []byte(out.String()), 0o644); err != nil {
		return &branchError{msg: "Failed to write rewritten conversation", err: err}
	}
	return nil
}

// parseRecordLine parses one transcript line as a single JSON value,
// preserving numeric literals. Blank and malformed lines report ok=false so
// the caller keeps them untouched.
func parseRecordLine(line string) (any, bool) {
	if strings.TrimSpace(line) == "" {
		return nil, false
	}
	record, err := decodeRecordLine(line)
	if err != nil {
		return nil, false
	}
	return record, true
}

// marshalRecordLine serializes a record without HTML escaping so message text
// survives byte-for-byte.
func marshalRecordLine(record any) (string, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(record); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// collectMetadataCandidates walks a record accumulating every string stored
// under a recognized project-path or directory-token key. Object fields
// thread their key down one level; array items inherit the parent key.
// Object keys walk in sorted order so candidate order is stable.
func collectMetadataCandidates(value any, key string, paths, dirs *candidateSet) {
	switch value := value.(type) {
	case map[string]any:
		fields := make([]string, 0, len(value))
		for field := range value {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			collectMetadataCandidates(value[field], field, paths, dirs)
		}
	case []any:
		for _, item := range value {
			collectMetadataCandidates(item, key, paths, dirs)
		}
	case string:
		if projectPathKeys[key] {
			paths.add(value)
		}
		if projectDirKeys[key] {
			dirs.add(value)
		}
	}
}

func (r *metadataRewrite) rewriteNode(value any, key string) any {
	switch value := value.(type) {
	case map[string]any:
		rewritten := make(map[string]any, len(value))
		for field, fieldValue := range value {
			rewritten[field] = r.rewriteNode(fieldValue, field)
		}
		return rewritten
	case []any:
		rewritten := make([]any, len(value))
		for i, item := range value {
			rewritten[i] = r.rewriteNode(item, key)
		}
		return rewritten
	case string:
		return r.rewriteString(value, key)
	default:
		return value
	}
}

func (r *metadataRewrite) rewriteString(value, key string) string {
	if r.gitBranch != "" && branchKeys[key] {
		return r.gitBranch
	}

	if projectDirKeys[key] {
		for _, candidate := range r.dirCandidates.values {
			if swapped := swapMetadataValue(value, candidate, r.targetDir); swapped != value {
				return swapped
			}
		}
		return value
	}

	if projectPathKeys[key] {
		for _, candidate := range r.pathCandidates.values {
			if swapped := swapMetadataValue(value, candidate, r.targetPath); swapped != value {
				return swapped
			}
		}
		return value
	}

	// Untyped fields only rewrite on a whole-value match. A coincidental
	// equality with a candidate still rewrites; that risk is inherent to
	// schema-agnostic matching.
	if r.dirCandidates.contains(value) {
		return r.targetDir
	}
	if r.pathCandidates.contains(value) {
		return r.targetPath
	}
	return value
}

// swapMetadataValue substitutes old for new inside value: an exact match is
// replaced wholesale, an embedded occurrence by substring replacement.
func swapMetadataValue(value, old, new string) string {
	if old == "" {
		return value
	}
	if value == old {
		return new
	}
	if strings.Contains(value, old) {
		return strings.ReplaceAll(value, old, new)
	}
	return value
}
