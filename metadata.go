package main

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// projectPathFields are the record keys that may carry a transcript's
// originating project path, in priority order.
var projectPathFields = []string{
	"cwd",
	"projectPath",
	"workspaceRoot",
	"workspacePath",
	"projectRoot",
	"workingDirectory",
}

// metadataScanLineLimit bounds the per-file project path scan. Path metadata
// appears within the first few records of every known transcript shape.
const metadataScanLineLimit = 50

// conversationMetadata is the display metadata extracted from one transcript.
type conversationMetadata struct {
	preview      string
	summary      string
	createdAt    time.Time
	messageCount int
	gitBranch    string
}

// scanProjectPath reads at most metadataScanLineLimit lines of a transcript
// looking for an explicit project path. Lines without a candidate key are
// skipped before JSON parsing; unreadable files report no path.
func scanProjectPath(path string) (string, bool) {
	file, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)

	lines := 0
	for lines < metadataScanLineLimit && scanner.Scan() {
		lines++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !containsProjectPathField(line) {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			continue
		}
		if projectPath, ok := projectPathFromRecord(record); ok {
			return projectPath, true
		}
	}
	return "", false
}

func containsProjectPathField(line string) bool {
	for _, field := range projectPathFields {
		if strings.Contains(line, `"`+field+`"`) {
			return true
		}
	}
	return false
}

// projectPathFromRecord checks the recognized fields at the top level, then
// inside a nested metadata object.
func projectPathFromRecord(record map[string]any) (string, bool) {
	if path, ok := projectPathFromFields(record); ok {
		return path, true
	}
	if metadata, ok := record["metadata"].(map[string]any); ok {
		return projectPathFromFields(metadata)
	}
	return "", false
}

func projectPathFromFields(record map[string]any) (string, bool) {
	for _, field := range projectPathFields {
		value, ok := record[field].(string)
		if !ok {
			continue
		}
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed, true
		}
	}
	return "", false
}

// projectPathFromDir scans the transcripts inside a project directory for an
// explicit project path, returning the first one found.
func projectPathFromDir(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		if projectPath, ok := scanProjectPath(filepath.Join(dir, entry.Name())); ok {
			return projectPath, true
		}
	}
	return "", false
}

// firstParentUUID returns the parentUuid recorded on the first line of a
// transcript, if any.
func firstParentUUID(path string) (string, bool) {
	file, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)

	if !scanner.Scan() {
		return "", false
	}
	line := strings.TrimSpace(scanner.Text())
	if line == "" {
		return "", false
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		return "", false
	}
	parent, ok := record["parentUuid"].(string)
	if !ok || parent == "" {
		return "", false
	}
	return parent, true
}

// extractConversationMetadata walks the whole transcript collecting display
// metadata: a leading summary record, the first real user message as the
// preview, the first timestamp, the first git branch, and the message count.
// Unreadable or fully malformed files yield the zero value.
func extractConversationMetadata(path string) conversationMetadata {
	file, err := os.Open(path)
	if err != nil {
		return conversationMetadata{}
	}
	defer file.Close()

	var meta conversationMetadata
	scanner := bufio.NewScanner(file)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)

	lineNumber := -1
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			continue
		}

		if lineNumber == 0 && record["type"] == "summary" {
			if summary, ok := record["summary"].(string); ok {
				meta.summary = summary
			}
			continue
		}

		if meta.createdAt.IsZero() {
			if value, ok := record["timestamp"].(string); ok {
				if ts, ok := parseRecordTimestamp(value); ok {
					meta.createdAt = ts
				}
			}
		}

		if meta.gitBranch == "" {
			if value, ok := record["gitBranch"].(string); ok {
				if branch := strings.TrimSpace(value); branch != "" {
					meta.gitBranch = branch
				}
			}
		}

		message, hasMessage := record["message"]
		if messageObj, ok := message.(map[string]any); ok {
			meta.messageCount++
			if meta.preview == "" && messageObj["role"] == "user" && record["isMeta"] != true {
				if text := messageText(messageObj); text != "" && !isSessionHook(text) {
					meta.preview = text
				}
			}
			continue
		}

		if record["role"] == "user" && meta.preview == "" {
			if text := messageText(record); text != "" && !isSessionHook(text) {
				meta.preview = text
			}
		}

		// Some transcripts carry a message key without the nested object
		// form; those still count as messages.
		if hasMessage {
			meta.messageCount++
		}
	}
	if err := scanner.Err(); err != nil {
		return conversationMetadata{}
	}
	return meta
}

func parseRecordTimestamp(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
		return ts, true
	}
	// Bare datetime without timezone indicator
	if ts, err := time.Parse("2006-01-02T15:04:05", trimmed); err == nil {
		return ts, true
	}
	return time.Time{}, false
}

// messageText flattens the textual content of a message record, tolerating
// the content shapes found across transcript schemas: a plain string, a list
// of strings or text blocks, a text field, or a body field.
func messageText(message map[string]any) string {
	var segments []string

	switch content := message["content"].(type) {
	case []any:
		for _, item := range content {
			switch item := item.(type) {
			case string:
				segments = append(segments, item)
			case map[string]any:
				if item["type"] == "text" {
					if text, ok := item["text"].(string); ok {
						segments = append(segments, text)
						continue
					}
				}
				text, _ := item["text"].(string)
				if text == "" {
					text, _ = item["content"].(string)
				}
				if text != "" {
					segments = append(segments, text)
				}
			}
		}
		if len(segments) > 0 {
			return strings.Join(segments, " ")
		}
	case string:
		return content
	}

	switch text := message["text"].(type) {
	case string:
		return text
	case map[string]any:
		if inner, ok := text["text"].(string); ok {
			return inner
		}
	case []any:
		for _, item := range text {
			switch item := item.(type) {
			case string:
				segments = append(segments, item)
			case map[string]any:
				value, _ := item["text"].(string)
				if value == "" {
					value, _ = item["content"].(string)
				}
				if value != "" {
					segments = append(segments, value)
				}
			}
		}
		if len(segments) > 0 {
			return strings.Join(segments, " ")
		}
	}

	if body, ok := message["body"].(string); ok {
		return body
	}
	return ""
}

// isSessionHook reports whether a user message is synthetic session-start
// content rather than a real user turn.
func isSessionHook(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "<session-start-hook>")
}
