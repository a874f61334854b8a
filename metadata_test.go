package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeLines(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), sessionIDAlpha+".jsonl")
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	return path
}

func TestScanProjectPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		lines []string
		want  string
		found bool
	}{
		{
			name:  "top level cwd",
			lines: []string{`{"type":"message","cwd":"/work/alpha"}`},
			want:  "/work/alpha",
			found: true,
		},
		{
			name:  "cwd outranks projectPath",
			lines: []string{`{"projectPath":"/other","cwd":"/work/alpha"}`},
			want:  "/work/alpha",
			found: true,
		},
		{
			name:  "nested metadata object",
			lines: []string{`{"type":"message","metadata":{"workspaceRoot":"/work/nested"}}`},
			want:  "/work/nested",
			found: true,
		},
		{
			name: "skips lines without path fields",
			lines: []string{
				`{"type":"summary","summary":"nothing here"}`,
				`{"type":"message","workingDirectory":"/work/late"}`,
			},
			want:  "/work/late",
			found: true,
		},
		{
			name: "malformed line mentioning a field is ignored",
			lines: []string{
				`this is not json but says "cwd" anyway`,
				`{"cwd":"/work/alpha"}`,
			},
			want:  "/work/alpha",
			found: true,
		},
		{
			name:  "blank value does not count",
			lines: []string{`{"cwd":"   "}`},
			found: false,
		},
		{
			name:  "no path fields",
			lines: []string{`{"type":"message"}`},
			found: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeLines(t, tc.lines...)
			got, found := scanProjectPath(path)
			if found != tc.found {
				t.Fatalf("found = %v, want %v", found, tc.found)
			}
			if got != tc.want {
				t.Errorf("path = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestScanProjectPathStopsAtLineLimit(t *testing.T) {
	t.Parallel()

	lines := make([]string, 0, metadataScanLineLimit+1)
	for i := 0; i < metadataScanLineLimit; i++ {
		lines = append(lines, fmt.Sprintf(`{"type":"message","seq":%d}`, i))
	}
	lines = append(lines, `{"cwd":"/work/too-late"}`)

	path := writeLines(t, lines...)
	if _, found := scanProjectPath(path); found {
		t.Fatalf("expected a path past the scan limit to be ignored")
	}
}

func TestFirstParentUUID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		lines []string
		want  string
		found bool
	}{
		{
			name:  "present",
			lines: []string{`{"parentUuid":"` + sessionIDBeta + `","type":"message"}`},
			want:  sessionIDBeta,
			found: true,
		},
		{
			name:  "null",
			lines: []string{`{"parentUuid":null}`},
			found: false,
		},
		{
			name:  "absent key",
			lines: []string{`{"type":"message"}`},
			found: false,
		},
		{
			name:  "empty file",
			lines: nil,
			found: false,
		},
		{
			name: "only first line is consulted",
			lines: []string{
				`{"type":"summary"}`,
				`{"parentUuid":"` + sessionIDBeta + `"}`,
			},
			found: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeLines(t, tc.lines...)
			got, found := firstParentUUID(path)
			if found != tc.found {
				t.Fatalf("found = %v, want %v", found, tc.found)
			}
			if got != tc.want {
				t.Errorf("parent = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtractConversationMetadata(t *testing.T) {
	t.Parallel()

	path := writeLines(t,
		`{"type":"summary","summary":"Fixing the login flow"}`,
		`{"type":"message","timestamp":"2026-03-01T10:00:00Z","gitBranch":"","message":{"role":"assistant","content":"thinking"}}`,
		`{"type":"message","gitBranch":"feature/login","isMeta":true,"message":{"role":"user","content":"meta note"}}`,
		`{"type":"message","message":{"role":"user","content":"<session-start-hook> environment loaded"}}`,
		`{"type":"message","message":{"role":"user","content":[{"type":"text","text":"please fix the login redirect"}]}}`,
	)

	meta := extractConversationMetadata(path)
	if meta.summary != "Fixing the login flow" {
		t.Errorf("summary = %q", meta.summary)
	}
	if meta.preview != "please fix the login redirect" {
		t.Errorf("preview = %q", meta.preview)
	}
	if meta.gitBranch != "feature/login" {
		t.Errorf("gitBranch = %q", meta.gitBranch)
	}
	if meta.messageCount != 4 {
		t.Errorf("messageCount = %d, want 4", meta.messageCount)
	}
	want := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	if !meta.createdAt.Equal(want) {
		t.Errorf("createdAt = %v, want %v", meta.createdAt, want)
	}
}

func TestExtractConversationMetadataSummaryOnlyOnFirstLine(t *testing.T) {
	t.Parallel()

	path := writeLines(t,
		`{"type":"message","message":{"role":"user","content":"hello"}}`,
		`{"type":"summary","summary":"too late"}`,
	)

	meta := extractConversationMetadata(path)
	if meta.summary != "" {
		t.Errorf("summary = %q, want empty", meta.summary)
	}
	if meta.preview != "hello" {
		t.Errorf("preview = %q, want hello", meta.preview)
	}
}

func TestExtractConversationMetadataFlatRecords(t *testing.T) {
	t.Parallel()

	// Older transcripts carry role/content at the top level with no nested
	// message object. Those still feed the preview but only records with a
	// message key count as messages.
	path := writeLines(t,
		`{"role":"user","content":"flat schema question"}`,
		`{"type":"message","message":{"role":"assistant","content":"answer"}}`,
	)

	meta := extractConversationMetadata(path)
	if meta.preview != "flat schema question" {
		t.Errorf("preview = %q", meta.preview)
	}
	if meta.messageCount != 1 {
		t.Errorf("messageCount = %d, want 1", meta.messageCount)
	}
}

func TestExtractConversationMetadataCountsNonObjectMessage(t *testing.T) {
	t.Parallel()

	path := writeLines(t,
		`{"type":"message","message":"bare string payload"}`,
	)

	meta := extractConversationMetadata(path)
	if meta.messageCount != 1 {
		t.Errorf("messageCount = %d, want 1", meta.messageCount)
	}
	if meta.preview != "" {
		t.Errorf("preview = %q, want empty", meta.preview)
	}
}

func TestExtractConversationMetadataMissingFile(t *testing.T) {
	t.Parallel()

	meta := extractConversationMetadata(filepath.Join(t.TempDir(), "absent.jsonl"))
	if meta != (conversationMetadata{}) {
		t.Fatalf("expected zero metadata, got %+v", meta)
	}
}

func TestMessageText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		message map[string]any
		want    string
	}{
		{
			name:    "string content",
			message: map[string]any{"content": "plain text"},
			want:    "plain text",
		},
		{
			name: "text segments",
			message: map[string]any{"content": []any{
				map[string]any{"type": "text", "text": "first"},
				map[string]any{"type": "tool_use", "name": "ignored"},
				map[string]any{"type": "text", "text": "second"},
			}},
			want: "first second",
		},
		{
			name:    "plain string segments",
			message: map[string]any{"content": []any{"first", "second"}},
			want:    "first second",
		},
		{
			name:    "no content",
			message: map[string]any{"role": "user"},
			want:    "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := messageText(tc.message); got != tc.want {
				t.Errorf("messageText = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseRecordTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		want  time.Time
		ok    bool
	}{
		{"rfc3339", "2026-03-01T10:00:00Z", time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC), true},
		{"fractional", "2026-03-01T10:00:00.250Z", time.Date(2026, time.March, 1, 10, 0, 0, 250_000_000, time.UTC), true},
		{"no zone", "2026-03-01T10:00:00", time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC), true},
		{"garbage", "yesterday", time.Time{}, false},
		{"empty", "", time.Time{}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := parseRecordTimestamp(tc.value)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if ok && !got.Equal(tc.want) {
				t.Errorf("time = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsSessionHook(t *testing.T) {
	t.Parallel()

	if !isSessionHook("<session-start-hook> loaded env") {
		t.Errorf("expected hook prefix to match")
	}
	if !isSessionHook("   <session-start-hook>") {
		t.Errorf("expected leading whitespace to be tolerated")
	}
	if isSessionHook("regular message about <session-start-hook>") {
		t.Errorf("expected mid-string mention not to match")
	}
}
