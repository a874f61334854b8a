package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseListArgs(t *testing.T) {
	t.Parallel()

	opts, err := parseListArgs(nil)
	if err != nil {
		t.Fatalf("parse empty args: %v", err)
	}
	if opts.allProjects || opts.project != "" || opts.tree {
		t.Errorf("defaults = %+v", opts)
	}

	opts, err = parseListArgs([]string{"--tree", "--project", "/work/alpha"})
	if err != nil {
		t.Fatalf("parse project args: %v", err)
	}
	if !opts.tree || opts.project != "/work/alpha" {
		t.Errorf("opts = %+v", opts)
	}

	if _, err := parseListArgs([]string{"--all", "--project", "/work/alpha"}); err == nil ||
		!strings.Contains(err.Error(), "--all and --project are mutually exclusive") {
		t.Errorf("expected exclusivity error, got %v", err)
	}
	if _, err := parseListArgs([]string{"stray"}); err == nil ||
		!strings.Contains(err.Error(), "list takes no arguments") {
		t.Errorf("expected stray-argument error, got %v", err)
	}
	if _, err := parseListArgs([]string{"--project"}); err == nil ||
		!strings.Contains(err.Error(), "missing value for --project") {
		t.Errorf("expected missing-value error, got %v", err)
	}
}

func TestParseBranchArgs(t *testing.T) {
	t.Parallel()

	opts, err := parseBranchArgs([]string{"abc123"})
	if err != nil {
		t.Fatalf("parse session id: %v", err)
	}
	if opts.sessionID != "abc123" || opts.project != "" {
		t.Errorf("opts = %+v", opts)
	}

	// Flags may follow the session ID.
	opts, err = parseBranchArgs([]string{"abc123", "--project", "/work/beta"})
	if err != nil {
		t.Fatalf("parse trailing flag: %v", err)
	}
	if opts.sessionID != "abc123" || opts.project != "/work/beta" {
		t.Errorf("opts = %+v", opts)
	}

	if _, err := parseBranchArgs(nil); err == nil ||
		!strings.Contains(err.Error(), "branch requires exactly one session ID") {
		t.Errorf("expected missing-id error, got %v", err)
	}
	if _, err := parseBranchArgs([]string{"a", "b"}); err == nil ||
		!strings.Contains(err.Error(), "branch requires exactly one session ID") {
		t.Errorf("expected extra-id error, got %v", err)
	}
}

func TestParseCopyArgs(t *testing.T) {
	t.Parallel()

	opts, err := parseCopyArgs([]string{"abc123", "--project", "/work/beta"})
	if err != nil {
		t.Fatalf("parse copy args: %v", err)
	}
	if opts.sessionID != "abc123" || opts.project != "/work/beta" {
		t.Errorf("opts = %+v", opts)
	}

	if _, err := parseCopyArgs([]string{"abc123"}); err == nil ||
		!strings.Contains(err.Error(), "copy requires --project <path>") {
		t.Errorf("expected missing-project error, got %v", err)
	}
}

func TestParseTreeArgs(t *testing.T) {
	t.Parallel()

	id, err := parseTreeArgs([]string{"abc123"})
	if err != nil {
		t.Fatalf("parse tree args: %v", err)
	}
	if id != "abc123" {
		t.Errorf("session id = %q", id)
	}

	if _, err := parseTreeArgs(nil); err == nil ||
		!strings.Contains(err.Error(), "tree requires exactly one session ID") {
		t.Errorf("expected missing-id error, got %v", err)
	}
}

func TestConversationListLine(t *testing.T) {
	t.Parallel()

	conv := conversation{
		id:         sessionIDAlpha,
		projectDir: "-work-alpha",
		modifiedAt: time.Date(2026, 3, 1, 10, 4, 0, 0, time.Local),
	}
	want := "aaaa1111... - -work-alpha - 2026-03-01 10:04"
	if got := conversationListLine(conv); got != want {
		t.Errorf("list line = %q, want %q", got, want)
	}
}

func TestCurrentProjectScope(t *testing.T) {
	root := t.TempDir()
	chdir(t, t.TempDir())
	manager := newConversationManager(root)

	if got := currentProjectScope(manager); got != "current project (not found)" {
		t.Errorf("scope without transcript dir = %q", got)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	dir := manager.encodeProjectPath(wd)
	if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
		t.Fatalf("create project dir: %v", err)
	}
	if got := currentProjectScope(manager); got != "current project: "+wd {
		t.Errorf("scope = %q, want current project: %s", got, wd)
	}
}

func TestRunListCommand(t *testing.T) {
	projects := t.TempDir()
	t.Setenv("CLAUDE_PROJECTS_DIR", projects)
	t.Setenv("BUSHWACK_DATA_DIR", t.TempDir())

	writeTranscript(t, projects, "-work-alpha", sessionIDAlpha,
		`{"cwd":"/work/alpha","message":{"role":"user","content":"hi"}}`,
	)
	writeTranscript(t, projects, "-work-alpha", sessionIDBeta,
		`{"parentUuid":"`+sessionIDAlpha+`","cwd":"/work/alpha"}`,
	)

	if err := runListCommand([]string{"--all"}); err != nil {
		t.Fatalf("list --all: %v", err)
	}
	if err := runListCommand([]string{"--all", "--tree"}); err != nil {
		t.Fatalf("list --all --tree: %v", err)
	}
	if err := runListCommand([]string{"--project", "/work/alpha"}); err != nil {
		t.Fatalf("list --project: %v", err)
	}
	if err := runListCommand([]string{"--project", "/no/such/project"}); err != nil {
		t.Fatalf("list for unknown project: %v", err)
	}
}

func TestRunBranchCommandCreatesTranscript(t *testing.T) {
	projects := t.TempDir()
	t.Setenv("CLAUDE_PROJECTS_DIR", projects)
	t.Setenv("BUSHWACK_DATA_DIR", t.TempDir())

	writeTranscript(t, projects, "-work-alpha", sessionIDAlpha,
		`{"parentUuid":null,"cwd":"/work/alpha"}`,
	)

	target := t.TempDir()
	if err := runBranchCommand([]string{"aaaa1111", "--project", target}); err != nil {
		t.Fatalf("branch command: %v", err)
	}

	manager := newConversationManager(projects)
	targetDir := filepath.Join(projects, manager.encodeProjectPath(target))
	entries, err := os.ReadDir(targetDir)
	if err != nil {
		t.Fatalf("read target project dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("target transcript count = %d, want 1", len(entries))
	}
	if !transcriptNamePattern.MatchString(entries[0].Name()) {
		t.Errorf("branched file name %q is not a session transcript", entries[0].Name())
	}
}

func TestRunBranchCommandUnknownSession(t *testing.T) {
	projects := t.TempDir()
	t.Setenv("CLAUDE_PROJECTS_DIR", projects)
	t.Setenv("BUSHWACK_DATA_DIR", t.TempDir())

	err := runBranchCommand([]string{"ffffffff"})
	if err == nil || err.Error() != "No conversation found with ID: ffffffff" {
		t.Errorf("expected lookup failure, got %v", err)
	}
}

func TestRunCopyCommandCreatesTranscript(t *testing.T) {
	projects := t.TempDir()
	t.Setenv("CLAUDE_PROJECTS_DIR", projects)
	t.Setenv("BUSHWACK_DATA_DIR", t.TempDir())

	writeTranscript(t, projects, "-work-alpha", sessionIDAlpha,
		`{"parentUuid":"`+sessionIDBeta+`","cwd":"/work/alpha"}`,
	)

	target := t.TempDir()
	if err := runCopyCommand([]string{"aaaa1111", "--project", target}); err != nil {
		t.Fatalf("copy command: %v", err)
	}

	manager := newConversationManager(projects)
	targetDir := filepath.Join(projects, manager.encodeProjectPath(target))
	entries, err := os.ReadDir(targetDir)
	if err != nil {
		t.Fatalf("read target project dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("target transcript count = %d, want 1", len(entries))
	}

	copied := decodeFirstRecord(t, filepath.Join(targetDir, entries[0].Name()))
	if _, exists := copied["parentUuid"]; exists {
		t.Errorf("copied transcript kept its parent link")
	}
}

func TestRunTreeCommand(t *testing.T) {
	projects := t.TempDir()
	t.Setenv("CLAUDE_PROJECTS_DIR", projects)
	t.Setenv("BUSHWACK_DATA_DIR", t.TempDir())

	writeTranscript(t, projects, "-work-alpha", sessionIDAlpha,
		`{"cwd":"/work/alpha"}`,
	)
	writeTranscript(t, projects, "-work-alpha", sessionIDBeta,
		`{"parentUuid":"`+sessionIDAlpha+`","cwd":"/work/alpha"}`,
	)

	if err := runTreeCommand([]string{"aaaa2222"}); err != nil {
		t.Fatalf("tree command: %v", err)
	}

	err := runTreeCommand([]string{"ffffffff"})
	if err == nil || err.Error() != "No conversation found with ID: ffffffff" {
		t.Errorf("expected lookup failure, got %v", err)
	}
}

func TestMainUsageTextListsCommands(t *testing.T) {
	t.Parallel()

	usage := mainUsageText()
	for _, command := range []string{"list", "branch", "copy", "tree", "index", "search", "tui"} {
		if !strings.Contains(usage, command) {
			t.Errorf("usage missing %q", command)
		}
	}
	if !strings.Contains(usage, "CLAUDE_PROJECTS_DIR") || !strings.Contains(usage, "BUSHWACK_DATA_DIR") {
		t.Errorf("usage missing environment overrides")
	}
}
