package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

func main() {
	// Environment overrides may live in a project .env file.
	_ = godotenv.Load()

	if len(os.Args) > 1 && os.Args[1] == "list" {
		if err := runListCommand(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if len(os.Args) > 1 && os.Args[1] == "branch" {
		if err := runBranchCommand(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if len(os.Args) > 1 && os.Args[1] == "copy" {
		if err := runCopyCommand(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if len(os.Args) > 1 && os.Args[1] == "tree" {
		if err := runTreeCommand(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if len(os.Args) > 1 && os.Args[1] == "index" {
		if err := runIndexCommand(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if len(os.Args) > 1 && os.Args[1] == "search" {
		if err := runSearchCommand(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if len(os.Args) > 1 && (os.Args[1] == "help" || os.Args[1] == "--help" || os.Args[1] == "-h") {
		fmt.Println(mainUsageText())
		return
	}
	if len(os.Args) > 1 && os.Args[1] != "tui" {
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n%s\n", os.Args[1], mainUsageText())
		os.Exit(1)
	}

	if err := runTuiCommand(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func mainUsageText() string {
	return strings.TrimSpace(`claude-bushwack - Branch your Claude Code conversations.

Usage:
  claude-bushwack [command]

Running without a command opens the interactive conversation browser.

Commands:
  list     list conversations (current project by default)
  branch   duplicate a conversation, linked to its source
  copy     duplicate a conversation without the parent link
  tree     show a conversation's ancestry chain
  index    build or refresh the local search index
  search   full-text search over indexed conversations
  tui      open the interactive conversation browser
  help     show this help

Environment:
  CLAUDE_PROJECTS_DIR   transcript store root (default ~/.claude/projects)
  BUSHWACK_DATA_DIR     tool data directory (default ~/.claude-bushwack)
`)
}

type listOptions struct {
	allProjects bool
	project     string
	tree        bool
}

func runListCommand(args []string) error {
	opts, err := parseListArgs(args)
	if err != nil {
		return err
	}

	paths, err := resolveAppPaths()
	if err != nil {
		return err
	}
	manager := newConversationManager(paths.projectsDir)

	var conversations []conversation
	var scope string
	switch {
	case opts.allProjects:
		conversations, err = manager.findConversations("", true)
		scope = "all projects"
	case opts.project != "":
		conversations, err = manager.findConversations(opts.project, false)
		scope = "project: " + opts.project
	default:
		conversations, err = manager.findConversations("", false)
		scope = currentProjectScope(manager)
	}
	if err != nil {
		return err
	}

	if len(conversations) == 0 {
		fmt.Printf("No conversations found for %s.\n", scope)
		return nil
	}
	fmt.Printf("Found %d conversation(s) for %s\n\n", len(conversations), scope)

	if opts.tree {
		printConversationTree(conversations)
		return nil
	}
	for _, conv := range conversations {
		fmt.Println(conversationListLine(conv))
	}
	return nil
}

// currentProjectScope labels the default list scope. The working directory
// may have no transcript directory yet.
func currentProjectScope(manager *conversationManager) string {
	dir, err := manager.currentProjectDir()
	if err != nil {
		return "current project (not found)"
	}
	if info, statErr := os.Stat(filepath.Join(manager.projectsDir, dir)); statErr != nil || !info.IsDir() {
		return "current project (not found)"
	}
	return "current project: " + manager.decodeProjectDir(dir)
}

func conversationListLine(conv conversation) string {
	return fmt.Sprintf("%s... - %s - %s", shortSessionID(conv.id), conv.projectDir, formatTimeForList(conv.modifiedAt))
}

// printConversationTree prints parents before children. Conversations whose
// parent is not listed print as top level entries, matching the TUI ordering.
func printConversationTree(conversations []conversation) {
	roots, children := buildConversationTree(conversations)
	roots = append(roots, orphanConversations(conversations)...)

	seen := make(map[string]bool)
	var walk func(conv conversation, depth int)
	walk = func(conv conversation, depth int) {
		if seen[conv.id] {
			return
		}
		seen[conv.id] = true
		fmt.Printf("%s%s\n", strings.Repeat("  ", depth), conversationListLine(conv))
		for _, child := range children[conv.id] {
			walk(child, depth+1)
		}
	}
	for _, root := range roots {
		walk(root, 0)
	}
	for _, conv := range conversations {
		if !seen[conv.id] {
			walk(conv, 0)
		}
	}
}

func parseListArgs(args []string) (listOptions, error) {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	allProjects := fs.Bool("all", false, "list conversations from all projects")
	project := fs.String("project", "", "list conversations from a specific project path")
	tree := fs.Bool("tree", false, "show parent/child structure")

	normalized, err := normalizeListArgs(args)
	if err != nil {
		return listOptions{}, fmt.Errorf("%w\n%s", err, listUsageText())
	}
	if err := fs.Parse(normalized); err != nil {
		return listOptions{}, fmt.Errorf("%w\n%s", err, listUsageText())
	}
	if fs.NArg() != 0 {
		return listOptions{}, fmt.Errorf("list takes no arguments\n%s", listUsageText())
	}
	if *allProjects && *project != "" {
		return listOptions{}, fmt.Errorf("--all and --project are mutually exclusive\n%s", listUsageText())
	}

	return listOptions{
		allProjects: *allProjects,
		project:     strings.TrimSpace(*project),
		tree:        *tree,
	}, nil
}

func normalizeListArgs(args []string) ([]string, error) {
	flags := make([]string, 0, len(args))
	positionals := make([]string, 0, len(args))

	takesValue := map[string]bool{
		"--project": true,
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if takesValue[arg] {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", arg)
			}
			flags = append(flags, arg, args[i+1])
			i++
			continue
		}
		if strings.HasPrefix(arg, "--") {
			flags = append(flags, arg)
			continue
		}
		positionals = append(positionals, arg)
	}
	return append(flags, positionals...), nil
}

func listUsageText() string {
	return strings.TrimSpace(`Usage:
  claude-bushwack list [--all | --project <path>] [--tree]

Lists conversations for the current project by default.

Flags:
  --all              list conversations from all projects
  --project <path>   list conversations from a specific project path
  --tree             show parent/child structure
`)
}

type branchOptions struct {
	sessionID string
	project   string
}

func runBranchCommand(args []string) error {
	opts, err := parseBranchArgs(args)
	if err != nil {
		return err
	}

	paths, err := resolveAppPaths()
	if err != nil {
		return err
	}
	manager := newConversationManager(paths.projectsDir)

	branched, err := manager.branchConversation(opts.sessionID, opts.project)
	if err != nil {
		printSessionIDHints(err)
		return err
	}

	fmt.Println("Successfully branched conversation!")
	fmt.Printf("  Source: %s\n", opts.sessionID)
	fmt.Printf("  New ID: %s\n", branched.id)
	fmt.Printf("  Project: %s\n", branched.projectPath)
	fmt.Printf("  File: %s\n", branched.path)
	fmt.Printf("\nResume it with: claude --resume %s\n", branched.id)
	return nil
}

// printSessionIDHints prints follow-up guidance for resolver failures before
// the error itself goes to stderr.
func printSessionIDHints(err error) {
	var notFound *conversationNotFoundError
	if errors.As(err, &notFound) {
		fmt.Println("Tip: Use 'claude-bushwack list --all' to see all available conversations")
		return
	}

	var ambiguous *ambiguousSessionIDError
	if errors.As(err, &ambiguous) {
		fmt.Println("Matching conversations:")
		for _, match := range ambiguous.matches {
			fmt.Printf("  %s  %s  %s\n", match.id, match.projectPath, formatTimeForList(match.modifiedAt))
		}
		fmt.Println("Use a longer session ID prefix to uniquely identify the conversation")
	}
}

func parseBranchArgs(args []string) (branchOptions, error) {
	fs := flag.NewFlagSet("branch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	project := fs.String("project", "", "target project path (defaults to the current directory)")

	normalized, err := normalizeBranchArgs(args)
	if err != nil {
		return branchOptions{}, fmt.Errorf("%w\n%s", err, branchUsageText())
	}
	if err := fs.Parse(normalized); err != nil {
		return branchOptions{}, fmt.Errorf("%w\n%s", err, branchUsageText())
	}
	if fs.NArg() != 1 {
		return branchOptions{}, fmt.Errorf("branch requires exactly one session ID\n%s", branchUsageText())
	}

	return branchOptions{
		sessionID: fs.Arg(0),
		project:   strings.TrimSpace(*project),
	}, nil
}

func normalizeBranchArgs(args []string) ([]string, error) {
	flags := make([]string, 0, len(args))
	positionals := make([]string, 0, len(args))

	takesValue := map[string]bool{
		"--project": true,
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if takesValue[arg] {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", arg)
			}
			flags = append(flags, arg, args[i+1])
			i++
			continue
		}
		if strings.HasPrefix(arg, "--") {
			flags = append(flags, arg)
			continue
		}
		positionals = append(positionals, arg)
	}
	return append(flags, positionals...), nil
}

func branchUsageText() string {
	return strings.TrimSpace(`Usage:
  claude-bushwack branch <session-id> [--project <path>]

Duplicates a conversation under a new session ID with its parentUuid set to
the source, so the copy shows up as a branch of the original. The session ID
may be a unique prefix.

Flags:
  --project <path>   target project path (defaults to the current directory)
`)
}

type copyOptions struct {
	sessionID string
	project   string
}

func runCopyCommand(args []string) error {
	opts, err := parseCopyArgs(args)
	if err != nil {
		return err
	}

	paths, err := resolveAppPaths()
	if err != nil {
		return err
	}
	manager := newConversationManager(paths.projectsDir)

	copied, err := manager.copyConversation(opts.sessionID, opts.project)
	if err != nil {
		printSessionIDHints(err)
		return err
	}

	fmt.Println("Successfully copied conversation!")
	fmt.Printf("  Source: %s\n", opts.sessionID)
	fmt.Printf("  New ID: %s\n", copied.id)
	fmt.Printf("  Project: %s\n", copied.projectPath)
	fmt.Printf("  File: %s\n", copied.path)
	fmt.Printf("\nResume it with: claude --resume %s\n", copied.id)
	return nil
}

func parseCopyArgs(args []string) (copyOptions, error) {
	fs := flag.NewFlagSet("copy", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	project := fs.String("project", "", "target project path")

	normalized, err := normalizeBranchArgs(args)
	if err != nil {
		return copyOptions{}, fmt.Errorf("%w\n%s", err, copyUsageText())
	}
	if err := fs.Parse(normalized); err != nil {
		return copyOptions{}, fmt.Errorf("%w\n%s", err, copyUsageText())
	}
	if fs.NArg() != 1 {
		return copyOptions{}, fmt.Errorf("copy requires exactly one session ID\n%s", copyUsageText())
	}
	if strings.TrimSpace(*project) == "" {
		return copyOptions{}, fmt.Errorf("copy requires --project <path>\n%s", copyUsageText())
	}

	return copyOptions{
		sessionID: fs.Arg(0),
		project:   strings.TrimSpace(*project),
	}, nil
}

func copyUsageText() string {
	return strings.TrimSpace(`Usage:
  claude-bushwack copy <session-id> --project <path>

Duplicates a conversation into another project under a new session ID with
no parent link, so the copy starts its own tree. The session ID may be a
unique prefix.

Flags:
  --project <path>   target project path (required)
`)
}

func runTreeCommand(args []string) error {
	sessionID, err := parseTreeArgs(args)
	if err != nil {
		return err
	}

	paths, err := resolveAppPaths()
	if err != nil {
		return err
	}
	manager := newConversationManager(paths.projectsDir)

	ancestry, err := manager.conversationAncestry(sessionID)
	if err != nil {
		printSessionIDHints(err)
		return err
	}

	fmt.Printf("Ancestry for %s (%d generation(s)):\n\n", shortSessionID(ancestry[len(ancestry)-1].id), len(ancestry))
	for idx, conv := range ancestry {
		marker := ""
		if idx == len(ancestry)-1 {
			marker = " (current)"
		}
		fmt.Printf("%s%d. %s - %s - %s%s\n",
			strings.Repeat("  ", idx), idx+1, conv.id, conv.projectPath, formatTimeForList(conv.modifiedAt), marker)
	}
	return nil
}

func parseTreeArgs(args []string) (string, error) {
	fs := flag.NewFlagSet("tree", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	if err := fs.Parse(args); err != nil {
		return "", fmt.Errorf("%w\n%s", err, treeUsageText())
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("tree requires exactly one session ID\n%s", treeUsageText())
	}
	return fs.Arg(0), nil
}

func treeUsageText() string {
	return strings.TrimSpace(`Usage:
  claude-bushwack tree <session-id>

Shows the ancestry chain for a conversation, oldest ancestor first. The
session ID may be a unique prefix.
`)
}
