package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// searchResult is one row returned from the search index.
type searchResult struct {
	sessionID   string
	projectPath string
	modifiedAt  string
	summary     string
	preview     string
}

type indexOptions struct {
	rebuild bool
}

type searchOptions struct {
	project string
	limit   int
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	session_id    TEXT PRIMARY KEY,
	project_dir   TEXT NOT NULL,
	project_path  TEXT NOT NULL,
	parent_uuid   TEXT NOT NULL DEFAULT '',
	summary       TEXT NOT NULL DEFAULT '',
	preview       TEXT NOT NULL DEFAULT '',
	git_branch    TEXT NOT NULL DEFAULT '',
	message_count INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL DEFAULT '',
	modified_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_project ON conversations(project_path);
CREATE INDEX IF NOT EXISTS idx_conversations_modified ON conversations(modified_at DESC);

CREATE VIRTUAL TABLE IF NOT EXISTS conversations_fts USING fts5(
	session_id UNINDEXED,
	summary,
	preview,
	project_path
);
`

func runIndexCommand(args []string) error {
	opts, err := parseIndexArgs(args)
	if err != nil {
		return err
	}

	paths, err := resolveAppPaths()
	if err != nil {
		return err
	}

	manager := newConversationManager(paths.projectsDir)
	conversations, err := manager.findConversations("", true)
	if err != nil {
		return err
	}

	db, err := openIndexDB(paths.indexDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if opts.rebuild {
		if err := resetIndexSchema(ctx, db); err != nil {
			return err
		}
	}

	indexed, removed, err := syncConversationIndex(ctx, db, conversations)
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %d conversation(s), removed %d stale row(s).\n", indexed, removed)
	fmt.Printf("Index: %s\n", paths.indexDBPath)
	return nil
}

func runSearchCommand(args []string) error {
	opts, terms, err := parseSearchArgs(args)
	if err != nil {
		return err
	}

	paths, err := resolveAppPaths()
	if err != nil {
		return err
	}
	if _, err := os.Stat(paths.indexDBPath); err != nil {
		return fmt.Errorf("no search index at %s; run 'claude-bushwack index' first", paths.indexDBPath)
	}

	db, err := openIndexDB(paths.indexDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	results, err := searchConversationIndex(ctx, db, strings.Join(terms, " "), opts.project, opts.limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	fmt.Printf("Found %d match(es):\n", len(results))
	for _, result := range results {
		title := result.summary
		if title == "" {
			title = result.preview
		}
		fmt.Printf("  %s  %s  %s\n", shortSessionID(result.sessionID), formatIndexedTime(result.modifiedAt), result.projectPath)
		if title != "" {
			fmt.Printf("            %s\n", truncateString(oneLine(title), 96))
		}
	}
	return nil
}

func parseIndexArgs(args []string) (indexOptions, error) {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	rebuild := fs.Bool("rebuild", false, "drop and recreate the index tables first")

	if err := fs.Parse(args); err != nil {
		return indexOptions{}, fmt.Errorf("%w\n%s", err, indexUsageText())
	}
	if fs.NArg() != 0 {
		return indexOptions{}, fmt.Errorf("index takes no arguments\n%s", indexUsageText())
	}
	return indexOptions{rebuild: *rebuild}, nil
}

func indexUsageText() string {
	return strings.TrimSpace(`Usage:
  claude-bushwack index [--rebuild]

Scans every project under the store root and refreshes the local search
index. Conversations whose transcript files no longer exist are removed.

Flags:
  --rebuild   drop and recreate the index tables first
`)
}

func parseSearchArgs(args []string) (searchOptions, []string, error) {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	project := fs.String("project", "", "only match conversations for this project path")
	limit := fs.Int("limit", 20, "maximum results")

	normalized, err := normalizeSearchArgs(args)
	if err != nil {
		return searchOptions{}, nil, fmt.Errorf("%w\n%s", err, searchUsageText())
	}
	if err := fs.Parse(normalized); err != nil {
		return searchOptions{}, nil, fmt.Errorf("%w\n%s", err, searchUsageText())
	}
	if fs.NArg() == 0 {
		return searchOptions{}, nil, fmt.Errorf("search terms are required\n%s", searchUsageText())
	}
	if *limit <= 0 {
		return searchOptions{}, nil, fmt.Errorf("--limit must be > 0")
	}

	opts := searchOptions{
		project: strings.TrimSpace(*project),
		limit:   *limit,
	}
	return opts, fs.Args(), nil
}

func normalizeSearchArgs(args []string) ([]string, error) {
	flags := make([]string, 0, len(args))
	positionals := make([]string, 0, len(args))

	takesValue := map[string]bool{
		"--project": true,
		"--limit":   true,
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

func searchUsageText() string {
	return strings.TrimSpace(`Usage:
  claude-bushwack search <terms...> [--project <path>] [--limit <n>]

Full-text search over indexed conversation summaries, previews, and project
paths. Run 'claude-bushwack index' first to build the index.

Flags:
  --project <path>   only match conversations for this project path
  --limit <n>        maximum results (default 20)
`)
}

// openIndexDB opens the search index database, creating the data directory
// and schema on first use.
func openIndexDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %q: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index schema: %w", err)
	}
	return db, nil
}

func resetIndexSchema(ctx context.Context, db *sql.DB) error {
	drops := []string{
		"DROP TABLE IF EXISTS conversations_fts",
		"DROP TABLE IF EXISTS conversations",
	}
	for _, stmt := range drops {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("drop index table: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, indexSchema); err != nil {
		return fmt.Errorf("recreate index schema: %w", err)
	}
	return nil
}

// syncConversationIndex upserts one row per conversation and drops rows whose
// transcripts no longer exist. The FTS table is refreshed alongside so search
// always reflects the last scan.
func syncConversationIndex(ctx context.Context, db *sql.DB, conversations []conversation) (int, int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin index transaction: %w", err)
	}
	defer tx.Rollback()

	live := make(map[string]bool, len(conversations))
	indexed := 0
	for _, conv := range conversations {
		live[conv.id] = true
		meta := extractConversationMetadata(conv.path)

		createdAt := ""
		if !meta.createdAt.IsZero() {
			createdAt = meta.createdAt.Format(time.RFC3339)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (session_id, project_dir, project_path, parent_uuid, summary, preview, git_branch, message_count, created_at, modified_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET
				project_dir = excluded.project_dir,
				project_path = excluded.project_path,
				parent_uuid = excluded.parent_uuid,
				summary = excluded.summary,
				preview = excluded.preview,
				git_branch = excluded.git_branch,
				message_count = excluded.message_count,
				created_at = excluded.created_at,
				modified_at = excluded.modified_at
		`, conv.id, conv.projectDir, conv.projectPath, conv.parentUUID, meta.summary, meta.preview, meta.gitBranch, meta.messageCount, createdAt, conv.modifiedAt.Format(time.RFC3339)); err != nil {
			return 0, 0, fmt.Errorf("upsert conversation %s: %w", conv.id, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM conversations_fts WHERE session_id = ?`, conv.id); err != nil {
			return 0, 0, fmt.Errorf("refresh fts row %s: %w", conv.id, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversations_fts (session_id, summary, preview, project_path)
			VALUES (?, ?, ?, ?)
		`, conv.id, meta.summary, meta.preview, conv.projectPath); err != nil {
			return 0, 0, fmt.Errorf("insert fts row %s: %w", conv.id, err)
		}
		indexed++
	}

	rows, err := tx.QueryContext(ctx, `SELECT session_id FROM conversations`)
	if err != nil {
		return 0, 0, fmt.Errorf("list indexed conversations: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("scan indexed conversation: %w", err)
		}
		if !live[id] {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("iterate indexed conversations: %w", err)
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE session_id = ?`, id); err != nil {
			return 0, 0, fmt.Errorf("delete stale conversation %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM conversations_fts WHERE session_id = ?`, id); err != nil {
			return 0, 0, fmt.Errorf("delete stale fts row %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit index transaction: %w", err)
	}
	return indexed, len(stale), nil
}

// searchConversationIndex matches quoted query terms against the FTS table,
// best matches first.
func searchConversationIndex(ctx context.Context, db *sql.DB, query, projectFilter string, limit int) ([]searchResult, error) {
	ftsQuery := sanitizeFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	stmt := `
		SELECT c.session_id, c.project_path, c.modified_at, c.summary, c.preview
		FROM conversations_fts f
		JOIN conversations c ON c.session_id = f.session_id
		WHERE conversations_fts MATCH ?`
	queryArgs := []any{ftsQuery}
	if projectFilter != "" {
		stmt += `
		AND c.project_path = ?`
		queryArgs = append(queryArgs, projectFilter)
	}
	stmt += `
		ORDER BY rank
		LIMIT ?`
	queryArgs = append(queryArgs, limit)

	rows, err := db.QueryContext(ctx, stmt, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	defer rows.Close()

	var results []searchResult
	for rows.Next() {
		var result searchResult
		if err := rows.Scan(&result.sessionID, &result.projectPath, &result.modifiedAt, &result.summary, &result.preview); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}
	return results, nil
}

// sanitizeFTSQuery quotes each term so FTS5 operators and punctuation in
// user input match literally instead of erroring.
func sanitizeFTSQuery(query string) string {
	words := strings.Fields(query)
	for i, word := range words {
		word = strings.Trim(word, `"`)
		words[i] = `"` + word + `"`
	}
	return strings.Join(words, " ")
}

func formatIndexedTime(value string) string {
	if ts, ok := parseRecordTimestamp(value); ok {
		return formatTimeForList(ts)
	}
	return value
}
