package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

const (
	branchDisplayWidth    = 32
	statusDisplayDuration = 4 * time.Second
)

type screen int

const (
	screenConversations screen = iota
	screenProjects
)

type pickerAction int

const (
	pickerBranch pickerAction = iota
	pickerCopy
)

// treeRow is one visible line of the conversation tree. Orphaned rows carry a
// parentUuid that resolves to no listed conversation.
type treeRow struct {
	conv     conversation
	depth    int
	orphaned bool
}

type projectEntry struct {
	dir     string
	path    string
	current bool
}

type statusExpiredMsg struct {
	setAt time.Time
}

// model tracks TUI state across both screens.
type model struct {
	screen  screen
	paths   appPaths
	manager *conversationManager

	conversations []conversation
	rows          []treeRow
	cursor        int
	allProjects   bool

	projects      []projectEntry
	projectCursor int
	filterInput   textinput.Model
	action        pickerAction

	metadata map[string]conversationMetadata

	detailScroll int
	width        int
	height       int

	resumeID string

	status      string
	statusSetAt time.Time
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62"))

	currentMarkStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("51")) // cyan
)

func newBrowserModel(paths appPaths) model {
	filter := textinput.New()
	filter.Prompt = "Filter: "
	filter.Placeholder = "type to match project paths"

	m := model{
		paths:       paths,
		manager:     newConversationManager(paths.projectsDir),
		filterInput: filter,
		metadata:    make(map[string]conversationMetadata),
	}
	if err := m.reloadConversations(); err != nil {
		m.status = "Error: " + err.Error()
		m.statusSetAt = time.Now()
		return m
	}
	m.status = m.scopeStatus()
	m.statusSetAt = time.Now()
	return m
}

func statusExpiryCmd(setAt time.Time) tea.Cmd {
	return tea.Tick(statusDisplayDuration, func(time.Time) tea.Msg {
		return statusExpiredMsg{setAt: setAt}
	})
}

func (m model) Init() tea.Cmd {
	if m.status == "" {
		return nil
	}
	return statusExpiryCmd(m.statusSetAt)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case statusExpiredMsg:
		if msg.setAt.Equal(m.statusSetAt) {
			m.status = ""
		}
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.screen {
	case screenConversations:
		return m.handleConversationsKey(msg)
	case screenProjects:
		return m.handleProjectsKey(msg)
	default:
		return m, nil
	}
}

func (m model) handleConversationsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "pgup":
		m.moveCursor(-m.listHeight())
	case "pgdown":
		m.moveCursor(m.listHeight())
	case "g":
		m.cursor = 0
		m.detailScroll = 0
	case "G":
		m.cursor = max(0, len(m.rows)-1)
		m.detailScroll = 0
	case "K":
		m.detailScroll = max(0, m.detailScroll-1)
	case "J":
		m.detailScroll++
	case "a":
		m.allProjects = !m.allProjects
		if err := m.reloadConversations(); err != nil {
			return m, m.setStatus("Error: " + err.Error())
		}
		return m, m.setStatus(m.scopeStatus())
	case "r":
		if err := m.reloadConversations(); err != nil {
			return m, m.setStatus("Error: " + err.Error())
		}
		return m, m.setStatus("Refreshing conversations")
	case "b":
		row, ok := m.currentRow()
		if !ok {
			return m, m.setStatus("No conversation selected")
		}
		branched, err := m.manager.branchConversation(row.conv.id, "")
		if err != nil {
			return m, m.setStatus("Branch failed: " + err.Error())
		}
		if err := m.reloadConversations(); err != nil {
			return m, m.setStatus("Error: " + err.Error())
		}
		return m, m.setStatus("Branched " + shortSessionID(branched.id))
	case "B":
		if _, ok := m.currentRow(); !ok {
			return m, m.setStatus("No conversation selected")
		}
		if err := m.openProjectPicker(pickerBranch); err != nil {
			return m, m.setStatus("Error: " + err.Error())
		}
		return m, textinput.Blink
	case "c":
		if _, ok := m.currentRow(); !ok {
			return m, m.setStatus("No conversation selected")
		}
		if err := m.openProjectPicker(pickerCopy); err != nil {
			return m, m.setStatus("Error: " + err.Error())
		}
		return m, textinput.Blink
	case "enter":
		row, ok := m.currentRow()
		if !ok {
			return m, m.setStatus("No conversation selected")
		}
		if _, err := exec.LookPath("claude"); err != nil {
			return m, m.setStatus("claude CLI not found on PATH")
		}
		m.resumeID = row.conv.id
		return m, tea.Quit
	}
	return m, nil
}

func (m model) handleProjectsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.screen = screenConversations
		m.filterInput.Blur()
		return m, nil
	case "up":
		m.projectCursor = clamp(m.projectCursor-1, 0, max(0, len(m.filteredProjects())-1))
		return m, nil
	case "down":
		m.projectCursor = clamp(m.projectCursor+1, 0, max(0, len(m.filteredProjects())-1))
		return m, nil
	case "enter":
		return m.confirmProjectPick()
	}

	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	m.projectCursor = clamp(m.projectCursor, 0, max(0, len(m.filteredProjects())-1))
	return m, cmd
}

func (m model) confirmProjectPick() (tea.Model, tea.Cmd) {
	filtered := m.filteredProjects()
	if len(filtered) == 0 {
		return m, m.setStatus("No matching projects")
	}
	project := filtered[clamp(m.projectCursor, 0, len(filtered)-1)]
	row, ok := m.currentRow()
	if !ok {
		m.screen = screenConversations
		m.filterInput.Blur()
		return m, m.setStatus("No conversation selected")
	}

	m.screen = screenConversations
	m.filterInput.Blur()

	var result conversation
	var err error
	if m.action == pickerCopy {
		result, err = m.manager.copyConversation(row.conv.id, project.path)
	} else {
		result, err = m.manager.branchConversation(row.conv.id, project.path)
	}
	if err != nil {
		if m.action == pickerCopy {
			return m, m.setStatus("Copy failed: " + err.Error())
		}
		return m, m.setStatus("Branch failed: " + err.Error())
	}
	if err := m.reloadConversations(); err != nil {
		return m, m.setStatus("Error: " + err.Error())
	}
	if m.action == pickerCopy {
		return m, m.setStatus("Copied " + shortSessionID(result.id))
	}
	return m, m.setStatus("Branched " + shortSessionID(result.id))
}

func (m *model) setStatus(text string) tea.Cmd {
	m.status = text
	m.statusSetAt = time.Now()
	return statusExpiryCmd(m.statusSetAt)
}

func (m *model) moveCursor(delta int) {
	m.cursor = clamp(m.cursor+delta, 0, max(0, len(m.rows)-1))
	m.detailScroll = 0
}

func (m *model) reloadConversations() error {
	conversations, err := m.manager.findConversations("", m.allProjects)
	if err != nil {
		return err
	}
	m.conversations = conversations
	m.rows = flattenConversationTree(conversations)
	m.cursor = clamp(m.cursor, 0, max(0, len(m.rows)-1))
	m.detailScroll = 0
	m.metadata = make(map[string]conversationMetadata)
	return nil
}

func (m *model) openProjectPicker(action pickerAction) error {
	projects, err := loadProjectEntries(m.manager)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		return fmt.Errorf("no project directories under %s", m.manager.projectsDir)
	}
	m.projects = projects
	m.projectCursor = 0
	m.action = action
	m.filterInput.SetValue("")
	m.filterInput.Focus()
	m.screen = screenProjects
	return nil
}

func (m *model) metadataFor(conv conversation) conversationMetadata {
	if meta, ok := m.metadata[conv.id]; ok {
		return meta
	}
	meta := extractConversationMetadata(conv.path)
	m.metadata[conv.id] = meta
	return meta
}

// flattenConversationTree orders conversations parent-first with children
// indented beneath. Conversations whose parent chain never reaches a listed
// root, including parentUuid cycles, come last at depth zero.
func flattenConversationTree(conversations []conversation) []treeRow {
	roots, children := buildConversationTree(conversations)
	rows := make([]treeRow, 0, len(conversations))
	visited := make(map[string]bool)

	var walk func(conv conversation, depth int)
	walk = func(conv conversation, depth int) {
		if visited[conv.id] {
			return
		}
		visited[conv.id] = true
		rows = append(rows, treeRow{conv: conv, depth: depth})
		for _, child := range children[conv.id] {
			walk(child, depth+1)
		}
	}
	for _, root := range roots {
		walk(root, 0)
	}

	for _, conv := range conversations {
		if !visited[conv.id] {
			visited[conv.id] = true
			rows = append(rows, treeRow{conv: conv, depth: 0, orphaned: true})
		}
	}
	return rows
}

func loadProjectEntries(manager *conversationManager) ([]projectEntry, error) {
	entries, err := os.ReadDir(manager.projectsDir)
	if err != nil {
		return nil, fmt.Errorf("read projects dir %q: %w", manager.projectsDir, err)
	}

	currentDir := ""
	if dir, err := manager.currentProjectDir(); err == nil {
		currentDir = dir
	}

	projects := make([]projectEntry, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		decoded, ok := manager.decodeBrowsePath(filepath.Join(manager.projectsDir, entry.Name()))
		if !ok {
			continue
		}
		projects = append(projects, projectEntry{
			dir:     entry.Name(),
			path:    decoded,
			current: entry.Name() == currentDir,
		})
	}
	sort.Slice(projects, func(i, j int) bool {
		return strings.ToLower(projects[i].path) < strings.ToLower(projects[j].path)
	})
	return projects, nil
}

func (m model) filteredProjects() []projectEntry {
	query := strings.ToLower(strings.TrimSpace(m.filterInput.Value()))
	if query == "" {
		return m.projects
	}
	filtered := make([]projectEntry, 0, len(m.projects))
	for _, project := range m.projects {
		if strings.Contains(strings.ToLower(project.path), query) {
			filtered = append(filtered, project)
		}
	}
	return filtered
}

func (m model) scopeStatus() string {
	if m.allProjects {
		return fmt.Sprintf("Scope: all projects (%d conversations)", len(m.conversations))
	}
	return fmt.Sprintf("Scope: current project (%d conversations)", len(m.conversations))
}

func (m model) currentRow() (treeRow, bool) {
	if len(m.rows) == 0 || m.cursor < 0 || m.cursor >= len(m.rows) {
		return treeRow{}, false
	}
	return m.rows[m.cursor], true
}

func (m model) listHeight() int {
	available := max(4, m.height-4) // 4 = title + help + status + padding
	detailHeight := max(7, available/3)
	return max(3, available-detailHeight-1)
}

func (m model) detailHeight() int {
	available := max(4, m.height-4)
	return max(7, available/3)
}

func (m model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return "Initializing claude-bushwack..."
	}

	header := m.renderHeader()
	body := m.renderBody()
	footer := helpStyle.Render(m.renderStatus())
	return header + "\n" + body + "\n" + footer
}

func (m model) renderHeader() string {
	title := "claude-bushwack"
	switch m.screen {
	case screenConversations:
		title += " | Conversations"
		if m.allProjects {
			title += " | all projects"
		}
	case screenProjects:
		if m.action == pickerCopy {
			title += " | Copy to project"
		} else {
			title += " | Branch to project"
		}
	}

	help := m.renderHelp()
	return titleStyle.Render(title) + "\n" + helpStyle.Render(help)
}

func (m model) renderHelp() string {
	switch m.screen {
	case screenConversations:
		return "up/down: move | J/K: scroll detail | g/G: top/bottom | enter: resume | b: branch here | B: branch to project | c: copy to project | a: toggle scope | r: refresh | q: quit"
	case screenProjects:
		return "type to filter | up/down: move | enter: confirm | esc: cancel"
	default:
		return "q: quit"
	}
}

func (m model) renderBody() string {
	switch m.screen {
	case screenConversations:
		return m.renderConversations()
	case screenProjects:
		return m.renderProjects()
	default:
		return "Unknown screen"
	}
}

func (m model) renderStatus() string {
	if m.status != "" {
		return m.status
	}
	if m.screen == screenConversations {
		return m.scopeStatus()
	}
	return ""
}

func (m model) renderConversations() string {
	if len(m.rows) == 0 {
		scope := "current project"
		if m.allProjects {
			scope = "all projects"
		}
		return "No conversations found for " + scope
	}

	listHeight := m.listHeight()
	offset := listOffset(m.cursor, len(m.rows), listHeight)
	listLines := make([]string, 0, listHeight)
	for idx := offset; idx < min(len(m.rows), offset+listHeight); idx++ {
		line := m.conversationLine(m.rows[idx])
		if idx == m.cursor {
			listLines = append(listLines, selectedStyle.Render("> "+line))
		} else {
			listLines = append(listLines, "  "+line)
		}
	}
	listLines = padLines(listLines, listHeight)

	detailLines := m.renderConversationDetail(m.detailHeight())
	return strings.Join(listLines, "\n") + "\n" + helpStyle.Render(strings.Repeat("-", max(20, m.width-1))) + "\n" + strings.Join(detailLines, "\n")
}

func (m model) conversationLine(row treeRow) string {
	meta := m.metadataFor(row.conv)
	title := oneLine(displayTitle(meta))
	if title == "" {
		title = "(no preview)"
	}
	title = truncateString(title, max(8, m.width-50))

	parts := []string{
		strings.Repeat("  ", row.depth) + shortSessionID(row.conv.id),
		formatShortTime(row.conv.modifiedAt),
	}
	if meta.gitBranch != "" {
		parts = append(parts, truncateString(meta.gitBranch, branchDisplayWidth))
	}
	parts = append(parts, title)
	return strings.Join(parts, "  ")
}

func (m model) renderConversationDetail(detailHeight int) []string {
	row, ok := m.currentRow()
	if !ok {
		return padLines([]string{"No conversation selected"}, detailHeight)
	}
	conv := row.conv
	meta := m.metadataFor(conv)

	var allLines []string
	allLines = append(allLines, fmt.Sprintf("Session: %s", conv.id))
	allLines = append(allLines, fmt.Sprintf("Project: %s", conv.projectPath))
	info := fmt.Sprintf("Modified: %s  Messages: %d", formatTimeForList(conv.modifiedAt), meta.messageCount)
	if meta.gitBranch != "" {
		info += "  Branch: " + meta.gitBranch
	}
	allLines = append(allLines, info)
	if conv.parentUUID != "" {
		parent := "Parent: " + conv.parentUUID
		if row.orphaned {
			parent += " (missing)"
		}
		allLines = append(allLines, parent)
	}
	if meta.summary != "" {
		allLines = append(allLines, "Summary:")
		for _, line := range strings.Split(wrapText(meta.summary, max(20, m.width-4)), "\n") {
			allLines = append(allLines, "  "+line)
		}
	}
	if meta.preview != "" {
		allLines = append(allLines, "First message:")
		for _, line := range strings.Split(wrapText(meta.preview, max(20, m.width-4)), "\n") {
			allLines = append(allLines, "  "+line)
		}
	}
	allLines = append(allLines, "File: "+conv.path)

	maxScroll := max(0, len(allLines)-detailHeight)
	scroll := clamp(m.detailScroll, 0, maxScroll)

	start := scroll
	end := min(len(allLines), start+detailHeight)
	visible := allLines[start:end]

	if maxScroll > 0 {
		indicator := fmt.Sprintf(" [%d/%d lines, Shift+J/K to scroll]", scroll+detailHeight, len(allLines))
		if len(visible) > 0 {
			visible[0] = visible[0] + helpStyle.Render(indicator)
		}
	}
	return padLines(visible, detailHeight)
}

func (m model) renderProjects() string {
	action := "Branch"
	if m.action == pickerCopy {
		action = "Copy"
	}
	target := ""
	if row, ok := m.currentRow(); ok {
		target = shortSessionID(row.conv.id)
	}

	lines := []string{
		fmt.Sprintf("%s %s into:", action, target),
		m.filterInput.View(),
		"",
	}

	filtered := m.filteredProjects()
	if len(filtered) == 0 {
		lines = append(lines, "No matching projects")
		return strings.Join(lines, "\n")
	}

	cursor := clamp(m.projectCursor, 0, len(filtered)-1)
	visible := max(1, m.height-7)
	offset := listOffset(cursor, len(filtered), visible)
	for idx := offset; idx < min(len(filtered), offset+visible); idx++ {
		project := filtered[idx]
		text := truncateString(project.path, max(8, m.width-16))
		marker := ""
		if project.current {
			marker = " • current"
		}
		if idx == cursor {
			lines = append(lines, selectedStyle.Render("> "+text+marker))
		} else {
			lines = append(lines, "  "+text+currentMarkStyle.Render(marker))
		}
	}
	return strings.Join(lines, "\n")
}

func runTuiCommand() error {
	paths, err := resolveAppPaths()
	if err != nil {
		return err
	}

	program := tea.NewProgram(newBrowserModel(paths), tea.WithAltScreen())
	final, err := program.Run()
	if err != nil {
		return err
	}

	browser, ok := final.(model)
	if !ok || browser.resumeID == "" {
		return nil
	}
	return resumeConversation(browser.resumeID)
}

// resumeConversation hands the terminal over to the claude CLI.
func resumeConversation(sessionID string) error {
	claudePath, err := exec.LookPath("claude")
	if err != nil {
		return fmt.Errorf("claude CLI not found on PATH")
	}
	cmd := exec.Command(claudePath, "--resume", sessionID)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func shortSessionID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatShortTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format("01-02 15:04")
}

func listOffset(cursor, total, visible int) int {
	if total <= visible {
		return 0
	}
	offset := cursor - visible/2
	maxOffset := total - visible
	return clamp(offset, 0, maxOffset)
}

func oneLine(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	fields := strings.Fields(trimmed)
	return strings.Join(fields, " ")
}

func truncateString(text string, width int) string {
	if width <= 0 {
		return ""
	}
	if len(text) <= width {
		return text
	}
	if width <= 3 {
		return text[:width]
	}
	return text[:width-3] + "..."
}

func wrapText(text string, width int) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	wrapped := wordwrap.String(trimmed, width)
	return strings.ReplaceAll(wrapped, "\r", "")
}

func padLines(lines []string, minHeight int) []string {
	for len(lines) < minHeight {
		lines = append(lines, "")
	}
	return lines
}

func clamp(value, low, high int) int {
	if high < low {
		return low
	}
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
