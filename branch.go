package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// branchConversation duplicates a conversation into the target project and
// links the copy to its source so lineage tracks the branch point. An empty
// target means the working directory.
func (m *conversationManager) branchConversation(sessionID, targetProjectPath string) (conversation, error) {
	source, err := m.findConversation(sessionID)
	if err != nil {
		return conversation{}, wrapDuplicationError("Failed to branch conversation", err)
	}

	if targetProjectPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return conversation{}, wrapDuplicationError("Failed to branch conversation", err)
		}
		targetProjectPath = cwd
	}

	conv, err := m.duplicateConversation(source, targetProjectPath, source.id)
	if err != nil {
		return conversation{}, wrapDuplicationError("Failed to branch conversation", err)
	}
	return conv, nil
}

// copyConversation duplicates a conversation into the target project without
// linking it to the source; source and copy remain independent roots.
func (m *conversationManager) copyConversation(sessionID, targetProjectPath string) (conversation, error) {
	source, err := m.findConversation(sessionID)
	if err != nil {
		return conversation{}, wrapDuplicationError("Failed to copy conversation", err)
	}

	conv, err := m.duplicateConversation(source, targetProjectPath, "")
	if err != nil {
		return conversation{}, wrapDuplicationError("Failed to copy conversation", err)
	}
	return conv, nil
}

// duplicateConversation copies the source transcript under a fresh UUID in
// the target project, sets or clears the parent link on the first record,
// and rewrites embedded project metadata. The copy is not rolled back when a
// later step fails.
func (m *conversationManager) duplicateConversation(source conversation, targetProjectPath, parentUUID string) (conversation, error) {
	targetProjectPath = filepath.Clean(targetProjectPath)
	targetProjectDir := m.encodeProjectPath(targetProjectPath)
	targetDirPath := filepath.Join(m.projectsDir, targetProjectDir)

	if err := os.MkdirAll(targetDirPath, 0o755); err != nil {
		return conversation{}, fmt.Errorf("create project dir %q: %w", targetDirPath, err)
	}

	newID := uuid.NewString()
	targetFilePath := filepath.Join(targetDirPath, newID+".jsonl")

	if err := copyFile(source.path, targetFilePath); err != nil {
		return conversation{}, fmt.Errorf("copy conversation file: %w", err)
	}

	if parentUUID != "" {
		if err := setParentUUID(targetFilePath, parentUUID); err != nil {
			return conversation{}, err
		}
	} else {
		if err := clearParentUUID(targetFilePath); err != nil {
			return conversation{}, err
		}
	}

	gitBranch := detectGitBranch(targetProjectPath)
	if err := rewriteProjectMetadata(
		targetFilePath,
		source.projectPath,
		targetProjectPath,
		source.projectDir,
		targetProjectDir,
		gitBranch,
	); err != nil {
		return conversation{}, err
	}

	return conversation{
		id:          newID,
		path:        targetFilePath,
		projectDir:  targetProjectDir,
		projectPath: targetProjectPath,
		modifiedAt:  time.Now(),
		parentUUID:  parentUUID,
	}, nil
}

// wrapDuplicationError wraps unexpected failures while letting resolver
// errors and already-typed duplication failures pass through unchanged.
func wrapDuplicationError(msg string, err error) error {
	var invalidID *invalidSessionIDError
	var notFound *conversationNotFoundError
	var ambiguous *ambiguousSessionIDError
	var duplication *branchError
	if errors.As(err, &invalidID) || errors.As(err, &notFound) ||
		errors.As(err, &ambiguous) || errors.As(err, &duplication) {
		return err
	}
	return &branchError{msg: msg, err: err}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// setParentUUID rewrites the first record of a transcript to point at the
// given parent conversation.
func setParentUUID(path, parentUUID string) error {
	firstLine, rest, err := splitFirstLine(path)
	if err != nil {
		return &branchError{msg: "Failed to set parentUuid in JSONL file", err: err}
	}

	record, err := decodeRecordLine(firstLine)
	if err != nil {
		return &branchError{msg: "Failed to set parentUuid in JSONL file", err: err}
	}
	obj, ok := record.(map[string]any)
	if !ok {
		return &branchError{msg: "Failed to set parentUuid in JSONL file", err: errors.New("first record is not an object")}
	}
	obj["parentUuid"] = parentUUID

	line, err := marshalRecordLine(obj)
	if err != nil {
		return &branchError{msg: "Failed to set parentUuid in JSONL file", err: err}
	}
	if err := os.WriteFile(path, []byte(line+"\n"+rest), 0o644); err != nil {
		return &branchError{msg: "Failed to set parentUuid in JSONL file", err: err}
	}
	return nil
}

// clearParentUUID removes the parent link from the first record so the copy
// starts a fresh lineage. An empty transcript, or one whose first record has
// no parent link, is left as is.
func clearParentUUID(path string) error {
	firstLine, rest, err := splitFirstLine(path)
	if err != nil {
		return &branchError{msg: "Failed to clear parentUuid in JSONL file", err: err}
	}
	if firstLine == "" && rest == "" {
		return nil
	}

	record, err := decodeRecordLine(firstLine)
	if err != nil {
		return &branchError{msg: "Failed to clear parentUuid in JSONL file", err: err}
	}
	obj, ok := record.(map[string]any)
	if !ok {
		return &branchError{msg: "Failed to clear parentUuid in JSONL file", err: errors.New("first record is not an object")}
	}
	if _, exists := obj["parentUuid"]; !exists {
		return nil
	}
	delete(obj, "parentUuid")

	line, err := marshalRecordLine(obj)
	if err != nil {
		return &branchError{msg: "Failed to clear parentUuid in JSONL file", err: err}
	}
	if err := os.WriteFile(path, []byte(line+"\n"+rest), 0o644); err != nil {
		return &branchError{msg: "Failed to clear parentUuid in JSONL file", err: err}
	}
	return nil
}

func splitFirstLine(path string) (string, string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	text := string(content)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx], text[idx+1:], nil
	}
	return text, "", nil
}

// decodeRecordLine parses one line as a single JSON value, preserving
// numeric literals and rejecting trailing garbage.
func decodeRecordLine(line string) (any, error) {
	decoder := json.NewDecoder(strings.NewReader(line))
	decoder.UseNumber()
	var record any
	if err := decoder.Decode(&record); err != nil {
		return nil, err
	}
	var trailing any
	if err := decoder.Decode(&trailing); err != io.EOF {
		return nil, errors.New("trailing data after record")
	}
	return record, nil
}

// detectGitBranch reads the target project's .git/HEAD directly rather than
// invoking git. A symbolic ref yields its last path segment; a detached head
// yields the raw content. Missing or unreadable files mean no branch.
func detectGitBranch(projectPath string) string {
	content, err := os.ReadFile(filepath.Join(projectPath, ".git", "HEAD"))
	if err != nil {
		return ""
	}
	head := strings.TrimSpace(string(content))
	if head == "" {
		return ""
	}
	if strings.HasPrefix(head, "ref:") {
		ref := strings.TrimSpace(head[len("ref:"):])
		if ref == "" {
			return ""
		}
		return path.Base(ref)
	}
	return head
}
