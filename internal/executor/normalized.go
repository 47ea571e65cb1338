package executor

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"
)

// EntryType classifies one transcript entry.
type EntryType string

const (
	EntryUserMessage      EntryType = "user_message"
	EntryAssistantMessage EntryType = "assistant_message"
	EntryToolUse          EntryType = "tool_use"
	EntrySystemMessage    EntryType = "system_message"
	EntryThinking         EntryType = "thinking"
)

// ActionKind classifies what a tool use does, independent of which agent
// invoked the tool.
type ActionKind string

const (
	ActionFileRead   ActionKind = "file_read"
	ActionFileWrite  ActionKind = "file_write"
	ActionCommandRun ActionKind = "command_run"
	ActionSearch     ActionKind = "search"
	ActionWebFetch   ActionKind = "web_fetch"
	ActionTaskCreate ActionKind = "task_create"
	ActionOther      ActionKind = "other"
)

// Action describes a tool use in agent-neutral terms. Only the field
// matching Kind is populated; paths are relative to the worktree when the
// tool touched a file inside it.
type Action struct {
	Kind        ActionKind `json:"kind"`
	Path        string     `json:"path,omitempty"`
	Command     string     `json:"command,omitempty"`
	Query       string     `json:"query,omitempty"`
	URL         string     `json:"url,omitempty"`
	Description string     `json:"description,omitempty"`
}

// NormalizedEntry is one step of the canonical transcript.
type NormalizedEntry struct {
	Timestamp *time.Time      `json:"timestamp,omitempty"`
	Type      EntryType       `json:"entry_type"`
	Content   string          `json:"content"`
	ToolName  string          `json:"tool_name,omitempty"`
	Action    *Action         `json:"action,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// NormalizedConversation is the agent-neutral transcript produced from a
// single execution's stdout.
type NormalizedConversation struct {
	Entries      []NormalizedEntry `json:"entries"`
	SessionID    *string           `json:"session_id,omitempty"`
	ExecutorType string            `json:"executor_type"`
	Prompt       *string           `json:"prompt,omitempty"`
	Summary      *string           `json:"summary,omitempty"`
}

// makePathRelative rewrites absolute paths under the worktree to
// worktree-relative form. Relative paths pass through untouched, and
// absolute paths outside the worktree stay verbatim.
func makePathRelative(path, worktreePath string) string {
	if path == "" || worktreePath == "" || !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(worktreePath, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	if rel == "." {
		return ""
	}
	return rel
}

// marshalMetadata preserves the source payload for debugging. Marshal of
// data decoded from JSON cannot fail; a nil result just drops metadata.
func marshalMetadata(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
