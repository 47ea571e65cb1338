package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codecommand/codecommand/internal/execution"
	"github.com/codecommand/codecommand/internal/task/models"
)

const geminiBaseCommand = "npx -y @google/gemini-cli@latest --yolo --output-format=stream-json"

// GeminiExecutor runs the Gemini CLI in auto-approve mode with
// stream-json output.
type GeminiExecutor struct {
	command string
}

func NewGeminiExecutor() *GeminiExecutor {
	return &GeminiExecutor{command: geminiBaseCommand}
}

func (e *GeminiExecutor) Spawn(ctx context.Context, task *models.Task, worktreePath string) (*execution.Child, error) {
	return spawnAgent(ctx, agentSpawn{
		command: e.command,
		dir:     worktreePath,
		prompt:  TaskPrompt(task),
		taskID:  task.ID,
		context: "Gemini execution",
	})
}

func (e *GeminiExecutor) NormalizeLogs(logs string, worktreePath string) (*NormalizedConversation, error) {
	return normalizeGeminiLogs(logs, worktreePath), nil
}

// GeminiFollowupExecutor resumes a recorded Gemini session.
type GeminiFollowupExecutor struct {
	command string
	prompt  string
}

func NewGeminiFollowupExecutor(sessionID, prompt string) *GeminiFollowupExecutor {
	return &GeminiFollowupExecutor{
		command: fmt.Sprintf("%s --resume=%s", geminiBaseCommand, sessionID),
		prompt:  prompt,
	}
}

func (e *GeminiFollowupExecutor) Spawn(ctx context.Context, task *models.Task, worktreePath string) (*execution.Child, error) {
	return spawnAgent(ctx, agentSpawn{
		command: e.command,
		dir:     worktreePath,
		prompt:  e.prompt,
		taskID:  task.ID,
		context: "Gemini follow-up execution",
	})
}

func (e *GeminiFollowupExecutor) NormalizeLogs(logs string, worktreePath string) (*NormalizedConversation, error) {
	return normalizeGeminiLogs(logs, worktreePath), nil
}

// normalizeGeminiLogs translates Gemini's stream-json output. Events are
// flat: message events carry role and content strings, tool_call events
// carry the tool name and args object.
func normalizeGeminiLogs(logs, worktreePath string) *NormalizedConversation {
	var entries []NormalizedEntry
	var sessionID *string

	for _, line := range strings.Split(logs, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		var value any
		if err := json.Unmarshal([]byte(trimmed), &value); err != nil {
			entries = append(entries, NormalizedEntry{
				Type:    EntrySystemMessage,
				Content: "Raw output: " + trimmed,
			})
			continue
		}
		payload, _ := value.(map[string]any)

		if sessionID == nil {
			if sid, ok := payload["session_id"].(string); ok {
				sessionID = &sid
			}
		}

		switch payload["type"] {
		case "init":
			model := "unknown"
			if m, ok := payload["model"].(string); ok {
				model = m
			}
			entries = append(entries, NormalizedEntry{
				Type:     EntrySystemMessage,
				Content:  "System initialized with model: " + model,
				Metadata: marshalMetadata(value),
			})
		case "message":
			content, ok := payload["content"].(string)
			if !ok {
				continue
			}
			entryType := EntryAssistantMessage
			if role, _ := payload["role"].(string); role == "user" {
				entryType = EntryUserMessage
			}
			entries = append(entries, NormalizedEntry{
				Type:     entryType,
				Content:  content,
				Metadata: marshalMetadata(value),
			})
		case "tool_call":
			toolName, ok := payload["name"].(string)
			if !ok {
				continue
			}
			input := payload["args"]
			action := extractActionType(toolName, input, worktreePath)
			entries = append(entries, NormalizedEntry{
				Type:     EntryToolUse,
				Content:  generateConciseContent(toolName, input, action, worktreePath),
				ToolName: toolName,
				Action:   &action,
				Metadata: marshalMetadata(value),
			})
		case "result":
			// Run summary; already covered by streamed events.
		default:
			entries = append(entries, NormalizedEntry{
				Type:     EntrySystemMessage,
				Content:  "Unrecognized JSON: " + trimmed,
				Metadata: marshalMetadata(value),
			})
		}
	}

	return &NormalizedConversation{
		Entries:      entries,
		SessionID:    sessionID,
		ExecutorType: "gemini",
	}
}
