package executor

import "strings"

// inputString pulls a string field out of a tool input payload.
func inputString(input any, key string) (string, bool) {
	m, ok := input.(map[string]any)
	if !ok {
		return "", false
	}
	s, ok := m[key].(string)
	return s, ok
}

// extractActionType maps a tool invocation to an agent-neutral action.
// Tool names are matched case-insensitively; missing fields degrade to an
// Other action describing the tool in prose.
func extractActionType(toolName string, input any, worktreePath string) Action {
	switch strings.ToLower(toolName) {
	case "read":
		if path, ok := inputString(input, "file_path"); ok {
			return Action{Kind: ActionFileRead, Path: makePathRelative(path, worktreePath)}
		}
		return Action{Kind: ActionOther, Description: "File read operation"}
	case "edit", "write", "multiedit":
		if path, ok := inputString(input, "file_path"); ok {
			return Action{Kind: ActionFileWrite, Path: makePathRelative(path, worktreePath)}
		}
		if path, ok := inputString(input, "path"); ok {
			return Action{Kind: ActionFileWrite, Path: makePathRelative(path, worktreePath)}
		}
		return Action{Kind: ActionOther, Description: "File write operation"}
	case "bash":
		if command, ok := inputString(input, "command"); ok {
			return Action{Kind: ActionCommandRun, Command: command}
		}
		return Action{Kind: ActionOther, Description: "Command execution"}
	case "grep":
		if pattern, ok := inputString(input, "pattern"); ok {
			return Action{Kind: ActionSearch, Query: pattern}
		}
		return Action{Kind: ActionOther, Description: "Search operation"}
	case "glob":
		if pattern, ok := inputString(input, "pattern"); ok {
			return Action{Kind: ActionOther, Description: "Find files: " + pattern}
		}
		return Action{Kind: ActionOther, Description: "File pattern search"}
	case "webfetch":
		if url, ok := inputString(input, "url"); ok {
			return Action{Kind: ActionWebFetch, URL: url}
		}
		return Action{Kind: ActionOther, Description: "Web fetch operation"}
	case "task":
		if description, ok := inputString(input, "description"); ok {
			return Action{Kind: ActionTaskCreate, Description: description}
		}
		if prompt, ok := inputString(input, "prompt"); ok {
			return Action{Kind: ActionTaskCreate, Description: prompt}
		}
		return Action{Kind: ActionOther, Description: "Task creation"}
	default:
		return Action{Kind: ActionOther, Description: "Tool: " + toolName}
	}
}

// generateConciseContent renders the one-line summary shown for a tool
// use. Actions with a captured target render it in backticks; Other
// actions fall back to per-tool formatting.
func generateConciseContent(toolName string, input any, action Action, worktreePath string) string {
	switch action.Kind {
	case ActionFileRead, ActionFileWrite:
		return "`" + action.Path + "`"
	case ActionCommandRun:
		return "`" + action.Command + "`"
	case ActionSearch:
		return "`" + action.Query + "`"
	case ActionWebFetch:
		return "`" + action.URL + "`"
	case ActionTaskCreate:
		return action.Description
	}

	switch strings.ToLower(toolName) {
	case "todowrite", "todoread":
		return todoListContent(input)
	case "ls":
		if path, ok := inputString(input, "path"); ok {
			if rel := makePathRelative(path, worktreePath); rel != "" {
				return "List directory: `" + rel + "`"
			}
		}
		return "List directory"
	case "glob":
		pattern, ok := inputString(input, "pattern")
		if !ok {
			pattern = "*"
		}
		if path, ok := inputString(input, "path"); ok {
			return "Find files: `" + pattern + "` in `" + makePathRelative(path, worktreePath) + "`"
		}
		return "Find files: `" + pattern + "`"
	case "codebase_search_agent":
		if query, ok := inputString(input, "query"); ok {
			return "Search: " + query
		}
		return "Codebase search"
	default:
		return toolName
	}
}

// todoListContent renders a TODO tool input as a status-glyph list.
func todoListContent(input any) string {
	todos, _ := func() ([]any, bool) {
		m, ok := input.(map[string]any)
		if !ok {
			return nil, false
		}
		list, ok := m["todos"].([]any)
		return list, ok
	}()

	var items []string
	for _, todo := range todos {
		tm, ok := todo.(map[string]any)
		if !ok {
			continue
		}
		content, ok := tm["content"].(string)
		if !ok {
			continue
		}
		status := "pending"
		if s, ok := tm["status"].(string); ok {
			status = s
		}
		var glyph string
		switch status {
		case "completed":
			glyph = "✅"
		case "in_progress":
			glyph = "🔄"
		case "pending", "todo":
			glyph = "⏳"
		default:
			glyph = "📝"
		}
		priority := "medium"
		if p, ok := tm["priority"].(string); ok {
			priority = p
		}
		items = append(items, glyph+" "+content+" ("+priority+")")
	}
	if len(items) == 0 {
		return "Managing TODO list"
	}
	return "TODO List:\n" + strings.Join(items, "\n")
}
