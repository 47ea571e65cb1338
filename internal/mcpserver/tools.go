package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/codecommand/codecommand/internal/common/logger"
	"github.com/codecommand/codecommand/internal/task/dto"
	"github.com/codecommand/codecommand/internal/task/models"
	"github.com/codecommand/codecommand/internal/task/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func registerTools(s *server.MCPServer, tasks *service.Service, log *logger.Logger) {
	s.AddTool(
		mcp.NewTool("list_projects",
			mcp.WithDescription("List all registered projects. Use this first to get project IDs for other operations."),
		),
		listProjectsHandler(tasks, log),
	)

	s.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List tasks in a project, newest first."),
			mcp.WithString("project_id",
				mcp.Required(),
				mcp.Description("The project ID to list tasks from"),
			),
			mcp.WithString("status",
				mcp.Description("Only return tasks with this status: todo, in-progress, in-review, done, cancelled (optional)"),
			),
			mcp.WithNumber("limit",
				mcp.Description(fmt.Sprintf("Maximum number of tasks to return, 1-%d (default %d)", maxListLimit, defaultListLimit)),
			),
		),
		listTasksHandler(tasks, log),
	)

	s.AddTool(
		mcp.NewTool("create_task",
			mcp.WithDescription("Create a new task in a project"),
			mcp.WithString("project_id",
				mcp.Required(),
				mcp.Description("The project ID"),
			),
			mcp.WithString("title",
				mcp.Required(),
				mcp.Description("The task title"),
			),
			mcp.WithString("description",
				mcp.Description("The task description (optional)"),
			),
		),
		createTaskHandler(tasks, log),
	)

	s.AddTool(
		mcp.NewTool("get_task",
			mcp.WithDescription("Get a single task by ID"),
			mcp.WithString("task_id",
				mcp.Required(),
				mcp.Description("The task ID"),
			),
		),
		getTaskHandler(tasks, log),
	)

	s.AddTool(
		mcp.NewTool("update_task",
			mcp.WithDescription("Update an existing task"),
			mcp.WithString("task_id",
				mcp.Required(),
				mcp.Description("The task ID to update"),
			),
			mcp.WithString("title",
				mcp.Description("New title (optional)"),
			),
			mcp.WithString("description",
				mcp.Description("New description (optional)"),
			),
			mcp.WithString("status",
				mcp.Description("New status: todo, in-progress, in-review, done, cancelled (optional)"),
			),
		),
		updateTaskHandler(tasks, log),
	)

	s.AddTool(
		mcp.NewTool("delete_task",
			mcp.WithDescription("Delete a task and its attempt history"),
			mcp.WithString("task_id",
				mcp.Required(),
				mcp.Description("The task ID to delete"),
			),
		),
		deleteTaskHandler(tasks, log),
	)

	log.Info("registered MCP tools", zap.Int("count", 6))
}

// toolResultJSON renders any payload as an indented JSON tool result.
func toolResultJSON(v any) (*mcp.CallToolResult, error) {
	formatted, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(formatted)), nil
}

func listProjectsHandler(tasks *service.Service, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projects, err := tasks.ListProjects(ctx)
		if err != nil {
			log.Error("failed to list projects", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list projects: %v", err)), nil
		}
		return toolResultJSON(dto.FromProjects(projects))
	}
}

func listTasksHandler(tasks *service.Service, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, err := req.RequireString("project_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		limit := req.GetInt("limit", defaultListLimit)
		if limit < 1 || limit > maxListLimit {
			return mcp.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", maxListLimit)), nil
		}

		var statusFilter *models.TaskStatus
		if raw := req.GetString("status", ""); raw != "" {
			status, err := models.ParseTaskStatus(raw)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			statusFilter = &status
		}

		list, err := tasks.ListTasks(ctx, projectID, "")
		if err != nil {
			log.Error("failed to list tasks", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list tasks: %v", err)), nil
		}

		filtered := make([]*models.Task, 0, len(list))
		for _, task := range list {
			if statusFilter != nil && task.Status != *statusFilter {
				continue
			}
			filtered = append(filtered, task)
			if len(filtered) == limit {
				break
			}
		}

		return toolResultJSON(dto.FromTasks(filtered))
	}
}

func createTaskHandler(tasks *service.Service, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, err := req.RequireString("project_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		title, err := req.RequireString("title")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		createReq := &service.CreateTaskRequest{
			ProjectID: projectID,
			Title:     title,
		}
		if desc := req.GetString("description", ""); desc != "" {
			createReq.Description = &desc
		}

		task, err := tasks.CreateTask(ctx, createReq)
		if err != nil {
			log.Error("failed to create task", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("Failed to create task: %v", err)), nil
		}

		return toolResultJSON(dto.FromTask(task))
	}
}

func getTaskHandler(tasks *service.Service, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := req.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		task, err := tasks.GetTask(ctx, taskID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get task: %v", err)), nil
		}

		return toolResultJSON(dto.FromTask(task))
	}
}

func updateTaskHandler(tasks *service.Service, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := req.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		updateReq := &service.UpdateTaskRequest{}
		if title := req.GetString("title", ""); title != "" {
			updateReq.Title = &title
		}
		if desc := req.GetString("description", ""); desc != "" {
			updateReq.Description = &desc
		}
		if status := req.GetString("status", ""); status != "" {
			// reject bad spellings before touching the store
			if _, err := models.ParseTaskStatus(status); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			updateReq.Status = &status
		}

		task, err := tasks.UpdateTask(ctx, taskID, updateReq)
		if err != nil {
			log.Error("failed to update task", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("Failed to update task: %v", err)), nil
		}

		return toolResultJSON(dto.FromTask(task))
	}
}

func deleteTaskHandler(tasks *service.Service, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := req.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if err := tasks.DeleteTask(ctx, taskID); err != nil {
			log.Error("failed to delete task", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("Failed to delete task: %v", err)), nil
		}

		return toolResultJSON(dto.SuccessResponse{Success: true})
	}
}
