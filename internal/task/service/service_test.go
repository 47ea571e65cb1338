package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codecommand/codecommand/internal/analytics"
	"github.com/codecommand/codecommand/internal/common/config"
	"github.com/codecommand/codecommand/internal/common/logger"
	"github.com/codecommand/codecommand/internal/db"
	"github.com/codecommand/codecommand/internal/task/models"
	"github.com/codecommand/codecommand/internal/task/repository/sqlite"
	"github.com/codecommand/codecommand/internal/worktree"
)

func newTestService(t *testing.T) (*Service, *sqlite.Repository) {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      "debug",
		Format:     "console",
		OutputPath: "stdout",
	})
	require.NoError(t, err)

	dbConn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(dbConn, "sqlite3")
	repo, err := sqlite.NewWithDB(sqlxDB, sqlxDB)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlxDB.Close() })

	manager, err := worktree.NewManager(worktree.Config{
		BasePath:      filepath.Join(t.TempDir(), "worktrees"),
		DefaultBranch: "main",
	}, log)
	require.NoError(t, err)

	cfg := &config.Config{
		Executor: config.ExecutorConfig{Default: "claude"},
		Notifications: config.NotificationsConfig{
			SoundAlerts: true,
			SoundFile:   "abstract-sound4",
		},
		Editor: config.EditorConfig{Type: "vscode"},
	}
	return NewService(repo, manager, cfg, log), repo
}

// newFakeGitRepo creates a directory that passes the .git presence check.
// No git binary needed; project registration only stats the layout.
func newFakeGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	return dir
}

func TestCreateProjectValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateProject(ctx, &CreateProjectRequest{GitRepoPath: "/tmp/x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")

	_, err = svc.CreateProject(ctx, &CreateProjectRequest{Name: "demo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "git_repo_path is required")

	_, err = svc.CreateProject(ctx, &CreateProjectRequest{Name: "demo", GitRepoPath: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a git repository")
}

func TestProjectCRUD(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	repoPath := newFakeGitRepo(t)

	setup := "npm install"
	project, err := svc.CreateProject(ctx, &CreateProjectRequest{
		Name:        "demo",
		GitRepoPath: repoPath,
		SetupScript: &setup,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, project.ID)
	assert.Equal(t, repoPath, project.GitRepoPath)

	got, err := svc.GetProject(ctx, project.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SetupScript)
	assert.Equal(t, "npm install", *got.SetupScript)

	newName := "demo-renamed"
	clear := ""
	dev := "npm run dev"
	updated, err := svc.UpdateProject(ctx, project.ID, &UpdateProjectRequest{
		Name:        &newName,
		SetupScript: &clear,
		DevScript:   &dev,
	})
	require.NoError(t, err)
	assert.Equal(t, "demo-renamed", updated.Name)
	assert.Nil(t, updated.SetupScript)
	require.NotNil(t, updated.DevScript)
	assert.Equal(t, "npm run dev", *updated.DevScript)

	projects, err := svc.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 1)

	require.NoError(t, svc.DeleteProject(ctx, project.ID))
	_, err = svc.GetProject(ctx, project.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestTaskCRUDAndStatusParsing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	project, err := svc.CreateProject(ctx, &CreateProjectRequest{
		Name:        "demo",
		GitRepoPath: newFakeGitRepo(t),
	})
	require.NoError(t, err)

	task, err := svc.CreateTask(ctx, &CreateTaskRequest{
		ProjectID: project.ID,
		Title:     "fix flaky test",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusTodo, task.Status)

	// tolerant spellings parse to the canonical enum
	for spelling, want := range map[string]models.TaskStatus{
		"in_progress": models.TaskStatusInProgress,
		"InReview":    models.TaskStatusInReview,
		"COMPLETED":   models.TaskStatusDone,
		"canceled":    models.TaskStatusCancelled,
	} {
		status := spelling
		updated, err := svc.UpdateTask(ctx, task.ID, &UpdateTaskRequest{Status: &status})
		require.NoError(t, err, "spelling %q", spelling)
		assert.Equal(t, want, updated.Status, "spelling %q", spelling)
	}

	bad := "blocked"
	_, err = svc.UpdateTask(ctx, task.ID, &UpdateTaskRequest{Status: &bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")

	tasks, err := svc.ListTasks(ctx, project.ID, "")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	require.NoError(t, svc.DeleteTask(ctx, task.ID))
	_, err = svc.GetTask(ctx, task.ID)
	require.Error(t, err)
}

func TestCreateTaskRequiresProject(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateTask(context.Background(), &CreateTaskRequest{
		ProjectID: "missing",
		Title:     "orphan",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestNormalizedLogsForScriptProcess(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	project := &models.Project{Name: "demo", GitRepoPath: "/repos/demo"}
	require.NoError(t, repo.CreateProject(ctx, project))
	task := &models.Task{ProjectID: project.ID, Title: "t"}
	require.NoError(t, repo.CreateTask(ctx, task))
	attempt := &models.TaskAttempt{
		TaskID:       task.ID,
		Branch:       "codecommand/t",
		WorktreePath: t.TempDir(),
		Executor:     models.ExecutorClaude,
	}
	require.NoError(t, repo.CreateTaskAttempt(ctx, attempt))

	process := &models.ExecutionProcess{
		TaskAttemptID: attempt.ID,
		Kind:          models.ProcessKindSetupScript,
	}
	require.NoError(t, repo.CreateExecutionProcess(ctx, process))
	require.NoError(t, repo.UpdateExecutionProcessOutput(ctx, process.ID, "installing deps\ndone\n", ""))

	conversation, err := svc.GetNormalizedLogs(ctx, process.ID)
	require.NoError(t, err)
	assert.Equal(t, "setupscript", conversation.ExecutorType)
	require.Len(t, conversation.Entries, 2)
	assert.Equal(t, "installing deps", conversation.Entries[0].Content)
}

func TestNormalizedLogsForAgentProcess(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	project := &models.Project{Name: "demo", GitRepoPath: "/repos/demo"}
	require.NoError(t, repo.CreateProject(ctx, project))
	task := &models.Task{ProjectID: project.ID, Title: "t"}
	require.NoError(t, repo.CreateTask(ctx, task))
	attempt := &models.TaskAttempt{
		TaskID:       task.ID,
		Branch:       "codecommand/t",
		WorktreePath: t.TempDir(),
		Executor:     models.ExecutorClaude,
	}
	require.NoError(t, repo.CreateTaskAttempt(ctx, attempt))

	process := &models.ExecutionProcess{
		TaskAttemptID: attempt.ID,
		Kind:          models.ProcessKindCodingAgent,
	}
	require.NoError(t, repo.CreateExecutionProcess(ctx, process))
	stdout := `{"type":"system","subtype":"init","session_id":"sess-1","model":"claude-sonnet-4"}
{"type":"assistant","message":{"content":[{"type":"text","text":"On it."}]}}
`
	require.NoError(t, repo.UpdateExecutionProcessOutput(ctx, process.ID, stdout, ""))
	prompt := "fix the bug"
	require.NoError(t, repo.CreateExecutorSession(ctx, &models.ExecutorSession{
		ExecutionProcessID: process.ID,
		TaskAttemptID:      attempt.ID,
		Prompt:             &prompt,
	}))

	conversation, err := svc.GetNormalizedLogs(ctx, process.ID)
	require.NoError(t, err)
	assert.Equal(t, "claude", conversation.ExecutorType)
	require.NotNil(t, conversation.SessionID)
	assert.Equal(t, "sess-1", *conversation.SessionID)
	require.NotNil(t, conversation.Prompt)
	assert.Equal(t, "fix the bug", *conversation.Prompt)
	require.Len(t, conversation.Entries, 2)
	assert.Equal(t, "On it.", conversation.Entries[1].Content)
}

func TestSettingsRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)

	got := svc.GetSettings()
	assert.Equal(t, "claude", got.DefaultExecutor)
	assert.True(t, got.SoundAlerts)

	updated, err := svc.UpdateSettings(Settings{
		DefaultExecutor:  "amp",
		SoundFile:        "rooster",
		AnalyticsEnabled: true,
		AnalyticsUserID:  "u-1",
		EditorType:       "zed",
	})
	require.NoError(t, err)
	assert.Equal(t, "amp", updated.DefaultExecutor)
	assert.Equal(t, "rooster", updated.SoundFile)

	got = svc.GetSettings()
	assert.Equal(t, "amp", got.DefaultExecutor)
	assert.True(t, got.AnalyticsEnabled)
}

func TestSettingsValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.UpdateSettings(Settings{DefaultExecutor: "cursor"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")

	_, err = svc.UpdateSettings(Settings{SoundFile: "air-horn"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sound_file")

	_, err = svc.UpdateSettings(Settings{EditorType: "emacs"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "editor_type")
}

func TestSettingsReconfigureAnalyticsAndPersist(t *testing.T) {
	svc, _ := newTestService(t)
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "debug", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)

	tracker := analytics.NewService(config.AnalyticsConfig{}, nil, log)
	svc.SetAnalytics(tracker)
	path := filepath.Join(t.TempDir(), "settings", "settings.yaml")
	svc.SetSettingsPath(path)

	_, err = svc.UpdateSettings(Settings{
		DefaultExecutor:  "claude",
		AnalyticsEnabled: true,
		AnalyticsUserID:  "u-2",
	})
	require.NoError(t, err)

	assert.True(t, tracker.Enabled())
	assert.Equal(t, "u-2", tracker.Config().UserID)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "analytics_user_id: u-2")
}
