package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/codecommand/codecommand/internal/db"
	"github.com/codecommand/codecommand/internal/task/models"
	"github.com/codecommand/codecommand/internal/task/repository/sqlite"
)

func createTestRepo(t *testing.T) (*sqlite.Repository, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	dbConn, err := db.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("failed to open SQLite database: %v", err)
	}
	sqlxDB := sqlx.NewDb(dbConn, "sqlite3")
	repo, err := sqlite.NewWithDB(sqlxDB, sqlxDB)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}

	cleanup := func() {
		if err := sqlxDB.Close(); err != nil {
			t.Errorf("failed to close sqlite db: %v", err)
		}
	}
	return repo, cleanup
}

func mustCreateProject(t *testing.T, repo *sqlite.Repository) *models.Project {
	t.Helper()
	project := &models.Project{Name: "demo", GitRepoPath: "/repos/demo"}
	if err := repo.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return project
}

func mustCreateTask(t *testing.T, repo *sqlite.Repository, projectID string) *models.Task {
	t.Helper()
	task := &models.Task{ProjectID: projectID, Title: "do the thing"}
	if err := repo.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func mustCreateAttempt(t *testing.T, repo *sqlite.Repository, taskID string) *models.TaskAttempt {
	t.Helper()
	attempt := &models.TaskAttempt{
		TaskID:       taskID,
		Branch:       "codecommand/attempt-1",
		WorktreePath: "/worktrees/attempt-1",
		Executor:     models.ExecutorClaude,
	}
	if err := repo.CreateTaskAttempt(context.Background(), attempt); err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	return attempt
}

func TestRepository_ProjectCRUD(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	setup := "npm install"
	project := &models.Project{Name: "web", GitRepoPath: "/repos/web", SetupScript: &setup}
	if err := repo.CreateProject(ctx, project); err != nil {
		t.Fatalf("create project: %v", err)
	}
	if project.ID == "" {
		t.Fatal("expected generated project id")
	}

	got, err := repo.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if got.Name != "web" || got.GitRepoPath != "/repos/web" {
		t.Errorf("got project %+v", got)
	}
	if got.SetupScript == nil || *got.SetupScript != "npm install" {
		t.Errorf("setup script = %v, want npm install", got.SetupScript)
	}
	if got.DevScript != nil {
		t.Errorf("dev script = %v, want nil", got.DevScript)
	}

	got.Name = "web2"
	if err := repo.UpdateProject(ctx, got); err != nil {
		t.Fatalf("update project: %v", err)
	}
	updated, err := repo.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("get updated project: %v", err)
	}
	if updated.Name != "web2" {
		t.Errorf("updated name = %q, want web2", updated.Name)
	}

	projects, err := repo.ListProjects(ctx)
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("got %d projects, want 1", len(projects))
	}

	if err := repo.DeleteProject(ctx, project.ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if _, err := repo.GetProject(ctx, project.ID); err == nil {
		t.Error("expected not-found after delete")
	}
	if err := repo.DeleteProject(ctx, project.ID); err == nil {
		t.Error("expected error deleting missing project")
	}
}

func TestRepository_TaskCRUD(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	project := mustCreateProject(t, repo)

	desc := "with description"
	task := &models.Task{ProjectID: project.ID, Title: "first", Description: &desc}
	if err := repo.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != models.TaskStatusTodo {
		t.Errorf("default status = %q, want todo", task.Status)
	}

	got, err := repo.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Description == nil || *got.Description != desc {
		t.Errorf("description = %v, want %q", got.Description, desc)
	}

	got.Status = models.TaskStatusInProgress
	got.Title = "renamed"
	if err := repo.UpdateTask(ctx, got); err != nil {
		t.Fatalf("update task: %v", err)
	}
	updated, _ := repo.GetTask(ctx, task.ID)
	if updated.Status != models.TaskStatusInProgress || updated.Title != "renamed" {
		t.Errorf("updated task = %+v", updated)
	}

	second := mustCreateTask(t, repo, project.ID)
	tasks, err := repo.ListTasks(ctx, project.ID, "")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}

	matched, err := repo.ListTasks(ctx, project.ID, "renam")
	if err != nil {
		t.Fatalf("search tasks: %v", err)
	}
	if len(matched) != 1 || matched[0].Title != "renamed" {
		t.Errorf("search returned %d tasks, want the renamed one", len(matched))
	}

	if err := repo.DeleteTask(ctx, second.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if _, err := repo.GetTask(ctx, second.ID); err == nil {
		t.Error("expected not-found after delete")
	}
}

func TestRepository_DeleteProjectCascades(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	project := mustCreateProject(t, repo)
	task := mustCreateTask(t, repo, project.ID)
	attempt := mustCreateAttempt(t, repo, task.ID)

	if err := repo.DeleteProject(ctx, project.ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if _, err := repo.GetTask(ctx, task.ID); err == nil {
		t.Error("task survived project delete")
	}
	if _, err := repo.GetTaskAttempt(ctx, attempt.ID); err == nil {
		t.Error("attempt survived project delete")
	}
}

func TestRepository_AttemptRoundTrip(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	project := mustCreateProject(t, repo)
	task := mustCreateTask(t, repo, project.ID)
	attempt := mustCreateAttempt(t, repo, task.ID)

	got, err := repo.GetTaskAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if got.Executor != models.ExecutorClaude {
		t.Errorf("executor = %q, want claude", got.Executor)
	}
	if got.Branch != "codecommand/attempt-1" {
		t.Errorf("branch = %q", got.Branch)
	}

	attempts, err := repo.ListTaskAttempts(ctx, task.ID)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("got %d attempts, want 1", len(attempts))
	}
}

func TestRepository_ProcessLifecycle(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	project := mustCreateProject(t, repo)
	task := mustCreateTask(t, repo, project.ID)
	attempt := mustCreateAttempt(t, repo, task.ID)

	process := &models.ExecutionProcess{
		TaskAttemptID: attempt.ID,
		Kind:          models.ProcessKindCodingAgent,
	}
	if err := repo.CreateExecutionProcess(ctx, process); err != nil {
		t.Fatalf("create process: %v", err)
	}
	if process.Status != models.ProcessStatusRunning {
		t.Errorf("initial status = %q, want running", process.Status)
	}

	running, err := repo.GetLatestRunningProcessForAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("get latest running: %v", err)
	}
	if running.ID != process.ID {
		t.Errorf("latest running id = %q, want %q", running.ID, process.ID)
	}

	if err := repo.UpdateExecutionProcessOutput(ctx, process.ID, "partial out", ""); err != nil {
		t.Fatalf("update output: %v", err)
	}

	exitCode := int64(0)
	if err := repo.CompleteExecutionProcess(ctx, process.ID, models.ProcessStatusCompleted, &exitCode, "full out", "some err"); err != nil {
		t.Fatalf("complete process: %v", err)
	}

	got, err := repo.GetExecutionProcess(ctx, process.ID)
	if err != nil {
		t.Fatalf("get process: %v", err)
	}
	if got.Status != models.ProcessStatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.ExitCode == nil || *got.ExitCode != 0 {
		t.Errorf("exit code = %v, want 0", got.ExitCode)
	}
	if got.Stdout != "full out" || got.Stderr != "some err" {
		t.Errorf("captured output = %q / %q", got.Stdout, got.Stderr)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}

	// A terminal row never transitions again.
	if err := repo.CompleteExecutionProcess(ctx, process.ID, models.ProcessStatusKilled, nil, "", ""); err == nil {
		t.Error("expected error completing a terminal process")
	}
	after, _ := repo.GetExecutionProcess(ctx, process.ID)
	if after.Status != models.ProcessStatusCompleted {
		t.Errorf("status changed to %q after double complete", after.Status)
	}

	if _, err := repo.GetLatestRunningProcessForAttempt(ctx, attempt.ID); err == nil {
		t.Error("expected no running process after completion")
	}
}

func TestRepository_CompleteRejectsNonTerminalStatus(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()

	err := repo.CompleteExecutionProcess(context.Background(), "any", models.ProcessStatusRunning, nil, "", "")
	if err == nil {
		t.Fatal("expected error for non-terminal status")
	}
}

func TestRepository_RecoverOrphanedProcesses(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	project := mustCreateProject(t, repo)
	task := mustCreateTask(t, repo, project.ID)
	attempt := mustCreateAttempt(t, repo, task.ID)

	for i := 0; i < 2; i++ {
		process := &models.ExecutionProcess{TaskAttemptID: attempt.ID, Kind: models.ProcessKindCodingAgent}
		if err := repo.CreateExecutionProcess(ctx, process); err != nil {
			t.Fatalf("create process: %v", err)
		}
	}
	done := &models.ExecutionProcess{TaskAttemptID: attempt.ID, Kind: models.ProcessKindSetupScript}
	if err := repo.CreateExecutionProcess(ctx, done); err != nil {
		t.Fatalf("create process: %v", err)
	}
	code := int64(0)
	if err := repo.CompleteExecutionProcess(ctx, done.ID, models.ProcessStatusCompleted, &code, "", ""); err != nil {
		t.Fatalf("complete process: %v", err)
	}

	recovered, err := repo.RecoverOrphanedProcesses(ctx)
	if err != nil {
		t.Fatalf("recover orphaned: %v", err)
	}
	if recovered != 2 {
		t.Errorf("recovered %d rows, want 2", recovered)
	}

	processes, err := repo.ListExecutionProcesses(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("list processes: %v", err)
	}
	for _, p := range processes {
		if p.Status == models.ProcessStatusRunning {
			t.Errorf("process %s still running after recovery", p.ID)
		}
	}
	keptCompleted, _ := repo.GetExecutionProcess(ctx, done.ID)
	if keptCompleted.Status != models.ProcessStatusCompleted {
		t.Errorf("completed row changed to %q", keptCompleted.Status)
	}
}

func TestRepository_ExecutorSessions(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	project := mustCreateProject(t, repo)
	task := mustCreateTask(t, repo, project.ID)
	attempt := mustCreateAttempt(t, repo, task.ID)
	process := &models.ExecutionProcess{TaskAttemptID: attempt.ID, Kind: models.ProcessKindCodingAgent}
	if err := repo.CreateExecutionProcess(ctx, process); err != nil {
		t.Fatalf("create process: %v", err)
	}

	// No session captured yet.
	sid, err := repo.GetSessionIDForAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("get session id: %v", err)
	}
	if sid != nil {
		t.Errorf("session id = %v, want nil", sid)
	}

	prompt := "Task title: do the thing"
	session := &models.ExecutorSession{
		ExecutionProcessID: process.ID,
		TaskAttemptID:      attempt.ID,
		Prompt:             &prompt,
	}
	if err := repo.CreateExecutorSession(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := repo.UpdateExecutorSessionID(ctx, process.ID, "sess-abc"); err != nil {
		t.Fatalf("update session id: %v", err)
	}
	// The recorded id is monotonic; later observations are ignored.
	if err := repo.UpdateExecutorSessionID(ctx, process.ID, "sess-other"); err != nil {
		t.Fatalf("second update session id: %v", err)
	}

	got, err := repo.GetExecutorSessionByProcessID(ctx, process.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.SessionID == nil || *got.SessionID != "sess-abc" {
		t.Errorf("session id = %v, want sess-abc", got.SessionID)
	}
	if got.Prompt == nil || *got.Prompt != prompt {
		t.Errorf("prompt = %v, want %q", got.Prompt, prompt)
	}

	sid, err = repo.GetSessionIDForAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("get session id: %v", err)
	}
	if sid == nil || *sid != "sess-abc" {
		t.Errorf("attempt session id = %v, want sess-abc", sid)
	}

	if err := repo.UpdateExecutorSessionSummary(ctx, process.ID, "did the thing"); err != nil {
		t.Fatalf("update summary: %v", err)
	}
	got, _ = repo.GetExecutorSessionByProcessID(ctx, process.ID)
	if got.Summary == nil || *got.Summary != "did the thing" {
		t.Errorf("summary = %v, want did the thing", got.Summary)
	}
}

func TestRepository_Activities(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	project := mustCreateProject(t, repo)
	task := mustCreateTask(t, repo, project.ID)
	attempt := mustCreateAttempt(t, repo, task.ID)

	for _, kind := range []string{models.ActivityAttemptCreated, models.ActivityProcessStarted, models.ActivityProcessCompleted} {
		activity := &models.TaskAttemptActivity{TaskAttemptID: attempt.ID, Kind: kind}
		if err := repo.CreateTaskAttemptActivity(ctx, activity); err != nil {
			t.Fatalf("create activity %s: %v", kind, err)
		}
	}

	activities, err := repo.ListTaskAttemptActivities(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(activities) != 3 {
		t.Fatalf("got %d activities, want 3", len(activities))
	}
	if activities[0].Kind != models.ActivityAttemptCreated {
		t.Errorf("first activity = %q, want attempt_created", activities[0].Kind)
	}
	if activities[0].Payload != "{}" {
		t.Errorf("default payload = %q, want {}", activities[0].Payload)
	}
}
