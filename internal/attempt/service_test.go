package attempt

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codecommand/codecommand/internal/common/logger"
	"github.com/codecommand/codecommand/internal/db"
	"github.com/codecommand/codecommand/internal/events/bus"
	"github.com/codecommand/codecommand/internal/execution"
	"github.com/codecommand/codecommand/internal/executor"
	"github.com/codecommand/codecommand/internal/task/models"
	"github.com/codecommand/codecommand/internal/task/repository/sqlite"
	"github.com/codecommand/codecommand/internal/worktree"
)

type testEnv struct {
	service  *Service
	monitor  *Monitor
	repo     *sqlite.Repository
	registry *execution.Registry
	bus      *bus.MemoryEventBus
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      "debug",
		Format:     "console",
		OutputPath: "stdout",
	})
	require.NoError(t, err)
	return log
}

func newTestEnv(t *testing.T, profiles executor.Profiles) *testEnv {
	t.Helper()
	log := newTestLogger(t)

	dbConn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(dbConn, "sqlite3")
	repo, err := sqlite.NewWithDB(sqlxDB, sqlxDB)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlxDB.Close() })

	registry := execution.NewRegistry(log)
	t.Cleanup(registry.StopAll)

	manager, err := worktree.NewManager(worktree.Config{
		BasePath:      filepath.Join(t.TempDir(), "worktrees"),
		DefaultBranch: "main",
	}, log)
	require.NoError(t, err)

	memBus := bus.NewMemoryEventBus(log)
	t.Cleanup(func() { memBus.Close() })

	service := NewService(repo, registry, manager, executor.NewFactory(profiles), memBus, log)

	return &testEnv{
		service:  service,
		monitor:  NewMonitor(service, 10*time.Millisecond, log),
		repo:     repo,
		registry: registry,
		bus:      memBus,
	}
}

func seedProject(t *testing.T, env *testEnv, setupScript, devScript *string) *models.Project {
	t.Helper()
	project := &models.Project{
		Name:        "demo",
		GitRepoPath: "/repos/demo",
		SetupScript: setupScript,
		DevScript:   devScript,
	}
	require.NoError(t, env.repo.CreateProject(context.Background(), project))
	return project
}

func seedTask(t *testing.T, env *testEnv, projectID string) *models.Task {
	t.Helper()
	task := &models.Task{
		ProjectID: projectID,
		Title:     "add retry logic",
	}
	require.NoError(t, env.repo.CreateTask(context.Background(), task))
	return task
}

func seedAttempt(t *testing.T, env *testEnv, taskID string, kind models.ExecutorKind) *models.TaskAttempt {
	t.Helper()
	attempt := &models.TaskAttempt{
		TaskID:       taskID,
		Branch:       "codecommand/add-retry-logic-abc",
		WorktreePath: t.TempDir(),
		Executor:     kind,
	}
	require.NoError(t, env.repo.CreateTaskAttempt(context.Background(), attempt))
	return attempt
}

// seedCompletedAgentRun persists a finished coding agent execution with a
// captured session id, the precondition for follow-ups.
func seedCompletedAgentRun(t *testing.T, env *testEnv, attemptID, sessionID string) *models.ExecutionProcess {
	t.Helper()
	ctx := context.Background()
	process := &models.ExecutionProcess{
		TaskAttemptID: attemptID,
		Kind:          models.ProcessKindCodingAgent,
	}
	require.NoError(t, env.repo.CreateExecutionProcess(ctx, process))
	prompt := "initial prompt"
	require.NoError(t, env.repo.CreateExecutorSession(ctx, &models.ExecutorSession{
		ExecutionProcessID: process.ID,
		TaskAttemptID:      attemptID,
		Prompt:             &prompt,
	}))
	require.NoError(t, env.repo.UpdateExecutorSessionID(ctx, process.ID, sessionID))
	exitCode := int64(0)
	require.NoError(t, env.repo.CompleteExecutionProcess(ctx, process.ID, models.ProcessStatusCompleted, &exitCode, "done", ""))
	return process
}

// cycleUntil runs monitor cycles until cond holds or the deadline passes.
func cycleUntil(t *testing.T, env *testEnv, cond func() bool) {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		env.monitor.cycle(ctx)
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func activityKinds(t *testing.T, env *testEnv, attemptID string) []string {
	t.Helper()
	activities, err := env.repo.ListTaskAttemptActivities(context.Background(), attemptID)
	require.NoError(t, err)
	kinds := make([]string, len(activities))
	for i, a := range activities {
		kinds[i] = a.Kind
	}
	return kinds
}

func TestCreateUnknownTask(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.service.Create(context.Background(), CreateRequest{
		TaskID:   uuid.New().String(),
		Executor: models.ExecutorEcho,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestCreateRejectsUnknownExecutor(t *testing.T) {
	env := newTestEnv(t, nil)
	project := seedProject(t, env, nil, nil)
	task := seedTask(t, env, project.ID)

	_, err := env.service.Create(context.Background(), CreateRequest{
		TaskID:   task.ID,
		Executor: models.ExecutorKind("cursor"),
	})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.False(t, verr.Conflict)
}

func TestCreateRejectsNonGitRepo(t *testing.T) {
	env := newTestEnv(t, nil)
	project := seedProject(t, env, nil, nil)
	project.GitRepoPath = t.TempDir()
	require.NoError(t, env.repo.UpdateProject(context.Background(), project))
	task := seedTask(t, env, project.ID)

	_, err := env.service.Create(context.Background(), CreateRequest{
		TaskID:   task.ID,
		Executor: models.ExecutorEcho,
	})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.False(t, verr.Conflict)
	assert.Contains(t, err.Error(), "not a git repository")
}

func TestEchoAgentLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	project := seedProject(t, env, nil, nil)
	task := seedTask(t, env, project.ID)
	attempt := seedAttempt(t, env, task.ID, models.ExecutorEcho)

	process, err := env.service.startCodingAgent(ctx, attempt, task)
	require.NoError(t, err)
	require.Equal(t, models.ProcessKindCodingAgent, process.Kind)

	cycleUntil(t, env, func() bool {
		got, err := env.repo.GetExecutionProcess(ctx, process.ID)
		return err == nil && got.Status.IsTerminal()
	})

	got, err := env.repo.GetExecutionProcess(ctx, process.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessStatusCompleted, got.Status)
	require.NotNil(t, got.ExitCode)
	assert.Equal(t, int64(0), *got.ExitCode)
	assert.Contains(t, got.Stdout, "add retry logic")
	require.NotNil(t, got.CompletedAt)

	session, err := env.repo.GetExecutorSessionByProcessID(ctx, process.ID)
	require.NoError(t, err)
	require.NotNil(t, session.Prompt)
	assert.Contains(t, *session.Prompt, "add retry logic")

	// a finished agent run moves the task to review
	gotTask, err := env.repo.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInReview, gotTask.Status)

	kinds := activityKinds(t, env, attempt.ID)
	assert.Contains(t, kinds, models.ActivityProcessStarted)
	assert.Contains(t, kinds, models.ActivityProcessCompleted)
	assert.NotContains(t, kinds, models.ActivityAttemptFailed)
}

func TestSetupScriptAdvancesToCodingAgent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	setup := "echo setup-ok"
	project := seedProject(t, env, &setup, nil)
	task := seedTask(t, env, project.ID)
	attempt := seedAttempt(t, env, task.ID, models.ExecutorEcho)

	process, err := env.service.startFirstStage(ctx, attempt, task, project)
	require.NoError(t, err)
	require.Equal(t, models.ProcessKindSetupScript, process.Kind)

	cycleUntil(t, env, func() bool {
		procs, err := env.repo.ListExecutionProcesses(ctx, attempt.ID)
		if err != nil || len(procs) != 2 {
			return false
		}
		return procs[0].Status.IsTerminal() && procs[1].Status.IsTerminal()
	})

	procs, err := env.repo.ListExecutionProcesses(ctx, attempt.ID)
	require.NoError(t, err)
	require.Len(t, procs, 2)
	assert.Equal(t, models.ProcessKindSetupScript, procs[0].Kind)
	assert.Equal(t, models.ProcessStatusCompleted, procs[0].Status)
	assert.Contains(t, procs[0].Stdout, "setup-ok")
	assert.Equal(t, models.ProcessKindCodingAgent, procs[1].Kind)
	assert.Equal(t, models.ProcessStatusCompleted, procs[1].Status)

	gotTask, err := env.repo.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInReview, gotTask.Status)
}

func TestFailedSetupScriptEndsAttempt(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	setup := "exit 7"
	project := seedProject(t, env, &setup, nil)
	task := seedTask(t, env, project.ID)
	attempt := seedAttempt(t, env, task.ID, models.ExecutorEcho)

	_, err := env.service.startFirstStage(ctx, attempt, task, project)
	require.NoError(t, err)

	cycleUntil(t, env, func() bool {
		procs, err := env.repo.ListExecutionProcesses(ctx, attempt.ID)
		return err == nil && len(procs) == 1 && procs[0].Status.IsTerminal()
	})

	// give a straggling advance a chance to appear before asserting there is none
	time.Sleep(50 * time.Millisecond)
	env.monitor.cycle(ctx)

	procs, err := env.repo.ListExecutionProcesses(ctx, attempt.ID)
	require.NoError(t, err)
	require.Len(t, procs, 1)
	assert.Equal(t, models.ProcessStatusFailed, procs[0].Status)
	require.NotNil(t, procs[0].ExitCode)
	assert.Equal(t, int64(7), *procs[0].ExitCode)

	kinds := activityKinds(t, env, attempt.ID)
	assert.Contains(t, kinds, models.ActivityProcessFailed)
	assert.Contains(t, kinds, models.ActivityAttemptFailed)
}

func TestDevServerStartsAfterAgent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	dev := "echo dev-server-up"
	project := seedProject(t, env, nil, &dev)
	task := seedTask(t, env, project.ID)
	attempt := seedAttempt(t, env, task.ID, models.ExecutorEcho)

	_, err := env.service.startFirstStage(ctx, attempt, task, project)
	require.NoError(t, err)

	cycleUntil(t, env, func() bool {
		procs, err := env.repo.ListExecutionProcesses(ctx, attempt.ID)
		if err != nil || len(procs) != 2 {
			return false
		}
		return procs[0].Status.IsTerminal() && procs[1].Status.IsTerminal()
	})

	procs, err := env.repo.ListExecutionProcesses(ctx, attempt.ID)
	require.NoError(t, err)
	require.Len(t, procs, 2)
	assert.Equal(t, models.ProcessKindCodingAgent, procs[0].Kind)
	assert.Equal(t, models.ProcessKindDevServer, procs[1].Kind)
	assert.Contains(t, procs[1].Stdout, "dev-server-up")
}

func TestFollowUpConflictWhileRunning(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	project := seedProject(t, env, nil, nil)
	task := seedTask(t, env, project.ID)
	attempt := seedAttempt(t, env, task.ID, models.ExecutorEcho)

	_, err := env.service.startProcess(ctx, processSpawn{
		attempt: attempt,
		task:    task,
		kind:    models.ProcessKindSetupScript,
		exec:    executor.NewSetupScriptExecutor("sleep 30"),
	})
	require.NoError(t, err)

	_, err = env.service.FollowUp(ctx, attempt.ID, "keep going")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Conflict)
}

func TestFollowUpRequiresCapturedSession(t *testing.T) {
	env := newTestEnv(t, nil)
	project := seedProject(t, env, nil, nil)
	task := seedTask(t, env, project.ID)
	attempt := seedAttempt(t, env, task.ID, models.ExecutorClaude)

	_, err := env.service.FollowUp(context.Background(), attempt.ID, "keep going")
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.False(t, verr.Conflict)
	assert.Contains(t, err.Error(), "session")
}

func TestFollowUpRejectsEmptyPrompt(t *testing.T) {
	env := newTestEnv(t, nil)
	project := seedProject(t, env, nil, nil)
	task := seedTask(t, env, project.ID)
	attempt := seedAttempt(t, env, task.ID, models.ExecutorClaude)

	_, err := env.service.FollowUp(context.Background(), attempt.ID, "")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrValidation)
}

func TestFollowUpUnsupportedExecutor(t *testing.T) {
	env := newTestEnv(t, nil)
	project := seedProject(t, env, nil, nil)
	task := seedTask(t, env, project.ID)
	attempt := seedAttempt(t, env, task.ID, models.ExecutorEcho)
	seedCompletedAgentRun(t, env, attempt.ID, "sess-echo")

	_, err := env.service.FollowUp(context.Background(), attempt.ID, "keep going")
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "follow-up")
}

func TestFollowUpResumesSession(t *testing.T) {
	env := newTestEnv(t, executor.Profiles{
		models.ExecutorClaude: executor.Profile{
			FollowupCommand: "echo resumed {session_id}",
		},
	})
	ctx := context.Background()
	project := seedProject(t, env, nil, nil)
	task := seedTask(t, env, project.ID)
	attempt := seedAttempt(t, env, task.ID, models.ExecutorClaude)
	seedCompletedAgentRun(t, env, attempt.ID, "sess-99")

	process, err := env.service.FollowUp(ctx, attempt.ID, "continue the work")
	require.NoError(t, err)
	require.Equal(t, models.ProcessKindCodingAgent, process.Kind)

	cycleUntil(t, env, func() bool {
		got, err := env.repo.GetExecutionProcess(ctx, process.ID)
		return err == nil && got.Status.IsTerminal()
	})

	got, err := env.repo.GetExecutionProcess(ctx, process.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessStatusCompleted, got.Status)
	assert.Contains(t, got.Stdout, "resumed sess-99")

	session, err := env.repo.GetExecutorSessionByProcessID(ctx, process.ID)
	require.NoError(t, err)
	require.NotNil(t, session.Prompt)
	assert.Equal(t, "continue the work", *session.Prompt)

	assert.Contains(t, activityKinds(t, env, attempt.ID), models.ActivityFollowUpStarted)
}

func TestStopMarksRowKilledWithoutLiveChild(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	project := seedProject(t, env, nil, nil)
	task := seedTask(t, env, project.ID)
	attempt := seedAttempt(t, env, task.ID, models.ExecutorEcho)

	process := &models.ExecutionProcess{
		TaskAttemptID: attempt.ID,
		Kind:          models.ProcessKindCodingAgent,
	}
	require.NoError(t, env.repo.CreateExecutionProcess(ctx, process))
	require.NoError(t, env.repo.UpdateExecutionProcessOutput(ctx, process.ID, "partial out", "partial err"))

	require.NoError(t, env.service.Stop(ctx, attempt.ID))

	got, err := env.repo.GetExecutionProcess(ctx, process.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessStatusKilled, got.Status)
	assert.Nil(t, got.ExitCode)
	assert.Equal(t, "partial out", got.Stdout)
	assert.Equal(t, "partial err", got.Stderr)
	require.NotNil(t, got.CompletedAt)

	assert.Contains(t, activityKinds(t, env, attempt.ID), models.ActivityProcessKilled)
}

func TestStopKillsLiveChild(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	project := seedProject(t, env, nil, nil)
	task := seedTask(t, env, project.ID)
	attempt := seedAttempt(t, env, task.ID, models.ExecutorEcho)

	process, err := env.service.startProcess(ctx, processSpawn{
		attempt: attempt,
		task:    task,
		kind:    models.ProcessKindSetupScript,
		exec:    executor.NewSetupScriptExecutor("sleep 30"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, env.registry.Len())

	require.NoError(t, env.service.Stop(ctx, attempt.ID))

	assert.Equal(t, 0, env.registry.Len())
	got, err := env.repo.GetExecutionProcess(ctx, process.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessStatusKilled, got.Status)

	// the killed execution never reaches the monitor
	env.monitor.cycle(ctx)
	got, err = env.repo.GetExecutionProcess(ctx, process.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessStatusKilled, got.Status)
}

func TestStopWithoutRunningExecution(t *testing.T) {
	env := newTestEnv(t, nil)
	project := seedProject(t, env, nil, nil)
	task := seedTask(t, env, project.ID)
	attempt := seedAttempt(t, env, task.ID, models.ExecutorEcho)

	err := env.service.Stop(context.Background(), attempt.ID)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrValidation)
}

func TestRecoverOrphans(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	project := seedProject(t, env, nil, nil)
	task := seedTask(t, env, project.ID)
	attempt := seedAttempt(t, env, task.ID, models.ExecutorEcho)

	for i := 0; i < 2; i++ {
		process := &models.ExecutionProcess{
			TaskAttemptID: attempt.ID,
			Kind:          models.ProcessKindCodingAgent,
		}
		require.NoError(t, env.repo.CreateExecutionProcess(ctx, process))
	}

	recovered, err := env.service.RecoverOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), recovered)

	procs, err := env.repo.ListExecutionProcesses(ctx, attempt.ID)
	require.NoError(t, err)
	for _, p := range procs {
		assert.Equal(t, models.ProcessStatusFailed, p.Status)
	}
}

func TestSpawnPublishesProcessStartedEvent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	project := seedProject(t, env, nil, nil)
	task := seedTask(t, env, project.ID)
	attempt := seedAttempt(t, env, task.ID, models.ExecutorEcho)

	var mu sync.Mutex
	var received []*bus.Event
	_, err := env.bus.Subscribe("attempt.>", func(_ context.Context, event *bus.Event) error {
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	_, err = env.service.startCodingAgent(ctx, attempt, task)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, event := range received {
			if event.Type == "attempt.process_started" && event.Data["attempt_id"] == attempt.ID {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func TestValidationErrorUnwraps(t *testing.T) {
	err := NewConflictError("attempt %s busy", "a1")
	require.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Conflict)

	plain := NewValidationError("bad input")
	require.ErrorAs(t, plain, &verr)
	assert.False(t, verr.Conflict)
}
