package execution

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codecommand/codecommand/internal/common/logger"
	"github.com/codecommand/codecommand/internal/task/models"
)

// stopSignalWait is how long Stop gives the process group to exit after
// each escalation step before sending the next, stronger signal.
const stopSignalWait = 2 * time.Second

// RunningExecution pairs a live child handle with the attempt it runs for.
// Entries live only in memory; a restart reclassifies their rows as failed.
type RunningExecution struct {
	TaskAttemptID uuid.UUID
	Kind          models.ExecutionProcessKind
	Child         *Child
}

// Reaped describes one execution collected by ReapTerminated. Stdout and
// Stderr carry the complete captured output; ExitCode is nil when the child
// was ended by a signal or could not be waited on.
type Reaped struct {
	ExecutionID   uuid.UUID
	TaskAttemptID uuid.UUID
	Kind          models.ExecutionProcessKind
	Success       bool
	ExitCode      *int64
	Stdout        string
	Stderr        string
}

// Registry is the process-wide source of truth for live children.
//
// One mutex guards the whole map. Stop deliberately holds it across the
// bounded inter-signal sleeps so that stops serialize with each other and
// with the reap cycle; no other operation performs I/O under the lock.
// The map never contains an entry whose child has already been reaped and
// collected.
type Registry struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*RunningExecution
	logger  *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		entries: make(map[uuid.UUID]*RunningExecution),
		logger:  log.WithFields(zap.String("component", "execution-registry")),
	}
}

// Insert adds a new running entry under the given execution id.
func (r *Registry) Insert(executionID uuid.UUID, exec *RunningExecution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[executionID] = exec
}

// HasRunningForAttempt reports whether any live execution belongs to the
// attempt. Used to reject a second concurrent agent on one attempt.
func (r *Registry) HasRunningForAttempt(attemptID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		if entry.TaskAttemptID == attemptID {
			return true
		}
	}
	return false
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// OutputSnapshot carries the output captured so far for one live child.
type OutputSnapshot struct {
	ExecutionID uuid.UUID
	Stdout      string
	Stderr      string
}

// SnapshotOutputs returns the current captured output of every live child,
// so partial output can be persisted while an execution still runs.
func (r *Registry) SnapshotOutputs() []OutputSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshots := make([]OutputSnapshot, 0, len(r.entries))
	for id, entry := range r.entries {
		snapshots = append(snapshots, OutputSnapshot{
			ExecutionID: id,
			Stdout:      entry.Child.Stdout(),
			Stderr:      entry.Child.Stderr(),
		})
	}
	return snapshots
}

// ReapTerminated polls every entry without blocking and collects those whose
// child has exited. Exit code zero counts as success; a child that cannot be
// waited on is treated as failed with no exit code. Collected entries are
// removed from the map before returning.
func (r *Registry) ReapTerminated() []Reaped {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reaped []Reaped
	for id, entry := range r.entries {
		status, err := entry.Child.TryWait()
		if err != nil {
			r.logger.Warn("failed to poll child, treating as failed",
				zap.String("execution_id", id.String()),
				zap.Error(err))
			reaped = append(reaped, Reaped{
				ExecutionID:   id,
				TaskAttemptID: entry.TaskAttemptID,
				Kind:          entry.Kind,
				Success:       false,
				Stdout:        entry.Child.Stdout(),
				Stderr:        entry.Child.Stderr(),
			})
			continue
		}
		if status == nil {
			continue
		}
		reaped = append(reaped, Reaped{
			ExecutionID:   id,
			TaskAttemptID: entry.TaskAttemptID,
			Kind:          entry.Kind,
			Success:       status.Success,
			ExitCode:      status.Code,
			Stdout:        entry.Child.Stdout(),
			Stderr:        entry.Child.Stderr(),
		})
	}

	for _, rp := range reaped {
		delete(r.entries, rp.ExecutionID)
	}
	return reaped
}

// Stop terminates one execution with escalating severity: SIGINT, SIGTERM,
// then SIGKILL to the whole process group, waiting stopSignalWait after each.
// If the group still has not been reaped, the direct child is force-killed as
// a final fallback. The entry is removed and true returned; an unknown id
// returns false.
//
// On platforms without Unix signals the three escalation steps degrade to
// the graceful/forced taskkill pair, ending in the same fallback.
func (r *Registry) Stop(executionID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[executionID]
	if !ok {
		return false
	}
	defer delete(r.entries, executionID)

	child := entry.Child
	log := r.logger.WithFields(
		zap.String("execution_id", executionID.String()),
		zap.String("task_attempt_id", entry.TaskAttemptID.String()),
	)

	steps := []struct {
		name string
		send func() error
	}{
		{"SIGINT", child.InterruptGroup},
		{"SIGTERM", child.TerminateGroup},
		{"SIGKILL", child.KillGroup},
	}
	for _, step := range steps {
		if err := step.send(); err != nil {
			log.Debug("group signal failed", zap.String("signal", step.name), zap.Error(err))
		}
		select {
		case <-child.Done():
			log.Debug("child exited after signal", zap.String("signal", step.name))
			return true
		case <-time.After(stopSignalWait):
		}
	}

	// Escalation exhausted: kill the direct child and give the reap one
	// more bounded wait so a zombie is not left behind.
	_ = child.Kill()
	select {
	case <-child.Done():
	case <-time.After(stopSignalWait):
		log.Warn("child not reaped after kill")
	}
	return true
}

// StopAll drains the registry at shutdown, stopping every live execution.
func (r *Registry) StopAll() {
	r.mu.Lock()
	ids := make([]uuid.UUID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	if len(ids) == 0 {
		return
	}
	r.logger.Info("stopping running executions", zap.Int("count", len(ids)))
	for _, id := range ids {
		r.Stop(id)
	}
}
