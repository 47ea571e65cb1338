package worktree

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codecommand/codecommand/internal/common/logger"
)

// Manager handles Git worktree operations for concurrent attempt execution.
// Git serializes some worktree operations via the repository lock file, so
// all mutations on one repository go through a per-repository mutex.
type Manager struct {
	config     Config
	logger     *logger.Logger
	repoLocks  map[string]*sync.Mutex
	repoLockMu sync.Mutex
}

// Worktree describes a provisioned worktree.
type Worktree struct {
	Path       string
	Branch     string
	BaseBranch string
}

// CreateRequest carries the inputs for provisioning a worktree.
type CreateRequest struct {
	// RepositoryPath is the path of the project's main repository.
	RepositoryPath string
	// TaskID is used for fallback naming when the title sanitizes to nothing.
	TaskID string
	// TaskTitle seeds the semantic worktree and branch names.
	TaskTitle string
	// BaseBranch is the branch the worktree starts from; empty selects the
	// configured default.
	BaseBranch string
}

// Validate checks the request for required fields.
func (r *CreateRequest) Validate() error {
	if r.RepositoryPath == "" {
		return fmt.Errorf("repository path is required")
	}
	if r.TaskID == "" {
		return fmt.Errorf("task id is required")
	}
	return nil
}

// NewManager creates a new worktree manager.
func NewManager(cfg Config, log *logger.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if log == nil {
		log = logger.Default()
	}

	// Ensure base directory exists
	basePath, err := cfg.ExpandedBasePath()
	if err != nil {
		return nil, fmt.Errorf("failed to expand base path: %w", err)
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create worktree base directory: %w", err)
	}

	return &Manager{
		config:    cfg,
		logger:    log.WithFields(zap.String("component", "worktree-manager")),
		repoLocks: make(map[string]*sync.Mutex),
	}, nil
}

// getRepoLock returns a mutex for the given repository path.
func (m *Manager) getRepoLock(repoPath string) *sync.Mutex {
	m.repoLockMu.Lock()
	defer m.repoLockMu.Unlock()

	if lock, exists := m.repoLocks[repoPath]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	m.repoLocks[repoPath] = lock
	return lock
}

// Create provisions a fresh worktree with its own branch off the base branch.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Worktree, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	baseBranch := req.BaseBranch
	if baseBranch == "" {
		baseBranch = m.config.DefaultBranch
	}

	if !m.isGitRepo(req.RepositoryPath) {
		return nil, ErrRepoNotGit
	}

	if !m.branchExists(ctx, req.RepositoryPath, baseBranch) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBaseBranch, baseBranch)
	}

	repoLock := m.getRepoLock(req.RepositoryPath)
	repoLock.Lock()
	defer repoLock.Unlock()

	dirSuffix := uuid.New().String()[:8]
	branchSuffix := SmallSuffix(3)
	prefix := NormalizeBranchPrefix(m.config.BranchPrefix)

	worktreeDirName := SemanticWorktreeName(req.TaskTitle, dirSuffix)
	sanitizedTitle := SanitizeForBranch(req.TaskTitle, 20)
	if sanitizedTitle == "" {
		sanitizedTitle = SanitizeForBranch(req.TaskID, 20)
	}
	branchName := prefix + sanitizedTitle + "-" + branchSuffix

	worktreePath, err := m.config.WorktreePath(worktreeDirName)
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree path: %w", err)
	}

	// git worktree add -b <branch> <path> <base-branch>
	cmd := exec.CommandContext(ctx, "git", "worktree", "add",
		"-b", branchName,
		worktreePath,
		baseBranch)
	cmd.Dir = req.RepositoryPath

	output, err := cmd.CombinedOutput()
	if err != nil {
		m.logger.Error("git worktree add failed",
			zap.String("output", string(output)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s", ErrGitCommandFailed, string(output))
	}

	m.logger.Info("created worktree",
		zap.String("task_id", req.TaskID),
		zap.String("path", worktreePath),
		zap.String("branch", branchName),
		zap.String("base_branch", baseBranch))

	return &Worktree{
		Path:       worktreePath,
		Branch:     branchName,
		BaseBranch: baseBranch,
	}, nil
}

// Remove tears down a worktree directory and, best effort, its branch.
func (m *Manager) Remove(ctx context.Context, repoPath, worktreePath, branch string) error {
	repoLock := m.getRepoLock(repoPath)
	repoLock.Lock()
	defer repoLock.Unlock()

	if err := m.removeWorktreeDir(ctx, worktreePath, repoPath); err != nil {
		m.logger.Warn("failed to remove worktree directory",
			zap.String("path", worktreePath),
			zap.Error(err))
		return err
	}

	if branch != "" {
		cmd := exec.CommandContext(ctx, "git", "branch", "-D", branch)
		cmd.Dir = repoPath
		if output, err := cmd.CombinedOutput(); err != nil {
			m.logger.Warn("failed to delete worktree branch",
				zap.String("branch", branch),
				zap.String("output", string(output)),
				zap.Error(err))
		}
	}

	m.logger.Info("removed worktree",
		zap.String("path", worktreePath),
		zap.String("branch", branch))

	return nil
}

// Diff returns the changes in the worktree relative to the base branch.
func (m *Manager) Diff(ctx context.Context, worktreePath, baseBranch string) (string, error) {
	if baseBranch == "" {
		baseBranch = m.config.DefaultBranch
	}

	cmd := exec.CommandContext(ctx, "git", "diff", baseBranch)
	cmd.Dir = worktreePath

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%w: %s", ErrGitCommandFailed, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("%w: %v", ErrGitCommandFailed, err)
	}
	return string(out), nil
}

// IsValid checks if a worktree directory is valid and usable.
func (m *Manager) IsValid(path string) bool {
	// Check directory exists
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}

	// Worktrees have a .git file, not a directory
	gitFile := filepath.Join(path, ".git")
	content, err := os.ReadFile(gitFile)
	if err != nil {
		return false
	}

	// .git file should contain "gitdir: <path>"
	if !strings.HasPrefix(string(content), "gitdir:") {
		return false
	}

	return true
}

// isGitRepo checks if a path is a Git repository.
func (m *Manager) isGitRepo(path string) bool {
	gitDir := filepath.Join(path, ".git")
	info, err := os.Stat(gitDir)
	if err != nil {
		return false
	}
	// .git can be either a directory (regular repo) or a file (worktree)
	return info.IsDir() || info.Mode().IsRegular()
}

// branchExists checks if a branch exists in the repository.
func (m *Manager) branchExists(ctx context.Context, repoPath, branch string) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--verify", branch)
	cmd.Dir = repoPath
	return cmd.Run() == nil
}

// removeWorktreeDir removes a worktree directory using git worktree remove.
func (m *Manager) removeWorktreeDir(ctx context.Context, worktreePath, repoPath string) error {
	// First try git worktree remove
	cmd := exec.CommandContext(ctx, "git", "worktree", "remove", "--force", worktreePath)
	cmd.Dir = repoPath
	if output, err := cmd.CombinedOutput(); err != nil {
		m.logger.Debug("git worktree remove failed, falling back to rm",
			zap.String("output", string(output)),
			zap.Error(err))

		// Fallback to direct removal
		if err := os.RemoveAll(worktreePath); err != nil {
			return err
		}

		// Prune stale worktree entries
		cmd = exec.CommandContext(ctx, "git", "worktree", "prune")
		cmd.Dir = repoPath
		if err := cmd.Run(); err != nil {
			m.logger.Debug("git worktree prune failed", zap.Error(err))
		}
	}
	return nil
}
