// Package execution supervises the child processes behind task attempts.
//
// Every coding agent, setup script, and dev server runs as a shell child in
// its own process group, with stdin/stdout/stderr piped and output captured
// into memory-bounded ring buffers. A Child is the owned handle for one such
// process; the Registry tracks every live Child and implements the stop
// escalation (SIGINT → SIGTERM → SIGKILL against the whole group).
//
// Lifecycle:
//  1. Spawn() - starts the child in a new process group, returns immediately
//  2. Background goroutines - drain stdout/stderr, wait for exit
//  3. TryWait() - non-blocking poll used by the registry's reap cycle
//  4. Registry.Stop() - escalating group signals, final Kill()+Wait() to reap
package execution

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// defaultBufferMaxBytes bounds how much of each output stream is kept in
// memory. A chatty dev server keeps only its most recent output.
const defaultBufferMaxBytes = 2 * 1024 * 1024 // 2MB

// ringBuffer provides memory-bounded FIFO storage for one output stream.
//
// This prevents out-of-memory errors when children produce large amounts of
// output (verbose builds, long-running dev servers). When the buffer exceeds
// maxBytes, the oldest chunks are evicted.
type ringBuffer struct {
	mu       sync.Mutex
	maxBytes int64
	size     int64
	chunks   [][]byte
}

func newRingBuffer(maxBytes int64) *ringBuffer {
	if maxBytes <= 0 {
		maxBytes = defaultBufferMaxBytes
	}
	return &ringBuffer{maxBytes: maxBytes}
}

// append adds a chunk, evicting the oldest chunks if over the size limit.
func (b *ringBuffer) append(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	chunk := make([]byte, len(data))
	copy(chunk, data)
	b.chunks = append(b.chunks, chunk)
	b.size += int64(len(chunk))

	for b.size > b.maxBytes && len(b.chunks) > 0 {
		removed := b.chunks[0]
		b.size -= int64(len(removed))
		b.chunks = b.chunks[1:]
	}
}

// String returns the buffered stream contents at the current moment.
// Safe to call concurrently with append().
func (b *ringBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []byte
	for _, chunk := range b.chunks {
		out = append(out, chunk...)
	}
	return string(out)
}

// ExitStatus describes how a child terminated. Code is nil when the process
// was ended by a signal rather than exiting on its own.
type ExitStatus struct {
	Code    *int64
	Success bool
}

// Spec describes a child to spawn. The command string is run through the
// platform shell (sh -c / cmd /C) so setup and dev scripts may use pipelines.
type Spec struct {
	Command string            // required: shell command line
	Dir     string            // working directory, typically the attempt worktree
	Env     map[string]string // extra environment, merged over the parent env
}

// Child is the owned handle for one spawned process.
//
// The underlying process runs in its own group so the whole tree (npx, node,
// build tools the agent forks) can be signaled together. Spawning arms a
// kill-on-release safety net: cancelling the spawn context kills the group,
// so abandoned handles are not leaked as zombies.
type Child struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *ringBuffer
	stderr *ringBuffer

	done    chan struct{} // closed once the child has been reaped
	waitErr error         // written by the waiter goroutine before done closes
}

// Spawn starts the command described by spec in a new process group with all
// three standard streams piped. It returns once the process has started;
// output draining and exit reaping continue in background goroutines.
//
// Cancelling ctx kills the entire process group.
func Spawn(ctx context.Context, spec Spec) (*Child, error) {
	if spec.Command == "" {
		return nil, fmt.Errorf("command is required")
	}

	prog, args := shellExecArgs(spec.Command)
	cmd := exec.CommandContext(ctx, prog, args...)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	cmd.Env = mergeEnv(spec.Env)
	setProcGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach stderr: %w", err)
	}

	child := &Child{
		cmd:    cmd,
		stdin:  stdin,
		stdout: newRingBuffer(defaultBufferMaxBytes),
		stderr: newRingBuffer(defaultBufferMaxBytes),
		done:   make(chan struct{}),
	}

	// Kill the whole group, not just the shell, when the context is
	// cancelled. Grandchildren would otherwise outlive the handle.
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return os.ErrProcessDone
		}
		return killProcessGroup(cmd.Process.Pid)
	}
	// Bound the time between a context cancellation and a forced kill in
	// case the group signal did not land.
	cmd.WaitDelay = 5 * time.Second

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go child.readOutput(&readers, stdout, child.stdout)
	go child.readOutput(&readers, stderr, child.stderr)
	go child.wait(&readers)

	return child, nil
}

// mergeEnv merges extra variables over the parent environment.
func mergeEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

// readOutput drains one pipe into its ring buffer until EOF or the pipe is
// closed out from under us by Wait.
func (c *Child) readOutput(readers *sync.WaitGroup, reader io.ReadCloser, buffer *ringBuffer) {
	defer readers.Done()
	buf := bufio.NewReader(reader)
	data := make([]byte, 4096)
	for {
		n, err := buf.Read(data)
		if n > 0 {
			buffer.append(data[:n])
		}
		if err != nil {
			return
		}
	}
}

// wait reaps the child and records its final state. Runs in a background
// goroutine spawned by Spawn; it is the only caller of cmd.Wait.
//
// The readers are awaited before the reap so that by the time Done closes,
// Stdout and Stderr hold the complete output. The pipes reach EOF when the
// last process in the group releases them, so a still-streaming grandchild
// keeps the execution observable as running.
func (c *Child) wait(readers *sync.WaitGroup) {
	readers.Wait()
	err := c.cmd.Wait()
	c.waitErr = err
	close(c.done)
}

// Pid returns the OS process id of the shell leading the group.
func (c *Child) Pid() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// SendStdin writes data to the child's stdin and closes it. Agents receive
// their whole prompt this way and must not await further input.
func (c *Child) SendStdin(data string) error {
	if _, err := io.WriteString(c.stdin, data); err != nil {
		_ = c.stdin.Close()
		return fmt.Errorf("failed to write stdin: %w", err)
	}
	if err := c.stdin.Close(); err != nil {
		return fmt.Errorf("failed to close stdin: %w", err)
	}
	return nil
}

// Done returns a channel closed once the child has been reaped.
func (c *Child) Done() <-chan struct{} {
	return c.done
}

// TryWait polls the child without blocking.
//
// It returns (nil, nil) while the child is still running, the exit status
// once it has been reaped, and an error when the child could not be waited
// on at all (the caller treats that as a failure with no exit code).
// Once TryWait reports an exit, Stdout and Stderr are complete.
func (c *Child) TryWait() (*ExitStatus, error) {
	select {
	case <-c.done:
	default:
		return nil, nil
	}

	if state := c.cmd.ProcessState; state != nil {
		status := &ExitStatus{Success: state.Success()}
		if state.Exited() {
			code := int64(state.ExitCode())
			status.Code = &code
		}
		return status, nil
	}
	return nil, c.waitErr
}

// Wait blocks until the child has been reaped and returns its exit status.
// Used by the stop path after a kill, where termination is guaranteed.
func (c *Child) Wait() (*ExitStatus, error) {
	<-c.done
	return c.TryWait()
}

// Kill force-kills the direct child process. Final fallback when group
// signaling is unavailable or exhausted; the group helpers are preferred.
func (c *Child) Kill() error {
	if c.cmd.Process == nil {
		return os.ErrProcessDone
	}
	return c.cmd.Process.Kill()
}

// InterruptGroup sends SIGINT to the child's process group.
func (c *Child) InterruptGroup() error {
	pid := c.Pid()
	if pid == 0 {
		return os.ErrProcessDone
	}
	return interruptProcessGroup(pid)
}

// TerminateGroup sends SIGTERM to the child's process group.
func (c *Child) TerminateGroup() error {
	pid := c.Pid()
	if pid == 0 {
		return os.ErrProcessDone
	}
	return terminateProcessGroup(pid)
}

// KillGroup sends SIGKILL to the child's process group.
func (c *Child) KillGroup() error {
	pid := c.Pid()
	if pid == 0 {
		return os.ErrProcessDone
	}
	return killProcessGroup(pid)
}

// Stdout returns the captured stdout so far. Agents emit their streaming
// JSON here; the normalizer parses this capture after exit.
func (c *Child) Stdout() string {
	return c.stdout.String()
}

// Stderr returns the captured stderr so far.
func (c *Child) Stderr() string {
	return c.stderr.String()
}
