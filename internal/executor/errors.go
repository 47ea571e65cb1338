package executor

import "fmt"

// SpawnError reports a failure to start an agent process. It keeps the
// full command line and working directory so operators can reproduce the
// launch by hand.
type SpawnError struct {
	Command string
	Dir     string
	TaskID  string
	Context string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn failed (%s) for task %s: command %q in %s: %v",
		e.Context, e.TaskID, e.Command, e.Dir, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// StdinError reports a failure to deliver the prompt to an already
// started agent. The child group is killed before this error is returned.
type StdinError struct {
	Command string
	Dir     string
	TaskID  string
	Context string
	Err     error
}

func (e *StdinError) Error() string {
	return fmt.Sprintf("prompt delivery failed (%s) for task %s: command %q in %s: %v",
		e.Context, e.TaskID, e.Command, e.Dir, e.Err)
}

func (e *StdinError) Unwrap() error { return e.Err }
