//go:build !windows

package execution

// shellExecArgs returns the program and arguments needed to execute a command
// string through the system shell.
// On Unix: sh -c "command"
func shellExecArgs(command string) (prog string, args []string) {
	return "sh", []string{"-c", command}
}
