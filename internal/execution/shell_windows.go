//go:build windows

package execution

// shellExecArgs returns the program and arguments needed to execute a command
// string through the system shell.
// On Windows: cmd /C "command"
func shellExecArgs(command string) (prog string, args []string) {
	return "cmd", []string{"/C", command}
}
