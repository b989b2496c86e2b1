package certificates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner executes system commands.
type CommandRunner interface {
	Run(ctx context.Context, executable string, arguments []string) error
}

// CommandError describes a command that could not start or exited unsuccessfully.
type CommandError struct {
	Executable string
	Arguments  []string
	ExitCode   int
	Stderr     string
	Err        error
}

func (commandError *CommandError) Error() string {
	stderrText := strings.TrimSpace(commandError.Stderr)
	if stderrText == "" {
		return fmt.Sprintf("execute %s: %v", commandError.Executable, commandError.Err)
	}
	return fmt.Sprintf("execute %s: %v: %s", commandError.Executable, commandError.Err, stderrText)
}

func (commandError *CommandError) Unwrap() error {
	return commandError.Err
}

// ExecutableRunner executes commands using the local operating system.
type ExecutableRunner struct{}

// NewExecutableRunner constructs an ExecutableRunner.
func NewExecutableRunner() ExecutableRunner {
	return ExecutableRunner{}
}

// Run executes the executable with the provided arguments and waits for it to exit.
func (executableRunner ExecutableRunner) Run(ctx context.Context, executable string, arguments []string) error {
	command := exec.CommandContext(ctx, executable, arguments...)
	var stderrBuffer bytes.Buffer
	command.Stderr = &stderrBuffer
	err := command.Run()
	if err == nil {
		return nil
	}
	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return &CommandError{
		Executable: executable,
		Arguments:  append([]string{}, arguments...),
		ExitCode:   exitCode,
		Stderr:     stderrBuffer.String(),
		Err:        err,
	}
}
