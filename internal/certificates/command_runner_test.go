package certificates

import (
	"context"
	"errors"
	"os/exec"
	"testing"
)

func TestExecutableRunnerReportsExitCodeAndStderr(t *testing.T) {
	if _, lookErr := exec.LookPath("sh"); lookErr != nil {
		t.Skip("sh not available")
	}
	runner := NewExecutableRunner()

	if err := runner.Run(context.Background(), "sh", []string{"-c", "exit 0"}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	err := runner.Run(context.Background(), "sh", []string{"-c", "echo refresh failed >&2; exit 3"})
	var commandError *CommandError
	if !errors.As(err, &commandError) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if commandError.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", commandError.ExitCode)
	}
	if commandError.Stderr != "refresh failed\n" {
		t.Fatalf("unexpected stderr %q", commandError.Stderr)
	}
}

func TestExecutableRunnerReportsMissingExecutable(t *testing.T) {
	err := NewExecutableRunner().Run(context.Background(), "mimikry-definitely-missing-binary", nil)
	var commandError *CommandError
	if !errors.As(err, &commandError) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if commandError.ExitCode != -1 {
		t.Fatalf("expected exit code -1 for a missing executable, got %d", commandError.ExitCode)
	}
	if !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("expected exec.ErrNotFound, got %v", err)
	}
}
