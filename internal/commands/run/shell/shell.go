package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

var ErrUnknownShell = errors.New("unknown shell")

type Spec struct {
	Script string
	Shell  string
	Dir    string
	Env    []string
}

// Run executes a script through the requested shell, streaming combined
// output to logWriter. A non-zero exit comes back as the *exec.ExitError.
func Run(ctx context.Context, spec Spec, logWriter io.Writer) error {
	name, args, err := command(spec.Shell, spec.Script)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdout = logWriter
	cmd.Stderr = logWriter

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		return fmt.Errorf("run script: %w", err)
	}

	return nil
}

func command(shell, script string) (string, []string, error) {
	switch shell {
	case "", "bash":
		return "bash", []string{"-e", "-o", "pipefail", "-c", script}, nil

	case "sh":
		return "sh", []string{"-e", "-c", script}, nil

	case "python":
		return "python", []string{"-c", script}, nil

	case "pwsh":
		return "pwsh", []string{"-Command", script}, nil
	}

	return "", nil, fmt.Errorf("%w: %q", ErrUnknownShell, shell)
}
