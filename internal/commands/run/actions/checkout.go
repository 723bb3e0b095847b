package actions

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// checkoutAction materializes a git repository in the workspace. With no
// `repository` input it assumes the workspace already holds a clone and
// only switches refs when asked to.
type checkoutAction struct{}

func (a *checkoutAction) Run(ctx context.Context, inv Invocation, logWriter io.Writer) error {
	dir := inv.Workspace
	if path := inv.input("path"); path != "" {
		dir = filepath.Join(inv.Workspace, path)
	}

	repository := inv.input("repository")

	ref := inv.input("ref")
	if ref == "" && inv.Event != nil {
		ref = inv.Event.ShortRef()
	}

	if repository == "" {
		return a.checkoutLocal(ctx, dir, ref, logWriter)
	}

	return a.clone(ctx, repository, dir, ref, inv.input("depth"), logWriter)
}

func (a *checkoutAction) checkoutLocal(ctx context.Context, dir, ref string, logWriter io.Writer) error {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		fmt.Fprintf(logWriter, "no repository input and no git checkout in %s, using workspace as is\n", dir)

		return nil
	}

	if ref == "" {
		return nil
	}

	if err := a.git(ctx, dir, logWriter, "checkout", ref); err != nil {
		return fmt.Errorf("checkout ref %q: %w", ref, err)
	}

	return nil
}

func (a *checkoutAction) clone(ctx context.Context, repository, dir, ref, depth string, logWriter io.Writer) error {
	args := []string{"clone"}

	if depth != "" {
		if _, err := strconv.Atoi(depth); err != nil {
			return fmt.Errorf("invalid depth %q: %w", depth, err)
		}

		args = append(args, "--depth", depth)
	}

	if ref != "" {
		args = append(args, "--branch", ref)
	}

	args = append(args, repository, dir)

	if err := a.git(ctx, "", logWriter, args...); err != nil {
		return fmt.Errorf("clone %q: %w", repository, err)
	}

	return nil
}

func (a *checkoutAction) git(ctx context.Context, dir string, logWriter io.Writer, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Stdout = logWriter
	cmd.Stderr = logWriter

	return cmd.Run()
}
