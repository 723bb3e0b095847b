package actions

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// uploadArtifactAction copies `path` into the run's artifact directory
// under `name`.
type uploadArtifactAction struct{}

func (a *uploadArtifactAction) Run(_ context.Context, inv Invocation, logWriter io.Writer) error {
	source, err := inv.requiredInput("path")
	if err != nil {
		return err
	}

	name := inv.input("name")
	if name == "" {
		name = "artifact"
	}

	if inv.ArtifactDir == "" {
		return fmt.Errorf("artifact directory is not configured")
	}

	if !filepath.IsAbs(source) {
		source = filepath.Join(inv.Workspace, source)
	}

	destRoot := filepath.Join(inv.ArtifactDir, inv.RunID, name)

	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("stat artifact path: %w", err)
	}

	if !info.IsDir() {
		if err := copyFile(source, filepath.Join(destRoot, filepath.Base(source))); err != nil {
			return err
		}

		fmt.Fprintf(logWriter, "uploaded %s\n", filepath.Base(source))

		return nil
	}

	count := 0

	err = filepath.WalkDir(source, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.IsDir() {
			return nil
		}

		relative, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}

		if err := copyFile(path, filepath.Join(destRoot, relative)); err != nil {
			return err
		}

		count++

		return nil
	})
	if err != nil {
		return fmt.Errorf("copy artifact files: %w", err)
	}

	fmt.Fprintf(logWriter, "uploaded %d files as %s\n", count, name)

	return nil
}

func copyFile(source, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("open %s: %w", source, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", source, err)
	}

	return nil
}
