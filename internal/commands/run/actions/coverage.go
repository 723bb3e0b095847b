package actions

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/Benedito123/workflow-runner/internal/repository/coverage"
)

// coverageUploadAction posts a coverage report to the configured coverage
// service.
type coverageUploadAction struct {
	client *coverage.Repository
}

func (a *coverageUploadAction) Run(ctx context.Context, inv Invocation, logWriter io.Writer) error {
	file := inv.input("file")
	if file == "" {
		file = "coverage.xml"
	}

	if !filepath.IsAbs(file) {
		file = filepath.Join(inv.Workspace, file)
	}

	request := coverage.UploadRequest{
		File:  file,
		RunID: inv.RunID,
		Flags: inv.input("flags"),
	}

	if inv.Event != nil {
		request.Ref = inv.Event.Ref
		request.EventName = inv.Event.Name
	}

	reportURL, err := a.client.Upload(ctx, request)
	if err != nil {
		return fmt.Errorf("upload report: %w", err)
	}

	fmt.Fprintf(logWriter, "coverage report uploaded: %s\n", reportURL)

	return nil
}
