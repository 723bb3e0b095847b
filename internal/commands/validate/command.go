package validate

import (
	"github.com/rs/zerolog"
	cli "github.com/urfave/cli/v2"

	"github.com/Benedito123/workflow-runner/internal/log/semconv"
	"github.com/Benedito123/workflow-runner/internal/workflow"
)

func NewCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Parses a workflow file and reports problems.",
		ArgsUsage: "<workflow file>...",
		Action:    run,
	}
}

func run(cliCtx *cli.Context) error {
	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	if cliCtx.NArg() == 0 {
		return cli.Exit("validate needs at least one workflow file", 1)
	}

	failed := false

	for _, path := range cliCtx.Args().Slice() {
		wf, err := workflow.ParseFile(path)
		if err != nil {
			logger.Error().Err(err).Str("file", path).Msg("invalid workflow")
			failed = true

			continue
		}

		logger.Info().
			Str("file", path).
			Str(semconv.WorkflowName, wf.Name).
			Int("jobs", len(wf.Jobs)).
			Msg("workflow is valid")
	}

	if failed {
		return cli.Exit("", 1)
	}

	return nil
}
