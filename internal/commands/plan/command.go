package plan

import (
	"fmt"

	"github.com/kr/pretty"
	"github.com/rs/zerolog"
	cli "github.com/urfave/cli/v2"

	"github.com/Benedito123/workflow-runner/internal/event"
	"github.com/Benedito123/workflow-runner/internal/log/semconv"
	"github.com/Benedito123/workflow-runner/internal/trigger"
	"github.com/Benedito123/workflow-runner/internal/workflow"
)

func NewCommand() *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Shows whether an event would trigger a workflow, and what would run.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "workflow",
				Usage:    "Path to the workflow file.",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "event",
				Usage: "Name of the event to plan for.",
				Value: event.NamePush,
			},
			&cli.StringFlag{
				Name:  "ref",
				Usage: "Git ref the event points at.",
				Value: "refs/heads/main",
			},
			&cli.StringFlag{
				Name:  "event-file",
				Usage: "Path to a JSON event payload. Overrides --ref.",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Dump the parsed workflow document.",
			},
		},
		Action: run,
	}
}

func run(cliCtx *cli.Context) error {
	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	wf, err := workflow.ParseFile(cliCtx.String("workflow"))
	if err != nil {
		return fmt.Errorf("parse workflow file: %w", err)
	}

	evt, err := readEvent(cliCtx)
	if err != nil {
		return fmt.Errorf("read event: %w", err)
	}

	if cliCtx.Bool("verbose") {
		pretty.Println(wf)
	}

	decision, err := trigger.Match(wf.On, evt)
	if err != nil {
		return fmt.Errorf("match triggers: %w", err)
	}

	if !decision.Matched {
		logger.Info().
			Str(semconv.WorkflowName, wf.Name).
			Str(semconv.EventName, evt.Name).
			Str("reason", decision.Reason).
			Msg("workflow would not run")

		return nil
	}

	logger.Info().
		Str(semconv.WorkflowName, wf.Name).
		Str(semconv.EventName, evt.Name).
		Str("reason", decision.Reason).
		Msg("workflow would run")

	for _, job := range wf.Jobs {
		logger.Info().
			Str(semconv.JobID, job.ID).
			Int("steps", len(job.Steps)).
			Strs("needs", []string(job.Needs)).
			Msg(job.DisplayName())
	}

	return nil
}

func readEvent(cliCtx *cli.Context) (*event.Event, error) {
	name := cliCtx.String("event")

	if path := cliCtx.String("event-file"); path != "" {
		return event.ReadPayloadFile(name, path)
	}

	return event.New(name, cliCtx.String("ref"))
}
