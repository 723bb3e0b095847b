package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	cli "github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/Benedito123/workflow-runner/internal/commandinit"
	"github.com/Benedito123/workflow-runner/internal/commands/run/actions"
	"github.com/Benedito123/workflow-runner/internal/commands/run/jobrun"
	"github.com/Benedito123/workflow-runner/internal/commands/run/livelogs"
	"github.com/Benedito123/workflow-runner/internal/commands/run/report"
	"github.com/Benedito123/workflow-runner/internal/commands/run/scheduler"
	"github.com/Benedito123/workflow-runner/internal/commands/run/timeline"
	"github.com/Benedito123/workflow-runner/internal/defaults"
	"github.com/Benedito123/workflow-runner/internal/event"
	"github.com/Benedito123/workflow-runner/internal/log/semconv"
	oauthcoverage "github.com/Benedito123/workflow-runner/internal/oauth/coverage"
	"github.com/Benedito123/workflow-runner/internal/repository/coverage"
	"github.com/Benedito123/workflow-runner/internal/runnerconfig"
	"github.com/Benedito123/workflow-runner/internal/trigger"
	"github.com/Benedito123/workflow-runner/internal/workflow"
)

var ErrCommandFailed = errors.New("command failed")

func NewCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Runs a workflow for an event.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "workflow",
				Usage:    "Path to the workflow file.",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "event",
				Usage: "Name of the event triggering the run.",
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
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to the runner configuration file.",
				Value: "./.config/runner.json",
			},
			&cli.BoolFlag{
				Name:  "no-trigger-check",
				Usage: "Run the workflow even if its triggers do not match the event.",
			},
			&cli.BoolFlag{
				Name:  "otel",
				Usage: "Export traces over OTLP gRPC.",
			},
		},
		Action: run,
	}
}

func run(cliCtx *cli.Context) error {
	ctx := cliCtx.Context

	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger().With().Str("command", "run").Logger()

	runnerConfig, err := readConfig(cliCtx.String("config"))
	if err != nil {
		logger.Error().Err(err).Msg("read runner config file")
		return ErrCommandFailed
	}

	if err := applyDefaults(runnerConfig); err != nil {
		logger.Error().Err(err).Msg("resolve workspace")
		return ErrCommandFailed
	}

	traceProvider, tpShutdown, err := commandinit.NewOpenTelemetry(ctx, "wrun", cliCtx.Bool("otel"))
	if err != nil {
		logger.Error().Err(err).Msg("init OTEL provider")
		return ErrCommandFailed
	}
	defer tpShutdown(ctx)

	wf, err := workflow.ParseFile(cliCtx.String("workflow"))
	if err != nil {
		logger.Error().Err(err).Msg("parse workflow file")
		return ErrCommandFailed
	}

	evt, err := readEvent(cliCtx)
	if err != nil {
		logger.Error().Err(err).Msg("read event")
		return ErrCommandFailed
	}

	logger = logger.With().
		Str(semconv.WorkflowName, wf.Name).
		Str(semconv.EventName, evt.Name).
		Str(semconv.EventRef, evt.Ref).
		Logger()

	if !cliCtx.Bool("no-trigger-check") {
		decision, err := trigger.Match(wf.On, evt)
		if err != nil {
			logger.Error().Err(err).Msg("match triggers")
			return ErrCommandFailed
		}

		if !decision.Matched {
			logger.Info().Str("reason", decision.Reason).Msg("workflow not triggered")
			return nil
		}

		logger.Debug().Str("reason", decision.Reason).Msg("workflow triggered")
	}

	runID, err := uuid.NewV7()
	if err != nil {
		logger.Error().Err(err).Msg("generate run ID")
		return ErrCommandFailed
	}

	logger = logger.With().Str(semconv.RunID, runID.String()).Logger()

	ctx, cancel := context.WithCancelCause(ctx)
	stopChan := make(chan os.Signal, 1)

	errInterrupted := errors.New("interrupted")

	go func() {
		signal.Notify(stopChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

		<-stopChan
		logger.Info().Msg("received cancel signal")

		cancel(errInterrupted)
	}()

	ctx = logger.WithContext(ctx)

	actionOptions := []func(*actions.Registry){
		actions.WithTracerProvider(traceProvider),
	}

	if runnerConfig.Coverage != nil {
		coverageClient, err := newCoverageClient(ctx, runnerConfig.Coverage, traceProvider)
		if err != nil {
			logger.Error().Err(err).Msg("create coverage client")
			return ErrCommandFailed
		}

		actionOptions = append(actionOptions, actions.WithCoverageClient(coverageClient))
	}

	registry := actions.NewRegistry(actionOptions...)

	runnerOptions := []func(*jobrun.Runner){
		jobrun.WithTracerProvider(traceProvider),
	}

	if runnerConfig.LiveLogs != nil {
		logsConn, err := livelogs.NewConnection(ctx, runnerConfig.LiveLogs.URL, runnerConfig.LiveLogs.AuthToken)
		if err != nil {
			logger.Error().Err(err).Msg("connect to live logs endpoint")
			return ErrCommandFailed
		}
		defer logsConn.Close()

		runnerOptions = append(runnerOptions, jobrun.WithLineSink(logsConn))
	}

	timelineController := timeline.NewController(report.NewConsoleReporter(logger))

	// the controller must keep draining events while steps wind down after
	// an interrupt, so it is stopped explicitly, not by the signal
	timelineController.Start(context.WithoutCancel(ctx))

	jobRunner := jobrun.New(runnerConfig, timelineController, registry, runnerOptions...)

	startedAt := time.Now()

	result, err := scheduler.New(jobRunner).Run(ctx, wf, evt, runID.String())

	if shutdownErr := timelineController.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
		logger.Warn().Err(shutdownErr).Msg("shut down timeline controller")
	}

	if err != nil {
		logger.Error().Err(err).Msg("run workflow")
		return ErrCommandFailed
	}

	completedAt := time.Now()

	if runnerConfig.ReportFile != "" {
		summary := report.BuildSummary(
			runID.String(),
			wf.Name,
			evt.Name,
			evt.Ref,
			result.Conclusion,
			startedAt,
			completedAt,
			timelineController.Records(),
		)

		if err := summary.WriteFile(runnerConfig.ReportFile); err != nil {
			logger.Error().Err(err).Msg("write run report")
			return ErrCommandFailed
		}
	}

	logger.Info().Str(semconv.Conclusion, string(result.Conclusion)).Msg("run finished")

	if result.Conclusion != timeline.ConclusionSuccess {
		return ErrCommandFailed
	}

	return nil
}

// readConfig tolerates a missing file: running a workflow should not
// require `wrun configure` first.
func readConfig(path string) (*runnerconfig.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return &runnerconfig.Config{}, nil
	}

	return runnerconfig.ReadConfigFile(path)
}

func applyDefaults(config *runnerconfig.Config) error {
	if config.RunnerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("resolve hostname: %w", err)
		}

		config.RunnerName = hostname
	}

	if config.Workspace == "" {
		workspace, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}

		config.Workspace = workspace
	}

	if config.ArtifactDir == "" {
		config.ArtifactDir = filepath.Join(config.Workspace, ".artifacts")
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

func newCoverageClient(ctx context.Context, config *runnerconfig.Coverage, traceProvider trace.TracerProvider) (*coverage.Repository, error) {
	var tokenSource oauth2.TokenSource

	switch {
	case config.Token != "":
		tokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.Token})

	case config.ClientID != "" && config.KeyFile != "":
		privateKey, err := runnerconfig.ReadPrivateKeyFile(config.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read coverage signing key: %w", err)
		}

		tokenSource = oauthcoverage.NewTokenSource(config.AuthURL, config.ClientID, privateKey, defaults.HTTPClient)

	default:
		return nil, errors.New("coverage config needs a token or a client ID and key file")
	}

	client := coverage.New(
		config.URL,
		coverage.WithHTTPClient(oauth2.NewClient(ctx, tokenSource)),
		coverage.WithTracerProvider(traceProvider),
	)

	return client, nil
}
