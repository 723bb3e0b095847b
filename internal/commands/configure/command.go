package configure

import (
	"fmt"

	"github.com/rs/zerolog"
	cli "github.com/urfave/cli/v2"

	"github.com/Benedito123/workflow-runner/internal/runnerconfig"
)

func NewCommand() *cli.Command {
	return &cli.Command{
		Name:  "configure",
		Usage: "Writes the runner configuration file.",
		Flags: []cli.Flag{
			// required
			&cli.StringFlag{
				Name:     "name",
				Usage:    "Name of the runner, shown in reports and live logs.",
				Required: true,
			},

			// optional
			&cli.StringFlag{
				Name:  "workspace",
				Usage: "Directory steps run in. Defaults to the working directory at run time.",
			},
			&cli.StringFlag{
				Name:  "artifact-dir",
				Usage: "Directory uploaded artifacts are stored in.",
			},
			&cli.StringFlag{
				Name:  "shell",
				Usage: "Default shell for run steps.",
				Value: "bash",
			},
			&cli.StringFlag{
				Name:  "report-file",
				Usage: "Path the run summary is written to after each run.",
			},
			&cli.StringFlag{
				Name:  "livelogs-url",
				Usage: "WebSocket endpoint to stream step logs to.",
			},
			&cli.StringFlag{
				Name:  "livelogs-token",
				Usage: "Bearer token for the live logs endpoint.",
			},
			&cli.StringFlag{
				Name:  "coverage-url",
				Usage: "Base URL of the coverage upload service.",
			},
			&cli.StringFlag{
				Name:  "coverage-token",
				Usage: "Static token for the coverage upload service.",
			},
			&cli.StringFlag{
				Name:  "coverage-auth-url",
				Usage: "Token endpoint for the coverage client credentials flow.",
			},
			&cli.StringFlag{
				Name:  "coverage-client-id",
				Usage: "Client ID for the coverage client credentials flow.",
			},
			&cli.StringFlag{
				Name:  "coverage-key-file",
				Usage: "Path to the RSA private key signing coverage auth assertions.",
			},
			&cli.StringFlag{
				Name:  "runner-config-file",
				Usage: "Destination path for the runner configuration file.",
				Value: "./.config/runner.json",
			},
		},
		Action: run,
	}
}

func run(cliCtx *cli.Context) error {
	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	config := runnerconfig.Config{
		RunnerName:  cliCtx.String("name"),
		Shell:       cliCtx.String("shell"),
		Workspace:   cliCtx.String("workspace"),
		ArtifactDir: cliCtx.String("artifact-dir"),
		ReportFile:  cliCtx.String("report-file"),
	}

	if url := cliCtx.String("livelogs-url"); url != "" {
		config.LiveLogs = &runnerconfig.LiveLogs{
			URL:       url,
			AuthToken: cliCtx.String("livelogs-token"),
		}
	}

	if url := cliCtx.String("coverage-url"); url != "" {
		config.Coverage = &runnerconfig.Coverage{
			URL:      url,
			Token:    cliCtx.String("coverage-token"),
			AuthURL:  cliCtx.String("coverage-auth-url"),
			ClientID: cliCtx.String("coverage-client-id"),
			KeyFile:  cliCtx.String("coverage-key-file"),
		}
	}

	path := cliCtx.String("runner-config-file")

	if err := runnerconfig.SaveConfigFile(path, &config); err != nil {
		return fmt.Errorf("save runner config: %w", err)
	}

	logger.Info().Str("file", path).Msg("runner configured")

	return nil
}
