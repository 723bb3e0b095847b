package root

import (
	cli "github.com/urfave/cli/v2"

	"github.com/Benedito123/workflow-runner/internal/commands/configure"
	"github.com/Benedito123/workflow-runner/internal/commands/plan"
	"github.com/Benedito123/workflow-runner/internal/commands/run"
	"github.com/Benedito123/workflow-runner/internal/commands/validate"
	"github.com/Benedito123/workflow-runner/internal/commands/version"
)

func NewCommand() *cli.App {
	return &cli.App{
		Name:  "wrun",
		Usage: "Runs declarative workflows on the local machine.",
		Commands: []*cli.Command{
			configure.NewCommand(),
			plan.NewCommand(),
			run.NewCommand(),
			validate.NewCommand(),
			version.NewCommand(),
		},
	}
}
