package version

import (
	"fmt"

	cli "github.com/urfave/cli/v2"

	"github.com/Benedito123/workflow-runner/internal/meta/version"
)

func NewCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Prints the version.",
		Action: func(cliCtx *cli.Context) error {
			fmt.Fprintln(cliCtx.App.Writer, version.Full())

			return nil
		},
	}
}
