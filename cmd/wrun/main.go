package main

import (
	"fmt"
	"os"

	"github.com/Benedito123/workflow-runner/internal/commands/root"
)

func main() {
	rootCmd := root.NewCommand()

	if err := rootCmd.Run(os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
