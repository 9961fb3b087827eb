// Command consolidation runs and inspects consolidation process graphs.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:                  "consolidation",
		Usage:                 "Build, validate and execute financial consolidation processes",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewServeCommand(),
			NewValidateCommand(),
			NewTemplatesCommand(),
		},
	}
}

func main() {
	if err := NewRootCommand().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
