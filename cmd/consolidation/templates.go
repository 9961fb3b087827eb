package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dukex/consolidation/pkg/catalog"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
)

func NewTemplatesCommand() *cli.Command {
	return &cli.Command{
		Name:    "templates",
		Aliases: []string{"t"},
		Usage:   "List the node templates of the catalog",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the full templates as JSON",
			},
		},
		Action: func(_ context.Context, command *cli.Command) error {
			return printTemplates(command.Root().Writer, catalog.New(), command.Bool("json"))
		},
	}
}

func printTemplates(out io.Writer, templates *catalog.Catalog, asJSON bool) error {
	if asJSON {
		raw, err := json.MarshalIndent(templates.List(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode templates: %w", err)
		}

		_, err = fmt.Fprintln(out, string(raw))

		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "TYPE\tCATEGORY\tNAME\tREQUIRED")

	for _, t := range templates.List() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Type, t.Category, t.Name, strings.Join(t.RequiredFields, ","))
	}

	return w.Flush()
}
