package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/pseudomuto/stagekeeper/pkg/script"
	"github.com/urfave/cli/v3"
)

// split prints the statements a script splits into. It needs no config.
//
// Example usage:
//
//	stagekeeper split sql/warehouse/routines.sql
//	stagekeeper split --quote-aware sql/staging.sql
func split() *cli.Command {
	return &cli.Command{
		Name:      "split",
		Usage:     "Show how a SQL script is split into statements",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "quote-aware",
				Usage: "ignore delimiters inside literals, quoted identifiers and comments",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("exactly one script is required")
			}

			stmts, err := script.LoadFile(cmd.Args().First(), script.Options{
				QuoteAware: cmd.Bool("quote-aware"),
			})
			if err != nil {
				return err
			}

			w := stdout(cmd)
			for i, s := range stmts {
				fmt.Fprintf(w, "-- statement %d (delimiter %s)\n%s\n\n", i+1, s.Delimiter, s.SQL)
			}

			fmt.Fprintf(w, "-- %d statement(s)\n", len(stmts))
			return nil
		},
	}
}
