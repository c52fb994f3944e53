package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/pseudomuto/stagekeeper/pkg/config"
	"github.com/pseudomuto/stagekeeper/pkg/consts"
	"github.com/pseudomuto/stagekeeper/pkg/script"
	"github.com/pseudomuto/stagekeeper/pkg/stage"
	"github.com/urfave/cli/v3"
)

func stageCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:   "stage",
		Usage:  "Inspect and execute individual stages",
		Before: requireConfig(cfg),
		Commands: []*cli.Command{
			stageExec(cfg),
			stageList(cfg),
		},
	}
}

// stageExec is the process body of a SQL stage. It applies the stage to its
// target and prints the records marker on success. Errors go to stderr and
// make the process exit non-zero.
func stageExec(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "exec",
		Usage:     "Apply a SQL stage to its target",
		ArgsUsage: "<name>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("exactly one stage name is required")
			}

			s, err := cfg.Stage(cmd.Args().First())
			if err != nil {
				return err
			}

			if s.IsCommand() {
				return errors.Errorf("stage %s runs a command, not SQL", s.Name)
			}

			target, err := cfg.Target(s.Target)
			if err != nil {
				return err
			}

			task := &stage.SQLTask{
				Target:     target.Database(),
				Scripts:    s.Scripts,
				Truncate:   s.Truncate,
				Statements: s.Statements,
				Counts:     s.Counts,
				Options:    script.Options{QuoteAware: s.QuoteAware},
				Logger:     slog.New(slog.NewTextHandler(stderr(cmd), nil)).With("stage", s.Name),
			}

			records, err := task.Apply(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(stdout(cmd), "%s%d\n", consts.RecordsMarker, records)
			return nil
		},
	}
}

func stageList(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List configured stages in run order",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			w := tabwriter.NewWriter(stdout(cmd), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ORDER\tNAME\tTITLE\tRUNS\tTIMEOUT")

			for _, s := range cfg.OrderedStages() {
				runs := "sql → " + s.Target
				if s.IsCommand() {
					runs = strings.Join(s.Command, " ")
				}

				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", s.Order, s.Name, s.Title, runs, cfg.TimeoutFor(s))
			}

			return w.Flush()
		},
	}
}
