package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pseudomuto/stagekeeper/pkg/config"
	"github.com/pseudomuto/stagekeeper/pkg/runlog"
	"github.com/urfave/cli/v3"
)

const historyErrorWidth = 60

// history prints recent run log entries for the configured pipeline.
//
// Example usage:
//
//	stagekeeper history --limit 8
func history(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:   "history",
		Usage:  "Show recent step attempts from the run log",
		Before: requireConfig(cfg),
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "number of entries to show, 0 for all",
				Value: 20,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			store, err := runlog.Open(ctx, cfg.RunLogDatabase())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.List(ctx, cfg.Pipeline, int(cmd.Int("limit")))
			if err != nil {
				return err
			}

			w := stdout(cmd)
			if len(entries) == 0 {
				fmt.Fprintf(w, "No runs recorded for %s\n", cfg.Pipeline)
				return nil
			}

			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tORDER\tSTEP\tSTATUS\tRECORDS\tDURATION\tERROR")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s %s\t%d\t%s\t%s\n",
					e.StartTime.Local().Format("2006-01-02 15:04:05"),
					e.StepOrder,
					e.StepName,
					statusIcon(e.Status),
					e.Status,
					e.RecordsProcessed,
					formatDuration(e),
					summarize(e.ErrorMessage),
				)
			}

			return tw.Flush()
		},
	}
}

func statusIcon(s runlog.Status) string {
	switch s {
	case runlog.StatusSuccess:
		return "✅"
	case runlog.StatusFailed:
		return "❌"
	default:
		return "⏳"
	}
}

func formatDuration(e *runlog.Entry) string {
	if e.EndTime == nil {
		return "-"
	}

	return e.Duration().Round(time.Millisecond).String()
}

func summarize(msg *string) string {
	if msg == nil {
		return ""
	}

	line, _, _ := strings.Cut(strings.TrimSpace(*msg), "\n")
	if r := []rune(line); len(r) > historyErrorWidth {
		return string(r[:historyErrorWidth-3]) + "..."
	}

	return line
}
