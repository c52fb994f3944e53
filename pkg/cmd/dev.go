package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/stagekeeper/pkg/config"
	"github.com/pseudomuto/stagekeeper/pkg/docker"
	"github.com/urfave/cli/v3"
)

func dev(cfg *config.Config, client docker.DockerClient) *cli.Command {
	return &cli.Command{
		Name:  "dev",
		Usage: "Manage a local ClickHouse warehouse for development",
		Commands: []*cli.Command{
			devUp(cfg, client),
			devDown(client),
			devStatus(client),
		},
	}
}

func devSettings(cfg *config.Config) config.Dev {
	if cfg == nil {
		return config.Dev{}
	}

	return cfg.Dev
}

func devUp(cfg *config.Config, client docker.DockerClient) *cli.Command {
	return &cli.Command{
		Name:  "up",
		Usage: "Start the local ClickHouse warehouse",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			w := stdout(cmd)
			engine := docker.NewEngine(client)
			settings := devSettings(cfg)

			info, err := engine.Get(ctx, docker.DevContainerName)
			switch {
			case err == nil && info.Running():
				fmt.Fprintln(w, "ClickHouse development server is already running")
				fmt.Fprintln(w, "Use 'stagekeeper dev down' to stop it first")
				return nil
			case err == nil:
				// left over from an earlier run, replace it
				if err := engine.Stop(ctx, docker.DevContainerName); err != nil {
					return err
				}
			case !errors.Is(err, docker.ErrContainerNotFound):
				return err
			}

			opts := docker.DevOptions(settings.Version, settings.Port, settings.HTTPPort)

			fmt.Fprintf(w, "Pulling %s...\n", opts.Image)
			if err := engine.Pull(ctx, opts.Image, nil); err != nil {
				return err
			}

			id, err := engine.Start(ctx, opts)
			if err != nil {
				return err
			}

			fmt.Fprintln(w, "\n"+strings.Repeat("=", 60))
			fmt.Fprintln(w, "ClickHouse Development Server Started")
			fmt.Fprintln(w, strings.Repeat("=", 60))
			fmt.Fprintf(w, "Container:   %s (%s)\n", docker.DevContainerName, shortID(id))
			fmt.Fprintf(w, "Native DSN:  %s\n", docker.DevDSN(settings.Port))
			fmt.Fprintf(w, "HTTP URL:    http://localhost:%d\n", httpPort(settings.HTTPPort))
			fmt.Fprintln(w, "\nUse 'stagekeeper dev down' to stop the server")
			fmt.Fprintln(w, strings.Repeat("=", 60))
			return nil
		},
	}
}

func devDown(client docker.DockerClient) *cli.Command {
	return &cli.Command{
		Name:  "down",
		Usage: "Stop and remove the local ClickHouse warehouse",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			w := stdout(cmd)
			engine := docker.NewEngine(client)

			if _, err := engine.Get(ctx, docker.DevContainerName); err != nil {
				if errors.Is(err, docker.ErrContainerNotFound) {
					fmt.Fprintln(w, "No ClickHouse development server is currently running")
					return nil
				}
				return err
			}

			if err := engine.Stop(ctx, docker.DevContainerName); err != nil {
				return err
			}

			fmt.Fprintln(w, "ClickHouse development server stopped")
			return nil
		},
	}
}

func devStatus(client docker.DockerClient) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the state of the local ClickHouse warehouse",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			w := stdout(cmd)

			list, err := docker.NewEngine(client).List(ctx, docker.DevLabel+"=true")
			if err != nil {
				return err
			}

			if len(list) == 0 {
				fmt.Fprintln(w, "No ClickHouse development server is currently running")
				return nil
			}

			for _, c := range list {
				fmt.Fprintf(w, "%s  %s  %s\n", c.Name, c.Image, c.State)
			}

			return nil
		},
	}
}

func httpPort(port int) int {
	if port == 0 {
		return docker.ClickHouseHTTPPort
	}

	return port
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}

	return id
}
