package cmd

import (
	"github.com/docker/docker/client"
	"github.com/pkg/errors"
	"github.com/pseudomuto/stagekeeper/pkg/docker"
	"go.uber.org/fx"
)

var Module = fx.Module("cli",
	fx.Provide(
		newDockerClient,
		fx.Annotate(dev, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(history, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(runCmd, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(split, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(stageCmd, fx.ResultTags(`group:"commands"`)),
	),
	fx.Invoke(Run),
)

// newDockerClient doesn't contact the daemon, so commands that never touch
// docker work without one.
func newDockerClient(lc fx.Lifecycle) (docker.DockerClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create docker client")
	}

	lc.Append(fx.StopHook(cli.Close))
	return cli, nil
}
