package docker

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
)

const stopTimeoutSeconds = 30

// ErrContainerNotFound is returned by Get when no container has the name.
var ErrContainerNotFound = errors.New("container not found")

type (
	// DockerClient is the subset of *client.Client the Engine uses.
	DockerClient interface {
		ImagePull(context.Context, string, image.PullOptions) (io.ReadCloser, error)
		ContainerCreate(context.Context, *container.Config, *container.HostConfig, *network.NetworkingConfig, *v1.Platform, string) (container.CreateResponse, error)
		ContainerStart(context.Context, string, container.StartOptions) error
		ContainerList(context.Context, container.ListOptions) ([]container.Summary, error)
		ContainerStop(context.Context, string, container.StopOptions) error
		ContainerRemove(context.Context, string, container.RemoveOptions) error
		ContainerInspect(context.Context, string) (container.InspectResponse, error)
	}

	// Engine manages long lived containers by name, like the dev warehouse that
	// has to survive the command that started it.
	Engine struct {
		client DockerClient
	}

	// ContainerInfo describes a container the Engine found.
	ContainerInfo struct {
		ID     string
		Name   string
		Image  string
		State  string
		Labels map[string]string
	}

	// ContainerOptions describes a container to create.
	ContainerOptions struct {
		Name   string
		Image  string
		Env    map[string]string
		Labels map[string]string

		// Ports maps host ports to container ports. A host port <= 0 lets
		// docker pick one.
		Ports map[int]int
	}
)

// NewEngine creates an Engine around a connected docker client.
//
// Example:
//
//	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
//	if err != nil {
//		return err
//	}
//	defer cli.Close()
//
//	engine := docker.NewEngine(cli)
//	info, err := engine.Get(ctx, "stagekeeper-dev")
func NewEngine(cl DockerClient) *Engine {
	return &Engine{client: cl}
}

// Running reports whether the container is up.
func (c *ContainerInfo) Running() bool {
	return c.State == "running"
}

// Pull fetches img, streaming docker's progress output to out.
func (e *Engine) Pull(ctx context.Context, img string, out io.Writer) error {
	rc, err := e.client.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return errors.Wrapf(err, "failed to pull image: %s", img)
	}
	defer func() { _ = rc.Close() }()

	if out == nil {
		out = io.Discard
	}

	_, err = io.Copy(out, rc)
	return errors.Wrapf(err, "failed to read pull output: %s", img)
}

// Start creates and starts a container, returning its id.
func (e *Engine) Start(ctx context.Context, opts ContainerOptions) (string, error) {
	env := make([]string, 0, len(opts.Env))
	for key, value := range opts.Env {
		env = append(env, key+"="+value)
	}

	exposed := make(nat.PortSet)
	bindings := make(nat.PortMap)
	for hostPort, containerPort := range opts.Ports {
		port := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
		exposed[port] = struct{}{}

		binding := nat.PortBinding{}
		if hostPort > 0 {
			binding.HostPort = strconv.Itoa(hostPort)
		}
		bindings[port] = []nat.PortBinding{binding}
	}

	resp, err := e.client.ContainerCreate(
		ctx,
		&container.Config{
			Image:        opts.Image,
			Env:          env,
			Labels:       opts.Labels,
			ExposedPorts: exposed,
		},
		&container.HostConfig{PortBindings: bindings},
		nil,
		nil,
		opts.Name,
	)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create container: %s", opts.Name)
	}

	if err := e.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", errors.Wrapf(err, "failed to start container: %s", opts.Name)
	}

	return resp.ID, nil
}

// Get looks a container up by name or id. It returns ErrContainerNotFound
// when docker doesn't know it.
func (e *Engine) Get(ctx context.Context, nameOrID string) (*ContainerInfo, error) {
	inspect, err := e.client.ContainerInspect(ctx, nameOrID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, errors.Wrap(ErrContainerNotFound, nameOrID)
		}
		return nil, errors.Wrapf(err, "failed to inspect container: %s", nameOrID)
	}

	info := &ContainerInfo{
		ID:   inspect.ID,
		Name: strings.TrimPrefix(inspect.Name, "/"),
	}

	if inspect.Config != nil {
		info.Image = inspect.Config.Image
		info.Labels = inspect.Config.Labels
	}

	if inspect.State != nil {
		info.State = string(inspect.State.Status)
	}

	return info, nil
}

// List returns running containers carrying label (key=value).
func (e *Engine) List(ctx context.Context, label string) ([]*ContainerInfo, error) {
	list, err := e.client.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(
			filters.Arg("status", "running"),
			filters.Arg("label", label),
		),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list running containers")
	}

	res := make([]*ContainerInfo, len(list))
	for i, c := range list {
		var name string
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}

		res[i] = &ContainerInfo{
			ID:     c.ID,
			Name:   name,
			Image:  c.Image,
			State:  string(c.State),
			Labels: c.Labels,
		}
	}

	return res, nil
}

// Stop stops and removes a container.
func (e *Engine) Stop(ctx context.Context, nameOrID string) error {
	timeout := stopTimeoutSeconds
	if err := e.client.ContainerStop(ctx, nameOrID, container.StopOptions{Timeout: &timeout}); err != nil {
		return errors.Wrapf(err, "failed to stop container: %s", nameOrID)
	}

	if err := e.client.ContainerRemove(ctx, nameOrID, container.RemoveOptions{Force: true}); err != nil {
		return errors.Wrapf(err, "failed to remove container: %s", nameOrID)
	}

	return nil
}
