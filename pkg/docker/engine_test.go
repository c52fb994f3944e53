package docker_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
	"github.com/pseudomuto/stagekeeper/pkg/docker"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	created    *container.Config
	hostConfig *container.HostConfig
	name       string
	started    []string
	stopped    []string
	removed    []string
	listOpts   container.ListOptions
	inspect    map[string]container.InspectResponse
	createErr  error
}

func (f *fakeClient) ImagePull(context.Context, string, image.PullOptions) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("Pulling from clickhouse/clickhouse-server\n")), nil
}

func (f *fakeClient) ContainerCreate(_ context.Context, cfg *container.Config, hc *container.HostConfig, _ *network.NetworkingConfig, _ *v1.Platform, name string) (container.CreateResponse, error) {
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}

	f.created, f.hostConfig, f.name = cfg, hc, name
	return container.CreateResponse{ID: "abc123"}, nil
}

func (f *fakeClient) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	f.started = append(f.started, id)
	return nil
}

func (f *fakeClient) ContainerList(_ context.Context, opts container.ListOptions) ([]container.Summary, error) {
	f.listOpts = opts
	return []container.Summary{{
		ID:     "abc123",
		Names:  []string{"/stagekeeper-dev"},
		Image:  "clickhouse/clickhouse-server:25.7-alpine",
		State:  "running",
		Labels: map[string]string{docker.DevLabel: "true"},
	}}, nil
}

func (f *fakeClient) ContainerStop(_ context.Context, id string, _ container.StopOptions) error {
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeClient) ContainerRemove(_ context.Context, id string, _ container.RemoveOptions) error {
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeClient) ContainerInspect(_ context.Context, id string) (container.InspectResponse, error) {
	res, ok := f.inspect[id]
	if !ok {
		return container.InspectResponse{}, errdefs.NotFound(errors.New("No such container: " + id))
	}

	return res, nil
}

func TestEngine_Pull(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, docker.NewEngine(&fakeClient{}).Pull(context.Background(), "img", &out))
	require.Contains(t, out.String(), "Pulling from")
}

func TestEngine_Start(t *testing.T) {
	client := &fakeClient{}
	engine := docker.NewEngine(client)

	id, err := engine.Start(context.Background(), docker.DevOptions("24.8", 19000, 0))
	require.NoError(t, err)
	require.Equal(t, "abc123", id)
	require.Equal(t, []string{"abc123"}, client.started)

	require.Equal(t, docker.DevContainerName, client.name)
	require.Equal(t, "clickhouse/clickhouse-server:24.8-alpine", client.created.Image)
	require.Contains(t, client.created.Env, "CLICKHOUSE_SKIP_USER_SETUP=1")
	require.Equal(t, "true", client.created.Labels[docker.DevLabel])
	require.Equal(t, "19000", client.hostConfig.PortBindings[nat.Port("9000/tcp")][0].HostPort)
	require.Equal(t, "8123", client.hostConfig.PortBindings[nat.Port("8123/tcp")][0].HostPort)
}

func TestEngine_Start_CreateFails(t *testing.T) {
	client := &fakeClient{createErr: errors.New("name in use")}

	_, err := docker.NewEngine(client).Start(context.Background(), docker.DevOptions("", 0, 0))
	require.ErrorContains(t, err, "failed to create container: stagekeeper-dev")
	require.Empty(t, client.started)
}

func TestEngine_Get(t *testing.T) {
	client := &fakeClient{inspect: map[string]container.InspectResponse{
		docker.DevContainerName: {
			ContainerJSONBase: &container.ContainerJSONBase{
				ID:    "abc123",
				Name:  "/stagekeeper-dev",
				State: &container.State{Status: "running"},
			},
			Config: &container.Config{Image: "clickhouse/clickhouse-server:25.7-alpine"},
		},
	}}
	engine := docker.NewEngine(client)

	info, err := engine.Get(context.Background(), docker.DevContainerName)
	require.NoError(t, err)
	require.Equal(t, "stagekeeper-dev", info.Name)
	require.Equal(t, "abc123", info.ID)
	require.True(t, info.Running())

	_, err = engine.Get(context.Background(), "missing")
	require.ErrorIs(t, err, docker.ErrContainerNotFound)
}

func TestEngine_List(t *testing.T) {
	client := &fakeClient{}

	list, err := docker.NewEngine(client).List(context.Background(), docker.DevLabel+"=true")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "stagekeeper-dev", list[0].Name)
	require.Equal(t, []string{docker.DevLabel + "=true"}, client.listOpts.Filters.Get("label"))
}

func TestEngine_Stop(t *testing.T) {
	client := &fakeClient{}

	require.NoError(t, docker.NewEngine(client).Stop(context.Background(), docker.DevContainerName))
	require.Equal(t, []string{docker.DevContainerName}, client.stopped)
	require.Equal(t, []string{docker.DevContainerName}, client.removed)
}

func TestDevDSN(t *testing.T) {
	require.Equal(t, "clickhouse://default@localhost:9000/default", docker.DevDSN(0))
	require.Equal(t, "clickhouse://default@localhost:19000/default", docker.DevDSN(19000))
}
