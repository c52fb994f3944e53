package docker

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/go-connections/nat"
	"github.com/pkg/errors"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultClickHouseVersion is the image tag used when none is configured
	DefaultClickHouseVersion = "25.7"

	// ClickHousePort is the native protocol port inside the container
	ClickHousePort = 9000

	// ClickHouseHTTPPort is the HTTP port inside the container
	ClickHouseHTTPPort = 8123

	startupDeadline = 5 * time.Minute
)

type (
	// WarehouseOptions configures a throwaway ClickHouse warehouse.
	WarehouseOptions struct {
		// Version is the ClickHouse image version, defaults to DefaultClickHouseVersion
		Version string

		// Database is created on startup and used by the DSN
		Database string

		// InitScripts run once the server is up, in order
		InitScripts []string

		// ConfigDir is mounted as config.d (relative paths are made absolute)
		ConfigDir string
	}

	// Warehouse is a ClickHouse server managed by testcontainers. It's removed
	// when the process exits, so it suits integration tests rather than a
	// long lived dev server (see Engine for that).
	Warehouse struct {
		options   WarehouseOptions
		container *clickhouse.ClickHouseContainer
	}
)

// ClickHouseImage returns the image reference for a ClickHouse version.
func ClickHouseImage(version string) string {
	if version == "" {
		version = DefaultClickHouseVersion
	}

	return fmt.Sprintf("clickhouse/clickhouse-server:%s-alpine", version)
}

// NewWarehouse creates a Warehouse. Nothing runs until Start.
//
// Example:
//
//	wh := docker.NewWarehouse(docker.WarehouseOptions{
//		Database:    "warehouse",
//		InitScripts: []string{"sql/warehouse/schema.sql"},
//	})
//
//	if err := wh.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer wh.Stop(ctx)
func NewWarehouse(opts WarehouseOptions) *Warehouse {
	return &Warehouse{options: opts}
}

// Start launches the server and waits for its HTTP endpoint.
func (w *Warehouse) Start(ctx context.Context) error {
	if w.container != nil {
		return errors.New("warehouse is already running")
	}

	customizers := []testcontainers.ContainerCustomizer{
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		testcontainers.WithEnv(map[string]string{"CLICKHOUSE_DEFAULT_ACCESS_MANAGEMENT": "1"}),
		testcontainers.WithWaitStrategyAndDeadline(
			startupDeadline,
			wait.
				NewHTTPStrategy("/").
				WithPort(nat.Port(fmt.Sprintf("%d/tcp", ClickHouseHTTPPort))).
				WithStatusCodeMatcher(func(status int) bool {
					return status == 200
				}),
		),
	}

	if w.options.Database != "" {
		customizers = append(customizers, clickhouse.WithDatabase(w.options.Database))
	}

	if len(w.options.InitScripts) > 0 {
		scripts := make([]string, len(w.options.InitScripts))
		for i, s := range w.options.InitScripts {
			abs, err := filepath.Abs(s)
			if err != nil {
				return errors.Wrapf(err, "failed to resolve init script: %s", s)
			}
			scripts[i] = abs
		}

		customizers = append(customizers, clickhouse.WithInitScripts(scripts...))
	}

	if w.options.ConfigDir != "" {
		abs, err := filepath.Abs(w.options.ConfigDir)
		if err != nil {
			return errors.Wrapf(err, "failed to resolve config dir: %s", w.options.ConfigDir)
		}

		customizers = append(customizers, testcontainers.WithHostConfigModifier(func(hc *container.HostConfig) {
			hc.Mounts = append(hc.Mounts, mount.Mount{
				Type:   mount.TypeBind,
				Source: abs,
				Target: "/etc/clickhouse-server/config.d",
			})
		}))
	}

	c, err := clickhouse.Run(ctx, ClickHouseImage(w.options.Version), customizers...)
	if err != nil {
		return errors.Wrap(err, "failed to start ClickHouse warehouse")
	}

	w.container = c
	return nil
}

// Stop terminates the server. Stopping a warehouse that isn't running is a no-op.
func (w *Warehouse) Stop(ctx context.Context) error {
	if w.container == nil {
		return nil
	}

	err := w.container.Terminate(ctx)
	w.container = nil

	return errors.Wrap(err, "failed to stop ClickHouse warehouse")
}

// DSN returns a clickhouse:// DSN for the native protocol.
func (w *Warehouse) DSN(ctx context.Context) (string, error) {
	if w.container == nil {
		return "", errors.New("warehouse is not running")
	}

	dsn, err := w.container.ConnectionString(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to get connection string")
	}

	return dsn, nil
}

// HTTPURL returns the base URL of the HTTP interface.
func (w *Warehouse) HTTPURL(ctx context.Context) (string, error) {
	if w.container == nil {
		return "", errors.New("warehouse is not running")
	}

	host, err := w.container.Host(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to get container host")
	}

	port, err := w.container.MappedPort(ctx, nat.Port(fmt.Sprintf("%d/tcp", ClickHouseHTTPPort)))
	if err != nil {
		return "", errors.Wrap(err, "failed to get container port")
	}

	return fmt.Sprintf("http://%s:%s", host, port.Port()), nil
}

// IsRunning reports whether Start succeeded and Stop hasn't been called.
func (w *Warehouse) IsRunning() bool {
	return w.container != nil
}
