package docker_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/pseudomuto/stagekeeper/pkg/database"
	"github.com/pseudomuto/stagekeeper/pkg/docker"
	"github.com/pseudomuto/stagekeeper/pkg/stage"
	"github.com/stretchr/testify/require"
)

func skipIfNoDocker(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping Docker tests in short mode")
	}

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("Docker not available")
	}

	if err := exec.Command("docker", "ps").Run(); err != nil {
		t.Skip("Docker daemon not running")
	}
}

func TestClickHouseImage(t *testing.T) {
	require.Equal(t, "clickhouse/clickhouse-server:25.7-alpine", docker.ClickHouseImage(""))
	require.Equal(t, "clickhouse/clickhouse-server:24.3-alpine", docker.ClickHouseImage("24.3"))
}

func TestWarehouse_NotRunning(t *testing.T) {
	wh := docker.NewWarehouse(docker.WarehouseOptions{})
	require.False(t, wh.IsRunning())
	require.NoError(t, wh.Stop(context.Background()))

	_, err := wh.DSN(context.Background())
	require.Error(t, err)

	_, err = wh.HTTPURL(context.Background())
	require.Error(t, err)
}

func TestWarehouse_SQLStage(t *testing.T) {
	skipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	wh := docker.NewWarehouse(docker.WarehouseOptions{Database: "warehouse"})
	require.NoError(t, wh.Start(ctx))
	defer func() { _ = wh.Stop(context.Background()) }()

	dsn, err := wh.DSN(ctx)
	require.NoError(t, err)

	httpURL, err := wh.HTTPURL(ctx)
	require.NoError(t, err)
	require.Contains(t, httpURL, "http://")

	scriptPath := filepath.Join(t.TempDir(), "warehouse.sql")
	require.NoError(t, os.WriteFile(scriptPath, []byte(`
CREATE TABLE dim_city (id UInt32, name String) ENGINE = MergeTree ORDER BY id;
INSERT INTO dim_city VALUES (1, 'Toronto'), (2, 'Montreal');
`), 0o600))

	task := &stage.SQLTask{
		Target:   database.Config{Driver: database.DriverClickHouse, DSN: dsn},
		Scripts:  []string{scriptPath},
		Truncate: []string{"dim_city"},
		Statements: []string{
			"INSERT INTO dim_city VALUES (1, 'Toronto'), (2, 'Montreal'), (3, 'Ottawa')",
		},
		Counts: []string{"dim_city"},
	}

	records, err := task.Apply(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, records)

	// TABLE_ALREADY_EXISTS is classified and skipped on the second run
	records, err = task.Apply(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, records)
}
