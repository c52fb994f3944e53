package docker

import "strconv"

const (
	// DevContainerName is the fixed name of the local dev warehouse
	DevContainerName = "stagekeeper-dev"

	// DevLabel marks containers started by `stagekeeper dev up`
	DevLabel = "stagekeeper.dev"
)

// DevOptions describes the local dev warehouse container. Host ports default
// to the standard ClickHouse ports.
func DevOptions(version string, nativePort, httpPort int) ContainerOptions {
	if nativePort == 0 {
		nativePort = ClickHousePort
	}

	if httpPort == 0 {
		httpPort = ClickHouseHTTPPort
	}

	return ContainerOptions{
		Name:  DevContainerName,
		Image: ClickHouseImage(version),
		Env: map[string]string{
			"CLICKHOUSE_DEFAULT_ACCESS_MANAGEMENT": "1",
			"CLICKHOUSE_SKIP_USER_SETUP":           "1",
		},
		Labels: map[string]string{DevLabel: "true"},
		Ports: map[int]int{
			nativePort: ClickHousePort,
			httpPort:   ClickHouseHTTPPort,
		},
	}
}

// DevDSN is the DSN of a dev warehouse published on nativePort of localhost.
func DevDSN(nativePort int) string {
	if nativePort == 0 {
		nativePort = ClickHousePort
	}

	return "clickhouse://default@localhost:" + strconv.Itoa(nativePort) + "/default"
}
