// Package docker runs ClickHouse locally.
//
// Engine talks to the docker daemon directly and manages the named dev
// warehouse behind `stagekeeper dev`, which outlives the command that started
// it. Warehouse wraps the testcontainers ClickHouse module for throwaway
// servers in integration tests.
package docker
