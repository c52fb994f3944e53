// Package cmd provides the stagekeeper command line interface.
//
// Commands are plain functions returning a *cli.Command (urfave/cli/v3) that
// are collected by fx into the root command through the "commands" value
// group. The loaded *config.Config is injected into each one; it's nil when
// no config file exists, and commands that need it fail in their Before hook.
//
// # Available Commands
//
//   - run: run every stage in order, recording each attempt in the run log
//   - stage exec: apply one SQL stage in process (used by run)
//   - stage list: show the configured stages
//   - history: show recent run log entries
//   - split: print the statements a script splits into
//   - dev up/down/status: manage a local ClickHouse warehouse
//
// # Example Usage
//
//	stagekeeper run                           # run the pipeline
//	stagekeeper -c etl.yaml run --only mart   # one stage, another config
//	stagekeeper history --limit 50            # latest run log entries
//	stagekeeper split --quote-aware load.sql  # inspect statement boundaries
//	stagekeeper dev up                        # start ClickHouse on :9000
//
// The process exit code is 0 when the command succeeds and 1 when it fails,
// including a pipeline run with any failed step.
package cmd
