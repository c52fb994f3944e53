package config

import (
	"os"
	"strings"

	"github.com/pseudomuto/stagekeeper/pkg/consts"
	"go.uber.org/fx"
)

// EnvConfigFile names the environment variable holding the config path.
const EnvConfigFile = "STAGEKEEPER_CONFIG"

var Module = fx.Module("config", fx.Provide(
	// The config is loaded before the CLI parses flags, so the path is taken
	// from the raw arguments. A missing file yields a nil config, leaving it to
	// commands that need one to fail.
	func(args []string) (*Config, error) {
		path := PathFromArgs(args)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, nil
		}

		return LoadConfigFile(path)
	},
))

// PathFromArgs finds the config file named by -c/--config in args, falling
// back to $STAGEKEEPER_CONFIG and then stagekeeper.yaml.
func PathFromArgs(args []string) string {
	for i := 1; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}

		for _, flag := range []string{"-c", "--config", "-config"} {
			if arg == flag && i+1 < len(args) {
				return args[i+1]
			}

			if v, ok := strings.CutPrefix(arg, flag+"="); ok {
				return v
			}
		}
	}

	if v := os.Getenv(EnvConfigFile); v != "" {
		return v
	}

	return consts.DefaultConfigFile
}
