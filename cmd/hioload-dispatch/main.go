// File: cmd/hioload-dispatch/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// hioload-dispatch runs the dispatch substrate as a standalone process and
// offers a console to inspect a running instance.

package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli/v2"
)

func main() {
	wrapper := NewCliWrapper()
	if err := wrapper.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// defaultConfigPath is ~/.hioload-dispatch.yaml; empty when home is unknown.
func defaultConfigPath() string {
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".hioload-dispatch.yaml")
}

var (
	flagConfig = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   defaultConfigPath(),
		Usage:   "config file (yaml, toml or json); a missing default file is ignored.",
		EnvVars: []string{"HIOLOAD_CONFIG"},
	}
	flagLogLevel = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "overrides log.level from the config file.",
		EnvVars: []string{"HIOLOAD_LOG_LEVEL"},
	}
	flagAddr = &cli.StringFlag{
		Name:    "addr",
		Aliases: []string{"a"},
		Value:   "127.0.0.1:9464",
		Usage:   "metrics address of the running instance.",
		EnvVars: []string{"HIOLOAD_METRICS_ADDR"},
	}
	flagHeartbeat = &cli.DurationFlag{
		Name:  "heartbeat",
		Value: defaultHeartbeat,
		Usage: "interval of the heartbeat timer watched by the reactor.",
	}
)

type CliWrapper struct {
	app *cli.App
}

func NewCliWrapper() *CliWrapper {
	wrapper := &CliWrapper{
		app: &cli.App{
			Name:  "hioload-dispatch",
			Usage: "epoll dispatch threads with observer fan-out",
		},
	}
	wrapper.withFlags()
	wrapper.withCommands()
	wrapper.withAuthor()
	return wrapper
}

func (wrapper *CliWrapper) Run(args []string) error {
	return wrapper.app.Run(args)
}

func (wrapper *CliWrapper) withFlags() {
	wrapper.app.Flags = []cli.Flag{
		flagConfig,
		flagLogLevel,
	}
}

func (wrapper *CliWrapper) withCommands() {
	wrapper.app.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "start dispatch threads and serve metrics until interrupted",
			Flags:  []cli.Flag{flagHeartbeat},
			Action: runAction,
		},
		{
			Name:   "console",
			Usage:  "interactive inspection of a running instance",
			Flags:  []cli.Flag{flagAddr},
			Action: consoleAction,
		},
	}
}

func (wrapper *CliWrapper) withAuthor() {
	wrapper.app.Authors = []*cli.Author{
		{
			Name:  "momentics",
			Email: "momentics@gmail.com",
		},
	}
}
