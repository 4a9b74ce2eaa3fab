package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "whaleflow",
		Usage: "Whale transaction feed service CLI",
		Description: `A command-line tool for running and interacting with the whaleflow service.

Use "serve" to run the ingestion service, "watch" to tail the live record
stream, and the remaining commands to inspect or adjust a running instance.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			serveCommand(),
			watchCommand(),
			snapshotCommand(),
			controlsCommands(),
			healthCommand(),
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Whaleflow server URL",
				EnvVars: []string{"WHALEFLOW_SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
