package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mqqz/whaleflow-sub000/client"
	"github.com/mqqz/whaleflow-sub000/service/record"
)

func snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "Fetch the visible-records snapshot",
		Action: func(c *cli.Context) error {
			fc := client.NewClient(c.String("server-url"), nil, nil)
			snapshot, err := fc.Snapshot(c.Context)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return json.NewEncoder(os.Stdout).Encode(snapshot)
			}

			for network, status := range snapshot.ConnectionStatus {
				fmt.Printf("%-10s %s\n", network+":", status)
			}
			fmt.Printf("queued:    %d\n\n", snapshot.QueueDepth)
			for _, rec := range snapshot.Records {
				fmt.Printf("%s  %-9s %-10s %12s  %s -> %s\n",
					record.FormatTimestamp(rec.TimestampMs),
					rec.Network,
					rec.Direction,
					rec.Amount,
					rec.From,
					rec.To,
				)
			}
			return nil
		},
	}
}

func controlsCommands() *cli.Command {
	return &cli.Command{
		Name:  "controls",
		Usage: "Inspect and adjust the feed controls",
		Subcommands: []*cli.Command{
			getControlsCommand(),
			setControlsCommand(),
		},
	}
}

func getControlsCommand() *cli.Command {
	return &cli.Command{
		Name:  "get",
		Usage: "Show the current controls",
		Action: func(c *cli.Context) error {
			fc := client.NewClient(c.String("server-url"), nil, nil)
			controls, err := fc.Controls(c.Context)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(controls)
		},
	}
}

func setControlsCommand() *cli.Command {
	return &cli.Command{
		Name:  "set",
		Usage: "Replace the controls; unset flags keep the server's current value",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "min-amount", Usage: "Admission floor in native units"},
			&cli.IntFlag{Name: "max-visible", Usage: "Visible window size"},
			&cli.BoolFlag{Name: "whale-only", Usage: "Gate admission on the whale threshold"},
			&cli.BoolFlag{Name: "paused", Usage: "Suspend admission and flushing"},
			&cli.Int64Flag{Name: "flush-interval-ms", Usage: "Flush period in milliseconds"},
			&cli.StringFlag{Name: "filter", Usage: "jq admission filter, empty string clears it"},
		},
		Action: func(c *cli.Context) error {
			fc := client.NewClient(c.String("server-url"), nil, nil)

			controls, err := fc.Controls(c.Context)
			if err != nil {
				return err
			}

			next := *controls
			if c.IsSet("min-amount") {
				next.MinAmount = c.Float64("min-amount")
			}
			if c.IsSet("max-visible") {
				next.MaxVisible = c.Int("max-visible")
			}
			if c.IsSet("whale-only") {
				next.WhaleOnly = c.Bool("whale-only")
			}
			if c.IsSet("paused") {
				next.Paused = c.Bool("paused")
			}
			if c.IsSet("flush-interval-ms") {
				next.FlushIntervalMs = c.Int64("flush-interval-ms")
			}
			if c.IsSet("filter") {
				next.Filter = c.String("filter")
			}

			installed, err := fc.UpdateControls(c.Context, next)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(installed)
		},
	}
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Action: func(c *cli.Context) error {
			url := c.String("server-url") + "/health"
			req, err := http.NewRequestWithContext(c.Context, "GET", url, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
			}
			fmt.Println("OK")
			return nil
		},
	}
}
