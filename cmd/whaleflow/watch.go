package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/mqqz/whaleflow-sub000/client"
	"github.com/mqqz/whaleflow-sub000/service/record"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Tail the live record stream via SSE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "jq expression a record must satisfy to be printed (e.g. '.network == \"bitcoin\"')",
			},
		},
		Action: func(c *cli.Context) error {
			jsonOutput := c.Bool("json")

			var code *gojq.Code
			if expr := c.String("filter"); expr != "" {
				query, err := gojq.Parse(expr)
				if err != nil {
					return fmt.Errorf("failed to parse filter %q: %w", expr, err)
				}
				code, err = gojq.Compile(query)
				if err != nil {
					return fmt.Errorf("failed to compile filter %q: %w", expr, err)
				}
			}

			// Cancel on interrupt so the stream closes cleanly.
			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigChan
				cancel()
			}()

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Streaming records... (Ctrl+C to stop)\n\n")
			}

			fc := client.NewClient(c.String("server-url"), nil, nil)
			err := fc.StreamRecords(ctx, func(rec *record.Record) {
				if code != nil && !matchFilter(code, rec) {
					return
				}
				if jsonOutput {
					data, _ := json.Marshal(rec)
					fmt.Println(string(data))
				} else {
					printRecord(rec)
				}
			})
			if err != nil && ctx.Err() == nil {
				return err
			}
			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "\nDisconnected\n")
			}
			return nil
		},
	}
}

// matchFilter evaluates the jq expression against the record's JSON form.
// The record passes when the first output is neither false nor null.
func matchFilter(code *gojq.Code, rec *record.Record) bool {
	data, err := json.Marshal(rec)
	if err != nil {
		return false
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return false
	}

	iter := code.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return false
	}
	if _, isErr := v.(error); isErr {
		return false
	}
	return v != nil && v != false
}

func printRecord(rec *record.Record) {
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("ID:         %s\n", rec.ID)
	fmt.Printf("Network:    %s (%s)\n", rec.Network, rec.Channel)
	fmt.Printf("Amount:     %s\n", rec.Amount)
	fmt.Printf("Direction:  %s\n", rec.Direction)
	fmt.Printf("From:       %s\n", rec.From)
	fmt.Printf("To:         %s\n", rec.To)

	if rec.Fee != "" && rec.Fee != "0" {
		fmt.Printf("Fee:        %s\n", rec.Fee)
	}

	fmt.Printf("Time:       %s\n", record.FormatTimestamp(rec.TimestampMs))
	fmt.Println()
}
