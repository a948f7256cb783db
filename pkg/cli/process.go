package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func processCommand() *cli.Command {
	var cfg config
	var (
		inputPath string
		company   string
		timestamp string
	)

	flags := append(globalFlags(&cfg),
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Path to the generated HTML report",
			Required:    true,
			Destination: &inputPath,
		},
		&cli.StringFlag{
			Name:        "company",
			Usage:       "Company the report is about",
			Required:    true,
			Destination: &company,
		},
		&cli.StringFlag{
			Name:        "timestamp",
			Usage:       "Report creation time (RFC3339, defaults to now)",
			Destination: &timestamp,
		},
	)

	return &cli.Command{
		Name:  "process",
		Usage: "Run one report through storage, dedup and indexing",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			content, err := os.ReadFile(inputPath)
			if err != nil {
				return goerr.Wrap(err, "failed to read report file", goerr.V("path", inputPath))
			}

			ts := time.Now()
			if timestamp != "" {
				ts, err = time.Parse(time.RFC3339, timestamp)
				if err != nil {
					return goerr.Wrap(err, "invalid timestamp", goerr.V("timestamp", timestamp))
				}
			}

			uc, err := cfg.newPipeline(ctx)
			if err != nil {
				return err
			}

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			sp.Suffix = " processing report..."
			sp.Start()
			result, procErr := uc.ProcessReport(ctx, string(content), company, ts)
			sp.Stop()

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return goerr.Wrap(err, "failed to render result")
			}
			fmt.Println(string(out))

			return procErr
		},
	}
}
