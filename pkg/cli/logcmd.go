package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func logCommand() *cli.Command {
	return &cli.Command{
		Name:  "log",
		Usage: "Inspect and export the deduplication log",
		Commands: []*cli.Command{
			logListCommand(),
			logExportCommand(),
		},
	}
}

func logListCommand() *cli.Command {
	var cfg config
	var (
		company string
		date    string
		limit   int64
	)

	flags := append(globalFlags(&cfg),
		&cli.StringFlag{
			Name:        "company",
			Usage:       "Filter by company",
			Destination: &company,
		},
		&cli.StringFlag{
			Name:        "date",
			Usage:       "Filter by day (YYYY-MM-DD)",
			Destination: &date,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of entries",
			Value:       20,
			Destination: &limit,
		},
	)

	return &cli.Command{
		Name:  "list",
		Usage: "List deduplication decisions, newest first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			dedupLog, err := cfg.newDedupLog(ctx)
			if err != nil {
				return err
			}

			entries, err := dedupLog.List(ctx, company, date, int(limit))
			if err != nil {
				return err
			}

			for _, e := range entries {
				sim := "-"
				if e.Similarity != nil {
					sim = fmt.Sprintf("%.4f", *e.Similarity)
				}
				fmt.Printf("%s  %-10s %s  %-22s %-9s sim=%s  %s\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"),
					e.Company, e.Date, e.Decision, e.Status, sim, e.StoragePath)
			}
			return nil
		},
	}
}

func logExportCommand() *cli.Command {
	var cfg config
	var (
		company string
		date    string
	)

	flags := append(globalFlags(&cfg),
		&cli.StringFlag{
			Name:        "company",
			Usage:       "Filter by company",
			Destination: &company,
		},
		&cli.StringFlag{
			Name:        "date",
			Usage:       "Filter by day (YYYY-MM-DD)",
			Destination: &date,
		},
	)

	return &cli.Command{
		Name:  "export",
		Usage: "Stream deduplication decisions into the BigQuery audit table",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, err := cfg.newPipeline(ctx)
			if err != nil {
				return err
			}

			count, err := uc.ExportAudit(ctx, company, date)
			if err != nil {
				return err
			}

			fmt.Printf("exported %d log entries\n", count)
			return nil
		},
	}
}
